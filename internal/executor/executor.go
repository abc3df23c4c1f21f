package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"komgadl/internal/comicinfo"
	"komgadl/internal/extractor"
	"komgadl/internal/followlist"
	"komgadl/internal/mangadex"
	"komgadl/internal/progress"
	"komgadl/internal/series"
	"komgadl/internal/store"
)

// pluginID is the provenance tag of entries driven by this executor.
const pluginID = "gallery-dl"

// Catalog is the slice of the catalog client the executor composes.
type Catalog interface {
	GetManga(ctx context.Context, mangaID string) *mangadex.MangaMetadata
	GetAllChapters(ctx context.Context, mangaID, lang string) []mangadex.ChapterDescriptor
}

// Driver is the extractor surface the executor drives.
type Driver interface {
	Installed() bool
	GetMetadataQuick(ctx context.Context, url string, catalog extractor.CatalogClient) (*mangadex.MangaMetadata, error)
	DownloadSingle(ctx context.Context, chapterURL, destination, configFile string, onStarted func(*os.Process)) (*extractor.SingleResult, error)
	DownloadSeries(ctx context.Context, url, destination, configFile string, callbacks extractor.SeriesCallbacks) (int, error)
}

// Materializer seeds the destination directory.
type Materializer interface {
	WriteSeriesJSON(manga *mangadex.MangaMetadata, destination string) error
	WriteCover(ctx context.Context, mangaID, coverFilename, destination string) error
}

// Options are the executor's fixed settings.
type Options struct {
	DefaultDownloadsDir string
	ConfigDir           string
	PreferredLanguage   string
}

type activeDownload struct {
	entry   *store.DownloadEntry
	process *os.Process
}

// Executor drives one DownloadEntry at a time through its state machine. The
// process-wide concurrent state (active downloads, cancelled ids) lives here
// and is torn down with the value.
type Executor struct {
	downloads   store.DownloadRepository
	chapterURLs store.ChapterURLRepository
	configs     store.ConfigRepository
	pluginLogs  store.PluginLogRepository
	catalog     Catalog
	driver      Driver
	materialize Materializer
	publisher   progress.Publisher
	libraries   *followlist.Registry
	opts        Options

	mu        sync.Mutex
	active    map[string]*activeDownload
	cancelled map[string]struct{}
}

func NewExecutor(
	downloads store.DownloadRepository,
	chapterURLs store.ChapterURLRepository,
	configs store.ConfigRepository,
	pluginLogs store.PluginLogRepository,
	catalog Catalog,
	driver Driver,
	materialize Materializer,
	publisher progress.Publisher,
	libraries *followlist.Registry,
	opts Options,
) *Executor {
	if opts.PreferredLanguage == "" {
		opts.PreferredLanguage = "en"
	}
	return &Executor{
		downloads:   downloads,
		chapterURLs: chapterURLs,
		configs:     configs,
		pluginLogs:  pluginLogs,
		catalog:     catalog,
		driver:      driver,
		materialize: materialize,
		publisher:   publisher,
		libraries:   libraries,
		opts:        opts,
		active:      make(map[string]*activeDownload),
		cancelled:   make(map[string]struct{}),
	}
}

// ActiveIDs returns the ids currently being processed in this process.
func (e *Executor) ActiveIDs() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make(map[string]struct{}, len(e.active))
	for id := range e.active {
		ids[id] = struct{}{}
	}
	return ids
}

// IsActive reports whether the entry is being processed right now.
func (e *Executor) IsActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[id]
	return ok
}

func (e *Executor) isCancelled(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancelled[id]
	return ok
}

// Dispatch drives one entry from PENDING to a terminal status. Any
// unexpected failure is converted into FAILED with an error event; the
// progress channel always sees a terminal event for the attempt.
func (e *Executor) Dispatch(ctx context.Context, entry *store.DownloadEntry) {
	// a cancel that raced the dispatch wins
	if e.isCancelled(entry.ID) {
		slog.Info("skipping cancelled entry", "id", entry.ID)
		return
	}

	e.mu.Lock()
	if _, busy := e.active[entry.ID]; busy {
		e.mu.Unlock()
		return
	}
	handle := &activeDownload{entry: entry}
	e.active[entry.ID] = handle
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.active, entry.ID)
		delete(e.cancelled, entry.ID)
		e.mu.Unlock()
	}()

	// a re-attempt of a previously started entry spends one retry
	if entry.StartedDate != nil {
		entry.RetryCount++
	}

	now := time.Now()
	entry.Status = store.StatusDownloading
	entry.StartedDate = &now
	entry.ProgressPercent = 0
	entry.CurrentChapter = 0
	if err := e.downloads.Save(ctx, entry); err != nil {
		slog.Error("failed to mark entry downloading", "id", entry.ID, "error", err)
		return
	}
	e.publisher.Publish(progress.Event{
		Type:       progress.TypeStarted,
		DownloadID: entry.ID,
		Title:      entry.Title,
		SourceURL:  entry.SourceURL,
		Status:     string(store.StatusDownloading),
	})

	meta, err := e.driver.GetMetadataQuick(ctx, entry.SourceURL, catalogAdapter{e.catalog})
	if err != nil {
		e.fail(ctx, entry, progress.TypeFailed, fmt.Sprintf("metadata fetch failed: %v", err))
		return
	}
	if meta.Title != "" {
		entry.Title = meta.Title
	}
	if meta.Author != "" && entry.Author == nil {
		author := meta.Author
		entry.Author = &author
	}

	destination, err := e.resolveDestination(entry, meta)
	if err != nil {
		e.fail(ctx, entry, progress.TypeFailed, err.Error())
		return
	}
	if err := os.MkdirAll(destination, 0755); err != nil {
		e.fail(ctx, entry, progress.TypeFailed, fmt.Sprintf("create destination: %v", err))
		return
	}

	// seed files are ancillary: failures log, they never fail the download
	if err := e.materialize.WriteSeriesJSON(meta, destination); err != nil {
		slog.Warn("series.json write failed", "id", entry.ID, "error", err)
	}
	if err := e.materialize.WriteCover(ctx, meta.ID, meta.CoverFilename, destination); err != nil {
		slog.Warn("cover write failed", "id", entry.ID, "error", err)
	}

	configFile, err := e.writeExtractorConfig(ctx)
	if err != nil {
		e.fail(ctx, entry, progress.TypeError, fmt.Sprintf("extractor config: %v", err))
		return
	}

	var chapters []mangadex.ChapterDescriptor
	if mangaID := mangadex.ExtractMangaID(entry.SourceURL); mangaID != "" {
		chapters = e.catalog.GetAllChapters(ctx, mangaID, e.opts.PreferredLanguage)
	}

	var filesDownloaded int
	if len(chapters) > 0 {
		filesDownloaded, err = e.downloadByChapter(ctx, entry, meta, chapters, destination, configFile, handle)
	} else {
		filesDownloaded, err = e.downloadWholeSeries(ctx, entry, meta, destination, configFile, handle)
	}
	if err == errCancelled {
		e.finishCancelled(ctx, entry)
		return
	}
	if err != nil {
		e.fail(ctx, entry, progress.TypeFailed, err.Error())
		return
	}

	if err := cleanupSubdirectories(destination); err != nil {
		slog.Warn("destination cleanup failed", "id", entry.ID, "error", err)
	}

	completed := time.Now()
	entry.Status = store.StatusCompleted
	entry.ProgressPercent = 100
	entry.DestinationPath = &destination
	entry.CompletedDate = &completed
	entry.ErrorMessage = nil
	if err := e.downloads.Save(ctx, entry); err != nil {
		slog.Error("failed to mark entry completed", "id", entry.ID, "error", err)
	}

	e.publisher.Publish(progress.Event{
		Type:            progress.TypeCompleted,
		DownloadID:      entry.ID,
		Title:           entry.Title,
		SourceURL:       entry.SourceURL,
		Status:          string(store.StatusCompleted),
		Percentage:      100,
		FilesDownloaded: filesDownloaded,
	})
	slog.Info("download completed", "id", entry.ID, "title", entry.Title, "files", filesDownloaded)
}

// sentinel for the cancelled path inside the download loops
var errCancelled = extractor.ErrCancelled

// downloadByChapter walks the chapter list in feed order, fetching each URL
// with its own extractor run and injecting ComicInfo.xml into the produced
// archive. Progress is chapter-granular.
func (e *Executor) downloadByChapter(
	ctx context.Context,
	entry *store.DownloadEntry,
	meta *mangadex.MangaMetadata,
	chapters []mangadex.ChapterDescriptor,
	destination, configFile string,
	handle *activeDownload,
) (int, error) {
	total := len(chapters)
	entry.TotalChapters = &total
	_ = e.downloads.Save(ctx, entry)

	urls := make([]string, total)
	for i, ch := range chapters {
		urls[i] = ch.ChapterURL
	}
	already, err := e.chapterURLs.ExistsByURLs(ctx, urls)
	if err != nil {
		slog.Warn("chapter history lookup failed", "id", entry.ID, "error", err)
		already = map[string]bool{}
	}

	files := 0
	for i, chapter := range chapters {
		if e.isCancelled(entry.ID) {
			return files, errCancelled
		}

		if !already[chapter.ChapterURL] {
			result, err := e.driver.DownloadSingle(ctx, chapter.ChapterURL, destination, configFile,
				func(p *os.Process) {
					e.mu.Lock()
					handle.process = p
					e.mu.Unlock()
				})
			// a cancel kills the run; its exit is not a chapter failure
			if e.isCancelled(entry.ID) {
				return files, errCancelled
			}
			if err != nil {
				return files, fmt.Errorf("chapter %s: %v", formatChapterNumber(chapter.ChapterNumber), err)
			}
			if result.ExitCode != 0 {
				return files, fmt.Errorf("chapter %s: extractor exited with code %d: %s",
					formatChapterNumber(chapter.ChapterNumber), result.ExitCode, tail(result.Stderr))
			}

			if cbz := latestCBZ(destination); cbz != "" {
				info, err := comicinfo.Generate(meta, &chapter).Marshal()
				if err == nil {
					if err := comicinfo.Inject(cbz, info); err != nil {
						slog.Warn("comicinfo injection failed", "cbz", cbz, "error", err)
					}
				}
			}

			e.recordChapter(ctx, meta.ID, chapter)
			files++
		}

		percent := (i + 1) * 100 / total
		entry.CurrentChapter = i + 1
		// 100 is only ever persisted together with COMPLETED
		if percent < 100 {
			entry.ProgressPercent = percent
		}
		_ = e.downloads.Save(ctx, entry)

		e.publisher.Publish(progress.Event{
			Type:              progress.TypeProgress,
			DownloadID:        entry.ID,
			Title:             entry.Title,
			Status:            string(store.StatusDownloading),
			CurrentChapter:    chapter.ChapterNumber,
			TotalChapters:     total,
			CompletedChapters: i + 1,
			Percentage:        percent,
		})
	}

	return files, nil
}

// downloadWholeSeries hands the URL to one whole-series extractor run,
// forwarding its own (strictly increasing) percentage. Afterwards every CBZ
// in the destination gets a series-level ComicInfo.xml.
func (e *Executor) downloadWholeSeries(
	ctx context.Context,
	entry *store.DownloadEntry,
	meta *mangadex.MangaMetadata,
	destination, configFile string,
	handle *activeDownload,
) (int, error) {
	lastPercent := 0
	files, err := e.driver.DownloadSeries(ctx, entry.SourceURL, destination, configFile, extractor.SeriesCallbacks{
		IsCancelled: func() bool { return e.isCancelled(entry.ID) },
		OnProcessStarted: func(p *os.Process) {
			e.mu.Lock()
			handle.process = p
			e.mu.Unlock()
		},
		OnProgress: func(percent, currentFile, totalFiles int, message string) {
			if percent <= lastPercent {
				return
			}
			lastPercent = percent
			if percent < 100 {
				entry.ProgressPercent = percent
				_ = e.downloads.Save(ctx, entry)
			}
			e.publisher.Publish(progress.Event{
				Type:            progress.TypeProgress,
				DownloadID:      entry.ID,
				Title:           entry.Title,
				Status:          string(store.StatusDownloading),
				FilesDownloaded: currentFile,
				Percentage:      percent,
			})
		},
	})
	if err == extractor.ErrCancelled {
		return files, errCancelled
	}
	if err != nil {
		return files, err
	}

	info, merr := comicinfo.Generate(meta, nil).Marshal()
	if merr == nil {
		for _, cbz := range listCBZ(destination) {
			if err := comicinfo.Inject(cbz, info); err != nil {
				slog.Warn("comicinfo injection failed", "cbz", cbz, "error", err)
			}
		}
	}

	return files, nil
}

// Cancel marks the entry cancelled, remembers the id so the dispatch loop
// stops at its next check, and kills any in-flight extractor process. No
// rollback happens: finished chapters stay on disk and in the history.
func (e *Executor) Cancel(ctx context.Context, id string) error {
	entry, err := e.downloads.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status != store.StatusPending && entry.Status != store.StatusDownloading {
		return fmt.Errorf("entry %s is %s and cannot be cancelled", id, entry.Status)
	}

	e.mu.Lock()
	e.cancelled[id] = struct{}{}
	handle, wasActive := e.active[id]
	var process *os.Process
	if wasActive {
		process = handle.process
	}
	e.mu.Unlock()

	entry.Status = store.StatusCancelled
	if err := e.downloads.Save(ctx, entry); err != nil {
		return err
	}

	if process != nil {
		if err := process.Kill(); err != nil {
			slog.Warn("failed to kill extractor process", "id", id, "error", err)
		}
	}

	// an entry that never started gets its terminal event here; an active
	// one gets it from the dispatch loop when it observes the flag
	if !wasActive {
		e.publisher.Publish(progress.Event{
			Type:       progress.TypeCancelled,
			DownloadID: id,
			Title:      entry.Title,
			Status:     string(store.StatusCancelled),
		})
	}
	return nil
}

// Retry flips a FAILED entry with retries left back to PENDING. The retry
// counter is spent at dispatch time, not here.
func (e *Executor) Retry(ctx context.Context, id string) error {
	entry, err := e.downloads.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status != store.StatusFailed {
		return fmt.Errorf("entry %s is %s, only FAILED entries can be retried", id, entry.Status)
	}
	if entry.RetryCount >= entry.MaxRetries {
		return fmt.Errorf("entry %s exhausted its %d retries", id, entry.MaxRetries)
	}

	entry.Status = store.StatusPending
	entry.ErrorMessage = nil
	if err := e.downloads.Save(ctx, entry); err != nil {
		return err
	}

	e.publisher.Publish(progress.Event{
		Type:         progress.TypeRetry,
		DownloadID:   id,
		Title:        entry.Title,
		Status:       string(store.StatusPending),
		RetryAttempt: entry.RetryCount + 1,
	})
	return nil
}

// Delete removes the entry, killing its process first when active. Files on
// disk are left alone.
func (e *Executor) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	handle, wasActive := e.active[id]
	if wasActive {
		e.cancelled[id] = struct{}{}
	}
	var process *os.Process
	if wasActive {
		process = handle.process
	}
	e.mu.Unlock()

	if process != nil {
		if err := process.Kill(); err != nil {
			slog.Warn("failed to kill extractor process", "id", id, "error", err)
		}
	}

	return e.downloads.Delete(ctx, id)
}

func (e *Executor) fail(ctx context.Context, entry *store.DownloadEntry, eventType progress.EventType, message string) {
	msg := message
	entry.Status = store.StatusFailed
	entry.ErrorMessage = &msg
	if err := e.downloads.Save(ctx, entry); err != nil {
		slog.Error("failed to mark entry failed", "id", entry.ID, "error", err)
	}

	e.publisher.Publish(progress.Event{
		Type:         eventType,
		DownloadID:   entry.ID,
		Title:        entry.Title,
		SourceURL:    entry.SourceURL,
		Status:       string(store.StatusFailed),
		ErrorMessage: message,
	})

	if e.pluginLogs != nil {
		if err := e.pluginLogs.Append(ctx, &store.PluginLog{
			PluginID: pluginID,
			Level:    store.LogError,
			Message:  fmt.Sprintf("download %s failed: %s", entry.ID, message),
		}); err != nil {
			slog.Debug("plugin log append failed", "error", err)
		}
	}
	slog.Warn("download failed", "id", entry.ID, "error", message)
}

func (e *Executor) finishCancelled(ctx context.Context, entry *store.DownloadEntry) {
	entry.Status = store.StatusCancelled
	if err := e.downloads.Save(ctx, entry); err != nil {
		slog.Error("failed to mark entry cancelled", "id", entry.ID, "error", err)
	}

	e.publisher.Publish(progress.Event{
		Type:       progress.TypeCancelled,
		DownloadID: entry.ID,
		Title:      entry.Title,
		Status:     string(store.StatusCancelled),
	})
	slog.Info("download cancelled", "id", entry.ID)
}

// recordChapter writes the proof-of-download row; the insert order follows
// the chapter iteration order.
func (e *Executor) recordChapter(ctx context.Context, seriesID string, chapter mangadex.ChapterDescriptor) {
	record := &store.ChapterURLRecord{
		SeriesID:        seriesID,
		URL:             chapter.ChapterURL,
		ChapterNumber:   chapter.ChapterNumber,
		Volume:          chapter.Volume,
		Title:           chapter.Title,
		Lang:            chapter.Language,
		Source:          "mangadex",
		ChapterID:       chapter.ChapterID,
		ScanlationGroup: chapter.ScanlationGroup,
		DownloadedAt:    time.Now(),
	}
	if err := e.chapterURLs.Insert(ctx, record); err != nil {
		slog.Warn("failed to record chapter url", "url", chapter.ChapterURL, "error", err)
	}
}

func (e *Executor) resolveDestination(entry *store.DownloadEntry, meta *mangadex.MangaMetadata) (string, error) {
	root := e.opts.DefaultDownloadsDir
	if entry.LibraryID != nil && *entry.LibraryID != "" {
		lib, err := e.libraries.Get(*entry.LibraryID)
		if err != nil {
			return "", fmt.Errorf("resolve library: %v", err)
		}
		root = lib.Root
	}
	return filepath.Join(root, series.SanitizeFolderName(meta.Title)), nil
}

// writeExtractorConfig renders the per-dispatch extractor configuration from
// the stored plugin settings.
func (e *Executor) writeExtractorConfig(ctx context.Context) (string, error) {
	values, err := e.configs.GetPluginConfig(ctx, pluginID)
	if err != nil {
		slog.Warn("plugin config lookup failed", "error", err)
		values = map[string]string{}
	}

	lang := values["language"]
	if lang == "" {
		lang = e.opts.PreferredLanguage
	}

	path := filepath.Join(e.opts.ConfigDir, "gallery-dl.conf")
	if err := os.MkdirAll(e.opts.ConfigDir, 0755); err != nil {
		return "", err
	}
	if err := extractor.WriteConfigFile(path, extractor.ConfigOptions{
		PreferredLanguage: lang,
		Username:          values["username"],
		Password:          values["password"],
	}); err != nil {
		return "", err
	}
	return path, nil
}

// catalogAdapter narrows the executor's catalog to the extractor's view.
type catalogAdapter struct {
	catalog Catalog
}

func (a catalogAdapter) GetManga(ctx context.Context, mangaID string) *mangadex.MangaMetadata {
	if a.catalog == nil {
		return nil
	}
	return a.catalog.GetManga(ctx, mangaID)
}

// latestCBZ returns the most recently modified CBZ in dir, or "".
func latestCBZ(dir string) string {
	var newest string
	var newestTime time.Time

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".cbz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	return newest
}

// listCBZ returns every CBZ directly inside dir.
func listCBZ(dir string) []string {
	var out []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), ".cbz") {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out
}

// cleanupSubdirectories removes residual folders so only the CBZ files,
// cover and series.json remain.
func cleanupSubdirectories(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatChapterNumber(n float64) string {
	s := fmt.Sprintf("%.1f", n)
	return strings.TrimSuffix(s, ".0")
}

// tail trims an error blob down to something presentable.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const limit = 500
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
