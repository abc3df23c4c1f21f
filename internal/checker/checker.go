package checker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"komgadl/internal/followlist"
	"komgadl/internal/mangadex"
	"komgadl/internal/store"
)

// at most this many catalog lookups run concurrently
const checkParallelism = 5

// follow-list expansions are queued at this priority
const followPriority = 5

// Catalog is the slice of the catalog client the checker needs.
type Catalog interface {
	CountTranslatedChapters(ctx context.Context, mangaID, lang string) int
	GetAllChapters(ctx context.Context, mangaID, lang string) []mangadex.ChapterDescriptor
}

// Result is the per-URL outcome of a check run.
type Result struct {
	URL                 string `json:"url"`
	MangaID             string `json:"mangaId,omitempty"`
	APICount            int    `json:"apiCount"`
	KnownCount          int    `json:"knownCount"`
	NewChaptersEstimate int    `json:"newChaptersEstimate"`
	NeedsDownload       bool   `json:"needsDownload"`
	Error               string `json:"error,omitempty"`
}

// Checker diffs followed URLs against the upstream catalog using the cheap
// aggregate count, the chapter-URL history and filesystem evidence.
type Checker struct {
	catalog     Catalog
	downloads   store.DownloadRepository
	chapterURLs store.ChapterURLRepository
	configs     store.ConfigRepository
	libraries   *followlist.Registry
	lang        string
}

func NewChecker(
	catalog Catalog,
	downloads store.DownloadRepository,
	chapterURLs store.ChapterURLRepository,
	configs store.ConfigRepository,
	libraries *followlist.Registry,
	lang string,
) *Checker {
	if lang == "" {
		lang = "en"
	}
	return &Checker{
		catalog:     catalog,
		downloads:   downloads,
		chapterURLs: chapterURLs,
		configs:     configs,
		libraries:   libraries,
		lang:        lang,
	}
}

// CheckURL evaluates a single followed URL.
func (c *Checker) CheckURL(ctx context.Context, url string) Result {
	mangaID := mangadex.ExtractMangaID(url)
	if mangaID == "" {
		return Result{URL: url, Error: "not a catalog URL"}
	}

	apiCount := c.catalog.CountTranslatedChapters(ctx, mangaID, c.lang)
	if apiCount < 0 {
		return Result{URL: url, MangaID: mangaID, Error: "catalog unavailable"}
	}

	known := c.knownChapterCount(ctx, mangaID)
	estimate := apiCount - known
	if estimate < 0 {
		estimate = 0
	}

	return Result{
		URL:                 url,
		MangaID:             mangaID,
		APICount:            apiCount,
		KnownCount:          known,
		NewChaptersEstimate: estimate,
		NeedsDownload:       estimate > 0,
	}
}

// CheckAll evaluates the URLs with bounded parallelism, preserving input
// order in the results.
func (c *Checker) CheckAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkParallelism)
	for i, url := range urls {
		g.Go(func() error {
			results[i] = c.CheckURL(gctx, url)
			return nil
		})
	}
	g.Wait()

	return results
}

// CheckAndQueueNewChapters runs a full check over the legacy global URL list
// plus every library follow file, queueing a download for each URL with new
// chapters unless one is already pending or running. Repeated invocations at
// short intervals do not create duplicates.
func (c *Checker) CheckAndQueueNewChapters(ctx context.Context) ([]Result, error) {
	urls, err := c.followedURLs(ctx)
	if err != nil {
		return nil, err
	}

	results := c.CheckAll(ctx, urls)
	queued := 0
	for _, result := range results {
		if !result.NeedsDownload {
			continue
		}
		if c.QueueDownload(ctx, result.URL) {
			queued++
		}
	}

	cfg, err := c.configs.GetFollowConfig(ctx)
	if err == nil {
		now := time.Now().UTC()
		cfg.LastCheckTime = &now
		if err := c.configs.SaveFollowConfig(ctx, cfg); err != nil {
			slog.Warn("failed to persist last check time", "error", err)
		}
	}

	slog.Info("follow check finished", "urls", len(urls), "queued", queued)
	return results, nil
}

// NewChaptersForSeries lists the feed chapters whose URLs have no download
// record yet; used by the re-download inspection endpoint.
func (c *Checker) NewChaptersForSeries(ctx context.Context, mangaURL, lang string) ([]mangadex.ChapterDescriptor, error) {
	mangaID := mangadex.ExtractMangaID(mangaURL)
	if mangaID == "" {
		return nil, nil
	}
	if lang == "" {
		lang = c.lang
	}

	chapters := c.catalog.GetAllChapters(ctx, mangaID, lang)
	if len(chapters) == 0 {
		return nil, nil
	}

	urls := make([]string, len(chapters))
	for i, ch := range chapters {
		urls[i] = ch.ChapterURL
	}
	seen, err := c.chapterURLs.ExistsByURLs(ctx, urls)
	if err != nil {
		return nil, err
	}

	var missing []mangadex.ChapterDescriptor
	for _, ch := range chapters {
		if !seen[ch.ChapterURL] {
			missing = append(missing, ch)
		}
	}
	return missing, nil
}

// followedURLs merges the legacy config list with every library follow file,
// deduplicated, order preserved.
func (c *Checker) followedURLs(ctx context.Context) ([]string, error) {
	var urls []string
	seen := make(map[string]struct{})
	add := func(url string) {
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		urls = append(urls, url)
	}

	cfg, err := c.configs.GetFollowConfig(ctx)
	if err != nil {
		return nil, err
	}
	for _, url := range cfg.URLs {
		add(url)
	}

	for _, lib := range c.libraries.All() {
		listed, err := followlist.ReadURLs(lib.Root)
		if err != nil {
			slog.Warn("failed to read follow list", "library", lib.ID, "error", err)
			continue
		}
		for _, url := range listed {
			add(url)
		}
	}

	return urls, nil
}

// QueueDownload inserts a priority-5 entry unless the URL is already pending
// or downloading. Reports whether a new entry was created.
func (c *Checker) QueueDownload(ctx context.Context, url string) bool {
	active, err := c.downloads.ExistsBySourceURLAndStatusIn(ctx, url,
		[]store.DownloadStatus{store.StatusPending, store.StatusDownloading})
	if err != nil {
		slog.Warn("duplicate check failed", "url", url, "error", err)
		return false
	}
	if active {
		return false
	}

	entry := &store.DownloadEntry{
		SourceURL:  url,
		SourceType: "remote-catalog",
		Title:      url,
		Priority:   followPriority,
		MaxRetries: 3,
		CreatedBy:  "follow-check",
		PluginID:   "gallery-dl",
	}
	if err := c.downloads.Create(ctx, entry); err != nil {
		if err != store.ErrAlreadyQueued {
			slog.Warn("failed to queue download", "url", url, "error", err)
		}
		return false
	}
	return true
}

// knownChapterCount is the max of the download history and the filesystem
// evidence across the libraries.
func (c *Checker) knownChapterCount(ctx context.Context, mangaID string) int {
	recorded, err := c.chapterURLs.CountBySeriesID(ctx, mangaID)
	if err != nil {
		slog.Warn("chapter history count failed", "manga_id", mangaID, "error", err)
		recorded = 0
	}

	onDisk := c.cbzCountForSeries(mangaID)
	if int(recorded) > onDisk {
		return int(recorded)
	}
	return onDisk
}

// cbzCountForSeries counts CBZ files inside any library series directory
// whose series.json mentions the manga id.
func (c *Checker) cbzCountForSeries(mangaID string) int {
	for _, lib := range c.libraries.All() {
		entries, err := os.ReadDir(lib.Root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(lib.Root, entry.Name())
			data, err := os.ReadFile(filepath.Join(dir, "series.json"))
			if err != nil || !strings.Contains(string(data), mangaID) {
				continue
			}

			count := 0
			files, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, f := range files {
				if !f.IsDir() && strings.HasSuffix(strings.ToLower(f.Name()), ".cbz") {
					count++
				}
			}
			return count
		}
	}
	return 0
}
