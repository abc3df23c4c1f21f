package checker

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"komgadl/internal/followlist"
	"komgadl/internal/mangadex"
	"komgadl/internal/store"
)

const (
	uuid1 = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeee1"
	uuid2 = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeee2"
)

func titleURL(id string) string {
	return "https://mangadex.org/title/" + id
}

type stubCatalog struct {
	counts     map[string]int
	chapters   map[string][]mangadex.ChapterDescriptor
	inFlight   atomic.Int32
	maxObserved atomic.Int32
	mu         sync.Mutex
}

func (s *stubCatalog) CountTranslatedChapters(ctx context.Context, mangaID, lang string) int {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxObserved.Load()
		if current <= max || s.maxObserved.CompareAndSwap(max, current) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counts[mangaID]
	if !ok {
		return -1
	}
	return count
}

func (s *stubCatalog) GetAllChapters(ctx context.Context, mangaID, lang string) []mangadex.ChapterDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chapters[mangaID]
}

type fixture struct {
	checker   *Checker
	catalog   *stubCatalog
	downloads store.DownloadRepository
	chapters  store.ChapterURLRepository
	configs   store.ConfigRepository
	libRoot   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	libRoot := t.TempDir()
	catalog := &stubCatalog{counts: map[string]int{}, chapters: map[string][]mangadex.ChapterDescriptor{}}

	downloads := store.NewDownloadRepository(s.DB())
	chapters := store.NewChapterURLRepository(s.DB())
	configs := store.NewConfigRepository(s.DB())
	registry := followlist.NewRegistry(followlist.Library{ID: "lib1", Name: "Library", Root: libRoot})

	return &fixture{
		checker:   NewChecker(catalog, downloads, chapters, configs, registry, "en"),
		catalog:   catalog,
		downloads: downloads,
		chapters:  chapters,
		configs:   configs,
		libRoot:   libRoot,
	}
}

func TestCheckURL(t *testing.T) {
	ctx := context.Background()

	t.Run("NonCatalogURL", func(t *testing.T) {
		f := newFixture(t)
		result := f.checker.CheckURL(ctx, "https://example.com/whatever")
		assert.False(t, result.NeedsDownload)
		assert.Equal(t, "not a catalog URL", result.Error)
	})

	t.Run("NewChaptersDetected", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.counts[uuid1] = 10

		for i := 0; i < 4; i++ {
			require.NoError(t, f.chapters.Insert(ctx, &store.ChapterURLRecord{
				SeriesID: uuid1, URL: fmt.Sprintf("u%d", i), ChapterNumber: float64(i),
			}))
		}

		result := f.checker.CheckURL(ctx, titleURL(uuid1))
		assert.True(t, result.NeedsDownload)
		assert.Equal(t, 10, result.APICount)
		assert.Equal(t, 4, result.KnownCount)
		assert.Equal(t, 6, result.NewChaptersEstimate)
	})

	t.Run("FilesystemEvidenceCounts", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.counts[uuid1] = 3

		seriesDir := filepath.Join(f.libRoot, "Test Manga")
		require.NoError(t, os.MkdirAll(seriesDir, 0755))
		seriesJSON := fmt.Sprintf(`{"metadata":{"type":"comicSeries","comicid":"%s"}}`, uuid1)
		require.NoError(t, os.WriteFile(filepath.Join(seriesDir, "series.json"), []byte(seriesJSON), 0644))
		for i := 1; i <= 3; i++ {
			writeEmptyCBZ(t, filepath.Join(seriesDir, fmt.Sprintf("ch%d.cbz", i)))
		}

		result := f.checker.CheckURL(ctx, titleURL(uuid1))
		assert.Equal(t, 3, result.KnownCount)
		assert.False(t, result.NeedsDownload)
	})

	t.Run("UpstreamAheadOfNothingKnown", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.counts[uuid1] = 5

		result := f.checker.CheckURL(ctx, titleURL(uuid1))
		assert.True(t, result.NeedsDownload)
		assert.Equal(t, 5, result.NewChaptersEstimate)
	})

	t.Run("CatalogFailureIsNotADownload", func(t *testing.T) {
		f := newFixture(t)
		result := f.checker.CheckURL(ctx, titleURL(uuid1)) // no count registered
		assert.False(t, result.NeedsDownload)
		assert.NotEmpty(t, result.Error)
	})
}

func TestCheckAllParallelismBound(t *testing.T) {
	f := newFixture(t)
	urls := make([]string, 20)
	for i := range urls {
		id := fmt.Sprintf("aaaaaaaa-bbbb-cccc-dddd-eeeeeeee%04d", i)
		f.catalog.counts[id] = 1
		urls[i] = titleURL(id)
	}

	results := f.checker.CheckAll(context.Background(), urls)
	assert.Len(t, results, 20)
	assert.LessOrEqual(t, f.catalog.maxObserved.Load(), int32(checkParallelism))

	// input order is preserved
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
	}
}

func TestCheckAndQueueNewChapters(t *testing.T) {
	ctx := context.Background()

	t.Run("QueuesWithDuplicateSuppression", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.counts[uuid1] = 5
		f.catalog.counts[uuid2] = 5

		content := titleURL(uuid1) + "\n#comment\n" + titleURL(uuid2) + "\n"
		require.NoError(t, followlist.Write(f.libRoot, content))

		// uuid1 already pending
		require.NoError(t, f.downloads.Create(ctx, &store.DownloadEntry{
			SourceURL: titleURL(uuid1), Title: "existing", Priority: 5, MaxRetries: 3,
		}))

		_, err := f.checker.CheckAndQueueNewChapters(ctx)
		require.NoError(t, err)

		entries, err := f.downloads.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		var queued *store.DownloadEntry
		for i := range entries {
			if entries[i].SourceURL == titleURL(uuid2) {
				queued = &entries[i]
			}
		}
		require.NotNil(t, queued)
		assert.Equal(t, 5, queued.Priority)
		assert.Equal(t, store.StatusPending, queued.Status)
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.counts[uuid1] = 5
		require.NoError(t, followlist.Write(f.libRoot, titleURL(uuid1)+"\n"))

		_, err := f.checker.CheckAndQueueNewChapters(ctx)
		require.NoError(t, err)
		_, err = f.checker.CheckAndQueueNewChapters(ctx)
		require.NoError(t, err)

		entries, err := f.downloads.List(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("SetsLastCheckTime", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.checker.CheckAndQueueNewChapters(ctx)
		require.NoError(t, err)

		cfg, err := f.configs.GetFollowConfig(ctx)
		require.NoError(t, err)
		assert.NotNil(t, cfg.LastCheckTime)
	})

	t.Run("CommentOnlyListQueuesNothing", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, followlist.Write(f.libRoot, "# nothing here\n"))

		_, err := f.checker.CheckAndQueueNewChapters(ctx)
		require.NoError(t, err)

		entries, err := f.downloads.List(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestNewChaptersForSeries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.catalog.chapters[uuid1] = []mangadex.ChapterDescriptor{
		{ChapterID: "c1", ChapterURL: "https://mangadex.org/chapter/c1", ChapterNumber: 1},
		{ChapterID: "c2", ChapterURL: "https://mangadex.org/chapter/c2", ChapterNumber: 2},
		{ChapterID: "c3", ChapterURL: "https://mangadex.org/chapter/c3", ChapterNumber: 3},
	}
	require.NoError(t, f.chapters.Insert(ctx, &store.ChapterURLRecord{
		SeriesID: uuid1, URL: "https://mangadex.org/chapter/c2", ChapterNumber: 2,
	}))

	missing, err := f.checker.NewChaptersForSeries(ctx, titleURL(uuid1), "en")
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, "c1", missing[0].ChapterID)
	assert.Equal(t, "c3", missing[1].ChapterID)
}

func writeEmptyCBZ(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}
