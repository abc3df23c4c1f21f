package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"komgadl/internal/ratelimit"
)

const (
	defaultBaseURL = "https://api.mangadex.org"
	coverBaseURL   = "https://uploads.mangadex.org/covers"

	// feed pages of this size are requested until a short page comes back
	feedPageSize = 100

	// Retry configuration
	maxRetries   = 3
	initialDelay = 1 * time.Second
	maxDelay     = 16 * time.Second
)

// CoverQuality selects the upstream cover rendition.
type CoverQuality string

const (
	CoverOriginal  CoverQuality = "ORIGINAL"
	CoverMedium    CoverQuality = "MEDIUM"
	CoverThumbnail CoverQuality = "THUMBNAIL"
)

// Client is a typed wrapper over the MangaDex HTTP+JSON surface. Every
// outbound request first passes the shared rate limiter. Lookup failures are
// non-fatal: they are WARN-logged and surfaced as nil/empty.
type Client struct {
	baseURL       string
	apiKey        string
	preferredLang string
	httpClient    *http.Client
	limiter       *ratelimit.Limiter
	cache         *MetadataCache // optional
}

// NewClient creates a new MangaDex API client.
func NewClient(baseURL, apiKey, preferredLang string, limiter *ratelimit.Limiter) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		preferredLang: preferredLang,
		limiter:       limiter,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// WithCache attaches an optional metadata cache.
func (c *Client) WithCache(cache *MetadataCache) *Client {
	c.cache = cache
	return c
}

// GetManga fetches a single manga with author, artist and cover includes.
// Returns nil when the manga does not exist or the catalog is unreachable.
func (c *Client) GetManga(ctx context.Context, mangaID string) *MangaMetadata {
	if c.cache != nil {
		if meta := c.cache.Get(ctx, mangaID); meta != nil {
			return meta
		}
	}

	params := url.Values{}
	params.Add("includes[]", "cover_art")
	params.Add("includes[]", "author")
	params.Add("includes[]", "artist")

	var response MangaResponse
	if err := c.doRequest(ctx, "/manga/"+mangaID, params, &response); err != nil {
		slog.Warn("mangadex: manga lookup failed", "manga_id", mangaID, "error", err)
		return nil
	}

	meta := toMetadata(response.Data, c.preferredLang)
	if c.cache != nil {
		c.cache.Put(ctx, mangaID, meta)
	}
	return meta
}

// GetChapterFeed fetches one page of the chapter feed, ordered ascending by
// chapter number as served by the catalog.
func (c *Client) GetChapterFeed(ctx context.Context, mangaID, lang string, limit, offset int) []ChapterDescriptor {
	params := url.Values{}
	params.Add("limit", fmt.Sprintf("%d", limit))
	params.Add("offset", fmt.Sprintf("%d", offset))
	params.Add("translatedLanguage[]", lang)
	params.Add("order[chapter]", "asc")
	params.Add("includes[]", "scanlation_group")

	var response ChapterListResponse
	if err := c.doRequest(ctx, fmt.Sprintf("/manga/%s/feed", mangaID), params, &response); err != nil {
		slog.Warn("mangadex: chapter feed failed", "manga_id", mangaID, "error", err)
		return nil
	}

	chapters := make([]ChapterDescriptor, 0, len(response.Data))
	for _, data := range response.Data {
		chapters = append(chapters, toDescriptor(data))
	}
	return chapters
}

// GetAllChapters concatenates feed pages until a short page is returned.
func (c *Client) GetAllChapters(ctx context.Context, mangaID, lang string) []ChapterDescriptor {
	var all []ChapterDescriptor
	for offset := 0; ; offset += feedPageSize {
		page := c.GetChapterFeed(ctx, mangaID, lang, feedPageSize, offset)
		all = append(all, page...)
		if len(page) < feedPageSize {
			return all
		}
	}
}

// GetChapter fetches a single chapter. Returns nil when missing.
func (c *Client) GetChapter(ctx context.Context, chapterID string) *ChapterDescriptor {
	params := url.Values{}
	params.Add("includes[]", "scanlation_group")

	var response ChapterResponse
	if err := c.doRequest(ctx, "/chapter/"+chapterID, params, &response); err != nil {
		slog.Warn("mangadex: chapter lookup failed", "chapter_id", chapterID, "error", err)
		return nil
	}

	desc := toDescriptor(response.Data)
	return &desc
}

// SearchManga searches the catalog by title.
func (c *Client) SearchManga(ctx context.Context, query string, limit int) []*MangaMetadata {
	params := url.Values{}
	params.Add("title", query)
	params.Add("limit", fmt.Sprintf("%d", limit))
	params.Add("includes[]", "cover_art")
	params.Add("includes[]", "author")
	params.Add("includes[]", "artist")

	var response MangaListResponse
	if err := c.doRequest(ctx, "/manga", params, &response); err != nil {
		slog.Warn("mangadex: search failed", "query", query, "error", err)
		return nil
	}

	results := make([]*MangaMetadata, 0, len(response.Data))
	for _, data := range response.Data {
		results = append(results, toMetadata(data, c.preferredLang))
	}
	return results
}

// CountTranslatedChapters sums the chapter maps of every volume in the
// aggregate summary. Returns -1 when the aggregate call fails so callers can
// distinguish "unknown" from "zero chapters".
func (c *Client) CountTranslatedChapters(ctx context.Context, mangaID, lang string) int {
	params := url.Values{}
	params.Add("translatedLanguage[]", lang)

	var response AggregateResponse
	if err := c.doRequest(ctx, fmt.Sprintf("/manga/%s/aggregate", mangaID), params, &response); err != nil {
		slog.Warn("mangadex: aggregate failed", "manga_id", mangaID, "error", err)
		return -1
	}

	count := 0
	for _, volume := range response.Volumes {
		count += len(volume.Chapters)
	}
	return count
}

// DownloadCover fetches the cover image bytes. Returns nil on any failure.
func (c *Client) DownloadCover(ctx context.Context, mangaID, coverFilename string, quality CoverQuality) []byte {
	return c.downloadCoverFrom(ctx, coverBaseURL, mangaID, coverFilename, quality)
}

func (c *Client) downloadCoverFrom(ctx context.Context, base, mangaID, coverFilename string, quality CoverQuality) []byte {
	file := coverFilename
	switch quality {
	case CoverMedium:
		file += ".512.jpg"
	case CoverThumbnail:
		file += ".256.jpg"
	}

	c.limiter.WaitIfNeeded()

	coverURL := fmt.Sprintf("%s/%s/%s", base, mangaID, file)
	req, err := http.NewRequestWithContext(ctx, "GET", coverURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("mangadex: cover download failed", "manga_id", mangaID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("mangadex: cover download failed", "manga_id", mangaID, "status", resp.StatusCode)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("mangadex: cover read failed", "manga_id", mangaID, "error", err)
		return nil
	}
	return data
}

const userAgent = "komgadl/1.0"

// doRequest performs a GET with rate limiting and retry on 429/5xx.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.limiter.WaitIfNeeded()

		req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < maxRetries {
				time.Sleep(delay)
				delay = minDuration(delay*2, maxDelay)
				continue
			}
			return fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			if shouldRetry(resp.StatusCode) && attempt < maxRetries {
				lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
				time.Sleep(delay)
				delay = minDuration(delay*2, maxDelay)
				continue
			}
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(result)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
}

// shouldRetry determines if an HTTP status code warrants a retry
func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || // 429
		statusCode >= 500 // any 5xx
}

// minDuration returns the smaller of two durations
func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
