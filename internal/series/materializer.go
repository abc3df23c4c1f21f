package series

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"komgadl/internal/mangadex"
)

// Downstream readers treat series.json below this size as thin metadata.
const richMetadataThreshold = 5 * 1024

// CoverFetcher is the slice of the catalog client the materializer needs.
type CoverFetcher interface {
	DownloadCover(ctx context.Context, mangaID, coverFilename string, quality mangadex.CoverQuality) []byte
}

// Materializer seeds a destination directory with series.json and the cover.
type Materializer struct {
	covers CoverFetcher
}

func NewMaterializer(covers CoverFetcher) *Materializer {
	return &Materializer{covers: covers}
}

// SeriesJSON is the series-level metadata document, wrapped in a "metadata"
// object the way reader libraries expect it.
type SeriesJSON struct {
	Type                   string           `json:"type"`
	Name                   string           `json:"name"`
	ComicID                string           `json:"comicid,omitempty"`
	AlternateTitles        []AlternateTitle `json:"alternate_titles,omitempty"`
	Author                 string           `json:"author,omitempty"`
	Description            string           `json:"description,omitempty"`
	Year                   int              `json:"year,omitempty"`
	Status                 string           `json:"status,omitempty"`
	PublicationDemographic string           `json:"publication_demographic,omitempty"`
	Genres                 []string         `json:"genres,omitempty"`
}

// AlternateTitle pairs a title with its language code.
type AlternateTitle struct {
	Title    string `json:"title"`
	Language string `json:"language"`
}

type seriesJSONWrapper struct {
	Metadata SeriesJSON `json:"metadata"`
}

// ToSeriesJSON converts catalog metadata into the series.json document.
// Alternate titles are emitted in deterministic (sorted) order so rewriting
// the same metadata yields the same bytes.
func ToSeriesJSON(manga *mangadex.MangaMetadata) SeriesJSON {
	doc := SeriesJSON{
		Type:                   "comicSeries",
		Name:                   manga.Title,
		ComicID:                manga.ID,
		Author:                 manga.Author,
		Description:            manga.Description,
		Year:                   manga.Year,
		Status:                 manga.Status,
		PublicationDemographic: manga.PublicationDemographic,
		Genres:                 manga.Genres,
	}

	titles := make([]string, 0, len(manga.AlternativeTitles))
	for title := range manga.AlternativeTitles {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		doc.AlternateTitles = append(doc.AlternateTitles, AlternateTitle{
			Title:    title,
			Language: manga.AlternativeTitles[title],
		})
	}

	return doc
}

// Marshal renders the wrapped document as indented JSON.
func (s SeriesJSON) Marshal() ([]byte, error) {
	buffer := &bytes.Buffer{}
	enc := json.NewEncoder(buffer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(seriesJSONWrapper{Metadata: s}); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// WriteSeriesJSON writes {destination}/series.json. A document under the
// rich-metadata threshold is WARN-logged but still written.
func (m *Materializer) WriteSeriesJSON(manga *mangadex.MangaMetadata, destination string) error {
	data, err := ToSeriesJSON(manga).Marshal()
	if err != nil {
		return fmt.Errorf("marshal series.json: %w", err)
	}

	path := filepath.Join(destination, "series.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write series.json: %w", err)
	}

	if len(data) < richMetadataThreshold {
		slog.Warn("series.json below rich-metadata threshold",
			"series", manga.Title, "bytes", len(data))
	}
	return nil
}

// WriteCover downloads the cover and writes {destination}/cover.{ext}. The
// extension follows the upstream filename, defaulting to jpg. Failures are
// non-fatal.
func (m *Materializer) WriteCover(ctx context.Context, mangaID, coverFilename, destination string) error {
	if coverFilename == "" {
		return nil
	}

	data := m.covers.DownloadCover(ctx, mangaID, coverFilename, mangadex.CoverOriginal)
	if data == nil {
		return fmt.Errorf("cover download failed for %s", mangaID)
	}

	ext := strings.TrimPrefix(filepath.Ext(coverFilename), ".")
	if ext == "" {
		ext = "jpg"
	}

	path := filepath.Join(destination, "cover."+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	return nil
}

// forbidden filename characters, replaced by a single space
const forbiddenChars = `\/:*?"<>|`

// SanitizeFolderName makes a series title safe as a directory name:
// forbidden characters become spaces, whitespace collapses, and an empty
// result maps to "Unknown".
func SanitizeFolderName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(forbiddenChars, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}
