package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"komgadl/internal/mangadex"
)

// CatalogClient is the slice of the catalog client used for quick metadata.
type CatalogClient interface {
	GetManga(ctx context.Context, mangaID string) *mangadex.MangaMetadata
}

// GetMetadataQuick resolves series metadata for a URL: the catalog client
// answers for catalog URLs; anything else falls back to a simulate run of
// the extractor. Failing to find a title at all is an error.
func (d *Driver) GetMetadataQuick(ctx context.Context, url string, catalog CatalogClient) (*mangadex.MangaMetadata, error) {
	if id := mangadex.ExtractMangaID(url); id != "" && catalog != nil {
		if meta := catalog.GetManga(ctx, id); meta != nil {
			return meta, nil
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, d.metadataTimeout)
	defer cancel()

	cmd := d.cmd.build(runCtx, "--simulate", "--dump-json", url)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("extractor simulate failed: %w", err)
	}

	meta := parseSimulateOutput(output)
	if meta == nil || meta.Title == "" {
		return nil, fmt.Errorf("extractor returned no usable metadata for %s", url)
	}
	return meta, nil
}

// parseSimulateOutput aggregates the line-delimited [type, url, metadataObj]
// tuples a simulate run emits. The primary title comes from the English
// entries when present, else the first entry seen; alternative titles
// accumulate from manga_alt entries and are language-tagged by script.
func parseSimulateOutput(output []byte) *mangadex.MangaMetadata {
	meta := &mangadex.MangaMetadata{
		AlternativeTitles: make(map[string]string),
	}
	var firstTitle string

	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] != '[' {
			continue
		}

		var tuple []json.RawMessage
		if err := json.Unmarshal([]byte(line), &tuple); err != nil || len(tuple) < 3 {
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal(tuple[2], &obj); err != nil {
			continue
		}

		if title, ok := obj["manga"].(string); ok && title != "" {
			lang, _ := obj["lang"].(string)
			if firstTitle == "" {
				firstTitle = title
			}
			if meta.Title == "" && (lang == "en" || lang == "") {
				meta.Title = title
			}
		}
		if alt, ok := obj["manga_alt"].(string); ok && alt != "" {
			meta.AlternativeTitles[alt] = DetectLanguage(alt)
		}
		if author, ok := obj["author"].(string); ok && meta.Author == "" {
			meta.Author = author
		}
		if desc, ok := obj["description"].(string); ok && meta.Description == "" {
			meta.Description = desc
		}
	}

	if meta.Title == "" {
		meta.Title = firstTitle
	}
	if meta.Title == "" {
		return nil
	}
	return meta
}

// DetectLanguage tags a string with a language code using a script
// heuristic: kana means Japanese, hangul Korean, remaining CJK Chinese.
func DetectLanguage(s string) string {
	hasKana := false
	hasHangul := false
	hasCJK := false

	for _, r := range s {
		switch {
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			hasKana = true
		case unicode.Is(unicode.Hangul, r):
			hasHangul = true
		case unicode.Is(unicode.Han, r):
			hasCJK = true
		}
	}

	switch {
	case hasKana:
		return "ja"
	case hasHangul:
		return "ko"
	case hasCJK:
		return "zh"
	default:
		return "unknown"
	}
}
