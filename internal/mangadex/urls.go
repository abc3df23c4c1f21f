package mangadex

import "regexp"

// Canonical UUID shape used by MangaDex resource ids.
const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	mangaURLRe   = regexp.MustCompile(`mangadex\.org/title/(` + uuidPattern + `)`)
	chapterURLRe = regexp.MustCompile(`mangadex\.org/chapter/(` + uuidPattern + `)`)
)

// IsMangaDexURL reports whether the URL points at the catalog at all.
func IsMangaDexURL(rawURL string) bool {
	return mangaURLRe.MatchString(rawURL) || chapterURLRe.MatchString(rawURL)
}

// ExtractMangaID returns the manga UUID embedded in a catalog title URL, or
// "" when the URL does not match.
func ExtractMangaID(rawURL string) string {
	m := mangaURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractChapterID returns the chapter UUID embedded in a catalog chapter
// URL, or "" when the URL does not match.
func ExtractChapterID(rawURL string) string {
	m := chapterURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}
