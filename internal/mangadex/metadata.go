package mangadex

import (
	"strconv"
	"strings"
	"time"
)

// MangaMetadata is the in-memory view of a manga used by the downstream
// pipeline (series.json, ComicInfo.xml, destination naming).
type MangaMetadata struct {
	ID                     string
	Title                  string
	Description            string
	Author                 string
	Artist                 string
	PublicationDemographic string
	Year                   int
	Status                 string
	Genres                 []string
	// AlternativeTitles maps title -> language code
	AlternativeTitles map[string]string
	CoverFilename     string
	LastChapter       string
}

// ChapterDescriptor describes one chapter of a manga as listed by the feed.
type ChapterDescriptor struct {
	ChapterID       string
	ChapterURL      string
	ChapterNumber   float64
	Volume          *int
	Title           string
	Language        string
	Pages           int
	ScanlationGroup string
	PublishDate     time.Time
}

// toMetadata converts an API manga entry, applying the title and description
// language fallback chain: preferred-language alt title, then the main title
// in the preferred language, then English, then any.
func toMetadata(data MangaData, preferredLang string) *MangaMetadata {
	attr := data.Attributes

	meta := &MangaMetadata{
		ID:                     data.ID,
		PublicationDemographic: attr.PublicationDemographic,
		Year:                   attr.Year,
		Status:                 attr.Status,
		LastChapter:            attr.LastChapter,
		AlternativeTitles:      make(map[string]string),
	}

	for _, alt := range attr.AltTitles {
		for lang, title := range alt {
			if title == "" {
				continue
			}
			meta.AlternativeTitles[title] = lang
			if meta.Title == "" && lang == preferredLang {
				meta.Title = title
			}
		}
	}
	if meta.Title == "" {
		meta.Title = pickByLanguage(attr.Title, preferredLang)
	}
	meta.Description = pickByLanguage(attr.Description, preferredLang)

	for _, rel := range data.Relationships {
		switch rel.Type {
		case "author":
			if name, ok := rel.Attributes["name"].(string); ok && meta.Author == "" {
				meta.Author = name
			}
		case "artist":
			if name, ok := rel.Attributes["name"].(string); ok && meta.Artist == "" {
				meta.Artist = name
			}
		case "cover_art":
			if file, ok := rel.Attributes["fileName"].(string); ok {
				meta.CoverFilename = file
			}
		}
	}

	for _, tag := range attr.Tags {
		if tag.Attributes.Group != "genre" {
			continue
		}
		if name := pickByLanguage(tag.Attributes.Name, preferredLang); name != "" {
			meta.Genres = append(meta.Genres, name)
		}
	}

	return meta
}

// pickByLanguage returns values[lang], falling back to English, then to any
// entry.
func pickByLanguage(values map[string]string, lang string) string {
	if v := values[lang]; v != "" {
		return v
	}
	if v := values["en"]; v != "" {
		return v
	}
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// toDescriptor converts an API chapter entry. Chapter numbers are decimal to
// handle fractional chapters; a missing number parses to 0.
func toDescriptor(data ChapterData) ChapterDescriptor {
	attr := data.Attributes

	desc := ChapterDescriptor{
		ChapterID:  data.ID,
		ChapterURL: "https://mangadex.org/chapter/" + data.ID,
		Title:      attr.Title,
		Language:   attr.TranslatedLanguage,
		Pages:      attr.Pages,
	}

	if n, err := strconv.ParseFloat(strings.TrimSpace(attr.Chapter), 64); err == nil {
		desc.ChapterNumber = n
	}
	if v, err := strconv.Atoi(strings.TrimSpace(attr.Volume)); err == nil {
		desc.Volume = &v
	}
	if t, err := time.Parse(time.RFC3339, attr.PublishAt); err == nil {
		desc.PublishDate = t
	}

	for _, rel := range data.Relationships {
		if rel.Type == "scanlation_group" {
			if name, ok := rel.Attributes["name"].(string); ok {
				desc.ScanlationGroup = name
				break
			}
		}
	}

	return desc
}
