package comicinfo

import (
	"encoding/xml"
	"strings"

	"komgadl/internal/mangadex"
)

// Publisher is stamped into every generated ComicInfo.xml.
const Publisher = "MangaDex"

// ComicInfoXML is the per-archive metadata document read by downstream
// comic readers and library managers.
type ComicInfoXML struct {
	// XMLName is a meta field that must be left unchanged
	XMLName xml.Name `xml:"ComicInfo"`
	// XmlnsXsi is a meta field that must be left unchanged
	XmlnsXsi string `xml:"xmlns:xsi,attr"`
	// XmlnsXsd is a meta field that must be left unchanged.
	XmlnsXsd string `xml:"xmlns:xsd,attr"`

	Title       string  `xml:"Title,omitempty"`
	Series      string  `xml:"Series,omitempty"`
	Number      float64 `xml:"Number"` // Omitting removes chapter 0.0
	Volume      int     `xml:"Volume,omitempty"`
	Summary     string  `xml:"Summary,omitempty"`
	Year        int     `xml:"Year,omitempty"`
	Month       int     `xml:"Month,omitempty"`
	Day         int     `xml:"Day,omitempty"`
	Writer      string  `xml:"Writer,omitempty"`
	Translator  string  `xml:"Translator,omitempty"`
	Publisher   string  `xml:"Publisher,omitempty"`
	Genre       string  `xml:"Genre,omitempty"`
	Web         string  `xml:"Web,omitempty"`
	PageCount   int     `xml:"PageCount,omitempty"`
	LanguageISO string  `xml:"LanguageISO,omitempty"`
	Manga       string  `xml:"Manga,omitempty"`
	AgeRating   string  `xml:"AgeRating,omitempty"`
}

// Generate builds the ComicInfo document for one chapter of a manga. The
// chapter may be nil when only series-level metadata is known (whole-series
// extractor fallback).
func Generate(manga *mangadex.MangaMetadata, chapter *mangadex.ChapterDescriptor) ComicInfoXML {
	info := ComicInfoXML{
		XmlnsXsd:  "http://www.w3.org/2001/XMLSchema",
		XmlnsXsi:  "http://www.w3.org/2001/XMLSchema-instance",
		Series:    manga.Title,
		Summary:   manga.Description,
		Year:      manga.Year,
		Writer:    manga.Author,
		Publisher: Publisher,
		Genre:     strings.Join(manga.Genres, ","),
		Manga:     "Yes",
		AgeRating: ageRating(manga.PublicationDemographic),
	}

	if chapter != nil {
		info.Title = chapter.Title
		info.Number = chapter.ChapterNumber
		if chapter.Volume != nil {
			info.Volume = *chapter.Volume
		}
		info.Web = chapter.ChapterURL
		info.PageCount = chapter.Pages
		info.Translator = chapter.ScanlationGroup
		info.LanguageISO = chapter.Language
		if chapter.Language == "ja" {
			info.Manga = "YesAndRightToLeft"
		}
		// chapter publish date fills in when the series year is absent
		if manga.Year == 0 && !chapter.PublishDate.IsZero() {
			info.Year = chapter.PublishDate.Year()
			info.Month = int(chapter.PublishDate.Month())
			info.Day = chapter.PublishDate.Day()
		}
	}

	return info
}

// ageRating maps the publication demographic onto ComicInfo age ratings.
func ageRating(demographic string) string {
	switch demographic {
	case "shounen":
		return "Teen"
	case "shoujo":
		return "Everyone 10+"
	case "seinen":
		return "Mature 17+"
	case "josei":
		return "Mature 17+"
	default:
		return "Unknown"
	}
}

// Marshal renders the document as indented XML with the standard header.
func (c ComicInfoXML) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
