package dto

import (
	"time"

	"komgadl/internal/mangadex"
	"komgadl/internal/store"
)

// CheckURLResponse answers whether one chapter URL was already downloaded.
type CheckURLResponse struct {
	URL        string `json:"url"`
	Downloaded bool   `json:"downloaded"`
}

// CheckURLsRequest is a batch lookup of chapter URLs.
type CheckURLsRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

// ChapterURLResponse is the wire form of a proof-of-download row.
type ChapterURLResponse struct {
	ID              int64     `json:"id"`
	SeriesID        string    `json:"seriesId"`
	URL             string    `json:"url"`
	ChapterNumber   float64   `json:"chapterNumber"`
	Volume          *int      `json:"volume,omitempty"`
	Title           string    `json:"title"`
	Lang            string    `json:"lang"`
	DownloadedAt    time.Time `json:"downloadedAt"`
	Source          string    `json:"source"`
	ChapterID       string    `json:"chapterId"`
	ScanlationGroup string    `json:"scanlationGroup"`
}

// FromChapterURLRecord converts a store row to its wire form.
func FromChapterURLRecord(record store.ChapterURLRecord) ChapterURLResponse {
	return ChapterURLResponse{
		ID:              record.ID,
		SeriesID:        record.SeriesID,
		URL:             record.URL,
		ChapterNumber:   record.ChapterNumber,
		Volume:          record.Volume,
		Title:           record.Title,
		Lang:            record.Lang,
		DownloadedAt:    record.DownloadedAt,
		Source:          record.Source,
		ChapterID:       record.ChapterID,
		ScanlationGroup: record.ScanlationGroup,
	}
}

// NewChapterResponse is one not-yet-downloaded chapter of a series.
type NewChapterResponse struct {
	ChapterID     string  `json:"chapterId"`
	ChapterURL    string  `json:"chapterUrl"`
	ChapterNumber float64 `json:"chapterNumber"`
	Title         string  `json:"title"`
	Language      string  `json:"language"`
}

// FromDescriptor converts a catalog chapter descriptor.
func FromDescriptor(ch mangadex.ChapterDescriptor) NewChapterResponse {
	return NewChapterResponse{
		ChapterID:     ch.ChapterID,
		ChapterURL:    ch.ChapterURL,
		ChapterNumber: ch.ChapterNumber,
		Title:         ch.Title,
		Language:      ch.Language,
	}
}

// DeleteCountResponse reports bulk deletions.
type DeleteCountResponse struct {
	DeletedCount int64  `json:"deletedCount"`
	Message      string `json:"message"`
}
