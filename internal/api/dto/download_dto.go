package dto

import (
	"time"

	"komgadl/internal/store"
)

// CreateDownloadRequest queues a new download.
type CreateDownloadRequest struct {
	SourceURL string `json:"sourceUrl" binding:"required"`
	LibraryID string `json:"libraryId"`
	Title     string `json:"title"`
	Priority  *int   `json:"priority"`
}

// DownloadActionRequest cancels or retries an entry.
type DownloadActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// DownloadResponse is the wire form of a queue entry.
type DownloadResponse struct {
	ID              string     `json:"id"`
	SourceURL       string     `json:"sourceUrl"`
	SourceType      string     `json:"sourceType"`
	Title           string     `json:"title"`
	Author          *string    `json:"author,omitempty"`
	Status          string     `json:"status"`
	ProgressPercent int        `json:"progressPercent"`
	CurrentChapter  int        `json:"currentChapter"`
	TotalChapters   *int       `json:"totalChapters,omitempty"`
	LibraryID       *string    `json:"libraryId,omitempty"`
	DestinationPath *string    `json:"destinationPath,omitempty"`
	ErrorMessage    *string    `json:"errorMessage,omitempty"`
	Priority        int        `json:"priority"`
	RetryCount      int        `json:"retryCount"`
	MaxRetries      int        `json:"maxRetries"`
	CreatedDate     time.Time  `json:"createdDate"`
	StartedDate     *time.Time `json:"startedDate,omitempty"`
	CompletedDate   *time.Time `json:"completedDate,omitempty"`
	LastModified    time.Time  `json:"lastModified"`
}

// FromEntry converts a store row to its wire form.
func FromEntry(entry store.DownloadEntry) DownloadResponse {
	return DownloadResponse{
		ID:              entry.ID,
		SourceURL:       entry.SourceURL,
		SourceType:      entry.SourceType,
		Title:           entry.Title,
		Author:          entry.Author,
		Status:          string(entry.Status),
		ProgressPercent: entry.ProgressPercent,
		CurrentChapter:  entry.CurrentChapter,
		TotalChapters:   entry.TotalChapters,
		LibraryID:       entry.LibraryID,
		DestinationPath: entry.DestinationPath,
		ErrorMessage:    entry.ErrorMessage,
		Priority:        entry.Priority,
		RetryCount:      entry.RetryCount,
		MaxRetries:      entry.MaxRetries,
		CreatedDate:     entry.CreatedDate,
		StartedDate:     entry.StartedDate,
		CompletedDate:   entry.CompletedDate,
		LastModified:    entry.LastModified,
	}
}

// ClearResponse reports a bulk delete by status.
type ClearResponse struct {
	DeletedCount int64  `json:"deletedCount"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// FollowTxtResponse carries one library's follow list.
type FollowTxtResponse struct {
	LibraryID   string `json:"libraryId"`
	LibraryName string `json:"libraryName"`
	Content     string `json:"content"`
}

// FollowTxtUpdateRequest replaces the follow list content.
type FollowTxtUpdateRequest struct {
	Content string `json:"content"`
}

// SchedulerConfigResponse reports the follow scheduler settings.
type SchedulerConfigResponse struct {
	Enabled       bool       `json:"enabled"`
	IntervalHours int        `json:"intervalHours"`
	LastCheckTime *time.Time `json:"lastCheckTime,omitempty"`
}

// SchedulerConfigRequest updates the follow scheduler settings.
type SchedulerConfigRequest struct {
	Enabled       bool `json:"enabled"`
	IntervalHours int  `json:"intervalHours" binding:"required,min=1"`
}
