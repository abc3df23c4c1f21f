package store

import "time"

// DownloadStatus is the lifecycle state of a queue entry.
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "PENDING"
	StatusDownloading DownloadStatus = "DOWNLOADING"
	StatusCompleted   DownloadStatus = "COMPLETED"
	StatusFailed      DownloadStatus = "FAILED"
	StatusCancelled   DownloadStatus = "CANCELLED"
)

// ActiveStatuses are the states that block a duplicate insertion for the
// same source URL. Earlier FAILED or CANCELLED entries do not.
var ActiveStatuses = []DownloadStatus{StatusPending, StatusDownloading, StatusCompleted}

// IsTerminal reports whether the status cannot transition further except via
// an explicit retry.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DownloadEntry is one queued download request.
type DownloadEntry struct {
	ID              string         `json:"id" gorm:"primaryKey;size:36"`
	SourceURL       string         `json:"source_url" gorm:"not null;index"`
	SourceType      string         `json:"source_type" gorm:"not null;default:remote-catalog"`
	Title           string         `json:"title"`
	Author          *string        `json:"author,omitempty"`
	Status          DownloadStatus `json:"status" gorm:"not null;index;default:PENDING"`
	ProgressPercent int            `json:"progress_percent" gorm:"not null;default:0"`
	CurrentChapter  int            `json:"current_chapter" gorm:"not null;default:0"`
	TotalChapters   *int           `json:"total_chapters,omitempty"`
	LibraryID       *string        `json:"library_id,omitempty"`
	DestinationPath *string        `json:"destination_path,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	PluginID        string         `json:"plugin_id"`
	CreatedBy       string         `json:"created_by"`
	Priority        int            `json:"priority" gorm:"not null;default:5;index"`
	RetryCount      int            `json:"retry_count" gorm:"not null;default:0"`
	MaxRetries      int            `json:"max_retries" gorm:"not null;default:3"`
	CreatedDate     time.Time      `json:"created_date" gorm:"autoCreateTime"`
	StartedDate     *time.Time     `json:"started_date,omitempty"`
	CompletedDate   *time.Time     `json:"completed_date,omitempty"`
	LastModified    time.Time      `json:"last_modified" gorm:"autoUpdateTime"`
}

func (DownloadEntry) TableName() string {
	return "download_queue"
}

// ChapterURLRecord is the proof-of-download for a single chapter URL.
type ChapterURLRecord struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SeriesID        string    `json:"series_id" gorm:"index;not null"`
	URL             string    `json:"url" gorm:"uniqueIndex;not null"`
	ChapterNumber   float64   `json:"chapter_number"`
	Volume          *int      `json:"volume,omitempty"`
	Title           string    `json:"title"`
	Lang            string    `json:"lang" gorm:"size:8;default:en"`
	DownloadedAt    time.Time `json:"downloaded_at"`
	Source          string    `json:"source"`
	ChapterID       string    `json:"chapter_id"`
	ScanlationGroup string    `json:"scanlation_group"`
	CreatedDate     time.Time `json:"created_date" gorm:"autoCreateTime"`
	LastModified    time.Time `json:"last_modified" gorm:"autoUpdateTime"`
}

func (ChapterURLRecord) TableName() string {
	return "chapter_urls"
}

// ConfigEntry is a string-keyed JSON value; the follow configuration lives
// under a singleton key here.
type ConfigEntry struct {
	Key          string    `json:"key" gorm:"primaryKey;size:128"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified" gorm:"autoUpdateTime"`
}

func (ConfigEntry) TableName() string {
	return "config_entries"
}

// FollowConfig is the scheduler configuration plus the legacy global URL
// list. Exactly zero or one exists, persisted as a ConfigEntry.
type FollowConfig struct {
	Enabled            bool       `json:"enabled"`
	CheckIntervalHours int        `json:"check_interval_hours"`
	URLs               []string   `json:"urls,omitempty"`
	LastCheckTime      *time.Time `json:"last_check_time,omitempty"`
}

// PluginConfigRow is one opaque configuration value of one plugin.
type PluginConfigRow struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	PluginID     string    `json:"plugin_id" gorm:"uniqueIndex:idx_plugin_key;not null"`
	Key          string    `json:"key" gorm:"uniqueIndex:idx_plugin_key;not null"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified" gorm:"autoUpdateTime"`
}

func (PluginConfigRow) TableName() string {
	return "plugin_config"
}

// PluginLogLevel classifies plugin log lines.
type PluginLogLevel string

const (
	LogDebug PluginLogLevel = "DEBUG"
	LogInfo  PluginLogLevel = "INFO"
	LogWarn  PluginLogLevel = "WARN"
	LogError PluginLogLevel = "ERROR"
)

// PluginLog is an append-only diagnostic line. It is a side channel and
// never participates in business decisions.
type PluginLog struct {
	ID         int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	PluginID   string         `json:"plugin_id" gorm:"index"`
	Level      PluginLogLevel `json:"level" gorm:"size:8"`
	Message    string         `json:"message"`
	StackTrace *string        `json:"stack_trace,omitempty"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}

func (PluginLog) TableName() string {
	return "plugin_logs"
}
