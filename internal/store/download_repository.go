package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("download entry not found")
	ErrAlreadyQueued = errors.New("source url already queued or completed")
)

// DownloadRepository persists the download queue.
type DownloadRepository interface {
	Create(ctx context.Context, entry *DownloadEntry) error
	GetByID(ctx context.Context, id string) (*DownloadEntry, error)
	List(ctx context.Context, status *DownloadStatus) ([]DownloadEntry, error)
	FindPendingOrdered(ctx context.Context) ([]DownloadEntry, error)
	FindRetryableFailed(ctx context.Context) ([]DownloadEntry, error)
	ExistsBySourceURLAndStatusIn(ctx context.Context, url string, statuses []DownloadStatus) (bool, error)
	Save(ctx context.Context, entry *DownloadEntry) error
	Delete(ctx context.Context, id string) error
	DeleteByStatus(ctx context.Context, status DownloadStatus) (int64, error)
}

type downloadRepository struct {
	db *gorm.DB
}

func NewDownloadRepository(db *gorm.DB) DownloadRepository {
	return &downloadRepository{db: db}
}

// Create inserts a new entry, enforcing that at most one entry per source
// URL is PENDING, DOWNLOADING or COMPLETED at any instant.
func (r *downloadRepository) Create(ctx context.Context, entry *DownloadEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DownloadEntry{}).
			Where("source_url = ? AND status IN ?", entry.SourceURL, ActiveStatuses).
			Count(&count).Error; err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if count > 0 {
			return ErrAlreadyQueued
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create download entry: %w", err)
		}
		return nil
	})
}

func (r *downloadRepository) GetByID(ctx context.Context, id string) (*DownloadEntry, error) {
	var entry DownloadEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get download entry: %w", err)
	}
	return &entry, nil
}

// List returns entries sorted by priority ascending (lower dispatches
// sooner), ties broken by creation date.
func (r *downloadRepository) List(ctx context.Context, status *DownloadStatus) ([]DownloadEntry, error) {
	query := r.db.WithContext(ctx).Order("priority ASC, created_date ASC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var entries []DownloadEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list download entries: %w", err)
	}
	return entries, nil
}

func (r *downloadRepository) FindPendingOrdered(ctx context.Context) ([]DownloadEntry, error) {
	var entries []DownloadEntry
	if err := r.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("priority ASC, created_date ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("find pending: %w", err)
	}
	return entries, nil
}

// FindRetryableFailed returns FAILED entries that still have retries left.
func (r *downloadRepository) FindRetryableFailed(ctx context.Context) ([]DownloadEntry, error) {
	var entries []DownloadEntry
	if err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retries", StatusFailed).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("find retryable failed: %w", err)
	}
	return entries, nil
}

func (r *downloadRepository) ExistsBySourceURLAndStatusIn(ctx context.Context, url string, statuses []DownloadStatus) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&DownloadEntry{}).
		Where("source_url = ? AND status IN ?", url, statuses).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("exists by source url: %w", err)
	}
	return count > 0, nil
}

// Save persists all fields of an existing entry and bumps last_modified.
func (r *downloadRepository) Save(ctx context.Context, entry *DownloadEntry) error {
	entry.LastModified = time.Now()
	if err := r.db.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("save download entry: %w", err)
	}
	return nil
}

func (r *downloadRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&DownloadEntry{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete download entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *downloadRepository) DeleteByStatus(ctx context.Context, status DownloadStatus) (int64, error) {
	result := r.db.WithContext(ctx).Where("status = ?", status).Delete(&DownloadEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete by status: %w", result.Error)
	}
	return result.RowsAffected, nil
}
