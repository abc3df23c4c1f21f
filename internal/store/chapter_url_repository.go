package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ChapterURLRepository tracks which chapter URLs have been downloaded. A
// record's existence is the authoritative "already fetched" signal.
type ChapterURLRepository interface {
	Insert(ctx context.Context, record *ChapterURLRecord) error
	ExistsByURL(ctx context.Context, url string) (bool, error)
	ExistsByURLs(ctx context.Context, urls []string) (map[string]bool, error)
	CountBySeriesID(ctx context.Context, seriesID string) (int64, error)
	FindBySeriesID(ctx context.Context, seriesID string) ([]ChapterURLRecord, error)
	FindByDateRange(ctx context.Context, from, to time.Time) ([]ChapterURLRecord, error)
	Delete(ctx context.Context, id int64) error
	DeleteBySeriesID(ctx context.Context, seriesID string) (int64, error)
	DeleteByDateRange(ctx context.Context, from, to time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type chapterURLRepository struct {
	db *gorm.DB
}

func NewChapterURLRepository(db *gorm.DB) ChapterURLRepository {
	return &chapterURLRepository{db: db}
}

func (r *chapterURLRepository) Insert(ctx context.Context, record *ChapterURLRecord) error {
	if record.Lang == "" {
		record.Lang = "en"
	}
	if record.DownloadedAt.IsZero() {
		record.DownloadedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("chapter url already recorded: %w", err)
		}
		return fmt.Errorf("insert chapter url: %w", err)
	}
	return nil
}

func (r *chapterURLRepository) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ChapterURLRecord{}).
		Where("url = ?", url).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("exists by url: %w", err)
	}
	return count > 0, nil
}

// ExistsByURLs maps every input URL to whether a record exists for it.
func (r *chapterURLRepository) ExistsByURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool, len(urls))
	for _, u := range urls {
		result[u] = false
	}
	if len(urls) == 0 {
		return result, nil
	}

	var found []string
	if err := r.db.WithContext(ctx).
		Model(&ChapterURLRecord{}).
		Where("url IN ?", urls).
		Pluck("url", &found).Error; err != nil {
		return nil, fmt.Errorf("exists by urls: %w", err)
	}
	for _, u := range found {
		result[u] = true
	}
	return result, nil
}

func (r *chapterURLRepository) CountBySeriesID(ctx context.Context, seriesID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ChapterURLRecord{}).
		Where("series_id = ?", seriesID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count by series: %w", err)
	}
	return count, nil
}

func (r *chapterURLRepository) FindBySeriesID(ctx context.Context, seriesID string) ([]ChapterURLRecord, error) {
	var records []ChapterURLRecord
	if err := r.db.WithContext(ctx).
		Where("series_id = ?", seriesID).
		Order("chapter_number ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find by series: %w", err)
	}
	return records, nil
}

func (r *chapterURLRepository) FindByDateRange(ctx context.Context, from, to time.Time) ([]ChapterURLRecord, error) {
	var records []ChapterURLRecord
	if err := r.db.WithContext(ctx).
		Where("downloaded_at >= ? AND downloaded_at <= ?", from, to).
		Order("downloaded_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("find by date range: %w", err)
	}
	return records, nil
}

func (r *chapterURLRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&ChapterURLRecord{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete chapter url: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *chapterURLRepository) DeleteBySeriesID(ctx context.Context, seriesID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("series_id = ?", seriesID).Delete(&ChapterURLRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete by series: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *chapterURLRepository) DeleteByDateRange(ctx context.Context, from, to time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("downloaded_at >= ? AND downloaded_at <= ?", from, to).
		Delete(&ChapterURLRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete by date range: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *chapterURLRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&ChapterURLRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete all chapter urls: %w", result.Error)
	}
	return result.RowsAffected, nil
}
