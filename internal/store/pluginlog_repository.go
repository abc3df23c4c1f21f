package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PluginLogRepository is the append-only diagnostic side channel.
type PluginLogRepository interface {
	Append(ctx context.Context, log *PluginLog) error
	ListRecent(ctx context.Context, pluginID string, limit int) ([]PluginLog, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	TrimToCount(ctx context.Context, keep int) (int64, error)
}

type pluginLogRepository struct {
	db *gorm.DB
}

func NewPluginLogRepository(db *gorm.DB) PluginLogRepository {
	return &pluginLogRepository{db: db}
}

func (r *pluginLogRepository) Append(ctx context.Context, log *PluginLog) error {
	if log.Level == "" {
		log.Level = LogInfo
	}
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("append plugin log: %w", err)
	}
	return nil
}

func (r *pluginLogRepository) ListRecent(ctx context.Context, pluginID string, limit int) ([]PluginLog, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if pluginID != "" {
		query = query.Where("plugin_id = ?", pluginID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logs []PluginLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list plugin logs: %w", err)
	}
	return logs, nil
}

func (r *pluginLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&PluginLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old plugin logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// TrimToCount keeps only the newest `keep` rows.
func (r *pluginLogRepository) TrimToCount(ctx context.Context, keep int) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`DELETE FROM plugin_logs WHERE id NOT IN
			(SELECT id FROM plugin_logs ORDER BY created_at DESC, id DESC LIMIT ?)`, keep)
	if result.Error != nil {
		return 0, fmt.Errorf("trim plugin logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
