package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const followConfigKey = "follow_config"

// ConfigRepository persists the follow configuration singleton and the
// per-plugin opaque settings.
type ConfigRepository interface {
	GetFollowConfig(ctx context.Context) (*FollowConfig, error)
	SaveFollowConfig(ctx context.Context, cfg *FollowConfig) error
	GetPluginConfig(ctx context.Context, pluginID string) (map[string]string, error)
	SetPluginConfigValue(ctx context.Context, pluginID, key, value string) error
}

type configRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) ConfigRepository {
	return &configRepository{db: db}
}

// GetFollowConfig returns the singleton, or defaults when none was saved
// yet.
func (r *configRepository) GetFollowConfig(ctx context.Context) (*FollowConfig, error) {
	var entry ConfigEntry
	err := r.db.WithContext(ctx).First(&entry, "key = ?", followConfigKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &FollowConfig{Enabled: false, CheckIntervalHours: 12}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get follow config: %w", err)
	}

	var cfg FollowConfig
	if err := json.Unmarshal([]byte(entry.Value), &cfg); err != nil {
		return nil, fmt.Errorf("decode follow config: %w", err)
	}
	return &cfg, nil
}

func (r *configRepository) SaveFollowConfig(ctx context.Context, cfg *FollowConfig) error {
	if cfg.CheckIntervalHours < 1 {
		return fmt.Errorf("check interval must be at least 1 hour")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode follow config: %w", err)
	}

	entry := ConfigEntry{Key: followConfigKey, Value: string(data)}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "last_modified"}),
		}).
		Create(&entry).Error; err != nil {
		return fmt.Errorf("save follow config: %w", err)
	}
	return nil
}

func (r *configRepository) GetPluginConfig(ctx context.Context, pluginID string) (map[string]string, error) {
	var rows []PluginConfigRow
	if err := r.db.WithContext(ctx).
		Where("plugin_id = ?", pluginID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get plugin config: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

func (r *configRepository) SetPluginConfigValue(ctx context.Context, pluginID, key, value string) error {
	row := PluginConfigRow{PluginID: pluginID, Key: key, Value: value}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plugin_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "last_modified"}),
		}).
		Create(&row).Error; err != nil {
		return fmt.Errorf("set plugin config value: %w", err)
	}
	return nil
}
