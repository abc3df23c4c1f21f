package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the download pipeline.
type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Service
	HTTPPort int `env:"HTTP_PORT" default:"8080"`

	// Storage
	ConfigDir    string `env:"KOMGA_CONFIG_DIR" default:"$HOME/.komga"`
	DatabaseFile string `env:"DATABASE_FILE" default:"{configDir}/database.db"`
	DownloadsDir string `env:"DOWNLOADS_DIR" default:"{configDir}/downloads"`

	// Catalog
	MangaDexAPIURL    string `env:"MANGADEX_API_URL" default:"https://api.mangadex.org"`
	MangaDexAPIKey    string `env:"MANGADEX_API_KEY"`
	PreferredLanguage string `env:"PREFERRED_LANGUAGE" default:"en"`

	// Extractor
	ExtractorCommand  string        `env:"EXTRACTOR_COMMAND"` // override the resolver
	ExtractorUsername string        `env:"EXTRACTOR_USERNAME"`
	ExtractorPassword string        `env:"EXTRACTOR_PASSWORD"`
	ChapterTimeout    time.Duration `env:"CHAPTER_TIMEOUT" default:"10m"`
	SeriesTimeout     time.Duration `env:"SERIES_TIMEOUT" default:"2h"`
	MetadataTimeout   time.Duration `env:"METADATA_TIMEOUT" default:"60s"`

	// Redis cache (optional, empty URL disables)
	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" default:"3600"`

	// Development
	LogLevel string `env:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	// If .env does not exist that's OK - system env vars still apply.
	if err := godotenv.Load(".env"); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8080); err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if err := loadEnvString(&config.ConfigDir, "KOMGA_CONFIG_DIR", filepath.Join(home, ".komga")); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.DatabaseFile, "DATABASE_FILE", filepath.Join(config.ConfigDir, "database.db")); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.DownloadsDir, "DOWNLOADS_DIR", filepath.Join(config.ConfigDir, "downloads")); err != nil {
		return nil, err
	}

	if err := loadEnvString(&config.MangaDexAPIURL, "MANGADEX_API_URL", "https://api.mangadex.org"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.MangaDexAPIKey, "MANGADEX_API_KEY", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.PreferredLanguage, "PREFERRED_LANGUAGE", "en"); err != nil {
		return nil, err
	}

	if err := loadEnvString(&config.ExtractorCommand, "EXTRACTOR_COMMAND", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ExtractorUsername, "EXTRACTOR_USERNAME", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ExtractorPassword, "EXTRACTOR_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ChapterTimeout, "CHAPTER_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.SeriesTimeout, "SERIES_TIMEOUT", 2*time.Hour); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.MetadataTimeout, "METADATA_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	if err := loadEnvString(&config.RedisURL, "REDIS_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.CacheTTL, "CACHE_TTL", 3600); err != nil {
		return nil, err
	}

	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}

	return config, nil
}

// InMemoryDatabase reports whether the database file spec disables on-disk
// persistence, which in turn disables the backup lifecycle.
func (c *Config) InMemoryDatabase() bool {
	return strings.Contains(c.DatabaseFile, "mode=memory")
}

// BackupsDir is the directory backups are written to.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.ConfigDir, "backups")
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
