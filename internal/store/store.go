package store

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store owns the SQLite database file backing the download queue. Writes are
// serialized through the single gorm handle; WAL mode lets readers proceed
// concurrently.
type Store struct {
	db       *gorm.DB
	fileSpec string
}

// Open opens (or creates) the database, applies the WAL pragmas and runs the
// schema migration.
func Open(fileSpec string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(fileSpec), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL gives concurrent readers and a checkpointable log for backups.
	if !strings.Contains(fileSpec, "mode=memory") {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// One writer connection; SQLite serializes writes anyway and a single
	// connection avoids SQLITE_BUSY churn between the repositories.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&DownloadEntry{},
		&ChapterURLRecord{},
		&ConfigEntry{},
		&PluginConfigRow{},
		&PluginLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("queue store opened", "file", fileSpec)
	return &Store{db: db, fileSpec: fileSpec}, nil
}

// DB exposes the gorm handle for the repositories.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FileSpec returns the spec the store was opened with.
func (s *Store) FileSpec() string {
	return s.fileSpec
}

// InMemory reports whether the store has no on-disk file to back up.
func (s *Store) InMemory() bool {
	return strings.Contains(s.fileSpec, "mode=memory")
}

// Checkpoint flushes the write-ahead log into the main database file.
func (s *Store) Checkpoint() error {
	if err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	return nil
}

// Close checkpoints and closes the underlying connection.
func (s *Store) Close() error {
	if !s.InMemory() {
		if err := s.Checkpoint(); err != nil {
			slog.Warn("checkpoint on close failed", "error", err)
		}
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
