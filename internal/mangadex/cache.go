package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// MetadataCache is an optional Redis-backed cache for manga lookups. Every
// failure degrades silently to a direct catalog fetch.
type MetadataCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMetadataCache connects to Redis and verifies the connection.
func NewMetadataCache(addr, password string, ttl time.Duration) (*MetadataCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &MetadataCache{client: rdb, ttl: ttl}, nil
}

func cacheKey(mangaID string) string {
	return fmt.Sprintf("mangadex:manga:%s", mangaID)
}

// Get returns the cached metadata or nil on miss.
func (c *MetadataCache) Get(ctx context.Context, mangaID string) *MangaMetadata {
	data, err := c.client.Get(ctx, cacheKey(mangaID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("metadata cache read failed", "manga_id", mangaID, "error", err)
		}
		return nil
	}

	var meta MangaMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		slog.Debug("metadata cache entry corrupt", "manga_id", mangaID, "error", err)
		return nil
	}
	return &meta
}

// Put stores the metadata with the configured TTL.
func (c *MetadataCache) Put(ctx context.Context, mangaID string, meta *MangaMetadata) {
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(mangaID), data, c.ttl).Err(); err != nil {
		slog.Debug("metadata cache write failed", "manga_id", mangaID, "error", err)
	}
}

// Close releases the Redis connection.
func (c *MetadataCache) Close() error {
	return c.client.Close()
}
