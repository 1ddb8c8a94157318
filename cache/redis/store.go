// Package redis implements cache.Store using Redis, for translation
// caches shared between machines. Entries are stored as Hashes and
// indexed in a Sorted Set scored by publish time for newest-first
// listing.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := rediscache.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nexelab/translate/cache"
)

// Compile-time interface check.
var _ cache.Store = (*Store)(nil)

// Redis key naming. All keys are prefixed with "translate:" to avoid
// collisions.
const keyPrefix = "translate:"

// entryKey returns the Hash key for one entry: translate:cache:{key}
func entryKey(key string) string { return keyPrefix + "cache:" + key }

// indexKey is the Sorted Set tracking all cache keys by publish time.
const indexKey = keyPrefix + "cache_index"

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements cache.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed cache store. The caller owns the Redis
// client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the client.
func (s *Store) Close() error { return nil }

// GetEntry retrieves the entry for a cache identity.
func (s *Store) GetEntry(ctx context.Context, key string) (*cache.Entry, error) {
	fields, err := s.client.HGetAll(ctx, entryKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("translate/redis: get entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, cache.ErrMiss
	}
	return entryFromMap(fields)
}

// PutEntry records a published translation.
func (s *Store) PutEntry(ctx context.Context, e *cache.Entry) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, entryKey(e.Key), entryToMap(e))
	pipe.ZAdd(ctx, indexKey, goredis.Z{
		Score:  float64(e.CreatedAt.UnixNano()),
		Member: e.Key,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("translate/redis: put entry: %w", err)
	}
	return nil
}

// DeleteEntry removes the entry for a cache identity.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(key))
	pipe.ZRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("translate/redis: delete entry: %w", err)
	}
	return nil
}

// ListEntries returns entries ordered by publish time, newest first.
func (s *Store) ListEntries(ctx context.Context, opts cache.ListOpts) ([]*cache.Entry, error) {
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = int64(opts.Offset + opts.Limit - 1)
	}

	keys, err := s.client.ZRevRange(ctx, indexKey, int64(opts.Offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("translate/redis: list entries: %w", err)
	}

	entries := make([]*cache.Entry, 0, len(keys))
	for _, key := range keys {
		e, getErr := s.GetEntry(ctx, key)
		if getErr != nil {
			// Index and hash can drift if a delete raced; skip.
			if errors.Is(getErr, cache.ErrMiss) {
				continue
			}
			return nil, getErr
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ──────────────────────────────────────────────────
// Hash field mapping
// ──────────────────────────────────────────────────

func entryToMap(e *cache.Entry) map[string]any {
	return map[string]any{
		"key":        e.Key,
		"filename":   e.Filename,
		"size":       strconv.FormatInt(e.Size, 10),
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func entryFromMap(fields map[string]string) (*cache.Entry, error) {
	size, err := strconv.ParseInt(fields["size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("translate/redis: parse size: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("translate/redis: parse created_at: %w", err)
	}
	return &cache.Entry{
		Key:       fields["key"],
		Filename:  fields["filename"],
		Size:      size,
		CreatedAt: createdAt,
	}, nil
}
