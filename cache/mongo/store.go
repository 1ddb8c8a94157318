// Package mongo implements cache.Store on MongoDB using the official
// v2 driver. Entries live in one collection keyed by cache identity,
// with a descending created_at index for newest-first listing.
//
// The caller owns the *mongo.Client lifecycle; Store never disconnects
// it.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/nexelab/translate/cache"
)

// Compile-time interface check.
var _ cache.Store = (*Store)(nil)

const colEntries = "translate_cache"

// entryModel is the BSON document mapping for a cache entry.
type entryModel struct {
	Key       string    `bson:"_id"`
	Filename  string    `bson:"filename"`
	Size      int64     `bson:"size"`
	CreatedAt time.Time `bson:"created_at"`
}

func toEntryModel(e *cache.Entry) *entryModel {
	return &entryModel{
		Key:       e.Key,
		Filename:  e.Filename,
		Size:      e.Size,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

func fromEntryModel(m *entryModel) *cache.Entry {
	return &cache.Entry{
		Key:       m.Key,
		Filename:  m.Filename,
		Size:      m.Size,
		CreatedAt: m.CreatedAt,
	}
}

// Store is a MongoDB implementation of cache.Store.
type Store struct {
	client *mongod.Client
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new MongoDB cache store over an existing client. The
// caller owns the client lifecycle — the Store will not disconnect it
// on Close().
func New(client *mongod.Client, database string, opts ...Option) *Store {
	s := &Store{
		client: client,
		db:     client.Database(database),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying MongoDB client.
func (s *Store) Client() *mongod.Client { return s.client }

func (s *Store) col() *mongod.Collection {
	return s.db.Collection(colEntries)
}

// Migrate creates the created_at index used for listing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col().Indexes().CreateOne(ctx, mongod.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("translate/mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

// GetEntry retrieves the entry for a cache identity.
func (s *Store) GetEntry(ctx context.Context, key string) (*cache.Entry, error) {
	var m entryModel
	err := s.col().FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("translate/mongo: get entry: %w", err)
	}
	return fromEntryModel(&m), nil
}

// PutEntry records a published translation, replacing any previous
// entry for the same key.
func (s *Store) PutEntry(ctx context.Context, e *cache.Entry) error {
	m := toEntryModel(e)
	_, err := s.col().ReplaceOne(ctx,
		bson.M{"_id": m.Key}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("translate/mongo: put entry: %w", err)
	}
	return nil
}

// DeleteEntry removes the entry for a cache identity.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	if _, err := s.col().DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("translate/mongo: delete entry: %w", err)
	}
	return nil
}

// ListEntries returns entries ordered by creation time, newest first.
func (s *Store) ListEntries(ctx context.Context, opts cache.ListOpts) ([]*cache.Entry, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.col().Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("translate/mongo: list entries: %w", err)
	}
	defer cur.Close(ctx)

	var entries []*cache.Entry
	for cur.Next(ctx) {
		var m entryModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("translate/mongo: decode entry: %w", err)
		}
		entries = append(entries, fromEntryModel(&m))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("translate/mongo: list entries: %w", err)
	}
	return entries, nil
}
