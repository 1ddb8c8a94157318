package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexelab/translate/cache"
	"github.com/nexelab/translate/cache/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestGetPutDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, err := s.GetEntry(ctx, "k1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	e := &cache.Entry{Key: "k1", Filename: "abc123", Size: 4096, CreatedAt: time.Now().UTC()}
	if err := s.PutEntry(ctx, e); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetEntry(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Filename != "abc123" || got.Size != 4096 {
		t.Errorf("entry = %+v", got)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, e.CreatedAt)
	}

	// Put replaces.
	e.Filename = "def456"
	if err := s.PutEntry(ctx, e); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _ = s.GetEntry(ctx, "k1")
	if got.Filename != "def456" {
		t.Errorf("filename after replace = %q", got.Filename)
	}

	if err := s.DeleteEntry(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetEntry(ctx, "k1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected ErrMiss after delete, got %v", err)
	}

	// Deleting a missing entry is not an error.
	if err := s.DeleteEntry(ctx, "k1"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestListEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	base := time.Now().UTC()
	for i := range 5 {
		err := s.PutEntry(ctx, &cache.Entry{
			Key:       string(rune('a' + i)),
			Filename:  "f",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	all, err := s.ListEntries(ctx, cache.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	if all[0].Key != "e" {
		t.Errorf("newest first expected, got %q", all[0].Key)
	}

	page, err := s.ListEntries(ctx, cache.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 || page[0].Key != "d" || page[1].Key != "c" {
		t.Errorf("page = %+v", page)
	}

	offsetOnly, err := s.ListEntries(ctx, cache.ListOpts{Offset: 3})
	if err != nil {
		t.Fatalf("list offset only: %v", err)
	}
	if len(offsetOnly) != 2 || offsetOnly[0].Key != "b" {
		t.Errorf("offset page = %+v", offsetOnly)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
