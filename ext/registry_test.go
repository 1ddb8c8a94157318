package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nexelab/translate/ext"
	"github.com/nexelab/translate/id"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnTranslationStarted(_ context.Context, _ ext.JobInfo) error {
	e.calls = append(e.calls, "OnTranslationStarted")
	return nil
}

func (e *allHooksExt) OnStageEntered(_ context.Context, _ ext.JobInfo, _ string) error {
	e.calls = append(e.calls, "OnStageEntered")
	return nil
}

func (e *allHooksExt) OnCacheHit(_ context.Context, _ ext.JobInfo) error {
	e.calls = append(e.calls, "OnCacheHit")
	return nil
}

func (e *allHooksExt) OnProgressReported(_ context.Context, _ ext.JobInfo, _, _ int64) error {
	e.calls = append(e.calls, "OnProgressReported")
	return nil
}

func (e *allHooksExt) OnTranslationCompleted(_ context.Context, _ ext.JobInfo, _ time.Duration) error {
	e.calls = append(e.calls, "OnTranslationCompleted")
	return nil
}

func (e *allHooksExt) OnTranslationFailed(_ context.Context, _ ext.JobInfo, _ error) error {
	e.calls = append(e.calls, "OnTranslationFailed")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// progressOnlyExt only implements the progress hook.
type progressOnlyExt struct {
	calls []string
}

func (e *progressOnlyExt) Name() string { return "progress-only" }

func (e *progressOnlyExt) OnProgressReported(_ context.Context, _ ext.JobInfo, _, _ int64) error {
	e.calls = append(e.calls, "OnProgressReported")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnTranslationStarted(_ context.Context, _ ext.JobInfo) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

func testInfo() ext.JobInfo {
	return ext.JobInfo{ID: id.NewJobID(), URL: "prog.pexe", CacheKey: "k", InputSize: 1024}
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	po := &progressOnlyExt{}
	r.Register(all)
	r.Register(po)

	ctx := context.Background()
	info := testInfo()

	// Both implement OnProgressReported → both called.
	r.EmitProgressReported(ctx, info, 512, 1024)
	if len(all.calls) != 1 || all.calls[0] != "OnProgressReported" {
		t.Fatalf("all: expected [OnProgressReported], got %v", all.calls)
	}
	if len(po.calls) != 1 || po.calls[0] != "OnProgressReported" {
		t.Fatalf("po: expected [OnProgressReported], got %v", po.calls)
	}

	// Only all implements OnStageEntered → po not called.
	r.EmitStageEntered(ctx, info, "run_translation")
	if len(all.calls) != 2 || all.calls[1] != "OnStageEntered" {
		t.Fatalf("all: expected OnStageEntered as 2nd, got %v", all.calls)
	}
	if len(po.calls) != 1 {
		t.Fatalf("po: should still have 1 call, got %v", po.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	info := testInfo()

	r.EmitTranslationStarted(ctx, info)
	r.EmitStageEntered(ctx, info, "open_object_for_write")
	r.EmitCacheHit(ctx, info)
	r.EmitProgressReported(ctx, info, 100, 200)
	r.EmitTranslationCompleted(ctx, info, time.Second)
	r.EmitTranslationFailed(ctx, info, errors.New("fail"))
	r.EmitShutdown(ctx)

	expected := []string{
		"OnTranslationStarted", "OnStageEntered", "OnCacheHit",
		"OnProgressReported", "OnTranslationCompleted",
		"OnTranslationFailed", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	failing := &failingExt{}
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(failing)
	r.Register(all)

	ctx := context.Background()

	// No panic, no error propagation. allHooksExt should still fire.
	r.EmitTranslationStarted(ctx, testInfo())

	if len(all.calls) != 1 || all.calls[0] != "OnTranslationStarted" {
		t.Fatalf("all: expected [OnTranslationStarted] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ctx := context.Background()
	info := ext.JobInfo{}

	// None of these should panic or error.
	r.EmitTranslationStarted(ctx, info)
	r.EmitStageEntered(ctx, info, "s")
	r.EmitCacheHit(ctx, info)
	r.EmitProgressReported(ctx, info, 0, 0)
	r.EmitTranslationCompleted(ctx, info, time.Second)
	r.EmitTranslationFailed(ctx, info, errors.New("x"))
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	ctx := context.Background()
	r.EmitTranslationStarted(ctx, testInfo())

	// Both should be called.
	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
