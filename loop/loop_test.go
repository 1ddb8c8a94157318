package loop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexelab/translate/loop"
)

func TestPostRunsInOrder(t *testing.T) {
	l := loop.New()
	l.Start()
	defer l.Stop(context.Background())

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		n := i
		if err := l.Post(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("post %d: %v", n, err)
		}
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 50 {
		t.Fatalf("expected 50 callbacks, got %d", len(got))
	}
	for i, n := range got {
		if n != i {
			t.Fatalf("callback %d ran out of order (got %d)", i, n)
		}
	}
}

func TestPostAfterStop(t *testing.T) {
	l := loop.New()
	l.Start()
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := l.Post(func() {}); err != loop.ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestStopDrainsPending(t *testing.T) {
	l := loop.New()
	l.Start()

	var mu sync.Mutex
	ran := 0
	for range 10 {
		_ = l.Post(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if ran != 10 {
		t.Fatalf("expected 10 callbacks drained, got %d", ran)
	}
}

func TestStopWithoutStart(t *testing.T) {
	l := loop.New()
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := l.Post(func() {}); err != loop.ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
