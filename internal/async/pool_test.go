package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPoolExecutesEnqueuedJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	exec := ExecutorFunc(func(_ context.Context, id uuid.UUID) error {
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		return nil
	})
	p := NewPool(exec, nil, WithWorkers(2), WithQueueSize(10))

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if err := p.Enqueue(context.Background(), id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("job %s was not executed", id)
		}
	}
}

func TestPoolEnqueueIsNonBlocking(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	exec := ExecutorFunc(func(ctx context.Context, _ uuid.UUID) error {
		started <- struct{}{}
		<-release
		return nil
	})
	p := NewPool(exec, nil, WithWorkers(1), WithQueueSize(1))

	if err := p.Enqueue(context.Background(), uuid.New()); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	<-started // worker is busy, buffer is empty
	if err := p.Enqueue(context.Background(), uuid.New()); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if err := p.Enqueue(context.Background(), uuid.New()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	p.Shutdown(context.Background())
	if err := p.Enqueue(context.Background(), uuid.New()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after shutdown, got %v", err)
	}
}

func TestPoolSurvivesPanics(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	exec := ExecutorFunc(func(context.Context, uuid.UUID) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("boom")
		}
		return nil
	})
	p := NewPool(exec, nil, WithWorkers(1))
	_ = p.Enqueue(context.Background(), uuid.New())
	_ = p.Enqueue(context.Background(), uuid.New())
	p.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("expected worker to keep running after a panic, got %d calls", calls)
	}
}
