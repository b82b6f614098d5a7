package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProjectLocksSerializeSameProject(t *testing.T) {
	l := newProjectLocks()
	ctx := context.Background()
	unlock, err := l.Lock(ctx, "p1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, "p1")
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired while first held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	other, err := l.Lock(ctx, "p2")
	if err != nil {
		t.Fatalf("other project blocked: %v", err)
	}
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second holder never acquired the lock")
	}
}

func TestProjectLocksCancelledWaiterDoesNotStrandQueue(t *testing.T) {
	l := newProjectLocks()
	unlock, err := l.Lock(context.Background(), "p1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "p1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	u, err := l.Lock(ctx2, "p1")
	if err != nil {
		t.Fatalf("queue stranded after cancelled waiter: %v", err)
	}
	u()
	u()
}
