package reconcile

import (
	"context"
	"sync"
)

// projectLocks serializes work per project id. Each acquirer waits for the
// completion signal of the previous acquirer, forming a chain per key.
type projectLocks struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newProjectLocks() *projectLocks {
	return &projectLocks{tails: map[string]chan struct{}{}}
}

// Lock waits for the previous holder of id and returns the release function.
// When ctx ends first, the slot is released as soon as the previous holder
// finishes so later acquirers are not stranded.
func (l *projectLocks) Lock(ctx context.Context, id string) (func(), error) {
	done := make(chan struct{})
	l.mu.Lock()
	prev := l.tails[id]
	l.tails[id] = done
	l.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(func() { l.release(id, done) }) }

	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}

func (l *projectLocks) release(id string, done chan struct{}) {
	l.mu.Lock()
	if l.tails[id] == done {
		delete(l.tails, id)
	}
	l.mu.Unlock()
	close(done)
}
