package reconcile

import (
	"context"
	"sync"

	"board-sync/domain"
)

// Placement is where a project's card ended up.
type Placement struct {
	ProjectID string        `json:"projectId"`
	CardID    string        `json:"cardId"`
	Column    domain.Status `json:"column"`
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
	Created   bool          `json:"created"`
	// Stale is set when the placement was served from the last known state
	// because the project was already mid-sync.
	Stale bool `json:"-"`
}

// InflightTracker is the coarse re-entrancy guard: a project already mid-sync
// is answered with its last known placement instead of queueing another sync.
type InflightTracker interface {
	// Begin marks projectID in flight. It returns false when it already is.
	Begin(ctx context.Context, projectID string) (bool, error)
	End(ctx context.Context, projectID string) error
	LastKnown(ctx context.Context, projectID string) (*Placement, error)
	Remember(ctx context.Context, p Placement) error
	Forget(ctx context.Context, projectID string) error
}

type memoryTracker struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	last     map[string]Placement
}

// NewMemoryTracker returns a process-local InflightTracker.
func NewMemoryTracker() InflightTracker {
	return &memoryTracker{inflight: map[string]struct{}{}, last: map[string]Placement{}}
}

func (m *memoryTracker) Begin(_ context.Context, projectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[projectID]; ok {
		return false, nil
	}
	m.inflight[projectID] = struct{}{}
	return true, nil
}

func (m *memoryTracker) End(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, projectID)
	return nil
}

func (m *memoryTracker) LastKnown(_ context.Context, projectID string) (*Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.last[projectID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memoryTracker) Remember(_ context.Context, p Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Stale = false
	p.Created = false
	m.last[p.ProjectID] = p
	return nil
}

func (m *memoryTracker) Forget(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, projectID)
	return nil
}
