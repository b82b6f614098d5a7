package syncer

import (
	"context"
	"fmt"

	"board-sync/domain"
)

// Health is a read-only snapshot of sync state across all projects.
type Health struct {
	Total          int            `json:"total"`
	Counts         map[string]int `json:"counts"`
	SuccessRate    float64        `json:"successRate"`
	AvgRetryCount  float64        `json:"avgRetryCount"`
	BoardReachable bool           `json:"boardReachable"`
	BoardError     string         `json:"boardError,omitempty"`
}

// Health aggregates sync status counts and checks that the board is
// reachable. SuccessRate is the share of projects in synced state, between 0
// and 1.
func (o *Orchestrator) Health(ctx context.Context) (Health, error) {
	h := Health{Counts: map[string]int{}}
	projects, err := o.store.ListProjects(ctx)
	if err != nil {
		return h, fmt.Errorf("list projects: %w", err)
	}
	for _, st := range domain.SyncStatuses {
		h.Counts[string(st)] = 0
	}
	retries := 0
	for _, p := range projects {
		h.Counts[string(p.SyncStatus)]++
		retries += p.SyncRetryCount
	}
	h.Total = len(projects)
	if h.Total > 0 {
		h.SuccessRate = float64(h.Counts[string(domain.SyncSynced)]) / float64(h.Total)
		h.AvgRetryCount = float64(retries) / float64(h.Total)
	}

	if err := o.board.Available(); err != nil {
		h.BoardError = err.Error()
		return h, nil
	}
	if _, err := o.board.Info(ctx); err != nil {
		h.BoardError = err.Error()
		return h, nil
	}
	h.BoardReachable = true
	return h, nil
}
