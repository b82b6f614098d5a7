package syncer

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// retryStatuses are the sync states picked up by RetryFailed.
var retryStatuses = []domain.SyncStatus{domain.SyncPending, domain.SyncError}

// BatchResult summarizes a RetryFailed run.
type BatchResult struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Log       []string `json:"log"`
}

func (b *BatchResult) logf(format string, args ...any) {
	b.Log = append(b.Log, fmt.Sprintf(format, args...))
}

// eligibleForRetry reports whether a stored project should be re-driven.
func eligibleForRetry(p domain.Project, maxRetries int) bool {
	if p.SyncRetryCount >= maxRetries {
		return false
	}
	for _, st := range retryStatuses {
		if p.SyncStatus == st {
			return true
		}
	}
	return false
}

// RetryFailed re-syncs every pending or failed project whose retry counter is
// below the limit, one at a time with BatchDelay between projects. Individual
// failures are counted, never returned.
func (o *Orchestrator) RetryFailed(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	projects, err := o.store.ListProjectsForRetry(ctx, retryStatuses, o.cfg.MaxRetries)
	if err != nil {
		return res, fmt.Errorf("list retry candidates: %w", err)
	}
	candidates := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		if eligibleForRetry(p, o.cfg.MaxRetries) {
			candidates = append(candidates, p)
		}
	}
	res.Total = len(candidates)
	res.logf("found %d projects to retry", res.Total)

	for i, p := range candidates {
		if i > 0 {
			if err := o.sleep(ctx, o.cfg.BatchDelay); err != nil {
				res.logf("stopped after %d of %d: %v", i, res.Total, err)
				return res, err
			}
		}
		r, err := o.SyncProject(ctx, p)
		if err != nil {
			res.Failed++
			res.logf("[%d/%d] %s (%s) failed: %s", i+1, res.Total, p.Name, p.ID, r.Error)
			continue
		}
		res.Succeeded++
		res.logf("[%d/%d] %s (%s) synced", i+1, res.Total, p.Name, p.ID)
	}
	res.logf("done: %d succeeded, %d failed", res.Succeeded, res.Failed)
	o.logger.WithFields(log.Fields{"total": res.Total, "succeeded": res.Succeeded, "failed": res.Failed}).Info("batch retry finished")
	return res, nil
}
