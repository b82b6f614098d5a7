package reconcile

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"board-sync/board"
)

// DuplicateReport summarizes one duplicate cleanup pass.
type DuplicateReport struct {
	Scanned  int      `json:"scanned"`
	Projects int      `json:"projects"`
	Removed  []string `json:"removed"`
	Failed   []string `json:"failed,omitempty"`
	Log      []string `json:"log"`
}

// DuplicateScanner removes extra cards carrying the same project id. It
// compensates for reconciliation races and does not take per-project locks.
type DuplicateScanner struct {
	board  board.Client
	logger *log.Logger
}

func NewDuplicateScanner(c board.Client, logger *log.Logger) *DuplicateScanner {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &DuplicateScanner{board: c, logger: logger}
}

// Scan groups all cards by embedded project id and deletes every card but the
// first of each group. Deletion failures are recorded, not returned.
func (d *DuplicateScanner) Scan(ctx context.Context) (DuplicateReport, error) {
	var rep DuplicateReport
	cards, err := board.ListCards(ctx, d.board)
	if err != nil {
		return rep, fmt.Errorf("list cards: %w", err)
	}
	rep.Scanned = len(cards)
	rep.logf("scanned %d cards", len(cards))

	groups := map[string][]*board.Card{}
	var order []string
	for _, c := range cards {
		tag, ok := board.ParseCardTag(c.Description)
		if !ok {
			continue
		}
		if _, seen := groups[tag.ProjectID]; !seen {
			order = append(order, tag.ProjectID)
		}
		groups[tag.ProjectID] = append(groups[tag.ProjectID], c)
	}
	rep.Projects = len(order)

	for _, pid := range order {
		group := groups[pid]
		if len(group) < 2 {
			continue
		}
		rep.logf("project %s has %d cards, keeping %s", pid, len(group), group[0].ID)
		for _, extra := range group[1:] {
			if err := d.board.Remove(ctx, extra.ID); err != nil && !errors.Is(err, board.ErrNotFound) {
				d.logger.WithError(err).WithFields(log.Fields{"project": pid, "card": extra.ID}).Error("failed to remove duplicate card")
				rep.Failed = append(rep.Failed, extra.ID)
				rep.logf("failed to remove %s: %v", extra.ID, err)
				continue
			}
			rep.Removed = append(rep.Removed, extra.ID)
			rep.logf("removed %s", extra.ID)
		}
	}
	rep.logf("done: %d removed, %d failed", len(rep.Removed), len(rep.Failed))
	d.logger.WithFields(log.Fields{"scanned": rep.Scanned, "removed": len(rep.Removed), "failed": len(rep.Failed)}).Info("duplicate cleanup finished")
	return rep, nil
}

func (r *DuplicateReport) logf(format string, args ...any) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}
