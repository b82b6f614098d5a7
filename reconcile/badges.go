package reconcile

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"board-sync/board"
	"board-sync/domain"
)

// badgeRowZone is the fraction of the briefing frame height, from the top, in
// which the badge row is looked for.
const badgeRowZone = 0.35

// statusOnlyLabels holds the status labels that can never appear on another
// badge. URGENT is also a priority label and is left out.
var statusOnlyLabels = func() map[string]domain.Status {
	priorities := map[string]bool{}
	for _, p := range []domain.Priority{domain.PriorityUrgent, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow} {
		priorities[p.Label()] = true
	}
	out := map[string]domain.Status{}
	for _, st := range domain.Statuses {
		if !priorities[st.Label()] {
			out[st.Label()] = st
		}
	}
	return out
}()

func isStatusLabel(content string) bool {
	_, ok := statusOnlyLabels[strings.ToUpper(strings.TrimSpace(board.PlainText(content)))]
	return ok
}

// UpdateStatusBadge relabels and recolors the status badge of p's briefing.
// When no badge can be found the missing briefing content is redrawn.
// Failure is logged and reported as false; it never fails the sync.
func (e *RowEngine) UpdateStatusBadge(ctx context.Context, s *Session, p domain.Project) bool {
	logger := e.logger.WithField("project", p.ID)
	badge, err := e.findStatusBadge(ctx, s, p)
	if err != nil {
		logger.WithError(err).Warn("status badge lookup failed")
		return false
	}
	if badge == nil {
		badge, err = e.redrawBriefing(ctx, s, p)
		if err != nil {
			logger.WithError(err).Warn("briefing redraw failed")
			return false
		}
		if badge == nil {
			logger.Warn("status badge not found")
			return false
		}
		logger.WithField("badge", badge.ID).Info("briefing content redrawn")
	}
	return e.relabelStatusBadge(ctx, s, p, badge)
}

func (e *RowEngine) relabelStatusBadge(ctx context.Context, s *Session, p domain.Project, badge *board.Shape) bool {
	logger := e.logger.WithField("project", p.ID)
	upd := *badge
	upd.Content = p.Status.Label()
	upd.Style.FillColor = statusColors[p.Status]
	if _, err := e.board.Update(ctx, &upd); err != nil {
		if errors.Is(err, board.ErrNotFound) {
			s.forgetBadge(p.ID)
		}
		logger.WithError(err).WithField("badge", badge.ID).Warn("status badge update failed")
		return false
	}
	s.rememberBadge(p.ID, badge.ID)
	logger.WithFields(log.Fields{"badge": badge.ID, "status": p.Status}).Debug("status badge updated")
	return true
}

// redrawBriefing draws the parts of p's briefing that are missing from its
// frame and returns the status badge. It returns nil when the project has no
// briefing frame.
func (e *RowEngine) redrawBriefing(ctx context.Context, s *Session, p domain.Project) (*board.Shape, error) {
	row, err := e.locate(ctx, s, p.ID, p.Name)
	if err != nil || row == nil || row.Briefing == nil {
		return nil, err
	}
	existing, err := itemsInside(ctx, e.board, row.Briefing.Geometry)
	if err != nil {
		return nil, err
	}
	return drawBriefing(ctx, e.board, row.Briefing, p, existing)
}

// findStatusBadge tries, in order: the remembered id, the badge row inside the
// briefing frame, a status-colored shape inside the frame, and finally any
// shape on the board labelled with a status, nearest to the frame.
func (e *RowEngine) findStatusBadge(ctx context.Context, s *Session, p domain.Project) (*board.Shape, error) {
	if id := s.badgeID(p.ID); id != "" {
		it, err := e.board.Get(ctx, id)
		switch {
		case err == nil:
			if sh, ok := it.(*board.Shape); ok {
				return sh, nil
			}
			s.forgetBadge(p.ID)
		case errors.Is(err, board.ErrNotFound):
			s.forgetBadge(p.ID)
		default:
			return nil, err
		}
	}

	row, err := e.locate(ctx, s, p.ID, p.Name)
	if err != nil {
		return nil, err
	}
	if row == nil || row.Briefing == nil {
		return nil, nil
	}
	shapes, err := board.ListShapes(ctx, e.board)
	if err != nil {
		return nil, err
	}
	return pickStatusBadge(shapes, row.Briefing), nil
}

func pickStatusBadge(shapes []*board.Shape, frame *board.Frame) *board.Shape {
	var inside []*board.Shape
	for _, sh := range shapes {
		if frame.Contains(sh.X, sh.Y) {
			inside = append(inside, sh)
		}
	}

	if rowShapes := badgeRow(inside, frame); rowShapes != nil {
		for _, sh := range rowShapes {
			if isStatusLabel(sh.Content) {
				return sh
			}
		}
		if len(rowShapes) > statusBadgeIndex {
			return rowShapes[statusBadgeIndex]
		}
	}

	for _, sh := range inside {
		if _, ok := statusForColor(sh.Style.FillColor); ok {
			return sh
		}
	}

	var best *board.Shape
	bestDist := math.Inf(1)
	for _, sh := range shapes {
		if !isStatusLabel(sh.Content) {
			continue
		}
		if d := math.Hypot(sh.X-frame.X, sh.Y-frame.Y); d < bestDist {
			best, bestDist = sh, d
		}
	}
	return best
}

// badgeRow returns the top-most group of shapes sharing a y coordinate near
// the top of frame, sorted by x. Groups outside the expected badge count are
// ignored.
func badgeRow(shapes []*board.Shape, frame *board.Frame) []*board.Shape {
	limit := frame.Top() + frame.Height*badgeRowZone
	sorted := make([]*board.Shape, 0, len(shapes))
	for _, sh := range shapes {
		if sh.Y <= limit {
			sorted = append(sorted, sh)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Y-sorted[i].Y <= badgeYTolerance {
			j++
		}
		group := sorted[i:j]
		if len(group) >= badgeRowMinShapes && len(group) <= badgeRowMaxShapes {
			out := append([]*board.Shape(nil), group...)
			sort.SliceStable(out, func(a, b int) bool { return out[a].X < out[b].X })
			return out
		}
		i = j
	}
	return nil
}
