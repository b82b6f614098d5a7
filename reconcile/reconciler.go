// Package reconcile mirrors projects onto the board: one card per project in
// the status timeline, a briefing frame and a chain of stage frames per
// project. Every decision is taken from a fresh board read; in-memory state is
// only a hint.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-sync/board"
	"board-sync/domain"
)

// Reconciler owns the timeline surface and the per-project cards on it.
type Reconciler struct {
	board   board.Client
	locks   *projectLocks
	tracker InflightTracker
	logger  *log.Logger
	now     func() time.Time

	// initMu keeps two first syncs in this process from both drawing a timeline.
	initMu sync.Mutex
	// drawnTimeline is the id of the timeline frame last checked for missing
	// headers and drop zones.
	drawnTimeline string
}

// NewReconciler creates a Reconciler. A nil tracker selects the in-process
// tracker; a nil logger selects the standard logrus logger.
func NewReconciler(c board.Client, tracker InflightTracker, logger *log.Logger) *Reconciler {
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{
		board:   c,
		locks:   newProjectLocks(),
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// EnsureTimeline restores the timeline from the board or draws it when absent.
// A restored frame gets any missing header or drop zone redrawn, once per
// frame per process.
func (r *Reconciler) EnsureTimeline(ctx context.Context, s *Session) (*Timeline, error) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	tl, err := findTimeline(ctx, r.board)
	if err != nil {
		return nil, err
	}
	switch {
	case tl == nil:
		tl, err = createTimeline(ctx, r.board, r.logger)
		if err != nil {
			return nil, err
		}
	case tl.FrameID != r.drawnTimeline:
		if err := restoreTimeline(ctx, r.board, tl, r.logger); err != nil {
			return nil, err
		}
	}
	r.drawnTimeline = tl.FrameID
	s.rememberTimeline(tl)
	return tl, nil
}

// FindTimeline returns the timeline if it exists on the board, else nil.
func (r *Reconciler) FindTimeline(ctx context.Context, s *Session) (*Timeline, error) {
	tl, err := findTimeline(ctx, r.board)
	if err != nil {
		return nil, err
	}
	s.rememberTimeline(tl)
	return tl, nil
}

// SyncCard makes sure exactly one card exists for p, placed in the column of
// its status and labelled with its current fields.
func (r *Reconciler) SyncCard(ctx context.Context, s *Session, p domain.Project) (Placement, error) {
	if err := p.Validate(); err != nil {
		return Placement{}, err
	}
	started, err := r.tracker.Begin(ctx, p.ID)
	if err != nil {
		r.logger.WithError(err).WithField("project", p.ID).Warn("inflight tracker unavailable, continuing")
		started = false
	} else if !started {
		last, lerr := r.tracker.LastKnown(ctx, p.ID)
		if lerr == nil && last != nil {
			r.logger.WithField("project", p.ID).Debug("card sync already in flight, serving last known placement")
			last.Stale = true
			return *last, nil
		}
	}
	if started {
		defer func() {
			if err := r.tracker.End(context.WithoutCancel(ctx), p.ID); err != nil {
				r.logger.WithError(err).WithField("project", p.ID).Warn("failed to clear inflight marker")
			}
		}()
	}

	unlock, err := r.locks.Lock(ctx, p.ID)
	if err != nil {
		return Placement{}, err
	}
	defer unlock()

	pl, err := r.syncCardLocked(ctx, s, p)
	if err != nil {
		return Placement{}, err
	}
	if err := r.tracker.Remember(ctx, pl); err != nil {
		r.logger.WithError(err).WithField("project", p.ID).Warn("failed to remember placement")
	}
	return pl, nil
}

func (r *Reconciler) syncCardLocked(ctx context.Context, s *Session, p domain.Project) (Placement, error) {
	tl, err := r.EnsureTimeline(ctx, s)
	if err != nil {
		return Placement{}, err
	}
	cards, err := board.ListCards(ctx, r.board)
	if err != nil {
		return Placement{}, fmt.Errorf("list cards: %w", err)
	}
	reviewed := p.WasReviewed

	existing := findProjectCard(cards, p.ID)
	if existing == nil {
		if cached := s.cardID(p.ID); cached != "" {
			if c := cardByID(cards, cached); c != nil {
				existing = c
			} else {
				r.logger.WithFields(log.Fields{"project": p.ID, "card": cached}).Info("cached card no longer on board, discarding")
				s.forgetCard(p.ID)
			}
		}
	}

	col, ok := tl.Column(p.Status)
	if !ok {
		return Placement{}, domain.ValidationError("project %s: no column for status %q", p.ID, p.Status)
	}

	if existing != nil {
		return r.updateCard(ctx, s, p, existing, cards, col, reviewed)
	}

	// A concurrent sync may have created the card since the first fetch.
	cards, err = board.ListCards(ctx, r.board)
	if err != nil {
		return Placement{}, fmt.Errorf("recheck cards: %w", err)
	}
	if found := findProjectCard(cards, p.ID); found != nil {
		r.logger.WithFields(log.Fields{"project": p.ID, "card": found.ID}).Info("card appeared before create, updating instead")
		return r.updateCard(ctx, s, p, found, cards, col, reviewed)
	}

	y := slotFor(cards, col, "")
	card := &board.Card{
		Title:       cardTitle(p, reviewed, r.now()),
		Description: board.CardTag(p.ID, reviewed).String(),
		Geometry:    board.Geometry{X: col.CenterX(), Y: y, Width: cardWidth, Height: cardHeight},
		Style:       board.Style{CardTheme: col.Color},
	}
	created, err := r.board.Create(ctx, card)
	if err != nil {
		return Placement{}, fmt.Errorf("create card: %w", err)
	}
	s.rememberCard(p.ID, created.ItemID())
	r.logger.WithFields(log.Fields{"project": p.ID, "card": created.ItemID(), "column": col.Status}).Info("card created")
	g := created.Bounds()
	return Placement{ProjectID: p.ID, CardID: created.ItemID(), Column: col.Status, X: g.X, Y: g.Y, Created: true}, nil
}

func (r *Reconciler) updateCard(ctx context.Context, s *Session, p domain.Project, existing *board.Card, cards []*board.Card, col Column, reviewed bool) (Placement, error) {
	upd := *existing
	upd.Title = cardTitle(p, reviewed, r.now())
	upd.Description = board.CardTag(p.ID, reviewed).String()
	// A card already in its column keeps its slot unless another card sits there.
	if !col.ContainsX(existing.X) || slotTaken(cards, col, existing.ID, existing.Y) {
		upd.Y = slotFor(cards, col, existing.ID)
	}
	upd.X = col.CenterX()
	upd.Width, upd.Height = cardWidth, cardHeight
	upd.Style.CardTheme = col.Color
	saved, err := r.board.Update(ctx, &upd)
	if err != nil {
		if errors.Is(err, board.ErrNotFound) {
			s.forgetCard(p.ID)
		}
		return Placement{}, fmt.Errorf("update card %s: %w", existing.ID, err)
	}
	s.rememberCard(p.ID, saved.ItemID())
	g := saved.Bounds()
	r.logger.WithFields(log.Fields{"project": p.ID, "card": saved.ItemID(), "column": col.Status}).Debug("card updated")
	return Placement{ProjectID: p.ID, CardID: saved.ItemID(), Column: col.Status, X: g.X, Y: g.Y}, nil
}

// RemoveCard deletes the project's card if one is known or found. A card that
// is already gone is not an error.
func (r *Reconciler) RemoveCard(ctx context.Context, s *Session, projectID string) error {
	unlock, err := r.locks.Lock(ctx, projectID)
	if err != nil {
		return err
	}
	defer unlock()

	id := s.cardID(projectID)
	if id == "" {
		cards, err := board.ListCards(ctx, r.board)
		if err != nil {
			return fmt.Errorf("list cards: %w", err)
		}
		c := findProjectCard(cards, projectID)
		if c == nil {
			return nil
		}
		id = c.ID
	}
	if err := r.board.Remove(ctx, id); err != nil && !errors.Is(err, board.ErrNotFound) {
		return fmt.Errorf("remove card %s: %w", id, err)
	}
	s.forgetCard(projectID)
	if err := r.tracker.Forget(ctx, projectID); err != nil {
		r.logger.WithError(err).WithField("project", projectID).Warn("failed to forget placement")
	}
	r.logger.WithFields(log.Fields{"project": projectID, "card": id}).Info("card removed")
	return nil
}
