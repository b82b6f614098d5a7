// Package syncer drives projects through the sync state machine
// pending → syncing → synced | sync_error. It is the only retry boundary and
// the only writer of sync state.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"board-sync/board"
	"board-sync/domain"
	"board-sync/reconcile"
)

const tracerName = "board-sync/syncer"

// ProjectStore is the slice of the domain store the orchestrator needs.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
	ListProjectsForRetry(ctx context.Context, statuses []domain.SyncStatus, maxRetry int) ([]domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	UpdateSyncStatus(ctx context.Context, id string, upd domain.SyncStatusUpdate) error
}

// BoardStatus reports whether the board can be reached.
type BoardStatus interface {
	Available() error
	Info(ctx context.Context) (board.Info, error)
}

type CardSyncer interface {
	SyncCard(ctx context.Context, s *reconcile.Session, p domain.Project) (reconcile.Placement, error)
	RemoveCard(ctx context.Context, s *reconcile.Session, projectID string) error
}

type RowSyncer interface {
	EnsureRow(ctx context.Context, s *reconcile.Session, p domain.Project) (*reconcile.Row, error)
	AddStage(ctx context.Context, s *reconcile.Session, projectID, projectName string) (*board.Frame, error)
}

type DuplicateCleaner interface {
	Scan(ctx context.Context) (reconcile.DuplicateReport, error)
}

type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps a single backoff pause; zero means uncapped.
	MaxDelay   time.Duration
	BatchDelay time.Duration
}

func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Second, BatchDelay: 500 * time.Millisecond}
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Store      ProjectStore
	Board      BoardStatus
	Cards      CardSyncer
	Rows       RowSyncer
	Duplicates DuplicateCleaner
	Sink       ErrorSink
	Logger     *log.Logger
}

type Orchestrator struct {
	store  ProjectStore
	board  BoardStatus
	cards  CardSyncer
	rows   RowSyncer
	dupes  DuplicateCleaner
	sink   ErrorSink
	logger *log.Logger
	cfg    Config
	tracer trace.Tracer
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func New(d Deps, cfg Config) *Orchestrator {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.Sink == nil {
		d.Sink = NewTraceSink(d.Logger)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Orchestrator{
		store:  d.Store,
		board:  d.Board,
		cards:  d.Cards,
		rows:   d.Rows,
		dupes:  d.Duplicates,
		sink:   d.Sink,
		logger: d.Logger,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Result is the outcome of one SyncProject call.
type Result struct {
	ProjectID string           `json:"projectId"`
	Success   bool             `json:"success"`
	CardID    string           `json:"cardId,omitempty"`
	FrameID   string           `json:"frameId,omitempty"`
	Attempts  int              `json:"attempts"`
	ErrorKind domain.ErrorKind `json:"errorKind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
	// Stale is set when the project was already mid-sync and the last known
	// placement was returned without touching the board.
	Stale bool `json:"stale,omitempty"`
}

func (r *Result) fail(err *domain.ClassifiedError) {
	r.Success = false
	r.ErrorKind = err.Kind
	r.Error = err.Error()
	r.Retryable = err.Retryable()
}

// SyncProject mirrors p onto the board, retrying transient failures with
// exponential backoff, and records the outcome in the store. The returned
// error is the classified failure, if any.
func (o *Orchestrator) SyncProject(ctx context.Context, p domain.Project) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "sync.project", trace.WithAttributes(attribute.String("project.id", p.ID)))
	defer span.End()
	logger := o.logger.WithField("project", p.ID)
	res := Result{ProjectID: p.ID}

	if err := o.board.Available(); err != nil {
		se := domain.Classify(err)
		msg := se.Error()
		if werr := o.store.UpdateSyncStatus(ctx, p.ID, domain.SyncStatusUpdate{Status: domain.SyncPending, Error: &msg}); werr != nil {
			logger.WithError(werr).Error("failed to record pending status")
		}
		res.fail(se)
		span.SetStatus(codes.Error, msg)
		logger.WithError(err).Warn("board unavailable, project left pending")
		return res, se
	}

	if err := o.store.UpdateSyncStatus(ctx, p.ID, domain.SyncStatusUpdate{Status: domain.SyncSyncing}); err != nil {
		return res, fmt.Errorf("mark syncing: %w", err)
	}

	s := reconcile.NewSession()
	var last *domain.ClassifiedError
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		res.Attempts = attempt
		pl, frameID, err := o.attempt(ctx, s, p, attempt)
		if err == nil {
			res.Success = true
			res.CardID = pl.CardID
			res.FrameID = frameID
			if pl.Stale {
				res.Stale = true
				logger.Debug("project already syncing, returned last known placement")
				return res, nil
			}
			return res, o.recordSynced(ctx, p.ID, res)
		}

		last = domain.Classify(err)
		if ctx.Err() != nil {
			break
		}
		logger.WithFields(log.Fields{"attempt": attempt, "error_kind": last.Kind}).WithError(err).Warn("sync attempt failed")
		if !last.Retryable() || attempt == o.cfg.MaxRetries {
			break
		}
		if serr := o.sleep(ctx, backoffDelay(attempt, o.cfg.BaseDelay, o.cfg.MaxDelay)); serr != nil {
			last = domain.Classify(serr)
			break
		}
	}

	if cerr := ctx.Err(); cerr != nil {
		return o.interrupted(ctx, p.ID, res, cerr)
	}

	res.fail(last)
	msg := last.Error()
	upd := domain.SyncStatusUpdate{Status: domain.SyncError, Error: &msg, IncrementRetry: true}
	werr := o.store.UpdateSyncStatus(context.WithoutCancel(ctx), p.ID, upd)
	if werr != nil {
		logger.WithError(werr).Error("failed to record sync error")
	}
	o.sink.Report(ctx, p.ID, res.Attempts, last)
	if werr != nil {
		return res, errors.Join(last, werr)
	}
	return res, last
}

// interrupted puts a project whose sync was cut short by ctx back to pending.
// The retry counter is left alone and nothing reaches the error sink.
func (o *Orchestrator) interrupted(ctx context.Context, projectID string, res Result, cause error) (Result, error) {
	res.fail(domain.Classify(cause))
	res.Retryable = true
	msg := cause.Error()
	upd := domain.SyncStatusUpdate{Status: domain.SyncPending, Error: &msg}
	if err := o.store.UpdateSyncStatus(context.WithoutCancel(ctx), projectID, upd); err != nil {
		o.logger.WithError(err).WithField("project", projectID).Error("failed to record pending status")
		return res, errors.Join(cause, err)
	}
	o.logger.WithFields(log.Fields{"project": projectID, "attempts": res.Attempts}).Info("sync interrupted, project left pending")
	return res, cause
}

func (o *Orchestrator) attempt(ctx context.Context, s *reconcile.Session, p domain.Project, n int) (reconcile.Placement, string, error) {
	ctx, span := o.tracer.Start(ctx, "sync.attempt", trace.WithAttributes(attribute.Int("sync.attempt", n)))
	defer span.End()

	pl, err := o.cards.SyncCard(ctx, s, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pl, "", err
	}
	if pl.Stale || o.rows == nil || !p.HasBriefing() {
		return pl, "", nil
	}
	row, err := o.rows.EnsureRow(ctx, s, p)
	if err != nil {
		// Frame failures never fail the attempt.
		o.logger.WithError(err).WithField("project", p.ID).Warn("frame sync failed")
		span.AddEvent("frame sync failed", trace.WithAttributes(attribute.String("error", err.Error())))
		return pl, "", nil
	}
	if row != nil && row.Briefing != nil {
		return pl, row.Briefing.ID, nil
	}
	return pl, "", nil
}

func (o *Orchestrator) recordSynced(ctx context.Context, projectID string, res Result) error {
	now := o.now().UTC()
	empty := ""
	upd := domain.SyncStatusUpdate{
		Status:   domain.SyncSynced,
		CardID:   &res.CardID,
		Error:    &empty,
		SyncedAt: &now,
	}
	if res.FrameID != "" {
		upd.FrameID = &res.FrameID
	}
	if err := o.store.UpdateSyncStatus(context.WithoutCancel(ctx), projectID, upd); err != nil {
		o.logger.WithError(err).WithField("project", projectID).Error("failed to record synced status")
		return fmt.Errorf("record synced: %w", err)
	}
	o.logger.WithFields(log.Fields{"project": projectID, "card": res.CardID, "frame": res.FrameID, "attempts": res.Attempts}).Info("project synced")
	return nil
}

// SyncProjectByID loads the project and syncs it.
func (o *Orchestrator) SyncProjectByID(ctx context.Context, projectID string) (Result, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return Result{ProjectID: projectID}, fmt.Errorf("get project %s: %w", projectID, err)
	}
	return o.SyncProject(ctx, p)
}

// ForceResync moves the project back to pending with a cleared retry counter
// and syncs it again.
func (o *Orchestrator) ForceResync(ctx context.Context, projectID string) (Result, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return Result{ProjectID: projectID}, fmt.Errorf("get project %s: %w", projectID, err)
	}
	empty := ""
	if err := o.store.UpdateSyncStatus(ctx, projectID, domain.SyncStatusUpdate{Status: domain.SyncPending, Error: &empty, ResetRetry: true}); err != nil {
		return Result{ProjectID: projectID}, fmt.Errorf("reset sync state: %w", err)
	}
	p.SyncStatus = domain.SyncPending
	p.SyncRetryCount = 0
	p.SyncError = ""
	o.logger.WithField("project", projectID).Info("forced resync")
	return o.SyncProject(ctx, p)
}

// AddStage appends a stage frame to the project's row. A nil frame means the
// project has no row on the board.
func (o *Orchestrator) AddStage(ctx context.Context, projectID, projectName string) (*board.Frame, error) {
	if err := o.board.Available(); err != nil {
		return nil, domain.Classify(err)
	}
	if projectName == "" {
		p, err := o.store.GetProject(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("get project %s: %w", projectID, err)
		}
		projectName = p.Name
	}
	return o.rows.AddStage(ctx, reconcile.NewSession(), projectID, projectName)
}

// RemoveProject deletes the project's card and clears the stored card id when
// the project still exists.
func (o *Orchestrator) RemoveProject(ctx context.Context, projectID string) error {
	if err := o.board.Available(); err != nil {
		return domain.Classify(err)
	}
	if err := o.cards.RemoveCard(ctx, reconcile.NewSession(), projectID); err != nil {
		return err
	}
	empty := ""
	err := o.store.UpdateSyncStatus(ctx, projectID, domain.SyncStatusUpdate{Status: domain.SyncPending, CardID: &empty})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("clear card id: %w", err)
	}
	return nil
}

// CleanupDuplicates runs the duplicate card scanner.
func (o *Orchestrator) CleanupDuplicates(ctx context.Context) (reconcile.DuplicateReport, error) {
	if err := o.board.Available(); err != nil {
		return reconcile.DuplicateReport{}, domain.Classify(err)
	}
	return o.dupes.Scan(ctx)
}
