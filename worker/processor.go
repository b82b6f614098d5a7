// Package worker consumes the sync jobs queue and runs each job against the
// orchestrator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"board-sync/board"
	"board-sync/domain"
	"board-sync/reconcile"
	"board-sync/syncer"
)

var errUnknownJob = errors.New("unknown job type")

// Jobs is the orchestrator surface the worker dispatches to.
type Jobs interface {
	SyncProjectByID(ctx context.Context, projectID string) (syncer.Result, error)
	ForceResync(ctx context.Context, projectID string) (syncer.Result, error)
	AddStage(ctx context.Context, projectID, projectName string) (*board.Frame, error)
	RemoveProject(ctx context.Context, projectID string) error
	RetryFailed(ctx context.Context) (syncer.BatchResult, error)
	CleanupDuplicates(ctx context.Context) (reconcile.DuplicateReport, error)
}

// Processor runs single jobs and announces their outcome on a redis channel.
type Processor struct {
	jobs    Jobs
	rc      *redis.Client
	channel string
	logger  *log.Logger
	tracer  trace.Tracer
}

// NewProcessor creates a Processor. A nil redis client disables publishing.
func NewProcessor(jobs Jobs, rc *redis.Client, channel string, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Processor{
		jobs:    jobs,
		rc:      rc,
		channel: channel,
		logger:  logger,
		tracer:  otel.Tracer("board-sync/worker"),
	}
}

// Handle runs job and publishes the result.
func (p *Processor) Handle(ctx context.Context, job domain.Job) domain.JobResult {
	ctx, span := p.tracer.Start(ctx, "job."+job.Type, trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("project.id", job.ProjectID),
	))
	defer span.End()

	start := time.Now()
	err := p.dispatch(ctx, job)
	res := domain.JobResult{JobID: job.ID, Type: job.Type, ProjectID: job.ProjectID, Success: err == nil}
	entry := p.logger.WithFields(log.Fields{
		"job":         job.ID,
		"job_type":    job.Type,
		"project":     job.ProjectID,
		"duration_ms": durationToMillis(time.Since(start)),
	})
	if err != nil {
		res.Error = err.Error()
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Warn("job failed")
	} else {
		entry.Info("job done")
	}
	p.publish(ctx, res)
	return res
}

func (p *Processor) dispatch(ctx context.Context, job domain.Job) error {
	switch job.Type {
	case domain.JobSyncProject:
		_, err := p.jobs.SyncProjectByID(ctx, job.ProjectID)
		return err
	case domain.JobForceResync:
		_, err := p.jobs.ForceResync(ctx, job.ProjectID)
		return err
	case domain.JobAddStage:
		var payload domain.AddStagePayload
		if len(job.Payload) > 0 {
			if err := sonic.ConfigStd.Unmarshal(job.Payload, &payload); err != nil {
				return fmt.Errorf("add stage payload: %w", err)
			}
		}
		frame, err := p.jobs.AddStage(ctx, job.ProjectID, payload.ProjectName)
		if err != nil {
			return err
		}
		if frame == nil {
			return fmt.Errorf("project %s has no row: %w", job.ProjectID, domain.ErrNotFound)
		}
		return nil
	case domain.JobRemoveCard:
		return p.jobs.RemoveProject(ctx, job.ProjectID)
	case domain.JobRetryFailed:
		res, err := p.jobs.RetryFailed(ctx)
		if err != nil {
			return err
		}
		p.logger.WithFields(log.Fields{"total": res.Total, "succeeded": res.Succeeded, "failed": res.Failed}).Info("retry batch finished")
		return nil
	case domain.JobCleanupDuplicates:
		rep, err := p.jobs.CleanupDuplicates(ctx)
		if err != nil {
			return err
		}
		p.logger.WithFields(log.Fields{"scanned": rep.Scanned, "removed": len(rep.Removed), "failed": len(rep.Failed)}).Info("duplicate cleanup finished")
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownJob, job.Type)
	}
}

func (p *Processor) publish(ctx context.Context, res domain.JobResult) {
	if p.rc == nil || p.channel == "" {
		return
	}
	payload, err := sonic.ConfigStd.MarshalToString(res)
	if err != nil {
		p.logger.WithError(err).Error("encode job result")
		return
	}
	if err := p.rc.Publish(context.WithoutCancel(ctx), p.channel, payload).Err(); err != nil {
		p.logger.Errorf("Unable to publish result of job %s to %s", res.JobID, p.channel)
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
