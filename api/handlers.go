// Package api is the HTTP surface of the sync service. Mutating routes only
// queue jobs for the worker; health is answered inline.
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
	"board-sync/syncer"
)

const stageBodyMaxSize = 16 << 10

var errMissingProjectID = errors.New("missing project id")

// JobQueue accepts jobs for the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.Job) (string, error)
}

// HealthReporter produces the sync health snapshot.
type HealthReporter interface {
	Health(ctx context.Context) (syncer.Health, error)
}

type jobResponse struct {
	JobID string `json:"jobId"`
}

// jobBuilder turns a request into the job to queue. Its errors are answered
// with 400.
type jobBuilder func(c echo.Context) (domain.Job, error)

// Deps groups the collaborators of the API routes. Deduper and Results are
// optional.
type Deps struct {
	Queue   JobQueue
	Health  HealthReporter
	Auth    Authenticator
	Deduper Deduper
	Results *ResultBroker
	Logger  *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	e.GET("/healthz", healthz())
	if d.Results != nil {
		e.GET("/api/sync/events", streamResults(d.Results, d.Auth))
	}

	g := e.Group("/api", RequestMetrics(d.Logger), RequireUser(d.Auth))
	g.POST("/projects/:id/sync", enqueue(d, projectJob(domain.JobSyncProject)))
	g.POST("/projects/:id/resync", enqueue(d, projectJob(domain.JobForceResync)))
	g.POST("/projects/:id/stages", enqueue(d, stageJob))
	g.DELETE("/projects/:id/card", enqueue(d, projectJob(domain.JobRemoveCard)))
	g.POST("/sync/retry", enqueue(d, boardJob(domain.JobRetryFailed)))
	g.POST("/board/duplicates/cleanup", enqueue(d, boardJob(domain.JobCleanupDuplicates)))
	g.GET("/sync/health", getHealth(d.Health))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func projectID(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", errMissingProjectID
	}
	return id, nil
}

func projectJob(jobType string) jobBuilder {
	return func(c echo.Context) (domain.Job, error) {
		id, err := projectID(c)
		if err != nil {
			return domain.Job{}, err
		}
		return domain.Job{Type: jobType, ProjectID: id}, nil
	}
}

func boardJob(jobType string) jobBuilder {
	return func(echo.Context) (domain.Job, error) {
		return domain.Job{Type: jobType}, nil
	}
}

// stageJob accepts an optional {"projectName": "..."} body.
func stageJob(c echo.Context) (domain.Job, error) {
	id, err := projectID(c)
	if err != nil {
		return domain.Job{}, err
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, stageBodyMaxSize))
	if err != nil {
		return domain.Job{}, errors.New("invalid body")
	}
	var body domain.AddStagePayload
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			return domain.Job{}, errors.New("invalid body")
		}
	}
	body.ProjectName = strings.TrimSpace(body.ProjectName)
	payload, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		return domain.Job{}, err
	}
	return domain.Job{Type: domain.JobAddStage, ProjectID: id, Payload: payload}, nil
}

func enqueue(d Deps, build jobBuilder) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		job, err := build(c)
		if err != nil {
			m.SetErrorStage("invalid_request")
			return c.String(http.StatusBadRequest, err.Error())
		}
		m.SetJob(job.Type, job.ProjectID)
		ctx := c.Request().Context()
		userID := userFrom(c)
		fields := log.Fields{"job_type": job.Type, "project": job.ProjectID, "user": userID}

		idemKey := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
		if idemKey != "" && d.Deduper != nil {
			job.ID = uuid.NewString()
			existing, claimed, err := d.Deduper.Claim(ctx, userID, idemKey, job.ID)
			if err != nil {
				m.SetErrorStage("dedupe")
				d.Logger.WithError(err).WithFields(fields).Error("idempotency claim failed")
				return c.String(http.StatusInternalServerError, "failed to enqueue job")
			}
			if !claimed {
				d.Logger.WithFields(fields).WithField("job", existing).Debug("duplicate request")
				return c.JSON(http.StatusAccepted, jobResponse{JobID: existing})
			}
		}

		start := time.Now()
		id, err := d.Queue.Enqueue(ctx, job)
		m.ObserveEnqueue(time.Since(start))
		if err != nil {
			m.SetErrorStage("enqueue")
			d.Logger.WithError(err).WithFields(fields).Error("enqueue failed")
			if idemKey != "" && d.Deduper != nil {
				if rerr := d.Deduper.Release(context.WithoutCancel(ctx), userID, idemKey); rerr != nil {
					d.Logger.WithError(rerr).WithFields(fields).Warn("idempotency release failed")
				}
			}
			return c.String(http.StatusInternalServerError, "failed to enqueue job")
		}
		d.Logger.WithFields(fields).WithField("job", id).Debug("job queued")
		return c.JSON(http.StatusAccepted, jobResponse{JobID: id})
	}
}

func getHealth(health HealthReporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		h, err := health.Health(c.Request().Context())
		if err != nil {
			metricsFrom(c).SetErrorStage("storage")
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, h)
	}
}
