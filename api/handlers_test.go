package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"board-sync/domain"
	"board-sync/syncer"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	if job.ID != "" {
		return job.ID, nil
	}
	return "job-" + job.Type, nil
}

type fakeHealth struct {
	h   syncer.Health
	err error
}

func (f fakeHealth) Health(context.Context) (syncer.Health, error) { return f.h, f.err }

type server struct {
	e      *echo.Echo
	queue  *fakeQueue
	hook   *test.Hook
	bearer string
}

func newServer(t *testing.T, health HealthReporter) *server {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	q := &fakeQueue{}
	e := echo.New()
	Register(e, Deps{Queue: q, Health: health, Auth: NewTestAuth(testSecret), Logger: logger})
	return &server{e: e, queue: q, hook: hook, bearer: "Bearer " + signToken(t, testSecret, validClaims())}
}

func (s *server) do(method, target, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if authed {
		req.Header.Set(echo.HeaderAuthorization, s.bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestMutationsQueueJobs(t *testing.T) {
	tests := []struct {
		method, target string
		jobType        string
		projectID      string
	}{
		{http.MethodPost, "/api/projects/p1/sync", domain.JobSyncProject, "p1"},
		{http.MethodPost, "/api/projects/p1/resync", domain.JobForceResync, "p1"},
		{http.MethodDelete, "/api/projects/p1/card", domain.JobRemoveCard, "p1"},
		{http.MethodPost, "/api/sync/retry", domain.JobRetryFailed, ""},
		{http.MethodPost, "/api/board/duplicates/cleanup", domain.JobCleanupDuplicates, ""},
	}
	for _, tt := range tests {
		t.Run(tt.jobType, func(t *testing.T) {
			s := newServer(t, fakeHealth{})
			rec := s.do(tt.method, tt.target, "", true)
			if rec.Code != http.StatusAccepted {
				t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
			}
			var resp jobResponse
			if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.JobID != "job-"+tt.jobType {
				t.Fatalf("unexpected job id %q", resp.JobID)
			}
			if len(s.queue.jobs) != 1 {
				t.Fatalf("expected one job, got %d", len(s.queue.jobs))
			}
			job := s.queue.jobs[0]
			if job.Type != tt.jobType || job.ProjectID != tt.projectID {
				t.Fatalf("unexpected job %+v", job)
			}
		})
	}
}

func TestAddStageCarriesProjectName(t *testing.T) {
	s := newServer(t, fakeHealth{})
	rec := s.do(http.MethodPost, "/api/projects/p1/stages", `{"projectName":" Launch "}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
	job := s.queue.jobs[0]
	if job.Type != domain.JobAddStage || job.ProjectID != "p1" {
		t.Fatalf("unexpected job %+v", job)
	}
	var payload domain.AddStagePayload
	if err := sonic.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ProjectName != "Launch" {
		t.Fatalf("expected trimmed name, got %q", payload.ProjectName)
	}
}

func TestAddStageWithoutBody(t *testing.T) {
	s := newServer(t, fakeHealth{})
	if rec := s.do(http.MethodPost, "/api/projects/p1/stages", "", true); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
}

func TestAddStageInvalidBody(t *testing.T) {
	s := newServer(t, fakeHealth{})
	for _, body := range []string{`{"projectName":`, `{"unknown":1}`} {
		if rec := s.do(http.MethodPost, "/api/projects/p1/stages", body, true); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400 got %d", body, rec.Code)
		}
	}
	if len(s.queue.jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(s.queue.jobs))
	}
}

func TestUnauthorized(t *testing.T) {
	s := newServer(t, fakeHealth{})
	rec := s.do(http.MethodPost, "/api/projects/p1/sync", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if len(s.queue.jobs) != 0 {
		t.Fatal("job queued without auth")
	}
	entry := s.hook.LastEntry()
	if entry == nil || entry.Message != "sync.request.metrics" || entry.Data["error_stage"] != "auth" {
		t.Fatalf("expected auth failure metrics, got %+v", entry)
	}
}

func TestEnqueueFailure(t *testing.T) {
	s := newServer(t, fakeHealth{})
	s.queue.err = errors.New("queue down")
	rec := s.do(http.MethodPost, "/api/projects/p1/sync", "", true)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	var found bool
	for _, e := range s.hook.AllEntries() {
		if e.Message == "sync.request.metrics" {
			found = true
			if e.Data["error_stage"] != "enqueue" || e.Data["job_type"] != domain.JobSyncProject || e.Data["status"] != http.StatusInternalServerError {
				t.Fatalf("unexpected metrics fields %v", e.Data)
			}
		}
	}
	if !found {
		t.Fatal("expected metrics log line")
	}
}

func TestHealth(t *testing.T) {
	h := syncer.Health{Total: 4, Counts: map[string]int{"synced": 3, "sync_error": 1}, SuccessRate: 0.75, BoardReachable: true}
	s := newServer(t, fakeHealth{h: h})
	rec := s.do(http.MethodGet, "/api/sync/health", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var got syncer.Health
	if err := sonic.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Total != 4 || got.Counts["synced"] != 3 || got.SuccessRate != 0.75 || !got.BoardReachable {
		t.Fatalf("unexpected health %+v", got)
	}
	if len(s.queue.jobs) != 0 {
		t.Fatal("health must not queue jobs")
	}
}

func TestHealthError(t *testing.T) {
	s := newServer(t, fakeHealth{err: errors.New("table down")})
	if rec := s.do(http.MethodGet, "/api/sync/health", "", true); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	s := newServer(t, fakeHealth{})
	if rec := s.do(http.MethodGet, "/healthz", "", false); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
