package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = rc.Close()
		m.Close()
	})
	return rc, m
}

func TestRedisDeduperClaim(t *testing.T) {
	rc, m := setupRedis(t)
	d := NewRedisDeduper(rc, time.Minute)
	ctx := context.Background()

	id, claimed, err := d.Claim(ctx, "user1", "k1", "job-a")
	if err != nil || !claimed || id != "job-a" {
		t.Fatalf("first claim: id=%s claimed=%v err=%v", id, claimed, err)
	}
	id, claimed, err = d.Claim(ctx, "user1", "k1", "job-b")
	if err != nil || claimed || id != "job-a" {
		t.Fatalf("second claim: id=%s claimed=%v err=%v", id, claimed, err)
	}
	if _, claimed, _ := d.Claim(ctx, "user2", "k1", "job-c"); !claimed {
		t.Fatal("keys must be scoped per user")
	}
	if ttl := m.TTL(idempotencyPrefix + "user1:k1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := d.Release(ctx, "user1", "k1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, claimed, _ := d.Claim(ctx, "user1", "k1", "job-d"); !claimed {
		t.Fatal("expected key to be claimable after release")
	}
}

func TestEnqueueHonoursIdempotencyKey(t *testing.T) {
	rc, _ := setupRedis(t)
	logger, _ := test.NewNullLogger()
	q := &fakeQueue{}
	e := echo.New()
	Register(e, Deps{Queue: q, Health: fakeHealth{}, Auth: NewTestAuth(testSecret), Deduper: NewRedisDeduper(rc, time.Minute), Logger: logger})
	bearer := "Bearer " + signToken(t, testSecret, validClaims())

	post := func() string {
		req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/sync", nil)
		req.Header.Set(echo.HeaderAuthorization, bearer)
		req.Header.Set(HeaderIdempotencyKey, "click-1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202 got %d", rec.Code)
		}
		var resp jobResponse
		if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		return resp.JobID
	}

	first, second := post(), post()
	if first == "" || first != second {
		t.Fatalf("expected the same job id, got %q and %q", first, second)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected one queued job, got %d", len(q.jobs))
	}
	if q.jobs[0].ID != first {
		t.Fatalf("queued job id %q does not match response %q", q.jobs[0].ID, first)
	}
}

func TestEnqueueFailureReleasesIdempotencyKey(t *testing.T) {
	rc, m := setupRedis(t)
	logger, _ := test.NewNullLogger()
	q := &fakeQueue{err: context.DeadlineExceeded}
	e := echo.New()
	Register(e, Deps{Queue: q, Health: fakeHealth{}, Auth: NewTestAuth(testSecret), Deduper: NewRedisDeduper(rc, time.Minute), Logger: logger})

	req := httptest.NewRequest(http.MethodPost, "/api/sync/retry", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, testSecret, validClaims()))
	req.Header.Set(HeaderIdempotencyKey, "click-2")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if m.Exists(idempotencyPrefix + "user-123:click-2") {
		t.Fatal("expected key to be released")
	}
}
