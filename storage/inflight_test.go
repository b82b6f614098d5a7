package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"board-sync/domain"
	"board-sync/reconcile"
)

func newTestTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewRedisTracker(rc, time.Minute), m
}

func TestRedisTrackerInflight(t *testing.T) {
	tr, m := newTestTracker(t)
	ctx := context.Background()

	ok, err := tr.Begin(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("first begin: %v %v", ok, err)
	}
	if ok, _ := tr.Begin(ctx, "p1"); ok {
		t.Fatalf("second begin should report in flight")
	}
	if ttl := m.TTL(inflightPrefix + "p1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if err := tr.End(ctx, "p1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if ok, _ := tr.Begin(ctx, "p1"); !ok {
		t.Fatalf("begin after end should succeed")
	}

	m.FastForward(2 * time.Minute)
	if ok, _ := tr.Begin(ctx, "p1"); !ok {
		t.Fatalf("expired marker should not block")
	}
}

func TestRedisTrackerPlacements(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	if p, err := tr.LastKnown(ctx, "p1"); err != nil || p != nil {
		t.Fatalf("expected no placement, got %v %v", p, err)
	}
	want := reconcile.Placement{ProjectID: "p1", CardID: "c1", Column: domain.StatusDone, X: 10, Y: 20, Created: true}
	if err := tr.Remember(ctx, want); err != nil {
		t.Fatalf("remember: %v", err)
	}
	got, err := tr.LastKnown(ctx, "p1")
	if err != nil || got == nil {
		t.Fatalf("last known: %v %v", got, err)
	}
	want.Created = false
	if *got != want {
		t.Fatalf("placement %+v, want %+v", *got, want)
	}
	if err := tr.Forget(ctx, "p1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if p, _ := tr.LastKnown(ctx, "p1"); p != nil {
		t.Fatalf("placement not forgotten")
	}
}
