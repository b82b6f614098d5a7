package storage

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"board-sync/domain"
)

type fakeTable struct {
	mu         sync.Mutex
	rows       map[string]map[string]any
	versions   map[string]int
	conflicts  int
	lastFilter string
	writes     int
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]map[string]any{}, versions: map[string]int{}}
}

func (f *fakeTable) put(t *testing.T, ent projectEntity) {
	t.Helper()
	data, err := sonic.ConfigStd.Marshal(ent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := sonic.ConfigStd.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	f.rows[ent.RowKey] = m
	f.versions[ent.RowKey]++
}

func (f *fakeTable) row(t *testing.T, id string) projectEntity {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := sonic.ConfigStd.Marshal(f.rows[id])
	var ent projectEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return ent
}

func (f *fakeTable) GetEntity(_ context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[rk]
	if !ok || pk != projectPartition {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}
	}
	data, _ := sonic.ConfigStd.Marshal(m)
	return aztables.GetEntityResponse{ETag: azcore.ETag(strconv.Itoa(f.versions[rk])), Value: data}, nil
}

func (f *fakeTable) NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	f.mu.Lock()
	if o != nil && o.Filter != nil {
		f.lastFilter = *o.Filter
	}
	var entities [][]byte
	for _, m := range f.rows {
		data, _ := sonic.ConfigStd.Marshal(m)
		entities = append(entities, data)
	}
	f.mu.Unlock()
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(context.Context, *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			return aztables.ListEntitiesResponse{Entities: entities}, nil
		},
	})
}

func (f *fakeTable) UpdateEntity(_ context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var patch map[string]any
	if err := sonic.ConfigStd.Unmarshal(entity, &patch); err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	rk, _ := patch["RowKey"].(string)
	if f.conflicts > 0 {
		f.conflicts--
		f.versions[rk]++
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusPreconditionFailed, ErrorCode: "UpdateConditionNotSatisfied"}
	}
	if o == nil || o.IfMatch == nil || string(*o.IfMatch) != strconv.Itoa(f.versions[rk]) {
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusPreconditionFailed}
	}
	for k, v := range patch {
		f.rows[rk][k] = v
	}
	f.versions[rk]++
	f.writes++
	return aztables.UpdateEntityResponse{}, nil
}

func seededStorage(t *testing.T) (*Storage, *fakeTable) {
	t.Helper()
	ft := newFakeTable()
	ft.put(t, projectEntity{
		PartitionKey:   projectPartition,
		RowKey:         "p1",
		Name:           "Launch",
		Status:         "review",
		Priority:       "high",
		DueDate:        "2025-04-01",
		ClientName:     "Acme",
		Briefing:       `{"goals":"Grow","creative_direction":"Bold"}`,
		WasReviewed:    true,
		SyncStatus:     "sync_error",
		SyncRetryCount: 2,
		SyncError:      "timeout: slow",
	})
	return &Storage{projects: ft, now: time.Now}, ft
}

func TestGetProjectDecodesEntity(t *testing.T) {
	s, _ := seededStorage(t)
	p, err := s.GetProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "Launch" || p.Status != domain.StatusReview || p.Priority != domain.PriorityHigh || !p.WasReviewed {
		t.Fatalf("unexpected project %+v", p)
	}
	if p.DueDate == nil || !p.DueDate.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due date %v", p.DueDate)
	}
	if p.Briefing["creative_direction"] != "Bold" || !p.HasBriefing() {
		t.Fatalf("unexpected briefing %v", p.Briefing)
	}
	if p.SyncStatus != domain.SyncError || p.SyncRetryCount != 2 {
		t.Fatalf("unexpected sync state %+v", p)
	}

	if _, err := s.GetProject(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetryFilter(t *testing.T) {
	got := retryFilter([]domain.SyncStatus{domain.SyncPending, domain.SyncError}, 3)
	want := "PartitionKey eq 'project' and (SyncStatus eq 'pending' or SyncStatus eq 'sync_error') and SyncRetryCount lt 3"
	if got != want {
		t.Fatalf("retryFilter = %q, want %q", got, want)
	}
	if q := quote("o'brien"); q != "'o''brien'" {
		t.Fatalf("quote = %q", q)
	}
}

func TestListProjectsForRetryUsesFilter(t *testing.T) {
	s, ft := seededStorage(t)
	ps, err := s.ListProjectsForRetry(context.Background(), []domain.SyncStatus{domain.SyncError}, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ps) != 1 || ps[0].ID != "p1" {
		t.Fatalf("unexpected projects %+v", ps)
	}
	if ft.lastFilter != retryFilter([]domain.SyncStatus{domain.SyncError}, 3) {
		t.Fatalf("unexpected filter %q", ft.lastFilter)
	}
}

func TestUpdateSyncStatusMergesSyncFields(t *testing.T) {
	s, ft := seededStorage(t)
	ctx := context.Background()
	card, frame, empty := "card-1", "frame-1", ""
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := s.UpdateSyncStatus(ctx, "p1", domain.SyncStatusUpdate{Status: domain.SyncSynced, CardID: &card, FrameID: &frame, Error: &empty, SyncedAt: &at}); err != nil {
		t.Fatalf("update: %v", err)
	}
	ent := ft.row(t, "p1")
	if ent.SyncStatus != "synced" || ent.MiroCardID != "card-1" || ent.MiroFrameID != "frame-1" || ent.SyncError != "" {
		t.Fatalf("unexpected entity %+v", ent)
	}
	if ent.SyncRetryCount != 2 || ent.Name != "Launch" {
		t.Fatalf("non-sync fields changed: %+v", ent)
	}
	if ent.LastSyncedAt != "2025-03-10T12:00:00Z" {
		t.Fatalf("unexpected synced at %q", ent.LastSyncedAt)
	}

	if err := s.UpdateSyncStatus(ctx, "p1", domain.SyncStatusUpdate{Status: domain.SyncError, IncrementRetry: true}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if ent := ft.row(t, "p1"); ent.SyncRetryCount != 3 || ent.MiroCardID != "card-1" {
		t.Fatalf("unexpected entity after increment %+v", ent)
	}
	if err := s.UpdateSyncStatus(ctx, "p1", domain.SyncStatusUpdate{Status: domain.SyncPending, ResetRetry: true}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ent := ft.row(t, "p1"); ent.SyncRetryCount != 0 || ent.SyncStatus != "pending" {
		t.Fatalf("unexpected entity after reset %+v", ent)
	}
}

func TestUpdateSyncStatusRetriesOnConflict(t *testing.T) {
	s, ft := seededStorage(t)
	ft.conflicts = 2
	if err := s.UpdateSyncStatus(context.Background(), "p1", domain.SyncStatusUpdate{Status: domain.SyncError, IncrementRetry: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ent := ft.row(t, "p1"); ent.SyncRetryCount != 3 || ft.writes != 1 {
		t.Fatalf("expected single increment, got %+v (writes %d)", ent, ft.writes)
	}

	ft.conflicts = maxUpdateAttempts
	err := s.UpdateSyncStatus(context.Background(), "p1", domain.SyncStatusUpdate{Status: domain.SyncSyncing})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
}

func TestUpdateSyncStatusMissingProject(t *testing.T) {
	s, _ := seededStorage(t)
	err := s.UpdateSyncStatus(context.Background(), "nope", domain.SyncStatusUpdate{Status: domain.SyncSyncing})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
