package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"board-sync/domain"
)

const (
	edmDateTime = "Edm.DateTime"
	// maxUpdateAttempts bounds the optimistic concurrency loop in
	// UpdateSyncStatus.
	maxUpdateAttempts = 5
)

type projectEntity struct {
	PartitionKey   string `json:"PartitionKey"`
	RowKey         string `json:"RowKey"`
	Name           string `json:"Name"`
	Status         string `json:"Status"`
	Priority       string `json:"Priority"`
	DueDate        string `json:"DueDate,omitempty"`
	ClientID       string `json:"ClientId,omitempty"`
	ClientName     string `json:"ClientName,omitempty"`
	Briefing       string `json:"Briefing,omitempty"`
	WasReviewed    bool   `json:"WasReviewed"`
	WasApproved    bool   `json:"WasApproved"`
	SyncStatus     string `json:"SyncStatus"`
	SyncRetryCount int    `json:"SyncRetryCount"`
	SyncError      string `json:"SyncError,omitempty"`
	MiroCardID     string `json:"MiroCardId,omitempty"`
	MiroFrameID    string `json:"MiroFrameId,omitempty"`
	LastSyncedAt   string `json:"LastSyncedAt,omitempty"`
}

// syncStatusEntity is the merge payload written by UpdateSyncStatus. Only
// sync fields are ever written by this service.
type syncStatusEntity struct {
	PartitionKey     string  `json:"PartitionKey"`
	RowKey           string  `json:"RowKey"`
	SyncStatus       string  `json:"SyncStatus"`
	SyncRetryCount   int     `json:"SyncRetryCount"`
	SyncError        *string `json:"SyncError,omitempty"`
	MiroCardID       *string `json:"MiroCardId,omitempty"`
	MiroFrameID      *string `json:"MiroFrameId,omitempty"`
	LastSyncedAt     *string `json:"LastSyncedAt,omitempty"`
	LastSyncedAtType *string `json:"LastSyncedAt@odata.type,omitempty"`
}

func decodeProject(data []byte) (domain.Project, error) {
	var ent projectEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:             ent.RowKey,
		Name:           ent.Name,
		Status:         domain.Status(ent.Status),
		Priority:       domain.Priority(ent.Priority),
		ClientID:       ent.ClientID,
		ClientName:     ent.ClientName,
		WasReviewed:    ent.WasReviewed,
		WasApproved:    ent.WasApproved,
		SyncStatus:     domain.SyncStatus(ent.SyncStatus),
		SyncRetryCount: ent.SyncRetryCount,
		SyncError:      ent.SyncError,
		MiroCardID:     ent.MiroCardID,
		MiroFrameID:    ent.MiroFrameID,
	}
	if p.SyncStatus == "" {
		p.SyncStatus = domain.SyncPending
	}
	if ent.DueDate != "" {
		due, err := parseDate(ent.DueDate)
		if err != nil {
			return domain.Project{}, fmt.Errorf("project %s: due date: %w", ent.RowKey, err)
		}
		p.DueDate = &due
	}
	if ent.LastSyncedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, ent.LastSyncedAt); err == nil {
			p.LastSyncedAt = &ts
		}
	}
	if ent.Briefing != "" {
		if err := sonic.ConfigStd.UnmarshalFromString(ent.Briefing, &p.Briefing); err != nil {
			return domain.Project{}, fmt.Errorf("project %s: briefing: %w", ent.RowKey, err)
		}
	}
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// GetProject returns domain.ErrNotFound when no project has id.
func (s *Storage) GetProject(ctx context.Context, id string) (domain.Project, error) {
	resp, err := s.projects.GetEntity(ctx, projectPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return domain.Project{}, err
	}
	return decodeProject(resp.Value)
}

// ListProjects returns every project, used for health aggregation.
func (s *Storage) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.list(ctx, "PartitionKey eq "+quote(projectPartition))
}

// ListProjectsForRetry returns projects in one of statuses whose retry counter
// is below maxRetry.
func (s *Storage) ListProjectsForRetry(ctx context.Context, statuses []domain.SyncStatus, maxRetry int) ([]domain.Project, error) {
	return s.list(ctx, retryFilter(statuses, maxRetry))
}

func (s *Storage) list(ctx context.Context, filter string) ([]domain.Project, error) {
	pager := s.projects.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	projects := []domain.Project{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			p, err := decodeProject(e)
			if err != nil {
				return nil, err
			}
			projects = append(projects, p)
		}
	}
	return projects, nil
}

// retryFilter builds the OData filter selecting retry candidates.
func retryFilter(statuses []domain.SyncStatus, maxRetry int) string {
	var b strings.Builder
	b.WriteString("PartitionKey eq ")
	b.WriteString(quote(projectPartition))
	if len(statuses) > 0 {
		b.WriteString(" and (")
		for i, st := range statuses {
			if i > 0 {
				b.WriteString(" or ")
			}
			b.WriteString("SyncStatus eq ")
			b.WriteString(quote(string(st)))
		}
		b.WriteString(")")
	}
	b.WriteString(" and SyncRetryCount lt ")
	b.WriteString(strconv.Itoa(maxRetry))
	return b.String()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// applySyncUpdate computes the merge payload for upd on top of the stored
// entity.
func applySyncUpdate(cur projectEntity, upd domain.SyncStatusUpdate) syncStatusEntity {
	out := syncStatusEntity{
		PartitionKey:   cur.PartitionKey,
		RowKey:         cur.RowKey,
		SyncStatus:     string(upd.Status),
		SyncRetryCount: cur.SyncRetryCount,
		SyncError:      upd.Error,
		MiroCardID:     upd.CardID,
		MiroFrameID:    upd.FrameID,
	}
	if upd.ResetRetry {
		out.SyncRetryCount = 0
	}
	if upd.IncrementRetry {
		out.SyncRetryCount++
	}
	if upd.SyncedAt != nil {
		ts := upd.SyncedAt.UTC().Format(time.RFC3339Nano)
		t := edmDateTime
		out.LastSyncedAt, out.LastSyncedAtType = &ts, &t
	}
	return out
}

// UpdateSyncStatus writes the sync fields of one project. The retry counter is
// read and written under the entity ETag; a concurrent writer causes a reread.
func (s *Storage) UpdateSyncStatus(ctx context.Context, id string, upd domain.SyncStatusUpdate) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		resp, err := s.projects.GetEntity(ctx, projectPartition, id, nil)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
			}
			return err
		}
		var cur projectEntity
		if err := sonic.ConfigStd.Unmarshal(resp.Value, &cur); err != nil {
			return err
		}
		payload, err := sonic.ConfigStd.Marshal(applySyncUpdate(cur, upd))
		if err != nil {
			return err
		}
		etag := resp.ETag
		_, err = s.projects.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge})
		if err == nil {
			return nil
		}
		if !isPreconditionFailed(err) {
			return err
		}
	}
	return fmt.Errorf("project %s: %w", id, domain.ErrConcurrencyConflict)
}
