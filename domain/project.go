package domain

import (
	"strings"
	"time"
)

// Status is the workflow status of a project. Every status maps to exactly one
// timeline column.
type Status string

const (
	StatusOverdue    Status = "overdue"
	StatusUrgent     Status = "urgent"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Statuses lists workflow statuses in column order, left to right.
var Statuses = []Status{StatusOverdue, StatusUrgent, StatusInProgress, StatusReview, StatusDone}

// Valid reports whether s is one of the known workflow statuses.
func (s Status) Valid() bool {
	return s.Index() >= 0
}

// Index returns the column index of s or -1 when s is unknown.
func (s Status) Index() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// Label is the upper-case text shown on column headers and status badges.
func (s Status) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Label is the upper-case text shown on priority badges. Unknown priorities
// render as MEDIUM.
func (p Priority) Label() string {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityLow:
		return strings.ToUpper(string(p))
	default:
		return strings.ToUpper(string(PriorityMedium))
	}
}

// SyncStatus tracks the last known outcome of mirroring a project onto the
// board.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "sync_error"
)

// SyncStatuses lists every sync status, used for health aggregation.
var SyncStatuses = []SyncStatus{SyncPending, SyncSyncing, SyncSynced, SyncError}

// Project is the domain record mirrored on the board. Only the sync fields are
// written by this service.
type Project struct {
	ID             string
	Name           string
	Status         Status
	Priority       Priority
	DueDate        *time.Time
	ClientID       string
	ClientName     string
	Briefing       map[string]string
	WasReviewed    bool
	WasApproved    bool
	SyncStatus     SyncStatus
	SyncRetryCount int
	SyncError      string
	MiroCardID     string
	MiroFrameID    string
	LastSyncedAt   *time.Time
}

// HasBriefing reports whether the project carries any non-empty briefing field.
func (p Project) HasBriefing() bool {
	for _, v := range p.Briefing {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Validate checks the fields the board rendering depends on.
func (p Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ValidationError("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return ValidationError("project %s: name is required", p.ID)
	}
	if !p.Status.Valid() {
		return ValidationError("project %s: invalid status %q", p.ID, p.Status)
	}
	return nil
}

// SyncStatusUpdate is the single write the orchestrator performs on a project.
// Nil pointers leave the stored value untouched.
type SyncStatusUpdate struct {
	Status         SyncStatus
	CardID         *string
	FrameID        *string
	Error          *string
	IncrementRetry bool
	ResetRetry     bool
	SyncedAt       *time.Time
}
