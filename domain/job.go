package domain

import "github.com/bytedance/sonic"

const (
	JobSyncProject       = "sync_project"
	JobForceResync       = "force_resync"
	JobAddStage          = "add_stage"
	JobRemoveCard        = "remove_card"
	JobRetryFailed       = "retry_failed"
	JobCleanupDuplicates = "cleanup_duplicates"
)

// Job is a unit of work placed on the jobs queue.
type Job struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	ProjectID string                 `json:"projectId,omitempty"`
	BoardID   string                 `json:"boardId,omitempty"`
	Payload   sonic.NoCopyRawMessage `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// AddStagePayload carries the project name used to rediscover frames when the
// worker has no cached row for the project.
type AddStagePayload struct {
	ProjectName string `json:"projectName"`
}

// JobResult is published once a job has been handled.
type JobResult struct {
	JobID     string `json:"jobId"`
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}
