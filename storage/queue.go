package storage

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"board-sync/domain"
)

// Enqueue places job on the jobs queue and returns its id. An id and a
// timestamp are assigned when job carries none.
func (s *Storage) Enqueue(ctx context.Context, job domain.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Timestamp == 0 {
		job.Timestamp = s.now().UnixMilli()
	}
	data, err := sonic.ConfigStd.Marshal(job)
	if err != nil {
		return "", err
	}
	if _, err := s.jobs.EnqueueMessage(ctx, string(data), nil); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Dequeue retrieves a single message from the jobs queue.
func (s *Storage) Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.jobs.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// Delete removes a processed message from the queue.
func (s *Storage) Delete(ctx context.Context, id, receipt string) error {
	_, err := s.jobs.DeleteMessage(ctx, id, receipt, nil)
	return err
}
