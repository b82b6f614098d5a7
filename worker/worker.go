package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// Queue is the jobs queue as seen by the worker.
type Queue interface {
	Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error)
	Delete(ctx context.Context, id, receipt string) error
}

// Worker polls the queue and hands each job to a Processor.
type Worker struct {
	queue    Queue
	proc     *Processor
	interval time.Duration
	logger   *log.Logger
}

func New(q Queue, proc *Processor, interval time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{queue: q, proc: proc, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled. It waits interval whenever the queue is
// empty or unreachable.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("sync worker started")
	for {
		handled, err := w.Poll(ctx)
		if ctx.Err() != nil {
			w.logger.Info("sync worker stopped")
			return nil
		}
		if err != nil {
			w.logger.WithError(err).Error("receive")
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return nil
		case <-time.After(w.interval):
		}
	}
}

// Poll takes at most one message off the queue. Messages are deleted once
// handled, whatever the job outcome: failed syncs are retried from their
// stored state, not by redelivery. A job interrupted by shutdown stays queued.
func (w *Worker) Poll(ctx context.Context) (bool, error) {
	msg, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}
	if msg.MessageID == nil || msg.PopReceipt == nil {
		return false, errors.New("dequeued message without id or receipt")
	}

	var job domain.Job
	if msg.MessageText == nil {
		w.logger.WithField("message", *msg.MessageID).Warn("dropping empty message")
	} else if err := sonic.ConfigStd.UnmarshalFromString(*msg.MessageText, &job); err != nil {
		w.logger.WithError(err).WithField("message", *msg.MessageID).Warn("dropping undecodable job")
	} else {
		w.proc.Handle(ctx, job)
		if ctx.Err() != nil {
			return true, nil
		}
	}

	if err := w.queue.Delete(context.WithoutCancel(ctx), *msg.MessageID, *msg.PopReceipt); err != nil {
		w.logger.WithError(err).WithField("message", *msg.MessageID).Error("delete message")
	}
	return true, nil
}
