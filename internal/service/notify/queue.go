package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/nkiryanov/escrow/internal/logger"
)

const deliveryMaxAttempts = 5

// DeliveryArgs is the job payload stored by the queue
type DeliveryArgs struct {
	Notification Notification `json:"notification"`
}

func (DeliveryArgs) Kind() string { return "notification_delivery" }

type inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Queue is a Notifier that persists notifications as background jobs
type Queue struct {
	client inserter
}

func NewQueue(client inserter) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Notify(ctx context.Context, n Notification) error {
	_, err := q.client.Insert(ctx, DeliveryArgs{Notification: n}, &river.InsertOpts{MaxAttempts: deliveryMaxAttempts})
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Sink receives serialized notifications for a user
type Sink interface {
	Deliver(userID string, payload []byte) int
}

// Worker pushes queued notifications to connected clients
type Worker struct {
	river.WorkerDefaults[DeliveryArgs]

	sink   Sink
	logger logger.Logger
}

func NewWorker(sink Sink, l logger.Logger) *Worker {
	return &Worker{sink: sink, logger: l}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[DeliveryArgs]) error {
	n := job.Args.Notification

	payload, err := json.Marshal(n)
	if err != nil {
		// Retrying won't fix a payload that can't be encoded
		return river.JobCancel(fmt.Errorf("encode notification: %w", err))
	}

	delivered := w.sink.Deliver(n.UserID.String(), payload)
	w.logger.Debug("notification delivered", "user_id", n.UserID, "kind", n.Kind, "connections", delivered)

	return nil
}
