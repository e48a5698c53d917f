package tasks

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/clausemind/clausemind/pkg/natsutil"
)

// SubjectIngest is the NATS subject ingestion jobs travel on.
const SubjectIngest = "clausemind.ingest"

// Queue carries ingestion jobs to a worker.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// NATSQueue publishes jobs over NATS so workers can live in any process
// attached to the same server.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
}

// NewNATSQueue creates a queue on the given subject. An empty subject
// falls back to SubjectIngest.
func NewNATSQueue(nc *nats.Conn, subject string) *NATSQueue {
	if subject == "" {
		subject = SubjectIngest
	}
	return &NATSQueue{nc: nc, subject: subject}
}

// Enqueue implements Queue.
func (q *NATSQueue) Enqueue(ctx context.Context, job Job) error {
	if err := natsutil.Publish(ctx, q.nc, q.subject, job); err != nil {
		return fmt.Errorf("tasks: publish job %s: %w", job.TaskID, err)
	}
	return nil
}

// Subscribe attaches a handler for jobs on this queue's subject.
func (q *NATSQueue) Subscribe(handler func(context.Context, Job)) (*nats.Subscription, error) {
	return natsutil.Subscribe(q.nc, q.subject, handler)
}

// ChanQueue is an in-process queue backed by a buffered channel. It
// serves single-binary deployments without a NATS server, and tests.
type ChanQueue struct {
	jobs chan Job
}

// NewChanQueue creates a queue with the given buffer size.
func NewChanQueue(buffer int) *ChanQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanQueue{jobs: make(chan Job, buffer)}
}

// Enqueue implements Queue. It blocks when the buffer is full until
// space frees up or ctx is done.
func (q *ChanQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks: enqueue job %s: %w", job.TaskID, ctx.Err())
	}
}

// Run consumes jobs until ctx is done, invoking handler for each.
func (q *ChanQueue) Run(ctx context.Context, handler func(context.Context, Job)) {
	for {
		select {
		case job := <-q.jobs:
			handler(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}
