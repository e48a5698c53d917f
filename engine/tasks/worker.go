package tasks

import (
	"context"
	"log/slog"

	"github.com/clausemind/clausemind/engine/pipeline"
	"github.com/clausemind/clausemind/pkg/storage"
)

// Worker executes queued ingestion jobs: fetch the stored document,
// run it through the pipeline, and record the outcome in the status
// store.
type Worker struct {
	pipeline *pipeline.Pipeline
	store    storage.Store
	status   *StatusStore
	registry *Registry
	logger   *slog.Logger
}

// NewWorker creates a Worker. A nil registry skips document listing
// updates; a nil logger falls back to slog.Default().
func NewWorker(p *pipeline.Pipeline, store storage.Store, status *StatusStore, registry *Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{pipeline: p, store: store, status: status, registry: registry, logger: logger}
}

// Handle processes one job. Failures are recorded on the task rather
// than returned; the queue has nothing useful to do with an error.
func (w *Worker) Handle(ctx context.Context, job Job) {
	w.status.MarkProcessing(job.TaskID)

	data, err := w.store.Fetch(ctx, job.Locator)
	if err != nil {
		w.logger.Error("job fetch failed", "task_id", job.TaskID, "err", err)
		w.status.MarkFailed(job.TaskID, err.Error())
		return
	}

	chunks, err := w.pipeline.Ingest(ctx, data, job.FileID, job.Filename)
	if err != nil {
		w.logger.Error("job ingest failed", "task_id", job.TaskID, "err", err)
		w.status.MarkFailed(job.TaskID, err.Error())
		return
	}

	w.status.MarkCompleted(job.TaskID, chunks)
	if w.registry != nil {
		w.registry.Put(job.FileID, job.Filename, job.SizeBytes, chunks)
	}
	w.logger.Info("job completed", "task_id", job.TaskID, "chunks", chunks)
}
