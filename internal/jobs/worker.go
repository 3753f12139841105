package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/ingest"
)

// Runner ingests one document.
type Runner interface {
	Run(ctx context.Context, job ingest.Job) (ingest.Stats, error)
}

// Worker decodes deliveries and runs them through the pipeline, one run at
// a time per document id. Different documents run concurrently.
type Worker struct {
	runner Runner
	logger *slog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func NewWorker(runner Runner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		runner: runner,
		logger: logger,
		locks:  make(map[uuid.UUID]*docLock),
	}
}

// Process handles one delivery body. A permanent error (see IsPermanent)
// means the delivery is unfixable and should be acknowledged; any other
// error should be redelivered by the broker's retry policy.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	job, err := DecodeJob(body)
	if err != nil {
		w.logger.Warn("rejecting delivery", "error", err)
		return err
	}

	release := w.acquire(job.DocumentID)
	defer release()

	stats, err := w.runner.Run(ctx, job)
	if err != nil {
		return err
	}

	w.logger.Info("job processed",
		"document_id", job.DocumentID,
		"tenant_id", job.TenantID,
		"chunks", stats.StoredChunks)
	return nil
}

// acquire takes the per-document lock, creating it on first use and
// dropping it once no delivery holds or waits on it.
func (w *Worker) acquire(id uuid.UUID) (release func()) {
	w.mu.Lock()
	l := w.locks[id]
	if l == nil {
		l = &docLock{}
		w.locks[id] = l
	}
	l.refs++
	w.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, id)
		}
		w.mu.Unlock()
	}
}
