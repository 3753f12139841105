package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/doclane/doclane/internal/ingest"
	"github.com/doclane/doclane/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// envelope builds a push delivery body around the given payload JSON.
func envelope(t *testing.T, payload string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString([]byte(payload)),
			"messageId": "m-1",
		},
		"subscription": "projects/p/subscriptions/ingest",
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestDecodeJob(t *testing.T) {
	tenant := uuid.New()
	document := uuid.New()
	valid := fmt.Sprintf(`{"tenant_id":%q,"user_id":"u-1","document_id":%q,"storage_uri":"tenant/doc.txt"}`,
		tenant, document)

	t.Run("valid envelope", func(t *testing.T) {
		job, err := DecodeJob(envelope(t, valid))
		if err != nil {
			t.Fatalf("DecodeJob() error = %v", err)
		}
		if job.TenantID != tenant || job.DocumentID != document || job.StorageURI != "tenant/doc.txt" {
			t.Errorf("DecodeJob() = %+v", job)
		}
	})

	tests := []struct {
		name    string
		body    []byte
		wantErr error
	}{
		{"not json", []byte("not json"), ErrMalformedEnvelope},
		{"empty data", []byte(`{"message":{"data":""}}`), ErrMalformedEnvelope},
		{"payload not json", nil, ErrMalformedEnvelope},
		{"missing tenant", nil, ErrMissingTenant},
		{"bad tenant uuid", nil, ErrMissingTenant},
		{"missing document", nil, ErrMissingDocument},
		{"missing storage uri", nil, ErrMissingStorageURI},
	}
	payloads := map[string]string{
		"payload not json":    "{broken",
		"missing tenant":      fmt.Sprintf(`{"document_id":%q,"storage_uri":"x"}`, document),
		"bad tenant uuid":     fmt.Sprintf(`{"tenant_id":"nope","document_id":%q,"storage_uri":"x"}`, document),
		"missing document":    fmt.Sprintf(`{"tenant_id":%q,"storage_uri":"x"}`, tenant),
		"missing storage uri": fmt.Sprintf(`{"tenant_id":%q,"document_id":%q}`, tenant, document),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if payload, ok := payloads[tt.name]; ok {
				body = envelope(t, payload)
			}
			_, err := DecodeJob(body)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeJob() error = %v, want %v", err, tt.wantErr)
			}
			if !IsPermanent(err) {
				t.Errorf("IsPermanent(%v) = false, want true", err)
			}
		})
	}
}

// gateRunner blocks inside Run until released, so tests can observe which
// jobs are in flight.
type gateRunner struct {
	mu      sync.Mutex
	inside  map[uuid.UUID]int
	entered chan uuid.UUID
	release chan struct{}
}

func newGateRunner() *gateRunner {
	return &gateRunner{
		inside:  make(map[uuid.UUID]int),
		entered: make(chan uuid.UUID, 16),
		release: make(chan struct{}),
	}
}

func (g *gateRunner) Run(ctx context.Context, job ingest.Job) (ingest.Stats, error) {
	g.mu.Lock()
	g.inside[job.DocumentID]++
	overlap := g.inside[job.DocumentID] > 1
	g.mu.Unlock()

	g.entered <- job.DocumentID
	<-g.release

	g.mu.Lock()
	g.inside[job.DocumentID]--
	g.mu.Unlock()

	if overlap {
		return ingest.Stats{}, errors.New("concurrent runs for one document")
	}
	return ingest.Stats{StoredChunks: 1}, nil
}

func jobBody(t *testing.T, tenant, document uuid.UUID) []byte {
	t.Helper()
	return envelope(t, fmt.Sprintf(`{"tenant_id":%q,"document_id":%q,"storage_uri":"doc.txt"}`,
		tenant, document))
}

func TestWorker_SerializesSameDocument(t *testing.T) {
	runner := newGateRunner()
	worker := NewWorker(runner, log.NewNop())
	tenant := uuid.New()
	document := uuid.New()
	body := jobBody(t, tenant, document)

	ctx := context.Background()
	errs := make(chan error, 2)
	for range 2 {
		go func() {
			errs <- worker.Process(ctx, body)
		}()
	}

	// Exactly one delivery enters; the duplicate waits on the lock.
	<-runner.entered
	select {
	case <-runner.entered:
		t.Fatal("duplicate delivery ran concurrently with the first")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	<-runner.entered
	for range 2 {
		if err := <-errs; err != nil {
			t.Errorf("Process() error = %v", err)
		}
	}
}

func TestWorker_DifferentDocumentsRunConcurrently(t *testing.T) {
	runner := newGateRunner()
	worker := NewWorker(runner, log.NewNop())
	tenant := uuid.New()

	ctx := context.Background()
	errs := make(chan error, 2)
	for range 2 {
		body := jobBody(t, tenant, uuid.New())
		go func() {
			errs <- worker.Process(ctx, body)
		}()
	}

	// Both must be in flight at once before anything is released.
	for i := range 2 {
		select {
		case <-runner.entered:
		case <-time.After(time.Second):
			t.Fatalf("delivery %d never started", i)
		}
	}

	close(runner.release)
	for range 2 {
		if err := <-errs; err != nil {
			t.Errorf("Process() error = %v", err)
		}
	}
}

func TestWorker_InvalidDeliveryNeverRuns(t *testing.T) {
	runner := newGateRunner()
	worker := NewWorker(runner, log.NewNop())

	err := worker.Process(context.Background(), []byte("garbage"))
	if !IsPermanent(err) {
		t.Fatalf("Process() error = %v, want permanent validation error", err)
	}
	select {
	case id := <-runner.entered:
		t.Fatalf("runner started for invalid delivery: %s", id)
	default:
	}
}

func TestWorker_RunErrorPropagates(t *testing.T) {
	wantErr := errors.New("pipeline failed")
	worker := NewWorker(runnerFunc(func(ctx context.Context, job ingest.Job) (ingest.Stats, error) {
		return ingest.Stats{}, wantErr
	}), log.NewNop())

	body := jobBody(t, uuid.New(), uuid.New())
	if err := worker.Process(context.Background(), body); !errors.Is(err, wantErr) {
		t.Fatalf("Process() error = %v, want pipeline error", err)
	}
}

func TestWorker_DimensionMismatchIsPermanent(t *testing.T) {
	runErr := &ingest.StageError{
		Stage: ingest.StageEmbed,
		Err:   fmt.Errorf("batch 1/3: %w", ingest.ErrDimensionMismatch),
	}
	worker := NewWorker(runnerFunc(func(ctx context.Context, job ingest.Job) (ingest.Stats, error) {
		return ingest.Stats{}, runErr
	}), log.NewNop())

	body := jobBody(t, uuid.New(), uuid.New())
	err := worker.Process(context.Background(), body)
	if !errors.Is(err, ingest.ErrDimensionMismatch) {
		t.Fatalf("Process() error = %v, want dimension mismatch", err)
	}
	if !IsPermanent(err) {
		t.Error("IsPermanent() = false for a dimension mismatch; the broker would redeliver forever")
	}
}

type runnerFunc func(ctx context.Context, job ingest.Job) (ingest.Stats, error)

func (f runnerFunc) Run(ctx context.Context, job ingest.Job) (ingest.Stats, error) {
	return f(ctx, job)
}
