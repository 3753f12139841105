// Package documents manages document lifecycle records.
//
// A document row is created when the upload path registers a file and is
// mutated only by the ingestion pipeline, which drives it through
// uploaded -> processing -> completed | failed. Every operation requires the
// tenant id, so a query that skips the tenant filter cannot be written.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the document lifecycle state.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrNotFound indicates no document matches the (tenant, id) pair.
var ErrNotFound = errors.New("document not found")

// Document identifies a source file and its ingestion state.
type Document struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	StorageURI   string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time

	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
}

// Store persists document records in PostgreSQL.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a document store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Register creates a document row in the uploaded state. The upload path is
// an external collaborator in production; the CLI uses this directly.
func (s *Store) Register(ctx context.Context, tenantID, id uuid.UUID, storageURI string) error {
	const q = `
		INSERT INTO documents (id, tenant_id, storage_uri, status)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, id, tenantID, storageURI, StatusUploaded); err != nil {
		return fmt.Errorf("registering document %s: %w", id, err)
	}

	s.logger.Debug("registered document", "document_id", id, "tenant_id", tenantID)
	return nil
}

// Get fetches a document scoped to the tenant.
func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Document, error) {
	const q = `
		SELECT id, tenant_id, storage_uri, status, COALESCE(error_message, ''),
		       created_at, processing_started_at, processing_completed_at
		FROM documents
		WHERE tenant_id = $1 AND id = $2`

	var doc Document
	err := s.pool.QueryRow(ctx, q, tenantID, id).Scan(
		&doc.ID, &doc.TenantID, &doc.StorageURI, &doc.Status, &doc.ErrorMessage,
		&doc.CreatedAt, &doc.ProcessingStartedAt, &doc.ProcessingCompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Document{}, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return doc, nil
}

// MarkProcessing transitions the document into the processing state and
// records the start time. A previous failure's error message is cleared.
func (s *Store) MarkProcessing(ctx context.Context, tenantID, id uuid.UUID) error {
	const q = `
		UPDATE documents
		SET status = $3, error_message = NULL,
		    processing_started_at = now(), processing_completed_at = NULL
		WHERE tenant_id = $1 AND id = $2`

	return s.transition(ctx, q, tenantID, id, StatusProcessing)
}

// MarkCompleted transitions the document into the completed state.
func (s *Store) MarkCompleted(ctx context.Context, tenantID, id uuid.UUID) error {
	const q = `
		UPDATE documents
		SET status = $3, processing_completed_at = now()
		WHERE tenant_id = $1 AND id = $2`

	return s.transition(ctx, q, tenantID, id, StatusCompleted)
}

// MarkFailed transitions the document into the failed state and persists the
// failure message for operators.
func (s *Store) MarkFailed(ctx context.Context, tenantID, id uuid.UUID, msg string) error {
	const q = `
		UPDATE documents
		SET status = $3, error_message = $4, processing_completed_at = now()
		WHERE tenant_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, q, tenantID, id, StatusFailed, msg)
	if err != nil {
		return fmt.Errorf("marking document %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Debug("document marked", "document_id", id, "status", StatusFailed, "error_message", msg)
	return nil
}

func (s *Store) transition(ctx context.Context, query string, tenantID, id uuid.UUID, status Status) error {
	tag, err := s.pool.Exec(ctx, query, tenantID, id, status)
	if err != nil {
		return fmt.Errorf("marking document %s %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Debug("document marked", "document_id", id, "status", status)
	return nil
}
