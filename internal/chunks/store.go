// Package chunks persists embedded text chunks and serves tenant-scoped
// vector similarity search over them.
//
// Every method takes the tenant id as an explicit parameter, making it
// structurally impossible to read or write chunks without a tenant filter.
// The tenant filter is always part of the SQL statement itself, never an
// application-side post-filter, so similarity ranking can never observe
// another tenant's rows even transiently.
package chunks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store manages the document_chunks table.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a chunk store backed by the given pool. The pool must
// have pgvector types registered (see app.Setup).
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// DeleteForDocument removes all chunks of a document, returning the number
// of rows deleted. Called once at the start of (re-)ingestion so repeated
// job deliveries replace chunks instead of accumulating duplicates.
func (s *Store) DeleteForDocument(ctx context.Context, tenantID, documentID uuid.UUID) (int64, error) {
	const q = `DELETE FROM document_chunks WHERE tenant_id = $1 AND document_id = $2`

	tag, err := s.pool.Exec(ctx, q, tenantID, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for document %s: %w", documentID, err)
	}

	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("replaced existing chunks", "document_id", documentID, "deleted", n)
		return n, nil
	}
	return 0, nil
}

// InsertBatch persists one batch of chunks in a single transaction. The
// commit is a durable checkpoint: if a later batch fails, earlier batches
// stay persisted.
//
// The tenant and document ids on every row come from the arguments, not
// from the Chunk values, so a chunk can never be written under a different
// tenant than its document.
func (s *Store) InsertBatch(ctx context.Context, tenantID, documentID uuid.UUID, batch []Chunk) error {
	if len(batch) == 0 {
		return nil
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, tenant_id, chunk_index, content, token_count, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chunk batch transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	b := &pgx.Batch{}
	for _, c := range batch {
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %d: %w", c.Index, err)
		}
		b.Queue(q, id, documentID, tenantID, c.Index, c.Content, c.TokenCount,
			pgvector.NewVector(c.Embedding), metadataJSON)
	}

	br := tx.SendBatch(ctx, b)
	for range batch {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("inserting chunk batch for document %s: %w", documentID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing chunk batch for document %s: %w", documentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk batch for document %s: %w", documentID, err)
	}

	s.logger.Debug("persisted chunk batch", "document_id", documentID, "count", len(batch))
	return nil
}

// searchSQL ranks by cosine distance; similarity = 1 - distance. The tenant
// predicate lives in the same statement as the ordering.
const (
	searchAllSQL = `
		SELECT id, document_id, chunk_index, content, token_count, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`

	searchScopedSQL = `
		SELECT id, document_id, chunk_index, content, token_count, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE tenant_id = $2 AND document_id = ANY($4::uuid[])
		ORDER BY embedding <=> $1
		LIMIT $3`
)

// Search returns the chunks nearest to the query vector for one tenant,
// ordered by similarity descending. No matching chunks yields an empty
// slice, not an error.
func (s *Store) Search(ctx context.Context, tenantID uuid.UUID, query []float32, opts ...SearchOption) ([]Scored, error) {
	cfg := buildSearchConfig(opts)

	// Bound vector search latency; a slow index scan should not hold a
	// request open indefinitely.
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	vec := pgvector.NewVector(query)

	var rows pgx.Rows
	var err error
	if len(cfg.documents) > 0 {
		ids := make([]string, len(cfg.documents))
		for i, id := range cfg.documents {
			ids[i] = id.String()
		}
		rows, err = s.pool.Query(queryCtx, searchScopedSQL, vec, tenantID, cfg.limit, ids)
	} else {
		rows, err = s.pool.Query(queryCtx, searchAllSQL, vec, tenantID, cfg.limit)
	}
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	results := make([]Scored, 0, cfg.limit)
	for rows.Next() {
		var sc Scored
		var metadataJSON []byte
		err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.Index,
			&sc.Chunk.Content, &sc.Chunk.TokenCount, &metadataJSON,
			&sc.Chunk.CreatedAt, &sc.Similarity)
		if err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		sc.Chunk.TenantID = tenantID
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &sc.Chunk.Metadata); err != nil {
				s.logger.Warn("unparseable chunk metadata", "chunk_id", sc.Chunk.ID, "error", err)
			}
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	return results, nil
}

// CountForTenant reports how many chunks the tenant has indexed, across all
// documents. Zero distinguishes "nothing indexed yet" from "nothing
// relevant found".
func (s *Store) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	const q = `SELECT COUNT(*) FROM document_chunks WHERE tenant_id = $1`

	var count int64
	if err := s.pool.QueryRow(ctx, q, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks for tenant %s: %w", tenantID, err)
	}
	return count, nil
}

// ListForDocument returns a document's chunks in index order, embeddings
// omitted. Used for inspection and re-assembly.
func (s *Store) ListForDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]Chunk, error) {
	const q = `
		SELECT id, chunk_index, content, token_count, metadata, created_at
		FROM document_chunks
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY chunk_index`

	rows, err := s.pool.Query(ctx, q, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var result []Chunk
	for rows.Next() {
		c := Chunk{DocumentID: documentID, TenantID: tenantID}
		var metadataJSON []byte
		if err := rows.Scan(&c.ID, &c.Index, &c.Content, &c.TokenCount, &metadataJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				s.logger.Warn("unparseable chunk metadata", "chunk_id", c.ID, "error", err)
			}
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return result, nil
}
