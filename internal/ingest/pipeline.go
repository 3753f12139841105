// Package ingest turns a stored document into persisted, embedded chunks.
//
// The pipeline runs fetch -> normalize -> chunk -> embed/persist for one
// document at a time, driving the document's status from processing to
// completed or failed. Embedding happens in bounded, strictly sequential
// batches; each persisted batch is a durable checkpoint. Re-ingesting a
// document first deletes its existing chunks, so at-least-once job delivery
// replaces rather than duplicates.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/doclane/doclane/internal/chunker"
	"github.com/doclane/doclane/internal/chunks"
)

// ObjectFetcher retrieves the raw bytes of a stored document.
type ObjectFetcher interface {
	Fetch(ctx context.Context, storageURI string) ([]byte, error)
}

// Normalized is plain text extracted from a document, with the rune offset
// at which each page starts. PageOffsets is empty for unpaginated sources.
type Normalized struct {
	Text        string
	PageOffsets []int
}

// Normalizer extracts plain text with page boundaries from raw bytes.
type Normalizer interface {
	Extract(ctx context.Context, raw []byte) (Normalized, error)
}

// ChunkWriter is the slice of the chunk store the pipeline needs.
type ChunkWriter interface {
	DeleteForDocument(ctx context.Context, tenantID, documentID uuid.UUID) (int64, error)
	InsertBatch(ctx context.Context, tenantID, documentID uuid.UUID, batch []chunks.Chunk) error
}

// StatusWriter is the slice of the document store the pipeline needs.
type StatusWriter interface {
	MarkProcessing(ctx context.Context, tenantID, id uuid.UUID) error
	MarkCompleted(ctx context.Context, tenantID, id uuid.UUID) error
	MarkFailed(ctx context.Context, tenantID, id uuid.UUID, msg string) error
}

// Job is one ingestion request: exactly one document for one tenant.
type Job struct {
	TenantID   uuid.UUID
	DocumentID uuid.UUID
	StorageURI string
}

// Stats summarizes a completed ingestion run.
type Stats struct {
	TotalChunks  int
	StoredChunks int
	PageCount    int
	Characters   int
}

// Config holds the pipeline's tuning parameters.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int

	// VectorDim is the dimension the document_chunks.embedding column
	// expects. Embeddings of any other length abort the run.
	VectorDim int

	// RateLimit caps embedding calls per second. Zero means unlimited.
	RateLimit float64
}

// Pipeline orchestrates ingestion for single documents. Multiple pipelines
// (or goroutines) may run concurrently as long as each processes a
// different document; all shared state lives in the datastore.
type Pipeline struct {
	fetcher    ObjectFetcher
	normalizer Normalizer
	splitter   *chunker.Splitter
	embedder   ai.Embedder
	store      ChunkWriter
	docs       StatusWriter
	limiter    *rate.Limiter
	batchSize  int
	vectorDim  int
	logger     *slog.Logger
}

// NewPipeline wires the pipeline from explicit collaborator handles; there
// are no package-level service clients.
func NewPipeline(cfg Config, fetcher ObjectFetcher, normalizer Normalizer, embedder ai.Embedder,
	store ChunkWriter, docs StatusWriter, logger *slog.Logger) (*Pipeline, error) {

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("configuring splitter: %w", err)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.VectorDim < 1 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.VectorDim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Pipeline{
		fetcher:    fetcher,
		normalizer: normalizer,
		splitter:   splitter,
		embedder:   embedder,
		store:      store,
		docs:       docs,
		limiter:    limiter,
		batchSize:  cfg.BatchSize,
		vectorDim:  cfg.VectorDim,
		logger:     logger,
	}, nil
}

// Run ingests one document. On any stage failure the document is marked
// failed with the stage error message and the error is returned so the
// caller's retry policy can take over. Chunks persisted by earlier batches
// are left in place; the next run's delete-then-insert replaces them.
func (p *Pipeline) Run(ctx context.Context, job Job) (Stats, error) {
	if err := p.docs.MarkProcessing(ctx, job.TenantID, job.DocumentID); err != nil {
		return Stats{}, fmt.Errorf("marking document processing: %w", err)
	}

	p.logger.Info("ingestion started",
		"document_id", job.DocumentID, "tenant_id", job.TenantID, "storage_uri", job.StorageURI)

	stats, err := p.process(ctx, job)
	if err != nil {
		// Record the failure even when ctx is already canceled.
		failCtx := context.WithoutCancel(ctx)
		if markErr := p.docs.MarkFailed(failCtx, job.TenantID, job.DocumentID, err.Error()); markErr != nil {
			p.logger.Error("recording ingestion failure", "document_id", job.DocumentID, "error", markErr)
		}
		p.logger.Error("ingestion failed", "document_id", job.DocumentID, "error", err)
		return stats, err
	}

	if err := p.docs.MarkCompleted(ctx, job.TenantID, job.DocumentID); err != nil {
		return stats, fmt.Errorf("marking document completed: %w", err)
	}

	p.logger.Info("ingestion completed",
		"document_id", job.DocumentID,
		"chunks", stats.StoredChunks,
		"pages", stats.PageCount,
		"characters", stats.Characters)
	return stats, nil
}

func (p *Pipeline) process(ctx context.Context, job Job) (Stats, error) {
	raw, err := p.fetcher.Fetch(ctx, job.StorageURI)
	if err != nil {
		return Stats{}, stageErr(StageFetch, err)
	}

	norm, err := p.normalizer.Extract(ctx, raw)
	if err != nil {
		return Stats{}, stageErr(StageNormalize, err)
	}

	stats := Stats{
		PageCount:  len(norm.PageOffsets),
		Characters: len(norm.Text),
	}

	segments := p.splitter.Split(norm.Text)
	stats.TotalChunks = len(segments)

	// Replace any chunks from a previous ingestion of this document. This runs
	// even when the new rendition is empty: re-ingesting must never leave
	// stale chunks behind.
	if _, err := p.store.DeleteForDocument(ctx, job.TenantID, job.DocumentID); err != nil {
		return stats, stageErr(StagePersist, err)
	}

	if len(segments) == 0 {
		p.logger.Warn("document yielded no text", "document_id", job.DocumentID)
		return stats, nil
	}

	totalBatches := (len(segments) + p.batchSize - 1) / p.batchSize
	for start := 0; start < len(segments); start += p.batchSize {
		end := start + p.batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batchNum := start/p.batchSize + 1

		vectors, err := p.embedBatch(ctx, segments[start:end])
		if err != nil {
			return stats, stageErr(StageEmbed,
				fmt.Errorf("batch %d/%d: %w", batchNum, totalBatches, err))
		}

		rows := make([]chunks.Chunk, len(vectors))
		for j, vec := range vectors {
			seg := segments[start+j]
			rows[j] = chunks.Chunk{
				Index:      int32(start + j),
				Content:    seg.Text,
				TokenCount: estimateTokens(seg.Text),
				Embedding:  vec,
				Metadata: map[string]any{
					"page_number": pageForOffset(norm.PageOffsets, seg.Start),
					"chunk_size":  len([]rune(seg.Text)),
				},
			}
		}

		if err := p.store.InsertBatch(ctx, job.TenantID, job.DocumentID, rows); err != nil {
			return stats, stageErr(StagePersist,
				fmt.Errorf("batch %d/%d: %w", batchNum, totalBatches, err))
		}
		stats.StoredChunks += len(rows)

		p.logger.Debug("stored batch",
			"document_id", job.DocumentID, "batch", batchNum, "of", totalBatches)
	}

	return stats, nil
}

// embedBatch sends one bounded batch to the embedding service. Order is
// preserved: vectors[i] belongs to segments[i].
func (p *Pipeline) embedBatch(ctx context.Context, segments []chunker.Segment) ([][]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	input := make([]*ai.Document, len(segments))
	for i, seg := range segments {
		input[i] = ai.DocumentFromText(seg.Text, nil)
	}

	resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(segments) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs",
			len(resp.Embeddings), len(segments))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != p.vectorDim {
			return nil, fmt.Errorf("%w: got %d, store expects %d",
				ErrDimensionMismatch, len(emb.Embedding), p.vectorDim)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// estimateTokens approximates the token count of a chunk at roughly four
// characters per token. Exact counts are the embedding provider's concern;
// the stored value is informational.
func estimateTokens(text string) int32 {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return int32((n + 3) / 4)
}

// pageForOffset maps a chunk's start offset to its 1-based source page
// using the normalizer's page start offsets. A chunk spanning a page break
// is attributed to the page it starts on.
func pageForOffset(pageOffsets []int, offset int) int {
	if len(pageOffsets) == 0 {
		return 1
	}
	page := 1
	for i, start := range pageOffsets {
		if offset < start {
			break
		}
		page = i + 1
	}
	return page
}
