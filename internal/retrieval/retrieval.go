// Package retrieval finds the stored chunks most similar to a question.
//
// The retriever embeds the question with the same model used at ingestion
// time and delegates ranking to the datastore's vector index, so query and
// corpus vectors always live in the same space.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/chunks"
)

// ErrEmptyQuestion indicates a blank question, which cannot be embedded.
var ErrEmptyQuestion = errors.New("question is empty")

// Searcher is the slice of the chunk store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, tenantID uuid.UUID, query []float32, opts ...chunks.SearchOption) ([]chunks.Scored, error)
}

// Retriever embeds questions and ranks a tenant's chunks against them.
type Retriever struct {
	embedder ai.Embedder
	searcher Searcher
	topK     int32
	logger   *slog.Logger
}

// New creates a Retriever returning at most topK chunks per question.
func New(embedder ai.Embedder, searcher Searcher, topK int32, logger *slog.Logger) (*Retriever, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
		logger:   logger,
	}, nil
}

// Option narrows a single retrieval.
type Option func(*request)

type request struct {
	topK      int32
	documents []uuid.UUID
}

// WithTopK overrides the retriever's default result count for one call.
func WithTopK(k int32) Option {
	return func(r *request) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithDocuments restricts retrieval to the given documents.
func WithDocuments(ids []uuid.UUID) Option {
	return func(r *request) {
		r.documents = ids
	}
}

// Retrieve returns the tenant's chunks most similar to the question, ordered
// by descending similarity. No matches is an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, tenantID uuid.UUID, question string, opts ...Option) ([]chunks.Scored, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	req := &request{topK: r.topK}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(question, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned no vector for question")
	}

	searchOpts := []chunks.SearchOption{chunks.WithLimit(req.topK)}
	if len(req.documents) > 0 {
		searchOpts = append(searchOpts, chunks.WithDocuments(req.documents))
	}

	scored, err := r.searcher.Search(ctx, tenantID, resp.Embeddings[0].Embedding, searchOpts...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	r.logger.Debug("retrieved chunks",
		"tenant_id", tenantID, "results", len(scored), "top_k", req.topK)
	return scored, nil
}
