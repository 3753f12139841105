// Package rag is the question-answering entry point: it checks the tenant
// has indexed content, retrieves the most relevant chunks and hands them to
// the synthesizer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/answer"
	"github.com/doclane/doclane/internal/chunks"
	"github.com/doclane/doclane/internal/retrieval"
)

// ErrNoIndexedDocuments indicates the tenant has no indexed content at all;
// the caller should prompt the user to index a document first.
var ErrNoIndexedDocuments = errors.New("no indexed documents for tenant")

// Counter reports how many chunks a tenant has indexed.
type Counter interface {
	CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// ChunkRetriever finds the chunks most relevant to a question.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, tenantID uuid.UUID, question string, opts ...retrieval.Option) ([]chunks.Scored, error)
}

// Synthesizer produces a grounded answer from ranked chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, ranked []chunks.Scored, tier answer.Tier) (answer.Answer, error)
}

// Request is one question scoped to one tenant.
type Request struct {
	TenantID uuid.UUID
	Question string

	// DocumentIDs optionally restricts the search; empty means the whole
	// tenant corpus.
	DocumentIDs []uuid.UUID

	// MaxChunks caps how many chunks feed the answer; zero uses the
	// retriever's default.
	MaxChunks int32

	// Tier selects the generation model; empty means fast.
	Tier answer.Tier
}

// System wires the read path. Construct one per process and share it; all
// collaborators are safe for concurrent use.
type System struct {
	counter     Counter
	retriever   ChunkRetriever
	synthesizer Synthesizer
	logger      *slog.Logger
}

func New(counter Counter, retriever ChunkRetriever, synthesizer Synthesizer, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		counter:     counter,
		retriever:   retriever,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// Ask answers a question from the tenant's indexed documents.
//
// A tenant with zero indexed chunks gets ErrNoIndexedDocuments. A tenant
// with content but no relevant chunks gets a normal answer stating nothing
// relevant was found.
func (s *System) Ask(ctx context.Context, req Request) (answer.Answer, error) {
	if req.TenantID == uuid.Nil {
		return answer.Answer{}, errors.New("tenant id is required")
	}
	if strings.TrimSpace(req.Question) == "" {
		return answer.Answer{}, retrieval.ErrEmptyQuestion
	}

	tier := req.Tier
	if tier == "" {
		tier = answer.TierFast
	}

	start := time.Now()

	count, err := s.counter.CountForTenant(ctx, req.TenantID)
	if err != nil {
		return answer.Answer{}, fmt.Errorf("counting indexed chunks: %w", err)
	}
	if count == 0 {
		return answer.Answer{}, fmt.Errorf("%w: index a document first", ErrNoIndexedDocuments)
	}

	var opts []retrieval.Option
	if req.MaxChunks > 0 {
		opts = append(opts, retrieval.WithTopK(req.MaxChunks))
	}
	if len(req.DocumentIDs) > 0 {
		opts = append(opts, retrieval.WithDocuments(req.DocumentIDs))
	}

	ranked, err := s.retriever.Retrieve(ctx, req.TenantID, req.Question, opts...)
	if err != nil {
		return answer.Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	ans, err := s.synthesizer.Synthesize(ctx, req.Question, ranked, tier)
	if err != nil {
		return answer.Answer{}, err
	}

	s.logger.Info("question answered",
		"tenant_id", req.TenantID,
		"sources", len(ans.Citations),
		"tier", tier,
		"duration", time.Since(start))
	return ans, nil
}
