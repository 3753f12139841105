package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/chunks"
	"github.com/doclane/doclane/internal/log"
)

type mockEmbedder struct {
	vector   []float32
	embedErr error
	lastText string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastText = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: m.vector}},
	}, nil
}

type mockSearcher struct {
	results    []chunks.Scored
	searchErr  error
	lastTenant uuid.UUID
	lastQuery  []float32
	lastOpts   int
}

func (m *mockSearcher) Search(ctx context.Context, tenantID uuid.UUID, query []float32, opts ...chunks.SearchOption) ([]chunks.Scored, error) {
	m.lastTenant = tenantID
	m.lastQuery = query
	m.lastOpts = len(opts)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func TestNew_RejectsInvalidTopK(t *testing.T) {
	if _, err := New(&mockEmbedder{}, &mockSearcher{}, 0, log.NewNop()); err == nil {
		t.Fatal("New() error = nil for topK 0")
	}
}

func TestRetrieve(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	tenant := uuid.New()

	t.Run("passes embedded question to the searcher", func(t *testing.T) {
		embedder := &mockEmbedder{vector: vec}
		searcher := &mockSearcher{results: []chunks.Scored{
			{Chunk: chunks.Chunk{Content: "first"}, Similarity: 0.91},
			{Chunk: chunks.Chunk{Content: "second"}, Similarity: 0.72},
		}}
		r, err := New(embedder, searcher, 5, log.NewNop())
		if err != nil {
			t.Fatal(err)
		}

		got, err := r.Retrieve(context.Background(), tenant, "what is the refund policy?")
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Retrieve() returned %d results, want 2", len(got))
		}
		if embedder.lastText != "what is the refund policy?" {
			t.Errorf("embedded %q, want the question", embedder.lastText)
		}
		if searcher.lastTenant != tenant {
			t.Errorf("searched tenant %s, want %s", searcher.lastTenant, tenant)
		}
		if len(searcher.lastQuery) != 3 {
			t.Errorf("query vector dim = %d, want 3", len(searcher.lastQuery))
		}
	})

	t.Run("empty question", func(t *testing.T) {
		r, _ := New(&mockEmbedder{vector: vec}, &mockSearcher{}, 5, log.NewNop())
		if _, err := r.Retrieve(context.Background(), tenant, "  \t "); !errors.Is(err, ErrEmptyQuestion) {
			t.Fatalf("Retrieve() error = %v, want ErrEmptyQuestion", err)
		}
	})

	t.Run("no matches is not an error", func(t *testing.T) {
		r, _ := New(&mockEmbedder{vector: vec}, &mockSearcher{}, 5, log.NewNop())
		got, err := r.Retrieve(context.Background(), tenant, "anything")
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Retrieve() = %d results, want 0", len(got))
		}
	})

	t.Run("embedder failure", func(t *testing.T) {
		wantErr := errors.New("quota exceeded")
		r, _ := New(&mockEmbedder{embedErr: wantErr}, &mockSearcher{}, 5, log.NewNop())
		if _, err := r.Retrieve(context.Background(), tenant, "anything"); !errors.Is(err, wantErr) {
			t.Fatalf("Retrieve() error = %v, want wrapped embed error", err)
		}
	})

	t.Run("searcher failure", func(t *testing.T) {
		wantErr := errors.New("connection refused")
		r, _ := New(&mockEmbedder{vector: vec}, &mockSearcher{searchErr: wantErr}, 5, log.NewNop())
		if _, err := r.Retrieve(context.Background(), tenant, "anything"); !errors.Is(err, wantErr) {
			t.Fatalf("Retrieve() error = %v, want wrapped search error", err)
		}
	})

	t.Run("document scope adds a search option", func(t *testing.T) {
		searcher := &mockSearcher{}
		r, _ := New(&mockEmbedder{vector: vec}, searcher, 5, log.NewNop())

		_, err := r.Retrieve(context.Background(), tenant, "anything",
			WithDocuments([]uuid.UUID{uuid.New()}))
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if searcher.lastOpts != 2 {
			t.Errorf("searcher received %d options, want limit and document scope", searcher.lastOpts)
		}
	})
}
