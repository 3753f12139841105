package chunks

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is one retrievable span of a document's text together with its
// embedding. Chunks are immutable once written; re-ingestion replaces the
// whole set for a document.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	TenantID   uuid.UUID
	Index      int32 // 0-based, contiguous per document
	Content    string
	TokenCount int32
	Embedding  []float32
	Metadata   map[string]any // free-form, e.g. source page
	CreatedAt  time.Time
}

// Scored is a search hit: a chunk (without its embedding) and its cosine
// similarity to the query vector in [0, 1].
type Scored struct {
	Chunk
	Similarity float64
}

// SearchOption configures Search using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit     int32
	documents []uuid.UUID
}

// WithLimit sets the maximum number of results (top-K). Default is 5.
func WithLimit(k int32) SearchOption {
	return func(c *searchConfig) {
		c.limit = k
	}
}

// WithDocuments restricts the search to the given document ids. An empty
// list means no document filter.
func WithDocuments(ids []uuid.UUID) SearchOption {
	return func(c *searchConfig) {
		c.documents = ids
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{limit: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
