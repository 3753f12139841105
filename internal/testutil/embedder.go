package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// HashEmbedder is a deterministic ai.Embedder for tests that need
// meaningful similarity without a real embedding service. Each word hashes
// into a bucket of the output vector, so texts sharing words land near each
// other under cosine similarity, and identical texts embed identically.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of dim elements.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

func (e *HashEmbedder) Name() string { return "hash-embedder" }

func (e *HashEmbedder) Register(r api.Registry) {}

func (e *HashEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text strings.Builder
		for _, part := range doc.Content {
			text.WriteString(part.Text)
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: e.vector(text.String()),
		})
	}
	return resp, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.Dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(e.Dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
