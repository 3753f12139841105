// Package answer turns retrieved chunks into a grounded, cited answer.
//
// The synthesizer builds a bounded context block from ranked chunks, prompts
// the generation service to answer strictly from that context, and returns
// the answer together with a citation for every chunk the context included.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/chunks"
)

// Tier selects which generation model answers a question. It changes the
// model only, never the pipeline.
type Tier string

const (
	// TierFast favors latency.
	TierFast Tier = "fast"
	// TierQuality favors answer quality.
	TierQuality Tier = "quality"
)

// ParseTier maps user input to a Tier, defaulting empty input to TierFast.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return TierFast, nil
	case TierFast:
		return TierFast, nil
	case TierQuality:
		return TierQuality, nil
	default:
		return "", fmt.Errorf("unknown quality tier %q", s)
	}
}

// ErrGenerationFailed indicates the generation service errored. The failure
// is transient from the caller's point of view; the synthesizer does not
// retry internally.
var ErrGenerationFailed = errors.New("generation service failed")

// Generator produces text from a prompt at the requested quality tier.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, tier Tier) (string, error)
}

// Citation points at one chunk that was part of the answer's context.
type Citation struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int32     `json:"chunk_index"`
	// Relevance is the chunk's similarity expressed as a percentage with
	// one decimal place.
	Relevance float64 `json:"relevance"`
	Excerpt   string  `json:"excerpt"`
}

// Answer is a synthesized response with its supporting sources.
type Answer struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"sources"`
}

const (
	excerptRunes = 150

	noContextMessage = "I could not find any relevant content in your documents for this question."

	systemPrompt = `You are a document assistant. Answer the user's question using ONLY the
numbered context sources provided. If the context does not contain the
information needed, say so explicitly instead of guessing. Do not use any
knowledge beyond the supplied sources. When a source supports part of your
answer, mention its number, like [1].`
)

// Synthesizer assembles grounded prompts and packages generation results.
type Synthesizer struct {
	generator     Generator
	contextBudget int
	logger        *slog.Logger
}

// New creates a Synthesizer whose context block holds at most contextBudget
// runes of chunk content.
func New(generator Generator, contextBudget int, logger *slog.Logger) (*Synthesizer, error) {
	if contextBudget < 1 {
		return nil, fmt.Errorf("context budget must be positive, got %d", contextBudget)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		generator:     generator,
		contextBudget: contextBudget,
		logger:        logger,
	}, nil
}

// Synthesize answers the question from the ranked chunks. An empty chunk
// list yields a fixed "nothing found" answer without calling the generation
// service. Chunks are added to the context in the given order until the
// budget is spent; chunks are dropped whole, never truncated mid-content.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, ranked []chunks.Scored, tier Tier) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, errors.New("question is empty")
	}
	if tier != TierFast && tier != TierQuality {
		return Answer{}, fmt.Errorf("unknown quality tier %q", tier)
	}

	if len(ranked) == 0 {
		return Answer{Text: noContextMessage}, nil
	}

	included := s.selectWithinBudget(ranked)

	var b strings.Builder
	citations := make([]Citation, 0, len(included))
	for i, sc := range included {
		fmt.Fprintf(&b, "[%d] (document %s, part %d)\n%s\n\n",
			i+1, sc.DocumentID, sc.Index+1, sc.Content)
		citations = append(citations, Citation{
			DocumentID: sc.DocumentID,
			ChunkIndex: sc.Index,
			Relevance:  math.Round(sc.Similarity*1000) / 10,
			Excerpt:    excerpt(sc.Content),
		})
	}

	prompt := fmt.Sprintf("Context sources:\n\n%sQuestion: %s", b.String(), question)

	text, err := s.generator.Generate(ctx, systemPrompt, prompt, tier)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	s.logger.Debug("synthesized answer",
		"tier", tier, "sources", len(included), "dropped", len(ranked)-len(included))
	return Answer{Text: text, Citations: citations}, nil
}

// selectWithinBudget keeps the longest prefix of ranked whose combined
// content fits the budget. The top chunk is always kept so an oversized
// first chunk cannot starve the prompt entirely.
func (s *Synthesizer) selectWithinBudget(ranked []chunks.Scored) []chunks.Scored {
	used := 0
	for i, sc := range ranked {
		n := len([]rune(sc.Content))
		if i > 0 && used+n > s.contextBudget {
			return ranked[:i]
		}
		used += n
	}
	return ranked
}

func excerpt(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= excerptRunes {
		return string(runes)
	}
	return string(runes[:excerptRunes]) + "..."
}
