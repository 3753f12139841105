// Package ai wires the Genkit client used for embeddings and generation.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/doclane/doclane/internal/answer"
	"github.com/doclane/doclane/internal/config"
)

// Client holds the initialized Genkit instance plus the embedder and the
// generation models the system uses. Construct once at process start and
// pass into the components that need it.
type Client struct {
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	fastModel    string
	qualityModel string
	timeout      time.Duration
}

// NewClient initializes Genkit with the Google AI plugin and resolves the
// configured embedder. GEMINI_API_KEY must be set in the environment; the
// plugin reads it directly.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai plugin")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not available", cfg.EmbedderModel)
	}

	timeout := time.Duration(cfg.GenerateTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &Client{
		Genkit:       g,
		Embedder:     embedder,
		fastModel:    cfg.FastModel,
		qualityModel: cfg.QualityModel,
		timeout:      timeout,
	}, nil
}

// Generate produces text at the requested quality tier. The tier selects the
// model; everything else is identical. Calls are bounded by a timeout so a
// stalled generation cannot hold a queue delivery forever.
func (c *Client) Generate(ctx context.Context, system, prompt string, tier answer.Tier) (string, error) {
	model := c.fastModel
	if tier == answer.TierQuality {
		model = c.qualityModel
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, c.Genkit,
		ai.WithModelName(model),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", model, err)
	}
	return resp.Text(), nil
}
