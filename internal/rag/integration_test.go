//go:build integration
// +build integration

package rag_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/doclane/doclane/internal/answer"
	"github.com/doclane/doclane/internal/chunks"
	"github.com/doclane/doclane/internal/documents"
	"github.com/doclane/doclane/internal/ingest"
	"github.com/doclane/doclane/internal/log"
	"github.com/doclane/doclane/internal/rag"
	"github.com/doclane/doclane/internal/retrieval"
	"github.com/doclane/doclane/internal/testutil"
)

// echoGenerator proves the context reached the generation call without
// needing a real model.
type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, system, prompt string, tier answer.Tier) (string, error) {
	if !strings.Contains(prompt, "Context sources:") {
		return "no context received", nil
	}
	return "answered from context", nil
}

func TestIngestThenAsk(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logger := log.NewNop()
	embedder := testutil.NewHashEmbedder(768)

	chunkStore := chunks.NewStore(db.Pool, logger)
	docStore := documents.NewStore(db.Pool, logger)

	storageDir := t.TempDir()
	invoice := strings.Join([]string{
		"INVOICE #2024-117",
		"Vendor: Acme Industrial Supplies",
		"Line items: safety gloves, 40 units.",
		"Subtotal: 1130.00 EUR",
		"Tax: 120.00 EUR",
		"The total amount due is 1250.00 EUR, payable within 30 days.",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "invoice.txt"), []byte(invoice), 0o644))

	fetcher, err := ingest.NewFileFetcher(storageDir)
	require.NoError(t, err)

	pipeline, err := ingest.NewPipeline(ingest.Config{
		ChunkSize:    120,
		ChunkOverlap: 20,
		BatchSize:    5,
		VectorDim:    768,
	}, fetcher, ingest.PlainTextNormalizer{}, embedder, chunkStore, docStore, logger)
	require.NoError(t, err)

	tenant := uuid.New()
	docID := uuid.New()
	require.NoError(t, docStore.Register(ctx, tenant, docID, "invoice.txt"))

	stats, err := pipeline.Run(ctx, ingest.Job{
		TenantID:   tenant,
		DocumentID: docID,
		StorageURI: "invoice.txt",
	})
	require.NoError(t, err)
	require.Positive(t, stats.StoredChunks)

	doc, err := docStore.Get(ctx, tenant, docID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusCompleted, doc.Status)

	retriever, err := retrieval.New(embedder, chunkStore, 5, logger)
	require.NoError(t, err)
	synthesizer, err := answer.New(echoGenerator{}, 12000, logger)
	require.NoError(t, err)
	system := rag.New(chunkStore, retriever, synthesizer, logger)

	t.Run("amount question cites the amount chunk", func(t *testing.T) {
		ans, err := system.Ask(ctx, rag.Request{
			TenantID: tenant,
			Question: "What is the total amount due?",
		})
		require.NoError(t, err)
		require.NotEmpty(t, ans.Citations)
		require.Equal(t, docID, ans.Citations[0].DocumentID)

		var cited bool
		for _, c := range ans.Citations {
			if strings.Contains(c.Excerpt, "total amount due") {
				cited = true
			}
		}
		require.True(t, cited, "no citation covers the amount text: %+v", ans.Citations)
	})

	t.Run("other tenant has no documents", func(t *testing.T) {
		_, err := system.Ask(ctx, rag.Request{
			TenantID: uuid.New(),
			Question: "What is the total amount due?",
		})
		require.ErrorIs(t, err, rag.ErrNoIndexedDocuments)
	})

	t.Run("re-ingestion does not duplicate chunks", func(t *testing.T) {
		before, err := chunkStore.CountForTenant(ctx, tenant)
		require.NoError(t, err)

		_, err = pipeline.Run(ctx, ingest.Job{
			TenantID:   tenant,
			DocumentID: docID,
			StorageURI: "invoice.txt",
		})
		require.NoError(t, err)

		after, err := chunkStore.CountForTenant(ctx, tenant)
		require.NoError(t, err)
		require.Equal(t, before, after)

		listed, err := chunkStore.ListForDocument(ctx, tenant, docID)
		require.NoError(t, err)
		seen := map[int32]bool{}
		for _, c := range listed {
			require.False(t, seen[c.Index], "duplicate chunk index %d", c.Index)
			seen[c.Index] = true
		}
	})
}
