package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/doclane/doclane/internal/answer"
	"github.com/doclane/doclane/internal/app"
	"github.com/doclane/doclane/internal/rag"
)

var (
	askTenant    string
	askDocuments []string
	askTier      string
	askMaxChunks int32
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from a tenant's indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askTenant, "tenant", "", "tenant id (required)")
	askCmd.Flags().StringSliceVar(&askDocuments, "document", nil, "restrict to document id (repeatable)")
	askCmd.Flags().StringVar(&askTier, "tier", "fast", "quality tier: fast or quality")
	askCmd.Flags().Int32Var(&askMaxChunks, "max-chunks", 0, "override retrieval result count")
	_ = askCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(askTenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}

	tier, err := answer.ParseTier(askTier)
	if err != nil {
		return err
	}

	var documentIDs []uuid.UUID
	for _, raw := range askDocuments {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", raw, err)
		}
		documentIDs = append(documentIDs, id)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	ans, err := a.RAG.Ask(ctx, rag.Request{
		TenantID:    tenantID,
		Question:    strings.Join(args, " "),
		DocumentIDs: documentIDs,
		MaxChunks:   askMaxChunks,
		Tier:        tier,
	})
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Println("\nSources:")
		for i, c := range ans.Citations {
			fmt.Printf("  [%d] document %s, part %d (%.1f%% match)\n",
				i+1, c.DocumentID, c.ChunkIndex+1, c.Relevance)
		}
	}
	return nil
}
