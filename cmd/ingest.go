package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/doclane/doclane/internal/app"
	"github.com/doclane/doclane/internal/ingest"
)

var (
	ingestTenant   string
	ingestDocument string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [storage-uri]",
	Short: "Register and ingest a document for a tenant",
	Long: `Registers a document (unless --document names an existing one) and runs
the ingestion pipeline: fetch, normalize, chunk, embed, persist. The
storage URI is resolved relative to the configured storage directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant id (required)")
	ingestCmd.Flags().StringVar(&ingestDocument, "document", "", "existing document id to re-ingest")
	_ = ingestCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(ingestTenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()

	storageURI := args[0]

	documentID := uuid.Nil
	if ingestDocument != "" {
		if documentID, err = uuid.Parse(ingestDocument); err != nil {
			return fmt.Errorf("invalid document id: %w", err)
		}
	} else {
		documentID = uuid.New()
		if err := a.Documents.Register(ctx, tenantID, documentID, storageURI); err != nil {
			return err
		}
	}

	stats, err := a.Pipeline.Run(ctx, ingest.Job{
		TenantID:   tenantID,
		DocumentID: documentID,
		StorageURI: storageURI,
	})
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", storageURI, err)
	}

	fmt.Printf("document %s ingested: %d chunks, %d pages, %d characters\n",
		documentID, stats.StoredChunks, stats.PageCount, stats.Characters)
	return nil
}
