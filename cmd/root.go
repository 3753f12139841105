// Package cmd provides the doclane CLI.
//
// Commands:
//   - migrate: apply database migrations
//   - ingest: register and ingest a document for a tenant
//   - ask: answer a question from a tenant's indexed documents
//   - version: show version information
package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doclane/doclane/internal/config"
	"github.com/doclane/doclane/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "doclane",
	Short: "doclane: multi-tenant document question answering",
	Long: `doclane ingests documents into a tenant-isolated vector index and
answers questions grounded in that index, with citations.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and installs the default logger from it.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
