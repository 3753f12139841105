// Package app assembles the process-wide service handles.
//
// Setup constructs everything exactly once and passes the handles down as
// constructor arguments; nothing in the tree reaches for package-level
// clients.
package app

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	aiclient "github.com/doclane/doclane/internal/ai"
	"github.com/doclane/doclane/internal/chunks"
	"github.com/doclane/doclane/internal/config"
	"github.com/doclane/doclane/internal/documents"
	"github.com/doclane/doclane/internal/ingest"
	"github.com/doclane/doclane/internal/jobs"
	"github.com/doclane/doclane/internal/log"
	"github.com/doclane/doclane/internal/rag"
)

// App holds the wired components for one process.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool      *pgxpool.Pool
	AI        *aiclient.Client
	Chunks    *chunks.Store
	Documents *documents.Store
	Pipeline  *ingest.Pipeline
	Worker    *jobs.Worker
	RAG       *rag.System

	dbCleanup   func()
	otelCleanup func()
}

// Close releases resources in reverse setup order. Safe to call on a
// partially built App.
func (a *App) Close() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
	return nil
}
