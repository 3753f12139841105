package config

import (
	"fmt"
)

// Limits for range validation. Chosen to catch obvious misconfiguration, not
// to second-guess deliberate tuning.
const (
	maxChunkSize      = 100_000
	maxEmbedBatchSize = 250
	maxTopK           = 100
	maxVectorDim      = 16_000 // pgvector column limit
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks all configuration values and returns the first violation,
// wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	if c.ChunkSize < 1 || c.ChunkSize > maxChunkSize {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidChunkSize, maxChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunkOverlap, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > maxEmbedBatchSize {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidBatchSize, maxEmbedBatchSize, c.EmbedBatchSize)
	}
	if c.MaxChunks < 1 || c.MaxChunks > maxTopK {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidMaxChunks, maxTopK, c.MaxChunks)
	}
	if c.ContextBudget < c.ChunkSize {
		return fmt.Errorf("%w: must hold at least one chunk (%d), got %d",
			ErrInvalidContextBudget, c.ChunkSize, c.ContextBudget)
	}
	if c.VectorDim < 1 || c.VectorDim > maxVectorDim {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidVectorDim, maxVectorDim, c.VectorDim)
	}
	if c.FastModel == "" {
		return fmt.Errorf("%w: fast_model must not be empty", ErrInvalidModelName)
	}
	if c.QualityModel == "" {
		return fmt.Errorf("%w: quality_model must not be empty", ErrInvalidModelName)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
