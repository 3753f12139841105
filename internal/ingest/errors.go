package ingest

import (
	"errors"
	"fmt"
)

// Pipeline stage names, surfaced in failure messages and document error
// records so operators can see where ingestion stopped.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageChunk     = "chunk"
	StageEmbed     = "embed"
	StagePersist   = "persist"
)

// ErrDimensionMismatch indicates the embedding service returned vectors of a
// different dimension than the datastore column expects. This is a fatal
// configuration error, not a per-chunk failure: retrying cannot fix it.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// StageError reports which pipeline stage failed. The controller persists
// the message on the document and returns the error to the queue adapter,
// whose retry policy governs redelivery.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
