// Package jobs adapts queue deliveries into ingestion runs.
//
// Deliveries arrive as push envelopes carrying a base64 JSON payload, the
// shape Pub/Sub style brokers post to HTTP subscribers. Delivery is
// at-least-once: the worker serializes runs per document id so a redelivered
// job cannot race the run already in flight, and the pipeline's
// delete-then-insert makes the rerun itself harmless.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/doclane/doclane/internal/ingest"
)

// Validation errors are permanent: the envelope can never become valid, so
// the delivery should be acknowledged, not retried.
var (
	ErrMalformedEnvelope = errors.New("malformed job envelope")
	ErrMissingTenant     = errors.New("job payload missing tenant_id")
	ErrMissingDocument   = errors.New("job payload missing document_id")
	ErrMissingStorageURI = errors.New("job payload missing storage_uri")
)

// IsPermanent reports whether err means the delivery should be acknowledged
// without retry. Besides validation errors, an embedding dimension mismatch
// is permanent: it signals a pipeline misconfiguration that no redelivery
// can fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrMissingTenant) ||
		errors.Is(err, ErrMissingDocument) ||
		errors.Is(err, ErrMissingStorageURI) ||
		errors.Is(err, ingest.ErrDimensionMismatch)
}

type pushEnvelope struct {
	Message struct {
		// Data is base64 in the wire JSON; encoding/json decodes it.
		Data      []byte `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type jobPayload struct {
	TenantID   string `json:"tenant_id"`
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id"`
	StorageURI string `json:"storage_uri"`
}

// DecodeJob parses a push envelope body into an ingestion job.
func DecodeJob(body []byte) (ingest.Job, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ingest.Job{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(env.Message.Data) == 0 {
		return ingest.Job{}, fmt.Errorf("%w: empty message data", ErrMalformedEnvelope)
	}

	var p jobPayload
	if err := json.Unmarshal(env.Message.Data, &p); err != nil {
		return ingest.Job{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if p.TenantID == "" {
		return ingest.Job{}, ErrMissingTenant
	}
	tenantID, err := uuid.Parse(p.TenantID)
	if err != nil {
		return ingest.Job{}, fmt.Errorf("%w: %v", ErrMissingTenant, err)
	}

	if p.DocumentID == "" {
		return ingest.Job{}, ErrMissingDocument
	}
	documentID, err := uuid.Parse(p.DocumentID)
	if err != nil {
		return ingest.Job{}, fmt.Errorf("%w: %v", ErrMissingDocument, err)
	}

	if p.StorageURI == "" {
		return ingest.Job{}, ErrMissingStorageURI
	}

	return ingest.Job{
		TenantID:   tenantID,
		DocumentID: documentID,
		StorageURI: p.StorageURI,
	}, nil
}
