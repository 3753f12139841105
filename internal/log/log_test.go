package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("ingest started", "document_id", "doc-1")

	output := buf.String()
	if !strings.Contains(output, "ingest started") {
		t.Errorf("output missing message: %s", output)
	}
	if !strings.Contains(output, "document_id=doc-1") {
		t.Errorf("output missing attribute: %s", output)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("query answered", "tenant_id", "t-1", "chunks", 5)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "query answered" {
		t.Errorf("msg = %v, want %q", entry["msg"], "query answered")
	}
	if entry["tenant_id"] != "t-1" {
		t.Errorf("tenant_id = %v, want %q", entry["tenant_id"], "t-1")
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("should be filtered")
	logger.Info("should be filtered too")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "filtered") {
		t.Errorf("low-level entries leaked through: %s", output)
	}
	if !strings.Contains(output, "should appear") {
		t.Errorf("warn entry missing: %s", output)
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic; output goes nowhere.
	logger.Info("discarded", "key", "value")
	logger.Error("also discarded")
}

func TestWith_AddsComponentContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{})

	component := logger.With("component", "retrieval")
	component.Info("search complete")

	if !strings.Contains(buf.String(), "component=retrieval") {
		t.Errorf("component context missing: %s", buf.String())
	}
}
