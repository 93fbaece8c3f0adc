package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/portailagence/knowledgeflow/internal/gcp"
	"github.com/portailagence/knowledgeflow/internal/models"
)

// statusWriter is the slice of the registry the trigger needs to mark a
// source failed when dispatch itself fails.
type statusWriter interface {
	SetStatus(ctx context.Context, id string, to models.Status, errDetails string) error
}

// ProcessingTrigger hands a claimed knowledge source to the out-of-process
// indexing worker. The dispatch is fire-and-forget: a 2xx means the job was
// queued, not completed, and the trigger returns immediately.
type ProcessingTrigger struct {
	httpClient *http.Client
	workerURL  string
	registry   statusWriter
}

// NewProcessingTrigger creates a trigger pointed at the worker's dispatch
// endpoint (PROCESSOR_URL).
func NewProcessingTrigger(registry statusWriter) (*ProcessingTrigger, error) {
	workerURL := gcp.GetEnv("PROCESSOR_URL", "")
	if workerURL == "" {
		return nil, fmt.Errorf("PROCESSOR_URL environment variable must be set")
	}
	return &ProcessingTrigger{
		// The worker answers as soon as the job is queued; anything slower
		// than this is treated as a dispatch failure.
		httpClient: &http.Client{Timeout: 30 * time.Second},
		workerURL:  workerURL,
		registry:   registry,
	}, nil
}

// Dispatch posts the full record to the worker and expects an accepted
// signal. On any failure the source is marked "error" before returning, so a
// failed dispatch never leaves a record permanently pending or processing.
func (t *ProcessingTrigger) Dispatch(ctx context.Context, src *models.KnowledgeSource) error {
	payload, err := json.Marshal(models.ProcessRequest{Record: *src})
	if err != nil {
		return t.fail(ctx, src, fmt.Sprintf("failed to marshal dispatch payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.workerURL, bytes.NewReader(payload))
	if err != nil {
		return t.fail(ctx, src, fmt.Sprintf("failed to build dispatch request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return t.fail(ctx, src, fmt.Sprintf("dispatch call failed: %v", err))
	}
	defer resp.Body.Close()
	// Body is ignored on success; drain it so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return t.fail(ctx, src, fmt.Sprintf("worker returned non-accepted status %d", resp.StatusCode))
	}

	slog.Info("Dispatched source to processing worker.", "source", src, "httpStatus", resp.StatusCode)
	return nil
}

func (t *ProcessingTrigger) fail(ctx context.Context, src *models.KnowledgeSource, details string) error {
	slog.Error("Trigger dispatch failed.", "source", src, "details", details)
	if err := t.registry.SetStatus(ctx, src.ID, models.StatusError, details); err != nil {
		slog.Error("CRITICAL: Failed to mark source as error after a dispatch failure.",
			"source", src, "updateError", err)
	}
	return fmt.Errorf("%w: %s", ErrDispatch, details)
}
