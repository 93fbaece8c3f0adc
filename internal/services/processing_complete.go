package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/portailagence/knowledgeflow/internal/gcp"
	"github.com/portailagence/knowledgeflow/internal/models"
)

// ProcessingCompleteFunction is the workflow's completion callback. The
// indexing workflow POSTs the final verdict for one source here, which moves
// the record to "processed" or "error" without waiting for an admin refresh.
type ProcessingCompleteFunction struct {
	registry statusWriter
}

// NewProcessingComplete creates the callback function.
func NewProcessingComplete(ctx context.Context) (*ProcessingCompleteFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	collection := gcp.GetEnv("FIRESTORE_COLLECTION", "knowledge_sources")

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &ProcessingCompleteFunction{
		registry: NewIngestionRegistry(firestoreClient, collection, nil),
	}, nil
}

// HandleCompletion implements POST /processing-complete.
func (f *ProcessingCompleteFunction) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Bad Request: id is required", http.StatusBadRequest)
		return
	}
	// The workflow only ever reports a terminal verdict. The forward-only
	// lifecycle is enforced again inside SetStatus.
	if req.Status != models.StatusProcessed && req.Status != models.StatusError {
		http.Error(w, "Bad Request: status must be processed or error", http.StatusBadRequest)
		return
	}

	if err := f.registry.SetStatus(r.Context(), req.ID, req.Status, req.ErrorDetails); err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to apply completion status", "id", req.ID, "error", err)
		http.Error(w, "Internal Server Error: status update failed", http.StatusInternalServerError)
		return
	}

	slog.Info("Applied completion status.", "id", req.ID, "status", string(req.Status))
	w.WriteHeader(http.StatusOK)
}
