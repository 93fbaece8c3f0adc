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

// adminCatalog is the slice of IngestionRegistry the back office uses.
type adminCatalog interface {
	List(ctx context.Context) ([]*models.KnowledgeSource, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context, id string) (*models.KnowledgeSource, error)
	ClaimDispatch(ctx context.Context, id string) (*models.KnowledgeSource, error)
}

// SourcesAdminFunction serves the back office's view of the ingestion
// registry: list newest-first, delete with blob cascade, and the explicit
// reset-and-retry action.
type SourcesAdminFunction struct {
	registry adminCatalog
	trigger  dispatcher
}

// NewSourcesAdmin creates the admin function wired to Firestore and the
// processing worker.
func NewSourcesAdmin(ctx context.Context) (*SourcesAdminFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	collection := gcp.GetEnv("FIRESTORE_COLLECTION", "knowledge_sources")

	blobs, err := NewMediaStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create media store: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	registry := NewIngestionRegistry(firestoreClient, collection, blobs)
	trigger, err := NewProcessingTrigger(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing trigger: %w", err)
	}

	return &SourcesAdminFunction{registry: registry, trigger: trigger}, nil
}

// HandleSources is the HTTP handler for the back office.
func (f *SourcesAdminFunction) HandleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f.list(w, r)
	case http.MethodDelete:
		f.delete(w, r)
	case http.MethodPost:
		f.action(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (f *SourcesAdminFunction) list(w http.ResponseWriter, r *http.Request) {
	sources, err := f.registry.List(r.Context())
	if err != nil {
		slog.Error("Failed to list knowledge sources", "error", err)
		http.Error(w, "Internal Server Error: listing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sources)
}

func (f *SourcesAdminFunction) delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Bad Request: id is required", http.StatusBadRequest)
		return
	}
	if err := f.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to delete knowledge source", "id", id, "error", err)
		http.Error(w, "Internal Server Error: delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// action handles record-level administrator actions. "reset" returns a
// source to pending and immediately re-dispatches it.
func (f *SourcesAdminFunction) action(w http.ResponseWriter, r *http.Request) {
	var req models.AdminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Action != "reset" {
		http.Error(w, "Bad Request: id and action=reset are required", http.StatusBadRequest)
		return
	}

	if _, err := f.registry.Reset(r.Context(), req.ID); err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to reset knowledge source", "id", req.ID, "error", err)
		http.Error(w, "Internal Server Error: reset failed", http.StatusInternalServerError)
		return
	}

	claimed, err := f.registry.ClaimDispatch(r.Context(), req.ID)
	if err != nil {
		slog.Error("Failed to claim source after reset", "id", req.ID, "error", err)
		http.Error(w, "Internal Server Error: re-dispatch failed", http.StatusInternalServerError)
		return
	}
	if err := f.trigger.Dispatch(r.Context(), claimed); err != nil {
		// Record is already marked "error"; report it to the admin.
		http.Error(w, "Bad Gateway: dispatch to worker failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, claimed)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
