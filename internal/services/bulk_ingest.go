package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/portailagence/knowledgeflow/internal/gcp"
	"github.com/portailagence/knowledgeflow/internal/models"
)

// GCSEvent is the payload of a storage object-finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// bulkCatalog is the slice of IngestionRegistry the bulk path uses.
type bulkCatalog interface {
	FindByFileURL(ctx context.Context, fileURL string) (*models.KnowledgeSource, error)
	Create(ctx context.Context, src models.KnowledgeSource) (*models.KnowledgeSource, error)
	ClaimDispatch(ctx context.Context, id string) (*models.KnowledgeSource, error)
}

// BulkIngestFunction registers files dropped directly into the documents
// bucket, outside the admin upload form, and runs them through the same
// registry/trigger path as manual uploads.
type BulkIngestFunction struct {
	registry      bulkCatalog
	trigger       dispatcher
	publicBaseURL string
}

// NewBulkIngest creates the bulk ingestion function.
func NewBulkIngest(ctx context.Context) (*BulkIngestFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	collection := gcp.GetEnv("FIRESTORE_COLLECTION", "knowledge_sources")

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	registry := NewIngestionRegistry(firestoreClient, collection, nil)
	trigger, err := NewProcessingTrigger(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing trigger: %w", err)
	}

	slog.Info("Bulk ingest logic initialized.", "collection", collection)
	return &BulkIngestFunction{
		registry:      registry,
		trigger:       trigger,
		publicBaseURL: gcp.GetEnv("MEDIA_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
	}, nil
}

// Process handles one object-finalize event. Objects that already have a
// registry record are skipped, so event redelivery never duplicates sources.
func (f *BulkIngestFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if e.Name == "" || strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Skipping non-file object.")
		return nil
	}

	fileURL := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(f.publicBaseURL, "/"), e.Bucket, e.Name)
	existing, err := f.registry.FindByFileURL(ctx, fileURL)
	if err != nil {
		logCtx.Error("Failed to check for existing source", "error", err)
		return err
	}
	if existing != nil {
		logCtx.Info("Object already registered. Skipping.", "existingId", existing.ID)
		return nil
	}

	src, err := f.registry.Create(ctx, models.KnowledgeSource{
		Filename: path.Base(e.Name),
		FileURL:  fileURL,
		FilePath: e.Bucket + "/" + e.Name,
		FileType: FileTypeOf(e.Name),
	})
	if err != nil {
		logCtx.Error("Failed to register dropped file", "error", err)
		return err
	}

	claimed, err := f.registry.ClaimDispatch(ctx, src.ID)
	if err != nil {
		logCtx.Error("Failed to claim source for dispatch", "error", err)
		return err
	}
	if err := f.trigger.Dispatch(ctx, claimed); err != nil {
		// The record is marked "error"; an admin can reset it. Returning nil
		// keeps the platform from redelivering an event we already handled.
		logCtx.Error("Dispatch failed for dropped file", "sourceId", src.ID, "error", err)
		return nil
	}

	logCtx.Info("Registered and dispatched dropped file.", "sourceId", src.ID)
	return nil
}
