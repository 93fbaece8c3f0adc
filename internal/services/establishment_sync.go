package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/portailagence/knowledgeflow/internal/gcp"
	"github.com/portailagence/knowledgeflow/internal/models"
)

// EstablishmentSyncConfig holds configuration for the directory sync job.
type EstablishmentSyncConfig struct {
	ProjectID           string
	DirectoryCollection string
	Category            string
}

// EstablishmentSyncFunction flattens the structured establishment directory
// into text knowledge sources and feeds them through the same registry and
// trigger path as manual uploads. Each run re-creates its sources; it does
// not diff against previous runs.
type EstablishmentSyncFunction struct {
	firestoreClient *firestore.Client
	blobs           blobStore
	registry        sourceCatalog
	trigger         dispatcher
	config          EstablishmentSyncConfig
}

// NewEstablishmentSync creates the sync function.
func NewEstablishmentSync(ctx context.Context) (*EstablishmentSyncFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := EstablishmentSyncConfig{
		ProjectID:           projectID,
		DirectoryCollection: gcp.GetEnv("ETABLISSEMENTS_COLLECTION", "etablissements"),
		Category:            gcp.GetEnv("SYNC_CATEGORY", "etablissements"),
	}

	blobs, err := NewMediaStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create media store: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	registry := NewIngestionRegistry(firestoreClient, gcp.GetEnv("FIRESTORE_COLLECTION", "knowledge_sources"), blobs)
	trigger, err := NewProcessingTrigger(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing trigger: %w", err)
	}

	slog.Info("Establishment sync logic initialized.", "directory", config.DirectoryCollection)
	return &EstablishmentSyncFunction{
		firestoreClient: firestoreClient,
		blobs:           blobs,
		registry:        registry,
		trigger:         trigger,
		config:          config,
	}, nil
}

// HandleSync implements POST /sync-establishments.
func (f *EstablishmentSyncFunction) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	etablissements, err := f.loadDirectory(r.Context())
	if err != nil {
		slog.Error("Failed to load establishment directory", "error", err)
		http.Error(w, "Internal Server Error: directory read failed", http.StatusInternalServerError)
		return
	}

	count := f.syncAll(r.Context(), etablissements)
	slog.Info("Establishment sync finished.", "directorySize", len(etablissements), "synced", count)
	writeJSON(w, models.SyncResponse{Count: count})
}

func (f *EstablishmentSyncFunction) loadDirectory(ctx context.Context) ([]*models.Etablissement, error) {
	docs, err := f.firestoreClient.Collection(f.config.DirectoryCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.config.DirectoryCollection, err)
	}

	etablissements := make([]*models.Etablissement, 0, len(docs))
	for _, doc := range docs {
		var e models.Etablissement
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("failed to decode etablissement %s: %w", doc.Ref.ID, err)
		}
		e.ID = doc.Ref.ID
		etablissements = append(etablissements, &e)
	}
	return etablissements, nil
}

// syncAll processes the directory one record at a time. A failing record is
// logged and skipped; it never aborts the rest of the run.
func (f *EstablishmentSyncFunction) syncAll(ctx context.Context, etablissements []*models.Etablissement) int {
	var count int
	for _, e := range etablissements {
		if err := f.syncOne(ctx, e); err != nil {
			slog.Error("Failed to sync etablissement.", "etablissementId", e.ID, "nom", e.Nom, "error", err)
			continue
		}
		count++
	}
	return count
}

func (f *EstablishmentSyncFunction) syncOne(ctx context.Context, e *models.Etablissement) error {
	filename := etablissementFilename(e)
	stored, err := f.blobs.PutText(ctx, f.config.Category, filename, RenderEtablissement(e))
	if err != nil {
		return err
	}

	src, err := f.registry.Create(ctx, models.KnowledgeSource{
		Filename: filename,
		FileURL:  stored.URL,
		FilePath: stored.StoragePath(),
		FileType: stored.FileType,
	})
	if err != nil {
		if rmErr := f.blobs.Remove(ctx, stored.URL); rmErr != nil {
			slog.Warn("Failed to clean up blob after registry failure.", "fileUrl", stored.URL, "error", rmErr)
		}
		return err
	}

	claimed, err := f.registry.ClaimDispatch(ctx, src.ID)
	if err != nil {
		return err
	}
	// A dispatch failure leaves the record marked "error"; the source still
	// counts as synced and the admin can reset it.
	if err := f.trigger.Dispatch(ctx, claimed); err != nil {
		slog.Warn("Dispatch failed for synced etablissement.", "sourceId", src.ID, "error", err)
	}
	return nil
}

func etablissementFilename(e *models.Etablissement) string {
	slug := slugify(e.Nom)
	if slug == "" {
		slug = slugify(e.ID)
	}
	return "etablissement-" + slug + ".txt"
}

// RenderEtablissement flattens a directory record into the deterministic text
// document handed to the indexing pipeline. Same record in, same text out.
func RenderEtablissement(e *models.Etablissement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Établissement : %s\n", e.Nom)
	if e.Type != "" {
		fmt.Fprintf(&b, "Type : %s\n", e.Type)
	}
	if e.Ville != "" {
		fmt.Fprintf(&b, "Ville : %s\n", e.Ville)
	}
	if e.Adresse != "" {
		fmt.Fprintf(&b, "Adresse : %s\n", e.Adresse)
	}
	if e.Telephone != "" {
		fmt.Fprintf(&b, "Téléphone : %s\n", e.Telephone)
	}
	if e.Email != "" {
		fmt.Fprintf(&b, "Email : %s\n", e.Email)
	}
	if e.SiteWeb != "" {
		fmt.Fprintf(&b, "Site web : %s\n", e.SiteWeb)
	}
	if len(e.Formations) > 0 {
		fmt.Fprintf(&b, "Formations proposées : %s\n", strings.Join(e.Formations, ", "))
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Description)
	}
	return b.String()
}
