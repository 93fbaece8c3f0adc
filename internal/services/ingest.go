package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/portailagence/knowledgeflow/internal/gcp"
	"github.com/portailagence/knowledgeflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// blobStore is the slice of MediaStore the ingestion paths use.
type blobStore interface {
	Put(ctx context.Context, kind MediaKind, category, filename string, r io.Reader) (*StoredObject, error)
	PutText(ctx context.Context, category, filename, content string) (*StoredObject, error)
	Remove(ctx context.Context, fileURL string) error
}

// sourceCatalog is the slice of IngestionRegistry the ingestion paths use.
type sourceCatalog interface {
	Create(ctx context.Context, src models.KnowledgeSource) (*models.KnowledgeSource, error)
	ClaimDispatch(ctx context.Context, id string) (*models.KnowledgeSource, error)
}

// dispatcher is the slice of ProcessingTrigger the ingestion paths use.
type dispatcher interface {
	Dispatch(ctx context.Context, src *models.KnowledgeSource) error
}

// IngestConfig holds configuration for the admin ingestion function.
type IngestConfig struct {
	ProjectID       string
	CollectionName  string
	DefaultCategory string
	MaxParallel     int
}

// IngestFunction accepts administrator uploads (one or many files) and pasted
// text, persists the bytes, registers each item in the ingestion registry,
// and hands it to the processing worker.
type IngestFunction struct {
	blobs    blobStore
	registry sourceCatalog
	trigger  dispatcher
	config   IngestConfig
}

// NewIngest creates an IngestFunction wired to GCS, Firestore, and the
// processing worker.
func NewIngest(ctx context.Context) (*IngestFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := IngestConfig{
		ProjectID:       projectID,
		CollectionName:  gcp.GetEnv("FIRESTORE_COLLECTION", "knowledge_sources"),
		DefaultCategory: gcp.GetEnv("INGEST_DEFAULT_CATEGORY", "base-connaissances"),
		MaxParallel:     4,
	}

	blobs, err := NewMediaStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create media store: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	registry := NewIngestionRegistry(firestoreClient, config.CollectionName, blobs)
	trigger, err := NewProcessingTrigger(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing trigger: %w", err)
	}

	slog.Info("Ingest logic initialized.", "collection", config.CollectionName)
	return &IngestFunction{
		blobs:    blobs,
		registry: registry,
		trigger:  trigger,
		config:   config,
	}, nil
}

// HandleIngest is the HTTP handler: multipart form uploads on one side,
// JSON "paste text" bodies on the other.
func (f *IngestFunction) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var results []models.IngestResult

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			http.Error(w, "Bad Request: could not parse multipart form", http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			http.Error(w, "Bad Request: no files in upload", http.StatusBadRequest)
			return
		}
		category := r.FormValue("category")
		if category == "" {
			category = f.config.DefaultCategory
		}
		results = f.ingestBatch(r.Context(), files, category)

	default:
		var req models.PasteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			http.Error(w, "Bad Request: text is required", http.StatusBadRequest)
			return
		}
		results = []models.IngestResult{f.ingestText(r.Context(), req)}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(models.IngestResponse{Results: results}); err != nil {
		slog.Error("Failed to write ingest response", "error", err)
	}
}

// ingestBatch processes an upload batch with bounded concurrency. Each result
// lands at its submission index, so response order always equals submission
// order regardless of completion order.
func (f *IngestFunction) ingestBatch(ctx context.Context, files []*multipart.FileHeader, category string) []models.IngestResult {
	results := make([]models.IngestResult, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.config.MaxParallel)

	for i, fh := range files {
		eg.Go(func() error {
			results[i] = f.ingestOne(gctx, fh, category)
			// Per-item failures are reported in the result, never abort
			// the rest of the batch.
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (f *IngestFunction) ingestOne(ctx context.Context, fh *multipart.FileHeader, category string) models.IngestResult {
	result := models.IngestResult{Filename: fh.Filename}

	file, err := fh.Open()
	if err != nil {
		result.Error = fmt.Sprintf("failed to open upload: %v", err)
		return result
	}
	defer file.Close()

	stored, err := f.blobs.Put(ctx, KindDocuments, category, fh.Filename, file)
	if err != nil {
		slog.Error("Upload to media store failed.", "filename", fh.Filename, "error", err)
		result.Error = err.Error()
		return result
	}

	return f.registerAndDispatch(ctx, fh.Filename, stored, result)
}

// ingestText stores a pasted text as a synthesized .txt document and runs it
// through the same registry/trigger path as file uploads.
func (f *IngestFunction) ingestText(ctx context.Context, req models.PasteRequest) models.IngestResult {
	filename := slugify(req.Title)
	if filename == "" {
		filename = "texte-" + time.Now().Format("20060102-150405")
	}
	filename += ".txt"
	result := models.IngestResult{Filename: filename}

	stored, err := f.blobs.PutText(ctx, f.config.DefaultCategory, filename, req.Text)
	if err != nil {
		slog.Error("Storing pasted text failed.", "filename", filename, "error", err)
		result.Error = err.Error()
		return result
	}

	return f.registerAndDispatch(ctx, filename, stored, result)
}

func (f *IngestFunction) registerAndDispatch(ctx context.Context, filename string, stored *StoredObject, result models.IngestResult) models.IngestResult {
	src, err := f.registry.Create(ctx, models.KnowledgeSource{
		Filename: filename,
		FileURL:  stored.URL,
		FilePath: stored.StoragePath(),
		FileType: stored.FileType,
	})
	if err != nil {
		slog.Error("Failed to register uploaded source.", "filename", filename, "error", err)
		// The blob is orphaned otherwise; removal is best-effort.
		if rmErr := f.blobs.Remove(ctx, stored.URL); rmErr != nil {
			slog.Warn("Failed to clean up blob after registry failure.", "fileUrl", stored.URL, "error", rmErr)
		}
		result.Error = err.Error()
		return result
	}
	result.SourceID = src.ID
	result.Status = src.Status

	claimed, err := f.registry.ClaimDispatch(ctx, src.ID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Status = claimed.Status

	if err := f.trigger.Dispatch(ctx, claimed); err != nil {
		// The trigger already marked the record "error".
		result.Status = models.StatusError
		result.Error = err.Error()
		return result
	}
	return result
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify flattens a display title into a safe filename fragment.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
