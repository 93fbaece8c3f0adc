package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/portailagence/knowledgeflow/internal/gcp"
	"github.com/portailagence/knowledgeflow/internal/models"
)

// ProcessDispatchConfig holds configuration for the dispatch front door.
type ProcessDispatchConfig struct {
	ProjectID        string
	WorkflowID       string
	WorkflowLocation string
}

// ProcessDispatchFunction is the worker's front door. It validates the stored
// blob, launches one indexing workflow execution, and answers 202 as soon as
// the job is queued. The extraction and embedding pipeline lives entirely in
// the workflow.
type ProcessDispatchFunction struct {
	storageClient    *storage.Client
	executionsClient *executions.Client
	config           ProcessDispatchConfig
}

// NewProcessDispatch creates the dispatch function.
func NewProcessDispatch(ctx context.Context) (*ProcessDispatchFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := ProcessDispatchConfig{
		ProjectID:        projectID,
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "europe-west1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "knowledge-indexing"),
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	slog.Info("Process dispatch logic initialized.", "workflowId", config.WorkflowID)
	return &ProcessDispatchFunction{
		storageClient:    storageClient,
		executionsClient: executionsClient,
		config:           config,
	}, nil
}

// HandleProcessDocument implements POST /process-document-background.
func (f *ProcessDispatchFunction) HandleProcessDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	record := req.Record
	if record.ID == "" || record.FilePath == "" {
		http.Error(w, "Bad Request: record.id and record.filePath are required", http.StatusBadRequest)
		return
	}

	logCtx := slog.With("source", &record)
	logCtx.Info("Received dispatch request.")

	pageCount, err := f.validateBlob(r.Context(), logCtx, &record)
	if err != nil {
		http.Error(w, "Unprocessable Entity: stored blob failed validation", http.StatusUnprocessableEntity)
		return
	}

	executionID, err := f.launchWorkflow(r.Context(), &record)
	if err != nil {
		logCtx.Error("Failed to launch indexing workflow", "error", err)
		http.Error(w, "Internal Server Error: workflow launch failed", http.StatusInternalServerError)
		return
	}
	logCtx.Info("Indexing workflow launched.", "executionId", executionID, "pageCount", pageCount)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(models.ProcessResponse{
		Status:      "accepted",
		ExecutionID: executionID,
		PageCount:   pageCount,
	})
}

// validateBlob downloads the blob and, for PDFs, verifies it parses and
// reports its page count. Non-PDF types only get an existence check.
func (f *ProcessDispatchFunction) validateBlob(ctx context.Context, logCtx *slog.Logger, record *models.KnowledgeSource) (int, error) {
	bucket, objectName, ok := strings.Cut(record.FilePath, "/")
	if !ok {
		return 0, fmt.Errorf("filePath %q is not <bucket>/<object>", record.FilePath)
	}

	if record.FileType != "pdf" {
		_, err := f.storageClient.Bucket(bucket).Object(objectName).Attrs(ctx)
		if err != nil {
			logCtx.Error("Stored blob is missing", "error", err)
			return 0, fmt.Errorf("blob gs://%s/%s not readable: %w", bucket, objectName, err)
		}
		return 0, nil
	}

	tempDir, err := os.MkdirTemp("", "process-dispatch-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, "source.pdf")
	if err := f.downloadBlob(ctx, bucket, objectName, localPath); err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return 0, err
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(localPath, cfg); err != nil {
		logCtx.Error("PDF failed validation", "error", err)
		return 0, fmt.Errorf("pdf validation failed: %w", err)
	}
	pageCount, err := api.PageCountFile(localPath)
	if err != nil {
		logCtx.Error("Failed to get PDF page count", "error", err)
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return pageCount, nil
}

func (f *ProcessDispatchFunction) launchWorkflow(ctx context.Context, record *models.KnowledgeSource) (string, error) {
	payloadBytes, err := json.Marshal(models.ProcessRequest{Record: *record})
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s",
			f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	execution, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return execution.GetName(), nil
}

func (f *ProcessDispatchFunction) downloadBlob(ctx context.Context, bucket, objectName, destPath string) error {
	reader, err := f.storageClient.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", bucket, objectName, err)
	}
	defer reader.Close()

	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, reader); err != nil {
		return fmt.Errorf("failed to copy blob to local file: %w", err)
	}
	return nil
}
