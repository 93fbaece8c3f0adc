package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/portailagence/knowledgeflow/internal/services"
)

var (
	completeInstance *services.ProcessingCompleteFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "HandleProcessingComplete" is the entry point name configured in GCP.
	functions.HTTP("HandleProcessingComplete", handleProcessingComplete)
}

// main is required by the Go Functions Framework.
func main() {}

// handleProcessingComplete is the HTTP handler for the workflow's completion
// callback.
func handleProcessingComplete(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		completeInstance, initErr = services.NewProcessingComplete(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: ProcessingComplete initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	completeInstance.HandleCompletion(w, r)
}
