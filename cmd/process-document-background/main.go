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
	dispatchInstance *services.ProcessDispatchFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "HandleProcessDocument" is the entry point name configured in GCP.
	functions.HTTP("HandleProcessDocument", handleProcessDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// handleProcessDocument is the HTTP handler for background processing dispatch.
func handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		dispatchInstance, initErr = services.NewProcessDispatch(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: ProcessDispatch initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	dispatchInstance.HandleProcessDocument(w, r)
}
