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
	adminInstance *services.SourcesAdminFunction
	once          sync.Once
	initErr       error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "HandleKnowledgeSources" is the entry point name configured in GCP.
	functions.HTTP("HandleKnowledgeSources", handleKnowledgeSources)
}

// main is required by the Go Functions Framework.
func main() {}

// handleKnowledgeSources is the HTTP handler for the back-office registry view.
func handleKnowledgeSources(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		adminInstance, initErr = services.NewSourcesAdmin(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: SourcesAdmin initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	adminInstance.HandleSources(w, r)
}
