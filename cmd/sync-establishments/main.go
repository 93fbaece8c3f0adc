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
	syncInstance *services.EstablishmentSyncFunction
	once         sync.Once
	initErr      error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "HandleSyncEstablishments" is the entry point name configured in GCP.
	functions.HTTP("HandleSyncEstablishments", handleSyncEstablishments)
}

// main is required by the Go Functions Framework.
func main() {}

// handleSyncEstablishments is the HTTP handler for the directory sync job.
func handleSyncEstablishments(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		syncInstance, initErr = services.NewEstablishmentSync(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: EstablishmentSync initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	syncInstance.HandleSync(w, r)
}
