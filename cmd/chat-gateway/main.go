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
	gatewayInstance *services.ChatGatewayFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function with the framework.
	// "HandleChat" is the entry point name configured in GCP.
	functions.HTTP("HandleChat", handleChat)
}

// main is required by the Go Functions Framework.
func main() {}

// handleChat is the HTTP handler for the public chat widget.
func handleChat(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		gatewayInstance, initErr = services.NewChatGateway(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: ChatGateway initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	gatewayInstance.HandleChat(w, r)
}
