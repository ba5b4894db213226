package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/pagecurl/flipbookd/internal/janitor"
	"github.com/pagecurl/flipbookd/internal/services"
)

var (
	janitorInstance *services.JanitorFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// RecordUploadFinalize fires on every object-finalize event in the
	// uploads bucket; SweepOrphanedUploads is invoked on a schedule.
	functions.CloudEvent("RecordUploadFinalize", recordUploadFinalize)
	functions.HTTP("SweepOrphanedUploads", sweepOrphanedUploads)
}

// main is required by the Go Functions Framework.
func main() {}

func instance() (*services.JanitorFunction, error) {
	once.Do(func() {
		janitorInstance, initErr = services.NewJanitor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return janitorInstance, initErr
}

func recordUploadFinalize(ctx context.Context, e cloudevents.Event) error {
	svc, err := instance()
	if err != nil {
		return err
	}

	var ev janitor.StorageEvent
	if err := json.Unmarshal(e.Data(), &ev); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return svc.RecordFinalize(ctx, ev)
}

func sweepOrphanedUploads(w http.ResponseWriter, r *http.Request) {
	svc, err := instance()
	if err != nil {
		http.Error(w, "initialization failed", http.StatusInternalServerError)
		return
	}

	swept, err := svc.Sweep(r.Context())
	if err != nil {
		slog.Error("Sweep failed", "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{"swept": swept}); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}
