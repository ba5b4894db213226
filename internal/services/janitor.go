package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/gcp"
	"github.com/pagecurl/flipbookd/internal/janitor"
	"github.com/pagecurl/flipbookd/internal/records"
)

type JanitorConfig struct {
	ProjectID     string
	UploadsBucket string
	TTL           time.Duration
}

// JanitorFunction serves the orphan-reclamation endpoints: recording
// object-finalize events and sweeping abandoned uploads.
type JanitorFunction struct {
	janitor *janitor.Janitor
	config  JanitorConfig
}

func NewJanitor(ctx context.Context) (*JanitorFunction, error) {
	cfg := JanitorConfig{
		ProjectID:     gcp.GetEnv("PROJECT_ID", ""),
		UploadsBucket: gcp.GetEnv("UPLOADS_BUCKET", ""),
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.UploadsBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET environment variable must be set")
	}

	ttl, err := time.ParseDuration(gcp.GetEnv("PENDING_UPLOAD_TTL", janitor.DefaultTTL.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_UPLOAD_TTL: %w", err)
	}
	cfg.TTL = ttl

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewGCSStore(storageClient, cfg.UploadsBucket)
	if err != nil {
		return nil, err
	}

	f := &JanitorFunction{
		janitor: janitor.New(records.NewFirestoreStore(firestoreClient), blobs, cfg.TTL, slog.Default()),
		config:  cfg,
	}
	slog.Info("Janitor logic initialized.", "uploadsBucket", cfg.UploadsBucket, "ttl", cfg.TTL.String())
	return f, nil
}

// RecordFinalize registers a freshly stored object as pending commit.
func (f *JanitorFunction) RecordFinalize(ctx context.Context, ev janitor.StorageEvent) error {
	return f.janitor.RecordFinalize(ctx, ev, time.Now())
}

// Sweep reclaims uploads that were never committed within the TTL.
func (f *JanitorFunction) Sweep(ctx context.Context) (int, error) {
	return f.janitor.Sweep(ctx, time.Now())
}
