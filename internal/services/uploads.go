// Package services wires the domain packages onto Google Cloud for the
// deployed functions: each service owns its clients, reads its settings
// from the environment and exposes the request handlers the cmd
// entrypoints register.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagecurl/flipbookd/internal/admission"
	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/gcp"
	"github.com/pagecurl/flipbookd/internal/records"
	"github.com/pagecurl/flipbookd/internal/validate"
)

type UploadsConfig struct {
	ProjectID     string
	UploadsBucket string
}

// UploadsFunction serves the upload admission endpoints: issuing
// pre-authorized upload URLs and validating completed uploads.
type UploadsFunction struct {
	controller *admission.Controller
	validator  *validate.Validator
	blobs      blob.Store
	config     UploadsConfig
}

func NewUploads(ctx context.Context) (*UploadsFunction, error) {
	cfg := UploadsConfig{
		ProjectID:     gcp.GetEnv("PROJECT_ID", ""),
		UploadsBucket: gcp.GetEnv("UPLOADS_BUCKET", ""),
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.UploadsBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET environment variable must be set")
	}

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

	store := records.NewFirestoreStore(firestoreClient)
	f := &UploadsFunction{
		controller: admission.NewController(store, config.RateLimitWindow, config.RateLimitCeiling),
		validator:  validate.NewValidator(blobs, config.MaxFileSize),
		blobs:      blobs,
		config:     cfg,
	}
	slog.Info("Uploads logic initialized.", "uploadsBucket", cfg.UploadsBucket)
	return f, nil
}

// GenerateUploadURL admits one upload attempt against the identifier's
// rate window and, when admitted, grants a pre-authorized upload slot.
func (f *UploadsFunction) GenerateUploadURL(ctx context.Context, req flipbook.UploadURLRequest) (*flipbook.UploadURLResponse, error) {
	logCtx := slog.With("identifier", req.Identifier)

	if err := f.controller.Authorize(ctx, req.Identifier, time.Now()); err != nil {
		logCtx.Warn("Upload attempt not admitted.", "error", err)
		return nil, err
	}

	granted, err := f.blobs.IssueUpload(ctx)
	if err != nil {
		logCtx.Error("Failed to issue upload URL.", "error", err)
		return nil, err
	}
	logCtx.Info("Granted upload slot.", "storageRef", granted.Ref)
	return &flipbook.UploadURLResponse{
		UploadURL:  granted.URL,
		StorageRef: granted.Ref,
	}, nil
}

// ValidateFile accepts or rolls back an upload whose bytes are already
// stored. A rejection has deleted the blob by the time it is reported.
func (f *UploadsFunction) ValidateFile(ctx context.Context, req flipbook.ValidateFileRequest) (*flipbook.ValidateFileResponse, error) {
	logCtx := slog.With("storageRef", req.StorageRef, "fileSize", req.FileSize, "mimeType", req.MIMEType)

	if req.StorageRef == "" {
		return nil, fmt.Errorf("storageRef must not be empty")
	}
	if err := f.validator.Validate(ctx, req.StorageRef, req.FileSize, req.MIMEType); err != nil {
		logCtx.Warn("Upload rejected after storage.", "error", err)
		return nil, err
	}
	logCtx.Info("Upload validated.")
	return &flipbook.ValidateFileResponse{Valid: true}, nil
}
