package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pagecurl/flipbookd/internal/admission"
	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/gcp"
	"github.com/pagecurl/flipbookd/internal/records"
	"github.com/pagecurl/flipbookd/internal/validate"
)

type FlipbooksConfig struct {
	ProjectID     string
	UploadsBucket string
}

// FlipbooksFunction serves the document lifecycle endpoints: committing
// validated uploads into flipbooks and reading, renaming and deleting
// them afterward.
type FlipbooksFunction struct {
	registrar *validate.Registrar
	docs      records.DocumentStore
	blobs     blob.Store
	config    FlipbooksConfig
}

func NewFlipbooks(ctx context.Context) (*FlipbooksFunction, error) {
	cfg := FlipbooksConfig{
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
	quota := admission.NewQuota(store, config.MaxDocumentsPerIdentifier)
	f := &FlipbooksFunction{
		registrar: validate.NewRegistrar(blobs, store, store, store, quota),
		docs:      store,
		blobs:     blobs,
		config:    cfg,
	}
	slog.Info("Flipbooks logic initialized.", "uploadsBucket", cfg.UploadsBucket)
	return f, nil
}

// Create commits a validated upload into a flipbook document. Quota and
// readability are re-checked server-side; a rejected commit releases the
// stored blob.
func (f *FlipbooksFunction) Create(ctx context.Context, req flipbook.CreateFlipbookRequest) (*flipbook.CreateFlipbookResponse, error) {
	logCtx := slog.With("identifier", req.Identifier, "storageRef", req.StorageRef)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled"
	}

	id, err := f.registrar.Register(ctx, validate.RegisterRequest{
		Identifier: req.Identifier,
		StorageRef: req.StorageRef,
		Title:      title,
		ByteSize:   req.FileSize,
	}, time.Now())
	if err != nil {
		logCtx.Warn("Flipbook registration rejected.", "error", err)
		return nil, err
	}
	logCtx.Info("Flipbook created.", "flipbookId", id)
	return &flipbook.CreateFlipbookResponse{ID: id}, nil
}

// Get returns one flipbook with a fresh retrieval URL. Flipbooks are
// publicly readable by ID; ownership only gates mutation.
func (f *FlipbooksFunction) Get(ctx context.Context, id string) (*flipbook.FlipbookResponse, error) {
	doc, err := f.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := f.blobs.Resolve(ctx, doc.StorageRef)
	if err != nil {
		slog.Error("Failed to resolve retrieval URL.", "flipbookId", id, "storageRef", doc.StorageRef, "error", err)
		return nil, err
	}
	return &flipbook.FlipbookResponse{Document: *doc, FileURL: url}, nil
}

// List returns the identifier's flipbooks, newest first, each with a
// fresh retrieval URL. A document whose URL cannot be resolved is still
// listed, with an empty URL.
func (f *FlipbooksFunction) List(ctx context.Context, identifier string) ([]*flipbook.FlipbookResponse, error) {
	if identifier == "" {
		return nil, fmt.Errorf("identifier must not be empty")
	}

	docs, err := f.docs.ListByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	responses := make([]*flipbook.FlipbookResponse, 0, len(docs))
	for _, doc := range docs {
		url, err := f.blobs.Resolve(ctx, doc.StorageRef)
		if err != nil {
			slog.Warn("Failed to resolve retrieval URL for listing.", "flipbookId", doc.ID, "error", err)
			url = ""
		}
		responses = append(responses, &flipbook.FlipbookResponse{Document: *doc, FileURL: url})
	}
	return responses, nil
}

// Remove deletes a flipbook and its stored bytes. Only the creating
// identifier may delete; the blob goes first so a failure keeps the
// record pointing at storage that still exists.
func (f *FlipbooksFunction) Remove(ctx context.Context, req flipbook.RemoveFlipbookRequest) error {
	logCtx := slog.With("flipbookId", req.ID, "identifier", req.Identifier)

	doc, err := f.owned(ctx, req.ID, req.Identifier)
	if err != nil {
		return err
	}

	if err := f.blobs.Delete(ctx, doc.StorageRef); err != nil {
		logCtx.Error("Failed to delete stored bytes.", "storageRef", doc.StorageRef, "error", err)
		return err
	}
	if err := f.docs.Delete(ctx, req.ID); err != nil {
		logCtx.Error("CRITICAL: Blob deleted but document record remains.", "storageRef", doc.StorageRef, "error", err)
		return err
	}
	logCtx.Info("Flipbook deleted.")
	return nil
}

// UpdateTitle renames a flipbook. Only the creating identifier may
// rename, and the new title must be non-blank.
func (f *FlipbooksFunction) UpdateTitle(ctx context.Context, req flipbook.UpdateTitleRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return fmt.Errorf("title must not be blank")
	}

	if _, err := f.owned(ctx, req.ID, req.Identifier); err != nil {
		return err
	}
	if err := f.docs.UpdateTitle(ctx, req.ID, title, time.Now()); err != nil {
		return err
	}
	slog.Info("Flipbook renamed.", "flipbookId", req.ID)
	return nil
}

// owned loads the document and checks the caller created it.
func (f *FlipbooksFunction) owned(ctx context.Context, id, identifier string) (*flipbook.Document, error) {
	doc, err := f.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if identifier == "" || doc.Identifier != identifier {
		return nil, flipbook.ErrUnauthorized
	}
	return doc, nil
}
