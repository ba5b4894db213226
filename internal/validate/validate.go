// Package validate holds the post-upload gate: checks that run strictly
// after bytes are durably stored, and the registrar that commits accepted
// uploads into documents. Storage is treated as a scoped acquisition; any
// rejection path releases the blob the transport already committed.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/pagecurl/flipbookd/internal/admission"
	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/records"
)

// Validator runs the post-store checks on a completed upload. Checked in
// order, first failure wins; every failure deletes the stored blob before
// returning, because the transport commits bytes before metadata is known.
type Validator struct {
	blobs    blob.Store
	maxBytes int64
}

func NewValidator(blobs blob.Store, maxBytes int64) *Validator {
	return &Validator{blobs: blobs, maxBytes: maxBytes}
}

// Validate accepts or rolls back the upload stored under ref.
func (v *Validator) Validate(ctx context.Context, ref string, byteSize int64, mimeType string) error {
	if byteSize > v.maxBytes {
		v.release(ctx, ref)
		return flipbook.NewTooLarge(v.maxBytes)
	}
	if mimeType != config.PDFMimeType {
		v.release(ctx, ref)
		return flipbook.NewUnsupportedType(mimeType)
	}
	return nil
}

// release is best-effort: the rejection stands even if the delete fails,
// but a failed delete leaves an orphan and must be loud.
func (v *Validator) release(ctx context.Context, ref string) {
	if err := v.blobs.Delete(ctx, ref); err != nil {
		slog.Error("CRITICAL: Failed to delete rejected upload; blob is orphaned.", "storageRef", ref, "error", err)
	}
}

// RegisterRequest carries the fields needed to commit a validated upload
// as a document. There is no page-count field: the registrar derives the
// count from the stored bytes and ignores any client-side figure.
type RegisterRequest struct {
	Identifier string
	StorageRef string
	Title      string
	ByteSize   int64
}

// Registrar commits validated uploads into flipbook documents. The commit
// re-checks quota and re-derives the page count from the stored bytes
// rather than trusting the client's figures; any commit failure releases
// the stored blob.
type Registrar struct {
	blobs    blob.Store
	docs     records.DocumentStore
	sessions records.SessionStore
	pending  records.PendingUploadStore // nil disables janitor bookkeeping
	quota    *admission.Quota

	// countPages is swappable so tests can run without real PDF bytes.
	countPages func(rs io.ReadSeeker) (int, error)
}

func NewRegistrar(blobs blob.Store, docs records.DocumentStore, sessions records.SessionStore, pending records.PendingUploadStore, quota *admission.Quota) *Registrar {
	return &Registrar{
		blobs:      blobs,
		docs:       docs,
		sessions:   sessions,
		pending:    pending,
		quota:      quota,
		countPages: CountPages,
	}
}

// Register creates the document record for a stored upload. On any
// failure the blob is released before the error is returned, so no
// rejection leaves reachable orphaned storage.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest, now time.Time) (string, error) {
	id, err := r.commit(ctx, req, now)
	if err != nil {
		if delErr := r.blobs.Delete(ctx, req.StorageRef); delErr != nil {
			slog.Error("CRITICAL: Failed to release blob after rejected registration.", "storageRef", req.StorageRef, "error", delErr)
		}
		return "", err
	}

	if r.pending != nil {
		if err := r.pending.MarkCommitted(ctx, req.StorageRef); err != nil {
			// The document exists; losing the janitor marker must not
			// fail the registration.
			slog.Warn("Failed to mark upload committed.", "storageRef", req.StorageRef, "error", err)
		}
	}
	return id, nil
}

func (r *Registrar) commit(ctx context.Context, req RegisterRequest, now time.Time) (string, error) {
	if req.Identifier == "" {
		return "", fmt.Errorf("identifier must not be empty")
	}

	ok, err := r.quota.CanCreate(ctx, req.Identifier)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", flipbook.ErrQuotaExceeded
	}

	pageCount, err := r.countStoredPages(ctx, req.StorageRef)
	if err != nil {
		return "", &flipbook.DecodeError{Err: err}
	}

	doc := &flipbook.Document{
		Identifier: req.Identifier,
		StorageRef: req.StorageRef,
		Title:      req.Title,
		ByteSize:   req.ByteSize,
		MIMEType:   config.PDFMimeType,
		PageCount:  pageCount,
		IsPublic:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := r.docs.Create(ctx, doc)
	if err != nil {
		return "", err
	}

	if err := r.sessions.Track(ctx, req.Identifier, id, now); err != nil {
		slog.Warn("Failed to track flipbook in session.", "flipbookId", id, "error", err)
	}
	return id, nil
}

// countStoredPages re-reads the stored bytes and counts pages with relaxed
// validation, rejecting structurally unreadable files before they become
// documents.
func (r *Registrar) countStoredPages(ctx context.Context, ref string) (int, error) {
	rc, err := r.blobs.Open(ctx, ref)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return 0, fmt.Errorf("failed to read stored upload: %w", err)
	}
	return r.countPages(bytes.NewReader(data))
}

// CountPages counts the pages of a PDF with relaxed validation.
func CountPages(rs io.ReadSeeker) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	count, err := api.PageCount(rs, cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}
