package services

import (
	"context"
	"errors"
	"testing"

	"github.com/pagecurl/flipbookd/internal/admission"
	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/records"
	"github.com/pagecurl/flipbookd/internal/validate"
)

func newTestUploads(t *testing.T) (*UploadsFunction, *blob.MemoryStore) {
	t.Helper()

	blobs := blob.NewMemoryStore()
	return &UploadsFunction{
		controller: admission.NewController(records.NewMemoryStore(), config.RateLimitWindow, config.RateLimitCeiling),
		validator:  validate.NewValidator(blobs, config.MaxFileSize),
		blobs:      blobs,
	}, blobs
}

func TestGenerateUploadURL(t *testing.T) {
	f, _ := newTestUploads(t)

	got, err := f.GenerateUploadURL(context.Background(), flipbook.UploadURLRequest{Identifier: "session-a"})
	if err != nil {
		t.Fatalf("GenerateUploadURL: %v", err)
	}
	if got.UploadURL == "" || got.StorageRef == "" {
		t.Fatalf("grant is incomplete: %+v", got)
	}
}

func TestGenerateUploadURLRateLimits(t *testing.T) {
	f, _ := newTestUploads(t)
	ctx := context.Background()

	for i := 0; i < config.RateLimitCeiling; i++ {
		if _, err := f.GenerateUploadURL(ctx, flipbook.UploadURLRequest{Identifier: "session-a"}); err != nil {
			t.Fatalf("grant %d: %v", i+1, err)
		}
	}
	_, err := f.GenerateUploadURL(ctx, flipbook.UploadURLRequest{Identifier: "session-a"})
	if !errors.Is(err, flipbook.ErrRateLimited) {
		t.Fatalf("grant %d = %v, want ErrRateLimited", config.RateLimitCeiling+1, err)
	}

	// Another identifier is unaffected.
	if _, err := f.GenerateUploadURL(ctx, flipbook.UploadURLRequest{Identifier: "session-b"}); err != nil {
		t.Fatalf("other identifier: %v", err)
	}
}

func TestGenerateUploadURLRejectsEmptyIdentifier(t *testing.T) {
	f, _ := newTestUploads(t)

	if _, err := f.GenerateUploadURL(context.Background(), flipbook.UploadURLRequest{}); err == nil {
		t.Fatal("an empty identifier must be rejected")
	}
}

func TestValidateFileAccepts(t *testing.T) {
	f, blobs := newTestUploads(t)
	blobs.Put("blob-0001.pdf", []byte("pdf"))

	got, err := f.ValidateFile(context.Background(), flipbook.ValidateFileRequest{
		StorageRef: "blob-0001.pdf",
		FileSize:   1024,
		MIMEType:   config.PDFMimeType,
	})
	if err != nil {
		t.Fatalf("ValidateFile: %v", err)
	}
	if !got.Valid {
		t.Fatal("a clean upload must validate")
	}
	if !blobs.Exists("blob-0001.pdf") {
		t.Fatal("acceptance must keep the blob")
	}
}

func TestValidateFileRejectionDeletesBlob(t *testing.T) {
	f, blobs := newTestUploads(t)
	blobs.Put("blob-0001.pdf", []byte("zip"))

	_, err := f.ValidateFile(context.Background(), flipbook.ValidateFileRequest{
		StorageRef: "blob-0001.pdf",
		FileSize:   1024,
		MIMEType:   "application/zip",
	})
	var verr *flipbook.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidateFile = %v, want ValidationError", err)
	}
	if verr.Reason != flipbook.ReasonUnsupportedType {
		t.Fatalf("Reason = %v, want unsupported type", verr.Reason)
	}
	if blobs.Exists("blob-0001.pdf") {
		t.Fatal("rejection must delete the stored bytes")
	}
}

func TestValidateFileRequiresStorageRef(t *testing.T) {
	f, _ := newTestUploads(t)

	if _, err := f.ValidateFile(context.Background(), flipbook.ValidateFileRequest{FileSize: 1, MIMEType: config.PDFMimeType}); err == nil {
		t.Fatal("a missing storageRef must be rejected")
	}
}
