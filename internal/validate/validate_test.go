package validate

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pagecurl/flipbookd/internal/admission"
	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/records"
)

func TestValidateRejectsOversized(t *testing.T) {
	blobs := blob.NewMemoryStore()
	blobs.Put("big.pdf", []byte("pdf bytes"))
	v := NewValidator(blobs, config.MaxFileSize)

	err := v.Validate(context.Background(), "big.pdf", config.MaxFileSize+1, config.PDFMimeType)

	var verr *flipbook.ValidationError
	if !errors.As(err, &verr) || verr.Reason != flipbook.ReasonTooLarge {
		t.Fatalf("Validate = %v, want TooLarge", err)
	}
	if blobs.Exists("big.pdf") {
		t.Fatal("rejected blob must be deleted")
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	blobs := blob.NewMemoryStore()
	blobs.Put("doc.pdf", []byte("zip bytes"))
	v := NewValidator(blobs, config.MaxFileSize)

	err := v.Validate(context.Background(), "doc.pdf", 1024, "application/zip")

	var verr *flipbook.ValidationError
	if !errors.As(err, &verr) || verr.Reason != flipbook.ReasonUnsupportedType {
		t.Fatalf("Validate = %v, want UnsupportedType", err)
	}
	if blobs.Exists("doc.pdf") {
		t.Fatal("rejected blob must be deleted")
	}
}

func TestValidateSizeCheckedBeforeType(t *testing.T) {
	// Both checks fail; the size rejection must win.
	blobs := blob.NewMemoryStore()
	blobs.Put("both.pdf", []byte("x"))
	v := NewValidator(blobs, config.MaxFileSize)

	err := v.Validate(context.Background(), "both.pdf", config.MaxFileSize+1, "text/plain")

	var verr *flipbook.ValidationError
	if !errors.As(err, &verr) || verr.Reason != flipbook.ReasonTooLarge {
		t.Fatalf("Validate = %v, want TooLarge first", err)
	}
}

func TestValidateAccepts(t *testing.T) {
	blobs := blob.NewMemoryStore()
	blobs.Put("ok.pdf", []byte("pdf bytes"))
	v := NewValidator(blobs, config.MaxFileSize)

	if err := v.Validate(context.Background(), "ok.pdf", 1024, config.PDFMimeType); err != nil {
		t.Fatalf("Validate = %v, want nil", err)
	}
	if !blobs.Exists("ok.pdf") {
		t.Fatal("accepted blob must remain stored")
	}
}

func newTestRegistrar(blobs blob.Store, store *records.MemoryStore, quotaCeiling, pageCount int) *Registrar {
	r := NewRegistrar(blobs, store, store, store, admission.NewQuota(store, quotaCeiling))
	r.countPages = func(io.ReadSeeker) (int, error) { return pageCount, nil }
	return r
}

func TestRegisterCreatesDocument(t *testing.T) {
	blobs := blob.NewMemoryStore()
	blobs.Put("a.pdf", []byte("pdf bytes"))
	store := records.NewMemoryStore()
	r := newTestRegistrar(blobs, store, 20, 12)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := r.Register(context.Background(), RegisterRequest{
		Identifier: "u1",
		StorageRef: "a.pdf",
		Title:      "My Flipbook",
		ByteSize:   1024,
	}, now)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	doc, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// The page count comes from counting the stored bytes; the request
	// carries no figure for the client to inflate.
	if doc.PageCount != 12 || doc.Identifier != "u1" || doc.StorageRef != "a.pdf" {
		t.Fatalf("stored document = %+v", doc)
	}
	if !blobs.Exists("a.pdf") {
		t.Fatal("blob must survive successful registration")
	}

	session, ok := store.Session("u1")
	if !ok || len(session.FlipbookIDs) != 1 || session.FlipbookIDs[0] != id {
		t.Fatalf("session = %+v, ok=%v", session, ok)
	}
}

func TestRegisterQuotaReleasesBlob(t *testing.T) {
	blobs := blob.NewMemoryStore()
	blobs.Put("a.pdf", []byte("pdf bytes"))
	store := records.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Create(ctx, &flipbook.Document{Identifier: "u1", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	r := newTestRegistrar(blobs, store, 1, 3)

	_, err := r.Register(ctx, RegisterRequest{
		Identifier: "u1",
		StorageRef: "a.pdf",
		ByteSize:   1024,
	}, now)
	if !errors.Is(err, flipbook.ErrQuotaExceeded) {
		t.Fatalf("Register = %v, want ErrQuotaExceeded", err)
	}
	if blobs.Exists("a.pdf") {
		t.Fatal("blob must be released when registration is rejected")
	}
}

func TestRegisterUnreadablePDFReleasesBlob(t *testing.T) {
	blobs := blob.NewMemoryStore()
	blobs.Put("junk.pdf", []byte("not a pdf"))
	store := records.NewMemoryStore()
	r := NewRegistrar(blobs, store, store, store, admission.NewQuota(store, 20))
	r.countPages = func(io.ReadSeeker) (int, error) { return 0, errors.New("bad xref") }

	_, err := r.Register(context.Background(), RegisterRequest{
		Identifier: "u1",
		StorageRef: "junk.pdf",
		ByteSize:   9,
	}, time.Now())

	var derr *flipbook.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("Register = %v, want DecodeError", err)
	}
	if blobs.Exists("junk.pdf") {
		t.Fatal("unreadable blob must be released")
	}
}
