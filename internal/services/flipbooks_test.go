package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagecurl/flipbookd/internal/admission"
	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/config"
	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/records"
	"github.com/pagecurl/flipbookd/internal/validate"
)

func newTestFlipbooks(t *testing.T) (*FlipbooksFunction, *records.MemoryStore, *blob.MemoryStore) {
	t.Helper()

	store := records.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	quota := admission.NewQuota(store, config.MaxDocumentsPerIdentifier)
	return &FlipbooksFunction{
		registrar: validate.NewRegistrar(blobs, store, store, store, quota),
		docs:      store,
		blobs:     blobs,
	}, store, blobs
}

func seedFlipbook(t *testing.T, store *records.MemoryStore, blobs *blob.MemoryStore, identifier, ref string) string {
	t.Helper()

	blobs.Put(ref, []byte("%PDF-1.4 fixture"))
	id, err := store.Create(context.Background(), &flipbook.Document{
		Identifier: identifier,
		StorageRef: ref,
		Title:      "brochure.pdf",
		ByteSize:   1024,
		MIMEType:   config.PDFMimeType,
		PageCount:  7,
		IsPublic:   true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed Create: %v", err)
	}
	return id
}

func TestGetResolvesRetrievalURL(t *testing.T) {
	f, store, blobs := newTestFlipbooks(t)
	id := seedFlipbook(t, store, blobs, "session-a", "blob-0001.pdf")

	got, err := f.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != id || got.Title != "brochure.pdf" {
		t.Fatalf("Get returned %+v", got.Document)
	}
	if got.FileURL == "" {
		t.Fatal("Get must resolve a retrieval URL")
	}
}

func TestGetUnknownID(t *testing.T) {
	f, _, _ := newTestFlipbooks(t)

	_, err := f.Get(context.Background(), "fb-9999")
	if !errors.Is(err, flipbook.ErrNotFound) {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirstWithURLs(t *testing.T) {
	f, store, blobs := newTestFlipbooks(t)

	blobs.Put("old.pdf", []byte("pdf"))
	blobs.Put("new.pdf", []byte("pdf"))
	now := time.Now()
	for i, ref := range []string{"old.pdf", "new.pdf"} {
		if _, err := store.Create(context.Background(), &flipbook.Document{
			Identifier: "session-a",
			StorageRef: ref,
			Title:      ref,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("seed Create: %v", err)
		}
	}

	got, err := f.List(context.Background(), "session-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(got))
	}
	if got[0].StorageRef != "new.pdf" {
		t.Fatalf("List order = [%s, %s], want newest first", got[0].StorageRef, got[1].StorageRef)
	}
	for _, r := range got {
		if r.FileURL == "" {
			t.Fatalf("flipbook %s listed without a retrieval URL", r.ID)
		}
	}
}

func TestListKeepsDocumentWhenResolveFails(t *testing.T) {
	f, store, blobs := newTestFlipbooks(t)
	seedFlipbook(t, store, blobs, "session-a", "blob-0001.pdf")

	// A record whose blob is missing still appears in the listing.
	if _, err := store.Create(context.Background(), &flipbook.Document{
		Identifier: "session-a",
		StorageRef: "vanished.pdf",
		CreatedAt:  time.Now().Add(time.Minute),
	}); err != nil {
		t.Fatalf("seed Create: %v", err)
	}

	got, err := f.List(context.Background(), "session-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(got))
	}
	if got[0].FileURL != "" {
		t.Fatal("the vanished blob must list with an empty URL")
	}
	if got[1].FileURL == "" {
		t.Fatal("the healthy blob must still resolve")
	}
}

func TestRemoveDeletesRecordAndBlob(t *testing.T) {
	f, store, blobs := newTestFlipbooks(t)
	id := seedFlipbook(t, store, blobs, "session-a", "blob-0001.pdf")

	err := f.Remove(context.Background(), flipbook.RemoveFlipbookRequest{ID: id, Identifier: "session-a"})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if blobs.Exists("blob-0001.pdf") {
		t.Fatal("Remove must delete the stored bytes")
	}
	if _, err := store.Get(context.Background(), id); !errors.Is(err, flipbook.ErrNotFound) {
		t.Fatalf("record still readable after Remove: %v", err)
	}
}

func TestRemoveRequiresOwnership(t *testing.T) {
	f, store, blobs := newTestFlipbooks(t)
	id := seedFlipbook(t, store, blobs, "session-a", "blob-0001.pdf")

	err := f.Remove(context.Background(), flipbook.RemoveFlipbookRequest{ID: id, Identifier: "session-b"})
	if !errors.Is(err, flipbook.ErrUnauthorized) {
		t.Fatalf("Remove by a stranger = %v, want ErrUnauthorized", err)
	}
	if !blobs.Exists("blob-0001.pdf") {
		t.Fatal("an unauthorized Remove must not touch storage")
	}
}

func TestUpdateTitle(t *testing.T) {
	f, store, blobs := newTestFlipbooks(t)
	id := seedFlipbook(t, store, blobs, "session-a", "blob-0001.pdf")

	err := f.UpdateTitle(context.Background(), flipbook.UpdateTitleRequest{ID: id, Identifier: "session-a", Title: "  Q3 catalogue  "})
	if err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	doc, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Title != "Q3 catalogue" {
		t.Fatalf("Title = %q, want trimmed rename", doc.Title)
	}
}

func TestUpdateTitleRejectsBlankAndStrangers(t *testing.T) {
	f, store, blobs := newTestFlipbooks(t)
	id := seedFlipbook(t, store, blobs, "session-a", "blob-0001.pdf")

	if err := f.UpdateTitle(context.Background(), flipbook.UpdateTitleRequest{ID: id, Identifier: "session-a", Title: "   "}); err == nil {
		t.Fatal("a blank title must be rejected")
	}
	err := f.UpdateTitle(context.Background(), flipbook.UpdateTitleRequest{ID: id, Identifier: "session-b", Title: "mine now"})
	if !errors.Is(err, flipbook.ErrUnauthorized) {
		t.Fatalf("rename by a stranger = %v, want ErrUnauthorized", err)
	}
}
