// Package records defines the persistence ports for rate windows, flipbook
// documents, anonymous sessions and pending uploads, plus the Firestore
// production implementation and an in-memory implementation for tests.
package records

import (
	"context"
	"time"

	"github.com/pagecurl/flipbookd/internal/flipbook"
)

// RateWindowStore persists per-identifier upload accounting windows.
type RateWindowStore interface {
	// Mutate runs fn against the identifier's current window inside an
	// atomic read-modify-write. fn receives nil when no window exists and
	// returns the window to persist; returning an error aborts without
	// writing. Concurrent calls for one identifier serialize, so the
	// ceiling cannot be over-admitted by racing checks.
	Mutate(ctx context.Context, identifier string, fn func(w *flipbook.RateWindow) (*flipbook.RateWindow, error)) error
}

// DocumentStore persists flipbook documents.
type DocumentStore interface {
	CountByIdentifier(ctx context.Context, identifier string) (int, error)
	Create(ctx context.Context, doc *flipbook.Document) (string, error)
	Get(ctx context.Context, id string) (*flipbook.Document, error)
	// ListByIdentifier returns the identifier's documents, newest first.
	ListByIdentifier(ctx context.Context, identifier string) ([]*flipbook.Document, error)
	Delete(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string, now time.Time) error
}

// SessionStore tracks which flipbooks belong to an anonymous session.
type SessionStore interface {
	// Track appends flipbookID to the identifier's session, creating the
	// session record on first use, and refreshes its last-active time.
	Track(ctx context.Context, identifier, flipbookID string, now time.Time) error
}

// PendingUploadStore tracks stored blobs that have not yet been committed
// to a document, so orphans can be swept.
type PendingUploadStore interface {
	MarkPending(ctx context.Context, ref, bucket string, now time.Time) error
	MarkCommitted(ctx context.Context, ref string) error
	// ListExpired returns uncommitted uploads recorded before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]flipbook.PendingUpload, error)
	Remove(ctx context.Context, ref string) error
}
