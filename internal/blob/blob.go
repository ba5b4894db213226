// Package blob defines the byte-storage port for uploaded PDFs and its
// Cloud Storage production implementation. The transport commits bytes
// before any metadata is known, so every caller that rejects an upload is
// responsible for releasing the blob it already holds.
package blob

import (
	"context"
	"io"
)

// Upload is a granted upload slot: a pre-authorized URL the client PUTs
// bytes to, and the storage reference those bytes will land under.
type Upload struct {
	URL string
	Ref string
}

// Store is the byte-storage port.
type Store interface {
	// IssueUpload allocates a storage reference and returns the URL to
	// transfer bytes to. Issuing a slot stores nothing by itself.
	IssueUpload(ctx context.Context) (*Upload, error)

	// Transfer writes bytes under ref server-side. Used where the bytes
	// originate inside the service rather than from a browser PUT.
	Transfer(ctx context.Context, ref string, src io.ReadSeeker) error

	// Delete removes the stored bytes. Deleting an absent ref is an error.
	Delete(ctx context.Context, ref string) error

	// Resolve returns a retrieval URL for the stored bytes.
	Resolve(ctx context.Context, ref string) (string, error)

	// Open streams the stored bytes for server-side reads.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}
