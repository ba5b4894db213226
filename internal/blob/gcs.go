package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const (
	uploadURLTTL    = 15 * time.Minute
	retrievalURLTTL = 1 * time.Hour
	writeTimeout    = 50 * time.Second
)

// GCSStore implements Store on a single Cloud Storage bucket. Objects are
// named by UUID so references never collide and stay valid Firestore
// document IDs.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(client *storage.Client, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a GCS blob store")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) IssueUpload(ctx context.Context) (*Upload, error) {
	ref := uuid.NewString() + ".pdf"

	url, err := s.client.Bucket(s.bucket).SignedURL(ref, &storage.SignedURLOptions{
		Method:  http.MethodPut,
		Expires: time.Now().Add(uploadURLTTL),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload URL: %w", err)
	}
	return &Upload{URL: url, Ref: ref}, nil
}

// Transfer writes the bytes under ref, retrying transient failures with a
// doubling backoff. The source is rewound before every attempt.
func (s *GCSStore) Transfer(ctx context.Context, ref string, src io.ReadSeeker) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			if _, err := src.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("failed to rewind source: %w", err)
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			defer cancel()

			writer := s.client.Bucket(s.bucket).Object(ref).NewWriter(writeCtx)
			if _, err := io.Copy(writer, src); err != nil {
				_ = writer.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := writer.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()

		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Blob transfer failed, will retry.",
			"gcsObject", ref,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", ref, "error", ctx.Err())
			return ctx.Err()
		}
	}
	return fmt.Errorf("transfer for %s failed after all retries: %w", ref, lastErr)
}

func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	if err := s.client.Bucket(s.bucket).Object(ref).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", s.bucket, ref, err)
	}
	return nil
}

func (s *GCSStore) Resolve(ctx context.Context, ref string) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(ref, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(retrievalURLTTL),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign retrieval URL: %w", err)
	}
	return url, nil
}

func (s *GCSStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(ref).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.bucket, ref, err)
	}
	return reader, nil
}
