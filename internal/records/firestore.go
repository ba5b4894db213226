package records

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pagecurl/flipbookd/internal/flipbook"
)

// Collection names, matching the original deployment's schema.
const (
	FlipbooksCollection      = "flipbooks"
	RateLimitsCollection     = "uploadRateLimits"
	SessionsCollection       = "anonymousSessions"
	PendingUploadsCollection = "pendingUploads"
)

// FirestoreStore implements the persistence ports on Firestore.
// Rate windows and sessions are keyed by identifier; pending uploads by
// storage reference; flipbooks use generated document IDs.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

var (
	_ RateWindowStore    = (*FirestoreStore)(nil)
	_ DocumentStore      = (*FirestoreStore)(nil)
	_ SessionStore       = (*FirestoreStore)(nil)
	_ PendingUploadStore = (*FirestoreStore)(nil)
)

// Mutate runs fn over the identifier's rate window inside a Firestore
// transaction. The transactional read-modify-write is what closes the
// over-admission race between concurrent checks for one identifier.
func (s *FirestoreStore) Mutate(ctx context.Context, identifier string, fn func(w *flipbook.RateWindow) (*flipbook.RateWindow, error)) error {
	ref := s.client.Collection(RateLimitsCollection).Doc(identifier)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current *flipbook.RateWindow

		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			// First admission check for this identifier.
		case err != nil:
			return fmt.Errorf("failed to read rate window: %w", err)
		default:
			var w flipbook.RateWindow
			if err := snap.DataTo(&w); err != nil {
				return fmt.Errorf("failed to decode rate window: %w", err)
			}
			current = &w
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, next); err != nil {
			return fmt.Errorf("failed to write rate window: %w", err)
		}
		return nil
	})
}

func (s *FirestoreStore) CountByIdentifier(ctx context.Context, identifier string) (int, error) {
	it := s.client.Collection(FlipbooksCollection).Where("identifier", "==", identifier).Documents(ctx)
	defer it.Stop()

	count := 0
	for {
		_, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to count documents: %w", err)
		}
		count++
	}
	return count, nil
}

func (s *FirestoreStore) Create(ctx context.Context, doc *flipbook.Document) (string, error) {
	ref, _, err := s.client.Collection(FlipbooksCollection).Add(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to create flipbook document: %w", err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*flipbook.Document, error) {
	snap, err := s.client.Collection(FlipbooksCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, flipbook.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flipbook document: %w", err)
	}

	var doc flipbook.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode flipbook document: %w", err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

func (s *FirestoreStore) ListByIdentifier(ctx context.Context, identifier string) ([]*flipbook.Document, error) {
	it := s.client.Collection(FlipbooksCollection).
		Where("identifier", "==", identifier).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer it.Stop()

	var docs []*flipbook.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list flipbook documents: %w", err)
		}
		var doc flipbook.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode flipbook document: %w", err)
		}
		doc.ID = snap.Ref.ID
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Collection(FlipbooksCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete flipbook document: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateTitle(ctx context.Context, id, title string, now time.Time) error {
	updates := []firestore.Update{
		{Path: "title", Value: title},
		{Path: "updatedAt", Value: now},
	}
	if _, err := s.client.Collection(FlipbooksCollection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update flipbook title: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Track(ctx context.Context, identifier, flipbookID string, now time.Time) error {
	ref := s.client.Collection(SessionsCollection).Doc(identifier)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return tx.Set(ref, &flipbook.Session{
				SessionID:    identifier,
				FlipbookIDs:  []string{flipbookID},
				CreatedAt:    now,
				LastActiveAt: now,
			})
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}

		var session flipbook.Session
		if err := snap.DataTo(&session); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}
		session.FlipbookIDs = append(session.FlipbookIDs, flipbookID)
		session.LastActiveAt = now
		return tx.Set(ref, &session)
	})
}

func (s *FirestoreStore) MarkPending(ctx context.Context, ref, bucket string, now time.Time) error {
	doc := s.client.Collection(PendingUploadsCollection).Doc(ref)

	// Create-only so a replayed finalize event cannot reset the clock on
	// an upload that is already aging toward the sweep.
	_, err := doc.Create(ctx, &flipbook.PendingUpload{
		StorageRef: ref,
		Bucket:     bucket,
		CreatedAt:  now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record pending upload: %w", err)
	}
	return nil
}

func (s *FirestoreStore) MarkCommitted(ctx context.Context, ref string) error {
	updates := []firestore.Update{
		{Path: "committed", Value: true},
	}
	_, err := s.client.Collection(PendingUploadsCollection).Doc(ref).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		// Finalize event may not have arrived yet; nothing to mark.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark upload committed: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListExpired(ctx context.Context, cutoff time.Time) ([]flipbook.PendingUpload, error) {
	it := s.client.Collection(PendingUploadsCollection).
		Where("committed", "==", false).
		Where("createdAt", "<", cutoff).
		Documents(ctx)
	defer it.Stop()

	var expired []flipbook.PendingUpload
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list pending uploads: %w", err)
		}
		var p flipbook.PendingUpload
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode pending upload: %w", err)
		}
		expired = append(expired, p)
	}
	return expired, nil
}

func (s *FirestoreStore) Remove(ctx context.Context, ref string) error {
	if _, err := s.client.Collection(PendingUploadsCollection).Doc(ref).Delete(ctx); err != nil {
		return fmt.Errorf("failed to remove pending upload: %w", err)
	}
	return nil
}
