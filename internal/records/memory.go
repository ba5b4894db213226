package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pagecurl/flipbookd/internal/flipbook"
)

// MemoryStore is an in-memory implementation of every persistence port.
// It backs the test suites and local development runs. A single mutex
// guards all maps, which gives Mutate the same serialization guarantee the
// Firestore transaction provides.
type MemoryStore struct {
	mu       sync.Mutex
	windows  map[string]*flipbook.RateWindow
	docs     map[string]*flipbook.Document
	sessions map[string]*flipbook.Session
	pending  map[string]*flipbook.PendingUpload
	nextID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:  make(map[string]*flipbook.RateWindow),
		docs:     make(map[string]*flipbook.Document),
		sessions: make(map[string]*flipbook.Session),
		pending:  make(map[string]*flipbook.PendingUpload),
	}
}

var (
	_ RateWindowStore    = (*MemoryStore)(nil)
	_ DocumentStore      = (*MemoryStore)(nil)
	_ SessionStore       = (*MemoryStore)(nil)
	_ PendingUploadStore = (*MemoryStore)(nil)
)

func (s *MemoryStore) Mutate(ctx context.Context, identifier string, fn func(w *flipbook.RateWindow) (*flipbook.RateWindow, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *flipbook.RateWindow
	if w, ok := s.windows[identifier]; ok {
		copied := *w
		current = &copied
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	s.windows[identifier] = next
	return nil
}

func (s *MemoryStore) CountByIdentifier(ctx context.Context, identifier string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, doc := range s.docs {
		if doc.Identifier == identifier {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Create(ctx context.Context, doc *flipbook.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("fb-%04d", s.nextID)
	copied := *doc
	copied.ID = id
	s.docs[id] = &copied
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*flipbook.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, flipbook.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *MemoryStore) ListByIdentifier(ctx context.Context, identifier string) ([]*flipbook.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []*flipbook.Document
	for _, doc := range s.docs {
		if doc.Identifier == identifier {
			copied := *doc
			docs = append(docs, &copied)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) UpdateTitle(ctx context.Context, id, title string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return flipbook.ErrNotFound
	}
	doc.Title = title
	doc.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Track(ctx context.Context, identifier, flipbookID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[identifier]
	if !ok {
		s.sessions[identifier] = &flipbook.Session{
			SessionID:    identifier,
			FlipbookIDs:  []string{flipbookID},
			CreatedAt:    now,
			LastActiveAt: now,
		}
		return nil
	}
	session.FlipbookIDs = append(session.FlipbookIDs, flipbookID)
	session.LastActiveAt = now
	return nil
}

func (s *MemoryStore) MarkPending(ctx context.Context, ref, bucket string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[ref]; ok {
		return nil
	}
	s.pending[ref] = &flipbook.PendingUpload{
		StorageRef: ref,
		Bucket:     bucket,
		CreatedAt:  now,
	}
	return nil
}

func (s *MemoryStore) MarkCommitted(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[ref]; ok {
		p.Committed = true
	}
	return nil
}

func (s *MemoryStore) ListExpired(ctx context.Context, cutoff time.Time) ([]flipbook.PendingUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []flipbook.PendingUpload
	for _, p := range s.pending {
		if !p.Committed && p.CreatedAt.Before(cutoff) {
			expired = append(expired, *p)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	return expired, nil
}

func (s *MemoryStore) Remove(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, ref)
	return nil
}

// Session returns a copy of the identifier's session record, for tests.
func (s *MemoryStore) Session(identifier string) (flipbook.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[identifier]
	if !ok {
		return flipbook.Session{}, false
	}
	return *session, true
}
