package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	nextRef int
	deleted []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) IssueUpload(ctx context.Context) (*Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRef++
	ref := fmt.Sprintf("blob-%04d.pdf", s.nextRef)
	return &Upload{URL: "mem://" + ref, Ref: ref}, nil
}

func (s *MemoryStore) Transfer(ctx context.Context, ref string, src io.ReadSeeker) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = data
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[ref]; !ok {
		return fmt.Errorf("blob %s not found", ref)
	}
	delete(s.objects, ref)
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *MemoryStore) Resolve(ctx context.Context, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[ref]; !ok {
		return "", fmt.Errorf("blob %s not found", ref)
	}
	return "mem://" + ref, nil
}

func (s *MemoryStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put stores bytes directly under ref, for test setup.
func (s *MemoryStore) Put(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = append([]byte(nil), data...)
}

// Exists reports whether ref is currently stored.
func (s *MemoryStore) Exists(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[ref]
	return ok
}

// Deleted returns the refs deleted so far, in order.
func (s *MemoryStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}
