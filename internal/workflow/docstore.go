package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrVersionConflict  = errors.New("document version conflict")
)

// Document is one stored JSON body with its version stamp.
type Document struct {
	ID      string
	Data    []byte
	Version int64
}

// DocumentStore is a key-value store of versioned documents. Put with
// expected version 0 creates; any other value is a compare-and-swap that
// fails with ErrVersionConflict when the stored version differs.
type DocumentStore interface {
	Get(ctx context.Context, id string) (Document, error)
	Put(ctx context.Context, id string, data []byte, expected int64) (int64, error)
	List(ctx context.Context) ([]Document, error)
}

// MemoryDocumentStore is a volatile DocumentStore for tests and demos.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string]Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]Document)}
}

func (s *MemoryDocumentStore) Get(ctx context.Context, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	doc.Data = append([]byte(nil), doc.Data...)
	return doc, nil
}

func (s *MemoryDocumentStore) Put(ctx context.Context, id string, data []byte, expected int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.docs[id]
	switch {
	case expected == 0 && exists:
		return 0, ErrVersionConflict
	case expected != 0 && (!exists || cur.Version != expected):
		return 0, ErrVersionConflict
	}
	next := expected + 1
	s.docs[id] = Document{ID: id, Data: append([]byte(nil), data...), Version: next}
	return next, nil
}

func (s *MemoryDocumentStore) List(ctx context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		d.Data = append([]byte(nil), d.Data...)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
