package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

// DocumentStore is an in-memory document store.
// It is safe for concurrent use and never hands out its own maps.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]castline.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]map[string]castline.Document),
	}
}

func (s *DocumentStore) GetDocument(ctx context.Context, collection, key string) (castline.Document, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, domain.NotFoundError{Resource: collection + "/" + key}
	}
	return doc.Clone()
}

func (s *DocumentStore) ListDocuments(ctx context.Context, collection string) ([]castline.Document, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]castline.Document, 0, len(keys))
	for _, k := range keys {
		clone, err := docs[k].Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	return out, nil
}

func (s *DocumentStore) SetDocument(ctx context.Context, collection, key string, doc castline.Document, merge bool) error {
	_ = ctx
	clone, err := doc.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]castline.Document)
		s.collections[collection] = docs
	}
	if current, ok := docs[key]; ok && merge {
		clone = castline.Merge(current, clone)
	}
	docs[key] = clone
	return nil
}

func (s *DocumentStore) DeleteDocument(ctx context.Context, collection, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}
