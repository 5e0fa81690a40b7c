package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

var errInjected = errors.New("injected failure")

type fakeStore struct {
	collections map[string]map[string]castline.Document
	failList    map[string]bool
	failSet     map[string]bool
	failDelete  map[string]bool
	sets        int
	deletes     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]map[string]castline.Document),
		failList:    make(map[string]bool),
		failSet:     make(map[string]bool),
		failDelete:  make(map[string]bool),
	}
}

func (s *fakeStore) put(collection, key string, doc castline.Document) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]castline.Document)
	}
	clone, _ := doc.Clone()
	s.collections[collection][key] = clone
}

func (s *fakeStore) GetDocument(ctx context.Context, collection, key string) (castline.Document, error) {
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, domain.NotFoundError{Resource: collection + "/" + key}
	}
	return doc.Clone()
}

func (s *fakeStore) ListDocuments(ctx context.Context, collection string) ([]castline.Document, error) {
	if s.failList[collection] {
		return nil, errInjected
	}
	keys := make([]string, 0, len(s.collections[collection]))
	for k := range s.collections[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]castline.Document, 0, len(keys))
	for _, k := range keys {
		clone, _ := s.collections[collection][k].Clone()
		out = append(out, clone)
	}
	return out, nil
}

func (s *fakeStore) SetDocument(ctx context.Context, collection, key string, doc castline.Document, merge bool) error {
	if s.failSet[collection] {
		return errInjected
	}
	s.sets++
	if merge {
		if current, ok := s.collections[collection][key]; ok {
			doc = castline.Merge(current, doc)
		}
	}
	s.put(collection, key, doc)
	return nil
}

func (s *fakeStore) DeleteDocument(ctx context.Context, collection, key string) error {
	if s.failDelete[collection] {
		return errInjected
	}
	s.deletes = append(s.deletes, collection+"/"+key)
	delete(s.collections[collection], key)
	return nil
}

type fakeCache struct {
	values  map[string]string
	failSet map[string]bool
	writes  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string), failSet: make(map[string]bool)}
}

func (c *fakeCache) GetLocal(ctx context.Context, key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", domain.NotFoundError{Resource: key}
	}
	return v, nil
}

func (c *fakeCache) SetLocal(ctx context.Context, key, value string) error {
	if c.failSet[key] {
		return errInjected
	}
	c.writes++
	c.values[key] = value
	return nil
}

func (c *fakeCache) RemoveLocal(ctx context.Context, key string) error {
	delete(c.values, key)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	events []castline.Event
}

func (n *recordingNotifier) Publish(ctx context.Context, channel string, event castline.Event) error {
	n.events = append(n.events, event)
	return nil
}

type countingRebuilder struct{ calls int }

func (r *countingRebuilder) RebuildAggregate(ctx context.Context) []domain.Profile {
	r.calls++
	return nil
}

type countingBackupper struct {
	calls  int
	result bool
}

func (b *countingBackupper) Backup(ctx context.Context) bool {
	b.calls++
	return b.result
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func profileDoc(email, name, photo, tier string, extra castline.Document) castline.Document {
	doc := castline.Document{
		"email":          email,
		"name":           name,
		"profilePhoto":   photo,
		"membershipType": tier,
		"category":       []any{"actor"},
	}
	return castline.Merge(doc, extra)
}

func setJSON(t *testing.T, c *fakeCache, key string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encode %s: %v", key, err)
	}
	c.values[key] = string(b)
}

func cachedProfiles(t *testing.T, c *fakeCache, key string) []domain.Profile {
	t.Helper()
	profiles, err := loadProfiles(context.Background(), c, key)
	if err != nil {
		t.Fatalf("load %s: %v", key, err)
	}
	return profiles
}

func cachedDocument(t *testing.T, c *fakeCache, key string) castline.Document {
	t.Helper()
	doc, err := loadDocument(context.Background(), c, key)
	if err != nil {
		t.Fatalf("load %s: %v", key, err)
	}
	return doc
}

func byIdentity(profiles []domain.Profile) map[string]domain.Profile {
	out := make(map[string]domain.Profile, len(profiles))
	for _, p := range profiles {
		out[p.Identity] = p
	}
	return out
}
