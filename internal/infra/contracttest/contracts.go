package contracttest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
	"github.com/totegamma/castline/internal/usecase"
)

type CleanupFunc = func()

type DocumentStoreFactory func(t *testing.T) (usecase.DocumentStore, CleanupFunc)
type LocalCacheFactory func(t *testing.T) (usecase.LocalCache, CleanupFunc)

const (
	collectionA = "contract_a"
	collectionB = "contract_b"
)

func RunDocumentStore(t *testing.T, newStore DocumentStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	_, err := store.GetDocument(ctx, collectionA, "missing")
	require.True(t, errors.Is(err, domain.ErrNotFound), "missing document: %v", err)

	empty, err := store.ListDocuments(ctx, collectionB)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := castline.Document{
		"email":    "b@x.com",
		"name":     "B",
		"age":      25,
		"category": []any{"actor", "singer"},
	}
	require.NoError(t, store.SetDocument(ctx, collectionA, "b@x.com", first, false))
	require.NoError(t, store.SetDocument(ctx, collectionA, "a@x.com", castline.Document{"email": "a@x.com"}, false))

	got, err := store.GetDocument(ctx, collectionA, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "B", got["name"])
	assert.Equal(t, float64(25), got["age"])
	assert.Equal(t, []any{"actor", "singer"}, got["category"])

	// Returned documents are copies.
	got["name"] = "mutated"
	again, err := store.GetDocument(ctx, collectionA, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "B", again["name"])

	// Merge overrides top-level fields and keeps the rest.
	require.NoError(t, store.SetDocument(ctx, collectionA, "b@x.com", castline.Document{
		"name":     "B2",
		"category": []any{"model"},
	}, true))
	merged, err := store.GetDocument(ctx, collectionA, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, "B2", merged["name"])
	assert.Equal(t, "b@x.com", merged["email"])
	assert.Equal(t, []any{"model"}, merged["category"])

	// Merge into a missing document creates it.
	require.NoError(t, store.SetDocument(ctx, collectionB, "c@x.com", castline.Document{"hasPaid": false}, true))
	created, err := store.GetDocument(ctx, collectionB, "c@x.com")
	require.NoError(t, err)
	assert.Equal(t, false, created["hasPaid"])

	// A plain set replaces the document.
	require.NoError(t, store.SetDocument(ctx, collectionA, "b@x.com", castline.Document{"email": "b@x.com"}, false))
	replaced, err := store.GetDocument(ctx, collectionA, "b@x.com")
	require.NoError(t, err)
	_, hasName := replaced["name"]
	assert.False(t, hasName, "replaced document kept old fields: %v", replaced)

	list, err := store.ListDocuments(ctx, collectionA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a@x.com", list[0]["email"])
	assert.Equal(t, "b@x.com", list[1]["email"])

	require.NoError(t, store.DeleteDocument(ctx, collectionA, "a@x.com"))
	require.NoError(t, store.DeleteDocument(ctx, collectionA, "a@x.com"))
	_, err = store.GetDocument(ctx, collectionA, "a@x.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	other, err := store.ListDocuments(ctx, collectionB)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func RunLocalCache(t *testing.T, newCache LocalCacheFactory) {
	t.Helper()
	ctx := context.Background()

	cache, cleanup := newCache(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	_, err := cache.GetLocal(ctx, "contract_missing")
	require.True(t, errors.Is(err, domain.ErrNotFound), "missing key: %v", err)

	require.NoError(t, cache.SetLocal(ctx, "contract_key", `{"email":"a@x.com"}`))
	got, err := cache.GetLocal(ctx, "contract_key")
	require.NoError(t, err)
	assert.Equal(t, `{"email":"a@x.com"}`, got)

	require.NoError(t, cache.SetLocal(ctx, "contract_key", "[]"))
	got, err = cache.GetLocal(ctx, "contract_key")
	require.NoError(t, err)
	assert.Equal(t, "[]", got)

	require.NoError(t, cache.RemoveLocal(ctx, "contract_key"))
	require.NoError(t, cache.RemoveLocal(ctx, "contract_key"))
	_, err = cache.GetLocal(ctx, "contract_key")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
