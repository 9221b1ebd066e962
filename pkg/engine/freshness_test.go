package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbornotes/arbor/pkg/cache"
	"github.com/arbornotes/arbor/pkg/models"
)

func TestArbitrateMatchingMetaSkipsFullFetch(t *testing.T) {
	srv := newFakeServer()
	srv.meta["a1"] = "t1"
	srv.articles["a1"] = &models.Article{ID: "a1", Title: "fresh", UpdatedAt: "t1"}
	store := cache.NewMemStore()
	require.NoError(t, store.SetArticle(&models.Article{ID: "a1", Title: "cached", UpdatedAt: "t1"}))

	e := newTestEngine(srv, store, nil)

	a, err := e.FetchArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "cached", a.Title)
	assert.Equal(t, 1, srv.metaCalls)
	assert.Equal(t, 0, srv.articleCalls)
}

func TestArbitrateStaleMetaTriggersFullFetch(t *testing.T) {
	srv := newFakeServer()
	srv.meta["a1"] = "t2"
	srv.articles["a1"] = &models.Article{ID: "a1", Title: "fresh", UpdatedAt: "t2"}
	store := cache.NewMemStore()
	require.NoError(t, store.SetArticle(&models.Article{ID: "a1", Title: "cached", UpdatedAt: "t1"}))

	e := newTestEngine(srv, store, nil)

	a, err := e.FetchArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", a.Title)
	assert.Equal(t, "t2", a.UpdatedAt)

	e.WaitBackground()
	cached, err := store.GetArticle("a1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "t2", cached.UpdatedAt)
}

func TestArbitrateProbeFailureServesCacheAndRepairs(t *testing.T) {
	srv := newFakeServer()
	srv.metaErr = errNetwork
	srv.articles["a1"] = &models.Article{ID: "a1", Title: "fresh", UpdatedAt: "t2"}
	store := cache.NewMemStore()
	require.NoError(t, store.SetArticle(&models.Article{ID: "a1", Title: "cached", UpdatedAt: "t1"}))

	e := newTestEngine(srv, store, nil)

	// A failing probe never blocks the caller: serve the cache now, refresh
	// behind the scenes.
	a, err := e.FetchArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "cached", a.Title)

	e.WaitBackground()
	cached, err := store.GetArticle("a1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "fresh", cached.Title)
}

func TestArbitrateUnconfirmedLocalCopyRefetches(t *testing.T) {
	srv := newFakeServer()
	srv.articles["a1"] = &models.Article{ID: "a1", Title: "fresh", UpdatedAt: "t2"}
	store := cache.NewMemStore()
	// An empty updatedAt marks an optimistic local write the server never
	// confirmed; there is nothing to probe against.
	require.NoError(t, store.SetArticle(&models.Article{ID: "a1", Title: "local"}))

	e := newTestEngine(srv, store, nil)

	a, err := e.FetchArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", a.Title)
	assert.Equal(t, 0, srv.metaCalls)
	assert.Equal(t, 1, srv.articleCalls)
}

func TestArbitrateFullFetchFailureDegradesToCache(t *testing.T) {
	srv := newFakeServer()
	srv.meta["a1"] = "t2"
	srv.articleErr = errNetwork
	store := cache.NewMemStore()
	require.NoError(t, store.SetArticle(&models.Article{ID: "a1", Title: "cached", UpdatedAt: "t1"}))

	e := newTestEngine(srv, store, nil)

	a, err := e.FetchArticle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "cached", a.Title)
}
