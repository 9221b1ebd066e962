package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbornotes/arbor/pkg/models"
)

func strptr(s string) *string { return &s }

// eachStore runs a test against both Store implementations.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("mem", func(t *testing.T) {
		fn(t, NewMemStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestStoreIndexRoundtrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		entries := []models.IndexEntry{
			{ID: "a", Position: 0, Title: "Alpha", UpdatedAt: "t1"},
			{ID: "b", ParentID: strptr("a"), Position: 0, Title: "Beta", UpdatedAt: "t2"},
		}
		require.NoError(t, s.SetIndex(entries))

		got, err := s.GetIndex()
		require.NoError(t, err)
		require.Len(t, got, 2)

		byID := map[string]models.IndexEntry{}
		for _, e := range got {
			byID[e.ID] = e
		}
		assert.Nil(t, byID["a"].ParentID)
		require.NotNil(t, byID["b"].ParentID)
		assert.Equal(t, "a", *byID["b"].ParentID)
		assert.Equal(t, "Beta", byID["b"].Title)
	})
}

func TestStoreSetIndexReplacesWholeIndex(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.SetIndex([]models.IndexEntry{
			{ID: "a", Position: 0},
			{ID: "b", Position: 1},
		}))
		require.NoError(t, s.SetIndex([]models.IndexEntry{{ID: "c", Position: 0}}))

		got, err := s.GetIndex()
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c", got[0].ID)
	})
}

func TestStoreArticleRoundtrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		missing, err := s.GetArticle("nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		a := &models.Article{
			ID:        "a1",
			Title:     "Notes",
			UpdatedAt: "t1",
			Doc: &models.DocNode{Type: "doc", Children: []models.DocNode{
				{Type: "paragraph", Children: []models.DocNode{{Type: "text", Text: "hello"}}},
			}},
		}
		require.NoError(t, s.SetArticle(a))

		got, err := s.GetArticle("a1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Notes", got.Title)
		require.NotNil(t, got.Doc)
		assert.Equal(t, "hello", got.Doc.Children[0].Children[0].Text)

		// Storing an article also surfaces it in the index.
		entries, err := s.GetIndex()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "a1", entries[0].ID)
		assert.Equal(t, "t1", entries[0].UpdatedAt)
	})
}

func TestStoreAliasDoesNotTouchIndex(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		a := &models.Article{ID: "inbox", Title: "Inbox", UpdatedAt: "t1"}
		require.NoError(t, s.SetArticle(a))
		require.NoError(t, s.SetArticleUnderID(a, "inbox-20260831"))

		alias, err := s.GetArticle("inbox-20260831")
		require.NoError(t, err)
		require.NotNil(t, alias)
		assert.Equal(t, "Inbox", alias.Title)

		entries, err := s.GetIndex()
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStoreUpdateDocContentKeepsTimestamp(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.SetArticle(&models.Article{ID: "a1", Title: "Notes", UpdatedAt: "t1"}))

		doc := &models.DocNode{Type: "doc"}
		require.NoError(t, s.UpdateDocContent("a1", doc, "t1"))

		got, err := s.GetArticle("a1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "t1", got.UpdatedAt)
		assert.Equal(t, "doc", got.Doc.Type)
	})
}

func TestStoreUpdateDocContentCreatesMissingArticle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.UpdateDocContent("ghost", &models.DocNode{Type: "doc"}, ""))

		got, err := s.GetArticle("ghost")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got.UpdatedAt)
	})
}

func TestStoreUpdateTreePositions(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.SetIndex([]models.IndexEntry{
			{ID: "a", Position: 0},
			{ID: "b", Position: 1},
		}))
		require.NoError(t, s.SetArticle(&models.Article{ID: "b", Position: 1, UpdatedAt: "t1"}))

		require.NoError(t, s.UpdateTreePositions([]models.PositionChange{
			{ID: "b", ParentID: strptr("a"), Position: 0},
		}))

		entries, err := s.GetIndex()
		require.NoError(t, err)
		for _, e := range entries {
			if e.ID == "b" {
				require.NotNil(t, e.ParentID)
				assert.Equal(t, "a", *e.ParentID)
				assert.Equal(t, 0, e.Position)
			}
		}

		// The cached payload follows the index.
		b, err := s.GetArticle("b")
		require.NoError(t, err)
		require.NotNil(t, b)
		require.NotNil(t, b.ParentID)
		assert.Equal(t, "a", *b.ParentID)
		assert.Equal(t, "t1", b.UpdatedAt)
	})
}

func TestStoreMarkDeleted(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		require.NoError(t, s.SetArticle(&models.Article{ID: "a1", Title: "Notes", UpdatedAt: "t1"}))
		require.NoError(t, s.MarkDeleted("a1", "2026-08-31T10:00:00Z"))

		entries, err := s.GetIndex()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].DeletedAt)
		assert.Equal(t, "2026-08-31T10:00:00Z", *entries[0].DeletedAt)

		a, err := s.GetArticle("a1")
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.NotNil(t, a.DeletedAt)
	})
}

func TestStoreReadyAfterFirstOperation(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		assert.False(t, s.Ready())
		_, err := s.GetIndex()
		require.NoError(t, err)
		assert.True(t, s.Ready())
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetArticle(&models.Article{ID: "a1", Title: "Durable", UpdatedAt: "t1"}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetArticle("a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Durable", got.Title)
}
