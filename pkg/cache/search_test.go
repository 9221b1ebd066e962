package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbornotes/arbor/pkg/models"
)

func TestSearchTitlesCaseFolded(t *testing.T) {
	entries := []models.IndexEntry{
		{ID: "a", Title: "Groceries"},
		{ID: "b", Title: "Straße nach Berlin"},
		{ID: "c", Title: "Project IDEAS"},
	}

	results := SearchTitles(entries, "GROCER", 0)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)

	// Case folding, not just lowercasing: ß folds to ss.
	results = SearchTitles(entries, "strasse", 0)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	results = SearchTitles(entries, "ideas", 0)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)
}

func TestSearchTitlesUnicodeNormalization(t *testing.T) {
	// "é" composed in the title, decomposed (e + combining acute) in the query.
	entries := []models.IndexEntry{{ID: "a", Title: "Café list"}}

	results := SearchTitles(entries, "cafe\u0301", 0)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchTitlesSkipsDeleted(t *testing.T) {
	deleted := "2026-08-31T10:00:00Z"
	entries := []models.IndexEntry{
		{ID: "a", Title: "keep"},
		{ID: "b", Title: "keep too", DeletedAt: &deleted},
	}

	results := SearchTitles(entries, "keep", 0)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchTitlesLimitAndEmptyQuery(t *testing.T) {
	entries := []models.IndexEntry{
		{ID: "a", Title: "note"},
		{ID: "b", Title: "note"},
		{ID: "c", Title: "note"},
	}

	assert.Len(t, SearchTitles(entries, "note", 2), 2)
	assert.Nil(t, SearchTitles(entries, "   ", 0))
	assert.Nil(t, SearchTitles(entries, "", 0))
}
