package cache

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/arbornotes/arbor/pkg/models"
)

var searchFolder = cases.Fold()

// SearchTitles matches cached index entries by title, offline. Matching is
// case-folded and NFC-normalized so composed and decomposed forms of the
// same title compare equal. Soft-deleted entries are excluded.
func SearchTitles(entries []models.IndexEntry, query string, limit int) []models.IndexEntry {
	if limit <= 0 {
		limit = 50
	}
	q := foldTitle(query)
	if q == "" {
		return nil
	}

	var results []models.IndexEntry
	for _, e := range entries {
		if e.DeletedAt != nil {
			continue
		}
		if strings.Contains(foldTitle(e.Title), q) {
			results = append(results, e)
			if len(results) >= limit {
				break
			}
		}
	}
	return results
}

func foldTitle(s string) string {
	return searchFolder.String(norm.NFC.String(strings.TrimSpace(s)))
}
