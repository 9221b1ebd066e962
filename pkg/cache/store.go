// Package cache is the client's durable local replica: the article index,
// full article payloads, and tree-position metadata. Reads and writes come
// from many goroutines with no locking contract beyond each store's own;
// correctness relies on every write being a full recomputation (whole index,
// whole document, whole sibling list), so last-write-observed-wins is safe.
package cache

import (
	"sync"
	"time"

	"github.com/arbornotes/arbor/pkg/models"
)

// Store is the local cache contract consumed by the sync engine.
type Store interface {
	// GetIndex returns the cached article index, possibly empty.
	GetIndex() ([]models.IndexEntry, error)
	// SetIndex replaces the whole cached index.
	SetIndex(entries []models.IndexEntry) error
	// GetArticle returns the cached article, or nil when absent.
	GetArticle(id string) (*models.Article, error)
	// SetArticle stores a full article and refreshes its index entry.
	SetArticle(a *models.Article) error
	// SetArticleUnderID stores an article under an alias id in addition to
	// its own. Used when a requested id canonicalizes to a different one.
	SetArticleUnderID(a *models.Article, aliasID string) error
	// UpdateTreePositions applies position/parent deltas to the index and
	// any cached articles they touch.
	UpdateTreePositions(changes []models.PositionChange) error
	// UpdateDocContent replaces an article's content tree while keeping the
	// given updatedAt. Callers must pass a preserved (never synthesized)
	// timestamp so unconfirmed edits stay distinguishable from fresh data.
	UpdateDocContent(id string, doc *models.DocNode, preservedUpdatedAt string) error
	// MarkDeleted soft-deletes an article locally. The entry stays in the
	// index until the server confirms the deletion.
	MarkDeleted(id string, deletedAt string) error
	// Ready reports whether the store has completed at least one operation
	// since opening. A cold store is given a shorter race budget.
	Ready() bool
	Close() error
}

// MemStore is an in-memory Store used in tests and as a fallback when no
// data directory is available.
type MemStore struct {
	mu       sync.RWMutex
	index    []models.IndexEntry
	articles map[string]*models.Article
	warm     bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{articles: make(map[string]*models.Article)}
}

func (s *MemStore) GetIndex() ([]models.IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	out := make([]models.IndexEntry, len(s.index))
	copy(out, s.index)
	return out, nil
}

func (s *MemStore) SetIndex(entries []models.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	s.index = make([]models.IndexEntry, len(entries))
	copy(s.index, entries)
	return nil
}

func (s *MemStore) GetArticle(id string) (*models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	a, ok := s.articles[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) SetArticle(a *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	cp := *a
	s.articles[a.ID] = &cp
	s.upsertIndexEntryLocked(models.IndexEntryOf(a))
	return nil
}

func (s *MemStore) SetArticleUnderID(a *models.Article, aliasID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	cp := *a
	s.articles[aliasID] = &cp
	return nil
}

func (s *MemStore) UpdateTreePositions(changes []models.PositionChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	for _, ch := range changes {
		for i := range s.index {
			if s.index[i].ID == ch.ID {
				s.index[i].ParentID = ch.ParentID
				s.index[i].Position = ch.Position
			}
		}
		if a, ok := s.articles[ch.ID]; ok {
			a.ParentID = ch.ParentID
			a.Position = ch.Position
		}
	}
	return nil
}

func (s *MemStore) UpdateDocContent(id string, doc *models.DocNode, preservedUpdatedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	a, ok := s.articles[id]
	if !ok {
		a = &models.Article{ID: id}
		s.articles[id] = a
	}
	a.Doc = doc
	a.UpdatedAt = preservedUpdatedAt
	return nil
}

func (s *MemStore) MarkDeleted(id string, deletedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warm = true
	if a, ok := s.articles[id]; ok {
		a.DeletedAt = &deletedAt
	}
	for i := range s.index {
		if s.index[i].ID == id {
			s.index[i].DeletedAt = &deletedAt
		}
	}
	return nil
}

func (s *MemStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warm
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) upsertIndexEntryLocked(e models.IndexEntry) {
	for i := range s.index {
		if s.index[i].ID == e.ID {
			s.index[i] = e
			return
		}
	}
	s.index = append(s.index, e)
}

// Now returns a deletedAt timestamp for local soft deletes. Kept here so the
// engine never has a reason to synthesize an updatedAt the same way.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
