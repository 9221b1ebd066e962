package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arbornotes/arbor/pkg/api"
	"github.com/arbornotes/arbor/pkg/cache"
	"github.com/arbornotes/arbor/pkg/models"
	"github.com/arbornotes/arbor/pkg/outbox"
)

var errNetwork = errors.New("connection refused")

// fakeServer is an in-memory Server with per-call counters and injectable
// failures and delays.
type fakeServer struct {
	mu sync.Mutex

	index      []models.IndexEntry
	indexErr   error
	indexDelay time.Duration
	indexCalls int

	articles     map[string]*models.Article
	articleErr   error
	articleDelay time.Duration
	articleCalls int

	meta      map[string]string
	metaErr   error
	metaCalls int

	saveResult *api.SaveResult
	saveErr    error
	saveCalls  int

	structErr   error
	structCalls int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		articles: make(map[string]*models.Article),
		meta:     make(map[string]string),
	}
}

func (f *fakeServer) FetchIndex(ctx context.Context) ([]models.IndexEntry, error) {
	f.mu.Lock()
	f.indexCalls++
	delay, err, entries := f.indexDelay, f.indexErr, f.index
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.IndexEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *fakeServer) FetchArticle(ctx context.Context, id string) (*models.Article, error) {
	f.mu.Lock()
	f.articleCalls++
	delay, err := f.articleDelay, f.articleErr
	a := f.articles[id]
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, api.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeServer) FetchMeta(ctx context.Context, id string) (*models.Meta, error) {
	f.mu.Lock()
	f.metaCalls++
	err := f.metaErr
	updatedAt := f.meta[id]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &models.Meta{UpdatedAt: updatedAt}, nil
}

func (f *fakeServer) SaveDoc(ctx context.Context, id string, doc *models.DocNode, staleHours int) (*api.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if f.saveResult != nil {
		return f.saveResult, nil
	}
	return &api.SaveResult{UpdatedAt: "server-ts"}, nil
}

func (f *fakeServer) structural() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structCalls++
	return f.structErr
}

func (f *fakeServer) Move(ctx context.Context, id, direction string) error { return f.structural() }
func (f *fakeServer) Indent(ctx context.Context, id string) error          { return f.structural() }
func (f *fakeServer) Outdent(ctx context.Context, id string) error         { return f.structural() }
func (f *fakeServer) MoveTree(ctx context.Context, id string, req api.MoveTreeRequest) error {
	return f.structural()
}

func (f *fakeServer) Create(ctx context.Context, a *models.Article) (*models.Article, error) {
	if err := f.structural(); err != nil {
		return nil, err
	}
	cp := *a
	cp.UpdatedAt = "server-ts"
	return &cp, nil
}

func (f *fakeServer) Delete(ctx context.Context, id string) error { return f.structural() }

// delayStore delays every read so tests can force the timer side of a
// cache race to win.
type delayStore struct {
	cache.Store
	delay time.Duration
}

func (d *delayStore) GetIndex() ([]models.IndexEntry, error) {
	time.Sleep(d.delay)
	return d.Store.GetIndex()
}

func (d *delayStore) GetArticle(id string) (*models.Article, error) {
	time.Sleep(d.delay)
	return d.Store.GetArticle(id)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CacheRaceWarm = 25 * time.Millisecond
	cfg.CacheRaceCold = 15 * time.Millisecond
	cfg.NetworkTimeout = 500 * time.Millisecond
	cfg.MetaProbeTimeout = 50 * time.Millisecond
	cfg.RefreshDelay = 0
	return cfg
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(srv Server, store cache.Store, queue outbox.Queue) *Engine {
	if queue == nil {
		queue = outbox.NewMemQueue()
	}
	return New(srv, store, queue, quietLogger(), testConfig())
}

func strptr(s string) *string { return &s }

func queueLen(t testing.TB, q outbox.Queue) int {
	t.Helper()
	n, err := q.Len()
	if err != nil {
		t.Fatalf("queue len: %v", err)
	}
	return n
}

func entry(id string, parent *string, pos int) models.IndexEntry {
	return models.IndexEntry{ID: id, ParentID: parent, Position: pos, Title: id}
}

// bigIndex builds n root-level entries.
func bigIndex(n int) []models.IndexEntry {
	entries := make([]models.IndexEntry, n)
	for i := range entries {
		entries[i] = entry(string(rune('a'+i%26))+"-"+string(rune('0'+i/26)), nil, i)
	}
	return entries
}
