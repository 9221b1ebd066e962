// Package engine is the offline-first synchronization core. It decides, for
// every read, whether to trust the local cache or the network, and for every
// write, how to apply it optimistically, persist it locally, and queue it for
// later delivery — while keeping the cached article tree ordered well enough
// to keep working fully offline.
package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/arbornotes/arbor/pkg/api"
	"github.com/arbornotes/arbor/pkg/cache"
	"github.com/arbornotes/arbor/pkg/models"
	"github.com/arbornotes/arbor/pkg/outbox"
)

// InboxID is the canonical id of the always-available inbox pseudo-article.
const InboxID = "inbox"

// Server is the network surface the engine consumes. *api.Client satisfies it.
type Server interface {
	FetchIndex(ctx context.Context) ([]models.IndexEntry, error)
	FetchArticle(ctx context.Context, id string) (*models.Article, error)
	FetchMeta(ctx context.Context, id string) (*models.Meta, error)
	SaveDoc(ctx context.Context, id string, doc *models.DocNode, createVersionIfStaleHours int) (*api.SaveResult, error)
	Move(ctx context.Context, id, direction string) error
	Indent(ctx context.Context, id string) error
	Outdent(ctx context.Context, id string) error
	MoveTree(ctx context.Context, id string, req api.MoveTreeRequest) error
	Create(ctx context.Context, a *models.Article) (*models.Article, error)
	Delete(ctx context.Context, id string) error
}

// RecoveryPolicy guards against a suspicious server-side index shrinkage:
// when the network index holds at most MaxServerEntries while the cache holds
// at least MinCachedEntries, the cache wins. A drastic shrink is treated as a
// transient server defect rather than a legitimate bulk deletion.
type RecoveryPolicy struct {
	MinCachedEntries int
	MaxServerEntries int
}

// Config carries the engine's race budgets and policies.
type Config struct {
	// CacheRaceWarm bounds the cache-vs-timer race once the cache store has
	// finished at least one operation; CacheRaceCold applies before that. A
	// cold cache is less likely to resolve fast, so it gets less rope.
	CacheRaceWarm time.Duration
	CacheRaceCold time.Duration
	// NetworkTimeout bounds every full network fetch, foreground or not.
	NetworkTimeout time.Duration
	// MetaProbeTimeout bounds the freshness metadata probe. The offline
	// inbox grace period is five times this value.
	MetaProbeTimeout time.Duration
	// RefreshDelay postpones background cache-refresh writes so they do not
	// contend with a synchronously needed cache operation on the same beat.
	RefreshDelay time.Duration
	// CreateVersionIfStaleHours is passed through on document saves.
	CreateVersionIfStaleHours int

	Recovery RecoveryPolicy
}

// DefaultConfig returns the budgets the client ships with.
func DefaultConfig() Config {
	return Config{
		CacheRaceWarm:             600 * time.Millisecond,
		CacheRaceCold:             250 * time.Millisecond,
		NetworkTimeout:            2200 * time.Millisecond,
		MetaProbeTimeout:          350 * time.Millisecond,
		RefreshDelay:              100 * time.Millisecond,
		CreateVersionIfStaleHours: 24,
		Recovery: RecoveryPolicy{
			MinCachedEntries: 20,
			MaxServerEntries: 3,
		},
	}
}

// Engine coordinates the cache, the outbox and the server.
type Engine struct {
	server Server
	cache  cache.Store
	queue  outbox.Queue
	log    *logrus.Logger
	cfg    Config

	online atomic.Bool

	// flights coalesces concurrent fetches of the same logical resource so
	// callers share one in-flight request instead of issuing duplicates.
	flights singleflight.Group

	// bg tracks detached background tasks (race-loser refreshes, deferred
	// cache writes) so tests can await them instead of relying on timing.
	bg sync.WaitGroup

	mu   sync.RWMutex
	open *models.Article // currently open in-memory article, if any
}

// New creates an engine. A nil logger falls back to a discard-level default.
func New(server Server, store cache.Store, queue outbox.Queue, log *logrus.Logger, cfg Config) *Engine {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.ErrorLevel)
	}
	e := &Engine{server: server, cache: store, queue: queue, log: log, cfg: cfg}
	e.online.Store(true)
	return e
}

// SetOnline records the device's connectivity as known to the caller.
func (e *Engine) SetOnline(online bool) { e.online.Store(online) }

// Online reports the last known connectivity.
func (e *Engine) Online() bool { return e.online.Load() }

// SetOpenArticle tells the engine which article the UI currently holds in
// memory. Its updatedAt is preferred when preserving timestamps for queued
// saves of the same article.
func (e *Engine) SetOpenArticle(a *models.Article) {
	e.mu.Lock()
	e.open = a
	e.mu.Unlock()
}

// WaitBackground blocks until every detached background task started so far
// has finished. Intended for tests and orderly shutdown.
func (e *Engine) WaitBackground() { e.bg.Wait() }

// goBackground runs fn as a tracked detached task after the configured
// refresh delay.
func (e *Engine) goBackground(fn func()) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if d := e.cfg.RefreshDelay; d > 0 {
			time.Sleep(d)
		}
		fn()
	}()
}

// CanonicalID maps the "inbox-*" id family onto the single inbox id. Every
// other id is its own canonical form.
func CanonicalID(id string) string {
	if id == InboxID || strings.HasPrefix(id, InboxID+"-") {
		return InboxID
	}
	return id
}

// skeletonArticle synthesizes an empty document for a pseudo-article that
// always exists but has nothing cached yet.
func skeletonArticle(id string) *models.Article {
	title := ""
	if id == InboxID {
		title = "Inbox"
	}
	return &models.Article{ID: id, Title: title, Doc: models.EmptyDoc()}
}
