package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/arbornotes/arbor/pkg/models"
)

// result pairs a value with its error for channel-based races.
type result[T any] struct {
	val T
	err error
}

// lookup is one side of a race: an operation running to completion in its
// own goroutine. Losing a race never cancels it — the result can be consumed
// late, exactly once, via the memoizing accessors.
type lookup[T any] struct {
	ch  chan result[T]
	res *result[T]
}

func startLookup[T any](fn func() (T, error)) *lookup[T] {
	l := &lookup[T]{ch: make(chan result[T], 1)}
	go func() {
		v, err := fn()
		l.ch <- result[T]{val: v, err: err}
	}()
	return l
}

// waitFor races the lookup against a timer. The timer resolving first is not
// an error: ok is false and the lookup keeps running.
func (l *lookup[T]) waitFor(d time.Duration) (result[T], bool) {
	if l.res != nil {
		return *l.res, true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case r := <-l.ch:
		l.res = &r
		return r, true
	case <-t.C:
		var zero result[T]
		return zero, false
	}
}

// wait blocks until the lookup resolves.
func (l *lookup[T]) wait() result[T] {
	if l.res == nil {
		r := <-l.ch
		l.res = &r
	}
	return *l.res
}

// done reports whether the lookup has already been consumed.
func (l *lookup[T]) done() bool { return l.res != nil }

// cacheRaceBudget is how long a read waits for the cache before the network
// side of the race starts mattering.
func (e *Engine) cacheRaceBudget() time.Duration {
	if e.cache.Ready() {
		return e.cfg.CacheRaceWarm
	}
	return e.cfg.CacheRaceCold
}

// FetchIndex returns the article index, preferring whichever of cache and
// network answers usefully first. Concurrent callers share one fetch.
func (e *Engine) FetchIndex(ctx context.Context) ([]models.IndexEntry, error) {
	v, err, _ := e.flights.Do("index", func() (any, error) {
		return e.fetchIndex(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.IndexEntry), nil
}

func (e *Engine) fetchIndex(ctx context.Context) ([]models.IndexEntry, error) {
	// Known offline: the cache is all there is. An empty list beats an error
	// because the caller can still render an empty tree and keep working.
	if !e.Online() {
		entries, err := e.cache.GetIndex()
		if err != nil {
			e.log.WithError(err).Warn("offline index read failed")
			return []models.IndexEntry{}, nil
		}
		if entries == nil {
			entries = []models.IndexEntry{}
		}
		return entries, nil
	}

	look := startLookup(e.cache.GetIndex)
	if r, ok := look.waitFor(e.cacheRaceBudget()); ok && r.err == nil && len(r.val) > 0 {
		e.goBackground(e.refreshIndexFromNetwork)
		return r.val, nil
	}

	nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
	defer cancel()
	entries, err := e.server.FetchIndex(nctx)
	if err != nil {
		// The cache lookup kept running even if it lost the earlier race.
		r := look.wait()
		if r.err == nil && len(r.val) > 0 {
			e.log.WithError(err).Debug("index fetch failed, serving cache")
			return r.val, nil
		}
		return nil, fmt.Errorf("fetch index: %w", err)
	}

	if r := look.wait(); r.err == nil && e.suspiciousShrink(len(entries), len(r.val)) {
		e.log.WithFields(map[string]any{"server": len(entries), "cached": len(r.val)}).
			Warn("server index suspiciously small, serving cache")
		return r.val, nil
	}

	e.goBackground(func() {
		if err := e.cache.SetIndex(entries); err != nil {
			e.log.WithError(err).Warn("index cache write failed")
		}
	})
	return entries, nil
}

// suspiciousShrink applies the recovery policy: a near-empty server index
// against a well-populated cache looks like a server defect, not a bulk
// deletion the client never heard about any other way.
func (e *Engine) suspiciousShrink(serverN, cachedN int) bool {
	p := e.cfg.Recovery
	return serverN <= p.MaxServerEntries && cachedN >= p.MinCachedEntries
}

// refreshIndexFromNetwork is the best-effort background half of a cache win:
// fetch the index for next time, still guarded by the recovery policy.
func (e *Engine) refreshIndexFromNetwork() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.NetworkTimeout)
	defer cancel()
	entries, err := e.server.FetchIndex(ctx)
	if err != nil {
		e.log.WithError(err).Debug("background index refresh failed")
		return
	}
	if cached, cerr := e.cache.GetIndex(); cerr == nil && e.suspiciousShrink(len(entries), len(cached)) {
		e.log.Warn("background refresh skipped: server index suspiciously small")
		return
	}
	if err := e.cache.SetIndex(entries); err != nil {
		e.log.WithError(err).Warn("background index cache write failed")
	}
}

// FetchArticle returns one article. "inbox-*" ids collapse onto the single
// inbox pseudo-article; concurrent fetches of the same canonical id share
// one request.
func (e *Engine) FetchArticle(ctx context.Context, id string) (*models.Article, error) {
	canonical := CanonicalID(id)
	v, err, _ := e.flights.Do("article:"+canonical, func() (any, error) {
		return e.fetchArticle(ctx, id, canonical)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Article), nil
}

func (e *Engine) fetchArticle(ctx context.Context, requested, canonical string) (*models.Article, error) {
	look := startLookup(func() (*models.Article, error) {
		return e.cache.GetArticle(canonical)
	})

	if r, ok := look.waitFor(e.cacheRaceBudget()); ok && r.err == nil && r.val != nil {
		if e.Online() {
			return e.arbitrate(ctx, r.val)
		}
		return r.val, nil
	}

	// Offline, the inbox always exists: a slow-but-present cache is far more
	// likely than genuine absence, so wait a longer grace period before
	// synthesizing an empty skeleton.
	if !e.Online() && canonical == InboxID {
		if r, ok := look.waitFor(5 * e.cfg.MetaProbeTimeout); ok && r.err == nil && r.val != nil {
			return r.val, nil
		}
		return skeletonArticle(InboxID), nil
	}

	// No cached entry resolved in time: race the late cache against a fresh
	// network fetch. The loser keeps running purely to refresh the cache,
	// so the network fetch gets its own lifetime, not the caller's.
	nctx, cancel := context.WithTimeout(context.Background(), e.cfg.NetworkTimeout)
	netCh := make(chan result[*models.Article], 1)
	go func() {
		defer cancel()
		a, err := e.server.FetchArticle(nctx, canonical)
		netCh <- result[*models.Article]{val: a, err: err}
	}()

	cacheCh := look.ch
	if look.done() {
		cacheCh = nil // already resolved empty during the budget race
	}
	for {
		select {
		case r := <-cacheCh:
			look.res = &r
			cacheCh = nil
			if r.err == nil && r.val != nil {
				e.trackArticleRefresh(netCh, requested, canonical)
				return r.val, nil
			}
			// Cache definitively empty; only the network remains.

		case r := <-netCh:
			if r.err != nil {
				if c := look.wait(); c.err == nil && c.val != nil {
					return c.val, nil
				}
				if canonical == InboxID {
					return skeletonArticle(InboxID), nil
				}
				return nil, fmt.Errorf("fetch article %s: %w", canonical, r.err)
			}
			a := r.val
			e.goBackground(func() { e.persistArticle(a, requested, canonical) })
			return a, nil

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// trackArticleRefresh lets a losing network fetch finish in the background
// and fold its result into the cache.
func (e *Engine) trackArticleRefresh(netCh <-chan result[*models.Article], requested, canonical string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		r := <-netCh
		if r.err != nil || r.val == nil {
			if r.err != nil {
				e.log.WithError(r.err).Debug("background article refresh failed")
			}
			return
		}
		e.persistArticle(r.val, requested, canonical)
	}()
}

// persistArticle caches a network response, aliased under the requested id
// when it canonicalized to a different one.
func (e *Engine) persistArticle(a *models.Article, requested, canonical string) {
	if err := e.cache.SetArticle(a); err != nil {
		e.log.WithError(err).Warn("article cache write failed")
		return
	}
	if requested != canonical {
		if err := e.cache.SetArticleUnderID(a, requested); err != nil {
			e.log.WithError(err).Warn("article alias cache write failed")
		}
	}
}
