package engine

import (
	"context"

	"github.com/arbornotes/arbor/pkg/models"
)

// arbitrate decides, given a cached article and live connectivity, whether
// the cache can be trusted or a full refetch is needed. The decision uses a
// cheap metadata probe instead of the full payload, and a failing probe
// never blocks the user: assume-stale-and-refresh beats assume-fresh-and-
// be-wrong.
func (e *Engine) arbitrate(ctx context.Context, cached *models.Article) (*models.Article, error) {
	// Nothing to compare against: the cached copy came from an optimistic
	// local write that was never confirmed. Fetch the real thing.
	if cached.UpdatedAt == "" {
		return e.fullFetchOr(ctx, cached)
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.MetaProbeTimeout)
	meta, err := e.server.FetchMeta(pctx, cached.ID)
	cancel()
	if err != nil {
		id := cached.ID
		e.goBackground(func() { e.refreshArticleFromNetwork(id) })
		return cached, nil
	}

	if meta.UpdatedAt != "" && meta.UpdatedAt == cached.UpdatedAt {
		return cached, nil
	}
	return e.fullFetchOr(ctx, cached)
}

// fullFetchOr fetches the article from the network, degrading to the cached
// copy when the fetch fails.
func (e *Engine) fullFetchOr(ctx context.Context, cached *models.Article) (*models.Article, error) {
	nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
	defer cancel()
	a, err := e.server.FetchArticle(nctx, cached.ID)
	if err != nil {
		e.log.WithError(err).Debug("full article fetch failed, serving cache")
		return cached, nil
	}
	fetched := a
	e.goBackground(func() { e.persistArticle(fetched, fetched.ID, fetched.ID) })
	return a, nil
}

// refreshArticleFromNetwork repairs the cache after a failed freshness
// probe. Runs as a tracked background task.
func (e *Engine) refreshArticleFromNetwork(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.NetworkTimeout)
	defer cancel()
	a, err := e.server.FetchArticle(ctx, id)
	if err != nil {
		e.log.WithError(err).Debug("background article refresh failed")
		return
	}
	e.persistArticle(a, id, id)
}
