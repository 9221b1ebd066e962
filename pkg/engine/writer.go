package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/arbornotes/arbor/pkg/api"
	"github.com/arbornotes/arbor/pkg/cache"
	"github.com/arbornotes/arbor/pkg/models"
	"github.com/arbornotes/arbor/pkg/outbox"
)

// Status reports how a mutation landed.
type Status int

const (
	// StatusSaved means the server confirmed the write.
	StatusSaved Status = iota
	// StatusQueued means the write was applied locally and queued for
	// replay. Not an error: the caller proceeds as if it succeeded.
	StatusQueued
)

func (s Status) String() string {
	if s == StatusQueued {
		return "queued"
	}
	return "saved"
}

// Result is the outcome of a reconciled write. Structural no-ops (boundary
// moves, unknown ids) return a nil Result with a nil error.
type Result struct {
	Status    Status
	UpdatedAt string
	Article   *models.Article // set by CreateArticle
}

// SaveDoc replaces an article's content tree, optimistically. On network
// failure the content is persisted locally under a preserved updatedAt —
// never a synthesized "now", so freshness checks keep working — and a
// coalesced replay op is queued. Rapid repeated saves collapse into one
// queued payload carrying only the latest state.
func (e *Engine) SaveDoc(ctx context.Context, id string, doc *models.DocNode) (*Result, error) {
	if e.Online() {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		res, err := e.server.SaveDoc(nctx, id, doc, e.cfg.CreateVersionIfStaleHours)
		cancel()
		if err == nil {
			// A server response is the one thing allowed to advance the
			// cached updatedAt.
			if cerr := e.cache.UpdateDocContent(id, doc, res.UpdatedAt); cerr != nil {
				e.log.WithError(cerr).Warn("cache write after confirmed save failed")
			}
			return &Result{Status: StatusSaved, UpdatedAt: res.UpdatedAt}, nil
		}
		e.log.WithError(err).Warn("document save failed, queueing for replay")
	}

	preserved := e.preservedUpdatedAt(id)
	if err := e.cache.UpdateDocContent(id, doc, preserved); err != nil {
		return nil, fmt.Errorf("persist queued save: %w", err)
	}
	if err := e.enqueue(outbox.OpSaveDocJSON, id, outbox.SavePayload{
		DocJSON:                   doc,
		CreateVersionIfStaleHours: e.cfg.CreateVersionIfStaleHours,
	}); err != nil {
		return nil, err
	}
	return &Result{Status: StatusQueued, UpdatedAt: preserved}, nil
}

// preservedUpdatedAt picks the updatedAt to keep through a queued write: the
// open in-memory article's when it matches the target, else the cached
// value, else empty.
func (e *Engine) preservedUpdatedAt(id string) string {
	e.mu.RLock()
	open := e.open
	e.mu.RUnlock()
	if open != nil && open.ID == id {
		return open.UpdatedAt
	}
	if a, err := e.cache.GetArticle(id); err == nil && a != nil {
		return a.UpdatedAt
	}
	return ""
}

// Move swaps an article with its previous or next sibling. Direction is
// "up" or "down".
func (e *Engine) Move(ctx context.Context, id, direction string) (*Result, error) {
	if e.Online() {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		err := e.server.Move(nctx, id, direction)
		cancel()
		if err == nil {
			e.goBackground(e.refreshIndexFromNetwork)
			return &Result{Status: StatusSaved}, nil
		}
		e.log.WithError(err).Warn("move failed, reconciling locally")
	}

	entries, err := e.cache.GetIndex()
	if err != nil {
		return nil, fmt.Errorf("read cached index: %w", err)
	}
	changes := ReconcileMove(entries, id, direction)
	if changes == nil {
		return nil, nil
	}
	if err := e.cache.UpdateTreePositions(changes); err != nil {
		return nil, fmt.Errorf("persist move: %w", err)
	}
	if err := e.enqueue(outbox.OpMovePosition, id, outbox.MovePayload{
		Direction: direction,
		Position:  positionOf(changes, id),
	}); err != nil {
		return nil, err
	}
	return &Result{Status: StatusQueued}, nil
}

// Indent reparents an article under its immediately preceding sibling.
func (e *Engine) Indent(ctx context.Context, id string) (*Result, error) {
	if e.Online() {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		err := e.server.Indent(nctx, id)
		cancel()
		if err == nil {
			e.goBackground(e.refreshIndexFromNetwork)
			return &Result{Status: StatusSaved}, nil
		}
		e.log.WithError(err).Warn("indent failed, reconciling locally")
	}
	return e.applyStructural(id, outbox.OpIndent, nil, func(entries []models.IndexEntry) []models.PositionChange {
		return ReconcileIndent(entries, id)
	})
}

// Outdent reparents an article under its grandparent.
func (e *Engine) Outdent(ctx context.Context, id string) (*Result, error) {
	if e.Online() {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		err := e.server.Outdent(nctx, id)
		cancel()
		if err == nil {
			e.goBackground(e.refreshIndexFromNetwork)
			return &Result{Status: StatusSaved}, nil
		}
		e.log.WithError(err).Warn("outdent failed, reconciling locally")
	}
	return e.applyStructural(id, outbox.OpOutdent, nil, func(entries []models.IndexEntry) []models.PositionChange {
		return ReconcileOutdent(entries, id)
	})
}

// MoveTree relocates an article subtree. The replay op coalesces per id:
// only the final destination of a drag gesture matters, not every
// intermediate hover. Callers must not target a destination inside the
// moved subtree.
func (e *Engine) MoveTree(ctx context.Context, id string, target TreeTarget) (*Result, error) {
	if e.Online() {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		err := e.server.MoveTree(nctx, id, api.MoveTreeRequest{
			ParentID:  target.ParentID,
			AnchorID:  target.AnchorID,
			Placement: target.Placement,
		})
		cancel()
		if err == nil {
			e.goBackground(e.refreshIndexFromNetwork)
			return &Result{Status: StatusSaved}, nil
		}
		e.log.WithError(err).Warn("move-tree failed, reconciling locally")
	}
	return e.applyStructural(id, outbox.OpMoveTree, outbox.MoveTreePayload{
		ParentID:  target.ParentID,
		AnchorID:  target.AnchorID,
		Placement: target.Placement,
	}, func(entries []models.IndexEntry) []models.PositionChange {
		return ReconcileMoveTree(entries, id, target)
	})
}

// applyStructural is the shared degrade path of the structural writes:
// reconcile against the cached index, persist the deltas, queue the replay.
// A nil reconciliation is a no-op, not an error: nothing is persisted and
// nothing is enqueued.
func (e *Engine) applyStructural(id, opType string, payload any, reconcile func([]models.IndexEntry) []models.PositionChange) (*Result, error) {
	entries, err := e.cache.GetIndex()
	if err != nil {
		return nil, fmt.Errorf("read cached index: %w", err)
	}
	changes := reconcile(entries)
	if changes == nil {
		return nil, nil
	}
	if err := e.cache.UpdateTreePositions(changes); err != nil {
		return nil, fmt.Errorf("persist tree positions: %w", err)
	}
	if err := e.enqueue(opType, id, payload); err != nil {
		return nil, err
	}
	return &Result{Status: StatusQueued}, nil
}

// CreateArticle optimistically creates an article appended to the target
// parent's children, with a client-generated id.
func (e *Engine) CreateArticle(ctx context.Context, title string, parentID *string) (*Result, error) {
	a := &models.Article{
		ID:       uuid.NewString(),
		Title:    title,
		ParentID: parentID,
		Doc:      models.EmptyDoc(),
	}
	if entries, err := e.cache.GetIndex(); err == nil {
		a.Position = len(childrenByParent(entries)[parentKey(parentID)])
	}

	if e.Online() {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		created, err := e.server.Create(nctx, a)
		cancel()
		if err == nil {
			if cerr := e.cache.SetArticle(created); cerr != nil {
				e.log.WithError(cerr).Warn("cache write after confirmed create failed")
			}
			return &Result{Status: StatusSaved, UpdatedAt: created.UpdatedAt, Article: created}, nil
		}
		e.log.WithError(err).Warn("create failed, queueing for replay")
	}

	// UpdatedAt stays empty until the server confirms the creation.
	if err := e.cache.SetArticle(a); err != nil {
		return nil, fmt.Errorf("persist queued create: %w", err)
	}
	if err := e.enqueue(outbox.OpCreate, a.ID, outbox.CreatePayload{Article: a}); err != nil {
		return nil, err
	}
	return &Result{Status: StatusQueued, Article: a}, nil
}

// DeleteArticle soft-deletes an article. The entry stays in the local index,
// marked deleted, until the server confirms.
func (e *Engine) DeleteArticle(ctx context.Context, id string) (*Result, error) {
	deletedAt := cache.Now()
	if e.Online() {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.NetworkTimeout)
		err := e.server.Delete(nctx, id)
		cancel()
		if err == nil {
			if cerr := e.cache.MarkDeleted(id, deletedAt); cerr != nil {
				e.log.WithError(cerr).Warn("cache write after confirmed delete failed")
			}
			e.goBackground(e.refreshIndexFromNetwork)
			return &Result{Status: StatusSaved}, nil
		}
		e.log.WithError(err).Warn("delete failed, queueing for replay")
	}

	if err := e.cache.MarkDeleted(id, deletedAt); err != nil {
		return nil, fmt.Errorf("persist queued delete: %w", err)
	}
	if err := e.enqueue(outbox.OpDelete, id, outbox.DeletePayload{DeletedAt: deletedAt}); err != nil {
		return nil, err
	}
	return &Result{Status: StatusQueued}, nil
}

func (e *Engine) enqueue(opType, articleID string, payload any) error {
	op, err := outbox.NewOp(opType, articleID, payload)
	if err != nil {
		return err
	}
	if err := e.queue.Enqueue(op); err != nil {
		return fmt.Errorf("enqueue %s: %w", opType, err)
	}
	return nil
}

func positionOf(changes []models.PositionChange, id string) int {
	for _, ch := range changes {
		if ch.ID == id {
			return ch.Position
		}
	}
	return -1
}
