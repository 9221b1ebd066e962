// Package outbox is the durable queue of mutations not yet confirmed by the
// server. Ops are coalesced by key: enqueuing with an existing coalesce key
// replaces the queued payload in place, so rapid repeated intents (autosave,
// a drag gesture's hovers) replay as a single final operation.
package outbox

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbornotes/arbor/pkg/api"
	"github.com/arbornotes/arbor/pkg/models"
)

// Replay op types. One per degradable mutation.
const (
	OpSaveDocJSON  = "save_doc_json"
	OpMovePosition = "move_article_position"
	OpIndent       = "indent_article"
	OpOutdent      = "outdent_article"
	OpMoveTree     = "move_article_tree"
	OpCreate       = "create_article"
	OpDelete       = "delete_article"
)

// Op is a pending mutation awaiting replay.
type Op struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	ArticleID   string          `json:"articleId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CoalesceKey string          `json:"coalesceKey"`
	QueuedAt    time.Time       `json:"queuedAt"`
	Retries     int             `json:"retries"`
}

// CoalesceKey builds the standard per-article key for an op type.
func CoalesceKey(opType, articleID string) string {
	return opType + ":" + articleID
}

// NewOp creates an op with a fresh id, the standard coalesce key, and a
// JSON-encoded payload.
func NewOp(opType, articleID string, payload any) (Op, error) {
	op := Op{
		ID:          uuid.NewString(),
		Type:        opType,
		ArticleID:   articleID,
		CoalesceKey: CoalesceKey(opType, articleID),
		QueuedAt:    time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Op{}, fmt.Errorf("encode op payload: %w", err)
		}
		op.Payload = data
	}
	return op, nil
}

// Payload shapes, one per op type.

// SavePayload carries the latest full document for a queued save.
type SavePayload struct {
	DocJSON                   *models.DocNode `json:"docJson"`
	CreateVersionIfStaleHours int             `json:"createVersionIfStaleHours"`
}

// MovePayload carries a sibling swap. Position is the locally computed
// post-swap position, recorded so the queued op reflects final intent.
type MovePayload struct {
	Direction string `json:"direction"`
	Position  int    `json:"position"`
}

// MoveTreePayload carries the final destination of a subtree move.
type MoveTreePayload struct {
	ParentID  *string `json:"parentId,omitempty"`
	AnchorID  string  `json:"anchorId,omitempty"`
	Placement string  `json:"placement"`
}

// CreatePayload carries an optimistically created article.
type CreatePayload struct {
	Article *models.Article `json:"article"`
}

// DeletePayload carries the local soft-delete timestamp.
type DeletePayload struct {
	DeletedAt string `json:"deletedAt"`
}

// MoveTreeRequest converts a queued move-tree payload back into the API
// request it replays as.
func (p MoveTreePayload) MoveTreeRequest() api.MoveTreeRequest {
	return api.MoveTreeRequest{ParentID: p.ParentID, AnchorID: p.AnchorID, Placement: p.Placement}
}

// Queue is the outbox contract consumed by the engine and the replayer.
type Queue interface {
	// Enqueue persists an op, replacing any queued op with the same
	// coalesce key while keeping the superseded op's queue position.
	Enqueue(op Op) error
	// Pending returns all queued ops in enqueue order.
	Pending() ([]Op, error)
	// Ack removes a confirmed op.
	Ack(id string) error
	// Nack records a failed replay attempt.
	Nack(id string, errMsg string) error
	// Len returns the number of queued ops.
	Len() (int, error)
	Close() error
}

// MemQueue is an in-memory Queue for tests.
type MemQueue struct {
	mu  sync.Mutex
	ops map[string]Op // by coalesce key
	seq map[string]int
	n   int
}

// NewMemQueue creates an empty in-memory queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{ops: make(map[string]Op), seq: make(map[string]int)}
}

func (q *MemQueue) Enqueue(op Op) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if prev, ok := q.ops[op.CoalesceKey]; ok {
		// Keep the original queue position and timestamp.
		op.ID = prev.ID
		op.QueuedAt = prev.QueuedAt
	} else {
		q.n++
		q.seq[op.CoalesceKey] = q.n
	}
	q.ops[op.CoalesceKey] = op
	return nil
}

func (q *MemQueue) Pending() ([]Op, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := make([]Op, 0, len(q.ops))
	for _, op := range q.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return q.seq[ops[i].CoalesceKey] < q.seq[ops[j].CoalesceKey]
	})
	return ops, nil
}

func (q *MemQueue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, op := range q.ops {
		if op.ID == id {
			delete(q.ops, key)
			delete(q.seq, key)
			return nil
		}
	}
	return nil
}

func (q *MemQueue) Nack(id string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, op := range q.ops {
		if op.ID == id {
			op.Retries++
			q.ops[key] = op
			return nil
		}
	}
	return nil
}

func (q *MemQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops), nil
}

func (q *MemQueue) Close() error { return nil }
