package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/arbornotes/arbor/pkg/api"
	"github.com/arbornotes/arbor/pkg/models"
)

// Server is the slice of the API surface the replayer drives.
type Server interface {
	SaveDoc(ctx context.Context, id string, doc *models.DocNode, createVersionIfStaleHours int) (*api.SaveResult, error)
	Move(ctx context.Context, id, direction string) error
	Indent(ctx context.Context, id string) error
	Outdent(ctx context.Context, id string) error
	MoveTree(ctx context.Context, id string, req api.MoveTreeRequest) error
	Create(ctx context.Context, a *models.Article) (*models.Article, error)
	Delete(ctx context.Context, id string) error
}

// Report summarizes one replay pass.
type Report struct {
	Replayed  int
	Dropped   int
	Remaining int
}

// Replayer drains the outbox against the server on reconnect. Ops replay in
// queue order; the pass stops at the first transient failure so later ops
// never overtake an earlier one for the same tree.
type Replayer struct {
	queue      Queue
	server     Server
	log        *logrus.Logger
	maxRetries int
}

// NewReplayer creates a replayer. maxRetries bounds how many failed passes
// an op survives before it is dropped with a warning.
func NewReplayer(queue Queue, server Server, log *logrus.Logger, maxRetries int) *Replayer {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Replayer{queue: queue, server: server, log: log, maxRetries: maxRetries}
}

// Replay attempts every pending op once, in order.
func (r *Replayer) Replay(ctx context.Context) (*Report, error) {
	ops, err := r.queue.Pending()
	if err != nil {
		return nil, fmt.Errorf("list pending ops: %w", err)
	}

	report := &Report{}
	for i, op := range ops {
		if op.Retries >= r.maxRetries {
			r.log.WithFields(logrus.Fields{"op": op.Type, "article": op.ArticleID}).
				Warn("dropping op after repeated replay failures")
			if err := r.queue.Ack(op.ID); err != nil {
				return report, err
			}
			report.Dropped++
			continue
		}

		if err := r.replayOne(ctx, op); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"op": op.Type, "article": op.ArticleID}).
				Warn("replay failed, keeping op queued")
			if nerr := r.queue.Nack(op.ID, err.Error()); nerr != nil {
				return report, nerr
			}
			report.Remaining = len(ops) - i
			return report, nil
		}
		if err := r.queue.Ack(op.ID); err != nil {
			return report, err
		}
		report.Replayed++
	}
	return report, nil
}

func (r *Replayer) replayOne(ctx context.Context, op Op) error {
	switch op.Type {
	case OpSaveDocJSON:
		var p SavePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("decode save payload: %w", err)
		}
		_, err := r.server.SaveDoc(ctx, op.ArticleID, p.DocJSON, p.CreateVersionIfStaleHours)
		return err

	case OpMovePosition:
		var p MovePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("decode move payload: %w", err)
		}
		return r.server.Move(ctx, op.ArticleID, p.Direction)

	case OpIndent:
		return r.server.Indent(ctx, op.ArticleID)

	case OpOutdent:
		return r.server.Outdent(ctx, op.ArticleID)

	case OpMoveTree:
		var p MoveTreePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("decode move-tree payload: %w", err)
		}
		return r.server.MoveTree(ctx, op.ArticleID, p.MoveTreeRequest())

	case OpCreate:
		var p CreatePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("decode create payload: %w", err)
		}
		_, err := r.server.Create(ctx, p.Article)
		return err

	case OpDelete:
		return r.server.Delete(ctx, op.ArticleID)

	default:
		return fmt.Errorf("unknown op type %q", op.Type)
	}
}
