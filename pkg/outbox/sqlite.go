package outbox

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteQueue is the durable Queue implementation. The coalesce key is
// UNIQUE; re-enqueuing on an existing key rewrites the payload in place and
// keeps the original queue position.
type SQLiteQueue struct {
	db *sql.DB
}

// NewSQLiteQueue opens (and if needed creates) the outbox database.
func NewSQLiteQueue(dbPath string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open outbox db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS pending_ops (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		op_type TEXT NOT NULL,
		article_id TEXT NOT NULL,
		payload TEXT,
		coalesce_key TEXT NOT NULL UNIQUE,
		queued_at TIMESTAMP NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create outbox schema: %w", err)
	}
	return &SQLiteQueue{db: db}, nil
}

func (q *SQLiteQueue) Enqueue(op Op) error {
	_, err := q.db.Exec(`
		INSERT INTO pending_ops (id, op_type, article_id, payload, coalesce_key, queued_at, retries)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(coalesce_key) DO UPDATE SET
			op_type = excluded.op_type,
			article_id = excluded.article_id,
			payload = excluded.payload,
			retries = 0,
			last_error = NULL
	`, op.ID, op.Type, op.ArticleID, string(op.Payload), op.CoalesceKey, op.QueuedAt)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", op.CoalesceKey, err)
	}
	return nil
}

func (q *SQLiteQueue) Pending() ([]Op, error) {
	rows, err := q.db.Query(`
		SELECT id, op_type, article_id, payload, coalesce_key, queued_at, retries
		FROM pending_ops
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("read pending ops: %w", err)
	}
	defer rows.Close()

	var ops []Op
	for rows.Next() {
		var op Op
		var payload sql.NullString
		var queuedAt time.Time
		if err := rows.Scan(&op.ID, &op.Type, &op.ArticleID, &payload, &op.CoalesceKey, &queuedAt, &op.Retries); err != nil {
			return nil, fmt.Errorf("scan pending op: %w", err)
		}
		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		op.QueuedAt = queuedAt
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (q *SQLiteQueue) Ack(id string) error {
	if _, err := q.db.Exec("DELETE FROM pending_ops WHERE id = ?", id); err != nil {
		return fmt.Errorf("ack op %s: %w", id, err)
	}
	return nil
}

func (q *SQLiteQueue) Nack(id string, errMsg string) error {
	if _, err := q.db.Exec(
		"UPDATE pending_ops SET retries = retries + 1, last_error = ? WHERE id = ?",
		errMsg, id,
	); err != nil {
		return fmt.Errorf("nack op %s: %w", id, err)
	}
	return nil
}

func (q *SQLiteQueue) Len() (int, error) {
	var n int
	if err := q.db.QueryRow("SELECT COUNT(*) FROM pending_ops").Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending ops: %w", err)
	}
	return n, nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
