package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arbornotes/arbor/pkg/models"
)

// SQLiteStore is the durable Store implementation. The index lives in its
// own table so tree navigation never deserializes article payloads.
type SQLiteStore struct {
	db   *sql.DB
	warm atomic.Bool
}

// NewSQLiteStore opens (and if needed creates) the cache database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS article_index (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		position INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_article_index_parent ON article_index(parent_id);

	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		payload TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create cache schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIndex() ([]models.IndexEntry, error) {
	defer s.warm.Store(true)

	rows, err := s.db.Query(`
		SELECT id, parent_id, position, title, updated_at, deleted_at
		FROM article_index
		ORDER BY parent_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	defer rows.Close()

	var entries []models.IndexEntry
	for rows.Next() {
		var e models.IndexEntry
		var parent, deleted sql.NullString
		if err := rows.Scan(&e.ID, &parent, &e.Position, &e.Title, &e.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		if parent.Valid {
			p := parent.String
			e.ParentID = &p
		}
		if deleted.Valid {
			d := deleted.String
			e.DeletedAt = &d
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) SetIndex(entries []models.IndexEntry) error {
	defer s.warm.Store(true)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec("DELETE FROM article_index"); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO article_index (id, parent_id, position, title, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.ID, nullable(e.ParentID), e.Position, e.Title, e.UpdatedAt, nullable(e.DeletedAt)); err != nil {
			return fmt.Errorf("insert index entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetArticle(id string) (*models.Article, error) {
	defer s.warm.Store(true)

	var payload string
	err := s.db.QueryRow("SELECT payload FROM articles WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read article %s: %w", id, err)
	}

	var a models.Article
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("decode cached article %s: %w", id, err)
	}
	return &a, nil
}

func (s *SQLiteStore) SetArticle(a *models.Article) error {
	defer s.warm.Store(true)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := writeArticle(tx, a.ID, a); err != nil {
		return err
	}
	e := models.IndexEntryOf(a)
	if _, err := tx.Exec(`
		INSERT INTO article_index (id, parent_id, position, title, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			position = excluded.position,
			title = excluded.title,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`, e.ID, nullable(e.ParentID), e.Position, e.Title, e.UpdatedAt, nullable(e.DeletedAt)); err != nil {
		return fmt.Errorf("upsert index entry %s: %w", e.ID, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetArticleUnderID(a *models.Article, aliasID string) error {
	defer s.warm.Store(true)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := writeArticle(tx, aliasID, a); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateTreePositions(changes []models.PositionChange) error {
	defer s.warm.Store(true)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, ch := range changes {
		if _, err := tx.Exec(
			"UPDATE article_index SET parent_id = ?, position = ? WHERE id = ?",
			nullable(ch.ParentID), ch.Position, ch.ID,
		); err != nil {
			return fmt.Errorf("update position %s: %w", ch.ID, err)
		}
		a, err := readArticle(tx, ch.ID)
		if err != nil {
			return err
		}
		if a != nil {
			a.ParentID = ch.ParentID
			a.Position = ch.Position
			if err := writeArticle(tx, ch.ID, a); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateDocContent(id string, doc *models.DocNode, preservedUpdatedAt string) error {
	defer s.warm.Store(true)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	a, err := readArticle(tx, id)
	if err != nil {
		return err
	}
	if a == nil {
		a = &models.Article{ID: id}
	}
	a.Doc = doc
	a.UpdatedAt = preservedUpdatedAt
	if err := writeArticle(tx, id, a); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"UPDATE article_index SET updated_at = ? WHERE id = ?",
		preservedUpdatedAt, id,
	); err != nil {
		return fmt.Errorf("update index timestamp %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) MarkDeleted(id string, deletedAt string) error {
	defer s.warm.Store(true)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(
		"UPDATE article_index SET deleted_at = ? WHERE id = ?",
		deletedAt, id,
	); err != nil {
		return fmt.Errorf("mark index entry deleted %s: %w", id, err)
	}
	a, err := readArticle(tx, id)
	if err != nil {
		return err
	}
	if a != nil {
		a.DeletedAt = &deletedAt
		if err := writeArticle(tx, id, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Ready() bool {
	return s.warm.Load()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func readArticle(tx *sql.Tx, id string) (*models.Article, error) {
	var payload string
	err := tx.QueryRow("SELECT payload FROM articles WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read article %s: %w", id, err)
	}
	var a models.Article
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("decode cached article %s: %w", id, err)
	}
	return &a, nil
}

func writeArticle(tx *sql.Tx, id string, a *models.Article) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode article %s: %w", id, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO articles (id, payload) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, id, string(payload)); err != nil {
		return fmt.Errorf("write article %s: %w", id, err)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
