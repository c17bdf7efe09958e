package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/pkg/models"
)

// SQLiteStore persists documents and histories in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path.
// An empty path uses an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			items TEXT NOT NULL,
			created_at TEXT NOT NULL,
			modified_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS histories (
			document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(modified_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) List(ctx context.Context) ([]models.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, modified_at FROM documents ORDER BY modified_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []models.DocumentInfo
	for rows.Next() {
		var info models.DocumentInfo
		var modified string
		if err := rows.Scan(&info.ID, &info.Name, &modified); err != nil {
			return nil, err
		}
		info.ModifiedAt, err = parseTime(modified)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if infos == nil {
		infos = []models.DocumentInfo{}
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return ErrNotFound
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.ModifiedAt.IsZero() {
		doc.ModifiedAt = doc.CreatedAt
	}
	items, err := json.Marshal(doc.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, items, created_at, modified_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, string(items), formatTime(doc.CreatedAt), formatTime(doc.ModifiedAt))
	if err != nil {
		var exists bool
		if scanErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM documents WHERE id = ?)`, doc.ID).Scan(&exists); scanErr == nil && exists {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, items, created_at, modified_at FROM documents WHERE id = ?`, id)

	var doc models.Document
	var items, created, modified string
	if err := row.Scan(&doc.ID, &doc.Name, &items, &created, &modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &doc.Items); err != nil {
		return nil, err
	}
	var err error
	if doc.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if doc.ModifiedAt, err = parseTime(modified); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *SQLiteStore) Put(ctx context.Context, doc *models.Document) (time.Time, error) {
	if doc == nil || doc.ID == "" {
		return time.Time{}, ErrNotFound
	}
	modified := doc.ModifiedAt
	if modified.IsZero() {
		modified = time.Now().UTC()
	}
	created := doc.CreatedAt
	if created.IsZero() {
		created = modified
	}
	items, err := json.Marshal(doc.Items)
	if err != nil {
		return time.Time{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, items, created_at, modified_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, items = excluded.items,
		 modified_at = excluded.modified_at`,
		doc.ID, doc.Name, string(items), formatTime(created), formatTime(modified))
	if err != nil {
		return time.Time{}, err
	}
	return modified, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM histories WHERE document_id = ?`, id)
	return err
}

func (s *SQLiteStore) ModifiedAt(ctx context.Context, id string) (time.Time, error) {
	var modified string
	err := s.db.QueryRowContext(ctx,
		`SELECT modified_at FROM documents WHERE id = ?`, id).Scan(&modified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return parseTime(modified)
}

func (s *SQLiteStore) GetHistory(ctx context.Context, id string) (*history.Stack, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM histories WHERE document_id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	stack, err := history.DecodeStack([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	return stack, nil
}

func (s *SQLiteStore) PutHistory(ctx context.Context, id string, stack *history.Stack) error {
	if id == "" || stack == nil {
		return ErrNotFound
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	payload, err := stack.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO histories (document_id, payload) VALUES (?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET payload = excluded.payload`,
		id, string(payload))
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
