// Package sqlite implements store.Repository on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dankoteck/extremely-simple-todo-app/internal/store"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

const schema = `CREATE TABLE IF NOT EXISTS todos (
	id         TEXT NOT NULL PRIMARY KEY,
	title      TEXT NOT NULL,
	completed  BOOLEAN NOT NULL DEFAULT 0,
	user_id    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS todos_user_id_idx ON todos (user_id, created_at);`

// Store is a database/sql handle on a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure todos table: %w", err)
	}
	return &Store{db: db}, nil
}

// Create implements store.Repository.
func (s *Store) Create(ctx context.Context, t todo.Todo) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (id, title, completed, user_id, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Title, t.Completed, t.UserID, t.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrConflict
	}
	return nil
}

// ListByUser implements store.Repository.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]todo.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, completed, user_id, created_at FROM todos WHERE user_id = ? ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	ret := []todo.Todo{}
	for rows.Next() {
		var row todo.Todo
		var createdAt time.Time
		if err := rows.Scan(&row.ID, &row.Title, &row.Completed, &row.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		row.CreatedAt = createdAt.UTC()
		ret = append(ret, row)
	}
	return ret, rows.Err()
}

// SetCompleted implements store.Repository.
func (s *Store) SetCompleted(ctx context.Context, owner, id string, completed bool) error {
	return s.withOwned(ctx, owner, id, func(tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx, `UPDATE todos SET completed = ? WHERE id = ?`, completed, id)
	})
}

// Delete implements store.Repository.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	return s.withOwned(ctx, owner, id, func(tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	})
}

// Close implements store.Repository.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withOwned(ctx context.Context, owner, id string, write func(*sql.Tx) (sql.Result, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rowOwner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM todos WHERE id = ?`, id).Scan(&rowOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != "" && rowOwner != owner {
		return store.ErrForbidden
	}

	res, err := write(tx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}
