// Package postgres implements store.Repository on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/dankoteck/extremely-simple-todo-app/internal/store"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

const schema = `create table if not exists public.todos (
	id         text primary key,
	title      text not null,
	completed  boolean not null default false,
	user_id    text not null,
	created_at timestamptz not null default now()
);
create index if not exists todos_user_id_idx on public.todos (user_id, created_at);`

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// connectAttempts is how many times Open tries to reach the database.
const connectAttempts = 3

var tracer = otel.Tracer("postgres-store")

// Store is a pgx connection pool holding the todos table.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, retrying with a growing delay, and makes sure the
// todos table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	ctx, span := tracer.Start(ctx, "Open Postgres")
	defer span.End()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	for i := 0; i < connectAttempts; i++ {
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Millisecond * 500 * time.Duration(i)):
		}

		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		span.RecordError(err)
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres after %d attempts: %w", connectAttempts, err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate todos table: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Create implements store.Repository.
func (s *Store) Create(ctx context.Context, t todo.Todo) error {
	_, err := s.pool.Exec(ctx,
		"insert into public.todos (id, title, completed, user_id, created_at) values ($1, $2, $3, $4, $5)",
		t.ID, t.Title, t.Completed, t.UserID, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

// ListByUser implements store.Repository.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]todo.Todo, error) {
	rows, err := s.pool.Query(ctx,
		"select id, title, completed, user_id, created_at from public.todos where user_id = $1 order by created_at, id",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := []todo.Todo{}
	for rows.Next() {
		var row todo.Todo
		if err := rows.Scan(&row.ID, &row.Title, &row.Completed, &row.UserID, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.CreatedAt = row.CreatedAt.UTC()
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// SetCompleted implements store.Repository.
func (s *Store) SetCompleted(ctx context.Context, owner, id string, completed bool) error {
	return s.withOwned(ctx, owner, id, func(tx pgx.Tx) (pgconn.CommandTag, error) {
		return tx.Exec(ctx, "update public.todos set completed = $1 where id = $2", completed, id)
	})
}

// Delete implements store.Repository.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	return s.withOwned(ctx, owner, id, func(tx pgx.Tx) (pgconn.CommandTag, error) {
		return tx.Exec(ctx, "delete from public.todos where id = $1", id)
	})
}

// Close implements store.Repository.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// withOwned locks the row, checks its owner and runs write in the same
// transaction.
func (s *Store) withOwned(ctx context.Context, owner, id string, write func(pgx.Tx) (pgconn.CommandTag, error)) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var rowOwner string
		err := tx.QueryRow(ctx, "select user_id from public.todos where id = $1 for update", id).Scan(&rowOwner)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if owner != "" && rowOwner != owner {
			return store.ErrForbidden
		}

		result, err := write(tx)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}
