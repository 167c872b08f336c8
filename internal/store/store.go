// Package store defines the persistence interface for todos.
package store

import (
	"context"
	"errors"

	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

var (
	// ErrNotFound is returned when no todo has the requested id.
	ErrNotFound = errors.New("todo not found")

	// ErrForbidden is returned when the todo exists but belongs to another user.
	ErrForbidden = errors.New("todo belongs to another user")

	// ErrConflict is returned when a todo with the same id already exists.
	ErrConflict = errors.New("todo already exists")
)

// Repository persists todos. Every method is a single atomic operation.
//
// An empty owner on SetCompleted and Delete skips the ownership check.
type Repository interface {
	// Create inserts t as is.
	Create(ctx context.Context, t todo.Todo) error

	// ListByUser returns the user's todos in creation order.
	ListByUser(ctx context.Context, userID string) ([]todo.Todo, error)

	// SetCompleted sets the completed flag of the todo with the given id.
	SetCompleted(ctx context.Context, owner, id string, completed bool) error

	// Delete removes the todo with the given id.
	Delete(ctx context.Context, owner, id string) error

	// Close releases the underlying resources.
	Close() error
}
