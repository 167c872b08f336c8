// Package memory is an in-process store.Repository used for tests and for
// running the server without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dankoteck/extremely-simple-todo-app/internal/store"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// Store keeps todos in a slice guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	todos []todo.Todo

	// Error injection for testing
	CreateErr       error
	ListErr         error
	SetCompletedErr error
	DeleteErr       error
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Create implements store.Repository.
func (s *Store) Create(ctx context.Context, t todo.Todo) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if todo.Index(s.todos, t.ID) >= 0 {
		return store.ErrConflict
	}
	s.todos = append(s.todos, t)
	return nil
}

// ListByUser implements store.Repository.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]todo.Todo, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []todo.Todo{}
	for _, t := range s.todos {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SetCompleted implements store.Repository.
func (s *Store) SetCompleted(ctx context.Context, owner, id string, completed bool) error {
	if s.SetCompletedErr != nil {
		return s.SetCompletedErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.lookup(owner, id)
	if err != nil {
		return err
	}
	s.todos[i].Completed = completed
	return nil
}

// Delete implements store.Repository.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.lookup(owner, id)
	if err != nil {
		return err
	}
	s.todos = append(s.todos[:i], s.todos[i+1:]...)
	return nil
}

// Close implements store.Repository.
func (s *Store) Close() error {
	return nil
}

// All returns every stored todo regardless of owner.
func (s *Store) All() []todo.Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return todo.Clone(s.todos)
}

// lookup must be called with s.mu held.
func (s *Store) lookup(owner, id string) (int, error) {
	i := todo.Index(s.todos, id)
	if i < 0 {
		return -1, store.ErrNotFound
	}
	if owner != "" && s.todos[i].UserID != owner {
		return -1, store.ErrForbidden
	}
	return i, nil
}
