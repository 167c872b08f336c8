// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dankoteck/extremely-simple-todo-app/internal/auth"
	"github.com/dankoteck/extremely-simple-todo-app/internal/service"
	"github.com/dankoteck/extremely-simple-todo-app/internal/store/memory"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// Operation names passed to FakeAPI.Hook.
const (
	OpAll    = "all"
	OpAdd    = "add"
	OpToggle = "toggleCompleted"
	OpDelete = "delete"
)

// FakeAPI is an in-process implementation of the remote todo API for one
// signed-in user. Calls go through the real service over an in-memory store.
type FakeAPI struct {
	Repo *memory.Store
	User string

	svc *service.Service

	mu    sync.Mutex
	calls map[string]int

	// Error injection for testing. A non-nil error is returned instead of
	// calling the service.
	AllErr    error
	AddErr    error
	ToggleErr error
	DeleteErr error

	// Hook, when set, runs at the start of every call. Tests use it to
	// block a call or observe the cache mid-flight.
	Hook func(op string)
}

// NewFakeAPI creates a FakeAPI with ownership enforced and an empty store.
func NewFakeAPI(user string) *FakeAPI {
	repo := memory.New()
	return &FakeAPI{
		Repo:  repo,
		User:  user,
		svc:   service.New(repo, service.Options{EnforceOwnership: true, Logger: log.New(io.Discard)}),
		calls: make(map[string]int),
	}
}

// Calls returns how many times op was called.
func (f *FakeAPI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Server returns the authoritative list as the service sees it.
func (f *FakeAPI) Server(ctx context.Context) []todo.Todo {
	todos, err := f.svc.List(f.ctx(ctx))
	if err != nil {
		return nil
	}
	return todos
}

func (f *FakeAPI) begin(ctx context.Context, op string) context.Context {
	f.mu.Lock()
	f.calls[op]++
	hook := f.Hook
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return f.ctx(ctx)
}

func (f *FakeAPI) ctx(ctx context.Context) context.Context {
	if f.User == "" {
		return ctx
	}
	return auth.WithUser(ctx, f.User)
}

// All implements viewmodel.API.
func (f *FakeAPI) All(ctx context.Context) ([]todo.Todo, error) {
	ctx = f.begin(ctx, OpAll)
	if f.AllErr != nil {
		return nil, f.AllErr
	}
	return f.svc.List(ctx)
}

// Add implements viewmodel.API.
func (f *FakeAPI) Add(ctx context.Context, title string) error {
	ctx = f.begin(ctx, OpAdd)
	if f.AddErr != nil {
		return f.AddErr
	}
	return f.svc.Add(ctx, title)
}

// ToggleCompleted implements viewmodel.API.
func (f *FakeAPI) ToggleCompleted(ctx context.Context, id string, completed bool) error {
	ctx = f.begin(ctx, OpToggle)
	if f.ToggleErr != nil {
		return f.ToggleErr
	}
	return f.svc.ToggleCompleted(ctx, id, completed)
}

// Delete implements viewmodel.API.
func (f *FakeAPI) Delete(ctx context.Context, id string) error {
	ctx = f.begin(ctx, OpDelete)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	return f.svc.Delete(ctx, id)
}
