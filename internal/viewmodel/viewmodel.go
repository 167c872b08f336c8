// Package viewmodel is the client side of the todo list: a cached copy of
// the caller's todos, updated optimistically and reconciled with the server
// after every change.
package viewmodel

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dankoteck/extremely-simple-todo-app/internal/querycache"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// TodosKey is the cache key of the current user's todo list.
const TodosKey querycache.Key = "todo.all"

// TempIDPrefix marks todos that exist only in the cache until the next refetch.
const TempIDPrefix = "tmp-"

// API is the remote todo API. rpc.Client implements it.
type API interface {
	All(ctx context.Context) ([]todo.Todo, error)
	Add(ctx context.Context, title string) error
	ToggleCompleted(ctx context.Context, id string, completed bool) error
	Delete(ctx context.Context, id string) error
}

// Option configures a ViewModel.
type Option func(*ViewModel)

// WithToast sets the display settings of error toasts. The message is
// filled in per failure.
func WithToast(t Toast) Option {
	return func(vm *ViewModel) { vm.toast = t }
}

// WithLogger sets the logger used for mutation phase tracing.
func WithLogger(l *log.Logger) Option {
	return func(vm *ViewModel) { vm.log = l }
}

// WithPhaseHook calls fn on every phase change of every mutation.
func WithPhaseHook(fn func(op string, p querycache.Phase)) Option {
	return func(vm *ViewModel) { vm.onPhase = fn }
}

// WithTempID overrides the generator of placeholder ids.
func WithTempID(fn func() string) Option {
	return func(vm *ViewModel) { vm.tempID = fn }
}

// ViewModel owns no state besides the cache it was given.
type ViewModel struct {
	api      API
	cache    *querycache.Cache[[]todo.Todo]
	notifier Notifier
	toast    Toast
	log      *log.Logger
	onPhase  func(op string, p querycache.Phase)
	tempID   func() string

	add    *querycache.Mutation[[]todo.Todo, string]
	toggle *querycache.Mutation[[]todo.Todo, toggleInput]
	remove *querycache.Mutation[[]todo.Todo, string]
}

type toggleInput struct {
	id        string
	completed bool
}

// New binds the todo list query of cache to api. A nil notifier drops toasts.
func New(api API, cache *querycache.Cache[[]todo.Todo], notifier Notifier, opts ...Option) *ViewModel {
	if notifier == nil {
		notifier = discard{}
	}
	vm := &ViewModel{
		api:      api,
		cache:    cache,
		notifier: notifier,
		toast:    DefaultToast(),
		log:      log.Default(),
		tempID:   func() string { return TempIDPrefix + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(vm)
	}

	cache.Define(TodosKey, func(ctx context.Context) ([]todo.Todo, error) {
		todos, err := api.All(ctx)
		if err != nil {
			return nil, err
		}
		return todo.Clone(todos), nil
	})

	vm.add = &querycache.Mutation[[]todo.Todo, string]{
		Key:   TodosKey,
		Zero:  empty,
		Apply: vm.applyAdd,
		Call:  api.Add,
		OnError: func(err error, _ string) {
			vm.fail(err)
		},
		OnPhase: vm.phase("add"),
	}
	vm.toggle = &querycache.Mutation[[]todo.Todo, toggleInput]{
		Key:  TodosKey,
		Zero: empty,
		Apply: func(current []todo.Todo, in toggleInput) []todo.Todo {
			next := todo.Clone(current)
			if i := todo.Index(next, in.id); i >= 0 {
				next[i].Completed = in.completed
			}
			return next
		},
		Call: func(ctx context.Context, in toggleInput) error {
			return api.ToggleCompleted(ctx, in.id, in.completed)
		},
		OnError: func(err error, _ toggleInput) {
			vm.fail(err)
		},
		OnPhase: vm.phase("toggleCompleted"),
	}
	vm.remove = &querycache.Mutation[[]todo.Todo, string]{
		Key:  TodosKey,
		Zero: empty,
		Apply: func(current []todo.Todo, id string) []todo.Todo {
			next := make([]todo.Todo, 0, len(current))
			for _, t := range current {
				if t.ID != id {
					next = append(next, t)
				}
			}
			return next
		},
		Call: api.Delete,
		OnError: func(err error, _ string) {
			vm.fail(err)
		},
		OnPhase: vm.phase("delete"),
	}
	return vm
}

func empty() []todo.Todo { return []todo.Todo{} }

func (vm *ViewModel) applyAdd(current []todo.Todo, title string) []todo.Todo {
	next := make([]todo.Todo, len(current), len(current)+1)
	copy(next, current)
	return append(next, todo.Todo{
		ID:        vm.tempID(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	})
}

// Load fetches the list from the server. A load that was overtaken by a
// newer one is not an error.
func (vm *ViewModel) Load(ctx context.Context) error {
	err := vm.cache.Fetch(ctx, TodosKey)
	if errors.Is(err, querycache.ErrSuperseded) {
		return nil
	}
	return err
}

// Todos returns the cached list. It is empty, never nil, before the first
// load.
func (vm *ViewModel) Todos() []todo.Todo {
	todos, ok := vm.cache.Get(TodosKey)
	if !ok {
		return empty()
	}
	return todo.Clone(todos)
}

// Err returns the error of the last failed refetch, if any.
func (vm *ViewModel) Err() error {
	return vm.cache.Err(TodosKey)
}

// Subscribe calls fn with every new version of the list.
func (vm *ViewModel) Subscribe(fn func([]todo.Todo)) (unsubscribe func()) {
	return vm.cache.Subscribe(TodosKey, fn)
}

// Add appends a placeholder todo, creates it on the server and refetches.
func (vm *ViewModel) Add(ctx context.Context, title string) error {
	return vm.add.Run(ctx, vm.cache, title)
}

// ToggleCompleted sets the completed flag of id.
func (vm *ViewModel) ToggleCompleted(ctx context.Context, id string, completed bool) error {
	return vm.toggle.Run(ctx, vm.cache, toggleInput{id: id, completed: completed})
}

// Toggle flips the completed flag of id as currently cached.
func (vm *ViewModel) Toggle(ctx context.Context, id string) error {
	completed := false
	if todos, ok := vm.cache.Get(TodosKey); ok {
		if i := todo.Index(todos, id); i >= 0 {
			completed = todos[i].Completed
		}
	}
	return vm.ToggleCompleted(ctx, id, !completed)
}

// Delete removes id.
func (vm *ViewModel) Delete(ctx context.Context, id string) error {
	return vm.remove.Run(ctx, vm.cache, id)
}

func (vm *ViewModel) fail(err error) {
	t := vm.toast
	t.Message = err.Error()
	t.Kind = todo.KindOf(err)
	vm.notifier.Notify(t)
}

func (vm *ViewModel) phase(op string) func(querycache.Phase) {
	return func(p querycache.Phase) {
		vm.log.Debug("mutation", "op", op, "phase", p)
		if vm.onPhase != nil {
			vm.onPhase(op, p)
		}
	}
}
