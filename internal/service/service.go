// Package service implements the todo operations exposed to clients.
// Each operation authorizes the caller and makes exactly one repository call.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dankoteck/extremely-simple-todo-app/internal/auth"
	"github.com/dankoteck/extremely-simple-todo-app/internal/store"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// User-facing messages.
const (
	MsgLoginToCreate = "You must be logged in to create a Todo."
	MsgLoginRequired = "You must be logged in."
	MsgEmptyTitle    = "A Todo needs a title."
	MsgNotFound      = "Todo not found."
	MsgForbidden     = "You cannot change a Todo that belongs to someone else."
	MsgConflict      = "That Todo already exists."
	MsgCreateFailed  = "Something went wrong, cannot create Todo."
	MsgToggleFailed  = "Something went wrong, cannot mark Todo as done or undone."
	MsgDeleteFailed  = "Something went wrong, cannot delete the Todo."
	MsgListFailed    = "Something went wrong, cannot load Todos."
)

var tracer = otel.Tracer("todo-service")

// Options configures a Service.
type Options struct {
	// EnforceOwnership makes toggle and delete require a caller who owns
	// the todo. When false any caller may change any todo by id.
	EnforceOwnership bool

	Logger *log.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Service serves todos out of a store.Repository.
type Service struct {
	repo  store.Repository
	opts  Options
	log   *log.Logger
	now   func() time.Time
	newID func() string
}

// New returns a Service backed by repo.
func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:  repo,
		opts:  opts,
		log:   opts.Logger,
		now:   opts.Now,
		newID: opts.NewID,
	}
	if s.log == nil {
		s.log = log.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// List returns the caller's todos in creation order.
func (s *Service) List(ctx context.Context) ([]todo.Todo, error) {
	ctx, span := tracer.Start(ctx, "todo.all")
	defer span.End()

	userID, ok := auth.UserFrom(ctx)
	if !ok {
		return nil, s.fail(span, todo.NewError(todo.KindUnauthorized, MsgLoginRequired, nil))
	}
	span.SetAttributes(attribute.String("todo.user_id", userID))

	todos, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.fail(span, s.classify(ctx, "todo.all", err, MsgListFailed))
	}
	return todos, nil
}

// Add creates an uncompleted todo owned by the caller.
func (s *Service) Add(ctx context.Context, title string) error {
	ctx, span := tracer.Start(ctx, "todo.add")
	defer span.End()

	userID, ok := auth.UserFrom(ctx)
	if !ok {
		return s.fail(span, todo.NewError(todo.KindUnauthorized, MsgLoginToCreate, nil))
	}
	if !todo.ValidTitle(title) {
		return s.fail(span, todo.NewError(todo.KindInvalid, MsgEmptyTitle, nil))
	}

	t := todo.Todo{
		ID:        s.newID(),
		Title:     title,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	span.SetAttributes(attribute.String("todo.id", t.ID), attribute.String("todo.user_id", userID))

	if err := s.repo.Create(ctx, t); err != nil {
		return s.fail(span, s.classify(ctx, "todo.add", err, MsgCreateFailed))
	}
	return nil
}

// ToggleCompleted sets the completed flag of the todo with the given id.
func (s *Service) ToggleCompleted(ctx context.Context, id string, completed bool) error {
	ctx, span := tracer.Start(ctx, "todo.toggleCompleted", trace.WithAttributes(
		attribute.String("todo.id", id),
		attribute.Bool("todo.completed", completed),
	))
	defer span.End()

	owner, err := s.owner(ctx)
	if err != nil {
		return s.fail(span, err)
	}
	if err := s.repo.SetCompleted(ctx, owner, id, completed); err != nil {
		return s.fail(span, s.classify(ctx, "todo.toggleCompleted", err, MsgToggleFailed))
	}
	return nil
}

// Delete removes the todo with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "todo.delete", trace.WithAttributes(attribute.String("todo.id", id)))
	defer span.End()

	owner, err := s.owner(ctx)
	if err != nil {
		return s.fail(span, err)
	}
	if err := s.repo.Delete(ctx, owner, id); err != nil {
		return s.fail(span, s.classify(ctx, "todo.delete", err, MsgDeleteFailed))
	}
	return nil
}

// owner returns the ownership filter for a mutation: the caller when
// ownership is enforced, empty otherwise.
func (s *Service) owner(ctx context.Context) (string, error) {
	if !s.opts.EnforceOwnership {
		return "", nil
	}
	userID, ok := auth.UserFrom(ctx)
	if !ok {
		return "", todo.NewError(todo.KindUnauthorized, MsgLoginRequired, nil)
	}
	return userID, nil
}

// classify turns a repository error into a typed error. Unrecognised
// causes are logged and replaced by the generic message.
func (s *Service) classify(ctx context.Context, op string, err error, generic string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return todo.NewError(todo.KindNotFound, MsgNotFound, err)
	case errors.Is(err, store.ErrForbidden):
		return todo.NewError(todo.KindForbidden, MsgForbidden, err)
	case errors.Is(err, store.ErrConflict):
		return todo.NewError(todo.KindConflict, MsgConflict, err)
	}
	if ctx.Err() == nil {
		s.log.Error("repository call failed", "op", op, "err", err)
	}
	return todo.NewError(todo.KindInternal, generic, err)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, todo.KindOf(err).String())
	return err
}
