package exitcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"unauthorized", todo.NewError(todo.KindUnauthorized, "login", nil), AuthError},
		{"forbidden", todo.NewError(todo.KindForbidden, "not yours", nil), AuthError},
		{"not found", todo.NewError(todo.KindNotFound, "missing", nil), UserError},
		{"invalid", todo.NewError(todo.KindInvalid, "empty", nil), UserError},
		{"wrapped conflict", fmt.Errorf("add: %w", todo.NewError(todo.KindConflict, "dup", nil)), UserError},
		{"transport", todo.NewError(todo.KindTransport, "down", nil), BackendError},
		{"internal", todo.NewError(todo.KindInternal, "oops", nil), BackendError},
		{"untyped", errors.New("boom"), BackendError},
		{"deadline", context.DeadlineExceeded, BackendError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromError(tt.err); got != tt.want {
				t.Errorf("FromError(%v): got %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
