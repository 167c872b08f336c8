// Package exitcode defines exit codes for the todo CLI.
package exitcode

import "github.com/dankoteck/extremely-simple-todo-app/internal/todo"

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, unknown todo, empty title).
	UserError = 1

	// AuthError indicates a missing or rejected token.
	AuthError = 2

	// BackendError indicates a server or network failure.
	BackendError = 3
)

// FromError maps an error returned by the todo API to an exit code.
func FromError(err error) int {
	if err == nil {
		return Success
	}
	switch todo.KindOf(err) {
	case todo.KindUnauthorized, todo.KindForbidden:
		return AuthError
	case todo.KindNotFound, todo.KindInvalid, todo.KindConflict:
		return UserError
	default:
		return BackendError
	}
}
