// Package todo holds the Todo entity and the error kinds shared by the
// server and the client.
package todo

import (
	"strings"
	"time"
)

// Todo is one task owned by a single user.
type Todo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidTitle reports whether title is acceptable for a new Todo.
func ValidTitle(title string) bool {
	return strings.TrimSpace(title) != ""
}

// Clone returns a copy of todos that shares no backing array with it.
// A nil input yields an empty, non-nil slice.
func Clone(todos []Todo) []Todo {
	out := make([]Todo, len(todos))
	copy(out, todos)
	return out
}

// Index returns the position of the Todo with the given id, or -1.
func Index(todos []Todo, id string) int {
	for i := range todos {
		if todos[i].ID == id {
			return i
		}
	}
	return -1
}
