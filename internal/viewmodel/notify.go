package viewmodel

import (
	"time"

	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// Toast is a transient error notification and its display settings.
type Toast struct {
	Message         string
	Kind            todo.Kind
	Position        string
	Duration        time.Duration
	HideProgressBar bool
	CloseOnClick    bool
	PauseOnHover    bool
	Draggable       bool
}

// DefaultToast is the display configuration used for failed mutations.
func DefaultToast() Toast {
	return Toast{
		Position:     "bottom-right",
		Duration:     5 * time.Second,
		CloseOnClick: true,
		PauseOnHover: true,
		Draggable:    true,
	}
}

// Notifier renders toasts. Notify must not block.
type Notifier interface {
	Notify(Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Toast)

func (f NotifierFunc) Notify(t Toast) { f(t) }

type discard struct{}

func (discard) Notify(Toast) {}
