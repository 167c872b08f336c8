// Package cli dispatches the todo client's command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dankoteck/extremely-simple-todo-app/internal/config"
	"github.com/dankoteck/extremely-simple-todo-app/internal/exitcode"
	"github.com/dankoteck/extremely-simple-todo-app/internal/logging"
	"github.com/dankoteck/extremely-simple-todo-app/internal/querycache"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
	"github.com/dankoteck/extremely-simple-todo-app/internal/tui"
	"github.com/dankoteck/extremely-simple-todo-app/internal/viewmodel"
)

// APIFactory creates the remote API from config.
type APIFactory func(cfg *config.Client) viewmodel.API

// InteractiveFunc runs the full-screen client until the user quits.
type InteractiveFunc func(ctx context.Context, vm *viewmodel.ViewModel, bridge *tui.Bridge) error

// Runner parses arguments and runs one command.
type Runner struct {
	NewAPI      APIFactory
	Interactive InteractiveFunc
}

const usage = `todo - an authenticated to-do list

Usage:
  todo [flags]                 Open the interactive list
  todo [flags] <command> [args]

Commands:
  ls                 List todos
  add <title...>     Add a todo
  done <ref>         Mark a todo completed
  undo <ref>         Mark a todo not completed
  rm <ref>           Delete a todo
  help               Show this help

A <ref> is the 1-based number shown by ls, or a todo id.

Flags:
  -config <path>     Config file (default ./todo.toml)
  -server <url>      Server URL
  -token <token>     Bearer token (or TODO_TOKEN)
  -log-level <lvl>   debug, info, warn, error
`

// Run executes args and returns the exit code.
func (r *Runner) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("todo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := config.LoadClient(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(out, usage)
			return exitcode.Success
		}
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	logger := logging.New(errOut, logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Prefix: "todo",
	})

	toast := viewmodel.DefaultToast()
	toast.Position = cfg.Toast.Position
	toast.Duration = cfg.ToastDuration()
	opts := []viewmodel.Option{viewmodel.WithToast(toast), viewmodel.WithLogger(logger)}

	api := r.NewAPI(cfg)
	cache := querycache.New[[]todo.Todo]()
	rest := fs.Args()

	if len(rest) == 0 {
		if r.Interactive == nil {
			fmt.Fprint(errOut, usage)
			return exitcode.UserError
		}
		bridge := tui.NewBridge()
		vm := viewmodel.New(api, cache, bridge, opts...)
		if err := r.Interactive(ctx, vm, bridge); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.BackendError
		}
		return exitcode.Success
	}

	// Script mode: toasts go to stderr.
	notifier := viewmodel.NotifierFunc(func(t viewmodel.Toast) {
		fmt.Fprintf(errOut, "error: %s\n", t.Message)
	})
	vm := viewmodel.New(api, cache, notifier, opts...)

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return exitcode.Success
	case "ls":
		return list(ctx, vm, out, errOut)
	case "add":
		if len(cmdArgs) == 0 {
			fmt.Fprintln(errOut, "usage: todo add <title...>")
			return exitcode.UserError
		}
		return finish(vm.Add(ctx, strings.Join(cmdArgs, " ")), out)
	case "done", "undo", "rm":
		if len(cmdArgs) != 1 {
			fmt.Fprintf(errOut, "usage: todo %s <ref>\n", cmd)
			return exitcode.UserError
		}
		if err := vm.Load(ctx); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.FromError(err)
		}
		id, ok := resolve(vm.Todos(), cmdArgs[0])
		if !ok {
			fmt.Fprintf(errOut, "error: no todo matches %q\n", cmdArgs[0])
			return exitcode.UserError
		}
		switch cmd {
		case "done":
			return finish(vm.ToggleCompleted(ctx, id, true), out)
		case "undo":
			return finish(vm.ToggleCompleted(ctx, id, false), out)
		default:
			return finish(vm.Delete(ctx, id), out)
		}
	}

	fmt.Fprintf(errOut, "error: unknown command: %s\n", cmd)
	return exitcode.UserError
}

// finish reports a mutation result. Failures were already printed by the
// notifier.
func finish(err error, out io.Writer) int {
	if err != nil {
		return exitcode.FromError(err)
	}
	fmt.Fprintln(out, "ok")
	return exitcode.Success
}

func list(ctx context.Context, vm *viewmodel.ViewModel, out, errOut io.Writer) int {
	if err := vm.Load(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.FromError(err)
	}
	todos := vm.Todos()
	if len(todos) == 0 {
		fmt.Fprintln(out, "no todos")
		return exitcode.Success
	}
	for i, t := range todos {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(out, "%2d. [%s] %s  (%s)\n", i+1, mark, t.Title, t.ID)
	}
	return exitcode.Success
}

// resolve finds the todo named by ref: a 1-based position or an id.
func resolve(todos []todo.Todo, ref string) (string, bool) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(todos) {
			return todos[n-1].ID, true
		}
		return "", false
	}
	if i := todo.Index(todos, ref); i >= 0 {
		return todos[i].ID, true
	}
	return "", false
}
