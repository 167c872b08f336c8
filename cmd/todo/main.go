// Command todo is the client for a todo server: an interactive list, or
// one-shot commands for scripts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dankoteck/extremely-simple-todo-app/internal/cli"
	"github.com/dankoteck/extremely-simple-todo-app/internal/config"
	"github.com/dankoteck/extremely-simple-todo-app/internal/rpc"
	"github.com/dankoteck/extremely-simple-todo-app/internal/tui"
	"github.com/dankoteck/extremely-simple-todo-app/internal/viewmodel"
)

func main() {
	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	runner := &cli.Runner{
		NewAPI: func(cfg *config.Client) viewmodel.API {
			return rpc.NewClient(cfg.ServerURL, rpc.ClientOptions{
				TokenSource: rpc.StaticToken(cfg.Token),
				Timeout:     cfg.Timeout(),
			})
		},
		Interactive: tui.Run,
	}

	code := runner.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
