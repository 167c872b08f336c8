// Command todo-server serves the todo procedures over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/dankoteck/extremely-simple-todo-app/internal/auth"
	"github.com/dankoteck/extremely-simple-todo-app/internal/config"
	"github.com/dankoteck/extremely-simple-todo-app/internal/exitcode"
	"github.com/dankoteck/extremely-simple-todo-app/internal/logging"
	"github.com/dankoteck/extremely-simple-todo-app/internal/rpc"
	"github.com/dankoteck/extremely-simple-todo-app/internal/service"
	"github.com/dankoteck/extremely-simple-todo-app/internal/store"
	"github.com/dankoteck/extremely-simple-todo-app/internal/store/memory"
	"github.com/dankoteck/extremely-simple-todo-app/internal/store/postgres"
	"github.com/dankoteck/extremely-simple-todo-app/internal/store/sqlite"
	"github.com/dankoteck/extremely-simple-todo-app/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "token" {
		os.Exit(issueToken(args[1:]))
	}

	cfg, err := config.LoadServer(flag.NewFlagSet("todo-server", flag.ContinueOnError), args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(exitcode.Success)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitcode.UserError)
	}

	logger := logging.New(os.Stderr, logging.Options{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		ReportTimestamp: true,
	})
	log.SetDefault(logger)

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(exitcode.BackendError)
	}
}

func serve(ctx context.Context, cfg *config.Server, logger *log.Logger) error {
	repo, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Database.Driver, err)
	}
	defer repo.Close()

	if cfg.Telemetry.Enabled {
		providers, err := telemetry.Setup(ctx, telemetry.Options{
			ServiceName:     cfg.Telemetry.ServiceName,
			Environment:     cfg.Telemetry.Environment,
			TracesEndpoint:  cfg.Telemetry.TracesEndpoint,
			MetricsEndpoint: cfg.Telemetry.MetricsEndpoint,
			MetricInterval:  cfg.MetricInterval(),
		})
		if err != nil {
			return fmt.Errorf("setting up telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "err", err)
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)

	svc := service.New(repo, service.Options{
		EnforceOwnership: cfg.EnforceOwnership,
		Logger:           logger.WithPrefix("service"),
	})
	router := rpc.NewRouter(svc, auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer), rpc.RouterOptions{
		ServiceName: cfg.Telemetry.ServiceName,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: rpc.AccessLog(logger.WithPrefix("http"), router),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "driver", cfg.Database.Driver, "enforce_ownership", cfg.EnforceOwnership)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, db config.Database) (store.Repository, error) {
	switch db.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, db.DSN)
	case config.DriverSQLite:
		return sqlite.Open(ctx, db.DSN)
	default:
		return memory.New(), nil
	}
}

// issueToken prints a signed bearer token for -user.
func issueToken(args []string) int {
	fs := flag.NewFlagSet("todo-server token", flag.ContinueOnError)
	user := fs.String("user", "", "user id to issue the token for")
	cfg, err := config.LoadServer(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitcode.Success
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitcode.UserError
	}
	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: todo-server token -user <id>")
		return exitcode.UserError
	}

	token, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.TokenTTL()).Issue(*user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitcode.BackendError
	}
	fmt.Println(token)
	return exitcode.Success
}
