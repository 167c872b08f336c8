package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// file is the layout of todo.toml. Both binaries read the same file.
type file struct {
	Server Server `toml:"server"`
	Client Client `toml:"client"`
}

// LoadServer loads the server configuration. Flags are registered on fs,
// which may already carry flags of its own; positional arguments remain
// available through fs.Args.
func LoadServer(fs *flag.FlagSet, args []string) (*Server, error) {
	cfg := DefaultServer()

	var (
		path     string
		addr     string
		driver   string
		dsn      string
		enforce  bool
		level    string
		format   string
		otelFlag bool
	)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&addr, "addr", cfg.Addr, "Listen address")
	fs.StringVar(&driver, "db-driver", cfg.Database.Driver, "Database driver: postgres, sqlite or memory")
	fs.StringVar(&dsn, "db-dsn", cfg.Database.DSN, "Database DSN or SQLite file")
	fs.BoolVar(&enforce, "enforce-ownership", cfg.EnforceOwnership, "Only owners may toggle or delete a todo")
	fs.StringVar(&level, "log-level", cfg.Log.Level, "Log level: debug, info, warn, error")
	fs.StringVar(&format, "log-format", cfg.Log.Format, "Log format: text, json, logfmt")
	fs.BoolVar(&otelFlag, "otel", cfg.Telemetry.Enabled, "Export traces and metrics over OTLP")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	f := file{Server: *cfg}
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	*cfg = f.Server
	if err := serverFromEnv(cfg); err != nil {
		return nil, err
	}

	set := explicit(fs)
	if set["addr"] {
		cfg.Addr = addr
	}
	if set["db-driver"] {
		cfg.Database.Driver = driver
	}
	if set["db-dsn"] {
		cfg.Database.DSN = dsn
	}
	if set["enforce-ownership"] {
		cfg.EnforceOwnership = enforce
	}
	if set["log-level"] {
		cfg.Log.Level = level
	}
	if set["log-format"] {
		cfg.Log.Format = format
	}
	if set["otel"] {
		cfg.Telemetry.Enabled = otelFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadClient loads the client configuration.
func LoadClient(fs *flag.FlagSet, args []string) (*Client, error) {
	cfg := DefaultClient()

	var (
		path      string
		serverURL string
		token     string
		level     string
	)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&serverURL, "server", cfg.ServerURL, "Todo server URL")
	fs.StringVar(&token, "token", "", "Bearer token")
	fs.StringVar(&level, "log-level", cfg.Log.Level, "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	f := file{Client: *cfg}
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	*cfg = f.Client
	clientFromEnv(cfg)

	set := explicit(fs)
	if set["server"] {
		cfg.ServerURL = serverURL
	}
	if set["token"] {
		cfg.Token = token
	}
	if set["log-level"] {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decodeFile merges the config file into dst. An explicit path must exist;
// the default file is optional.
func decodeFile(path string, dst *file) error {
	if path == "" {
		path = os.Getenv("TODO_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultFile); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		path = DefaultFile
	}
	if _, err := toml.DecodeFile(path, dst); err != nil {
		return fmt.Errorf("loading config file %s: %w", path, err)
	}
	return nil
}

func serverFromEnv(cfg *Server) error {
	if v := os.Getenv("TODO_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("TODO_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TODO_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TODO_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("TODO_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if err := envBool("TODO_ENFORCE_OWNERSHIP", &cfg.EnforceOwnership); err != nil {
		return err
	}
	if err := envBool("TODO_OTEL_ENABLED", &cfg.Telemetry.Enabled); err != nil {
		return err
	}
	envLog(&cfg.Log)
	return nil
}

func clientFromEnv(cfg *Client) {
	if v := os.Getenv("TODO_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("TODO_TOKEN"); v != "" {
		cfg.Token = v
	}
	envLog(&cfg.Log)
}

func envLog(l *Log) {
	if v := os.Getenv("TODO_LOG_LEVEL"); v != "" {
		l.Level = v
	}
	if v := os.Getenv("TODO_LOG_FORMAT"); v != "" {
		l.Format = v
	}
}

func envBool(name string, dst *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

// explicit returns the names of flags given on the command line.
func explicit(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
