package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/tablesync/internal/api"
	"github.com/lox/tablesync/internal/config"
	"github.com/lox/tablesync/internal/display"
)

// Globals are flags shared by every command.
type Globals struct {
	Config   string `short:"c" default:"tablesync.hcl" help:"Path to HCL configuration file"`
	Server   string `short:"s" help:"Server base URL (overrides config)"`
	LogLevel string `short:"l" help:"Log level: debug, info, warn or error (overrides config)"`
	NoColor  bool   `help:"Disable coloured output"`
}

// env is everything a command needs once flags and config are resolved.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	client *api.Client
	closer io.Closer
}

func (e *env) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

// setup loads the configuration, applies flag overrides and builds the
// logger and HTTP client. With toFile set, logs go to the configured log
// file so they do not tear the full-screen view.
func (g *Globals) setup(toFile bool) (*env, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if g.Server != "" {
		cfg.Server.URL = strings.TrimSpace(g.Server)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	display.SetColor(!g.NoColor)
	setOutputColor(!g.NoColor)

	e := &env{cfg: cfg}
	var out io.Writer = os.Stderr
	if toFile {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out, e.closer = f, f
	}
	e.logger = setupLogger(out, cfg.Log.Level)

	e.client, err = api.New(cfg.Server.URL, e.logger, api.WithTimeouts(cfg.ConnectTimeout(), cfg.ReadTimeout()))
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}
