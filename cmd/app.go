package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/config"
	"github.com/harshul/devpanel/internal/lifecycle"
	"github.com/harshul/devpanel/internal/logging"
	"github.com/harshul/devpanel/internal/ports"
	"github.com/harshul/devpanel/internal/spawn"
	"github.com/harshul/devpanel/internal/ui"
)

// app bundles what every command needs: settings, the diagnostic logger and
// the lifecycle manager.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	manager *lifecycle.Manager
	closers []io.Closer
}

// loadConfig reads the config file named by --config and applies the
// global flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile, _ = cmd.Flags().GetString("log-file")
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug, _ = cmd.Flags().GetBool("debug")
	}
	return cfg, nil
}

// newApp builds the logger and the manager for cfg. output picks the
// writer for each server's output; nil discards it.
func newApp(cfg config.Config, output func(service string) io.Writer) (*app, error) {
	log, closer, err := logging.New(cfg.LogFile, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	a := &app{cfg: cfg, log: log, closers: []io.Closer{closer}}

	opts := []lifecycle.Option{
		lifecycle.WithPortScanner(ports.NewScanner()),
		lifecycle.WithBrowser(ui.Browser{}),
		lifecycle.WithLogger(log),
	}
	if output != nil {
		opts = append(opts, lifecycle.WithOutput(output))
	}

	a.manager, err = lifecycle.NewManager(spawn.New(), cfg.Services(), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Debug().
		Str("api_dir", cfg.APIDir).
		Str("web_dir", cfg.WebDir).
		Int("api_port", cfg.APIPort).
		Int("web_port", cfg.WebPort).
		Msg("configuration loaded")
	return a, nil
}

// track registers a writer to be closed with the app.
func (a *app) track(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// serviceNames expands a service argument; "all" or no argument means every
// service.
func serviceNames(args []string) ([]string, error) {
	if len(args) == 0 || args[0] == "all" {
		return []string{config.API, config.Web}, nil
	}
	switch args[0] {
	case config.API, config.Web:
		return []string{args[0]}, nil
	default:
		return nil, fmt.Errorf("unknown service %q (expected api, web or all)", args[0])
	}
}

var serviceArgs = []string{config.API, config.Web, "all"}
