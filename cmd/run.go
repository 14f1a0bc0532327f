package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/lifecycle"
	"github.com/harshul/devpanel/internal/logging"
	"github.com/harshul/devpanel/internal/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [api|web|all]",
	Short: "Start servers in the foreground",
	Long: `The run command installs dependencies, builds the web app when no
production build exists, and starts the selected servers. Their output is
streamed with a [service] prefix until you press Ctrl+C, which stops them.

With --detach the servers keep running after devpanel exits; their output
goes to log_dir when configured. Use 'devpanel stop' to stop them later.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: serviceArgs,
	RunE:      runRun,
}

func init() {
	runCmd.Flags().BoolP("detach", "d", false, "Leave the servers running and exit once they started")
	runCmd.Flags().Duration("stop-timeout", ui.StopTimeout, "How long to wait for servers to stop on Ctrl+C")
}

func runRun(cmd *cobra.Command, args []string) error {
	names, err := serviceNames(args)
	if err != nil {
		return err
	}
	detach, _ := cmd.Flags().GetBool("detach")
	stopTimeout, _ := cmd.Flags().GetDuration("stop-timeout")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration (run 'devpanel doctor'):\n%w", err)
	}

	outputs := make(map[string]io.Writer)
	var closers []io.Closer
	prefixed := ui.NewPrefixedOutput(os.Stdout)
	for _, name := range names {
		if detach {
			// The server outlives us, so it must not write into a pipe we own.
			f, err := detachedOutput(cfg.LogDir, name)
			if err != nil {
				return err
			}
			if f != nil {
				outputs[name] = f
				closers = append(closers, f)
			}
			continue
		}
		w, err := logging.ServiceOutput(cfg.LogDir, name)
		if err != nil {
			return fmt.Errorf("failed to open output log for %s: %w", name, err)
		}
		if w != nil {
			outputs[name] = io.MultiWriter(prefixed.Writer(name), w)
			closers = append(closers, w)
		} else {
			outputs[name] = prefixed.Writer(name)
		}
	}

	a, err := newApp(cfg, func(service string) io.Writer { return outputs[service] })
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return err
	}
	for _, c := range closers {
		a.track(c)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := ui.NewEventPrinter(os.Stdout)
	followCtx, cancelFollow := context.WithCancel(ctx)
	defer cancelFollow()
	go printer.Follow(followCtx, a.manager.Events())

	if err := startAll(ctx, a.manager, names); err != nil && len(names) == 1 {
		return err
	}

	if detach {
		for _, name := range names {
			snap, _ := a.manager.Snapshot(name)
			if snap.Status == lifecycle.StatusRunning {
				ui.PrintInfo(fmt.Sprintf("%s left running on %s (pid %d)", name, snap.URL, snap.PID))
			}
		}
		return nil
	}

	if !anyRunning(a.manager, names) {
		return errors.New("no server is running")
	}
	ui.PrintInfo("Press Ctrl+C to stop")

	waitForExit(ctx, a.manager, names)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	var errs []error
	for _, name := range names {
		if _, err := a.manager.Stop(stopCtx, name); err != nil {
			errs = append(errs, err)
		}
	}
	// let the printer catch up with the stop events
	time.Sleep(100 * time.Millisecond)
	return errors.Join(errs...)
}

// startAll starts the services concurrently and waits for each to be
// spawned or to fail. Failures are printed by the event printer.
func startAll(ctx context.Context, m *lifecycle.Manager, names []string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := m.StartWait(ctx, name); err != nil {
				if errors.Is(err, lifecycle.ErrAlreadyRunning) {
					return
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func anyRunning(m *lifecycle.Manager, names []string) bool {
	for _, name := range names {
		if st, _ := m.Status(name); st == lifecycle.StatusRunning {
			return true
		}
	}
	return false
}

// waitForExit blocks until ctx is cancelled or every server has exited.
func waitForExit(ctx context.Context, m *lifecycle.Manager, names []string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !anyRunning(m, names) {
				return
			}
		}
	}
}

// detachedOutput opens dir/<service>.log for appending, or returns nil when
// no log dir is configured.
func detachedOutput(dir, service string) (*os.File, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, service+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output log for %s: %w", service, err)
	}
	return f, nil
}
