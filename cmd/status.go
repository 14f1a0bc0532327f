package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/lifecycle"
	"github.com/harshul/devpanel/internal/ports"
	"github.com/harshul/devpanel/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `The status command lists both servers with their URL. The badge
shows the server tracked by this process, so a fresh devpanel reports
stopped; whatever currently listens on a server's port is listed below it.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusNameStyle = lipgloss.NewStyle().Bold(true).Width(6)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	scanner := ports.NewScanner()
	ui.PrintHeader("devpanel status")
	for _, svc := range a.manager.Services() {
		snap := svc.Snapshot()
		listener, found := lookupListener(cmd.Context(), scanner, snap.Port)
		for _, line := range statusLines(snap, listener, found) {
			fmt.Println(line)
		}
	}
	if !scanner.Available() {
		fmt.Println()
		ui.PrintWarning("port scan unavailable on this system, only servers started by this process are shown")
	}
	return nil
}

func lookupListener(ctx context.Context, s *ports.Scanner, port int) (ports.Listener, bool) {
	if !s.Available() {
		return ports.Listener{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	l, found, err := s.Lookup(ctx, port)
	if err != nil {
		return ports.Listener{}, false
	}
	return l, found
}

// statusLines renders one service: the tracked status badge, then the port
// holder when one was found.
func statusLines(snap lifecycle.Snapshot, l ports.Listener, found bool) []string {
	lines := []string{fmt.Sprintf("  %s %s  %s", statusNameStyle.Render(snap.Name), ui.StatusBadge(snap.Status == lifecycle.StatusRunning), snap.URL)}
	if found {
		holder := fmt.Sprintf("pid %d", l.PID)
		if l.Name != "" {
			holder = fmt.Sprintf("%s (pid %d)", l.Name, l.PID)
		}
		lines = append(lines, fmt.Sprintf("         port %d held by %s", snap.Port, holder))
	}
	return lines
}
