package ui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/devpanel/internal/lifecycle"
)

// RunDashboard runs the control panel until the user quits. Servers are
// stopped only if the user says so in the quit dialog.
func RunDashboard(ctl Controller, logs *LogMultiplexer) error {
	m := NewDashboard(ctl, logs)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return m.ShutdownErr()
}

var prefixColors = []lipgloss.AdaptiveColor{
	{Light: "#0066CC", Dark: "#00AAFF"},
	{Light: "#9933FF", Dark: "#CC99FF"},
	{Light: "#CC6600", Dark: "#FFAA00"},
}

// PrefixedOutput interleaves the output of several servers on one writer,
// line by line, each line tagged with its service name.
type PrefixedOutput struct {
	mu     sync.Mutex
	w      io.Writer
	next   int
	colors map[string]lipgloss.Style
}

// NewPrefixedOutput writes to w.
func NewPrefixedOutput(w io.Writer) *PrefixedOutput {
	return &PrefixedOutput{w: w, colors: make(map[string]lipgloss.Style)}
}

// Writer returns the writer for one service.
func (o *PrefixedOutput) Writer(service string) io.Writer {
	o.mu.Lock()
	defer o.mu.Unlock()
	style, ok := o.colors[service]
	if !ok {
		style = lipgloss.NewStyle().Bold(true).Foreground(prefixColors[o.next%len(prefixColors)])
		o.colors[service] = style
		o.next++
	}
	return &prefixWriter{out: o, prefix: style.Render(fmt.Sprintf("[%s]", service)) + " "}
}

func (o *PrefixedOutput) writeLine(line []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.w.Write(line)
}

// prefixWriter adds a prefix to each line written
type prefixWriter struct {
	out    *PrefixedOutput
	prefix string
	mu     sync.Mutex
	buffer []byte
}

func (pw *prefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.buffer = append(pw.buffer, p...)
	for {
		i := bytes.IndexByte(pw.buffer, '\n')
		if i < 0 {
			break
		}
		line := append([]byte(pw.prefix), pw.buffer[:i+1]...)
		pw.out.writeLine(line)
		pw.buffer = pw.buffer[i+1:]
	}
	return len(p), nil
}

// EventPrinter reports manager events as plain styled lines, for commands
// that run without the dashboard.
type EventPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewEventPrinter writes to out.
func NewEventPrinter(out io.Writer) *EventPrinter {
	return &EventPrinter{out: out}
}

var (
	eventOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})
	eventFailStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF0000"})
	eventInfoStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"})
)

// Print writes one event.
func (p *EventPrinter) Print(ev lifecycle.Event) {
	var line string
	switch ev.Kind {
	case lifecycle.EventProgress:
		line = eventInfoStyle.Render("…") + fmt.Sprintf(" %s: %s", ev.Service, progressText(ev.Stage))
	case lifecycle.EventStarted:
		line = eventOKStyle.Render("✔") + fmt.Sprintf(" %s: running (pid %d)", ev.Service, ev.PID)
	case lifecycle.EventStartFailed:
		line = eventFailStyle.Render("✖") + fmt.Sprintf(" %s: start failed: %v", ev.Service, ev.Err)
	case lifecycle.EventStopped:
		line = eventOKStyle.Render("■") + fmt.Sprintf(" %s: stopped (pid %d)", ev.Service, ev.PID)
	case lifecycle.EventExited:
		if ev.Err != nil {
			line = eventFailStyle.Render("✖") + fmt.Sprintf(" %s: exited (pid %d): %v", ev.Service, ev.PID, ev.Err)
		} else {
			line = eventInfoStyle.Render("■") + fmt.Sprintf(" %s: exited (pid %d)", ev.Service, ev.PID)
		}
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// Follow prints events until ctx is done or the channel closes.
func (p *EventPrinter) Follow(ctx context.Context, events <-chan lifecycle.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Print(ev)
		}
	}
}
