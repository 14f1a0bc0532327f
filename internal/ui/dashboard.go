package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/devpanel/internal/lifecycle"
)

// Controller is the part of lifecycle.Manager the dashboard drives.
type Controller interface {
	Services() []*lifecycle.Service
	Snapshot(name string) (lifecycle.Snapshot, error)
	Start(name string) error
	Stop(ctx context.Context, name string) (lifecycle.StopReport, error)
	StopAll(ctx context.Context) ([]lifecycle.StopReport, error)
	Open(name string) (string, error)
	Events() <-chan lifecycle.Event
}

var _ Controller = (*lifecycle.Manager)(nil)

// StopTimeout bounds a stop issued from the dashboard.
const StopTimeout = 15 * time.Second

// row is the dashboard state of one managed service.
type row struct {
	snap     lifecycle.Snapshot
	stage    lifecycle.Stage // last progress checkpoint of an in-flight start
	message  string
	failed   bool
	stats    ProcessStats
	stopping bool
}

// busy reports whether actions on the service are disabled.
func (r *row) busy() bool {
	return r.snap.Starting || r.stopping
}

// DashboardModel is the bubbletea model of the control panel
type DashboardModel struct {
	ctl      Controller
	logs     *LogMultiplexer
	names    []string
	rows     map[string]*row
	selected int

	resources ResourceStats

	// UI state
	width        int
	height       int
	viewport     viewport.Model
	showHelp     bool
	confirmQuit  bool
	shuttingDown bool
	quitting     bool
	shutdownErr  error

	// Log lines from the multiplexer
	updateChan chan tea.Msg

	keys   keyMap
	styles *Styles

	stopTimeout time.Duration
	sampleStats bool
}

// keyMap defines the key bindings for the dashboard
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Start    key.Binding
	Stop     key.Binding
	StartAll key.Binding
	StopAll  key.Binding
	Open     key.Binding
	Help     key.Binding
	Quit     key.Binding
	Yes      key.Binding
	No       key.Binding
	Cancel   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Start: key.NewBinding(
			key.WithKeys("s", "enter"),
			key.WithHelp("s", "start"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop"),
		),
		StartAll: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "start all"),
		),
		StopAll: key.NewBinding(
			key.WithKeys("X", "ctrl+x"),
			key.WithHelp("X", "stop all"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Yes: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "stop apps and quit"),
		),
		No: key.NewBinding(
			key.WithKeys("n", "N"),
			key.WithHelp("n", "leave running and quit"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// Styles holds all lipgloss styles for the dashboard
type Styles struct {
	App    lipgloss.Style
	Header lipgloss.Style
	Footer lipgloss.Style

	ServiceList     lipgloss.Style
	ServiceItem     lipgloss.Style
	ServiceSelected lipgloss.Style

	StatusRunning  lipgloss.Style
	StatusStopped  lipgloss.Style
	StatusStarting lipgloss.Style

	Message      lipgloss.Style
	MessageError lipgloss.Style

	MonitorBox    lipgloss.Style
	ProgressFill  lipgloss.Style
	ProgressEmpty lipgloss.Style

	LogViewport lipgloss.Style
	Dialog      lipgloss.Style

	Help     lipgloss.Style
	HelpKey  lipgloss.Style
	HelpDesc lipgloss.Style
}

// DefaultStyles returns the default color scheme
func DefaultStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#999"}
	highlight := lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}
	success := lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	warning := lipgloss.AdaptiveColor{Light: "#AAAA00", Dark: "#FFFF00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF0000"}

	return &Styles{
		App: lipgloss.NewStyle().Padding(1, 2),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle).
			MarginBottom(1).
			Padding(0, 1),
		Footer: lipgloss.NewStyle().
			Foreground(subtle).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle).
			MarginTop(1).
			Padding(0, 1),

		ServiceList: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1),
		ServiceItem: lipgloss.NewStyle().Padding(0, 1),
		ServiceSelected: lipgloss.NewStyle().
			Padding(0, 1).
			Background(lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#333333"}).
			Bold(true),

		StatusRunning:  lipgloss.NewStyle().Foreground(success).Bold(true),
		StatusStopped:  lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		StatusStarting: lipgloss.NewStyle().Foreground(warning),

		Message:      lipgloss.NewStyle().Foreground(subtle),
		MessageError: lipgloss.NewStyle().Foreground(errorColor),

		MonitorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1).
			MarginTop(1),
		ProgressFill:  lipgloss.NewStyle().Foreground(success),
		ProgressEmpty: lipgloss.NewStyle().Foreground(subtle),

		LogViewport: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1),
		Dialog: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(warning).
			Padding(1, 3).
			Bold(true),

		Help:     lipgloss.NewStyle().Foreground(subtle),
		HelpKey:  lipgloss.NewStyle().Foreground(highlight).Bold(true),
		HelpDesc: lipgloss.NewStyle().Foreground(subtle),
	}
}

// Messages for bubbletea
type tickMsg time.Time
type eventMsg lifecycle.Event
type resourceUpdateMsg struct {
	host  ResourceStats
	procs map[string]ProcessStats
}
type logMsg struct {
	service string
	line    string
}
type stopDoneMsg struct {
	service string
	report  lifecycle.StopReport
	err     error
}
type shutdownDoneMsg struct {
	err error
}

// NewDashboard creates the panel over ctl. Server output is read from logs,
// which may be nil.
func NewDashboard(ctl Controller, logs *LogMultiplexer) *DashboardModel {
	vp := viewport.New(80, 12)
	vp.MouseWheelEnabled = true

	m := &DashboardModel{
		ctl:         ctl,
		logs:        logs,
		rows:        make(map[string]*row),
		viewport:    vp,
		updateChan:  make(chan tea.Msg, 256),
		keys:        defaultKeyMap(),
		styles:      DefaultStyles(),
		stopTimeout: StopTimeout,
		sampleStats: true,
	}
	for _, s := range ctl.Services() {
		m.names = append(m.names, s.Name)
		m.rows[s.Name] = &row{snap: s.Snapshot()}
	}
	if logs != nil {
		logs.SetSink(m)
	}
	return m
}

// Init implements tea.Model
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.listenForEvents(),
		m.listenForUpdates(),
	)
}

// tickCmd returns a command that ticks every second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listenForEvents drains one manager event; it is re-armed after each one.
func (m *DashboardModel) listenForEvents() tea.Cmd {
	events := m.ctl.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// listenForUpdates listens for log lines
func (m *DashboardModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

func (m *DashboardModel) selectedName() string {
	if m.selected < 0 || m.selected >= len(m.names) {
		return ""
	}
	return m.names[m.selected]
}

// Update implements tea.Model
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmQuit {
			return m, m.handleQuitDialog(msg)
		}
		if m.shuttingDown {
			return m, nil
		}
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-8, 20)
		m.viewport.Height = max(msg.Height-len(m.names)-16, 3)
		m.updateViewportContent()

	case tickMsg:
		m.refresh()
		cmds = append(cmds, tickCmd(), m.fetchResourceStats())

	case resourceUpdateMsg:
		m.resources = msg.host
		for name, r := range m.rows {
			r.stats = msg.procs[name]
		}

	case eventMsg:
		m.applyEvent(lifecycle.Event(msg))
		cmds = append(cmds, m.listenForEvents())

	case logMsg:
		if msg.service == m.selectedName() {
			m.updateViewportContent()
		}
		cmds = append(cmds, m.listenForUpdates())

	case stopDoneMsg:
		if r, ok := m.rows[msg.service]; ok {
			r.stopping = false
			r.failed = msg.err != nil
			r.message = describeStop(msg.report, msg.err)
			m.note(msg.service, r.message)
		}
		m.refresh()

	case shutdownDoneMsg:
		m.shutdownErr = msg.err
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

func (m *DashboardModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	name := m.selectedName()

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.anyActive() {
			m.confirmQuit = true
			return nil
		}
		m.quitting = true
		return tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
			m.updateViewportContent()
		}

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.names)-1 {
			m.selected++
			m.updateViewportContent()
		}

	case key.Matches(msg, m.keys.Start):
		m.start(name)

	case key.Matches(msg, m.keys.StartAll):
		for _, n := range m.names {
			m.start(n)
		}

	case key.Matches(msg, m.keys.Stop):
		return m.stop(name)

	case key.Matches(msg, m.keys.StopAll):
		var cmds []tea.Cmd
		for _, n := range m.names {
			cmds = append(cmds, m.stop(n))
		}
		return tea.Batch(cmds...)

	case key.Matches(msg, m.keys.Open):
		m.open(name)

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// handleQuitDialog answers "stop apps before closing?".
func (m *DashboardModel) handleQuitDialog(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Yes):
		m.confirmQuit = false
		m.shuttingDown = true
		ctl, timeout := m.ctl, m.stopTimeout
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			_, err := ctl.StopAll(ctx)
			return shutdownDoneMsg{err: err}
		}
	case key.Matches(msg, m.keys.No):
		m.confirmQuit = false
		m.quitting = true
		return tea.Quit
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
		m.confirmQuit = false
	}
	return nil
}

func (m *DashboardModel) start(name string) {
	r, ok := m.rows[name]
	if !ok || r.busy() {
		return
	}
	err := m.ctl.Start(name)
	switch {
	case err == nil:
		r.snap.Starting = true
		r.failed = false
		r.stage = ""
		r.message = "starting"
	case errors.Is(err, lifecycle.ErrAlreadyRunning):
		r.message = "already running"
	case errors.Is(err, lifecycle.ErrStartInFlight):
		r.message = "start already in progress"
	default:
		r.failed = true
		r.message = err.Error()
	}
}

func (m *DashboardModel) stop(name string) tea.Cmd {
	r, ok := m.rows[name]
	if !ok || r.busy() {
		return nil
	}
	r.stopping = true
	r.message = "stopping"
	ctl, timeout := m.ctl, m.stopTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		report, err := ctl.Stop(ctx, name)
		return stopDoneMsg{service: name, report: report, err: err}
	}
}

func (m *DashboardModel) open(name string) {
	r, ok := m.rows[name]
	if !ok {
		return
	}
	url, err := m.ctl.Open(name)
	if err != nil {
		r.failed = true
		r.message = err.Error()
		return
	}
	r.failed = false
	r.message = "opened " + url
}

// applyEvent folds a manager notification into the row of its service.
func (m *DashboardModel) applyEvent(ev lifecycle.Event) {
	r, ok := m.rows[ev.Service]
	if !ok {
		return
	}
	switch ev.Kind {
	case lifecycle.EventProgress:
		r.stage = ev.Stage
		r.failed = false
		r.message = progressText(ev.Stage)
	case lifecycle.EventStarted:
		r.stage = ""
		r.message = fmt.Sprintf("started (pid %d)", ev.PID)
	case lifecycle.EventStartFailed:
		r.stage = ""
		r.failed = true
		r.message = "start failed: " + firstLine(ev.Err)
	case lifecycle.EventStopped:
		r.message = fmt.Sprintf("stopped (pid %d)", ev.PID)
	case lifecycle.EventExited:
		r.failed = ev.Err != nil
		r.message = fmt.Sprintf("exited (pid %d)", ev.PID)
		if ev.Err != nil {
			r.message += ": " + firstLine(ev.Err)
		}
	}
	m.note(ev.Service, r.message)
	if snap, err := m.ctl.Snapshot(ev.Service); err == nil {
		r.snap = snap
	}
}

func (m *DashboardModel) note(service, msg string) {
	if m.logs != nil {
		m.logs.Note(service, msg)
	}
}

// refresh polls every service handle.
func (m *DashboardModel) refresh() {
	for name, r := range m.rows {
		if snap, err := m.ctl.Snapshot(name); err == nil {
			r.snap = snap
		}
	}
}

func (m *DashboardModel) anyActive() bool {
	for _, r := range m.rows {
		if r.snap.Status == lifecycle.StatusRunning || r.snap.Starting {
			return true
		}
	}
	return false
}

func progressText(stage lifecycle.Stage) string {
	switch stage {
	case lifecycle.StageInstalling:
		return "installing dependencies…"
	case lifecycle.StageBuilding:
		return "building…"
	case lifecycle.StageReady:
		return "launching…"
	default:
		return string(stage)
	}
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// describeStop renders a stop outcome for the status line.
func describeStop(r lifecycle.StopReport, err error) string {
	if err != nil {
		return "stop failed: " + firstLine(err)
	}
	switch r.Method {
	case lifecycle.StopTracked:
		return fmt.Sprintf("stopped (pid %d)", r.PID)
	case lifecycle.StopByPort:
		return fmt.Sprintf("stopped pid %d found on its port", r.PID)
	}
	msg := "not found"
	if r.ScanUnavailable {
		msg += " (port scan unavailable)"
	} else if r.ScanErr != nil {
		msg += " (" + firstLine(r.ScanErr) + ")"
	}
	return msg
}

// fetchResourceStats samples the host and each running server.
func (m *DashboardModel) fetchResourceStats() tea.Cmd {
	if !m.sampleStats {
		return nil
	}
	pids := make(map[string]int)
	for name, r := range m.rows {
		if r.snap.PID > 0 {
			pids[name] = r.snap.PID
		}
	}
	return func() tea.Msg {
		msg := resourceUpdateMsg{host: GetResourceStats(), procs: make(map[string]ProcessStats)}
		for name, pid := range pids {
			if st, ok := GetProcessStats(pid); ok {
				msg.procs[name] = st
			}
		}
		return msg
	}
}

// updateViewportContent shows the output of the selected service.
func (m *DashboardModel) updateViewportContent() {
	if m.logs == nil {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.logs.Lines(m.selectedName()), "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model
func (m *DashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderServiceList())
	b.WriteString("\n")
	b.WriteString(m.renderResourceMonitor())
	b.WriteString("\n")

	switch {
	case m.confirmQuit:
		b.WriteString(m.styles.Dialog.Render("Stop apps before closing?  (y)es  (n)o  (esc) cancel"))
	case m.shuttingDown:
		b.WriteString(m.styles.Dialog.Render("Stopping apps…"))
	default:
		title := m.styles.Help.Render("output: " + m.selectedName())
		b.WriteString(title + "\n")
		b.WriteString(m.styles.LogViewport.Render(m.viewport.View()))
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return m.styles.App.Render(b.String())
}

func (m *DashboardModel) renderHeader() string {
	title := "devpanel"

	running := 0
	for _, r := range m.rows {
		if r.snap.Status == lifecycle.StatusRunning {
			running++
		}
	}
	status := fmt.Sprintf("Running: %d/%d", running, len(m.names))
	if m.resources.CPUPercent > 0 {
		status += fmt.Sprintf(" | CPU: %.1f%%", m.resources.CPUPercent)
	}
	if m.resources.MemPercent > 0 {
		status += fmt.Sprintf(" | Mem: %.1f%%", m.resources.MemPercent)
	}

	width := max(m.width-4, 40)
	padding := max(width-lipgloss.Width(title)-lipgloss.Width(status)-2, 1)
	return m.styles.Header.Width(width).Render(title + strings.Repeat(" ", padding) + status)
}

func (m *DashboardModel) renderServiceList() string {
	width := max(m.width-6, 60)
	items := make([]string, 0, len(m.names))
	for i, name := range m.names {
		items = append(items, m.renderServiceItem(i, m.rows[name], width))
	}
	return m.styles.ServiceList.Width(width).Render(strings.Join(items, "\n"))
}

func (m *DashboardModel) renderServiceItem(index int, r *row, width int) string {
	style := m.styles.ServiceItem
	if index == m.selected {
		style = m.styles.ServiceSelected
	}

	line := fmt.Sprintf("%-6s %s  %s", r.snap.Name, m.renderStatus(r), r.snap.URL)
	if r.snap.Status == lifecycle.StatusRunning {
		line += fmt.Sprintf("  pid %d", r.snap.PID)
		if !r.snap.StartedAt.IsZero() {
			line += "  up " + time.Since(r.snap.StartedAt).Round(time.Second).String()
		}
		if r.stats.RSS > 0 {
			line += fmt.Sprintf("  %.1f%% %s", r.stats.CPUPercent, FormatBytes(r.stats.RSS))
		}
	}
	if r.message != "" {
		msgStyle := m.styles.Message
		if r.failed {
			msgStyle = m.styles.MessageError
		}
		line += "\n       " + msgStyle.Render(r.message)
	}
	return style.Width(width - 2).Render(line)
}

// renderStatus renders green running / red stopped, yellow while busy.
func (m *DashboardModel) renderStatus(r *row) string {
	switch {
	case r.snap.Starting:
		label := "starting"
		if r.stage != "" {
			label = string(r.stage)
		}
		return m.styles.StatusStarting.Render(fmt.Sprintf("◌ %-10s", label))
	case r.stopping:
		return m.styles.StatusStarting.Render(fmt.Sprintf("◌ %-10s", "stopping"))
	case r.snap.Status == lifecycle.StatusRunning:
		return m.styles.StatusRunning.Render(fmt.Sprintf("● %-10s", "running"))
	default:
		return m.styles.StatusStopped.Render(fmt.Sprintf("○ %-10s", "stopped"))
	}
}

func (m *DashboardModel) renderResourceMonitor() string {
	parts := []string{
		m.renderProgressBar("CPU", m.resources.CPUPercent/100, 20),
		m.renderProgressBar("Mem", m.resources.MemPercent/100, 20),
	}
	if m.resources.CPUTemp > 0 {
		parts = append(parts, fmt.Sprintf("%.0f°C", m.resources.CPUTemp))
	}
	return m.styles.MonitorBox.Render(strings.Join(parts, "  "))
}

func (m *DashboardModel) renderProgressBar(label string, progress float64, width int) string {
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))
	bar := m.styles.ProgressFill.Render(strings.Repeat("█", filled)) +
		m.styles.ProgressEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s [%s] %5.1f%%", label, bar, progress*100)
}

func (m *DashboardModel) renderFooter() string {
	bindings := []key.Binding{m.keys.Up, m.keys.Down, m.keys.Start, m.keys.Stop, m.keys.Open, m.keys.Help, m.keys.Quit}
	if m.showHelp {
		bindings = []key.Binding{
			m.keys.Up, m.keys.Down, m.keys.Start, m.keys.Stop,
			m.keys.StartAll, m.keys.StopAll, m.keys.Open, m.keys.Help, m.keys.Quit,
		}
	}
	help := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		help = append(help, m.styles.HelpKey.Render(h.Key)+" "+m.styles.HelpDesc.Render(h.Desc))
	}
	width := max(m.width-4, 40)
	return m.styles.Footer.Width(width).Render(strings.Join(help, " • "))
}

// ShutdownErr is the error of the stop-all issued when quitting, if any.
func (m *DashboardModel) ShutdownErr() error {
	return m.shutdownErr
}

// SendLog implements LogSink. It never blocks; a full channel drops the
// refresh, the line itself is already buffered.
func (m *DashboardModel) SendLog(service, line string) {
	select {
	case m.updateChan <- logMsg{service: service, line: line}:
	default:
	}
}
