package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Process is a handle to a spawned server process.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err is the exit error; only meaningful after Done is closed.
	Err() error
	// Terminate signals the whole process group/session.
	Terminate() error
}

// Executor runs the external commands a start is made of.
type Executor interface {
	// Run executes c in dir and blocks until it exits. A non-zero exit is an
	// error whose text includes what the command wrote to stderr.
	Run(ctx context.Context, dir string, c Command) error
	// Spawn starts c in dir as the leader of a new process group/session.
	// out receives the process output; nil discards it.
	Spawn(dir string, c Command, out io.Writer) (Process, error)
}

// PortScanner is the optional OS process-table enumeration capability used
// when a service has to be stopped without a tracked handle.
type PortScanner interface {
	Available() bool
	// FindListener returns the PID of the first process holding a listening
	// socket on port, or 0 when there is none.
	FindListener(ctx context.Context, port int) (int, error)
	Kill(ctx context.Context, pid int) error
}

// NoPortScan is the PortScanner for platforms without process enumeration.
type NoPortScan struct{}

func (NoPortScan) Available() bool { return false }

func (NoPortScan) FindListener(context.Context, int) (int, error) {
	return 0, ErrPortScanUnavailable
}

func (NoPortScan) Kill(context.Context, int) error { return ErrPortScanUnavailable }

// Browser opens URLs for the user.
type Browser interface {
	Open(url string) error
}

// StopMethod says how a stop located the process it terminated.
type StopMethod string

const (
	StopNone    StopMethod = "none" // not found
	StopTracked StopMethod = "tracked"
	StopByPort  StopMethod = "port"
)

// StopReport is the outcome of Stop.
type StopReport struct {
	Service         string
	Method          StopMethod
	PID             int // also set for a port listener that could not be killed
	ScanUnavailable bool
	ScanErr         error
}

// Found reports whether a process was terminated.
func (r StopReport) Found() bool { return r.Method != StopNone }

// Manager drives each managed service through install, build, run and
// stop. Every service is independent; the only shared piece is the event
// queue the presentation layer drains.
type Manager struct {
	services []*Service
	byName   map[string]*Service
	exec     Executor
	scanner  PortScanner
	browser  Browser
	output   func(service string) io.Writer
	events   chan Event
	log      zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPortScanner enables the stop-by-port fallback.
func WithPortScanner(s PortScanner) Option {
	return func(m *Manager) { m.scanner = s }
}

// WithBrowser sets the launcher used by Open.
func WithBrowser(b Browser) Option {
	return func(m *Manager) { m.browser = b }
}

// WithOutput routes each spawned server's output to the writer returned
// for its service name.
func WithOutput(fn func(service string) io.Writer) Option {
	return func(m *Manager) { m.output = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a manager owning the given services.
func NewManager(exec Executor, services []*Service, opts ...Option) (*Manager, error) {
	if exec == nil {
		return nil, errors.New("lifecycle: nil executor")
	}
	m := &Manager{
		byName:  make(map[string]*Service, len(services)),
		exec:    exec,
		scanner: NoPortScan{},
		events:  make(chan Event, eventQueueSize),
		log:     zerolog.Nop(),
	}
	for _, s := range services {
		if s == nil || s.Name == "" {
			return nil, errors.New("lifecycle: service without a name")
		}
		if _, dup := m.byName[s.Name]; dup {
			return nil, fmt.Errorf("lifecycle: duplicate service %q", s.Name)
		}
		m.byName[s.Name] = s
		m.services = append(m.services, s)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.scanner == nil {
		m.scanner = NoPortScan{}
	}
	return m, nil
}

// Services returns the managed services in configuration order.
func (m *Manager) Services() []*Service {
	out := make([]*Service, len(m.services))
	copy(out, m.services)
	return out
}

// Service looks a service up by name.
func (m *Manager) Service(name string) (*Service, error) {
	s, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return s, nil
}

// Events is the notification queue for the presentation layer.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
		// Queue full, drop the notification
		m.log.Debug().Str("service", ev.Service).Stringer("kind", ev.Kind).Msg("event dropped")
	}
}

// claim checks the start precondition and marks a start in flight. The
// check is not atomic with respect to Stop.
func (m *Manager) claim(s *Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live() != nil {
		return ErrAlreadyRunning
	}
	if s.starting {
		return ErrStartInFlight
	}
	s.starting = true
	return nil
}

// Start launches the install/build/run sequence on its own goroutine and
// returns immediately. Progress and the outcome arrive on Events.
func (m *Manager) Start(name string) error {
	s, err := m.Service(name)
	if err != nil {
		return err
	}
	if err := m.claim(s); err != nil {
		return err
	}
	go func() {
		_, _ = m.start(context.Background(), s)
	}()
	return nil
}

// StartWait runs the start sequence on the calling goroutine and returns the
// PID of the spawned server.
func (m *Manager) StartWait(ctx context.Context, name string) (int, error) {
	s, err := m.Service(name)
	if err != nil {
		return 0, err
	}
	if err := m.claim(s); err != nil {
		return 0, err
	}
	return m.start(ctx, s)
}

func (m *Manager) start(ctx context.Context, s *Service) (int, error) {
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	fail := func(err error) (int, error) {
		m.log.Error().Err(err).Str("service", s.Name).Msg("start failed")
		m.publish(Event{Service: s.Name, Kind: EventStartFailed, Err: err})
		return 0, err
	}

	m.progress(s, StageInstalling)
	m.log.Info().Str("service", s.Name).Str("dir", s.Dir).Stringer("cmd", s.Install).Msg("installing")
	if err := m.exec.Run(ctx, s.Dir, s.Install); err != nil {
		return fail(opError(s.Name, ErrInstallFailed, err))
	}

	if s.needsBuild() {
		m.progress(s, StageBuilding)
		m.log.Info().Str("service", s.Name).Stringer("cmd", s.Build).Msg("building")
		if err := m.exec.Run(ctx, s.Dir, *s.Build); err != nil {
			return fail(opError(s.Name, ErrBuildFailed, err))
		}
	} else if s.Build != nil {
		m.log.Debug().Str("service", s.Name).Str("marker", s.BuildMarker).Msg("build marker present, skipping build")
	}

	m.progress(s, StageReady)

	var out io.Writer
	if m.output != nil {
		out = m.output(s.Name)
	}
	proc, err := m.exec.Spawn(s.Dir, s.Run, out)
	if err != nil {
		return fail(opError(s.Name, ErrSpawnFailed, err))
	}

	s.mu.Lock()
	s.proc = proc
	s.startedAt = time.Now()
	s.starting = false
	s.mu.Unlock()

	go m.watch(s, proc)

	pid := proc.Pid()
	m.log.Info().Str("service", s.Name).Int("pid", pid).Msg("started")
	m.publish(Event{Service: s.Name, Kind: EventStarted, PID: pid})
	return pid, nil
}

func (m *Manager) progress(s *Service, stage Stage) {
	m.publish(Event{Service: s.Name, Kind: EventProgress, Stage: stage})
}

// watch clears the handle once the process exits. An exit caused by Stop
// is reported by Stop as EventStopped, not here.
func (m *Manager) watch(s *Service, proc Process) {
	<-proc.Done()
	s.mu.Lock()
	requested := s.stopping == proc
	cleared := s.clear(proc)
	s.mu.Unlock()
	if !cleared || requested {
		return
	}
	m.log.Info().Str("service", s.Name).Int("pid", proc.Pid()).AnErr("exit", proc.Err()).Msg("exited")
	m.publish(Event{Service: s.Name, Kind: EventExited, PID: proc.Pid(), Err: proc.Err()})
}

// Stop terminates the tracked process group of the service. Without a live
// handle it falls back to killing whichever process listens on the service
// port. Finding nothing is reported through the StopReport, not as an error.
func (m *Manager) Stop(ctx context.Context, name string) (StopReport, error) {
	s, err := m.Service(name)
	if err != nil {
		return StopReport{Service: name, Method: StopNone}, err
	}

	s.mu.Lock()
	proc := s.live()
	if proc != nil {
		s.stopping = proc
	}
	s.mu.Unlock()

	var termErr error
	if proc != nil {
		pid := proc.Pid()
		termErr = terminate(ctx, proc)
		if termErr != nil {
			select {
			case <-proc.Done():
				termErr = nil // exited as the wait gave up
			default:
			}
		}
		s.mu.Lock()
		if s.stopping == proc {
			s.stopping = nil
		}
		if termErr == nil {
			s.clear(proc)
		}
		s.mu.Unlock()
		if termErr == nil {
			m.log.Info().Str("service", s.Name).Int("pid", pid).Msg("stopped")
			m.publish(Event{Service: s.Name, Kind: EventStopped, PID: pid})
			return StopReport{Service: s.Name, Method: StopTracked, PID: pid}, nil
		}
		m.log.Warn().Err(termErr).Str("service", s.Name).Int("pid", pid).Msg("group termination failed, scanning port")
	}

	report, killErr := m.stopByPort(ctx, s)
	if report.Found() {
		m.publish(Event{Service: s.Name, Kind: EventStopped, PID: report.PID})
		return report, nil
	}
	if killErr != nil {
		return report, killErr
	}
	if termErr != nil {
		return report, opError(s.Name, ErrStopFailed, termErr)
	}
	return report, nil
}

func terminate(ctx context.Context, proc Process) error {
	if err := proc.Terminate(); err != nil {
		return err
	}
	select {
	case <-proc.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopByPort kills the process listening on the service port. A process
// that was found but could not be killed is reported with its PID and a
// StopFailed error.
func (m *Manager) stopByPort(ctx context.Context, s *Service) (StopReport, error) {
	report := StopReport{Service: s.Name, Method: StopNone}
	if !m.scanner.Available() {
		report.ScanUnavailable = true
		return report, nil
	}
	pid, err := m.scanner.FindListener(ctx, s.Port)
	if err != nil {
		if errors.Is(err, ErrPortScanUnavailable) {
			report.ScanUnavailable = true
		} else {
			report.ScanErr = err
		}
		m.log.Warn().Err(err).Str("service", s.Name).Int("port", s.Port).Msg("port scan failed")
		return report, nil
	}
	if pid == 0 {
		return report, nil
	}
	report.PID = pid
	if err := m.scanner.Kill(ctx, pid); err != nil {
		m.log.Warn().Err(err).Str("service", s.Name).Int("pid", pid).Msg("kill by port failed")
		return report, opError(s.Name, ErrStopFailed, err)
	}
	m.log.Info().Str("service", s.Name).Int("pid", pid).Int("port", s.Port).Msg("stopped by port")
	report.Method = StopByPort
	return report, nil
}

// StopAll stops every service, continuing past failures.
func (m *Manager) StopAll(ctx context.Context) ([]StopReport, error) {
	var errs []error
	reports := make([]StopReport, 0, len(m.services))
	for _, s := range m.services {
		r, err := m.Stop(ctx, s.Name)
		reports = append(reports, r)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// Status reports whether the tracked process of the service is alive.
func (m *Manager) Status(name string) (Status, error) {
	s, err := m.Service(name)
	if err != nil {
		return StatusStopped, err
	}
	return s.Status(), nil
}

// Snapshot returns the presentation view of a service.
func (m *Manager) Snapshot(name string) (Snapshot, error) {
	s, err := m.Service(name)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Open launches the service URL in the browser. Reachability is not
// checked.
func (m *Manager) Open(name string) (string, error) {
	s, err := m.Service(name)
	if err != nil {
		return "", err
	}
	url := s.URL()
	if m.browser == nil {
		return url, errors.New("no browser launcher configured")
	}
	if err := m.browser.Open(url); err != nil {
		return url, fmt.Errorf("opening %s: %w", url, err)
	}
	return url, nil
}
