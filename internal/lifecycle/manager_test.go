package lifecycle

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeProc struct {
	pid      int
	done     chan struct{}
	once     sync.Once
	err      error
	termErr  error
	termExit error // exit error once terminated
}

func newFakeProc(pid int) *fakeProc {
	return &fakeProc{pid: pid, done: make(chan struct{})}
}

func (p *fakeProc) Pid() int              { return p.pid }
func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) Err() error            { return p.err }

func (p *fakeProc) Terminate() error {
	if p.termErr != nil {
		return p.termErr
	}
	p.exit(p.termExit)
	return nil
}

func (p *fakeProc) exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

type fakeExec struct {
	mu       sync.Mutex
	calls    []string
	runErr   map[string]error
	spawnErr error
	proc     *fakeProc
	block    chan struct{}
}

func (e *fakeExec) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *fakeExec) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *fakeExec) Run(ctx context.Context, dir string, c Command) error {
	e.record("run:" + c.String())
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return e.runErr[c.String()]
}

func (e *fakeExec) Spawn(dir string, c Command, out io.Writer) (Process, error) {
	e.record("spawn:" + c.String())
	if e.spawnErr != nil {
		return nil, e.spawnErr
	}
	return e.proc, nil
}

type fakeScanner struct {
	available bool
	pid       int
	findErr   error
	killErr   error
	killed    []int
}

func (s *fakeScanner) Available() bool { return s.available }

func (s *fakeScanner) FindListener(ctx context.Context, port int) (int, error) {
	return s.pid, s.findErr
}

func (s *fakeScanner) Kill(ctx context.Context, pid int) error {
	if s.killErr != nil {
		return s.killErr
	}
	s.killed = append(s.killed, pid)
	return nil
}

type fakeBrowser struct{ opened []string }

func (b *fakeBrowser) Open(url string) error {
	b.opened = append(b.opened, url)
	return nil
}

func apiService(t *testing.T) *Service {
	t.Helper()
	return &Service{
		Name:        "api",
		Dir:         filepath.Join(t.TempDir(), "api"),
		Port:        8000,
		Install:     Command{Name: "pip", Args: []string{"install"}},
		Build:       &Command{Name: "make", Args: []string{"bundle"}},
		BuildMarker: "dist/BUILD_ID",
		Run:         Command{Name: "serve"},
	}
}

func newTestManager(t *testing.T, exec *fakeExec, svc *Service, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(exec, []*Service{svc}, opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func waitFor(t *testing.T, m *Manager, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func equalCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestStartReportsPIDAndRunning(t *testing.T) {
	exec := &fakeExec{proc: newFakeProc(4321)}
	m := newTestManager(t, exec, apiService(t))

	pid, err := m.StartWait(context.Background(), "api")
	if err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}
	if pid != 4321 {
		t.Errorf("expected PID 4321, got %d", pid)
	}
	if st, _ := m.Status("api"); st != StatusRunning {
		t.Errorf("expected Running, got %s", st)
	}
	equalCalls(t, exec.Calls(), []string{"run:pip install", "run:make bundle", "spawn:serve"})
}

func TestInstallFailureLeavesStopped(t *testing.T) {
	exec := &fakeExec{
		proc:   newFakeProc(4321),
		runErr: map[string]error{"pip install": errors.New("network unreachable")},
	}
	m := newTestManager(t, exec, apiService(t))

	_, err := m.StartWait(context.Background(), "api")
	if err == nil {
		t.Fatal("expected install error, got nil")
	}
	if !errors.Is(err, ErrInstallFailed) {
		t.Errorf("expected ErrInstallFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "network unreachable") {
		t.Errorf("expected error text to contain %q, got %q", "network unreachable", err.Error())
	}
	if st, _ := m.Status("api"); st != StatusStopped {
		t.Errorf("expected Stopped, got %s", st)
	}
	equalCalls(t, exec.Calls(), []string{"run:pip install"})
}

func TestBuildFailureSkipsRun(t *testing.T) {
	exec := &fakeExec{
		proc:   newFakeProc(1),
		runErr: map[string]error{"make bundle": errors.New("syntax error")},
	}
	m := newTestManager(t, exec, apiService(t))

	_, err := m.StartWait(context.Background(), "api")
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	if st, _ := m.Status("api"); st != StatusStopped {
		t.Errorf("expected Stopped, got %s", st)
	}
	equalCalls(t, exec.Calls(), []string{"run:pip install", "run:make bundle"})
}

func TestBuildMarkerSkipsBuild(t *testing.T) {
	svc := apiService(t)
	marker := filepath.Join(svc.Dir, svc.BuildMarker)
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	exec := &fakeExec{proc: newFakeProc(7)}
	m := newTestManager(t, exec, svc)

	if _, err := m.StartWait(context.Background(), "api"); err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}
	equalCalls(t, exec.Calls(), []string{"run:pip install", "spawn:serve"})
}

func TestNoBuildCommand(t *testing.T) {
	svc := apiService(t)
	svc.Build = nil

	exec := &fakeExec{proc: newFakeProc(7)}
	m := newTestManager(t, exec, svc)

	if _, err := m.StartWait(context.Background(), "api"); err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}
	equalCalls(t, exec.Calls(), []string{"run:pip install", "spawn:serve"})
}

func TestSpawnFailure(t *testing.T) {
	exec := &fakeExec{spawnErr: errors.New("executable file not found")}
	m := newTestManager(t, exec, apiService(t))

	_, err := m.StartWait(context.Background(), "api")
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
	if st, _ := m.Status("api"); st != StatusStopped {
		t.Errorf("expected Stopped, got %s", st)
	}
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	exec := &fakeExec{proc: newFakeProc(4321)}
	m := newTestManager(t, exec, apiService(t))

	if _, err := m.StartWait(context.Background(), "api"); err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}
	before := len(exec.Calls())

	_, err := m.StartWait(context.Background(), "api")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := m.Start("api"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning from Start, got %v", err)
	}
	if got := len(exec.Calls()); got != before {
		t.Errorf("expected no new commands, got %d more", got-before)
	}
	snap, _ := m.Snapshot("api")
	if snap.PID != 4321 {
		t.Errorf("expected handle PID 4321 untouched, got %d", snap.PID)
	}
}

func TestStartInFlight(t *testing.T) {
	exec := &fakeExec{proc: newFakeProc(11), block: make(chan struct{})}
	m := newTestManager(t, exec, apiService(t))

	if err := m.Start("api"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start("api"); !errors.Is(err, ErrStartInFlight) {
		t.Errorf("expected ErrStartInFlight, got %v", err)
	}
	snap, _ := m.Snapshot("api")
	if !snap.Starting {
		t.Error("expected snapshot to report a start in flight")
	}

	close(exec.block)
	ev := waitFor(t, m, EventStarted)
	if ev.PID != 11 {
		t.Errorf("expected PID 11, got %d", ev.PID)
	}
}

func TestStartPublishesProgress(t *testing.T) {
	exec := &fakeExec{proc: newFakeProc(5)}
	m := newTestManager(t, exec, apiService(t))

	if err := m.Start("api"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var stages []Stage
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-m.Events():
			switch ev.Kind {
			case EventProgress:
				stages = append(stages, ev.Stage)
			case EventStarted:
				done = true
			case EventStartFailed:
				t.Fatalf("unexpected start failure: %v", ev.Err)
			}
		case <-timeout:
			t.Fatal("timed out waiting for start")
		}
	}

	want := []Stage{StageInstalling, StageBuilding, StageReady}
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], stages[i])
		}
	}
}

func TestStartFailurePublished(t *testing.T) {
	exec := &fakeExec{runErr: map[string]error{"pip install": errors.New("boom")}}
	m := newTestManager(t, exec, apiService(t))

	if err := m.Start("api"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ev := waitFor(t, m, EventStartFailed)
	if !errors.Is(ev.Err, ErrInstallFailed) {
		t.Errorf("expected ErrInstallFailed in event, got %v", ev.Err)
	}
}

func TestStopTracked(t *testing.T) {
	exec := &fakeExec{proc: newFakeProc(4321)}
	m := newTestManager(t, exec, apiService(t))

	if _, err := m.StartWait(context.Background(), "api"); err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}
	report, err := m.Stop(context.Background(), "api")
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if report.Method != StopTracked || report.PID != 4321 {
		t.Errorf("expected tracked stop of 4321, got %+v", report)
	}
	if st, _ := m.Status("api"); st != StatusStopped {
		t.Errorf("expected Stopped, got %s", st)
	}
	snap, _ := m.Snapshot("api")
	if snap.PID != 0 {
		t.Errorf("expected handle cleared, got PID %d", snap.PID)
	}
}

func TestStopNotFound(t *testing.T) {
	tests := []struct {
		name            string
		scanner         PortScanner
		wantUnavailable bool
	}{
		{"no scanner", nil, true},
		{"unavailable scanner", NoPortScan{}, true},
		{"nothing listening", &fakeScanner{available: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.scanner != nil {
				opts = append(opts, WithPortScanner(tt.scanner))
			}
			m := newTestManager(t, &fakeExec{}, apiService(t), opts...)

			report, err := m.Stop(context.Background(), "api")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if report.Found() {
				t.Errorf("expected not found, got %+v", report)
			}
			if report.ScanUnavailable != tt.wantUnavailable {
				t.Errorf("expected ScanUnavailable=%v, got %v", tt.wantUnavailable, report.ScanUnavailable)
			}

			// stopping twice is harmless
			if _, err := m.Stop(context.Background(), "api"); err != nil {
				t.Errorf("second Stop returned %v", err)
			}
		})
	}
}

func TestStopByPort(t *testing.T) {
	scanner := &fakeScanner{available: true, pid: 999}
	m := newTestManager(t, &fakeExec{}, apiService(t), WithPortScanner(scanner))

	report, err := m.Stop(context.Background(), "api")
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if report.Method != StopByPort || report.PID != 999 {
		t.Errorf("expected port stop of 999, got %+v", report)
	}
	if len(scanner.killed) != 1 || scanner.killed[0] != 999 {
		t.Errorf("expected PID 999 killed, got %v", scanner.killed)
	}
}

func TestStopKillByPortFails(t *testing.T) {
	scanner := &fakeScanner{available: true, pid: 999, killErr: errors.New("operation not permitted")}
	m := newTestManager(t, &fakeExec{}, apiService(t), WithPortScanner(scanner))

	report, err := m.Stop(context.Background(), "api")
	if !errors.Is(err, ErrStopFailed) {
		t.Fatalf("expected ErrStopFailed, got %v", err)
	}
	if report.Found() {
		t.Errorf("expected nothing terminated, got %+v", report)
	}
	if report.PID != 999 {
		t.Errorf("expected the listener PID 999 in the report, got %d", report.PID)
	}
	if report.ScanErr != nil {
		t.Errorf("expected the scan itself to succeed, got %v", report.ScanErr)
	}
}

func TestStopTerminateRefused(t *testing.T) {
	proc := newFakeProc(50)
	proc.termErr = errors.New("operation not permitted")
	exec := &fakeExec{proc: proc}
	m := newTestManager(t, exec, apiService(t), WithPortScanner(&fakeScanner{available: true}))

	if _, err := m.StartWait(context.Background(), "api"); err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}
	_, err := m.Stop(context.Background(), "api")
	if !errors.Is(err, ErrStopFailed) {
		t.Fatalf("expected ErrStopFailed, got %v", err)
	}
	if st, _ := m.Status("api"); st != StatusRunning {
		t.Errorf("expected state unchanged (Running), got %s", st)
	}
}

func TestExitObserved(t *testing.T) {
	proc := newFakeProc(77)
	m := newTestManager(t, &fakeExec{proc: proc}, apiService(t))

	if _, err := m.StartWait(context.Background(), "api"); err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}
	proc.exit(errors.New("exit status 3"))

	ev := waitFor(t, m, EventExited)
	if ev.PID != 77 {
		t.Errorf("expected PID 77, got %d", ev.PID)
	}
	if ev.Err == nil {
		t.Error("expected exit error in event")
	}
	if st, _ := m.Status("api"); st != StatusStopped {
		t.Errorf("expected Stopped, got %s", st)
	}

	// a new start is allowed once the old process is gone
	exec := m.exec.(*fakeExec)
	exec.proc = newFakeProc(78)
	if pid, err := m.StartWait(context.Background(), "api"); err != nil || pid != 78 {
		t.Errorf("expected restart with PID 78, got %d, %v", pid, err)
	}
}

func TestStopAll(t *testing.T) {
	api := apiService(t)
	web := &Service{Name: "web", Dir: t.TempDir(), Port: 3000, Install: Command{Name: "npm"}, Run: Command{Name: "next"}}
	exec := &fakeExec{proc: newFakeProc(10)}
	m, err := NewManager(exec, []*Service{api, web})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.StartWait(context.Background(), "api"); err != nil {
		t.Fatalf("StartWait failed: %v", err)
	}

	reports, err := m.StopAll(context.Background())
	if err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Method != StopTracked {
		t.Errorf("expected api stopped by handle, got %s", reports[0].Method)
	}
	if reports[1].Found() {
		t.Errorf("expected web not found, got %+v", reports[1])
	}
}

func TestUnknownService(t *testing.T) {
	m := newTestManager(t, &fakeExec{}, apiService(t))

	if err := m.Start("db"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Start: expected ErrUnknownService, got %v", err)
	}
	if _, err := m.Stop(context.Background(), "db"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Stop: expected ErrUnknownService, got %v", err)
	}
	if _, err := m.Status("db"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Status: expected ErrUnknownService, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	b := &fakeBrowser{}
	m := newTestManager(t, &fakeExec{}, apiService(t), WithBrowser(b))

	url, err := m.Open("api")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if url != "http://localhost:8000" {
		t.Errorf("expected http://localhost:8000, got %s", url)
	}
	if len(b.opened) != 1 || b.opened[0] != url {
		t.Errorf("expected browser to open %s, got %v", url, b.opened)
	}
}

func TestNewManagerRejectsDuplicates(t *testing.T) {
	a := &Service{Name: "api"}
	b := &Service{Name: "api"}
	if _, err := NewManager(&fakeExec{}, []*Service{a, b}); err == nil {
		t.Error("expected duplicate service error")
	}
	if _, err := NewManager(nil, nil); err == nil {
		t.Error("expected nil executor error")
	}
}

func TestStopTrackedPublishesOnlyStopped(t *testing.T) {
	for i := 0; i < 20; i++ {
		proc := newFakeProc(4000 + i)
		proc.termExit = errors.New("signal: terminated")
		m := newTestManager(t, &fakeExec{proc: proc}, apiService(t))

		if _, err := m.StartWait(context.Background(), "api"); err != nil {
			t.Fatalf("StartWait failed: %v", err)
		}
		drain(m)
		if _, err := m.Stop(context.Background(), "api"); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
		// give the exit watcher time to run
		time.Sleep(5 * time.Millisecond)

		var kinds []EventKind
		for _, ev := range drain(m) {
			kinds = append(kinds, ev.Kind)
		}
		if len(kinds) != 1 || kinds[0] != EventStopped {
			t.Fatalf("expected only a stopped event, got %v", kinds)
		}
	}
}

func drain(m *Manager) []Event {
	var out []Event
	for {
		select {
		case ev := <-m.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}
