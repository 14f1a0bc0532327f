package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Status is the derived liveness of a managed service.
type Status string

const (
	StatusRunning Status = "Running"
	StatusStopped Status = "Stopped"
)

// Command is an external command line plus extra environment entries.
type Command struct {
	Name string
	Args []string
	Env  []string // KEY=VALUE pairs appended to the controller's environment
}

// String renders the command the way a user would type it.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Service describes one managed development server and tracks the handle
// of the process the controller started for it.
type Service struct {
	Name        string
	Dir         string
	Port        int
	Install     Command
	Build       *Command // nil when the service has no build step
	BuildMarker string   // relative to Dir; empty means always build
	Run         Command

	mu        sync.Mutex
	proc      Process
	startedAt time.Time
	starting  bool
	stopping  Process // set while Stop terminates this handle
}

// URL is the address the service is expected to answer on.
func (s *Service) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.Port)
}

// needsBuild reports whether the build step has to run.
func (s *Service) needsBuild() bool {
	if s.Build == nil {
		return false
	}
	if s.BuildMarker == "" {
		return true
	}
	marker := s.BuildMarker
	if !filepath.IsAbs(marker) {
		marker = filepath.Join(s.Dir, marker)
	}
	_, err := os.Stat(marker)
	return err != nil
}

// live returns the tracked process if it has not exited yet. The handle
// itself is cleared by the exit watcher or by Stop, never here.
// Must be called with s.mu held.
func (s *Service) live() Process {
	if s.proc == nil {
		return nil
	}
	select {
	case <-s.proc.Done():
		return nil
	default:
		return s.proc
	}
}

// clear drops the handle if it is still p. Must be called with s.mu held.
func (s *Service) clear(p Process) bool {
	if s.proc != p {
		return false
	}
	s.proc = nil
	s.startedAt = time.Time{}
	return true
}

// Status polls the tracked handle.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live() != nil {
		return StatusRunning
	}
	return StatusStopped
}

// Snapshot is a point-in-time view of a service for presentation.
type Snapshot struct {
	Name      string
	Port      int
	URL       string
	Status    Status
	PID       int
	StartedAt time.Time
	Starting  bool
}

// Snapshot returns the current view of the service.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Name:     s.Name,
		Port:     s.Port,
		URL:      s.URL(),
		Status:   StatusStopped,
		Starting: s.starting,
	}
	if p := s.live(); p != nil {
		snap.Status = StatusRunning
		snap.PID = p.Pid()
		snap.StartedAt = s.startedAt
	}
	return snap
}
