package ports

import (
	"context"
	"fmt"
	"net"
	"runtime"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/harshul/devpanel/internal/lifecycle"
)

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// Listener describes the process holding a listening socket.
type Listener struct {
	PID  int
	Name string
	Port int
}

// Scanner locates processes by the TCP port they listen on, using the OS
// process table. It implements lifecycle.PortScanner.
type Scanner struct{}

var _ lifecycle.PortScanner = (*Scanner)(nil)

// NewScanner returns a scanner for the current platform.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Available reports whether gopsutil can map sockets to processes here.
func (s *Scanner) Available() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "windows", "freebsd":
		return true
	default:
		return false
	}
}

// Lookup returns the first process listening on port. Found is false when
// nothing listens there.
func (s *Scanner) Lookup(ctx context.Context, port int) (l Listener, found bool, err error) {
	if !s.Available() {
		return Listener{}, false, lifecycle.ErrPortScanUnavailable
	}
	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return Listener{}, false, fmt.Errorf("%w: %v", lifecycle.ErrPortScanUnavailable, err)
	}
	for _, c := range conns {
		if int(c.Laddr.Port) != port || c.Status != "LISTEN" || c.Pid <= 0 {
			continue
		}
		l = Listener{PID: int(c.Pid), Port: port}
		if p, err := process.NewProcessWithContext(ctx, c.Pid); err == nil {
			l.Name, _ = p.NameWithContext(ctx)
		}
		return l, true, nil
	}
	return Listener{}, false, nil
}

// FindListener returns the PID listening on port, or 0.
func (s *Scanner) FindListener(ctx context.Context, port int) (int, error) {
	l, found, err := s.Lookup(ctx, port)
	if err != nil || !found {
		return 0, err
	}
	return l.PID, nil
}

// Kill force kills the process with the given PID.
func (s *Scanner) Kill(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("killing process %d: %w", pid, err)
	}
	return nil
}
