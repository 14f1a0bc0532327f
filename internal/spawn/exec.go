package spawn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/harshul/devpanel/internal/lifecycle"
)

// KillGrace is how long a terminated group gets to exit before it is
// force killed.
const KillGrace = 5 * time.Second

// ExitError is returned by Run when a command fails. Stderr holds what the
// command printed on its error stream.
type ExitError struct {
	Command string
	Code    int // -1 when the command never ran
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v\n%s", e.Command, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Executor runs commands on the host. It implements lifecycle.Executor.
type Executor struct {
	// Output receives the stdout of install and build steps; nil discards it.
	Output io.Writer
}

var (
	_ lifecycle.Executor = (*Executor)(nil)
	_ lifecycle.Process  = (*Process)(nil)
)

// New returns an executor that discards step output.
func New() *Executor {
	return &Executor{}
}

func environ(c lifecycle.Command) []string {
	if len(c.Env) == 0 {
		return nil // inherit
	}
	return append(os.Environ(), c.Env...)
}

// Run executes c in dir and waits for it.
func (e *Executor) Run(ctx context.Context, dir string, c lifecycle.Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = dir
	cmd.Env = environ(c)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if e.Output != nil {
		cmd.Stdout = e.Output
		cmd.Stderr = io.MultiWriter(&stderr, e.Output)
	}

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ExitError{
			Command: c.String(),
			Code:    code,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return nil
}

// Spawn starts c in dir detached into its own process group/session.
func (e *Executor) Spawn(dir string, c lifecycle.Command, out io.Writer) (lifecycle.Process, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = dir
	cmd.Env = environ(c)
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = out
	}
	// Children that outlive the leader keep the output pipe open.
	cmd.WaitDelay = time.Second
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.String(), err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Process is a spawned server. It implements lifecycle.Process.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

func (p *Process) Pid() int { return p.cmd.Process.Pid }

func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Terminate asks the whole group to exit and force kills it if it is still
// around after KillGrace.
func (p *Process) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := terminateGroup(p.Pid()); err != nil {
		return fmt.Errorf("terminating process group %d: %w", p.Pid(), err)
	}
	p.once.Do(func() {
		go func() {
			select {
			case <-p.done:
			case <-time.After(KillGrace):
				_ = killGroup(p.Pid())
			}
		}()
	})
	return nil
}
