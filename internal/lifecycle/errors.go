package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrInstallFailed       = errors.New("install failed")
	ErrBuildFailed         = errors.New("build failed")
	ErrSpawnFailed         = errors.New("spawn failed")
	ErrStopFailed          = errors.New("stop failed")
	ErrPortScanUnavailable = errors.New("port scan unavailable")

	ErrAlreadyRunning = errors.New("already running")
	ErrStartInFlight  = errors.New("start already in progress")
	ErrUnknownService = errors.New("unknown service")
)

// OpError records a failed lifecycle step for one service. It matches both
// the step sentinel (ErrInstallFailed, ...) and the underlying cause with
// errors.Is.
type OpError struct {
	Service string
	Op      error
	Err     error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Op)
	}
	return fmt.Sprintf("%s: %v: %v", e.Service, e.Op, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Op}
	}
	return []error{e.Op, e.Err}
}

func opError(service string, op, err error) *OpError {
	return &OpError{Service: service, Op: op, Err: err}
}
