//go:build windows

package spawn

import (
	"os/exec"
	"strconv"
	"syscall"
)

// detach puts the process in a new process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// terminateGroup kills the process tree; Windows has no polite group signal
// for console-less children.
func terminateGroup(pid int) error {
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func killGroup(pid int) error {
	return terminateGroup(pid)
}
