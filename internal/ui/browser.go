package ui

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/harshul/devpanel/internal/lifecycle"
)

// Browser opens URLs with the desktop's default handler. It implements
// lifecycle.Browser.
type Browser struct{}

var _ lifecycle.Browser = Browser{}

// Open launches url without waiting for the browser.
func (Browser) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", url)
	default:
		return fmt.Errorf("no browser launcher for %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
