package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/lifecycle"
	"github.com/harshul/devpanel/internal/ui"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop <api|web|all>",
	Short: "Stop a running server",
	Long: `The stop command terminates a server started by devpanel. Servers
started from another devpanel process are found by the port they listen on.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: serviceArgs,
	RunE:      runStop,
}

func init() {
	stopCmd.Flags().Duration("timeout", ui.StopTimeout, "How long to wait for a server to exit")
}

func runStop(cmd *cobra.Command, args []string) error {
	names, err := serviceNames(args)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var errs []error
	for _, name := range names {
		report, err := a.manager.Stop(ctx, name)
		printStopReport(report, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func printStopReport(r lifecycle.StopReport, err error) {
	switch r.Method {
	case lifecycle.StopTracked:
		ui.PrintSuccess(fmt.Sprintf("%s stopped (pid %d)", r.Service, r.PID))
	case lifecycle.StopByPort:
		ui.PrintSuccess(fmt.Sprintf("%s stopped by port (pid %d)", r.Service, r.PID))
	default:
		switch {
		case err != nil && r.PID != 0:
			ui.PrintError(fmt.Sprintf("%s could not be stopped (pid %d)", r.Service, r.PID))
		case err != nil:
			ui.PrintError(fmt.Sprintf("%s could not be stopped", r.Service))
		case r.ScanUnavailable:
			ui.PrintWarning(fmt.Sprintf("%s not found (port scan unavailable on this system)", r.Service))
		case r.ScanErr != nil:
			ui.PrintWarning(fmt.Sprintf("%s not found: %v", r.Service, r.ScanErr))
		default:
			ui.PrintInfo(fmt.Sprintf("%s not found", r.Service))
		}
	}
}
