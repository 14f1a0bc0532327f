package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/doctor"
	"github.com/harshul/devpanel/internal/ui"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that everything needed to run the servers is installed",
	Long: `The doctor command checks both project directories, the Python and
Node runtimes, the package manager, installed dependencies, the web build
and whether the service ports are free.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	d := doctor.Diagnose(cfg)

	ui.PrintHeader("devpanel doctor")
	for _, s := range d.Services {
		fmt.Printf("  %s (%s)\n", s.Name, s.Dir)
		if !s.DirExists {
			ui.PrintError("directory not found")
			fmt.Println()
			continue
		}
		if s.Runtime.Installed {
			ui.PrintSuccess(fmt.Sprintf("%s %s", s.Runtime.Name, s.Runtime.Version))
		} else {
			ui.PrintError(fmt.Sprintf("%s not found (%s)", s.Runtime.Name, s.Runtime.Path))
		}
		if s.Dependencies.ConfigFile != "" {
			if s.Dependencies.Installed {
				ui.PrintSuccess(fmt.Sprintf("%s dependencies installed (%s)", s.Dependencies.Manager, s.Dependencies.ConfigFile))
			} else {
				ui.PrintWarning(fmt.Sprintf("%s dependencies not installed, start runs: %s", s.Dependencies.Manager, s.Dependencies.InstallCommand))
			}
		}
		if s.Port.Free {
			ui.PrintSuccess(fmt.Sprintf("port %d free", s.Port.Port))
		} else {
			ui.PrintWarning(fmt.Sprintf("port %d in use %s", s.Port.Port, s.Port.Holder))
		}
		fmt.Println()
	}

	for _, w := range d.Warnings {
		ui.PrintWarning(w)
	}
	for _, issue := range d.Issues {
		ui.PrintError(issue)
	}
	if !d.Healthy {
		return errors.New("doctor found problems")
	}
	ui.PrintSuccess("Ready to start")
	return nil
}
