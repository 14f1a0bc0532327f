package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/config"
	"github.com/harshul/devpanel/internal/logging"
	"github.com/harshul/devpanel/internal/ui"
)

// panelCmd represents the panel command
var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the interactive control panel",
	Long: `The panel lists the api and web servers with their status and
lets you start (s), stop (x), open (o) them and follow their output.
On quit you are asked whether running servers should be stopped.`,
	Args: cobra.NoArgs,
	RunE: runPanel,
}

func runPanel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration (run 'devpanel init' or 'devpanel doctor'):\n%w", err)
	}

	logs := ui.NewLogMultiplexer([]string{config.API, config.Web})
	files := make(map[string]io.WriteCloser)
	for _, name := range []string{config.API, config.Web} {
		f, err := logging.ServiceOutput(cfg.LogDir, name)
		if err != nil {
			return fmt.Errorf("failed to open output log for %s: %w", name, err)
		}
		if f != nil {
			files[name] = f
		}
	}

	a, err := newApp(cfg, func(service string) io.Writer {
		if f, ok := files[service]; ok {
			return io.MultiWriter(logs.GetWriter(service), f)
		}
		return logs.GetWriter(service)
	})
	if err != nil {
		for _, f := range files {
			f.Close()
		}
		return err
	}
	for _, f := range files {
		a.track(f)
	}
	defer a.Close()

	a.log.Info().Msg("panel opened")
	err = ui.RunDashboard(a.manager, logs)
	a.log.Info().Err(err).Msg("panel closed")
	return err
}
