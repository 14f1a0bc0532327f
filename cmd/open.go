package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/config"
	"github.com/harshul/devpanel/internal/ui"
)

// openCmd represents the open command
var openCmd = &cobra.Command{
	Use:       "open <api|web>",
	Short:     "Open a server in the browser",
	Long:      `The open command launches the server URL in the default browser. It does not check that the server is up.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{config.API, config.Web},
	RunE:      runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	url, err := a.manager.Open(args[0])
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Opened %s", url))
	return nil
}
