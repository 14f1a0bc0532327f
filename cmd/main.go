package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/config"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

// rootCmd opens the control panel when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "devpanel",
	Short: "Start, stop and watch the local api and web dev servers",
	Long: `devpanel controls two local development servers: a Python API
(pip install, then uvicorn) and a Node web app (npm install, build when
needed, npm start).

Usage:
  devpanel              Open the interactive control panel
  devpanel run [svc]    Start servers in the foreground
  devpanel stop <svc>   Stop servers, by handle or by port
  devpanel status       Show server status
  devpanel open <svc>   Open a server in the browser
  devpanel init         Write a devpanel.yaml
  devpanel doctor       Check that everything needed is installed`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPanel,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultFile, "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-file", "", "Write the diagnostic log to this file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(panelCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
