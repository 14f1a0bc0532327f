package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/harshul/devpanel/internal/config"
	"github.com/harshul/devpanel/internal/provisioner"
	"github.com/harshul/devpanel/internal/ui"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a devpanel.yaml configuration file",
	Long: `The init command asks for the project directories and ports of the
api and web servers and writes them to devpanel.yaml (or the file given
with --config). With --yes the defaults are written without prompting.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing configuration file")
	initCmd.Flags().BoolP("yes", "y", false, "Accept the defaults without prompting")
}

var errInitCancelled = errors.New("init cancelled")

func runInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	force, _ := cmd.Flags().GetBool("force")
	yes, _ := cmd.Flags().GetBool("yes")

	if _, err := os.Stat(path); err == nil && !force {
		if yes {
			return fmt.Errorf("configuration file already exists at %s. Use --force to overwrite", path)
		}
		overwrite, err := ui.RunYesNoPrompt("Overwrite "+path+"?", "A configuration file already exists.", false)
		if err != nil {
			return err
		}
		if !overwrite {
			ui.PrintInfo("Keeping the existing configuration")
			return nil
		}
	}

	cfg := config.Default()
	if !yes {
		var err error
		if cfg, err = promptConfig(cfg); err != nil {
			if errors.Is(err, errInitCancelled) {
				ui.PrintInfo("Nothing written")
				return nil
			}
			return err
		}
	}

	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	ui.PrintSuccess("Wrote " + path)
	ui.PrintHighlight("api", fmt.Sprintf("%s on port %d", cfg.APIDir, cfg.APIPort))
	ui.PrintHighlight("web", fmt.Sprintf("%s on port %d", cfg.WebDir, cfg.WebPort))
	ui.PrintInfo("Run 'devpanel doctor' to check the setup")
	return nil
}

func promptConfig(cfg config.Config) (config.Config, error) {
	text := func(title, desc, def string) (string, error) {
		v, ok, err := ui.RunTextInputPrompt(title, desc, def)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errInitCancelled
		}
		return v, nil
	}
	port := func(title string, def int) (int, error) {
		v, err := text(title, "1-65535", strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return 0, fmt.Errorf("invalid port %q", v)
		}
		return n, nil
	}

	var err error
	if cfg.APIDir, err = text("API directory", "Python project served by uvicorn", cfg.APIDir); err != nil {
		return cfg, err
	}
	if cfg.APIPort, err = port("API port", cfg.APIPort); err != nil {
		return cfg, err
	}
	if cfg.WebDir, err = text("Web directory", "Node project with build and start scripts", cfg.WebDir); err != nil {
		return cfg, err
	}
	if cfg.WebPort, err = port("Web port", cfg.WebPort); err != nil {
		return cfg, err
	}

	detected := provisioner.DetectPackageManager(cfg.WebDir)
	opt, ok, err := ui.RunSelectPrompt("Package manager", "Used to install and run the web app", []ui.SelectOption{
		{Label: "auto", Value: "auto", Description: "detect from the lock file (" + string(detected) + " now)"},
		{Label: "npm", Value: string(provisioner.NPM)},
		{Label: "pnpm", Value: string(provisioner.PNPM)},
		{Label: "yarn", Value: string(provisioner.Yarn)},
		{Label: "bun", Value: string(provisioner.Bun)},
	})
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, errInitCancelled
	}
	cfg.NPM = opt.Value
	return cfg, nil
}
