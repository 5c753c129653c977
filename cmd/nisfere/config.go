package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nisfere/internal/config"
)

var configOpts struct {
	force bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create configuration files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configPathsRun(cmd, args)
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print the configuration and data file locations",
	Args:  cobra.NoArgs,
	RunE:  configPathsRun,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write default config files",
	Long: `Write default config.toml and nisfered.toml files.

Existing files are kept unless --force is given. nisfered reloads
nisfered.toml automatically when it changes.`,
	Args: cobra.NoArgs,
	RunE: configInitRun,
}

func init() {
	configInitCmd.Flags().BoolVar(&configOpts.force, "force", false,
		"Overwrite existing files")

	configCmd.AddCommand(configPathsCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func configPathsRun(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cli config:    %s\n", config.ConfigPath())
	fmt.Fprintf(out, "daemon config: %s\n", config.DaemonConfigPath())
	fmt.Fprintf(out, "cache:         %s\n", cachePath())
	fmt.Fprintf(out, "state:         %s\n", config.StatePath())
	return nil
}

func configInitRun(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cliPath := config.ConfigPath()
	if configOpts.force || !exists(cliPath) {
		if err := config.DefaultConfig().Save(cliPath); err != nil {
			return fmt.Errorf("failed to write %s: %w", cliPath, err)
		}
		fmt.Fprintf(out, "wrote %s\n", cliPath)
	} else {
		fmt.Fprintf(out, "kept %s\n", cliPath)
	}

	daemonPath := config.DaemonConfigPath()
	if configOpts.force || !exists(daemonPath) {
		if err := config.SaveDaemonConfig(daemonPath, config.DefaultDaemonConfig()); err != nil {
			return fmt.Errorf("failed to write %s: %w", daemonPath, err)
		}
		fmt.Fprintf(out, "wrote %s\n", daemonPath)
	} else {
		fmt.Fprintf(out, "kept %s\n", daemonPath)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
