// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/contact-harvester/internal/config"
)

type rootOptions struct {
	configFile string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Collects business phone numbers from public directory sites.",
		Long: `harvester fans a keyword and location query out to a set of directory
collectors, normalizes the phone numbers they return and keeps one record per
number. Run "harvester serve" for the HTTP API or "harvester extract" for a
single session from the command line.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default searches ./harvester.yaml, /etc/harvester, $HOME/.harvester)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newPlatformsCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
