/*
Command custodyd serves the custody coordinator over HTTP.

	custodyd init --config custodyd.toml
	custodyd start --config custodyd.toml
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand returns the custodyd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "custodyd",
		Short:         "Multi-signature custody coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "configuration file (TOML, YAML or JSON)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}
