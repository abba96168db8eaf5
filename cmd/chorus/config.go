package main

import (
	"github.com/fwojciec/chorus/toml"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with API keys redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return toml.Encode(cmd.OutOrStdout(), a.cfg)
		},
	}
}
