package main

import (
	"io"

	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/toml"
	"github.com/spf13/cobra"
)

// app holds what every subcommand shares: the loaded configuration and the
// streams it reads prompts from.
type app struct {
	configPath string
	serverURL  string
	stdin      io.Reader

	cfg chorus.Config
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	a := &app{stdin: stdin}

	rootCmd := &cobra.Command{
		Use:           "chorus",
		Short:         "Fan one prompt out to many models and stream the answers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/chorus/config.toml)")
	rootCmd.PersistentFlags().StringVar(&a.serverURL, "server", "", "Fan-out server URL (overrides config and "+toml.EnvServer+")")

	rootCmd.AddCommand(
		newServeCmd(a),
		newAskCmd(a),
		newModelsCmd(a),
		newConfigCmd(a),
	)

	return rootCmd
}

func (a *app) load() error {
	cfg, err := toml.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.Client.URL = a.serverURL
	}
	a.cfg = cfg
	return nil
}
