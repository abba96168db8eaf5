package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fwojciec/chorus"
	chorushttp "github.com/fwojciec/chorus/http"
	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	var match string
	var remote bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if match != "" && !doublestar.ValidatePattern(match) {
				return fmt.Errorf("invalid pattern %q: %w", match, chorus.ErrValidation)
			}
			if remote {
				names, err := chorushttp.NewClient(a.cfg.Client.URL).Models(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range filterNames(names, match) {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
						return err
					}
				}
				return nil
			}
			return writeBackends(cmd.OutOrStdout(), a.cfg.Backends, match)
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "Only list names matching this glob pattern")
	cmd.Flags().BoolVar(&remote, "remote", false, "List the models the server offers instead of the local config")

	return cmd
}

func writeBackends(w io.Writer, backends []chorus.BackendConfig, match string) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("NAME", "PROVIDER", "MODEL", "API KEY")
	for _, b := range backends {
		if !matches(match, b.Name) {
			continue
		}
		key := "missing"
		if b.APIKey != "" {
			key = "set"
		}
		model := b.Model
		if model == "" {
			model = "(default)"
		}
		t.Row(b.Name, b.Provider, model, key)
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(t.Render(), "\n "))
	return err
}

func filterNames(names []string, match string) []string {
	var out []string
	for _, n := range names {
		if matches(match, n) {
			out = append(out, n)
		}
	}
	return out
}

func matches(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// expandModels turns the requested names and patterns into the channel ids a
// session should expect, in the order the server will resolve them. Literal
// names the server does not list are kept so they surface as unknown; globs
// that match nothing are dropped.
func expandModels(patterns, available []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, p := range patterns {
		matched := false
		for _, name := range available {
			if matches(p, name) {
				add(name)
				matched = true
			}
		}
		if !matched && !isGlob(p) {
			add(p)
		}
	}
	return out
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, `*?[{\`)
}
