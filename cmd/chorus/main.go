// Command chorus fans one prompt out to many language models and streams the
// answers back side by side.
//
// Usage:
//
//	chorus serve [--addr :8088]
//	chorus ask "prompt" [-m model] [-m 'claude-*'] [--plain | --json] [--save result.json]
//	chorus models [--match 'gemini-*'] [--remote]
//	chorus config
//
// Configuration is read from $XDG_CONFIG_HOME/chorus/config.toml, or the file
// named by --config. ANTHROPIC_API_KEY, GEMINI_API_KEY and CHORUS_SERVER
// override it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chorus: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(os.Stdin).ExecuteContext(ctx)
}
