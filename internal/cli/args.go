// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"flag"
	"fmt"
	"strings"
)

// Version information (set at build time by main).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// Args holds the parsed command line arguments.
type Args struct {
	// ConfigPath overrides the default config file location.
	ConfigPath string

	// Server overrides the configured server base URL.
	Server string

	// NoStream forces the one-shot answer path for this invocation.
	NoStream bool

	// Watch enables config hot reload for the session.
	Watch bool

	// ShowVersion prints version information and exits.
	ShowVersion bool

	// Query is the one-shot query assembled from positional arguments.
	// Empty means start the interactive REPL.
	Query string
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Args, error) {
	var a Args

	fs := flag.NewFlagSet("lorebook", flag.ContinueOnError)
	fs.StringVar(&a.ConfigPath, "config", "", "path to config file (default ~/.lorebook/config.toml)")
	fs.StringVar(&a.Server, "server", "", "server base URL (overrides config)")
	fs.BoolVar(&a.NoStream, "no-stream", false, "disable streaming; wait for the full answer")
	fs.BoolVar(&a.Watch, "watch", false, "reload config when the file changes")
	fs.BoolVar(&a.ShowVersion, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: lorebook [flags] [query...]\n\n")
		fmt.Fprintf(fs.Output(), "With a query, asks once and prints the answer.\n")
		fmt.Fprintf(fs.Output(), "Without a query, starts the interactive REPL.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv); err != nil {
		return a, err
	}

	a.Query = strings.TrimSpace(strings.Join(fs.Args(), " "))
	return a, nil
}
