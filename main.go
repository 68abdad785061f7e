// lorebook - A conversational client for your notes knowledge base.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jeranaias/lorebook-cli/internal/api"
	"github.com/jeranaias/lorebook-cli/internal/cli"
	"github.com/jeranaias/lorebook-cli/internal/config"
	"github.com/jeranaias/lorebook-cli/internal/engine"
	"github.com/jeranaias/lorebook-cli/internal/guard"
	"github.com/jeranaias/lorebook-cli/internal/history"
	"github.com/jeranaias/lorebook-cli/internal/logging"
	"github.com/jeranaias/lorebook-cli/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env in the working directory can provide LOREBOOK_* variables.
	_ = godotenv.Load()

	args, err := cli.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	if args.ShowVersion {
		fmt.Printf("lorebook %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return nil
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	config.SetGlobal(cfg)

	logPath, err := cfg.LogFilePath()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log, logPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var cache *history.Cache
	if cfg.History.Enabled {
		historyPath, err := cfg.HistoryPath()
		if err != nil {
			return err
		}
		cache, err = history.Open(historyPath)
		if err != nil {
			// The cache is an offline convenience; run without it.
			logger.Warn("history cache unavailable", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	client := api.NewClient(cfg.Server.BaseURL, cfg.Server.APIToken).
		WithTimeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second).
		WithLogger(logger)

	st := store.New()
	fetchGuard := guard.New(guard.DefaultCooldown)

	settings := &cli.SettingsState{}
	if args.NoStream {
		settings.SetStreaming(false)
	}

	eng := engine.New(st, client, fetchGuard,
		func() engine.Settings { return settings.Resolve(config.Global()) },
		engine.WithLogger(logger),
		engine.WithHistory(cache),
	)

	if args.Watch {
		watchPath := args.ConfigPath
		if watchPath == "" {
			watchPath, err = config.ConfigPath()
			if err != nil {
				return err
			}
		}
		watcher, err := config.NewWatcher(watchPath, nil, logger)
		if err != nil {
			return err
		}
		if err := watcher.Watch(); err != nil {
			return err
		}
		defer watcher.Close()
	}

	app := &cli.App{
		Engine:   eng,
		Store:    st,
		Client:   client,
		History:  cache,
		Settings: settings,
		Logger:   logger,
	}

	if args.Query != "" {
		return cli.RunAsk(app, args.Query)
	}
	return cli.RunREPL(app)
}

// loadConfig resolves the config from the explicit path or the default
// location, then applies command line overrides.
func loadConfig(args cli.Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if args.Server != "" {
		cfg.Server.BaseURL = args.Server
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
