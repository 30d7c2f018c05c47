package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/charmbracelet/log"

	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/repositories"
	"github.com/gamify-app/gamify/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var db *sql.DB
	var store backend.TokenStore
	if config.Database.Path != "" {
		if d, err := shared.NewDatabase(config.Database.Path); err != nil {
			logger.Warn("continuity store unavailable", "error", err)
		} else if err := shared.RunMigrations(d); err != nil {
			logger.Warn("continuity store migrations failed", "error", err)
			d.Close()
		} else {
			shared.ConfigureDatabase(d, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
			db = d
			store = repositories.NewSessionRepository(d)
		}
	}

	var client backend.Client
	var setSession setSessionFunc
	if config.Backend.URL != "" && config.Backend.APIKey != "" {
		if sc, err := backend.NewSupabaseClient(config.Backend.URL, config.Backend.APIKey, backend.SupabaseOpts{
			Store:  store,
			Logger: logger,
		}); err == nil {
			client = sc
			setSession = sc.SetSession
		} else {
			logger.Warn("backend unavailable", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		Client:     client,
		SetSession: setSession,
		DB:         db,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:    "gamify",
		Usage:   "Video game soundtrack playlists in your terminal",
		Version: "0.5.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	err := app.Run(context.Background(), os.Args)
	runner.Close()
	if err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
