package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/guestsync/internal/api"
	"github.com/guestsync/internal/config"
	"github.com/guestsync/internal/database"
	"github.com/guestsync/internal/jobqueue"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the GuestSync API server and scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	orch, st, db, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(c.Context, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.Scheduler.Enabled {
		queue, err := jobqueue.NewJobQueue(cfg.Database.URL, orch, cfg.Scheduler.HostIDs, cfg.Scheduler.Interval)
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		if err := queue.Start(c.Context); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer queue.Stop(context.Background())
		fmt.Printf("Scheduler running for %d host(s)\n", len(cfg.Scheduler.HostIDs))
	}

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	fmt.Printf("Starting GuestSync API server on port %d...\n", port)
	server := api.NewServer(port, st, orch)
	return server.Start()
}
