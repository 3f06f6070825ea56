package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/guestsync/internal/config"
	"github.com/guestsync/internal/database"
)

// SyncCommand returns the CLI command for a one-shot synchronization pass
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run a single synchronization pass for a host",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "host",
				Usage:    "Host ID to synchronize",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the pass report as JSON",
			},
		},
		Action: runSync,
	}
}

func runSync(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	orch, _, db, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(c.Context, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	report := orch.SyncHost(c.Context, c.Int64("host"))

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Pass %s for host %d\n", report.PassID, report.HostID)
	fmt.Printf("  listings:      %d\n", report.ListingsFound)
	fmt.Printf("  conversations: %d\n", report.ConversationsFound)
	fmt.Printf("  messages:      %d\n", report.MessagesProcessed)
	fmt.Printf("  replies sent:  %d\n", report.RepliesSent)
	if len(report.Errors) > 0 {
		fmt.Printf("  errors:\n")
		for _, e := range report.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
	return nil
}
