package cmd

import (
	"database/sql"
	"fmt"

	"github.com/guestsync/internal/config"
	"github.com/guestsync/internal/database"
	"github.com/guestsync/internal/delivery"
	"github.com/guestsync/internal/fetch"
	"github.com/guestsync/internal/platform"
	"github.com/guestsync/internal/pms"
	"github.com/guestsync/internal/reply"
	"github.com/guestsync/internal/resolver"
	"github.com/guestsync/internal/session"
	"github.com/guestsync/internal/store"
	"github.com/guestsync/internal/syncer"
)

// buildOrchestrator assembles the full synchronization stack from
// configuration: database, store, credential provider, reply generator,
// delivery channels and the orchestrator that drives them.
func buildOrchestrator(cfg *config.Config) (*syncer.Orchestrator, *store.Store, *sql.DB, error) {
	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st := store.New(db)

	generator, err := reply.NewLangchainGenerator(cfg.AI.Provider, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Temperature)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to build reply generator: %w", err)
	}

	var pmsClient *pms.Client
	var pmsSender delivery.PMSSender
	var pmsSource fetch.Source
	if cfg.PMS.Enabled {
		pmsClient = pms.NewClient(cfg.PMS.BaseURL, cfg.PMS.Token)
		pmsSender = pmsClient
		pmsSource = fetch.NewPMSSource(pmsClient)
	}

	browserOpts := session.BrowserOptions{
		Headless: cfg.Automation.Headless,
		ExecPath: cfg.Automation.ExecPath,
	}

	var uiSender delivery.UISender
	if cfg.Automation.Enabled {
		uiSender = platform.NewSender(browserOpts, cfg.Automation.NavigateTimeout, cfg.Automation.ElementTimeout)
	}

	router := delivery.NewRouter(st, pmsSender, cfg.PMS.Channel, uiSender)
	res := resolver.New(st, cfg.PMS.Enabled)
	creds := session.NewFileProvider(cfg.Platform.CredentialsDir)

	orch := syncer.New(st, creds, res, generator, router, pmsSource, syncer.Options{
		PlatformBaseURL: cfg.Platform.BaseURL,
		RequestTimeout:  cfg.Platform.RequestTimeout,
		RatePerSecond:   cfg.Platform.RatePerSecond,
		RateBurst:       cfg.Platform.RateBurst,
		BrowserOptions:  browserOpts,
		PMSChannel:      cfg.PMS.Channel,
	})

	return orch, st, db, nil
}
