package main

import (
	"fmt"
	"log"
	"os"

	"github.com/northapp/northsync/internal/config"
	"github.com/northapp/northsync/internal/notify"
	"github.com/northapp/northsync/internal/provider"
	"github.com/northapp/northsync/internal/retry"
	"github.com/northapp/northsync/internal/status"
	"github.com/northapp/northsync/internal/store"
	"github.com/northapp/northsync/internal/syncer"
)

// loadConfig reads configuration, exiting on failure. CLI commands treat a
// broken config file as fatal.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the sqlite store at the configured path.
func openStore(cfg config.Config) *store.Store {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

// newProvider builds the bank provider client from config.
func newProvider(cfg config.Config, logger *log.Logger) provider.Provider {
	client, err := provider.NewClient(provider.ClientConfig{
		BaseURL:            cfg.Provider.BaseURL,
		ClientID:           cfg.Provider.ClientID,
		Secret:             cfg.Provider.Secret,
		RequestsPerSecond:  cfg.Provider.RequestsPerSecond,
		Timeout:            cfg.Provider.Timeout,
		InstitutionCatalog: cfg.Provider.CatalogPath,
		Logger:             logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating provider client: %v\n", err)
		os.Exit(1)
	}
	return client
}

// newOrchestrator wires the full sync stack from config.
func newOrchestrator(cfg config.Config, st *store.Store, pv provider.Provider, tracker *status.Tracker, dispatcher notify.Dispatcher, logger *log.Logger) *syncer.Orchestrator {
	policy := &retry.Policy{
		Base:           cfg.Retry.Base,
		RateLimitBase:  cfg.Retry.RateLimitBase,
		MaxDelay:       cfg.Retry.MaxDelay,
		MaxAttempts:    cfg.Retry.MaxAttempts,
		JitterFraction: cfg.Retry.JitterFraction,
	}

	orch, err := syncer.New(st, pv, tracker, policy, dispatcher, syncer.Config{
		StaleThreshold: cfg.Sync.StaleThreshold,
		Concurrency:    cfg.Sync.Concurrency,
		FetchOverlap:   cfg.Sync.FetchOverlap,
		BalanceEpsilon: cfg.Sync.BalanceEpsilon,
		Logger:         logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating orchestrator: %v\n", err)
		os.Exit(1)
	}
	return orch
}
