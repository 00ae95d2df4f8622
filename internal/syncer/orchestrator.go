// Package syncer coordinates per-account sync passes against the remote
// aggregation provider.
//
// The orchestrator decides which accounts are due (incremental sync), runs
// account passes with bounded concurrency, isolates per-account failures,
// and is the only component that drives sync status transitions. At most
// one pass is in flight per user: concurrent requests coalesce onto the
// running pass and share its summary.
package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/northapp/northsync/internal/conflict"
	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/notify"
	"github.com/northapp/northsync/internal/provider"
	"github.com/northapp/northsync/internal/retry"
	"github.com/northapp/northsync/internal/status"
	"github.com/northapp/northsync/internal/store"
)

// Config holds tunables for the orchestrator.
type Config struct {
	// StaleThreshold is the minimum age of an account's data before
	// incremental sync refreshes it (default 15 minutes).
	StaleThreshold time.Duration

	// Concurrency bounds simultaneous account syncs (default 4).
	Concurrency int

	// FetchOverlap is how far before last_updated transaction fetches
	// start, to catch late-posting transactions (default 7 days).
	FetchOverlap time.Duration

	// BalanceEpsilon is the tolerated difference, in minor units, between
	// the provider balance and the locally computed one. Zero means exact.
	BalanceEpsilon int64

	// Logger for orchestrator activity.
	Logger *log.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StaleThreshold: 15 * time.Minute,
		Concurrency:    4,
		FetchOverlap:   7 * 24 * time.Hour,
	}
}

// AccountSyncResult is the outcome of one account pass.
type AccountSyncResult struct {
	AccountID       string                 `json:"account_id"`
	Status          model.SyncStatus       `json:"status"`
	NewTransactions int                    `json:"new_transactions"`
	ResolvedCount   int                    `json:"resolved_conflicts"`
	Pending         []model.ConflictRecord `json:"pending_conflicts,omitempty"`
	Skipped         bool                   `json:"skipped"`
	Err             error                  `json:"-"`
	Duration        time.Duration          `json:"duration"`
}

// SyncSummary aggregates one user-level pass.
type SyncSummary struct {
	UserID          string              `json:"user_id"`
	Total           int                 `json:"total"`
	Synced          int                 `json:"synced"`
	Failed          int                 `json:"failed"`
	ConflictPending int                 `json:"conflict_pending"`
	Skipped         int                 `json:"skipped"`
	Results         []AccountSyncResult `json:"results"`
	StartedAt       time.Time           `json:"started_at"`
	Duration        time.Duration       `json:"duration"`
}

// flight is one in-progress user pass that concurrent callers wait on.
type flight struct {
	done    chan struct{}
	summary *SyncSummary
	err     error
}

// Orchestrator runs sync passes. All dependencies are required except the
// logger.
type Orchestrator struct {
	store      *store.Store
	provider   provider.Provider
	tracker    *status.Tracker
	detector   *conflict.Detector
	resolver   *conflict.Resolver
	policy     *retry.Policy
	dispatcher notify.Dispatcher
	cfg        Config
	logger     *log.Logger

	flightMu sync.Mutex
	flights  map[string]*flight
}

// New creates an Orchestrator.
func New(st *store.Store, pv provider.Provider, tr *status.Tracker, policy *retry.Policy, dispatcher notify.Dispatcher, cfg Config) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if pv == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if tr == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}
	if policy == nil {
		policy = retry.Default()
	}
	if dispatcher == nil {
		dispatcher = notify.NopDispatcher{}
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 15 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FetchOverlap <= 0 {
		cfg.FetchOverlap = 7 * 24 * time.Hour
	}

	return &Orchestrator{
		store:      st,
		provider:   pv,
		tracker:    tr,
		detector:   &conflict.Detector{BalanceEpsilon: cfg.BalanceEpsilon},
		resolver:   conflict.NewResolver(st, cfg.Logger),
		policy:     policy,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     cfg.Logger,
		flights:    make(map[string]*flight),
	}, nil
}

// Tracker exposes the status tracker for observers (UI, dashboard).
func (o *Orchestrator) Tracker() *status.Tracker {
	return o.tracker
}

// SyncAll syncs every active account of a user. If a pass for this user is
// already in flight, the call waits for it and returns its summary.
func (o *Orchestrator) SyncAll(ctx context.Context, userID string) (*SyncSummary, error) {
	return o.userPass(ctx, userID, false)
}

// IncrementalSync syncs only the user's accounts whose data is older than
// the staleness threshold. Fresh accounts are skipped, not failed.
// Coalesces onto an in-flight pass like SyncAll.
func (o *Orchestrator) IncrementalSync(ctx context.Context, userID string) (*SyncSummary, error) {
	return o.userPass(ctx, userID, true)
}

// userPass implements the single-flight discipline around runPass.
func (o *Orchestrator) userPass(ctx context.Context, userID string, incremental bool) (*SyncSummary, error) {
	o.flightMu.Lock()
	if f, ok := o.flights[userID]; ok {
		o.flightMu.Unlock()
		o.logf("Coalescing sync request for user %s onto in-flight pass", userID)
		select {
		case <-f.done:
			return f.summary, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	o.flights[userID] = f
	o.flightMu.Unlock()

	summary, err := o.runPass(ctx, userID, incremental)

	f.summary = summary
	f.err = err
	o.flightMu.Lock()
	delete(o.flights, userID)
	o.flightMu.Unlock()
	close(f.done)

	return summary, err
}

// runPass executes one user-level pass with bounded concurrency.
// Per-account failures are isolated; the pass itself only errors when the
// account list cannot be loaded.
func (o *Orchestrator) runPass(ctx context.Context, userID string, incremental bool) (*SyncSummary, error) {
	start := time.Now()

	accounts, err := o.store.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for user %s: %w", userID, err)
	}

	o.logf("Starting %s pass for user %s (%d accounts)", passKind(incremental), userID, len(accounts))

	summary := &SyncSummary{
		UserID:    userID,
		Total:     len(accounts),
		Results:   make([]AccountSyncResult, len(accounts)),
		StartedAt: start,
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	now := time.Now()
	for i := range accounts {
		acct := accounts[i]

		if incremental && !acct.Stale(now, o.cfg.StaleThreshold) {
			summary.Results[i] = AccountSyncResult{AccountID: acct.ID, Status: o.tracker.Current(acct.ID), Skipped: true}
			continue
		}

		// Cancellation stops scheduling new account syncs; accounts
		// already started run to completion (no partial writes).
		if ctx.Err() != nil {
			summary.Results[i] = AccountSyncResult{AccountID: acct.ID, Status: o.tracker.Current(acct.ID), Skipped: true}
			continue
		}

		i := i
		g.Go(func() error {
			summary.Results[i] = o.syncAccount(ctx, &acct)
			return nil
		})
	}

	_ = g.Wait()

	for _, res := range summary.Results {
		switch {
		case res.Skipped:
			summary.Skipped++
		case res.Status == model.StatusSuccess:
			summary.Synced++
		case res.Status == model.StatusConflictPending:
			summary.ConflictPending++
		case res.Status == model.StatusFailed:
			summary.Failed++
		}
	}
	summary.Duration = time.Since(start)

	o.logf("Pass complete for user %s: synced=%d failed=%d conflicts=%d skipped=%d in %v",
		userID, summary.Synced, summary.Failed, summary.ConflictPending, summary.Skipped,
		summary.Duration.Round(time.Millisecond))

	return summary, nil
}

// SyncAccount syncs a single account immediately, regardless of staleness.
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID string) (*AccountSyncResult, error) {
	acct, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	res := o.syncAccount(ctx, acct)
	return &res, nil
}

// Acknowledge returns a terminal account status to IDLE, typically after
// the UI has shown the outcome.
func (o *Orchestrator) Acknowledge(accountID, userID string) error {
	if !o.tracker.Current(accountID).Terminal() {
		return nil
	}
	return o.tracker.Transition(accountID, userID, model.StatusIdle)
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

func passKind(incremental bool) string {
	if incremental {
		return "incremental"
	}
	return "full"
}
