// Package daemon provides the background sync daemon.
//
// The daemon:
//  1. Runs a recurring incremental sync for every known user
//  2. Watches the link spool directory for newly linked institutions
//  3. Ingests link files, discovers their accounts, and syncs them
//  4. Handles graceful shutdown (in-flight passes finish)
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/northapp/northsync/internal/store"
	"github.com/northapp/northsync/internal/syncer"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often the recurring incremental pass runs
	// (default 60 minutes).
	SyncInterval time.Duration

	// DebounceInterval is how long to wait before processing spool file
	// changes, batching rapid writes together (default 200ms).
	DebounceInterval time.Duration

	// SpoolDir is the directory the app drops link result files into.
	SpoolDir string

	// OnPass, if set, is called after each user's sync pass with its
	// summary. The dashboard hooks in here.
	OnPass func(userID string, summary *syncer.SyncSummary)

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     60 * time.Minute,
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates background syncing and link-spool ingestion.
type Daemon struct {
	store    *store.Store
	orch     *syncer.Orchestrator
	ingestor *Ingestor
	config   *Config

	watcher       *SpoolWatcher
	changeQueue   map[string]time.Time // path -> queued at
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon. ingestor may be nil when no spool is configured.
func New(st *store.Store, orch *syncer.Orchestrator, ingestor *Ingestor, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 60 * time.Minute
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:       st,
		orch:        orch,
		ingestor:    ingestor,
		config:      config,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon performs an initial incremental pass, starts watching the
// link spool (if configured), and then re-syncs on every interval tick.
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Ingest anything already sitting in the spool before the first pass.
	if d.config.SpoolDir != "" {
		if err := d.drainSpool(); err != nil {
			return fmt.Errorf("initial spool drain failed: %w", err)
		}

		watcher, err := NewSpoolWatcher(d.config.SpoolDir)
		if err != nil {
			return fmt.Errorf("failed to watch spool: %w", err)
		}
		d.watcher = watcher

		d.wg.Add(2)
		go d.watchSpoolEvents()
		go d.processChangeQueue()

		d.config.Logger.Printf("Watching link spool: %s", d.config.SpoolDir)
	}

	d.syncAllUsers()

	d.wg.Add(1)
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. New work stops being scheduled;
// in-flight account syncs run to completion.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing spool watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// syncLoop runs the recurring incremental pass.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.syncAllUsers()
		}
	}
}

// syncAllUsers runs an incremental pass for every known user. The
// orchestrator's single-flight discipline makes overlapping triggers
// harmless.
func (d *Daemon) syncAllUsers() {
	users, err := d.store.ListUserIDs(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Error listing users: %v", err)
		return
	}

	for _, userID := range users {
		if d.ctx.Err() != nil {
			return
		}
		summary, err := d.orch.IncrementalSync(d.ctx, userID)
		if err != nil {
			d.config.Logger.Printf("Error syncing user %s: %v", userID, err)
			continue
		}
		d.config.Logger.Printf("User %s: synced=%d failed=%d conflicts=%d skipped=%d",
			userID, summary.Synced, summary.Failed, summary.ConflictPending, summary.Skipped)
		if d.config.OnPass != nil {
			d.config.OnPass(userID, summary)
		}
	}
}

// watchSpoolEvents queues spool file events for debounced processing.
func (d *Daemon) watchSpoolEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if event.Op == OpDelete {
				continue
			}
			d.config.Logger.Printf("Spool event: %s %s", event.Op, event.Path)
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a spool file to the debounce queue.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue ingests spool files once they have settled.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges ingests queued files that are past the debounce
// window.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	for _, path := range ready {
		if err := d.ingestLinkFile(d.ctx, path); err != nil {
			d.config.Logger.Printf("Error ingesting link file %s: %v", path, err)
		}
	}
}

// drainSpool ingests every link file already present in the spool.
// Individual file failures are logged and do not stop the drain.
func (d *Daemon) drainSpool() error {
	entries, err := os.ReadDir(d.config.SpoolDir)
	if os.IsNotExist(err) {
		return os.MkdirAll(d.config.SpoolDir, 0755)
	}
	if err != nil {
		return fmt.Errorf("failed to read spool directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(d.config.SpoolDir, entry.Name())
		if err := d.ingestLinkFile(d.ctx, path); err != nil {
			d.config.Logger.Printf("WARNING: failed to ingest %s: %v", entry.Name(), err)
		}
	}
	return nil
}
