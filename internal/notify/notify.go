// Package notify defines the boundary to the notification/UI layer.
//
// The sync core reports terminal outcomes here and issues no user-facing
// text itself; wording, localization, and delivery belong to the app.
package notify

import (
	"log"

	"github.com/northapp/northsync/internal/model"
)

// Dispatcher receives terminal sync outcomes per account.
type Dispatcher interface {
	// SyncSucceeded is called after an account pass commits.
	SyncSucceeded(accountID string, newTransactions int)

	// SyncFailed is called when an account pass gives up. retryable tells
	// the UI whether a retry affordance makes sense or the user must
	// re-link the institution.
	SyncFailed(accountID string, err error, retryable bool)

	// ConflictPending is called when a pass leaves conflicts for manual
	// review. The UI surfaces the conflicting fields for user choice.
	ConflictPending(accountID string, conflicts []model.ConflictRecord)
}

// LogDispatcher is the default Dispatcher: it records outcomes to a
// logger. Useful for the CLI and as a stand-in until the app wires its
// push pipeline.
type LogDispatcher struct {
	Logger *log.Logger
}

func (d *LogDispatcher) SyncSucceeded(accountID string, newTransactions int) {
	if d.Logger != nil {
		d.Logger.Printf("Account %s synced (%d new transactions)", accountID, newTransactions)
	}
}

func (d *LogDispatcher) SyncFailed(accountID string, err error, retryable bool) {
	if d.Logger != nil {
		d.Logger.Printf("Account %s sync failed (retryable=%v): %v", accountID, retryable, err)
	}
}

func (d *LogDispatcher) ConflictPending(accountID string, conflicts []model.ConflictRecord) {
	if d.Logger != nil {
		d.Logger.Printf("Account %s has %d conflict(s) pending review", accountID, len(conflicts))
	}
}

// NopDispatcher discards all outcomes.
type NopDispatcher struct{}

func (NopDispatcher) SyncSucceeded(string, int)                      {}
func (NopDispatcher) SyncFailed(string, error, bool)                 {}
func (NopDispatcher) ConflictPending(string, []model.ConflictRecord) {}
