package model

import (
	"fmt"
	"time"
)

// SyncStatus is the per-account sync state machine.
//
// Valid transitions:
//
//	IDLE -> SYNCING
//	SYNCING -> SUCCESS | FAILED | CONFLICT_PENDING
//	SUCCESS | FAILED | CONFLICT_PENDING -> IDLE (acknowledged / next cycle)
//	SUCCESS | FAILED | CONFLICT_PENDING -> SYNCING (next pass starts directly)
//
// There is no shortcut from IDLE to a terminal state; every pass goes
// through SYNCING.
type SyncStatus string

const (
	StatusIdle            SyncStatus = "IDLE"
	StatusSyncing         SyncStatus = "SYNCING"
	StatusSuccess         SyncStatus = "SUCCESS"
	StatusFailed          SyncStatus = "FAILED"
	StatusConflictPending SyncStatus = "CONFLICT_PENDING"
)

// Terminal reports whether the status ends a sync pass.
func (s SyncStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusConflictPending:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine transition.
func (s SyncStatus) CanTransitionTo(next SyncStatus) bool {
	switch s {
	case StatusIdle:
		return next == StatusSyncing
	case StatusSyncing:
		return next.Terminal()
	case StatusSuccess, StatusFailed, StatusConflictPending:
		return next == StatusIdle || next == StatusSyncing
	}
	return false
}

// Rank orders statuses by severity for user-level aggregation.
// Higher rank wins when summarizing across a user's accounts.
func (s SyncStatus) Rank() int {
	switch s {
	case StatusFailed:
		return 4
	case StatusConflictPending:
		return 3
	case StatusSyncing:
		return 2
	case StatusSuccess:
		return 1
	default:
		return 0
	}
}

// Transition records a single status change for an account.
type Transition struct {
	AccountID string     `json:"account_id"`
	UserID    string     `json:"user_id"`
	From      SyncStatus `json:"from"`
	To        SyncStatus `json:"to"`
	At        time.Time  `json:"at"`
}

func (t Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.AccountID, t.From, t.To)
}
