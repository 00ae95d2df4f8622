package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConflictType classifies a discrepancy between local and remote records.
type ConflictType string

const (
	ConflictDuplicateTransaction ConflictType = "DUPLICATE_TRANSACTION"
	ConflictModifiedTransaction  ConflictType = "MODIFIED_TRANSACTION"
	ConflictBalanceMismatch      ConflictType = "BALANCE_MISMATCH"
	ConflictAccountStatusChange  ConflictType = "ACCOUNT_STATUS_CHANGE"
)

// ResolvedOutcome names how a conflict was settled.
type ResolvedOutcome string

const (
	OutcomeUnresolved     ResolvedOutcome = ""
	OutcomeRemoteApplied  ResolvedOutcome = "REMOTE_APPLIED"
	OutcomeLocalPreserved ResolvedOutcome = "LOCAL_PRESERVED"
	OutcomeMerged         ResolvedOutcome = "MERGED"
	OutcomeManualReview   ResolvedOutcome = "MANUAL_REVIEW"
)

// ConflictRecord captures one detected discrepancy together with snapshots
// of both sides. Records are immutable once resolved: re-detecting a
// conflict for the same entities produces a new record that supersedes the
// old one, never an in-place edit.
//
// LocalSnapshot and RemoteSnapshot hold the JSON encoding of the affected
// entity as each side saw it at detection time, so manual review can show
// the exact fields in disagreement.
type ConflictRecord struct {
	ID                   string          `json:"id"`
	Type                 ConflictType    `json:"type"`
	AccountID            string          `json:"account_id"`
	LocalTransactionID   string          `json:"local_transaction_id,omitempty"`
	RemoteExternalID     string          `json:"remote_external_id,omitempty"`
	LocalSnapshot        json.RawMessage `json:"local_snapshot,omitempty"`
	RemoteSnapshot       json.RawMessage `json:"remote_snapshot,omitempty"`
	Outcome              ResolvedOutcome `json:"outcome"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	Resolved             bool            `json:"resolved"`
	DetectedAt           time.Time       `json:"detected_at"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty"`
}

// Validate checks the ConflictRecord invariants.
func (c *ConflictRecord) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	switch c.Type {
	case ConflictDuplicateTransaction, ConflictModifiedTransaction,
		ConflictBalanceMismatch, ConflictAccountStatusChange:
	default:
		return fmt.Errorf("unknown conflict type %q", c.Type)
	}
	if c.Resolved && c.Outcome == OutcomeUnresolved {
		return fmt.Errorf("resolved conflict must carry an outcome")
	}
	if c.DetectedAt.IsZero() {
		return fmt.Errorf("detected_at is required")
	}
	return nil
}

// Snapshot marshals v for storage in a conflict record. Marshal failures
// are reported as a JSON error string so a record is never silently empty.
func Snapshot(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"snapshot_error": err.Error()})
	}
	return data
}
