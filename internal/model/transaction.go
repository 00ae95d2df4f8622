package model

import (
	"fmt"
	"time"
)

// Transaction is a single posted transaction on an account.
//
// Amount is signed integer minor units; the sign convention is fixed at
// ingestion and is never flipped by conflict resolution. ExternalID is the
// provider's transaction id when known; locally created transactions
// (manual entries, pending placeholders) have an empty ExternalID until the
// provider reports one.
//
// Category, Subcategory, Notes, and Verified are user annotations. They are
// owned locally and survive any remote-preferring conflict resolution.
type Transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Subcategory string    `json:"subcategory,omitempty"`
	Date        time.Time `json:"date"`
	Recurring   bool      `json:"recurring"`
	Merchant    string    `json:"merchant_name,omitempty"`
	Verified    bool      `json:"verified"`
	Notes       string    `json:"notes,omitempty"`
}

// Validate checks that the Transaction has valid field values.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}

// DayKey returns the transaction date truncated to the day, in UTC.
// Duplicate detection compares transactions on the same calendar day.
func (t *Transaction) DayKey() time.Time {
	return t.Date.UTC().Truncate(24 * time.Hour)
}

// SameFacts reports whether the financial facts of two transactions match:
// amount, description, and date. Annotations are deliberately excluded.
func (t *Transaction) SameFacts(other *Transaction) bool {
	return t.Amount == other.Amount &&
		t.Description == other.Description &&
		t.DayKey().Equal(other.DayKey())
}
