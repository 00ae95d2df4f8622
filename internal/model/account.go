// Package model defines the core entities of the North sync engine:
// linked items, accounts, transactions, sync statuses, and conflict records.
//
// All monetary values are integer minor units (cents). Floating point is
// never used for money anywhere in this module.
package model

import (
	"fmt"
	"time"
)

// Item represents a linked institution credential produced by the
// account-linking flow (Plaid Link style token exchange).
//
// Link results arrive as JSON files dropped into a spool directory by the
// mobile app; the daemon ingests them and stores an Item per institution
// link. Accounts hang off an Item.
type Item struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	InstitutionID   string    `json:"institution_id"`
	InstitutionName string    `json:"institution_name,omitempty"`
	AccessToken     string    `json:"access_token"`
	LinkedAt        time.Time `json:"linked_at"`
	Active          bool      `json:"active"`
}

// Validate checks that the Item has the fields required for syncing.
func (i *Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if i.InstitutionID == "" {
		return fmt.Errorf("institution_id is required")
	}
	if i.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	return nil
}

// Account is a financial account at an institution, as known locally.
//
// Balance and AvailableBalance are integer minor units. Exactly one active
// account may exist per (user, institution, external id) tuple; the store
// enforces this with a unique index.
type Account struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ItemID           string    `json:"item_id"`
	InstitutionID    string    `json:"institution_id"`
	InstitutionName  string    `json:"institution_name,omitempty"`
	ExternalID       string    `json:"external_id"`
	Type             string    `json:"type"` // depository, credit, loan, investment
	Balance          int64     `json:"balance"`
	AvailableBalance *int64    `json:"available_balance,omitempty"`
	Currency         string    `json:"currency"`
	LastUpdated      time.Time `json:"last_updated"`
	Active           bool      `json:"active"`
}

// Validate checks that the Account has valid field values.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if a.InstitutionID == "" {
		return fmt.Errorf("institution_id is required")
	}
	if a.ExternalID == "" {
		return fmt.Errorf("external_id is required")
	}
	if a.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if len(a.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code (got %q)", a.Currency)
	}
	return nil
}

// Stale reports whether the account's data is older than threshold.
// Incremental sync uses this to skip recently refreshed accounts.
func (a *Account) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(a.LastUpdated) >= threshold
}
