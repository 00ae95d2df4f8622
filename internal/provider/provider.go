// Package provider defines the remote aggregation boundary: the interface
// the sync engine pulls account balances and transactions through, the
// error taxonomy it classifies failures with, and an HTTP client for a
// Plaid-style aggregation API.
package provider

import (
	"context"
	"math"
	"time"
)

// Account is an account as reported by the aggregation provider.
// Balances are provider-native major units (e.g. dollars); convert with
// MinorUnits before they touch any stored entity.
type Account struct {
	ExternalID string   `json:"account_id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Balance    float64  `json:"balance"`
	Available  *float64 `json:"available,omitempty"`
	Currency   string   `json:"iso_currency_code"`
	Closed     bool     `json:"closed"`
}

// Transaction is a transaction as reported by the provider.
type Transaction struct {
	ExternalID        string    `json:"transaction_id"`
	AccountExternalID string    `json:"account_id"`
	Amount            float64   `json:"amount"`
	Date              time.Time `json:"date"`
	Description       string    `json:"description"`
	Merchant          string    `json:"merchant_name,omitempty"`
	Category          string    `json:"category,omitempty"`
	Pending           bool      `json:"pending"`
}

// Institution is provider metadata about a financial institution.
type Institution struct {
	ID   string `json:"institution_id" toml:"id"`
	Name string `json:"name" toml:"name"`
	URL  string `json:"url,omitempty" toml:"url"`
}

// Provider supplies remote account and transaction data for a linked item.
//
// Implementations must return classified errors (see Error) so RetryPolicy
// can decide eligibility without inspecting transport details.
type Provider interface {
	// Accounts returns all accounts for the item identified by accessToken.
	Accounts(ctx context.Context, accessToken string) ([]Account, error)

	// Transactions returns transactions for one account since the given
	// time. A zero since returns the provider's full history window.
	Transactions(ctx context.Context, accessToken, accountExternalID string, since time.Time) ([]Transaction, error)

	// Institution resolves institution metadata by provider id.
	Institution(ctx context.Context, institutionID string) (Institution, error)
}

// MinorUnits converts a provider-native major-unit amount to integer minor
// units. This is the single place floating point touches money; everything
// past this boundary is int64 cents.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
