package model

import (
	"testing"
	"time"
)

func TestTransactionDayKey(t *testing.T) {
	nyc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// 23:30 in New York is already the next day in UTC.
	late := Transaction{Date: time.Date(2026, 3, 14, 23, 30, 0, 0, nyc)}
	if got, want := late.DayKey(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("DayKey = %v, want %v", got, want)
	}

	morning := Transaction{Date: time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)}
	noon := Transaction{Date: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	if !morning.DayKey().Equal(noon.DayKey()) {
		t.Error("same UTC day must share a DayKey")
	}
}

func TestTransactionSameFacts(t *testing.T) {
	base := Transaction{
		Amount:      -1250,
		Description: "COFFEE SHOP",
		Date:        time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC),
		Category:    "Dining",
		Notes:       "with Sam",
	}

	annotated := base
	annotated.Category = "Groceries"
	annotated.Notes = ""
	annotated.Verified = true
	annotated.Date = base.Date.Add(3 * time.Hour) // same day
	if !base.SameFacts(&annotated) {
		t.Error("annotation-only differences must not change the facts")
	}

	nextDay := base
	nextDay.Date = base.Date.Add(24 * time.Hour)
	if base.SameFacts(&nextDay) {
		t.Error("different days are different facts")
	}

	amount := base
	amount.Amount = -1300
	if base.SameFacts(&amount) {
		t.Error("different amounts are different facts")
	}
}

func TestAccountStale(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	threshold := 15 * time.Minute

	tests := []struct {
		name        string
		lastUpdated time.Time
		want        bool
	}{
		{"never synced", time.Time{}, true},
		{"just synced", now.Add(-time.Minute), false},
		{"exactly at threshold", now.Add(-threshold), true},
		{"past threshold", now.Add(-time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Account{LastUpdated: tt.lastUpdated}
			if got := a.Stale(now, threshold); got != tt.want {
				t.Errorf("Stale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountValidate(t *testing.T) {
	valid := Account{
		ID:            "acc-1",
		UserID:        "user-1",
		ItemID:        "item-1",
		InstitutionID: "ins_1",
		ExternalID:    "ext-1",
		Type:          "depository",
		Currency:      "USD",
	}

	if err := valid.Validate(); err != nil {
		t.Errorf("valid account: %v", err)
	}

	badCurrency := valid
	badCurrency.Currency = "us"
	if err := badCurrency.Validate(); err == nil {
		t.Error("2-letter currency: want error, got nil")
	}

	noUser := valid
	noUser.UserID = ""
	if err := noUser.Validate(); err == nil {
		t.Error("missing user id: want error, got nil")
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to SyncStatus
		ok       bool
	}{
		{StatusIdle, StatusSyncing, true},
		{StatusIdle, StatusSuccess, false},
		{StatusIdle, StatusFailed, false},
		{StatusSyncing, StatusSuccess, true},
		{StatusSyncing, StatusFailed, true},
		{StatusSyncing, StatusConflictPending, true},
		{StatusSyncing, StatusIdle, false},
		{StatusSyncing, StatusSyncing, false},
		{StatusSuccess, StatusIdle, true},
		{StatusSuccess, StatusSyncing, true},
		{StatusFailed, StatusSyncing, true},
		{StatusConflictPending, StatusIdle, true},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestStatusRankOrdering(t *testing.T) {
	order := []SyncStatus{StatusIdle, StatusSuccess, StatusSyncing, StatusConflictPending, StatusFailed}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should outrank %s", order[i], order[i-1])
		}
	}
}
