package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/northapp/northsync/internal/model"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedAccount(t *testing.T, st *Store, userID, accountID string) {
	t.Helper()
	ctx := context.Background()

	item := &model.Item{
		ID: "item-" + accountID, UserID: userID, InstitutionID: "ins-1",
		AccessToken: "tok", LinkedAt: time.Now(), Active: true,
	}
	if err := st.UpsertItem(ctx, item); err != nil {
		t.Fatalf("Failed to insert item: %v", err)
	}

	acct := &model.Account{
		ID: accountID, UserID: userID, ItemID: item.ID, InstitutionID: "ins-1",
		ExternalID: "ext-" + accountID, Type: "depository",
		Currency: "USD", LastUpdated: time.Now(), Active: true,
	}
	if err := st.UpsertAccount(ctx, acct); err != nil {
		t.Fatalf("Failed to insert account: %v", err)
	}
}

func TestOpenMigratesToCurrentVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	version, err := st.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
	_ = st.Close()

	// Reopening an already-migrated database is a no-op.
	st, err = Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer st.Close()

	version, err = st.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("Failed to read schema version after reopen: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version after reopen = %d, want %d", version, len(migrations))
	}
}

func TestUpsertAccountUpdatesFacts(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAccount(t, st, "user-1", "acc-1")

	acct, err := st.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}

	acct.Balance = 12345
	acct.InstitutionName = "Renamed Bank"
	if err := st.UpsertAccount(ctx, acct); err != nil {
		t.Fatalf("UpsertAccount update: %v", err)
	}

	got, err := st.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount after update: %v", err)
	}
	if got.Balance != 12345 {
		t.Errorf("balance = %d, want 12345", got.Balance)
	}
	if got.InstitutionName != "Renamed Bank" {
		t.Errorf("institution name = %q, want Renamed Bank", got.InstitutionName)
	}
}

func TestApplySyncResult(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAccount(t, st, "user-1", "acc-1")

	available := int64(900)
	when := time.Now().Add(-time.Minute)
	if err := st.ApplySyncResult(ctx, "acc-1", 1000, &available, when); err != nil {
		t.Fatalf("ApplySyncResult: %v", err)
	}

	got, err := st.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance != 1000 {
		t.Errorf("balance = %d, want 1000", got.Balance)
	}
	if got.AvailableBalance == nil || *got.AvailableBalance != 900 {
		t.Errorf("available balance = %v, want 900", got.AvailableBalance)
	}
	if got.LastUpdated.Unix() != when.Unix() {
		t.Errorf("last updated = %v, want %v", got.LastUpdated, when)
	}

	// Unknown accounts are an error, not a silent no-op.
	if err := st.ApplySyncResult(ctx, "no-such-account", 1, nil, time.Now()); err == nil {
		t.Error("ApplySyncResult on unknown account: want error, got nil")
	}
}

func TestGetAccountNotFound(t *testing.T) {
	st := setupStore(t)

	_, err := st.GetAccount(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListUserIDs(t *testing.T) {
	st := setupStore(t)
	seedAccount(t, st, "user-1", "acc-1")
	seedAccount(t, st, "user-2", "acc-2")
	seedAccount(t, st, "user-2", "acc-3")

	users, err := st.ListUserIDs(context.Background())
	if err != nil {
		t.Fatalf("ListUserIDs: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("got %d users, want 2 (%v)", len(users), users)
	}
}

func TestUpsertRemoteTransactionPreservesAnnotations(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAccount(t, st, "user-1", "acc-1")

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	remote := &model.Transaction{
		ID: "txn-1", AccountID: "acc-1", ExternalID: "ext123",
		Amount: -450, Description: "COFFEE SHOP", Date: date, Merchant: "Coffee Shop",
	}
	if err := st.UpsertRemoteTransaction(ctx, remote); err != nil {
		t.Fatalf("UpsertRemoteTransaction insert: %v", err)
	}

	// User annotates locally.
	if err := st.UpdateAnnotations(ctx, "txn-1", "Date Night", "Coffee", "with Sam", true); err != nil {
		t.Fatalf("UpdateAnnotations: %v", err)
	}

	// Provider re-reports the transaction with corrected facts.
	update := &model.Transaction{
		ID: "txn-ignored", AccountID: "acc-1", ExternalID: "ext123",
		Amount: -500, Description: "COFFEE SHOP #2", Date: date, Merchant: "Coffee Shop",
	}
	if err := st.UpsertRemoteTransaction(ctx, update); err != nil {
		t.Fatalf("UpsertRemoteTransaction update: %v", err)
	}

	got, err := st.GetTransaction(ctx, "txn-1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Amount != -500 || got.Description != "COFFEE SHOP #2" {
		t.Errorf("facts not updated: amount=%d description=%q", got.Amount, got.Description)
	}
	if got.Category != "Date Night" || got.Subcategory != "Coffee" || got.Notes != "with Sam" || !got.Verified {
		t.Errorf("annotations lost on remote update: %+v", got)
	}
}

func TestLinkExternalID(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAccount(t, st, "user-1", "acc-1")

	tx := &model.Transaction{
		ID: "txn-1", AccountID: "acc-1", Amount: -450,
		Description: "manual entry", Date: time.Now(),
	}
	if err := st.UpsertTransaction(ctx, tx); err != nil {
		t.Fatalf("UpsertTransaction: %v", err)
	}

	if err := st.LinkExternalID(ctx, "txn-1", "ext123"); err != nil {
		t.Fatalf("LinkExternalID: %v", err)
	}
	got, err := st.GetTransaction(ctx, "txn-1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.ExternalID != "ext123" {
		t.Errorf("external id = %q, want ext123", got.ExternalID)
	}

	if err := st.LinkExternalID(ctx, "missing", "ext124"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LinkExternalID(missing) = %v, want ErrNotFound", err)
	}
}

func TestTransactionTotal(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAccount(t, st, "user-1", "acc-1")

	if total, err := st.TransactionTotal(ctx, "acc-1"); err != nil || total != 0 {
		t.Errorf("empty account total = %d, %v; want 0, nil", total, err)
	}

	for i, amount := range []int64{-450, -550, 2000} {
		tx := &model.Transaction{
			ID: string(rune('a' + i)), AccountID: "acc-1", Amount: amount,
			Description: "t", Date: time.Now(),
		}
		if err := st.UpsertTransaction(ctx, tx); err != nil {
			t.Fatalf("UpsertTransaction: %v", err)
		}
	}

	total, err := st.TransactionTotal(ctx, "acc-1")
	if err != nil {
		t.Fatalf("TransactionTotal: %v", err)
	}
	if total != 1000 {
		t.Errorf("total = %d, want 1000", total)
	}
}

func TestResolveConflictIsIdempotent(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAccount(t, st, "user-1", "acc-1")

	c := &model.ConflictRecord{
		ID: "conf-1", Type: model.ConflictBalanceMismatch, AccountID: "acc-1",
		DetectedAt: time.Now(),
	}
	if err := st.InsertConflict(ctx, c); err != nil {
		t.Fatalf("InsertConflict: %v", err)
	}

	if err := st.ResolveConflict(ctx, "conf-1", model.OutcomeRemoteApplied); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	// Second resolution with a different outcome must not overwrite.
	if err := st.ResolveConflict(ctx, "conf-1", model.OutcomeLocalPreserved); err != nil {
		t.Fatalf("second ResolveConflict: %v", err)
	}

	got, err := st.GetConflict(ctx, "conf-1")
	if err != nil {
		t.Fatalf("GetConflict: %v", err)
	}
	if got.Outcome != model.OutcomeRemoteApplied {
		t.Errorf("outcome = %s, want first outcome %s", got.Outcome, model.OutcomeRemoteApplied)
	}
	if !got.Resolved || got.ResolvedAt == nil {
		t.Errorf("record not marked resolved: %+v", got)
	}
}

func TestListPendingConflictsByUser(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAccount(t, st, "user-1", "acc-1")
	seedAccount(t, st, "user-2", "acc-2")

	for i, accountID := range []string{"acc-1", "acc-1", "acc-2"} {
		c := &model.ConflictRecord{
			ID: string(rune('a' + i)), Type: model.ConflictDuplicateTransaction,
			AccountID: accountID, DetectedAt: time.Now(),
		}
		if err := st.InsertConflict(ctx, c); err != nil {
			t.Fatalf("InsertConflict: %v", err)
		}
	}

	pending, err := st.ListPendingConflictsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListPendingConflictsByUser: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("user-1 pending = %d, want 2", len(pending))
	}

	all, err := st.ListAllPendingConflicts(ctx)
	if err != nil {
		t.Fatalf("ListAllPendingConflicts: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all pending = %d, want 3", len(all))
	}
}
