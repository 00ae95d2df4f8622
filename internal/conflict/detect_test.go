package conflict

import (
	"testing"
	"time"

	"github.com/northapp/northsync/internal/model"
)

var day = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func localTxn(id string, amount int64) model.Transaction {
	return model.Transaction{
		ID:          id,
		AccountID:   "acc-1",
		Amount:      amount,
		Description: "COFFEE SHOP",
		Date:        day,
	}
}

func remoteTxn(externalID string, amount int64) model.Transaction {
	return model.Transaction{
		ExternalID:  externalID,
		AccountID:   "acc-1",
		Amount:      amount,
		Description: "COFFEE SHOP",
		Date:        day,
	}
}

func TestDetectDuplicateTransaction(t *testing.T) {
	d := &Detector{}

	// A pending local record without an external id, then the provider
	// posts the same transaction under ext123.
	local := []model.Transaction{localTxn("txn-1", -450)}
	remote := []model.Transaction{remoteTxn("ext123", -450)}

	conflicts := d.DetectTransactionConflicts("acc-1", local, remote)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}

	c := conflicts[0]
	if c.Type != model.ConflictDuplicateTransaction {
		t.Errorf("type = %s, want %s", c.Type, model.ConflictDuplicateTransaction)
	}
	if c.LocalTransactionID != "txn-1" {
		t.Errorf("local transaction = %s, want txn-1", c.LocalTransactionID)
	}
	if c.RemoteExternalID != "ext123" {
		t.Errorf("remote external id = %s, want ext123", c.RemoteExternalID)
	}
}

func TestDetectDuplicateConsumesCandidateOnce(t *testing.T) {
	d := &Detector{}

	// One unlinked local record, two remote records with the same amount
	// and day. Only one duplicate must be raised; the second remote is a
	// genuinely new transaction.
	local := []model.Transaction{localTxn("txn-1", -450)}
	remote := []model.Transaction{
		remoteTxn("ext-a", -450),
		remoteTxn("ext-b", -450),
	}

	conflicts := d.DetectTransactionConflicts("acc-1", local, remote)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	if conflicts[0].RemoteExternalID != "ext-a" {
		t.Errorf("remote external id = %s, want ext-a", conflicts[0].RemoteExternalID)
	}
}

func TestDetectDuplicateRequiresSameAmountAndDay(t *testing.T) {
	d := &Detector{}

	tests := []struct {
		name   string
		local  model.Transaction
		remote model.Transaction
		want   int
	}{
		{
			name:   "different amount",
			local:  localTxn("txn-1", -450),
			remote: remoteTxn("ext-1", -500),
			want:   0,
		},
		{
			name:  "different day",
			local: localTxn("txn-1", -450),
			remote: model.Transaction{
				ExternalID: "ext-1", AccountID: "acc-1", Amount: -450,
				Description: "COFFEE SHOP", Date: day.Add(26 * time.Hour),
			},
			want: 0,
		},
		{
			name:  "same amount, same day, different hour",
			local: localTxn("txn-1", -450),
			remote: model.Transaction{
				ExternalID: "ext-1", AccountID: "acc-1", Amount: -450,
				Description: "COFFEE SHOP", Date: day.Add(5 * time.Hour),
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.DetectTransactionConflicts("acc-1",
				[]model.Transaction{tt.local}, []model.Transaction{tt.remote})
			if len(got) != tt.want {
				t.Errorf("got %d conflicts, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDetectModifiedTransaction(t *testing.T) {
	d := &Detector{}

	lt := localTxn("txn-1", -450)
	lt.ExternalID = "ext123"

	tests := []struct {
		name   string
		mutate func(*model.Transaction)
		want   int
	}{
		{"identical", func(rt *model.Transaction) {}, 0},
		{"amount changed", func(rt *model.Transaction) { rt.Amount = -500 }, 1},
		{"description changed", func(rt *model.Transaction) { rt.Description = "COFFEE SHOP #2" }, 1},
		{"date moved a day", func(rt *model.Transaction) { rt.Date = day.Add(25 * time.Hour) }, 1},
		{"provider fills empty category", func(rt *model.Transaction) { rt.Category = "Food & Drink" }, 1},
		{
			// Amount and description both changed is still one conflict
			// for the pair, never two.
			"multiple facts changed",
			func(rt *model.Transaction) { rt.Amount = -500; rt.Description = "X" },
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := remoteTxn("ext123", -450)
			tt.mutate(&rt)

			got := d.DetectTransactionConflicts("acc-1",
				[]model.Transaction{lt}, []model.Transaction{rt})
			if len(got) != tt.want {
				t.Fatalf("got %d conflicts, want %d", len(got), tt.want)
			}
			if tt.want == 1 && got[0].Type != model.ConflictModifiedTransaction {
				t.Errorf("type = %s, want %s", got[0].Type, model.ConflictModifiedTransaction)
			}
		})
	}
}

func TestUserCategoryNeverConflicts(t *testing.T) {
	d := &Detector{}

	// User recategorized the transaction locally. The provider's category
	// is not a fact; no conflict may be raised, this pass or any later one.
	lt := localTxn("txn-1", -450)
	lt.ExternalID = "ext123"
	lt.Category = "Date Night"

	rt := remoteTxn("ext123", -450)
	rt.Category = "Food & Drink"

	for pass := 0; pass < 3; pass++ {
		got := d.DetectTransactionConflicts("acc-1",
			[]model.Transaction{lt}, []model.Transaction{rt})
		if len(got) != 0 {
			t.Fatalf("pass %d: got %d conflicts, want 0", pass, len(got))
		}
	}
}

func TestDetectBalanceMismatch(t *testing.T) {
	tests := []struct {
		name    string
		epsilon int64
		local   int64
		remote  int64
		want    bool
	}{
		{"local 1000 remote 950", 0, 1000, 950, true},
		{"exact match", 0, 1000, 1000, false},
		{"off by one, zero epsilon", 0, 1000, 999, true},
		{"within epsilon", 100, 1000, 950, false},
		{"at epsilon boundary", 50, 1000, 950, false},
		{"past epsilon boundary", 49, 1000, 950, true},
		{"remote higher", 0, 950, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Detector{BalanceEpsilon: tt.epsilon}
			c := d.DetectBalanceMismatch("acc-1", tt.local, tt.remote)
			if (c != nil) != tt.want {
				t.Errorf("conflict = %v, want conflict=%v", c, tt.want)
			}
			if c != nil && c.Type != model.ConflictBalanceMismatch {
				t.Errorf("type = %s, want %s", c.Type, model.ConflictBalanceMismatch)
			}
		})
	}
}

func TestDetectAccountStatusChange(t *testing.T) {
	d := &Detector{}

	active := &model.Account{ID: "acc-1", Active: true}
	inactive := &model.Account{ID: "acc-1", Active: false}

	if c := d.DetectAccountStatusChange(active, true); c == nil {
		t.Error("active account reported closed: want conflict, got none")
	} else {
		if c.Type != model.ConflictAccountStatusChange {
			t.Errorf("type = %s, want %s", c.Type, model.ConflictAccountStatusChange)
		}
		if !c.RequiresManualReview {
			t.Error("account status change must require manual review")
		}
	}

	if c := d.DetectAccountStatusChange(active, false); c != nil {
		t.Errorf("account still open: want no conflict, got %v", c)
	}
	if c := d.DetectAccountStatusChange(inactive, true); c != nil {
		t.Errorf("account already inactive: want no conflict, got %v", c)
	}
}
