package status

import (
	"testing"
	"time"

	"github.com/northapp/northsync/internal/model"
)

// drive runs a full pass for one account: IDLE -> SYNCING -> terminal.
func drive(t *testing.T, tr *Tracker, accountID, userID string, terminal model.SyncStatus) {
	t.Helper()
	if err := tr.Transition(accountID, userID, model.StatusSyncing); err != nil {
		t.Fatalf("to SYNCING: %v", err)
	}
	if err := tr.Transition(accountID, userID, terminal); err != nil {
		t.Fatalf("to %s: %v", terminal, err)
	}
}

func collect(t *testing.T, ch <-chan model.Transition, n int) []model.Transition {
	t.Helper()
	out := make([]model.Transition, 0, n)
	for i := 0; i < n; i++ {
		select {
		case tr := <-ch:
			out = append(out, tr)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for transition %d of %d", i+1, n)
		}
	}
	return out
}

func TestTransitionValidation(t *testing.T) {
	tests := []struct {
		name    string
		path    []model.SyncStatus
		wantErr bool
	}{
		{"full success pass", []model.SyncStatus{model.StatusSyncing, model.StatusSuccess}, false},
		{"full failure pass", []model.SyncStatus{model.StatusSyncing, model.StatusFailed}, false},
		{"conflict pass then ack", []model.SyncStatus{model.StatusSyncing, model.StatusConflictPending, model.StatusIdle}, false},
		{"terminal straight to next pass", []model.SyncStatus{model.StatusSyncing, model.StatusSuccess, model.StatusSyncing}, false},
		{"idle to terminal is illegal", []model.SyncStatus{model.StatusSuccess}, true},
		{"syncing to idle is illegal", []model.SyncStatus{model.StatusSyncing, model.StatusIdle}, true},
		{"double syncing is illegal", []model.SyncStatus{model.StatusSyncing, model.StatusSyncing}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(nil)
			defer tr.Close()

			var err error
			for _, next := range tt.path {
				if err = tr.Transition("acc-1", "user-1", next); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCurrentDefaultsToIdle(t *testing.T) {
	tr := New(nil)
	defer tr.Close()

	if got := tr.Current("never-seen"); got != model.StatusIdle {
		t.Errorf("Current(unknown) = %s, want IDLE", got)
	}
}

func TestObserverReceivesOrderedTransitions(t *testing.T) {
	tr := New(nil)
	defer tr.Close()

	ch, cancel := tr.ObserveAccount("acc-1")
	defer cancel()

	drive(t, tr, "acc-1", "user-1", model.StatusConflictPending)
	if err := tr.Transition("acc-1", "user-1", model.StatusIdle); err != nil {
		t.Fatalf("ack: %v", err)
	}

	got := collect(t, ch, 3)
	want := []struct{ from, to model.SyncStatus }{
		{model.StatusIdle, model.StatusSyncing},
		{model.StatusSyncing, model.StatusConflictPending},
		{model.StatusConflictPending, model.StatusIdle},
	}
	for i, w := range want {
		if got[i].From != w.from || got[i].To != w.to {
			t.Errorf("transition %d = %s -> %s, want %s -> %s",
				i, got[i].From, got[i].To, w.from, w.to)
		}
	}
}

func TestObserverNeverSkipsUnderBurst(t *testing.T) {
	tr := New(nil)
	defer tr.Close()

	ch, cancel := tr.ObserveAccount("acc-1")
	defer cancel()

	// Many passes without the observer draining: the per-subscriber queue
	// must buffer all of them in order.
	const passes = 100
	for i := 0; i < passes; i++ {
		drive(t, tr, "acc-1", "user-1", model.StatusSuccess)
	}

	got := collect(t, ch, passes*2)
	for i := 0; i < passes; i++ {
		if got[2*i].To != model.StatusSyncing {
			t.Fatalf("transition %d = %s, want SYNCING", 2*i, got[2*i].To)
		}
		if got[2*i+1].To != model.StatusSuccess {
			t.Fatalf("transition %d = %s, want SUCCESS", 2*i+1, got[2*i+1].To)
		}
	}
}

func TestObserverFiltersByAccountAndUser(t *testing.T) {
	tr := New(nil)
	defer tr.Close()

	byAccount, cancelA := tr.ObserveAccount("acc-1")
	defer cancelA()
	byUser, cancelU := tr.ObserveUser("user-2")
	defer cancelU()

	drive(t, tr, "acc-1", "user-1", model.StatusSuccess)
	drive(t, tr, "acc-2", "user-2", model.StatusSuccess)

	for _, got := range collect(t, byAccount, 2) {
		if got.AccountID != "acc-1" {
			t.Errorf("account observer saw %s", got.AccountID)
		}
	}
	for _, got := range collect(t, byUser, 2) {
		if got.UserID != "user-2" {
			t.Errorf("user observer saw %s", got.UserID)
		}
	}
}

func TestCancelClosesObserverChannel(t *testing.T) {
	tr := New(nil)
	defer tr.Close()

	ch, cancel := tr.ObserveAccount("acc-1")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received transition after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Error("channel not closed after cancel")
	}

	// Transitions after cancel must not panic or block.
	drive(t, tr, "acc-1", "user-1", model.StatusSuccess)
}

func TestUserStatusAggregation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []model.SyncStatus // one terminal per account
		want     model.SyncStatus
	}{
		{"no accounts", nil, model.StatusIdle},
		{"all success", []model.SyncStatus{model.StatusSuccess, model.StatusSuccess}, model.StatusSuccess},
		{"conflict outranks success", []model.SyncStatus{model.StatusSuccess, model.StatusConflictPending}, model.StatusConflictPending},
		{"failed outranks conflict", []model.SyncStatus{model.StatusConflictPending, model.StatusFailed}, model.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(nil)
			defer tr.Close()

			for i, terminal := range tt.statuses {
				drive(t, tr, string(rune('a'+i)), "user-1", terminal)
			}
			if got := tr.UserStatus("user-1"); got != tt.want {
				t.Errorf("UserStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUserStatusSyncingOutranksSuccess(t *testing.T) {
	tr := New(nil)
	defer tr.Close()

	drive(t, tr, "acc-1", "user-1", model.StatusSuccess)
	if err := tr.Transition("acc-2", "user-1", model.StatusSyncing); err != nil {
		t.Fatalf("to SYNCING: %v", err)
	}

	if got := tr.UserStatus("user-1"); got != model.StatusSyncing {
		t.Errorf("UserStatus = %s, want SYNCING while a pass is running", got)
	}
}
