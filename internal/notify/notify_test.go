package notify

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/northapp/northsync/internal/model"
)

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := &LogDispatcher{Logger: log.New(&buf, "", 0)}

	d.SyncSucceeded("acc-1", 4)
	d.SyncFailed("acc-2", errors.New("token revoked"), false)
	d.ConflictPending("acc-3", []model.ConflictRecord{{ID: "c-1"}})

	got := buf.String()
	for _, want := range []string{
		"Account acc-1 synced (4 new transactions)",
		"Account acc-2 sync failed (retryable=false): token revoked",
		"Account acc-3 has 1 conflict(s) pending review",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Log output missing %q:\n%s", want, got)
		}
	}
}

func TestLogDispatcherNilLogger(t *testing.T) {
	d := &LogDispatcher{}

	// Must not panic when no logger is configured.
	d.SyncSucceeded("acc-1", 1)
	d.SyncFailed("acc-1", errors.New("boom"), true)
	d.ConflictPending("acc-1", nil)
}
