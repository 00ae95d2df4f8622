package dashboard

import (
	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/notify"
)

// Dispatcher bridges sync outcome notifications onto the dashboard's
// broadcast channel, optionally forwarding to another dispatcher.
type Dispatcher struct {
	server *Server
	next   notify.Dispatcher
}

// NewDispatcher wraps srv as a notify.Dispatcher. If next is nil,
// notifications stop at the dashboard.
func NewDispatcher(srv *Server, next notify.Dispatcher) *Dispatcher {
	if next == nil {
		next = notify.NopDispatcher{}
	}
	return &Dispatcher{server: srv, next: next}
}

func (d *Dispatcher) SyncSucceeded(accountID string, newTransactions int) {
	d.next.SyncSucceeded(accountID, newTransactions)
}

func (d *Dispatcher) SyncFailed(accountID string, err error, retryable bool) {
	d.server.broadcastData(MessageTypeSyncFailed, SyncFailedData{
		AccountID: accountID,
		Error:     err.Error(),
		Retryable: retryable,
	})
	d.next.SyncFailed(accountID, err, retryable)
}

func (d *Dispatcher) ConflictPending(accountID string, conflicts []model.ConflictRecord) {
	d.server.broadcastData(MessageTypeConflictPending, ConflictPendingData{
		AccountID: accountID,
		Pending:   len(conflicts),
	})
	d.next.ConflictPending(accountID, conflicts)
}
