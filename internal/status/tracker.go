// Package status tracks per-account sync state and exposes it as
// observable transition streams for the UI layer.
//
// The tracker enforces the sync state machine (see model.SyncStatus) and
// guarantees that every subscriber receives every transition, in order,
// from the moment it subscribes. Delivery uses a per-subscriber unbounded
// queue so one slow observer never drops or blocks transitions for others.
package status

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/northapp/northsync/internal/model"
)

// state is the tracked state of one account.
type state struct {
	userID string
	status model.SyncStatus
	at     time.Time
}

// Tracker maintains sync status per account. Transitions must only be
// driven by the sync orchestrator.
type Tracker struct {
	mu     sync.Mutex
	states map[string]state
	subs   map[int]*subscriber
	nextID int
	logger *log.Logger
}

// New creates a Tracker. If logger is nil, transitions are not logged.
func New(logger *log.Logger) *Tracker {
	return &Tracker{
		states: make(map[string]state),
		subs:   make(map[int]*subscriber),
		logger: logger,
	}
}

// Transition moves accountID to next, validating against the state
// machine. Unknown accounts start at IDLE.
func (t *Tracker) Transition(accountID, userID string, next model.SyncStatus) error {
	t.mu.Lock()

	cur, ok := t.states[accountID]
	if !ok {
		cur = state{userID: userID, status: model.StatusIdle}
	}

	if !cur.status.CanTransitionTo(next) {
		t.mu.Unlock()
		return fmt.Errorf("invalid status transition for %s: %s -> %s", accountID, cur.status, next)
	}

	now := time.Now()
	tr := model.Transition{
		AccountID: accountID,
		UserID:    userID,
		From:      cur.status,
		To:        next,
		At:        now,
	}
	t.states[accountID] = state{userID: userID, status: next, at: now}

	// Fan out under the lock so subscribers see transitions in the same
	// order the tracker applied them.
	for _, sub := range t.subs {
		if sub.matches(tr) {
			sub.enqueue(tr)
		}
	}
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Printf("Status: %s", tr)
	}
	return nil
}

// Current returns a snapshot of the account's status. Unknown accounts
// report IDLE.
func (t *Tracker) Current(accountID string) model.SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.states[accountID]; ok {
		return s.status
	}
	return model.StatusIdle
}

// LastTransitionAt returns when the account last changed status.
// The zero time means the account has never been tracked.
func (t *Tracker) LastTransitionAt(accountID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.states[accountID].at
}

// UserStatus aggregates status across all of a user's tracked accounts,
// worst first: FAILED > CONFLICT_PENDING > SYNCING > SUCCESS > IDLE.
func (t *Tracker) UserStatus(userID string) model.SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := model.StatusIdle
	for _, s := range t.states {
		if s.userID == userID && s.status.Rank() > agg.Rank() {
			agg = s.status
		}
	}
	return agg
}

// ObserveAccount subscribes to all transitions of one account. The
// returned channel is closed when cancel is called or the tracker is
// closed. Transitions that occur after subscription are never skipped.
func (t *Tracker) ObserveAccount(accountID string) (<-chan model.Transition, func()) {
	return t.subscribe(accountID, "")
}

// ObserveUser subscribes to transitions of every account belonging to
// userID.
func (t *Tracker) ObserveUser(userID string) (<-chan model.Transition, func()) {
	return t.subscribe("", userID)
}

// ObserveAll subscribes to every transition the tracker applies.
func (t *Tracker) ObserveAll() (<-chan model.Transition, func()) {
	return t.subscribe("", "")
}

// Close cancels every active subscription.
func (t *Tracker) Close() {
	t.mu.Lock()
	subs := make([]*subscriber, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.subs = make(map[int]*subscriber)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (t *Tracker) subscribe(accountID, userID string) (<-chan model.Transition, func()) {
	sub := newSubscriber(accountID, userID)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = sub
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
		sub.stop()
	}
	return sub.out, cancel
}

// subscriber delivers transitions to one observer. Enqueue never blocks;
// the pump goroutine drains the queue at the observer's pace.
type subscriber struct {
	accountID string // filter, empty matches all
	userID    string // filter, empty matches all

	mu      sync.Mutex
	queue   []model.Transition
	wake    chan struct{}
	done    chan struct{}
	out     chan model.Transition
	stopped bool
}

func newSubscriber(accountID, userID string) *subscriber {
	sub := &subscriber{
		accountID: accountID,
		userID:    userID,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		out:       make(chan model.Transition),
	}
	go sub.pump()
	return sub
}

func (s *subscriber) matches(tr model.Transition) bool {
	if s.accountID != "" && tr.AccountID != s.accountID {
		return false
	}
	if s.userID != "" && tr.UserID != s.userID {
		return false
	}
	return true
}

func (s *subscriber) enqueue(tr model.Transition) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, tr)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.done)
}

// pump drains the queue into the output channel, preserving order.
func (s *subscriber) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		var next model.Transition
		have := len(s.queue) > 0
		if have {
			next = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !have {
			select {
			case <-s.done:
				return
			case <-s.wake:
				continue
			}
		}

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
