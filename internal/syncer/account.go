package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/provider"
)

// syncAccount runs the full pass for one account: fetch, detect, resolve,
// persist, report. It never panics the batch; all failures land in the
// result.
//
// The fetch phase honors ctx so cancellation aborts before any write. The
// persist phase runs under context.WithoutCancel inside the account's
// write lock, so a pass that has started writing always finishes.
func (o *Orchestrator) syncAccount(ctx context.Context, acct *model.Account) AccountSyncResult {
	start := time.Now()
	res := AccountSyncResult{AccountID: acct.ID}

	if err := o.tracker.Transition(acct.ID, acct.UserID, model.StatusSyncing); err != nil {
		res.Status = o.tracker.Current(acct.ID)
		res.Err = err
		return res
	}

	fail := func(err error) AccountSyncResult {
		res.Err = err
		res.Status = model.StatusFailed
		res.Duration = time.Since(start)
		_ = o.tracker.Transition(acct.ID, acct.UserID, model.StatusFailed)
		o.dispatcher.SyncFailed(acct.ID, err, provider.Classify(err).Retryable())
		o.logf("Account %s sync failed (%s): %v", acct.ID, provider.Classify(err), err)
		return res
	}

	item, err := o.store.GetItem(ctx, acct.ItemID)
	if err != nil {
		return fail(fmt.Errorf("failed to load item %s: %w", acct.ItemID, err))
	}

	remote, err := o.fetchRemote(ctx, item.AccessToken, acct)
	if err != nil {
		return fail(err)
	}

	// Everything past this point writes; hold the account's write lock and
	// detach from cancellation so there are no partial writes.
	wctx := context.WithoutCancel(ctx)
	lock := o.store.AccountLock(acct.ID)
	lock.Lock()
	defer lock.Unlock()

	// A closed or vanished account freezes the pass before any financial
	// write. The provider reported nothing we can trust (a missing account
	// reads as balance zero), so the stored facts stay put until a person
	// decides.
	if c := o.detector.DetectAccountStatusChange(acct, remote.closed); c != nil {
		if _, err := o.resolver.Resolve(wctx, c); err != nil {
			return fail(err)
		}
		res.Pending = append(res.Pending, *c)
		res.Status = model.StatusConflictPending
		res.Duration = time.Since(start)
		_ = o.tracker.Transition(acct.ID, acct.UserID, model.StatusConflictPending)
		o.dispatcher.ConflictPending(acct.ID, res.Pending)
		o.logf("Account %s reported closed by provider; sync held for review", acct.ID)
		return res
	}

	local, err := o.store.ListTransactionsByAccount(wctx, acct.ID)
	if err != nil {
		return fail(err)
	}

	conflicts := o.detector.DetectTransactionConflicts(acct.ID, local, remote.transactions)

	// Remote transactions claimed by a duplicate conflict are applied via
	// resolution (the local record adopts the provider id); the rest of
	// the unseen ones insert directly.
	claimed := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		claimed[c.RemoteExternalID] = true
	}

	known := make(map[string]bool, len(local))
	for _, lt := range local {
		if lt.ExternalID != "" {
			known[lt.ExternalID] = true
		}
	}

	for i := range remote.transactions {
		rt := &remote.transactions[i]
		if rt.ExternalID == "" || known[rt.ExternalID] || claimed[rt.ExternalID] {
			continue
		}
		if err := o.store.UpsertRemoteTransaction(wctx, rt); err != nil {
			return fail(err)
		}
		res.NewTransactions++
	}

	// Resolve what the automatic policy covers; the rest stays pending.
	resolve := func(c *model.ConflictRecord) error {
		outcome, err := o.resolver.Resolve(wctx, c)
		if err != nil {
			return err
		}
		if outcome == model.OutcomeManualReview {
			res.Pending = append(res.Pending, *c)
			return nil
		}
		res.ResolvedCount++
		return nil
	}

	for i := range conflicts {
		if err := resolve(&conflicts[i]); err != nil {
			return fail(err)
		}
	}

	// The local sum is taken after transaction conflicts resolve, so a
	// remotely modified amount no longer reads as a balance discrepancy.
	localTotal, err := o.store.TransactionTotal(wctx, acct.ID)
	if err != nil {
		return fail(err)
	}
	if c := o.detector.DetectBalanceMismatch(acct.ID, localTotal, remote.balance); c != nil {
		if err := resolve(c); err != nil {
			return fail(err)
		}
	}

	// Commit the provider balance and the sync watermark atomically.
	if err := o.store.ApplySyncResult(wctx, acct.ID, remote.balance, remote.available, time.Now()); err != nil {
		return fail(err)
	}

	res.Duration = time.Since(start)
	if len(res.Pending) > 0 {
		res.Status = model.StatusConflictPending
		_ = o.tracker.Transition(acct.ID, acct.UserID, model.StatusConflictPending)
		o.dispatcher.ConflictPending(acct.ID, res.Pending)
	} else {
		res.Status = model.StatusSuccess
		_ = o.tracker.Transition(acct.ID, acct.UserID, model.StatusSuccess)
		o.dispatcher.SyncSucceeded(acct.ID, res.NewTransactions)
	}

	o.logf("Account %s synced: %d new, %d resolved, %d pending in %v",
		acct.ID, res.NewTransactions, res.ResolvedCount, len(res.Pending),
		res.Duration.Round(time.Millisecond))

	return res
}

// remoteState is everything fetched from the provider for one account.
type remoteState struct {
	balance      int64
	available    *int64
	closed       bool
	transactions []model.Transaction
}

// fetchRemote pulls the account's current balance and transactions from
// the provider, retrying per policy.
func (o *Orchestrator) fetchRemote(ctx context.Context, accessToken string, acct *model.Account) (*remoteState, error) {
	var remoteAccounts []provider.Account
	err := o.withRetry(ctx, "accounts", func() error {
		var err error
		remoteAccounts, err = o.provider.Accounts(ctx, accessToken)
		return err
	})
	if err != nil {
		return nil, err
	}

	state := &remoteState{closed: true}
	for _, ra := range remoteAccounts {
		if ra.ExternalID != acct.ExternalID {
			continue
		}
		state.closed = ra.Closed
		state.balance = provider.MinorUnits(ra.Balance)
		if ra.Available != nil {
			v := provider.MinorUnits(*ra.Available)
			state.available = &v
		}
		break
	}

	since := sinceWatermark(acct.LastUpdated, o.cfg.FetchOverlap)
	var remoteTxs []provider.Transaction
	err = o.withRetry(ctx, "transactions", func() error {
		var err error
		remoteTxs, err = o.provider.Transactions(ctx, accessToken, acct.ExternalID, since)
		return err
	})
	if err != nil {
		return nil, err
	}

	state.transactions = make([]model.Transaction, 0, len(remoteTxs))
	for _, rt := range remoteTxs {
		if rt.Pending {
			// Pending transactions are not posted facts yet; they would
			// churn amounts and dates on every pass.
			continue
		}
		state.transactions = append(state.transactions, model.Transaction{
			ID:          uuid.NewString(),
			AccountID:   acct.ID,
			ExternalID:  rt.ExternalID,
			Amount:      provider.MinorUnits(rt.Amount),
			Description: rt.Description,
			Category:    rt.Category,
			Date:        rt.Date,
			Merchant:    rt.Merchant,
		})
	}

	return state, nil
}

// withRetry runs fn with the retry policy, sleeping between attempts.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !o.policy.ShouldRetry(err, attempt) {
			return err
		}

		delay := o.policy.DelayFor(err, attempt)
		o.logf("Retrying %s in %v (attempt %d): %v", op, delay.Round(time.Millisecond), attempt+1, err)
		if err := o.policy.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// sinceWatermark computes the transaction fetch start: the sync watermark
// minus the overlap window, or zero for a never-synced account.
func sinceWatermark(lastUpdated time.Time, overlap time.Duration) time.Time {
	if lastUpdated.IsZero() {
		return time.Time{}
	}
	return lastUpdated.Add(-overlap)
}
