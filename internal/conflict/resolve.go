package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/store"
)

// Resolver applies resolution outcomes to the store.
//
// Resolution is idempotent: resolving an already-resolved record returns
// the stored outcome without re-applying remote values.
type Resolver struct {
	store  *store.Store
	logger *log.Logger
}

// NewResolver creates a Resolver. If logger is nil, resolutions are not
// logged.
func NewResolver(st *store.Store, logger *log.Logger) *Resolver {
	return &Resolver{store: st, logger: logger}
}

// Resolve settles one conflict record according to the automatic policy
// and persists both the data change and the record's outcome.
//
// Outcomes:
//   - DUPLICATE_TRANSACTION: the local record adopts the remote external
//     id and financial facts; local annotations survive (MERGED).
//   - MODIFIED_TRANSACTION: remote financial facts are applied over the
//     local record; annotations survive (REMOTE_APPLIED).
//   - BALANCE_MISMATCH: the provider-reported balance is stored
//     (REMOTE_APPLIED); per-transaction data is untouched.
//   - ACCOUNT_STATUS_CHANGE and anything else: left unresolved for manual
//     review (MANUAL_REVIEW outcome returned, record stays pending).
func (r *Resolver) Resolve(ctx context.Context, c *model.ConflictRecord) (model.ResolvedOutcome, error) {
	// Re-read the stored record: a second Resolve call must observe the
	// first one's outcome instead of double-applying remote values.
	stored, err := r.store.GetConflict(ctx, c.ID)
	if err == nil && stored.Resolved {
		return stored.Outcome, nil
	}
	if err == store.ErrNotFound {
		// Detection mints a fresh id each pass, so an already-pending record
		// for the same discrepancy is adopted rather than inserted again.
		prior, err := r.pendingTwin(ctx, c)
		if err != nil {
			return model.OutcomeUnresolved, err
		}
		if prior != nil {
			*c = *prior
		} else if err := r.store.InsertConflict(ctx, c); err != nil {
			// First time this record is seen: persist it so the outcome has
			// a row to land on and a second Resolve call finds it.
			return model.OutcomeUnresolved, err
		}
	} else if err != nil {
		return model.OutcomeUnresolved, err
	}

	if c.RequiresManualReview {
		return model.OutcomeManualReview, nil
	}

	var outcome model.ResolvedOutcome
	switch c.Type {
	case model.ConflictDuplicateTransaction:
		outcome, err = r.resolveDuplicate(ctx, c)
	case model.ConflictModifiedTransaction:
		outcome, err = r.resolveModified(ctx, c)
	case model.ConflictBalanceMismatch:
		outcome, err = r.resolveBalance(ctx, c)
	default:
		// Outside the two policy buckets: never guess.
		c.RequiresManualReview = true
		return model.OutcomeManualReview, nil
	}
	if err != nil {
		return model.OutcomeUnresolved, err
	}

	if err := r.store.ResolveConflict(ctx, c.ID, outcome); err != nil {
		return model.OutcomeUnresolved, err
	}
	c.Resolved = true
	c.Outcome = outcome
	now := time.Now()
	c.ResolvedAt = &now

	if r.logger != nil {
		r.logger.Printf("Resolved conflict %s (%s): %s", c.ID, c.Type, outcome)
	}
	return outcome, nil
}

// pendingTwin finds an unresolved conflict for the same discrepancy: same
// account, type, and transaction pair. Detection has no memory across
// passes, so without this every daemon cycle would stack another pending
// record for a conflict still awaiting review.
func (r *Resolver) pendingTwin(ctx context.Context, c *model.ConflictRecord) (*model.ConflictRecord, error) {
	pending, err := r.store.ListPendingConflicts(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		p := &pending[i]
		if p.Type == c.Type &&
			p.LocalTransactionID == c.LocalTransactionID &&
			p.RemoteExternalID == c.RemoteExternalID {
			return p, nil
		}
	}
	return nil, nil
}

// resolveDuplicate links the local record to the provider id and applies
// the remote financial facts.
func (r *Resolver) resolveDuplicate(ctx context.Context, c *model.ConflictRecord) (model.ResolvedOutcome, error) {
	local, remote, err := snapshots(c)
	if err != nil {
		return model.OutcomeUnresolved, err
	}

	merged := mergeFacts(local, remote)
	merged.ID = local.ID
	merged.ExternalID = remote.ExternalID

	if err := r.store.UpsertTransaction(ctx, merged); err != nil {
		return model.OutcomeUnresolved, fmt.Errorf("failed to merge duplicate %s: %w", c.ID, err)
	}
	return model.OutcomeMerged, nil
}

// resolveModified applies remote financial facts over the local record.
func (r *Resolver) resolveModified(ctx context.Context, c *model.ConflictRecord) (model.ResolvedOutcome, error) {
	local, remote, err := snapshots(c)
	if err != nil {
		return model.OutcomeUnresolved, err
	}

	merged := mergeFacts(local, remote)
	merged.ID = local.ID
	merged.ExternalID = local.ExternalID

	if err := r.store.UpsertTransaction(ctx, merged); err != nil {
		return model.OutcomeUnresolved, fmt.Errorf("failed to apply remote facts for %s: %w", c.ID, err)
	}
	return model.OutcomeRemoteApplied, nil
}

// resolveBalance stores the provider-reported balance. The bank is the
// record of truth for balances; local transaction annotations are not
// touched.
func (r *Resolver) resolveBalance(ctx context.Context, c *model.ConflictRecord) (model.ResolvedOutcome, error) {
	var remote struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(c.RemoteSnapshot, &remote); err != nil {
		return model.OutcomeUnresolved, fmt.Errorf("failed to decode balance snapshot for %s: %w", c.ID, err)
	}

	acct, err := r.store.GetAccount(ctx, c.AccountID)
	if err != nil {
		return model.OutcomeUnresolved, err
	}

	if err := r.store.ApplySyncResult(ctx, acct.ID, remote.Balance, acct.AvailableBalance, time.Now()); err != nil {
		return model.OutcomeUnresolved, err
	}
	return model.OutcomeRemoteApplied, nil
}

// ResolveManually settles a pending manual-review conflict with the user's
// choice. keepRemote applies the remote snapshot; otherwise the local data
// is kept as-is. Either way the record gets a final outcome.
func (r *Resolver) ResolveManually(ctx context.Context, id string, keepRemote bool) (model.ResolvedOutcome, error) {
	c, err := r.store.GetConflict(ctx, id)
	if err != nil {
		return model.OutcomeUnresolved, err
	}
	if c.Resolved {
		return c.Outcome, nil
	}

	outcome := model.OutcomeLocalPreserved
	if keepRemote {
		switch c.Type {
		case model.ConflictDuplicateTransaction:
			outcome, err = r.resolveDuplicate(ctx, c)
		case model.ConflictModifiedTransaction:
			outcome, err = r.resolveModified(ctx, c)
		case model.ConflictBalanceMismatch:
			outcome, err = r.resolveBalance(ctx, c)
		default:
			outcome = model.OutcomeRemoteApplied
		}
		if err != nil {
			return model.OutcomeUnresolved, err
		}
	}

	if err := r.store.ResolveConflict(ctx, id, outcome); err != nil {
		return model.OutcomeUnresolved, err
	}
	return outcome, nil
}

// snapshots decodes both transaction snapshots from a conflict record.
func snapshots(c *model.ConflictRecord) (local, remote *model.Transaction, err error) {
	local = &model.Transaction{}
	remote = &model.Transaction{}
	if err := json.Unmarshal(c.LocalSnapshot, local); err != nil {
		return nil, nil, fmt.Errorf("failed to decode local snapshot for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(c.RemoteSnapshot, remote); err != nil {
		return nil, nil, fmt.Errorf("failed to decode remote snapshot for %s: %w", c.ID, err)
	}
	if local.ID == "" {
		local.ID = uuid.NewString()
	}
	return local, remote, nil
}

// mergeFacts builds a transaction carrying the remote financial facts and
// the local annotations. The amount sign convention is the remote's as
// ingested; it is never flipped here.
func mergeFacts(local, remote *model.Transaction) *model.Transaction {
	return &model.Transaction{
		AccountID:   local.AccountID,
		Amount:      remote.Amount,
		Description: remote.Description,
		Date:        remote.Date,
		Merchant:    remote.Merchant,
		Recurring:   local.Recurring,

		// Local annotations survive; the remote category only fills a gap.
		Category:    firstNonEmpty(local.Category, remote.Category),
		Subcategory: local.Subcategory,
		Notes:       local.Notes,
		Verified:    local.Verified,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
