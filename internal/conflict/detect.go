// Package conflict implements discrepancy detection and resolution between
// locally stored records and records reported by the aggregation provider.
//
// The resolution policy is deliberately asymmetric: the provider is the
// bank of record for financial facts (amount, balance, date, merchant),
// while the user owns annotations (category, notes, verified). Neither
// side of that policy is ever inverted; anything falling outside the two
// buckets is flagged for manual review rather than guessed.
package conflict

import (
	"time"

	"github.com/google/uuid"
	"github.com/northapp/northsync/internal/model"
)

// Detector compares local and remote record sets and produces conflict
// records.
type Detector struct {
	// BalanceEpsilon is the tolerated difference, in minor units, between
	// the computed local balance and the provider-reported balance before
	// a BALANCE_MISMATCH is raised. Zero means exact match required.
	BalanceEpsilon int64
}

// dupKey identifies candidate duplicate transactions: same account, same
// amount, same calendar day.
type dupKey struct {
	amount int64
	day    time.Time
}

// DetectTransactionConflicts compares local and remote transactions for
// one account.
//
// Rules:
//   - Same external id, differing amount/description/category between the
//     sides: one MODIFIED_TRANSACTION per pair, never more.
//   - A remote transaction whose external id is unknown locally, matching
//     a local transaction without an external id on (amount, date):
//     DUPLICATE_TRANSACTION. The provider-identified record wins the
//     tie-break; the local record will be linked, not duplicated.
func (d *Detector) DetectTransactionConflicts(accountID string, local, remote []model.Transaction) []model.ConflictRecord {
	byExternalID := make(map[string]*model.Transaction)
	unlinked := make(map[dupKey][]*model.Transaction)

	for i := range local {
		lt := &local[i]
		if lt.ExternalID != "" {
			byExternalID[lt.ExternalID] = lt
			continue
		}
		k := dupKey{amount: lt.Amount, day: lt.DayKey()}
		unlinked[k] = append(unlinked[k], lt)
	}

	var conflicts []model.ConflictRecord
	now := time.Now()

	for i := range remote {
		rt := &remote[i]
		if rt.ExternalID == "" {
			continue
		}

		if lt, ok := byExternalID[rt.ExternalID]; ok {
			// Already linked: check for modification. The map guarantees
			// at most one conflict per (account, external id) pair.
			if modified(lt, rt) {
				conflicts = append(conflicts, model.ConflictRecord{
					ID:                 uuid.NewString(),
					Type:               model.ConflictModifiedTransaction,
					AccountID:          accountID,
					LocalTransactionID: lt.ID,
					RemoteExternalID:   rt.ExternalID,
					LocalSnapshot:      model.Snapshot(lt),
					RemoteSnapshot:     model.Snapshot(rt),
					DetectedAt:         now,
				})
			}
			continue
		}

		// Unknown external id: look for a local record this remote one
		// duplicates. Each local record is consumed at most once.
		k := dupKey{amount: rt.Amount, day: rt.DayKey()}
		if candidates := unlinked[k]; len(candidates) > 0 {
			lt := candidates[0]
			unlinked[k] = candidates[1:]

			conflicts = append(conflicts, model.ConflictRecord{
				ID:                 uuid.NewString(),
				Type:               model.ConflictDuplicateTransaction,
				AccountID:          accountID,
				LocalTransactionID: lt.ID,
				RemoteExternalID:   rt.ExternalID,
				LocalSnapshot:      model.Snapshot(lt),
				RemoteSnapshot:     model.Snapshot(rt),
				DetectedAt:         now,
			})
		}
	}

	return conflicts
}

// DetectBalanceMismatch compares the computed local balance (sum of known
// transactions) against the provider-reported balance. Returns nil when
// the difference is within BalanceEpsilon.
func (d *Detector) DetectBalanceMismatch(accountID string, localTotal, remoteBalance int64) *model.ConflictRecord {
	diff := localTotal - remoteBalance
	if diff < 0 {
		diff = -diff
	}
	if diff <= d.BalanceEpsilon {
		return nil
	}

	return &model.ConflictRecord{
		ID:             uuid.NewString(),
		Type:           model.ConflictBalanceMismatch,
		AccountID:      accountID,
		LocalSnapshot:  model.Snapshot(map[string]int64{"balance": localTotal}),
		RemoteSnapshot: model.Snapshot(map[string]int64{"balance": remoteBalance}),
		DetectedAt:     time.Now(),
	}
}

// DetectAccountStatusChange raises a conflict when the provider reports an
// account closed (or stops reporting it) while it is locally active.
// Account status changes always require manual review: the engine never
// deactivates money data on its own.
func (d *Detector) DetectAccountStatusChange(acct *model.Account, remoteClosed bool) *model.ConflictRecord {
	if !acct.Active || !remoteClosed {
		return nil
	}

	return &model.ConflictRecord{
		ID:                   uuid.NewString(),
		Type:                 model.ConflictAccountStatusChange,
		AccountID:            acct.ID,
		LocalSnapshot:        model.Snapshot(map[string]bool{"active": true}),
		RemoteSnapshot:       model.Snapshot(map[string]bool{"closed": true}),
		RequiresManualReview: true,
		DetectedAt:           time.Now(),
	}
}

// modified reports whether the remote side changed any financial fact or
// provider category relative to the local record.
func modified(local, remote *model.Transaction) bool {
	if local.Amount != remote.Amount {
		return true
	}
	if local.Description != remote.Description {
		return true
	}
	if !local.DayKey().Equal(remote.DayKey()) {
		return true
	}
	// A provider category only counts as a modification when the local
	// record has none. A locally set category is a user annotation and
	// never conflicts with the provider's.
	if local.Category == "" && remote.Category != "" {
		return true
	}
	return false
}
