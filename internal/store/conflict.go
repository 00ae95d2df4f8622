package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northapp/northsync/internal/model"
)

// InsertConflict stores a new conflict record. Records are insert-only;
// resolution goes through ResolveConflict and resolved records are never
// rewritten.
func (s *Store) InsertConflict(ctx context.Context, c *model.ConflictRecord) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conflict record: %w", err)
	}

	query := `
	INSERT INTO conflicts (
		id, type, account_id, local_transaction_id, remote_external_id,
		local_snapshot, remote_snapshot, outcome, requires_manual_review,
		resolved, detected_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		c.ID,
		string(c.Type),
		c.AccountID,
		nullString(c.LocalTransactionID),
		nullString(c.RemoteExternalID),
		nullString(string(c.LocalSnapshot)),
		nullString(string(c.RemoteSnapshot)),
		string(c.Outcome),
		boolToInt(c.RequiresManualReview),
		boolToInt(c.Resolved),
		c.DetectedAt.UTC().Format(time.RFC3339),
		timeToNullString(c.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conflict %s: %w", c.ID, err)
	}
	return nil
}

// ResolveConflict marks an unresolved conflict as resolved with the given
// outcome. Resolving an already-resolved record is a no-op so resolution
// stays idempotent.
func (s *Store) ResolveConflict(ctx context.Context, id string, outcome model.ResolvedOutcome) error {
	query := `
	UPDATE conflicts
	SET outcome = ?, resolved = 1, resolved_at = ?
	WHERE id = ? AND resolved = 0
	`

	_, err := s.conn.ExecContext(ctx, query,
		string(outcome), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict %s: %w", id, err)
	}
	return nil
}

// GetConflict fetches one conflict record by id.
func (s *Store) GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error) {
	query := selectConflict + ` WHERE id = ?`
	c, err := scanConflict(s.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict %s: %w", id, err)
	}
	return c, nil
}

// ListPendingConflicts returns unresolved conflicts for an account,
// oldest first.
func (s *Store) ListPendingConflicts(ctx context.Context, accountID string) ([]model.ConflictRecord, error) {
	query := selectConflict + ` WHERE account_id = ? AND resolved = 0 ORDER BY detected_at`
	return s.listConflicts(ctx, query, accountID)
}

// ListAllPendingConflicts returns every unresolved conflict, oldest first.
func (s *Store) ListAllPendingConflicts(ctx context.Context) ([]model.ConflictRecord, error) {
	query := selectConflict + ` WHERE resolved = 0 ORDER BY detected_at`
	return s.listConflicts(ctx, query)
}

// ListPendingConflictsByUser returns unresolved conflicts across all of a
// user's accounts, oldest first.
func (s *Store) ListPendingConflictsByUser(ctx context.Context, userID string) ([]model.ConflictRecord, error) {
	query := selectConflict + `
	WHERE resolved = 0
	  AND account_id IN (SELECT id FROM accounts WHERE user_id = ?)
	ORDER BY detected_at`
	return s.listConflicts(ctx, query, userID)
}

func (s *Store) listConflicts(ctx context.Context, query string, args ...any) ([]model.ConflictRecord, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []model.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, rows.Err()
}

const selectConflict = `
	SELECT id, type, account_id, COALESCE(local_transaction_id, ''),
	       COALESCE(remote_external_id, ''), COALESCE(local_snapshot, ''),
	       COALESCE(remote_snapshot, ''), outcome, requires_manual_review,
	       resolved, detected_at, resolved_at
	FROM conflicts`

func scanConflict(row scanner) (*model.ConflictRecord, error) {
	var c model.ConflictRecord
	var typ, outcome, localSnap, remoteSnap, detectedAt string
	var review, resolved int
	var resolvedAt sql.NullString

	err := row.Scan(
		&c.ID, &typ, &c.AccountID, &c.LocalTransactionID, &c.RemoteExternalID,
		&localSnap, &remoteSnap, &outcome, &review, &resolved, &detectedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = model.ConflictType(typ)
	c.Outcome = model.ResolvedOutcome(outcome)
	if localSnap != "" {
		c.LocalSnapshot = []byte(localSnap)
	}
	if remoteSnap != "" {
		c.RemoteSnapshot = []byte(remoteSnap)
	}
	c.RequiresManualReview = review != 0
	c.Resolved = resolved != 0
	if c.DetectedAt, err = parseTime(detectedAt); err != nil {
		return nil, err
	}
	if c.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
