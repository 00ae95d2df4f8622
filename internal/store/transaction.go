package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northapp/northsync/internal/model"
)

// UpsertTransaction inserts or updates a transaction by primary key,
// replacing every column. Used for locally created transactions and for
// conflict-resolution writes where the caller has already merged
// annotations.
func (s *Store) UpsertTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	query := `
	INSERT INTO transactions (
		id, account_id, external_id, amount, description, category,
		subcategory, date, recurring, merchant_name, verified, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		external_id = excluded.external_id,
		amount = excluded.amount,
		description = excluded.description,
		category = excluded.category,
		subcategory = excluded.subcategory,
		date = excluded.date,
		recurring = excluded.recurring,
		merchant_name = excluded.merchant_name,
		verified = excluded.verified,
		notes = excluded.notes
	`

	_, err := s.conn.ExecContext(ctx, query,
		tx.ID,
		tx.AccountID,
		nullString(tx.ExternalID),
		tx.Amount,
		tx.Description,
		nullString(tx.Category),
		nullString(tx.Subcategory),
		tx.Date.UTC().Format(time.RFC3339),
		boolToInt(tx.Recurring),
		nullString(tx.Merchant),
		boolToInt(tx.Verified),
		nullString(tx.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// UpsertRemoteTransaction writes a provider-sourced transaction keyed by
// (account_id, external_id). Financial facts are taken from the remote
// record; the annotation columns (category, subcategory, verified, notes)
// are preserved on update because they are owned locally.
func (s *Store) UpsertRemoteTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	if tx.ExternalID == "" {
		return fmt.Errorf("remote transaction %s has no external id", tx.ID)
	}

	// The conflict target must repeat the partial index's WHERE clause or
	// SQLite refuses to bind it to idx_transactions_external.
	query := `
	INSERT INTO transactions (
		id, account_id, external_id, amount, description, category,
		subcategory, date, recurring, merchant_name, verified, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(account_id, external_id)
		WHERE external_id IS NOT NULL AND external_id != ''
	DO UPDATE SET
		amount = excluded.amount,
		description = excluded.description,
		date = excluded.date,
		merchant_name = excluded.merchant_name
	`

	_, err := s.conn.ExecContext(ctx, query,
		tx.ID,
		tx.AccountID,
		tx.ExternalID,
		tx.Amount,
		tx.Description,
		nullString(tx.Category),
		nullString(tx.Subcategory),
		tx.Date.UTC().Format(time.RFC3339),
		boolToInt(tx.Recurring),
		nullString(tx.Merchant),
		boolToInt(tx.Verified),
		nullString(tx.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert remote transaction %s/%s: %w", tx.AccountID, tx.ExternalID, err)
	}
	return nil
}

// LinkExternalID attaches a provider id to a locally created transaction.
// Used when duplicate resolution matches a local record to a remote one.
func (s *Store) LinkExternalID(ctx context.Context, transactionID, externalID string) error {
	query := `UPDATE transactions SET external_id = ? WHERE id = ?`
	res, err := s.conn.ExecContext(ctx, query, externalID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to link external id for transaction %s: %w", transactionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	return nil
}

// UpdateAnnotations writes only the user-owned annotation fields. This is
// the manual-edit path; it never touches financial facts.
func (s *Store) UpdateAnnotations(ctx context.Context, transactionID, category, subcategory, notes string, verified bool) error {
	query := `
	UPDATE transactions
	SET category = ?, subcategory = ?, notes = ?, verified = ?
	WHERE id = ?
	`
	res, err := s.conn.ExecContext(ctx, query,
		nullString(category), nullString(subcategory), nullString(notes), boolToInt(verified), transactionID)
	if err != nil {
		return fmt.Errorf("failed to update annotations for transaction %s: %w", transactionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	return nil
}

// DeleteTransaction removes a transaction. Idempotent.
func (s *Store) DeleteTransaction(ctx context.Context, transactionID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, transactionID); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", transactionID, err)
	}
	return nil
}

// GetTransaction fetches one transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	query := selectTransaction + ` WHERE id = ?`
	tx, err := scanTransaction(s.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return tx, nil
}

// ListTransactionsByAccount returns all transactions for an account,
// newest first.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	query := selectTransaction + ` WHERE account_id = ? ORDER BY date DESC, id`

	rows, err := s.conn.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// TransactionTotal returns the sum of all transaction amounts for an
// account, in minor units. Used for balance-mismatch detection.
func (s *Store) TransactionTotal(ctx context.Context, accountID string) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = ?`
	if err := s.conn.QueryRowContext(ctx, query, accountID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to total transactions for account %s: %w", accountID, err)
	}
	return total, nil
}

const selectTransaction = `
	SELECT id, account_id, COALESCE(external_id, ''), amount, description,
	       COALESCE(category, ''), COALESCE(subcategory, ''), date, recurring,
	       COALESCE(merchant_name, ''), verified, COALESCE(notes, '')
	FROM transactions`

func scanTransaction(row scanner) (*model.Transaction, error) {
	var tx model.Transaction
	var date string
	var recurring, verified int

	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.ExternalID, &tx.Amount, &tx.Description,
		&tx.Category, &tx.Subcategory, &date, &recurring, &tx.Merchant,
		&verified, &tx.Notes,
	)
	if err != nil {
		return nil, err
	}

	if tx.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	tx.Recurring = recurring != 0
	tx.Verified = verified != 0
	return &tx, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
