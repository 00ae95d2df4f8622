package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/northapp/northsync/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertItem inserts or updates a linked institution item.
func (s *Store) UpsertItem(ctx context.Context, item *model.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	query := `
	INSERT INTO items (id, user_id, institution_id, institution_name, access_token, linked_at, active)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		institution_name = excluded.institution_name,
		access_token = excluded.access_token,
		active = excluded.active
	`

	_, err := s.conn.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		item.InstitutionID,
		item.InstitutionName,
		item.AccessToken,
		item.LinkedAt.UTC().Format(time.RFC3339),
		boolToInt(item.Active),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
	}
	return nil
}

// GetItem fetches one item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*model.Item, error) {
	query := `
	SELECT id, user_id, institution_id, COALESCE(institution_name, ''), access_token, linked_at, active
	FROM items WHERE id = ?
	`

	var item model.Item
	var linkedAt string
	var active int
	err := s.conn.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.UserID, &item.InstitutionID, &item.InstitutionName,
		&item.AccessToken, &linkedAt, &active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}

	if item.LinkedAt, err = parseTime(linkedAt); err != nil {
		return nil, err
	}
	item.Active = active != 0
	return &item, nil
}

// ListItemsByUser returns all active items for a user.
func (s *Store) ListItemsByUser(ctx context.Context, userID string) ([]model.Item, error) {
	query := `
	SELECT id, user_id, institution_id, COALESCE(institution_name, ''), access_token, linked_at, active
	FROM items WHERE user_id = ? AND active = 1 ORDER BY linked_at
	`

	rows, err := s.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items for user %s: %w", userID, err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		var linkedAt string
		var active int
		if err := rows.Scan(&item.ID, &item.UserID, &item.InstitutionID, &item.InstitutionName,
			&item.AccessToken, &linkedAt, &active); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if item.LinkedAt, err = parseTime(linkedAt); err != nil {
			return nil, err
		}
		item.Active = active != 0
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertAccount inserts or updates an account row.
//
// Financial facts come from the caller wholesale; the unique identity
// index (user, institution, external id, active) rejects duplicates.
func (s *Store) UpsertAccount(ctx context.Context, acct *model.Account) error {
	if err := acct.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	query := `
	INSERT INTO accounts (
		id, user_id, item_id, institution_id, institution_name, external_id,
		type, balance, available_balance, currency, last_updated, active
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		institution_name = excluded.institution_name,
		type = excluded.type,
		balance = excluded.balance,
		available_balance = excluded.available_balance,
		currency = excluded.currency,
		last_updated = excluded.last_updated,
		active = excluded.active
	`

	_, err := s.conn.ExecContext(ctx, query,
		acct.ID,
		acct.UserID,
		acct.ItemID,
		acct.InstitutionID,
		acct.InstitutionName,
		acct.ExternalID,
		acct.Type,
		acct.Balance,
		nullInt64(acct.AvailableBalance),
		acct.Currency,
		acct.LastUpdated.UTC().Format(time.RFC3339),
		boolToInt(acct.Active),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", acct.ID, err)
	}
	return nil
}

// ApplySyncResult atomically updates balance, available balance, and
// last_updated for an account in a single statement. This is the only
// write path the orchestrator uses for balances.
func (s *Store) ApplySyncResult(ctx context.Context, accountID string, balance int64, available *int64, lastUpdated time.Time) error {
	query := `
	UPDATE accounts
	SET balance = ?, available_balance = ?, last_updated = ?
	WHERE id = ?
	`

	res, err := s.conn.ExecContext(ctx, query,
		balance, nullInt64(available), lastUpdated.UTC().Format(time.RFC3339), accountID)
	if err != nil {
		return fmt.Errorf("failed to apply sync result for account %s: %w", accountID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return nil
}

// GetAccount fetches one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	query := selectAccount + ` WHERE id = ?`
	row := s.conn.QueryRowContext(ctx, query, id)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return acct, nil
}

// FindAccountByExternalID fetches the active account matching the identity
// tuple, if it exists.
func (s *Store) FindAccountByExternalID(ctx context.Context, userID, institutionID, externalID string) (*model.Account, error) {
	query := selectAccount + ` WHERE user_id = ? AND institution_id = ? AND external_id = ? AND active = 1`
	row := s.conn.QueryRowContext(ctx, query, userID, institutionID, externalID)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account %s/%s/%s: %w", userID, institutionID, externalID, err)
	}
	return acct, nil
}

// ListAccountsByUser returns all active accounts for a user.
func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]model.Account, error) {
	query := selectAccount + ` WHERE user_id = ? AND active = 1 ORDER BY institution_id, external_id`

	rows, err := s.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// ListAccountsByItem returns all active accounts linked through one item.
func (s *Store) ListAccountsByItem(ctx context.Context, itemID string) ([]model.Account, error) {
	query := selectAccount + ` WHERE item_id = ? AND active = 1 ORDER BY external_id`

	rows, err := s.conn.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for item %s: %w", itemID, err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// ListUserIDs returns every user with at least one active item. The
// daemon iterates this set on each background cycle.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT user_id FROM items WHERE active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

const selectAccount = `
	SELECT id, user_id, item_id, institution_id, COALESCE(institution_name, ''), external_id,
	       type, balance, available_balance, currency, last_updated, active
	FROM accounts`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*model.Account, error) {
	var acct model.Account
	var available sql.NullInt64
	var lastUpdated string
	var active int

	err := row.Scan(
		&acct.ID, &acct.UserID, &acct.ItemID, &acct.InstitutionID, &acct.InstitutionName,
		&acct.ExternalID, &acct.Type, &acct.Balance, &available, &acct.Currency,
		&lastUpdated, &active,
	)
	if err != nil {
		return nil, err
	}

	if available.Valid {
		v := available.Int64
		acct.AvailableBalance = &v
	}
	if acct.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	acct.Active = active != 0
	return &acct, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
