package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/provider"
	"github.com/northapp/northsync/internal/store"
)

// LinkFile is the JSON payload the app drops into the spool after a
// successful Link token exchange. It is the asynchronous boundary between
// the platform SDK callback and the sync engine: the engine never holds a
// callback, it just ingests these files.
type LinkFile struct {
	ItemID          string    `json:"item_id"`
	UserID          string    `json:"user_id"`
	InstitutionID   string    `json:"institution_id"`
	InstitutionName string    `json:"institution_name,omitempty"`
	AccessToken     string    `json:"access_token"`
	LinkedAt        time.Time `json:"linked_at"`
}

// Validate checks required link fields.
func (f *LinkFile) Validate() error {
	if f.ItemID == "" {
		return fmt.Errorf("item_id is required")
	}
	if f.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if f.InstitutionID == "" {
		return fmt.Errorf("institution_id is required")
	}
	if f.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	return nil
}

// Ingestor turns link files into items and discovered accounts.
type Ingestor struct {
	store    *store.Store
	provider provider.Provider
	logger   *log.Logger
}

// NewIngestor creates an Ingestor. If logger is nil, ingestion is not
// logged.
func NewIngestor(st *store.Store, pv provider.Provider, logger *log.Logger) *Ingestor {
	return &Ingestor{store: st, provider: pv, logger: logger}
}

// Ingest reads one link file, stores the item, and discovers its accounts
// from the provider. Already-known accounts are left alone. The file is
// removed after successful ingestion.
func (in *Ingestor) Ingest(ctx context.Context, path string) (*model.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read link file: %w", err)
	}

	var file LinkFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse link file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid link file: %w", err)
	}

	item := &model.Item{
		ID:              file.ItemID,
		UserID:          file.UserID,
		InstitutionID:   file.InstitutionID,
		InstitutionName: file.InstitutionName,
		AccessToken:     file.AccessToken,
		LinkedAt:        file.LinkedAt,
		Active:          true,
	}
	if item.LinkedAt.IsZero() {
		item.LinkedAt = time.Now()
	}

	// Fill the institution name from the catalog/provider when the app
	// did not supply one.
	if item.InstitutionName == "" {
		if inst, err := in.provider.Institution(ctx, item.InstitutionID); err == nil {
			item.InstitutionName = inst.Name
		}
	}

	if err := in.store.UpsertItem(ctx, item); err != nil {
		return nil, err
	}

	discovered, err := in.discoverAccounts(ctx, item)
	if err != nil {
		return nil, err
	}

	if in.logger != nil {
		in.logger.Printf("Linked item %s (%s): %d account(s) discovered", item.ID, item.InstitutionID, discovered)
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("failed to remove ingested link file: %w", err)
	}
	return item, nil
}

// discoverAccounts creates local rows for provider accounts not yet known.
// Balances land on the first sync pass; rows start with a zero watermark
// so incremental sync treats them as due immediately.
func (in *Ingestor) discoverAccounts(ctx context.Context, item *model.Item) (int, error) {
	remoteAccounts, err := in.provider.Accounts(ctx, item.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("failed to discover accounts for item %s: %w", item.ID, err)
	}

	discovered := 0
	for _, ra := range remoteAccounts {
		if ra.Closed {
			continue
		}

		_, err := in.store.FindAccountByExternalID(ctx, item.UserID, item.InstitutionID, ra.ExternalID)
		if err == nil {
			continue
		}
		if err != store.ErrNotFound {
			return discovered, err
		}

		acct := &model.Account{
			ID:              uuid.NewString(),
			UserID:          item.UserID,
			ItemID:          item.ID,
			InstitutionID:   item.InstitutionID,
			InstitutionName: item.InstitutionName,
			ExternalID:      ra.ExternalID,
			Type:            ra.Type,
			Currency:        ra.Currency,
			Active:          true,
		}
		if err := in.store.UpsertAccount(ctx, acct); err != nil {
			return discovered, err
		}
		discovered++
	}

	return discovered, nil
}

// ingestLinkFile is the daemon's ingest path: store the item, then sync
// the user so the new accounts get balances right away.
func (d *Daemon) ingestLinkFile(ctx context.Context, path string) error {
	if d.ingestor == nil {
		return fmt.Errorf("daemon has no ingestor configured")
	}

	item, err := d.ingestor.Ingest(ctx, path)
	if err != nil {
		return err
	}

	if _, err := d.orch.IncrementalSync(ctx, item.UserID); err != nil {
		return fmt.Errorf("failed to sync newly linked item %s: %w", item.ID, err)
	}
	return nil
}
