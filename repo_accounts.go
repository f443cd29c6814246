package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type accounts struct {
	db bun.IDB
}

var _ AccountRepository = (*accounts)(nil)

// NewAccountsRepository returns a bun backed AccountRepository
func NewAccountsRepository(db bun.IDB) AccountRepository {
	return &accounts{db: db}
}

func (r *accounts) FindAccount(ctx context.Context, providerID, accountID string) (*Account, error) {
	record := &Account{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ? AND ?TableAlias.account_id = ?", providerID, accountID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *accounts) FindAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error) {
	records := []*Account{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

func (r *accounts) FindCredentialAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	record := &Account{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ? AND ?TableAlias.provider_id = ?", userID, ProviderCredential).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpsertAccount inserts the account or refreshes the row with the same
// provider and subject. Callers resolve the owner first, so user_id is
// overwritten too, which repairs rows left pointing at a deleted user.
func (r *accounts) UpsertAccount(ctx context.Context, account *Account) (*Account, error) {
	now := time.Now().UTC()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(account).
		On("CONFLICT (provider_id, account_id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("id_token = EXCLUDED.id_token").
		Set("access_token_expires_at = EXCLUDED.access_token_expires_at").
		Set("scope = EXCLUDED.scope").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.FindAccount(ctx, account.ProviderID, account.AccountID)
}

func (r *accounts) UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error {
	_, err := r.db.NewUpdate().
		Model((*Account)(nil)).
		Set("password = ?", hash).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ? AND provider_id = ?", userID, ProviderCredential).
		Exec(ctx)
	return err
}
