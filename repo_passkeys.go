package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasskeyRepository persists registered WebAuthn credentials
type PasskeyRepository interface {
	ListUserPasskeys(ctx context.Context, userID uuid.UUID) ([]*Passkey, error)
	FindPasskeyByCredentialID(ctx context.Context, credentialID string) (*Passkey, error)
	CreatePasskey(ctx context.Context, passkey *Passkey) (*Passkey, error)
	UpdatePasskeyUsage(ctx context.Context, id uuid.UUID, credential string, counter int64, usedAt time.Time) error
	DeletePasskey(ctx context.Context, userID, id uuid.UUID) (bool, error)
}

type passkeys struct {
	db bun.IDB
}

var _ PasskeyRepository = (*passkeys)(nil)

// NewPasskeysRepository returns a bun backed PasskeyRepository
func NewPasskeysRepository(db bun.IDB) PasskeyRepository {
	return &passkeys{db: db}
}

func (r *passkeys) ListUserPasskeys(ctx context.Context, userID uuid.UUID) ([]*Passkey, error) {
	records := []*Passkey{}
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

func (r *passkeys) FindPasskeyByCredentialID(ctx context.Context, credentialID string) (*Passkey, error) {
	record := &Passkey{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.credential_id = ?", credentialID).
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

func (r *passkeys) CreatePasskey(ctx context.Context, passkey *Passkey) (*Passkey, error) {
	if passkey.ID == uuid.Nil {
		passkey.ID = uuid.New()
	}
	if passkey.CreatedAt.IsZero() {
		passkey.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NewInsert().Model(passkey).Exec(ctx); err != nil {
		return nil, err
	}
	return passkey, nil
}

func (r *passkeys) UpdatePasskeyUsage(ctx context.Context, id uuid.UUID, credential string, counter int64, usedAt time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*Passkey)(nil)).
		Set("credential = ?", credential).
		Set("counter = ?", counter).
		Set("last_used_at = ?", usedAt.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *passkeys) DeletePasskey(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*Passkey)(nil)).
		Where("id = ? AND user_id = ?", id, userID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
