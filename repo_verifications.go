package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationRepository persists single use tokens
type VerificationRepository interface {
	CreateVerification(ctx context.Context, v *Verification) (*Verification, error)
	FindVerification(ctx context.Context, identifier string) (*Verification, error)
	DeleteVerification(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteVerificationsByValue(ctx context.Context, identifierPrefix, value string) error
}

type verifications struct {
	db bun.IDB
}

var _ VerificationRepository = (*verifications)(nil)

// NewVerificationsRepository returns a bun backed VerificationRepository
func NewVerificationsRepository(db bun.IDB) VerificationRepository {
	return &verifications{db: db}
}

func (r *verifications) CreateVerification(ctx context.Context, v *Verification) (*Verification, error) {
	now := time.Now().UTC()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	if _, err := r.db.NewInsert().Model(v).Exec(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *verifications) FindVerification(ctx context.Context, identifier string) (*Verification, error) {
	record := &Verification{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.identifier = ?", identifier).
		Order("created_at DESC").
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

// DeleteVerification removes the row. The bool is false when another caller
// already consumed it.
func (r *verifications) DeleteVerification(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*Verification)(nil)).
		Where("id = ?", id).
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

func (r *verifications) DeleteVerificationsByValue(ctx context.Context, identifierPrefix, value string) error {
	_, err := r.db.NewDelete().
		Model((*Verification)(nil)).
		Where("identifier LIKE ? AND value = ?", identifierPrefix+":%", value).
		Exec(ctx)
	return err
}
