package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type sessions struct {
	db bun.IDB
}

var _ SessionRepository = (*sessions)(nil)

// NewSessionsRepository returns a bun backed SessionRepository
func NewSessionsRepository(db bun.IDB) SessionRepository {
	return &sessions{db: db}
}

func (r *sessions) FindSessionByToken(ctx context.Context, token string) (*Session, error) {
	record := &Session{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
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

func (r *sessions) ListUserSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	var records []*Session
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

func (r *sessions) CreateSession(ctx context.Context, session *Session) (*Session, error) {
	now := time.Now().UTC()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessions) TouchSession(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*Session)(nil)).
		Set("expires_at = ?", expiresAt.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *sessions) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*Session)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *sessions) DeleteSessionByToken(ctx context.Context, token string) error {
	_, err := r.db.NewDelete().
		Model((*Session)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	return err
}

func (r *sessions) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *sessions) DeleteExpiredSessions(ctx context.Context, userID uuid.UUID, now time.Time) error {
	records, err := r.ListUserSessions(ctx, userID)
	if err != nil {
		return err
	}

	var expired []uuid.UUID
	for _, s := range records {
		if s.Expired(now) {
			expired = append(expired, s.ID)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	_, err = r.db.NewDelete().
		Model((*Session)(nil)).
		Where("id IN (?)", bun.In(expired)).
		Exec(ctx)
	return err
}
