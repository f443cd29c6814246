package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the user repository. It satisfies UserRepository and exposes the
// generic repository for callers that need richer queries.
type Users interface {
	UserRepository
	Generic() repository.Repository[*User]
}

type users struct {
	repo repository.Repository[*User]
	db   bun.IDB
}

var _ Users = (*users)(nil)

// NewUsersRepository builds the users repository over db
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{repo: repo, db: db}
}

func (u *users) withTx(tx bun.IDB) *users {
	return &users{repo: u.repo, db: tx}
}

func (u *users) Generic() repository.Repository[*User] {
	return u.repo
}

func (u *users) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record, err := u.repo.GetByIDTx(ctx, u.db, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (u *users) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	record, err := u.repo.GetByIdentifierTx(ctx, u.db, normalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (u *users) CreateUser(ctx context.Context, user *User) (*User, error) {
	prepareUserDefaults(user)
	return u.repo.CreateTx(ctx, u.db, user)
}

func (u *users) UpdateUser(ctx context.Context, user *User) (*User, error) {
	user.UpdatedAt = time.Now().UTC()
	user.Email = normalizeEmail(user.Email)
	user.Role = roleOrDefault(user.Role)
	return u.repo.UpdateTx(ctx, u.db, user, repository.UpdateByID(user.ID.String()))
}

func (u *users) SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error) {
	user, err := u.FindUserByID(ctx, id)
	if err != nil || user == nil {
		return nil, err
	}
	user.Role = role
	return u.UpdateUser(ctx, user)
}

func (u *users) MarkEmailVerified(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := u.FindUserByID(ctx, id)
	if err != nil || user == nil {
		return nil, err
	}
	if user.EmailVerified {
		return user, nil
	}
	user.EmailVerified = true
	return u.UpdateUser(ctx, user)
}

func (u *users) ListUsers(ctx context.Context) ([]*User, error) {
	records := []*User{}
	err := u.db.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func prepareUserDefaults(user *User) {
	if user == nil {
		return
	}
	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = normalizeEmail(user.Email)
	user.Role = roleOrDefault(user.Role)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
}
