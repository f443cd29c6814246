package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionRepository persists Session rows. Finders return (nil, nil) on a miss.
type SessionRepository interface {
	FindSessionByToken(ctx context.Context, token string) (*Session, error)
	ListUserSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	CreateSession(ctx context.Context, session *Session) (*Session, error)
	TouchSession(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteSessionByToken(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// AccountRepository persists Account rows. Finders return (nil, nil) on a miss.
type AccountRepository interface {
	FindAccount(ctx context.Context, providerID, accountID string) (*Account, error)
	FindAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*Account, error)
	FindCredentialAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	UpsertAccount(ctx context.Context, account *Account) (*Account, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) error
}

// UserRepository persists User rows. Finders return (nil, nil) on a miss.
type UserRepository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) (*User, error)
	UpdateUser(ctx context.Context, user *User) (*User, error)
	SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

// SessionState is a session merged with the user that owns it
type SessionState struct {
	Session *Session `json:"session"`
	User    *User    `json:"user"`
	// Extended is set when this lookup pushed ExpiresAt forward; the
	// cookie carrying the session must be re-issued.
	Extended bool `json:"-"`
}

// LinkedAccount is an account merged with the user that owns it
type LinkedAccount struct {
	Account *Account
	User    *User
}

// UserAccounts is a user merged with every account it owns
type UserAccounts struct {
	User     *User
	Accounts []*Account
}

// Store performs lookups that need related rows as explicit sequential
// fetches. A miss on either side is a miss on the whole lookup.
type Store struct {
	Sessions SessionRepository
	Accounts AccountRepository
	Users    UserRepository
}

// NewStore composes the repositories
func NewStore(sessions SessionRepository, accounts AccountRepository, users UserRepository) *Store {
	return &Store{
		Sessions: sessions,
		Accounts: accounts,
		Users:    users,
	}
}

// SessionWithUser fetches the session by token, then its user. A session
// pointing at a missing user is never returned.
func (s *Store) SessionWithUser(ctx context.Context, token string) (*SessionState, error) {
	if token == "" {
		return nil, nil
	}

	session, err := s.Sessions.FindSessionByToken(ctx, token)
	if err != nil {
		return nil, storageError(err, "failed to load session")
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.Users.FindUserByID(ctx, session.UserID)
	if err != nil {
		return nil, storageError(err, "failed to load session user")
	}
	if user == nil {
		return nil, nil
	}

	return &SessionState{Session: session, User: user}, nil
}

// AccountWithUser fetches the account by provider and subject, then its
// user. Used to tell whether a federated identity is already linked.
func (s *Store) AccountWithUser(ctx context.Context, providerID, accountID string) (*LinkedAccount, error) {
	account, err := s.Accounts.FindAccount(ctx, providerID, accountID)
	if err != nil {
		return nil, storageError(err, "failed to load account")
	}
	if account == nil {
		return nil, nil
	}

	user, err := s.Users.FindUserByID(ctx, account.UserID)
	if err != nil {
		return nil, storageError(err, "failed to load account user")
	}
	if user == nil {
		return nil, nil
	}

	return &LinkedAccount{Account: account, User: user}, nil
}

// UserWithAccounts fetches the user, then its accounts. A missing user
// yields (nil, nil) so callers see an empty account list.
func (s *Store) UserWithAccounts(ctx context.Context, userID uuid.UUID) (*UserAccounts, error) {
	user, err := s.Users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, storageError(err, "failed to load user")
	}
	if user == nil {
		return nil, nil
	}

	accounts, err := s.Accounts.FindAccountsByUser(ctx, user.ID)
	if err != nil {
		return nil, storageError(err, "failed to load user accounts")
	}
	if accounts == nil {
		accounts = []*Account{}
	}

	return &UserAccounts{User: user, Accounts: accounts}, nil
}

// AccountsOf returns the accounts of userID, empty when the user is missing.
func (s *Store) AccountsOf(ctx context.Context, userID uuid.UUID) ([]*Account, error) {
	ua, err := s.UserWithAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ua == nil {
		return []*Account{}, nil
	}
	return ua.Accounts, nil
}
