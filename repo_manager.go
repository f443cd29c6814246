package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Sessions() SessionRepository
	Accounts() AccountRepository
	Passkeys() PasskeyRepository
	Verifications() VerificationRepository
	Store() *Store
	// WithTx returns a manager whose repositories run inside tx
	WithTx(tx bun.IDB) RepositoryManager
}

type mngr struct {
	db            *bun.DB
	users         *users
	sessions      SessionRepository
	accounts      AccountRepository
	passkeys      PasskeyRepository
	verifications VerificationRepository
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db).(*users),
		sessions:      NewSessionsRepository(db),
		accounts:      NewAccountsRepository(db),
		passkeys:      NewPasskeysRepository(db),
		verifications: NewVerificationsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}
	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}
	if m.passkeys == nil {
		return errors.New("repository passkeys should be initialized")
	}
	if m.verifications == nil {
		return errors.New("repository verifications should be initialized")
	}
	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) WithTx(tx bun.IDB) RepositoryManager {
	return &mngr{
		db:            m.db,
		users:         m.users.withTx(tx),
		sessions:      NewSessionsRepository(tx),
		accounts:      NewAccountsRepository(tx),
		passkeys:      NewPasskeysRepository(tx),
		verifications: NewVerificationsRepository(tx),
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Sessions() SessionRepository {
	return m.sessions
}

func (m mngr) Accounts() AccountRepository {
	return m.accounts
}

func (m mngr) Passkeys() PasskeyRepository {
	return m.passkeys
}

func (m mngr) Verifications() VerificationRepository {
	return m.verifications
}

func (m mngr) Store() *Store {
	return NewStore(m.sessions, m.accounts, m.users)
}
