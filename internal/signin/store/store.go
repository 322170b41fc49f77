package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Sub-repositories are methods so
// a Tx can hand out the same repositories bound to the transaction.
type Store interface {
	Users() Users
	Clients() Clients
	ExternalLogins() ExternalLogins
	PasswordResets() PasswordResets

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST call Commit() or
	// Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser fails with ErrAlreadyExists on a taken username.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash also clears the forced password change flag.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	SetForcePasswordChange(ctx context.Context, userID string, force bool) error

	// UpdateTOTPSecret enrols (non-nil) or removes (nil) the second factor.
	UpdateTOTPSecret(ctx context.Context, userID string, secret *string) error

	TouchLastLogin(ctx context.Context, userID string, at time.Time) error

	IsEmpty(ctx context.Context) (bool, error)
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients orders by creation, newest first.
	ListClients(ctx context.Context) ([]domain.Client, error)

	CreateClient(ctx context.Context, c domain.Client) error
	DeleteClient(ctx context.Context, id string) error
}

type ExternalLogins interface {
	GetExternalLogin(ctx context.Context, provider, providerID string) (domain.ExternalLogin, error)

	// CreateExternalLogin fails with ErrAlreadyExists when the federated
	// identity is already linked.
	CreateExternalLogin(ctx context.Context, l domain.ExternalLogin) error

	ListUserExternalLogins(ctx context.Context, userID string) ([]domain.ExternalLogin, error)
}

type PasswordResets interface {
	CreatePasswordReset(ctx context.Context, r domain.PasswordReset) error

	// GetPendingPasswordReset returns the newest unverified, unexpired reset
	// of the user.
	GetPendingPasswordReset(ctx context.Context, userID string, now time.Time) (domain.PasswordReset, error)

	// GetPasswordResetByTokenHash returns a verified, unexpired reset.
	GetPasswordResetByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.PasswordReset, error)

	// IncrementPasswordResetAttempts returns the new attempt count.
	IncrementPasswordResetAttempts(ctx context.Context, id string) (int, error)

	MarkPasswordResetVerified(ctx context.Context, id, tokenHash string, at time.Time) error

	// DeleteUserPasswordResets removes every reset of the user.
	DeleteUserPasswordResets(ctx context.Context, userID string) error

	// DeleteExpiredPasswordResets is housekeeping; it returns the number of
	// rows removed.
	DeleteExpiredPasswordResets(ctx context.Context, now time.Time) (int64, error)
}
