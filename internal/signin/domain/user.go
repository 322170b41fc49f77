package domain

import "time"

// User is a local account managed by the bundled identity service.
type User struct {
	ID                  string
	Username            string
	DisplayName         string
	Email               string
	PasswordHash        string
	TOTPSecret          *string
	ForcePasswordChange bool
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MFAEnabled reports whether the account has a TOTP second factor.
func (u User) MFAEnabled() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// ExternalLogin links a federated identity to a local account.
type ExternalLogin struct {
	Provider   string
	ProviderID string
	UserID     string
	CreatedAt  time.Time
}

// PasswordReset tracks one reset attempt. The proof code is sent to the user
// out of band; once verified, a one-time token authorises the new password.
type PasswordReset struct {
	ID         string
	UserID     string
	CodeHash   string
	TokenHash  *string
	Attempts   int
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the reset can no longer be used at now.
func (r PasswordReset) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
