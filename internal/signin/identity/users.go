package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/store"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/idx"
)

// DefaultTOTPIssuer labels enrolments when no issuer is configured.
const DefaultTOTPIssuer = "signin"

// NewUser is an account created by an operator.
type NewUser struct {
	Username    string
	DisplayName string
	Email       string
	// Password is generated when empty.
	Password            string
	ForcePasswordChange bool
}

// CreateUser adds a local account. It returns the generated password when
// none was given.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (domain.User, string, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return domain.User{}, "", ErrUsernameRequired
	}

	password, generated := in.Password, ""
	if password == "" {
		var err error
		if password, err = cryptox.GeneratePassword(); err != nil {
			return domain.User{}, "", err
		}
		generated = password
	} else if len(password) < MinPasswordLength {
		return domain.User{}, "", ErrPasswordTooShort
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:                  idx.NewAt(s.now()),
		Username:            username,
		DisplayName:         strings.TrimSpace(in.DisplayName),
		Email:               strings.TrimSpace(in.Email),
		PasswordHash:        hash,
		ForcePasswordChange: in.ForcePasswordChange,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, "", ErrUsernameTaken
		}
		return domain.User{}, "", err
	}
	return user, generated, nil
}

// EnrollTOTP generates and stores a TOTP secret for username. The returned
// key carries the otpauth:// URL for authenticator apps.
func (s *Service) EnrollTOTP(ctx context.Context, username string) (*otp.Key, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.MFAEnabled() {
		return nil, ErrMFAAlreadyEnabled
	}

	issuer := s.TOTPIssuer
	if issuer == "" {
		issuer = DefaultTOTPIssuer
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: user.Username,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("generate TOTP key: %w", err)
	}

	secret := key.Secret()
	if err := s.Store.Users().UpdateTOTPSecret(ctx, user.ID, &secret); err != nil {
		return nil, fmt.Errorf("store TOTP secret: %w", err)
	}
	return key, nil
}

// DisableTOTP removes the second factor of username.
func (s *Service) DisableTOTP(ctx context.Context, username string) error {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.MFAEnabled() {
		return ErrMFANotEnabled
	}
	return s.Store.Users().UpdateTOTPSecret(ctx, user.ID, nil)
}
