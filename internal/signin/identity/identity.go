// Package identity is the bundled identity service: local accounts with
// argon2id passwords, an optional TOTP second factor, federated account
// links and password resets, all backed by the store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/internal/signin/store"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/idx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// Partial sign-in steps, relative to the base URL.
const (
	PathTOTP             = "~/mfa/totp"
	PathPasswordChange   = "~/password/change"
	PathExternalRegister = "~/external/register"
)

// MinPasswordLength applies to every password a user chooses.
const MinPasswordLength = 8

var (
	ErrNotPending           = errors.New("identity: partial sign-in is not waiting for this step")
	ErrInvalidTOTPCode      = errors.New("identity: invalid TOTP code")
	ErrMFANotEnabled        = errors.New("identity: MFA not enabled for this user")
	ErrMFAAlreadyEnabled    = errors.New("identity: MFA already enabled for this user")
	ErrSecondFactorRequired = errors.New("identity: second factor not completed")
	ErrNoPasswordChangeDue  = errors.New("identity: no password change due")
	ErrPasswordTooShort     = errors.New("identity: password too short")
	ErrPasswordConfirmation = errors.New("identity: passwords do not match")
	ErrUsernameRequired     = errors.New("identity: username required")
	ErrUsernameTaken        = errors.New("identity: username taken")
	ErrAlreadyLinked        = errors.New("identity: external identity already linked")
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Service implements service.IdentityService over the store.
type Service struct {
	Store store.Store
	// Registration lets a federated login without a linked account create
	// one through the external registration step.
	Registration bool
	// TOTPIssuer names the account in authenticator apps.
	TOTPIssuer string
	Now        func() time.Time
}

var _ service.IdentityService = (*Service)(nil)

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// PreAuthenticate never decides; the login page always gets a chance.
func (s *Service) PreAuthenticate(context.Context, *service.PreAuthenticationContext) error {
	return nil
}

func (s *Service) AuthenticateLocal(ctx context.Context, in *service.LocalAuthenticationContext) error {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByUsername(ctx, in.Username)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("no local account", slog.String("username", in.Username))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.PasswordHash == "" {
		log.Debug("account has no password", slog.String("user_id", user.ID))
		return nil
	}

	if err := cryptox.VerifyPassword(in.Password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil
		}
		return fmt.Errorf("verify password: %w", err)
	}
	// UpdatePasswordHash clears the forced change flag, so flagged accounts
	// keep their old hash until they pick a new password.
	if !user.ForcePasswordChange && cryptox.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, in.Password)
	}

	now := s.now()
	switch {
	case user.MFAEnabled():
		in.Result = domain.NewPartialOutcome(PathTOTP, pendingClaims(user, domain.AuthMethodPassword), nil)
	case user.ForcePasswordChange:
		in.Result = successOutcome(user, domain.AuthMethodPassword, now).WithForcePasswordChange()
	default:
		in.Result = successOutcome(user, domain.AuthMethodPassword, now)
	}
	return nil
}

func (s *Service) AuthenticateExternal(ctx context.Context, in *service.ExternalAuthenticationContext) error {
	log := slogx.FromContext(ctx)
	ext := in.External

	link, err := s.Store.ExternalLogins().GetExternalLogin(ctx, ext.Provider, ext.ProviderID)
	if errors.Is(err, store.ErrNotFound) {
		if !s.Registration {
			log.Info("external identity not linked", slog.String("provider", ext.Provider))
			return nil
		}
		in.Result = domain.NewPartialOutcome(PathExternalRegister, ext.Claims, &ext)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup external login: %w", err)
	}

	user, err := s.Store.Users().GetUserByID(ctx, link.UserID)
	if err != nil {
		return fmt.Errorf("lookup linked user: %w", err)
	}

	claims := successOutcome(user, domain.AuthMethodExternal, s.now()).Claims()
	for i, c := range claims {
		if c.Type == domain.ClaimIdentityProvider {
			claims[i].Value = ext.Provider
		}
	}
	in.Result = domain.NewSuccessOutcomeFromClaims(claims)
	return nil
}

// PostAuthenticate records the login time of local accounts and keeps the
// verdict as is.
func (s *Service) PostAuthenticate(ctx context.Context, in *service.PostAuthenticationContext) error {
	if in.Result == nil || !in.Result.IsSuccess() {
		return nil
	}
	sub := in.Result.Claims().Subject()
	if err := s.Store.Users().TouchLastLogin(ctx, sub, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		slogx.FromContext(ctx).Warn("failed to record last login", slog.String("user_id", sub), slog.Any("error", err))
	}
	return nil
}

func (s *Service) SignOut(ctx context.Context, in *service.SignOutContext) error {
	slogx.FromContext(ctx).Info("user signed out",
		slog.String("subject", in.Subject),
		slog.String("client_id", in.ClientID),
	)
	return nil
}

// StepResult is the outcome of a completed partial step: the claims to put
// back into the partial cookie and, when another step is due, its path.
type StepResult struct {
	Claims domain.Claims
	Next   string
}

// Done reports whether the claims now describe a completed authentication.
func (r StepResult) Done() bool { return r.Next == "" }

// CompleteTOTP checks the second factor of a local sign-in waiting at
// PathTOTP.
func (s *Service) CompleteTOTP(ctx context.Context, p domain.PartialSignIn, code string) (StepResult, error) {
	user, err := s.pendingUser(ctx, p)
	if err != nil {
		return StepResult{}, err
	}
	if !user.MFAEnabled() {
		return StepResult{}, ErrMFANotEnabled
	}
	if hasMethod(p.Claims, domain.AuthMethodOTP) {
		return StepResult{}, ErrNotPending
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), *user.TOTPSecret, s.now(), totpOpts)
	if err != nil || !ok {
		return StepResult{}, ErrInvalidTOTPCode
	}

	claims := append(p.Claims.WithoutTypes(domain.ClaimAuthTime),
		domain.Claim{Type: domain.ClaimAuthMethod, Value: domain.AuthMethodOTP},
		domain.Claim{Type: domain.ClaimAuthMethod, Value: domain.AuthMethodMFA},
	)
	if user.ForcePasswordChange {
		return StepResult{Claims: claims, Next: PathPasswordChange}, nil
	}
	return StepResult{Claims: complete(claims, s.now())}, nil
}

// ChangeForcedPassword replaces the password of an account flagged for a
// password change and completes the sign-in.
func (s *Service) ChangeForcedPassword(ctx context.Context, p domain.PartialSignIn, password, confirm string) (StepResult, error) {
	user, err := s.pendingUser(ctx, p)
	if err != nil {
		return StepResult{}, err
	}
	if !user.ForcePasswordChange {
		return StepResult{}, ErrNoPasswordChangeDue
	}
	if user.MFAEnabled() && !hasMethod(p.Claims, domain.AuthMethodOTP) {
		return StepResult{}, ErrSecondFactorRequired
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return StepResult{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return StepResult{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return StepResult{}, fmt.Errorf("update password: %w", err)
	}

	slogx.FromContext(ctx).Info("forced password change completed", slog.String("user_id", user.ID))
	return StepResult{Claims: complete(p.Claims, s.now())}, nil
}

// upgradeHash rehashes a verified password with the current settings. The
// sign-in goes ahead when this fails.
func (s *Service) upgradeHash(ctx context.Context, userID, password string) {
	log := slogx.FromContext(ctx)
	hash, err := cryptox.HashPassword(password)
	if err == nil {
		err = s.Store.Users().UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		log.Warn("password hash upgrade failed", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	log.Info("password hash upgraded", slog.String("user_id", userID))
}

// RegisterExternal creates a local account for the federated identity a
// partial sign-in waits on and links it. Resuming the sign-in afterwards
// finds the link.
func (s *Service) RegisterExternal(ctx context.Context, p domain.PartialSignIn, username, displayName string) (domain.User, error) {
	ext := p.ExternalIdentity()
	if ext == nil {
		return domain.User{}, ErrNotPending
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, ErrUsernameRequired
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = p.Claims.DisplayName()
	}

	now := s.now()
	user := domain.User{
		ID:          idx.NewAt(now),
		Username:    username,
		DisplayName: displayName,
		Email:       p.Claims.Value(domain.ClaimEmail),
	}
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrUsernameTaken
			}
			return err
		}
		err := tx.ExternalLogins().CreateExternalLogin(ctx, domain.ExternalLogin{
			Provider:   ext.Provider,
			ProviderID: ext.ProviderID,
			UserID:     user.ID,
			CreatedAt:  now,
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrAlreadyLinked
		}
		return err
	})
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("registered external account",
		slog.String("user_id", user.ID),
		slog.String("provider", ext.Provider),
	)
	return user, nil
}

// SuggestedUsername picks a username to prefill the registration form with.
func SuggestedUsername(claims domain.Claims) string {
	if v := claims.Value(domain.ClaimPreferredName); v != "" {
		return v
	}
	return claims.Value(domain.ClaimEmail)
}

// ValidatePassword applies the password rules to a new password.
func ValidatePassword(password, confirm string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if password != confirm {
		return ErrPasswordConfirmation
	}
	return nil
}

// pendingUser loads the local user a partial sign-in is waiting on.
// Federated and completed partial sign-ins are not pending a local step.
func (s *Service) pendingUser(ctx context.Context, p domain.PartialSignIn) (domain.User, error) {
	sub := p.Claims.Subject()
	if sub == "" || p.External != nil || p.Claims.Has(domain.ClaimAuthTime) {
		return domain.User{}, ErrNotPending
	}
	user, err := s.Store.Users().GetUserByID(ctx, sub)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotPending
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func successOutcome(u domain.User, method string, now time.Time) *domain.AuthenticationOutcome {
	return domain.NewSuccessOutcomeFromClaims(complete(pendingClaims(u, method), now))
}

// pendingClaims are the claims of a local user without auth_time. They
// cannot be resumed until a step completes them.
func pendingClaims(u domain.User, method string) domain.Claims {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	claims := domain.Claims{
		{Type: domain.ClaimSubject, Value: u.ID},
		{Type: domain.ClaimName, Value: name},
		{Type: domain.ClaimAuthMethod, Value: method},
		{Type: domain.ClaimIdentityProvider, Value: domain.LocalIdentityProvider},
		{Type: domain.ClaimPreferredName, Value: u.Username},
	}
	if u.Email != "" {
		claims = append(claims, domain.Claim{Type: domain.ClaimEmail, Value: u.Email})
	}
	return claims
}

func complete(claims domain.Claims, now time.Time) domain.Claims {
	out := claims.WithoutTypes(domain.ClaimAuthTime)
	return append(out, domain.Claim{
		Type:  domain.ClaimAuthTime,
		Value: strconv.FormatInt(now.Unix(), 10),
	})
}

func hasMethod(claims domain.Claims, method string) bool {
	return slices.ContainsFunc(claims, func(c domain.Claim) bool {
		return c.Type == domain.ClaimAuthMethod && c.Value == method
	})
}
