package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/internal/signin/store"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/idx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// Reset defaults.
const (
	DefaultResetCodeLength  = 6
	DefaultResetTTL         = 15 * time.Minute
	DefaultResetMaxAttempts = 5
)

// Localized message ids of identity failures.
const (
	MsgPasswordTooShort     = "password_too_short"
	MsgResetCodeExpired     = "reset_code_expired"
	MsgResetTooManyAttempts = "reset_too_many_attempts"
	MsgResetLinkInvalid     = "reset_link_invalid"
	MsgInvalidTOTPCode      = "invalid_totp_code"
	MsgUsernameTaken        = "username_taken"
)

// CodeSender delivers a reset proof to the account owner.
type CodeSender interface {
	SendResetCode(ctx context.Context, user domain.User, code string) error
}

// LogCodeSender writes reset codes to the log. It is meant for development
// deployments without a mail relay.
type LogCodeSender struct{}

func (LogCodeSender) SendResetCode(ctx context.Context, user domain.User, code string) error {
	slogx.FromContext(ctx).Warn("password reset code issued",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("code", code),
	)
	return nil
}

// Resets implements service.PasswordResetService. A reset is a numeric
// proof sent out of band; a verified proof is traded for a one-time token
// that authorises the new password.
type Resets struct {
	Store  store.Store
	Sender CodeSender
	Locale service.Localizer

	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time
}

var _ service.PasswordResetService = (*Resets)(nil)

func (r *Resets) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Resets) codeLength() int {
	if r.CodeLength > 0 {
		return r.CodeLength
	}
	return DefaultResetCodeLength
}

func (r *Resets) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return DefaultResetTTL
}

func (r *Resets) maxAttempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return DefaultResetMaxAttempts
}

func (r *Resets) failed(ctx context.Context, id string, args ...any) *service.ResetPasswordResult {
	msg := r.Locale.Message(ctx, id)
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &service.ResetPasswordResult{ErrorMessage: msg}
}

// RequestReset replaces any pending reset of the user with a fresh code.
// Unknown usernames succeed too, so the form does not reveal accounts.
func (r *Resets) RequestReset(ctx context.Context, in *service.ResetPasswordContext) error {
	log := slogx.FromContext(ctx)

	user, err := r.Store.Users().GetUserByUsername(ctx, in.Username)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("password reset requested for unknown username", slog.String("username", in.Username))
		in.Result = &service.ResetPasswordResult{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	code, err := cryptox.GenerateNumericCode(r.codeLength())
	if err != nil {
		return err
	}
	codeHash, err := cryptox.HashPassword(code)
	if err != nil {
		return fmt.Errorf("hash reset code: %w", err)
	}

	now := r.now()
	reset := domain.PasswordReset{
		ID:        idx.NewAt(now),
		UserID:    user.ID,
		CodeHash:  codeHash,
		ExpiresAt: now.Add(r.ttl()),
		CreatedAt: now,
	}
	err = r.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PasswordResets().DeleteUserPasswordResets(ctx, user.ID); err != nil {
			return err
		}
		return tx.PasswordResets().CreatePasswordReset(ctx, reset)
	})
	if err != nil {
		return fmt.Errorf("store password reset: %w", err)
	}

	if err := r.Sender.SendResetCode(ctx, user, code); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}

	in.Username = user.Username
	in.Result = &service.ResetPasswordResult{}
	return nil
}

// VerifyReset trades a correct proof for the callback token. Every attempt
// counts against the reset, right or wrong.
func (r *Resets) VerifyReset(ctx context.Context, in *service.ResetPasswordVerifyContext) error {
	log := slogx.FromContext(ctx)

	user, err := r.Store.Users().GetUserByUsername(ctx, in.Username)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	now := r.now()
	reset, err := r.Store.PasswordResets().GetPendingPasswordReset(ctx, user.ID, now)
	if errors.Is(err, store.ErrNotFound) {
		in.Result = r.failed(ctx, MsgResetCodeExpired)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup password reset: %w", err)
	}

	attempts, err := r.Store.PasswordResets().IncrementPasswordResetAttempts(ctx, reset.ID)
	if err != nil {
		return fmt.Errorf("count reset attempt: %w", err)
	}
	if attempts > r.maxAttempts() {
		log.Warn("password reset exceeded max attempts", slog.String("user_id", user.ID), slog.Int("attempts", attempts))
		if err := r.Store.PasswordResets().DeleteUserPasswordResets(ctx, user.ID); err != nil {
			return fmt.Errorf("drop password reset: %w", err)
		}
		in.Result = r.failed(ctx, MsgResetTooManyAttempts)
		return nil
	}

	if err := cryptox.VerifyPassword(in.Proof, reset.CodeHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			log.Info("wrong password reset code", slog.String("user_id", user.ID), slog.Int("attempts", attempts))
			return nil
		}
		return fmt.Errorf("verify reset code: %w", err)
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}
	err = r.Store.PasswordResets().MarkPasswordResetVerified(ctx, reset.ID, cryptox.FingerprintToken(token), now)
	if errors.Is(err, store.ErrNotFound) {
		in.Result = r.failed(ctx, MsgResetCodeExpired)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark reset verified: %w", err)
	}

	in.Username = user.Username
	in.Result = &service.ResetPasswordResult{Token: token}
	return nil
}

// CompleteReset sets the new password and burns every reset of the user.
func (r *Resets) CompleteReset(ctx context.Context, in *service.ResetPasswordCallbackContext) error {
	switch err := ValidatePassword(in.Password, in.ConfirmPassword); {
	case errors.Is(err, ErrPasswordTooShort):
		in.Result = r.failed(ctx, MsgPasswordTooShort, MinPasswordLength)
		return nil
	case errors.Is(err, ErrPasswordConfirmation):
		in.Result = r.failed(ctx, service.MsgPasswordConfirmationMismatch)
		return nil
	}

	reset, err := r.Store.PasswordResets().GetPasswordResetByTokenHash(ctx, cryptox.FingerprintToken(in.Token), r.now())
	if errors.Is(err, store.ErrNotFound) {
		in.Result = r.failed(ctx, MsgResetLinkInvalid)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup password reset: %w", err)
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var user domain.User
	err = r.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, reset.UserID, hash); err != nil {
			return err
		}
		if err := tx.PasswordResets().DeleteUserPasswordResets(ctx, reset.UserID); err != nil {
			return err
		}
		u, err := tx.Users().GetUserByID(ctx, reset.UserID)
		user = u
		return err
	})
	if err != nil {
		return fmt.Errorf("apply password reset: %w", err)
	}

	slogx.FromContext(ctx).Info("password reset applied", slog.String("user_id", user.ID))
	in.Username = user.Username
	in.Result = &service.ResetPasswordResult{}
	return nil
}

// HandlePasswordChangeForced turns a successful login of a flagged account
// into a partial sign-in waiting at PathPasswordChange. The claims lose
// auth_time so the sign-in cannot resume before the change.
func (r *Resets) HandlePasswordChangeForced(ctx context.Context, in *service.LocalAuthenticationContext) error {
	if in.Result == nil || !in.Result.IsSuccess() {
		return nil
	}
	claims := in.Result.Claims().WithoutTypes(domain.ClaimAuthTime)
	in.Result = domain.NewPartialOutcome(PathPasswordChange, claims, nil)
	slogx.FromContext(ctx).Info("password change required before sign-in completes",
		slog.String("user_id", claims.Subject()))
	return nil
}

// PurgeExpired is housekeeping for resets nobody finished.
func (r *Resets) PurgeExpired(ctx context.Context) (int64, error) {
	return r.Store.PasswordResets().DeleteExpiredPasswordResets(ctx, r.now())
}
