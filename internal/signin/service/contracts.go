package service

import (
	"context"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

// IdentityService decides who the user is. Each hook receives a context
// value and records its verdict in Result; a nil Result always means
// "no decision". A returned error is a backing failure, not a verdict.
type IdentityService interface {
	PreAuthenticate(ctx context.Context, in *PreAuthenticationContext) error
	AuthenticateLocal(ctx context.Context, in *LocalAuthenticationContext) error
	AuthenticateExternal(ctx context.Context, in *ExternalAuthenticationContext) error
	PostAuthenticate(ctx context.Context, in *PostAuthenticationContext) error
	SignOut(ctx context.Context, in *SignOutContext) error
}

type PreAuthenticationContext struct {
	SignIn   domain.SignInRequest
	SignInID string

	Result *domain.AuthenticationOutcome
	// ShowLoginPageOnErrorResult renders an error Result on the login page
	// instead of the error page.
	ShowLoginPageOnErrorResult bool
}

type LocalAuthenticationContext struct {
	Username string
	Password string
	SignIn   domain.SignInRequest

	Result *domain.AuthenticationOutcome
}

type ExternalAuthenticationContext struct {
	External domain.ExternalIdentity
	SignIn   domain.SignInRequest

	Result *domain.AuthenticationOutcome
}

// PostAuthenticationContext starts with Result set to the outcome being
// finalized. The hook may keep it, replace it or clear it.
type PostAuthenticationContext struct {
	SignIn   domain.SignInRequest
	SignInID string

	Result                     *domain.AuthenticationOutcome
	ShowLoginPageOnErrorResult bool
}

type SignOutContext struct {
	Subject  string
	ClientID string
}

// PasswordResetService drives the three reset stages and forced password
// changes discovered during local login.
type PasswordResetService interface {
	RequestReset(ctx context.Context, in *ResetPasswordContext) error
	VerifyReset(ctx context.Context, in *ResetPasswordVerifyContext) error
	CompleteReset(ctx context.Context, in *ResetPasswordCallbackContext) error
	HandlePasswordChangeForced(ctx context.Context, in *LocalAuthenticationContext) error
}

// ResetPasswordResult is an error when ErrorMessage is set.
type ResetPasswordResult struct {
	ErrorMessage string
	Token        string
}

func (r *ResetPasswordResult) IsError() bool { return r.ErrorMessage != "" }

type ResetPasswordContext struct {
	// Username may be rewritten to its canonical form by the service.
	Username string
	SignIn   domain.SignInRequest

	Result *ResetPasswordResult
}

type ResetPasswordVerifyContext struct {
	Username string
	Proof    string
	SignIn   domain.SignInRequest

	// Result.Token is the one-time token for the callback stage.
	Result *ResetPasswordResult
}

type ResetPasswordCallbackContext struct {
	Token           string
	Password        string
	ConfirmPassword string
	SignIn          domain.SignInRequest

	// Username is set by the service once the reset is applied.
	Username string
	Result   *ResetPasswordResult
}

// ClientStore looks up relying party metadata. FindClientByID returns nil
// and no error for an unknown client.
type ClientStore interface {
	FindClientByID(ctx context.Context, clientID string) (*domain.Client, error)
	IsValidIdentityProvider(ctx context.Context, clientID, provider string) (bool, error)
	GetIdentityProviderRestrictions(ctx context.Context, clientID string) ([]string, error)
}

// EventSink records audit events. Sinks own their delivery errors.
type EventSink interface {
	Raise(ctx context.Context, ev domain.Event)
}

// Localizer resolves message ids for the request language. The language
// selection lives in ctx, never in process state.
type Localizer interface {
	Message(ctx context.Context, id string) string
	SetRequestLanguage(ctx context.Context, uiLocales string)
}

// ProviderCatalog is the set of external providers configured on the host.
type ProviderCatalog interface {
	Providers() []domain.ProviderDescription
	IsConfigured(provider string) bool
}
