package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// ExternalCallback is what the federation layer recovered from a provider
// redirect.
type ExternalCallback struct {
	// Error is the provider's error parameter, if any.
	Error    string
	SignInID string
	Provider string
	// Claims is the federated identity; empty when the provider returned
	// none.
	Claims domain.Claims
}

// LoginExternal starts a federated login with provider.
func (s *SignInService) LoginExternal(ctx context.Context, x *Exchange, signInID, provider, loginHint string) Result {
	log := slogx.FromContext(ctx)

	if provider == "" {
		log.Error("no provider passed")
		return s.errorPage(ctx, x, s.Locale.Message(ctx, MsgNoExternalProvider))
	}
	if len(provider) > s.Options.InputLengths.IdentityProvider {
		log.Error("provider longer than allowed", slog.Int("length", len(provider)))
		return s.errorPage(ctx, x, "")
	}

	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	return s.challenge(ctx, x, msg, signInID, provider, loginHint)
}

// loginExternal is LoginExternal for a request that is already resolved.
func (s *SignInService) loginExternal(ctx context.Context, x *Exchange, msg *domain.SignInRequest, signInID, provider, loginHint string) Result {
	if len(provider) > s.Options.InputLengths.IdentityProvider {
		slogx.FromContext(ctx).Error("provider longer than allowed", slog.Int("length", len(provider)))
		return s.errorPage(ctx, x, "")
	}
	return s.challenge(ctx, x, msg, signInID, provider, loginHint)
}

// challenge fails closed: a provider must be allowed for the client and
// configured on the host. The page does not say which check failed.
func (s *SignInService) challenge(ctx context.Context, x *Exchange, msg *domain.SignInRequest, signInID, provider, loginHint string) Result {
	log := slogx.FromContext(ctx)

	allowed, err := s.Clients.IsValidIdentityProvider(ctx, msg.ClientID, provider)
	if err != nil {
		log.Error("provider validation failed", slog.Any("error", err))
		allowed = false
	}
	if !allowed {
		reason := fmt.Sprintf("provider %s not allowed for client %s", provider, msg.ClientID)
		log.Error("external login rejected", slog.String("reason", reason))
		s.endpointFailure(ctx, signInID, msg, reason)
		return s.errorPage(ctx, x, "")
	}
	if !s.Providers.IsConfigured(provider) {
		reason := fmt.Sprintf("provider %s is not configured", provider)
		log.Error("external login rejected", slog.String("reason", reason))
		s.endpointFailure(ctx, signInID, msg, reason)
		return s.errorPage(ctx, x, "")
	}

	return challenge(Challenge{
		Provider:    provider,
		CallbackURL: x.Info.BaseURL + PathExternalCallback,
		SignInID:    signInID,
		LoginHint:   loginHint,
	})
}

// LoginExternalCallback finishes a federated login.
func (s *SignInService) LoginExternalCallback(ctx context.Context, x *Exchange, in ExternalCallback) Result {
	log := slogx.FromContext(ctx)

	if in.Error != "" {
		providerErr := truncate(in.Error, s.Options.InputLengths.ExternalError)
		log.Error("external provider returned an error",
			slog.String("provider", in.Provider),
			slog.String("error", providerErr),
		)
		ev := s.event(domain.EventExternalLoginError, false, in.SignInID, nil)
		ev.Provider = in.Provider
		ev.Reason = providerErr
		s.raise(ctx, ev)
		return s.errorPage(ctx, x, fmt.Sprintf(s.Locale.Message(ctx, MsgExternalProviderError), providerErr))
	}

	msg, res := s.resolve(ctx, x, in.SignInID)
	if res != nil {
		return *res
	}

	noMatch := loginPageState{errorMessage: s.Locale.Message(ctx, MsgNoMatchingExternalAccount)}
	if len(in.Claims) == 0 {
		log.Error("no identity from external provider", slog.String("provider", in.Provider))
		return s.renderLoginPage(ctx, x, msg, in.SignInID, noMatch)
	}
	ext := domain.ExternalIdentityFromClaims(in.Claims)
	if ext == nil {
		log.Error("no subject or unique identifier from external provider",
			slog.String("provider", in.Provider),
			slog.Int("claims", len(in.Claims)),
		)
		return s.renderLoginPage(ctx, x, msg, in.SignInID, noMatch)
	}

	return s.authenticateExternal(ctx, x, msg, in.SignInID, *ext, nil)
}

func (s *SignInService) authenticateExternal(ctx context.Context, x *Exchange, msg *domain.SignInRequest, signInID string, ext domain.ExternalIdentity, rememberMe *bool) Result {
	log := slogx.FromContext(ctx)

	failure := func(reason string) {
		ev := s.event(domain.EventExternalLoginFailure, false, signInID, msg)
		ev.Provider = ext.Provider
		ev.Subject = ext.ProviderID
		ev.Reason = reason
		s.raise(ctx, ev)
	}

	authCtx := &ExternalAuthenticationContext{External: ext, SignIn: *msg}
	if err := s.Identity.AuthenticateExternal(ctx, authCtx); err != nil {
		log.Error("external authentication failed", slog.Any("error", err))
		failure("identity service failure")
		return s.errorPage(ctx, x, "")
	}

	outcome := authCtx.Result
	if outcome == nil {
		log.Warn("identity service found no account for external identity",
			slog.String("provider", ext.Provider),
		)
		message := s.Locale.Message(ctx, MsgNoMatchingExternalAccount)
		failure(message)
		return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{errorMessage: message})
	}
	if outcome.IsError() {
		log.Warn("identity service returned an error", slog.String("error", outcome.ErrorMessage()))
		failure(outcome.ErrorMessage())
		return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{errorMessage: outcome.ErrorMessage()})
	}

	ev := s.event(domain.EventExternalLoginSuccess, true, signInID, msg)
	ev.Provider = ext.Provider
	ev.Subject = outcome.Claims().Subject()
	s.raise(ctx, ev)

	return s.finalize(ctx, x, msg, signInID, outcome, rememberMe)
}
