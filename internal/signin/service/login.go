package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// LocalCredentials is a submitted login form.
type LocalCredentials struct {
	Username string
	Password string
	// RememberMe is nil when the checkbox was not part of the form.
	RememberMe *bool
	// ExternalProvider with an empty password redirects to that provider,
	// passing Username as the login hint.
	ExternalProvider string
}

// Login serves the login page for signInID, unless the identity service
// decides the sign-in up front or the request names a provider.
func (s *SignInService) Login(ctx context.Context, x *Exchange, signInID string) Result {
	log := slogx.FromContext(ctx)

	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}

	pre := &PreAuthenticationContext{SignIn: *msg, SignInID: signInID}
	if err := s.Identity.PreAuthenticate(ctx, pre); err != nil {
		log.Error("pre-authentication failed", slog.Any("error", err))
		ev := s.event(domain.EventPreLoginFailure, false, signInID, msg)
		ev.Reason = "pre-authentication failed"
		s.raise(ctx, ev)
		return s.errorPage(ctx, x, "")
	}

	if outcome := pre.Result; outcome != nil {
		if outcome.IsError() {
			log.Warn("pre-authentication returned an error", slog.String("error", outcome.ErrorMessage()))
			ev := s.event(domain.EventPreLoginFailure, false, signInID, msg)
			ev.Reason = outcome.ErrorMessage()
			s.raise(ctx, ev)

			if pre.ShowLoginPageOnErrorResult {
				return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{errorMessage: outcome.ErrorMessage()})
			}
			return s.errorPage(ctx, x, outcome.ErrorMessage())
		}

		ev := s.event(domain.EventPreLoginSuccess, true, signInID, msg)
		ev.Subject = outcome.Claims().Subject()
		s.raise(ctx, ev)
		return s.finalize(ctx, x, msg, signInID, outcome, nil)
	}

	if msg.IdP != "" {
		log.Info("sign-in request names a provider", slog.String("provider", msg.IdP))
		return s.loginExternal(ctx, x, msg, signInID, msg.IdP, msg.LoginHint)
	}

	return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{})
}

// LoginLocal checks submitted credentials with the identity service.
func (s *SignInService) LoginLocal(ctx context.Context, x *Exchange, signInID string, in LocalCredentials) Result {
	log := slogx.FromContext(ctx)

	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	if r, ok := s.requireLocalLogin(ctx, x, signInID, msg); !ok {
		return r
	}

	var fe fieldErrors
	if strings.TrimSpace(in.Username) == "" {
		fe.add(FieldUsername, s.Locale.Message(ctx, MsgUsernameRequired))
	}
	if strings.TrimSpace(in.Password) == "" {
		if provider := strings.TrimSpace(in.ExternalProvider); provider != "" {
			x.Usernames.SetLastUsername(in.Username)
			return s.loginExternal(ctx, x, msg, signInID, provider, in.Username)
		}
		fe.add(FieldPassword, s.Locale.Message(ctx, MsgPasswordRequired))
	}

	rememberMe := s.Options.Cookies.rememberMeFromInput(in.RememberMe)

	if !fe.empty() {
		log.Warn("validation error: username or password missing")
		return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{
			errorMessage: fe.first(),
			fields:       &fe,
			username:     in.Username,
			rememberMe:   isTrue(rememberMe),
		})
	}

	if len(in.Username) > s.Options.InputLengths.Username || len(in.Password) > s.Options.InputLengths.Password {
		log.Error("username or password beyond allowed length")
		return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{})
	}

	return s.authenticateLocal(ctx, x, msg, signInID, strings.TrimSpace(in.Username), strings.TrimSpace(in.Password), rememberMe)
}

// requireLocalLogin enforces the global and per-client local login switches.
func (s *SignInService) requireLocalLogin(ctx context.Context, x *Exchange, signInID string, msg *domain.SignInRequest) (Result, bool) {
	log := slogx.FromContext(ctx)

	if !s.Options.EnableLocalLogin {
		log.Warn("local login disabled")
		s.endpointFailure(ctx, signInID, msg, "local login disabled")
		return s.errorPage(ctx, x, ""), false
	}
	if !s.localLoginAllowedForClient(ctx, msg) {
		log.Error("local login not allowed for client", slog.String("client_id", msg.ClientID))
		s.endpointFailure(ctx, signInID, msg, "local login not allowed for client "+msg.ClientID)
		return s.errorPage(ctx, x, ""), false
	}
	return Result{}, true
}

func (s *SignInService) authenticateLocal(ctx context.Context, x *Exchange, msg *domain.SignInRequest, signInID, username, password string, rememberMe *bool) Result {
	log := slogx.FromContext(ctx)

	failure := func(reason string) {
		ev := s.event(domain.EventLocalLoginFailure, false, signInID, msg)
		ev.Username = username
		ev.Reason = reason
		s.raise(ctx, ev)
	}
	again := func(message string) Result {
		return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{
			errorMessage: message,
			username:     username,
			rememberMe:   isTrue(rememberMe),
		})
	}

	authCtx := &LocalAuthenticationContext{Username: username, Password: password, SignIn: *msg}
	if err := s.Identity.AuthenticateLocal(ctx, authCtx); err != nil {
		log.Error("local authentication failed", slog.Any("error", err))
		failure("identity service failure")
		return s.errorPage(ctx, x, "")
	}

	outcome := authCtx.Result
	if outcome == nil {
		log.Warn("identity service rejected credentials", slog.String("username", username))
		message := s.Locale.Message(ctx, MsgInvalidUsernameOrPassword)
		failure(message)
		return again(message)
	}

	if outcome.ForcePasswordChange() {
		log.Warn("user must change password", slog.String("username", username))
		if s.Resets == nil {
			log.Error("password change forced but no reset service configured")
			failure("password change required")
			return s.errorPage(ctx, x, "")
		}
		if err := s.Resets.HandlePasswordChangeForced(ctx, authCtx); err != nil {
			log.Error("forced password change failed", slog.Any("error", err))
			failure("password change failed")
			return s.errorPage(ctx, x, "")
		}
		if outcome = authCtx.Result; outcome == nil {
			log.Error("password reset service returned no result")
			failure("password change returned no result")
			return s.errorPage(ctx, x, "")
		}
	}

	if outcome.IsError() {
		log.Warn("identity service returned an error", slog.String("error", outcome.ErrorMessage()))
		failure(outcome.ErrorMessage())
		return again(outcome.ErrorMessage())
	}

	ev := s.event(domain.EventLocalLoginSuccess, true, signInID, msg)
	ev.Username = username
	ev.Subject = outcome.Claims().Subject()
	s.raise(ctx, ev)

	x.Usernames.SetLastUsername(username)
	return s.finalize(ctx, x, msg, signInID, outcome, rememberMe)
}

func isTrue(b *bool) bool { return b != nil && *b }
