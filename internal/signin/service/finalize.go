package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/idx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// finalize is the only place authentication cookies are issued. Every flow
// that reaches a verdict ends here.
func (s *SignInService) finalize(ctx context.Context, x *Exchange, msg *domain.SignInRequest, signInID string, outcome *domain.AuthenticationOutcome, rememberMe *bool) Result {
	log := slogx.FromContext(ctx)

	if !outcome.IsPartial() {
		post := &PostAuthenticationContext{SignIn: *msg, SignInID: signInID, Result: outcome}
		if err := s.Identity.PostAuthenticate(ctx, post); err != nil {
			log.Error("post-authentication failed", slog.Any("error", err))
			s.endpointFailure(ctx, signInID, msg, "post-authentication failed")
			return s.errorPage(ctx, x, "")
		}
		if post.Result == nil {
			log.Error("post-authentication returned no result")
			s.endpointFailure(ctx, signInID, msg, "post-authentication returned no result")
			return s.errorPage(ctx, x, "")
		}
		if post.Result.IsError() {
			log.Warn("post-authentication returned an error", slog.String("error", post.Result.ErrorMessage()))
			s.endpointFailure(ctx, signInID, msg, post.Result.ErrorMessage())
			if post.ShowLoginPageOnErrorResult {
				return s.renderLoginPage(ctx, x, msg, signInID, loginPageState{errorMessage: post.Result.ErrorMessage()})
			}
			return s.errorPage(ctx, x, post.Result.ErrorMessage())
		}
		outcome = post.Result
	}

	if msg.IdP != "" && !outcome.IsPartial() && outcome.HasSubject() && outcome.IdentityProvider() != msg.IdP {
		log.Error("identity provider mismatch",
			slog.String("requested", msg.IdP),
			slog.String("issued", outcome.IdentityProvider()),
		)
		s.endpointFailure(ctx, signInID, msg,
			fmt.Sprintf("requested identity provider %s but sign-in was issued for %s", msg.IdP, outcome.IdentityProvider()))
		return s.errorPage(ctx, x, "")
	}

	location, err := s.redirectTarget(x, msg, outcome)
	if err != nil {
		log.Error("invalid redirect target", slog.Any("error", err))
		s.endpointFailure(ctx, signInID, msg, "invalid redirect target")
		return s.errorPage(ctx, x, "")
	}

	s.clearForNewSignIn(x, outcome)
	if err := s.issue(ctx, x, signInID, outcome, rememberMe); err != nil {
		log.Error("failed to issue authentication cookie", slog.Any("error", err))
		s.endpointFailure(ctx, signInID, msg, "failed to issue authentication cookie")
		return s.errorPage(ctx, x, "")
	}

	log.Info("sign-in finalized",
		slog.Bool("partial", outcome.IsPartial()),
		slog.String("location", location),
	)
	return redirect(location)
}

// clearForNewSignIn runs before any cookie is issued so a failed issue never
// leaves two live sessions.
func (s *SignInService) clearForNewSignIn(x *Exchange, outcome *domain.AuthenticationOutcome) {
	if !outcome.IsPartial() {
		x.Cookies.Clear(CookiePrimary)
	}
	x.Cookies.Clear(CookieExternal, CookiePartial)
}

func (s *SignInService) issue(ctx context.Context, x *Exchange, signInID string, outcome *domain.AuthenticationOutcome, rememberMe *bool) error {
	if outcome.IsPartial() {
		resumeID, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return fmt.Errorf("generate resume id: %w", err)
		}
		p := domain.PartialSignIn{
			Claims:            outcome.Claims(),
			ResumeID:          resumeID,
			SignInID:          signInID,
			RestartURL:        x.Info.BaseURL + PathLogin + signInQuery(signInID),
			ReturnAfterResume: x.Info.BaseURL + PathResume + "?resume=" + url.QueryEscape(resumeID),
			RememberMe:        rememberMe,
		}
		if ext := outcome.External(); ext != nil {
			p.External = &domain.ExternalMarker{Provider: ext.Provider, ProviderID: ext.ProviderID}
		}
		return x.Cookies.IssuePartial(ctx, p)
	}

	now := s.now()
	persistence := s.persistence(rememberMe, now)
	err := x.Cookies.IssuePrincipal(ctx, domain.Principal{
		Claims:     outcome.Claims(),
		SessionID:  idx.NewAt(now),
		IssuedAt:   now,
		Persistent: persistence.Persistent,
	}, persistence)
	if err != nil {
		return err
	}

	// The sign-in request stays until the session exists, so a failed
	// issue can be retried on the same sign-in id.
	if err := x.SignIns.Clear(ctx, signInID); err != nil {
		slogx.FromContext(ctx).Warn("failed to clear sign-in request", slog.Any("error", err))
	}
	return nil
}

// persistence: an explicit choice wins, otherwise the server default.
// Only an explicit opt-in sets an expiry.
func (s *SignInService) persistence(rememberMe *bool, now time.Time) Persistence {
	p := Persistence{Persistent: s.Options.Cookies.IsPersistent}
	if rememberMe != nil {
		p.Persistent = *rememberMe
		if *rememberMe {
			p.ExpiresAt = now.Add(s.Options.Cookies.RememberMeDuration)
		}
	}
	return p
}

// redirectTarget trusts the return URL of a full sign-in as is; it was
// validated when the sign-in request was created.
func (s *SignInService) redirectTarget(x *Exchange, msg *domain.SignInRequest, outcome *domain.AuthenticationOutcome) (string, error) {
	if !outcome.IsPartial() {
		return msg.ReturnURL, nil
	}

	path := outcome.PartialRedirectPath()
	if path == "" {
		return "", errors.New("partial outcome without redirect path")
	}
	base, err := url.Parse(x.Info.Host + "/")
	if err != nil {
		return "", fmt.Errorf("parse host: %w", err)
	}
	ref, err := url.Parse(expandTilde(x.Info.BaseURL, path))
	if err != nil {
		return "", fmt.Errorf("parse partial redirect path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
