package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// Resume continues a partial sign-in after the extra step at the partial
// redirect path is done. Every failed precondition renders the generic
// error page.
func (s *SignInService) Resume(ctx context.Context, x *Exchange, resumeID string) Result {
	log := slogx.FromContext(ctx)

	if resumeID == "" {
		log.Error("no resume id passed")
		return s.errorPage(ctx, x, "")
	}
	if len(resumeID) > MaxSignInIDLength {
		log.Error("resume id longer than allowed", slog.Int("length", len(resumeID)))
		return s.errorPage(ctx, x, "")
	}

	partial := x.Cookies.Partial()
	if partial == nil {
		log.Error("no identity from partial sign-in")
		return s.errorPage(ctx, x, "")
	}

	p, err := domain.ParsePartialSignIn(*partial, resumeID)
	if err != nil {
		log.Error("partial sign-in cannot be resumed", slog.Any("error", err))
		return s.errorPage(ctx, x, "")
	}

	msg, err := s.Resolve(ctx, x, p.SignInID)
	if err != nil {
		if errors.Is(err, ErrSignInNotFound) {
			log.Error("no sign-in request matching resumption claim", slog.String("signin_id", p.SignInID))
		} else {
			log.Error("failed to resolve sign-in request on resume", slog.Any("error", err))
		}
		return s.errorPage(ctx, x, "")
	}

	if ext := p.ExternalIdentity(); ext != nil {
		log.Info("resuming federated partial sign-in", slog.String("provider", ext.Provider))
		return s.authenticateExternal(ctx, x, msg, p.SignInID, *ext, p.RememberMe)
	}

	if !p.Claims.HasAll(domain.AuthenticateResultClaimTypes...) {
		log.Error("partial sign-in lacks the claims of a completed authentication")
		return s.errorPage(ctx, x, "")
	}

	outcome := domain.NewSuccessOutcomeFromClaims(p.Claims)

	ev := s.event(domain.EventPartialLoginComplete, true, p.SignInID, msg)
	ev.Subject = p.Claims.Subject()
	s.raise(ctx, ev)

	return s.finalize(ctx, x, msg, p.SignInID, outcome, p.RememberMe)
}
