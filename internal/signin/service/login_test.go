package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/stretchr/testify/require"
)

func TestLoginLocal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	acceptAlice := func(in *LocalAuthenticationContext) error {
		if in.Username == "alice" && in.Password == "correct horse" {
			in.Result = successOutcome("")
		}
		return nil
	}

	t.Run("missing username never reaches the identity service", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		model := requireLoginPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Password: "x"}))
		require.Equal(t, MsgUsernameRequired, model.ErrorMessage)
		require.Equal(t, MsgUsernameRequired, model.FieldErrors[FieldUsername])
		require.Zero(t, f.identity.localCalls)
		require.Empty(t, f.events.types())
	})

	t.Run("missing password is a field error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		model := requireLoginPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "  "}))
		require.Equal(t, MsgPasswordRequired, model.FieldErrors[FieldPassword])
		require.Equal(t, "alice", model.Username)
		require.Zero(t, f.identity.localCalls)
	})

	t.Run("empty password with a provider switches to federation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		res := f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", ExternalProvider: "google"})
		require.Equal(t, ResultChallenge, res.Kind)
		require.Equal(t, "google", res.Challenge.Provider)
		require.Equal(t, "alice", res.Challenge.LoginHint)
		require.Equal(t, "alice", f.usernames.last)
	})

	t.Run("oversized input re-renders without a message", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		long := strings.Repeat("u", f.svc.Options.InputLengths.Username+1)

		model := requireLoginPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: long, Password: "x"}))
		require.Empty(t, model.ErrorMessage)
		require.Empty(t, model.Username)
		require.Zero(t, f.identity.localCalls)
		require.Empty(t, f.events.types())
	})

	t.Run("input is trimmed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = acceptAlice

		res := f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: " alice ", Password: " correct horse\t"})
		require.Equal(t, ResultRedirect, res.Kind)
		require.Equal(t, "alice", f.usernames.last)
	})

	t.Run("no decision means invalid credentials", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		model := requireLoginPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "wrong", RememberMe: boolPtr(true)}))
		require.Equal(t, MsgInvalidUsernameOrPassword, model.ErrorMessage)
		require.Equal(t, "alice", model.Username)
		require.True(t, model.RememberMe)
		require.Equal(t, []domain.EventType{domain.EventLocalLoginFailure}, f.events.types())
		require.Equal(t, MsgInvalidUsernameOrPassword, f.events.events[0].Reason)
		require.Nil(t, f.cookies.issued)
	})

	t.Run("error outcomes show the service message", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = func(in *LocalAuthenticationContext) error {
			in.Result = domain.NewErrorOutcome("account disabled")
			return nil
		}

		model := requireLoginPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "pw"}))
		require.Equal(t, "account disabled", model.ErrorMessage)
		require.Equal(t, []domain.EventType{domain.EventLocalLoginFailure}, f.events.types())
	})

	t.Run("backend failure is generic and audited", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = func(*LocalAuthenticationContext) error { return errBackend }

		requireErrorPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "pw"}), MsgUnexpectedError)
		require.Equal(t, []domain.EventType{domain.EventLocalLoginFailure}, f.events.types())
	})

	t.Run("success redirects to the return url unchanged", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = acceptAlice

		res := f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "correct horse"})
		require.Equal(t, ResultRedirect, res.Kind)
		require.Equal(t, "https://rp.example/cb", res.Location)
		require.Equal(t, []domain.EventType{domain.EventLocalLoginSuccess}, f.events.types())
		require.Equal(t, "alice", f.usernames.last)
		require.Contains(t, f.signIns.cleared, testSignInID)
		require.Equal(t, []string{"clear:primary", "clear:external", "clear:partial", "issue:primary"}, f.cookies.ops)
		require.Equal(t, "user-1", f.cookies.issued.principal.Subject())
		require.NotEmpty(t, f.cookies.issued.principal.SessionID)
	})

	t.Run("remember me issues a persistent cookie for the configured duration", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = acceptAlice

		res := f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "correct horse", RememberMe: boolPtr(true)})
		require.Equal(t, ResultRedirect, res.Kind)

		p := f.cookies.issued.persistence
		require.True(t, p.Persistent)
		require.WithinDuration(t, testNow.Add(14*24*time.Hour), p.ExpiresAt, time.Minute)
	})

	t.Run("local login disabled globally", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Options.EnableLocalLogin = false

		requireErrorPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "pw"}), MsgUnexpectedError)
		require.Equal(t, []domain.EventType{domain.EventEndpointFailure}, f.events.types())
		require.Zero(t, f.identity.localCalls)
	})

	t.Run("local login disabled for the client", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clients.clients["web"].EnableLocalLogin = false

		requireErrorPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "pw"}), MsgUnexpectedError)
		require.Zero(t, f.identity.localCalls)
	})

	t.Run("unknown clients may log in locally", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = acceptAlice
		f.request(func(r *domain.SignInRequest) { r.ClientID = "ghost" })

		res := f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "correct horse"})
		require.Equal(t, ResultRedirect, res.Kind)
		require.Equal(t, testReturn, res.Location)
	})

	t.Run("forced password change without a result is fatal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = func(in *LocalAuthenticationContext) error {
			in.Result = successOutcome("").WithForcePasswordChange()
			return nil
		}

		requireErrorPage(t, f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "pw"}), MsgUnexpectedError)
		require.Nil(t, f.cookies.issued)
	})

	t.Run("forced password change can continue as a partial sign-in", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.local = func(in *LocalAuthenticationContext) error {
			in.Result = successOutcome("").WithForcePasswordChange()
			return nil
		}
		f.resets.forced = func(in *LocalAuthenticationContext) error {
			in.Result = domain.NewPartialOutcome("~/change-password", in.Result.Claims(), nil)
			return nil
		}

		res := f.svc.LoginLocal(ctx, f.x, testSignInID, LocalCredentials{Username: "alice", Password: "pw"})
		require.Equal(t, ResultRedirect, res.Kind)
		require.Equal(t, testBase+"change-password", res.Location)
		require.NotNil(t, f.cookies.issuedPartial)
	})
}

func TestRememberMeFromInput(t *testing.T) {
	t.Parallel()

	off := CookieOptions{AllowRememberMe: false}
	require.Nil(t, off.rememberMeFromInput(boolPtr(true)))

	on := CookieOptions{AllowRememberMe: true}
	require.Equal(t, boolPtr(false), on.rememberMeFromInput(nil))
	require.Equal(t, boolPtr(true), on.rememberMeFromInput(boolPtr(true)))
}
