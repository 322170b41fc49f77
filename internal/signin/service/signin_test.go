package service

import (
	"context"
	"strings"
	"testing"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ids longer than 100 are rejected whatever the store holds", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		long := strings.Repeat("a", MaxSignInIDLength+1)
		f.signIns.items[long] = domain.SignInRequest{ClientID: "web", ReturnURL: testReturn}
		f.svc.Options.InvalidSignInRedirectURL = "~/welcome"

		_, err := f.svc.Resolve(ctx, f.x, long)
		require.ErrorIs(t, err, ErrSignInIDTooLong)

		requireErrorPage(t, f.svc.Login(ctx, f.x, long), MsgUnexpectedError)
	})

	t.Run("an id of exactly 100 is accepted", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := strings.Repeat("b", MaxSignInIDLength)
		f.signIns.items[id] = domain.SignInRequest{ClientID: "web"}

		msg, err := f.svc.Resolve(ctx, f.x, id)
		require.NoError(t, err)
		require.Equal(t, "web", msg.ClientID)
	})

	t.Run("missing and unknown ids render the no sign-in page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Resolve(ctx, f.x, "")
		require.ErrorIs(t, err, ErrMissingSignInID)
		_, err = f.svc.Resolve(ctx, f.x, "nope")
		require.ErrorIs(t, err, ErrSignInNotFound)

		requireErrorPage(t, f.svc.Login(ctx, f.x, ""), MsgNoSignInCookie)
		requireErrorPage(t, f.svc.Login(ctx, f.x, "nope"), MsgNoSignInCookie)
	})

	t.Run("invalid sign-in redirect targets", func(t *testing.T) {
		t.Parallel()
		cases := []struct {
			target string
			want   string
		}{
			{"~/welcome", testBase + "welcome"},
			{"/landing", testHost + "/landing"},
			{"https://other.example/x", "https://other.example/x"},
		}
		for _, tc := range cases {
			f := newFixture(t)
			f.svc.Options.InvalidSignInRedirectURL = tc.target

			res := f.svc.Login(ctx, f.x, "nope")
			require.Equal(t, ResultRedirect, res.Kind, tc.target)
			require.Equal(t, tc.want, res.Location)
		}
	})

	t.Run("store failures render the generic error page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.signIns.readErr = errBackend

		requireErrorPage(t, f.svc.Login(ctx, f.x, testSignInID), MsgUnexpectedError)
	})

	t.Run("ui locales are applied to the request", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.request(func(r *domain.SignInRequest) { r.UILocales = "de-CH de" })

		_, err := f.svc.Resolve(ctx, f.x, testSignInID)
		require.NoError(t, err)
		require.Equal(t, []string{"de-CH de"}, f.locale.languages)
	})
}

func TestLoginPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("renders form and provider links", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Providers = staticProviders{
			{Type: "google", Caption: "Google"},
			{Type: "corp", Caption: "Corp", Hidden: true},
		}
		f.svc.Options.LoginPageLinks = []LoginPageLink{{Text: "Register", Href: "~/register"}}

		model := requireLoginPage(t, f.svc.Login(ctx, f.x, testSignInID))
		require.Equal(t, testBase+"login?signin=sid-1", model.LoginURL)
		require.Equal(t, "Web App", model.ClientName)
		require.True(t, model.AllowRememberMe)
		require.Equal(t, "csrf", model.AntiForgery)
		require.Len(t, model.ExternalProviders, 1)
		require.Equal(t, testBase+"external?provider=google&signin=sid-1", model.ExternalProviders[0].Href)
		require.Equal(t, []LoginPageLink{{Text: "Register", Href: testBase + "register?signin=sid-1"}}, model.AdditionalLinks)
		require.Empty(t, f.events.types())
	})

	t.Run("providers follow client restrictions", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Providers = staticProviders{{Type: "google"}, {Type: "github"}}
		f.clients.clients["web"].IdentityProviderRestrictions = []string{"github"}

		model := requireLoginPage(t, f.svc.Login(ctx, f.x, testSignInID))
		require.Len(t, model.ExternalProviders, 1)
		require.Equal(t, "github", model.ExternalProviders[0].Type)
	})

	t.Run("login hint fills a read-only username", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Providers = staticProviders{}
		f.request(func(r *domain.SignInRequest) {
			r.LoginHint = "alice"
			r.LoginForced = domain.LoginForcedVisible
		})

		model := requireLoginPage(t, f.svc.Login(ctx, f.x, testSignInID))
		require.Equal(t, "alice", model.Username)
		require.True(t, model.UsernameReadOnly)
		require.False(t, model.UsernameHidden)
	})

	t.Run("login hint is ignored when disabled", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Options.EnableLoginHint = false
		f.svc.Providers = staticProviders{}
		f.request(func(r *domain.SignInRequest) { r.LoginHint = "alice" })

		model := requireLoginPage(t, f.svc.Login(ctx, f.x, testSignInID))
		require.Empty(t, model.Username)
	})

	t.Run("remembered username with one provider goes straight to it", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.usernames.last = "bob"

		res := f.svc.Login(ctx, f.x, testSignInID)
		require.Equal(t, ResultChallenge, res.Kind)
		require.Equal(t, "google", res.Challenge.Provider)
		require.Equal(t, "bob", res.Challenge.LoginHint)
	})

	t.Run("local login off and no providers is an error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Providers = staticProviders{}
		f.clients.clients["web"].EnableLocalLogin = false

		requireErrorPage(t, f.svc.Login(ctx, f.x, testSignInID), MsgUnexpectedError)
	})

	t.Run("local login off picks the only visible provider", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Options.EnableLocalLogin = false
		f.svc.Providers = staticProviders{{Type: "google"}, {Type: "corp", Hidden: true}}

		res := f.svc.Login(ctx, f.x, testSignInID)
		require.Equal(t, ResultChallenge, res.Kind)
		require.Equal(t, "google", res.Challenge.Provider)
	})

	t.Run("local login off with several visible providers shows the page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Options.EnableLocalLogin = false
		f.svc.Providers = staticProviders{{Type: "google"}, {Type: "github"}}

		model := requireLoginPage(t, f.svc.Login(ctx, f.x, testSignInID))
		require.Empty(t, model.LoginURL)
		require.Len(t, model.ExternalProviders, 2)
	})

	t.Run("client without remember me hides the checkbox", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clients.clients["web"].AllowRememberMe = false

		model := requireLoginPage(t, f.svc.Login(ctx, f.x, testSignInID))
		require.False(t, model.AllowRememberMe)
	})

	t.Run("requested provider is challenged directly", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.request(func(r *domain.SignInRequest) {
			r.IdP = "google"
			r.LoginHint = "carol@example.com"
		})

		res := f.svc.Login(ctx, f.x, testSignInID)
		require.Equal(t, ResultChallenge, res.Kind)
		require.Equal(t, Challenge{
			Provider:    "google",
			CallbackURL: testBase + "external/callback",
			SignInID:    testSignInID,
			LoginHint:   "carol@example.com",
		}, *res.Challenge)
	})
}

func TestPreAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("a decision skips the login page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.pre = func(in *PreAuthenticationContext) error {
			require.Equal(t, testSignInID, in.SignInID)
			in.Result = successOutcome("")
			return nil
		}

		res := f.svc.Login(ctx, f.x, testSignInID)
		require.Equal(t, ResultRedirect, res.Kind)
		require.Equal(t, testReturn, res.Location)
		require.Equal(t, []domain.EventType{domain.EventPreLoginSuccess}, f.events.types())
	})

	t.Run("errors render on the error page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.pre = func(in *PreAuthenticationContext) error {
			in.Result = domain.NewErrorOutcome("account locked")
			return nil
		}

		requireErrorPage(t, f.svc.Login(ctx, f.x, testSignInID), "account locked")
		require.Equal(t, []domain.EventType{domain.EventPreLoginFailure}, f.events.types())
	})

	t.Run("errors may opt in to the login page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.pre = func(in *PreAuthenticationContext) error {
			in.Result = domain.NewErrorOutcome("try again later")
			in.ShowLoginPageOnErrorResult = true
			return nil
		}

		model := requireLoginPage(t, f.svc.Login(ctx, f.x, testSignInID))
		require.Equal(t, "try again later", model.ErrorMessage)
	})

	t.Run("backend failure is generic", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.pre = func(*PreAuthenticationContext) error { return errBackend }

		requireErrorPage(t, f.svc.Login(ctx, f.x, testSignInID), MsgUnexpectedError)
	})
}
