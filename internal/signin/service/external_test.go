package service

import (
	"context"
	"strings"
	"testing"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/stretchr/testify/require"
)

func TestLoginExternal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("provider is required", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		requireErrorPage(t, f.svc.LoginExternal(ctx, f.x, testSignInID, "", ""), MsgNoExternalProvider)
	})

	t.Run("provider is length bounded", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		long := strings.Repeat("p", f.svc.Options.InputLengths.IdentityProvider+1)
		requireErrorPage(t, f.svc.LoginExternal(ctx, f.x, testSignInID, long, ""), MsgUnexpectedError)
	})

	t.Run("unknown clients fail closed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.request(func(r *domain.SignInRequest) { r.ClientID = "ghost" })

		requireErrorPage(t, f.svc.LoginExternal(ctx, f.x, testSignInID, "google", ""), MsgUnexpectedError)
		require.Equal(t, []domain.EventType{domain.EventEndpointFailure}, f.events.types())
	})

	t.Run("restricted provider", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clients.clients["web"].IdentityProviderRestrictions = []string{"github"}

		requireErrorPage(t, f.svc.LoginExternal(ctx, f.x, testSignInID, "google", ""), MsgUnexpectedError)
		require.Equal(t, []domain.EventType{domain.EventEndpointFailure}, f.events.types())
	})

	t.Run("provider not configured on the host", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		requireErrorPage(t, f.svc.LoginExternal(ctx, f.x, testSignInID, "okta", ""), MsgUnexpectedError)
		require.Equal(t, []domain.EventType{domain.EventEndpointFailure}, f.events.types())
	})

	t.Run("allowed provider is challenged", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		res := f.svc.LoginExternal(ctx, f.x, testSignInID, "google", "dave")
		require.Equal(t, ResultChallenge, res.Kind)
		require.Equal(t, Challenge{
			Provider:    "google",
			CallbackURL: testBase + PathExternalCallback,
			SignInID:    testSignInID,
			LoginHint:   "dave",
		}, *res.Challenge)
		require.Empty(t, f.events.types())
	})
}

func TestLoginExternalCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	googleClaims := domain.Claims{
		{Type: domain.ClaimSubject, Value: "g-123", Issuer: "google"},
		{Type: domain.ClaimEmail, Value: "erin@example.com", Issuer: "google"},
	}

	t.Run("provider errors are shown and audited", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		res := f.svc.LoginExternalCallback(ctx, f.x, ExternalCallback{Error: "access_denied", SignInID: testSignInID, Provider: "google"})
		requireErrorPage(t, res, "provider error: access_denied")
		require.Equal(t, []domain.EventType{domain.EventExternalLoginError}, f.events.types())
		require.Equal(t, "access_denied", f.events.events[0].Reason)
		require.Zero(t, f.identity.externalCalls)
	})

	t.Run("provider errors are truncated", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.Options.InputLengths.ExternalError = 10

		res := f.svc.LoginExternalCallback(ctx, f.x, ExternalCallback{Error: strings.Repeat("x", 50)})
		requireErrorPage(t, res, "provider error: "+strings.Repeat("x", 10))
		require.Equal(t, strings.Repeat("x", 10), f.events.events[0].Reason)
	})

	t.Run("missing sign-in id", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		requireErrorPage(t, f.svc.LoginExternalCallback(ctx, f.x, ExternalCallback{Claims: googleClaims}), MsgNoSignInCookie)
		require.Zero(t, f.identity.externalCalls)
	})

	t.Run("no usable identity shows the login page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		for _, claims := range []domain.Claims{
			nil,
			{{Type: domain.ClaimEmail, Value: "x@example.com", Issuer: "google"}},
		} {
			model := requireLoginPage(t, f.svc.LoginExternalCallback(ctx, f.x, ExternalCallback{SignInID: testSignInID, Claims: claims}))
			require.Equal(t, MsgNoMatchingExternalAccount, model.ErrorMessage)
		}
		require.Zero(t, f.identity.externalCalls)
	})

	t.Run("no decision means no matching account", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		model := requireLoginPage(t, f.svc.LoginExternalCallback(ctx, f.x, ExternalCallback{SignInID: testSignInID, Claims: googleClaims}))
		require.Equal(t, MsgNoMatchingExternalAccount, model.ErrorMessage)
		require.Equal(t, []domain.EventType{domain.EventExternalLoginFailure}, f.events.types())
		require.Equal(t, "google", f.events.events[0].Provider)
	})

	t.Run("success finalizes the sign-in", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.external = func(in *ExternalAuthenticationContext) error {
			require.Equal(t, "google", in.External.Provider)
			require.Equal(t, "g-123", in.External.ProviderID)
			in.Result = domain.NewSuccessOutcome("user-9", "Erin", domain.AuthMethodExternal, "google", testNow)
			return nil
		}

		res := f.svc.LoginExternalCallback(ctx, f.x, ExternalCallback{SignInID: testSignInID, Claims: googleClaims})
		require.Equal(t, ResultRedirect, res.Kind)
		require.Equal(t, testReturn, res.Location)
		require.Equal(t, []domain.EventType{domain.EventExternalLoginSuccess}, f.events.types())
		require.Equal(t, "google", f.cookies.issued.principal.IdentityProvider())
	})

	t.Run("registration continues as a partial sign-in", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.identity.external = func(in *ExternalAuthenticationContext) error {
			ext := in.External
			in.Result = domain.NewPartialOutcome("~/external/register", ext.Claims, &ext)
			return nil
		}

		res := f.svc.LoginExternalCallback(ctx, f.x, ExternalCallback{SignInID: testSignInID, Claims: googleClaims})
		require.Equal(t, ResultRedirect, res.Kind)
		require.Equal(t, testBase+"external/register", res.Location)
		require.Equal(t, &domain.ExternalMarker{Provider: "google", ProviderID: "g-123"}, f.cookies.issuedPartial.External)
	})
}
