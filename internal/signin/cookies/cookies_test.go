package cookies

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/jwtx"
)

func newConfig(t *testing.T) Config {
	t.Helper()
	signer, err := jwtx.NewHS256([]byte(strings.Repeat("s", jwtx.MinHS256KeySize)), "signin")
	require.NoError(t, err)
	sealer, err := cryptox.NewEphemeralSealer()
	require.NoError(t, err)
	return Config{Signer: signer, Sealer: sealer, Path: "/core"}
}

// next builds the request the browser would send after rec.
func next(rec *httptest.ResponseRecorder, prev *http.Request) *http.Request {
	jar := map[string]string{}
	if prev != nil {
		for _, c := range prev.Cookies() {
			jar[c.Name] = c.Value
		}
	}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(jar, c.Name)
			continue
		}
		jar[c.Name] = c.Value
	}
	req := httptest.NewRequest(http.MethodGet, "/core/login", nil)
	for name, value := range jar {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}

func setCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var aliceClaims = domain.Claims{
	{Type: domain.ClaimSubject, Value: "u-1"},
	{Type: domain.ClaimName, Value: "Alice"},
	{Type: domain.ClaimIdentityProvider, Value: "google", Issuer: "https://accounts.google.com"},
}

func TestPrincipal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("session cookie round trip", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t)

		rec := httptest.NewRecorder()
		jar := New(cfg, rec, httptest.NewRequest(http.MethodPost, "/core/login", nil))
		require.Nil(t, jar.Principal())
		require.NoError(t, jar.IssuePrincipal(ctx, domain.Principal{Claims: aliceClaims, SessionID: "sid-1"}, service.Persistence{}))

		primary := setCookie(rec, NamePrimary)
		require.NotNil(t, primary)
		require.True(t, primary.HttpOnly)
		require.True(t, primary.Expires.IsZero(), "browser-session cookie")
		sid := setCookie(rec, NameSessionID)
		require.NotNil(t, sid)
		require.False(t, sid.HttpOnly)
		require.Equal(t, "sid-1", sid.Value)

		got := New(cfg, httptest.NewRecorder(), next(rec, nil)).Principal()
		require.NotNil(t, got)
		require.Empty(t, cmp.Diff(aliceClaims, got.Claims))
		require.Equal(t, "sid-1", got.SessionID)
		require.Equal(t, "google", got.IdentityProvider())
		require.False(t, got.Persistent)
	})

	t.Run("persistent sessions carry the requested expiry", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t)
		expires := time.Now().Add(14 * 24 * time.Hour).UTC().Truncate(time.Second)

		rec := httptest.NewRecorder()
		jar := New(cfg, rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.NoError(t, jar.IssuePrincipal(ctx, domain.Principal{Claims: aliceClaims, SessionID: "sid-1"},
			service.Persistence{Persistent: true, ExpiresAt: expires}))

		require.True(t, setCookie(rec, NamePrimary).Expires.Equal(expires))
		got := New(cfg, httptest.NewRecorder(), next(rec, nil)).Principal()
		require.NotNil(t, got)
		require.True(t, got.Persistent)
	})

	t.Run("forged or foreign sessions are ignored", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t)

		rec := httptest.NewRecorder()
		require.NoError(t, New(cfg, rec, httptest.NewRequest(http.MethodPost, "/", nil)).
			IssuePrincipal(ctx, domain.Principal{Claims: aliceClaims, SessionID: "sid-1"}, service.Persistence{}))

		other := newConfig(t)
		other.Signer, _ = jwtx.NewHS256([]byte(strings.Repeat("o", jwtx.MinHS256KeySize)), "signin")
		require.Nil(t, New(other, httptest.NewRecorder(), next(rec, nil)).Principal())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: NamePrimary, Value: "not-a-jwt"})
		require.Nil(t, New(cfg, httptest.NewRecorder(), req).Principal())
	})

	t.Run("a principal without subject is refused", func(t *testing.T) {
		t.Parallel()
		jar := New(newConfig(t), httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		require.Error(t, jar.IssuePrincipal(ctx, domain.Principal{SessionID: "sid-1"}, service.Persistence{}))
	})

	t.Run("clear drops the session for the rest of the exchange", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t)

		rec := httptest.NewRecorder()
		require.NoError(t, New(cfg, rec, httptest.NewRequest(http.MethodPost, "/", nil)).
			IssuePrincipal(ctx, domain.Principal{Claims: aliceClaims, SessionID: "sid-1"}, service.Persistence{}))

		rec2 := httptest.NewRecorder()
		jar := New(cfg, rec2, next(rec, nil))
		require.NotNil(t, jar.Principal())
		jar.Clear(service.CookiePrimary)
		require.Nil(t, jar.Principal())

		require.Equal(t, -1, setCookie(rec2, NamePrimary).MaxAge)
		require.Equal(t, -1, setCookie(rec2, NameSessionID).MaxAge)
	})
}

func TestPartial(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remember := true

	partial := domain.PartialSignIn{
		Claims:            domain.Claims{{Type: domain.ClaimSubject, Value: "u-1"}},
		ResumeID:          "resume-1",
		SignInID:          "sid-1",
		RestartURL:        "https://id.example/core/login?signin=sid-1",
		ReturnAfterResume: "https://id.example/core/resume?resume=resume-1",
		External:          &domain.ExternalMarker{Provider: "google", ProviderID: "g-1"},
		RememberMe:        &remember,
	}

	t.Run("round trip keeps every marker", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t)

		rec := httptest.NewRecorder()
		require.NoError(t, New(cfg, rec, httptest.NewRequest(http.MethodPost, "/", nil)).IssuePartial(ctx, partial))

		got := New(cfg, httptest.NewRecorder(), next(rec, nil)).Partial()
		require.NotNil(t, got)
		require.Empty(t, cmp.Diff(partial.ToClaims(), got.Claims))
		require.Equal(t, &remember, got.RememberMe)

		parsed, err := domain.ParsePartialSignIn(*got, "resume-1")
		require.NoError(t, err)
		require.Equal(t, partial.External, parsed.External)
	})

	t.Run("expired partial sign-ins read as absent", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t)
		now := time.Now()
		cfg.Now = func() time.Time { return now }
		cfg.PartialTTL = time.Minute

		rec := httptest.NewRecorder()
		require.NoError(t, New(cfg, rec, httptest.NewRequest(http.MethodPost, "/", nil)).IssuePartial(ctx, partial))

		cfg.Now = func() time.Time { return now.Add(2 * time.Minute) }
		require.Nil(t, New(cfg, httptest.NewRecorder(), next(rec, nil)).Partial())
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t)

		rec := httptest.NewRecorder()
		jar := New(cfg, rec, httptest.NewRequest(http.MethodPost, "/", nil))
		require.NoError(t, jar.IssuePartial(ctx, partial))
		require.NotNil(t, jar.Partial())
		jar.Clear(service.CookiePartial, service.CookieExternal)
		require.Nil(t, jar.Partial())
		require.Nil(t, New(cfg, httptest.NewRecorder(), next(rec, nil)).Partial())
	})
}

func TestExternalState(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)

	type state struct{ Nonce string }

	rec := httptest.NewRecorder()
	jar := New(cfg, rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var got state
	require.ErrorIs(t, jar.ExternalState(&got), http.ErrNoCookie)
	require.NoError(t, jar.SetExternalState(state{Nonce: "n-1"}))

	jar = New(cfg, httptest.NewRecorder(), next(rec, nil))
	require.NoError(t, jar.ExternalState(&got))
	require.Equal(t, "n-1", got.Nonce)

	jar.Clear(service.CookieExternal)
	require.ErrorIs(t, jar.ExternalState(&got), http.ErrNoCookie)
}

func TestLastUsername(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)

	rec := httptest.NewRecorder()
	jar := New(cfg, rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, jar.LastUsername())
	jar.SetLastUsername("alice")
	require.False(t, setCookie(rec, NameUsername).Expires.IsZero())

	req := next(rec, nil)
	require.Equal(t, "alice", New(cfg, httptest.NewRecorder(), req).LastUsername())

	rec2 := httptest.NewRecorder()
	New(cfg, rec2, req).SetLastUsername("")
	require.Empty(t, New(cfg, httptest.NewRecorder(), next(rec2, req)).LastUsername())

	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: NameUsername, Value: "mallory"})
	require.Empty(t, New(cfg, httptest.NewRecorder(), forged).LastUsername())
}

func TestAntiForgery(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t)

	rec := httptest.NewRecorder()
	jar := New(cfg, rec, httptest.NewRequest(http.MethodGet, "/", nil))
	tok, err := jar.AntiForgeryToken()
	require.NoError(t, err)
	again, err := jar.AntiForgeryToken()
	require.NoError(t, err)
	require.Equal(t, tok, again)
	require.Len(t, rec.Result().Cookies(), 1)

	post := New(cfg, httptest.NewRecorder(), next(rec, nil))
	require.True(t, post.ValidAntiForgery(tok))
	require.False(t, post.ValidAntiForgery(""))
	require.False(t, post.ValidAntiForgery(tok+"x"))

	reused, err := post.AntiForgeryToken()
	require.NoError(t, err)
	require.Equal(t, tok, reused)

	planted := httptest.NewRequest(http.MethodPost, "/", nil)
	planted.AddCookie(&http.Cookie{Name: NameAntiForgery, Value: tok})
	require.False(t, New(cfg, httptest.NewRecorder(), planted).ValidAntiForgery(tok))
}
