package identity

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/internal/signin/store"
	"github.com/aussiebroadwan/signin/internal/signin/store/drivers/sqlite"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "identity")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := newClock()
	return &Service{Store: newStore(t), Registration: true, TOTPIssuer: "signin-test", Now: c.Now}, c
}

func addUser(t *testing.T, s *Service, in NewUser) domain.User {
	t.Helper()
	u, _, err := s.CreateUser(context.Background(), in)
	require.NoError(t, err)
	return u
}

func login(t *testing.T, s *Service, username, password string) *domain.AuthenticationOutcome {
	t.Helper()
	in := &service.LocalAuthenticationContext{Username: username, Password: password}
	require.NoError(t, s.AuthenticateLocal(context.Background(), in))
	return in.Result
}

func partialOf(o *domain.AuthenticationOutcome) domain.PartialSignIn {
	p := domain.PartialSignIn{Claims: o.Claims(), ResumeID: "r-1", SignInID: "s-1"}
	if ext := o.External(); ext != nil {
		p.External = &domain.ExternalMarker{Provider: ext.Provider, ProviderID: ext.ProviderID}
	}
	return p
}

func TestAuthenticateLocal(t *testing.T) {
	t.Parallel()
	s, c := newService(t)
	ctx := context.Background()

	alice := addUser(t, s, NewUser{Username: "Alice", DisplayName: "Alice A", Email: "alice@example.com", Password: "correct horse"})

	t.Run("valid credentials complete the sign-in", func(t *testing.T) {
		o := login(t, s, "alice", "correct horse")
		require.NotNil(t, o)
		require.True(t, o.IsSuccess())
		require.False(t, o.ForcePasswordChange())

		claims := o.Claims()
		require.True(t, claims.HasAll(domain.AuthenticateResultClaimTypes...))
		require.Equal(t, alice.ID, claims.Subject())
		require.Equal(t, "Alice A", claims.Value(domain.ClaimName))
		require.Equal(t, domain.AuthMethodPassword, claims.Value(domain.ClaimAuthMethod))
		require.Equal(t, domain.LocalIdentityProvider, claims.IdentityProvider())
		require.Equal(t, "alice@example.com", claims.Value(domain.ClaimEmail))
		require.Equal(t, strconv.FormatInt(c.Now().Unix(), 10), claims.Value(domain.ClaimAuthTime))
	})

	t.Run("wrong password and unknown user make no decision", func(t *testing.T) {
		require.Nil(t, login(t, s, "alice", "wrong"))
		require.Nil(t, login(t, s, "bob", "correct horse"))
	})

	t.Run("flagged accounts must change their password", func(t *testing.T) {
		addUser(t, s, NewUser{Username: "carol", Password: "temporary", ForcePasswordChange: true})
		o := login(t, s, "carol", "temporary")
		require.NotNil(t, o)
		require.True(t, o.IsSuccess())
		require.True(t, o.ForcePasswordChange())
	})

	t.Run("second factor accounts get a partial sign-in without auth_time", func(t *testing.T) {
		addUser(t, s, NewUser{Username: "dave", Password: "dave-password"})
		_, err := s.EnrollTOTP(ctx, "dave")
		require.NoError(t, err)

		o := login(t, s, "dave", "dave-password")
		require.NotNil(t, o)
		require.True(t, o.IsPartial())
		require.Equal(t, PathTOTP, o.PartialRedirectPath())
		require.False(t, o.Claims().Has(domain.ClaimAuthTime))
		require.Nil(t, o.External())
	})

	t.Run("weak hashes are upgraded on login", func(t *testing.T) {
		u := addUser(t, s, NewUser{Username: "walt", Password: "walt-password"})
		weak, err := cryptox.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16}.Hash("walt-password")
		require.NoError(t, err)
		require.NoError(t, s.Store.Users().UpdatePasswordHash(ctx, u.ID, weak))

		require.NotNil(t, login(t, s, "walt", "walt-password"))

		stored, err := s.Store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotEqual(t, weak, stored.PasswordHash)
		require.False(t, cryptox.NeedsRehash(stored.PasswordHash))
		require.NotNil(t, login(t, s, "walt", "walt-password"))
	})
}

func TestCompleteTOTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T, force bool) (*Service, *clock, string, domain.PartialSignIn) {
		s, c := newService(t)
		addUser(t, s, NewUser{Username: "erin", Password: "erin-password", ForcePasswordChange: force})
		key, err := s.EnrollTOTP(ctx, "erin")
		require.NoError(t, err)
		o := login(t, s, "erin", "erin-password")
		require.True(t, o.IsPartial())
		return s, c, key.Secret(), partialOf(o)
	}

	t.Run("a valid code completes the sign-in", func(t *testing.T) {
		t.Parallel()
		s, c, secret, p := setup(t, false)

		_, err := s.CompleteTOTP(ctx, p, "000000x")
		require.ErrorIs(t, err, ErrInvalidTOTPCode)

		code, err := totp.GenerateCode(secret, c.Now())
		require.NoError(t, err)
		res, err := s.CompleteTOTP(ctx, p, code)
		require.NoError(t, err)
		require.True(t, res.Done())
		require.True(t, res.Claims.HasAll(domain.AuthenticateResultClaimTypes...))
		require.True(t, hasMethod(res.Claims, domain.AuthMethodOTP))
		require.True(t, hasMethod(res.Claims, domain.AuthMethodPassword))

		p.Claims = res.Claims
		_, err = s.CompleteTOTP(ctx, p, code)
		require.ErrorIs(t, err, ErrNotPending)
	})

	t.Run("a pending password change follows the second factor", func(t *testing.T) {
		t.Parallel()
		s, c, secret, p := setup(t, true)

		_, err := s.ChangeForcedPassword(ctx, p, "new-password", "new-password")
		require.ErrorIs(t, err, ErrSecondFactorRequired)

		code, err := totp.GenerateCode(secret, c.Now())
		require.NoError(t, err)
		res, err := s.CompleteTOTP(ctx, p, code)
		require.NoError(t, err)
		require.False(t, res.Done())
		require.Equal(t, PathPasswordChange, res.Next)
		require.False(t, res.Claims.Has(domain.ClaimAuthTime))

		p.Claims = res.Claims
		done, err := s.ChangeForcedPassword(ctx, p, "new-password", "new-password")
		require.NoError(t, err)
		require.True(t, done.Done())
		require.True(t, done.Claims.HasAll(domain.AuthenticateResultClaimTypes...))
	})

	t.Run("accounts without a second factor are refused", func(t *testing.T) {
		t.Parallel()
		s, _ := newService(t)
		u := addUser(t, s, NewUser{Username: "frank", Password: "frank-password"})
		p := domain.PartialSignIn{Claims: pendingClaims(u, domain.AuthMethodPassword)}
		_, err := s.CompleteTOTP(ctx, p, "123456")
		require.ErrorIs(t, err, ErrMFANotEnabled)
	})

	t.Run("federated partial sign-ins are not pending a local step", func(t *testing.T) {
		t.Parallel()
		s, _, _, p := setup(t, false)
		p.External = &domain.ExternalMarker{Provider: "corp", ProviderID: "c-1"}
		_, err := s.CompleteTOTP(ctx, p, "123456")
		require.ErrorIs(t, err, ErrNotPending)
	})
}

func TestChangeForcedPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newService(t)
	resets := &Resets{Store: s.Store}

	addUser(t, s, NewUser{Username: "gina", Password: "temporary", ForcePasswordChange: true})
	in := &service.LocalAuthenticationContext{Username: "gina", Password: "temporary"}
	require.NoError(t, s.AuthenticateLocal(ctx, in))
	require.NoError(t, resets.HandlePasswordChangeForced(ctx, in))
	require.True(t, in.Result.IsPartial())
	require.Equal(t, PathPasswordChange, in.Result.PartialRedirectPath())
	p := partialOf(in.Result)
	require.False(t, p.Claims.Has(domain.ClaimAuthTime))

	_, err := s.ChangeForcedPassword(ctx, p, "short", "short")
	require.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = s.ChangeForcedPassword(ctx, p, "long-enough", "different!")
	require.ErrorIs(t, err, ErrPasswordConfirmation)

	res, err := s.ChangeForcedPassword(ctx, p, "long-enough", "long-enough")
	require.NoError(t, err)
	require.True(t, res.Done())
	require.True(t, res.Claims.HasAll(domain.AuthenticateResultClaimTypes...))

	require.Nil(t, login(t, s, "gina", "temporary"))
	o := login(t, s, "gina", "long-enough")
	require.NotNil(t, o)
	require.False(t, o.ForcePasswordChange())

	_, err = s.ChangeForcedPassword(ctx, p, "another-one", "another-one")
	require.ErrorIs(t, err, ErrNoPasswordChangeDue)
}

func TestExternal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ext := domain.ExternalIdentity{
		Provider:   "corp",
		ProviderID: "c-42",
		Claims: domain.Claims{
			{Type: domain.ClaimEmail, Value: "hank@corp.example", Issuer: "corp"},
			{Type: domain.ClaimPreferredName, Value: "hank", Issuer: "corp"},
			{Type: domain.ClaimName, Value: "Hank H", Issuer: "corp"},
		},
	}
	authenticate := func(t *testing.T, s *Service) *domain.AuthenticationOutcome {
		in := &service.ExternalAuthenticationContext{External: ext}
		require.NoError(t, s.AuthenticateExternal(ctx, in))
		return in.Result
	}

	t.Run("unlinked identities make no decision without registration", func(t *testing.T) {
		t.Parallel()
		s, _ := newService(t)
		s.Registration = false
		require.Nil(t, authenticate(t, s))
	})

	t.Run("register then sign in", func(t *testing.T) {
		t.Parallel()
		s, _ := newService(t)

		o := authenticate(t, s)
		require.NotNil(t, o)
		require.True(t, o.IsPartial())
		require.Equal(t, PathExternalRegister, o.PartialRedirectPath())
		require.Equal(t, "corp", o.External().Provider)

		p := partialOf(o)
		require.Equal(t, "hank", SuggestedUsername(p.Claims))

		_, err := s.RegisterExternal(ctx, p, "  ", "")
		require.ErrorIs(t, err, ErrUsernameRequired)

		u, err := s.RegisterExternal(ctx, p, "hank", "")
		require.NoError(t, err)
		require.Equal(t, "Hank H", u.DisplayName)
		require.Equal(t, "hank@corp.example", u.Email)

		o = authenticate(t, s)
		require.NotNil(t, o)
		require.True(t, o.IsSuccess())
		claims := o.Claims()
		require.True(t, claims.HasAll(domain.AuthenticateResultClaimTypes...))
		require.Equal(t, u.ID, claims.Subject())
		require.Equal(t, "corp", claims.IdentityProvider())
		require.Equal(t, domain.AuthMethodExternal, claims.Value(domain.ClaimAuthMethod))

		require.Nil(t, login(t, s, "hank", ""), "federated accounts have no password")

		_, err = s.RegisterExternal(ctx, p, "hank2", "")
		require.ErrorIs(t, err, ErrAlreadyLinked)
		_, err = s.Store.Users().GetUserByUsername(ctx, "hank2")
		require.ErrorIs(t, err, store.ErrNotFound, "failed registrations leave no account behind")
	})

	t.Run("taken usernames are reported", func(t *testing.T) {
		t.Parallel()
		s, _ := newService(t)
		addUser(t, s, NewUser{Username: "hank", Password: "hank-password"})

		_, err := s.RegisterExternal(ctx, partialOf(authenticate(t, s)), "HANK", "")
		require.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("local partial sign-ins cannot register", func(t *testing.T) {
		t.Parallel()
		s, _ := newService(t)
		_, err := s.RegisterExternal(ctx, domain.PartialSignIn{Claims: ext.Claims}, "hank", "")
		require.ErrorIs(t, err, ErrNotPending)
	})
}

func TestPostAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, c := newService(t)
	u := addUser(t, s, NewUser{Username: "ivy", Password: "ivy-password"})

	in := &service.PostAuthenticationContext{Result: login(t, s, "ivy", "ivy-password")}
	require.NoError(t, s.PostAuthenticate(ctx, in))
	require.NotNil(t, in.Result)

	got, err := s.Store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	require.True(t, got.LastLoginAt.Equal(c.Now()))

	foreign := &service.PostAuthenticationContext{
		Result: domain.NewSuccessOutcome("nobody", "Nobody", domain.AuthMethodExternal, "corp", c.Now()),
	}
	require.NoError(t, s.PostAuthenticate(ctx, foreign))
	require.True(t, foreign.Result.IsSuccess())
}

func TestUsersAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newService(t)

	u, generated, err := s.CreateUser(ctx, NewUser{Username: "jack"})
	require.NoError(t, err)
	require.Len(t, generated, 12)
	require.NotNil(t, login(t, s, "jack", generated))

	_, _, err = s.CreateUser(ctx, NewUser{Username: "JACK", Password: "whatever-long"})
	require.ErrorIs(t, err, ErrUsernameTaken)
	_, _, err = s.CreateUser(ctx, NewUser{Username: "kim", Password: "short"})
	require.ErrorIs(t, err, ErrPasswordTooShort)

	key, err := s.EnrollTOTP(ctx, "jack")
	require.NoError(t, err)
	require.Equal(t, "signin-test", key.Issuer())
	require.Equal(t, "jack", key.AccountName())
	_, err = s.EnrollTOTP(ctx, "jack")
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)

	require.NoError(t, s.DisableTOTP(ctx, "jack"))
	require.ErrorIs(t, s.DisableTOTP(ctx, "jack"), ErrMFANotEnabled)

	got, err := s.Store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled())
}
