package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/stretchr/testify/require"
)

type memMessages[T any] struct {
	mu      sync.Mutex
	items   map[string]T
	cleared []string
	readErr error
}

func newMemMessages[T any]() *memMessages[T] {
	return &memMessages[T]{items: map[string]T{}}
}

func (m *memMessages[T]) Read(_ context.Context, id string) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *memMessages[T]) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	m.cleared = append(m.cleared, id)
	return nil
}

type memUsernames struct {
	last string
}

func (m *memUsernames) LastUsername() string     { return m.last }
func (m *memUsernames) SetLastUsername(u string) { m.last = u }

type issuedPrincipal struct {
	principal   domain.Principal
	persistence Persistence
}

// memCookies records every cookie operation in order.
type memCookies struct {
	principal *domain.Principal
	partial   *domain.PartialIdentity

	ops           []string
	issued        *issuedPrincipal
	issuedPartial *domain.PartialSignIn
	issueErr      error
}

func (c *memCookies) Principal() *domain.Principal     { return c.principal }
func (c *memCookies) Partial() *domain.PartialIdentity { return c.partial }

func (c *memCookies) IssuePrincipal(_ context.Context, p domain.Principal, persistence Persistence) error {
	c.ops = append(c.ops, "issue:primary")
	if c.issueErr != nil {
		return c.issueErr
	}
	c.issued = &issuedPrincipal{principal: p, persistence: persistence}
	c.principal = &p
	return nil
}

func (c *memCookies) IssuePartial(_ context.Context, p domain.PartialSignIn) error {
	c.ops = append(c.ops, "issue:partial")
	c.issuedPartial = &p
	c.partial = &domain.PartialIdentity{Claims: p.ToClaims(), RememberMe: p.RememberMe}
	return nil
}

func (c *memCookies) Clear(kinds ...CookieKind) {
	for _, k := range kinds {
		switch k {
		case CookiePrimary:
			c.ops = append(c.ops, "clear:primary")
			c.principal = nil
		case CookieExternal:
			c.ops = append(c.ops, "clear:external")
		case CookiePartial:
			c.ops = append(c.ops, "clear:partial")
			c.partial = nil
		}
	}
}

type fakeIdentity struct {
	pre      func(*PreAuthenticationContext) error
	local    func(*LocalAuthenticationContext) error
	external func(*ExternalAuthenticationContext) error
	post     func(*PostAuthenticationContext) error

	localCalls    int
	externalCalls int
	lastExternal  *domain.ExternalIdentity
	signOuts      []SignOutContext
}

func (f *fakeIdentity) PreAuthenticate(_ context.Context, in *PreAuthenticationContext) error {
	if f.pre != nil {
		return f.pre(in)
	}
	return nil
}

func (f *fakeIdentity) AuthenticateLocal(_ context.Context, in *LocalAuthenticationContext) error {
	f.localCalls++
	if f.local != nil {
		return f.local(in)
	}
	return nil
}

func (f *fakeIdentity) AuthenticateExternal(_ context.Context, in *ExternalAuthenticationContext) error {
	f.externalCalls++
	ext := in.External
	f.lastExternal = &ext
	if f.external != nil {
		return f.external(in)
	}
	return nil
}

func (f *fakeIdentity) PostAuthenticate(_ context.Context, in *PostAuthenticationContext) error {
	if f.post != nil {
		return f.post(in)
	}
	return nil
}

func (f *fakeIdentity) SignOut(_ context.Context, in *SignOutContext) error {
	f.signOuts = append(f.signOuts, *in)
	return nil
}

type fakeResets struct {
	request  func(*ResetPasswordContext) error
	verify   func(*ResetPasswordVerifyContext) error
	complete func(*ResetPasswordCallbackContext) error
	forced   func(*LocalAuthenticationContext) error
}

func (f *fakeResets) RequestReset(_ context.Context, in *ResetPasswordContext) error {
	return f.request(in)
}

func (f *fakeResets) VerifyReset(_ context.Context, in *ResetPasswordVerifyContext) error {
	return f.verify(in)
}

func (f *fakeResets) CompleteReset(_ context.Context, in *ResetPasswordCallbackContext) error {
	return f.complete(in)
}

func (f *fakeResets) HandlePasswordChangeForced(_ context.Context, in *LocalAuthenticationContext) error {
	if f.forced == nil {
		in.Result = nil
		return nil
	}
	return f.forced(in)
}

type fakeClients struct {
	clients map[string]*domain.Client
}

func (f *fakeClients) FindClientByID(_ context.Context, id string) (*domain.Client, error) {
	return f.clients[id], nil
}

func (f *fakeClients) IsValidIdentityProvider(_ context.Context, id, provider string) (bool, error) {
	c, ok := f.clients[id]
	if !ok {
		return false, nil
	}
	return c.AllowsProvider(provider), nil
}

func (f *fakeClients) GetIdentityProviderRestrictions(_ context.Context, id string) ([]string, error) {
	if c, ok := f.clients[id]; ok {
		return c.IdentityProviderRestrictions, nil
	}
	return nil, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingEvents) Raise(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// idLocale renders message ids verbatim so tests can assert on them.
type idLocale struct {
	languages []string
}

func (l *idLocale) Message(_ context.Context, id string) string {
	if id == MsgExternalProviderError {
		return "provider error: %s"
	}
	return id
}

func (l *idLocale) SetRequestLanguage(_ context.Context, uiLocales string) {
	l.languages = append(l.languages, uiLocales)
}

type staticProviders []domain.ProviderDescription

func (p staticProviders) Providers() []domain.ProviderDescription { return p }

func (p staticProviders) IsConfigured(provider string) bool {
	for _, d := range p {
		if d.Type == provider {
			return true
		}
	}
	return false
}

const (
	testBase     = "https://id.example/core/"
	testHost     = "https://id.example"
	testSignInID = "sid-1"
	testReturn   = "https://rp.example/cb"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *SignInService
	x         *Exchange
	signIns   *memMessages[domain.SignInRequest]
	signOuts  *memMessages[domain.SignOutRequest]
	usernames *memUsernames
	cookies   *memCookies
	identity  *fakeIdentity
	resets    *fakeResets
	clients   *fakeClients
	events    *recordingEvents
	locale    *idLocale
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		signIns:   newMemMessages[domain.SignInRequest](),
		signOuts:  newMemMessages[domain.SignOutRequest](),
		usernames: &memUsernames{},
		cookies:   &memCookies{},
		identity:  &fakeIdentity{},
		resets:    &fakeResets{},
		clients: &fakeClients{clients: map[string]*domain.Client{
			"web": {ID: "web", Name: "Web App", EnableLocalLogin: true, AllowRememberMe: true},
		}},
		events: &recordingEvents{},
		locale: &idLocale{},
	}
	f.signIns.items[testSignInID] = domain.SignInRequest{ClientID: "web", ReturnURL: testReturn}

	opts := DefaultOptions()
	opts.Cookies.RememberMeDuration = 14 * 24 * time.Hour

	f.svc = &SignInService{
		Options:   opts,
		Identity:  f.identity,
		Resets:    f.resets,
		Clients:   f.clients,
		Events:    f.events,
		Locale:    f.locale,
		Providers: staticProviders{{Type: "google", Caption: "Google"}},
		Now:       func() time.Time { return testNow },
	}
	f.x = &Exchange{
		Info:        RequestInfo{BaseURL: testBase, Host: testHost, CurrentURL: testBase + "login"},
		SignIns:     f.signIns,
		SignOuts:    f.signOuts,
		Usernames:   f.usernames,
		Cookies:     f.cookies,
		AntiForgery: "csrf",
	}
	return f
}

func (f *fixture) request(mut func(*domain.SignInRequest)) {
	r := f.signIns.items[testSignInID]
	mut(&r)
	f.signIns.items[testSignInID] = r
}

func successOutcome(idp string) *domain.AuthenticationOutcome {
	return domain.NewSuccessOutcome("user-1", "Alice", domain.AuthMethodPassword, idp, testNow)
}

func requireErrorPage(t *testing.T, res Result, message string) {
	t.Helper()
	require.Equal(t, ResultPage, res.Kind)
	require.Equal(t, ViewError, res.View)
	model, ok := res.Model.(ErrorViewModel)
	require.True(t, ok, "model is %T", res.Model)
	require.Equal(t, message, model.ErrorMessage)
}

func requireLoginPage(t *testing.T, res Result) LoginViewModel {
	t.Helper()
	require.Equal(t, ResultPage, res.Kind, "result: %+v", res)
	require.Equal(t, ViewLogin, res.View)
	model, ok := res.Model.(LoginViewModel)
	require.True(t, ok, "model is %T", res.Model)
	return model
}

func boolPtr(b bool) *bool { return &b }

var errBackend = fmt.Errorf("backend unavailable")
