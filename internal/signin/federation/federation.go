// Package federation sends browsers to external identity providers and
// turns their callbacks into claim sets for the sign-in flows.
package federation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
)

var (
	ErrUnknownProvider = errors.New("federation: unknown provider")
	ErrDuplicate       = errors.New("federation: provider registered twice")
	ErrNoState         = errors.New("federation: no challenge in progress")
	ErrStateMismatch   = errors.New("federation: state mismatch")
	ErrStateExpired    = errors.New("federation: challenge expired")
	ErrMissingCode     = errors.New("federation: callback without code")
)

// StateTTL bounds the time a user may spend at the provider.
const StateTTL = 10 * time.Minute

// Provider is one external identity provider.
type Provider interface {
	Description() domain.ProviderDescription
	// AuthCodeURL is where the browser is sent. verifier is the PKCE
	// verifier; its S256 challenge goes on the URL.
	AuthCodeURL(redirectURL, state, nonce, verifier, loginHint string) string
	// Exchange redeems code and returns the subject's claims. Every claim's
	// issuer is the provider name.
	Exchange(ctx context.Context, redirectURL, code, verifier, nonce string) (domain.Claims, error)
}

// State is the round-trip state kept in the browser while the user is at
// the provider.
type State struct {
	Provider    string    `json:"provider"`
	SignInID    string    `json:"signin"`
	State       string    `json:"state"`
	Nonce       string    `json:"nonce"`
	Verifier    string    `json:"verifier"`
	CallbackURL string    `json:"callback"`
	ExpiresAt   time.Time `json:"exp"`
}

// Registry holds the configured providers in display order. It implements
// service.ProviderCatalog.
type Registry struct {
	order     []string
	providers map[string]Provider
	Now       func() time.Time
}

var _ service.ProviderCatalog = (*Registry)(nil)

// NewRegistry rejects providers with an empty or repeated name.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: map[string]Provider{}, Now: time.Now}
	for _, p := range providers {
		name := p.Description().Type
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrUnknownProvider)
		}
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
		r.order = append(r.order, name)
		r.providers[name] = p
	}
	return r, nil
}

func (r *Registry) Providers() []domain.ProviderDescription {
	out := make([]domain.ProviderDescription, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name].Description())
	}
	return out
}

func (r *Registry) IsConfigured(provider string) bool {
	_, ok := r.providers[provider]
	return ok
}

// Begin starts a challenge. The returned State must be kept by the browser
// and handed back to Complete.
func (r *Registry) Begin(ch service.Challenge) (string, State, error) {
	p, ok := r.providers[ch.Provider]
	if !ok {
		return "", State{}, fmt.Errorf("%w: %s", ErrUnknownProvider, ch.Provider)
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", State{}, err
	}
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", State{}, err
	}

	st := State{
		Provider:    ch.Provider,
		SignInID:    ch.SignInID,
		State:       state,
		Nonce:       nonce,
		Verifier:    oauth2.GenerateVerifier(),
		CallbackURL: ch.CallbackURL,
		ExpiresAt:   r.Now().UTC().Add(StateTTL),
	}
	return p.AuthCodeURL(st.CallbackURL, st.State, st.Nonce, st.Verifier, ch.LoginHint), st, nil
}

// Complete validates a provider callback against st. An error reported by
// the provider is not a Go error: it is returned in the callback for the
// sign-in flow to audit.
func (r *Registry) Complete(ctx context.Context, st *State, query url.Values) (service.ExternalCallback, error) {
	if st == nil {
		return service.ExternalCallback{}, ErrNoState
	}
	cb := service.ExternalCallback{SignInID: st.SignInID, Provider: st.Provider}

	if !cryptox.TokensEqual(st.State, query.Get("state")) {
		return cb, ErrStateMismatch
	}
	if !r.Now().Before(st.ExpiresAt) {
		return cb, ErrStateExpired
	}
	if e := query.Get("error"); e != "" {
		cb.Error = e
		if desc := query.Get("error_description"); desc != "" {
			cb.Error += ": " + desc
		}
		return cb, nil
	}

	code := query.Get("code")
	if code == "" {
		return cb, ErrMissingCode
	}
	p, ok := r.providers[st.Provider]
	if !ok {
		return cb, fmt.Errorf("%w: %s", ErrUnknownProvider, st.Provider)
	}

	claims, err := p.Exchange(ctx, st.CallbackURL, code, st.Verifier, st.Nonce)
	if err != nil {
		return cb, err
	}
	cb.Claims = claims
	return cb, nil
}

// Failed turns a Complete error into the callback the sign-in flow reports.
// The error text shown to the user is a short code, never the Go error.
func Failed(st *State, err error) service.ExternalCallback {
	var cb service.ExternalCallback
	if st != nil {
		cb.SignInID = st.SignInID
		cb.Provider = st.Provider
	}
	switch {
	case errors.Is(err, ErrStateMismatch):
		cb.Error = "invalid_state"
	case errors.Is(err, ErrStateExpired):
		cb.Error = "expired_state"
	case errors.Is(err, ErrMissingCode):
		cb.Error = "missing_code"
	default:
		cb.Error = "exchange_failed"
	}
	return cb
}
