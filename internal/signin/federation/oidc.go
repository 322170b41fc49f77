package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

var (
	ErrNoIDToken     = errors.New("federation: token response without id_token")
	ErrNonceMismatch = errors.New("federation: id_token nonce mismatch")
)

// protocolClaims describe the token, not the subject.
var protocolClaims = []string{"iss", "aud", "exp", "iat", "nbf", "nonce", "at_hash", "c_hash", "azp", "auth_time", "sid"}

// OIDCConfig configures one OpenID Connect provider.
type OIDCConfig struct {
	// Name is the provider id used in idp= and IdP restrictions.
	Name    string
	Caption string
	Hidden  bool

	Issuer       string
	ClientID     string
	ClientSecret string
	// Scopes default to openid, profile and email.
	Scopes []string
}

// OIDC is a Provider backed by discovery, the authorization code flow with
// PKCE and a verified id_token.
type OIDC struct {
	cfg      OIDCConfig
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDC runs discovery against the issuer.
func NewOIDC(ctx context.Context, cfg OIDCConfig) (*OIDC, error) {
	if cfg.Name == "" || cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("federation: oidc provider needs a name, issuer and client id")
	}
	if cfg.Caption == "" {
		cfg.Caption = cfg.Name
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if !slices.Contains(cfg.Scopes, oidc.ScopeOpenID) {
		cfg.Scopes = append([]string{oidc.ScopeOpenID}, cfg.Scopes...)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("federation: discover %s: %w", cfg.Name, err)
	}

	return &OIDC{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *OIDC) Description() domain.ProviderDescription {
	return domain.ProviderDescription{Type: p.cfg.Name, Caption: p.cfg.Caption, Hidden: p.cfg.Hidden}
}

func (p *OIDC) config(redirectURL string) oauth2.Config {
	c := p.oauth
	c.RedirectURL = redirectURL
	return c
}

func (p *OIDC) AuthCodeURL(redirectURL, state, nonce, verifier, loginHint string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	c := p.config(redirectURL)
	return c.AuthCodeURL(state, opts...)
}

func (p *OIDC) Exchange(ctx context.Context, redirectURL, code, verifier, nonce string) (domain.Claims, error) {
	c := p.config(redirectURL)
	token, err := c.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("federation: %s token exchange: %w", p.cfg.Name, err)
	}

	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, ErrNoIDToken
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("federation: %s id_token: %w", p.cfg.Name, err)
	}
	if idToken.Nonce != nonce {
		return nil, ErrNonceMismatch
	}

	var fields map[string]any
	if err := idToken.Claims(&fields); err != nil {
		return nil, fmt.Errorf("federation: %s id_token claims: %w", p.cfg.Name, err)
	}
	return flatten(p.cfg.Name, fields), nil
}

// flatten turns id_token fields into claims with sub first and the rest in
// key order. Arrays become repeated claims, objects stay JSON.
func flatten(issuer string, fields map[string]any) domain.Claims {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "sub" && !slices.Contains(protocolClaims, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if _, ok := fields["sub"]; ok {
		keys = append([]string{"sub"}, keys...)
	}

	var out domain.Claims
	for _, k := range keys {
		values := []any{fields[k]}
		if arr, ok := fields[k].([]any); ok {
			values = arr
		}
		for _, v := range values {
			if s, ok := claimValue(v); ok {
				out = append(out, domain.Claim{Type: k, Value: s, Issuer: issuer})
			}
		}
	}
	return out
}

func claimValue(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
