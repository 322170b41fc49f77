package domain

import (
	"slices"
	"time"
)

// Client is the relying party metadata the sign-in flows consult.
type Client struct {
	ID      string
	Name    string
	URI     string
	LogoURI string

	EnableLocalLogin     bool
	AllowRememberMe      bool
	RequireSignOutPrompt bool

	// IdentityProviderRestrictions lists the providers the client accepts.
	// Empty means every configured provider is allowed.
	IdentityProviderRestrictions []string

	RedirectURIs           []string
	PostLogoutRedirectURIs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllowsProvider reports whether the restriction list admits provider.
func (c Client) AllowsProvider(provider string) bool {
	return len(c.IdentityProviderRestrictions) == 0 ||
		slices.Contains(c.IdentityProviderRestrictions, provider)
}

// HasRedirectURI matches exactly, no prefix or wildcard matching.
func (c Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// HasPostLogoutRedirectURI matches exactly.
func (c Client) HasPostLogoutRedirectURI(uri string) bool {
	return slices.Contains(c.PostLogoutRedirectURIs, uri)
}

// ProviderDescription is an external provider as shown on the login page.
type ProviderDescription struct {
	Type    string
	Caption string
	// Hidden providers are usable through idp= but get no login button.
	Hidden bool
}
