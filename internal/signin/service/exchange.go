package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

// RequestInfo describes the inbound request in the terms the flows need.
type RequestInfo struct {
	// BaseURL is the absolute URL the endpoints live under, with a trailing
	// slash.
	BaseURL string
	// Host is scheme and authority without a trailing slash.
	Host       string
	CurrentURL string
}

// MessageStore reads and clears protocol messages keyed by an opaque id.
// Read returns nil and no error when nothing is stored under id.
type MessageStore[T any] interface {
	Read(ctx context.Context, id string) (*T, error)
	Clear(ctx context.Context, id string) error
}

// UsernameStore remembers the last username used on this browser. Setting
// "" forgets it.
type UsernameStore interface {
	LastUsername() string
	SetLastUsername(username string)
}

// CookieKind names one of the authentication cookies.
type CookieKind int

const (
	CookiePrimary CookieKind = iota
	CookieExternal
	CookiePartial
)

// Persistence controls how long the primary cookie outlives the browser
// session. A zero ExpiresAt on a persistent cookie means the default
// lifetime.
type Persistence struct {
	Persistent bool
	ExpiresAt  time.Time
}

// AuthCookies reads and writes the authentication cookies of one exchange.
type AuthCookies interface {
	Principal() *domain.Principal
	Partial() *domain.PartialIdentity
	IssuePrincipal(ctx context.Context, p domain.Principal, persistence Persistence) error
	IssuePartial(ctx context.Context, p domain.PartialSignIn) error
	Clear(kinds ...CookieKind)
}

// Exchange bundles the per-request state a flow reads and mutates.
type Exchange struct {
	Info        RequestInfo
	SignIns     MessageStore[domain.SignInRequest]
	SignOuts    MessageStore[domain.SignOutRequest]
	Usernames   UsernameStore
	Cookies     AuthCookies
	AntiForgery string
}
