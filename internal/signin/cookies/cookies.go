// Package cookies implements the authentication cookies of the sign-in
// endpoints: the primary session, the partial sign-in, the external
// challenge state, the last username and the anti-forgery token.
package cookies

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/jwtx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// Cookie names.
const (
	NamePrimary     = "session"
	NameSessionID   = "session.id"
	NamePartial     = "session.partial"
	NameExternal    = "session.external"
	NameUsername    = "last_username"
	NameAntiForgery = "xsrf"
)

// Defaults for Config lifetimes.
const (
	DefaultSessionTTL    = 10 * time.Hour
	DefaultPersistentTTL = 30 * 24 * time.Hour
	DefaultPartialTTL    = 30 * time.Minute
	DefaultUsernameTTL   = 365 * 24 * time.Hour
)

// Config is shared by every Jar.
type Config struct {
	Signer *jwtx.HS256
	Sealer *cryptox.Sealer

	Path   string
	Secure bool

	// SessionTTL is the lifetime of a browser-session primary cookie.
	SessionTTL time.Duration
	// PersistentTTL applies to persistent sessions without an explicit
	// expiry.
	PersistentTTL time.Duration
	PartialTTL    time.Duration
	UsernameTTL   time.Duration

	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.PersistentTTL <= 0 {
		c.PersistentTTL = DefaultPersistentTTL
	}
	if c.PartialTTL <= 0 {
		c.PartialTTL = DefaultPartialTTL
	}
	if c.UsernameTTL <= 0 {
		c.UsernameTTL = DefaultUsernameTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Jar reads and writes the cookies of one exchange. It implements
// service.AuthCookies and service.UsernameStore.
type Jar struct {
	cfg Config
	w   http.ResponseWriter
	r   *http.Request

	// Values written during this exchange win over the request.
	principal *domain.Principal
	partial   *domain.PartialIdentity
	cleared   map[string]bool
	minted    string
}

var (
	_ service.AuthCookies   = (*Jar)(nil)
	_ service.UsernameStore = (*Jar)(nil)
)

// New binds cfg to one request and response.
func New(cfg Config, w http.ResponseWriter, r *http.Request) *Jar {
	return &Jar{cfg: cfg.withDefaults(), w: w, r: r, cleared: map[string]bool{}}
}

func (j *Jar) ctx() context.Context { return j.r.Context() }

// value returns "" for absent and cleared cookies.
func (j *Jar) value(name string) string {
	if j.cleared[name] {
		return ""
	}
	c, err := j.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (j *Jar) set(name, value string, expires time.Time, httpOnly bool) {
	delete(j.cleared, name)
	http.SetCookie(j.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     j.cfg.Path,
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   j.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j *Jar) expire(name string) {
	j.cleared[name] = true
	http.SetCookie(j.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     j.cfg.Path,
		MaxAge:   -1,
		HttpOnly: name != NameSessionID,
		Secure:   j.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Principal returns the session of the primary cookie, nil when absent or
// invalid.
func (j *Jar) Principal() *domain.Principal {
	if j.principal != nil || j.cleared[NamePrimary] {
		return j.principal
	}
	raw := j.value(NamePrimary)
	if raw == "" {
		return nil
	}
	claims, err := j.cfg.Signer.Verify(raw)
	if err != nil {
		slogx.FromContext(j.ctx()).Debug("session cookie rejected", "error", err)
		return nil
	}

	p := &domain.Principal{
		Claims:     fromJWT(claims.Identity),
		SessionID:  claims.SID,
		Persistent: claims.Persistent,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	j.principal = p
	return p
}

// IssuePrincipal writes the primary and session id cookies.
func (j *Jar) IssuePrincipal(_ context.Context, p domain.Principal, persistence service.Persistence) error {
	if p.Subject() == "" || p.SessionID == "" {
		return errors.New("cookies: principal needs a subject and a session id")
	}

	now := j.cfg.Now().UTC()
	ttl := j.cfg.SessionTTL
	var expires time.Time
	if persistence.Persistent {
		expires = persistence.ExpiresAt
		if expires.IsZero() {
			expires = now.Add(j.cfg.PersistentTTL)
		}
		ttl = expires.Sub(now)
		if ttl <= 0 {
			return errors.New("cookies: persistent expiry is in the past")
		}
	}

	claims := jwtx.NewSessionClaims("", p.Subject(), p.SessionID, p.IdentityProvider(),
		toJWT(p.Claims), persistence.Persistent, ttl, now)
	token, err := j.cfg.Signer.Sign(claims)
	if err != nil {
		return err
	}

	j.set(NamePrimary, token, expires, true)
	// The session id is readable by script for session management frames.
	j.set(NameSessionID, p.SessionID, expires, false)

	p.IssuedAt = now
	p.Persistent = persistence.Persistent
	j.principal = &p
	return nil
}

// Partial returns the pending partial sign-in, nil when absent or invalid.
func (j *Jar) Partial() *domain.PartialIdentity {
	if j.partial != nil || j.cleared[NamePartial] {
		return j.partial
	}
	raw := j.value(NamePartial)
	if raw == "" {
		return nil
	}
	var id partialCookie
	if err := j.cfg.Sealer.Open(NamePartial, raw, &id); err != nil {
		slogx.FromContext(j.ctx()).Debug("partial cookie rejected", "error", err)
		return nil
	}
	if !j.cfg.Now().Before(id.ExpiresAt) {
		return nil
	}
	j.partial = &id.Identity
	return j.partial
}

type partialCookie struct {
	Identity  domain.PartialIdentity `json:"id"`
	ExpiresAt time.Time              `json:"e"`
}

// IssuePartial writes the partial cookie for p.
func (j *Jar) IssuePartial(_ context.Context, p domain.PartialSignIn) error {
	expires := j.cfg.Now().UTC().Add(j.cfg.PartialTTL)
	id := domain.PartialIdentity{Claims: p.ToClaims(), RememberMe: p.RememberMe}
	sealed, err := j.cfg.Sealer.Seal(NamePartial, partialCookie{Identity: id, ExpiresAt: expires})
	if err != nil {
		return err
	}
	j.set(NamePartial, sealed, time.Time{}, true)
	j.partial = &id
	return nil
}

// Clear expires the named cookies. Clearing the primary cookie also drops
// the session id.
func (j *Jar) Clear(kinds ...service.CookieKind) {
	for _, k := range kinds {
		switch k {
		case service.CookiePrimary:
			j.expire(NamePrimary)
			j.expire(NameSessionID)
			j.principal = nil
		case service.CookiePartial:
			j.expire(NamePartial)
			j.partial = nil
		case service.CookieExternal:
			j.expire(NameExternal)
		}
	}
}

// SetExternalState seals the federation round-trip state. It is cleared by
// the sign-in flows together with the other authentication cookies.
func (j *Jar) SetExternalState(v any) error {
	sealed, err := j.cfg.Sealer.Seal(NameExternal, v)
	if err != nil {
		return err
	}
	j.set(NameExternal, sealed, time.Time{}, true)
	return nil
}

// ExternalState opens the state written by SetExternalState.
func (j *Jar) ExternalState(v any) error {
	raw := j.value(NameExternal)
	if raw == "" {
		return http.ErrNoCookie
	}
	return j.cfg.Sealer.Open(NameExternal, raw, v)
}

func (j *Jar) LastUsername() string {
	raw := j.value(NameUsername)
	if raw == "" {
		return ""
	}
	var username string
	if err := j.cfg.Sealer.Open(NameUsername, raw, &username); err != nil {
		return ""
	}
	return username
}

func (j *Jar) SetLastUsername(username string) {
	if username == "" {
		j.expire(NameUsername)
		return
	}
	sealed, err := j.cfg.Sealer.Seal(NameUsername, username)
	if err != nil {
		slogx.FromContext(j.ctx()).Warn("seal last username", "error", err)
		return
	}
	j.set(NameUsername, sealed, j.cfg.Now().Add(j.cfg.UsernameTTL), true)
}

func toJWT(cs domain.Claims) []jwtx.Claim {
	out := make([]jwtx.Claim, 0, len(cs))
	for _, c := range cs {
		out = append(out, jwtx.Claim{Type: c.Type, Value: c.Value, Issuer: c.Issuer})
	}
	return out
}

func fromJWT(cs []jwtx.Claim) domain.Claims {
	out := make(domain.Claims, 0, len(cs))
	for _, c := range cs {
		out = append(out, domain.Claim{Type: c.Type, Value: c.Value, Issuer: c.Issuer})
	}
	return out
}
