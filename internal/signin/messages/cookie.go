package messages

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// DefaultMaxCookies is how many messages of one kind a browser may hold
// before the oldest are dropped.
const DefaultMaxCookies = 10

// Cookies keeps messages in sealed browser cookies, one cookie per id.
type Cookies struct {
	Sealer *cryptox.Sealer
	// Path is the cookie path, normally the base path of the endpoints.
	Path   string
	Secure bool
	TTL    time.Duration
	// MaxPerKind caps the cookies of one kind on a browser.
	MaxPerKind int
	Now        func() time.Time
}

func (c Cookies) SignIns(w http.ResponseWriter, r *http.Request) Store[domain.SignInRequest] {
	return NewCookieStore[domain.SignInRequest](c, KindSignIn, w, r)
}

func (c Cookies) SignOuts(w http.ResponseWriter, r *http.Request) Store[domain.SignOutRequest] {
	return NewCookieStore[domain.SignOutRequest](c, KindSignOut, w, r)
}

// CookieStore is the per-exchange view of one kind of message cookie.
// Writes and clears made during the exchange are visible to later reads.
type CookieStore[T any] struct {
	cfg  Cookies
	kind Kind
	w    http.ResponseWriter
	r    *http.Request

	pending map[string]*envelope[T]
}

// NewCookieStore binds cfg to one request and response.
func NewCookieStore[T any](cfg Cookies, kind Kind, w http.ResponseWriter, r *http.Request) *CookieStore[T] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPerKind <= 0 {
		cfg.MaxPerKind = DefaultMaxCookies
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CookieStore[T]{cfg: cfg, kind: kind, w: w, r: r, pending: map[string]*envelope[T]{}}
}

func (s *CookieStore[T]) cookieName(id string) string {
	return string(s.kind) + "." + id
}

func (s *CookieStore[T]) Read(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, nil
	}
	if env, ok := s.pending[id]; ok {
		if env == nil {
			return nil, nil
		}
		msg := env.Message
		return &msg, nil
	}

	env, err := s.open(id)
	if err != nil {
		slogx.FromContext(ctx).Debug("message cookie rejected",
			"kind", string(s.kind),
			"error", err,
		)
		return nil, nil
	}
	if env == nil {
		return nil, nil
	}
	msg := env.Message
	return &msg, nil
}

// open returns nil when the cookie is absent.
func (s *CookieStore[T]) open(id string) (*envelope[T], error) {
	name := s.cookieName(id)
	c, err := s.r.Cookie(name)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var env envelope[T]
	if err := s.cfg.Sealer.Open(name, c.Value, &env); err != nil {
		return nil, err
	}
	if !s.cfg.Now().Before(env.ExpiresAt) {
		return nil, fmt.Errorf("messages: %s expired at %s", name, env.ExpiresAt.Format(time.RFC3339))
	}
	return &env, nil
}

func (s *CookieStore[T]) Write(_ context.Context, msg T) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("messages: new id: %w", err)
	}

	now := s.cfg.Now().UTC()
	env := &envelope[T]{Message: msg, CreatedAt: now, ExpiresAt: now.Add(s.cfg.TTL)}
	name := s.cookieName(id)
	sealed, err := s.cfg.Sealer.Seal(name, env)
	if err != nil {
		return "", err
	}

	s.dropOverflow()
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    sealed,
		Path:     s.cfg.Path,
		Expires:  env.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.pending[id] = env
	return id, nil
}

func (s *CookieStore[T]) Clear(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	s.expire(s.cookieName(id))
	s.pending[id] = nil
	return nil
}

func (s *CookieStore[T]) expire(name string) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     s.cfg.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// dropOverflow expires the oldest cookies of this kind so that, with the
// one about to be written, the browser holds at most MaxPerKind. Cookies
// that fail to open are always dropped.
func (s *CookieStore[T]) dropOverflow() {
	type held struct {
		name    string
		created time.Time
	}

	prefix := string(s.kind) + "."
	var live []held
	for _, c := range s.r.Cookies() {
		if !strings.HasPrefix(c.Name, prefix) {
			continue
		}
		id := strings.TrimPrefix(c.Name, prefix)
		if env, ok := s.pending[id]; ok && env == nil {
			continue
		}
		env, err := s.open(id)
		if err != nil || env == nil {
			s.expire(c.Name)
			continue
		}
		live = append(live, held{name: c.Name, created: env.CreatedAt})
	}
	for id, env := range s.pending {
		if env != nil {
			live = append(live, held{name: s.cookieName(id), created: env.CreatedAt})
		}
	}

	excess := len(live) - (s.cfg.MaxPerKind - 1)
	if excess <= 0 {
		return
	}
	sort.Slice(live, func(i, j int) bool { return live[i].created.Before(live[j].created) })
	for _, h := range live[:excess] {
		s.expire(h.name)
		s.pending[strings.TrimPrefix(h.name, prefix)] = nil
	}
}
