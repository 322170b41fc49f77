package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill per Window,
// at most Burst at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

func (c RateLimitConfig) limit() rate.Limit {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// Limits are the profiles endpoints choose from.
type Limits struct {
	// Strict guards credential, code and proof submissions.
	Strict RateLimitConfig
	// Moderate guards flow steps that do work but take no secret.
	Moderate RateLimitConfig
	// Lenient guards page views and probes.
	Lenient RateLimitConfig
}

// DefaultLimits allow 5, 20 and 100 requests a minute.
func DefaultLimits() Limits {
	return Limits{
		Strict:   RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5},
		Moderate: RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20},
		Lenient:  RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100},
	}
}

// KeyExtractor groups requests into buckets. An empty key is not limited.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor uses the first X-Forwarded-For hop, then X-Real-IP, then
// the peer address.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// QueryParamKeyExtractor never reads the body.
func QueryParamKeyExtractor(name string) KeyExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

// FormFieldKeyExtractor parses the form, so handlers behind it find
// r.PostForm already filled.
func FormFieldKeyExtractor(fieldName string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.FormValue(fieldName)
	}
}

// CompositeKeyExtractor joins the non-empty keys with sep, e.g.
// "192.168.1.1:alice".
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// RejectFunc writes the response of a throttled request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// PlainReject answers 429 with a text body.
func PlainReject(w http.ResponseWriter, _ *http.Request, _ time.Duration) {
	http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one bucket per key. Buckets idle for longer than
// IdleTimeout are swept on the next request after it elapses.
type Limiter struct {
	cfg    RateLimitConfig
	key    KeyExtractor
	reject RejectFunc

	IdleTimeout time.Duration
	Now         func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewLimiter builds a Limiter. A nil reject means PlainReject.
func NewLimiter(cfg RateLimitConfig, key KeyExtractor, reject RejectFunc) *Limiter {
	if reject == nil {
		reject = PlainReject
	}
	return &Limiter{
		cfg:         cfg,
		key:         key,
		reject:      reject,
		IdleTimeout: max(cfg.Window, 5*time.Minute),
		Now:         time.Now,
		buckets:     map[string]*bucket{},
	}
}

// Allow takes a token for key. When none is left it reports how long until
// the next one.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.IdleTimeout {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.IdleTimeout {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.cfg.limit(), max(l.cfg.Burst, 1))}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// Len is the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware throttles next.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := slogx.FromContext(r.Context())

		key := l.key(r)
		if key == "" {
			log.Warn("rate limit: unable to extract key, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		ok, delay := l.Allow(key)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Window", l.cfg.Window.String())

		log.Warn("rate limit exceeded",
			"key", key,
			"endpoint", r.URL.Path,
			"retry_after", retryAfter,
		)

		NoCache(w)
		l.reject(w, r, time.Duration(retryAfter)*time.Second)
	})
}

// RateLimitMiddleware throttles by key and answers with PlainReject.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return NewLimiter(config, keyExtractor, nil).Middleware
}

// ByIP keys on the client address.
func ByIP() KeyExtractor {
	return IPKeyExtractor
}

// ByIPAndQueryParam keys on the client address and a query parameter, e.g.
// the sign-in id on endpoints one browser flow hits repeatedly.
func ByIPAndQueryParam(name string) KeyExtractor {
	return CompositeKeyExtractor(":", IPKeyExtractor, QueryParamKeyExtractor(name))
}

// ByIPAndFormField keys on the client address and a form field, e.g. the
// username of a login attempt.
func ByIPAndFormField(fieldName string) KeyExtractor {
	return CompositeKeyExtractor(":", IPKeyExtractor, FormFieldKeyExtractor(fieldName))
}
