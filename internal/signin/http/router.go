package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/signin/internal/signin/cookies"
	"github.com/aussiebroadwan/signin/internal/signin/federation"
	"github.com/aussiebroadwan/signin/internal/signin/i18n"
	"github.com/aussiebroadwan/signin/internal/signin/identity"
	"github.com/aussiebroadwan/signin/internal/signin/messages"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/internal/signin/store"
	"github.com/aussiebroadwan/signin/pkg/httpx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	basePath     string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	locale       *i18n.Catalog
	views        *Views

	store      store.Store
	SignIn     *service.SignInService
	Identity   *identity.Service
	Federation *federation.Registry
	Clients    service.ClientStore
	Messages   messages.Source
	Cookies    cookies.Config
	Gatherer   prometheus.Gatherer // nil disables /metrics
	Checks     []ReadyCheck
	Limits     httpx.Limits

	// TrustProxy honours X-Forwarded-* headers. Only set it when a reverse
	// proxy that overwrites them sits in front of every request.
	TrustProxy bool
}

// NewRouter mounts the sign-in endpoints under basePath, e.g. "/core".
func NewRouter(
	basePath, buildVersion string,
	st store.Store,
	locale *i18n.Catalog,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		basePath:     strings.TrimRight(basePath, "/"),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		locale:       locale,
		views:        NewViews(locale),
		logger:       logger,
		Limits:       httpx.DefaultLimits(),
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		r.proxyHeaders,
		slogx.HTTPMiddleware(r.logger),
		httpx.SecurityHeaders,
		r.language,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerStart()
	r.registerSignIn()
	r.registerReset()
	r.registerSteps()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// proxyHeaders strips forwarding headers unless the proxy is trusted.
func (r *Router) proxyHeaders(next http.Handler) http.Handler {
	stripped := httpx.StripForwardedHeaders(next)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.TrustProxy {
			next.ServeHTTP(w, req)
			return
		}
		stripped.ServeHTTP(w, req)
	})
}

// language seeds the page language from Accept-Language. Sign-in requests
// may narrow it later with ui_locales.
func (r *Router) language(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := r.locale.WithRequest(req.Context(), req.Header.Get("Accept-Language"))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// limit throttles an endpoint, answering with the localized error page.
func (r *Router) limit(cfg httpx.RateLimitConfig, key httpx.KeyExtractor) httpx.Middleware {
	return httpx.NewLimiter(cfg, key, r.tooManyRequests).Middleware
}

func (r *Router) tooManyRequests(w http.ResponseWriter, req *http.Request, _ time.Duration) {
	x := r.newExchange(w, req)
	r.writeError(w, req, x, http.StatusTooManyRequests, r.locale.Message(req.Context(), MsgTooManyRequests))
}

// route is the mux pattern of an endpoint path relative to the base path.
func (r *Router) route(method, path string) string {
	return method + " " + r.basePath + "/" + path
}

func (r *Router) registerStart() {
	h := &StartHandler{Router: r}

	// Relying parties bounce browsers here; lenient since every login starts here
	r.Mux.Handle(r.route("GET", PathSignInStart),
		httpx.Chain(http.HandlerFunc(h.HandleSignIn),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	r.Mux.Handle(r.route("GET", PathSignOutStart),
		httpx.Chain(http.HandlerFunc(h.HandleSignOut),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
}

func (r *Router) registerSignIn() {
	h := &SignInHandler{Router: r}

	// GET /login - lenient rate limit (mostly just displays forms)
	r.Mux.Handle(r.route("GET", service.PathLogin),
		httpx.Chain(http.HandlerFunc(h.HandleLoginPage),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)

	// POST /login - strict rate limit by IP + username to prevent brute force
	r.Mux.Handle(r.route("POST", service.PathLogin),
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			r.limit(r.Limits.Strict, httpx.ByIPAndFormField(service.FieldUsername)),
		),
	)

	r.Mux.Handle(r.route("GET", service.PathExternal),
		httpx.Chain(http.HandlerFunc(h.HandleExternal),
			r.limit(r.Limits.Moderate, httpx.ByIPAndQueryParam("signin")),
		),
	)

	// Providers answer with a query (GET) or form_post (POST)
	callback := httpx.Chain(http.HandlerFunc(h.HandleExternalCallback),
		r.limit(r.Limits.Moderate, httpx.ByIP()),
	)
	r.Mux.Handle(r.route("GET", service.PathExternalCallback), callback)
	r.Mux.Handle(r.route("POST", service.PathExternalCallback), callback)

	r.Mux.Handle(r.route("GET", service.PathResume),
		httpx.Chain(http.HandlerFunc(h.HandleResume),
			r.limit(r.Limits.Moderate, httpx.ByIP()),
		),
	)

	r.Mux.Handle(r.route("GET", service.PathLogout),
		httpx.Chain(http.HandlerFunc(h.HandleLogoutPrompt),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	r.Mux.Handle(r.route("POST", service.PathLogout),
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.limit(r.Limits.Moderate, httpx.ByIP()),
		),
	)
}

func (r *Router) registerReset() {
	h := &ResetHandler{Router: r}

	r.Mux.Handle(r.route("GET", service.PathResetPassword),
		httpx.Chain(http.HandlerFunc(h.HandleRequestPage),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	// Each request mails a code, keep it strict
	r.Mux.Handle(r.route("POST", service.PathResetPassword),
		httpx.Chain(http.HandlerFunc(h.HandleRequest),
			r.limit(r.Limits.Strict, httpx.ByIPAndFormField(service.FieldUsername)),
		),
	)

	r.Mux.Handle(r.route("GET", service.PathResetPasswordVerify),
		httpx.Chain(http.HandlerFunc(h.HandleVerifyPage),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	// Proof guessing is capped per reset too, this caps it per IP
	r.Mux.Handle(r.route("POST", service.PathResetPasswordVerify),
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			r.limit(r.Limits.Strict, httpx.ByIPAndFormField(service.FieldUsername)),
		),
	)

	r.Mux.Handle(r.route("GET", service.PathResetPasswordCallback),
		httpx.Chain(http.HandlerFunc(h.HandleCallbackPage),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	r.Mux.Handle(r.route("POST", service.PathResetPasswordCallback),
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			r.limit(r.Limits.Moderate, httpx.ByIP()),
		),
	)
}

func (r *Router) registerSteps() {
	if r.Identity == nil {
		return
	}
	h := &StepsHandler{Router: r}

	r.Mux.Handle(r.route("GET", stepPath(identity.PathTOTP)),
		httpx.Chain(http.HandlerFunc(h.HandleTOTPPage),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	// POST /mfa/totp - strict rate limit (prevent brute force of TOTP codes)
	r.Mux.Handle(r.route("POST", stepPath(identity.PathTOTP)),
		httpx.Chain(http.HandlerFunc(h.HandleTOTP),
			r.limit(r.Limits.Strict, httpx.ByIP()),
		),
	)

	r.Mux.Handle(r.route("GET", stepPath(identity.PathPasswordChange)),
		httpx.Chain(http.HandlerFunc(h.HandlePasswordChangePage),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	r.Mux.Handle(r.route("POST", stepPath(identity.PathPasswordChange)),
		httpx.Chain(http.HandlerFunc(h.HandlePasswordChange),
			r.limit(r.Limits.Moderate, httpx.ByIP()),
		),
	)

	r.Mux.Handle(r.route("GET", stepPath(identity.PathExternalRegister)),
		httpx.Chain(http.HandlerFunc(h.HandleRegisterPage),
			r.limit(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	r.Mux.Handle(r.route("POST", stepPath(identity.PathExternalRegister)),
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			r.limit(r.Limits.Moderate, httpx.ByIP()),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitMiddleware(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Checks...),
			httpx.RateLimitMiddleware(r.Limits.Lenient, httpx.ByIP()),
		),
	)
	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", MetricsHandler(r.Gatherer))
	}
}

// stepPath strips the "~/" of a partial sign-in step.
func stepPath(p string) string {
	return strings.TrimPrefix(p, "~/")
}
