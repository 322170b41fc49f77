package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/signin/internal/signin/cookies"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/httpx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// exchange is one request's view of the cookies and message stores.
type exchange struct {
	*service.Exchange
	jar *cookies.Jar
}

// newExchange binds the stores to w and r. A failure to mint the
// anti-forgery token leaves it empty, which no form submission matches.
func (r *Router) newExchange(w http.ResponseWriter, req *http.Request) *exchange {
	jar := cookies.New(r.Cookies, w, req)
	host := httpx.SchemeHost(req, r.TrustProxy)

	token, err := jar.AntiForgeryToken()
	if err != nil {
		slogx.FromContext(req.Context()).Error("failed to mint anti-forgery token", slog.Any("error", err))
	}

	return &exchange{
		Exchange: &service.Exchange{
			Info: service.RequestInfo{
				BaseURL:    host + r.basePath + "/",
				Host:       host,
				CurrentURL: host + req.URL.RequestURI(),
			},
			SignIns:     r.Messages.SignIns(w, req),
			SignOuts:    r.Messages.SignOuts(w, req),
			Usernames:   jar,
			Cookies:     jar,
			AntiForgery: token,
		},
		jar: jar,
	}
}

// expand resolves "~/" against the base URL.
func (x *exchange) expand(target string) string {
	if rest, ok := strings.CutPrefix(target, "~/"); ok {
		return x.Info.BaseURL + rest
	}
	return target
}

// parseForm reads a form post and checks its anti-forgery token. On failure
// the error page has been written.
func (r *Router) parseForm(w http.ResponseWriter, req *http.Request, x *exchange) bool {
	log := slogx.FromContext(req.Context())
	if err := req.ParseForm(); err != nil {
		log.Warn("unreadable form", slog.Any("error", err))
		r.writeError(w, req, x, http.StatusBadRequest, "")
		return false
	}
	if !x.jar.ValidAntiForgery(req.PostForm.Get(cookies.AntiForgeryField)) {
		log.Warn("anti-forgery token rejected")
		r.writeError(w, req, x, http.StatusBadRequest, "")
		return false
	}
	return true
}

// write sends a flow result to the browser.
func (r *Router) write(w http.ResponseWriter, req *http.Request, x *exchange, res service.Result) {
	switch res.Kind {
	case service.ResultPage:
		r.views.Render(w, req, res.View, res.Model, http.StatusOK)
	case service.ResultRedirect:
		httpx.NoCache(w)
		http.Redirect(w, req, res.Location, http.StatusFound)
	case service.ResultChallenge:
		r.challenge(w, req, x, *res.Challenge)
	case service.ResultStatus:
		httpx.NoCache(w)
		w.WriteHeader(res.Status)
	default:
		slogx.FromContext(req.Context()).Error("unknown result kind", slog.Int("kind", int(res.Kind)))
		r.writeError(w, req, x, http.StatusInternalServerError, "")
	}
}

// challenge sends the browser to the external provider and keeps the
// round-trip state in a sealed cookie.
func (r *Router) challenge(w http.ResponseWriter, req *http.Request, x *exchange, ch service.Challenge) {
	log := slogx.FromContext(req.Context())

	target, st, err := r.Federation.Begin(ch)
	if err != nil {
		log.Error("failed to start external login", slog.String("provider", ch.Provider), slog.Any("error", err))
		r.writeError(w, req, x, http.StatusInternalServerError, "")
		return
	}
	if err := x.jar.SetExternalState(st); err != nil {
		log.Error("failed to store external login state", slog.Any("error", err))
		r.writeError(w, req, x, http.StatusInternalServerError, "")
		return
	}

	log.Info("redirecting to external provider", slog.String("provider", ch.Provider))
	httpx.NoCache(w)
	http.Redirect(w, req, target, http.StatusFound)
}

// writeError renders the error page outside a flow. An empty message shows
// the generic text.
func (r *Router) writeError(w http.ResponseWriter, req *http.Request, x *exchange, status int, message string) {
	res := r.SignIn.ErrorPage(req.Context(), x.Exchange, message)
	r.views.Render(w, req, res.View, res.Model, status)
}
