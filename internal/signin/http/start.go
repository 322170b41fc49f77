package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/httpx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// Entry points for relying parties, relative to the base path.
const (
	PathSignInStart  = "signin"
	PathSignOutStart = "signout"
)

// StartHandler turns a relying party's redirect into a stored sign-in or
// sign-out request and sends the browser on to the login or logout page.
type StartHandler struct {
	*Router
}

// HandleSignIn accepts client_id, return_url, idp, login_hint, prompt and
// ui_locales. return_url must be registered for the client.
func (h *StartHandler) HandleSignIn(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	log := slogx.FromContext(ctx)
	x := h.newExchange(w, req)
	q := req.URL.Query()

	msg := domain.SignInRequest{
		ClientID:  q.Get("client_id"),
		ReturnURL: q.Get("return_url"),
		IdP:       q.Get("idp"),
		LoginHint: q.Get("login_hint"),
		UILocales: q.Get("ui_locales"),
	}
	if q.Get("prompt") == "login" {
		msg.LoginForced = domain.LoginForcedVisible
		if q.Get("login_hint_hidden") == "true" && msg.LoginHint != "" {
			msg.LoginForced = domain.LoginForcedHidden
		}
	}

	client, err := h.Clients.FindClientByID(ctx, msg.ClientID)
	if err != nil {
		log.Error("failed to load client", slog.String("client_id", msg.ClientID), slog.Any("error", err))
		h.writeError(w, req, x, http.StatusInternalServerError, "")
		return
	}
	if client == nil || !client.HasRedirectURI(msg.ReturnURL) {
		log.Warn("sign-in request rejected",
			slog.String("client_id", msg.ClientID),
			slog.String("return_url", msg.ReturnURL),
		)
		h.writeError(w, req, x, http.StatusBadRequest, "")
		return
	}

	id, err := h.Messages.SignIns(w, req).Write(ctx, msg)
	if err != nil {
		log.Error("failed to store sign-in request", slog.Any("error", err))
		h.writeError(w, req, x, http.StatusInternalServerError, "")
		return
	}

	log.Info("sign-in started", slog.String("client_id", msg.ClientID))
	httpx.NoCache(w)
	http.Redirect(w, req, x.Info.BaseURL+service.PathLogin+"?signin="+url.QueryEscape(id), http.StatusFound)
}

// HandleSignOut accepts client_id, post_logout_redirect_uri and
// ui_locales. A redirect URI must be registered for the client.
func (h *StartHandler) HandleSignOut(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	log := slogx.FromContext(ctx)
	x := h.newExchange(w, req)
	q := req.URL.Query()

	msg := domain.SignOutRequest{
		ClientID:  q.Get("client_id"),
		ReturnURL: q.Get("post_logout_redirect_uri"),
		UILocales: q.Get("ui_locales"),
	}

	if msg.ClientID != "" || msg.ReturnURL != "" {
		client, err := h.Clients.FindClientByID(ctx, msg.ClientID)
		if err != nil {
			log.Error("failed to load client", slog.String("client_id", msg.ClientID), slog.Any("error", err))
			h.writeError(w, req, x, http.StatusInternalServerError, "")
			return
		}
		if client == nil || (msg.ReturnURL != "" && !client.HasPostLogoutRedirectURI(msg.ReturnURL)) {
			log.Warn("sign-out request rejected",
				slog.String("client_id", msg.ClientID),
				slog.String("return_url", msg.ReturnURL),
			)
			h.writeError(w, req, x, http.StatusBadRequest, "")
			return
		}
	}

	id, err := h.Messages.SignOuts(w, req).Write(ctx, msg)
	if err != nil {
		log.Error("failed to store sign-out request", slog.Any("error", err))
		h.writeError(w, req, x, http.StatusInternalServerError, "")
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, req, x.Info.BaseURL+service.PathLogout+"?id="+url.QueryEscape(id), http.StatusFound)
}
