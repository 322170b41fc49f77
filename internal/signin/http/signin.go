package http

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/signin/internal/signin/federation"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// SignInHandler serves the login, external, resume and logout endpoints.
type SignInHandler struct {
	*Router
}

func (h *SignInHandler) HandleLoginPage(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	res := h.SignIn.Login(req.Context(), x.Exchange, req.URL.Query().Get("signin"))
	h.write(w, req, x, res)
}

func (h *SignInHandler) HandleLogin(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}

	form := req.PostForm
	rememberMe := form.Get("rememberMe") == "true"
	res := h.SignIn.LoginLocal(req.Context(), x.Exchange, req.URL.Query().Get("signin"), service.LocalCredentials{
		Username:         form.Get(service.FieldUsername),
		Password:         form.Get(service.FieldPassword),
		RememberMe:       &rememberMe,
		ExternalProvider: form.Get("provider"),
	})
	h.write(w, req, x, res)
}

func (h *SignInHandler) HandleExternal(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	q := req.URL.Query()
	res := h.SignIn.LoginExternal(req.Context(), x.Exchange, q.Get("signin"), q.Get("provider"), q.Get("login_hint"))
	h.write(w, req, x, res)
}

// HandleExternalCallback validates the provider's answer against the state
// cookie. The state is single use: it is dropped before the code is
// redeemed.
func (h *SignInHandler) HandleExternalCallback(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	log := slogx.FromContext(ctx)
	x := h.newExchange(w, req)

	if err := req.ParseForm(); err != nil {
		log.Warn("unreadable external callback", slog.Any("error", err))
		h.writeError(w, req, x, http.StatusBadRequest, "")
		return
	}

	var (
		st federation.State
		cb service.ExternalCallback
	)
	if err := x.jar.ExternalState(&st); err != nil {
		// Without the state the sign-in id is lost; the empty callback takes
		// the no sign-in path.
		log.Warn("external callback without usable state", slog.Any("error", err))
	} else {
		x.jar.Clear(service.CookieExternal)
		completed, err := h.Federation.Complete(ctx, &st, req.Form)
		if err != nil {
			log.Error("external login failed",
				slog.String("provider", st.Provider),
				slog.Any("error", err),
			)
			completed = federation.Failed(&st, err)
		}
		cb = completed
	}

	h.write(w, req, x, h.SignIn.LoginExternalCallback(ctx, x.Exchange, cb))
}

func (h *SignInHandler) HandleResume(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	res := h.SignIn.Resume(req.Context(), x.Exchange, req.URL.Query().Get("resume"))
	h.write(w, req, x, res)
}

func (h *SignInHandler) HandleLogoutPrompt(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	res := h.SignIn.LogoutPrompt(req.Context(), x.Exchange, req.URL.Query().Get("id"))
	h.write(w, req, x, res)
}

func (h *SignInHandler) HandleLogout(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}
	res := h.SignIn.Logout(req.Context(), x.Exchange, req.URL.Query().Get("id"))
	h.write(w, req, x, res)
}

// ResetHandler serves the three password reset stages.
type ResetHandler struct {
	*Router
}

func (h *ResetHandler) HandleRequestPage(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	res := h.SignIn.ResetPasswordPage(req.Context(), x.Exchange, req.URL.Query().Get("signin"))
	h.write(w, req, x, res)
}

func (h *ResetHandler) HandleRequest(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}
	res := h.SignIn.ResetPassword(req.Context(), x.Exchange,
		req.URL.Query().Get("signin"),
		req.PostForm.Get(service.FieldUsername),
	)
	h.write(w, req, x, res)
}

func (h *ResetHandler) HandleVerifyPage(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	q := req.URL.Query()
	res := h.SignIn.ResetPasswordVerifyPage(req.Context(), x.Exchange, q.Get("signin"), q.Get("username"))
	h.write(w, req, x, res)
}

func (h *ResetHandler) HandleVerify(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}
	res := h.SignIn.ResetPasswordVerify(req.Context(), x.Exchange,
		req.URL.Query().Get("signin"),
		req.PostForm.Get(service.FieldUsername),
		req.PostForm.Get(service.FieldProof),
	)
	h.write(w, req, x, res)
}

func (h *ResetHandler) HandleCallbackPage(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	q := req.URL.Query()
	res := h.SignIn.ResetPasswordCallbackPage(req.Context(), x.Exchange, q.Get("signin"), q.Get("token"))
	h.write(w, req, x, res)
}

func (h *ResetHandler) HandleCallback(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}
	q := req.URL.Query()
	res := h.SignIn.ResetPasswordCallback(req.Context(), x.Exchange, q.Get("signin"), service.ResetCallbackInput{
		Token:           q.Get("token"),
		Password:        req.PostForm.Get(service.FieldPassword),
		ConfirmPassword: req.PostForm.Get(service.FieldConfirmPassword),
	})
	h.write(w, req, x, res)
}
