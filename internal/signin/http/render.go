package http

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/signin/internal/signin/i18n"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/httpx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// Views of the partial sign-in steps.
const (
	ViewTOTP           service.View = "totp"
	ViewPasswordChange service.View = "password_change"
	ViewRegister       service.View = "register"
)

// MsgTooManyRequests is shown on throttled endpoints.
const MsgTooManyRequests = "too_many_requests"

//go:embed templates/*
var templateFS embed.FS

var allViews = []service.View{
	service.ViewLogin,
	service.ViewError,
	service.ViewLogout,
	service.ViewLoggedOut,
	service.ViewResetPassword,
	service.ViewResetPasswordVerify,
	service.ViewResetPasswordCallback,
	ViewTOTP,
	ViewPasswordChange,
	ViewRegister,
}

// placeholders let the templates parse; Render binds the request language.
var placeholders = template.FuncMap{
	"t":    func(string) string { return "" },
	"lang": func() string { return "" },
}

// Views renders the HTML pages. Each view is parsed with the shared layout
// into its own set so their blocks do not collide.
type Views struct {
	locale *i18n.Catalog
	sets   map[service.View]*template.Template
}

// NewViews parses every embedded page. It panics on a broken template.
func NewViews(locale *i18n.Catalog) *Views {
	v := &Views{locale: locale, sets: make(map[service.View]*template.Template, len(allViews))}
	for _, view := range allViews {
		v.sets[view] = template.Must(template.New(string(view)).Funcs(placeholders).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+string(view)+".html",
		))
	}
	return v
}

// Render writes view with model in the request language.
func (v *Views) Render(w http.ResponseWriter, r *http.Request, view service.View, model any, status int) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	base, ok := v.sets[view]
	if !ok {
		log.Error("unknown view", slog.String("view", string(view)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	t, err := base.Clone()
	if err != nil {
		log.Error("failed to clone view", slog.String("view", string(view)), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	t.Funcs(template.FuncMap{
		"t":    func(id string) string { return v.locale.Message(ctx, id) },
		"lang": func() string { return v.locale.Language(ctx).String() },
	})

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", model); err != nil {
		log.Error("failed to render view", slog.String("view", string(view)), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
