package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/identity"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/pkg/httpx"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// StepViewModel backs the pages of the partial sign-in steps.
type StepViewModel struct {
	service.PageModel

	FormURL      string
	ErrorMessage string
	Username     string
	DisplayName  string
}

// StepsHandler serves the pages a partial sign-in passes through before
// it resumes: the second factor, a forced password change and the
// registration of a new federated account.
type StepsHandler struct {
	*Router
}

// partial loads the partial sign-in of the browser. On failure the error
// page has been written.
func (h *StepsHandler) partial(w http.ResponseWriter, req *http.Request, x *exchange) (domain.PartialSignIn, bool) {
	log := slogx.FromContext(req.Context())

	id := x.Cookies.Partial()
	if id == nil {
		log.Warn("step requested without partial sign-in")
		h.writeError(w, req, x, http.StatusBadRequest, "")
		return domain.PartialSignIn{}, false
	}
	p, err := domain.ParsePartialSignIn(*id, id.ResumeID())
	if err != nil {
		log.Warn("unusable partial sign-in", slog.Any("error", err))
		h.writeError(w, req, x, http.StatusBadRequest, "")
		return domain.PartialSignIn{}, false
	}
	return p, true
}

func (h *StepsHandler) page(w http.ResponseWriter, req *http.Request, x *exchange, view service.View, path string, model StepViewModel) {
	model.PageModel = h.SignIn.PageModel(req.Context(), x.Exchange)
	model.FormURL = x.expand(path)
	h.views.Render(w, req, view, model, http.StatusOK)
}

// advance stores the step's claims under the same resume id and moves on
// to the next step, or back to resume once the sign-in is complete.
func (h *StepsHandler) advance(w http.ResponseWriter, req *http.Request, x *exchange, p domain.PartialSignIn, res identity.StepResult) {
	ctx := req.Context()

	p.Claims = res.Claims
	if err := x.Cookies.IssuePartial(ctx, p); err != nil {
		slogx.FromContext(ctx).Error("failed to reissue partial sign-in", slog.Any("error", err))
		h.writeError(w, req, x, http.StatusInternalServerError, "")
		return
	}

	target := p.ReturnAfterResume
	if !res.Done() {
		target = x.expand(res.Next)
	}
	httpx.NoCache(w)
	http.Redirect(w, req, target, http.StatusFound)
}

// stepFailed maps identity errors that mean the browser is on the wrong
// step to the error page.
func (h *StepsHandler) stepFailed(w http.ResponseWriter, req *http.Request, x *exchange, err error) {
	log := slogx.FromContext(req.Context())
	switch {
	case errors.Is(err, identity.ErrNotPending),
		errors.Is(err, identity.ErrMFANotEnabled),
		errors.Is(err, identity.ErrNoPasswordChangeDue),
		errors.Is(err, identity.ErrSecondFactorRequired),
		errors.Is(err, identity.ErrAlreadyLinked):
		log.Warn("partial sign-in step rejected", slog.Any("error", err))
		h.writeError(w, req, x, http.StatusBadRequest, "")
	default:
		log.Error("partial sign-in step failed", slog.Any("error", err))
		h.writeError(w, req, x, http.StatusInternalServerError, "")
	}
}

func (h *StepsHandler) HandleTOTPPage(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	if _, ok := h.partial(w, req, x); !ok {
		return
	}
	h.page(w, req, x, ViewTOTP, identity.PathTOTP, StepViewModel{})
}

func (h *StepsHandler) HandleTOTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}
	p, ok := h.partial(w, req, x)
	if !ok {
		return
	}

	res, err := h.Identity.CompleteTOTP(ctx, p, req.PostForm.Get("code"))
	if errors.Is(err, identity.ErrInvalidTOTPCode) {
		slogx.FromContext(ctx).Info("wrong TOTP code", slog.String("subject", p.Claims.Subject()))
		h.page(w, req, x, ViewTOTP, identity.PathTOTP, StepViewModel{
			ErrorMessage: h.locale.Message(ctx, identity.MsgInvalidTOTPCode),
		})
		return
	}
	if err != nil {
		h.stepFailed(w, req, x, err)
		return
	}
	h.advance(w, req, x, p, res)
}

func (h *StepsHandler) HandlePasswordChangePage(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	if _, ok := h.partial(w, req, x); !ok {
		return
	}
	h.page(w, req, x, ViewPasswordChange, identity.PathPasswordChange, StepViewModel{})
}

func (h *StepsHandler) HandlePasswordChange(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}
	p, ok := h.partial(w, req, x)
	if !ok {
		return
	}

	res, err := h.Identity.ChangeForcedPassword(ctx, p,
		req.PostForm.Get(service.FieldPassword),
		req.PostForm.Get(service.FieldConfirmPassword),
	)
	var message string
	switch {
	case errors.Is(err, identity.ErrPasswordTooShort):
		message = fmt.Sprintf(h.locale.Message(ctx, identity.MsgPasswordTooShort), identity.MinPasswordLength)
	case errors.Is(err, identity.ErrPasswordConfirmation):
		message = h.locale.Message(ctx, service.MsgPasswordConfirmationMismatch)
	case err != nil:
		h.stepFailed(w, req, x, err)
		return
	}
	if message != "" {
		h.page(w, req, x, ViewPasswordChange, identity.PathPasswordChange, StepViewModel{ErrorMessage: message})
		return
	}
	h.advance(w, req, x, p, res)
}

func (h *StepsHandler) HandleRegisterPage(w http.ResponseWriter, req *http.Request) {
	x := h.newExchange(w, req)
	p, ok := h.partial(w, req, x)
	if !ok {
		return
	}
	if p.External == nil {
		h.stepFailed(w, req, x, identity.ErrNotPending)
		return
	}
	h.page(w, req, x, ViewRegister, identity.PathExternalRegister, StepViewModel{
		Username:    identity.SuggestedUsername(p.Claims),
		DisplayName: p.Claims.DisplayName(),
	})
}

// HandleRegister links the federated identity to a new account and
// resumes, which now finds the link.
func (h *StepsHandler) HandleRegister(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	x := h.newExchange(w, req)
	if !h.parseForm(w, req, x) {
		return
	}
	p, ok := h.partial(w, req, x)
	if !ok {
		return
	}

	username := req.PostForm.Get(service.FieldUsername)
	displayName := req.PostForm.Get("display_name")
	_, err := h.Identity.RegisterExternal(ctx, p, username, displayName)

	var message string
	switch {
	case errors.Is(err, identity.ErrUsernameRequired):
		message = h.locale.Message(ctx, service.MsgUsernameRequired)
	case errors.Is(err, identity.ErrUsernameTaken):
		message = h.locale.Message(ctx, identity.MsgUsernameTaken)
	case err != nil:
		h.stepFailed(w, req, x, err)
		return
	}
	if message != "" {
		h.page(w, req, x, ViewRegister, identity.PathExternalRegister, StepViewModel{
			ErrorMessage: message,
			Username:     username,
			DisplayName:  displayName,
		})
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, req, p.ReturnAfterResume, http.StatusFound)
}
