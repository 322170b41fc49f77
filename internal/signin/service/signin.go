package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

var (
	ErrMissingSignInID  = errors.New("sign-in id missing")
	ErrSignInIDTooLong  = errors.New("sign-in id too long")
	ErrSignInNotFound   = errors.New("sign-in request not found")
	ErrSignOutIDTooLong = errors.New("sign-out id too long")
)

// SignInService orchestrates the browser-facing sign-in flows. It holds no
// per-request state; everything a request owns travels in an Exchange.
type SignInService struct {
	Options   Options
	Identity  IdentityService
	Resets    PasswordResetService // nil disables the reset flow
	Clients   ClientStore
	Events    EventSink
	Locale    Localizer
	Providers ProviderCatalog
	Now       func() time.Time
}

func (s *SignInService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Resolve loads the sign-in request stored under id.
func (s *SignInService) Resolve(ctx context.Context, x *Exchange, id string) (*domain.SignInRequest, error) {
	if id == "" {
		return nil, ErrMissingSignInID
	}
	if len(id) > MaxSignInIDLength {
		return nil, ErrSignInIDTooLong
	}
	msg, err := x.SignIns.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read sign-in request: %w", err)
	}
	if msg == nil {
		return nil, ErrSignInNotFound
	}
	if msg.UILocales != "" {
		s.Locale.SetRequestLanguage(ctx, msg.UILocales)
	}
	return msg, nil
}

// resolve maps every resolution failure onto the response the browser gets.
func (s *SignInService) resolve(ctx context.Context, x *Exchange, id string) (*domain.SignInRequest, *Result) {
	log := slogx.FromContext(ctx)

	msg, err := s.Resolve(ctx, x, id)
	if err == nil {
		return msg, nil
	}

	var res Result
	switch {
	case errors.Is(err, ErrMissingSignInID), errors.Is(err, ErrSignInNotFound):
		log.Info("no usable sign-in request", slog.String("signin_id", id), slog.Any("error", err))
		res = s.handleNoSignIn(ctx, x)
	case errors.Is(err, ErrSignInIDTooLong):
		log.Error("sign-in id longer than allowed", slog.Int("length", len(id)))
		res = s.errorPage(ctx, x, "")
	default:
		log.Error("failed to resolve sign-in request", slog.Any("error", err))
		res = s.errorPage(ctx, x, "")
	}
	return nil, &res
}

func (s *SignInService) handleNoSignIn(ctx context.Context, x *Exchange) Result {
	target := s.Options.InvalidSignInRedirectURL
	if target == "" {
		return s.errorPage(ctx, x, s.Locale.Message(ctx, MsgNoSignInCookie))
	}
	switch {
	case strings.HasPrefix(target, "~/"):
		target = x.Info.BaseURL + target[2:]
	case strings.HasPrefix(target, "/"):
		target = x.Info.Host + target
	}
	return redirect(target)
}

// localLoginAllowedForClient fails open: a client the store cannot find
// does not block local login.
func (s *SignInService) localLoginAllowedForClient(ctx context.Context, msg *domain.SignInRequest) bool {
	if msg.ClientID == "" {
		return true
	}
	client, err := s.Clients.FindClientByID(ctx, msg.ClientID)
	if err != nil {
		slogx.FromContext(ctx).Warn("client lookup failed, allowing local login",
			slog.String("client_id", msg.ClientID),
			slog.Any("error", err),
		)
		return true
	}
	if client == nil {
		return true
	}
	return client.EnableLocalLogin
}

// findClient swallows lookup failures; pages render without client details.
func (s *SignInService) findClient(ctx context.Context, clientID string) *domain.Client {
	if clientID == "" {
		return nil
	}
	client, err := s.Clients.FindClientByID(ctx, clientID)
	if err != nil {
		slogx.FromContext(ctx).Warn("client lookup failed",
			slog.String("client_id", clientID),
			slog.Any("error", err),
		)
		return nil
	}
	return client
}

func (s *SignInService) event(t domain.EventType, success bool, signInID string, msg *domain.SignInRequest) domain.Event {
	ev := domain.NewEvent(t, success, s.now())
	ev.SignInID = signInID
	if msg != nil {
		ev.ClientID = msg.ClientID
	}
	return ev
}

func (s *SignInService) raise(ctx context.Context, ev domain.Event) {
	if ev.RequestID == "" {
		ev.RequestID = slogx.RequestID(ctx)
	}
	s.Events.Raise(ctx, ev)
}

func (s *SignInService) endpointFailure(ctx context.Context, signInID string, msg *domain.SignInRequest, reason string) {
	ev := s.event(domain.EventEndpointFailure, false, signInID, msg)
	ev.Reason = reason
	s.raise(ctx, ev)
}

func (s *SignInService) pageModel(ctx context.Context, x *Exchange) PageModel {
	pm := PageModel{
		SiteName:    s.Options.SiteName,
		SiteURL:     x.Info.BaseURL,
		CurrentURL:  x.Info.CurrentURL,
		RequestID:   slogx.RequestID(ctx),
		AntiForgery: x.AntiForgery,
	}
	if p := x.Cookies.Principal(); p != nil {
		pm.CurrentUser = p.DisplayName()
		pm.LogoutURL = x.Info.BaseURL + PathLogout
	}
	return pm
}

func clientInfo(c *domain.Client) ClientInfo {
	if c == nil {
		return ClientInfo{}
	}
	return ClientInfo{ClientName: c.Name, ClientURL: c.URI, ClientLogoURL: c.LogoURI}
}

// PageModel is the shared page state for pages rendered outside the flows.
func (s *SignInService) PageModel(ctx context.Context, x *Exchange) PageModel {
	return s.pageModel(ctx, x)
}

// ErrorPage is the error view for failures outside the flows. An empty
// message shows the generic text.
func (s *SignInService) ErrorPage(ctx context.Context, x *Exchange, message string) Result {
	return s.errorPage(ctx, x, message)
}

// errorPage renders message, or the generic unexpected-error text when
// message is empty.
func (s *SignInService) errorPage(ctx context.Context, x *Exchange, message string) Result {
	if message == "" {
		message = s.Locale.Message(ctx, MsgUnexpectedError)
	}
	return page(ViewError, ErrorViewModel{
		PageModel:    s.pageModel(ctx, x),
		ErrorMessage: message,
	})
}

// expandTilde resolves a "~/" prefix against the base URL.
func expandTilde(baseURL, target string) string {
	if strings.HasPrefix(target, "~/") {
		return baseURL + target[2:]
	}
	return target
}

func signInQuery(signInID string) string {
	return "?signin=" + url.QueryEscape(signInID)
}

func truncate(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
