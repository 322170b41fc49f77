package service

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// LogoutPrompt shows the sign-out confirmation or signs out directly,
// depending on server policy and the client that asked for the sign-out.
func (s *SignInService) LogoutPrompt(ctx context.Context, x *Exchange, signOutID string) Result {
	log := slogx.FromContext(ctx)

	if len(signOutID) > MaxSignInIDLength {
		log.Error("sign-out id longer than allowed", slog.Int("length", len(signOutID)))
		return s.errorPage(ctx, x, "")
	}

	user := x.Cookies.Principal()
	if user == nil {
		return s.Logout(ctx, x, signOutID)
	}
	log.Info("logout prompt", slog.String("subject", user.Subject()))

	if s.Options.RequireSignOutPrompt {
		return s.logoutPromptPage(ctx, x, signOutID, nil)
	}

	msg := s.readSignOut(ctx, x, signOutID)
	if msg != nil && msg.ClientID != "" {
		client := s.findClient(ctx, msg.ClientID)
		if client != nil && client.RequireSignOutPrompt {
			return s.logoutPromptPage(ctx, x, signOutID, client)
		}
		return s.Logout(ctx, x, signOutID)
	}

	if !s.Options.EnableSignOutPrompt {
		return s.Logout(ctx, x, signOutID)
	}
	return s.logoutPromptPage(ctx, x, signOutID, nil)
}

// Logout clears every authentication cookie and shows the logged out page.
func (s *SignInService) Logout(ctx context.Context, x *Exchange, signOutID string) Result {
	log := slogx.FromContext(ctx)

	if len(signOutID) > MaxSignInIDLength {
		log.Error("sign-out id longer than allowed", slog.Int("length", len(signOutID)))
		return s.errorPage(ctx, x, "")
	}

	user := x.Cookies.Principal()
	msg := s.readSignOut(ctx, x, signOutID)

	if signOutID != "" {
		if err := x.SignOuts.Clear(ctx, signOutID); err != nil {
			log.Warn("failed to clear sign-out request", slog.Any("error", err))
		}
	}
	x.Cookies.Clear(CookiePrimary, CookieExternal, CookiePartial)
	x.Usernames.SetLastUsername("")

	out := &SignOutContext{}
	if msg != nil {
		out.ClientID = msg.ClientID
	}
	if user != nil {
		out.Subject = user.Subject()
	}
	if err := s.Identity.SignOut(ctx, out); err != nil {
		log.Error("sign-out hook failed", slog.Any("error", err))
	}

	if user != nil {
		log.Info("user logged out", slog.String("subject", user.Subject()))
		ev := s.event(domain.EventLogout, true, "", nil)
		ev.Subject = user.Subject()
		ev.Username = user.DisplayName()
		if msg != nil {
			ev.ClientID = msg.ClientID
		}
		s.raise(ctx, ev)
	}

	return s.loggedOutPage(ctx, x, msg)
}

func (s *SignInService) readSignOut(ctx context.Context, x *Exchange, id string) *domain.SignOutRequest {
	if id == "" {
		return nil
	}
	msg, err := x.SignOuts.Read(ctx, id)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to read sign-out request", slog.Any("error", err))
		return nil
	}
	return msg
}

func (s *SignInService) logoutPromptPage(ctx context.Context, x *Exchange, signOutID string, client *domain.Client) Result {
	pm := s.pageModel(ctx, x)
	pm.LogoutURL = x.Info.BaseURL + PathLogout
	if signOutID != "" {
		pm.LogoutURL += "?id=" + url.QueryEscape(signOutID)
	}

	model := LogoutViewModel{PageModel: pm}
	if client == nil {
		if msg := s.readSignOut(ctx, x, signOutID); msg != nil {
			client = s.findClient(ctx, msg.ClientID)
		}
	}
	if client != nil {
		model.ClientName = client.Name
	}
	return page(ViewLogout, model)
}

// loggedOutPage is rendered after the cookies are gone, so it never shows a
// current user.
func (s *SignInService) loggedOutPage(ctx context.Context, x *Exchange, msg *domain.SignOutRequest) Result {
	model := LoggedOutViewModel{
		PageModel: PageModel{
			SiteName:   s.Options.SiteName,
			SiteURL:    x.Info.BaseURL,
			CurrentURL: x.Info.CurrentURL,
			RequestID:  slogx.RequestID(ctx),
		},
		AutoRedirect:      s.Options.EnablePostSignOutAutoRedirect,
		AutoRedirectDelay: s.Options.PostSignOutAutoRedirectDelay,
	}
	if msg != nil {
		model.RedirectURL = expandTilde(x.Info.BaseURL, msg.ReturnURL)
		if c := s.findClient(ctx, msg.ClientID); c != nil {
			model.ClientName = c.Name
		}
		if msg.UILocales != "" {
			s.Locale.SetRequestLanguage(ctx, msg.UILocales)
		}
	}
	return page(ViewLoggedOut, model)
}
