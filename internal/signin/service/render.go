package service

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// loginPageState is what a flow wants re-shown on the login form.
type loginPageState struct {
	errorMessage string
	fields       *fieldErrors
	username     string
	rememberMe   bool
}

type providerLink struct {
	LoginPageLink
	hidden bool
}

// renderLoginPage shows the login form, or skips it in favour of a provider
// challenge when local login is unavailable or the request forces a login
// and exactly one provider is a sensible choice.
func (s *SignInService) renderLoginPage(ctx context.Context, x *Exchange, msg *domain.SignInRequest, signInID string, st loginPageState) Result {
	log := slogx.FromContext(ctx)

	username, fromCookie := s.usernameForLoginPage(ctx, x, msg, st.username)

	allowedForClient := s.localLoginAllowedForClient(ctx, msg)
	localAllowed := allowedForClient && s.Options.EnableLocalLogin

	links := s.providerLinks(ctx, x, msg, signInID)
	var visible []LoginPageLink
	for _, l := range links {
		if !l.hidden {
			visible = append(visible, l.LoginPageLink)
		}
	}

	if st.errorMessage != "" {
		log.Info("rendering login page with error", slog.String("error", st.errorMessage))
	} else if !localAllowed || (len(links) > 0 && (msg.LoginForced.IsForced() || fromCookie)) {
		if !localAllowed {
			log.Info("local login not available",
				slog.Bool("global", s.Options.EnableLocalLogin),
				slog.Bool("client", allowedForClient),
			)
		}

		var provider string
		switch {
		case len(links) == 0:
			log.Info("no providers registered for client", slog.String("client_id", msg.ClientID))
			return s.errorPage(ctx, x, "")
		case len(links) == 1:
			provider = links[0].Type
		case len(visible) == 1:
			provider = visible[0].Type
		}
		if provider != "" {
			log.Info("redirecting to only available provider", slog.String("provider", provider))
			return s.challenge(ctx, x, msg, signInID, provider, username)
		}
	}

	client := s.findClient(ctx, msg.ClientID)

	model := LoginViewModel{
		PageModel:         s.pageModel(ctx, x),
		ClientInfo:        clientInfo(client),
		ErrorMessage:      st.errorMessage,
		Username:          username,
		AllowRememberMe:   s.Options.Cookies.AllowRememberMe,
		RememberMe:        s.Options.Cookies.AllowRememberMe && st.rememberMe,
		ExternalProviders: visible,
		AdditionalLinks:   s.additionalLinks(x, signInID),
	}
	if st.fields != nil {
		model.FieldErrors = st.fields.byName
	}
	if localAllowed {
		model.LoginURL = x.Info.BaseURL + PathLogin + signInQuery(signInID)
	}
	if client != nil && !client.AllowRememberMe {
		model.AllowRememberMe = false
		model.RememberMe = false
	}
	if s.Options.EnableLoginHint {
		model.UsernameReadOnly = msg.LoginForced == domain.LoginForcedVisible
		model.UsernameHidden = msg.LoginForced == domain.LoginForcedHidden
	}
	return page(ViewLogin, model)
}

// usernameForLoginPage prefers the submitted value, then the login hint,
// then the last username cookie.
func (s *SignInService) usernameForLoginPage(ctx context.Context, x *Exchange, msg *domain.SignInRequest, submitted string) (string, bool) {
	if submitted != "" {
		return submitted, false
	}
	if msg.LoginHint != "" {
		if s.Options.EnableLoginHint {
			return msg.LoginHint, false
		}
		slogx.FromContext(ctx).Warn("ignoring login hint, login hints disabled")
	}
	if last := x.Usernames.LastUsername(); last != "" {
		return last, true
	}
	return "", false
}

func (s *SignInService) providerLinks(ctx context.Context, x *Exchange, msg *domain.SignInRequest, signInID string) []providerLink {
	var restrictions []string
	if msg.ClientID != "" {
		r, err := s.Clients.GetIdentityProviderRestrictions(ctx, msg.ClientID)
		if err != nil {
			slogx.FromContext(ctx).Warn("failed to load provider restrictions, hiding providers",
				slog.String("client_id", msg.ClientID),
				slog.Any("error", err),
			)
			return nil
		}
		restrictions = r
	}

	var links []providerLink
	for _, p := range s.Providers.Providers() {
		if len(restrictions) > 0 && !slices.Contains(restrictions, p.Type) {
			continue
		}
		q := url.Values{"provider": {p.Type}, "signin": {signInID}}
		links = append(links, providerLink{
			LoginPageLink: LoginPageLink{
				Type: p.Type,
				Text: p.Caption,
				Href: x.Info.BaseURL + PathExternal + "?" + q.Encode(),
			},
			hidden: p.Hidden,
		})
	}
	return links
}

func (s *SignInService) additionalLinks(x *Exchange, signInID string) []LoginPageLink {
	if len(s.Options.LoginPageLinks) == 0 {
		return nil
	}
	out := make([]LoginPageLink, 0, len(s.Options.LoginPageLinks))
	for _, l := range s.Options.LoginPageLinks {
		href := expandTilde(x.Info.BaseURL, l.Href)
		sep := "?"
		if strings.Contains(href, "?") {
			sep = "&"
		}
		l.Href = href + sep + "signin=" + url.QueryEscape(signInID)
		out = append(out, l)
	}
	return out
}
