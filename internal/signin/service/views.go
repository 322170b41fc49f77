package service

// PageModel carries the fields every page renders.
type PageModel struct {
	SiteName    string
	SiteURL     string
	CurrentURL  string
	RequestID   string
	AntiForgery string
	CurrentUser string
	LogoutURL   string
}

// ClientInfo describes the relying party on a page.
type ClientInfo struct {
	ClientName    string
	ClientURL     string
	ClientLogoURL string
}

// LoginPageLink is a provider button or an extra link under the form.
type LoginPageLink struct {
	Type string
	Text string
	Href string
}

type ErrorViewModel struct {
	PageModel
	ErrorMessage string
}

type LoginViewModel struct {
	PageModel
	ClientInfo

	// LoginURL is empty when local login is not allowed.
	LoginURL     string
	ErrorMessage string
	FieldErrors  map[string]string

	Username         string
	UsernameReadOnly bool
	UsernameHidden   bool

	AllowRememberMe bool
	RememberMe      bool

	ExternalProviders []LoginPageLink
	AdditionalLinks   []LoginPageLink
}

type LogoutViewModel struct {
	PageModel
	ClientName string
}

type LoggedOutViewModel struct {
	PageModel
	ClientName        string
	RedirectURL       string
	AutoRedirect      bool
	AutoRedirectDelay int
}

// ResetPasswordViewModel backs all three reset pages.
type ResetPasswordViewModel struct {
	PageModel
	ClientInfo

	FormURL      string
	ErrorMessage string
	FieldErrors  map[string]string
	Username     string
	IsFromSignIn bool
}
