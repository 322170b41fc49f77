package service

import "time"

// MaxSignInIDLength bounds every message id accepted from the browser.
const MaxSignInIDLength = 100

// Endpoint paths relative to the base URL.
const (
	PathLogin                 = "login"
	PathExternal              = "external"
	PathExternalCallback      = "external/callback"
	PathResume                = "resume"
	PathLogout                = "logout"
	PathResetPassword         = "reset-password"
	PathResetPasswordVerify   = "reset-password-verify"
	PathResetPasswordCallback = "reset-password-callback"
)

// CookieOptions decide persistence of the primary session.
type CookieOptions struct {
	AllowRememberMe bool
	// IsPersistent makes sessions persistent unless the user opts out.
	IsPersistent       bool
	RememberMeDuration time.Duration
}

// InputLengths caps user input before it reaches a backing service.
type InputLengths struct {
	Username         int
	Password         int
	IdentityProvider int
	ExternalError    int
	// ResetProof falls back to Password when zero.
	ResetProof int
	ResetToken int
}

// Options configure the sign-in flows.
type Options struct {
	SiteName string

	EnableLocalLogin bool
	EnableLoginHint  bool

	EnableSignOutPrompt           bool
	RequireSignOutPrompt          bool
	EnablePostSignOutAutoRedirect bool
	PostSignOutAutoRedirectDelay  int

	// InvalidSignInRedirectURL is where a browser without a usable sign-in
	// request is sent. "~/" is relative to the base URL, "/" to the host.
	InvalidSignInRedirectURL string

	Cookies      CookieOptions
	InputLengths InputLengths

	// LoginPageLinks hrefs may start with "~/"; each gets the sign-in id
	// appended.
	LoginPageLinks []LoginPageLink
}

// DefaultOptions mirrors a fresh deployment.
func DefaultOptions() Options {
	return Options{
		SiteName:            "Sign in",
		EnableLocalLogin:    true,
		EnableLoginHint:     true,
		EnableSignOutPrompt: true,
		Cookies: CookieOptions{
			AllowRememberMe:    true,
			RememberMeDuration: 30 * 24 * time.Hour,
		},
		InputLengths: InputLengths{
			Username:         100,
			Password:         100,
			IdentityProvider: 100,
			ExternalError:    100,
			ResetToken:       100,
		},
	}
}

func (l InputLengths) resetProof() int {
	if l.ResetProof > 0 {
		return l.ResetProof
	}
	return l.Password
}

// rememberMeFromInput is nil when remember-me is not offered.
func (c CookieOptions) rememberMeFromInput(in *bool) *bool {
	if !c.AllowRememberMe {
		return nil
	}
	v := in != nil && *in
	return &v
}
