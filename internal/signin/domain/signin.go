package domain

import (
	"encoding/json"
	"fmt"
)

// LoginForced controls whether the login page may be skipped in favour of an
// external provider.
type LoginForced int

const (
	LoginNotForced LoginForced = iota
	LoginForcedVisible
	LoginForcedHidden
)

func (f LoginForced) String() string {
	switch f {
	case LoginForcedVisible:
		return "forced"
	case LoginForcedHidden:
		return "forced_hidden"
	default:
		return "not_forced"
	}
}

// ParseLoginForced maps the stored string form back. Unknown values are
// treated as not forced.
func ParseLoginForced(s string) LoginForced {
	switch s {
	case "forced":
		return LoginForcedVisible
	case "forced_hidden":
		return LoginForcedHidden
	default:
		return LoginNotForced
	}
}

// IsForced reports whether the user must not choose between providers.
func (f LoginForced) IsForced() bool {
	return f == LoginForcedVisible || f == LoginForcedHidden
}

func (f LoginForced) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }

func (f *LoginForced) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("login_forced: %w", err)
	}
	*f = ParseLoginForced(s)
	return nil
}

// SignInRequest is "authenticate for client X, return to URL Y". It is
// written once when a relying party starts a sign-in and only ever read by
// the sign-in flows.
type SignInRequest struct {
	ClientID    string      `json:"client_id"`
	ReturnURL   string      `json:"return_url"`
	IdP         string      `json:"idp,omitempty"`
	LoginForced LoginForced `json:"login_forced"`
	LoginHint   string      `json:"login_hint,omitempty"`
	UILocales   string      `json:"ui_locales,omitempty"`
}

// SignOutRequest is stored by the relying party initiated sign-out.
type SignOutRequest struct {
	ClientID  string `json:"client_id,omitempty"`
	ReturnURL string `json:"return_url,omitempty"`
	UILocales string `json:"ui_locales,omitempty"`
}
