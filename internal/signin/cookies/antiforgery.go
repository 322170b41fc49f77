package cookies

import (
	"github.com/aussiebroadwan/signin/pkg/cryptox"
)

// AntiForgeryField is the form field carrying the token.
const AntiForgeryField = "xsrf"

// AntiForgeryToken returns the token to embed in forms, minting and
// setting a new cookie when the browser has none. The cookie holds the
// token sealed so a value planted by a sibling domain never validates.
func (j *Jar) AntiForgeryToken() (string, error) {
	if tok := j.antiForgeryCookie(); tok != "" {
		return tok, nil
	}
	tok, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}
	sealed, err := j.cfg.Sealer.Seal(NameAntiForgery, tok)
	if err != nil {
		return "", err
	}
	j.set(NameAntiForgery, sealed, j.cfg.Now().Add(j.cfg.UsernameTTL), true)
	// Later calls in this exchange must return the same token.
	j.minted = tok
	return tok, nil
}

// ValidAntiForgery reports whether submitted matches the cookie.
func (j *Jar) ValidAntiForgery(submitted string) bool {
	return cryptox.TokensEqual(j.antiForgeryCookie(), submitted)
}

func (j *Jar) antiForgeryCookie() string {
	if j.minted != "" {
		return j.minted
	}
	raw := j.value(NameAntiForgery)
	if raw == "" {
		return ""
	}
	var tok string
	if err := j.cfg.Sealer.Open(NameAntiForgery, raw, &tok); err != nil {
		return ""
	}
	return tok
}
