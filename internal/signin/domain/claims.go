package domain

import "slices"

// Claim types the sign-in flows understand.
const (
	ClaimSubject          = "sub"
	ClaimName             = "name"
	ClaimAuthMethod       = "amr"
	ClaimIdentityProvider = "idp"
	ClaimAuthTime         = "auth_time"
	ClaimEmail            = "email"
	ClaimPreferredName    = "preferred_username"

	// ClaimNameIdentifier is the subject claim used by WS-Federation and SAML
	// providers.
	ClaimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
)

// Identity provider and authentication method values.
const (
	LocalIdentityProvider = "local"

	AuthMethodPassword = "pwd"
	AuthMethodExternal = "external"
	AuthMethodOTP      = "otp"
	AuthMethodMFA      = "mfa"
)

// AuthenticateResultClaimTypes are the claims every completed
// authentication result carries.
var AuthenticateResultClaimTypes = []string{
	ClaimSubject,
	ClaimName,
	ClaimAuthMethod,
	ClaimIdentityProvider,
	ClaimAuthTime,
}

// Claim is a single (type, value, issuer) statement about a subject.
type Claim struct {
	Type   string `json:"t"`
	Value  string `json:"v"`
	Issuer string `json:"i,omitempty"`
}

// Claims is an ordered claim set. Order is preserved on every operation.
type Claims []Claim

// First returns the first claim of the given type.
func (cs Claims) First(claimType string) (Claim, bool) {
	for _, c := range cs {
		if c.Type == claimType {
			return c, true
		}
	}
	return Claim{}, false
}

// Value returns the value of the first claim of the given type, or "".
func (cs Claims) Value(claimType string) string {
	c, _ := cs.First(claimType)
	return c.Value
}

// Has reports whether a claim of the given type exists.
func (cs Claims) Has(claimType string) bool {
	_, ok := cs.First(claimType)
	return ok
}

// HasAll reports whether every listed claim type is present.
func (cs Claims) HasAll(claimTypes ...string) bool {
	for _, t := range claimTypes {
		if !cs.Has(t) {
			return false
		}
	}
	return true
}

// Without returns a copy that drops every claim whose type matches drop.
func (cs Claims) Without(drop func(claimType string) bool) Claims {
	out := make(Claims, 0, len(cs))
	for _, c := range cs {
		if !drop(c.Type) {
			out = append(out, c)
		}
	}
	return out
}

// WithoutTypes returns a copy without the listed claim types.
func (cs Claims) WithoutTypes(claimTypes ...string) Claims {
	return cs.Without(func(t string) bool { return slices.Contains(claimTypes, t) })
}

// Subject is shorthand for the "sub" claim value.
func (cs Claims) Subject() string { return cs.Value(ClaimSubject) }

// IdentityProvider is shorthand for the "idp" claim value.
func (cs Claims) IdentityProvider() string { return cs.Value(ClaimIdentityProvider) }

// DisplayName prefers "name" then "preferred_username" then the subject.
func (cs Claims) DisplayName() string {
	for _, t := range []string{ClaimName, ClaimPreferredName, ClaimSubject} {
		if v := cs.Value(t); v != "" {
			return v
		}
	}
	return ""
}
