package domain

import (
	"strconv"
	"time"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomePartial
	outcomeError
)

// AuthenticationOutcome is the identity service's verdict on a sign-in
// attempt. Exactly one of error, partial or success holds; the unexported
// kind makes any other combination unrepresentable.
type AuthenticationOutcome struct {
	kind outcomeKind

	errorMessage string
	claims       Claims

	partialRedirectPath string
	external            *ExternalIdentity

	forcePasswordChange bool
}

// NewErrorOutcome is a failed attempt with a message meant for the user.
func NewErrorOutcome(message string) *AuthenticationOutcome {
	return &AuthenticationOutcome{kind: outcomeError, errorMessage: message}
}

// NewSuccessOutcome builds a completed authentication result carrying every
// claim in AuthenticateResultClaimTypes plus any extras.
func NewSuccessOutcome(subject, name, method, idp string, authTime time.Time, extra ...Claim) *AuthenticationOutcome {
	if idp == "" {
		idp = LocalIdentityProvider
	}
	claims := Claims{
		{Type: ClaimSubject, Value: subject},
		{Type: ClaimName, Value: name},
		{Type: ClaimAuthMethod, Value: method},
		{Type: ClaimIdentityProvider, Value: idp},
		{Type: ClaimAuthTime, Value: strconv.FormatInt(authTime.Unix(), 10)},
	}
	claims = append(claims, extra...)
	return &AuthenticationOutcome{kind: outcomeSuccess, claims: claims}
}

// NewSuccessOutcomeFromClaims wraps an existing, already complete claim set.
func NewSuccessOutcomeFromClaims(claims Claims) *AuthenticationOutcome {
	return &AuthenticationOutcome{kind: outcomeSuccess, claims: append(Claims(nil), claims...)}
}

// NewPartialOutcome asks the browser to visit redirectPath before a primary
// session may be issued. external is set when the partial step was entered
// from a federated login that has to be re-validated on resumption.
func NewPartialOutcome(redirectPath string, claims Claims, external *ExternalIdentity) *AuthenticationOutcome {
	return &AuthenticationOutcome{
		kind:                outcomePartial,
		claims:              append(Claims(nil), claims...),
		partialRedirectPath: redirectPath,
		external:            external,
	}
}

// WithForcePasswordChange marks a successful outcome as needing a password
// change before it may be used.
func (o *AuthenticationOutcome) WithForcePasswordChange() *AuthenticationOutcome {
	o.forcePasswordChange = true
	return o
}

func (o *AuthenticationOutcome) IsError() bool   { return o.kind == outcomeError }
func (o *AuthenticationOutcome) IsPartial() bool { return o.kind == outcomePartial }
func (o *AuthenticationOutcome) IsSuccess() bool { return o.kind == outcomeSuccess }

// ErrorMessage is empty for non-error outcomes.
func (o *AuthenticationOutcome) ErrorMessage() string { return o.errorMessage }

// Claims returns a copy of the subject claims; nil for error outcomes.
func (o *AuthenticationOutcome) Claims() Claims {
	if o.kind == outcomeError {
		return nil
	}
	return append(Claims(nil), o.claims...)
}

// PartialRedirectPath is only set for partial outcomes.
func (o *AuthenticationOutcome) PartialRedirectPath() string { return o.partialRedirectPath }

// External is the federated identity a partial outcome was started from.
func (o *AuthenticationOutcome) External() *ExternalIdentity { return o.external }

func (o *AuthenticationOutcome) ForcePasswordChange() bool { return o.forcePasswordChange }

// HasSubject reports whether the outcome identifies a subject.
func (o *AuthenticationOutcome) HasSubject() bool {
	return o.kind != outcomeError && o.claims.Subject() != ""
}

// IdentityProvider is the idp claim of the outcome.
func (o *AuthenticationOutcome) IdentityProvider() string {
	return o.claims.IdentityProvider()
}
