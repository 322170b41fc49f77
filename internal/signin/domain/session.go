package domain

import (
	"errors"
	"strings"
	"time"
)

// Claim types that exist only while a partial sign-in is pending. They are
// added together when the partial cookie is issued and removed together when
// the sign-in resumes.
const (
	ClaimPartialRestartURL      = "urn:signin:partial:restart_url"
	ClaimPartialReturnURL       = "urn:signin:partial:return_url"
	ClaimExternalProviderUserID = "urn:signin:partial:external_provider_user_id"

	partialResumeIDPrefix = "urn:signin:partial:resume_id:"
)

var (
	ErrNoResumeClaim    = errors.New("partial sign-in: no resumption claim for this resume id")
	ErrEmptySignInID    = errors.New("partial sign-in: resumption claim carries no sign-in id")
	ErrMalformedPartial = errors.New("partial sign-in: malformed external provider marker")
)

// ResumeClaimType is the claim type proving a caller may resume the partial
// sign-in identified by resumeID.
func ResumeClaimType(resumeID string) string {
	return partialResumeIDPrefix + resumeID
}

// IsTransientClaim reports whether claimType is one of the partial sign-in
// markers.
func IsTransientClaim(claimType string) bool {
	switch claimType {
	case ClaimPartialRestartURL, ClaimPartialReturnURL, ClaimExternalProviderUserID:
		return true
	}
	return strings.HasPrefix(claimType, partialResumeIDPrefix)
}

// StripTransient returns a copy of cs with every partial sign-in marker
// removed in a single pass.
func StripTransient(cs Claims) Claims {
	return cs.Without(IsTransientClaim)
}

// Principal is the full session carried by the primary cookie.
type Principal struct {
	Claims     Claims
	SessionID  string
	IssuedAt   time.Time
	Persistent bool
}

func (p Principal) Subject() string          { return p.Claims.Subject() }
func (p Principal) IdentityProvider() string { return p.Claims.IdentityProvider() }
func (p Principal) DisplayName() string      { return p.Claims.DisplayName() }

// ExternalMarker records the federated identity a partial sign-in came from.
type ExternalMarker struct {
	Provider   string
	ProviderID string
}

// PartialSignIn is the typed state behind the partial cookie.
type PartialSignIn struct {
	// Claims never include transient markers.
	Claims            Claims
	ResumeID          string
	SignInID          string
	RestartURL        string
	ReturnAfterResume string
	External          *ExternalMarker
	RememberMe        *bool
}

// ToClaims serializes the partial state into the claim bag stored in the
// cookie: subject claims followed by every marker.
func (p PartialSignIn) ToClaims() Claims {
	out := StripTransient(p.Claims)
	if p.External != nil {
		out = append(out, Claim{
			Type:   ClaimExternalProviderUserID,
			Value:  p.External.ProviderID,
			Issuer: p.External.Provider,
		})
	}
	return append(out,
		Claim{Type: ClaimPartialRestartURL, Value: p.RestartURL},
		Claim{Type: ClaimPartialReturnURL, Value: p.ReturnAfterResume},
		Claim{Type: ResumeClaimType(p.ResumeID), Value: p.SignInID},
	)
}

// PartialIdentity is what the partial cookie holds on the wire.
type PartialIdentity struct {
	Claims     Claims `json:"claims"`
	RememberMe *bool  `json:"remember_me,omitempty"`
}

// ParsePartialSignIn rebuilds the typed state from a partial cookie for the
// given resume id.
func ParsePartialSignIn(id PartialIdentity, resumeID string) (PartialSignIn, error) {
	if resumeID == "" {
		return PartialSignIn{}, ErrNoResumeClaim
	}
	resume, ok := id.Claims.First(ResumeClaimType(resumeID))
	if !ok {
		return PartialSignIn{}, ErrNoResumeClaim
	}
	if resume.Value == "" {
		return PartialSignIn{}, ErrEmptySignInID
	}

	p := PartialSignIn{
		Claims:            StripTransient(id.Claims),
		ResumeID:          resumeID,
		SignInID:          resume.Value,
		RestartURL:        id.Claims.Value(ClaimPartialRestartURL),
		ReturnAfterResume: id.Claims.Value(ClaimPartialReturnURL),
		RememberMe:        id.RememberMe,
	}
	if marker, ok := id.Claims.First(ClaimExternalProviderUserID); ok {
		if marker.Issuer == "" || marker.Value == "" {
			return PartialSignIn{}, ErrMalformedPartial
		}
		p.External = &ExternalMarker{Provider: marker.Issuer, ProviderID: marker.Value}
	}
	return p, nil
}

// ExternalIdentity rebuilds the federated identity for the external branch of
// resumption. Nil when the partial sign-in was not federated.
func (p PartialSignIn) ExternalIdentity() *ExternalIdentity {
	if p.External == nil {
		return nil
	}
	return &ExternalIdentity{
		Provider:   p.External.Provider,
		ProviderID: p.External.ProviderID,
		Claims:     p.Claims,
	}
}

// ResumeID returns the resume id the partial identity was issued for, or ""
// when it carries no resumption claim.
func (id PartialIdentity) ResumeID() string {
	for _, c := range id.Claims {
		if strings.HasPrefix(c.Type, partialResumeIDPrefix) {
			return strings.TrimPrefix(c.Type, partialResumeIDPrefix)
		}
	}
	return ""
}
