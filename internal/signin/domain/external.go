package domain

// ExternalIdentity is the normalized identity a federated provider vouched for.
type ExternalIdentity struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
	Claims     Claims `json:"claims,omitempty"`
}

// ExternalIdentityFromClaims derives the identity from a provider's claim
// set. The subject comes from "sub", falling back to the name identifier
// claim; its issuer names the provider. Returns nil when no usable subject
// exists, which callers treat as "no matching external account".
func ExternalIdentityFromClaims(claims Claims) *ExternalIdentity {
	sub, ok := claims.First(ClaimSubject)
	if !ok {
		sub, ok = claims.First(ClaimNameIdentifier)
		if !ok {
			return nil
		}
	}
	if sub.Issuer == "" || sub.Value == "" {
		return nil
	}

	rest := make(Claims, 0, len(claims))
	for _, c := range claims {
		if c != sub {
			rest = append(rest, c)
		}
	}

	return &ExternalIdentity{
		Provider:   sub.Issuer,
		ProviderID: sub.Value,
		Claims:     rest,
	}
}
