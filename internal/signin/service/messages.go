package service

// Localized message ids.
const (
	MsgUnexpectedError              = "unexpected_error"
	MsgNoSignInCookie               = "no_signin_cookie"
	MsgInvalidUsernameOrPassword    = "invalid_username_or_password"
	MsgUsernameRequired             = "username_required"
	MsgPasswordRequired             = "password_required"
	MsgProofRequired                = "proof_required"
	MsgNoExternalProvider           = "no_external_provider"
	MsgExternalProviderError        = "external_provider_error"
	MsgNoMatchingExternalAccount    = "no_matching_external_account"
	MsgMissingToken                 = "missing_token"
	MsgNoResetResult                = "no_reset_result"
	MsgNoResetUsername              = "no_reset_username"
	MsgPasswordConfirmationMismatch = "password_confirmation_mismatch"
)

// Form field names used as keys of field errors.
const (
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldProof           = "proof"
	FieldConfirmPassword = "confirm_password"
)

// fieldErrors keeps insertion order so the first error is stable.
type fieldErrors struct {
	order  []string
	byName map[string]string
}

func (f *fieldErrors) add(field, message string) {
	if f.byName == nil {
		f.byName = map[string]string{}
	}
	if _, ok := f.byName[field]; !ok {
		f.order = append(f.order, field)
	}
	f.byName[field] = message
}

func (f *fieldErrors) empty() bool { return len(f.order) == 0 }

func (f *fieldErrors) first() string {
	if f.empty() {
		return ""
	}
	return f.byName[f.order[0]]
}
