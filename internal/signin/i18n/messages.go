package i18n

var english = map[string]string{
	"unexpected_error":               "There was an unexpected error",
	"no_signin_cookie":               "There is an error determining which application you are signing into. Return to the application and try again.",
	"invalid_username_or_password":   "Invalid username or password",
	"username_required":              "Username is required",
	"password_required":              "Password is required",
	"proof_required":                 "Verification code is required",
	"no_external_provider":           "No external provider was specified",
	"external_provider_error":        "There was an error logging into the external provider. The error message is: %s",
	"no_matching_external_account":   "Invalid account",
	"missing_token":                  "The password reset link is missing its token",
	"no_reset_result":                "The password could not be reset",
	"no_reset_username":              "The password was reset but the account could not be determined",
	"password_confirmation_mismatch": "Passwords do not match",
	"invalid_totp_code":              "Invalid verification code",
	"username_taken":                 "That username is already taken",
	"password_too_short":             "The password must be at least %d characters long",
	"reset_code_expired":             "The verification code has expired, request a new one",
	"reset_too_many_attempts":        "Too many attempts, request a new verification code",
	"reset_link_invalid":             "The password reset link is invalid or has expired",
	"too_many_requests":              "Too many attempts. Wait a minute and try again.",

	"page.login.title":            "Login",
	"page.login.local":            "Local account",
	"page.login.external":         "External account",
	"page.login.remember":         "Remember my login",
	"page.login.submit":           "Login",
	"page.login.forgot":           "Forgot your password?",
	"page.error.title":            "Error",
	"page.logout.title":           "Logout",
	"page.logout.prompt":          "Would you like to logout?",
	"page.logout.submit":          "Yes",
	"page.loggedout.title":        "Logged out",
	"page.loggedout.done":         "You are now logged out",
	"page.loggedout.return":       "Click here to return to",
	"page.reset.title":            "Reset password",
	"page.reset.submit":           "Send code",
	"page.reset_verify.title":     "Enter verification code",
	"page.reset_verify.submit":    "Verify",
	"page.reset_callback.title":   "Choose a new password",
	"page.reset_callback.submit":  "Change password",
	"page.totp.title":             "Two-factor authentication",
	"page.totp.submit":            "Verify",
	"page.register.title":         "Complete your account",
	"page.register.submit":        "Create account",
	"page.password_change.title":  "Change your password",
	"page.password_change.submit": "Change password",
	"field.username":              "Username",
	"field.password":              "Password",
	"field.proof":                 "Verification code",
	"field.new_password":          "New password",
	"field.confirm_password":      "Confirm password",
	"field.code":                  "Code",
	"field.display_name":          "Display name",
	"label.request_id":            "Request id",
	"label.signed_in_as":          "Signed in as",
	"label.logout":                "Logout",
}

var german = map[string]string{
	"unexpected_error":               "Es ist ein unerwarteter Fehler aufgetreten",
	"no_signin_cookie":               "Die Anwendung, bei der Sie sich anmelden, konnte nicht ermittelt werden. Kehren Sie zur Anwendung zurück und versuchen Sie es erneut.",
	"invalid_username_or_password":   "Ungültiger Benutzername oder ungültiges Passwort",
	"username_required":              "Benutzername ist erforderlich",
	"password_required":              "Passwort ist erforderlich",
	"proof_required":                 "Bestätigungscode ist erforderlich",
	"no_external_provider":           "Es wurde kein externer Anbieter angegeben",
	"external_provider_error":        "Bei der Anmeldung beim externen Anbieter ist ein Fehler aufgetreten: %s",
	"no_matching_external_account":   "Ungültiges Konto",
	"missing_token":                  "Dem Link zum Zurücksetzen fehlt das Token",
	"no_reset_result":                "Das Passwort konnte nicht zurückgesetzt werden",
	"no_reset_username":              "Das Passwort wurde zurückgesetzt, aber das Konto konnte nicht ermittelt werden",
	"password_confirmation_mismatch": "Die Passwörter stimmen nicht überein",
	"invalid_totp_code":              "Ungültiger Bestätigungscode",
	"username_taken":                 "Dieser Benutzername ist bereits vergeben",
	"password_too_short":             "Das Passwort muss mindestens %d Zeichen lang sein",
	"reset_code_expired":             "Der Bestätigungscode ist abgelaufen, fordern Sie einen neuen an",
	"reset_too_many_attempts":        "Zu viele Versuche, fordern Sie einen neuen Bestätigungscode an",
	"reset_link_invalid":             "Der Link zum Zurücksetzen ist ungültig oder abgelaufen",
	"too_many_requests":              "Zu viele Versuche. Bitte warten Sie eine Minute.",

	"page.login.title":            "Anmelden",
	"page.login.local":            "Lokales Konto",
	"page.login.external":         "Externes Konto",
	"page.login.remember":         "Angemeldet bleiben",
	"page.login.submit":           "Anmelden",
	"page.login.forgot":           "Passwort vergessen?",
	"page.error.title":            "Fehler",
	"page.logout.title":           "Abmelden",
	"page.logout.prompt":          "Möchten Sie sich abmelden?",
	"page.logout.submit":          "Ja",
	"page.loggedout.title":        "Abgemeldet",
	"page.loggedout.done":         "Sie sind jetzt abgemeldet",
	"page.loggedout.return":       "Hier klicken, um zurückzukehren zu",
	"page.reset.title":            "Passwort zurücksetzen",
	"page.reset.submit":           "Code senden",
	"page.reset_verify.title":     "Bestätigungscode eingeben",
	"page.reset_verify.submit":    "Bestätigen",
	"page.reset_callback.title":   "Neues Passwort wählen",
	"page.reset_callback.submit":  "Passwort ändern",
	"page.totp.title":             "Zwei-Faktor-Authentifizierung",
	"page.totp.submit":            "Bestätigen",
	"page.register.title":         "Konto vervollständigen",
	"page.register.submit":        "Konto erstellen",
	"page.password_change.title":  "Passwort ändern",
	"page.password_change.submit": "Passwort ändern",
	"field.username":              "Benutzername",
	"field.password":              "Passwort",
	"field.proof":                 "Bestätigungscode",
	"field.new_password":          "Neues Passwort",
	"field.confirm_password":      "Passwort bestätigen",
	"field.code":                  "Code",
	"field.display_name":          "Anzeigename",
	"label.request_id":            "Anfrage-ID",
	"label.signed_in_as":          "Angemeldet als",
	"label.logout":                "Abmelden",
}
