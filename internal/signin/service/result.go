package service

// ResultKind selects how a Result is written to the client.
type ResultKind int

const (
	ResultPage ResultKind = iota
	ResultRedirect
	ResultChallenge
	ResultStatus
)

// View names a page template.
type View string

const (
	ViewLogin                 View = "login"
	ViewError                 View = "error"
	ViewLogout                View = "logout"
	ViewLoggedOut             View = "loggedout"
	ViewResetPassword         View = "reset_password"
	ViewResetPasswordVerify   View = "reset_password_verify"
	ViewResetPasswordCallback View = "reset_password_callback"
)

// Challenge starts a federated login with Provider.
type Challenge struct {
	Provider    string
	CallbackURL string
	SignInID    string
	LoginHint   string
}

// Result is the terminal response of a flow.
type Result struct {
	Kind ResultKind

	View  View
	Model any

	Location  string
	Challenge *Challenge
	Status    int
}

func page(v View, model any) Result {
	return Result{Kind: ResultPage, View: v, Model: model}
}

func redirect(location string) Result {
	return Result{Kind: ResultRedirect, Location: location}
}

func challenge(c Challenge) Result {
	return Result{Kind: ResultChallenge, Challenge: &c}
}
