package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/slogx"
)

// ResetCallbackInput is a submitted new password.
type ResetCallbackInput struct {
	Token           string
	Password        string
	ConfirmPassword string
}

type resetPageState struct {
	errorMessage string
	fields       *fieldErrors
	username     string
}

// ResetPasswordPage shows the form asking for the username to reset.
func (s *SignInService) ResetPasswordPage(ctx context.Context, x *Exchange, signInID string) Result {
	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	return s.resetPage(ctx, x, ViewResetPassword, msg, signInID, s.resetURL(x, PathResetPassword, signInID, nil), resetPageState{})
}

// ResetPassword starts a reset for username and moves on to verification.
func (s *SignInService) ResetPassword(ctx context.Context, x *Exchange, signInID, username string) Result {
	log := slogx.FromContext(ctx)

	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	if r, ok := s.requireResets(ctx, x, signInID, msg); !ok {
		return r
	}

	formURL := s.resetURL(x, PathResetPassword, signInID, nil)
	again := func(st resetPageState) Result {
		return s.resetPage(ctx, x, ViewResetPassword, msg, signInID, formURL, st)
	}

	if strings.TrimSpace(username) == "" {
		var fe fieldErrors
		fe.add(FieldUsername, s.Locale.Message(ctx, MsgUsernameRequired))
		log.Warn("validation error: username missing")
		return again(resetPageState{errorMessage: fe.first(), fields: &fe})
	}
	if len(username) > s.Options.InputLengths.Username {
		log.Error("username beyond allowed length")
		return again(resetPageState{})
	}

	failure := func(reason string) {
		ev := s.event(domain.EventResetPasswordFailure, false, signInID, msg)
		ev.Username = username
		ev.Reason = reason
		s.raise(ctx, ev)
	}

	resetCtx := &ResetPasswordContext{Username: strings.TrimSpace(username), SignIn: *msg}
	if err := s.Resets.RequestReset(ctx, resetCtx); err != nil {
		log.Error("password reset request failed", slog.Any("error", err))
		failure("password reset service failure")
		return s.errorPage(ctx, x, "")
	}
	result := resetCtx.Result
	if result == nil {
		message := s.Locale.Message(ctx, MsgInvalidUsernameOrPassword)
		log.Warn("reset service rejected username", slog.String("username", username))
		failure(message)
		return again(resetPageState{errorMessage: message, username: username})
	}
	if result.IsError() {
		log.Warn("reset service returned an error", slog.String("error", result.ErrorMessage))
		failure(result.ErrorMessage)
		return again(resetPageState{errorMessage: result.ErrorMessage, username: username})
	}

	if resetCtx.Username != "" && resetCtx.Username != username {
		log.Info("canonicalized reset username", slog.String("from", username), slog.String("to", resetCtx.Username))
		username = resetCtx.Username
	}
	x.Usernames.SetLastUsername(username)

	ev := s.event(domain.EventResetPasswordSuccess, true, signInID, msg)
	ev.Username = username
	s.raise(ctx, ev)

	return redirect(s.resetURL(x, PathResetPasswordVerify, signInID, url.Values{"username": {username}}))
}

// ResetPasswordVerifyPage shows the form asking for the proof sent to the
// user.
func (s *SignInService) ResetPasswordVerifyPage(ctx context.Context, x *Exchange, signInID, username string) Result {
	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	return s.resetPage(ctx, x, ViewResetPasswordVerify, msg, signInID,
		s.resetURL(x, PathResetPasswordVerify, signInID, nil), resetPageState{username: username})
}

// ResetPasswordVerify checks the proof and hands out a one-time token for
// the callback stage.
func (s *SignInService) ResetPasswordVerify(ctx context.Context, x *Exchange, signInID, username, proof string) Result {
	log := slogx.FromContext(ctx)

	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	if r, ok := s.requireResets(ctx, x, signInID, msg); !ok {
		return r
	}

	formURL := s.resetURL(x, PathResetPasswordVerify, signInID, nil)
	again := func(st resetPageState) Result {
		return s.resetPage(ctx, x, ViewResetPasswordVerify, msg, signInID, formURL, st)
	}

	var fe fieldErrors
	if strings.TrimSpace(username) == "" {
		fe.add(FieldUsername, s.Locale.Message(ctx, MsgUsernameRequired))
	}
	if strings.TrimSpace(proof) == "" {
		fe.add(FieldProof, s.Locale.Message(ctx, MsgProofRequired))
	}
	if !fe.empty() {
		log.Warn("validation error: username or proof missing")
		return again(resetPageState{errorMessage: fe.first(), fields: &fe, username: username})
	}
	if len(username) > s.Options.InputLengths.Username || len(proof) > s.Options.InputLengths.resetProof() {
		log.Error("username or proof beyond allowed length")
		return again(resetPageState{})
	}

	failure := func(reason string) {
		ev := s.event(domain.EventResetPasswordVerifyFailure, false, signInID, msg)
		ev.Username = username
		ev.Reason = reason
		s.raise(ctx, ev)
	}

	verifyCtx := &ResetPasswordVerifyContext{
		Username: strings.TrimSpace(username),
		Proof:    strings.TrimSpace(proof),
		SignIn:   *msg,
	}
	if err := s.Resets.VerifyReset(ctx, verifyCtx); err != nil {
		log.Error("password reset verification failed", slog.Any("error", err))
		failure("password reset service failure")
		return s.errorPage(ctx, x, "")
	}
	result := verifyCtx.Result
	if result == nil {
		message := s.Locale.Message(ctx, MsgInvalidUsernameOrPassword)
		log.Warn("reset service rejected proof", slog.String("username", username))
		failure(message)
		return again(resetPageState{errorMessage: message, username: username})
	}
	if result.IsError() {
		log.Warn("reset service returned an error", slog.String("error", result.ErrorMessage))
		failure(result.ErrorMessage)
		return again(resetPageState{errorMessage: result.ErrorMessage, username: username})
	}
	if result.Token == "" {
		log.Error("reset service returned no token")
		failure("no reset token issued")
		return s.errorPage(ctx, x, "")
	}

	ev := s.event(domain.EventResetPasswordVerifySuccess, true, signInID, msg)
	ev.Username = username
	s.raise(ctx, ev)

	return redirect(s.resetURL(x, PathResetPasswordCallback, signInID, url.Values{"token": {result.Token}}))
}

// ResetPasswordCallbackPage shows the new password form for token.
func (s *SignInService) ResetPasswordCallbackPage(ctx context.Context, x *Exchange, signInID, token string) Result {
	if r, ok := s.checkResetToken(ctx, x, token); !ok {
		return r
	}
	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	return s.resetPage(ctx, x, ViewResetPasswordCallback, msg, signInID,
		s.resetURL(x, PathResetPasswordCallback, signInID, url.Values{"token": {token}}), resetPageState{})
}

// ResetPasswordCallback applies the new password and signs the user in
// with it.
func (s *SignInService) ResetPasswordCallback(ctx context.Context, x *Exchange, signInID string, in ResetCallbackInput) Result {
	log := slogx.FromContext(ctx)

	if r, ok := s.checkResetToken(ctx, x, in.Token); !ok {
		return r
	}
	msg, res := s.resolve(ctx, x, signInID)
	if res != nil {
		return *res
	}
	if r, ok := s.requireResets(ctx, x, signInID, msg); !ok {
		return r
	}

	formURL := s.resetURL(x, PathResetPasswordCallback, signInID, url.Values{"token": {in.Token}})
	again := func(st resetPageState) Result {
		return s.resetPage(ctx, x, ViewResetPasswordCallback, msg, signInID, formURL, st)
	}

	var fe fieldErrors
	if strings.TrimSpace(in.Password) == "" {
		fe.add(FieldPassword, s.Locale.Message(ctx, MsgPasswordRequired))
	} else if in.Password != in.ConfirmPassword {
		fe.add(FieldConfirmPassword, s.Locale.Message(ctx, MsgPasswordConfirmationMismatch))
	}
	if !fe.empty() {
		log.Warn("validation error: new password missing or not confirmed")
		return again(resetPageState{errorMessage: fe.first(), fields: &fe})
	}
	if len(in.Password) > s.Options.InputLengths.Password {
		log.Error("password beyond allowed length")
		return again(resetPageState{})
	}

	failure := func(reason string) {
		ev := s.event(domain.EventResetPasswordCallbackFailure, false, signInID, msg)
		ev.Reason = reason
		s.raise(ctx, ev)
	}

	cbCtx := &ResetPasswordCallbackContext{
		Token:           in.Token,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		SignIn:          *msg,
	}
	if err := s.Resets.CompleteReset(ctx, cbCtx); err != nil {
		log.Error("password reset failed", slog.Any("error", err))
		failure("password reset service failure")
		return s.errorPage(ctx, x, "")
	}
	if cbCtx.Result == nil {
		message := s.Locale.Message(ctx, MsgNoResetResult)
		log.Warn("reset service returned no result")
		failure(message)
		return again(resetPageState{errorMessage: message})
	}
	if cbCtx.Result.IsError() {
		log.Warn("reset service returned an error", slog.String("error", cbCtx.Result.ErrorMessage))
		failure(cbCtx.Result.ErrorMessage)
		return again(resetPageState{errorMessage: cbCtx.Result.ErrorMessage})
	}
	if cbCtx.Username == "" {
		message := s.Locale.Message(ctx, MsgNoResetUsername)
		log.Warn("reset service returned no username")
		failure(message)
		return again(resetPageState{errorMessage: message})
	}

	log.Info("password reset completed", slog.String("username", cbCtx.Username))
	ev := s.event(domain.EventResetPasswordCallbackSuccess, true, signInID, msg)
	ev.Username = cbCtx.Username
	s.raise(ctx, ev)

	return s.authenticateLocal(ctx, x, msg, signInID, cbCtx.Username, strings.TrimSpace(in.Password), nil)
}

// requireResets gates every reset submission on local login being usable.
func (s *SignInService) requireResets(ctx context.Context, x *Exchange, signInID string, msg *domain.SignInRequest) (Result, bool) {
	if r, ok := s.requireLocalLogin(ctx, x, signInID, msg); !ok {
		return r, false
	}
	if s.Resets == nil {
		slogx.FromContext(ctx).Error("password reset requested but not configured")
		s.endpointFailure(ctx, signInID, msg, "password reset not configured")
		return s.errorPage(ctx, x, ""), false
	}
	return Result{}, true
}

func (s *SignInService) checkResetToken(ctx context.Context, x *Exchange, token string) (Result, bool) {
	log := slogx.FromContext(ctx)
	if token == "" {
		log.Info("no reset token passed")
		return s.errorPage(ctx, x, s.Locale.Message(ctx, MsgMissingToken)), false
	}
	if limit := s.Options.InputLengths.ResetToken; limit > 0 && len(token) > limit {
		log.Error("reset token longer than allowed", slog.Int("length", len(token)))
		return s.errorPage(ctx, x, ""), false
	}
	return Result{}, true
}

func (s *SignInService) resetURL(x *Exchange, path, signInID string, extra url.Values) string {
	q := url.Values{"signin": {signInID}}
	for k, v := range extra {
		q[k] = v
	}
	return x.Info.BaseURL + path + "?" + q.Encode()
}

func (s *SignInService) resetPage(ctx context.Context, x *Exchange, v View, msg *domain.SignInRequest, signInID, formURL string, st resetPageState) Result {
	model := ResetPasswordViewModel{
		PageModel:    s.pageModel(ctx, x),
		ClientInfo:   clientInfo(s.findClient(ctx, msg.ClientID)),
		FormURL:      formURL,
		ErrorMessage: st.errorMessage,
		Username:     st.username,
		IsFromSignIn: signInID != "",
	}
	if st.fields != nil {
		model.FieldErrors = st.fields.byName
	}
	return page(v, model)
}
