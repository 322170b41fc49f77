package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an audit event raised by the sign-in flows.
type EventType string

const (
	EventPreLoginSuccess              EventType = "pre_login_success"
	EventPreLoginFailure              EventType = "pre_login_failure"
	EventLocalLoginSuccess            EventType = "local_login_success"
	EventLocalLoginFailure            EventType = "local_login_failure"
	EventExternalLoginSuccess         EventType = "external_login_success"
	EventExternalLoginFailure         EventType = "external_login_failure"
	EventExternalLoginError           EventType = "external_login_error"
	EventPartialLoginComplete         EventType = "partial_login_complete"
	EventLogout                       EventType = "logout"
	EventEndpointFailure              EventType = "endpoint_failure"
	EventResetPasswordSuccess         EventType = "reset_password_success"
	EventResetPasswordFailure         EventType = "reset_password_failure"
	EventResetPasswordVerifySuccess   EventType = "reset_password_verify_success"
	EventResetPasswordVerifyFailure   EventType = "reset_password_verify_failure"
	EventResetPasswordCallbackSuccess EventType = "reset_password_callback_success"
	EventResetPasswordCallbackFailure EventType = "reset_password_callback_failure"
)

// Event is one audit record. Success is false for every failure and error
// event.
type Event struct {
	ID        string
	Type      EventType
	Success   bool
	Time      time.Time
	RequestID string

	SignInID string
	ClientID string
	Username string
	Subject  string
	Provider string
	// Reason holds the failure text or the error reported by the provider.
	Reason string
}

// NewEvent stamps a fresh id and time on an event.
func NewEvent(t EventType, success bool, now time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		Success: success,
		Time:    now.UTC(),
	}
}
