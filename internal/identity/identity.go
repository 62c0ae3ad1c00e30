// Package identity defines the identity provider port: account lifecycle,
// sessions and an auth-state observable.
package identity

import (
	"context"
	"errors"
	"fmt"

	"spendly/internal/core"
)

// Session is the result of a successful sign-in.
type Session struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

// Unsubscribe stops an auth-state listener. Idempotent.
type Unsubscribe func()

// Provider is implemented by identity backends.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error

	// CurrentUser resolves a token. An invalid or revoked token yields an
	// *Error; an empty token yields (nil, nil).
	CurrentUser(ctx context.Context, token string) (*core.User, error)

	// OnAuthStateChanged calls fn with the user behind token, asynchronously,
	// and again whenever that user or session changes. fn receives nil once
	// the session is no longer valid.
	OnAuthStateChanged(token string, fn func(*core.User)) Unsubscribe

	UpdateProfile(ctx context.Context, token string, displayName, photoURL *string) error
	UpdateEmail(ctx context.Context, token, email string) error
	UpdatePassword(ctx context.Context, token, password string) error
	Reauthenticate(ctx context.Context, token, password string) error
	DeleteAccount(ctx context.Context, token string) error

	SendEmailVerification(ctx context.Context, token string) error
	VerifyEmail(ctx context.Context, code string) error
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
}

// Codes returned by providers.
const (
	CodeEmailAlreadyInUse   = "auth/email-already-in-use"
	CodeInvalidEmail        = "auth/invalid-email"
	CodeWeakPassword        = "auth/weak-password"
	CodeUserNotFound        = "auth/user-not-found"
	CodeWrongPassword       = "auth/wrong-password"
	CodeInvalidCredential   = "auth/invalid-credential"
	CodeRequiresRecentLogin = "auth/requires-recent-login"
	CodeExpiredActionCode   = "auth/expired-action-code"
	CodeInvalidActionCode   = "auth/invalid-action-code"
	CodeUserDisabled        = "auth/user-disabled"
	CodeTooManyRequests     = "auth/too-many-requests"
	CodeIDTokenExpired      = "auth/id-token-expired"
	CodeUserTokenExpired    = "auth/user-token-expired"
	CodeNetworkRequestFail  = "auth/network-request-failed"
	CodeInternal            = "auth/internal-error"
)

// Error is a coded provider error.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a coded error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the provider code of err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
