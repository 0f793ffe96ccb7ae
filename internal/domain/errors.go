// Package domain defines the named error kinds shared by the service and
// handler layers.  Business failures are created here and translated into
// HTTP status codes at the transport boundary; repositories and services
// never talk HTTP themselves.
package domain

import (
	"errors"
	"net/http"
)

// Kind identifies a business failure class.
type Kind string

const (
	KindUserNotFound     Kind = "USER_NOT_FOUND"
	KindRoleNotFound     Kind = "ROLE_NOT_FOUND"
	KindEmailTaken       Kind = "EMAIL_TAKEN"
	KindUsernameTaken    Kind = "USERNAME_TAKEN"
	KindAlreadyEnabled   Kind = "ALREADY_ENABLED"
	KindAlreadyDisabled  Kind = "ALREADY_DISABLED"
	KindNotBanned        Kind = "NOT_BANNED"
	KindAlreadyBanned    Kind = "ALREADY_BANNED"
	KindTokenInvalid     Kind = "TOKEN_INVALID"
	KindPasswordMismatch Kind = "PASSWORD_MISMATCH"
	KindPasswordReused   Kind = "PASSWORD_REUSED"
	KindDisabled         Kind = "DISABLED"
	KindLocked           Kind = "LOCKED"
	KindBadCredentials   Kind = "BAD_CREDENTIALS"
	KindMailFailed       Kind = "MAIL_FAILED"
	KindInvalidBanEnd    Kind = "INVALID_BAN_END"
)

// Error is a business failure carrying a kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// E builds a domain error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf extracts the kind from err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// HTTPStatus maps an error kind to the status code the API contract uses.
// Unknown kinds fall through to 400, matching the catch-all policy.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUserNotFound, KindRoleNotFound:
		return http.StatusNotFound
	case KindEmailTaken, KindUsernameTaken:
		return http.StatusConflict
	case KindDisabled:
		return http.StatusForbidden
	case KindLocked:
		return http.StatusLocked
	case KindBadCredentials:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}
