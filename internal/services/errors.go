package services

import (
	"errors"
	"net/http"
)

// ErrorKind classifies redemption failures.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindExpired
	KindExhausted
	KindAlreadyRedeemed
	KindUnauthenticated
)

var kindNames = map[ErrorKind]string{
	KindInternal:        "internal",
	KindNotFound:        "not_found",
	KindExpired:         "expired",
	KindExhausted:       "exhausted",
	KindAlreadyRedeemed: "already_redeemed",
	KindUnauthenticated: "unauthenticated",
}

var kindMessages = map[ErrorKind]string{
	KindInternal:        "Failed to redeem code",
	KindNotFound:        "Invalid or inactive code",
	KindExpired:         "This code has expired",
	KindExhausted:       "This code has reached its usage limit",
	KindAlreadyRedeemed: "You have already redeemed this code",
	KindUnauthenticated: "Unauthorized",
}

func (k ErrorKind) String() string { return kindNames[k] }

// RedeemError is the only error type Redeem returns. Its message is safe
// to show to the client; the cause, if any, is for logs.
type RedeemError struct {
	Kind  ErrorKind
	cause error
}

// Sentinels for errors.Is.
var (
	ErrNotFound        = &RedeemError{Kind: KindNotFound}
	ErrExpired         = &RedeemError{Kind: KindExpired}
	ErrExhausted       = &RedeemError{Kind: KindExhausted}
	ErrAlreadyRedeemed = &RedeemError{Kind: KindAlreadyRedeemed}
	ErrUnauthenticated = &RedeemError{Kind: KindUnauthenticated}
	ErrInternal        = &RedeemError{Kind: KindInternal}
)

func internalError(cause error) *RedeemError {
	return &RedeemError{Kind: KindInternal, cause: cause}
}

func (e *RedeemError) Error() string {
	if e.cause != nil {
		return e.Message() + ": " + e.cause.Error()
	}
	return e.Message()
}

// Message is the stable user-facing text for the kind.
func (e *RedeemError) Message() string { return kindMessages[e.Kind] }

// HTTPStatus maps the kind to a response status.
func (e *RedeemError) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Retryable is true only for internal failures.
func (e *RedeemError) Retryable() bool { return e.Kind == KindInternal }

func (e *RedeemError) Unwrap() error { return e.cause }

// Is matches any RedeemError of the same kind.
func (e *RedeemError) Is(target error) bool {
	var t *RedeemError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// AsRedeemError converts any error to a RedeemError, treating unknown errors as internal.
func AsRedeemError(err error) *RedeemError {
	if err == nil {
		return nil
	}
	var re *RedeemError
	if errors.As(err, &re) {
		return re
	}
	return internalError(err)
}
