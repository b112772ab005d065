package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPersistence wraps failures of the persistence collaborators.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidID indicates a malformed resource identifier.
	ErrInvalidID = errors.New("invalid id")
	// ErrValidation indicates a request body failed shape validation.
	ErrValidation = errors.New("validation failed")
)

// Code is the stable machine-readable error code exposed to API clients.
type Code string

const (
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeAccountDisabled  Code = "ACCOUNT_DISABLED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeInvalidID        Code = "INVALID_ID"
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// DenialReason qualifies a Forbidden decision for audit detail.
type DenialReason string

const (
	ReasonNone            DenialReason = ""
	ReasonAccountDisabled DenialReason = "account-disabled"
	ReasonRoleDenied      DenialReason = "role-denied"
	ReasonOwnershipDenied DenialReason = "ownership-denied"
	ReasonSelfProtection  DenialReason = "self-protection"
)

// AuthError is the single error type returned by every identity and policy guard.
type AuthError struct {
	Code   Code
	Reason DenialReason
	Err    error
}

func (e *AuthError) Error() string {
	msg := string(e.Code)
	if e.Reason != ReasonNone && e.Reason != ReasonAccountDisabled {
		msg += " (" + string(e.Reason) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches on Code, and on Reason when the target carries one.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels usable with errors.Is.
var (
	ErrUnauthenticated = &AuthError{Code: CodeUnauthenticated}
	ErrAccountDisabled = &AuthError{Code: CodeAccountDisabled, Reason: ReasonAccountDisabled}
	ErrForbidden       = &AuthError{Code: CodeForbidden}
)

// Forbidden builds a Forbidden error with the given sub-reason.
func Forbidden(reason DenialReason) *AuthError {
	return &AuthError{Code: CodeForbidden, Reason: reason}
}

// Unauthenticated builds an Unauthenticated error wrapping cause.
func Unauthenticated(cause error) *AuthError {
	return &AuthError{Code: CodeUnauthenticated, Err: cause}
}

// AccountDisabled builds the disabled-account error.
func AccountDisabled() *AuthError {
	return &AuthError{Code: CodeAccountDisabled, Reason: ReasonAccountDisabled}
}

// Persistence wraps a collaborator failure so callers can match ErrPersistence.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
