package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes rendered in the response envelope.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidCode        = "INVALID_CODE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeEmailInUse         = "EMAIL_IN_USE"
	CodeCodePending        = "CODE_PENDING"
	CodePasswordMismatch   = "PASSWORD_MISMATCH"
	CodePasswordUnchanged  = "PASSWORD_UNCHANGED"
	CodeUpstream           = "UPSTREAM_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Code so callers can compare against the sentinel constructors.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewInvalidCredentials never says which part of the credential was wrong.
func NewInvalidCredentials() error {
	return NewDomainError(CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized, nil)
}

func NewInvalidCode() error {
	return NewDomainError(CodeInvalidCode, "invalid or expired verification code", http.StatusUnauthorized, nil)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewEmailInUse() error {
	return NewDomainError(CodeEmailInUse, "this email is already in use, please use another email", http.StatusConflict, nil)
}

func NewCodePending() error {
	return NewDomainError(CodeCodePending, "a verification code was already sent, please wait before requesting a new one", http.StatusTooManyRequests, nil)
}

func NewPasswordMismatch() error {
	return NewDomainError(CodePasswordMismatch, "passwords do not match", http.StatusBadRequest, nil)
}

func NewPasswordUnchanged() error {
	return NewDomainError(CodePasswordUnchanged, "new password cannot be the same as the current password", http.StatusBadRequest, nil)
}

// NewUpstreamError hides the upstream cause from the caller; it is kept in Err for logging.
func NewUpstreamError(message string, err error) error {
	return &DomainError{
		Code:       CodeUpstream,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
