package domain

import (
	"errors"
	"fmt"
)

// ErrorClass separates failures the operator must fix from failures caused
// by the request or the applicant record.
type ErrorClass string

const (
	ClassConfiguration ErrorClass = "configuration"
	ClassInput         ErrorClass = "input"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	CodeUnknownField          ErrorCode = "UNKNOWN_FIELD"
	CodeTypeMismatch          ErrorCode = "TYPE_MISMATCH"
	CodeInvalidOperator       ErrorCode = "INVALID_OPERATOR"
	CodeUnratableScore        ErrorCode = "UNRATABLE_SCORE"
	CodeOverlappingThresholds ErrorCode = "OVERLAPPING_THRESHOLDS"
	CodeNoOfferConfigured     ErrorCode = "NO_OFFER_CONFIGURED"
	CodeInvalidConfiguration  ErrorCode = "INVALID_CONFIGURATION"
	CodeMissingConfiguration  ErrorCode = "MISSING_CONFIGURATION"
	CodeMissingField          ErrorCode = "MISSING_FIELD"
	CodeApplicantNotFound     ErrorCode = "APPLICANT_NOT_FOUND"
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"
)

// Error is the engine error type. Two errors match under errors.Is when
// their codes are equal, so the sentinels below can be used as targets.
type Error struct {
	Code    ErrorCode  `json:"code"`
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
	Field   string     `json:"field,omitempty"`
	Err     error      `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is.
var (
	ErrUnknownField          = &Error{Code: CodeUnknownField, Class: ClassConfiguration}
	ErrTypeMismatch          = &Error{Code: CodeTypeMismatch, Class: ClassConfiguration}
	ErrInvalidOperator       = &Error{Code: CodeInvalidOperator, Class: ClassConfiguration}
	ErrUnratableScore        = &Error{Code: CodeUnratableScore, Class: ClassConfiguration}
	ErrOverlappingThresholds = &Error{Code: CodeOverlappingThresholds, Class: ClassConfiguration}
	ErrNoOfferConfigured     = &Error{Code: CodeNoOfferConfigured, Class: ClassConfiguration}
	ErrInvalidConfiguration  = &Error{Code: CodeInvalidConfiguration, Class: ClassConfiguration}
	ErrMissingConfiguration  = &Error{Code: CodeMissingConfiguration, Class: ClassConfiguration}
	ErrMissingField          = &Error{Code: CodeMissingField, Class: ClassInput}
	ErrApplicantNotFound     = &Error{Code: CodeApplicantNotFound, Class: ClassInput}
	ErrInvalidInput          = &Error{Code: CodeInvalidInput, Class: ClassInput}
)

// NewConfigError creates a configuration-class error.
func NewConfigError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Class: ClassConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewInputError creates an input-class error.
func NewInputError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Class: ClassInput, Message: fmt.Sprintf(format, args...)}
}

// UnknownFieldError reports a field outside the applicant attribute schema.
func UnknownFieldError(field string) *Error {
	return &Error{
		Code:    CodeUnknownField,
		Class:   ClassConfiguration,
		Message: fmt.Sprintf("field %q is not part of the applicant schema", field),
		Field:   field,
	}
}

// TypeMismatchError reports an ordering comparison on a non-numeric value.
func TypeMismatchError(field string, value any) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Class:   ClassConfiguration,
		Message: fmt.Sprintf("field %q: value %v is not numeric", field, value),
		Field:   field,
	}
}

// InvalidOperatorError reports an operator outside the supported set.
func InvalidOperatorError(op string) *Error {
	return &Error{
		Code:    CodeInvalidOperator,
		Class:   ClassConfiguration,
		Message: fmt.Sprintf("operator %q is not supported", op),
	}
}

// UnratableScoreError reports a normalized score no rating band covers.
func UnratableScoreError(score float64) *Error {
	return &Error{
		Code:    CodeUnratableScore,
		Class:   ClassConfiguration,
		Message: fmt.Sprintf("no rating band covers score %.2f", score),
	}
}

// NoOfferConfiguredError reports a rating with no loan offer range.
func NoOfferConfiguredError(rating Rating) *Error {
	return &Error{
		Code:    CodeNoOfferConfigured,
		Class:   ClassConfiguration,
		Message: fmt.Sprintf("no loan offer range configured for rating %s", rating),
	}
}

// MissingFieldError reports required applicant attributes that are null.
func MissingFieldError(fields ...string) *Error {
	return &Error{
		Code:    CodeMissingField,
		Class:   ClassInput,
		Message: fmt.Sprintf("applicant profile is missing required fields %v", fields),
		Field:   firstOrEmpty(fields),
	}
}

// ApplicantNotFoundError reports an applicant key with no matching record.
func ApplicantNotFoundError(key string) *Error {
	return &Error{
		Code:    CodeApplicantNotFound,
		Class:   ClassInput,
		Message: fmt.Sprintf("no applicant matches %q", key),
	}
}

// ClassOf returns the class of err, or "" when err is not an engine error.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Warning is an advisory failure absorbed by a stage.
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return w.Stage + ": " + w.Message
}
