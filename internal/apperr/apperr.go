// Package apperr defines the failure taxonomy of the gateway and the status
// codes reported back to the Gemini server.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of request failure.
type Kind string

const (
	// Unauthorized indicates a doRequest target outside the whitelist
	Unauthorized Kind = "Unauthorized"
	// ApiRequestFailure indicates a transport or parse failure talking to upstream
	ApiRequestFailure Kind = "ApiRequestFailure"
	// MissingJsonValue indicates an expected field absent or mistyped in a response
	MissingJsonValue Kind = "MissingJsonValue"
	// InvalidRequestQuery indicates a malformed action-specific parameter
	InvalidRequestQuery Kind = "InvalidRequestQuery"
)

// Status codes written back on the socket.
const (
	StatusOK         byte = 0
	StatusCGIError   byte = 42
	StatusProxyError byte = 43
	StatusRefused    byte = 53
)

var defaultMessages = map[Kind]string{
	Unauthorized:        "The requested resource is not whitelisted",
	ApiRequestFailure:   "An error occurred when making a request to the api",
	MissingJsonValue:    "An error occurred while parsing the api response json (this could be an api change)",
	InvalidRequestQuery: "The request query is invalid",
}

// Error is a request failure. UserDetails is safe to show to the client,
// InternalDetails is meant for the failure log only.
type Error struct {
	Kind            Kind
	UserDetails     string
	InternalDetails string
	cause           error
}

// New creates an Error without an underlying cause.
func New(kind Kind, userDetails string) *Error {
	if userDetails == "" {
		userDetails = defaultMessages[kind]
	}
	return &Error{
		Kind:            kind,
		UserDetails:     userDetails,
		InternalDetails: userDetails,
	}
}

// Wrap creates an Error around cause. If cause already carries an *Error,
// the innermost internal details are kept instead of being re-derived.
func Wrap(kind Kind, userDetails string, cause error) *Error {
	e := New(kind, userDetails)
	e.cause = cause
	if cause == nil {
		return e
	}

	var inner *Error
	if errors.As(cause, &inner) {
		e.InternalDetails = inner.InternalDetails
	} else {
		e.InternalDetails = cause.Error()
	}
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.InternalDetails)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Status maps err to the socket status code. A nil error is StatusOK and
// errors outside the taxonomy are reported as CGI errors.
func Status(err error) byte {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if !errors.As(err, &e) {
		return StatusCGIError
	}
	switch e.Kind {
	case Unauthorized:
		return StatusRefused
	case ApiRequestFailure:
		return StatusProxyError
	default:
		return StatusCGIError
	}
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// UserLine is the line written to the output path when a request fails.
func UserLine(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return fmt.Sprintf("%s: %s", e.Kind, e.UserDetails)
	}
	return err.Error()
}

// LogLine is the failure log entry for err.
func LogLine(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return fmt.Sprintf("%s: %s", e.Kind, e.InternalDetails)
	}
	return err.Error()
}
