package pos

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindTransport     Kind = "transport"
	KindVendor        Kind = "vendor"
	KindValidation    Kind = "validation"
	KindJSON          Kind = "json"
)

// Error is returned by every adapter operation that fails. Message is safe to show an
// administrator; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
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

// Is matches on kind and code so callers can compare against sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

var (
	ErrNotConfigured = &Error{Kind: KindNotConfigured}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrVendor        = &Error{Kind: KindVendor}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrJSON          = &Error{Kind: KindJSON}

	ErrMissingAgentID  = &Error{Kind: KindValidation, Code: "missing_agent_id"}
	ErrMissingRouteID  = &Error{Kind: KindValidation, Code: "missing_route_id"}
	ErrInvalidDate     = &Error{Kind: KindValidation, Code: "invalid_date"}
	ErrNotImplemented  = &Error{Kind: KindValidation, Code: "not_implemented"}
	ErrUnsupportedEdit = &Error{Kind: KindValidation, Code: "unsupported_update"}
)

// KindOf returns the kind of a pos error, or "" when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notConfigured(vendor string) *Error {
	return &Error{
		Kind:    KindNotConfigured,
		Code:    "not_configured",
		Message: vendor + " credentials are not configured",
	}
}

func validationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func transportError(vendor string, err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Code:    "http_error",
		Message: "could not reach " + vendor,
		Err:     errors.Wrap(err, vendor+": request failed"),
	}
}

func vendorError(status int, msg string) *Error {
	return &Error{Kind: KindVendor, Code: "vendor_error", Status: status, Message: msg}
}

func jsonError(vendor string, err error) *Error {
	return &Error{
		Kind:    KindJSON,
		Code:    "json_error",
		Message: "invalid response from " + vendor,
		Err:     errors.WithStack(err),
	}
}
