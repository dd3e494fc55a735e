package scoring

import "errors"

// Kind classifies a failure for the wire-level error body.
type Kind string

const (
	KindInvalidRequest      Kind = "invalid_request"
	KindUnauthorized        Kind = "unauthorized"
	KindNotFound            Kind = "not_found"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Error is a classified failure. Partial-data situations (unmatched
// ingredients, missing packaging fields) are never Errors; they are encoded
// in the result via defaults.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

// InvalidRequest builds a validation failure that is surfaced synchronously
// with no partial result.
func InvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

// KindOf extracts the classification of err, defaulting to internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
