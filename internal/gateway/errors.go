package gateway

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when an operation needs a gateway the active
// backend does not provide.
var ErrNotConfigured = errors.New("gateway not configured")

// GatewayError reports that a control-plane or SSH call itself failed.
type GatewayError struct {
	Op    string
	Label string
	Err   error
}

func (e *GatewayError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Label, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Wrap annotates err as a GatewayError for op on label. Errors that already
// carry a GatewayError are returned unchanged.
func Wrap(op, label string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, Label: label, Err: err}
}

// ParseError reports a response body that is not a well-formed record.
// Callers treat it as a GatewayError.
type ParseError struct {
	Resource string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Resource, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PermanentError marks a control-plane failure that repeating the call cannot
// fix, such as rejected credentials or a server that does not exist.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as permanent. It returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or any error it wraps, is permanent.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
