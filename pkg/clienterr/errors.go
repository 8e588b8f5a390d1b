// Package clienterr defines the error taxonomy surfaced by the client runtime.
//
// Every failure reported through a promise or a listener callback is an
// *Error carrying a Kind, so callers can tell a security problem from a
// generic network problem without parsing messages:
//
//	var cerr *clienterr.Error
//	if errors.As(err, &cerr) && cerr.Kind == clienterr.KindSecurity { ... }
package clienterr

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// Kind classifies a client error.
type Kind uint8

const (
	// KindConnect is a failure to establish a connection.
	KindConnect Kind = iota + 1

	// KindSecurity is a failure originating in the TLS, certificate or
	// cryptography layer.
	KindSecurity

	// KindTransport is an I/O failure on an established channel.
	KindTransport

	// KindValidation is a malformed argument rejected at construction time.
	KindValidation

	// KindCancelled is an operation cancelled before it completed.
	KindCancelled
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "CONNECT"
	case KindSecurity:
		return "SECURITY"
	case KindTransport:
		return "TRANSPORT"
	case KindValidation:
		return "VALIDATION"
	case KindCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified client error.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op names the operation that failed (e.g. "connect", "read").
	Op string

	// Endpoint is the remote address involved, if any.
	Endpoint string

	// Err is the innermost cause. Intermediate wrappers are elided.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Endpoint != "" {
		msg += " (" + e.Endpoint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindSecurity})
// works as a classification test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates a classified error, collapsing err to its root cause.
func New(kind Kind, op, endpoint string, err error) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Endpoint: endpoint,
		Err:      RootCause(err),
	}
}

// Connect wraps a connection establishment failure. Causes originating in
// the security layer are classified as KindSecurity instead.
func Connect(endpoint string, err error) *Error {
	if IsSecurity(err) {
		return New(KindSecurity, "connect", endpoint, err)
	}
	return New(KindConnect, "connect", endpoint, err)
}

// Security wraps a failure known to originate in the security layer.
func Security(op, endpoint string, err error) *Error {
	return New(KindSecurity, op, endpoint, err)
}

// Transport wraps an I/O failure on an established channel. Causes
// originating in the security layer are classified as KindSecurity.
func Transport(op, endpoint string, err error) *Error {
	if IsSecurity(err) {
		return New(KindSecurity, op, endpoint, err)
	}
	return New(KindTransport, op, endpoint, err)
}

// Validation creates a construction-time validation error.
func Validation(format string, args ...any) *Error {
	return &Error{
		Kind: KindValidation,
		Err:  fmt.Errorf(format, args...),
	}
}

// Cancelled wraps a cancellation cause.
func Cancelled(op string, err error) *Error {
	return New(KindCancelled, op, "", err)
}

// KindOf returns the kind of err, or 0 when err is not a classified error.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return 0
}

// RootCause returns the innermost non-nil cause of err. Errors joining
// several causes are not descended into.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// securityError marks errors raised by the security layer of a binding.
type securityError struct {
	err error
}

func (e *securityError) Error() string { return e.err.Error() }
func (e *securityError) Unwrap() error { return e.err }

// MarkSecurity tags err as originating in the security layer. Transport
// bindings use it for failures of their own TLS setup, so classification
// does not depend on the shape of the underlying error.
func MarkSecurity(err error) error {
	if err == nil {
		return nil
	}
	return &securityError{err: err}
}

// IsSecurity reports whether err originates in the TLS, certificate or
// cryptography layer.
func IsSecurity(err error) bool {
	if err == nil {
		return false
	}

	var (
		marked     *securityError
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		verifyErr  *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		constraint x509.ConstraintViolationError
		cerr       *Error
	)

	switch {
	case errors.As(err, &marked),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr),
		errors.As(err, &constraint):
		return true
	case errors.As(err, &cerr):
		return cerr.Kind == KindSecurity
	}
	return false
}
