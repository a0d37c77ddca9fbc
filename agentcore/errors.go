package agentcore

import "fmt"

// Kind identifies one of the error taxonomy buckets of an agent connection
// attempt. Kinds are not Go types themselves — a single ConnError carries
// one Kind plus a chained cause — so callers can switch on Kind without
// type-asserting a family of wrapper types.
type Kind int

const (
	// KindResolution: no candidate URL produced a valid endpoint.
	KindResolution Kind = iota
	// KindUnreachable: TCP/proxy connect failed or port probe failed.
	KindUnreachable
	// KindProtocolRefusal: peer returned a non-success marker, empty
	// negotiated set, or refused TLS/headers.
	KindProtocolRefusal
	// KindAuthenticationFailure: v3 challenge mismatch, v4 wrong secret,
	// or certificate mismatch.
	KindAuthenticationFailure
	// KindCancelled: deadline exhausted or context cancelled.
	KindCancelled
	// KindInternal: state-machine misuse or config error. A bug.
	KindInternal
	// KindInvalidAddress: a host:port string violates the HostPort
	// grammar (spec.md §4.1). Not part of the §7 taxonomy proper, but
	// named the way the component design names it, since it is a
	// parse-time input error rather than a runtime connection failure.
	KindInvalidAddress
)

func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "ResolutionError"
	case KindUnreachable:
		return "Unreachable"
	case KindProtocolRefusal:
		return "ProtocolRefusal"
	case KindAuthenticationFailure:
		return "AuthenticationFailure"
	case KindCancelled:
		return "Cancelled"
	case KindInternal:
		return "Internal"
	case KindInvalidAddress:
		return "InvalidAddress"
	default:
		return "Unknown"
	}
}

// ConnError is the error type returned across connection-core boundaries.
// It wraps an underlying cause (possibly nil) and is unwrap-compatible with
// errors.Is/errors.As via Unwrap.
type ConnError struct {
	Kind    Kind
	Message string
	Cause   error

	// Suppressed holds per-candidate causes chained behind the first
	// failure, per spec.md §4.3/§7 "chained, not aggregated" policy.
	Suppressed []error
}

func (e *ConnError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *ConnError) Unwrap() error {
	return e.Cause
}

// Suppress appends a suppressed cause, mirroring Java's
// Throwable.addSuppressed used by the per-candidate resolution chain.
func (e *ConnError) Suppress(err error) {
	if err != nil {
		e.Suppressed = append(e.Suppressed, err)
	}
}

func newErr(kind Kind, cause error, format string, args ...interface{}) *ConnError {
	return &ConnError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ResolutionErrorf builds a KindResolution ConnError.
func ResolutionErrorf(cause error, format string, args ...interface{}) *ConnError {
	return newErr(KindResolution, cause, format, args...)
}

// Unreachablef builds a KindUnreachable ConnError.
func Unreachablef(cause error, format string, args ...interface{}) *ConnError {
	return newErr(KindUnreachable, cause, format, args...)
}

// ProtocolRefusalf builds a KindProtocolRefusal ConnError.
func ProtocolRefusalf(cause error, format string, args ...interface{}) *ConnError {
	return newErr(KindProtocolRefusal, cause, format, args...)
}

// AuthenticationFailuref builds a KindAuthenticationFailure ConnError. Per
// spec.md §7, callers surfacing this externally should use the generic
// "Authorization failure" string and log detail only internally.
func AuthenticationFailuref(cause error, format string, args ...interface{}) *ConnError {
	return newErr(KindAuthenticationFailure, cause, format, args...)
}

// Cancelledf builds a KindCancelled ConnError.
func Cancelledf(cause error, format string, args ...interface{}) *ConnError {
	return newErr(KindCancelled, cause, format, args...)
}

// Internalf builds a KindInternal ConnError — a programming-error bug,
// not an operational failure.
func Internalf(format string, args ...interface{}) *ConnError {
	return newErr(KindInternal, nil, format, args...)
}

// InvalidAddressf builds a KindInvalidAddress ConnError.
func InvalidAddressf(format string, args ...interface{}) *ConnError {
	return newErr(KindInvalidAddress, nil, format, args...)
}

// IsKind reports whether err is a *ConnError of the given kind.
func IsKind(err error, kind Kind) bool {
	ce, ok := err.(*ConnError)
	return ok && ce.Kind == kind
}
