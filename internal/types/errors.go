package types

import "errors"

// ErrorKind is the closed error taxonomy from the design's error-handling
// section: callers switch on Kind rather than matching error strings.
type ErrorKind int

const (
	// Unknown is the zero value; Error values constructed by this package
	// always set a more specific kind.
	Unknown ErrorKind = iota
	NotFound
	InvalidInput
	VerificationFailed
	NetworkError
	Timeout
	CircuitOpen
	RateLimited
	HopsExceeded
	Cancelled
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidInput:
		return "InvalidInput"
	case VerificationFailed:
		return "VerificationFailed"
	case NetworkError:
		return "NetworkError"
	case Timeout:
		return "Timeout"
	case CircuitOpen:
		return "CircuitOpen"
	case RateLimited:
		return "RateLimited"
	case HopsExceeded:
		return "HopsExceeded"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation that
// produced it, so callers can recover locally (NotFound, NetworkError,
// Timeout, CircuitOpen, RateLimited) or propagate unchanged (InvalidInput,
// HopsExceeded, Cancelled) per the propagation policy.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err if it (or something it wraps) is an
// *Error, and Unknown otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is supports errors.Is(err, SomeSentinel) against error kinds by comparing
// Kind when the target is itself an *Error with no wrapped error set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

// Sentinel kind markers for errors.Is(err, types.ErrNotFound) style checks.
var (
	ErrNotFound            = &Error{Kind: NotFound}
	ErrInvalidInput        = &Error{Kind: InvalidInput}
	ErrVerificationFailed  = &Error{Kind: VerificationFailed}
	ErrNetworkError        = &Error{Kind: NetworkError}
	ErrTimeout             = &Error{Kind: Timeout}
	ErrCircuitOpen         = &Error{Kind: CircuitOpen}
	ErrRateLimited         = &Error{Kind: RateLimited}
	ErrHopsExceeded        = &Error{Kind: HopsExceeded}
	ErrCancelled           = &Error{Kind: Cancelled}
	ErrAllPeersFailed      = &Error{Kind: NetworkError, Op: "AllPeersFailed"}
	ErrNoPeersAvailable    = &Error{Kind: InvalidInput, Op: "NoPeersAvailable"}
	ErrSkippedForCompute   = &Error{Kind: InvalidInput, Op: "SkippedForCompute"}
)

// Wrap builds an *Error of the given kind, tagging the operation name.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
