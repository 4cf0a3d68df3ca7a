package dai

import "fmt"

// ErrorKind classifies failures surfaced by the stream manager.
type ErrorKind int

const (
	// KindRequest marks a malformed StreamRequest. Returned synchronously, never retried.
	KindRequest ErrorKind = iota + 1
	// KindNetwork marks a failure talking to the ad-decisioning service.
	KindNetwork
	// KindInvalidState marks an operation that is not allowed in the current session state.
	KindInvalidState
	// KindPlayer marks a failure reported by the video display.
	KindPlayer
)

func (k ErrorKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNetwork:
		return "network"
	case KindInvalidState:
		return "invalid_state"
	case KindPlayer:
		return "player"
	default:
		return "unknown"
	}
}

// Error is the error type reported by the stream manager.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

var (
	// ErrRequest matches any request error with errors.Is.
	ErrRequest = &Error{Kind: KindRequest}
	// ErrNetwork matches any network error with errors.Is.
	ErrNetwork = &Error{Kind: KindNetwork}
	// ErrInvalidState matches any invalid state error with errors.Is.
	ErrInvalidState = &Error{Kind: KindInvalidState}
	// ErrPlayer matches any player error with errors.Is.
	ErrPlayer = &Error{Kind: KindPlayer}
)

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
