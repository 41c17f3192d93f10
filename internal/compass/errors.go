package compass

import (
	"errors"
	"fmt"
)

// Kind classifies client failures.
type Kind int

const (
	// KindConfig is an invalid factory argument, reported before any I/O.
	KindConfig Kind = iota + 1
	// KindAuth means Login could not establish a session.
	KindAuth
	// KindFetch means a fetch could not obtain structured data.
	KindFetch
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidMode         = errors.New("invalid client mode")
	ErrNotAuthenticated    = errors.New("not authenticated, call Login first")
	ErrClosed              = errors.New("client is closed")
	ErrCredentialsRejected = errors.New("credentials rejected")
	ErrNoUserID            = errors.New("user id not found in session")
	ErrNotJSON             = errors.New("response is not JSON")
)

// Error is returned by every Client operation and by NewClient.
type Error struct {
	Kind Kind
	Op   string // e.g. "login", "get_calendar_events"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compass %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}

func authErr(err error) error { return &Error{Kind: KindAuth, Op: "login", Err: err} }

func fetchErr(op string, err error) error { return &Error{Kind: KindFetch, Op: op, Err: err} }
