package forum

import (
	"errors"
	"fmt"

	"github.com/ButyrinIA/forum/internal/storage"
)

type Kind int

const (
	// KindInvalidRequest is missing or malformed input, detected before any store access.
	KindInvalidRequest Kind = iota + 1
	// KindPersistence is a failed store write, including a write against a target id
	// that does not exist.
	KindPersistence
	// KindReadBack is a failed read after a successful write. The write is durable but
	// nothing was broadcast.
	KindReadBack
	// KindUnhandled is anything else.
	KindUnhandled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid request"
	case KindPersistence:
		return "persistence"
	case KindReadBack:
		return "read back"
	default:
		return "unhandled"
	}
}

// Error is returned by every Service operation that fails.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause is the message of the underlying error, or Msg when there is none.
func (e *Error) Cause() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Err.Error()
}

// ErrInvalidRequest is the message every validation failure carries.
const ErrInvalidRequest = "Invalid request"

func invalid(op string, err error) *Error {
	return &Error{Kind: KindInvalidRequest, Op: op, Msg: ErrInvalidRequest, Err: err}
}

func persistence(op, msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Msg: msg, Err: err}
}

// writeFailed classifies a failed store write. A missing target keeps its own message
// so the caller can tell it apart from a broken store.
func writeFailed(op, msg, what string, err error) *Error {
	if errors.Is(err, storage.ErrNotFound) {
		err = fmt.Errorf("%s %w", what, err)
	}
	return persistence(op, msg, err)
}

func readBack(op string, err error) *Error {
	return &Error{Kind: KindReadBack, Op: op, Msg: "read back failed", Err: err}
}

// KindOf reports the kind of err, KindUnhandled for errors not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnhandled
}
