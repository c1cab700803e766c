// Package apperr defines the error taxonomy surfaced across the room
// engine, upload pipeline, and hub. Errors carry a Kind, and each Kind has
// a stable wire code (Error.WireCode). Failed RPCs are logged by
// cmd/server's connection loop; no error frame carrying the wire code is
// sent back to the client.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds from the component design.
type Kind int

const (
	// KindInvalidState — an operation is illegal given current room state.
	KindInvalidState Kind = iota + 1
	// KindInvalidStateChange — a client requested a server-reserved user-state transition.
	KindInvalidStateChange
	// KindNotFound — room/user/item not present.
	KindNotFound
	// KindNotAuthorized — non-host/non-owner attempted a privileged op.
	KindNotAuthorized
	// KindTransportClosed — client disconnected mid-operation.
	KindTransportClosed
	// KindServerShuttingDown — process is in graceful shutdown; no new joins.
	KindServerShuttingDown
	// KindDatabaseUnavailable — database port failure.
	KindDatabaseUnavailable
	// KindStorageUnavailable — blob storage port failure.
	KindStorageUnavailable
)

// wireCodes assigns a stable wire code per kind, following the teacher's
// Code<Domain><Number> numbering convention but scoped to this domain.
var wireCodes = map[Kind]int{
	KindInvalidState:       40001,
	KindInvalidStateChange: 40002,
	KindNotFound:           40401,
	KindNotAuthorized:      40301,
	KindTransportClosed:    40901,
	KindServerShuttingDown: 50301,
	KindDatabaseUnavailable: 50002,
	KindStorageUnavailable:  50003,
}

var kindNames = map[Kind]string{
	KindInvalidState:        "InvalidState",
	KindInvalidStateChange:  "InvalidStateChange",
	KindNotFound:            "NotFound",
	KindNotAuthorized:       "NotAuthorized",
	KindTransportClosed:     "TransportClosed",
	KindServerShuttingDown:  "ServerShuttingDown",
	KindDatabaseUnavailable: "DatabaseUnavailable",
	KindStorageUnavailable:  "StorageUnavailable",
}

// Error is the application error type returned by room-engine and pipeline
// operations. It wraps an optional underlying cause for logging while
// keeping the Kind as the stable thing callers switch on.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", kindNames[e.Kind], e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", kindNames[e.Kind], e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WireCode returns the client-visible error code for this error's kind.
func (e *Error) WireCode() int { return wireCodes[e.Kind] }

// New constructs an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, preserving the cause for logging.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Convenience constructors for the kinds each component raises most often.

func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, fmt.Sprintf(format, args...))
}

func InvalidStateChange(format string, args ...any) *Error {
	return New(KindInvalidStateChange, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func NotAuthorized(format string, args ...any) *Error {
	return New(KindNotAuthorized, fmt.Sprintf(format, args...))
}

func ServerShuttingDown() *Error {
	return New(KindServerShuttingDown, "server is shutting down")
}
