// Package apperr defines the error kinds surfaced by the index and query engine.
// Every error returned across a package boundary either wraps one of the kind
// sentinels below or is a plain wrapped error from the standard library.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrIO             = errors.New("io error")
	ErrCorruption     = errors.New("corruption")
	ErrLockHeld       = errors.New("lock held")
	ErrQuerySyntax    = errors.New("query syntax error")
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrNoIndex is reported with the IO kind when a directory has no manifest.
	ErrNoIndex = errors.New("no index found")
)

// Error carries a kind sentinel, the operation that failed, and an optional cause.
// Offset is the byte offset into the query for ErrQuerySyntax and -1 otherwise.
type Error struct {
	Kind    error
	Op      string
	Message string
	Offset  int
	Err     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Message != "" {
		msg := e.Message
		if e.Offset >= 0 {
			msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
		}
		parts = append(parts, msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return e.Kind.Error()
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes both the kind and the cause so errors.Is matches either.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind without a cause.
func New(kind error, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Offset: -1}
}

// Newf is New with a formatted message.
func Newf(kind error, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// Wrap attaches a kind to a cause. A nil cause yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Offset: -1, Err: err}
}

// IO wraps err with the IO kind unless it already carries a kind.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Wrap(ErrIO, op, err)
}

// Corruptf reports a file that exists but fails a format or checksum check.
func Corruptf(op, format string, args ...any) *Error {
	return Newf(ErrCorruption, op, format, args...)
}

// Syntax reports a query parse failure at a byte offset.
func Syntax(offset int, format string, args ...any) *Error {
	return &Error{
		Kind:    ErrQuerySyntax,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
	}
}

// Kind names the kind of err for diagnostics. Errors without a kind are "Internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIO):
		return "IO"
	case errors.Is(err, ErrCorruption):
		return "Corruption"
	case errors.Is(err, ErrLockHeld):
		return "LockHeld"
	case errors.Is(err, ErrQuerySyntax):
		return "QuerySyntax"
	case errors.Is(err, ErrSchemaMismatch):
		return "SchemaMismatch"
	default:
		return "Internal"
	}
}

// Offset returns the query byte offset carried by a syntax error, or -1.
func Offset(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Offset
	}
	return -1
}

// HTTPStatusCode maps an error kind to the status the API responds with.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrQuerySyntax):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoIndex):
		return http.StatusNotFound
	case errors.Is(err, ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
