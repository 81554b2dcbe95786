package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies ingestion failures so callers can react without
// matching on message text.
type ErrorKind string

const (
	KindUnsupportedFormat     ErrorKind = "UnsupportedFormat"
	KindEmptyInput            ErrorKind = "EmptyInput"
	KindMissingColumns        ErrorKind = "MissingColumns"
	KindAmountParseFailure    ErrorKind = "AmountParseFailure"
	KindEmptyResult           ErrorKind = "EmptyResult"
	KindGraphStoreUnavailable ErrorKind = "GraphStoreUnavailable"
	KindGraphWriteFailure     ErrorKind = "GraphWriteFailure"
)

// Error is the error type returned by every ingestion stage.
type Error struct {
	Kind ErrorKind
	Msg  string
	// Missing names the canonical fields that could not be resolved (MissingColumns only).
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so
// errors.Is(err, domain.ErrMissingColumns) works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedFormat     = &Error{Kind: KindUnsupportedFormat}
	ErrEmptyInput            = &Error{Kind: KindEmptyInput}
	ErrMissingColumns        = &Error{Kind: KindMissingColumns}
	ErrAmountParseFailure    = &Error{Kind: KindAmountParseFailure}
	ErrEmptyResult           = &Error{Kind: KindEmptyResult}
	ErrGraphStoreUnavailable = &Error{Kind: KindGraphStoreUnavailable}
	ErrGraphWriteFailure     = &Error{Kind: KindGraphWriteFailure}
)

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error around a cause.
func WrapError(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
