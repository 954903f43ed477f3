// Package apperr defines the error kinds surfaced by the messaging subsystem.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transport mapping.
type Kind string

const (
	Unauthorized      Kind = "Unauthorized"
	NotConfigured     Kind = "NotConfigured"
	InvalidInput      Kind = "InvalidInput"
	ProviderRejected  Kind = "ProviderRejected"
	PersistenceFailed Kind = "PersistenceFailed"
	UnknownTenant     Kind = "UnknownTenant"
)

// Error is a classified error. ProviderBody and MessageID are optional
// diagnostics set on ProviderRejected and PersistenceFailed respectively.
type Error struct {
	Kind         Kind
	Op           string
	Message      string
	Err          error
	ProviderBody string
	MessageID    string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with a message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
