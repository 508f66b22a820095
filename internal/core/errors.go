package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the stable categories callers
// switch on. Kinds are part of the API surface and never change.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindTransient    Kind = "transient"
)

// Error is the typed error every core operation returns on failure.
// Code is a stable machine-readable identifier within the kind.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationErr(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func unauthorizedErr(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: fmt.Sprintf(format, args...)}
}

// TransientErr marks a store abort that is safe for the caller to retry.
func TransientErr(message string) *Error {
	return &Error{Kind: KindTransient, Code: "store_contention", Message: message}
}

// KindOf extracts the kind from any error returned by the core.
// Unclassified errors map to the empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
