package tool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes why a registration or an invocation failed.
type ErrorKind string

const (
	// KindMissingParameter is reported when a required parameter has no value and no default.
	KindMissingParameter ErrorKind = "missing_parameter"
	// KindValidation is reported when a raw value does not match its kind or constraints.
	KindValidation ErrorKind = "validation"
	// KindNotFound is reported for unknown tools and for input files that do not exist.
	KindNotFound ErrorKind = "not_found"
	// KindDuplicateID is reported when a descriptor id is registered twice.
	KindDuplicateID ErrorKind = "duplicate_id"
	// KindToolRuntime is reported when an in-process tool returns an error or panics.
	KindToolRuntime ErrorKind = "tool_runtime"
	// KindExternalProcess is reported when an external tool cannot start or exits non-zero.
	KindExternalProcess ErrorKind = "external_process"
	// KindOutputParse is reported when an external tool's output cannot be interpreted.
	KindOutputParse ErrorKind = "output_parse"
	// KindRegistration is reported when the catalog cannot be built at startup.
	KindRegistration ErrorKind = "registration"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrMissingParameter = &Error{Kind: KindMissingParameter}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDuplicateID      = &Error{Kind: KindDuplicateID}
	ErrToolRuntime      = &Error{Kind: KindToolRuntime}
	ErrExternalProcess  = &Error{Kind: KindExternalProcess}
	ErrOutputParse      = &Error{Kind: KindOutputParse}
	ErrRegistration     = &Error{Kind: KindRegistration}
)

// Error is a categorized framework error that keeps its cause for errors.Is/errors.As.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Param != "" {
		b.WriteString(": ")
		b.WriteString(e.Param)
	}
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches kind-only sentinels such as ErrNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Message != "" || t.Param != "" || t.Cause != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// Detail returns the human-readable part of the error without the kind prefix.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

func newError(kind ErrorKind, param, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Param:   param,
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

func errorf(kind ErrorKind, param, format string, args ...any) *Error {
	return newError(kind, param, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the kind carried by err, or "" when err is not a framework error.
func KindOf(err error) ErrorKind {
	var toolErr *Error
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Kind
	}
	return ""
}

func kindOrDefault(err error, fallback ErrorKind) ErrorKind {
	if kind := KindOf(err); kind != "" {
		return kind
	}
	return fallback
}

// detailOf returns the message of a framework error, or err.Error() otherwise.
func detailOf(err error) string {
	var toolErr *Error
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Detail()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
