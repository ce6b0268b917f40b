package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a ledger failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindTransport  ErrorKind = "transport"
)

// Error is the tagged error returned by every ledger operation.
// Fields maps input field names to a human-readable reason.
type Error struct {
	Kind    ErrorKind         `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrTransport  = &Error{Kind: KindTransport}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" (" + strings.Join(parts, "; ") + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match against a bare kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Fields != nil || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// FieldError reports a single invalid field, keeping cause in the chain.
func FieldError(field string, cause error) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: cause.Error(),
		Fields:  map[string]string{field: cause.Error()},
		Err:     cause,
	}
}

func NotFound(entity string, id int64) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", entity, id)}
}

func Conflict(field, message string) *Error {
	e := &Error{Kind: KindConflict, Message: message}
	if field != "" {
		e.Fields = map[string]string{field: message}
	}
	return e
}

func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Message: "ledger service unreachable", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// fieldErrors accumulates per-field validation failures.
type fieldErrors struct {
	fields map[string]string
	causes []error
}

func (fe *fieldErrors) add(field string, err error) {
	if err == nil {
		return
	}
	if fe.fields == nil {
		fe.fields = make(map[string]string)
	}
	if _, exists := fe.fields[field]; exists {
		return
	}
	fe.fields[field] = err.Error()
	fe.causes = append(fe.causes, err)
}

func (fe *fieldErrors) err(message string) error {
	if len(fe.fields) == 0 {
		return nil
	}
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Fields:  fe.fields,
		Err:     errors.Join(fe.causes...),
	}
}
