// Package vaulterr defines the error-kind taxonomy shared across every
// vaultgraph component, following the teacher's convention of wrapping
// causes with fmt.Errorf("...: %w", err) and logging at the call site
// before returning.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on cause
// without string-matching messages.
type Kind string

const (
	NotFound   Kind = "not_found"   // missing path, missing section
	Invalid    Kind = "invalid"     // malformed arguments, path traversal
	Conflict   Kind = "conflict"    // lock contention during commit
	ReadOnly   Kind = "read_only"   // permission denied
	ParseError Kind = "parse_error" // front-matter or YAML malformed
	Io         Kind = "io"          // any other underlying I/O
	Fatal      Kind = "fatal"       // store corruption
)

// Error wraps a cause with a Kind, the operation name, and the path (if
// any) involved, so callers can produce actionable messages without
// exposing internal stack details.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

// KindOf extracts the Kind carried by err, defaulting to Fatal when err
// does not wrap a *vaulterr.Error.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	if err == nil {
		return ""
	}
	return Fatal
}
