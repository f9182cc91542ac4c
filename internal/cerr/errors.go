// Package cerr defines the compiler's fatal-error taxonomy.
package cerr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind names one of the five fatal error classes a compile can raise.
type Kind string

const (
	ParseError      Kind = "ParseError"
	TypeError       Kind = "TypeError"
	AllocError      Kind = "AllocError"
	UnsupportedOp   Kind = "UnsupportedOp"
	ShapeError      Kind = "ShapeError"
)

// CompileError is the single error type returned across C1-C8. All
// compile errors are fatal; there is no localised recovery (spec §7).
type CompileError struct {
	Kind    Kind
	Message string
	Column  int    // byte offset into the expression source, -1 if not applicable
	Source  string // the original expression text, for caret rendering
	cause   error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if e.Source != "" && e.Column >= 0 && e.Column <= len(e.Source) {
		b.WriteByte('\n')
		b.WriteString(e.Source)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", e.Column))
		b.WriteByte('^')
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.cause }

// New builds a CompileError without a source position.
func New(kind Kind, format string, args ...interface{}) *CompileError {
	return &CompileError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Column:  -1,
		cause:   errors.New(string(kind)),
	}
}

// At builds a CompileError carrying a source position and the original
// text, so Error() can render a caret under the offending column.
func At(kind Kind, source string, column int, format string, args ...interface{}) *CompileError {
	ce := New(kind, format, args...)
	ce.Column = column
	ce.Source = source
	return ce
}

// WithStack attaches a stack trace to the error's cause,
// matching internal/errors' fluent `.WithSource()`/`.WithStack()` style
// from the teacher but backed by github.com/pkg/errors instead of a
// hand-rolled call-stack walk.
func (e *CompileError) WithStack() *CompileError {
	e.cause = errors.WithStack(e.cause)
	return e
}
