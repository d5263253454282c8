package evaluator

import (
	"fmt"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
)

// ErrorKind classifies a fatal evaluation outcome.
type ErrorKind int

const (
	KindTypeCoercion ErrorKind = iota + 1
	KindLookupNotFound
	KindAmbiguous
	KindComplexityExceeded
	KindBounce
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTypeCoercion:
		return "TypeCoercionError"
	case KindLookupNotFound:
		return "LookupNotFound"
	case KindAmbiguous:
		return "AmbiguousResult"
	case KindComplexityExceeded:
		return "ComplexityExceeded"
	case KindBounce:
		return "Bounce"
	case KindInternal:
		return "InternalError"
	}
	return "UnknownError"
}

// RuntimeError represents a fatal error during evaluation. Every kind aborts
// the evaluation and discards buffered state writes.
type RuntimeError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Span    *ast.Span
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Diagnostic converts the error to a diagnostic for display.
func (e *RuntimeError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(e.Code, e.Message, e.Span, "")
}

// Errorf builds a RuntimeError without a span. The evaluator attaches the
// span of the expression that failed.
func Errorf(kind ErrorKind, code, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func typeErrorf(format string, args ...any) *RuntimeError {
	return Errorf(KindTypeCoercion, diagnostics.EType, format, args...)
}

func notFoundf(format string, args ...any) *RuntimeError {
	return Errorf(KindLookupNotFound, diagnostics.ENotFound, format, args...)
}

func ambiguousf(format string, args ...any) *RuntimeError {
	return Errorf(KindAmbiguous, diagnostics.EAmbiguous, format, args...)
}

func modeErrorf(format string, args ...any) *RuntimeError {
	return Errorf(KindTypeCoercion, diagnostics.EMode, format, args...)
}

func criteriaErrorf(format string, args ...any) *RuntimeError {
	return Errorf(KindTypeCoercion, diagnostics.ECriteria, format, args...)
}

func ledgerError(err error) *RuntimeError {
	return Errorf(KindInternal, diagnostics.ELedger, "ledger read failed: %v", err)
}

// at attaches span to err. Errors that are not RuntimeErrors come from
// builtins and are reported as type errors.
func at(err error, span ast.Span) error {
	if err == nil {
		return nil
	}
	re, ok := err.(*RuntimeError)
	if !ok {
		re = typeErrorf("%s", err.Error())
	}
	if re.Span == nil {
		s := span
		re.Span = &s
	}
	return re
}
