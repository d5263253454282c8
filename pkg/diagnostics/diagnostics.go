// Package diagnostics defines oscript diagnostic types for parse/validation/runtime errors.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/thomasrohde/oscript/pkg/ast"
)

// Diagnostic code constants.
const (
	ELex           = "E_LEX"
	EParse         = "E_PARSE"
	EReturnNotLast = "E_RETURN_NOT_LAST"
	ELocalReassign = "E_LOCAL_REASSIGN"
	EUnknownFn     = "E_UNKNOWN_FN"
	EArgs          = "E_ARGS"
	EMode          = "E_MODE"
	ECriteria      = "E_CRITERIA"
	EField         = "E_FIELD"
	EType          = "E_TYPE"
	ENotFound      = "E_NOT_FOUND"
	EAmbiguous     = "E_AMBIGUOUS"
	EComplexity    = "E_COMPLEXITY"
	EBounce        = "E_BOUNCE"
	ELedger        = "E_LEDGER"
	EChainDepth    = "E_CHAIN_DEPTH"
	EIO            = "E_IO"
)

// Diagnostic represents a parse, validation, or runtime diagnostic.
type Diagnostic struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Span    *ast.Span `json:"span,omitempty"`
	Hint    string    `json:"hint,omitempty"`
}

func (d Diagnostic) Error() string {
	if d.Span != nil {
		return fmt.Sprintf("%s:%d:%d: %s", d.Span.File, d.Span.StartLine, d.Span.StartCol, d.Message)
	}
	return d.Message
}

// MakeDiag creates a new Diagnostic.
func MakeDiag(code, message string, span *ast.Span, hint string) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: message,
		Span:    span,
		Hint:    hint,
	}
}

var (
	errLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
	locLabel  = color.New(color.FgCyan).SprintFunc()
	hintLabel = color.New(color.FgYellow).SprintFunc()
)

// FormatDiagnostic formats a single diagnostic for display. Pretty output is
// colorized when the terminal supports it.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	loc := "<unknown>"
	if d.Span != nil {
		loc = fmt.Sprintf("%s:%d:%d", d.Span.File, d.Span.StartLine, d.Span.StartCol)
	}
	out := fmt.Sprintf("%s: %s\n  %s %s", errLabel("error["+d.Code+"]"), d.Message, locLabel("-->"), loc)
	if d.Hint != "" {
		out += fmt.Sprintf("\n  %s %s", hintLabel("hint:"), d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}
