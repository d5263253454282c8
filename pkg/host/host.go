// Package host implements the editor-facing contract of oscript: completion,
// hover, validation and deployment descriptors.
package host

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/lexer"
	"github.com/thomasrohde/oscript/pkg/runtime"
	"github.com/thomasrohde/oscript/pkg/words"
)

// Position is a zero-based line and character offset in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// HoverResult is the documentation shown for the word under the cursor.
type HoverResult struct {
	Word          string `json:"word"`
	Detail        string `json:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// ValidateResult reports either the complexity of a valid script or an error.
type ValidateResult struct {
	Complexity  int                      `json:"complexity"`
	CountOps    int                      `json:"countOps"`
	Error       string                   `json:"error,omitempty"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics,omitempty"`
}

// DeployResult is a deployment descriptor, or an error.
type DeployResult struct {
	URI           string `json:"uri"`
	Definition    string `json:"definition,omitempty"`
	Complexity    int    `json:"complexity,omitempty"`
	CountOps      int    `json:"countOps,omitempty"`
	DeploymentURI string `json:"deploymentUri,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Host answers editor requests using a runtime.
type Host struct {
	rt     *runtime.Runtime
	logger zerolog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// New creates a Host.
func New(rt *runtime.Runtime, opts ...Option) *Host {
	h := &Host{rt: rt, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Runtime returns the runtime the host validates with.
func (h *Host) Runtime() *runtime.Runtime { return h.rt }

func isWordChar(c byte) bool {
	return c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// offset converts a position to a byte offset, clamped to the document.
func offset(source string, pos Position) int {
	off := 0
	for line := 0; line < pos.Line; line++ {
		nl := strings.IndexByte(source[off:], '\n')
		if nl < 0 {
			return len(source)
		}
		off += nl + 1
	}
	end := strings.IndexByte(source[off:], '\n')
	if end < 0 {
		end = len(source) - off
	}
	return off + max(0, min(pos.Character, end))
}

// inSearch reports whether off lies inside [[ ]] criteria.
func inSearch(source string, off int) bool {
	before := source[:off]
	return strings.LastIndex(before, "[[") > strings.LastIndex(before, "]]")
}

// Complete returns the completion items for the word being typed at pos.
func (h *Host) Complete(source string, pos Position) []words.Word {
	off := offset(source, pos)
	start := off
	for start > 0 && isWordChar(source[start-1]) {
		start--
	}
	return words.Complete(source[start:off], inSearch(source, off))
}

// Hover returns the documentation of the word at pos.
func (h *Host) Hover(source string, pos Position) (HoverResult, bool) {
	off := offset(source, pos)
	start, end := off, off
	for start > 0 && isWordChar(source[start-1]) {
		start--
	}
	for end < len(source) && isWordChar(source[end]) {
		end++
	}
	token := strings.Trim(source[start:end], ".")
	if token == "" {
		return HoverResult{}, false
	}
	lookup := words.Lookup
	if inSearch(source, off) {
		lookup = words.LookupSearch
	}
	for {
		if w, ok := lookup(token); ok {
			return HoverResult{Word: token, Detail: w.Detail, Documentation: w.Documentation}, true
		}
		dot := strings.LastIndexByte(token, '.')
		if dot < 0 {
			return HoverResult{}, false
		}
		token = token[:dot]
	}
}

// Validate checks a script in the given mode.
func (h *Host) Validate(source string, mode evaluator.Mode) ValidateResult {
	res := h.rt.Check(source, "document.oscript", mode)
	out := ValidateResult{Complexity: res.Complexity, CountOps: res.CountOps}
	if !res.OK() {
		out.Error = describe(res.Diagnostics)
		out.Diagnostics = res.Diagnostics
	}
	return out
}

func describe(diags []diagnostics.Diagnostic) string {
	d := diags[0]
	if d.Span != nil {
		return fmt.Sprintf("%s at line %d: %s", d.Code, d.Span.StartLine, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// pathFromURI accepts file:// URIs and plain paths.
func pathFromURI(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported URI scheme %q", u.Scheme)
	}
	return u.Path, nil
}

// Deploy reads the state script at uri, validates it and builds the link
// that opens the deployment of the AA in a wallet.
func (h *Host) Deploy(uri string) DeployResult {
	out := DeployResult{URI: uri}
	path, err := pathFromURI(uri)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	data, err := os.ReadFile(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	source := strings.TrimSpace(string(data))

	res := h.rt.Check(source, path, evaluator.ModeStateScript)
	if !res.OK() {
		out.Error = describe(res.Diagnostics)
		h.logger.Info().Str("uri", uri).Str("error", out.Error).Msg("deploy rejected")
		return out
	}

	definition, err := json.Marshal([]any{"autonomous agent", map[string]string{"init": wrapFormula(source, path)}})
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Definition = string(definition)
	out.Complexity = res.Complexity
	out.CountOps = res.CountOps
	out.DeploymentURI = "obyte:data?app=definition&definition=" + strings.ReplaceAll(url.QueryEscape(out.Definition), "+", "%20")
	h.logger.Info().Str("uri", uri).Int("complexity", res.Complexity).Msg("deployment prepared")
	return out
}

// wrapFormula returns source as a braced formula. A source whose first
// token is already an opening brace was parsed as wrapped and is kept.
func wrapFormula(source, filename string) string {
	tokens, err := lexer.Tokenize(source, filename)
	if err == nil && len(tokens) > 0 && tokens[0].Type == lexer.TokLBrace {
		return source
	}
	return "{" + source + "}"
}
