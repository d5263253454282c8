// Package runtime provides the top-level oscript runtime orchestrator.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/formatter"
	"github.com/thomasrohde/oscript/pkg/ledger"
	"github.com/thomasrohde/oscript/pkg/parser"
	"github.com/thomasrohde/oscript/pkg/statevars"
	"github.com/thomasrohde/oscript/pkg/stdlib"
	"github.com/thomasrohde/oscript/pkg/validator"
)

// DefaultMaxComplexity is the complexity ceiling of an AA evaluation.
const DefaultMaxComplexity = 100

// Result holds the outcome of a program execution.
type Result struct {
	*evaluator.ExecResult
	// Changes are the state writes committed by a Returned evaluation.
	Changes []statevars.Change
}

// Env describes what an evaluation observes besides its source.
type Env struct {
	Address      string
	MCI          int64
	Timestamp    int64
	MCUnit       string
	ResponseUnit string
	Trigger      ledger.Trigger
	Unit         *ledger.Unit
	Mode         evaluator.Mode
	// Ledger overrides the runtime's ledger for this evaluation.
	Ledger ledger.Reader
}

// Runtime wires together all oscript components for program execution.
type Runtime struct {
	functions     *stdlib.Registry
	ledger        ledger.Reader
	verifier      ledger.Verifier
	store         statevars.Store
	cache         *Cache
	maxComplexity int
	logger        zerolog.Logger
	runID         string
	trace         func(event evaluator.TraceEvent)
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithStdlib sets the builtin function registry.
func WithStdlib(r *stdlib.Registry) Option {
	return func(rt *Runtime) {
		rt.functions = r
	}
}

// WithLedger sets the ledger snapshot evaluations read from.
func WithLedger(l ledger.Reader) Option {
	return func(rt *Runtime) {
		rt.ledger = l
	}
}

// WithVerifier sets the signed package verifier.
func WithVerifier(v ledger.Verifier) Option {
	return func(rt *Runtime) {
		rt.verifier = v
	}
}

// WithStore sets the persisted state var store.
func WithStore(s statevars.Store) Option {
	return func(rt *Runtime) {
		rt.store = s
	}
}

// WithCache sets the parse cache.
func WithCache(c *Cache) Option {
	return func(rt *Runtime) {
		rt.cache = c
	}
}

// WithMaxComplexity sets the complexity ceiling. Zero or less disables it.
func WithMaxComplexity(n int) Option {
	return func(rt *Runtime) {
		rt.maxComplexity = n
	}
}

// WithLogger sets the logger. Trace events are logged at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = l
	}
}

// WithRunID sets the run ID for trace events.
func WithRunID(id string) Option {
	return func(rt *Runtime) {
		rt.runID = id
	}
}

// WithTrace sets the trace callback.
func WithTrace(fn func(event evaluator.TraceEvent)) Option {
	return func(rt *Runtime) {
		rt.trace = fn
	}
}

// New creates a new Runtime with the given options. By default it evaluates
// against an empty in-memory ledger and state store.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		functions:     stdlib.Default(),
		ledger:        ledger.NewMemory(),
		store:         statevars.NewMemory(),
		maxComplexity: DefaultMaxComplexity,
		logger:        zerolog.Nop(),
		runID:         "cli",
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.cache == nil {
		rt.cache = NewCache(DefaultCacheEntries)
	}
	return rt
}

// Store returns the state var store.
func (rt *Runtime) Store() statevars.Store { return rt.store }

// Ledger returns the ledger snapshot.
func (rt *Runtime) Ledger() ledger.Reader { return rt.ledger }

// Cache returns the parse cache.
func (rt *Runtime) Cache() *Cache { return rt.cache }

// MaxComplexity returns the complexity ceiling.
func (rt *Runtime) MaxComplexity() int { return rt.maxComplexity }

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() zerolog.Logger { return rt.logger }

// Parse parses source, reusing a cached program when the same file and
// source were parsed before.
func (rt *Runtime) Parse(source, filename string) (*ast.Program, error) {
	if program, ok := rt.cache.Get(filename, source); ok {
		return program, nil
	}
	program, diags := parser.Parse(source, filename)
	if len(diags) > 0 {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	rt.cache.Put(filename, source, program)
	return program, nil
}

// Check parses and validates a program without executing it. Parse errors
// are reported as the result's diagnostics.
func (rt *Runtime) Check(source, filename string, mode evaluator.Mode) *validator.Result {
	program, err := rt.Parse(source, filename)
	if err != nil {
		var de *DiagnosticError
		if errors.As(err, &de) {
			return &validator.Result{Diagnostics: de.Diagnostics}
		}
		return &validator.Result{Diagnostics: []diagnostics.Diagnostic{
			diagnostics.MakeDiag(diagnostics.EParse, err.Error(), nil, ""),
		}}
	}
	return validator.Validate(program, validator.Options{
		Mode:          mode,
		MaxComplexity: rt.maxComplexity,
		Functions:     rt.functions,
	})
}

// Format parses and formats an oscript program.
func (rt *Runtime) Format(source, filename string) (string, error) {
	program, err := rt.Parse(source, filename)
	if err != nil {
		return "", err
	}
	return formatter.Format(program), nil
}

// Run parses and executes source. See Execute.
func (rt *Runtime) Run(ctx context.Context, source, filename string, env Env) (*Result, error) {
	program, err := rt.Parse(source, filename)
	if err != nil {
		return nil, err
	}
	return rt.Execute(ctx, program, env)
}

// Execute evaluates program for the AA at env.Address. State writes are
// committed to the store only when the evaluation returns normally; bounced
// and failed evaluations leave the store untouched. The result is non-nil
// whenever evaluation started, including for bounces and runtime errors.
func (rt *Runtime) Execute(ctx context.Context, program *ast.Program, env Env) (*Result, error) {
	reader := env.Ledger
	if reader == nil {
		reader = rt.ledger
	}
	storageSize, err := rt.store.StorageSize(ctx, env.Address)
	if err != nil {
		return nil, fmt.Errorf("storage size of %s: %w", env.Address, err)
	}

	buf := statevars.NewBuffer(rt.store, env.Address)
	opts := evaluator.ExecOptions{
		Context: evaluator.Context{
			ThisAddress:  env.Address,
			MCI:          env.MCI,
			Timestamp:    env.Timestamp,
			MCUnit:       env.MCUnit,
			ResponseUnit: env.ResponseUnit,
			StorageSize:  storageSize,
			Trigger:      env.Trigger,
			Unit:         env.Unit,
			Mode:         env.Mode,
			Ledger:       reader,
			Verifier:     rt.verifier,
			State:        buf,
		},
		MaxComplexity: rt.maxComplexity,
		Stdlib:        rt.functions.ExecMap(),
		Trace:         rt.traceFunc(),
		RunID:         rt.runID,
	}

	log := rt.logger.With().Str("aa", env.Address).Str("mode", env.Mode.String()).Logger()
	res, err := evaluator.Execute(ctx, program, opts)
	result := &Result{ExecResult: res}
	if err != nil {
		buf.Discard()
		if res.Outcome == evaluator.Bounced {
			log.Info().Err(err).Int("complexity", res.Complexity).Msg("bounced")
		} else {
			log.Warn().Err(err).Int("complexity", res.Complexity).Msg("evaluation failed")
		}
		return result, err
	}

	changes := buf.Changes()
	if err := buf.Commit(ctx); err != nil {
		res.Outcome = evaluator.Errored
		res.Value = nil
		log.Error().Err(err).Msg("state commit failed")
		return result, evaluator.Errorf(evaluator.KindInternal, diagnostics.ELedger, "commit state: %v", err)
	}
	result.Changes = changes
	log.Debug().
		Int("complexity", res.Complexity).
		Int("count_ops", res.CountOps).
		Int("state_changes", len(changes)).
		Int("response_vars", res.Response.Len()).
		Msg("returned")
	return result, nil
}

// traceFunc combines the trace callback with debug logging of trace events.
func (rt *Runtime) traceFunc() func(evaluator.TraceEvent) {
	logTrace := rt.logger.GetLevel() <= zerolog.DebugLevel
	if rt.trace == nil && !logTrace {
		return nil
	}
	return func(ev evaluator.TraceEvent) {
		if rt.trace != nil {
			rt.trace(ev)
		}
		if logTrace {
			e := rt.logger.Debug().Str("run", ev.RunID).Str("event", string(ev.Event))
			if ev.Span != nil {
				e = e.Int("line", ev.Span.StartLine).Int("col", ev.Span.StartCol)
			}
			for k, v := range ev.Data {
				e = e.Str(k, v)
			}
			e.Msg("trace")
		}
	}
}

// DiagnosticError wraps diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}
