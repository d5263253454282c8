// Package chain runs an AA trigger together with the secondary triggers it
// causes, one evaluation after another.
package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/edwingeng/deque"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/ledger"
	"github.com/thomasrohde/oscript/pkg/runtime"
)

// DefaultMaxDepth is the deepest secondary trigger a chain may reach.
const DefaultMaxDepth = 10

// Step is one pending AA trigger. The primary trigger has depth 0.
type Step struct {
	AA      string
	Trigger ledger.Trigger
	Depth   int
}

// StepResult is the outcome of one step. Err is the evaluation error for
// bounced and failed steps.
type StepResult struct {
	Step         Step
	ResponseUnit string
	Result       *runtime.Result
	Err          error
}

// Outcome returns the terminal state of the step.
func (r StepResult) Outcome() evaluator.Outcome {
	if r.Result != nil && r.Result.ExecResult != nil {
		return r.Result.Outcome
	}
	return evaluator.Errored
}

// Effects are what a returned step causes outside its own state: triggers
// of other AAs, and data feed postings and attestations visible to later
// steps.
type Effects struct {
	Triggers     []Step
	Feeds        []ledger.FeedPosting
	Attestations []ledger.Attestation
}

// Forwarder decides the effects of a step that returned normally.
type Forwarder interface {
	Forward(ctx context.Context, res StepResult) (Effects, error)
}

// ForwarderFunc adapts a function to the Forwarder interface.
type ForwarderFunc func(ctx context.Context, res StepResult) (Effects, error)

func (f ForwarderFunc) Forward(ctx context.Context, res StepResult) (Effects, error) {
	return f(ctx, res)
}

// Definitions looks up the state script of an AA.
type Definitions interface {
	Script(ctx context.Context, address string) (string, bool, error)
}

// MapDefinitions holds AA scripts in memory, keyed by address.
type MapDefinitions map[string]string

func (m MapDefinitions) Script(_ context.Context, address string) (string, bool, error) {
	src, ok := m[address]
	return src, ok, nil
}

// Frame is the ledger position shared by every step of a chain.
type Frame struct {
	MCI       int64
	Timestamp int64
	MCUnit    string
}

// Runner executes trigger chains on a runtime.
type Runner struct {
	rt        *runtime.Runtime
	defs      Definitions
	forwarder Forwarder
	maxDepth  int
	logger    zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithForwarder sets the source of secondary triggers.
func WithForwarder(f Forwarder) Option {
	return func(r *Runner) {
		r.forwarder = f
	}
}

// WithMaxDepth sets the chain depth limit.
func WithMaxDepth(n int) Option {
	return func(r *Runner) {
		r.maxDepth = n
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner evaluating the scripts in defs.
func NewRunner(rt *runtime.Runtime, defs Definitions, opts ...Option) *Runner {
	r := &Runner{
		rt:       rt,
		defs:     defs,
		maxDepth: DefaultMaxDepth,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes primary and then every secondary trigger in FIFO order. Each
// step commits its state before the next starts. A bounced or failed step
// leaves no state behind and causes no secondary triggers; the chain goes
// on with the remaining steps. The returned error reports failures of the
// host collaborators, not of the scripts.
func (r *Runner) Run(ctx context.Context, frame Frame, primary Step) ([]StepResult, error) {
	overlay := ledger.NewOverlay(r.rt.Ledger())
	var seq int64

	queue := deque.NewDeque()
	queue.PushBack(primary)

	var results []StepResult
	for !queue.Empty() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		step := queue.PopFront().(Step)
		res, err := r.runStep(ctx, frame, overlay, step, len(results))
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Outcome() != evaluator.Returned || r.forwarder == nil {
			continue
		}

		effects, err := r.forwarder.Forward(ctx, res)
		if err != nil {
			return results, fmt.Errorf("forward %s: %w", step.AA, err)
		}
		for _, p := range effects.Feeds {
			seq++
			p.MCI = frame.MCI
			p.Seq = seq
			if p.Oracle == "" {
				p.Oracle = step.AA
			}
			if p.Unit == "" {
				p.Unit = res.ResponseUnit
			}
			overlay.AddFeed(p)
		}
		for _, a := range effects.Attestations {
			seq++
			a.MCI = frame.MCI
			a.Seq = seq
			if a.Attestor == "" {
				a.Attestor = step.AA
			}
			if a.Unit == "" {
				a.Unit = res.ResponseUnit
			}
			overlay.AddAttestation(a)
		}
		for _, next := range effects.Triggers {
			next.Depth = step.Depth + 1
			if next.Trigger.Unit == "" {
				next.Trigger.Unit = res.ResponseUnit
			}
			if next.Trigger.Address == "" {
				next.Trigger.Address = step.AA
			}
			if next.Trigger.InitialAddress == "" {
				next.Trigger.InitialAddress = step.Trigger.InitialAddress
			}
			queue.PushBack(next)
		}
	}
	return results, nil
}

func (r *Runner) runStep(ctx context.Context, frame Frame, overlay *ledger.Overlay, step Step, index int) (StepResult, error) {
	res := StepResult{Step: step, ResponseUnit: responseUnit(step, index)}
	log := r.logger.With().Str("aa", step.AA).Int("depth", step.Depth).Logger()

	if r.maxDepth > 0 && step.Depth > r.maxDepth {
		res.Err = evaluator.Errorf(evaluator.KindBounce, diagnostics.EChainDepth,
			"trigger chain is deeper than %d", r.maxDepth)
		res.Result = &runtime.Result{ExecResult: &evaluator.ExecResult{
			Outcome:  evaluator.Bounced,
			Response: evaluator.NewResponseVars(),
		}}
		log.Info().Err(res.Err).Msg("step bounced")
		return res, nil
	}

	source, ok, err := r.defs.Script(ctx, step.AA)
	if err != nil {
		return res, fmt.Errorf("load definition of %s: %w", step.AA, err)
	}
	if !ok {
		res.Err = evaluator.Errorf(evaluator.KindLookupNotFound, diagnostics.ENotFound, "no AA definition at %s", step.AA)
		log.Warn().Err(res.Err).Msg("step failed")
		return res, nil
	}

	result, err := r.rt.Run(ctx, source, step.AA, runtime.Env{
		Address:      step.AA,
		MCI:          frame.MCI,
		Timestamp:    frame.Timestamp,
		MCUnit:       frame.MCUnit,
		ResponseUnit: res.ResponseUnit,
		Trigger:      step.Trigger,
		Mode:         evaluator.ModeStateScript,
		Ledger:       overlay,
	})
	res.Result = result
	res.Err = err
	var re *evaluator.RuntimeError
	if err != nil && result == nil && !errors.As(err, &re) {
		var de *runtime.DiagnosticError
		if !errors.As(err, &de) {
			return res, err
		}
	}
	log.Debug().Str("outcome", res.Outcome().String()).Msg("step done")
	return res, nil
}

// responseUnit derives a stable unit hash for the response of a step.
func responseUnit(step Step, index int) string {
	h := blake3.New()
	_, _ = h.Write([]byte(step.AA))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(step.Trigger.Unit))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(index)))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
