package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thomasrohde/oscript/pkg/chain"
	"github.com/thomasrohde/oscript/pkg/config"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/ledger"
	"github.com/thomasrohde/oscript/pkg/runtime"
)

// Response vars with these names are read by the local forwarder: "forward"
// names the AA to trigger next, every "feed:<name>" var is posted as a data
// feed of the responding AA, and every "attest:<address>:<field>" var
// becomes a field of the responding AA's attestation of address.
const (
	forwardVar      = "forward"
	feedVarPrefix   = "feed:"
	attestVarPrefix = "attest:"
)

type stepOutput struct {
	AA           string          `json:"aa"`
	Depth        int             `json:"depth"`
	ResponseUnit string          `json:"responseUnit"`
	Outcome      string          `json:"outcome"`
	Error        string          `json:"error,omitempty"`
	ResponseVars json.RawMessage `json:"responseVars"`
	Complexity   int             `json:"complexity"`
}

type chainFlags struct {
	pretty   bool
	fixture  string
	maxDepth int
}

func cmdChain(argv []string) int {
	const cmdUsage = "oscript chain [-p] [-l ledger.yaml] [-d depth] <aa>=<file> [<aa>=<file>...]"
	opts, operands, ok := parseOpts(argv, "pl:d:", cmdUsage)
	if !ok {
		return exitUsage
	}
	var flags chainFlags
	for _, opt := range opts {
		switch opt.Option {
		case 'p':
			flags.pretty = true
		case 'l':
			flags.fixture = opt.Value
		case 'd':
			n, err := strconv.Atoi(opt.Value)
			if err != nil || n <= 0 {
				fmt.Fprintf(os.Stderr, "invalid depth %q\nusage: %s\n", opt.Value, cmdUsage)
				return exitUsage
			}
			flags.maxDepth = n
		}
	}
	if len(operands) == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s\n", cmdUsage)
		return exitUsage
	}

	defs := chain.MapDefinitions{}
	var primaryAA string
	for _, op := range operands {
		aa, file, found := strings.Cut(op, "=")
		if !found || aa == "" || file == "" {
			fmt.Fprintf(os.Stderr, "expected <aa>=<file>, got %q\n", op)
			return exitUsage
		}
		source, _, code := readSource(file, flags.pretty)
		if code != exitOK {
			return code
		}
		defs[aa] = source
		if primaryAA == "" {
			primaryAA = aa
		}
	}

	cfg, ok := loadConfig()
	if !ok {
		return exitUsage
	}
	if flags.maxDepth == 0 {
		flags.maxDepth = cfg.MaxChainDepth
	}
	return runChain(context.Background(), cfg, newLogger(cfg), flags, defs, primaryAA)
}

func runChain(ctx context.Context, cfg *config.Config, logger zerolog.Logger, flags chainFlags, defs chain.MapDefinitions, primaryAA string) int {
	var fixture *ledger.Fixture
	if flags.fixture != "" {
		f, err := ledger.LoadFixture(flags.fixture)
		if err != nil {
			return ioError(err.Error(), flags.pretty)
		}
		fixture = f
	}
	reader, closeLedger, err := openLedger(ctx, cfg, fixture)
	if err != nil {
		return ioError(err.Error(), flags.pretty)
	}
	defer closeLedger()
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return ioError(err.Error(), flags.pretty)
	}
	defer closeStore()

	var frame chain.Frame
	primary := chain.Step{AA: primaryAA}
	if fixture != nil {
		frame = chain.Frame{MCI: fixture.MCI, Timestamp: fixture.Timestamp, MCUnit: fixture.MCUnit}
		if fixture.Trigger != nil {
			trig, err := fixture.Trigger.Trigger()
			if err != nil {
				return ioError(err.Error(), flags.pretty)
			}
			primary.Trigger = trig
		}
	}
	if primary.Trigger.Address == "" {
		primary.Trigger.Address = defaultAddress
		primary.Trigger.InitialAddress = defaultAddress
	}

	rt := newRuntime(cfg, logger, runtime.WithLedger(reader), runtime.WithStore(store))
	runner := chain.NewRunner(rt, defs,
		chain.WithForwarder(chain.ForwarderFunc(forwardResponse)),
		chain.WithMaxDepth(flags.maxDepth),
		chain.WithLogger(logger),
	)
	results, err := runner.Run(ctx, frame, primary)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitRuntime
	}

	out := make([]stepOutput, 0, len(results))
	for _, r := range results {
		s := stepOutput{
			AA:           r.Step.AA,
			Depth:        r.Step.Depth,
			ResponseUnit: r.ResponseUnit,
			Outcome:      r.Outcome().String(),
			ResponseVars: json.RawMessage("{}"),
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		if r.Result != nil && r.Result.ExecResult != nil {
			s.Complexity = r.Result.Complexity
			if r.Result.Response != nil {
				b, err := evaluator.ValueToJSON(evaluator.NewObject(r.Result.Response.Pairs()))
				if err != nil {
					fmt.Fprintf(os.Stderr, "error serializing response vars: %s\n", err)
					return exitRuntime
				}
				s.ResponseVars = b
			}
		}
		out = append(out, s)
	}
	if code := printJSON(out); code != exitOK {
		return code
	}
	// the chain as a whole reports the primary step
	return chainExitCode(results[0])
}

func chainExitCode(r chain.StepResult) int {
	switch r.Outcome() {
	case evaluator.Returned:
		return exitOK
	case evaluator.Bounced:
		return exitBounce
	}
	return exitRuntime
}

// forwardResponse turns the response vars of a returned step into effects.
// The forwarded trigger carries the remaining response vars as its data.
func forwardResponse(_ context.Context, res chain.StepResult) (chain.Effects, error) {
	var effects chain.Effects
	if res.Result == nil || res.Result.Response == nil {
		return effects, nil
	}
	var target string
	var data []evaluator.KeyValue
	attested := make(map[string]int)
	for _, kv := range res.Result.Response.Pairs() {
		switch {
		case kv.Key == forwardVar:
			s, err := evaluator.ToString(kv.Value)
			if err != nil {
				return effects, fmt.Errorf("response var %s: %w", forwardVar, err)
			}
			target = s
		case strings.HasPrefix(kv.Key, feedVarPrefix):
			s, err := evaluator.ToString(kv.Value)
			if err != nil {
				return effects, fmt.Errorf("response var %s: %w", kv.Key, err)
			}
			effects.Feeds = append(effects.Feeds, ledger.FeedPosting{
				Oracle:   res.Step.AA,
				FeedName: strings.TrimPrefix(kv.Key, feedVarPrefix),
				Value:    s,
			})
		case strings.HasPrefix(kv.Key, attestVarPrefix):
			address, field, ok := strings.Cut(strings.TrimPrefix(kv.Key, attestVarPrefix), ":")
			if !ok || address == "" || field == "" {
				return effects, fmt.Errorf("response var %s: expected %s<address>:<field>", kv.Key, attestVarPrefix)
			}
			s, err := evaluator.ToString(kv.Value)
			if err != nil {
				return effects, fmt.Errorf("response var %s: %w", kv.Key, err)
			}
			i, seen := attested[address]
			if !seen {
				i = len(effects.Attestations)
				attested[address] = i
				effects.Attestations = append(effects.Attestations, ledger.Attestation{
					Attestor: res.Step.AA,
					Address:  address,
					Fields:   make(map[string]string),
				})
			}
			effects.Attestations[i].Fields[field] = s
		default:
			data = append(data, kv)
		}
	}
	if target == "" {
		return effects, nil
	}
	next := chain.Step{AA: target}
	if len(data) > 0 {
		b, err := evaluator.ValueToJSON(evaluator.NewObject(data))
		if err != nil {
			return effects, err
		}
		next.Trigger.Data = b
	}
	effects.Triggers = append(effects.Triggers, next)
	return effects, nil
}
