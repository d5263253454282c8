package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thomasrohde/oscript/pkg/config"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/ledger"
	"github.com/thomasrohde/oscript/pkg/runtime"
	"github.com/thomasrohde/oscript/pkg/statevars"
)

// defaultAddress is used for this_address when neither -a nor the fixture
// names one.
const defaultAddress = "LOCALAAADDRESSLOCALAAADDRESSLOCA"

type changeOutput struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type runOutput struct {
	Outcome      string          `json:"outcome"`
	Value        json.RawMessage `json:"value,omitempty"`
	ResponseVars json.RawMessage `json:"responseVars"`
	Complexity   int             `json:"complexity"`
	CountOps     int             `json:"countOps"`
	Changes      []changeOutput  `json:"changes,omitempty"`
}

type runFlags struct {
	pretty    bool
	mode      evaluator.Mode
	fixture   string
	address   string
	tracePath string
}

func cmdRun(argv []string) int {
	const cmdUsage = "oscript run [-p] [-m aa|state|formula] [-l ledger.yaml] [-a address] [-t trace.jsonl] <file>"
	opts, operands, ok := parseOpts(argv, "pm:l:a:t:", cmdUsage)
	if !ok {
		return exitUsage
	}
	flags := runFlags{mode: evaluator.ModeStateScript}
	for _, opt := range opts {
		switch opt.Option {
		case 'p':
			flags.pretty = true
		case 'm':
			mode, err := evaluator.ParseMode(opt.Value)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitUsage
			}
			flags.mode = mode
		case 'l':
			flags.fixture = opt.Value
		case 'a':
			flags.address = opt.Value
		case 't':
			flags.tracePath = opt.Value
		}
	}
	if len(operands) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s\n", cmdUsage)
		return exitUsage
	}
	source, filename, code := readSource(operands[0], flags.pretty)
	if code != exitOK {
		return code
	}
	cfg, ok := loadConfig()
	if !ok {
		return exitUsage
	}
	return run(context.Background(), cfg, newLogger(cfg), flags, source, filename)
}

// openLedger picks the ledger: the configured database, seeded from the
// fixture when both are given, otherwise the fixture alone.
func openLedger(ctx context.Context, cfg *config.Config, fixture *ledger.Fixture) (ledger.Reader, func(), error) {
	if cfg.LedgerDB == "" {
		if fixture == nil {
			return ledger.NewMemory(), func() {}, nil
		}
		return fixture.Memory(), func() {}, nil
	}
	db, err := ledger.OpenSQL(cfg.LedgerDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger %s: %w", cfg.LedgerDB, err)
	}
	if fixture != nil {
		if err := db.Import(ctx, fixture); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("import fixture: %w", err)
		}
	}
	return db, func() { _ = db.Close() }, nil
}

func openStore(cfg *config.Config) (statevars.Store, func(), error) {
	if cfg.StateDB == "" {
		return statevars.NewMemory(), func() {}, nil
	}
	s, err := statevars.OpenSQLite(cfg.StateDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store %s: %w", cfg.StateDB, err)
	}
	return s, func() { _ = s.Close() }, nil
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, flags runFlags, source, filename string) int {
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

	env := runtime.Env{Address: flags.address, Mode: flags.mode}
	if fixture != nil {
		env.MCI = fixture.MCI
		env.Timestamp = fixture.Timestamp
		env.MCUnit = fixture.MCUnit
		env.Unit = fixture.Unit
		if fixture.Trigger != nil {
			trig, err := fixture.Trigger.Trigger()
			if err != nil {
				return ioError(err.Error(), flags.pretty)
			}
			env.Trigger = trig
		}
		if env.Address == "" && len(fixture.AAs) > 0 {
			env.Address = fixture.AAs[0]
		}
	}
	if env.Address == "" {
		env.Address = defaultAddress
	}

	opts := []runtime.Option{
		runtime.WithLedger(reader),
		runtime.WithStore(store),
		runtime.WithRunID(fmt.Sprintf("run-%d", time.Now().UnixNano())),
	}
	if flags.tracePath != "" {
		f, err := os.Create(flags.tracePath)
		if err != nil {
			return ioError(fmt.Sprintf("cannot create trace file: %s", flags.tracePath), flags.pretty)
		}
		defer f.Close()
		w := bufio.NewWriter(f)
		defer w.Flush()
		enc := json.NewEncoder(w)
		opts = append(opts, runtime.WithTrace(func(ev evaluator.TraceEvent) {
			_ = enc.Encode(ev)
		}))
	}
	rt := newRuntime(cfg, logger, opts...)

	res, err := rt.Run(ctx, source, filename, env)
	if err != nil {
		code := exitCodeFor(err, flags.pretty)
		if res != nil && res.ExecResult != nil {
			printRunResult(res)
		}
		return code
	}
	return printRunResult(res)
}

func printRunResult(res *runtime.Result) int {
	out := runOutput{
		Outcome:    res.Outcome.String(),
		Complexity: res.Complexity,
		CountOps:   res.CountOps,
	}
	if res.Value != nil {
		b, err := evaluator.ValueToJSON(res.Value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error serializing result: %s\n", err)
			return exitRuntime
		}
		out.Value = b
	}
	vars := evaluator.Object{}
	if res.Response != nil {
		vars.Pairs = res.Response.Pairs()
	}
	b, err := evaluator.ValueToJSON(vars)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error serializing response vars: %s\n", err)
		return exitRuntime
	}
	out.ResponseVars = b
	for _, c := range res.Changes {
		v := json.RawMessage("null")
		if c.Value != nil {
			if v, err = evaluator.ValueToJSON(c.Value); err != nil {
				return exitRuntime
			}
		}
		out.Changes = append(out.Changes, changeOutput{Key: c.Key, Value: v})
	}
	return printJSON(out)
}

// TraceSummary aggregates a JSONL trace written by `oscript run -t`.
type TraceSummary struct {
	RunID        string         `json:"runId"`
	TotalEvents  int            `json:"totalEvents"`
	Statements   int            `json:"statements"`
	Charges      int            `json:"charges"`
	ChargesBy    map[string]int `json:"chargesBy"`
	Lookups      int            `json:"lookups"`
	StateWrites  int            `json:"stateWrites"`
	ResponseSets int            `json:"responseSets"`
	Bounced      bool           `json:"bounced"`
	StartTime    string         `json:"startTime,omitempty"`
	EndTime      string         `json:"endTime,omitempty"`
	DurationMs   float64        `json:"durationMs"`
}

func cmdTrace(argv []string) int {
	const cmdUsage = "oscript trace [-x] <file.jsonl>"
	opts, operands, ok := parseOpts(argv, "x", cmdUsage)
	if !ok {
		return exitUsage
	}
	text := false
	for _, opt := range opts {
		if opt.Option == 'x' {
			text = true
		}
	}
	if len(operands) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s\n", cmdUsage)
		return exitUsage
	}
	f, err := os.Open(operands[0])
	if err != nil {
		return ioError(fmt.Sprintf("cannot read file: %s", operands[0]), false)
	}
	defer f.Close()

	summary := computeTraceSummary(f)
	if text {
		printTraceSummaryText(os.Stdout, summary)
		return exitOK
	}
	return printJSON(summary)
}

func computeTraceSummary(r io.Reader) *TraceSummary {
	summary := &TraceSummary{ChargesBy: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev evaluator.TraceEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		summary.TotalEvents++
		if summary.RunID == "" {
			summary.RunID = ev.RunID
		}
		switch ev.Event {
		case evaluator.TraceRunStart:
			if summary.StartTime == "" {
				summary.StartTime = ev.Timestamp
			}
		case evaluator.TraceRunEnd:
			summary.EndTime = ev.Timestamp
		case evaluator.TraceStmtStart:
			summary.Statements++
		case evaluator.TraceCharge:
			summary.Charges++
			if what := ev.Data["op"]; what != "" {
				summary.ChargesBy[what]++
			}
		case evaluator.TraceLookup:
			summary.Lookups++
		case evaluator.TraceStateWrite:
			summary.StateWrites++
		case evaluator.TraceResponseSet:
			summary.ResponseSets++
		case evaluator.TraceBounce:
			summary.Bounced = true
		}
	}

	if summary.StartTime != "" && summary.EndTime != "" {
		start, err1 := time.Parse(time.RFC3339Nano, summary.StartTime)
		end, err2 := time.Parse(time.RFC3339Nano, summary.EndTime)
		if err1 == nil && err2 == nil {
			summary.DurationMs = float64(end.Sub(start).Microseconds()) / 1000
		}
	}
	return summary
}

func printTraceSummaryText(w io.Writer, s *TraceSummary) {
	fmt.Fprintf(w, "Run: %s\n", s.RunID)
	fmt.Fprintf(w, "Events: %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Statements: %d\n", s.Statements)
	fmt.Fprintf(w, "Complexity charges: %d\n", s.Charges)
	for what, n := range s.ChargesBy {
		fmt.Fprintf(w, "  %s: %d\n", what, n)
	}
	fmt.Fprintf(w, "Lookups: %d, state writes: %d, response vars: %d\n", s.Lookups, s.StateWrites, s.ResponseSets)
	if s.Bounced {
		fmt.Fprintln(w, "Bounced")
	}
	if s.DurationMs > 0 {
		fmt.Fprintf(w, "Duration: %.3fms\n", s.DurationMs)
	}
}
