package evaluator_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/ledger"
	"github.com/thomasrohde/oscript/pkg/parser"
	"github.com/thomasrohde/oscript/pkg/statevars"
	"github.com/thomasrohde/oscript/pkg/stdlib"
)

// --- helpers ---

const (
	thisAA  = "PVMCXUZBEHCFWOLXUDQVNCQZ476LNEW4"
	otherAA = "2QHG44PZLJWD2H7C5ZIWH4NZZVB6QCC7"
	user    = "MBWYPSVHYHYGUHDWFEGWQXDWBAMQFUSP"
	oracle  = "JPQKPRI5FMTQRJF4ZZMYZYDQVRD55OTC"
)

// harness wires an evaluation to an in-memory ledger and state store.
type harness struct {
	ledger        *ledger.Memory
	store         *statevars.Memory
	ctx           evaluator.Context
	maxComplexity int
}

func newHarness() *harness {
	mem := ledger.NewMemory()
	return &harness{
		ledger: mem,
		store:  statevars.NewMemory(),
		ctx: evaluator.Context{
			ThisAddress: thisAA,
			MCI:         1000,
			Timestamp:   1546300800,
			MCUnit:      "MCUNIT",
			Mode:        evaluator.ModeStateScript,
			Ledger:      mem,
			Trigger: ledger.Trigger{
				Address: user,
				Unit:    "TRIGGERUNIT",
			},
		},
	}
}

// exec runs src and commits state writes when the outcome is Returned.
func (h *harness) exec(t *testing.T, src string) (*evaluator.ExecResult, error) {
	t.Helper()
	prog, diags := parser.Parse(src, "test.oscript")
	if len(diags) > 0 {
		t.Fatalf("parse errors: %s", diagnostics.FormatDiagnostics(diags, true))
	}
	buf := statevars.NewBuffer(h.store, h.ctx.ThisAddress)
	ec := h.ctx
	ec.State = buf
	res, err := evaluator.Execute(context.Background(), prog, evaluator.ExecOptions{
		Context:       ec,
		MaxComplexity: h.maxComplexity,
		Stdlib:        stdlib.Default().ExecMap(),
	})
	if res == nil {
		t.Fatal("Execute returned a nil result")
	}
	if err != nil {
		buf.Discard()
		return res, err
	}
	if cerr := buf.Commit(context.Background()); cerr != nil {
		t.Fatalf("commit: %v", cerr)
	}
	return res, nil
}

func (h *harness) mustExec(t *testing.T, src string) *evaluator.ExecResult {
	t.Helper()
	res, err := h.exec(t, src)
	if err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
	return res
}

func run(t *testing.T, src string) (*evaluator.ExecResult, error) {
	t.Helper()
	return newHarness().exec(t, src)
}

func mustRun(t *testing.T, src string) *evaluator.ExecResult {
	t.Helper()
	return newHarness().mustExec(t, src)
}

func expectNumber(t *testing.T, val evaluator.Value, expected float64) {
	t.Helper()
	num, ok := val.(evaluator.Number)
	if !ok {
		t.Fatalf("expected number %v, got %s %s", expected, evaluator.TypeName(val), evaluator.CanonicalJSON(val))
	}
	if num.Value != expected {
		t.Errorf("expected %v, got %v", expected, num.Value)
	}
}

func expectString(t *testing.T, val evaluator.Value, expected string) {
	t.Helper()
	s, ok := val.(evaluator.String)
	if !ok {
		t.Fatalf("expected string %q, got %s %s", expected, evaluator.TypeName(val), evaluator.CanonicalJSON(val))
	}
	if s.Value != expected {
		t.Errorf("expected %q, got %q", expected, s.Value)
	}
}

func expectBool(t *testing.T, val evaluator.Value, expected bool) {
	t.Helper()
	b, ok := val.(evaluator.Bool)
	if !ok {
		t.Fatalf("expected bool %v, got %s %s", expected, evaluator.TypeName(val), evaluator.CanonicalJSON(val))
	}
	if b.Value != expected {
		t.Errorf("expected %v, got %v", expected, b.Value)
	}
}

// expectCode asserts err is a RuntimeError with the given code.
func expectCode(t *testing.T, err error, code string) *evaluator.RuntimeError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got no error", code)
	}
	var re *evaluator.RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if re.Code != code {
		t.Fatalf("expected %s, got %s: %s", code, re.Code, re.Message)
	}
	return re
}

func expectStored(t *testing.T, h *harness, key string, want evaluator.Value) {
	t.Helper()
	got, ok, err := h.store.Load(context.Background(), thisAA, key)
	if err != nil {
		t.Fatal(err)
	}
	if want == nil {
		if ok {
			t.Errorf("var %s: expected deleted, got %s", key, evaluator.CanonicalJSON(got))
		}
		return
	}
	if !ok {
		t.Fatalf("var %s: expected %s, got missing", key, evaluator.CanonicalJSON(want))
	}
	if evaluator.TypeName(got) != evaluator.TypeName(want) || evaluator.CanonicalJSON(got) != evaluator.CanonicalJSON(want) {
		t.Errorf("var %s: got %s, want %s", key, evaluator.CanonicalJSON(got), evaluator.CanonicalJSON(want))
	}
}

// --- arithmetic and coercion ---

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"7 % 3", 1},
		{"2 ^ 10", 1024},
		{"-2 ^ 2", -4},
		{"2 ^ 3 ^ 2", 512},
		{"0.1 + 0.2", 0.3},
		{"1 + true", 2},
		{"5 * false", 0},
		{"'2' + 3", 5},
		{"'1.5e2' / 3", 50},
		{"-'4'", -4},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expectNumber(t, mustRun(t, tt.src).Value, tt.want)
		})
	}
}

func TestArithmeticErrors(t *testing.T) {
	for _, src := range []string{
		"'abc' + 1",
		"1 / 0",
		"5 % 0",
		"10 ^ 400",
		"json_parse('{\"a\":1}') + 1",
		"'1,5' * 2",
	} {
		t.Run(src, func(t *testing.T) {
			res, err := run(t, src)
			re := expectCode(t, err, diagnostics.EType)
			if re.Kind != evaluator.KindTypeCoercion {
				t.Errorf("kind = %s", re.Kind)
			}
			if res.Outcome != evaluator.Errored || res.Value != nil {
				t.Errorf("expected Errored with no value, got %s", res.Outcome)
			}
			if re.Span == nil {
				t.Error("expected a span on the error")
			}
		})
	}
}

func TestConcat(t *testing.T) {
	expectString(t, mustRun(t, "'a' || 1 || true").Value, "a1true")
	expectString(t, mustRun(t, "1 || 2").Value, "12")
	expectString(t, mustRun(t, "'x' || 0.1 + 0.2").Value, "x0.3")
	_, err := run(t, `'a' || json_parse('{"a":1}')`)
	expectCode(t, err, diagnostics.EType)
}

func TestComparison(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 < 2", true},
		{"'10' > 9", true},
		{"'abc' < 'abd'", true},
		{"'10' < '9'", true},
		{"1 == '1'", true},
		{"true == 1", true},
		{"false == ''", true},
		{"true != 'x'", false},
		{"0.1 + 0.2 == 0.3", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expectBool(t, mustRun(t, tt.src).Value, tt.want)
		})
	}
	for _, src := range []string{"true < 1", "'abc' < 1"} {
		_, err := run(t, src)
		expectCode(t, err, diagnostics.EType)
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	expectBool(t, mustRun(t, "false AND 1/0").Value, false)
	expectBool(t, mustRun(t, "true OR 1/0").Value, true)
	expectNumber(t, mustRun(t, "5 otherwise 1/0").Value, 5)
	expectString(t, mustRun(t, "0 otherwise 'fallback'").Value, "fallback")
	expectBool(t, mustRun(t, "'x' and 2").Value, true)
	expectNumber(t, mustRun(t, "true ? 1 : 1/0").Value, 1)

	h := newHarness()
	res := h.mustExec(t, "false AND var['x'] ? 1 : 2")
	if res.Complexity != 0 {
		t.Errorf("short-circuited read was charged: complexity %d", res.Complexity)
	}
}

func TestConstants(t *testing.T) {
	h := newHarness()
	h.ctx.ResponseUnit = "RESPONSE"
	h.ctx.StorageSize = 42
	expectNumber(t, h.mustExec(t, "mci").Value, 1000)
	expectNumber(t, h.mustExec(t, "timestamp").Value, 1546300800)
	expectString(t, h.mustExec(t, "mc_unit").Value, "MCUNIT")
	expectString(t, h.mustExec(t, "this_address").Value, thisAA)
	expectString(t, h.mustExec(t, "response_unit").Value, "RESPONSE")
	expectNumber(t, h.mustExec(t, "storage_size").Value, 42)
	expectString(t, h.mustExec(t, "base").Value, "base")
	expectNumber(t, h.mustExec(t, "round(pi, 2)").Value, 3.14)
	expectNumber(t, h.mustExec(t, "round(e, 3)").Value, 2.718)

	h.ctx.ResponseUnit = ""
	expectBool(t, h.mustExec(t, "response_unit").Value, false)
	h.ctx.Mode = evaluator.ModeAA
	_, err := h.exec(t, "response_unit")
	expectCode(t, err, diagnostics.EMode)
}

// --- locals and control flow ---

func TestLocals(t *testing.T) {
	expectNumber(t, mustRun(t, "$x = 2; $y = $x * 3; $y + 1").Value, 7)
	expectBool(t, mustRun(t, "$unset").Value, false)

	_, err := run(t, "$x = 1; $x = 2; $x")
	expectCode(t, err, diagnostics.ELocalReassign)
}

func TestIfAndReturn(t *testing.T) {
	src := `
		$x = 5;
		if ($x > 3) {
			return 'big';
		} else {
			return 'small';
		}
	`
	expectString(t, mustRun(t, src).Value, "big")

	res := mustRun(t, "if (false) { return 1; } response['a'] = 1;")
	if res.Value != nil {
		t.Errorf("expected no value, got %s", evaluator.CanonicalJSON(res.Value))
	}
	expectNumber(t, mustRun(t, "if (1) { $a = 1; } else { $a = 2; } $a").Value, 1)
	expectNumber(t, mustRun(t, "if (0) { $a = 1; } else if ('') { $a = 2; } else { $a = 3; } $a").Value, 3)
}

func TestFieldAndIndexAccess(t *testing.T) {
	h := newHarness()
	h.ctx.Trigger.Data = []byte(`{"order":{"price":"12.5","items":[1,2,3]},"flag":true}`)
	expectString(t, h.mustExec(t, "trigger.data.order.price").Value, "12.5")
	expectNumber(t, h.mustExec(t, "trigger.data.order.price * 2").Value, 25)
	expectNumber(t, h.mustExec(t, "trigger.data.order.items[1]").Value, 2)
	expectNumber(t, h.mustExec(t, "trigger.data['order']['items'][0]").Value, 1)
	expectBool(t, h.mustExec(t, "trigger.data.missing.deeper").Value, false)
	expectBool(t, h.mustExec(t, "trigger.data.flag.x").Value, false)

	_, err := h.exec(t, "trigger.data[true]")
	expectCode(t, err, diagnostics.EType)
}

// --- builtins ---

func TestBuiltinCalls(t *testing.T) {
	expectNumber(t, mustRun(t, "round(2.5)").Value, 2)
	expectString(t, mustRun(t, "substring('hello', 1, 3)").Value, "ell")

	_, err := run(t, "nosuchfn(1)")
	expectCode(t, err, diagnostics.EUnknownFn)
	_, err = run(t, "sqrt(1, 2)")
	expectCode(t, err, diagnostics.EArgs)
	_, err = run(t, "sqrt(-1)")
	expectCode(t, err, diagnostics.EType)
}

func TestMeteredBuiltinsCharge(t *testing.T) {
	res := mustRun(t, "sha256('a') || sqrt(4) || abs(-1)")
	if res.Complexity != 2 {
		t.Errorf("complexity = %d, want 2", res.Complexity)
	}
	if res.Charges["sha256"] != 1 || res.Charges["sqrt"] != 1 {
		t.Errorf("charges = %v", res.Charges)
	}
}

// --- state variables ---

func TestStateCompoundOnFreshKey(t *testing.T) {
	h := newHarness()
	h.mustExec(t, `
		var['a'] += 5;
		var['b'] -= 2;
		var['c'] *= 3;
		var['d'] ||= 'x';
		var['e'] /= 4;
	`)
	expectStored(t, h, "a", evaluator.NewNumber(5))
	expectStored(t, h, "b", evaluator.NewNumber(-2))
	expectStored(t, h, "c", evaluator.NewNumber(0))
	expectStored(t, h, "d", evaluator.NewString("x"))
	expectStored(t, h, "e", evaluator.NewNumber(0))
}

func TestStateCompoundOnExisting(t *testing.T) {
	h := newHarness()
	h.mustExec(t, "var['n'] = 10; var['s'] = 'ab'; var['t'] = true;")
	h.mustExec(t, "var['n'] += 1; var['n'] *= 2; var['s'] ||= 'c'; var['t'] += 1;")
	expectStored(t, h, "n", evaluator.NewNumber(22))
	expectStored(t, h, "s", evaluator.NewString("abc"))
	expectStored(t, h, "t", evaluator.NewNumber(2))

	_, err := h.exec(t, "var['s'] += 1;")
	expectCode(t, err, diagnostics.EType)
	_, err = h.exec(t, "var['n'] += 'x';")
	expectCode(t, err, diagnostics.EType)
}

func TestStateBooleansPersistAsOneOrDeletion(t *testing.T) {
	h := newHarness()
	h.mustExec(t, "var['flag'] = true; var['gone'] = 7;")
	expectStored(t, h, "flag", evaluator.NewNumber(1))
	expectStored(t, h, "gone", evaluator.NewNumber(7))

	h.mustExec(t, "var['gone'] = false;")
	expectStored(t, h, "gone", nil)
	expectBool(t, h.mustExec(t, "var['gone']").Value, false)
}

func TestStateReadYourWrites(t *testing.T) {
	h := newHarness()
	res := h.mustExec(t, "var['x'] = 3; var['x'] += 1; var['x'] * 10")
	expectNumber(t, res.Value, 40)

	res = h.mustExec(t, `var['o'] = json_parse('{"a":1}'); var['o']`)
	expectBool(t, res.Value, true)
	expectStored(t, h, "o", evaluator.NewNumber(1))
}

func TestStateFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness()
	h.mustExec(t, "var['x'] = 1;")

	res, err := h.exec(t, "var['x'] = 2; var['y'] = 3; $z = 'a' + 1;")
	expectCode(t, err, diagnostics.EType)
	if res.Outcome != evaluator.Errored {
		t.Errorf("outcome = %s", res.Outcome)
	}
	expectStored(t, h, "x", evaluator.NewNumber(1))
	expectStored(t, h, "y", nil)
}

func TestBounceRollsBack(t *testing.T) {
	h := newHarness()
	h.mustExec(t, "var['x'] = 1;")

	res, err := h.exec(t, "var['x'] = 2; response['m'] = 'kept'; bounce('not enough ' || 'funds');")
	re := expectCode(t, err, diagnostics.EBounce)
	if re.Kind != evaluator.KindBounce || re.Message != "not enough funds" {
		t.Errorf("bounce error = %+v", re)
	}
	if res.Outcome != evaluator.Bounced {
		t.Errorf("outcome = %s", res.Outcome)
	}
	if _, ok := res.Response.Get("m"); !ok {
		t.Errorf("response vars assigned before the bounce should be reported")
	}
	expectStored(t, h, "x", evaluator.NewNumber(1))
}

func TestStateWriteOnlyInStateScript(t *testing.T) {
	for _, mode := range []evaluator.Mode{evaluator.ModeAA, evaluator.ModeFormula} {
		t.Run(mode.String(), func(t *testing.T) {
			h := newHarness()
			h.ctx.Mode = mode
			_, err := h.exec(t, "var['x'] = 1;")
			expectCode(t, err, diagnostics.EMode)
			expectStored(t, h, "x", nil)
		})
	}
}

func TestStateReadModes(t *testing.T) {
	h := newHarness()
	h.mustExec(t, "var['x'] = 4;")
	h.ctx.Mode = evaluator.ModeAA
	expectNumber(t, h.mustExec(t, "var['x']").Value, 4)
	h.ctx.Mode = evaluator.ModeFormula
	_, err := h.exec(t, "var['x']")
	expectCode(t, err, diagnostics.EMode)
}

func TestForeignStateRead(t *testing.T) {
	h := newHarness()
	if err := h.store.Commit(context.Background(), otherAA, []statevars.Change{
		{Key: "price", Value: evaluator.NewNumber(99)},
	}); err != nil {
		t.Fatal(err)
	}
	src := "var['" + otherAA + "']['price']"
	expectNumber(t, h.mustExec(t, src).Value, 99)
}

func TestStateLimits(t *testing.T) {
	h := newHarness()
	_, err := h.exec(t, "var['"+strings.Repeat("k", 129)+"'] = 1;")
	expectCode(t, err, diagnostics.EType)
	_, err = h.exec(t, "var['v'] = '"+strings.Repeat("x", 1025)+"';")
	expectCode(t, err, diagnostics.EType)
}

// --- response ---

func TestResponseVars(t *testing.T) {
	res := mustRun(t, `
		response['b'] = 1;
		response['a'] = 'x';
		response['b'] = 2;
		response['obj'] = json_parse('{"k":[1]}');
	`)
	data, err := res.Response.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"responseVars":{"b":2,"a":"x","obj":true}}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	h := newHarness()
	h.ctx.Mode = evaluator.ModeFormula
	_, err = h.exec(t, "response['a'] = 1;")
	expectCode(t, err, diagnostics.EMode)
}

// --- complexity ---

func TestCountOps(t *testing.T) {
	h := newHarness()
	h.ledger.SetBalance(thisAA, "base", 100)
	res := h.mustExec(t, "$v = var['x']; $h = sha256('seed'); $b = balance[base]; $b")
	if res.CountOps != 3 || res.Complexity != 3 {
		t.Errorf("countOps = %d, complexity = %d, want 3", res.CountOps, res.Complexity)
	}
	for _, op := range []string{evaluator.OpStateRead, "sha256", evaluator.OpBalance} {
		if res.Charges[op] != 1 {
			t.Errorf("charges[%s] = %d, want 1", op, res.Charges[op])
		}
	}
}

func TestMeterCountsOneUnitPerOperation(t *testing.T) {
	m := evaluator.NewMeter(3)
	for _, op := range []string{evaluator.OpStateRead, evaluator.OpStateRead, "sqrt"} {
		if err := m.Charge(op, ast.Span{}); err != nil {
			t.Fatal(err)
		}
		if m.CountOps() != m.Complexity() {
			t.Fatalf("countOps %d != complexity %d", m.CountOps(), m.Complexity())
		}
	}
	if got := m.Charges(); got[evaluator.OpStateRead] != 2 || got["sqrt"] != 1 {
		t.Errorf("charges = %v", got)
	}
	err := m.Charge(evaluator.OpBalance, ast.Span{})
	expectCode(t, err, diagnostics.EComplexity)
	if m.Complexity() != 4 || m.CountOps() != 4 {
		t.Errorf("complexity %d, countOps %d after breach", m.Complexity(), m.CountOps())
	}
}

func TestComplexityCeiling(t *testing.T) {
	h := newHarness()
	h.maxComplexity = 2
	res, err := h.exec(t, "$a = var['a']; $b = var['b']; $c = var['c']; 1")
	expectCode(t, err, diagnostics.EComplexity)
	if res.Outcome != evaluator.Errored || res.Complexity != 3 {
		t.Errorf("outcome %s, complexity %d", res.Outcome, res.Complexity)
	}
	var re *evaluator.RuntimeError
	errors.As(err, &re)
	if re.Kind != evaluator.KindComplexityExceeded {
		t.Errorf("kind = %s", re.Kind)
	}

	h.maxComplexity = 0
	h.mustExec(t, "$a = var['a']; $b = var['b']; $c = var['c']; 1")
}

func TestComplexityBreachOnWriteLeavesBufferUntouched(t *testing.T) {
	h := newHarness()
	h.maxComplexity = 1
	prog, diags := parser.Parse("var['a'] = 1; var['b'] = 2;", "test.oscript")
	if len(diags) > 0 {
		t.Fatal(diags)
	}
	buf := statevars.NewBuffer(h.store, thisAA)
	ec := h.ctx
	ec.State = buf
	_, err := evaluator.Execute(context.Background(), prog, evaluator.ExecOptions{
		Context:       ec,
		MaxComplexity: h.maxComplexity,
		Stdlib:        stdlib.Default().ExecMap(),
	})
	expectCode(t, err, diagnostics.EComplexity)
	changes := buf.Changes()
	if len(changes) != 1 || changes[0].Key != "a" {
		t.Errorf("buffer = %+v, want only the first write", changes)
	}
}

// --- tracing ---

func TestTraceEvents(t *testing.T) {
	h := newHarness()
	prog, _ := parser.Parse("var['a'] = 1; response['r'] = 2; 3", "test.oscript")
	var events []evaluator.TraceEventType
	ec := h.ctx
	ec.State = statevars.NewBuffer(h.store, thisAA)
	_, err := evaluator.Execute(context.Background(), prog, evaluator.ExecOptions{
		Context: ec,
		Stdlib:  stdlib.Default().ExecMap(),
		RunID:   "run-1",
		Trace: func(ev evaluator.TraceEvent) {
			if ev.RunID != "run-1" {
				t.Errorf("run id = %q", ev.RunID)
			}
			events = append(events, ev.Event)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if events[0] != evaluator.TraceRunStart || events[len(events)-1] != evaluator.TraceRunEnd {
		t.Errorf("events = %v", events)
	}
	seen := map[evaluator.TraceEventType]bool{}
	for _, e := range events {
		seen[e] = true
	}
	for _, want := range []evaluator.TraceEventType{evaluator.TraceCharge, evaluator.TraceStateWrite, evaluator.TraceResponseSet, evaluator.TraceStmtStart} {
		if !seen[want] {
			t.Errorf("missing %s event", want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want evaluator.Mode
	}{{"aa", evaluator.ModeAA}, {"state", evaluator.ModeStateScript}, {"", evaluator.ModeStateScript}, {"formula", evaluator.ModeFormula}} {
		got, err := evaluator.ParseMode(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
	if _, err := evaluator.ParseMode("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
