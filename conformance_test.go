package oscript_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/thomasrohde/oscript/internal/testutil"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/ledger"
	"github.com/thomasrohde/oscript/pkg/runtime"
	"github.com/thomasrohde/oscript/pkg/statevars"
)

const defaultAA = "PVMCXUZBEHCFWOLXUDQVNCQZ476LNEW4"

func TestConformance(t *testing.T) {
	files, err := testutil.ListScenarios(testutil.ScenariosDir)
	if err != nil {
		t.Fatalf("list scenarios: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenarios found")
	}
	for _, path := range files {
		scenario, err := testutil.LoadScenario(path)
		if err != nil {
			t.Fatalf("failed to load scenario: %v", err)
		}
		t.Run(scenario.Name, func(t *testing.T) {
			mode, err := evaluator.ParseMode(scenario.Mode)
			if err != nil {
				t.Fatal(err)
			}
			switch scenario.Cmd {
			case "check":
				runCheckScenario(t, scenario, mode)
			case "run":
				runRunScenario(t, scenario, mode)
			default:
				t.Skipf("unsupported command: %s", scenario.Cmd)
			}
		})
	}
}

func newRuntime(scenario *testutil.Scenario, opts ...runtime.Option) *runtime.Runtime {
	if scenario.MaxComplexity > 0 {
		opts = append(opts, runtime.WithMaxComplexity(scenario.MaxComplexity))
	}
	return runtime.New(opts...)
}

func runCheckScenario(t *testing.T, scenario *testutil.Scenario, mode evaluator.Mode) {
	t.Helper()
	res := newRuntime(scenario).Check(scenario.Source, scenario.Name+".oscript", mode)

	exit := 0
	if !res.OK() {
		exit = 2
	}
	if exit != scenario.Expect.ExitCode {
		t.Errorf("exit code: got %d, want %d (diagnostics %v)", exit, scenario.Expect.ExitCode, res.Diagnostics)
	}
	checkDiagnostics(t, res.Diagnostics, scenario.Expect.Diagnostics)
	if res.OK() {
		checkInt(t, "complexity", res.Complexity, scenario.Expect.Complexity)
		checkInt(t, "countOps", res.CountOps, scenario.Expect.CountOps)
	}
}

func runRunScenario(t *testing.T, scenario *testutil.Scenario, mode evaluator.Mode) {
	t.Helper()
	ctx := context.Background()

	store := statevars.NewMemory()
	for address, vars := range scenario.State {
		var changes []statevars.Change
		for key, raw := range vars {
			v, err := evaluator.ParseJSONToValue([]byte(raw))
			if err != nil {
				t.Fatalf("state %s[%s]: %v", address, key, err)
			}
			changes = append(changes, statevars.Change{Key: key, Value: v})
		}
		if err := store.Commit(ctx, address, changes); err != nil {
			t.Fatal(err)
		}
	}

	env := runtime.Env{Address: scenario.Address, Mode: mode}
	if env.Address == "" {
		env.Address = defaultAA
	}
	reader := ledger.Reader(ledger.NewMemory())
	if f := scenario.Ledger; f != nil {
		reader = f.Memory()
		env.MCI = f.MCI
		env.Timestamp = f.Timestamp
		env.MCUnit = f.MCUnit
		env.Unit = f.Unit
		if f.Trigger != nil {
			trig, err := f.Trigger.Trigger()
			if err != nil {
				t.Fatal(err)
			}
			env.Trigger = trig
		}
	}

	rt := newRuntime(scenario, runtime.WithStore(store), runtime.WithLedger(reader))
	res, err := rt.Run(ctx, scenario.Source, scenario.Name+".oscript", env)

	exit, code := 0, ""
	if err != nil {
		var de *runtime.DiagnosticError
		var re *evaluator.RuntimeError
		switch {
		case errors.As(err, &de):
			exit = 2
			checkDiagnostics(t, de.Diagnostics, scenario.Expect.Diagnostics)
		case errors.As(err, &re):
			exit, code = 4, re.Code
			if re.Kind == evaluator.KindBounce {
				exit = 3
			}
		default:
			t.Fatalf("unexpected error type: %v", err)
		}
	}
	if exit != scenario.Expect.ExitCode {
		t.Errorf("exit code: got %d, want %d (error: %v)", exit, scenario.Expect.ExitCode, err)
	}
	if scenario.Expect.ErrorCode != "" && code != scenario.Expect.ErrorCode {
		t.Errorf("error code: got %q, want %q", code, scenario.Expect.ErrorCode)
	}
	if res == nil || res.ExecResult == nil {
		return
	}

	if want := scenario.Expect.Outcome; want != "" && res.Outcome.String() != want {
		t.Errorf("outcome: got %s, want %s", res.Outcome, want)
	}
	if want := scenario.Expect.Value; want != "" {
		got := "null"
		if res.Value != nil {
			got = evaluator.CanonicalJSON(res.Value)
		}
		checkJSON(t, "value", got, want)
	}
	if want := scenario.Expect.ResponseVars; want != "" {
		checkJSON(t, "responseVars", evaluator.CanonicalJSON(evaluator.NewObject(res.Response.Pairs())), want)
	}
	checkInt(t, "complexity", res.Complexity, scenario.Expect.Complexity)
	checkInt(t, "countOps", res.CountOps, scenario.Expect.CountOps)

	for address, vars := range scenario.Expect.State {
		snapshot := store.Snapshot(address)
		for key, want := range vars {
			v, ok := snapshot[key]
			got := "null"
			if ok {
				got = evaluator.CanonicalJSON(v)
			}
			checkJSON(t, "var["+key+"]", got, want)
		}
	}
}

func checkJSON(t *testing.T, what, got, want string) {
	t.Helper()
	g, err := testutil.NormalizeJSON(got)
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
	w, err := testutil.NormalizeJSON(want)
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
	if g != w {
		t.Errorf("%s:\n  got:  %s\n  want: %s", what, g, w)
	}
}

func checkInt(t *testing.T, what string, got int, want *int) {
	t.Helper()
	if want != nil && got != *want {
		t.Errorf("%s: got %d, want %d", what, got, *want)
	}
}

func checkDiagnostics(t *testing.T, diags []diagnostics.Diagnostic, want []string) {
	t.Helper()
	for _, code := range want {
		found := false
		for _, d := range diags {
			if d.Code == code {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("diagnostic %s not reported, got %v", code, diags)
		}
	}
}

func TestScenariosExist(t *testing.T) {
	info, err := os.Stat(testutil.ScenariosDir)
	if err != nil {
		t.Fatalf("scenarios directory not found: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("scenarios path is not a directory: %s", testutil.ScenariosDir)
	}
}
