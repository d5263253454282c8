package stdlib_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/ledger"
	"github.com/thomasrohde/oscript/pkg/stdlib"
)

const aaAddress = "PVMCXUZBEHCFWOLXUDQVNCQZ476LNEW4"

func num(n float64) evaluator.Value  { return evaluator.NewNumber(n) }
func s(v string) evaluator.Value     { return evaluator.NewString(v) }
func boolean(b bool) evaluator.Value { return evaluator.NewBool(b) }

func call(t *testing.T, name string, args ...evaluator.Value) (evaluator.Value, error) {
	t.Helper()
	fn := stdlib.Default().Get(name)
	if fn == nil {
		t.Fatalf("builtin %s is not registered", name)
	}
	mem := ledger.NewMemory()
	mem.AddAA(aaAddress)
	env := evaluator.CallEnv{
		Ctx:    context.Background(),
		Ledger: mem,
		Verifier: ledger.VerifierFunc(func(_ context.Context, pkg json.RawMessage, address string) (bool, error) {
			return address == aaAddress, nil
		}),
	}
	return fn.Execute(env, args)
}

func mustCall(t *testing.T, name string, args ...evaluator.Value) evaluator.Value {
	t.Helper()
	v, err := call(t, name, args...)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return v
}

func expectValue(t *testing.T, got, want evaluator.Value) {
	t.Helper()
	if evaluator.CanonicalJSON(got) != evaluator.CanonicalJSON(want) || evaluator.TypeName(got) != evaluator.TypeName(want) {
		t.Errorf("got %s (%s), want %s (%s)",
			evaluator.CanonicalJSON(got), evaluator.TypeName(got),
			evaluator.CanonicalJSON(want), evaluator.TypeName(want))
	}
}

func TestRegistryMetering(t *testing.T) {
	metered := map[string]bool{
		"sqrt": true, "ln": true, "hypot": true, "number_from_seed": true,
		"sha256": true, "json_parse": true, "is_valid_signed_package": true,
	}
	reg := stdlib.Default()
	for _, name := range reg.Names() {
		if got := reg.Get(name).Metered; got != metered[name] {
			t.Errorf("%s: metered = %v, want %v", name, got, metered[name])
		}
	}
	if len(reg.ExecMap()) != len(reg.Names()) {
		t.Errorf("ExecMap size mismatch")
	}
}

func TestRounding(t *testing.T) {
	tests := []struct {
		fn   string
		args []evaluator.Value
		want float64
	}{
		{"round", []evaluator.Value{num(2.5)}, 2},
		{"round", []evaluator.Value{num(3.5)}, 4},
		{"round", []evaluator.Value{num(2.5), num(0)}, 2},
		{"round", []evaluator.Value{num(-2.5)}, -2},
		{"round", []evaluator.Value{num(1.005), num(2)}, 1},
		{"round", []evaluator.Value{num(1.015), num(2)}, 1.02},
		{"round", []evaluator.Value{num(1.23456), num(3)}, 1.235},
		{"round", []evaluator.Value{num(9.995), num(2)}, 10},
		{"round", []evaluator.Value{s("2.45"), num(1)}, 2.4},
		{"ceil", []evaluator.Value{num(1.21), num(1)}, 1.3},
		{"ceil", []evaluator.Value{num(-1.29), num(1)}, -1.2},
		{"ceil", []evaluator.Value{num(2)}, 2},
		{"floor", []evaluator.Value{num(1.29), num(1)}, 1.2},
		{"floor", []evaluator.Value{num(-1.21), num(1)}, -1.3},
		{"floor", []evaluator.Value{boolean(true)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			expectValue(t, mustCall(t, tt.fn, tt.args...), num(tt.want))
		})
	}
}

func TestRoundingRejectsBadPrecision(t *testing.T) {
	for _, dp := range []float64{16, -1, 1.5} {
		if _, err := call(t, "round", num(1.23456), num(dp)); err == nil {
			t.Errorf("round(1.23456, %v) should fail", dp)
		}
	}
	if _, err := call(t, "round", s("abc")); err == nil {
		t.Error("round of a non-numeric string should fail")
	}
}

func TestMath(t *testing.T) {
	expectValue(t, mustCall(t, "sqrt", num(16)), num(4))
	expectValue(t, mustCall(t, "abs", num(-3)), num(3))
	expectValue(t, mustCall(t, "min", num(3), s("2"), num(5)), num(2))
	expectValue(t, mustCall(t, "max", num(3), boolean(true), num(5)), num(5))
	expectValue(t, mustCall(t, "hypot", num(3), num(4)), num(5))
	expectValue(t, mustCall(t, "hypot", num(1e200), num(1e200)), num(1.4142135623731e200))
	expectValue(t, mustCall(t, "ln", num(1)), num(0))

	if _, err := call(t, "sqrt", num(-1)); err == nil {
		t.Error("sqrt(-1) should fail")
	}
	if _, err := call(t, "ln", num(0)); err == nil {
		t.Error("ln(0) should fail")
	}
	if _, err := call(t, "hypot", s("3")); err == nil {
		t.Error("hypot of a string should fail")
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		fn   string
		args []evaluator.Value
		want evaluator.Value
	}{
		{"substring", []evaluator.Value{s("hello world"), num(6)}, s("world")},
		{"substring", []evaluator.Value{s("hello world"), num(0), num(5)}, s("hello")},
		{"substring", []evaluator.Value{s("hello"), num(-3)}, s("llo")},
		{"substring", []evaluator.Value{s("hello"), num(-10)}, s("hello")},
		{"substring", []evaluator.Value{s("hello"), num(10)}, s("")},
		{"index_of", []evaluator.Value{s("hello"), s("ll")}, num(2)},
		{"index_of", []evaluator.Value{s("hello"), s("z")}, num(-1)},
		{"starts_with", []evaluator.Value{s("hello"), s("he")}, boolean(true)},
		{"ends_with", []evaluator.Value{s("hello"), s("he")}, boolean(false)},
		{"contains", []evaluator.Value{num(12345), s("234")}, boolean(true)},
		{"length", []evaluator.Value{s("héllo")}, num(5)},
		{"length", []evaluator.Value{num(1.5)}, num(3)},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			expectValue(t, mustCall(t, tt.fn, tt.args...), tt.want)
		})
	}
	if _, err := call(t, "length", evaluator.NewObject(nil)); err == nil {
		t.Error("length of an object should fail")
	}
}

func TestDates(t *testing.T) {
	expectValue(t, mustCall(t, "parse_date", s("2019-01-01")), num(1546300800))
	expectValue(t, mustCall(t, "parse_date", s("2019-01-01T00:00:10Z")), num(1546300810))
	expectValue(t, mustCall(t, "parse_date", s("not a date")), boolean(false))
	expectValue(t, mustCall(t, "timestamp_to_string", num(1546300810)), s("2019-01-01T00:00:10Z"))
	expectValue(t, mustCall(t, "timestamp_to_string", num(1546300810), s("date")), s("2019-01-01"))
	expectValue(t, mustCall(t, "timestamp_to_string", num(1546300810), s("time")), s("00:00:10"))
	if _, err := call(t, "timestamp_to_string", num(0), s("week")); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestJSON(t *testing.T) {
	v := mustCall(t, "json_parse", s(`{"b":[1,2,{"c":null}],"a":"x"}`))
	obj, ok := v.(evaluator.Object)
	if !ok {
		t.Fatalf("expected object, got %s", evaluator.TypeName(v))
	}
	if keys := obj.Keys(); keys[0] != "b" || keys[1] != "a" {
		t.Errorf("key order not preserved: %v", keys)
	}
	expectValue(t, mustCall(t, "json_stringify", v), s(`{"a":"x","b":[1,2,{"c":false}]}`))
	expectValue(t, mustCall(t, "json_parse", s("{broken")), boolean(false))
	expectValue(t, mustCall(t, "json_parse", num(42)), num(42))
	b, _ := obj.Get("b")
	expectValue(t, mustCall(t, "array_length", b), num(3))
	if _, err := call(t, "array_length", v); err == nil {
		t.Error("array_length of an assoc should fail")
	}
}

func TestHashing(t *testing.T) {
	expectValue(t, mustCall(t, "sha256", s("abc")), s("ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0="))

	frac := mustCall(t, "number_from_seed", s("seed")).(evaluator.Number).Value
	if frac < 0 || frac >= 1 {
		t.Errorf("fraction out of range: %v", frac)
	}
	again := mustCall(t, "number_from_seed", s("seed")).(evaluator.Number).Value
	if frac != again {
		t.Error("number_from_seed is not deterministic")
	}
	for i := 0; i < 20; i++ {
		n := mustCall(t, "number_from_seed", s(string(rune('a'+i))), num(5), num(7)).(evaluator.Number).Value
		if n < 5 || n > 7 || n != float64(int(n)) {
			t.Errorf("number_from_seed out of [5,7]: %v", n)
		}
	}
	if _, err := call(t, "number_from_seed", s("x"), num(5), num(1)); err == nil {
		t.Error("max < min should fail")
	}
}

func TestPredicates(t *testing.T) {
	arr := evaluator.NewArray([]evaluator.Value{num(1)})
	assoc := evaluator.NewObject([]evaluator.KeyValue{{Key: "a", Value: num(1)}})
	tests := []struct {
		fn   string
		arg  evaluator.Value
		want bool
	}{
		{"is_integer", num(3), true},
		{"is_integer", num(3.5), false},
		{"is_integer", s("3"), false},
		{"is_array", arr, true},
		{"is_array", assoc, false},
		{"is_assoc", assoc, true},
		{"is_assoc", s("x"), false},
		{"is_valid_address", s(aaAddress), true},
		{"is_valid_address", s("short"), false},
		{"is_valid_address", s("pvmcxuzbehcfwolxudqvncqz476lnew4"), false},
		{"is_aa", s(aaAddress), true},
		{"is_aa", s("2QHG44PZLJWD2H7C5ZIWH4NZZVB6QCC7"), false},
		{"is_valid_amount", num(1), true},
		{"is_valid_amount", num(0), false},
		{"is_valid_amount", num(1.5), false},
		{"is_valid_amount", num(9e15), true},
		{"is_valid_amount", num(9e15 + 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			expectValue(t, mustCall(t, tt.fn, tt.arg), boolean(tt.want))
		})
	}
}

func TestTypeof(t *testing.T) {
	expectValue(t, mustCall(t, "typeof", num(1)), s("number"))
	expectValue(t, mustCall(t, "typeof", s("")), s("string"))
	expectValue(t, mustCall(t, "typeof", boolean(false)), s("boolean"))
	expectValue(t, mustCall(t, "typeof", evaluator.NewArray(nil)), s("object"))
}

func TestIsValidSignedPackage(t *testing.T) {
	pkg := evaluator.NewObject([]evaluator.KeyValue{
		{Key: "signed_message", Value: s("hello")},
		{Key: "authors", Value: evaluator.NewArray(nil)},
	})
	expectValue(t, mustCall(t, "is_valid_signed_package", pkg, s(aaAddress)), boolean(true))
	expectValue(t, mustCall(t, "is_valid_signed_package", pkg, s("2QHG44PZLJWD2H7C5ZIWH4NZZVB6QCC7")), boolean(false))
	expectValue(t, mustCall(t, "is_valid_signed_package", s("junk"), s(aaAddress)), boolean(false))
	if _, err := call(t, "is_valid_signed_package", pkg, s("bad")); err == nil {
		t.Error("invalid address should fail")
	}
}
