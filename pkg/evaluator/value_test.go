package evaluator_test

import (
	"math"
	"testing"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/evaluator"
)

func TestTruthiness(t *testing.T) {
	tests := []struct {
		value    evaluator.Value
		expected bool
	}{
		{evaluator.NewBool(false), false},
		{evaluator.NewBool(true), true},
		{evaluator.NewNumber(0), false},
		{evaluator.NewNumber(1), true},
		{evaluator.NewNumber(-1), true},
		{evaluator.NewString(""), false},
		{evaluator.NewString("0"), true},
		{evaluator.NewString("false"), true},
		{evaluator.NewObject(nil), true},
		{evaluator.NewArray(nil), true},
		{nil, false},
	}
	for _, tt := range tests {
		if got := evaluator.Truthy(tt.value); got != tt.expected {
			t.Errorf("Truthy(%s) = %v, want %v", evaluator.CanonicalJSON(tt.value), got, tt.expected)
		}
	}
}

func TestNegativeZeroFolds(t *testing.T) {
	n := evaluator.NewNumber(math.Copysign(0, -1)).(evaluator.Number)
	if math.Signbit(n.Value) {
		t.Errorf("negative zero was not folded")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{-42, "-42"},
		{1.5, "1.5"},
		{0.1 + 0.2, "0.3"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1.5e-7, "0.00000015"},
		{1e-8, "1e-8"},
		{123456789.123456789, "123456789.123457"},
		{1.0 / 3, "0.333333333333333"},
	}
	for _, tt := range tests {
		if got := evaluator.FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsNumericString(t *testing.T) {
	for s, want := range map[string]bool{
		"1": true, "-1": true, "1.5": true, "1e10": true, "2.5E-3": true,
		"": false, " 1": false, "1.": false, ".5": false, "+1": false, "0x10": false, "abc": false,
	} {
		if got := evaluator.IsNumericString(s); got != want {
			t.Errorf("IsNumericString(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestObjectKeysAndDuplicates(t *testing.T) {
	obj := evaluator.NewObject([]evaluator.KeyValue{
		{Key: "b", Value: evaluator.NewNumber(1)},
		{Key: "a", Value: evaluator.NewNumber(2)},
		{Key: "b", Value: evaluator.NewNumber(3)},
	}).(evaluator.Object)
	if keys := obj.Keys(); len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("keys = %v", keys)
	}
	v, ok := obj.Get("b")
	if !ok || v.(evaluator.Number).Value != 3 {
		t.Errorf("b = %v", v)
	}
	if _, ok := obj.Get("c"); ok {
		t.Error("missing key found")
	}

	arr := evaluator.NewArray([]evaluator.Value{evaluator.NewString("x"), evaluator.NewString("y")}).(evaluator.Object)
	if v, ok := arr.Get("1"); !ok || v.(evaluator.String).Value != "y" {
		t.Errorf("arr[1] = %v", v)
	}
}

func TestCanonicalJSON(t *testing.T) {
	v, err := evaluator.ParseJSONToValue([]byte(`{"z":1,"a":{"y":[true,null,"s"],"b":2.50}}`))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := evaluator.CanonicalJSON(v), `{"a":{"b":2.5,"y":[true,false,"s"]},"z":1}`; got != want {
		t.Errorf("canonical = %s, want %s", got, want)
	}
	if got, want := evaluator.ValueToJSONString(v), `{"z":1,"a":{"y":[true,false,"s"],"b":2.5}}`; got != want {
		t.Errorf("ordered = %s, want %s", got, want)
	}
}

func TestParseJSONRejects(t *testing.T) {
	for _, in := range []string{`{"a":1} extra`, `{"a":`, `1e999`, ``} {
		if _, err := evaluator.ParseJSONToValue([]byte(in)); err == nil {
			t.Errorf("ParseJSONToValue(%q) should fail", in)
		}
	}
}

func TestCompareObjects(t *testing.T) {
	a, _ := evaluator.ParseJSONToValue([]byte(`{"x":1,"y":2}`))
	b, _ := evaluator.ParseJSONToValue([]byte(`{"y":2,"x":1}`))
	eq, err := evaluator.Compare(ast.OpEqEq, a, b)
	if err != nil || !eq {
		t.Errorf("objects with the same pairs should be equal: %v %v", eq, err)
	}
	if _, err := evaluator.Compare(ast.OpLt, a, b); err == nil {
		t.Error("ordering objects should fail")
	}
	if _, err := evaluator.Compare(ast.OpEqEq, a, evaluator.NewNumber(1)); err == nil {
		t.Error("comparing an object with a number should fail")
	}
}

func TestRoundDecimal(t *testing.T) {
	tests := []struct {
		n    float64
		dp   int
		mode evaluator.RoundMode
		want float64
	}{
		{2.5, 0, evaluator.RoundHalfEven, 2},
		{3.5, 0, evaluator.RoundHalfEven, 4},
		{0.125, 2, evaluator.RoundHalfEven, 0.12},
		{0.135, 2, evaluator.RoundHalfEven, 0.14},
		{99.95, 1, evaluator.RoundHalfEven, 100},
		{1.01, 0, evaluator.RoundCeil, 2},
		{-1.01, 0, evaluator.RoundCeil, -1},
		{1.99, 0, evaluator.RoundFloor, 1},
		{-1.01, 0, evaluator.RoundFloor, -2},
		{-0.4, 0, evaluator.RoundHalfEven, 0},
		{5, 3, evaluator.RoundHalfEven, 5},
	}
	for _, tt := range tests {
		got, err := evaluator.RoundDecimal(tt.n, tt.dp, tt.mode)
		if err != nil {
			t.Fatalf("RoundDecimal(%v, %d): %v", tt.n, tt.dp, err)
		}
		if got != tt.want {
			t.Errorf("RoundDecimal(%v, %d, %d) = %v, want %v", tt.n, tt.dp, tt.mode, got, tt.want)
		}
	}
	if _, err := evaluator.RoundDecimal(1.23456, 16, evaluator.RoundHalfEven); err == nil {
		t.Error("expected error for 16 decimal places")
	}
}

func TestResponseVarsScalar(t *testing.T) {
	r := evaluator.NewResponseVars()
	r.Set("a", evaluator.NewNumber(1))
	r.Set("o", evaluator.NewArray(nil))
	r.Set("a", evaluator.NewString("x"))
	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}
	v, _ := r.Get("o")
	if b, ok := v.(evaluator.Bool); !ok || !b.Value {
		t.Errorf("object should be stored as true, got %v", v)
	}
	data, err := r.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"responseVars":{"a":"x","o":true}}`; string(data) != want {
		t.Errorf("got %s", data)
	}
}

func TestMeter(t *testing.T) {
	m := evaluator.NewMeter(2)
	if err := m.Charge(evaluator.OpBalance, ast.Span{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Charge(evaluator.OpBalance, ast.Span{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Charge(evaluator.OpAsset, ast.Span{}); err == nil {
		t.Fatal("third charge should exceed the ceiling")
	}
	charges := m.Charges()
	charges[evaluator.OpBalance] = 100
	if m.Charges()[evaluator.OpBalance] != 2 {
		t.Error("Charges should return a copy")
	}
	if m.Complexity() != 3 || m.CountOps() != 3 {
		t.Errorf("complexity %d countOps %d", m.Complexity(), m.CountOps())
	}
}

func TestEnvSingleAssignment(t *testing.T) {
	env := evaluator.NewEnv()
	if !env.Assign("x", evaluator.NewNumber(1)) {
		t.Fatal("first assignment failed")
	}
	if env.Assign("x", evaluator.NewNumber(2)) {
		t.Error("second assignment should be refused")
	}
	v, _ := env.Get("x")
	if v.(evaluator.Number).Value != 1 {
		t.Errorf("x = %v", v)
	}
}
