package evaluator

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/thomasrohde/oscript/pkg/ast"
)

var numericString = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?$`)

// IsNumericString reports whether s is a decimal number literal that
// arithmetic accepts.
func IsNumericString(s string) bool {
	return numericString.MatchString(s)
}

// Normalize rounds n to 15 significant digits, the precision oscript
// arithmetic carries.
func Normalize(n float64) float64 {
	if n == 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return n
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(n, 'g', 15, 64), 64)
	if err != nil {
		return n
	}
	return r
}

// ToNumber coerces a value for arithmetic. Booleans become 1/0, strings must
// be numeric literals and objects are rejected.
func ToNumber(v Value) (float64, error) {
	switch val := v.(type) {
	case Number:
		return val.Value, nil
	case Bool:
		if val.Value {
			return 1, nil
		}
		return 0, nil
	case String:
		if !IsNumericString(val.Value) {
			return 0, typeErrorf("string %q is not a number", val.Value)
		}
		f, err := strconv.ParseFloat(val.Value, 64)
		if err != nil || math.IsInf(f, 0) {
			return 0, typeErrorf("string %q is not a finite number", val.Value)
		}
		return f, nil
	}
	return 0, typeErrorf("cannot convert %s to number", TypeName(v))
}

// ToString coerces a value for concatenation.
func ToString(v Value) (string, error) {
	switch val := v.(type) {
	case String:
		return val.Value, nil
	case Number:
		return FormatNumber(val.Value), nil
	case Bool:
		if val.Value {
			return "true", nil
		}
		return "false", nil
	}
	return "", typeErrorf("cannot convert %s to string", TypeName(v))
}

// FormatNumber renders a number canonically: integers without a decimal
// point, otherwise the shortest digits of the 15-digit value, with exponent
// form outside [1e-7, 1e21).
func FormatNumber(n float64) string {
	if n == 0 {
		return "0"
	}
	n = Normalize(n)
	abs := math.Abs(n)
	if abs >= 1e-7 && abs < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := strconv.FormatFloat(n, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}

func finite(n float64) (Value, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, typeErrorf("result is not a finite number")
	}
	return NewNumber(Normalize(n)), nil
}

// Arithmetic applies + - * / % ^ after coercing both operands to numbers.
func Arithmetic(op ast.BinaryOp, left, right Value) (Value, error) {
	a, err := ToNumber(left)
	if err != nil {
		return nil, err
	}
	b, err := ToNumber(right)
	if err != nil {
		return nil, err
	}
	switch op {
	case ast.OpAdd:
		return finite(a + b)
	case ast.OpSub:
		return finite(a - b)
	case ast.OpMul:
		return finite(a * b)
	case ast.OpDiv:
		if b == 0 {
			return nil, typeErrorf("division by zero")
		}
		return finite(a / b)
	case ast.OpMod:
		if b == 0 {
			return nil, typeErrorf("modulo by zero")
		}
		return finite(math.Mod(a, b))
	case ast.OpPow:
		return finite(math.Pow(a, b))
	}
	return nil, typeErrorf("unknown arithmetic operator %s", op)
}

// Concat joins the string forms of both operands.
func Concat(left, right Value) (Value, error) {
	a, err := ToString(left)
	if err != nil {
		return nil, err
	}
	b, err := ToString(right)
	if err != nil {
		return nil, err
	}
	return NewString(a + b), nil
}

// Compare evaluates a comparison operator.
func Compare(op ast.BinaryOp, left, right Value) (bool, error) {
	equality := op == ast.OpEqEq || op == ast.OpNeq

	_, lb := left.(Bool)
	_, rb := right.(Bool)
	if lb || rb {
		if !equality {
			return false, typeErrorf("booleans cannot be ordered")
		}
		return (Truthy(left) == Truthy(right)) == (op == ast.OpEqEq), nil
	}

	lo, lObj := left.(Object)
	ro, rObj := right.(Object)
	if lObj || rObj {
		if !lObj || !rObj {
			return false, typeErrorf("cannot compare object with %s", TypeName(pick(lObj, right, left)))
		}
		if !equality {
			return false, typeErrorf("objects cannot be ordered")
		}
		return (CanonicalJSON(lo) == CanonicalJSON(ro)) == (op == ast.OpEqEq), nil
	}

	ls, lStr := left.(String)
	rs, rStr := right.(String)
	if lStr && rStr {
		return ordered(op, strings.Compare(ls.Value, rs.Value)), nil
	}

	a, err := ToNumber(left)
	if err != nil {
		return false, err
	}
	b, err := ToNumber(right)
	if err != nil {
		return false, err
	}
	switch {
	case a < b:
		return ordered(op, -1), nil
	case a > b:
		return ordered(op, 1), nil
	}
	return ordered(op, 0), nil
}

func pick(cond bool, a, b Value) Value {
	if cond {
		return a
	}
	return b
}

func ordered(op ast.BinaryOp, c int) bool {
	switch op {
	case ast.OpEqEq:
		return c == 0
	case ast.OpNeq:
		return c != 0
	case ast.OpLt:
		return c < 0
	case ast.OpLtEq:
		return c <= 0
	case ast.OpGt:
		return c > 0
	case ast.OpGtEq:
		return c >= 0
	}
	return false
}

// RoundMode selects the direction of decimal rounding.
type RoundMode int

const (
	RoundHalfEven RoundMode = iota
	RoundCeil
	RoundFloor
)

// MaxDecimalPlaces is the largest precision round, ceil and floor accept.
const MaxDecimalPlaces = 15

// RoundDecimal rounds n to dp decimal places working on its decimal digits,
// so round(2.675, 2) sees 2.675 rather than its binary approximation.
func RoundDecimal(n float64, dp int, mode RoundMode) (float64, error) {
	if dp < 0 || dp > MaxDecimalPlaces {
		return 0, typeErrorf("decimal places must be an integer between 0 and %d, got %d", MaxDecimalPlaces, dp)
	}
	n = Normalize(n)
	s := strconv.FormatFloat(n, 'f', -1, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) <= dp {
		return n, nil
	}

	digits := []byte(intPart + frac[:dp])
	rest := frac[dp:]
	nonZeroRest := strings.Trim(rest, "0") != ""

	up := false
	switch mode {
	case RoundHalfEven:
		switch {
		case rest[0] > '5':
			up = true
		case rest[0] == '5':
			if strings.Trim(rest[1:], "0") != "" {
				up = true
			} else {
				up = (digits[len(digits)-1]-'0')%2 == 1
			}
		}
	case RoundCeil:
		up = !neg && nonZeroRest
	case RoundFloor:
		up = neg && nonZeroRest
	}

	if up {
		i := len(digits) - 1
		for ; i >= 0; i-- {
			if digits[i] == '9' {
				digits[i] = '0'
				continue
			}
			digits[i]++
			break
		}
		if i < 0 {
			digits = append([]byte{'1'}, digits...)
		}
	}

	cut := len(digits) - dp
	out := string(digits[:cut])
	if dp > 0 {
		out += "." + string(digits[cut:])
	}
	r, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, typeErrorf("cannot round %s", FormatNumber(n))
	}
	if neg {
		r = -r
	}
	if r == 0 {
		r = 0
	}
	return r, nil
}
