package stdlib

import (
	"fmt"
	"math"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

func number(v evaluator.Value) (float64, error) {
	return evaluator.ToNumber(v)
}

func result(n float64) (evaluator.Value, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("result is not a finite number")
	}
	return evaluator.NewNumber(evaluator.Normalize(n)), nil
}

// sqrt(number)
func stdlibSqrt(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	n, err := number(args[0])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("square root of negative number %s", evaluator.FormatNumber(n))
	}
	return result(math.Sqrt(n))
}

// ln(number)
func stdlibLn(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	n, err := number(args[0])
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("logarithm of non-positive number %s", evaluator.FormatNumber(n))
	}
	return result(math.Log(n))
}

// abs(number)
func stdlibAbs(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	n, err := number(args[0])
	if err != nil {
		return nil, err
	}
	return evaluator.NewNumber(math.Abs(n)), nil
}

// round|ceil|floor(number [, decimal_places])
func rounding(mode evaluator.RoundMode) func(evaluator.CallEnv, []evaluator.Value) (evaluator.Value, error) {
	return func(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
		n, err := number(args[0])
		if err != nil {
			return nil, err
		}
		dp := 0
		if len(args) == 2 {
			d, err := number(args[1])
			if err != nil {
				return nil, err
			}
			if d != math.Trunc(d) {
				return nil, fmt.Errorf("decimal places must be an integer, got %s", evaluator.FormatNumber(d))
			}
			if d < 0 || d > evaluator.MaxDecimalPlaces {
				return nil, fmt.Errorf("decimal places must be between 0 and %d, got %s", evaluator.MaxDecimalPlaces, evaluator.FormatNumber(d))
			}
			dp = int(d)
		}
		r, err := evaluator.RoundDecimal(n, dp, mode)
		if err != nil {
			return nil, err
		}
		return evaluator.NewNumber(r), nil
	}
}

func extremum(args []evaluator.Value, better func(a, b float64) bool) (evaluator.Value, error) {
	best, err := number(args[0])
	if err != nil {
		return nil, err
	}
	for _, a := range args[1:] {
		n, err := number(a)
		if err != nil {
			return nil, err
		}
		if better(n, best) {
			best = n
		}
	}
	return evaluator.NewNumber(best), nil
}

// min(number1, [number2, ...])
func stdlibMin(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	return extremum(args, func(a, b float64) bool { return a < b })
}

// max(number1, [number2, ...])
func stdlibMax(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	return extremum(args, func(a, b float64) bool { return a > b })
}

// hypot(number1, [number2, ...]). Booleans count as 1/0 and objects as 1;
// strings are rejected.
func stdlibHypot(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	h := 0.0
	for _, a := range args {
		var n float64
		switch v := a.(type) {
		case evaluator.Number:
			n = v.Value
		case evaluator.Bool:
			if v.Value {
				n = 1
			}
		case evaluator.Object:
			n = 1
		default:
			return nil, fmt.Errorf("hypot argument must be a number, got %s", evaluator.TypeName(a))
		}
		h = math.Hypot(h, n)
	}
	return result(h)
}
