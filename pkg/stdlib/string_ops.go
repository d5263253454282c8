package stdlib

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

func str(v evaluator.Value) (string, error) {
	return evaluator.ToString(v)
}

func twoStrings(args []evaluator.Value) (string, string, error) {
	a, err := str(args[0])
	if err != nil {
		return "", "", err
	}
	b, err := str(args[1])
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func integer(v evaluator.Value, what string) (int, error) {
	n, err := number(v)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("%s must be an integer, got %s", what, evaluator.FormatNumber(n))
	}
	return int(n), nil
}

// substring(string, start_index [, length]). Indexes count characters; a
// negative start counts from the end.
func stdlibSubstring(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, err := str(args[0])
	if err != nil {
		return nil, err
	}
	runes := []rune(s)
	start, err := integer(args[1], "start_index")
	if err != nil {
		return nil, err
	}
	if start < 0 {
		start += len(runes)
		if start < 0 {
			start = 0
		}
	}
	if start > len(runes) {
		start = len(runes)
	}
	end := len(runes)
	if len(args) == 3 {
		length, err := integer(args[2], "length")
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, fmt.Errorf("length must not be negative")
		}
		if start+length < end {
			end = start + length
		}
	}
	return evaluator.NewString(string(runes[start:end])), nil
}

// index_of(string, search_string) → character index or -1
func stdlibIndexOf(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, sub, err := twoStrings(args)
	if err != nil {
		return nil, err
	}
	i := strings.Index(s, sub)
	if i < 0 {
		return evaluator.NewNumber(-1), nil
	}
	return evaluator.NewNumber(float64(utf8.RuneCountInString(s[:i]))), nil
}

// starts_with(string, prefix)
func stdlibStartsWith(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, prefix, err := twoStrings(args)
	if err != nil {
		return nil, err
	}
	return evaluator.NewBool(strings.HasPrefix(s, prefix)), nil
}

// ends_with(string, suffix)
func stdlibEndsWith(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, suffix, err := twoStrings(args)
	if err != nil {
		return nil, err
	}
	return evaluator.NewBool(strings.HasSuffix(s, suffix)), nil
}

// contains(string, search_string)
func stdlibContains(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, sub, err := twoStrings(args)
	if err != nil {
		return nil, err
	}
	return evaluator.NewBool(strings.Contains(s, sub)), nil
}

// length(string) → number of characters
func stdlibLength(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, err := str(args[0])
	if err != nil {
		return nil, err
	}
	return evaluator.NewNumber(float64(utf8.RuneCountInString(s))), nil
}
