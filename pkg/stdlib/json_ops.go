package stdlib

import (
	"fmt"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

// json_parse(string) → value, or false when the input is not JSON
func stdlibJSONParse(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, err := str(args[0])
	if err != nil {
		return nil, err
	}
	v, err := evaluator.ParseJSONToValue([]byte(s))
	if err != nil {
		return evaluator.NewBool(false), nil
	}
	return v, nil
}

// json_stringify(value) → JSON with object keys sorted
func stdlibJSONStringify(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s := evaluator.CanonicalJSON(args[0])
	if s == "" {
		return nil, fmt.Errorf("value cannot be encoded as JSON")
	}
	return evaluator.NewString(s), nil
}

// array_length(object) → number of elements of an array
func stdlibArrayLength(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	obj, ok := args[0].(evaluator.Object)
	if !ok || !obj.Array {
		return nil, fmt.Errorf("argument must be an array, got %s", evaluator.TypeName(args[0]))
	}
	return evaluator.NewNumber(float64(obj.Len())), nil
}
