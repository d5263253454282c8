package stdlib

import (
	"github.com/thomasrohde/oscript/pkg/evaluator"
)

const variadic = -1

// RegisterDefaults adds all builtin functions.
func RegisterDefaults(r *Registry) {
	r.Register(Fn{Name: "typeof", MinArgs: 1, MaxArgs: 1, Execute: stdlibTypeof})

	// Math
	r.Register(Fn{Name: "sqrt", MinArgs: 1, MaxArgs: 1, Metered: true, Execute: stdlibSqrt})
	r.Register(Fn{Name: "ln", MinArgs: 1, MaxArgs: 1, Metered: true, Execute: stdlibLn})
	r.Register(Fn{Name: "abs", MinArgs: 1, MaxArgs: 1, Execute: stdlibAbs})
	r.Register(Fn{Name: "round", MinArgs: 1, MaxArgs: 2, Execute: rounding(evaluator.RoundHalfEven)})
	r.Register(Fn{Name: "ceil", MinArgs: 1, MaxArgs: 2, Execute: rounding(evaluator.RoundCeil)})
	r.Register(Fn{Name: "floor", MinArgs: 1, MaxArgs: 2, Execute: rounding(evaluator.RoundFloor)})
	r.Register(Fn{Name: "min", MinArgs: 1, MaxArgs: variadic, Execute: stdlibMin})
	r.Register(Fn{Name: "max", MinArgs: 1, MaxArgs: variadic, Execute: stdlibMax})
	r.Register(Fn{Name: "hypot", MinArgs: 1, MaxArgs: variadic, Metered: true, Execute: stdlibHypot})

	// Strings
	r.Register(Fn{Name: "substring", MinArgs: 2, MaxArgs: 3, Execute: stdlibSubstring})
	r.Register(Fn{Name: "index_of", MinArgs: 2, MaxArgs: 2, Execute: stdlibIndexOf})
	r.Register(Fn{Name: "starts_with", MinArgs: 2, MaxArgs: 2, Execute: stdlibStartsWith})
	r.Register(Fn{Name: "ends_with", MinArgs: 2, MaxArgs: 2, Execute: stdlibEndsWith})
	r.Register(Fn{Name: "contains", MinArgs: 2, MaxArgs: 2, Execute: stdlibContains})
	r.Register(Fn{Name: "length", MinArgs: 1, MaxArgs: 1, Execute: stdlibLength})

	// Dates
	r.Register(Fn{Name: "parse_date", MinArgs: 1, MaxArgs: 1, Execute: stdlibParseDate})
	r.Register(Fn{Name: "timestamp_to_string", MinArgs: 1, MaxArgs: 2, Execute: stdlibTimestampToString})

	// JSON and objects
	r.Register(Fn{Name: "json_parse", MinArgs: 1, MaxArgs: 1, Metered: true, Execute: stdlibJSONParse})
	r.Register(Fn{Name: "json_stringify", MinArgs: 1, MaxArgs: 1, Execute: stdlibJSONStringify})
	r.Register(Fn{Name: "array_length", MinArgs: 1, MaxArgs: 1, Execute: stdlibArrayLength})

	// Hashing
	r.Register(Fn{Name: "number_from_seed", MinArgs: 1, MaxArgs: 3, Metered: true, Execute: stdlibNumberFromSeed})
	r.Register(Fn{Name: "sha256", MinArgs: 1, MaxArgs: 1, Metered: true, Execute: stdlibSha256})

	// Predicates
	r.Register(Fn{Name: "is_integer", MinArgs: 1, MaxArgs: 1, Execute: stdlibIsInteger})
	r.Register(Fn{Name: "is_array", MinArgs: 1, MaxArgs: 1, Execute: stdlibIsArray})
	r.Register(Fn{Name: "is_assoc", MinArgs: 1, MaxArgs: 1, Execute: stdlibIsAssoc})
	r.Register(Fn{Name: "is_valid_address", MinArgs: 1, MaxArgs: 1, Execute: stdlibIsValidAddress})
	r.Register(Fn{Name: "is_aa", MinArgs: 1, MaxArgs: 1, Execute: stdlibIsAA})
	r.Register(Fn{Name: "is_valid_amount", MinArgs: 1, MaxArgs: 1, Execute: stdlibIsValidAmount})
	r.Register(Fn{Name: "is_valid_signed_package", MinArgs: 2, MaxArgs: 2, Metered: true, Execute: stdlibIsValidSignedPackage})
}

// typeof(anything) → "string" | "number" | "boolean" | "object"
func stdlibTypeof(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	return evaluator.NewString(evaluator.TypeName(args[0])), nil
}
