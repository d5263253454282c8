package stdlib

import (
	"fmt"
	"math"
	"regexp"

	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
)

// MaxCap is the largest supply any asset may have.
const MaxCap = 9e15

var addressPattern = regexp.MustCompile(`^[A-Z2-7]{32}$`)

// IsValidAddress performs the syntactic address check: 32 base32 characters.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// is_integer(number)
func stdlibIsInteger(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	n, ok := args[0].(evaluator.Number)
	return evaluator.NewBool(ok && n.Value == math.Trunc(n.Value)), nil
}

// is_array(object)
func stdlibIsArray(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	obj, ok := args[0].(evaluator.Object)
	return evaluator.NewBool(ok && obj.Array), nil
}

// is_assoc(object)
func stdlibIsAssoc(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	obj, ok := args[0].(evaluator.Object)
	return evaluator.NewBool(ok && !obj.Array), nil
}

// is_valid_address(string)
func stdlibIsValidAddress(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, ok := args[0].(evaluator.String)
	return evaluator.NewBool(ok && IsValidAddress(s.Value)), nil
}

// is_aa(string)
func stdlibIsAA(env evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, ok := args[0].(evaluator.String)
	if !ok || !IsValidAddress(s.Value) || env.Ledger == nil {
		return evaluator.NewBool(false), nil
	}
	isAA, err := env.Ledger.IsAA(env.Ctx, s.Value)
	if err != nil {
		return nil, evaluator.Errorf(evaluator.KindInternal, diagnostics.ELedger, "ledger read failed: %v", err)
	}
	return evaluator.NewBool(isAA), nil
}

// is_valid_amount(number): positive integer not above MaxCap
func stdlibIsValidAmount(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	n, ok := args[0].(evaluator.Number)
	return evaluator.NewBool(ok && n.Value > 0 && n.Value <= MaxCap && n.Value == math.Trunc(n.Value)), nil
}

// is_valid_signed_package(signedPackage, address). A malformed package is
// false; an invalid address fails the call.
func stdlibIsValidSignedPackage(env evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	addr, ok := args[1].(evaluator.String)
	if !ok || !IsValidAddress(addr.Value) {
		return nil, fmt.Errorf("address must be a valid address")
	}
	pkg, ok := args[0].(evaluator.Object)
	if !ok || pkg.Array || env.Verifier == nil {
		return evaluator.NewBool(false), nil
	}
	if _, ok := pkg.Get("signed_message"); !ok {
		return evaluator.NewBool(false), nil
	}
	if _, ok := pkg.Get("authors"); !ok {
		return evaluator.NewBool(false), nil
	}
	raw, err := evaluator.ValueToJSON(pkg)
	if err != nil {
		return evaluator.NewBool(false), nil
	}
	valid, err := env.Verifier.VerifySignedPackage(env.Ctx, raw, addr.Value)
	if err != nil {
		return nil, evaluator.Errorf(evaluator.KindInternal, diagnostics.ELedger, "signature verification failed: %v", err)
	}
	return evaluator.NewBool(valid), nil
}
