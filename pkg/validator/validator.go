// Package validator implements static checks of oscript programs and
// estimates their complexity without executing them.
package validator

import (
	"fmt"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/stdlib"
)

// Options configures validation.
type Options struct {
	Mode evaluator.Mode
	// MaxComplexity is the ceiling the estimate is checked against; zero or
	// less disables the check.
	MaxComplexity int
	// Functions resolves builtin names and arities; nil uses stdlib.Default().
	Functions *stdlib.Registry
}

// Result is the outcome of validating a program.
type Result struct {
	// Complexity is the largest number of charged operations on any path.
	Complexity int
	// CountOps is the number of charged operation sites in the program.
	CountOps    int
	Diagnostics []diagnostics.Diagnostic
}

// OK reports whether validation produced no diagnostics.
func (r *Result) OK() bool {
	return len(r.Diagnostics) == 0
}

// roundingFns take a literal decimal_places second argument.
var roundingFns = map[string]bool{"round": true, "ceil": true, "floor": true}

// locals tracks the $locals that may be assigned on some path.
type locals map[string]bool

func (l locals) clone() locals {
	out := make(locals, len(l))
	for k := range l {
		out[k] = true
	}
	return out
}

type validator struct {
	opts     Options
	diags    []diagnostics.Diagnostic
	countOps int
}

// Validate performs static analysis on a program.
func Validate(program *ast.Program, opts Options) *Result {
	if opts.Functions == nil {
		opts.Functions = stdlib.Default()
	}
	v := &validator{opts: opts}

	assigned := make(locals)
	complexity, terminated := v.validateBlock(program.Statements, assigned)
	if program.Result != nil {
		if terminated {
			span := program.Result.NodeSpan()
			v.addDiag(diagnostics.EReturnNotLast, "result expression follows a return", &span)
		}
		complexity += v.validateExpr(program.Result)
	}

	if opts.MaxComplexity > 0 && complexity > opts.MaxComplexity {
		v.addDiag(diagnostics.EComplexity,
			fmt.Sprintf("complexity %d exceeds the limit of %d", complexity, opts.MaxComplexity), nil)
	}
	return &Result{Complexity: complexity, CountOps: v.countOps, Diagnostics: v.diags}
}

func (v *validator) addDiag(code, msg string, span *ast.Span) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, span, ""))
}

// site records one charged operation and returns its cost.
func (v *validator) site() int {
	v.countOps++
	return 1
}

// validateBlock checks a statement list and returns its worst-case cost and
// whether every path through it ends in return or bounce.
func (v *validator) validateBlock(stmts []ast.Stmt, assigned locals) (int, bool) {
	total := 0
	for i, stmt := range stmts {
		if _, ok := stmt.(*ast.ReturnStmt); ok && i != len(stmts)-1 {
			span := stmt.NodeSpan()
			v.addDiag(diagnostics.EReturnNotLast, "return must be the last statement in its block", &span)
		}
		cost, terminated := v.validateStmt(stmt, assigned)
		total += cost
		if terminated {
			return total + v.unreachable(stmts[i+1:], assigned), true
		}
	}
	return total, false
}

// unreachable still checks statements that follow a terminating statement
// so their errors are reported, but they add no cost.
func (v *validator) unreachable(stmts []ast.Stmt, assigned locals) int {
	for _, stmt := range stmts {
		v.validateStmt(stmt, assigned.clone())
	}
	return 0
}

func (v *validator) validateStmt(stmt ast.Stmt, assigned locals) (int, bool) {
	switch s := stmt.(type) {
	case *ast.LocalAssign:
		cost := v.validateExpr(s.Value)
		if assigned[s.Name] {
			span := s.Span
			v.addDiag(diagnostics.ELocalReassign, fmt.Sprintf("local variable $%s may already be assigned", s.Name), &span)
		}
		assigned[s.Name] = true
		return cost, false

	case *ast.StateAssign:
		if v.opts.Mode != evaluator.ModeStateScript {
			span := s.Span
			v.addDiag(diagnostics.EMode, "state variables can be assigned only in the state script", &span)
		}
		cost := v.validateExpr(s.Key) + v.validateExpr(s.Value)
		return cost + v.site(), false

	case *ast.ResponseAssign:
		if v.opts.Mode == evaluator.ModeFormula {
			span := s.Span
			v.addDiag(diagnostics.EMode, "response variables are not available in formula mode", &span)
		}
		return v.validateExpr(s.Key) + v.validateExpr(s.Value), false

	case *ast.IfStmt:
		cond := v.validateExpr(s.Cond)
		thenLocals, elseLocals := assigned.clone(), assigned.clone()
		thenCost, thenDone := v.validateBlock(s.Then, thenLocals)
		elseCost, elseDone := v.validateBlock(s.Else, elseLocals)
		if !thenDone {
			for k := range thenLocals {
				assigned[k] = true
			}
		}
		if !elseDone {
			for k := range elseLocals {
				assigned[k] = true
			}
		}
		return cond + max(thenCost, elseCost), thenDone && elseDone

	case *ast.ReturnStmt:
		if s.Value == nil {
			return 0, true
		}
		return v.validateExpr(s.Value), true

	case *ast.BounceStmt:
		return v.validateExpr(s.Message), true
	}
	return 0, false
}

func (v *validator) validateExprs(exprs ...ast.Expr) int {
	total := 0
	for _, e := range exprs {
		total += v.validateExpr(e)
	}
	return total
}

func (v *validator) validateCriteria(kind string, list []ast.Criterion, span ast.Span) int {
	if msg, where := evaluator.CheckCriteria(kind, list); msg != "" {
		if where == nil {
			where = &span
		}
		v.addDiag(diagnostics.ECriteria, msg, where)
	}
	total := 0
	for _, c := range list {
		total += v.validateExpr(c.Value)
	}
	return total
}

func (v *validator) requireMode(ok bool, what string, span ast.Span) {
	if !ok {
		v.addDiag(diagnostics.EMode, fmt.Sprintf("%s is not available in %s mode", what, v.opts.Mode), &span)
	}
}

// validateExpr checks an expression and returns its worst-case cost.
func (v *validator) validateExpr(expr ast.Expr) int {
	if expr == nil {
		return 0
	}

	switch e := expr.(type) {
	case *ast.NumLiteral, *ast.BoolLiteral, *ast.StrLiteral, *ast.LocalRef:
		return 0

	case *ast.Constant:
		if e.Name == "response_unit" {
			v.requireMode(v.opts.Mode == evaluator.ModeStateScript, "response_unit", e.Span)
		}
		return 0

	case *ast.StateVarRef:
		v.requireMode(v.opts.Mode != evaluator.ModeFormula, "var[...]", e.Span)
		return v.validateExprs(e.Address, e.Key) + v.site()

	case *ast.TriggerField:
		v.requireMode(v.opts.Mode != evaluator.ModeFormula, "trigger."+e.Field, e.Span)
		return 0

	case *ast.TriggerOutput:
		v.requireMode(v.opts.Mode != evaluator.ModeFormula, "trigger.output", e.Span)
		return v.validateCriteria(evaluator.SearchTriggerOutput, e.Criteria, e.Span)

	case *ast.DataFeed:
		kind := evaluator.SearchDataFeed
		if e.In {
			kind = evaluator.SearchInDataFeed
		}
		return v.validateCriteria(kind, e.Criteria, e.Span) + v.site()

	case *ast.Attestation:
		return v.validateCriteria(evaluator.SearchAttestation, e.Criteria, e.Span) + v.validateExpr(e.Field) + v.site()

	case *ast.UnitIO:
		kind := evaluator.SearchInput
		if e.Output {
			kind = evaluator.SearchOutput
		}
		v.requireMode(v.opts.Mode == evaluator.ModeFormula, kind+"[[...]]", e.Span)
		return v.validateCriteria(kind, e.Criteria, e.Span)

	case *ast.AssetInfo:
		if lit, ok := e.Field.(*ast.StrLiteral); ok && !evaluator.AssetFields[lit.Value] {
			span := lit.Span
			v.addDiag(diagnostics.EField, fmt.Sprintf("unknown asset field '%s'", lit.Value), &span)
		}
		return v.validateExprs(e.Asset, e.Field) + v.site()

	case *ast.Balance:
		return v.validateExprs(e.Address, e.Asset) + v.site()

	case *ast.UnaryExpr:
		return v.validateExpr(e.Operand)

	case *ast.BinaryExpr:
		return v.validateExprs(e.Left, e.Right)

	case *ast.TernaryExpr:
		return v.validateExpr(e.Cond) + max(v.validateExpr(e.Then), v.validateExpr(e.Else))

	case *ast.CallExpr:
		return v.validateCall(e)

	case *ast.FieldAccess:
		return v.validateExpr(e.Object)

	case *ast.IndexAccess:
		return v.validateExprs(e.Object, e.Index)
	}
	return 0
}

func (v *validator) validateCall(e *ast.CallExpr) int {
	cost := v.validateExprs(e.Args...)
	fn := v.opts.Functions.Get(e.Name)
	if fn == nil {
		span := e.Span
		v.addDiag(diagnostics.EUnknownFn, fmt.Sprintf("unknown function '%s'", e.Name), &span)
		return cost
	}
	n := len(e.Args)
	if n < fn.MinArgs || (fn.MaxArgs >= 0 && n > fn.MaxArgs) {
		span := e.Span
		v.addDiag(diagnostics.EArgs, fmt.Sprintf("%s: expected %s arguments, got %d", e.Name, arity(fn), n), &span)
	}
	if roundingFns[e.Name] && n == 2 {
		if lit, ok := e.Args[1].(*ast.NumLiteral); ok && (lit.Value > evaluator.MaxDecimalPlaces || lit.Value != float64(int(lit.Value))) {
			span := lit.Span
			v.addDiag(diagnostics.EArgs, fmt.Sprintf("%s: decimal places must be an integer between 0 and %d", e.Name, evaluator.MaxDecimalPlaces), &span)
		}
	}
	if fn.Metered {
		cost += v.site()
	}
	return cost
}

func arity(fn *stdlib.Fn) string {
	switch {
	case fn.MaxArgs < 0:
		return fmt.Sprintf("at least %d", fn.MinArgs)
	case fn.MinArgs == fn.MaxArgs:
		return fmt.Sprintf("%d", fn.MinArgs)
	}
	return fmt.Sprintf("%d to %d", fn.MinArgs, fn.MaxArgs)
}
