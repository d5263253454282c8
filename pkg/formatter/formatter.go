// Package formatter implements the oscript source code formatter.
package formatter

import (
	"regexp"
	"strings"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/evaluator"
)

const indent = "  "

// Precedence levels (higher = tighter binding).
const (
	precTernary = iota + 1
	precOtherwise
	precOr
	precAnd
	precCompare
	precConcat
	precAdd
	precMul
	precUnary
	precPow
	precPostfix
)

var precedence = map[ast.BinaryOp]int{
	ast.OpOtherwise: precOtherwise,
	ast.OpOr:        precOr,
	ast.OpAnd:       precAnd,
	ast.OpEqEq:      precCompare, ast.OpNeq: precCompare,
	ast.OpGt: precCompare, ast.OpLt: precCompare, ast.OpGtEq: precCompare, ast.OpLtEq: precCompare,
	ast.OpConcat: precConcat,
	ast.OpAdd:    precAdd, ast.OpSub: precAdd,
	ast.OpMul: precMul, ast.OpDiv: precMul, ast.OpMod: precMul,
	ast.OpPow: precPow,
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func exprPrec(e ast.Expr) int {
	switch n := e.(type) {
	case *ast.TernaryExpr:
		return precTernary
	case *ast.BinaryExpr:
		return precedence[n.Op]
	case *ast.UnaryExpr:
		return precUnary
	}
	return precPostfix
}

func needsParens(child ast.Expr, parentOp ast.BinaryOp, isRight bool) bool {
	childPrec := exprPrec(child)
	parentPrec := precedence[parentOp]
	if parentOp == ast.OpPow {
		// (-2) ^ 2 and 2 ^ (-1) keep their grouping
		return childPrec <= precPow && !(isRight && childPrec == precPow)
	}
	if childPrec < parentPrec {
		return true
	}
	if childPrec == parentPrec {
		// left-associative, and comparisons do not chain
		return isRight || parentPrec == precCompare
	}
	return false
}

// Format pretty-prints an oscript AST back to source code.
func Format(program *ast.Program) string {
	var lines []string
	for _, s := range program.Statements {
		lines = append(lines, formatStmt(s, 0))
	}
	if program.Result != nil {
		lines = append(lines, formatExpr(program.Result))
	}
	return strings.Join(lines, "\n") + "\n"
}

// HasComments reports whether source contains // or /* */ comments, which
// the formatter does not preserve.
func HasComments(source string) bool {
	var quote byte
	for i := 0; i < len(source); i++ {
		ch := source[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '/' && i+1 < len(source) && (source[i+1] == '/' || source[i+1] == '*'):
			return true
		}
	}
	return false
}

func formatStmt(s ast.Stmt, depth int) string {
	prefix := strings.Repeat(indent, depth)
	switch stmt := s.(type) {
	case *ast.LocalAssign:
		return prefix + "$" + stmt.Name + " = " + formatExpr(stmt.Value) + ";"
	case *ast.StateAssign:
		return prefix + "var[" + formatExpr(stmt.Key) + "] " + string(stmt.Op) + " " + formatExpr(stmt.Value) + ";"
	case *ast.ResponseAssign:
		return prefix + "response[" + formatExpr(stmt.Key) + "] = " + formatExpr(stmt.Value) + ";"
	case *ast.IfStmt:
		return prefix + formatIf(stmt, depth)
	case *ast.ReturnStmt:
		if stmt.Value == nil {
			return prefix + "return;"
		}
		return prefix + "return " + formatExpr(stmt.Value) + ";"
	case *ast.BounceStmt:
		return prefix + "bounce(" + formatExpr(stmt.Message) + ");"
	}
	return ""
}

func formatIf(stmt *ast.IfStmt, depth int) string {
	prefix := strings.Repeat(indent, depth)
	out := "if (" + formatExpr(stmt.Cond) + ") {\n" + formatBlock(stmt.Then, depth) + prefix + "}"
	if len(stmt.Else) == 0 {
		return out
	}
	if len(stmt.Else) == 1 {
		if elseIf, ok := stmt.Else[0].(*ast.IfStmt); ok {
			return out + " else " + formatIf(elseIf, depth)
		}
	}
	return out + " else {\n" + formatBlock(stmt.Else, depth) + prefix + "}"
}

func formatBlock(stmts []ast.Stmt, depth int) string {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(formatStmt(s, depth+1))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatExpr(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.NumLiteral:
		if e.Raw != "" {
			return e.Raw
		}
		return evaluator.FormatNumber(e.Value)
	case *ast.BoolLiteral:
		if e.Value {
			return "true"
		}
		return "false"
	case *ast.StrLiteral:
		return quote(e.Value)
	case *ast.LocalRef:
		return "$" + e.Name
	case *ast.Constant:
		return e.Name
	case *ast.StateVarRef:
		if e.Address != nil {
			return "var[" + formatExpr(e.Address) + "][" + formatExpr(e.Key) + "]"
		}
		return "var[" + formatExpr(e.Key) + "]"
	case *ast.TriggerField:
		return "trigger." + e.Field
	case *ast.TriggerOutput:
		return "trigger.output" + formatCriteria(e.Criteria) + namedField(e.Field)
	case *ast.DataFeed:
		if e.In {
			return "in_data_feed" + formatCriteria(e.Criteria)
		}
		return "data_feed" + formatCriteria(e.Criteria)
	case *ast.Attestation:
		return "attestation" + formatCriteria(e.Criteria) + selector(e.Field)
	case *ast.UnitIO:
		name := "input"
		if e.Output {
			name = "output"
		}
		return name + formatCriteria(e.Criteria) + namedField(e.Field)
	case *ast.AssetInfo:
		return "asset[" + formatExpr(e.Asset) + "]" + selector(e.Field)
	case *ast.Balance:
		if e.Address != nil {
			return "balance[" + formatExpr(e.Address) + "][" + formatExpr(e.Asset) + "]"
		}
		return "balance[" + formatExpr(e.Asset) + "]"
	case *ast.UnaryExpr:
		op := "-"
		if e.Op == ast.OpNot {
			op = "!"
		}
		operand := formatExpr(e.Operand)
		if exprPrec(e.Operand) < precUnary {
			operand = "(" + operand + ")"
		}
		return op + operand
	case *ast.BinaryExpr:
		left := formatExpr(e.Left)
		if needsParens(e.Left, e.Op, false) {
			left = "(" + left + ")"
		}
		right := formatExpr(e.Right)
		if needsParens(e.Right, e.Op, true) {
			right = "(" + right + ")"
		}
		return left + " " + string(e.Op) + " " + right
	case *ast.TernaryExpr:
		cond := formatExpr(e.Cond)
		if exprPrec(e.Cond) == precTernary {
			cond = "(" + cond + ")"
		}
		then := formatExpr(e.Then)
		if exprPrec(e.Then) == precTernary {
			then = "(" + then + ")"
		}
		return cond + " ? " + then + " : " + formatExpr(e.Else)
	case *ast.CallExpr:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = formatExpr(a)
		}
		return e.Name + "(" + strings.Join(args, ", ") + ")"
	case *ast.FieldAccess:
		return postfixObject(e.Object, false) + "." + e.Field
	case *ast.IndexAccess:
		return postfixObject(e.Object, true) + "[" + formatExpr(e.Index) + "]"
	}
	return ""
}

// postfixObject wraps the object of a .field or [index] access in
// parentheses when the suffix would otherwise be read as part of the object.
func postfixObject(obj ast.Expr, index bool) string {
	s := formatExpr(obj)
	wrap := exprPrec(obj) < precPostfix
	switch obj.(type) {
	case *ast.AssetInfo, *ast.Attestation, *ast.TriggerOutput, *ast.UnitIO:
		wrap = true
	case *ast.StateVarRef, *ast.Balance:
		wrap = wrap || index
	}
	if wrap {
		return "(" + s + ")"
	}
	return s
}

func formatCriteria(list []ast.Criterion) string {
	parts := make([]string, len(list))
	for i, c := range list {
		parts[i] = c.Field + " " + c.Op + " " + formatExpr(c.Value)
	}
	return "[[" + strings.Join(parts, ", ") + "]]"
}

// namedField prints a .field suffix, omitting the default amount.
func namedField(field string) string {
	if field == "" || field == "amount" {
		return ""
	}
	return "." + field
}

// selector prints a field selector as .name when possible, [expr] otherwise.
func selector(field ast.Expr) string {
	if field == nil {
		return ""
	}
	if lit, ok := field.(*ast.StrLiteral); ok && identPattern.MatchString(lit.Value) {
		return "." + lit.Value
	}
	return "[" + formatExpr(field) + "]"
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
