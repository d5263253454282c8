// Package parser implements the oscript parser.
package parser

import (
	"fmt"
	"math"
	"strconv"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/lexer"
)

// Constants lists the context keywords usable as bare identifiers.
var Constants = map[string]bool{
	"mci":           true,
	"timestamp":     true,
	"mc_unit":       true,
	"this_address":  true,
	"response_unit": true,
	"storage_size":  true,
	"base":          true,
	"pi":            true,
	"e":             true,
}

// TriggerFields lists the fields reachable as trigger.<field>.
var TriggerFields = map[string]bool{
	"address":         true,
	"initial_address": true,
	"unit":            true,
	"data":            true,
	"output":          true,
}

type parser struct {
	tokens []lexer.Token
	pos    int
	diags  []diagnostics.Diagnostic
}

// Parse tokenizes source and parses it into an AST.
func Parse(source, filename string) (*ast.Program, []diagnostics.Diagnostic) {
	tokens, err := lexer.Tokenize(source, filename)
	if err != nil {
		if le, ok := err.(*lexer.LexError); ok {
			return nil, []diagnostics.Diagnostic{le.Diag}
		}
		return nil, []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.ELex, err.Error(), nil, "")}
	}

	p := &parser{tokens: tokens, pos: 0}
	prog := p.parseProgram()
	if len(p.diags) > 0 {
		return nil, p.diags
	}
	return prog, nil
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() lexer.TokenType {
	return p.current().Type
}

func (p *parser) peekAt(offset int) lexer.TokenType {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return lexer.TokEOF
	}
	return p.tokens[idx].Type
}

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ lexer.TokenType) (lexer.Token, bool) {
	tok := p.current()
	if tok.Type != typ {
		p.addError(fmt.Sprintf("expected %s, got %s", tokenName(typ), describe(tok)), &tok.Span)
		return tok, false
	}
	return p.advance(), true
}

func (p *parser) addError(msg string, span *ast.Span) {
	p.diags = append(p.diags, diagnostics.MakeDiag(diagnostics.EParse, msg, span, ""))
}

func (p *parser) spanFromTo(start, end ast.Span) ast.Span {
	return ast.Span{
		File:      start.File,
		StartLine: start.StartLine,
		StartCol:  start.StartCol,
		EndLine:   end.EndLine,
		EndCol:    end.EndCol,
	}
}

func describe(tok lexer.Token) string {
	if tok.Type == lexer.TokEOF {
		return "end of file"
	}
	return fmt.Sprintf("'%s'", tok.Value)
}

func tokenName(t lexer.TokenType) string {
	switch t {
	case lexer.TokLBrace:
		return "'{'"
	case lexer.TokRBrace:
		return "'}'"
	case lexer.TokLBracket:
		return "'['"
	case lexer.TokRBracket:
		return "']'"
	case lexer.TokLParen:
		return "'('"
	case lexer.TokRParen:
		return "')'"
	case lexer.TokColon:
		return "':'"
	case lexer.TokSemicolon:
		return "';'"
	case lexer.TokComma:
		return "','"
	case lexer.TokDot:
		return "'.'"
	case lexer.TokEquals:
		return "'='"
	case lexer.TokIdent:
		return "identifier"
	case lexer.TokString:
		return "string"
	case lexer.TokNumber:
		return "number"
	case lexer.TokEOF:
		return "end of file"
	default:
		return fmt.Sprintf("token(%d)", t)
	}
}

// isName returns true if the token can be used as a field or criterion name.
func isName(tok lexer.Token) bool {
	return tok.Type == lexer.TokIdent || tok.IsKeyword()
}

func assignOp(t lexer.TokenType) (ast.AssignOp, bool) {
	switch t {
	case lexer.TokEquals:
		return ast.AssignSet, true
	case lexer.TokPlusEq:
		return ast.AssignAdd, true
	case lexer.TokMinusEq:
		return ast.AssignSub, true
	case lexer.TokStarEq:
		return ast.AssignMul, true
	case lexer.TokSlashEq:
		return ast.AssignDiv, true
	case lexer.TokPercentEq:
		return ast.AssignMod, true
	case lexer.TokConcatEq:
		return ast.AssignConcat, true
	}
	return "", false
}

// --- Program ---

func (p *parser) parseProgram() *ast.Program {
	startSpan := p.current().Span

	// A formula may be wrapped in a single pair of braces.
	wrapped := p.peek() == lexer.TokLBrace
	if wrapped {
		p.advance()
	}
	end := lexer.TokEOF
	if wrapped {
		end = lexer.TokRBrace
	}

	stmts, result, ok := p.parseBody(end, true)
	if !ok {
		return nil
	}
	if wrapped {
		if _, ok := p.expect(lexer.TokRBrace); !ok {
			return nil
		}
		if _, ok := p.expect(lexer.TokEOF); !ok {
			return nil
		}
	}

	return &ast.Program{
		Span:       p.spanFromTo(startSpan, p.current().Span),
		Statements: stmts,
		Result:     result,
	}
}

// parseBody parses statements up to the end token. When allowResult is set a
// trailing expression is returned as the block's result value.
func (p *parser) parseBody(end lexer.TokenType, allowResult bool) ([]ast.Stmt, ast.Expr, bool) {
	var stmts []ast.Stmt
	for p.peek() != end && p.peek() != lexer.TokEOF {
		if p.startsStatement() {
			stmt := p.parseStmt()
			if stmt == nil {
				return nil, nil, false
			}
			stmts = append(stmts, stmt)
			continue
		}

		expr := p.parseExpr()
		if expr == nil {
			return nil, nil, false
		}
		if p.peek() == lexer.TokSemicolon {
			p.advance()
		}
		if p.peek() != end {
			tok := p.current()
			p.addError(fmt.Sprintf("expression result must be the last item, got %s", describe(tok)), &tok.Span)
			return nil, nil, false
		}
		if !allowResult {
			sp := expr.NodeSpan()
			p.addError("a block inside if cannot end with a bare expression", &sp)
			return nil, nil, false
		}
		return stmts, expr, true
	}
	return stmts, nil, true
}

// startsStatement decides, without consuming, whether the upcoming tokens
// form a statement rather than an expression.
func (p *parser) startsStatement() bool {
	switch p.peek() {
	case lexer.TokIf, lexer.TokReturn, lexer.TokBounce, lexer.TokResponse:
		return true
	case lexer.TokLocal:
		_, isAssign := assignOp(p.peekAt(1))
		return isAssign
	case lexer.TokVar:
		save := p.pos
		saveDiags := len(p.diags)
		ref := p.parseStateVarRef()
		_, isAssign := assignOp(p.peek())
		p.pos = save
		p.diags = p.diags[:saveDiags]
		return ref != nil && isAssign
	}
	return false
}

// --- Statements ---

func (p *parser) parseStmt() ast.Stmt {
	switch p.peek() {
	case lexer.TokIf:
		return p.parseIfStmt()
	case lexer.TokReturn:
		return p.parseReturnStmt()
	case lexer.TokBounce:
		return p.parseBounceStmt()
	case lexer.TokResponse:
		return p.parseResponseAssign()
	case lexer.TokLocal:
		return p.parseLocalAssign()
	case lexer.TokVar:
		return p.parseStateAssign()
	}
	tok := p.current()
	p.addError(fmt.Sprintf("unexpected token %s", describe(tok)), &tok.Span)
	return nil
}

func (p *parser) parseLocalAssign() ast.Stmt {
	nameTok := p.advance()
	opTok := p.advance()
	if opTok.Type != lexer.TokEquals {
		p.addError(fmt.Sprintf("operator '%s' cannot be applied to local variable $%s", opTok.Value, nameTok.Value), &opTok.Span)
		return nil
	}
	value := p.parseExpr()
	if value == nil {
		return nil
	}
	semi, ok := p.expect(lexer.TokSemicolon)
	if !ok {
		return nil
	}
	return &ast.LocalAssign{
		Span:  p.spanFromTo(nameTok.Span, semi.Span),
		Name:  nameTok.Value,
		Value: value,
	}
}

func (p *parser) parseStateAssign() ast.Stmt {
	start := p.current()
	ref := p.parseStateVarRef()
	if ref == nil {
		return nil
	}
	if ref.Address != nil {
		sp := ref.Span
		p.addError("cannot assign state variables of another AA", &sp)
		return nil
	}
	opTok := p.advance()
	op, _ := assignOp(opTok.Type)
	value := p.parseExpr()
	if value == nil {
		return nil
	}
	semi, ok := p.expect(lexer.TokSemicolon)
	if !ok {
		return nil
	}
	return &ast.StateAssign{
		Span:  p.spanFromTo(start.Span, semi.Span),
		Key:   ref.Key,
		Op:    op,
		Value: value,
	}
}

func (p *parser) parseResponseAssign() ast.Stmt {
	start := p.advance() // consume 'response'
	if _, ok := p.expect(lexer.TokLBracket); !ok {
		return nil
	}
	key := p.parseExpr()
	if key == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokRBracket); !ok {
		return nil
	}
	opTok := p.current()
	if opTok.Type != lexer.TokEquals {
		p.addError("response variables can only be assigned with '='", &opTok.Span)
		return nil
	}
	p.advance()
	value := p.parseExpr()
	if value == nil {
		return nil
	}
	semi, ok := p.expect(lexer.TokSemicolon)
	if !ok {
		return nil
	}
	return &ast.ResponseAssign{
		Span:  p.spanFromTo(start.Span, semi.Span),
		Key:   key,
		Value: value,
	}
}

func (p *parser) parseIfStmt() ast.Stmt {
	start := p.advance() // consume 'if'
	if _, ok := p.expect(lexer.TokLParen); !ok {
		return nil
	}
	cond := p.parseExpr()
	if cond == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	then, endSpan, ok := p.parseBlock()
	if !ok {
		return nil
	}

	var elseBody []ast.Stmt
	if p.peek() == lexer.TokElse {
		p.advance()
		if p.peek() == lexer.TokIf {
			nested := p.parseIfStmt()
			if nested == nil {
				return nil
			}
			elseBody = []ast.Stmt{nested}
			endSpan = nested.NodeSpan()
		} else {
			elseBody, endSpan, ok = p.parseBlock()
			if !ok {
				return nil
			}
		}
	}

	return &ast.IfStmt{
		Span: p.spanFromTo(start.Span, endSpan),
		Cond: cond,
		Then: then,
		Else: elseBody,
	}
}

func (p *parser) parseBlock() ([]ast.Stmt, ast.Span, bool) {
	if _, ok := p.expect(lexer.TokLBrace); !ok {
		return nil, ast.Span{}, false
	}
	stmts, _, ok := p.parseBody(lexer.TokRBrace, false)
	if !ok {
		return nil, ast.Span{}, false
	}
	rb, ok := p.expect(lexer.TokRBrace)
	if !ok {
		return nil, ast.Span{}, false
	}
	return stmts, rb.Span, true
}

func (p *parser) parseReturnStmt() ast.Stmt {
	start := p.advance() // consume 'return'
	var value ast.Expr
	if p.peek() != lexer.TokSemicolon {
		value = p.parseExpr()
		if value == nil {
			return nil
		}
	}
	semi, ok := p.expect(lexer.TokSemicolon)
	if !ok {
		return nil
	}
	return &ast.ReturnStmt{
		Span:  p.spanFromTo(start.Span, semi.Span),
		Value: value,
	}
}

func (p *parser) parseBounceStmt() ast.Stmt {
	start := p.advance() // consume 'bounce'
	if _, ok := p.expect(lexer.TokLParen); !ok {
		return nil
	}
	msg := p.parseExpr()
	if msg == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	semi, ok := p.expect(lexer.TokSemicolon)
	if !ok {
		return nil
	}
	return &ast.BounceStmt{
		Span:    p.spanFromTo(start.Span, semi.Span),
		Message: msg,
	}
}

// --- Expressions ---

func (p *parser) parseExpr() ast.Expr {
	return p.parseTernary()
}

func (p *parser) parseTernary() ast.Expr {
	cond := p.parseOtherwise()
	if cond == nil {
		return nil
	}
	if p.peek() != lexer.TokQuestion {
		return cond
	}
	p.advance()
	then := p.parseTernary()
	if then == nil {
		return nil
	}
	if _, ok := p.expect(lexer.TokColon); !ok {
		return nil
	}
	els := p.parseTernary()
	if els == nil {
		return nil
	}
	return &ast.TernaryExpr{
		Span: p.spanFromTo(cond.NodeSpan(), els.NodeSpan()),
		Cond: cond,
		Then: then,
		Else: els,
	}
}

// parseLeftAssoc parses a left-associative chain of one operator level.
func (p *parser) parseLeftAssoc(next func() ast.Expr, ops map[lexer.TokenType]ast.BinaryOp) ast.Expr {
	left := next()
	if left == nil {
		return nil
	}
	for {
		op, ok := ops[p.peek()]
		if !ok {
			return left
		}
		p.advance()
		right := next()
		if right == nil {
			return nil
		}
		left = &ast.BinaryExpr{
			Span:  p.spanFromTo(left.NodeSpan(), right.NodeSpan()),
			Op:    op,
			Left:  left,
			Right: right,
		}
	}
}

var (
	otherwiseOps      = map[lexer.TokenType]ast.BinaryOp{lexer.TokOtherwise: ast.OpOtherwise}
	orOps             = map[lexer.TokenType]ast.BinaryOp{lexer.TokOr: ast.OpOr}
	andOps            = map[lexer.TokenType]ast.BinaryOp{lexer.TokAnd: ast.OpAnd}
	concatOps         = map[lexer.TokenType]ast.BinaryOp{lexer.TokConcat: ast.OpConcat}
	additiveOps       = map[lexer.TokenType]ast.BinaryOp{lexer.TokPlus: ast.OpAdd, lexer.TokMinus: ast.OpSub}
	multiplicativeOps = map[lexer.TokenType]ast.BinaryOp{
		lexer.TokStar:    ast.OpMul,
		lexer.TokSlash:   ast.OpDiv,
		lexer.TokPercent: ast.OpMod,
	}
	comparisonOps = map[lexer.TokenType]ast.BinaryOp{
		lexer.TokGt:     ast.OpGt,
		lexer.TokLt:     ast.OpLt,
		lexer.TokGtEq:   ast.OpGtEq,
		lexer.TokLtEq:   ast.OpLtEq,
		lexer.TokEqEq:   ast.OpEqEq,
		lexer.TokBangEq: ast.OpNeq,
	}
)

func (p *parser) parseOtherwise() ast.Expr {
	return p.parseLeftAssoc(p.parseOr, otherwiseOps)
}

func (p *parser) parseOr() ast.Expr {
	return p.parseLeftAssoc(p.parseAnd, orOps)
}

func (p *parser) parseAnd() ast.Expr {
	return p.parseLeftAssoc(p.parseComparison, andOps)
}

func (p *parser) parseComparison() ast.Expr {
	left := p.parseConcat()
	if left == nil {
		return nil
	}
	op, ok := comparisonOps[p.peek()]
	if !ok {
		return left
	}
	p.advance()
	right := p.parseConcat()
	if right == nil {
		return nil
	}
	if _, chained := comparisonOps[p.peek()]; chained {
		tok := p.current()
		p.addError("comparison operators cannot be chained", &tok.Span)
		return nil
	}
	return &ast.BinaryExpr{
		Span:  p.spanFromTo(left.NodeSpan(), right.NodeSpan()),
		Op:    op,
		Left:  left,
		Right: right,
	}
}

func (p *parser) parseConcat() ast.Expr {
	return p.parseLeftAssoc(p.parseAdditive, concatOps)
}

func (p *parser) parseAdditive() ast.Expr {
	return p.parseLeftAssoc(p.parseMultiplicative, additiveOps)
}

func (p *parser) parseMultiplicative() ast.Expr {
	return p.parseLeftAssoc(p.parseUnary, multiplicativeOps)
}

func (p *parser) parseUnary() ast.Expr {
	var op ast.UnaryOp
	switch p.peek() {
	case lexer.TokMinus:
		op = ast.OpNeg
	case lexer.TokBang, lexer.TokNot:
		op = ast.OpNot
	default:
		return p.parsePower()
	}
	start := p.advance()
	operand := p.parseUnary()
	if operand == nil {
		return nil
	}
	return &ast.UnaryExpr{
		Span:    p.spanFromTo(start.Span, operand.NodeSpan()),
		Op:      op,
		Operand: operand,
	}
}

func (p *parser) parsePower() ast.Expr {
	base := p.parsePostfix()
	if base == nil {
		return nil
	}
	if p.peek() != lexer.TokCaret {
		return base
	}
	p.advance()
	exp := p.parseUnary() // right-associative, allows 2 ^ -1
	if exp == nil {
		return nil
	}
	return &ast.BinaryExpr{
		Span:  p.spanFromTo(base.NodeSpan(), exp.NodeSpan()),
		Op:    ast.OpPow,
		Left:  base,
		Right: exp,
	}
}

func (p *parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}
	for {
		switch p.peek() {
		case lexer.TokDot:
			p.advance()
			nameTok := p.current()
			if !isName(nameTok) {
				p.addError(fmt.Sprintf("expected field name after '.', got %s", describe(nameTok)), &nameTok.Span)
				return nil
			}
			p.advance()
			expr = &ast.FieldAccess{
				Span:   p.spanFromTo(expr.NodeSpan(), nameTok.Span),
				Object: expr,
				Field:  nameTok.Value,
			}
		case lexer.TokLBracket:
			p.advance()
			idx := p.parseExpr()
			if idx == nil {
				return nil
			}
			rb, ok := p.expect(lexer.TokRBracket)
			if !ok {
				return nil
			}
			expr = &ast.IndexAccess{
				Span:   p.spanFromTo(expr.NodeSpan(), rb.Span),
				Object: expr,
				Index:  idx,
			}
		default:
			return expr
		}
	}
}

func (p *parser) parsePrimary() ast.Expr {
	switch p.peek() {
	case lexer.TokLParen:
		p.advance()
		expr := p.parseExpr()
		if expr == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TokRParen); !ok {
			return nil
		}
		return expr

	case lexer.TokNumber:
		tok := p.advance()
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil || math.IsInf(val, 0) {
			p.addError(fmt.Sprintf("number literal %s is out of range", tok.Value), &tok.Span)
			return nil
		}
		return &ast.NumLiteral{Span: tok.Span, Raw: tok.Value, Value: val}

	case lexer.TokString:
		tok := p.advance()
		return &ast.StrLiteral{Span: tok.Span, Value: tok.Value}

	case lexer.TokTrue:
		tok := p.advance()
		return &ast.BoolLiteral{Span: tok.Span, Value: true}

	case lexer.TokFalse:
		tok := p.advance()
		return &ast.BoolLiteral{Span: tok.Span, Value: false}

	case lexer.TokLocal:
		tok := p.advance()
		return &ast.LocalRef{Span: tok.Span, Name: tok.Value}

	case lexer.TokVar:
		ref := p.parseStateVarRef()
		if ref == nil {
			return nil
		}
		return ref

	case lexer.TokTrigger:
		return p.parseTrigger()

	case lexer.TokDataFeed, lexer.TokInDataFeed:
		start := p.advance()
		criteria, end, ok := p.parseCriteria()
		if !ok {
			return nil
		}
		return &ast.DataFeed{
			Span:     p.spanFromTo(start.Span, end),
			In:       start.Type == lexer.TokInDataFeed,
			Criteria: criteria,
		}

	case lexer.TokAttestation:
		return p.parseAttestation()

	case lexer.TokInput, lexer.TokOutput:
		return p.parseUnitIO()

	case lexer.TokAsset:
		return p.parseAsset()

	case lexer.TokBalance:
		return p.parseBalance()

	case lexer.TokIdent:
		return p.parseIdent()

	case lexer.TokResponse:
		tok := p.current()
		p.addError("response variables are write-only and cannot be read", &tok.Span)
		return nil

	case lexer.TokBounce:
		tok := p.current()
		p.addError("bounce can only be used as a statement", &tok.Span)
		return nil

	default:
		tok := p.current()
		p.addError(fmt.Sprintf("unexpected token %s", describe(tok)), &tok.Span)
		return nil
	}
}

func (p *parser) parseIdent() ast.Expr {
	tok := p.advance()
	if p.peek() == lexer.TokLParen {
		p.advance()
		var args []ast.Expr
		for p.peek() != lexer.TokRParen {
			arg := p.parseExpr()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if p.peek() != lexer.TokComma {
				break
			}
			p.advance()
		}
		rp, ok := p.expect(lexer.TokRParen)
		if !ok {
			return nil
		}
		return &ast.CallExpr{
			Span: p.spanFromTo(tok.Span, rp.Span),
			Name: tok.Value,
			Args: args,
		}
	}
	if Constants[tok.Value] {
		return &ast.Constant{Span: tok.Span, Name: tok.Value}
	}
	p.addError(fmt.Sprintf("unknown identifier '%s'", tok.Value), &tok.Span)
	return nil
}

// parseBracketed parses "[ expr ]" and returns the expression and closing span.
func (p *parser) parseBracketed() (ast.Expr, ast.Span, bool) {
	if _, ok := p.expect(lexer.TokLBracket); !ok {
		return nil, ast.Span{}, false
	}
	expr := p.parseExpr()
	if expr == nil {
		return nil, ast.Span{}, false
	}
	rb, ok := p.expect(lexer.TokRBracket)
	if !ok {
		return nil, ast.Span{}, false
	}
	return expr, rb.Span, true
}

func (p *parser) parseStateVarRef() *ast.StateVarRef {
	start := p.advance() // consume 'var'
	first, end, ok := p.parseBracketed()
	if !ok {
		return nil
	}
	ref := &ast.StateVarRef{Key: first}
	if p.peek() == lexer.TokLBracket {
		key, keyEnd, ok := p.parseBracketed()
		if !ok {
			return nil
		}
		ref.Address = first
		ref.Key = key
		end = keyEnd
	}
	ref.Span = p.spanFromTo(start.Span, end)
	return ref
}

func (p *parser) parseTrigger() ast.Expr {
	start := p.advance() // consume 'trigger'
	if _, ok := p.expect(lexer.TokDot); !ok {
		return nil
	}
	fieldTok := p.current()
	if !isName(fieldTok) || !TriggerFields[fieldTok.Value] {
		p.addError(fmt.Sprintf("unknown trigger field %s", describe(fieldTok)), &fieldTok.Span)
		return nil
	}
	p.advance()
	if fieldTok.Value != "output" {
		return &ast.TriggerField{Span: p.spanFromTo(start.Span, fieldTok.Span), Field: fieldTok.Value}
	}

	criteria, end, ok := p.parseCriteria()
	if !ok {
		return nil
	}
	field, fieldEnd, ok := p.parseNamedField("amount", "amount", "asset")
	if !ok {
		return nil
	}
	if fieldEnd.StartLine > 0 {
		end = fieldEnd
	}
	return &ast.TriggerOutput{
		Span:     p.spanFromTo(start.Span, end),
		Criteria: criteria,
		Field:    field,
	}
}

// parseNamedField parses an optional ".name" restricted to allowed names.
// The returned span is zero when the field was omitted.
func (p *parser) parseNamedField(def string, allowed ...string) (string, ast.Span, bool) {
	if p.peek() != lexer.TokDot {
		return def, ast.Span{}, true
	}
	p.advance()
	tok := p.current()
	if isName(tok) {
		for _, a := range allowed {
			if tok.Value == a {
				p.advance()
				return a, tok.Span, true
			}
		}
	}
	p.addError(fmt.Sprintf("unknown field %s, expected one of %v", describe(tok), allowed), &tok.Span)
	return "", ast.Span{}, false
}

func (p *parser) parseAttestation() ast.Expr {
	start := p.advance() // consume 'attestation'
	criteria, end, ok := p.parseCriteria()
	if !ok {
		return nil
	}
	node := &ast.Attestation{Criteria: criteria}
	switch p.peek() {
	case lexer.TokDot:
		p.advance()
		tok := p.current()
		if !isName(tok) {
			p.addError(fmt.Sprintf("expected field name after '.', got %s", describe(tok)), &tok.Span)
			return nil
		}
		p.advance()
		node.Field = &ast.StrLiteral{Span: tok.Span, Value: tok.Value}
		end = tok.Span
	case lexer.TokLBracket:
		field, fieldEnd, ok := p.parseBracketed()
		if !ok {
			return nil
		}
		node.Field = field
		end = fieldEnd
	}
	node.Span = p.spanFromTo(start.Span, end)
	return node
}

func (p *parser) parseUnitIO() ast.Expr {
	start := p.advance() // consume 'input' or 'output'
	criteria, end, ok := p.parseCriteria()
	if !ok {
		return nil
	}
	field, fieldEnd, ok := p.parseNamedField("amount", "amount", "address", "asset")
	if !ok {
		return nil
	}
	if fieldEnd.StartLine > 0 {
		end = fieldEnd
	}
	return &ast.UnitIO{
		Span:     p.spanFromTo(start.Span, end),
		Output:   start.Type == lexer.TokOutput,
		Criteria: criteria,
		Field:    field,
	}
}

func (p *parser) parseAsset() ast.Expr {
	start := p.advance() // consume 'asset'
	asset, _, ok := p.parseBracketed()
	if !ok {
		return nil
	}
	node := &ast.AssetInfo{Asset: asset}
	switch p.peek() {
	case lexer.TokDot:
		p.advance()
		tok := p.current()
		if !isName(tok) {
			p.addError(fmt.Sprintf("expected asset field name, got %s", describe(tok)), &tok.Span)
			return nil
		}
		p.advance()
		node.Field = &ast.StrLiteral{Span: tok.Span, Value: tok.Value}
		node.Span = p.spanFromTo(start.Span, tok.Span)
	case lexer.TokLBracket:
		field, end, ok := p.parseBracketed()
		if !ok {
			return nil
		}
		node.Field = field
		node.Span = p.spanFromTo(start.Span, end)
	default:
		tok := p.current()
		p.addError("asset[...] requires a field, e.g. asset[base].cap", &tok.Span)
		return nil
	}
	return node
}

func (p *parser) parseBalance() ast.Expr {
	start := p.advance() // consume 'balance'
	node := &ast.Balance{}

	if p.peek() == lexer.TokLBracket && p.peekAt(1) == lexer.TokLBracket {
		// balance[[address]][asset]
		p.advance()
		addr, _, ok := p.parseBracketed()
		if !ok {
			return nil
		}
		if _, ok := p.expect(lexer.TokRBracket); !ok {
			return nil
		}
		asset, end, ok := p.parseBracketed()
		if !ok {
			return nil
		}
		node.Address = addr
		node.Asset = asset
		node.Span = p.spanFromTo(start.Span, end)
		return node
	}

	first, end, ok := p.parseBracketed()
	if !ok {
		return nil
	}
	node.Asset = first
	if p.peek() == lexer.TokLBracket {
		asset, assetEnd, ok := p.parseBracketed()
		if !ok {
			return nil
		}
		node.Address = first
		node.Asset = asset
		end = assetEnd
	}
	node.Span = p.spanFromTo(start.Span, end)
	return node
}

// --- Search criteria ---

var criterionOps = map[lexer.TokenType]string{
	lexer.TokEquals: "=",
	lexer.TokBangEq: "!=",
	lexer.TokGt:     ">",
	lexer.TokGtEq:   ">=",
	lexer.TokLt:     "<",
	lexer.TokLtEq:   "<=",
}

// parseCriteria parses "[[field op value, ...]]".
func (p *parser) parseCriteria() ([]ast.Criterion, ast.Span, bool) {
	if _, ok := p.expect(lexer.TokLBracket); !ok {
		return nil, ast.Span{}, false
	}
	if _, ok := p.expect(lexer.TokLBracket); !ok {
		return nil, ast.Span{}, false
	}

	var criteria []ast.Criterion
	for p.peek() != lexer.TokRBracket {
		fieldTok := p.current()
		if !isName(fieldTok) {
			p.addError(fmt.Sprintf("expected search field name, got %s", describe(fieldTok)), &fieldTok.Span)
			return nil, ast.Span{}, false
		}
		p.advance()
		opTok := p.current()
		op, ok := criterionOps[opTok.Type]
		if !ok {
			p.addError(fmt.Sprintf("expected comparison after '%s', got %s", fieldTok.Value, describe(opTok)), &opTok.Span)
			return nil, ast.Span{}, false
		}
		p.advance()
		value := p.parseCriterionValue()
		if value == nil {
			return nil, ast.Span{}, false
		}
		criteria = append(criteria, ast.Criterion{
			Span:  p.spanFromTo(fieldTok.Span, value.NodeSpan()),
			Field: fieldTok.Value,
			Op:    op,
			Value: value,
		})
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}

	first, ok := p.expect(lexer.TokRBracket)
	if !ok {
		return nil, ast.Span{}, false
	}
	last, ok := p.expect(lexer.TokRBracket)
	if !ok {
		return nil, ast.Span{}, false
	}
	if len(criteria) == 0 {
		p.addError("search criteria cannot be empty", &first.Span)
		return nil, ast.Span{}, false
	}
	return criteria, last.Span, true
}

// parseCriterionValue reads a criterion value. A bare identifier that is not
// a constant or call stands for its own text (asset=base, address=ABC...).
func (p *parser) parseCriterionValue() ast.Expr {
	tok := p.current()
	if tok.Type == lexer.TokIdent && p.peekAt(1) != lexer.TokLParen && !Constants[tok.Value] {
		p.advance()
		return &ast.StrLiteral{Span: tok.Span, Value: tok.Value}
	}
	return p.parseExpr()
}
