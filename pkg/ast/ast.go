// Package ast defines the oscript AST node types.
package ast

// Span represents a source location range.
type Span struct {
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Kind() string
	NodeSpan() Span
}

// BinaryOp represents a binary operator.
type BinaryOp string

const (
	OpAdd       BinaryOp = "+"
	OpSub       BinaryOp = "-"
	OpMul       BinaryOp = "*"
	OpDiv       BinaryOp = "/"
	OpMod       BinaryOp = "%"
	OpPow       BinaryOp = "^"
	OpConcat    BinaryOp = "||"
	OpGt        BinaryOp = ">"
	OpLt        BinaryOp = "<"
	OpGtEq      BinaryOp = ">="
	OpLtEq      BinaryOp = "<="
	OpEqEq      BinaryOp = "=="
	OpNeq       BinaryOp = "!="
	OpAnd       BinaryOp = "AND"
	OpOr        BinaryOp = "OR"
	OpOtherwise BinaryOp = "OTHERWISE"
)

// UnaryOp represents a unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "NOT"
)

// AssignOp is the operator of a state-variable assignment.
type AssignOp string

const (
	AssignSet    AssignOp = "="
	AssignAdd    AssignOp = "+="
	AssignSub    AssignOp = "-="
	AssignMul    AssignOp = "*="
	AssignDiv    AssignOp = "/="
	AssignMod    AssignOp = "%="
	AssignConcat AssignOp = "||="
)

// Binary returns the binary operator a compound assignment applies, or ""
// for plain assignment.
func (op AssignOp) Binary() BinaryOp {
	switch op {
	case AssignAdd:
		return OpAdd
	case AssignSub:
		return OpSub
	case AssignMul:
		return OpMul
	case AssignDiv:
		return OpDiv
	case AssignMod:
		return OpMod
	case AssignConcat:
		return OpConcat
	}
	return ""
}

// --- Expr is the interface for all expression nodes ---

type Expr interface {
	Node
	exprNode() // sealed marker
}

// --- Stmt is the interface for all statement nodes ---

type Stmt interface {
	Node
	stmtNode() // sealed marker
}

// --- Literal Expressions ---

type NumLiteral struct {
	Span  Span
	Raw   string
	Value float64
}

func (n *NumLiteral) Kind() string   { return "NumLiteral" }
func (n *NumLiteral) NodeSpan() Span { return n.Span }
func (n *NumLiteral) exprNode()      {}

type BoolLiteral struct {
	Span  Span
	Value bool
}

func (n *BoolLiteral) Kind() string   { return "BoolLiteral" }
func (n *BoolLiteral) NodeSpan() Span { return n.Span }
func (n *BoolLiteral) exprNode()      {}

type StrLiteral struct {
	Span  Span
	Value string
}

func (n *StrLiteral) Kind() string   { return "StrLiteral" }
func (n *StrLiteral) NodeSpan() Span { return n.Span }
func (n *StrLiteral) exprNode()      {}

// --- References ---

// LocalRef reads a $local variable.
type LocalRef struct {
	Span Span
	Name string
}

func (n *LocalRef) Kind() string   { return "LocalRef" }
func (n *LocalRef) NodeSpan() Span { return n.Span }
func (n *LocalRef) exprNode()      {}

// Constant is a context keyword such as mci, timestamp or this_address.
type Constant struct {
	Span Span
	Name string
}

func (n *Constant) Kind() string   { return "Constant" }
func (n *Constant) NodeSpan() Span { return n.Span }
func (n *Constant) exprNode()      {}

// StateVarRef is var[key] or var[address][key].
type StateVarRef struct {
	Span    Span
	Address Expr // nil for the evaluating AA
	Key     Expr
}

func (n *StateVarRef) Kind() string   { return "StateVarRef" }
func (n *StateVarRef) NodeSpan() Span { return n.Span }
func (n *StateVarRef) exprNode()      {}

// TriggerField is trigger.address, trigger.initial_address, trigger.unit or trigger.data.
type TriggerField struct {
	Span  Span
	Field string
}

func (n *TriggerField) Kind() string   { return "TriggerField" }
func (n *TriggerField) NodeSpan() Span { return n.Span }
func (n *TriggerField) exprNode()      {}

// Criterion is one field/op/value triple of a [[...]] search.
type Criterion struct {
	Span  Span
	Field string
	Op    string
	Value Expr
}

// TriggerOutput is trigger.output[[asset op X]].amount|asset.
type TriggerOutput struct {
	Span     Span
	Criteria []Criterion
	Field    string
}

func (n *TriggerOutput) Kind() string   { return "TriggerOutput" }
func (n *TriggerOutput) NodeSpan() Span { return n.Span }
func (n *TriggerOutput) exprNode()      {}

// DataFeed is data_feed[[...]] or, when In is set, in_data_feed[[...]].
type DataFeed struct {
	Span     Span
	In       bool
	Criteria []Criterion
}

func (n *DataFeed) Kind() string {
	if n.In {
		return "InDataFeed"
	}
	return "DataFeed"
}
func (n *DataFeed) NodeSpan() Span { return n.Span }
func (n *DataFeed) exprNode()      {}

// Attestation is attestation[[...]] with an optional field selector.
type Attestation struct {
	Span     Span
	Criteria []Criterion
	Field    Expr // nil when no field is requested
}

func (n *Attestation) Kind() string   { return "Attestation" }
func (n *Attestation) NodeSpan() Span { return n.Span }
func (n *Attestation) exprNode()      {}

// UnitIO is input[[...]].field or output[[...]].field.
type UnitIO struct {
	Span     Span
	Output   bool
	Criteria []Criterion
	Field    string
}

func (n *UnitIO) Kind() string {
	if n.Output {
		return "UnitOutput"
	}
	return "UnitInput"
}
func (n *UnitIO) NodeSpan() Span { return n.Span }
func (n *UnitIO) exprNode()      {}

// AssetInfo is asset[expr].field or asset[expr][field_expr].
type AssetInfo struct {
	Span  Span
	Asset Expr
	Field Expr
}

func (n *AssetInfo) Kind() string   { return "AssetInfo" }
func (n *AssetInfo) NodeSpan() Span { return n.Span }
func (n *AssetInfo) exprNode()      {}

// Balance is balance[asset] or balance[address][asset].
type Balance struct {
	Span    Span
	Address Expr // nil for the evaluating AA
	Asset   Expr
}

func (n *Balance) Kind() string   { return "Balance" }
func (n *Balance) NodeSpan() Span { return n.Span }
func (n *Balance) exprNode()      {}

// --- Operators ---

type UnaryExpr struct {
	Span    Span
	Op      UnaryOp
	Operand Expr
}

func (n *UnaryExpr) Kind() string   { return "UnaryExpr" }
func (n *UnaryExpr) NodeSpan() Span { return n.Span }
func (n *UnaryExpr) exprNode()      {}

type BinaryExpr struct {
	Span  Span
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *BinaryExpr) Kind() string   { return "BinaryExpr" }
func (n *BinaryExpr) NodeSpan() Span { return n.Span }
func (n *BinaryExpr) exprNode()      {}

type TernaryExpr struct {
	Span Span
	Cond Expr
	Then Expr
	Else Expr
}

func (n *TernaryExpr) Kind() string   { return "TernaryExpr" }
func (n *TernaryExpr) NodeSpan() Span { return n.Span }
func (n *TernaryExpr) exprNode()      {}

// --- Calls and access ---

type CallExpr struct {
	Span Span
	Name string
	Args []Expr
}

func (n *CallExpr) Kind() string   { return "CallExpr" }
func (n *CallExpr) NodeSpan() Span { return n.Span }
func (n *CallExpr) exprNode()      {}

// FieldAccess is object.name.
type FieldAccess struct {
	Span   Span
	Object Expr
	Field  string
}

func (n *FieldAccess) Kind() string   { return "FieldAccess" }
func (n *FieldAccess) NodeSpan() Span { return n.Span }
func (n *FieldAccess) exprNode()      {}

// IndexAccess is object[expr].
type IndexAccess struct {
	Span   Span
	Object Expr
	Index  Expr
}

func (n *IndexAccess) Kind() string   { return "IndexAccess" }
func (n *IndexAccess) NodeSpan() Span { return n.Span }
func (n *IndexAccess) exprNode()      {}

// --- Statements ---

type LocalAssign struct {
	Span  Span
	Name  string
	Value Expr
}

func (n *LocalAssign) Kind() string   { return "LocalAssign" }
func (n *LocalAssign) NodeSpan() Span { return n.Span }
func (n *LocalAssign) stmtNode()      {}

type StateAssign struct {
	Span  Span
	Key   Expr
	Op    AssignOp
	Value Expr
}

func (n *StateAssign) Kind() string   { return "StateAssign" }
func (n *StateAssign) NodeSpan() Span { return n.Span }
func (n *StateAssign) stmtNode()      {}

type ResponseAssign struct {
	Span  Span
	Key   Expr
	Value Expr
}

func (n *ResponseAssign) Kind() string   { return "ResponseAssign" }
func (n *ResponseAssign) NodeSpan() Span { return n.Span }
func (n *ResponseAssign) stmtNode()      {}

// IfStmt holds an if/else chain. An "else if" is an IfStmt as the only
// element of Else.
type IfStmt struct {
	Span Span
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (n *IfStmt) Kind() string   { return "IfStmt" }
func (n *IfStmt) NodeSpan() Span { return n.Span }
func (n *IfStmt) stmtNode()      {}

type ReturnStmt struct {
	Span  Span
	Value Expr // nil for a bare return
}

func (n *ReturnStmt) Kind() string   { return "ReturnStmt" }
func (n *ReturnStmt) NodeSpan() Span { return n.Span }
func (n *ReturnStmt) stmtNode()      {}

type BounceStmt struct {
	Span    Span
	Message Expr
}

func (n *BounceStmt) Kind() string   { return "BounceStmt" }
func (n *BounceStmt) NodeSpan() Span { return n.Span }
func (n *BounceStmt) stmtNode()      {}

// --- Program ---

// Program is a parsed script: statements followed by an optional trailing
// result expression.
type Program struct {
	Span       Span
	Statements []Stmt
	Result     Expr
}

func (n *Program) Kind() string   { return "Program" }
func (n *Program) NodeSpan() Span { return n.Span }
