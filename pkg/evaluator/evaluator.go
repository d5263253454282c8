package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/ledger"
)

// Mode is the kind of script being evaluated.
type Mode int

const (
	// ModeAA evaluates a formula inside an AA definition. State vars are
	// readable but not writable.
	ModeAA Mode = iota
	// ModeStateScript evaluates the state script of an AA, the only place
	// state vars may be written and response_unit is known.
	ModeStateScript
	// ModeFormula evaluates a non-AA formula over its containing unit, where
	// input[[...]] and output[[...]] are available.
	ModeFormula
)

func (m Mode) String() string {
	switch m {
	case ModeAA:
		return "aa"
	case ModeStateScript:
		return "state"
	case ModeFormula:
		return "formula"
	}
	return "unknown"
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "aa":
		return ModeAA, nil
	case "state", "":
		return ModeStateScript, nil
	case "formula":
		return ModeFormula, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want aa, state or formula)", s)
}

// Outcome is the terminal state of an evaluation.
type Outcome int

const (
	Returned Outcome = iota
	Bounced
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Returned:
		return "returned"
	case Bounced:
		return "bounced"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// StateAccess is the per-evaluation view of state variables. Reads of the
// evaluating AA see its own buffered writes; other addresses see committed
// state only. Missing keys read as false.
type StateAccess interface {
	Read(ctx context.Context, address, key string) (Value, error)
	Write(key string, val Value) error
}

// Context is everything an evaluation may observe. It is owned by a single
// evaluation.
type Context struct {
	ThisAddress  string
	MCI          int64
	Timestamp    int64
	MCUnit       string
	ResponseUnit string
	StorageSize  int64
	Trigger      ledger.Trigger
	Unit         *ledger.Unit
	Mode         Mode
	Ledger       ledger.Reader
	Verifier     ledger.Verifier
	State        StateAccess
}

// TraceEventType identifies the type of a trace event.
type TraceEventType string

const (
	TraceRunStart    TraceEventType = "run_start"
	TraceRunEnd      TraceEventType = "run_end"
	TraceStmtStart   TraceEventType = "stmt_start"
	TraceStmtEnd     TraceEventType = "stmt_end"
	TraceCharge      TraceEventType = "charge"
	TraceLookup      TraceEventType = "lookup"
	TraceStateWrite  TraceEventType = "state_write"
	TraceResponseSet TraceEventType = "response_set"
	TraceBounce      TraceEventType = "bounce"
)

// TraceEvent represents a single trace event emitted during execution.
type TraceEvent struct {
	Timestamp string            `json:"ts"`
	RunID     string            `json:"runId"`
	Event     TraceEventType    `json:"event"`
	Span      *ast.Span         `json:"span,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// CallEnv gives builtins access to the host collaborators they need.
type CallEnv struct {
	Ctx      context.Context
	Ledger   ledger.Reader
	Verifier ledger.Verifier
}

// StdlibFn defines a builtin function. MaxArgs of -1 means variadic.
// Metered functions are charged before Execute runs.
type StdlibFn struct {
	Name    string
	MinArgs int
	MaxArgs int
	Metered bool
	Execute func(env CallEnv, args []Value) (Value, error)
}

// ExecOptions configures program execution.
type ExecOptions struct {
	Context       Context
	MaxComplexity int
	Stdlib        map[string]*StdlibFn
	Trace         func(event TraceEvent)
	RunID         string
}

// ExecResult holds the result of a program execution. It is returned for
// every outcome; Response holds whatever was assigned before evaluation
// stopped.
type ExecResult struct {
	Outcome    Outcome
	Value      Value // nil when the script returns nothing
	Response   *ResponseVars
	Complexity int
	CountOps   int
	Charges    map[string]int
}

type flow int

const (
	flowNext flow = iota
	flowReturn
)

type evaluator struct {
	ctx      context.Context
	opts     ExecOptions
	ec       *Context
	env      *Env
	meter    *Meter
	response *ResponseVars
	data     Value // decoded trigger.data, lazily
}

func (ev *evaluator) emit(event TraceEventType, span *ast.Span, data map[string]string) {
	if ev.opts.Trace == nil {
		return
	}
	ev.opts.Trace(TraceEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     ev.opts.RunID,
		Event:     event,
		Span:      span,
		Data:      data,
	})
}

func (ev *evaluator) charge(op string, span ast.Span) error {
	err := ev.meter.Charge(op, span)
	ev.emit(TraceCharge, &span, map[string]string{
		"op":         op,
		"complexity": strconv.Itoa(ev.meter.Complexity()),
	})
	return err
}

// Execute runs a program to one of its terminal states. The returned error is
// a *RuntimeError for Bounced and Errored outcomes.
func Execute(ctx context.Context, program *ast.Program, opts ExecOptions) (*ExecResult, error) {
	ev := &evaluator{
		ctx:      ctx,
		opts:     opts,
		ec:       &opts.Context,
		env:      NewEnv(),
		meter:    NewMeter(opts.MaxComplexity),
		response: NewResponseVars(),
	}

	span := program.Span
	ev.emit(TraceRunStart, &span, map[string]string{"mode": ev.ec.Mode.String()})

	val, err := ev.run(program)

	result := &ExecResult{
		Value:      val,
		Response:   ev.response,
		Complexity: ev.meter.Complexity(),
		CountOps:   ev.meter.CountOps(),
		Charges:    ev.meter.Charges(),
	}
	if err != nil {
		result.Value = nil
		result.Outcome = Errored
		if re, ok := err.(*RuntimeError); ok && re.Kind == KindBounce {
			result.Outcome = Bounced
		}
	}
	ev.emit(TraceRunEnd, &span, map[string]string{"outcome": result.Outcome.String()})
	return result, err
}

func (ev *evaluator) run(program *ast.Program) (Value, error) {
	f, val, err := ev.executeBlock(program.Statements)
	if err != nil || f == flowReturn {
		return val, err
	}
	if program.Result != nil {
		return ev.evalExpr(program.Result)
	}
	return nil, nil
}

func (ev *evaluator) executeBlock(stmts []ast.Stmt) (flow, Value, error) {
	for _, stmt := range stmts {
		span := stmt.NodeSpan()
		ev.emit(TraceStmtStart, &span, nil)
		f, val, err := ev.executeStmt(stmt)
		if err != nil {
			return flowNext, nil, err
		}
		ev.emit(TraceStmtEnd, &span, nil)
		if f == flowReturn {
			return f, val, nil
		}
	}
	return flowNext, nil, nil
}

func (ev *evaluator) executeStmt(stmt ast.Stmt) (flow, Value, error) {
	switch s := stmt.(type) {
	case *ast.LocalAssign:
		val, err := ev.evalExpr(s.Value)
		if err != nil {
			return flowNext, nil, err
		}
		if !ev.env.Assign(s.Name, val) {
			return flowNext, nil, at(Errorf(KindTypeCoercion, diagnostics.ELocalReassign,
				"local variable $%s is already assigned", s.Name), s.Span)
		}

	case *ast.StateAssign:
		if err := ev.assignState(s); err != nil {
			return flowNext, nil, err
		}

	case *ast.ResponseAssign:
		if ev.ec.Mode == ModeFormula {
			return flowNext, nil, at(modeErrorf("response variables are not available in formula mode"), s.Span)
		}
		key, err := ev.evalString(s.Key)
		if err != nil {
			return flowNext, nil, err
		}
		val, err := ev.evalExpr(s.Value)
		if err != nil {
			return flowNext, nil, err
		}
		ev.response.Set(key, val)
		ev.emit(TraceResponseSet, &s.Span, map[string]string{"key": key})

	case *ast.IfStmt:
		cond, err := ev.evalExpr(s.Cond)
		if err != nil {
			return flowNext, nil, err
		}
		if Truthy(cond) {
			return ev.executeBlock(s.Then)
		}
		return ev.executeBlock(s.Else)

	case *ast.ReturnStmt:
		if s.Value == nil {
			return flowReturn, nil, nil
		}
		val, err := ev.evalExpr(s.Value)
		if err != nil {
			return flowNext, nil, err
		}
		return flowReturn, val, nil

	case *ast.BounceStmt:
		msgVal, err := ev.evalExpr(s.Message)
		if err != nil {
			return flowNext, nil, err
		}
		msg, err := ToString(msgVal)
		if err != nil {
			msg = CanonicalJSON(msgVal)
		}
		ev.emit(TraceBounce, &s.Span, map[string]string{"message": msg})
		span := s.Span
		return flowNext, nil, &RuntimeError{Kind: KindBounce, Code: diagnostics.EBounce, Message: msg, Span: &span}

	default:
		return flowNext, nil, at(typeErrorf("unsupported statement %s", stmt.Kind()), stmt.NodeSpan())
	}
	return flowNext, nil, nil
}

// assignState applies var[key] op value. The write is charged before the
// buffer is touched so a ceiling breach leaves the buffer unchanged.
func (ev *evaluator) assignState(s *ast.StateAssign) error {
	if ev.ec.Mode != ModeStateScript {
		return at(modeErrorf("state variables can be assigned only in the state script"), s.Span)
	}
	if ev.ec.State == nil {
		return at(modeErrorf("no state store is attached"), s.Span)
	}
	key, err := ev.evalString(s.Key)
	if err != nil {
		return err
	}
	rhs, err := ev.evalExpr(s.Value)
	if err != nil {
		return err
	}
	if err := ev.charge(OpStateWrite, s.Span); err != nil {
		return err
	}

	val := Scalar(rhs)
	if op := s.Op.Binary(); op != "" {
		existing, err := ev.ec.State.Read(ev.ctx, ev.ec.ThisAddress, key)
		if err != nil {
			return at(wrapStore(err), s.Span)
		}
		val, err = compound(op, existing, rhs)
		if err != nil {
			return at(err, s.Span)
		}
	}
	if err := ev.ec.State.Write(key, val); err != nil {
		return at(wrapStore(err), s.Span)
	}
	ev.emit(TraceStateWrite, &s.Span, map[string]string{"key": key, "op": string(s.Op)})
	return nil
}

// compound applies a compound assignment to the current value of a state
// var. A missing var reads as false, which is 0 for numeric operators and ""
// for concatenation.
func compound(op ast.BinaryOp, existing, rhs Value) (Value, error) {
	if op == ast.OpConcat {
		left := ""
		if b, ok := existing.(Bool); !ok || b.Value {
			s, err := ToString(existing)
			if err != nil {
				return nil, err
			}
			left = s
		}
		right, err := ToString(rhs)
		if err != nil {
			return nil, err
		}
		return NewString(left + right), nil
	}
	var left float64
	switch cur := existing.(type) {
	case Number:
		left = cur.Value
	case Bool:
		if cur.Value {
			left = 1
		}
	case String:
		return nil, typeErrorf("cannot apply %s= to string state variable", op)
	default:
		return nil, typeErrorf("cannot apply %s= to %s state variable", op, TypeName(existing))
	}
	return Arithmetic(op, NewNumber(left), rhs)
}

func wrapStore(err error) error {
	if _, ok := err.(*RuntimeError); ok {
		return err
	}
	return ledgerError(err)
}

func (ev *evaluator) evalString(expr ast.Expr) (string, error) {
	v, err := ev.evalExpr(expr)
	if err != nil {
		return "", err
	}
	s, err := ToString(v)
	if err != nil {
		return "", at(err, expr.NodeSpan())
	}
	return s, nil
}

func (ev *evaluator) evalExpr(expr ast.Expr) (Value, error) {
	switch e := expr.(type) {
	case *ast.NumLiteral:
		return NewNumber(e.Value), nil

	case *ast.BoolLiteral:
		return NewBool(e.Value), nil

	case *ast.StrLiteral:
		return NewString(e.Value), nil

	case *ast.LocalRef:
		if val, ok := ev.env.Get(e.Name); ok {
			return val, nil
		}
		return NewBool(false), nil

	case *ast.Constant:
		return ev.evalConstant(e)

	case *ast.StateVarRef:
		return ev.evalStateVar(e)

	case *ast.TriggerField:
		return ev.evalTriggerField(e)

	case *ast.TriggerOutput:
		return ev.evalTriggerOutput(e)

	case *ast.DataFeed:
		return ev.evalDataFeed(e)

	case *ast.Attestation:
		return ev.evalAttestation(e)

	case *ast.UnitIO:
		return ev.evalUnitIO(e)

	case *ast.AssetInfo:
		return ev.evalAsset(e)

	case *ast.Balance:
		return ev.evalBalance(e)

	case *ast.UnaryExpr:
		return ev.evalUnary(e)

	case *ast.BinaryExpr:
		return ev.evalBinary(e)

	case *ast.TernaryExpr:
		cond, err := ev.evalExpr(e.Cond)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return ev.evalExpr(e.Then)
		}
		return ev.evalExpr(e.Else)

	case *ast.CallExpr:
		return ev.evalCall(e)

	case *ast.FieldAccess:
		obj, err := ev.evalExpr(e.Object)
		if err != nil {
			return nil, err
		}
		return member(obj, e.Field), nil

	case *ast.IndexAccess:
		obj, err := ev.evalExpr(e.Object)
		if err != nil {
			return nil, err
		}
		idx, err := ev.evalExpr(e.Index)
		if err != nil {
			return nil, err
		}
		var key string
		switch k := idx.(type) {
		case String:
			key = k.Value
		case Number:
			key = FormatNumber(k.Value)
		default:
			return nil, at(typeErrorf("index must be a string or number, got %s", TypeName(idx)), e.Index.NodeSpan())
		}
		return member(obj, key), nil
	}
	return nil, at(typeErrorf("unsupported expression %s", expr.Kind()), expr.NodeSpan())
}

// member navigates into an object. Missing keys and non-objects yield false.
func member(obj Value, key string) Value {
	o, ok := obj.(Object)
	if !ok {
		return NewBool(false)
	}
	v, ok := o.Get(key)
	if !ok {
		return NewBool(false)
	}
	return v
}

func (ev *evaluator) evalConstant(e *ast.Constant) (Value, error) {
	c := ev.ec
	switch e.Name {
	case "mci":
		return NewNumber(float64(c.MCI)), nil
	case "timestamp":
		return NewNumber(float64(c.Timestamp)), nil
	case "mc_unit":
		return NewString(c.MCUnit), nil
	case "this_address":
		return NewString(c.ThisAddress), nil
	case "response_unit":
		if c.Mode != ModeStateScript {
			return nil, at(modeErrorf("response_unit is available only in the state script"), e.Span)
		}
		if c.ResponseUnit == "" {
			return NewBool(false), nil
		}
		return NewString(c.ResponseUnit), nil
	case "storage_size":
		return NewNumber(float64(c.StorageSize)), nil
	case "base":
		return NewString(ledger.BaseAsset), nil
	case "pi":
		return NewNumber(3.14159265358979), nil
	case "e":
		return NewNumber(2.71828182845905), nil
	}
	return nil, at(typeErrorf("unknown constant %s", e.Name), e.Span)
}

func (ev *evaluator) evalStateVar(e *ast.StateVarRef) (Value, error) {
	if ev.ec.Mode == ModeFormula || ev.ec.State == nil {
		return nil, at(modeErrorf("state variables are not available in %s mode", ev.ec.Mode), e.Span)
	}
	address := ev.ec.ThisAddress
	if e.Address != nil {
		a, err := ev.evalString(e.Address)
		if err != nil {
			return nil, err
		}
		address = a
	}
	key, err := ev.evalString(e.Key)
	if err != nil {
		return nil, err
	}
	if err := ev.charge(OpStateRead, e.Span); err != nil {
		return nil, err
	}
	val, err := ev.ec.State.Read(ev.ctx, address, key)
	if err != nil {
		return nil, at(wrapStore(err), e.Span)
	}
	return val, nil
}

func (ev *evaluator) evalUnary(e *ast.UnaryExpr) (Value, error) {
	operand, err := ev.evalExpr(e.Operand)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case ast.OpNot:
		return NewBool(!Truthy(operand)), nil
	case ast.OpNeg:
		n, err := ToNumber(operand)
		if err != nil {
			return nil, at(err, e.Span)
		}
		return NewNumber(-n), nil
	}
	return nil, at(typeErrorf("unknown unary operator %s", e.Op), e.Span)
}

func (ev *evaluator) evalBinary(e *ast.BinaryExpr) (Value, error) {
	left, err := ev.evalExpr(e.Left)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case ast.OpAnd:
		if !Truthy(left) {
			return NewBool(false), nil
		}
		right, err := ev.evalExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return NewBool(Truthy(right)), nil
	case ast.OpOr:
		if Truthy(left) {
			return NewBool(true), nil
		}
		right, err := ev.evalExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return NewBool(Truthy(right)), nil
	case ast.OpOtherwise:
		if Truthy(left) {
			return left, nil
		}
		return ev.evalExpr(e.Right)
	}

	right, err := ev.evalExpr(e.Right)
	if err != nil {
		return nil, err
	}

	var val Value
	switch e.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod, ast.OpPow:
		val, err = Arithmetic(e.Op, left, right)
	case ast.OpConcat:
		val, err = Concat(left, right)
	case ast.OpEqEq, ast.OpNeq, ast.OpLt, ast.OpLtEq, ast.OpGt, ast.OpGtEq:
		var ok bool
		ok, err = Compare(e.Op, left, right)
		val = NewBool(ok)
	default:
		err = typeErrorf("unknown operator %s", e.Op)
	}
	if err != nil {
		return nil, at(err, e.Span)
	}
	return val, nil
}

func (ev *evaluator) evalCall(e *ast.CallExpr) (Value, error) {
	fn, ok := ev.opts.Stdlib[e.Name]
	if !ok {
		return nil, at(Errorf(KindTypeCoercion, diagnostics.EUnknownFn, "unknown function '%s'", e.Name), e.Span)
	}
	n := len(e.Args)
	if n < fn.MinArgs || (fn.MaxArgs >= 0 && n > fn.MaxArgs) {
		return nil, at(Errorf(KindTypeCoercion, diagnostics.EArgs, "%s: %s, got %d", e.Name, arity(fn), n), e.Span)
	}

	args := make([]Value, n)
	for i, a := range e.Args {
		v, err := ev.evalExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if fn.Metered {
		if err := ev.charge(fn.Name, e.Span); err != nil {
			return nil, err
		}
	}
	val, err := fn.Execute(CallEnv{Ctx: ev.ctx, Ledger: ev.ec.Ledger, Verifier: ev.ec.Verifier}, args)
	if err != nil {
		if _, ok := err.(*RuntimeError); !ok {
			err = fmt.Errorf("%s: %w", e.Name, err)
		}
		return nil, at(err, e.Span)
	}
	return val, nil
}

func arity(fn *StdlibFn) string {
	switch {
	case fn.MaxArgs < 0:
		return fmt.Sprintf("expected at least %d arguments", fn.MinArgs)
	case fn.MinArgs == fn.MaxArgs:
		return fmt.Sprintf("expected %d arguments", fn.MinArgs)
	}
	return fmt.Sprintf("expected %d to %d arguments", fn.MinArgs, fn.MaxArgs)
}
