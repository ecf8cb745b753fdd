package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/genvm/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

const (
	maxSlots     = 255 // slot operands are one byte; slot 0 is reserved
	maxConstants = math.MaxUint16 + 1
	maxCodeSize  = math.MaxInt16
	maxArgs      = math.MaxUint8
)

type binding struct {
	slot     int
	constant bool
}

type regionKind int

const (
	regionTry regionKind = iota
	regionCatch
	regionFinally
	regionIterator // body of a for...of loop, closes the iterator on return or throw
)

// tryRegion records which part of a try statement is being compiled, so
// that break and continue know what they cross.
type tryRegion struct {
	kind       regionKind
	hasFinally bool
}

type loopCtx struct {
	breakLabel    *vm.Label
	continueLabel *vm.Label
	tries         int  // len(funcState.tries) when the loop began
	forOf         bool // an iterator sits on the stack for the loop's duration
}

// funcState is the per-function compilation context.
type funcState struct {
	parent     *funcState
	fn         *vm.Function
	b          *vm.BytecodeBuilder
	constIndex map[string]int
	scopes     []map[string]binding
	loops      []*loopCtx
	tries      []tryRegion
	line       int
	main       bool
}

// Compiler turns a parsed script into a vm.Program. Functions[0] of the
// result is the top-level body; declarations at its outermost level become
// globals, every other declaration is a frame slot.
type Compiler struct {
	fns          []*vm.Function
	globalConsts map[string]bool
	fs           *funcState
	err          *Error
}

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{globalConsts: make(map[string]bool)}
}

// Compile parses and compiles src.
func Compile(src string) (*vm.Program, error) {
	script, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return NewCompiler().CompileScript(script)
}

// CompileScript compiles a parsed script. Every function of the result
// has passed vm.Verify.
func (c *Compiler) CompileScript(s *Script) (prog *vm.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			prog, err = nil, c.err
		}
	}()

	c.compileFunction(&FunctionDecl{Name: "main", Body: s.Body}, true)

	prog = vm.NewProgram(c.fns...)
	for _, fn := range prog.Functions {
		if err := vm.Verify(fn); err != nil {
			return nil, fmt.Errorf("internal compiler error: %w", err)
		}
	}
	return prog, nil
}

func (c *Compiler) errorAt(pos Position, format string, args ...any) {
	c.err = &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
	panic(bailout{})
}

// vmNumberKey is the property name a numeric object-literal key denotes.
func vmNumberKey(n float64) string {
	return vm.FormatNumber(n)
}

// ---------------------------------------------------------------------------
// Functions and scopes
// ---------------------------------------------------------------------------

// compileFunction compiles decl into a new vm.Function and returns its index.
func (c *Compiler) compileFunction(decl *FunctionDecl, main bool) int {
	fn, index := c.reserveFunction(decl)
	c.compileBody(decl, fn, main)
	return index
}

// reserveFunction allocates decl's vm.Function and program index without
// compiling its body.
func (c *Compiler) reserveFunction(decl *FunctionDecl) (*vm.Function, int) {
	name := decl.Name
	if name == "" {
		name = "anonymous"
	}
	fn := &vm.Function{
		Name:       name,
		Generator:  decl.Generator,
		ParamCount: len(decl.Params),
	}
	index := len(c.fns)
	if index >= maxConstants {
		c.errorAt(decl.At, "too many functions")
	}
	c.fns = append(c.fns, fn)
	return fn, index
}

func (c *Compiler) compileBody(decl *FunctionDecl, fn *vm.Function, main bool) {
	fs := &funcState{
		parent:     c.fs,
		fn:         fn,
		b:          vm.NewBytecodeBuilder(),
		constIndex: make(map[string]int),
		main:       main,
	}
	c.fs = fs
	defer func() { c.fs = fs.parent }()

	if len(decl.Params) >= maxSlots {
		c.errorAt(decl.At, "too many parameters")
	}
	params := make(map[string]binding, len(decl.Params))
	for i, p := range decl.Params {
		params[p] = binding{slot: i + 1}
		fn.SlotNames = append(fn.SlotNames, p)
	}
	if !main {
		// The outermost level of the script declares globals instead.
		fs.scopes = []map[string]binding{params}
	}

	c.markLine(decl.At)
	c.compileStatementList(decl.Body, false)
	fs.b.Emit(vm.OpUndefined)
	fs.b.Emit(vm.OpReturn)

	if fs.b.Len() > maxCodeSize {
		c.errorAt(decl.At, "function %s is too large", fn.Name)
	}
	fn.Code = fs.b.Bytes()
}

func (c *Compiler) pushScope() {
	c.fs.scopes = append(c.fs.scopes, make(map[string]binding))
}

func (c *Compiler) popScope() {
	c.fs.scopes = c.fs.scopes[:len(c.fs.scopes)-1]
}

// atGlobalLevel reports whether declarations made now become globals.
func (c *Compiler) atGlobalLevel() bool {
	return c.fs.main && len(c.fs.scopes) == 0
}

// newSlot allocates a frame slot for a parameter-less local.
func (c *Compiler) newSlot(pos Position, name string) int {
	fn := c.fs.fn
	slot := 1 + fn.ParamCount + fn.LocalCount
	if slot >= maxSlots+1 {
		c.errorAt(pos, "too many local variables in %s", fn.Name)
	}
	fn.LocalCount++
	fn.SlotNames = append(fn.SlotNames, name)
	return slot
}

// declare introduces name in the innermost scope. It returns the slot, or
// -1 when the name is a global.
func (c *Compiler) declare(pos Position, name string, constant bool) int {
	if c.atGlobalLevel() {
		c.globalConsts[name] = constant
		return -1
	}
	top := c.fs.scopes[len(c.fs.scopes)-1]
	slot := c.newSlot(pos, name)
	top[name] = binding{slot: slot, constant: constant}
	return slot
}

// resolve finds the slot bound to name in the current function. A name
// that is neither local nor bound by an enclosing function is a global.
func (c *Compiler) resolve(pos Position, name string) (binding, bool) {
	if b, ok := lookupScopes(c.fs.scopes, name); ok {
		return b, true
	}
	for outer := c.fs.parent; outer != nil; outer = outer.parent {
		if _, ok := lookupScopes(outer.scopes, name); ok {
			c.errorAt(pos, "%s cannot refer to %q of an enclosing function", c.fs.fn.Name, name)
		}
	}
	return binding{}, false
}

func lookupScopes(scopes []map[string]binding, name string) (binding, bool) {
	for i := len(scopes) - 1; i >= 0; i-- {
		if b, ok := scopes[i][name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) emit(op vm.Opcode) {
	c.fs.b.Emit(op)
}

func (c *Compiler) emitByte(op vm.Opcode, v int) {
	c.fs.b.EmitByte(op, byte(v))
}

func (c *Compiler) emitUint16(op vm.Opcode, v int) {
	c.fs.b.EmitUint16(op, uint16(v))
}

func (c *Compiler) markLine(pos Position) {
	if pos.Line > 0 && pos.Line != c.fs.line {
		c.fs.fn.AddLine(c.fs.b.Len(), pos.Line)
		c.fs.line = pos.Line
	}
}

// addConstant interns v in the current function's constant pool.
func (c *Compiler) addConstant(pos Position, v vm.Value) int {
	var key string
	switch {
	case v.IsString():
		key = "s:" + v.AsString()
	case v.IsNumber():
		key = fmt.Sprintf("n:%x", math.Float64bits(v.AsNumber()))
	}
	if idx, ok := c.fs.constIndex[key]; ok && key != "" {
		return idx
	}
	idx := len(c.fs.fn.Constants)
	if idx >= maxConstants {
		c.errorAt(pos, "too many constants in %s", c.fs.fn.Name)
	}
	c.fs.fn.Constants = append(c.fs.fn.Constants, v)
	if key != "" {
		c.fs.constIndex[key] = idx
	}
	return idx
}

func (c *Compiler) nameConstant(pos Position, name string) int {
	return c.addConstant(pos, vm.String(name))
}

func (c *Compiler) emitLoad(pos Position, name string) {
	if b, ok := c.resolve(pos, name); ok {
		c.emitByte(vm.OpLoadLocal, b.slot)
		return
	}
	c.emitUint16(vm.OpLoadGlobal, c.nameConstant(pos, name))
}

// emitStore stores the top of stack into name, leaving it on the stack.
func (c *Compiler) emitStore(pos Position, name string, initializing bool) {
	if b, ok := c.resolve(pos, name); ok {
		if b.constant && !initializing {
			c.errorAt(pos, "assignment to constant variable %q", name)
		}
		c.emitByte(vm.OpStoreLocal, b.slot)
		return
	}
	if c.globalConsts[name] && !initializing {
		c.errorAt(pos, "assignment to constant variable %q", name)
	}
	c.emitUint16(vm.OpStoreGlobal, c.nameConstant(pos, name))
}

// storeSlot stores into a known slot, or into a global when slot is -1.
func (c *Compiler) storeSlot(pos Position, slot int, name string) {
	if slot < 0 {
		c.emitUint16(vm.OpStoreGlobal, c.nameConstant(pos, name))
		return
	}
	c.emitByte(vm.OpStoreLocal, slot)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// compileStatementList compiles a body. Function declarations are bound
// before any other statement runs; their bodies are compiled last, once
// every name declared alongside them is known.
func (c *Compiler) compileStatementList(stmts []Stmt, newScope bool) {
	if newScope {
		c.pushScope()
		defer c.popScope()
	}
	type hoisted struct {
		decl *FunctionDecl
		fn   *vm.Function
	}
	var pending []hoisted
	for _, s := range stmts {
		if fd, ok := s.(*FunctionDecl); ok {
			slot := c.declare(fd.At, fd.Name, false)
			fn, idx := c.reserveFunction(fd)
			c.markLine(fd.At)
			c.emitUint16(vm.OpFunction, idx)
			c.storeSlot(fd.At, slot, fd.Name)
			c.emit(vm.OpPop)
			pending = append(pending, hoisted{fd, fn})
		}
	}
	for _, s := range stmts {
		if _, ok := s.(*FunctionDecl); ok {
			continue
		}
		c.compileStmt(s)
	}
	for _, h := range pending {
		c.compileBody(h.decl, h.fn, false)
	}
}

func (c *Compiler) compileStmt(stmt Stmt) {
	c.markLine(stmt.Pos())
	switch s := stmt.(type) {
	case *EmptyStmt:

	case *ExprStmt:
		c.compileExpr(s.Expr)
		c.emit(vm.OpPop)

	case *VarDecl:
		c.compileVarDecl(s)

	case *FunctionDecl:
		// Only reachable as the body of if/while/for without braces.
		c.compileStatementList([]Stmt{s}, true)

	case *BlockStmt:
		c.compileStatementList(s.Stmts, true)

	case *IfStmt:
		c.compileIf(s)

	case *WhileStmt:
		c.compileWhile(s)

	case *ForStmt:
		c.compileFor(s)

	case *ForOfStmt:
		c.compileForOf(s)

	case *ReturnStmt:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emit(vm.OpUndefined)
		}
		c.emit(vm.OpReturn)

	case *ThrowStmt:
		c.compileExpr(s.Value)
		c.emit(vm.OpThrow)

	case *TryStmt:
		c.compileTry(s)

	case *BreakStmt:
		c.compileJumpOut(s.At, true)

	case *ContinueStmt:
		c.compileJumpOut(s.At, false)

	default:
		c.errorAt(stmt.Pos(), "unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(s *VarDecl) {
	if s.Init != nil {
		c.compileExpr(s.Init)
	} else {
		c.emit(vm.OpUndefined)
	}
	slot := c.declare(s.At, s.Name, s.Kind == TokenConst)
	c.storeSlot(s.At, slot, s.Name)
	c.emit(vm.OpPop)
}

func (c *Compiler) compileIf(s *IfStmt) {
	b := c.fs.b
	elseLabel := b.NewLabel()
	c.compileExpr(s.Cond)
	b.EmitJump(vm.OpJumpFalse, elseLabel)
	c.compileStmt(s.Then)
	if s.Else == nil {
		b.Mark(elseLabel)
		return
	}
	end := b.NewLabel()
	b.EmitJump(vm.OpJump, end)
	b.Mark(elseLabel)
	c.compileStmt(s.Else)
	b.Mark(end)
}

func (c *Compiler) pushLoop(forOf bool) *loopCtx {
	l := &loopCtx{
		breakLabel:    c.fs.b.NewLabel(),
		continueLabel: c.fs.b.NewLabel(),
		tries:         len(c.fs.tries),
		forOf:         forOf,
	}
	c.fs.loops = append(c.fs.loops, l)
	return l
}

func (c *Compiler) popLoop() {
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *Compiler) compileWhile(s *WhileStmt) {
	b := c.fs.b
	loop := c.pushLoop(false)
	defer c.popLoop()

	b.Mark(loop.continueLabel)
	c.compileExpr(s.Cond)
	b.EmitJump(vm.OpJumpFalse, loop.breakLabel)
	c.compileStmt(s.Body)
	b.EmitJump(vm.OpJump, loop.continueLabel)
	b.Mark(loop.breakLabel)
}

func (c *Compiler) compileFor(s *ForStmt) {
	b := c.fs.b
	c.pushScope()
	defer c.popScope()

	if s.Init != nil {
		c.compileStmt(s.Init)
	}
	loop := c.pushLoop(false)
	defer c.popLoop()

	top := b.NewLabel()
	b.Mark(top)
	if s.Cond != nil {
		c.compileExpr(s.Cond)
		b.EmitJump(vm.OpJumpFalse, loop.breakLabel)
	}
	c.compileStmt(s.Body)
	b.Mark(loop.continueLabel)
	if s.Post != nil {
		c.compileExpr(s.Post)
		c.emit(vm.OpPop)
	}
	b.EmitJump(vm.OpJump, top)
	b.Mark(loop.breakLabel)
}

// compileForOf lays the loop out as
//
//	<iterable> GET_ITERATOR
//	next:  UNDEFINED ITER_NEXT DUP GET_PROP "done" JUMP_TRUE exit
//	       GET_PROP "value" <store> POP
//	       PUSH_TRY finally=close <body> POP_TRY JUMP next
//	exit:  POP POP JUMP break
//	close: ITER_CLOSE_COMPLETION END_FINALLY
//	break: (targets jump here after POP_TRY ITER_CLOSE)
//
// The body's handler closes the iterator when a return or throw leaves the
// loop. Exceptions raised by the iterator itself are not covered.
func (c *Compiler) compileForOf(s *ForOfStmt) {
	b := c.fs.b
	c.pushScope()
	defer c.popScope()

	c.compileExpr(s.Iterable)
	c.emit(vm.OpGetIterator)

	slot := -2
	if s.Declare {
		slot = c.newSlot(s.At, s.Name)
		c.fs.scopes[len(c.fs.scopes)-1][s.Name] = binding{slot: slot}
	}

	loop := c.pushLoop(true)
	defer c.popLoop()

	exit, closeIter := b.NewLabel(), b.NewLabel()
	b.Mark(loop.continueLabel)
	c.emit(vm.OpUndefined)
	c.emit(vm.OpIterNext)
	c.emit(vm.OpDup)
	c.emitUint16(vm.OpGetProp, c.nameConstant(s.At, "done"))
	b.EmitJump(vm.OpJumpTrue, exit)
	c.emitUint16(vm.OpGetProp, c.nameConstant(s.At, "value"))
	if slot >= 0 {
		c.emitByte(vm.OpStoreLocal, slot)
	} else {
		c.emitStore(s.At, s.Name, false)
	}
	c.emit(vm.OpPop)

	b.EmitPushTry(nil, closeIter)
	c.fs.tries = append(c.fs.tries, tryRegion{kind: regionIterator})
	c.compileStmt(s.Body)
	c.fs.tries = c.fs.tries[:len(c.fs.tries)-1]
	c.emit(vm.OpPopTry)
	b.EmitJump(vm.OpJump, loop.continueLabel)

	b.Mark(exit)
	c.emit(vm.OpPop) // result
	c.emit(vm.OpPop) // iterator
	b.EmitJump(vm.OpJump, loop.breakLabel)

	b.Mark(closeIter)
	c.emit(vm.OpIterCloseCompletion)
	c.emit(vm.OpEndFinally)
	b.Mark(loop.breakLabel)
}

// compileJumpOut compiles break or continue, popping the handlers of any
// try blocks it leaves.
func (c *Compiler) compileJumpOut(pos Position, isBreak bool) {
	word := "continue"
	if isBreak {
		word = "break"
	}
	if len(c.fs.loops) == 0 {
		c.errorAt(pos, "%s outside a loop", word)
	}
	loop := c.fs.loops[len(c.fs.loops)-1]

	for i := len(c.fs.tries) - 1; i >= loop.tries; i-- {
		r := c.fs.tries[i]
		switch {
		case r.kind == regionIterator:
			c.emit(vm.OpPopTry)
		case r.kind == regionFinally:
			c.errorAt(pos, "%s out of a finally block is not supported", word)
		case r.hasFinally:
			c.errorAt(pos, "%s across a finally block is not supported", word)
		case r.kind == regionTry:
			c.emit(vm.OpPopTry)
		}
	}

	if isBreak {
		if loop.forOf {
			c.emit(vm.OpIterClose)
		}
		c.fs.b.EmitJump(vm.OpJump, loop.breakLabel)
		return
	}
	c.fs.b.EmitJump(vm.OpJump, loop.continueLabel)
}

// compileTry lays the statement out as
//
//	PUSH_TRY catch, finally
//	<body> POP_TRY JUMP normal
//	catch:   <bind or POP> <catch body> [POP_TRY] JUMP normal
//	normal:  NORMAL_COMPLETION
//	finally: <finally body> END_FINALLY
//
// with the finally parts omitted when there is no finally clause.
func (c *Compiler) compileTry(s *TryStmt) {
	b := c.fs.b
	hasFinally := s.Finally != nil

	var catchLabel, finallyLabel *vm.Label
	if s.Catch != nil {
		catchLabel = b.NewLabel()
	}
	if hasFinally {
		finallyLabel = b.NewLabel()
	}
	normal := b.NewLabel()

	b.EmitPushTry(catchLabel, finallyLabel)
	c.fs.tries = append(c.fs.tries, tryRegion{kind: regionTry, hasFinally: hasFinally})
	c.compileStatementList(s.Body.Stmts, true)
	c.fs.tries = c.fs.tries[:len(c.fs.tries)-1]
	c.emit(vm.OpPopTry)
	b.EmitJump(vm.OpJump, normal)

	if s.Catch != nil {
		b.Mark(catchLabel)
		c.markLine(s.Catch.At)
		c.pushScope()
		if s.CatchParam != "" {
			slot := c.declare(s.Catch.At, s.CatchParam, false)
			c.emitByte(vm.OpStoreLocal, slot)
		}
		c.emit(vm.OpPop)
		c.fs.tries = append(c.fs.tries, tryRegion{kind: regionCatch, hasFinally: hasFinally})
		c.compileStatementList(s.Catch.Stmts, true)
		c.fs.tries = c.fs.tries[:len(c.fs.tries)-1]
		c.popScope()
		if hasFinally {
			c.emit(vm.OpPopTry)
		}
		b.EmitJump(vm.OpJump, normal)
	}

	b.Mark(normal)
	if !hasFinally {
		return
	}
	c.emit(vm.OpNormalCompletion)
	b.Mark(finallyLabel)
	c.markLine(s.Finally.At)
	c.fs.tries = append(c.fs.tries, tryRegion{kind: regionFinally})
	c.compileStatementList(s.Finally.Stmts, true)
	c.fs.tries = c.fs.tries[:len(c.fs.tries)-1]
	c.emit(vm.OpEndFinally)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// compileExpr emits code leaving exactly one value on the stack.
func (c *Compiler) compileExpr(expr Expr) {
	switch e := expr.(type) {
	case *NumberLiteral:
		c.emitUint16(vm.OpConst, c.addConstant(e.At, vm.Number(e.Value)))

	case *StringLiteral:
		c.emitUint16(vm.OpConst, c.addConstant(e.At, vm.String(e.Value)))

	case *BoolLiteral:
		if e.Value {
			c.emit(vm.OpTrue)
		} else {
			c.emit(vm.OpFalse)
		}

	case *NullLiteral:
		c.emit(vm.OpNull)

	case *UndefinedLiteral:
		c.emit(vm.OpUndefined)

	case *Identifier:
		c.emitLoad(e.At, e.Name)

	case *ThisExpr:
		c.emit(vm.OpLoadThis)

	case *ArrayLiteral:
		if len(e.Elems) > maxArgs {
			c.errorAt(e.At, "array literal has more than %d elements", maxArgs)
		}
		for _, el := range e.Elems {
			c.compileExpr(el)
		}
		c.emitByte(vm.OpNewArray, len(e.Elems))

	case *ObjectLiteral:
		c.emit(vm.OpNewObject)
		for _, p := range e.Props {
			c.compileExpr(p.Value)
			c.emitUint16(vm.OpInitProp, c.nameConstant(e.At, p.Key))
		}

	case *FunctionExpr:
		idx := c.compileFunction(e.Func, false)
		c.emitUint16(vm.OpFunction, idx)

	case *UnaryExpr:
		c.compileExpr(e.Operand)
		switch e.Op {
		case TokenMinus:
			c.emit(vm.OpNeg)
		case TokenPlus:
			c.emit(vm.OpPlus)
		case TokenBang:
			c.emit(vm.OpNot)
		case TokenTypeof:
			c.emit(vm.OpTypeof)
		default:
			c.errorAt(e.At, "unsupported unary operator %s", e.Op)
		}

	case *BinaryExpr:
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.emitBinary(e.At, e.Op)

	case *LogicalExpr:
		end := c.fs.b.NewLabel()
		c.compileExpr(e.Left)
		if e.Op == TokenAnd {
			c.fs.b.EmitJump(vm.OpJumpFalseKeep, end)
		} else {
			c.fs.b.EmitJump(vm.OpJumpTrueKeep, end)
		}
		c.compileExpr(e.Right)
		c.fs.b.Mark(end)

	case *ConditionalExpr:
		b := c.fs.b
		elseLabel, end := b.NewLabel(), b.NewLabel()
		c.compileExpr(e.Cond)
		b.EmitJump(vm.OpJumpFalse, elseLabel)
		c.compileExpr(e.Then)
		b.EmitJump(vm.OpJump, end)
		b.Mark(elseLabel)
		c.compileExpr(e.Else)
		b.Mark(end)

	case *AssignExpr:
		c.compileAssign(e)

	case *UpdateExpr:
		c.compileUpdate(e)

	case *MemberExpr:
		c.compileExpr(e.Object)
		c.emitUint16(vm.OpGetProp, c.nameConstant(e.At, e.Name))

	case *IndexExpr:
		c.compileExpr(e.Object)
		c.compileExpr(e.Key)
		c.emit(vm.OpGetElem)

	case *CallExpr:
		c.compileCall(e)

	case *YieldExpr:
		c.compileYield(e)

	default:
		c.errorAt(expr.Pos(), "unsupported expression %T", expr)
	}
}

// binaryOp maps an operator token to the opcode computing it. Negated
// equality is emitted as the comparison followed by NOT.
func binaryOp(op TokenType) (vm.Opcode, bool, bool) {
	switch op {
	case TokenPlus, TokenPlusAssign:
		return vm.OpAdd, false, true
	case TokenMinus, TokenMinusAssign:
		return vm.OpSub, false, true
	case TokenStar, TokenStarAssign:
		return vm.OpMul, false, true
	case TokenSlash, TokenSlashAssign:
		return vm.OpDiv, false, true
	case TokenPercent, TokenPercentAssign:
		return vm.OpMod, false, true
	case TokenEq:
		return vm.OpEq, false, true
	case TokenNotEq:
		return vm.OpEq, true, true
	case TokenStrictEq:
		return vm.OpStrictEq, false, true
	case TokenStrictNotEq:
		return vm.OpStrictEq, true, true
	case TokenLt:
		return vm.OpLt, false, true
	case TokenLe:
		return vm.OpLe, false, true
	case TokenGt:
		return vm.OpGt, false, true
	case TokenGe:
		return vm.OpGe, false, true
	}
	return 0, false, false
}

func (c *Compiler) emitBinary(pos Position, op TokenType) {
	code, negate, ok := binaryOp(op)
	if !ok {
		c.errorAt(pos, "unsupported binary operator %s", op)
	}
	c.emit(code)
	if negate {
		c.emit(vm.OpNot)
	}
}

func (c *Compiler) compileAssign(e *AssignExpr) {
	compound := e.Op != TokenAssign
	switch t := e.Target.(type) {
	case *Identifier:
		if compound {
			c.emitLoad(t.At, t.Name)
			c.compileExpr(e.Value)
			c.emitBinary(e.At, e.Op)
		} else {
			c.compileExpr(e.Value)
		}
		c.emitStore(t.At, t.Name, false)

	case *MemberExpr:
		name := c.nameConstant(t.At, t.Name)
		c.compileExpr(t.Object)
		if compound {
			c.emit(vm.OpDup)
			c.emitUint16(vm.OpGetProp, name)
			c.compileExpr(e.Value)
			c.emitBinary(e.At, e.Op)
		} else {
			c.compileExpr(e.Value)
		}
		c.emitUint16(vm.OpSetProp, name)

	case *IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Key)
		if compound {
			c.emit(vm.OpDup2)
			c.emit(vm.OpGetElem)
			c.compileExpr(e.Value)
			c.emitBinary(e.At, e.Op)
		} else {
			c.compileExpr(e.Value)
		}
		c.emit(vm.OpSetElem)

	default:
		c.errorAt(e.At, "invalid assignment target")
	}
}

// compileUpdate compiles ++ and --. The operand is converted to a number
// first; postfix forms leave the converted old value.
func (c *Compiler) compileUpdate(e *UpdateExpr) {
	step := vm.OpAdd
	if e.Op == TokenDecrement {
		step = vm.OpSub
	}
	one := c.addConstant(e.At, vm.Number(1))

	switch t := e.Target.(type) {
	case *Identifier:
		c.emitLoad(t.At, t.Name)
		c.emit(vm.OpPlus)
		if !e.Prefix {
			c.emit(vm.OpDup)
		}
		c.emitUint16(vm.OpConst, one)
		c.emit(step)
		c.emitStore(t.At, t.Name, false)
		if !e.Prefix {
			c.emit(vm.OpPop)
		}

	case *MemberExpr:
		name := c.nameConstant(t.At, t.Name)
		c.compileExpr(t.Object)
		c.emit(vm.OpDup)
		c.emitUint16(vm.OpGetProp, name)
		c.emit(vm.OpPlus)
		tmp := c.saveOld(e)
		c.emitUint16(vm.OpConst, one)
		c.emit(step)
		c.emitUint16(vm.OpSetProp, name)
		c.restoreOld(tmp)

	case *IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Key)
		c.emit(vm.OpDup2)
		c.emit(vm.OpGetElem)
		c.emit(vm.OpPlus)
		tmp := c.saveOld(e)
		c.emitUint16(vm.OpConst, one)
		c.emit(step)
		c.emit(vm.OpSetElem)
		c.restoreOld(tmp)

	default:
		c.errorAt(e.At, "invalid update target")
	}
}

// saveOld copies the old value of a postfix update into a scratch slot.
func (c *Compiler) saveOld(e *UpdateExpr) int {
	if e.Prefix {
		return -1
	}
	tmp := c.newSlot(e.At, "%tmp")
	c.emitByte(vm.OpStoreLocal, tmp)
	return tmp
}

func (c *Compiler) restoreOld(tmp int) {
	if tmp < 0 {
		return
	}
	c.emit(vm.OpPop)
	c.emitByte(vm.OpLoadLocal, tmp)
}

func (c *Compiler) compileCall(e *CallExpr) {
	if len(e.Args) > maxArgs {
		c.errorAt(e.At, "more than %d arguments", maxArgs)
	}
	if m, ok := e.Callee.(*MemberExpr); ok {
		name := c.nameConstant(m.At, m.Name)
		c.compileExpr(m.Object)
		for _, a := range e.Args {
			c.compileExpr(a)
		}
		c.fs.b.EmitCallMethod(uint16(name), uint8(len(e.Args)))
		return
	}
	c.compileExpr(e.Callee)
	for _, a := range e.Args {
		c.compileExpr(a)
	}
	c.emitByte(vm.OpCall, len(e.Args))
}

// compileYield emits a yield site. A plain yield is
//
//	<arg> YIELD 0 RESUME 0
//
// and yield* drives the inner iterator, forwarding each incoming value:
//
//	<arg> GET_ITERATOR UNDEFINED
//	loop: ITER_NEXT DUP GET_PROP "done" JUMP_TRUE done
//	      YIELD 1 RESUME 1 JUMP loop
//	done: GET_PROP "value" SWAP POP
func (c *Compiler) compileYield(e *YieldExpr) {
	if !c.fs.fn.Generator {
		c.errorAt(e.At, "yield is only valid in generator functions")
	}
	if !e.Delegate {
		if e.Arg != nil {
			c.compileExpr(e.Arg)
		} else {
			c.emit(vm.OpUndefined)
		}
		c.emitByte(vm.OpYield, 0)
		c.emitByte(vm.OpResume, 0)
		return
	}

	b := c.fs.b
	c.compileExpr(e.Arg)
	c.emit(vm.OpGetIterator)
	c.emit(vm.OpUndefined)

	loop, done := b.NewLabel(), b.NewLabel()
	b.Mark(loop)
	c.emit(vm.OpIterNext)
	c.emit(vm.OpDup)
	c.emitUint16(vm.OpGetProp, c.nameConstant(e.At, "done"))
	b.EmitJump(vm.OpJumpTrue, done)
	c.emitByte(vm.OpYield, 1)
	c.emitByte(vm.OpResume, 1)
	b.EmitJump(vm.OpJump, loop)

	b.Mark(done)
	c.emitUint16(vm.OpGetProp, c.nameConstant(e.At, "value"))
	c.emit(vm.OpSwap)
	c.emit(vm.OpPop)
}
