package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

// run executes f from its saved pc until one of three things happens:
//
//   - a YIELD parks the frame; the yielded value is returned and f.Yield()
//     is non-nil.
//   - the function returns; the return value is returned.
//   - an exception escapes every handler of f; Undefined is returned and
//     the exception stays pending on the engine.
//
// f must already be linked as the engine's current frame. run only touches
// f's own slots and marker and is re-entrant through calls.
func (e *Engine) run(f *StackFrame) Value {
	f.checkLayout()
	code := f.fn.Code
	consts := f.fn.Constants

	for {
		if e.hasException {
			if !e.unwind(f) {
				return Undefined
			}
			continue
		}

		invariant(f.pc >= 0 && f.pc < len(code), "pc %d outside %s", f.pc, f.fn.Name)
		pc := f.pc
		if e.tracing {
			r := NewBytecodeReader(code)
			r.Seek(pc)
			e.log.Debugf("%s sp=%d %s", f.fn.Name, f.sp-f.fn.StackBase(), DisassembleInstruction(r, consts))
		}
		op := Opcode(code[pc])
		f.pc++

		switch op {
		// ============ Stack ============
		case OpNop:

		case OpPop:
			f.pop()

		case OpDup:
			f.push(f.peek(0))

		case OpDup2:
			a, b := f.peek(1), f.peek(0)
			f.push(a)
			f.push(b)

		case OpSwap:
			f.slots[f.sp-1], f.slots[f.sp-2] = f.slots[f.sp-2], f.slots[f.sp-1]

		// ============ Constants ============
		case OpConst:
			f.push(consts[f.readUint16()])

		case OpUndefined:
			f.push(Undefined)

		case OpNull:
			f.push(Null)

		case OpTrue:
			f.push(True)

		case OpFalse:
			f.push(False)

		case OpFunction:
			f.push(FunctionValue(f.fn.program.Functions[f.readUint16()]))

		// ============ Variables ============
		case OpLoadLocal:
			f.push(f.slots[f.localSlot()])

		case OpStoreLocal:
			f.slots[f.localSlot()] = f.peek(0)

		case OpLoadGlobal:
			name := consts[f.readUint16()].str
			v, ok := e.Globals[name]
			if !ok {
				e.ThrowReferenceError("%s is not defined", name)
				continue
			}
			f.push(v)

		case OpStoreGlobal:
			e.Globals[consts[f.readUint16()].str] = f.peek(0)

		case OpLoadThis:
			f.push(f.this)

		// ============ Arithmetic ============
		case OpAdd:
			b, a := f.pop(), f.pop()
			f.push(add(a, b))

		case OpSub:
			b, a := f.pop(), f.pop()
			f.push(Number(a.ToNumber() - b.ToNumber()))

		case OpMul:
			b, a := f.pop(), f.pop()
			f.push(Number(a.ToNumber() * b.ToNumber()))

		case OpDiv:
			b, a := f.pop(), f.pop()
			f.push(Number(a.ToNumber() / b.ToNumber()))

		case OpMod:
			b, a := f.pop(), f.pop()
			f.push(Number(math.Mod(a.ToNumber(), b.ToNumber())))

		case OpNeg:
			f.push(Number(-f.pop().ToNumber()))

		case OpPlus:
			f.push(Number(f.pop().ToNumber()))

		case OpNot:
			f.push(Bool(!f.pop().Truthy()))

		case OpTypeof:
			f.push(String(f.pop().TypeOf()))

		// ============ Comparison ============
		case OpEq:
			b, a := f.pop(), f.pop()
			f.push(Bool(LooseEquals(a, b)))

		case OpStrictEq:
			b, a := f.pop(), f.pop()
			f.push(Bool(StrictEquals(a, b)))

		case OpLt, OpLe, OpGt, OpGe:
			b, a := f.pop(), f.pop()
			f.push(Bool(compare(op, a, b)))

		// ============ Control flow ============
		case OpJump:
			off := f.readInt16()
			f.pc += off

		case OpJumpTrue, OpJumpFalse:
			off := f.readInt16()
			if f.pop().Truthy() == (op == OpJumpTrue) {
				f.pc += off
			}

		case OpJumpTrueKeep, OpJumpFalseKeep:
			off := f.readInt16()
			if f.peek(0).Truthy() == (op == OpJumpTrueKeep) {
				f.pc += off
			} else {
				f.pop()
			}

		// ============ Objects ============
		case OpNewObject:
			f.push(ObjectValue(NewObject()))

		case OpInitProp:
			name := consts[f.readUint16()].str
			v := f.pop()
			f.peek(0).AsObject().Set(name, v)

		case OpGetProp:
			name := consts[f.readUint16()].str
			v := e.getProp(f.pop(), name)
			if e.hasException {
				continue
			}
			f.push(v)

		case OpSetProp:
			name := consts[f.readUint16()].str
			v := f.pop()
			obj := f.pop()
			if e.setProp(obj, name, v); e.hasException {
				continue
			}
			f.push(v)

		case OpGetElem:
			key := f.pop()
			v := e.getElem(f.pop(), key)
			if e.hasException {
				continue
			}
			f.push(v)

		case OpSetElem:
			v := f.pop()
			key := f.pop()
			obj := f.pop()
			if e.setElem(obj, key, v); e.hasException {
				continue
			}
			f.push(v)

		case OpNewArray:
			n := int(f.readByte())
			f.push(ArrayValue(NewArray(f.popN(n)...)))

		// ============ Calls ============
		case OpCall:
			argc := int(f.readByte())
			args := f.popN(argc)
			callee := f.pop()
			result := e.call(callee, Undefined, args)
			if e.hasException {
				continue
			}
			f.push(result)

		case OpCallMethod:
			name := consts[f.readUint16()].str
			argc := int(f.readByte())
			args := f.popN(argc)
			obj := f.pop()
			method := e.getProp(obj, name)
			if e.hasException {
				continue
			}
			if !method.IsCallable() {
				e.ThrowTypeError("%s.%s is not a function", describe(obj), name)
				continue
			}
			result := e.call(method, obj, args)
			if e.hasException {
				continue
			}
			f.push(result)

		case OpReturn:
			if v, done := e.doReturn(f, f.pop()); done {
				return v
			}

		// ============ Iteration ============
		case OpGetIterator:
			it := e.getIterator(f.pop())
			if e.hasException {
				continue
			}
			f.push(it)

		case OpIterNext:
			arg := f.pop()
			r := e.iterNext(f.peek(0), arg)
			if e.hasException {
				continue
			}
			f.push(r)

		case OpIterClose:
			e.iterClose(f.pop())

		case OpIterCloseCompletion:
			v := f.pop()
			kind := f.pop()
			iter := f.pop()
			switch int(kind.num) {
			case CompletionReturn:
				e.iterClose(iter)
			case CompletionThrow:
				// The exception that left the loop wins over one raised
				// while closing.
				e.iterClose(iter)
				if e.hasException {
					e.takeException()
				}
			}
			f.push(kind)
			f.push(v)

		// ============ Generators ============
		case OpYield:
			delegate := f.readByte() != 0
			v := f.pop()
			invariant(f.fn.Generator, "yield in non-generator %s", f.fn.Name)
			invariant(f.pc < len(code) && Opcode(code[f.pc]) == OpResume,
				"yield at %d in %s is not followed by RESUME", pc, f.fn.Name)
			f.SetYield(f.pc, delegate)
			return v

		case OpResume:
			delegate := f.readByte() != 0
			in := f.slots[0]
			f.slots[0] = Undefined
			if !in.IsEmpty() {
				f.push(in)
				continue
			}
			// Forced return injected by Generator.Return.
			v := f.forced
			f.forced = Undefined
			if delegate {
				r, ok := e.iterReturn(f.peek(0), v)
				if e.hasException {
					continue
				}
				if ok {
					if !resultDone(r) {
						// The inner iterator declined to finish; hand its
						// result out and stay parked on this site.
						f.SetYield(pc, true)
						return r
					}
					v = resultValue(r)
				}
			}
			if r, done := e.doReturn(f, v); done {
				return r
			}

		// ============ Exceptions ============
		case OpPushTry:
			catchOff := f.readInt16()
			catchEnd := f.pc
			finallyOff := f.readInt16()
			h := tryHandler{catchPC: -1, finallyPC: -1, sp: f.sp}
			if catchOff != 0 {
				h.catchPC = catchEnd + catchOff
			}
			if finallyOff != 0 {
				h.finallyPC = f.pc + finallyOff
			}
			f.handlers = append(f.handlers, h)

		case OpPopTry:
			invariant(len(f.handlers) > 0, "POP_TRY without handler in %s", f.fn.Name)
			f.handlers = f.handlers[:len(f.handlers)-1]

		case OpNormalCompletion:
			f.push(Number(CompletionNormal))
			f.push(Undefined)

		case OpEndFinally:
			v := f.pop()
			switch int(f.pop().num) {
			case CompletionNormal:
			case CompletionReturn:
				if r, done := e.doReturn(f, v); done {
					return r
				}
			case CompletionThrow:
				e.Throw(v)
			}

		case OpThrow:
			e.Throw(f.pop())

		default:
			invariant(false, "unknown opcode 0x%02X at %d in %s", byte(op), pc, f.fn.Name)
		}
	}
}

// localSlot decodes a slot operand and checks it addresses a parameter
// or local.
func (f *StackFrame) localSlot() int {
	idx := int(f.readByte())
	invariant(idx >= 1 && idx < f.fn.StackBase(), "slot %d out of range in %s", idx, f.fn.Name)
	return idx
}

// unwind transfers the pending exception to the innermost handler of f.
// It returns false when f has no handler left.
func (e *Engine) unwind(f *StackFrame) bool {
	for len(f.handlers) > 0 {
		h := f.handlers[len(f.handlers)-1]
		f.handlers = f.handlers[:len(f.handlers)-1]
		f.truncate(h.sp)

		if h.catchPC >= 0 {
			exc, _ := e.takeException()
			if h.finallyPC >= 0 {
				// The catch body stays covered by the finally clause.
				f.handlers = append(f.handlers, tryHandler{catchPC: -1, finallyPC: h.finallyPC, sp: h.sp})
			}
			f.push(exc)
			f.pc = h.catchPC
			return true
		}
		if h.finallyPC >= 0 {
			exc, _ := e.takeException()
			f.push(Number(CompletionThrow))
			f.push(exc)
			f.pc = h.finallyPC
			return true
		}
	}
	return false
}

// doReturn completes f with v, first running any enclosing finally blocks.
// It returns done=false when control moved into a finally block.
func (e *Engine) doReturn(f *StackFrame, v Value) (Value, bool) {
	for len(f.handlers) > 0 {
		h := f.handlers[len(f.handlers)-1]
		f.handlers = f.handlers[:len(f.handlers)-1]
		if h.finallyPC >= 0 {
			f.truncate(h.sp)
			f.push(Number(CompletionReturn))
			f.push(v)
			f.pc = h.finallyPC
			return Undefined, false
		}
	}
	return v, true
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func add(a, b Value) Value {
	if isStringish(a) || isStringish(b) {
		return String(a.ToString() + b.ToString())
	}
	return Number(a.ToNumber() + b.ToNumber())
}

func isStringish(v Value) bool {
	switch v.kind {
	case KindString, KindObject, KindArray, KindFunction, KindNative, KindGenerator:
		return true
	}
	return false
}

func compare(op Opcode, a, b Value) bool {
	if a.kind == KindString && b.kind == KindString {
		c := strings.Compare(a.str, b.str)
		switch op {
		case OpLt:
			return c < 0
		case OpLe:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	}
	x, y := a.ToNumber(), b.ToNumber()
	switch op {
	case OpLt:
		return x < y
	case OpLe:
		return x <= y
	case OpGt:
		return x > y
	default:
		return x >= y
	}
}

// describe names a value in error messages.
func describe(v Value) string {
	switch v.kind {
	case KindUndefined, KindNull:
		return v.ToString()
	case KindString:
		return "string"
	case KindObject, KindArray, KindGenerator:
		return v.TypeOf()
	}
	return v.Inspect()
}
