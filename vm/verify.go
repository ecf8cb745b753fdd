package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Bytecode verification
// ---------------------------------------------------------------------------

// VerifyError describes malformed bytecode.
type VerifyError struct {
	Function string
	PC       int
	Message  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify %s: at %04d: %s", e.Function, e.PC, e.Message)
}

// Verify checks fn's bytecode and sets fn.MaxStack to the largest operand
// stack depth any path can reach. Every instruction must be reached with
// the same depth along all paths, jumps must land on instruction
// boundaries, and control must never fall off the end of the code.
func Verify(fn *Function) error {
	code := fn.Code
	fail := func(pc int, format string, args ...any) error {
		return &VerifyError{Function: fn.Name, PC: pc, Message: fmt.Sprintf(format, args...)}
	}

	// Instruction boundaries.
	starts := make([]bool, len(code))
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if !op.Valid() {
			return fail(pc, "unknown opcode 0x%02X", byte(op))
		}
		starts[pc] = true
		pc += 1 + op.OperandBytes()
		if pc > len(code) {
			return fail(pc, "truncated operand for %s", op)
		}
	}
	if len(code) == 0 {
		return fail(0, "empty function")
	}

	u8 := func(pc int) int { return int(code[pc+1]) }
	u16 := func(pc, at int) int { return int(binary.LittleEndian.Uint16(code[pc+at:])) }
	i16 := func(pc, at int) int { return int(int16(binary.LittleEndian.Uint16(code[pc+at:]))) }

	depth := make([]int, len(code))
	for i := range depth {
		depth[i] = -1
	}
	type item struct{ pc, d int }
	work := []item{{0, 0}}
	maxDepth := 0

	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		pc, d := it.pc, it.d

		if pc < 0 || pc >= len(code) {
			return fail(pc, "control reaches outside the code")
		}
		if !starts[pc] {
			return fail(pc, "jump into the middle of an instruction")
		}
		if depth[pc] >= 0 {
			if depth[pc] != d {
				return fail(pc, "stack depth %d conflicts with %d", d, depth[pc])
			}
			continue
		}
		depth[pc] = d
		if d > maxDepth {
			maxDepth = d
		}

		op := Opcode(code[pc])
		next := pc + 1 + op.OperandBytes()

		if need := stackNeeds(op, code, pc); d < need {
			return fail(pc, "%s needs %d stack values, has %d", op, need, d)
		}

		switch op {
		case OpLoadLocal, OpStoreLocal:
			if slot := u8(pc); slot < 1 || slot >= fn.StackBase() {
				return fail(pc, "slot %d out of range", slot)
			}
		case OpConst:
			if idx := u16(pc, 1); idx >= len(fn.Constants) {
				return fail(pc, "constant %d out of range", idx)
			}
		case OpLoadGlobal, OpStoreGlobal, OpInitProp, OpGetProp, OpSetProp, OpCallMethod:
			idx := u16(pc, 1)
			if idx >= len(fn.Constants) || !fn.Constants[idx].IsString() {
				return fail(pc, "name constant %d is not a string", idx)
			}
		case OpFunction:
			if fn.program != nil {
				if idx := u16(pc, 1); idx >= len(fn.program.Functions) {
					return fail(pc, "function %d out of range", idx)
				}
			}
		case OpYield:
			if !fn.Generator {
				return fail(pc, "yield outside a generator")
			}
			if next >= len(code) || Opcode(code[next]) != OpResume {
				return fail(pc, "yield not followed by %s", OpResume)
			}
		}

		push := func(target, td int) {
			work = append(work, item{target, td})
		}

		switch op {
		case OpReturn, OpThrow:
			// no successor

		case OpJump:
			push(next+i16(pc, 1), d)

		case OpJumpTrue, OpJumpFalse:
			push(next+i16(pc, 1), d-1)
			push(next, d-1)

		case OpJumpTrueKeep, OpJumpFalseKeep:
			push(next+i16(pc, 1), d)
			push(next, d-1)

		case OpPushTry:
			if off := i16(pc, 1); off != 0 {
				push(pc+3+off, d+1)
			}
			if off := i16(pc, 3); off != 0 {
				push(next+off, d+2)
			}
			push(next, d)

		case OpNewArray:
			push(next, d-u8(pc)+1)

		case OpCall:
			push(next, d-u8(pc))

		case OpCallMethod:
			push(next, d-int(code[pc+3]))

		default:
			push(next, d+op.Info().StackEffect)
		}
	}

	fn.MaxStack = maxDepth
	fn.resumeDepth = make(map[int]int)
	for pc, d := range depth {
		if d >= 0 && Opcode(code[pc]) == OpResume {
			fn.resumeDepth[pc] = d
		}
	}
	return nil
}

// stackNeeds returns how many operands op consumes.
func stackNeeds(op Opcode, code []byte, pc int) int {
	switch op {
	case OpPop, OpDup, OpStoreLocal, OpStoreGlobal, OpNeg, OpPlus, OpNot, OpTypeof,
		OpJumpTrue, OpJumpFalse, OpJumpTrueKeep, OpJumpFalseKeep,
		OpGetProp, OpReturn, OpGetIterator, OpIterClose, OpYield, OpThrow:
		return 1
	case OpDup2, OpSwap, OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpEq, OpStrictEq, OpLt, OpLe, OpGt, OpGe,
		OpInitProp, OpSetProp, OpGetElem, OpIterNext, OpEndFinally:
		return 2
	case OpSetElem, OpIterCloseCompletion:
		return 3
	case OpNewArray:
		return int(code[pc+1])
	case OpCall:
		return int(code[pc+1]) + 1
	case OpCallMethod:
		return int(code[pc+3]) + 1
	}
	return 0
}
