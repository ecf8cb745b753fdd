package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNop  Opcode = 0x00 // no operation
	OpPop  Opcode = 0x01 // discard top of stack
	OpDup  Opcode = 0x02 // duplicate top of stack
	OpDup2 Opcode = 0x03 // duplicate the top two values
	OpSwap Opcode = 0x04 // exchange the top two values
)

// Push Constants
const (
	OpConst     Opcode = 0x10 // push constant (16-bit index)
	OpUndefined Opcode = 0x11 // push undefined
	OpNull      Opcode = 0x12 // push null
	OpTrue      Opcode = 0x13 // push true
	OpFalse     Opcode = 0x14 // push false
	OpFunction  Opcode = 0x15 // push function from program (16-bit index)
)

// Variable Operations
const (
	OpLoadLocal   Opcode = 0x20 // push frame slot (8-bit slot)
	OpStoreLocal  Opcode = 0x21 // store top into frame slot, keep it (8-bit slot)
	OpLoadGlobal  Opcode = 0x22 // push global (16-bit name constant)
	OpStoreGlobal Opcode = 0x23 // store top into global, keep it (16-bit name constant)
	OpLoadThis    Opcode = 0x24 // push this
)

// Arithmetic and logic
const (
	OpAdd      Opcode = 0x30
	OpSub      Opcode = 0x31
	OpMul      Opcode = 0x32
	OpDiv      Opcode = 0x33
	OpMod      Opcode = 0x34
	OpNeg      Opcode = 0x35
	OpPlus     Opcode = 0x36 // unary +, converts to number
	OpNot      Opcode = 0x37
	OpTypeof   Opcode = 0x38
	OpEq       Opcode = 0x39
	OpStrictEq Opcode = 0x3A
	OpLt       Opcode = 0x3B
	OpLe       Opcode = 0x3C
	OpGt       Opcode = 0x3D
	OpGe       Opcode = 0x3E
)

// Control Flow
const (
	OpJump          Opcode = 0x40 // unconditional jump (16-bit signed offset)
	OpJumpTrue      Opcode = 0x41 // pop, jump if truthy
	OpJumpFalse     Opcode = 0x42 // pop, jump if falsy
	OpJumpTrueKeep  Opcode = 0x43 // jump if truthy keeping the value, else pop
	OpJumpFalseKeep Opcode = 0x44 // jump if falsy keeping the value, else pop
)

// Objects
const (
	OpNewObject Opcode = 0x50 // push {}
	OpInitProp  Opcode = 0x51 // [obj val] -> [obj] (16-bit name constant)
	OpGetProp   Opcode = 0x52 // [obj] -> [val] (16-bit name constant)
	OpSetProp   Opcode = 0x53 // [obj val] -> [val] (16-bit name constant)
	OpGetElem   Opcode = 0x54 // [obj key] -> [val]
	OpSetElem   Opcode = 0x55 // [obj key val] -> [val]
	OpNewArray  Opcode = 0x56 // pop N items into an array (8-bit count)
)

// Calls
const (
	OpCall       Opcode = 0x60 // [fn args...] -> [result] (8-bit argc)
	OpCallMethod Opcode = 0x61 // [obj args...] -> [result] (16-bit name constant, 8-bit argc)
	OpReturn     Opcode = 0x62 // return top of stack
)

// Iteration
const (
	OpGetIterator Opcode = 0x70 // [v] -> [iter]
	OpIterNext    Opcode = 0x71 // [iter val] -> [iter result]
	OpIterClose   Opcode = 0x72 // [iter] -> []

	// [iter kind value] -> [kind value]; closes iter unless the completion
	// is normal
	OpIterCloseCompletion Opcode = 0x73
)

// Generators
const (
	OpYield  Opcode = 0x80 // pop and suspend (8-bit delegate flag)
	OpResume Opcode = 0x81 // push incoming value or complete a forced return (8-bit delegate flag)
)

// Exceptions
const (
	OpPushTry          Opcode = 0x90 // install handler (16-bit catch offset, 16-bit finally offset)
	OpPopTry           Opcode = 0x91 // remove innermost handler
	OpNormalCompletion Opcode = 0x92 // push (0, undefined) completion
	OpEndFinally       Opcode = 0x93 // pop completion and act on it
	OpThrow            Opcode = 0x94 // throw top of stack
)

// Completion kinds carried into finally blocks.
const (
	CompletionNormal = 0
	CompletionReturn = 1
	CompletionThrow  = 2
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// StackVariable marks opcodes whose stack effect depends on their operands.
const StackVariable = -128

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack along the fallthrough path
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Stack operations
	OpNop:  {"NOP", 0, 0},
	OpPop:  {"POP", 0, -1},
	OpDup:  {"DUP", 0, 1},
	OpDup2: {"DUP2", 0, 2},
	OpSwap: {"SWAP", 0, 0},

	// Constants
	OpConst:     {"CONST", 2, 1},
	OpUndefined: {"UNDEFINED", 0, 1},
	OpNull:      {"NULL", 0, 1},
	OpTrue:      {"TRUE", 0, 1},
	OpFalse:     {"FALSE", 0, 1},
	OpFunction:  {"FUNCTION", 2, 1},

	// Variables
	OpLoadLocal:   {"LOAD_LOCAL", 1, 1},
	OpStoreLocal:  {"STORE_LOCAL", 1, 0},
	OpLoadGlobal:  {"LOAD_GLOBAL", 2, 1},
	OpStoreGlobal: {"STORE_GLOBAL", 2, 0},
	OpLoadThis:    {"LOAD_THIS", 0, 1},

	// Arithmetic and logic
	OpAdd:      {"ADD", 0, -1},
	OpSub:      {"SUB", 0, -1},
	OpMul:      {"MUL", 0, -1},
	OpDiv:      {"DIV", 0, -1},
	OpMod:      {"MOD", 0, -1},
	OpNeg:      {"NEG", 0, 0},
	OpPlus:     {"PLUS", 0, 0},
	OpNot:      {"NOT", 0, 0},
	OpTypeof:   {"TYPEOF", 0, 0},
	OpEq:       {"EQ", 0, -1},
	OpStrictEq: {"STRICT_EQ", 0, -1},
	OpLt:       {"LT", 0, -1},
	OpLe:       {"LE", 0, -1},
	OpGt:       {"GT", 0, -1},
	OpGe:       {"GE", 0, -1},

	// Control flow
	OpJump:          {"JUMP", 2, 0},
	OpJumpTrue:      {"JUMP_TRUE", 2, -1},
	OpJumpFalse:     {"JUMP_FALSE", 2, -1},
	OpJumpTrueKeep:  {"JUMP_TRUE_KEEP", 2, -1}, // taken path keeps the value
	OpJumpFalseKeep: {"JUMP_FALSE_KEEP", 2, -1},

	// Objects
	OpNewObject: {"NEW_OBJECT", 0, 1},
	OpInitProp:  {"INIT_PROP", 2, -1},
	OpGetProp:   {"GET_PROP", 2, 0},
	OpSetProp:   {"SET_PROP", 2, -1},
	OpGetElem:   {"GET_ELEM", 0, -1},
	OpSetElem:   {"SET_ELEM", 0, -2},
	OpNewArray:  {"NEW_ARRAY", 1, StackVariable},

	// Calls
	OpCall:       {"CALL", 1, StackVariable},
	OpCallMethod: {"CALL_METHOD", 3, StackVariable},
	OpReturn:     {"RETURN", 0, -1},

	// Iteration
	OpGetIterator: {"GET_ITERATOR", 0, 0},
	OpIterNext:    {"ITER_NEXT", 0, 0},
	OpIterClose:   {"ITER_CLOSE", 0, -1},

	OpIterCloseCompletion: {"ITER_CLOSE_COMPLETION", 0, -1},

	// Generators
	OpYield:  {"YIELD", 1, -1},
	OpResume: {"RESUME", 1, 1},

	// Exceptions
	OpPushTry:          {"PUSH_TRY", 4, 0},
	OpPopTry:           {"POP_TRY", 0, 0},
	OpNormalCompletion: {"NORMAL_COMPLETION", 0, 2},
	OpEndFinally:       {"END_FINALLY", 0, -2},
	OpThrow:            {"THROW", 0, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether op carries a relative jump offset.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpTrue, OpJumpFalse, OpJumpTrueKeep, OpJumpFalseKeep:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitCallMethod appends a CALL_METHOD instruction.
func (b *BytecodeBuilder) EmitCallMethod(name uint16, argc uint8) {
	b.bytes = append(b.bytes, byte(OpCallMethod), byte(name), byte(name>>8), argc)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward reference in bytecode.
type Label struct {
	resolved bool
	position int   // target (if resolved)
	refs     []int // positions of 16-bit operands that reference this label
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool {
	return l.resolved
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	// Patch all forward references
	for _, ref := range label.refs {
		b.patch(ref, label.position-(ref+2))
	}
	label.refs = nil
}

func (b *BytecodeBuilder) patch(ref, offset int) {
	b.bytes[ref] = byte(offset)
	b.bytes[ref+1] = byte(offset >> 8)
}

// emitOffset appends a 16-bit offset to label, measured from the end of the
// operand.
func (b *BytecodeBuilder) emitOffset(label *Label) {
	if label.resolved {
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, 0, 0) // placeholder
}

// EmitJump emits a jump instruction with a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	b.emitOffset(label)
}

// EmitPushTry emits PUSH_TRY. Either label may be nil when the try statement
// has no such clause; a zero offset means "none". Each offset is relative to
// the end of its own operand.
func (b *BytecodeBuilder) EmitPushTry(catch, finally *Label) {
	b.bytes = append(b.bytes, byte(OpPushTry))
	for _, l := range []*Label{catch, finally} {
		if l == nil {
			b.bytes = append(b.bytes, 0, 0)
			continue
		}
		b.emitOffset(l)
	}
}

// ---------------------------------------------------------------------------
// Bytecode reader
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for verification or disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	return Opcode(r.ReadByte())
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *BytecodeReader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *BytecodeReader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadTryTargets reads the operands of PUSH_TRY and returns the absolute
// catch and finally addresses, or -1 for an absent clause.
func ReadTryTargets(r *BytecodeReader) (catch, finally int) {
	catch, finally = -1, -1
	if off := r.ReadInt16(); off != 0 {
		catch = r.Position() + int(off)
	}
	if off := r.ReadInt16(); off != 0 {
		finally = r.Position() + int(off)
	}
	return catch, finally
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// Seek sets the read position.
func (r *BytecodeReader) Seek(pos int) {
	r.pos = pos
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position. Constant operands are resolved against consts when non-nil.
func DisassembleInstruction(r *BytecodeReader, consts []Value) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	constant := func(idx uint16) string {
		if int(idx) < len(consts) {
			return fmt.Sprintf("%d (%s)", idx, consts[idx].Inspect())
		}
		return fmt.Sprintf("%d", idx)
	}

	switch op {
	case OpLoadLocal, OpStoreLocal, OpNewArray, OpCall:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadByte())

	case OpYield, OpResume:
		if r.ReadByte() != 0 {
			return fmt.Sprintf("%04d  %s delegate", pos, info.Name)
		}
		return fmt.Sprintf("%04d  %s", pos, info.Name)

	case OpConst, OpLoadGlobal, OpStoreGlobal, OpInitProp, OpGetProp, OpSetProp:
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, constant(r.ReadUint16()))

	case OpFunction:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadUint16())

	case OpJump, OpJumpTrue, OpJumpFalse, OpJumpTrueKeep, OpJumpFalseKeep:
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

	case OpCallMethod:
		name := r.ReadUint16()
		argc := r.ReadByte()
		return fmt.Sprintf("%04d  %s %s argc=%d", pos, info.Name, constant(name), argc)

	case OpPushTry:
		catch, finally := ReadTryTargets(r)
		var parts []string
		if catch >= 0 {
			parts = append(parts, fmt.Sprintf("catch=%04d", catch))
		}
		if finally >= 0 {
			parts = append(parts, fmt.Sprintf("finally=%04d", finally))
		}
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, strings.Join(parts, " "))

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte, consts []Value) string {
	r := NewBytecodeReader(bc)
	var sb strings.Builder
	for r.HasMore() {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(r, consts))
	}
	return sb.String()
}
