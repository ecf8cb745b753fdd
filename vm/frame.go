package vm

// ---------------------------------------------------------------------------
// StackFrame: heap-resident activation record
// ---------------------------------------------------------------------------

// YieldMarker records where a parked frame resumes. It is non-nil exactly
// while the frame is parked.
type YieldMarker struct {
	Resume   int  // byte offset of the resumption instruction
	Delegate bool // the suspend point is a yield* site
}

// tryHandler is an active try region. catchPC and finallyPC are -1 when the
// clause is absent; sp is the stack height to restore on entry.
type tryHandler struct {
	catchPC   int
	finallyPC int
	sp        int
}

// StackFrame is an activation record that lives on the heap so it can
// outlive the Go call that created it. While interpreting, a frame is
// linked into the engine's current chain; while parked it is reachable only
// from its generator.
//
// Slot layout:
//
//	[0]                            incoming value (set on resumption)
//	[1, 1+params)                  parameters
//	[1+params, 1+params+locals)    locals
//	[1+params+locals, len(slots))  operand stack
type StackFrame struct {
	fn       *Function
	pc       int
	sp       int // next free slot
	slots    []Value
	this     Value
	parent   *StackFrame
	yield    *YieldMarker
	handlers []tryHandler
	forced   Value // pending value of a forced return
}

// NewFrame creates an active-ready frame for fn. Missing arguments are
// undefined and extra ones are dropped.
func NewFrame(fn *Function, this Value, args []Value) *StackFrame {
	f := &StackFrame{
		fn:    fn,
		slots: make([]Value, fn.RequiredSlotCount()),
		this:  this,
	}
	n := len(args)
	if n > fn.ParamCount {
		n = fn.ParamCount
	}
	copy(f.slots[1:1+n], args[:n])
	f.sp = fn.StackBase()
	return f
}

// Function returns the function the frame executes.
func (f *StackFrame) Function() *Function { return f.fn }

// PC returns the saved program counter.
func (f *StackFrame) PC() int { return f.pc }

// Parent returns the frame below f in the engine's chain, or nil.
func (f *StackFrame) Parent() *StackFrame { return f.parent }

// Push links f as the engine's current frame.
func (f *StackFrame) Push(e *Engine) {
	invariant(f.parent == nil && e.current != f, "frame %s pushed twice", f.fn.Name)
	f.parent = e.current
	e.current = f
}

// Pop unlinks f. Frames must be popped in reverse push order.
func (f *StackFrame) Pop(e *Engine) {
	invariant(e.current == f, "frame %s popped out of order", f.fn.Name)
	e.current = f.parent
	f.parent = nil
}

// SetYield parks the frame at resume.
func (f *StackFrame) SetYield(resume int, delegate bool) {
	invariant(f.yield == nil, "frame %s parked twice", f.fn.Name)
	invariant(resume >= 0 && resume < len(f.fn.Code), "resume address %d outside %s", resume, f.fn.Name)
	f.yield = &YieldMarker{Resume: resume, Delegate: delegate}
	f.pc = resume
}

// Yield returns the yield marker, or nil when the frame is not parked.
func (f *StackFrame) Yield() *YieldMarker {
	return f.yield
}

// ClearYield removes and returns the yield marker.
func (f *StackFrame) ClearYield() *YieldMarker {
	invariant(f.yield != nil, "frame %s resumed while not parked", f.fn.Name)
	m := f.yield
	f.yield = nil
	return m
}

// Parked reports whether the frame is suspended at a yield.
func (f *StackFrame) Parked() bool {
	return f.yield != nil
}

// checkLayout asserts the slot array matches the function metadata.
func (f *StackFrame) checkLayout() {
	invariant(len(f.slots) == f.fn.RequiredSlotCount(),
		"frame %s has %d slots, function requires %d", f.fn.Name, len(f.slots), f.fn.RequiredSlotCount())
	invariant(f.sp >= f.fn.StackBase() && f.sp <= len(f.slots),
		"frame %s stack pointer %d out of bounds", f.fn.Name, f.sp)
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (f *StackFrame) push(v Value) {
	invariant(f.sp < len(f.slots), "operand stack overflow in %s", f.fn.Name)
	f.slots[f.sp] = v
	f.sp++
}

func (f *StackFrame) pop() Value {
	invariant(f.sp > f.fn.StackBase(), "operand stack underflow in %s", f.fn.Name)
	f.sp--
	v := f.slots[f.sp]
	f.slots[f.sp] = Undefined
	return v
}

func (f *StackFrame) peek(n int) Value {
	return f.slots[f.sp-1-n]
}

// popN removes the top n values and returns a copy of them in push order.
func (f *StackFrame) popN(n int) []Value {
	invariant(f.sp-n >= f.fn.StackBase(), "operand stack underflow in %s", f.fn.Name)
	out := make([]Value, n)
	copy(out, f.slots[f.sp-n:f.sp])
	f.truncate(f.sp - n)
	return out
}

// truncate drops everything above sp.
func (f *StackFrame) truncate(sp int) {
	for i := sp; i < f.sp; i++ {
		f.slots[i] = Undefined
	}
	f.sp = sp
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

func (f *StackFrame) readByte() byte {
	b := f.fn.Code[f.pc]
	f.pc++
	return b
}

func (f *StackFrame) readUint16() uint16 {
	code := f.fn.Code
	v := uint16(code[f.pc]) | uint16(code[f.pc+1])<<8
	f.pc += 2
	return v
}

func (f *StackFrame) readInt16() int {
	return int(int16(f.readUint16()))
}
