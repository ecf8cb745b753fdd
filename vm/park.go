package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Parked frame export and import
// ---------------------------------------------------------------------------

// Handler is the exported form of an active try region. Absent clauses
// are -1.
type Handler struct {
	Catch   int
	Finally int
	SP      int
}

// ParkedFrame is a self-contained copy of a suspended generator. It holds
// no pointers into the engine and can be serialised.
type ParkedFrame struct {
	ID       string
	Function int // index into the program
	State    GeneratorState
	PC       int
	Delegate bool
	SP       int
	Slots    []Value
	Handlers []Handler
	This     Value
	Args     []Value
}

// ErrNotParked is returned when capturing a generator that is running or
// finished.
var ErrNotParked = errors.New("generator is not suspended")

// Capture copies the generator's parked frame. The generator itself is
// left untouched.
func (g *Generator) Capture() (*ParkedFrame, error) {
	if !g.state.Suspended() {
		return nil, fmt.Errorf("capture %s: %w (state %s)", g.fn.Name, ErrNotParked, g.state)
	}
	f := g.frame
	m := f.Yield()
	pf := &ParkedFrame{
		ID:       g.ID(),
		Function: g.fn.Index,
		State:    g.state,
		PC:       m.Resume,
		Delegate: m.Delegate,
		SP:       f.sp,
		Slots:    append([]Value(nil), f.slots...),
		This:     f.this,
		Args:     append([]Value(nil), g.args...),
	}
	for _, h := range f.handlers {
		pf.Handlers = append(pf.Handlers, Handler{Catch: h.catchPC, Finally: h.finallyPC, SP: h.sp})
	}
	return pf, nil
}

// RestoreGenerator rebuilds a suspended generator from pf against prog.
// Malformed input is reported as an error; nothing is trusted blindly.
func (e *Engine) RestoreGenerator(prog *Program, pf *ParkedFrame) (*Generator, error) {
	if prog.Closed() {
		return nil, ErrProgramClosed
	}
	if pf.Function < 0 || pf.Function >= len(prog.Functions) {
		return nil, fmt.Errorf("restore: function index %d out of range", pf.Function)
	}
	fn := prog.Functions[pf.Function]
	if !fn.Generator {
		return nil, fmt.Errorf("restore: %s is not a generator function", fn.Name)
	}
	if !pf.State.Suspended() {
		return nil, fmt.Errorf("restore: %w (state %s)", ErrNotParked, pf.State)
	}
	if len(pf.Slots) != fn.RequiredSlotCount() {
		return nil, fmt.Errorf("restore: %s needs %d slots, snapshot has %d", fn.Name, fn.RequiredSlotCount(), len(pf.Slots))
	}
	if pf.SP < fn.StackBase() || pf.SP > len(pf.Slots) {
		return nil, fmt.Errorf("restore: stack pointer %d out of range", pf.SP)
	}
	switch pf.State {
	case GeneratorSuspendedStart:
		if pf.PC != 0 || pf.SP != fn.StackBase() || len(pf.Handlers) != 0 || pf.Delegate {
			return nil, fmt.Errorf("restore: %s not parked at entry", fn.Name)
		}
	case GeneratorSuspendedYield:
		if pf.PC <= 0 || pf.PC+1 >= len(fn.Code) || Opcode(fn.Code[pf.PC]) != OpResume {
			return nil, fmt.Errorf("restore: resume address %d in %s is not a resumption point", pf.PC, fn.Name)
		}
		if delegate := fn.Code[pf.PC+1] != 0; delegate != pf.Delegate {
			return nil, fmt.Errorf("restore: delegate flag %t disagrees with the yield site at %d in %s", pf.Delegate, pf.PC, fn.Name)
		}
		if d, ok := fn.resumeDepth[pf.PC]; ok && pf.SP != fn.StackBase()+d {
			return nil, fmt.Errorf("restore: stack pointer %d does not match depth %d at %d in %s", pf.SP, d, pf.PC, fn.Name)
		}
	}
	f := &StackFrame{
		fn:    fn,
		slots: append([]Value(nil), pf.Slots...),
		sp:    pf.SP,
		this:  pf.This,
	}
	for _, h := range pf.Handlers {
		if h.SP < fn.StackBase() || h.SP > pf.SP || !validTarget(fn, h.Catch) || !validTarget(fn, h.Finally) {
			return nil, fmt.Errorf("restore: corrupt try handler %+v", h)
		}
		f.handlers = append(f.handlers, tryHandler{catchPC: h.Catch, finallyPC: h.Finally, sp: h.SP})
	}
	f.SetYield(pf.PC, pf.Delegate)

	g := &Generator{
		engine: e,
		fn:     fn,
		frame:  f,
		args:   append([]Value(nil), pf.Args...),
		state:  pf.State,
		id:     pf.ID,
	}
	e.program = prog
	e.log.Debugf("restored generator %s (%s) at pc %d", fn.Name, g.ID(), pf.PC)
	return g, nil
}

func validTarget(fn *Function, pc int) bool {
	return pc == -1 || (pc >= 0 && pc < len(fn.Code))
}
