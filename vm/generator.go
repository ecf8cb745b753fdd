package vm

import (
	"fmt"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Generator state machine
// ---------------------------------------------------------------------------

// GeneratorState is the lifecycle state of a generator.
type GeneratorState uint8

const (
	GeneratorSuspendedStart GeneratorState = iota
	GeneratorSuspendedYield
	GeneratorExecuting
	GeneratorCompleted
)

func (s GeneratorState) String() string {
	switch s {
	case GeneratorSuspendedStart:
		return "suspendedStart"
	case GeneratorSuspendedYield:
		return "suspendedYield"
	case GeneratorExecuting:
		return "executing"
	case GeneratorCompleted:
		return "completed"
	}
	return fmt.Sprintf("GeneratorState(%d)", uint8(s))
}

// Suspended reports whether next/return/throw may resume the body.
func (s GeneratorState) Suspended() bool {
	return s == GeneratorSuspendedStart || s == GeneratorSuspendedYield
}

type resumeMode uint8

const (
	resumeNext resumeMode = iota
	resumeReturn
	resumeThrow
)

func (m resumeMode) String() string {
	switch m {
	case resumeNext:
		return "next"
	case resumeReturn:
		return "return"
	default:
		return "throw"
	}
}

// Generator owns one parked frame and drives it through bursts of
// interpretation. A freshly created generator is parked at the entry of its
// body and never runs until next is called.
type Generator struct {
	engine *Engine
	fn     *Function
	frame  *StackFrame // nil once completed
	args   []Value     // copy of the initial arguments
	state  GeneratorState
	id     string
}

func newGenerator(e *Engine, fn *Function, this Value, args []Value) *Generator {
	g := &Generator{
		engine: e,
		fn:     fn,
		frame:  NewFrame(fn, this, args),
		args:   append([]Value(nil), args...),
		state:  GeneratorSuspendedStart,
	}
	g.frame.SetYield(0, false)
	return g
}

// ID returns a stable identifier, assigned on first use.
func (g *Generator) ID() string {
	if g.id == "" {
		g.id = uuid.NewString()
	}
	return g.id
}

// State returns the lifecycle state.
func (g *Generator) State() GeneratorState {
	return g.state
}

// Function returns the generator function.
func (g *Generator) Function() *Function {
	return g.fn
}

// Args returns the arguments the generator was created with.
func (g *Generator) Args() []Value {
	return g.args
}

// Frame returns the owned frame, or nil once completed.
func (g *Generator) Frame() *StackFrame {
	return g.frame
}

// Next resumes the body with v as the value of the pending yield.
func (g *Generator) Next(v Value) (Value, error) {
	return g.invoke(resumeNext, v)
}

// Return forces the body to complete with v, running pending finally
// blocks first.
func (g *Generator) Return(v Value) (Value, error) {
	return g.invoke(resumeReturn, v)
}

// Throw raises exc at the pending yield.
func (g *Generator) Throw(exc Value) (Value, error) {
	return g.invoke(resumeThrow, exc)
}

// invoke is the Go entry point: protocol misuse comes back as *TypeError
// and escaping script exceptions as *ThrowError.
func (g *Generator) invoke(mode resumeMode, v Value) (Value, error) {
	if g.state == GeneratorExecuting {
		return Undefined, &TypeError{Message: "Generator is already running"}
	}
	if g.fn.Closed() {
		return Undefined, ErrProgramClosed
	}
	result := g.resume(mode, v)
	if err := g.engine.TakeError(); err != nil {
		return Undefined, err
	}
	return result, nil
}

// resume runs one burst. Errors are raised on the engine's pending
// exception slot.
func (g *Generator) resume(mode resumeMode, v Value) Value {
	e := g.engine

	switch g.state {
	case GeneratorExecuting:
		e.ThrowTypeError("Generator is already running")
		return Undefined

	case GeneratorCompleted:
		switch mode {
		case resumeNext:
			return IterResult(Undefined, true)
		case resumeReturn:
			return IterResult(v, true)
		default:
			e.Throw(v)
			return Undefined
		}

	case GeneratorSuspendedStart:
		switch mode {
		case resumeReturn:
			g.complete()
			return IterResult(v, true)
		case resumeThrow:
			g.complete()
			e.Throw(v)
			return Undefined
		}
	}

	if g.fn.Closed() {
		e.ThrowTypeError("function %s belongs to a closed program", g.fn.Name)
		return Undefined
	}

	f := g.frame
	invariant(f.Parked(), "generator %s has no parked frame", g.fn.Name)
	f.checkLayout()
	if !e.enter() {
		return Undefined
	}

	g.setState(GeneratorExecuting, mode)
	f.Push(e)
	marker := f.ClearYield()
	f.pc = marker.Resume

	switch mode {
	case resumeNext:
		f.slots[0] = v
	case resumeReturn:
		f.slots[0] = Empty
		f.forced = v
	case resumeThrow:
		f.slots[0] = Undefined
		e.Throw(v)
	}

	result := e.run(f)

	f.Pop(e)
	e.leave()

	next := f.Yield()
	invariant(next == nil || !e.hasException, "generator %s parked with a pending exception", g.fn.Name)
	if next != nil {
		g.setState(GeneratorSuspendedYield, mode)
	} else {
		g.complete()
	}
	if e.hasException {
		return Undefined
	}
	if next != nil && next.Delegate {
		return result
	}
	return IterResult(result, next == nil)
}

func (g *Generator) setState(s GeneratorState, mode resumeMode) {
	g.engine.log.Debugf("generator %s (%s): %s -> %s on %s", g.fn.Name, g.ID(), g.state, s, mode)
	g.state = s
}

func (g *Generator) complete() {
	if g.state != GeneratorCompleted {
		g.engine.log.Debugf("generator %s (%s): %s -> %s", g.fn.Name, g.ID(), g.state, GeneratorCompleted)
	}
	g.state = GeneratorCompleted
	g.frame = nil
}

// ---------------------------------------------------------------------------
// Script-visible methods
// ---------------------------------------------------------------------------

var generatorMethods map[string]*Native

func init() {
	method := func(name string, mode resumeMode) *Native {
		return &Native{Name: name, Fn: func(e *Engine, this Value, args []Value) Value {
			g := this.AsGenerator()
			if g == nil {
				e.ThrowTypeError("%s method called on incompatible receiver %s", name, describe(this))
				return Undefined
			}
			return g.resume(mode, Arg(args, 0))
		}}
	}
	generatorMethods = map[string]*Native{
		"next":   method("next", resumeNext),
		"return": method("return", resumeReturn),
		"throw":  method("throw", resumeThrow),
	}
}
