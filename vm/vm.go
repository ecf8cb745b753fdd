package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Engine: the script virtual machine
// ---------------------------------------------------------------------------

// DefaultMaxCallDepth bounds the number of simultaneously active frames.
const DefaultMaxCallDepth = 512

// maxTraceFrames bounds the frames recorded for a thrown exception.
const maxTraceFrames = 32

// Engine owns the global bindings, the chain of active frames, and the
// single pending-exception slot. An Engine is not safe for concurrent use.
type Engine struct {
	Globals map[string]Value

	current *StackFrame // head of the active chain
	depth   int

	// Pending exception
	exception    Value
	hasException bool
	excTrace     []string

	maxDepth int
	seal     bool
	tracing  bool
	out      io.Writer
	log      commonlog.Logger

	program *Program // most recently run program
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxCallDepth sets the active frame limit. Exceeding it raises a
// RangeError in the script.
func WithMaxCallDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithOutput redirects print().
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithTrace logs every dispatched instruction at debug level.
func WithTrace(on bool) Option {
	return func(e *Engine) { e.tracing = on }
}

// WithSealedCode makes Run seal a program's code into an executable,
// read-only region before executing it.
func WithSealedCode(on bool) Option {
	return func(e *Engine) { e.seal = on }
}

// WithLogger replaces the default "genvm.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an engine with the builtin globals installed.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		Globals:  make(map[string]Value),
		maxDepth: DefaultMaxCallDepth,
		out:      os.Stdout,
		log:      commonlog.GetLogger("genvm.vm"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.installBuiltins()
	return e
}

// Logger returns the engine's logger.
func (e *Engine) Logger() commonlog.Logger {
	return e.log
}

// Output returns the writer print() uses.
func (e *Engine) Output() io.Writer {
	return e.out
}

// MaxCallDepth returns the active frame limit.
func (e *Engine) MaxCallDepth() int {
	return e.maxDepth
}

// Program returns the most recently run program.
func (e *Engine) Program() *Program {
	return e.program
}

// Current returns the innermost active frame, or nil when idle.
func (e *Engine) Current() *StackFrame {
	return e.current
}

// Global returns a global binding.
func (e *Engine) Global(name string) (Value, bool) {
	v, ok := e.Globals[name]
	return v, ok
}

// SetGlobal creates or replaces a global binding.
func (e *Engine) SetGlobal(name string, v Value) {
	e.Globals[name] = v
}

// Load prepares prog without running it: it is sealed if the engine is
// configured to, and becomes the engine's current program.
func (e *Engine) Load(prog *Program) error {
	if prog.Closed() {
		return ErrProgramClosed
	}
	if e.seal {
		if err := prog.Seal(); err != nil {
			return err
		}
	}
	e.program = prog
	return nil
}

// Run executes the top-level body of prog.
func (e *Engine) Run(prog *Program) error {
	if err := e.Load(prog); err != nil {
		return err
	}
	e.log.Debugf("run program %s (%d functions, sealed=%t)", prog.Hash()[:12], len(prog.Functions), prog.Sealed())
	_, err := e.Call(FunctionValue(prog.Main()), Undefined)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// Call invokes a script or native function from Go. Script exceptions are
// returned as *ThrowError.
func (e *Engine) Call(fn Value, this Value, args ...Value) (Value, error) {
	if f := fn.AsFunction(); f != nil && f.Closed() {
		return Undefined, ErrProgramClosed
	}
	result := e.call(fn, this, args)
	if err := e.TakeError(); err != nil {
		return Undefined, err
	}
	return result, nil
}

// CallGlobal looks up a global function by name and calls it.
func (e *Engine) CallGlobal(name string, args ...Value) (Value, error) {
	fn, ok := e.Globals[name]
	if !ok {
		return Undefined, fmt.Errorf("call %s: %w", name, &TypeError{Message: name + " is not defined"})
	}
	return e.Call(fn, Undefined, args...)
}

// call dispatches on the callee kind. Exceptions are left pending.
func (e *Engine) call(callee Value, this Value, args []Value) Value {
	switch callee.kind {
	case KindNative:
		return callee.ref.(*Native).Fn(e, this, args)

	case KindFunction:
		fn := callee.ref.(*Function)
		if fn.Closed() {
			e.ThrowTypeError("function %s belongs to a closed program", fn.Name)
			return Undefined
		}
		if fn.Generator {
			return GeneratorValue(newGenerator(e, fn, this, args))
		}
		if !e.enter() {
			return Undefined
		}
		frame := NewFrame(fn, this, args)
		frame.Push(e)
		result := e.run(frame)
		frame.Pop(e)
		e.leave()
		return result
	}
	e.ThrowTypeError("%s is not a function", callee.Inspect())
	return Undefined
}

// enter accounts for one more active frame.
func (e *Engine) enter() bool {
	if e.depth >= e.maxDepth {
		e.ThrowRangeError("Maximum call stack size exceeded")
		return false
	}
	e.depth++
	return true
}

func (e *Engine) leave() {
	e.depth--
}
