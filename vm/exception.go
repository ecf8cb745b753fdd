package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Go-level errors
// ---------------------------------------------------------------------------

// TypeError reports misuse of the generator protocol from Go, such as
// resuming a generator that is already executing.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string {
	return "TypeError: " + e.Message
}

// ThrowError carries a script exception that escaped to Go.
type ThrowError struct {
	Value Value    // the thrown script value
	Trace []string // frames active when it was raised, innermost first
}

func (e *ThrowError) Error() string {
	return "uncaught exception: " + e.Value.ToString()
}

// Format prints the trace with %+v.
func (e *ThrowError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprint(s, e.Error())
			for _, line := range e.Trace {
				fmt.Fprintf(s, "\n    at %s", line)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// InvariantViolation is panicked when frame layout or suspension
// bookkeeping is inconsistent. It indicates a bug in the engine or in the
// compiled code, never a script error.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Message
}

func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantViolation{Message: fmt.Sprintf(format, args...)})
	}
}

// ---------------------------------------------------------------------------
// Pending exception slot
// ---------------------------------------------------------------------------

// Throw raises v as a script exception. Natives call it and return; the
// interpreter unwinds on its next dispatch.
func (e *Engine) Throw(v Value) {
	e.exception = v
	e.hasException = true
	e.excTrace = e.StackTrace()
}

// ThrowTypeError raises a script TypeError.
func (e *Engine) ThrowTypeError(format string, args ...any) {
	e.Throw(ObjectValue(NewErrorObject("TypeError", fmt.Sprintf(format, args...))))
}

// ThrowRangeError raises a script RangeError.
func (e *Engine) ThrowRangeError(format string, args ...any) {
	e.Throw(ObjectValue(NewErrorObject("RangeError", fmt.Sprintf(format, args...))))
}

// ThrowReferenceError raises a script ReferenceError.
func (e *Engine) ThrowReferenceError(format string, args ...any) {
	e.Throw(ObjectValue(NewErrorObject("ReferenceError", fmt.Sprintf(format, args...))))
}

// HasException reports whether an exception is pending.
func (e *Engine) HasException() bool {
	return e.hasException
}

// takeException clears and returns the pending exception.
func (e *Engine) takeException() (Value, []string) {
	v, trace := e.exception, e.excTrace
	e.exception = Undefined
	e.hasException = false
	e.excTrace = nil
	return v, trace
}

// TakeError converts a pending exception into a *ThrowError and clears it.
// It returns nil when nothing is pending.
func (e *Engine) TakeError() error {
	if !e.hasException {
		return nil
	}
	v, trace := e.takeException()
	return &ThrowError{Value: v, Trace: trace}
}

// StackTrace describes the active frame chain, innermost first.
func (e *Engine) StackTrace() []string {
	var out []string
	for f := e.current; f != nil; f = f.parent {
		if len(out) == maxTraceFrames {
			out = append(out, "...")
			break
		}
		name := f.fn.Name
		if name == "" {
			name = "<anonymous>"
		}
		if line := f.fn.LineFor(max(f.pc-1, 0)); line > 0 {
			out = append(out, fmt.Sprintf("%s (line %d)", name, line))
		} else {
			out = append(out, name)
		}
	}
	return out
}
