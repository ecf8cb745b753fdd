package vm_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/genvm/compiler"
	"github.com/chazu/genvm/vm"
)

// startGenerator compiles src, runs its top level and calls the generator
// function name.
func startGenerator(t *testing.T, src, name string, args ...vm.Value) (*vm.Engine, *vm.Generator, *bytes.Buffer) {
	t.Helper()
	prog, err := compiler.Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var out bytes.Buffer
	e := vm.NewEngine(vm.WithOutput(&out))
	if err := e.Run(prog); err != nil {
		t.Fatalf("Run: %v", err)
	}
	gv, err := e.CallGlobal(name, args...)
	if err != nil {
		t.Fatalf("CallGlobal(%s): %v", name, err)
	}
	g := gv.AsGenerator()
	if g == nil {
		t.Fatalf("%s() = %s, want a generator", name, gv)
	}
	return e, g, &out
}

type step func(*vm.Generator) (vm.Value, error)

func next(v vm.Value) step  { return func(g *vm.Generator) (vm.Value, error) { return g.Next(v) } }
func ret(v vm.Value) step   { return func(g *vm.Generator) (vm.Value, error) { return g.Return(v) } }
func throw(v vm.Value) step { return func(g *vm.Generator) (vm.Value, error) { return g.Throw(v) } }

// expect runs s and compares the inspected result.
func expect(t *testing.T, g *vm.Generator, s step, want string) {
	t.Helper()
	got, err := s(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Inspect() != want {
		t.Errorf("result = %s, want %s", got.Inspect(), want)
	}
}

func TestGeneratorScenario(t *testing.T) {
	_, g, _ := startGenerator(t, `function* g() { let a = yield 10; yield a * 2 }`, "g")

	if g.State() != vm.GeneratorSuspendedStart {
		t.Fatalf("fresh state = %s", g.State())
	}
	expect(t, g, next(vm.Undefined), "{ value: 10, done: false }")
	expect(t, g, next(vm.Number(5)), "{ value: 10, done: false }")
	if g.State() != vm.GeneratorSuspendedYield {
		t.Errorf("state = %s, want suspendedYield", g.State())
	}
	expect(t, g, next(vm.Undefined), "{ value: undefined, done: true }")
	if g.State() != vm.GeneratorCompleted || g.Frame() != nil {
		t.Errorf("state = %s, frame released = %v", g.State(), g.Frame() == nil)
	}
}

func TestGeneratorDoesNotAutoRun(t *testing.T) {
	_, g, out := startGenerator(t, `function* g() { print("started"); yield 1 }`, "g")
	if out.Len() != 0 {
		t.Fatalf("body ran before next: %q", out.String())
	}
	f := g.Frame()
	if f == nil || !f.Parked() || f.Yield().Resume != 0 || f.Yield().Delegate {
		t.Fatalf("fresh generator frame is not parked at entry")
	}
	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	if out.String() != "started\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestGeneratorReentrancy(t *testing.T) {
	prog, err := compiler.Compile(`function* g() { let r = reenter(); yield r }`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	e := vm.NewEngine()
	if err := e.Run(prog); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var g *vm.Generator
	var innerErr error
	var innerState vm.GeneratorState
	e.SetGlobal("reenter", vm.NewNative("reenter", func(e *vm.Engine, this vm.Value, args []vm.Value) vm.Value {
		_, innerErr = g.Next(vm.Undefined)
		innerState = g.State()
		return vm.String("inner returned")
	}))

	gv, err := e.CallGlobal("g")
	if err != nil {
		t.Fatalf("CallGlobal: %v", err)
	}
	g = gv.AsGenerator()

	expect(t, g, next(vm.Undefined), `{ value: "inner returned", done: false }`)

	var te *vm.TypeError
	if !errors.As(innerErr, &te) || te.Message != "Generator is already running" {
		t.Errorf("re-entrant Next error = %v, want TypeError", innerErr)
	}
	if innerState != vm.GeneratorExecuting {
		t.Errorf("state during misuse = %s, want executing", innerState)
	}
	if g.State() != vm.GeneratorSuspendedYield {
		t.Errorf("state after burst = %s", g.State())
	}

	// Return and Throw are guarded the same way.
	for _, s := range []step{ret(vm.Undefined), throw(vm.String("x"))} {
		var inner *vm.Generator
		innerErr = nil
		e.SetGlobal("reenter", vm.NewNative("reenter", func(e *vm.Engine, this vm.Value, args []vm.Value) vm.Value {
			_, innerErr = s(inner)
			return vm.Undefined
		}))
		gv, err := e.CallGlobal("g")
		if err != nil {
			t.Fatalf("CallGlobal: %v", err)
		}
		inner = gv.AsGenerator()
		if _, err := inner.Next(vm.Undefined); err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !errors.As(innerErr, &te) {
			t.Errorf("re-entrant call error = %v, want TypeError", innerErr)
		}
	}
}

func TestGeneratorCompletedIsIdempotent(t *testing.T) {
	_, g, out := startGenerator(t, `function* g() { print("once"); return 1 }`, "g")
	expect(t, g, next(vm.Undefined), "{ value: 1, done: true }")

	for _, v := range []vm.Value{vm.Undefined, vm.Number(3), vm.String("x")} {
		expect(t, g, next(v), "{ value: undefined, done: true }")
	}
	expect(t, g, ret(vm.Number(8)), "{ value: 8, done: true }")
	if out.String() != "once\n" {
		t.Errorf("body ran again: %q", out.String())
	}

	_, err := g.Throw(vm.String("late"))
	var te *vm.ThrowError
	if !errors.As(err, &te) || te.Value.AsString() != "late" {
		t.Errorf("Throw on completed = %v, want the value rethrown", err)
	}
	if g.State() != vm.GeneratorCompleted {
		t.Errorf("state = %s", g.State())
	}
}

func TestGeneratorReturnRunsFinally(t *testing.T) {
	_, g, out := startGenerator(t, `
function* g() {
	try {
		yield 1
		yield 2
	} finally {
		print("cleanup")
	}
}`, "g")
	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	expect(t, g, ret(vm.Number(7)), "{ value: 7, done: true }")
	if out.String() != "cleanup\n" {
		t.Errorf("output = %q, want cleanup", out.String())
	}
	if g.State() != vm.GeneratorCompleted {
		t.Errorf("state = %s", g.State())
	}
}

func TestGeneratorFinallyOverridesReturn(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
		err  string
	}{
		{
			name: "finally returns",
			src:  `function* g() { try { yield 1 } finally { return "override" } }`,
			want: `{ value: "override", done: true }`,
		},
		{
			name: "finally throws",
			src:  `function* g() { try { yield 1 } finally { throw "from finally" } }`,
			err:  "from finally",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, g, _ := startGenerator(t, tc.src, "g")
			expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
			got, err := g.Return(vm.Number(7))
			if tc.err != "" {
				var te *vm.ThrowError
				if !errors.As(err, &te) || te.Value.ToString() != tc.err {
					t.Errorf("Return error = %v, want %q thrown", err, tc.err)
				}
			} else if err != nil || got.Inspect() != tc.want {
				t.Errorf("Return = %s, %v, want %s", got.Inspect(), err, tc.want)
			}
			if g.State() != vm.GeneratorCompleted {
				t.Errorf("state = %s", g.State())
			}
		})
	}
}

func TestGeneratorReturnBeforeStart(t *testing.T) {
	_, g, out := startGenerator(t, `
function* g() {
	try { print("body") } finally { print("finally") }
	yield 1
}`, "g")
	expect(t, g, ret(vm.String("early")), `{ value: "early", done: true }`)
	if out.Len() != 0 {
		t.Errorf("body ran: %q", out.String())
	}
	if g.State() != vm.GeneratorCompleted {
		t.Errorf("state = %s", g.State())
	}
	expect(t, g, next(vm.Undefined), "{ value: undefined, done: true }")
}

func TestGeneratorInjectedValues(t *testing.T) {
	_, g, _ := startGenerator(t, `function* g() { let x = yield 1; return x + 1 }`, "g")
	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	expect(t, g, next(vm.Number(41)), "{ value: 42, done: true }")
}

func TestGeneratorThrowIsCatchable(t *testing.T) {
	_, g, _ := startGenerator(t, `function* g() { try { yield 1 } catch (e) { return e } }`, "g")
	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	expect(t, g, throw(vm.String("boom")), `{ value: "boom", done: true }`)
}

func TestGeneratorThrowBeforeStart(t *testing.T) {
	_, g, out := startGenerator(t, `function* g() { try { yield 1 } catch (e) { print("caught") } }`, "g")
	_, err := g.Throw(vm.String("early"))
	var te *vm.ThrowError
	if !errors.As(err, &te) || te.Value.AsString() != "early" {
		t.Errorf("Throw = %v, want \"early\" rethrown", err)
	}
	if out.Len() != 0 {
		t.Errorf("body handlers ran: %q", out.String())
	}
	if g.State() != vm.GeneratorCompleted {
		t.Errorf("state = %s", g.State())
	}
}

func TestGeneratorUncaughtExceptionCompletes(t *testing.T) {
	_, g, _ := startGenerator(t, `function* g() { yield 1; throw Error("bad"); yield 2 }`, "g")
	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")

	_, err := g.Next(vm.Undefined)
	var te *vm.ThrowError
	if !errors.As(err, &te) || te.Value.ToString() != "Error: bad" {
		t.Fatalf("Next = %v, want Error: bad", err)
	}
	if g.State() != vm.GeneratorCompleted {
		t.Errorf("state = %s, want completed", g.State())
	}
	// No re-raise afterwards.
	expect(t, g, next(vm.Undefined), "{ value: undefined, done: true }")
}

func TestGeneratorDelegationReturnsRawResults(t *testing.T) {
	_, g, _ := startGenerator(t, `
function* inner() { let x = yield "a"; yield x; return "r" }
function* outer() { let v = yield* inner(); yield "after " + v }`, "outer")

	expect(t, g, next(vm.Undefined), `{ value: "a", done: false }`)
	expect(t, g, next(vm.String("sent")), `{ value: "sent", done: false }`)
	expect(t, g, next(vm.Undefined), `{ value: "after r", done: false }`)
	expect(t, g, next(vm.Undefined), "{ value: undefined, done: true }")
}

func TestGeneratorDelegationForwardsReturn(t *testing.T) {
	_, g, out := startGenerator(t, `
function* inner() { try { yield 1 } finally { print("inner cleanup") } }
function* outer() { try { yield* inner() } finally { print("outer cleanup") } }`, "outer")

	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	expect(t, g, ret(vm.Number(5)), "{ value: 5, done: true }")
	if out.String() != "inner cleanup\nouter cleanup\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestGeneratorReturnClosesForOfIterator(t *testing.T) {
	_, g, out := startGenerator(t, `
function* inner() { try { yield 1; yield 2 } finally { print("inner closed") } }
function* outer() { for (const x of inner()) { yield x } }`, "outer")

	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	expect(t, g, ret(vm.Number(3)), "{ value: 3, done: true }")
	if out.String() != "inner closed\n" {
		t.Errorf("output = %q, want inner closed", out.String())
	}
}

func TestGeneratorThrowClosesForOfIterator(t *testing.T) {
	_, g, out := startGenerator(t, `
function* inner() { try { yield 1; yield 2 } finally { print("inner closed") } }
function* outer() {
	try {
		for (const x of inner()) { yield x }
	} catch (e) {
		print("caught " + e)
	}
}`, "outer")

	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	expect(t, g, throw(vm.String("boom")), "{ value: undefined, done: true }")
	if out.String() != "inner closed\ncaught boom\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestGeneratorDelegationInnerDeclinesReturn(t *testing.T) {
	_, g, _ := startGenerator(t, `
function* inner() { try { yield 1 } finally { yield "still here" } }
function* outer() { yield* inner(); yield "resumed" }`, "outer")

	expect(t, g, next(vm.Undefined), "{ value: 1, done: false }")
	// The inner iterator yields from its finally block; its result is
	// handed out unchanged and the outer frame stays parked on yield*.
	expect(t, g, ret(vm.Number(5)), `{ value: "still here", done: false }`)
	if g.State() != vm.GeneratorSuspendedYield {
		t.Fatalf("state = %s", g.State())
	}
	if m := g.Frame().Yield(); m == nil || !m.Delegate {
		t.Errorf("marker = %+v, want a delegation site", m)
	}
	// The inner generator finishes its pending return; yield* evaluates to
	// its value and the outer body carries on.
	expect(t, g, next(vm.Undefined), `{ value: "resumed", done: false }`)
}

func TestGeneratorArgumentsAreCopied(t *testing.T) {
	args := []vm.Value{vm.Number(1), vm.Number(2)}
	_, g, _ := startGenerator(t, `function* g(a, b) { yield a + b }`, "g", args...)
	args[0] = vm.Number(100)
	if got := g.Args(); len(got) != 2 || got[0].AsNumber() != 1 {
		t.Errorf("Args = %v, want a private copy", got)
	}
	expect(t, g, next(vm.Undefined), "{ value: 3, done: false }")
}

func TestGeneratorIDIsStable(t *testing.T) {
	_, g, _ := startGenerator(t, `function* g() { yield 1 }`, "g")
	id := g.ID()
	if len(id) != 36 {
		t.Errorf("ID = %q, want a UUID", id)
	}
	if g.ID() != id {
		t.Error("ID changed between calls")
	}
}

func TestClosedProgramRaisesInScript(t *testing.T) {
	progA, err := compiler.Compile(`
function* g() { yield 1 }
function answer() { return 42 }
let it = g()`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	e := vm.NewEngine(vm.WithSealedCode(true))
	if err := e.Run(progA); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := progA.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tests := []struct {
		name, src, want string
	}{
		{"resume", `it.next()`, "TypeError: function g belongs to a closed program"},
		{"call", `answer()`, "TypeError: function answer belongs to a closed program"},
		{"create", `g()`, "TypeError: function g belongs to a closed program"},
		{"for-of", `for (const x of it) {}`, "TypeError: function g belongs to a closed program"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			progB, err := compiler.Compile(tc.src)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			err = e.Run(progB)
			var thrown *vm.ThrowError
			if !errors.As(err, &thrown) {
				t.Fatalf("Run = %v, want *vm.ThrowError", err)
			}
			if got := thrown.Value.ToString(); got != tc.want {
				t.Errorf("thrown = %q, want %q", got, tc.want)
			}
		})
	}

	it, _ := e.Global("it")
	if st := it.AsGenerator().State(); st != vm.GeneratorSuspendedStart {
		t.Errorf("generator state = %s, want it untouched", st)
	}
}
