package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/genvm/vm"
)

func mustCompile(t *testing.T, src string) *vm.Program {
	t.Helper()
	prog, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return prog
}

func lookupFn(t *testing.T, prog *vm.Program, name string) *vm.Function {
	t.Helper()
	fn, ok := prog.Lookup(name)
	if !ok {
		t.Fatalf("function %s not found", name)
	}
	return fn
}

// opcodes decodes fn's instruction stream.
func opcodes(fn *vm.Function) []vm.Opcode {
	var ops []vm.Opcode
	r := vm.NewBytecodeReader(fn.Code)
	for r.HasMore() {
		op := r.ReadOpcode()
		ops = append(ops, op)
		r.Skip(op.OperandBytes())
	}
	return ops
}

func countOp(fn *vm.Function, want vm.Opcode) int {
	n := 0
	for _, op := range opcodes(fn) {
		if op == want {
			n++
		}
	}
	return n
}

func TestCompileProgramLayout(t *testing.T) {
	prog := mustCompile(t, `
function* g(x) {
	let a = yield x
	yield a * 2
}
let answer = 42
`)
	if len(prog.Functions) != 2 {
		t.Fatalf("functions = %d, want 2", len(prog.Functions))
	}
	main := prog.Main()
	if main.Name != "main" || main.Generator || main.Index != 0 {
		t.Errorf("main = %+v", main)
	}

	g := lookupFn(t, prog, "g")
	if !g.Generator {
		t.Error("g should be a generator")
	}
	if g.ParamCount != 1 || g.LocalCount != 1 {
		t.Errorf("g params=%d locals=%d, want 1 and 1", g.ParamCount, g.LocalCount)
	}
	if g.MaxStack < 2 {
		t.Errorf("g MaxStack = %d, want at least 2", g.MaxStack)
	}
	if got := g.RequiredSlotCount(); got != 1+1+1+g.MaxStack {
		t.Errorf("RequiredSlotCount = %d", got)
	}
	if strings.Join(g.SlotNames, ",") != "x,a" {
		t.Errorf("SlotNames = %v", g.SlotNames)
	}
}

func TestCompileYieldSites(t *testing.T) {
	prog := mustCompile(t, `
function* g() {
	yield 1
	yield* [2, 3]
	let x = yield
}`)
	g := lookupFn(t, prog, "g")

	r := vm.NewBytecodeReader(g.Code)
	var delegates []bool
	for r.HasMore() {
		op := r.ReadOpcode()
		if op != vm.OpYield {
			r.Skip(op.OperandBytes())
			continue
		}
		delegate := r.ReadByte()
		if next := r.ReadOpcode(); next != vm.OpResume {
			t.Fatalf("YIELD followed by %s", next)
		}
		if r.ReadByte() != delegate {
			t.Errorf("RESUME delegate flag differs from its YIELD")
		}
		delegates = append(delegates, delegate != 0)
	}
	if fmt.Sprint(delegates) != "[false true false]" {
		t.Errorf("yield sites = %v, want [false true false]", delegates)
	}
}

func TestCompileGlobalsAndLocals(t *testing.T) {
	prog := mustCompile(t, `
let top = 1
function f(p) {
	let inner = p + top
	return inner
}
{
	let scoped = 2
}`)
	main := prog.Main()
	if n := countOp(main, vm.OpStoreGlobal); n != 2 {
		t.Errorf("main STORE_GLOBAL count = %d, want 2 (top and f)", n)
	}
	if main.LocalCount != 1 {
		t.Errorf("main LocalCount = %d, want 1 for the block-scoped let", main.LocalCount)
	}

	f := lookupFn(t, prog, "f")
	if countOp(f, vm.OpStoreGlobal) != 0 {
		t.Error("f should not store globals")
	}
	if countOp(f, vm.OpLoadGlobal) != 1 {
		t.Error("f should load top as a global")
	}
}

func TestCompileFunctionHoisting(t *testing.T) {
	prog := mustCompile(t, `
let r = later()
function later() { return 1 }`)
	ops := opcodes(prog.Main())
	if ops[0] != vm.OpFunction {
		t.Errorf("first op = %s, want FUNCTION (hoisted declaration)", ops[0])
	}
}

func TestCompileConstantPool(t *testing.T) {
	prog := mustCompile(t, `let a = "x" + "x" + 1 + 1 + 2`)
	consts := prog.Main().Constants
	seen := map[string]int{}
	for _, c := range consts {
		seen[c.Inspect()]++
	}
	for k, n := range seen {
		if n > 1 {
			t.Errorf("constant %s interned %d times", k, n)
		}
	}
	if seen[`"x"`] != 1 || seen["1"] != 1 || seen["2"] != 1 {
		t.Errorf("constants = %v", consts)
	}
}

func TestCompileLineTable(t *testing.T) {
	prog := mustCompile(t, "let a = 1\n\nlet b = 2\nprint(a, b)")
	main := prog.Main()
	lines := main.Lines()
	if len(lines) != 3 {
		t.Fatalf("line table = %v, want 3 entries", lines)
	}
	want := []int{1, 3, 4}
	for i, loc := range lines {
		if loc.Line != want[i] {
			t.Errorf("entry %d line = %d, want %d", i, loc.Line, want[i])
		}
		if got := main.LineFor(loc.Offset); got != loc.Line {
			t.Errorf("LineFor(%d) = %d, want %d", loc.Offset, got, loc.Line)
		}
	}
	if got := main.LineFor(lines[1].Offset + 1); got != 3 {
		t.Errorf("LineFor inside statement = %d, want 3", got)
	}
}

func TestCompileTryLayout(t *testing.T) {
	prog := mustCompile(t, `
try { f() } catch (e) { g(e) } finally { h() }`)
	main := prog.Main()
	if countOp(main, vm.OpPushTry) != 1 || countOp(main, vm.OpEndFinally) != 1 {
		t.Errorf("try layout:\n%s", main.Disassemble())
	}
	// One POP_TRY for the body and one for the catch-only finally handler.
	if n := countOp(main, vm.OpPopTry); n != 2 {
		t.Errorf("POP_TRY count = %d, want 2", n)
	}

	r := vm.NewBytecodeReader(main.Code)
	for r.HasMore() {
		op := r.ReadOpcode()
		if op != vm.OpPushTry {
			r.Skip(op.OperandBytes())
			continue
		}
		catch, finally := vm.ReadTryTargets(r)
		if catch < 0 || finally < 0 || catch >= finally {
			t.Errorf("targets catch=%d finally=%d", catch, finally)
		}
	}
}

func TestCompileBreakOutOfTry(t *testing.T) {
	prog := mustCompile(t, `
for (let i = 0; i < 3; i++) {
	try { if (i == 1) break } catch (e) {}
}`)
	// The break leaves the try body and pops its handler on the way.
	if n := countOp(prog.Main(), vm.OpPopTry); n != 2 {
		t.Errorf("POP_TRY count = %d, want 2", n)
	}
}

func TestCompileForOfBreakClosesIterator(t *testing.T) {
	prog := mustCompile(t, `for (let v of [1, 2]) { break }`)
	if countOp(prog.Main(), vm.OpIterClose) != 1 {
		t.Errorf("expected ITER_CLOSE on break:\n%s", prog.Main().Disassemble())
	}
}

func TestCompileForOfBodyClosesOnAbruptExit(t *testing.T) {
	prog := mustCompile(t, `for (let v of [1, 2]) { if (v) continue; f(v) }`)
	main := prog.Main()
	if countOp(main, vm.OpPushTry) != 1 || countOp(main, vm.OpIterCloseCompletion) != 1 || countOp(main, vm.OpEndFinally) != 1 {
		t.Errorf("for-of handler layout:\n%s", main.Disassemble())
	}
	// One POP_TRY at the end of the body and one for the continue.
	if n := countOp(main, vm.OpPopTry); n != 2 {
		t.Errorf("POP_TRY count = %d, want 2", n)
	}
	if countOp(main, vm.OpIterClose) != 0 {
		t.Errorf("continue must not close the iterator:\n%s", main.Disassemble())
	}
}

func TestCompileErrors(t *testing.T) {
	var many strings.Builder
	many.WriteString("function big() {\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&many, "let v%d = %d\n", i, i)
	}
	many.WriteString("}\n")

	tests := []struct {
		src  string
		want string
	}{
		{"const c = 1\nc = 2", `line 2:1: assignment to constant variable "c"`},
		{"function f() { const k = 1; k++ }", `assignment to constant variable "k"`},
		{"break", "break outside a loop"},
		{"continue", "continue outside a loop"},
		{"while (true) { try { break } finally {} }", "break across a finally block is not supported"},
		{"while (true) { try {} finally { continue } }", "continue out of a finally block is not supported"},
		{"function f() { let x = 1; function g() { return x } }", `g cannot refer to "x" of an enclosing function`},
		{many.String(), "too many local variables in big"},
		{"let = 1", "expected IDENTIFIER"},
	}

	for _, tc := range tests {
		_, err := Compile(tc.src)
		if err == nil {
			t.Errorf("Compile(%.30q): expected error", tc.src)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Compile(%.30q) error = %q, want it to contain %q", tc.src, err, tc.want)
		}
	}
}

func TestCompileDisassembly(t *testing.T) {
	prog := mustCompile(t, "function* g(n) { yield n }")
	out := lookupFn(t, prog, "g").Disassemble()
	for _, want := range []string{"function* g (#1) params=1", "slots: 1=n", "YIELD", "RESUME", "LOAD_LOCAL 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
