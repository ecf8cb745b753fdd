package compiler

import (
	"fmt"
	"strings"
	"testing"
)

func parseOne(t *testing.T, src string) Stmt {
	t.Helper()
	script, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	if len(script.Body) != 1 {
		t.Fatalf("Parse(%q): got %d statements, want 1", src, len(script.Body))
	}
	return script.Body[0]
}

func parseExpr(t *testing.T, src string) Expr {
	t.Helper()
	s, ok := parseOne(t, src).(*ExprStmt)
	if !ok {
		t.Fatalf("Parse(%q): not an expression statement", src)
	}
	return s.Expr
}

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		check func(Expr) bool
		desc  string
	}{
		{"42", func(e Expr) bool { return e.(*NumberLiteral).Value == 42 }, "integer"},
		{"3.14", func(e Expr) bool { return e.(*NumberLiteral).Value == 3.14 }, "float"},
		{"0x10", func(e Expr) bool { return e.(*NumberLiteral).Value == 16 }, "hex"},
		{"'hello'", func(e Expr) bool { return e.(*StringLiteral).Value == "hello" }, "string"},
		{"true", func(e Expr) bool { return e.(*BoolLiteral).Value }, "true"},
		{"null", func(e Expr) bool { _, ok := e.(*NullLiteral); return ok }, "null"},
		{"undefined", func(e Expr) bool { _, ok := e.(*UndefinedLiteral); return ok }, "undefined"},
		{"this", func(e Expr) bool { _, ok := e.(*ThisExpr); return ok }, "this"},
		{"foo", func(e Expr) bool { return e.(*Identifier).Name == "foo" }, "identifier"},
	}

	for _, tc := range tests {
		if !tc.check(parseExpr(t, tc.input)) {
			t.Errorf("%s: check failed for %q", tc.desc, tc.input)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	e := parseExpr(t, "a + b * c")
	add, ok := e.(*BinaryExpr)
	if !ok || add.Op != TokenPlus {
		t.Fatalf("top = %T, want + BinaryExpr", e)
	}
	if mul, ok := add.Right.(*BinaryExpr); !ok || mul.Op != TokenStar {
		t.Errorf("right = %T, want * BinaryExpr", add.Right)
	}

	e = parseExpr(t, "a || b && c")
	or, ok := e.(*LogicalExpr)
	if !ok || or.Op != TokenOr {
		t.Fatalf("top = %T, want || LogicalExpr", e)
	}
	if and, ok := or.Right.(*LogicalExpr); !ok || and.Op != TokenAnd {
		t.Errorf("right = %T, want && LogicalExpr", or.Right)
	}

	e = parseExpr(t, "a - b - c")
	sub := e.(*BinaryExpr)
	if _, ok := sub.Left.(*BinaryExpr); !ok {
		t.Errorf("a - b - c should associate to the left")
	}

	e = parseExpr(t, "x = y = 1")
	outer := e.(*AssignExpr)
	if _, ok := outer.Value.(*AssignExpr); !ok {
		t.Errorf("x = y = 1 should associate to the right")
	}

	e = parseExpr(t, "c ? a : b")
	if _, ok := e.(*ConditionalExpr); !ok {
		t.Errorf("c ? a : b = %T, want ConditionalExpr", e)
	}
}

func TestParserCallsAndMembers(t *testing.T) {
	e := parseExpr(t, "gen.next(1, 2)")
	call, ok := e.(*CallExpr)
	if !ok {
		t.Fatalf("got %T, want CallExpr", e)
	}
	if len(call.Args) != 2 {
		t.Errorf("args = %d, want 2", len(call.Args))
	}
	m, ok := call.Callee.(*MemberExpr)
	if !ok || m.Name != "next" {
		t.Errorf("callee = %#v, want member next", call.Callee)
	}

	// Reserved words are valid property names.
	for _, src := range []string{"g.return(1)", "g.throw(e)", "o.yield"} {
		parseExpr(t, src)
	}

	e = parseExpr(t, "a[0][1]")
	idx, ok := e.(*IndexExpr)
	if !ok {
		t.Fatalf("got %T, want IndexExpr", e)
	}
	if _, ok := idx.Object.(*IndexExpr); !ok {
		t.Errorf("inner = %T, want IndexExpr", idx.Object)
	}
}

func TestParserUpdate(t *testing.T) {
	tests := []struct {
		src    string
		prefix bool
		op     TokenType
	}{
		{"++i", true, TokenIncrement},
		{"i++", false, TokenIncrement},
		{"--o.n", true, TokenDecrement},
		{"a[0]--", false, TokenDecrement},
	}
	for _, tc := range tests {
		u, ok := parseExpr(t, tc.src).(*UpdateExpr)
		if !ok {
			t.Errorf("%s: not an UpdateExpr", tc.src)
			continue
		}
		if u.Prefix != tc.prefix || u.Op != tc.op {
			t.Errorf("%s: prefix=%v op=%v", tc.src, u.Prefix, u.Op)
		}
	}
}

func TestParserObjectLiteral(t *testing.T) {
	e := parseExpr(t, `({a: 1, "b c": 2, 3: 4, d, return: 5})`)
	obj, ok := e.(*ObjectLiteral)
	if !ok {
		t.Fatalf("got %T, want ObjectLiteral", e)
	}
	var keys []string
	for _, p := range obj.Props {
		keys = append(keys, p.Key)
	}
	if got := strings.Join(keys, "|"); got != "a|b c|3|d|return" {
		t.Errorf("keys = %q", got)
	}
	if id, ok := obj.Props[3].Value.(*Identifier); !ok || id.Name != "d" {
		t.Errorf("shorthand value = %#v", obj.Props[3].Value)
	}
}

func TestParserFunctions(t *testing.T) {
	fd, ok := parseOne(t, "function* gen(a, b) { yield a; }").(*FunctionDecl)
	if !ok {
		t.Fatal("not a FunctionDecl")
	}
	if !fd.Generator || fd.Name != "gen" || len(fd.Params) != 2 || len(fd.Body) != 1 {
		t.Errorf("decl = %+v", fd)
	}

	vd := parseOne(t, "let g = function*() { yield* other() }").(*VarDecl)
	fe, ok := vd.Init.(*FunctionExpr)
	if !ok || !fe.Func.Generator || fe.Func.Name != "" {
		t.Fatalf("init = %#v, want anonymous generator expression", vd.Init)
	}
	y := fe.Func.Body[0].(*ExprStmt).Expr.(*YieldExpr)
	if !y.Delegate || y.Arg == nil {
		t.Errorf("yield = %+v, want delegating yield with argument", y)
	}
}

func TestParserYieldForms(t *testing.T) {
	fd := parseOne(t, `function* g() {
		yield
		let a = yield 10
		f(yield, 2)
		return yield* inner
	}`).(*FunctionDecl)

	bare := fd.Body[0].(*ExprStmt).Expr.(*YieldExpr)
	if bare.Arg != nil {
		t.Errorf("bare yield has argument %T", bare.Arg)
	}
	withArg := fd.Body[1].(*VarDecl).Init.(*YieldExpr)
	if n, ok := withArg.Arg.(*NumberLiteral); !ok || n.Value != 10 {
		t.Errorf("yield 10 argument = %#v", withArg.Arg)
	}
	call := fd.Body[2].(*ExprStmt).Expr.(*CallExpr)
	if y, ok := call.Args[0].(*YieldExpr); !ok || y.Arg != nil {
		t.Errorf("f(yield, 2) first arg = %#v", call.Args[0])
	}
	ret := fd.Body[3].(*ReturnStmt)
	if y, ok := ret.Value.(*YieldExpr); !ok || !y.Delegate {
		t.Errorf("return value = %#v, want yield*", ret.Value)
	}
}

func TestParserStatements(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"let x = 1", "*compiler.VarDecl"},
		{"const y = 2;", "*compiler.VarDecl"},
		{"if (a) b(); else c()", "*compiler.IfStmt"},
		{"while (x) { x-- }", "*compiler.WhileStmt"},
		{"for (let i = 0; i < 3; i++) {}", "*compiler.ForStmt"},
		{"for (;;) break", "*compiler.ForStmt"},
		{"for (const v of xs) print(v)", "*compiler.ForOfStmt"},
		{"for (v of xs) {}", "*compiler.ForOfStmt"},
		{"try { a() } catch (e) { b(e) } finally { c() }", "*compiler.TryStmt"},
		{"try { a() } catch { b() }", "*compiler.TryStmt"},
		{"try { a() } finally { c() }", "*compiler.TryStmt"},
		{"throw new_error", "*compiler.ThrowStmt"},
		{";", "*compiler.EmptyStmt"},
		{"{ a; b }", "*compiler.BlockStmt"},
	}
	for _, tc := range tests {
		s := parseOne(t, tc.src)
		if got := fmt.Sprintf("%T", s); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestParserForOf(t *testing.T) {
	s := parseOne(t, "for (let x of [1, 2]) {}").(*ForOfStmt)
	if !s.Declare || s.Name != "x" {
		t.Errorf("for-of = %+v", s)
	}
	if _, ok := s.Iterable.(*ArrayLiteral); !ok {
		t.Errorf("iterable = %T", s.Iterable)
	}

	// "of" is an ordinary identifier elsewhere.
	vd := parseOne(t, "let of = 1").(*VarDecl)
	if vd.Name != "of" {
		t.Errorf("name = %q, want of", vd.Name)
	}
}

func TestParserAutomaticSemicolons(t *testing.T) {
	script, err := Parse("let a = 1\nlet b = 2\na\n++b\nreturn\nb")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(script.Body) != 6 {
		t.Fatalf("got %d statements, want 6", len(script.Body))
	}
	if u, ok := script.Body[3].(*ExprStmt).Expr.(*UpdateExpr); !ok || !u.Prefix {
		t.Errorf("++b should start a new statement")
	}
	if r := script.Body[4].(*ReturnStmt); r.Value != nil {
		t.Errorf("return followed by a line break should have no value")
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"let = 1", "line 1:5: expected IDENTIFIER, got \"=\""},
		{"const c", "missing initializer in const declaration"},
		{"let a = 1, b = 2", "declare one variable per statement"},
		{"function () {}", "function statement requires a name"},
		{"function f(a, a) {}", "duplicate parameter a"},
		{"yield 1", "yield is only valid in generator functions"},
		{"function* g() { function h() { yield 1 } }", "yield is only valid in generator functions"},
		{"try {}", "try without catch or finally"},
		{"1 = 2", "invalid assignment target"},
		{"f()++", "invalid increment/decrement target"},
		{"a b", "expected ;, got IDENTIFIER b"},
		{"{ a", "unterminated block"},
		{"throw\nx", "line break after throw"},
		{"x = \"open", "unterminated string"},
		{"({1a: 2})", "identifier starts immediately after number"},
		{")", "unexpected \")\""},
	}

	for _, tc := range tests {
		_, err := Parse(tc.src)
		if err == nil {
			t.Errorf("Parse(%q): expected error", tc.src)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Parse(%q) error = %q, want it to contain %q", tc.src, err, tc.want)
		}
		if _, ok := err.(*Error); !ok {
			t.Errorf("Parse(%q) error type = %T, want *Error", tc.src, err)
		}
	}
}
