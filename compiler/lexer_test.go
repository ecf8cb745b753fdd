package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) [ ] { } , ; : . ?`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenSemicolon, ";"},
		{TokenColon, ":"},
		{TokenDot, "."},
		{TokenQuestion, "?"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerOperators(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
	}{
		{"=", TokenAssign},
		{"+=", TokenPlusAssign},
		{"-=", TokenMinusAssign},
		{"*=", TokenStarAssign},
		{"/=", TokenSlashAssign},
		{"%=", TokenPercentAssign},
		{"+", TokenPlus},
		{"-", TokenMinus},
		{"*", TokenStar},
		{"/", TokenSlash},
		{"%", TokenPercent},
		{"++", TokenIncrement},
		{"--", TokenDecrement},
		{"!", TokenBang},
		{"==", TokenEq},
		{"!=", TokenNotEq},
		{"===", TokenStrictEq},
		{"!==", TokenStrictNotEq},
		{"<", TokenLt},
		{"<=", TokenLe},
		{">", TokenGt},
		{">=", TokenGe},
		{"&&", TokenAnd},
		{"||", TokenOr},
	}

	for _, tc := range tests {
		toks := Tokenize(tc.input)
		if len(toks) != 2 {
			t.Errorf("Tokenize(%q) = %v, want one token and EOF", tc.input, toks)
			continue
		}
		if toks[0].Type != tc.want {
			t.Errorf("Tokenize(%q) type = %v, want %v", tc.input, toks[0].Type, tc.want)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"0", "0"},
		{"3.14", "3.14"},
		{".5", ".5"},
		{"1e10", "1e10"},
		{"1.5e-3", "1.5e-3"},
		{"2E+5", "2E+5"},
		{"0xFF", "0xFF"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want NUMBER", tc.input, tok.Type)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerMemberAfterNumber(t *testing.T) {
	toks := Tokenize("1.toString")
	// "1." followed by an identifier is a number then a dot.
	if toks[0].Type != TokenNumber || toks[0].Literal != "1" {
		t.Fatalf("first token = %v, want NUMBER(1)", toks[0])
	}
	if toks[1].Type != TokenDot {
		t.Errorf("second token = %v, want .", toks[1])
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`""`, ""},
		{`'it\'s'`, "it's"},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"A"`, "A"},
		{`"こんにちは"`, "こんにちは"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%s): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%s): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
	}{
		{"function", TokenFunction},
		{"let", TokenLet},
		{"const", TokenConst},
		{"var", TokenVar},
		{"yield", TokenYield},
		{"typeof", TokenTypeof},
		{"undefined", TokenUndefined},
		{"of", TokenIdentifier},
		{"foo", TokenIdentifier},
		{"_private", TokenIdentifier},
		{"$el", TokenIdentifier},
		{"x1", TokenIdentifier},
		{"café", TokenIdentifier},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.want {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.want)
		}
		if tok.Literal != tc.input {
			t.Errorf("Lexer(%q): literal = %q", tc.input, tok.Literal)
		}
	}
}

func TestLexerComments(t *testing.T) {
	toks := Tokenize("a // comment\n/* block\ncomment */ b")
	if len(toks) != 3 {
		t.Fatalf("Tokenize = %v, want a, b, EOF", toks)
	}
	if toks[0].Literal != "a" || toks[1].Literal != "b" {
		t.Errorf("tokens = %v", toks)
	}
	if toks[1].Pos.Line != 3 {
		t.Errorf("b line = %d, want 3", toks[1].Pos.Line)
	}
}

func TestLexerPositions(t *testing.T) {
	toks := Tokenize("let x\n  = 1")
	want := []Position{
		{Offset: 0, Line: 1, Column: 1},
		{Offset: 4, Line: 1, Column: 5},
		{Offset: 8, Line: 2, Column: 3},
		{Offset: 10, Line: 2, Column: 5},
	}
	for i, w := range want {
		if toks[i].Pos != w {
			t.Errorf("token[%d] %v pos = %+v, want %+v", i, toks[i], toks[i].Pos, w)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"open`, "unterminated string"},
		{"\"line\nbreak\"", "unterminated string"},
		{`/* open`, "unterminated comment"},
		{`0x`, "malformed hex literal"},
		{`1e+`, "malformed exponent"},
		{`12abc`, "identifier starts immediately after number"},
		{`"\u00G1"`, `malformed \u escape`},
		{`@`, "unexpected character '@'"},
	}

	for _, tc := range tests {
		toks := Tokenize(tc.input)
		last := toks[len(toks)-1]
		if last.Type != TokenError {
			t.Errorf("Tokenize(%q) last = %v, want ERROR", tc.input, last)
			continue
		}
		if last.Literal != tc.want {
			t.Errorf("Tokenize(%q) error = %q, want %q", tc.input, last.Literal, tc.want)
		}
	}
}
