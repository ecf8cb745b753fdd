package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error is a compile error with its source position.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// bailout unwinds the parser after the first error.
type bailout struct{}

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser
// ---------------------------------------------------------------------------

// Parser parses script source into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevLine  int // line of the last consumed token
	err       *Error

	generators []bool // innermost function is a generator
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevLine = p.curToken.Pos.Line
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError && p.err == nil {
		// Reported here; the parse fails once the token is reached.
		p.err = &Error{Pos: p.curToken.Pos, Msg: p.curToken.Literal}
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect consumes a token of type t or fails.
func (p *Parser) expect(t TokenType) Token {
	if !p.curTokenIs(t) {
		p.errorf("expected %s, got %s", t, describeToken(p.curToken))
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

// errorf records a parse error at the current token and stops parsing.
func (p *Parser) errorf(format string, args ...any) {
	p.errorAt(p.curToken.Pos, format, args...)
}

func (p *Parser) errorAt(pos Position, format string, args ...any) {
	if p.err == nil {
		p.err = &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}
	panic(bailout{})
}

func describeToken(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier, TokenNumber:
		return fmt.Sprintf("%s %s", t.Type, t.Literal)
	case TokenString:
		return "string " + strconv.Quote(t.Literal)
	}
	return strconv.Quote(t.Type.String())
}

// onNewLine reports whether the current token starts a new line.
func (p *Parser) onNewLine() bool {
	return p.curToken.Pos.Line > p.prevLine
}

// endStatement consumes a semicolon, or accepts a line break, a closing
// brace or the end of input in its place.
func (p *Parser) endStatement() {
	switch {
	case p.curTokenIs(TokenSemicolon):
		p.nextToken()
	case p.curTokenIs(TokenRBrace), p.curTokenIs(TokenEOF), p.onNewLine():
	default:
		p.errorf("expected ;, got %s", describeToken(p.curToken))
	}
}

func (p *Parser) inGenerator() bool {
	return len(p.generators) > 0 && p.generators[len(p.generators)-1]
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseScript parses a whole source file.
func (p *Parser) ParseScript() (script *Script, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			script, err = nil, p.err
		}
	}()
	script = &Script{}
	for !p.curTokenIs(TokenEOF) {
		script.Body = append(script.Body, p.parseStatement())
	}
	if p.err != nil {
		return nil, p.err
	}
	return script, nil
}

// Parse is a convenience wrapper around NewParser(src).ParseScript().
func Parse(src string) (*Script, error) {
	return NewParser(src).ParseScript()
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	pos := p.curToken.Pos
	switch p.curToken.Type {
	case TokenSemicolon:
		p.nextToken()
		return &EmptyStmt{At: pos}
	case TokenLBrace:
		return p.parseBlock()
	case TokenLet, TokenConst, TokenVar:
		decl := p.parseVarDecl()
		p.endStatement()
		return decl
	case TokenFunction:
		fn := p.parseFunction(true)
		return fn
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenFor:
		return p.parseFor()
	case TokenReturn:
		p.nextToken()
		ret := &ReturnStmt{At: pos}
		if !p.curTokenIs(TokenSemicolon) && !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) && !p.onNewLine() {
			ret.Value = p.parseExpression()
		}
		p.endStatement()
		return ret
	case TokenThrow:
		p.nextToken()
		if p.onNewLine() {
			p.errorf("line break after throw")
		}
		th := &ThrowStmt{At: pos, Value: p.parseExpression()}
		p.endStatement()
		return th
	case TokenTry:
		return p.parseTry()
	case TokenBreak:
		p.nextToken()
		p.endStatement()
		return &BreakStmt{At: pos}
	case TokenContinue:
		p.nextToken()
		p.endStatement()
		return &ContinueStmt{At: pos}
	}
	e := p.parseExpression()
	p.endStatement()
	return &ExprStmt{At: pos, Expr: e}
}

func (p *Parser) parseBlock() *BlockStmt {
	b := &BlockStmt{At: p.curToken.Pos}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		if p.curTokenIs(TokenEOF) {
			p.errorf("unterminated block")
		}
		b.Stmts = append(b.Stmts, p.parseStatement())
	}
	p.nextToken()
	return b
}

func (p *Parser) parseVarDecl() *VarDecl {
	decl := &VarDecl{At: p.curToken.Pos, Kind: p.curToken.Type}
	p.nextToken()
	decl.Name = p.expect(TokenIdentifier).Literal
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		decl.Init = p.parseAssignment()
	} else if decl.Kind == TokenConst {
		p.errorf("missing initializer in const declaration")
	}
	if p.curTokenIs(TokenComma) {
		p.errorf("declare one variable per statement")
	}
	return decl
}

func (p *Parser) parseFunction(statement bool) *FunctionDecl {
	fn := &FunctionDecl{At: p.curToken.Pos}
	p.expect(TokenFunction)
	if p.curTokenIs(TokenStar) {
		fn.Generator = true
		p.nextToken()
	}
	if p.curTokenIs(TokenIdentifier) {
		fn.Name = p.curToken.Literal
		p.nextToken()
	} else if statement {
		p.errorf("function statement requires a name")
	}

	p.expect(TokenLParen)
	seen := map[string]bool{}
	for !p.curTokenIs(TokenRParen) {
		name := p.expect(TokenIdentifier).Literal
		if seen[name] {
			p.errorf("duplicate parameter %s", name)
		}
		seen[name] = true
		fn.Params = append(fn.Params, name)
		if !p.curTokenIs(TokenRParen) {
			p.expect(TokenComma)
		}
	}
	p.nextToken()

	p.generators = append(p.generators, fn.Generator)
	body := p.parseBlock()
	p.generators = p.generators[:len(p.generators)-1]
	fn.Body = body.Stmts
	return fn
}

func (p *Parser) parseIf() Stmt {
	s := &IfStmt{At: p.curToken.Pos}
	p.nextToken()
	p.expect(TokenLParen)
	s.Cond = p.parseExpression()
	p.expect(TokenRParen)
	s.Then = p.parseStatement()
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		s.Else = p.parseStatement()
	}
	return s
}

func (p *Parser) parseWhile() Stmt {
	s := &WhileStmt{At: p.curToken.Pos}
	p.nextToken()
	p.expect(TokenLParen)
	s.Cond = p.parseExpression()
	p.expect(TokenRParen)
	s.Body = p.parseStatement()
	return s
}

func (p *Parser) isOf() bool {
	return p.curTokenIs(TokenIdentifier) && p.curToken.Literal == "of"
}

func (p *Parser) parseFor() Stmt {
	pos := p.curToken.Pos
	p.nextToken()
	p.expect(TokenLParen)

	var init Stmt
	switch {
	case p.curTokenIs(TokenSemicolon):
	case p.curTokenIs(TokenLet), p.curTokenIs(TokenConst), p.curTokenIs(TokenVar):
		declPos := p.curToken.Pos
		kind := p.curToken.Type
		p.nextToken()
		name := p.expect(TokenIdentifier).Literal
		if p.isOf() {
			return p.parseForOf(pos, true, name)
		}
		decl := &VarDecl{At: declPos, Kind: kind, Name: name}
		if p.curTokenIs(TokenAssign) {
			p.nextToken()
			decl.Init = p.parseAssignment()
		}
		init = decl
	case p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenIdentifier) && p.peekToken.Literal == "of":
		name := p.curToken.Literal
		p.nextToken()
		return p.parseForOf(pos, false, name)
	default:
		ePos := p.curToken.Pos
		init = &ExprStmt{At: ePos, Expr: p.parseExpression()}
	}
	p.expect(TokenSemicolon)

	s := &ForStmt{At: pos, Init: init}
	if !p.curTokenIs(TokenSemicolon) {
		s.Cond = p.parseExpression()
	}
	p.expect(TokenSemicolon)
	if !p.curTokenIs(TokenRParen) {
		s.Post = p.parseExpression()
	}
	p.expect(TokenRParen)
	s.Body = p.parseStatement()
	return s
}

func (p *Parser) parseForOf(pos Position, declare bool, name string) Stmt {
	p.nextToken() // of
	s := &ForOfStmt{At: pos, Declare: declare, Name: name}
	s.Iterable = p.parseAssignment()
	p.expect(TokenRParen)
	s.Body = p.parseStatement()
	return s
}

func (p *Parser) parseTry() Stmt {
	s := &TryStmt{At: p.curToken.Pos}
	p.nextToken()
	s.Body = p.parseBlock()
	if p.curTokenIs(TokenCatch) {
		p.nextToken()
		if p.curTokenIs(TokenLParen) {
			p.nextToken()
			s.CatchParam = p.expect(TokenIdentifier).Literal
			p.expect(TokenRParen)
		}
		s.Catch = p.parseBlock()
	}
	if p.curTokenIs(TokenFinally) {
		p.nextToken()
		s.Finally = p.parseBlock()
	}
	if s.Catch == nil && s.Finally == nil {
		p.errorf("try without catch or finally")
	}
	return s
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExpression parses a full expression. The comma operator is not
// supported.
func (p *Parser) parseExpression() Expr {
	return p.parseAssignment()
}

func isAssignOp(t TokenType) bool {
	switch t {
	case TokenAssign, TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign, TokenPercentAssign:
		return true
	}
	return false
}

func (p *Parser) parseAssignment() Expr {
	if p.curTokenIs(TokenYield) {
		return p.parseYield()
	}
	pos := p.curToken.Pos
	left := p.parseConditional()
	if !isAssignOp(p.curToken.Type) {
		return left
	}
	op := p.curToken.Type
	switch left.(type) {
	case *Identifier, *MemberExpr, *IndexExpr:
	default:
		p.errorf("invalid assignment target")
	}
	p.nextToken()
	return &AssignExpr{At: pos, Op: op, Target: left, Value: p.parseAssignment()}
}

func (p *Parser) parseYield() Expr {
	y := &YieldExpr{At: p.curToken.Pos}
	if !p.inGenerator() {
		p.errorf("yield is only valid in generator functions")
	}
	p.nextToken()
	if p.curTokenIs(TokenStar) {
		y.Delegate = true
		p.nextToken()
		y.Arg = p.parseAssignment()
		return y
	}
	switch p.curToken.Type {
	case TokenRParen, TokenRBracket, TokenRBrace, TokenComma, TokenSemicolon, TokenColon, TokenEOF:
		return y
	}
	if p.onNewLine() {
		return y
	}
	y.Arg = p.parseAssignment()
	return y
}

func (p *Parser) parseConditional() Expr {
	pos := p.curToken.Pos
	cond := p.parseLogical(0)
	if !p.curTokenIs(TokenQuestion) {
		return cond
	}
	p.nextToken()
	then := p.parseAssignment()
	p.expect(TokenColon)
	return &ConditionalExpr{At: pos, Cond: cond, Then: then, Else: p.parseAssignment()}
}

// Binary operator precedence, lowest first.
var binaryLevels = [][]TokenType{
	{TokenOr},
	{TokenAnd},
	{TokenEq, TokenNotEq, TokenStrictEq, TokenStrictNotEq},
	{TokenLt, TokenLe, TokenGt, TokenGe},
	{TokenPlus, TokenMinus},
	{TokenStar, TokenSlash, TokenPercent},
}

func (p *Parser) parseLogical(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	pos := p.curToken.Pos
	left := p.parseLogical(level + 1)
	for {
		op := p.curToken.Type
		found := false
		for _, t := range binaryLevels[level] {
			if op == t {
				found = true
				break
			}
		}
		if !found {
			return left
		}
		p.nextToken()
		right := p.parseLogical(level + 1)
		if op == TokenAnd || op == TokenOr {
			left = &LogicalExpr{At: pos, Op: op, Left: left, Right: right}
		} else {
			left = &BinaryExpr{At: pos, Op: op, Left: left, Right: right}
		}
	}
}

func (p *Parser) parseUnary() Expr {
	pos := p.curToken.Pos
	switch p.curToken.Type {
	case TokenBang, TokenMinus, TokenPlus, TokenTypeof:
		op := p.curToken.Type
		p.nextToken()
		return &UnaryExpr{At: pos, Op: op, Operand: p.parseUnary()}
	case TokenIncrement, TokenDecrement:
		op := p.curToken.Type
		p.nextToken()
		target := p.parseUnary()
		p.checkUpdateTarget(target)
		return &UpdateExpr{At: pos, Op: op, Prefix: true, Target: target}
	}
	return p.parsePostfix()
}

func (p *Parser) checkUpdateTarget(e Expr) {
	switch e.(type) {
	case *Identifier, *MemberExpr, *IndexExpr:
		return
	}
	p.errorAt(e.Pos(), "invalid increment/decrement target")
}

func (p *Parser) parsePostfix() Expr {
	pos := p.curToken.Pos
	e := p.parseCallMember()
	if (p.curTokenIs(TokenIncrement) || p.curTokenIs(TokenDecrement)) && !p.onNewLine() {
		p.checkUpdateTarget(e)
		op := p.curToken.Type
		p.nextToken()
		return &UpdateExpr{At: pos, Op: op, Target: e}
	}
	return e
}

func (p *Parser) parseCallMember() Expr {
	e := p.parsePrimary()
	for {
		pos := p.curToken.Pos
		switch p.curToken.Type {
		case TokenDot:
			p.nextToken()
			name := p.curToken
			if name.Type != TokenIdentifier && !isKeywordName(name.Type) {
				p.errorf("expected property name, got %s", describeToken(name))
			}
			p.nextToken()
			e = &MemberExpr{At: pos, Object: e, Name: name.Literal}
		case TokenLBracket:
			p.nextToken()
			key := p.parseExpression()
			p.expect(TokenRBracket)
			e = &IndexExpr{At: pos, Object: e, Key: key}
		case TokenLParen:
			p.nextToken()
			call := &CallExpr{At: pos, Callee: e}
			for !p.curTokenIs(TokenRParen) {
				call.Args = append(call.Args, p.parseAssignment())
				if !p.curTokenIs(TokenRParen) {
					p.expect(TokenComma)
				}
			}
			p.nextToken()
			if len(call.Args) > 255 {
				p.errorAt(pos, "too many arguments")
			}
			e = call
		default:
			return e
		}
	}
}

// isKeywordName reports whether a reserved word may be used as a property
// name, as in gen.return(x) or gen.throw(e).
func isKeywordName(t TokenType) bool {
	_, ok := reservedWords[t.String()]
	return ok
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	pos := tok.Pos
	switch tok.Type {
	case TokenNumber:
		p.nextToken()
		return &NumberLiteral{At: pos, Value: parseNumber(p, tok)}
	case TokenString:
		p.nextToken()
		return &StringLiteral{At: pos, Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{At: pos, Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLiteral{At: pos}
	case TokenUndefined:
		p.nextToken()
		return &UndefinedLiteral{At: pos}
	case TokenThis:
		p.nextToken()
		return &ThisExpr{At: pos}
	case TokenIdentifier:
		p.nextToken()
		return &Identifier{At: pos, Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		e := p.parseExpression()
		p.expect(TokenRParen)
		return e
	case TokenLBracket:
		p.nextToken()
		arr := &ArrayLiteral{At: pos}
		for !p.curTokenIs(TokenRBracket) {
			arr.Elems = append(arr.Elems, p.parseAssignment())
			if !p.curTokenIs(TokenRBracket) {
				p.expect(TokenComma)
			}
		}
		p.nextToken()
		if len(arr.Elems) > 255 {
			p.errorAt(pos, "array literal has too many elements")
		}
		return arr
	case TokenLBrace:
		return p.parseObjectLiteral()
	case TokenFunction:
		return &FunctionExpr{At: pos, Func: p.parseFunction(false)}
	}
	p.errorf("unexpected %s", describeToken(tok))
	return nil
}

func (p *Parser) parseObjectLiteral() Expr {
	obj := &ObjectLiteral{At: p.curToken.Pos}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		key := p.curToken
		var name string
		switch {
		case key.Type == TokenIdentifier, key.Type == TokenString, isKeywordName(key.Type):
			name = key.Literal
		case key.Type == TokenNumber:
			name = vmNumberKey(parseNumber(p, key))
		default:
			p.errorf("expected property name, got %s", describeToken(key))
		}
		p.nextToken()
		var value Expr
		if key.Type == TokenIdentifier && (p.curTokenIs(TokenComma) || p.curTokenIs(TokenRBrace)) {
			value = &Identifier{At: key.Pos, Name: name} // shorthand {x}
		} else {
			p.expect(TokenColon)
			value = p.parseAssignment()
		}
		obj.Props = append(obj.Props, Property{Key: name, Value: value})
		if !p.curTokenIs(TokenRBrace) {
			p.expect(TokenComma)
		}
	}
	p.nextToken()
	return obj
}

func parseNumber(p *Parser, tok Token) float64 {
	lit := tok.Literal
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		n, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			p.errorAt(tok.Pos, "malformed number %s", lit)
		}
		return float64(n)
	}
	n, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.errorAt(tok.Pos, "malformed number %s", lit)
	}
	return n
}
