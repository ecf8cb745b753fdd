package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for scripts
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NumberLiteral is a numeric literal.
type NumberLiteral struct {
	At    Position
	Value float64
}

// StringLiteral is a string literal.
type StringLiteral struct {
	At    Position
	Value string
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	At    Position
	Value bool
}

// NullLiteral is null.
type NullLiteral struct{ At Position }

// UndefinedLiteral is undefined.
type UndefinedLiteral struct{ At Position }

// Identifier is a variable reference.
type Identifier struct {
	At   Position
	Name string
}

// ThisExpr is this.
type ThisExpr struct{ At Position }

// ArrayLiteral is [a, b, c].
type ArrayLiteral struct {
	At    Position
	Elems []Expr
}

// Property is one key: value pair of an object literal.
type Property struct {
	Key   string
	Value Expr
}

// ObjectLiteral is {k: v, ...}.
type ObjectLiteral struct {
	At    Position
	Props []Property
}

// FunctionExpr is a function or function* used as a value.
type FunctionExpr struct {
	At   Position
	Func *FunctionDecl
}

// UnaryExpr is -x, +x, !x or typeof x.
type UnaryExpr struct {
	At      Position
	Op      TokenType
	Operand Expr
}

// BinaryExpr is an arithmetic or comparison operation.
type BinaryExpr struct {
	At    Position
	Op    TokenType
	Left  Expr
	Right Expr
}

// LogicalExpr is a short-circuiting && or ||.
type LogicalExpr struct {
	At    Position
	Op    TokenType
	Left  Expr
	Right Expr
}

// ConditionalExpr is cond ? a : b.
type ConditionalExpr struct {
	At   Position
	Cond Expr
	Then Expr
	Else Expr
}

// AssignExpr is target = value or a compound assignment.
type AssignExpr struct {
	At     Position
	Op     TokenType // TokenAssign or a compound operator
	Target Expr      // Identifier, MemberExpr or IndexExpr
	Value  Expr
}

// UpdateExpr is ++x, x++, --x or x--.
type UpdateExpr struct {
	At     Position
	Op     TokenType
	Prefix bool
	Target Expr
}

// MemberExpr is obj.name.
type MemberExpr struct {
	At     Position
	Object Expr
	Name   string
}

// IndexExpr is obj[key].
type IndexExpr struct {
	At     Position
	Object Expr
	Key    Expr
}

// CallExpr is callee(args...).
type CallExpr struct {
	At     Position
	Callee Expr
	Args   []Expr
}

// YieldExpr is yield, yield x or yield* x.
type YieldExpr struct {
	At       Position
	Arg      Expr // nil for a bare yield
	Delegate bool
}

func (n *NumberLiteral) Pos() Position    { return n.At }
func (n *StringLiteral) Pos() Position    { return n.At }
func (n *BoolLiteral) Pos() Position      { return n.At }
func (n *NullLiteral) Pos() Position      { return n.At }
func (n *UndefinedLiteral) Pos() Position { return n.At }
func (n *Identifier) Pos() Position       { return n.At }
func (n *ThisExpr) Pos() Position         { return n.At }
func (n *ArrayLiteral) Pos() Position     { return n.At }
func (n *ObjectLiteral) Pos() Position    { return n.At }
func (n *FunctionExpr) Pos() Position     { return n.At }
func (n *UnaryExpr) Pos() Position        { return n.At }
func (n *BinaryExpr) Pos() Position       { return n.At }
func (n *LogicalExpr) Pos() Position      { return n.At }
func (n *ConditionalExpr) Pos() Position  { return n.At }
func (n *AssignExpr) Pos() Position       { return n.At }
func (n *UpdateExpr) Pos() Position       { return n.At }
func (n *MemberExpr) Pos() Position       { return n.At }
func (n *IndexExpr) Pos() Position        { return n.At }
func (n *CallExpr) Pos() Position         { return n.At }
func (n *YieldExpr) Pos() Position        { return n.At }

func (*NumberLiteral) node()    {}
func (*StringLiteral) node()    {}
func (*BoolLiteral) node()      {}
func (*NullLiteral) node()      {}
func (*UndefinedLiteral) node() {}
func (*Identifier) node()       {}
func (*ThisExpr) node()         {}
func (*ArrayLiteral) node()     {}
func (*ObjectLiteral) node()    {}
func (*FunctionExpr) node()     {}
func (*UnaryExpr) node()        {}
func (*BinaryExpr) node()       {}
func (*LogicalExpr) node()      {}
func (*ConditionalExpr) node()  {}
func (*AssignExpr) node()       {}
func (*UpdateExpr) node()       {}
func (*MemberExpr) node()       {}
func (*IndexExpr) node()        {}
func (*CallExpr) node()         {}
func (*YieldExpr) node()        {}

func (*NumberLiteral) expr()    {}
func (*StringLiteral) expr()    {}
func (*BoolLiteral) expr()      {}
func (*NullLiteral) expr()      {}
func (*UndefinedLiteral) expr() {}
func (*Identifier) expr()       {}
func (*ThisExpr) expr()         {}
func (*ArrayLiteral) expr()     {}
func (*ObjectLiteral) expr()    {}
func (*FunctionExpr) expr()     {}
func (*UnaryExpr) expr()        {}
func (*BinaryExpr) expr()       {}
func (*LogicalExpr) expr()      {}
func (*ConditionalExpr) expr()  {}
func (*AssignExpr) expr()       {}
func (*UpdateExpr) expr()       {}
func (*MemberExpr) expr()       {}
func (*IndexExpr) expr()        {}
func (*CallExpr) expr()         {}
func (*YieldExpr) expr()        {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// VarDecl is let/const/var name = init.
type VarDecl struct {
	At   Position
	Kind TokenType // TokenLet, TokenConst or TokenVar
	Name string
	Init Expr // may be nil
}

// FunctionDecl is a named or anonymous function.
type FunctionDecl struct {
	At        Position
	Name      string
	Params    []string
	Body      []Stmt
	Generator bool
}

// ExprStmt is an expression evaluated for effect.
type ExprStmt struct {
	At   Position
	Expr Expr
}

// BlockStmt is { ... }.
type BlockStmt struct {
	At    Position
	Stmts []Stmt
}

// IfStmt is if (cond) then else.
type IfStmt struct {
	At   Position
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

// WhileStmt is while (cond) body.
type WhileStmt struct {
	At   Position
	Cond Expr
	Body Stmt
}

// ForStmt is for (init; cond; post) body.
type ForStmt struct {
	At   Position
	Init Stmt // VarDecl or ExprStmt, may be nil
	Cond Expr // may be nil
	Post Expr // may be nil
	Body Stmt
}

// ForOfStmt is for (let name of iterable) body.
type ForOfStmt struct {
	At       Position
	Declare  bool // introduced with let/const/var
	Name     string
	Iterable Expr
	Body     Stmt
}

// ReturnStmt is return [value].
type ReturnStmt struct {
	At    Position
	Value Expr // may be nil
}

// ThrowStmt is throw value.
type ThrowStmt struct {
	At    Position
	Value Expr
}

// TryStmt is try/catch/finally.
type TryStmt struct {
	At         Position
	Body       *BlockStmt
	CatchParam string     // empty when the catch binds nothing
	Catch      *BlockStmt // may be nil
	Finally    *BlockStmt // may be nil
}

// BreakStmt is break.
type BreakStmt struct{ At Position }

// ContinueStmt is continue.
type ContinueStmt struct{ At Position }

// EmptyStmt is a lone semicolon.
type EmptyStmt struct{ At Position }

func (n *VarDecl) Pos() Position      { return n.At }
func (n *FunctionDecl) Pos() Position { return n.At }
func (n *ExprStmt) Pos() Position     { return n.At }
func (n *BlockStmt) Pos() Position    { return n.At }
func (n *IfStmt) Pos() Position       { return n.At }
func (n *WhileStmt) Pos() Position    { return n.At }
func (n *ForStmt) Pos() Position      { return n.At }
func (n *ForOfStmt) Pos() Position    { return n.At }
func (n *ReturnStmt) Pos() Position   { return n.At }
func (n *ThrowStmt) Pos() Position    { return n.At }
func (n *TryStmt) Pos() Position      { return n.At }
func (n *BreakStmt) Pos() Position    { return n.At }
func (n *ContinueStmt) Pos() Position { return n.At }
func (n *EmptyStmt) Pos() Position    { return n.At }

func (*VarDecl) node()      {}
func (*FunctionDecl) node() {}
func (*ExprStmt) node()     {}
func (*BlockStmt) node()    {}
func (*IfStmt) node()       {}
func (*WhileStmt) node()    {}
func (*ForStmt) node()      {}
func (*ForOfStmt) node()    {}
func (*ReturnStmt) node()   {}
func (*ThrowStmt) node()    {}
func (*TryStmt) node()      {}
func (*BreakStmt) node()    {}
func (*ContinueStmt) node() {}
func (*EmptyStmt) node()    {}

func (*VarDecl) stmt()      {}
func (*FunctionDecl) stmt() {}
func (*ExprStmt) stmt()     {}
func (*BlockStmt) stmt()    {}
func (*IfStmt) stmt()       {}
func (*WhileStmt) stmt()    {}
func (*ForStmt) stmt()      {}
func (*ForOfStmt) stmt()    {}
func (*ReturnStmt) stmt()   {}
func (*ThrowStmt) stmt()    {}
func (*TryStmt) stmt()      {}
func (*BreakStmt) stmt()    {}
func (*ContinueStmt) stmt() {}
func (*EmptyStmt) stmt()    {}

// Script is a parsed source file.
type Script struct {
	Body []Stmt
}
