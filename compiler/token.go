package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 3.14, 0x1F, 1e3
	TokenString     // "hello", 'hello'
	TokenIdentifier // foo

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :
	TokenDot       // .
	TokenQuestion  // ?

	// Operators
	TokenAssign        // =
	TokenPlusAssign    // +=
	TokenMinusAssign   // -=
	TokenStarAssign    // *=
	TokenSlashAssign   // /=
	TokenPercentAssign // %=
	TokenPlus          // +
	TokenMinus         // -
	TokenStar          // *
	TokenSlash         // /
	TokenPercent       // %
	TokenIncrement     // ++
	TokenDecrement     // --
	TokenBang          // !
	TokenEq            // ==
	TokenNotEq         // !=
	TokenStrictEq      // ===
	TokenStrictNotEq   // !==
	TokenLt            // <
	TokenLe            // <=
	TokenGt            // >
	TokenGe            // >=
	TokenAnd           // &&
	TokenOr            // ||

	// Keywords
	TokenFunction
	TokenLet
	TokenConst
	TokenVar
	TokenIf
	TokenElse
	TokenWhile
	TokenFor
	TokenReturn
	TokenThrow
	TokenTry
	TokenCatch
	TokenFinally
	TokenBreak
	TokenContinue
	TokenYield
	TokenTypeof
	TokenThis
	TokenNull
	TokenUndefined
	TokenTrue
	TokenFalse
)

var tokenNames = map[TokenType]string{
	TokenEOF:           "EOF",
	TokenError:         "ERROR",
	TokenNumber:        "NUMBER",
	TokenString:        "STRING",
	TokenIdentifier:    "IDENTIFIER",
	TokenLParen:        "(",
	TokenRParen:        ")",
	TokenLBracket:      "[",
	TokenRBracket:      "]",
	TokenLBrace:        "{",
	TokenRBrace:        "}",
	TokenComma:         ",",
	TokenSemicolon:     ";",
	TokenColon:         ":",
	TokenDot:           ".",
	TokenQuestion:      "?",
	TokenAssign:        "=",
	TokenPlusAssign:    "+=",
	TokenMinusAssign:   "-=",
	TokenStarAssign:    "*=",
	TokenSlashAssign:   "/=",
	TokenPercentAssign: "%=",
	TokenPlus:          "+",
	TokenMinus:         "-",
	TokenStar:          "*",
	TokenSlash:         "/",
	TokenPercent:       "%",
	TokenIncrement:     "++",
	TokenDecrement:     "--",
	TokenBang:          "!",
	TokenEq:            "==",
	TokenNotEq:         "!=",
	TokenStrictEq:      "===",
	TokenStrictNotEq:   "!==",
	TokenLt:            "<",
	TokenLe:            "<=",
	TokenGt:            ">",
	TokenGe:            ">=",
	TokenAnd:           "&&",
	TokenOr:            "||",
	TokenFunction:      "function",
	TokenLet:           "let",
	TokenConst:         "const",
	TokenVar:           "var",
	TokenIf:            "if",
	TokenElse:          "else",
	TokenWhile:         "while",
	TokenFor:           "for",
	TokenReturn:        "return",
	TokenThrow:         "throw",
	TokenTry:           "try",
	TokenCatch:         "catch",
	TokenFinally:       "finally",
	TokenBreak:         "break",
	TokenContinue:      "continue",
	TokenYield:         "yield",
	TokenTypeof:        "typeof",
	TokenThis:          "this",
	TokenNull:          "null",
	TokenUndefined:     "undefined",
	TokenTrue:          "true",
	TokenFalse:         "false",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text, or the decoded value for strings
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types. "of" is contextual and stays
// an identifier.
var reservedWords = map[string]TokenType{
	"function":  TokenFunction,
	"let":       TokenLet,
	"const":     TokenConst,
	"var":       TokenVar,
	"if":        TokenIf,
	"else":      TokenElse,
	"while":     TokenWhile,
	"for":       TokenFor,
	"return":    TokenReturn,
	"throw":     TokenThrow,
	"try":       TokenTry,
	"catch":     TokenCatch,
	"finally":   TokenFinally,
	"break":     TokenBreak,
	"continue":  TokenContinue,
	"yield":     TokenYield,
	"typeof":    TokenTypeof,
	"this":      TokenThis,
	"null":      TokenNull,
	"undefined": TokenUndefined,
	"true":      TokenTrue,
	"false":     TokenFalse,
}
