package query

import (
	"fmt"

	"github.com/roach88/gqlc/internal/compileerr"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIllegal
	TokenName     // Person, name, out_knows, true, query
	TokenVariable // $name
	TokenTag      // %name
	TokenString   // "text"
	TokenInt      // 42, -1
	TokenFloat    // 1.5, 2e3
	TokenLBrace   // {
	TokenRBrace   // }
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenColon    // :
	TokenAt       // @
)

var tokenNames = map[TokenKind]string{
	TokenEOF:      "end of input",
	TokenIllegal:  "illegal character",
	TokenName:     "name",
	TokenVariable: "variable",
	TokenTag:      "tag reference",
	TokenString:   "string",
	TokenInt:      "integer",
	TokenFloat:    "float",
	TokenLBrace:   "'{'",
	TokenRBrace:   "'}'",
	TokenLParen:   "'('",
	TokenRParen:   "')'",
	TokenLBracket: "'['",
	TokenRBracket: "']'",
	TokenColon:    "':'",
	TokenAt:       "'@'",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one lexical token. Lit holds the decoded text: the identifier
// without its sigil for variables and tags, the unescaped contents for
// strings.
type Token struct {
	Kind TokenKind
	Lit  string
	Pos  compileerr.Pos
}

func (t Token) String() string {
	switch t.Kind {
	case TokenEOF:
		return t.Kind.String()
	case TokenName, TokenInt, TokenFloat:
		return fmt.Sprintf("%s %q", t.Kind, t.Lit)
	case TokenVariable:
		return fmt.Sprintf("variable $%s", t.Lit)
	case TokenTag:
		return fmt.Sprintf("tag %%%s", t.Lit)
	case TokenString:
		return "string"
	default:
		return t.Kind.String()
	}
}
