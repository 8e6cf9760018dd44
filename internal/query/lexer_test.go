package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/compileerr"
)

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Kind == TokenEOF || tok.Kind == TokenIllegal {
			return toks
		}
	}
}

func TestLexerTokenKinds(t *testing.T) {
	toks := lexAll(t, `{ Person @x($a: "q\n", n: -12, f: 1.5e3) %t [true] }`)

	type kl struct {
		kind TokenKind
		lit  string
	}
	want := []kl{
		{TokenLBrace, "{"},
		{TokenName, "Person"},
		{TokenAt, "@"},
		{TokenName, "x"},
		{TokenLParen, "("},
		{TokenVariable, "a"},
		{TokenColon, ":"},
		{TokenString, "q\n"},
		{TokenName, "n"},
		{TokenColon, ":"},
		{TokenInt, "-12"},
		{TokenName, "f"},
		{TokenColon, ":"},
		{TokenFloat, "1.5e3"},
		{TokenRParen, ")"},
		{TokenTag, "t"},
		{TokenLBracket, "["},
		{TokenName, "true"},
		{TokenRBracket, "]"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}
	got := make([]kl, len(toks))
	for i, tok := range toks {
		got[i] = kl{tok.Kind, tok.Lit}
	}
	assert.Equal(t, want, got)
}

func TestLexerPositions(t *testing.T) {
	toks := lexAll(t, "# leading comment\n{\n  Person")
	require.Len(t, toks, 3)
	assert.Equal(t, compileerr.Pos{Line: 2, Column: 1, Offset: 18}, toks[0].Pos)
	assert.Equal(t, compileerr.Pos{Line: 3, Column: 3, Offset: 22}, toks[1].Pos)
	assert.Equal(t, compileerr.Pos{Line: 3, Column: 9, Offset: 28}, toks[2].Pos)
}

func TestLexerStringEscapes(t *testing.T) {
	toks := lexAll(t, `"a\"b\\cA\t"`)
	require.Equal(t, TokenString, toks[0].Kind)
	assert.Equal(t, "a\"b\\cA\t", toks[0].Lit)
}

func TestLexerUTF8InStrings(t *testing.T) {
	toks := lexAll(t, `"caf`+"\xc3\xa9"+`"`)
	require.Equal(t, TokenString, toks[0].Kind)
	assert.Equal(t, "caf\xc3\xa9", toks[0].Lit)
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
		pos     compileerr.Pos
	}{
		{"unterminated string", `"abc`, "unterminated string", compileerr.Pos{Line: 1, Column: 1, Offset: 0}},
		{"newline in string", "\"ab\ncd\"", "unterminated string", compileerr.Pos{Line: 1, Column: 1, Offset: 0}},
		{"bare sigil", `$ x`, "expected name after $", compileerr.Pos{Line: 1, Column: 1, Offset: 0}},
		{"dangling dot", `1.`, "expected digit after '.'", compileerr.Pos{Line: 1, Column: 3, Offset: 2}},
		{"letters in number", `12ab`, "invalid character in number", compileerr.Pos{Line: 1, Column: 3, Offset: 2}},
		{"bad escape", `"\q"`, "invalid escape sequence", compileerr.Pos{Line: 1, Column: 2, Offset: 1}},
		{"bad unicode escape", `"\uZZZZ"`, "invalid unicode escape", compileerr.Pos{Line: 1, Column: 2, Offset: 1}},
		{"unexpected character", `  &`, "unexpected character '&'", compileerr.Pos{Line: 1, Column: 3, Offset: 2}},
		{"lone minus", `-x`, "expected digit after '-'", compileerr.Pos{Line: 1, Column: 1, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLexer(tt.input)
			var tok Token
			for tok = l.NextToken(); tok.Kind != TokenIllegal && tok.Kind != TokenEOF; tok = l.NextToken() {
			}
			require.Equal(t, TokenIllegal, tok.Kind)
			require.NotNil(t, l.Err())
			assert.Contains(t, l.Err().Message, tt.message)
			assert.Equal(t, tt.pos, l.Err().Pos)
		})
	}
}

func TestTokenString(t *testing.T) {
	assert.Equal(t, "end of input", Token{Kind: TokenEOF}.String())
	assert.Equal(t, `name "Person"`, Token{Kind: TokenName, Lit: "Person"}.String())
	assert.Equal(t, "variable $x", Token{Kind: TokenVariable, Lit: "x"}.String())
	assert.Equal(t, "tag %t", Token{Kind: TokenTag, Lit: "t"}.String())
	assert.Equal(t, "'{'", Token{Kind: TokenLBrace, Lit: "{"}.String())
}
