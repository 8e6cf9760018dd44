package query

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/gqlc/internal/compileerr"
)

// Lexer tokenizes query text. Commas are insignificant and '#' starts a
// comment running to end of line.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
	err     *compileerr.ParseError
}

// NewLexer creates a Lexer for input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar advances to the next character, tracking line and column.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

func (l *Lexer) atEOF() bool { return l.pos >= len(l.input) }

func (l *Lexer) currentPos() compileerr.Pos {
	return compileerr.Pos{Line: l.line, Column: l.col, Offset: l.pos}
}

// Err returns the first lexical error, if any. After an error NextToken
// returns TokenIllegal.
func (l *Lexer) Err() *compileerr.ParseError { return l.err }

func (l *Lexer) fail(pos compileerr.Pos, msg string) Token {
	if l.err == nil {
		l.err = &compileerr.ParseError{Pos: pos, Message: msg}
	}
	return Token{Kind: TokenIllegal, Pos: pos}
}

var punctuation = map[byte]TokenKind{
	'{': TokenLBrace, '}': TokenRBrace,
	'(': TokenLParen, ')': TokenRParen,
	'[': TokenLBracket, ']': TokenRBracket,
	':': TokenColon, '@': TokenAt,
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipIgnored()
	pos := l.currentPos()

	if l.atEOF() {
		return Token{Kind: TokenEOF, Pos: pos}
	}

	if k, ok := punctuation[l.ch]; ok {
		lit := string(l.ch)
		l.readChar()
		return Token{Kind: k, Lit: lit, Pos: pos}
	}

	switch {
	case l.ch == '$' || l.ch == '%':
		sigil := l.ch
		l.readChar()
		if !isNameStart(l.ch) {
			return l.fail(pos, "expected name after "+string(sigil))
		}
		kind := TokenVariable
		if sigil == '%' {
			kind = TokenTag
		}
		return Token{Kind: kind, Lit: l.readName(), Pos: pos}
	case l.ch == '"':
		return l.readString(pos)
	case l.ch == '-' || isDigit(l.ch):
		return l.readNumber(pos)
	case isNameStart(l.ch):
		return Token{Kind: TokenName, Lit: l.readName(), Pos: pos}
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return l.fail(pos, "unexpected character "+strconv.QuoteRune(r))
}

func (l *Lexer) skipIgnored() {
	for !l.atEOF() {
		switch l.ch {
		case ' ', '\t', '\n', '\r', ',':
			l.readChar()
		case '#':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readName() string {
	start := l.pos
	for isNameChar(l.ch) && !l.atEOF() {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber(pos compileerr.Pos) Token {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	if !isDigit(l.ch) {
		return l.fail(pos, "expected digit after '-'")
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	kind := TokenInt
	if l.ch == '.' {
		kind = TokenFloat
		l.readChar()
		if !isDigit(l.ch) {
			return l.fail(l.currentPos(), "expected digit after '.'")
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		kind = TokenFloat
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			return l.fail(l.currentPos(), "expected exponent digits")
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if isNameStart(l.ch) {
		return l.fail(l.currentPos(), "invalid character in number")
	}
	return Token{Kind: kind, Lit: l.input[start:l.pos], Pos: pos}
}

func (l *Lexer) readString(pos compileerr.Pos) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for {
		if l.atEOF() || l.ch == '\n' {
			return l.fail(pos, "unterminated string")
		}
		switch l.ch {
		case '"':
			l.readChar()
			return Token{Kind: TokenString, Lit: sb.String(), Pos: pos}
		case '\\':
			escPos := l.currentPos()
			l.readChar()
			switch l.ch {
			case '"', '\\', '/':
				sb.WriteByte(l.ch)
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'u':
				if l.readPos+4 > len(l.input) {
					return l.fail(escPos, "truncated unicode escape")
				}
				hex := l.input[l.readPos : l.readPos+4]
				n, err := strconv.ParseUint(hex, 16, 32)
				if err != nil {
					return l.fail(escPos, "invalid unicode escape \\u"+hex)
				}
				sb.WriteRune(rune(n))
				for i := 0; i < 4; i++ {
					l.readChar()
				}
			default:
				return l.fail(escPos, "invalid escape sequence")
			}
			l.readChar()
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func isDigit(ch byte) bool     { return ch >= '0' && ch <= '9' }
func isNameStart(ch byte) bool { return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') }
func isNameChar(ch byte) bool  { return isNameStart(ch) || isDigit(ch) }
