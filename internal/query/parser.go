package query

import (
	"fmt"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
)

// Parser is a recursive-descent parser over a Lexer. It stops at the first
// error.
type Parser struct {
	lex    *Lexer
	cur    Token
	peek   Token
	limits ir.Limits
}

// Parse parses query text into a Document.
//
// Accepted forms:
//
//	{ Person { name @output(name: "n") } }
//	query Friends { Person { ... } }
//
// Selection sets nested deeper than limits.MaxTraversalDepth edges fail
// with a *compileerr.ResourceLimitError before any further input is read.
func Parse(text string, limits ir.Limits) (*Document, error) {
	p := &Parser{lex: NewLexer(text), limits: limits.WithDefaults()}
	p.advance()
	p.advance()
	doc, err := p.parseDocument()
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

// errorf builds a parse error at tok. A pending lexer error wins because it
// explains why tok is illegal.
func (p *Parser) errorf(tok Token, format string, args ...any) error {
	if le := p.lex.Err(); le != nil && tok.Kind == TokenIllegal {
		return le
	}
	return &compileerr.ParseError{Pos: tok.Pos, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(kind TokenKind) (Token, error) {
	tok := p.cur
	if tok.Kind != kind {
		return tok, p.errorf(tok, "expected %s, found %s", kind, tok)
	}
	p.advance()
	return tok, nil
}

func (p *Parser) parseDocument() (*Document, error) {
	doc := &Document{}
	if p.cur.Kind == TokenName && p.cur.Lit == "query" {
		p.advance()
		if p.cur.Kind == TokenName {
			doc.OperationName = p.cur.Lit
			p.advance()
		}
	}

	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	if p.cur.Kind != TokenName {
		return nil, p.errorf(p.cur, "expected root vertex type, found %s", p.cur)
	}
	root, err := p.parseField(0)
	if err != nil {
		return nil, err
	}
	if p.cur.Kind == TokenName {
		return nil, p.errorf(p.cur, "query must have exactly one root field, found second root %q", p.cur.Lit)
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	if p.cur.Kind != TokenEOF {
		return nil, p.errorf(p.cur, "unexpected %s after end of query", p.cur)
	}

	doc.Root = &Root{
		TypeName:     root.Name,
		Pos:          root.Pos,
		Arguments:    root.Arguments,
		Directives:   root.Directives,
		Selections:   root.Selections,
		HasSelection: root.HasSelection,
	}
	return doc, nil
}

// parseField parses one field. depth is the traversal depth its selection
// set would have: 0 for the root.
func (p *Parser) parseField(depth int) (*Field, error) {
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	f := &Field{Name: name.Lit, Pos: name.Pos}

	if p.cur.Kind == TokenLParen {
		if f.Arguments, err = p.parseArguments(); err != nil {
			return nil, err
		}
	}
	for p.cur.Kind == TokenAt {
		d, err := p.parseDirective()
		if err != nil {
			return nil, err
		}
		f.Directives = append(f.Directives, d)
	}
	if p.cur.Kind == TokenLBrace {
		if depth > p.limits.MaxTraversalDepth {
			return nil, &compileerr.ResourceLimitError{
				Limit: compileerr.LimitTraversalDepth,
				Value: depth,
				Max:   p.limits.MaxTraversalDepth,
				Pos:   p.cur.Pos,
			}
		}
		f.HasSelection = true
		if f.Selections, err = p.parseSelectionSet(depth); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (p *Parser) parseSelectionSet(depth int) ([]*Field, error) {
	open, err := p.expect(TokenLBrace)
	if err != nil {
		return nil, err
	}
	var fields []*Field
	for p.cur.Kind != TokenRBrace {
		if p.cur.Kind != TokenName {
			return nil, p.errorf(p.cur, "expected field name, found %s", p.cur)
		}
		f, err := p.parseField(depth + 1)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, p.errorf(open, "selection set must not be empty")
	}
	p.advance()
	return fields, nil
}

func (p *Parser) parseArguments() ([]Argument, error) {
	open, _ := p.expect(TokenLParen)
	var args []Argument
	for p.cur.Kind != TokenRParen {
		name, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		args = append(args, Argument{Name: name.Lit, Value: v, Pos: name.Pos})
	}
	if len(args) == 0 {
		return nil, p.errorf(open, "argument list must not be empty")
	}
	p.advance()
	return args, nil
}

func (p *Parser) parseDirective() (Directive, error) {
	at, _ := p.expect(TokenAt)
	name, err := p.expect(TokenName)
	if err != nil {
		return Directive{}, err
	}
	d := Directive{Name: name.Lit, Pos: at.Pos}
	if p.cur.Kind == TokenLParen {
		if d.Arguments, err = p.parseArguments(); err != nil {
			return Directive{}, err
		}
	}
	return d, nil
}

func (p *Parser) parseValue() (Value, error) {
	tok := p.cur
	switch tok.Kind {
	case TokenString:
		p.advance()
		return StringValue{Value: tok.Lit, Pos: tok.Pos}, nil
	case TokenInt:
		p.advance()
		return IntValue{Raw: tok.Lit, Pos: tok.Pos}, nil
	case TokenFloat:
		p.advance()
		return FloatValue{Raw: tok.Lit, Pos: tok.Pos}, nil
	case TokenVariable:
		p.advance()
		return VariableValue{Name: tok.Lit, Pos: tok.Pos}, nil
	case TokenTag:
		p.advance()
		return TagValue{Name: tok.Lit, Pos: tok.Pos}, nil
	case TokenName:
		p.advance()
		switch tok.Lit {
		case "true":
			return BooleanValue{Value: true, Pos: tok.Pos}, nil
		case "false":
			return BooleanValue{Value: false, Pos: tok.Pos}, nil
		case "null":
			return NullValue{Pos: tok.Pos}, nil
		}
		return EnumValue{Name: tok.Lit, Pos: tok.Pos}, nil
	case TokenLBracket:
		p.advance()
		list := ListValue{Pos: tok.Pos}
		for p.cur.Kind != TokenRBracket {
			if p.cur.Kind == TokenEOF {
				return nil, p.errorf(p.cur, "unterminated list")
			}
			item, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
		p.advance()
		return list, nil
	default:
		return nil, p.errorf(tok, "expected value, found %s", tok)
	}
}
