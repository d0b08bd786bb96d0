// Package expr implements the restricted expression language used by branch
// conditions and execute_code steps. It is a recursive-descent parser over
// boolean, comparison and arithmetic operators plus attribute/index access on
// context values. There are no function calls, no imports, and no access to
// anything outside the execution context; input that does not parse is
// rejected.
//
// Supported grammar:
//
//	expr       = or
//	or         = and { ("or" | "||") and }
//	and        = not { ("and" | "&&") not }
//	not        = ("not" | "!") not | comparison
//	comparison = additive [ ("==" | "!=" | "<" | "<=" | ">" | ">=" | "in") additive ]
//	additive   = term { ("+" | "-") term }
//	term       = unary { ("*" | "/" | "%") unary }
//	unary      = "-" unary | postfix
//	postfix    = primary { "." ident | "[" expr "]" }
//	primary    = number | string | bool | null | ident | "(" expr ")"
//
// Identifiers resolve against the execution context; the identifier "context"
// names the whole context map. Missing names and failed accesses evaluate to
// null rather than erroring, so conditions over optional keys stay writable.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokDot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			l.pos++
		case ch >= '0' && ch <= '9':
			l.lexNumber()
		case ch == '\'' || ch == '"':
			if err := l.lexString(ch); err != nil {
				return nil, err
			}
		case isIdentStart(rune(ch)):
			l.lexIdent()
		case ch == '(':
			l.emit(tokLParen, "(")
		case ch == ')':
			l.emit(tokRParen, ")")
		case ch == '[':
			l.emit(tokLBracket, "[")
		case ch == ']':
			l.emit(tokRBracket, "]")
		case ch == '.':
			l.emit(tokDot, ".")
		default:
			if op, ok := l.lexOperator(); ok {
				l.tokens = append(l.tokens, op)
			} else {
				return nil, fmt.Errorf("unexpected character %q at position %d", ch, l.pos)
			}
		}
	}
	l.tokens = append(l.tokens, token{kind: tokEOF, pos: l.pos})
	return l.tokens, nil
}

func (l *lexer) emit(kind tokenKind, text string) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, pos: l.pos})
	l.pos += len(text)
}

func (l *lexer) lexNumber() {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch == '.' && !seenDot && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
			seenDot = true
			l.pos++
			continue
		}
		if ch < '0' || ch > '9' {
			break
		}
		l.pos++
	}
	l.tokens = append(l.tokens, token{kind: tokNumber, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch == '\\' && l.pos+1 < len(l.src) {
			next := l.src[l.pos+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
			l.pos += 2
			continue
		}
		if ch == quote {
			l.pos++
			l.tokens = append(l.tokens, token{kind: tokString, text: sb.String(), pos: start})
			return nil
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return fmt.Errorf("unterminated string literal at position %d", start)
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	l.tokens = append(l.tokens, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

func (l *lexer) lexOperator() (token, bool) {
	if l.pos+1 < len(l.src) {
		pair := l.src[l.pos : l.pos+2]
		for _, op := range twoCharOps {
			if pair == op {
				tok := token{kind: tokOp, text: op, pos: l.pos}
				l.pos += 2
				return tok, true
			}
		}
	}
	switch l.src[l.pos] {
	case '<', '>', '+', '-', '*', '/', '%', '!', '=':
		tok := token{kind: tokOp, text: string(l.src[l.pos]), pos: l.pos}
		l.pos++
		return tok, true
	}
	return token{}, false
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Node is an expression AST node.
type Node interface{}

// NumberLit is a numeric literal. Integers keep their integer identity for
// index access and modulo.
type NumberLit struct {
	IsInt bool
	Int   int64
	Float float64
}

// StringLit is a string literal.
type StringLit struct{ Value string }

// BoolLit is a boolean literal.
type BoolLit struct{ Value bool }

// NullLit is the null/none literal.
type NullLit struct{}

// Ident references a top-level context key ("context" names the whole map).
type Ident struct{ Name string }

// Access reads a member (a.b) or index (a[expr]) of its base value.
type Access struct {
	Base Node
	Key  Node
}

// Unary applies "-" or "not".
type Unary struct {
	Op      string
	Operand Node
}

// Binary applies an arithmetic, comparison or boolean operator.
type Binary struct {
	Op          string
	Left, Right Node
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses a single expression. Trailing input is an error.
func Parse(src string) (Node, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.peek().text, p.peek().pos)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp && tok.kind != tokIdent {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.next()
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseExpr() (Node, error) { return p.parseOr() }

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("or", "||")
		if !ok {
			return left, nil
		}
		_ = op
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "or", Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		_, ok := p.acceptOp("and", "&&")
		if !ok {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "and", Left: left, Right: right}
	}
}

func (p *parser) parseNot() (Node, error) {
	if _, ok := p.acceptOp("not", "!"); ok {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", "<", "<=", ">", ">=", "in")
	if !ok {
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if _, ok := p.acceptOp("-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokDot:
			p.next()
			tok := p.next()
			if tok.kind != tokIdent && tok.kind != tokNumber {
				return nil, fmt.Errorf("expected member name after '.' at position %d", tok.pos)
			}
			base = &Access{Base: base, Key: &StringLit{Value: tok.text}}
		case tokLBracket:
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if tok := p.next(); tok.kind != tokRBracket {
				return nil, fmt.Errorf("expected ']' at position %d", tok.pos)
			}
			base = &Access{Base: base, Key: key}
		default:
			return base, nil
		}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		if strings.Contains(tok.text, ".") {
			f, err := strconv.ParseFloat(tok.text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", tok.text, tok.pos)
			}
			return &NumberLit{Float: f}, nil
		}
		i, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", tok.text, tok.pos)
		}
		return &NumberLit{IsInt: true, Int: i, Float: float64(i)}, nil
	case tokString:
		return &StringLit{Value: tok.text}, nil
	case tokIdent:
		switch tok.text {
		case "true", "True":
			return &BoolLit{Value: true}, nil
		case "false", "False":
			return &BoolLit{Value: false}, nil
		case "none", "None", "null":
			return &NullLit{}, nil
		case "and", "or", "not", "in":
			return nil, fmt.Errorf("unexpected keyword %q at position %d", tok.text, tok.pos)
		}
		return &Ident{Name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at position %d", closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", tok.text, tok.pos)
	}
}
