// internal/formula/parser.go
package formula

import (
	"fmt"
)

// node – element drzewa wyrażenia
type node interface {
	eval(s Scope) (any, error)
}

type (
	literal struct{ v any }
	ident   struct{ name string }
	unary   struct {
		op string
		x  node
	}
	binary struct {
		op   string
		l, r node
	}
	logical struct {
		op   string
		l, r node
	}
	conditional struct{ cond, then, els node }
	call        struct {
		name string
		fn   builtin
		args []node
	}
)

type parser struct {
	toks []token
	pos  int
	refs map[string]struct{}
}

func parse(src string) (node, []string, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, nil, err
	}
	p := &parser{toks: toks, refs: map[string]struct{}{}}
	n, err := p.ternary()
	if err != nil {
		return nil, nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, nil, fmt.Errorf("pozycja %d: nadmiarowy token %q", t.pos, t.text)
	}
	refs := make([]string, 0, len(p.refs))
	for r := range p.refs {
		refs = append(refs, r)
	}
	return n, refs, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			return op, true
		}
	}
	return "", false
}

// ternary: or ('?' ternary ':' ternary)?
func (p *parser) ternary() (node, error) {
	c, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokQuestion {
		return c, nil
	}
	p.next()
	a, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokColon {
		return nil, fmt.Errorf("pozycja %d: oczekiwano ':'", t.pos)
	}
	b, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return &conditional{cond: c, then: a, els: b}, nil
}

func (p *parser) or() (node, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("||"); !ok {
			return l, nil
		}
		p.next()
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = &logical{op: "||", l: l, r: r}
	}
}

func (p *parser) and() (node, error) {
	l, err := p.equality()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("&&"); !ok {
			return l, nil
		}
		p.next()
		r, err := p.equality()
		if err != nil {
			return nil, err
		}
		l = &logical{op: "&&", l: l, r: r}
	}
}

func (p *parser) equality() (node, error) {
	return p.binaryLevel(p.comparison, "==", "!=", "===", "!==")
}

func (p *parser) comparison() (node, error) {
	return p.binaryLevel(p.additive, "<", "<=", ">", ">=")
}

func (p *parser) additive() (node, error) {
	return p.binaryLevel(p.multiplicative, "+", "-")
}

func (p *parser) multiplicative() (node, error) {
	return p.binaryLevel(p.unary, "*", "/", "%")
}

// lewostronnie łączny poziom operatorów binarnych
func (p *parser) binaryLevel(sub func() (node, error), ops ...string) (node, error) {
	l, err := sub()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(ops...)
		if !ok {
			return l, nil
		}
		p.next()
		r, err := sub()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r}
	}
}

func (p *parser) unary() (node, error) {
	if op, ok := p.isOp("-", "+", "!"); ok {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &literal{v: t.num}, nil
	case tokString:
		return &literal{v: t.text}, nil
	case tokLParen:
		n, err := p.ternary()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, fmt.Errorf("pozycja %d: oczekiwano ')'", c.pos)
		}
		return n, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &literal{v: true}, nil
		case "false":
			return &literal{v: false}, nil
		case "null", "undefined":
			return &literal{v: nil}, nil
		}
		if p.peek().kind == tokLParen {
			return p.call(t)
		}
		p.refs[t.text] = struct{}{}
		return &ident{name: t.text}, nil
	case tokEOF:
		return nil, fmt.Errorf("pozycja %d: nieoczekiwany koniec wyrażenia", t.pos)
	default:
		return nil, fmt.Errorf("pozycja %d: nieoczekiwany token %q", t.pos, t.text)
	}
}

func (p *parser) call(name token) (node, error) {
	fn, ok := builtins[name.text]
	if !ok {
		// składniowo poprawne, ale przy liczeniu daje nil
		fn = unknownFunc(name.text)
	}
	p.next() // '('

	var args []node
	if p.peek().kind != tokRParen {
		for {
			a, err := p.ternary()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if t := p.next(); t.kind != tokRParen {
		return nil, fmt.Errorf("pozycja %d: oczekiwano ')' po argumentach %s", t.pos, name.text)
	}
	return &call{name: name.text, fn: fn, args: args}, nil
}
