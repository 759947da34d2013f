package treeio

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"kiln/internal/ast"
	"kiln/internal/source"
)

// ParseType reads a type written in source form:
//
//	i32  Point  Vec<T>  Map<str, i32>  [i32; 3]  [u8]  (i32, str)  ()
//	&T  &mut T  fn(i32, i32) -> i32  fn()
//
// Every node gets span. A parenthesised single type without a trailing
// comma is that type, not a one-element tuple.
func ParseType(text string, strs *source.Interner, span source.Span) (*ast.TypeExpr, error) {
	p := typeParser{src: text, strs: strs, span: span}
	t, err := p.typ()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

type typeParser struct {
	src  string
	pos  int
	strs *source.Interner
	span source.Span
}

func (p *typeParser) errorf(format string, args ...any) error {
	return fmt.Errorf("type %q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

// accept consumes tok if it comes next.
func (p *typeParser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *typeParser) expect(tok string) error {
	if !p.accept(tok) {
		return p.errorf("expected %q", tok)
	}
	return nil
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r, n := utf8.DecodeRuneInString(p.src[p.pos:])
		if r != '_' && !unicode.IsLetter(r) && (p.pos == start || !unicode.IsDigit(r)) {
			break
		}
		p.pos += n
	}
	return p.src[start:p.pos]
}

// keyword consumes word when it is followed by a non-identifier rune.
func (p *typeParser) keyword(word string) bool {
	save := p.pos
	if p.ident() == word {
		return true
	}
	p.pos = save
	return false
}

func (p *typeParser) node(kind ast.TypeExprKind) *ast.TypeExpr {
	return &ast.TypeExpr{Kind: kind, Span: p.span}
}

func (p *typeParser) typ() (*ast.TypeExpr, error) {
	switch {
	case p.accept("&"):
		t := p.node(ast.TypeRef)
		t.Mut = p.keyword("mut")
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}
		t.Elem = elem
		return t, nil
	case p.accept("("):
		elems, trailing, err := p.list(")")
		if err != nil {
			return nil, err
		}
		if len(elems) == 1 && !trailing {
			return elems[0], nil
		}
		t := p.node(ast.TypeTuple)
		t.Args = elems
		return t, nil
	case p.accept("["):
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}
		if p.accept("]") {
			t := p.node(ast.TypeSlice)
			t.Elem = elem
			return t, nil
		}
		if err := p.expect(";"); err != nil {
			return nil, err
		}
		n, err := p.count()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		t := p.node(ast.TypeArray)
		t.Elem, t.Len = elem, n
		return t, nil
	}
	if p.keyword("fn") {
		if err := p.expect("("); err != nil {
			return nil, err
		}
		params, _, err := p.list(")")
		if err != nil {
			return nil, err
		}
		t := p.node(ast.TypeFn)
		t.Args = params
		if p.accept("->") {
			if t.Elem, err = p.typ(); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
	name := p.ident()
	if name == "" {
		if p.pos == len(p.src) {
			return nil, p.errorf("unexpected end")
		}
		return nil, p.errorf("unexpected %q", p.src[p.pos:p.pos+1])
	}
	t := p.node(ast.TypeNamed)
	t.Name = p.strs.Intern(name)
	if p.accept("<") {
		args, _, err := p.list(">")
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, p.errorf("empty type argument list")
		}
		t.Args = args
	}
	return t, nil
}

// list reads comma-separated types up to close. trailing reports a comma
// right before close.
func (p *typeParser) list(close string) (out []*ast.TypeExpr, trailing bool, err error) {
	if p.accept(close) {
		return nil, false, nil
	}
	for {
		t, err := p.typ()
		if err != nil {
			return nil, false, err
		}
		out = append(out, t)
		if p.accept(close) {
			return out, false, nil
		}
		if err := p.expect(","); err != nil {
			return nil, false, err
		}
		if p.accept(close) {
			return out, true, nil
		}
	}
}

func (p *typeParser) count() (int64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
	if err != nil {
		return 0, p.errorf("bad array length")
	}
	return n, nil
}
