package ast

import "testing"

func TestClonerMapsTypes(t *testing.T) {
	b := NewBuilder(nil)
	// fn id<T>(x: T) -> T { let y: T = x; y }
	fn := b.Fn("id", []Param{b.P("x", b.T("T"))}, b.T("T"),
		b.BlockTail(b.Ident("y"), b.Let("y", b.T("T"), b.Ident("x"))))
	fn.TypeParams = b.TParams("T")

	tSym := b.Sym("T")
	replaced := 0
	c := Cloner{MapType: func(te *TypeExpr) *TypeExpr {
		if te.Kind == TypeNamed && te.Name == tSym {
			replaced++
			return b.T("i32")
		}
		return nil
	}}
	out := c.Fn(fn)

	if replaced != 3 {
		t.Fatalf("expected 3 substitutions, got %d", replaced)
	}
	if out.Params[0].Type.Name != b.Sym("i32") || out.Result.Name != b.Sym("i32") {
		t.Fatalf("signature not substituted")
	}
	if fn.Params[0].Type.Name != tSym {
		t.Fatalf("original must stay untouched")
	}
	let := out.Body.Stmts[0].Data.(LetData)
	if let.Type.Name != b.Sym("i32") {
		t.Fatalf("body annotation not substituted")
	}
	if out.Body == fn.Body || out.Body.Stmts[0] == fn.Body.Stmts[0] {
		t.Fatalf("clone must not share nodes")
	}
}

func TestBuilderSpansAreDistinct(t *testing.T) {
	b := NewBuilder(nil)
	x, y := b.Ident("x"), b.Ident("x")
	if x.Span == y.Span {
		t.Fatalf("builder spans should differ")
	}
	if x.Data.(IdentData).Name != y.Data.(IdentData).Name {
		t.Fatalf("names should be interned once")
	}
}
