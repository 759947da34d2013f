package mono

import (
	"fmt"
	"strings"
	"testing"

	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/types"
)

type countingLowerer struct {
	lowered map[string]int
	last    *FuncInstance
}

func (c *countingLowerer) LowerInstance(fi *FuncInstance) {
	c.lowered[fi.Name]++
	c.last = fi
}

func setup(t *testing.T, maxDepth int, decls func(b *ast.Builder) []any) (*Engine, *ast.Builder, *diag.Bag) {
	t.Helper()
	strs := source.NewInterner()
	tys := types.NewInterner(strs)
	reg := registry.New(strs, tys)
	b := ast.NewBuilder(strs)
	bag := diag.NewBag(100)
	rep := diag.BagReporter{Bag: bag}
	for _, it := range b.Unit("m", decls(b)...).Items {
		reg.Register(it, rep)
	}
	reg.Seal(rep)
	e := New(reg, rep, Options{MaxDepth: maxDepth})
	if !e.ResolveDefinitions() {
		t.Fatalf("registry errors: %+v", bag.Items())
	}
	return e, b, bag
}

func generic(rec *ast.RecordDecl, b *ast.Builder, params ...string) *ast.RecordDecl {
	rec.TypeParams = b.TParams(params...)
	return rec
}

func TestInstantiateTypeIsCached(t *testing.T) {
	e, b, bag := setup(t, 0, func(b *ast.Builder) []any {
		return []any{generic(b.Record("Wrap", b.FieldD("v", b.T("T"))), b, "T")}
	})
	i32 := e.types.Builtins().I32

	first := e.ResolveType(b.T("Wrap", b.T("i32")), nil)
	second := e.ResolveType(b.T("Wrap", b.T("i32")), nil)
	if first == types.NoTypeID || first != second {
		t.Fatalf("expected one type for Wrap<i32>, got %d and %d (%+v)", first, second, bag.Items())
	}
	if n := e.Instantiations().Len(); n != 1 {
		t.Fatalf("expected a single cache entry, got %d", n)
	}
	entry := e.Instantiations().Ordered()[0]
	if entry.Name != "Wrap_i32" || len(entry.UseSites) != 2 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	d := e.reg.Def(entry.Def)
	if len(d.Fields) != 1 || d.Fields[0].Type != i32 {
		t.Fatalf("fields not substituted: %+v", d.Fields)
	}
}

func TestInstantiateFunctionLowersOnce(t *testing.T) {
	e, b, bag := setup(t, 0, func(b *ast.Builder) []any {
		id := b.Fn("id", []ast.Param{b.P("x", b.T("T"))}, b.T("T"), b.BlockTail(b.Ident("x")))
		id.TypeParams = b.TParams("T")
		return []any{id}
	})
	low := &countingLowerer{lowered: map[string]int{}}
	e.SetLowerer(low)
	fn, _ := e.reg.Func(b.Sym("id"))
	str := e.types.Builtins().String

	for range 3 {
		name, ok := e.InstantiateFunction(fn, []types.TypeID{str}, b.Ident("x").Span)
		if !ok || name != "id_str" {
			t.Fatalf("unexpected instance %q ok=%v (%+v)", name, ok, bag.Items())
		}
	}
	if low.lowered["id_str"] != 1 {
		t.Fatalf("body lowered %d times", low.lowered["id_str"])
	}
	p := low.last.Decl.Params[0].Type
	if p.Kind != ast.TypeResolved || p.ID != str {
		t.Fatalf("parameter type not substituted: %+v", p)
	}
	if fn.Decl.Params[0].Type.Kind != ast.TypeNamed {
		t.Fatalf("generic declaration was mutated")
	}
}

func TestDepthExceededReportedOnce(t *testing.T) {
	e, b, bag := setup(t, 0, func(b *ast.Builder) []any {
		// Grow<T> holds Vec<Grow<Box<T>>>: every level wraps T once more.
		return []any{generic(b.Record("Grow",
			b.FieldD("next", b.T("Vec", b.T("Grow", b.T("Box", b.T("T")))))), b, "T")}
	})
	got := e.ResolveType(b.T("Grow", b.T("i32")), nil)
	errs := bag.WithCode(diag.MonoDepthExceeded)
	if len(errs) != 1 {
		t.Fatalf("expected one depth error, got %d: %+v", len(errs), bag.Items())
	}
	if got == types.NoTypeID {
		t.Fatalf("the outermost instance should still exist")
	}
	if !strings.Contains(errs[0].Message, fmt.Sprintf("limit of %d", DefaultMaxDepth)) {
		t.Fatalf("depth error %q does not name the default limit", errs[0].Message)
	}
	// Every level adds a bounded prefix to the name of the level below.
	longest := 0
	for _, entry := range e.Instantiations().Ordered() {
		longest = max(longest, len(entry.Name))
	}
	if longest > 32*DefaultMaxDepth {
		t.Fatalf("instance names grow too fast: longest is %d bytes", longest)
	}
}

func TestDepth(t *testing.T) {
	e, _, _ := setup(t, 0, func(*ast.Builder) []any { return nil })
	tys := e.types
	i32 := tys.Builtins().I32
	box := tys.Container(types.BuiltinBox, []types.TypeID{i32})
	boxBox := tys.Container(types.BuiltinBox, []types.TypeID{box})

	tests := []struct {
		name string
		t    types.TypeID
		want int
	}{
		{"prim", i32, 0},
		{"Box<i32>", box, 1},
		{"Box<Box<i32>>", boxBox, 2},
		{"tuple", tys.Tuple([]types.TypeID{box, i32}), 1},
		{"ref", tys.Intern(types.MakeRef(boxBox, false)), 2},
	}
	for _, tt := range tests {
		if got := e.Depth(tt.t); got != tt.want {
			t.Errorf("%s: depth %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestArity(t *testing.T) {
	e, b, bag := setup(t, 0, func(b *ast.Builder) []any {
		return []any{generic(b.Record("Wrap", b.FieldD("v", b.T("T"))), b, "T")}
	})
	tests := []*ast.TypeExpr{
		b.T("Wrap", b.T("i32"), b.T("i32")),
		b.T("Vec"),
		b.T("Map", b.T("str")),
	}
	for _, te := range tests {
		if got := e.ResolveType(te, nil); got != types.NoTypeID {
			t.Fatalf("expected failure for %s", e.name(te.Name))
		}
	}
	if n := len(bag.WithCode(diag.MonoArity)); n != len(tests) {
		t.Fatalf("expected %d arity errors, got %d", len(tests), n)
	}
	if e.ResolveType(b.T("i32", b.T("i32")), nil) != types.NoTypeID {
		t.Fatalf("primitive with arguments must fail")
	}
}

func TestInferTypeArgs(t *testing.T) {
	e, b, bag := setup(t, 0, func(b *ast.Builder) []any {
		return []any{generic(b.Record("Pair", b.FieldD("a", b.T("A")), b.FieldD("b", b.T("B"))), b, "A", "B")}
	})
	tys := e.types
	str, i32 := tys.Builtins().String, tys.Builtins().I32
	pair := e.ResolveType(b.T("Pair", b.T("i32"), b.T("str")), nil)
	vec := tys.Container(types.BuiltinVec, []types.TypeID{str})

	params := b.TParams("K", "V")
	written := []*ast.TypeExpr{
		b.T("Vec", b.T("V")),
		b.TRef(b.T("Pair", b.T("K"), b.T("V")), false),
	}
	args := []types.TypeID{vec, tys.Intern(types.MakeRef(pair, false))}
	got, ok := e.InferTypeArgs("f", params, written, args, source.NoSpan)
	if !ok || got[0] != i32 || got[1] != str {
		t.Fatalf("unexpected inference %v ok=%v (%+v)", got, ok, bag.Items())
	}

	_, ok = e.InferTypeArgs("make", b.TParams("T"), nil, nil, source.NoSpan)
	if ok || len(bag.WithCode(diag.MonoCannotInfer)) != 1 {
		t.Fatalf("expected an inference failure")
	}
}

func TestGenericImplAttachedToInstance(t *testing.T) {
	e, b, bag := setup(t, 0, func(b *ast.Builder) []any {
		impl := b.Impl("Show", b.T("Wrap", b.T("T")),
			b.Method("show", ast.SelfRef, nil, b.T("str"), b.BlockTail(b.Str("w"))))
		impl.TypeParams = b.TParams("T")
		return []any{
			b.Trait("Show",
				b.Method("show", ast.SelfRef, nil, b.T("str"), nil),
				b.Method("twice", ast.SelfRef, nil, b.T("str"), b.BlockTail(b.Str("ww")))),
			generic(b.Record("Wrap", b.FieldD("v", b.T("T"))), b, "T"),
			impl,
		}
	})
	wrap := e.ResolveType(b.T("Wrap", b.T("u8")), nil)
	if wrap == types.NoTypeID {
		t.Fatalf("instantiation failed: %+v", bag.Items())
	}
	show, ok := e.reg.Method("Wrap_u8", b.Sym("show"))
	if !ok || show.Symbol != "$7$Wrap_u8_Show_show" || show.Self != wrap {
		t.Fatalf("impl method not attached: %+v", show)
	}
	twice, ok := e.reg.Method("Wrap_u8", b.Sym("twice"))
	if !ok || !twice.Default {
		t.Fatalf("trait default not attached to the instance")
	}
	if !e.reg.HasImpl(b.Sym("Show"), "Wrap_u8") {
		t.Fatalf("instance does not implement Show")
	}
}
