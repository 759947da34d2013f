package lower

import (
	"context"
	"strings"
	"testing"

	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/source"
)

func lowerUnit(t *testing.T, decls func(b *ast.Builder) []any) (*lir.Module, *diag.Bag) {
	t.Helper()
	strs := source.NewInterner()
	b := ast.NewBuilder(strs)
	bag := diag.NewBag(100)
	s := NewSession(context.Background(), strs, diag.BagReporter{Bag: bag}, DefaultOptions())
	mod, _ := s.Lower(b.Unit("m", decls(b)...))
	if mod == nil {
		t.Fatalf("definitions rejected: %+v", bag.Items())
	}
	return mod, bag
}

// mustLower fails the test on any error diagnostic or invalid module.
func mustLower(t *testing.T, decls func(b *ast.Builder) []any) *lir.Module {
	t.Helper()
	mod, bag := lowerUnit(t, decls)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", bag.Items())
	}
	if err := lir.Validate(mod); err != nil {
		t.Fatalf("invalid module: %v\n%s", err, lir.DumpString(mod))
	}
	return mod
}

func funcOf(t *testing.T, mod *lir.Module, name string) *lir.Func {
	t.Helper()
	f, ok := mod.Func(name)
	if !ok {
		t.Fatalf("no function %q in\n%s", name, lir.DumpString(mod))
	}
	return f
}

// calls lists the direct callees of f in block order.
func calls(f *lir.Func) []string {
	var out []string
	for _, bl := range f.Blocks {
		for _, in := range bl.Instrs {
			if in.Kind == lir.InstrCall && in.Call.Callee.Kind == lir.VFunc {
				out = append(out, in.Call.Callee.Sym)
			}
		}
	}
	return out
}

func count(names []string, name string) int {
	n := 0
	for _, s := range names {
		if s == name {
			n++
		}
	}
	return n
}

func terms(f *lir.Func, kind lir.TermKind) int {
	n := 0
	for _, bl := range f.Blocks {
		if bl.Term.Kind == kind {
			n++
		}
	}
	return n
}

func i32(b *ast.Builder) *ast.TypeExpr { return b.T("i32") }

func TestLowerPlainFunctions(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		add := b.Fn("add", []ast.Param{b.P("a", i32(b)), b.P("b", i32(b))}, i32(b),
			b.BlockTail(b.Bin(ast.BinAdd, b.Ident("a"), b.Ident("b"))))
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("x", nil, b.Call("add", b.Int(1), b.Int(2))),
		))
		return []any{main, add}
	})
	main := funcOf(t, mod, "main")
	if got := calls(main); count(got, "add") != 1 {
		t.Fatalf("main calls %v, want one call to add", got)
	}
	if add := funcOf(t, mod, "add"); len(add.Params) != 2 {
		t.Fatalf("add has %d params", len(add.Params))
	}
}

func TestGenericFunctionInstances(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		id := b.Fn("id", []ast.Param{b.P("x", b.T("T"))}, b.T("T"), b.BlockTail(b.Ident("x")))
		id.TypeParams = b.TParams("T")
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("a", nil, b.Call("id", b.Int(1))),
			b.Let("c", nil, b.Call("id", b.Bool(true))),
			b.Let("d", nil, b.CallT("id", []*ast.TypeExpr{b.T("i64")}, b.Int(3))),
			b.Let("e", nil, b.Call("id", b.Int(4))),
		))
		return []any{id, main}
	})
	got := calls(funcOf(t, mod, "main"))
	for name, want := range map[string]int{"id_i32": 2, "id_bool": 1, "id_i64": 1} {
		funcOf(t, mod, name)
		if n := count(got, name); n != want {
			t.Errorf("%d calls to %s, want %d (%v)", n, name, want, got)
		}
	}
	if _, ok := mod.Func("id"); ok {
		t.Fatalf("generic template was lowered")
	}
}

func TestClosureEnvironment(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		body := b.If(b.Ident("c"),
			b.BlockTail(b.Bin(ast.BinAdd, b.Ident("x"), b.Ident("a"))),
			b.BlockExpr(b.BlockTail(b.Ident("x"))))
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("a", i32(b), b.Int(1)),
			b.Let("c", nil, b.Bool(true)),
			b.Let("f", nil, b.Closure([]ast.Param{b.P("x", i32(b))}, i32(b), body)),
			b.Let("y", nil, b.CallExpr(b.Ident("f"), nil, b.Int(2))),
		))
		return []any{main}
	})
	cl := funcOf(t, mod, "main$closure0")
	if cl.Kind != lir.FuncClosure || len(cl.Params) != 2 || cl.Params[0].Type != mod.Types.Ptr {
		t.Fatalf("closure signature: kind %v params %+v", cl.Kind, cl.Params)
	}
	var env *lir.Type
	for _, id := range mod.Types.NamedStructs() {
		if ty := mod.Types.Get(id); ty.Name == "main$env0" {
			env = &ty
		}
	}
	if env == nil {
		t.Fatalf("no environment struct in\n%s", lir.DumpString(mod))
	}
	// c is used before a inside the body.
	i32t := mod.Types.Int(32)
	if len(env.Fields) != 2 || env.Fields[0] == i32t || env.Fields[1] != i32t {
		t.Fatalf("environment fields %v", env.Fields)
	}
}

func TestClosureWithoutCaptures(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("f", nil, b.Closure([]ast.Param{b.P("x", i32(b))}, nil, b.Ident("x"))),
			b.Let("y", nil, b.CallExpr(b.Ident("f"), nil, b.Int(2))),
		))
		return []any{main}
	})
	funcOf(t, mod, "main$closure0")
	for _, id := range mod.Types.NamedStructs() {
		if mod.Types.Get(id).Name == "main$env0" {
			t.Fatalf("closure without captures got an environment struct")
		}
	}
}

func TestClosureParamNeedsType(t *testing.T) {
	_, bag := lowerUnit(t, func(b *ast.Builder) []any {
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("f", nil, b.Closure([]ast.Param{b.P("x", nil)}, nil, b.Ident("x"))),
		))
		return []any{main}
	})
	if len(bag.WithCode(diag.LowClosureParam)) != 1 {
		t.Fatalf("want one closure parameter error, got %+v", bag.Items())
	}
}

func TestMatchLiteralTests(t *testing.T) {
	cases := []struct {
		name   string
		arms   func(b *ast.Builder) []ast.MatchArm
		condBr int
	}{
		{
			name: "literal then binding",
			arms: func(b *ast.Builder) []ast.MatchArm {
				return []ast.MatchArm{
					b.Arm(b.PLit(b.Int(0)), b.Int(10)),
					b.Arm(b.PIdent("n"), b.Ident("n")),
				}
			},
			condBr: 1,
		},
		{
			name: "two literals then wildcard",
			arms: func(b *ast.Builder) []ast.MatchArm {
				return []ast.MatchArm{
					b.Arm(b.PLit(b.Int(0)), b.Int(10)),
					b.Arm(b.PLit(b.Int(1)), b.Int(20)),
					b.Arm(b.PWild(), b.Int(30)),
				}
			},
			condBr: 2,
		},
		{
			name: "guarded binding",
			arms: func(b *ast.Builder) []ast.MatchArm {
				return []ast.MatchArm{
					b.ArmIf(b.PIdent("n"), b.Bin(ast.BinGt, b.Ident("n"), b.Int(5)), b.Int(1)),
					b.Arm(b.PWild(), b.Int(0)),
				}
			},
			condBr: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod := mustLower(t, func(b *ast.Builder) []any {
				f := b.Fn("pick", []ast.Param{b.P("x", i32(b))}, i32(b),
					b.BlockTail(b.Match(b.Ident("x"), tc.arms(b)...)))
				return []any{f}
			})
			if n := terms(funcOf(t, mod, "pick"), lir.TermCondBr); n != tc.condBr {
				t.Fatalf("%d conditional branches, want %d\n%s", n, tc.condBr, lir.DumpString(mod))
			}
		})
	}
}

func TestMatchVariantCases(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		shape := b.Variant("Shape", b.Case("Circle", i32(b)), b.Case("Empty", nil))
		area := b.Fn("area", []ast.Param{b.P("s", b.T("Shape"))}, i32(b),
			b.BlockTail(b.Match(b.Ident("s"),
				b.Arm(b.PVariant("Shape", "Circle", b.PIdent("r")), b.Ident("r")),
				b.Arm(b.PVariant("Shape", "Empty", nil), b.Int(0)),
			)))
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("a", nil, b.Call("area", b.MCall(b.Ident("Shape"), "Circle", b.Int(3)))),
			b.Let("e", nil, b.Call("area", b.Ident("Empty"))),
		))
		return []any{shape, area, main}
	})
	funcOf(t, mod, "area")
}

func TestAlternationMayNotBind(t *testing.T) {
	_, bag := lowerUnit(t, func(b *ast.Builder) []any {
		f := b.Fn("f", []ast.Param{b.P("x", i32(b))}, i32(b),
			b.BlockTail(b.Match(b.Ident("x"),
				b.Arm(b.PAlt(b.PLit(b.Int(0)), b.PIdent("n")), b.Int(1)),
				b.Arm(b.PWild(), b.Int(0)),
			)))
		return []any{f}
	})
	if len(bag.WithCode(diag.LowAltBinds)) != 1 {
		t.Fatalf("want one alternation error, got %+v", bag.Items())
	}
}

func TestArrayAnnotationSize(t *testing.T) {
	cases := []struct {
		name  string
		elems int
		fails bool
	}{
		{"exact", 3, false},
		{"short", 2, true},
		{"long", 4, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, bag := lowerUnit(t, func(b *ast.Builder) []any {
				elems := make([]*ast.Expr, tc.elems)
				for i := range elems {
					elems[i] = b.Int(int64(i))
				}
				main := b.Fn("main", nil, nil, b.Block(
					b.Let("a", b.TArray(i32(b), 3), b.Array(elems...)),
				))
				return []any{main}
			})
			got := len(bag.WithCode(diag.LowArraySize)) == 1
			if got != tc.fails {
				t.Fatalf("size error reported: %v, want %v (%+v)", got, tc.fails, bag.Items())
			}
		})
	}
}

// dropDecls declares two records with Drop impls and the Drop trait.
func dropDecls(b *ast.Builder) []any {
	drop := b.Trait("Drop", b.Method("drop", ast.SelfMut, nil, nil, nil))
	return []any{
		drop,
		b.Record("A", b.FieldD("x", i32(b))),
		b.Record("B", b.FieldD("x", i32(b))),
		b.Impl("Drop", b.T("A"), b.Method("drop", ast.SelfMut, nil, nil, b.Block())),
		b.Impl("Drop", b.T("B"), b.Method("drop", ast.SelfMut, nil, nil, b.Block())),
	}
}

func drops(f *lir.Func) []string {
	var out []string
	for _, c := range calls(f) {
		if c == "$drop_A" || c == "$drop_B" {
			out = append(out, c)
		}
	}
	return out
}

func TestReleaseInReverseOrder(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("a", nil, b.Rec(b.T("A"), b.F("x", b.Int(1)))),
			b.Let("b", nil, b.Rec(b.T("B"), b.F("x", b.Int(2)))),
		))
		return append(dropDecls(b), main)
	})
	got := drops(funcOf(t, mod, "main"))
	if len(got) != 2 || got[0] != "$drop_B" || got[1] != "$drop_A" {
		t.Fatalf("release order %v", got)
	}
	glue := calls(funcOf(t, mod, "$drop_A"))
	if count(glue, "A_Drop_drop") != 1 {
		t.Fatalf("glue calls %v", glue)
	}
}

func TestReleaseOnEarlyReturn(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		f := b.Fn("f", []ast.Param{b.P("flag", b.T("bool"))}, nil, b.Block(
			b.Let("a", nil, b.Rec(b.T("A"), b.F("x", b.Int(1)))),
			b.ExprS(b.If(b.Ident("flag"), b.Block(
				b.Let("b", nil, b.Rec(b.T("B"), b.F("x", b.Int(2)))),
				b.Return(nil),
			), nil)),
		))
		return append(dropDecls(b), f)
	})
	got := drops(funcOf(t, mod, "f"))
	if count(got, "$drop_A") != 2 || count(got, "$drop_B") != 1 || got[0] != "$drop_B" {
		t.Fatalf("releases %v", got)
	}
}

func TestMovedValueIsNotReleased(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		take := b.Fn("take", []ast.Param{b.P("v", b.T("A"))}, nil, b.Block())
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("a", nil, b.Rec(b.T("A"), b.F("x", b.Int(1)))),
			b.ExprS(b.Call("take", b.Ident("a"))),
		))
		return append(dropDecls(b), take, main)
	})
	if got := drops(funcOf(t, mod, "main")); len(got) != 0 {
		t.Fatalf("moved binding released: %v", got)
	}
	if got := drops(funcOf(t, mod, "take")); len(got) != 1 {
		t.Fatalf("owned parameter releases %v", got)
	}
}

func TestTypeCallDisambiguation(t *testing.T) {
	decls := func(b *ast.Builder, call *ast.Expr) []any {
		shape := b.Variant("Shape", b.Case("Circle", i32(b)), b.Case("Empty", nil))
		origin := b.Method("origin", ast.SelfNone, nil, b.T("Shape"),
			b.BlockTail(b.MCall(b.Ident("Shape"), "Circle", b.Int(0))))
		main := b.Fn("main", nil, nil, b.Block(b.Let("s", nil, call)))
		return []any{shape, b.Impl("", b.T("Shape"), origin), main}
	}
	cases := []struct {
		name   string
		call   func(b *ast.Builder) *ast.Expr
		code   diag.Code
		callee string
	}{
		{name: "case", call: func(b *ast.Builder) *ast.Expr { return b.MCall(b.Ident("Shape"), "Circle", b.Int(1)) }},
		{name: "static", call: func(b *ast.Builder) *ast.Expr { return b.MCall(b.Ident("Shape"), "origin") }, callee: "Shape_origin"},
		{name: "neither", call: func(b *ast.Builder) *ast.Expr { return b.MCall(b.Ident("Shape"), "square") }, code: diag.ResUnknownMethod},
		{name: "case arity", call: func(b *ast.Builder) *ast.Expr { return b.MCall(b.Ident("Shape"), "Circle") }, code: diag.LowArgCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod, bag := lowerUnit(t, func(b *ast.Builder) []any { return decls(b, tc.call(b)) })
			if tc.code != 0 {
				if len(bag.WithCode(tc.code)) == 0 {
					t.Fatalf("want %v, got %+v", tc.code, bag.Items())
				}
				return
			}
			if bag.HasErrors() {
				t.Fatalf("unexpected errors: %+v", bag.Items())
			}
			got := calls(funcOf(t, mod, "main"))
			if tc.callee == "" && count(got, "Shape_origin") != 0 {
				t.Fatalf("case construction called %v", got)
			}
			if tc.callee != "" && count(got, tc.callee) != 1 {
				t.Fatalf("main calls %v, want %s", got, tc.callee)
			}
		})
	}
}

func TestTraitDefaultMethod(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		greet := b.Trait("Greet",
			b.Method("hello", ast.SelfRef, nil, i32(b), b.BlockTail(b.Int(7))),
			b.Method("id", ast.SelfRef, nil, i32(b), nil),
		)
		impl := b.Impl("Greet", b.T("P"),
			b.Method("id", ast.SelfRef, nil, i32(b), b.BlockTail(b.Field(b.Ident("self"), "x"))))
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("p", nil, b.Rec(b.T("P"), b.F("x", b.Int(1)))),
			b.Let("h", nil, b.MCall(b.Ident("p"), "hello")),
			b.Let("i", nil, b.MCall(b.Ident("p"), "id")),
		))
		return []any{greet, b.Record("P", b.FieldD("x", i32(b))), impl, main}
	})
	got := calls(funcOf(t, mod, "main"))
	for _, name := range []string{"P_Greet_hello", "P_Greet_id"} {
		funcOf(t, mod, name)
		if count(got, name) != 1 {
			t.Errorf("main calls %v, want %s once", got, name)
		}
	}
}

func TestUnknownFunction(t *testing.T) {
	_, bag := lowerUnit(t, func(b *ast.Builder) []any {
		return []any{b.Fn("main", nil, nil, b.Block(b.ExprS(b.Call("nowhere", b.Int(1)))))}
	})
	if len(bag.WithCode(diag.ResUnknownFunc)) != 1 {
		t.Fatalf("want one unknown function error, got %+v", bag.Items())
	}
}

func TestContainerCalls(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		main := b.Fn("main", nil, nil, b.Block(
			b.LetMut("v", b.T("Vec", i32(b)), b.MCall(b.Ident("Vec"), "new")),
			b.ExprS(b.MCall(b.Ident("v"), "push", b.Int(1))),
			b.Let("n", nil, b.MCall(b.Ident("v"), "len")),
		))
		return []any{main}
	})
	got := calls(funcOf(t, mod, "main"))
	for _, name := range []string{"rt_vec_new", "rt_vec_push", "rt_vec_len"} {
		if count(got, name) != 1 {
			t.Errorf("main calls %v, want %s once", got, name)
		}
	}
	if count(got, "$drop_$7$Vec_i32") != 1 {
		t.Errorf("vector not released: %v", got)
	}
}

func instrs(f *lir.Func) []lir.Instr {
	var out []lir.Instr
	for _, bl := range f.Blocks {
		out = append(out, bl.Instrs...)
	}
	return out
}

func namedStruct(t *testing.T, mod *lir.Module, name string) lir.TypeID {
	t.Helper()
	for _, id := range mod.Types.NamedStructs() {
		if mod.Types.Get(id).Name == name {
			return id
		}
	}
	t.Fatalf("no struct %q in\n%s", name, lir.DumpString(mod))
	return 0
}

// callBlock is the index of the block holding the first call to name.
func callBlock(f *lir.Func, name string) int {
	for i, bl := range f.Blocks {
		for _, in := range bl.Instrs {
			if in.Kind == lir.InstrCall && in.Call.Callee.Kind == lir.VFunc && in.Call.Callee.Sym == name {
				return i
			}
		}
	}
	return -1
}

func allocates(f *lir.Func, ty lir.TypeID) bool {
	for _, in := range instrs(f) {
		if in.Kind == lir.InstrAlloca && in.Alloca.Type == ty {
			return true
		}
	}
	return false
}

const fnGlue = "$drop_$9$$fn_0_i32"

func TestClosureCapturesCurrentValue(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		main := b.Fn("main", nil, nil, b.Block(
			b.LetMut("a", i32(b), b.Int(1)),
			b.Let("f", nil, b.Closure(nil, i32(b), b.Ident("a"))),
			b.Assign(b.Ident("a"), b.Int(5)),
			b.Let("y", nil, b.CallExpr(b.Ident("f"), nil)),
		))
		return []any{main}
	})
	env := namedStruct(t, mod, "main$env0")
	main := funcOf(t, mod, "main")
	envField := map[lir.Reg]bool{}
	captured, mutated := -1, -1
	for i, in := range instrs(main) {
		switch {
		case in.Kind == lir.InstrFieldPtr && in.FieldPtr.Struct == env:
			envField[in.Dst] = true
		case in.Kind == lir.InstrStore && in.Store.Ptr.Kind == lir.VReg && envField[in.Store.Ptr.Reg]:
			captured = i
		case in.Kind == lir.InstrStore && in.Store.Value.Kind == lir.VInt && in.Store.Value.Int == 5:
			mutated = i
		}
	}
	if captured < 0 || mutated < 0 || captured > mutated {
		t.Fatalf("capture store at %d, mutation at %d\n%s", captured, mutated, lir.DumpString(mod))
	}

	cl := funcOf(t, mod, "main$closure0")
	envParam := cl.Params[0].Reg
	reads := 0
	for _, in := range instrs(cl) {
		if in.Kind == lir.InstrFieldPtr {
			if in.FieldPtr.Struct != env || in.FieldPtr.Base.Reg != envParam {
				t.Fatalf("closure addresses %+v outside its environment", in.FieldPtr)
			}
			reads++
		}
	}
	if reads != 1 {
		t.Fatalf("closure reads %d environment fields, want 1", reads)
	}
}

func TestClosureEnvironmentPerEvaluation(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		main := b.Fn("main", nil, nil, b.Block(
			b.LetMut("v", b.T("Vec", b.TFn(i32(b))), b.MCall(b.Ident("Vec"), "new")),
			b.LetMut("i", i32(b), b.Int(0)),
			b.While(b.Bin(ast.BinLt, b.Ident("i"), b.Int(3)), b.Block(
				b.Let("x", nil, b.Ident("i")),
				b.ExprS(b.MCall(b.Ident("v"), "push", b.Closure(nil, nil, b.Ident("x")))),
				b.Assign(b.Ident("i"), b.Bin(ast.BinAdd, b.Ident("i"), b.Int(1))),
			)),
		))
		return []any{main}
	})
	env := namedStruct(t, mod, "main$env0")
	main := funcOf(t, mod, "main")
	if allocates(main, env) {
		t.Fatalf("environment lives in the frame of main\n%s", lir.DumpString(mod))
	}
	if i := callBlock(main, "rt_alloc"); i <= 0 {
		t.Fatalf("environment not allocated inside the loop (block %d)\n%s", i, lir.DumpString(mod))
	}
	if got := calls(funcOf(t, mod, fnGlue)); count(got, "rt_free") != 1 {
		t.Fatalf("fn value glue calls %v", got)
	}
}

func TestReturnedClosureOwnsEnvironment(t *testing.T) {
	mod := mustLower(t, func(b *ast.Builder) []any {
		mk := b.Fn("mk", []ast.Param{b.P("a", i32(b))}, b.TFn(i32(b)),
			b.BlockTail(b.Closure(nil, nil, b.Ident("a"))))
		main := b.Fn("main", nil, nil, b.Block(
			b.Let("f", nil, b.Call("mk", b.Int(1))),
			b.Let("y", nil, b.CallExpr(b.Ident("f"), nil)),
		))
		return []any{mk, main}
	})
	mk := funcOf(t, mod, "mk")
	if allocates(mk, namedStruct(t, mod, "mk$env0")) {
		t.Fatalf("returned environment lives in the frame of mk")
	}
	if got := calls(mk); count(got, "rt_alloc") != 1 || count(got, fnGlue) != 0 {
		t.Fatalf("mk calls %v", got)
	}
	if got := calls(funcOf(t, mod, "main")); count(got, fnGlue) != 1 {
		t.Fatalf("main calls %v, want the fn value released once", got)
	}
}

func TestPartialMove(t *testing.T) {
	const vecGlue = "$drop_$7$Vec_i32"
	cases := []struct {
		name     string
		stmts    func(b *ast.Builder) []*ast.Stmt
		vec, rec int
	}{
		{
			name: "field moved out",
			stmts: func(b *ast.Builder) []*ast.Stmt {
				return []*ast.Stmt{b.Let("x", nil, b.Field(b.Ident("h"), "v"))}
			},
			// x, then h.w; h itself is never released whole.
			vec: 2,
		},
		{
			name: "field moved out and refilled",
			stmts: func(b *ast.Builder) []*ast.Stmt {
				return []*ast.Stmt{
					b.Let("x", nil, b.Field(b.Ident("h"), "v")),
					b.Assign(b.Field(b.Ident("h"), "v"), b.MCall(b.Ident("Vec"), "new")),
				}
			},
			vec: 1,
			rec: 1,
		},
		{
			name: "field replaced",
			stmts: func(b *ast.Builder) []*ast.Stmt {
				return []*ast.Stmt{b.Assign(b.Field(b.Ident("h"), "v"), b.MCall(b.Ident("Vec"), "new"))}
			},
			vec: 1,
			rec: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod := mustLower(t, func(b *ast.Builder) []any {
				vec := func() *ast.TypeExpr { return b.T("Vec", i32(b)) }
				rec := b.Record("H", b.FieldD("v", vec()), b.FieldD("w", vec()))
				stmts := []*ast.Stmt{b.LetMut("h", nil, b.Rec(b.T("H"),
					b.F("v", b.MCall(b.Ident("Vec"), "new")),
					b.F("w", b.MCall(b.Ident("Vec"), "new"))))}
				main := b.Fn("main", nil, nil, b.Block(append(stmts, tc.stmts(b)...)...))
				return []any{rec, main}
			})
			got := calls(funcOf(t, mod, "main"))
			if count(got, vecGlue) != tc.vec || count(got, "$drop_H") != tc.rec {
				t.Fatalf("main calls %v, want %d vector and %d record releases", got, tc.vec, tc.rec)
			}
		})
	}
}

func TestForRangeBounds(t *testing.T) {
	cases := []struct {
		name      string
		inclusive bool
		condBr    int
		stepEq    int
	}{
		{"exclusive", false, 1, 0},
		{"inclusive", true, 2, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod := mustLower(t, func(b *ast.Builder) []any {
				f := b.Fn("count", []ast.Param{b.P("n", b.T("u8"))}, nil, b.Block(
					b.For("i", b.Range(b.Int(0), b.Ident("n"), tc.inclusive), b.Block()),
				))
				return []any{f}
			})
			f := funcOf(t, mod, "count")
			if n := terms(f, lir.TermCondBr); n != tc.condBr {
				t.Fatalf("%d conditional branches, want %d\n%s", n, tc.condBr, lir.DumpString(mod))
			}
			eq := 0
			for _, in := range instrs(f) {
				if in.Kind == lir.InstrCmp && in.Cmp.Pred == lir.CmpEq {
					eq++
				}
			}
			// 0..=255 over u8 would wrap if the counter stepped past n.
			if eq != tc.stepEq {
				t.Fatalf("%d equality checks against the end, want %d\n%s", eq, tc.stepEq, lir.DumpString(mod))
			}
		})
	}
}

func TestMatchUnitCaseIdent(t *testing.T) {
	tagChecks := func(f *lir.Func, tag int64) int {
		n := 0
		for _, in := range instrs(f) {
			if in.Kind == lir.InstrCmp && in.Cmp.Pred == lir.CmpEq && in.Cmp.R.Kind == lir.VInt && in.Cmp.R.Int == tag {
				n++
			}
		}
		return n
	}
	cases := []struct {
		name string
		arms func(b *ast.Builder) []ast.MatchArm
	}{
		{
			name: "unit case last",
			arms: func(b *ast.Builder) []ast.MatchArm {
				return []ast.MatchArm{
					b.Arm(b.PVariant("Shape", "Circle", b.PIdent("r")), b.Ident("r")),
					b.Arm(b.PIdent("Empty"), b.Int(0)),
				}
			},
		},
		{
			name: "unit case first",
			arms: func(b *ast.Builder) []ast.MatchArm {
				return []ast.MatchArm{
					b.Arm(b.PIdent("Empty"), b.Int(0)),
					b.Arm(b.PVariant("Shape", "Circle", b.PIdent("r")), b.Ident("r")),
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mod := mustLower(t, func(b *ast.Builder) []any {
				shape := b.Variant("Shape", b.Case("Circle", i32(b)), b.Case("Empty", nil))
				area := b.Fn("area", []ast.Param{b.P("s", b.T("Shape"))}, i32(b),
					b.BlockTail(b.Match(b.Ident("s"), tc.arms(b)...)))
				return []any{shape, area}
			})
			area := funcOf(t, mod, "area")
			if n := terms(area, lir.TermCondBr); n != 2 {
				t.Fatalf("%d conditional branches, want one per arm\n%s", n, lir.DumpString(mod))
			}
			if tagChecks(area, 1) != 1 || tagChecks(area, 0) != 1 {
				t.Fatalf("want one tag check per case\n%s", lir.DumpString(mod))
			}
		})
	}

	t.Run("option none", func(t *testing.T) {
		mod := mustLower(t, func(b *ast.Builder) []any {
			f := b.Fn("get", []ast.Param{b.P("o", b.T("Option", i32(b)))}, i32(b),
				b.BlockTail(b.Match(b.Ident("o"),
					b.Arm(b.PVariant("", "Some", b.PIdent("x")), b.Ident("x")),
					b.Arm(b.PIdent("None"), b.Int(0)),
				)))
			return []any{f}
		})
		get := funcOf(t, mod, "get")
		if got := calls(get); count(got, "rt_option_is_some") != 2 {
			t.Fatalf("get calls %v, want a check for each arm", got)
		}
		if n := terms(get, lir.TermCondBr); n != 2 {
			t.Fatalf("%d conditional branches, want 2", n)
		}
	})
}

func TestTypeArgsOnPlainFunction(t *testing.T) {
	_, bag := lowerUnit(t, func(b *ast.Builder) []any {
		add := b.Fn("add", []ast.Param{b.P("a", i32(b))}, i32(b), b.BlockTail(b.Ident("a")))
		main := b.Fn("main", nil, nil, b.Block(
			b.ExprS(b.CallT("add", []*ast.TypeExpr{i32(b)}, b.Int(1))),
		))
		return []any{add, main}
	})
	errs := bag.WithCode(diag.MonoNotGeneric)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "`add`") {
		t.Fatalf("want one error naming add, got %+v", bag.Items())
	}
}

func TestSelfNestingGenericStops(t *testing.T) {
	_, bag := lowerUnit(t, func(b *ast.Builder) []any {
		// grow<T>(x: T) calls grow(Box.new(x)): every level nests once more.
		grow := b.Fn("grow", []ast.Param{b.P("x", b.T("T"))}, nil, b.Block(
			b.ExprS(b.Call("grow", b.MCall(b.Ident("Box"), "new", b.Ident("x")))),
		))
		grow.TypeParams = b.TParams("T")
		main := b.Fn("main", nil, nil, b.Block(b.ExprS(b.Call("grow", b.Int(1)))))
		return []any{grow, main}
	})
	if n := len(bag.WithCode(diag.MonoDepthExceeded)); n != 1 {
		t.Fatalf("want one depth error, got %+v", bag.Items())
	}
}
