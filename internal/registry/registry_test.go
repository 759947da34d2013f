package registry

import (
	"strings"
	"testing"

	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/types"
)

func newTestRegistry() (*Registry, *ast.Builder, *diag.Bag) {
	strs := source.NewInterner()
	tys := types.NewInterner(strs)
	return New(strs, tys), ast.NewBuilder(strs), diag.NewBag(100)
}

func registerAll(r *Registry, bag *diag.Bag, u *ast.Unit) {
	rep := diag.BagReporter{Bag: bag}
	for _, it := range u.Items {
		r.Register(it, rep)
	}
	r.Seal(rep)
}

func TestRegisterPreDeclaresImplMethods(t *testing.T) {
	r, b, bag := newTestRegistry()
	show := b.Method("show", ast.SelfRef, nil, b.T("str"), b.BlockTail(b.Str("p")))
	u := b.Unit("m",
		// impl before both the trait and the record
		b.Impl("Show", b.T("Point"), show),
		b.Record("Point", b.FieldD("x", b.T("i32"))),
		b.Trait("Show", b.Method("show", ast.SelfRef, nil, b.T("str"), nil)),
	)
	registerAll(r, bag, u)
	if bag.HasErrors() || bag.HasWarnings() {
		t.Fatalf("unexpected diagnostics: %+v", bag.Items())
	}
	m, ok := r.Method("Point", b.Sym("show"))
	if !ok || m.Symbol != "Point_Show_show" {
		t.Fatalf("method not registered under mangled name: %+v", m)
	}
	if m.Self == types.NoTypeID || m.OwnerDef == NoDefID {
		t.Fatalf("owner not fixed up after seal")
	}
	if !r.HasImpl(b.Sym("Show"), "Point") {
		t.Fatalf("impl not recorded")
	}
}

func TestTraitDefaultsAndContractWarnings(t *testing.T) {
	r, b, bag := newTestRegistry()
	u := b.Unit("m",
		b.Trait("Greet",
			b.Method("name", ast.SelfRef, nil, b.T("str"), nil),
			b.Method("hello", ast.SelfRef, nil, b.T("str"), b.BlockTail(b.Str("hi"))),
			b.Method("bye", ast.SelfRef, nil, b.T("str"), nil),
		),
		b.Record("Dog"),
		b.Impl("Greet", b.T("Dog"),
			b.Method("name", ast.SelfRef, nil, b.T("str"), b.BlockTail(b.Str("dog"))),
			b.Method("extra", ast.SelfRef, nil, nil, b.Block()),
		),
	)
	registerAll(r, bag, u)

	if bag.HasErrors() {
		t.Fatalf("contract findings must not be errors: %+v", bag.Items())
	}
	if len(bag.WithCode(diag.WarnMethodNotInTrait)) != 1 {
		t.Fatalf("expected a warning for `extra`")
	}
	if len(bag.WithCode(diag.WarnMissingTraitImpl)) != 1 {
		t.Fatalf("expected a warning for missing `bye`")
	}
	hello, ok := r.Method("Dog", b.Sym("hello"))
	if !ok || !hello.Default || hello.Symbol != "Dog_Greet_hello" {
		t.Fatalf("default method not attached: %+v", hello)
	}
}

func TestUserTypeShadowsBuiltin(t *testing.T) {
	r, b, bag := newTestRegistry()
	registerAll(r, bag, b.Unit("m", b.Record("Box", b.FieldD("v", b.T("i32")))))
	d, ok := r.LookupString("Box")
	if !ok || d.Kind != DefRecord {
		t.Fatalf("user Box should shadow the builtin, got %+v", d)
	}
	d, _ = r.LookupString("Vec")
	if d.Kind != DefBuiltin {
		t.Fatalf("Vec should stay builtin")
	}
}

func TestDuplicateSymbolIsDiagnosed(t *testing.T) {
	r, b, bag := newTestRegistry()
	u := b.Unit("m",
		b.Record("Point", b.FieldD("x", b.T("i32"))),
		b.Impl("", b.T("Point"), b.Method("new", ast.SelfNone, nil, b.T("Point"), b.Block())),
		b.Fn("Point_new", nil, nil, b.Block()),
	)
	registerAll(r, bag, u)
	if got := bag.WithCode(diag.RegDuplicateSymbol); len(got) != 1 {
		t.Fatalf("expected one duplicate symbol diagnostic, got %+v", bag.Items())
	}
}

func TestCycleChainIsReportedInOrder(t *testing.T) {
	r, b, bag := newTestRegistry()
	u := b.Unit("m",
		b.Record("A", b.FieldD("b", b.T("B"))),
		b.Record("B", b.FieldD("c", b.T("C"))),
		b.Record("C", b.FieldD("a", b.T("A")), b.FieldD("next", b.T("Box", b.T("C")))),
		b.Record("Leaf", b.FieldD("x", b.T("i32"))),
	)
	registerAll(r, bag, u)

	tys := r.Types()
	resolve := func(name, field, target string) {
		d, _ := r.LookupString(name)
		td, _ := r.LookupString(target)
		d.Fields = append(d.Fields, Field{Name: b.Sym(field), Type: td.Type})
		d.Resolved = true
	}
	resolve("A", "b", "B")
	resolve("B", "c", "C")
	resolve("C", "a", "A")
	c, _ := r.LookupString("C")
	c.Fields = append(c.Fields, Field{Name: b.Sym("next"), Type: tys.Container(types.BuiltinBox, []types.TypeID{c.Type})})
	leaf, _ := r.LookupString("Leaf")
	leaf.Resolved = true

	rep := diag.BagReporter{Bag: bag}
	cycles := r.CheckCycles(rep)
	if len(cycles) != 1 {
		t.Fatalf("expected exactly one cycle, got %d", len(cycles))
	}
	if got := strings.Join(r.CycleNames(cycles[0]), ","); got != "A,B,C" {
		t.Fatalf("unexpected chain %s", got)
	}
	errs := bag.WithCode(diag.RegRecordCycle)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "A -> B -> C -> A") {
		t.Fatalf("unexpected diagnostics %+v", errs)
	}
	if len(errs[0].Notes) != 3 {
		t.Fatalf("each link should carry a note, got %d", len(errs[0].Notes))
	}
}

func TestGenericImplLinkedToOrigin(t *testing.T) {
	r, b, bag := newTestRegistry()
	impl := b.Impl("", b.T("Wrap", b.T("T")), b.Method("get", ast.SelfRef, nil, b.T("T"), b.BlockTail(b.Field(b.Ident("self"), "v"))))
	impl.TypeParams = b.TParams("T")
	rec := b.Record("Wrap", b.FieldD("v", b.T("T")))
	rec.TypeParams = b.TParams("T")
	registerAll(r, bag, b.Unit("m", impl, rec))
	if bag.Len() != 0 {
		t.Fatalf("unexpected diagnostics %+v", bag.Items())
	}
	d, _ := r.LookupString("Wrap")
	if got := r.GenericImpls(d.ID); len(got) != 1 {
		t.Fatalf("generic impl not linked")
	}
	if r.MethodSet("Wrap") != nil {
		t.Fatalf("generic definitions must not get concrete methods")
	}
}
