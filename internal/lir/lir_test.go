package lir

import (
	"strings"
	"testing"
)

func buildAbs(m *Module) *Func {
	t := m.Types
	f := m.NewFunc("abs", FuncPlain, t.I32, []Param{{Name: "x", Type: t.I32}})
	b := NewBuilder(m)
	b.Start(f)
	slot := b.Alloca(t.I32)
	b.Store(f.Param(0), slot)
	neg := b.NewBlock("neg")
	done := b.NewBlock("done")
	x := b.Load(t.I32, slot)
	b.CondBr(b.Cmp(CmpSLt, x, ConstInt(t.I32, 0)), neg, done)

	b.SetBlock(neg)
	y := b.Load(t.I32, slot)
	b.Store(b.Bin(BinSub, ConstInt(t.I32, 0), y), slot)
	b.Br(done)

	b.SetBlock(done)
	b.Ret(b.Load(t.I32, slot))
	return f
}

func TestBuilderPlacesAllocasAtEntry(t *testing.T) {
	m := NewModule("m")
	f := buildAbs(m)
	b := NewBuilder(m)
	b.Restore(Position{F: f, Cur: f.Blocks[1]})
	b.Alloca(m.Types.I64)

	entry := f.Entry()
	if entry.Instrs[0].Kind != InstrAlloca || entry.Instrs[1].Kind != InstrAlloca {
		t.Fatalf("allocas must lead the entry block: %v %v", entry.Instrs[0].Kind, entry.Instrs[1].Kind)
	}
	if err := Validate(m); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateReportsDefects(t *testing.T) {
	m := NewModule("m")
	ts := m.Types
	callee := m.Declare("rt_len", ts.I64, ts.Ptr)
	f := m.NewFunc("bad", FuncPlain, ts.I32, nil)
	b := NewBuilder(m)
	b.Start(f)
	b.Call(FuncRef(ts.Ptr, callee.Name), ts.Func(ts.I64, ts.Ptr, ts.Ptr), Null(ts.Ptr), Null(ts.Ptr))
	b.NewBlock("orphan")
	b.RetVoid()
	m.NewFunc("bad", FuncPlain, ts.Void, nil)

	err := Validate(m)
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"defined twice", "does not match its declaration", "unterminated block", "missing return value"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestDumpIsDeterministic(t *testing.T) {
	m := NewModule("m")
	buildAbs(m)
	m.Declare("rt_print", m.Types.Void, m.Types.Ptr)
	m.String("hi")
	p := m.Types.Named("Point")
	m.Types.SetBody(p, m.Types.I32, m.Types.I32)

	got := DumpString(m)
	for _, want := range []string{
		"%Point = type {i32, i32}",
		`@.str.0 = "hi"`,
		"declare void @rt_print(ptr)",
		"define i32 @abs(i32 %1) ; fn",
		"%2 = alloca i32",
		"br i1 %4, %neg1, %done2",
		"%6 = sub i32 0, %5",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dump lacks %q:\n%s", want, got)
		}
	}
	if got != DumpString(m) {
		t.Fatalf("dump is not stable")
	}
}

func TestTypesIntern(t *testing.T) {
	ts := NewTypes()
	if ts.Struct(ts.I32, ts.Ptr) != ts.Struct(ts.I32, ts.Ptr) {
		t.Fatalf("anonymous structs should intern")
	}
	if ts.Named("A") != ts.Named("A") || ts.Named("A") == ts.Named("B") {
		t.Fatalf("named structs intern by name")
	}
	if got := ts.String(ts.Func(ts.Void, ts.Ptr, ts.Array(ts.I8, 4))); got != "void (ptr, [4 x i8])" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestRestoreModuleKeepsDump(t *testing.T) {
	m := NewModule("m")
	buildAbs(m)
	m.String("hi")
	p := m.Types.Named("Point")
	m.Types.SetBody(p, m.Types.I32, m.Types.Array(m.Types.I8, 4))

	ts, err := RestoreTypes(append([]Type(nil), m.Types.All()...))
	if err != nil {
		t.Fatal(err)
	}
	r := RestoreModule(m.Name, ts, m.Funcs, m.Strings)
	if got, want := DumpString(r), DumpString(m); got != want {
		t.Fatalf("restored dump differs:\n%s\nwant:\n%s", got, want)
	}
	if _, ok := r.Func("abs"); !ok {
		t.Fatal("abs not indexed")
	}
	if v := r.String("hi"); v.Sym != ".str.0" {
		t.Fatalf("string reinterned as %s", v.Sym)
	}
	if r.Types.Named("Point") != p {
		t.Fatal("named struct lost its id")
	}
}

func TestRestoreTypesRejectsForeignPrefix(t *testing.T) {
	if _, err := RestoreTypes([]Type{{Kind: TInt, Bits: 32}}); err == nil {
		t.Fatal("short table accepted")
	}
	list := append([]Type(nil), NewTypes().All()...)
	list[0] = Type{Kind: TPtr}
	if _, err := RestoreTypes(list); err == nil {
		t.Fatal("mismatched builtin accepted")
	}
}
