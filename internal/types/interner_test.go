package types

import (
	"testing"

	"kiln/internal/source"
)

func TestInternerBuiltins(t *testing.T) {
	in := NewInterner(nil)
	b := in.Builtins()
	if b.Unit == NoTypeID || b.Bool == NoTypeID || b.I32 == NoTypeID {
		t.Fatalf("builtins not initialized")
	}
	if got, _ := in.Primitive("i32"); got != b.I32 {
		t.Fatalf("i32 lookup mismatch")
	}
	if in.Tuple(nil) != b.Unit {
		t.Fatalf("empty tuple must be unit")
	}
}

func TestInternerDeduplicatesDescriptors(t *testing.T) {
	in := NewInterner(nil)
	b := in.Builtins()
	t1 := in.Tuple([]TypeID{b.I32, b.String})
	t2 := in.Tuple([]TypeID{b.I32, b.String})
	if t1 != t2 {
		t.Fatalf("tuple types should be deduplicated")
	}
	if in.Tuple([]TypeID{b.String, b.I32}) == t1 {
		t.Fatalf("element order must affect identity")
	}
	if in.Intern(MakeRef(b.I32, true)) == in.Intern(MakeRef(b.I32, false)) {
		t.Fatalf("mutable and immutable references must differ")
	}
	v1 := in.Container(BuiltinVec, []TypeID{b.I32})
	if v1 != in.Container(BuiltinVec, []TypeID{b.I32}) {
		t.Fatalf("container types should be deduplicated")
	}
	if got := in.ContainerElem(v1); got != b.I32 {
		t.Fatalf("unexpected container elem %d", got)
	}
}

func TestCanonicalNames(t *testing.T) {
	strs := source.NewInterner()
	in := NewInterner(strs)
	b := in.Builtins()
	point := in.Record(strs.Intern("Point"))

	tests := []struct {
		id   TypeID
		want string
		show string
	}{
		{b.I32, "i32", "i32"},
		{in.Tuple([]TypeID{b.I32, b.String}), "$tuple_i32_str", "(i32, str)"},
		{in.Intern(MakeArray(b.U8, 4)), "$array_u8_4", "[u8; 4]"},
		{in.Container(BuiltinVec, []TypeID{point}), "Vec_Point", "Vec<Point>"},
		{in.Fn([]TypeID{b.I32}, b.Bool), "$fn_1_i32_bool", "fn(i32) -> bool"},
		{in.Intern(MakeRef(point, true)), "$mut_Point", "&mut Point"},
	}
	for _, tt := range tests {
		if got := in.Canonical(tt.id); got != tt.want {
			t.Errorf("canonical: got %q want %q", got, tt.want)
		}
		if got := in.String(tt.id); got != tt.show {
			t.Errorf("string: got %q want %q", got, tt.show)
		}
	}
}

func TestCanonicalNamesAreDistinct(t *testing.T) {
	strs := source.NewInterner()
	in := NewInterner(strs)
	b := in.Builtins()
	ids := []TypeID{
		in.Tuple([]TypeID{b.I32, b.I32}),
		in.Tuple([]TypeID{in.Tuple([]TypeID{b.I32, b.I32})}),
		in.Intern(MakeArray(b.I32, 2)),
		in.Intern(MakeSlice(b.I32)),
		in.Fn([]TypeID{b.I32}, b.I32),
		in.Fn([]TypeID{b.I32, b.I32}, b.Unit),
		in.Container(BuiltinOption, []TypeID{b.I32}),
		in.Record(strs.Intern("Pair")),
	}
	seen := map[string]TypeID{}
	for _, id := range ids {
		name := in.Canonical(id)
		if prev, ok := seen[name]; ok {
			t.Fatalf("types %d and %d share canonical name %q", prev, id, name)
		}
		seen[name] = id
	}
}
