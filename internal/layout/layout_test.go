package layout

import (
	"errors"
	"testing"

	"kiln/internal/lir"
)

func TestStructLayout(t *testing.T) {
	ts := lir.NewTypes()
	e := New(X86_64LinuxGNU(), ts)

	tests := []struct {
		name   string
		typ    lir.TypeID
		size   int
		align  int
		offset []int
	}{
		{"i1", ts.I1, 1, 1, nil},
		{"ptr", ts.Ptr, 8, 8, nil},
		{"{i8, i32}", ts.Struct(ts.I8, ts.I32), 8, 4, []int{0, 4}},
		{"{i32, i64, i8}", ts.Struct(ts.I32, ts.I64, ts.I8), 24, 8, []int{0, 8, 16}},
		{"[3 x i16]", ts.Array(ts.I16, 3), 6, 2, nil},
		{"{}", ts.Struct(), 0, 1, []int{}},
	}
	for _, tt := range tests {
		l, err := e.LayoutOf(tt.typ)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if l.Size != tt.size || l.Align != tt.align {
			t.Errorf("%s: got size=%d align=%d, want %d/%d", tt.name, l.Size, l.Align, tt.size, tt.align)
		}
		for i, off := range tt.offset {
			if l.FieldOffsets[i] != off {
				t.Errorf("%s: field %d at %d, want %d", tt.name, i, l.FieldOffsets[i], off)
			}
		}
	}
}

func TestUnionLayout(t *testing.T) {
	ts := lir.NewTypes()
	e := New(X86_64LinuxGNU(), ts)
	u, err := e.Union([]lir.TypeID{ts.I8, ts.Struct(ts.I64, ts.I64)})
	if err != nil {
		t.Fatal(err)
	}
	if u.PayloadOffset != 8 || u.PayloadSize != 16 || u.Size != 24 || u.Align != 8 {
		t.Fatalf("unexpected union layout %+v", u)
	}
	empty, _ := e.Union(nil)
	if empty.Size != 4 || empty.PayloadSize != 0 {
		t.Fatalf("tag-only union should be 4 bytes, got %+v", empty)
	}
}

func TestRecursiveStructIsAnError(t *testing.T) {
	ts := lir.NewTypes()
	e := New(X86_64LinuxGNU(), ts)
	a := ts.Named("A")
	b := ts.Named("B")
	ts.SetBody(a, ts.I32, b)
	ts.SetBody(b, a)

	_, err := e.LayoutOf(a)
	var le *LayoutError
	if !errors.As(err, &le) || le.Kind != LayoutErrRecursiveUnsized || len(le.Cycle) != 3 {
		t.Fatalf("expected a recursive layout error, got %v", err)
	}
	if _, err := e.LayoutOf(ts.Named("Never")); err == nil {
		t.Fatalf("opaque struct must not have a layout")
	}
}
