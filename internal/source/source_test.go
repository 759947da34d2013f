package source

import "testing"

func TestResolveLineCol(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("a.kn", []byte("fn main() {\n  let x = 1\n}\n"))

	tests := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{Line: 1, Col: 1}},
		{3, LineCol{Line: 1, Col: 4}},
		{12, LineCol{Line: 2, Col: 1}},
		{18, LineCol{Line: 2, Col: 7}},
		{24, LineCol{Line: 3, Col: 1}},
	}
	for _, tt := range tests {
		got, _ := fs.Resolve(Span{File: id, Start: tt.off, End: tt.off})
		if got != tt.want {
			t.Fatalf("offset %d: got %+v want %+v", tt.off, got, tt.want)
		}
	}
	if line := fs.Get(id).Line(2); line != "  let x = 1" {
		t.Fatalf("unexpected line 2: %q", line)
	}
}

func TestInternerNormalizesNFC(t *testing.T) {
	in := NewInterner()
	composed := in.Intern("caf\u00e9")
	decomposed := in.Intern("cafe\u0301")
	if composed != decomposed {
		t.Fatalf("NFC forms should share an id: %d vs %d", composed, decomposed)
	}
	if s := in.MustLookup(decomposed); s != "caf\u00e9" {
		t.Fatalf("lookup should return the composed form, got %q", s)
	}
	if _, ok := in.Find("missing"); ok {
		t.Fatalf("Find must not intern")
	}
	if in.Len() != 2 {
		t.Fatalf("unexpected interner size %d", in.Len())
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 8}
	b := Span{File: 1, Start: 2, End: 6}
	if got := a.Cover(b); got != (Span{File: 1, Start: 2, End: 8}) {
		t.Fatalf("unexpected cover %v", got)
	}
	if got := NoSpan.Cover(a); got != a {
		t.Fatalf("cover with NoSpan should return the other span")
	}
}
