package testkit_test

import (
	"strings"
	"testing"

	"kiln/internal/ast"
	"kiln/internal/source"
	"kiln/internal/testkit"
	"kiln/internal/treeio"
)

func TestDecodedTreesHoldSpanInvariants(t *testing.T) {
	docs := map[string]string{
		"yaml positions": `
unit: demo
items:
  - record: P
    fields: {x: i32}
  - fn: f
    params: [{name: p, type: P}]
    result: i32
    body: {tail: {field: x, of: p}}
`,
		"explicit spans": `
unit: main
file: main.kn
source: "fn main() {}\n"
items:
  - {fn: main, span: [0, 12], body: []}
`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			fs := source.NewFileSet()
			units, err := treeio.Decode("tree.yaml", []byte(doc), source.NewInterner(), fs)
			if err != nil {
				t.Fatal(err)
			}
			if err := testkit.CheckSpanInvariants(fs, units); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSpanInvariantViolations(t *testing.T) {
	fs := source.NewFileSet()
	file := fs.AddVirtual("a.kn", []byte("fn f() {}"))
	b := ast.NewBuilder(source.NewInterner())
	mk := func(sp source.Span) []*ast.Unit {
		fn := b.Fn("f", nil, nil, b.Block())
		fn.Span = sp
		fn.Body.Span = source.Span{File: file, Start: 0, End: 1}
		it := b.Item(fn)
		it.Span = source.Span{File: file}
		return []*ast.Unit{{Path: "a", File: file, Items: []*ast.Item{it}}}
	}
	tests := []struct {
		span source.Span
		want string
	}{
		{source.Span{File: file, Start: 0, End: 64}, "ends beyond"},
		{source.Span{File: file, Start: 5, End: 2}, "reversed"},
		{source.Span{File: 7}, "unknown file"},
	}
	for _, tt := range tests {
		err := testkit.CheckSpanInvariants(fs, mk(tt.span))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("span %v: err = %v, want %q", tt.span, err, tt.want)
		}
	}
}
