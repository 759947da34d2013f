package treeio

import (
	"strconv"
	"strings"
	"testing"

	"kiln/internal/ast"
	"kiln/internal/source"
)

// render prints a type expression back in source form.
func render(strs *source.Interner, t *ast.TypeExpr) string {
	list := func(ts []*ast.TypeExpr) string {
		parts := make([]string, len(ts))
		for i, x := range ts {
			parts[i] = render(strs, x)
		}
		return strings.Join(parts, ", ")
	}
	switch t.Kind {
	case ast.TypeNamed:
		name := strs.MustLookup(t.Name)
		if len(t.Args) > 0 {
			return name + "<" + list(t.Args) + ">"
		}
		return name
	case ast.TypeTuple:
		if len(t.Args) == 1 {
			return "(" + list(t.Args) + ",)"
		}
		return "(" + list(t.Args) + ")"
	case ast.TypeArray:
		return "[" + render(strs, t.Elem) + "; " + strconv.FormatInt(t.Len, 10) + "]"
	case ast.TypeSlice:
		return "[" + render(strs, t.Elem) + "]"
	case ast.TypeRef:
		if t.Mut {
			return "&mut " + render(strs, t.Elem)
		}
		return "&" + render(strs, t.Elem)
	case ast.TypeFn:
		s := "fn(" + list(t.Args) + ")"
		if t.Elem != nil {
			s += " -> " + render(strs, t.Elem)
		}
		return s
	}
	return "?"
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"i32", "i32"},
		{"Vec<i32>", "Vec<i32>"},
		{"Map< str ,Vec<T> >", "Map<str, Vec<T>>"},
		{"[i32; 3]", "[i32; 3]"},
		{"[u8]", "[u8]"},
		{"()", "()"},
		{"(i32)", "i32"},
		{"(i32,)", "(i32,)"},
		{"(i32, str)", "(i32, str)"},
		{"&mut Point", "&mut Point"},
		{"&mutable", "&mutable"},
		{"fn(i32, i32) -> i32", "fn(i32, i32) -> i32"},
		{"fn()", "fn()"},
		{"fnord", "fnord"},
		{"Box<fn(T) -> Option<T>>", "Box<fn(T) -> Option<T>>"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			strs := source.NewInterner()
			te, err := ParseType(tt.in, strs, source.Span{})
			if err != nil {
				t.Fatal(err)
			}
			if got := render(strs, te); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, in := range []string{"", "Vec<", "Vec<>", "[i32; x]", "(i32", "i32 i64", "&"} {
		if _, err := ParseType(in, source.NewInterner(), source.Span{}); err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}
}

const sample = `
unit: shapes
items:
  - variant: Shape
    cases: [{Circle: i32}, Empty]
  - record: Pair
    type_params: [T]
    fields: {a: T, b: T}
  - fn: area
    params: [{name: s, type: Shape}]
    result: i32
    body:
      tail:
        match: s
        arms:
          - {pat: {variant: Circle, type: Shape, inner: r}, body: r}
          - {pat: _, body: 0}
  - fn: main
    body:
      - {let: v, mut: true, type: "Vec<i32>", value: {mcall: new, recv: Vec}}
      - expr: {mcall: push, recv: v, args: [{op: "+", l: 1, r: 2}]}
      - {let: {tuple: [x, _]}, value: {tuple: [1, {str: hi}]}}
      - for: i
        in: {range: [0, 3]}
        body: [{assign: x, op: "+=", value: i}, break]
      - return: ~
`

func TestDecodeSample(t *testing.T) {
	strs := source.NewInterner()
	fs := source.NewFileSet()
	units, err := Decode("shapes.yaml", []byte(sample), strs, fs)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Path != "shapes" || len(units[0].Items) != 4 {
		t.Fatalf("units %+v", units)
	}
	items := units[0].Items
	v := items[0].Variant
	if v == nil || len(v.Cases) != 2 || v.Cases[0].Payload == nil || v.Cases[1].Payload != nil {
		t.Fatalf("variant %+v", v)
	}
	if r := items[1].Record; r == nil || len(r.TypeParams) != 1 || strs.MustLookup(r.Fields[1].Name) != "b" {
		t.Fatalf("record %+v", r)
	}
	area := items[2].Fn
	m, ok := area.Body.Tail.Data.(ast.MatchData)
	if !ok || len(m.Arms) != 2 {
		t.Fatalf("area body %+v", area.Body)
	}
	if p := m.Arms[0].Pattern; p.Kind != ast.PatVariant || p.Inner == nil || p.Inner.Kind != ast.PatIdent {
		t.Fatalf("arm pattern %+v", p)
	}
	if m.Arms[1].Pattern.Kind != ast.PatWildcard {
		t.Fatalf("second arm %+v", m.Arms[1].Pattern)
	}
	body := items[3].Fn.Body.Stmts
	kinds := []ast.StmtKind{ast.StmtLet, ast.StmtExpr, ast.StmtLet, ast.StmtFor, ast.StmtReturn}
	if len(body) != len(kinds) {
		t.Fatalf("%d statements", len(body))
	}
	for i, k := range kinds {
		if body[i].Kind != k {
			t.Errorf("statement %d is %v, want %v", i, body[i].Kind, k)
		}
	}
	if let := body[0].Data.(ast.LetData); !let.Mutable || let.Type == nil || let.Type.Kind != ast.TypeNamed {
		t.Errorf("let %+v", let)
	}
	if let := body[2].Data.(ast.LetData); let.Pattern == nil || let.Pattern.Kind != ast.PatTuple {
		t.Errorf("destructuring let %+v", let)
	}
	loop := body[3].Data.(ast.ForData)
	if len(loop.Body.Stmts) != 2 || loop.Body.Stmts[1].Kind != ast.StmtBreak {
		t.Errorf("for body %+v", loop.Body)
	}
	if a := loop.Body.Stmts[0].Data.(ast.AssignData); a.Op != ast.AssignAdd {
		t.Errorf("assign op %v", a.Op)
	}
	if ret := body[4].Data.(ast.ReturnData); ret.Value != nil {
		t.Errorf("bare return has value")
	}
}

func TestSpansPointIntoDocument(t *testing.T) {
	strs := source.NewInterner()
	fs := source.NewFileSet()
	units, err := Decode("shapes.yaml", []byte(sample), strs, fs)
	if err != nil {
		t.Fatal(err)
	}
	area := units[0].Items[2].Fn
	f := fs.Get(area.Span.File)
	if f == nil || f.Path != "shapes.yaml" {
		t.Fatalf("span file %+v", area.Span)
	}
	if got := string(f.Content[area.Span.Start : area.Span.Start+2]); got != "fn" {
		t.Fatalf("fn span starts at %q", got)
	}
}

func TestExplicitSpans(t *testing.T) {
	doc := `
unit: main
file: main.kn
source: "fn main() {}\n"
items:
  - {fn: main, span: [0, 12], body: []}
`
	fs := source.NewFileSet()
	units, err := Decode("tree.yaml", []byte(doc), source.NewInterner(), fs)
	if err != nil {
		t.Fatal(err)
	}
	fn := units[0].Items[0].Fn
	if f := fs.Get(fn.Span.File); f == nil || f.Path != "main.kn" || fn.Span.End != 12 {
		t.Fatalf("span %+v", fn.Span)
	}
}

func TestDecodeErrorsCarryLines(t *testing.T) {
	doc := `
items:
  - fn: f
    result: "Vec<"
  - struct: S
`
	_, err := Decode("bad.yaml", []byte(doc), source.NewInterner(), source.NewFileSet())
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	for _, want := range []string{"bad.yaml", "4:13:", "5:5: item needs one of"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error lacks %q: %s", want, msg)
		}
	}
}

func TestMultipleUnits(t *testing.T) {
	doc := `
units:
  - {unit: a, items: [{fn: f, body: []}]}
  - {unit: b, items: []}
`
	units, err := Decode("multi.yaml", []byte(doc), source.NewInterner(), source.NewFileSet())
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 || units[1].Path != "b" {
		t.Fatalf("units %+v", units)
	}
}

func TestExplicitSpanOutsideSource(t *testing.T) {
	doc := `
unit: main
file: main.kn
source: "fn main() {}\n"
items:
  - {fn: main, span: [0, 400], body: []}
`
	_, err := Decode("tree.yaml", []byte(doc), source.NewInterner(), source.NewFileSet())
	if err == nil || !strings.Contains(err.Error(), "outside main.kn") {
		t.Fatalf("err = %v", err)
	}
}
