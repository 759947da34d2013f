package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"kiln/internal/diag"
	"kiln/internal/source"
)

func sampleBag(t *testing.T) (*diag.Bag, *source.FileSet) {
	t.Helper()
	fs := source.NewFileSet()
	content := []byte("fn main() {\n    let a: [i32; 3] = [1, 2];\n}\n")
	id := fs.AddVirtual("/work/proj/src/main.kn", content)
	start := uint32(bytes.Index(content, []byte("[1, 2]")))
	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.LowArraySize, source.Span{File: id, Start: start, End: start + 6},
		"array has 2 elements but the annotation `[i32; 3]` requires 3").
		WithNote(source.Span{File: id, Start: 0, End: 2}, "in this function"))
	return bag, fs
}

func TestPrettyLayout(t *testing.T) {
	bag, fs := sampleBag(t)
	var buf bytes.Buffer
	if err := Pretty(&buf, bag, fs, PrettyOpts{PathMode: PathModeBasename, ShowNotes: true}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"main.kn:2:23: ERROR LOW4301: array has 2 elements",
		"2 |     let a: [i32; 3] = [1, 2];",
		"  |" + strings.Repeat(" ", 23) + "^~~~~~\n",
		"note: main.kn:1:1: in this function",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colour escape in plain output:\n%s", out)
	}
}

func TestPrettyWideRunes(t *testing.T) {
	fs := source.NewFileSet()
	content := []byte("let 名前 = x;\n")
	id := fs.AddVirtual("wide.kn", content)
	start := uint32(bytes.IndexByte(content, 'x'))
	bag := diag.NewBag(10)
	bag.Add(diag.NewError(diag.ResUnknownBinding, source.Span{File: id, Start: start, End: start + 1}, "unknown binding `x`"))
	var buf bytes.Buffer
	if err := Pretty(&buf, bag, fs, PrettyOpts{}); err != nil {
		t.Fatal(err)
	}
	// Two wide runes take four cells: "let " + 4 + " = " puts x at cell 11.
	if !strings.Contains(buf.String(), "  |"+strings.Repeat(" ", 12)+"^\n") {
		t.Fatalf("caret misaligned:\n%s", buf.String())
	}
}

func TestPathModes(t *testing.T) {
	bag, fs := sampleBag(t)
	tests := []struct {
		name string
		mode PathMode
		want string
	}{
		{"absolute", PathModeAbsolute, "/work/proj/src/main.kn:"},
		{"relative", PathModeRelative, "src/main.kn:"},
		{"basename", PathModeBasename, "main.kn:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Pretty(&buf, bag, fs, PrettyOpts{PathMode: tt.mode, BaseDir: "/work/proj"}); err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(buf.String(), tt.want) {
				t.Fatalf("got %q, want prefix %q", buf.String(), tt.want)
			}
		})
	}
}

func TestJSONOutput(t *testing.T) {
	bag, fs := sampleBag(t)
	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{Document: "main.yaml", IncludePositions: true, IncludeNotes: true, PathMode: PathModeBasename}); err != nil {
		t.Fatal(err)
	}
	var out Report
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if out.Count != 1 || len(out.Diagnostics) != 1 || out.Errors != 1 || out.Document != "main.yaml" {
		t.Fatalf("report %+v", out)
	}
	d := out.Diagnostics[0]
	if d.Code != "LOW4301" || d.Severity != "ERROR" || d.Location.StartLine != 2 || d.Location.File != "main.kn" {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
	if len(d.Notes) != 1 {
		t.Fatalf("notes %+v", d.Notes)
	}
}

func TestJSONMax(t *testing.T) {
	bag, fs := sampleBag(t)
	bag.Add(diag.NewError(diag.ResUnknownFunc, source.Span{}, "unknown function `f`"))
	out := BuildReport(bag, fs, JSONOpts{Max: 1})
	if out.Count != 1 || out.Dropped != 1 || out.Errors != 2 {
		t.Fatalf("count %d dropped %d errors %d", out.Count, out.Dropped, out.Errors)
	}
}
