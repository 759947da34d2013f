package artifact

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"kiln/internal/lir"
)

func sampleModule() *lir.Module {
	m := lir.NewModule("demo")
	t := m.Types
	pair := t.Named("Pair")
	t.SetBody(pair, t.I32, t.I64)
	m.Declare("rt_print", t.Void, t.Ptr)

	f := m.NewFunc("main", lir.FuncPlain, t.I32, nil)
	b := lir.NewBuilder(m)
	b.Start(f)
	slot := b.Alloca(pair)
	b.Store(lir.ConstInt(t.I32, 7), b.FieldPtr(pair, slot, 0))
	b.Call(lir.FuncRef(t.Ptr, "rt_print"), t.Func(t.Void, t.Ptr), m.String("hello"))
	b.Ret(b.Load(t.I32, b.FieldPtr(pair, slot, 0)))
	return m
}

func TestRoundTrip(t *testing.T) {
	m := sampleModule()
	h := NewHeader(m, "abc123")
	data, err := Marshal(m, h)
	if err != nil {
		t.Fatal(err)
	}
	got, gh, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if want := lir.DumpString(m); lir.DumpString(got) != want {
		t.Fatalf("dump differs:\n%s\nwant:\n%s", lir.DumpString(got), want)
	}
	if gh.BuildID != h.BuildID || gh.Source != "abc123" || gh.Module != "demo" || gh.Schema != Schema {
		t.Fatalf("header %+v, want %+v", gh, h)
	}
	if _, ok := got.Func("rt_print"); !ok {
		t.Fatal("extern lost")
	}
}

func TestBuildIDsDiffer(t *testing.T) {
	m := sampleModule()
	a, b := NewHeader(m, ""), NewHeader(m, "")
	if a.BuildID == b.BuildID || a.BuildID == uuid.Nil {
		t.Fatalf("build ids %s %s", a.BuildID, b.BuildID)
	}
}

func TestDecodeRejects(t *testing.T) {
	old, err := msgpack.Marshal(&file{Header: Header{Schema: Schema + 1}})
	if err != nil {
		t.Fatal(err)
	}
	noTypes, err := msgpack.Marshal(&file{Header: Header{Schema: Schema}})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"garbage", []byte{0xc1, 0x00}, ErrCorrupt},
		{"empty", nil, ErrCorrupt},
		{"schema", old, ErrSchema},
		{"no types", noTypes, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Unmarshal(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	m := sampleModule()
	path := filepath.Join(t.TempDir(), "out", "demo"+Ext)
	if err := WriteFile(path, m, NewHeader(m, "")); err != nil {
		t.Fatal(err)
	}
	got, _, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lir.DumpString(got) != lir.DumpString(m) {
		t.Fatal("file round trip changed the module")
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".artifact-*"))
	if len(matches) != 0 {
		t.Fatalf("temporary files left behind: %v", matches)
	}
}
