package diag

import (
	"testing"

	"kiln/internal/source"
)

func TestFormatShort(t *testing.T) {
	fs := source.NewFileSet()
	file := fs.AddVirtual("main.kn", []byte("a\nbb\n"))

	diags := []Diagnostic{
		NewError(ResUnknownBinding, source.Span{File: file, Start: 2, End: 4}, "unknown binding `y`").
			WithNote(source.Span{File: file, Start: 0, End: 1}, "declared\nhere"),
		New(SevWarning, WarnUnreachable, source.Span{File: file, Start: 0, End: 1}, "unreachable code"),
	}

	want := "error RES4201 main.kn:2:1 unknown binding `y`\n" +
		"note RES4201 main.kn:1:1 declared here\n" +
		"warning WARN4401 main.kn:1:1 unreachable code"
	if got := FormatShort(diags, fs, true); got != want {
		t.Fatalf("unexpected output:\nwant:\n%s\ngot:\n%s", want, got)
	}

	wantSorted := "warning WARN4401 main.kn:1:1 unreachable code\n" +
		"error RES4201 main.kn:2:1 unknown binding `y`"
	if got := FormatShort(diags, fs, false); got != wantSorted {
		t.Fatalf("unexpected sorted output:\n%s", got)
	}
}

func TestBagKeepsErrorsPastLimit(t *testing.T) {
	bag := NewBag(1)
	r := BagReporter{Bag: bag}
	ReportWarning(r, WarnUnreachable, source.NoSpan, "w1").Emit()
	ReportWarning(r, WarnUnreachable, source.NoSpan, "w2").Emit()
	ReportError(r, LowArraySize, source.NoSpan, "e").Emit()

	if bag.Len() != 2 || bag.Dropped() != 1 {
		t.Fatalf("unexpected bag state: len=%d dropped=%d", bag.Len(), bag.Dropped())
	}
	if !bag.HasErrors() {
		t.Fatalf("error must survive the limit")
	}
	bag.PromoteWarnings()
	if bag.Count(SevError) != 2 {
		t.Fatalf("warnings were not promoted")
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: bag})
	for range 3 {
		ReportError(r, ResUnknownField, source.Span{Start: 1, End: 2}, "unknown field `z`").Emit()
	}
	if bag.Len() != 1 {
		t.Fatalf("expected a single diagnostic, got %d", bag.Len())
	}
}

func TestCodeIDs(t *testing.T) {
	cases := map[Code]string{
		RegRecordCycle:    "REG4001",
		MonoDepthExceeded: "MONO4101",
		LowArraySize:      "LOW4301",
		WarnUnreachable:   "WARN4401",
		InputMalformed:    "IN1001",
	}
	for code, want := range cases {
		if got := code.ID(); got != want {
			t.Fatalf("code %d: got %s want %s", code, got, want)
		}
	}
}
