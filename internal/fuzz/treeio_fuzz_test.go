package fuzztests

import (
	"testing"

	"kiln/internal/source"
	"kiln/internal/testkit"
	"kiln/internal/treeio"
)

const maxFuzzInput = 1 << 16 // 64 KiB

func clampInput(input []byte) []byte {
	if len(input) > maxFuzzInput {
		input = input[:maxFuzzInput]
	}
	return append([]byte(nil), input...)
}

func FuzzDecodeTree(f *testing.F) {
	addCorpusSeeds(f)
	f.Add([]byte("items: [{fn: f, span: [5, 1], body: []}]"))
	f.Add([]byte("items: [{fn: f, span: [0, 99999], body: []}]"))
	f.Add([]byte("units: [{unit: a, items: [{record: R, fields: {x: \"[i32; 3]\"}}]}]"))
	f.Fuzz(func(t *testing.T, input []byte) {
		input = clampInput(input)
		fs := source.NewFileSet()
		units, err := treeio.Decode("fuzz.yaml", input, source.NewInterner(), fs)
		if err != nil {
			return
		}
		if err := testkit.CheckSpanInvariants(fs, units); err != nil {
			t.Fatalf("decoded tree breaks span invariants: %v", err)
		}
	})
}

func FuzzParseType(f *testing.F) {
	for _, s := range []string{"i32", "Vec<Map<str, T>>", "[u8; 4]", "&mut (i32,)", "fn(T) -> Option<T>", "<<<", "[; ]"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, input string) {
		if len(input) > 4096 {
			input = input[:4096]
		}
		_, _ = treeio.ParseType(input, source.NewInterner(), source.Span{})
	})
}
