package fuzztests

import (
	"context"
	"testing"
	"time"

	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/lower"
	"kiln/internal/source"
	"kiln/internal/treeio"
)

// lowerTimeout is the maximum time allowed for lowering a single input.
// Exceeding it points at a loop in monomorphization or the match compiler.
const lowerTimeout = 5 * time.Second

// FuzzLowerTree checks that lowering never panics or hangs, and that a
// document lowered without errors yields a structurally valid module.
func FuzzLowerTree(f *testing.F) {
	addCorpusSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		input = clampInput(input)
		strs := source.NewInterner()
		units, err := treeio.Decode("fuzz.yaml", input, strs, source.NewFileSet())
		if err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), lowerTimeout)
		defer cancel()

		type outcome struct {
			mod *lir.Module
			ok  bool
		}
		done := make(chan outcome, 1)
		go func() {
			bag := diag.NewBag(64)
			mod, ok := lower.NewSession(ctx, strs, diag.BagReporter{Bag: bag}, lower.DefaultOptions()).Lower(units...)
			done <- outcome{mod, ok && !bag.HasErrors()}
		}()

		select {
		case res := <-done:
			if !res.ok {
				return
			}
			if err := lir.Validate(res.mod); err != nil {
				t.Fatalf("lowered module is invalid: %v\ninput:\n%s", err, input)
			}
		case <-ctx.Done():
			t.Fatalf("lowering hung for %v on input:\n%s", lowerTimeout, input)
		}
	})
}
