package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/lir"
)

const addTree = `
unit: demo
items:
  - fn: add
    params: [{name: a, type: i32}, {name: b, type: i32}]
    result: i32
    body: {tail: {op: "+", l: a, r: b}}
  - fn: main
    body:
      - {let: x, value: {call: add, args: [1, 2]}}
`

const unknownCallTree = `
items:
  - fn: main
    body:
      - expr: {call: nowhere, args: []}
`

const unreachableTree = `
items:
  - fn: main
    body:
      - return: ~
      - expr: 1
`

func options() Options {
	return Options{Config: config.Default()}
}

func TestLowerSourceProducesValidModule(t *testing.T) {
	res := LowerSource(context.Background(), "demo.yaml", []byte(addTree), options())
	if !res.OK() {
		t.Fatalf("lowering failed: err=%v diags=%v", res.Err, res.Bag.Items())
	}
	if res.Module.Name != "demo" {
		t.Fatalf("module name %q", res.Module.Name)
	}
	for _, name := range []string{"add", "main"} {
		if _, ok := res.Module.Func(name); !ok {
			t.Errorf("missing function %s", name)
		}
	}
	if err := lir.Validate(res.Module); err != nil {
		t.Fatal(err)
	}
}

func TestLowerSourceFailures(t *testing.T) {
	tests := []struct {
		name    string
		tree    string
		wantErr bool
		code    diag.Code
	}{
		{"malformed yaml", "items: [", true, 0},
		{"unknown item", "items: [{struct: S}]", true, 0},
		{"unknown function", unknownCallTree, false, diag.ResUnknownFunc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := LowerSource(context.Background(), "t.yaml", []byte(tt.tree), options())
			if res.OK() {
				t.Fatal("expected failure")
			}
			if (res.Err != nil) != tt.wantErr {
				t.Fatalf("err = %v", res.Err)
			}
			if tt.code != 0 && len(res.Bag.WithCode(tt.code)) == 0 {
				t.Fatalf("missing %s in %v", tt.code.ID(), res.Bag.Items())
			}
		})
	}
}

func TestWarningsAsErrors(t *testing.T) {
	opt := options()
	res := LowerSource(context.Background(), "w.yaml", []byte(unreachableTree), opt)
	if !res.OK() || !res.Bag.HasWarnings() {
		t.Fatalf("expected a clean module with a warning: %v", res.Bag.Items())
	}
	opt.Config.Diagnostics.WarningsAsErrors = true
	res = LowerSource(context.Background(), "w.yaml", []byte(unreachableTree), opt)
	if res.OK() {
		t.Fatal("promoted warning still accepted")
	}
}

func TestBorrowGate(t *testing.T) {
	rejected := options()
	rejected.Gate = GateFunc(func(context.Context, string, []byte) error {
		return fmt.Errorf("%w: `v` used after move", ErrBorrowCheck)
	})
	res := LowerSource(context.Background(), "g.yaml", []byte(addTree), rejected)
	if res.Err != nil || res.Module != nil {
		t.Fatalf("rejected tree was lowered: err=%v", res.Err)
	}
	if len(res.Bag.WithCode(diag.InputBorrowGate)) != 1 {
		t.Fatalf("diagnostics %v", res.Bag.Items())
	}

	broken := options()
	boom := errors.New("checker crashed")
	broken.Gate = GateFunc(func(context.Context, string, []byte) error { return boom })
	res = LowerSource(context.Background(), "g.yaml", []byte(addTree), broken)
	if !errors.Is(res.Err, boom) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestCommandGate(t *testing.T) {
	for _, bin := range []string{"true", "false"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}
	ctx := context.Background()
	if err := (CommandGate{Argv: []string{"true"}}).Check(ctx, "x.yaml", nil); err != nil {
		t.Fatalf("accepting checker: %v", err)
	}
	if err := (CommandGate{Argv: []string{"false"}}).Check(ctx, "x.yaml", nil); !errors.Is(err, ErrBorrowCheck) {
		t.Fatalf("rejecting checker: %v", err)
	}
	err := (CommandGate{Argv: []string{filepath.Join(t.TempDir(), "missing")}}).Check(ctx, "x.yaml", nil)
	if err == nil || errors.Is(err, ErrBorrowCheck) {
		t.Fatalf("missing checker: %v", err)
	}
}

func TestDiskCache(t *testing.T) {
	cache, err := OpenDiskCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opt := options()
	opt.Cache = cache
	first := LowerSource(context.Background(), "demo.yaml", []byte(addTree), opt)
	second := LowerSource(context.Background(), "demo.yaml", []byte(addTree), opt)
	if first.Cached || !second.Cached || !second.OK() {
		t.Fatalf("cached: first=%v second=%v", first.Cached, second.Cached)
	}
	if lir.DumpString(first.Module) != lir.DumpString(second.Module) {
		t.Fatal("cached module differs")
	}

	opt.Config.Lower.ReleaseTracking = false
	if res := LowerSource(context.Background(), "demo.yaml", []byte(addTree), opt); res.Cached {
		t.Fatal("config change must miss the cache")
	}

	bad := LowerSource(context.Background(), "bad.yaml", []byte(unknownCallTree), opt)
	again := LowerSource(context.Background(), "bad.yaml", []byte(unknownCallTree), opt)
	if bad.Cached || again.Cached {
		t.Fatal("failed lowering was cached")
	}

	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
	opt.Config = config.Default()
	if res := LowerSource(context.Background(), "demo.yaml", []byte(addTree), opt); res.Cached {
		t.Fatal("hit after DropAll")
	}
}

func TestLowerFilesKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("a.yaml", addTree)
	write("b.yml", unknownCallTree)
	write("c.yaml", "items: [")
	write("notes.txt", "ignored")

	paths, err := ListTrees([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 || filepath.Base(paths[1]) != "b.yml" {
		t.Fatalf("paths %v", paths)
	}

	var mu sync.Mutex
	ends := map[string]int{}
	opt := options()
	opt.Jobs = 2
	opt.Observer = func(ev PhaseEvent) {
		if ev.Status == PhaseEnd {
			mu.Lock()
			ends[ev.Name]++
			mu.Unlock()
		}
	}
	results, err := LowerFiles(context.Background(), paths, opt)
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].OK() || results[1].OK() || results[2].Err == nil {
		t.Fatalf("unexpected outcomes: %v %v %v", results[0].OK(), results[1].OK(), results[2].Err)
	}
	for i, r := range results {
		if r.Path != paths[i] {
			t.Errorf("result %d is %s", i, r.Path)
		}
	}
	if ends["decode"] != 3 || ends["lower"] != 2 {
		t.Fatalf("phase ends %v", ends)
	}
}

func TestLowerFilesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LowerFiles(ctx, []string{"a.yaml"}, options()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
