package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/diag"
)

const demoTree = `
unit: demo
items:
  - fn: add
    params: [{name: a, type: i32}, {name: b, type: i32}]
    result: i32
    body: {tail: {op: "+", l: a, r: b}}
`

const brokenTree = `
unit: broken
items:
  - fn: main
    body:
      - expr: {call: nowhere, args: []}
`

// run executes the CLI with an empty config so the host's kiln.toml and
// cache never leak in.
func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "kiln.toml")
	if err := os.WriteFile(cfg, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfg, "--color", "off"}, args...))
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeTree(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLowerPrintsText(t *testing.T) {
	tree := writeTree(t, t.TempDir(), "demo.yaml", demoTree)
	out, _, err := run(t, "lower", "--emit", "text", tree)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"; module demo", "define i32 @add(i32 %1, i32 %2) ; fn"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestLowerArtifactThenDump(t *testing.T) {
	dir := t.TempDir()
	tree := writeTree(t, dir, "demo.yaml", demoTree)
	art := filepath.Join(dir, "out", "demo.klir")
	if _, stderr, err := run(t, "lower", "--emit", "msgpack", "-o", art, tree); err != nil {
		t.Fatalf("%v: %s", err, stderr)
	}

	out, _, err := run(t, "dump", art)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "; module demo") || !strings.Contains(out, "@add(") {
		t.Fatalf("dump:\n%s", out)
	}

	out, _, err = run(t, "dump", "--header", "--format", "json", art)
	if err != nil {
		t.Fatal(err)
	}
	var h struct {
		Module string `json:"module"`
		Funcs  int    `json:"funcs"`
	}
	if err := json.Unmarshal([]byte(out), &h); err != nil {
		t.Fatalf("%v: %s", err, out)
	}
	if h.Module != "demo" || h.Funcs == 0 {
		t.Fatalf("header %+v", h)
	}
}

func TestCheckReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "demo.yaml", demoTree)
	writeTree(t, dir, "broken.yaml", brokenTree)
	out, stderr, err := run(t, "check", "--diag-format", "short", dir)
	if !errors.Is(err, errFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, diag.ResUnknownFunc.ID()) {
		t.Errorf("diagnostics lack %s:\n%s", diag.ResUnknownFunc.ID(), out)
	}
	if !strings.Contains(stderr, "checked 2 documents: 1 ok, 1 failed") {
		t.Errorf("summary:\n%s", stderr)
	}
}

func TestCheckJSONDiagnostics(t *testing.T) {
	tree := writeTree(t, t.TempDir(), "broken.yaml", brokenTree)
	out, _, _ := run(t, "check", "--diag-format", "json", tree)
	var payload struct {
		Document    string `json:"document"`
		Count       int    `json:"count"`
		Diagnostics []struct {
			Code string `json:"code"`
		} `json:"diagnostics"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("%v: %s", err, out)
	}
	if payload.Document != tree || payload.Count == 0 || payload.Diagnostics[0].Code != diag.ResUnknownFunc.ID() {
		t.Fatalf("payload %+v", payload)
	}
}

func TestVersionJSON(t *testing.T) {
	out, _, err := run(t, "version", "--format", "json", "--full")
	if err != nil {
		t.Fatal(err)
	}
	var p versionPayload
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatal(err)
	}
	if p.Tool != "kiln" || p.GitCommit != "unknown" || p.ArtifactSchema == 0 {
		t.Fatalf("payload %+v", p)
	}
}

func TestRejectsBadFlags(t *testing.T) {
	tree := writeTree(t, t.TempDir(), "demo.yaml", demoTree)
	tests := [][]string{
		{"check", "--color", "sometimes", tree},
		{"check", "--path-mode", "sideways", tree},
		{"check", "--trace", "loud", tree},
		{"lower", "--emit", "wasm", tree},
		{"check", "--diag-format", "xml", tree},
	}
	for _, args := range tests {
		if _, _, err := run(t, args...); err == nil || errors.Is(err, errFailed) {
			t.Errorf("%v: err = %v", args, err)
		}
	}
}

func TestProfilesWrittenOnExit(t *testing.T) {
	dir := t.TempDir()
	tree := writeTree(t, dir, "demo.yaml", demoTree)
	cpu := filepath.Join(dir, "cpu.pprof")
	mem := filepath.Join(dir, "mem.pprof")
	if _, stderr, err := run(t, "--cpuprofile", cpu, "--memprofile", mem, "check", tree); err != nil {
		t.Fatalf("%v: %s", err, stderr)
	}
	for _, p := range []string{cpu, mem} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("%s: %v", p, err)
		}
	}
}

func TestTimings(t *testing.T) {
	tree := writeTree(t, t.TempDir(), "demo.yaml", demoTree)
	_, stderr, err := run(t, "check", "--timings", tree)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"timings:", tree, "decode", "lower", "total"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr lacks %q:\n%s", want, stderr)
		}
	}
}
