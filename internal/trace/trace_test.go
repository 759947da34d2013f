package trace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLevelShouldEmit(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelPhase, ScopePass, true},
		{LevelPhase, ScopeUnit, false},
		{LevelDetail, ScopeUnit, true},
		{LevelDetail, ScopeNode, false},
		{LevelDebug, ScopeNode, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Errorf("%s/%s: got %v want %v", tt.level, tt.scope, got, tt.want)
		}
	}
}

func TestStreamTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelDetail, Mode: ModeStream, Format: FormatText, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	ctx := WithTracer(context.Background(), tr)

	pass := Begin(FromContext(ctx), ScopePass, "lower", 0)
	fn := Begin(FromContext(ctx), ScopeUnit, "fn:main", pass.ID())
	Begin(FromContext(ctx), ScopeNode, "match", fn.ID()).End("")
	fn.Attr("blocks", "3").End("")
	pass.End("ok")

	out := buf.String()
	for _, want := range []string{"→ pass lower", "→ unit fn:main", `unit fn:main`, `blocks="3"`, "← pass lower (ok)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "match") {
		t.Fatalf("node scope must be filtered at detail level:\n%s", out)
	}
}

func TestRingTracerWraps(t *testing.T) {
	r := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(r, ScopeNode, name, "", 0)
	}
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].Name != "b" || snap[1].Name != "c" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if r.Dropped() != 1 {
		t.Fatalf("dropped %d, want 1", r.Dropped())
	}
	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatText); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "... 1 earlier events dropped\n") {
		t.Fatalf("dump does not note the lost event:\n%s", buf.String())
	}
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("disk full")
}

func TestStreamTracerKeepsWriteError(t *testing.T) {
	w := &failingWriter{}
	tr := NewStreamTracer(w, LevelDebug, FormatText)
	Point(tr, ScopeNode, "a", "", 0)
	Point(tr, ScopeNode, "b", "", 0)
	if w.writes != 1 {
		t.Fatalf("stream kept writing after a failure: %d writes", w.writes)
	}
	if err := tr.Flush(); err == nil || err.Error() != "disk full" {
		t.Fatalf("flush returned %v", err)
	}
	if err := tr.Close(); err == nil {
		t.Fatal("close dropped the write error")
	}
}

func TestContextKeepsSpanAcrossTracers(t *testing.T) {
	r := NewRingTracer(4, LevelDebug)
	ctx := WithTracer(context.Background(), r)
	sp := Begin(FromContext(ctx), ScopeDriver, "document", 0)
	ctx = WithSpan(ctx, sp)
	ctx = WithTracer(ctx, nil)
	if CurrentSpan(ctx) != sp.ID() || sp.ID() == 0 {
		t.Fatalf("span %d lost, have %d", sp.ID(), CurrentSpan(ctx))
	}
	if FromContext(ctx) != Nop {
		t.Fatal("nil tracer should read back as Nop")
	}
	if CurrentSpan(context.Background()) != 0 || FromContext(context.Background()) != Nop {
		t.Fatal("empty context")
	}
}

func TestErrorLevelUsesRing(t *testing.T) {
	tr, err := New(Config{Level: LevelError, Mode: ModeStream})
	if err != nil {
		t.Fatal(err)
	}
	if RingOf(tr) == nil {
		t.Fatalf("error level should keep a ring buffer")
	}
}

func TestNDJSONCarriesElapsedAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Format: FormatAuto, OutputPath: "trace.ndjson", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	sp := Begin(tr, ScopeDriver, "document", 0)
	sp.Attr("path", "a.yaml").Attr("cached", "false")
	if sp.End("ok") < 0 {
		t.Fatal("negative elapsed")
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines %q", lines)
	}
	for _, want := range []string{`"kind":"end"`, `"attrs":{"cached":"false","path":"a.yaml"}`, `"detail":"ok"`} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("end event lacks %s: %s", want, lines[1])
		}
	}
}

func TestDisabledSpanIsInert(t *testing.T) {
	sp := Begin(Nop, ScopeDriver, "x", 0)
	if sp.ID() != 0 || sp.Attr("k", "v").End("") != 0 {
		t.Fatal("nop span emitted")
	}
	var nilSpan *Span
	if nilSpan.ID() != 0 || nilSpan.End("") != 0 {
		t.Fatal("nil span")
	}
}
