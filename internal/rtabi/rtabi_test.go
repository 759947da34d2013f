package rtabi

import (
	"strings"
	"testing"

	"kiln/internal/lir"
)

func TestDeclareIsLazyAndShared(t *testing.T) {
	m := lir.NewModule("m")
	if len(m.Funcs) != 0 {
		t.Fatalf("fresh module should declare nothing")
	}
	a := Declare(m, "rt_vec_push")
	b := Declare(m, "rt_vec_push")
	if a != b || len(m.Funcs) != 1 {
		t.Fatalf("expected a single declaration, got %d", len(m.Funcs))
	}
	if got := m.Types.String(a.Sig(m.Types)); got != "void (ptr, ptr)" {
		t.Fatalf("unexpected signature %s", got)
	}
	if err := Check(m); err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
}

func TestCheckRejectsMismatchedDeclaration(t *testing.T) {
	m := lir.NewModule("m")
	m.Declare("rt_vec_len", m.Types.I32, m.Types.Ptr)
	m.Declare("rt_bogus", m.Types.Void)
	err := Check(m)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"rt_vec_len declared as i32 (ptr)", "rt_bogus is not a runtime entry"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestEveryEntryHasKnownTypes(t *testing.T) {
	ts := lir.NewTypes()
	for _, name := range Names() {
		e, _ := Lookup(name)
		if !strings.HasPrefix(name, "rt_") {
			t.Errorf("%s: runtime entries are prefixed rt_", name)
		}
		_ = e.Sig(ts)
	}
}
