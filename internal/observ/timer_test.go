package observ

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTimerAccumulatesPerDocument(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for _, doc := range []string{"a.yaml", "b.yaml"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Add(doc, "decode", time.Millisecond)
			tm.Add(doc, "lower", 2*time.Millisecond)
			tm.Add(doc, "lower", 2*time.Millisecond)
		}()
	}
	wg.Wait()

	r := tm.Report([]string{"b.yaml", "missing.yaml", "a.yaml"})
	if len(r.Docs) != 2 || r.Docs[0].Path != "b.yaml" || r.Docs[1].Path != "a.yaml" {
		t.Fatalf("docs %+v", r.Docs)
	}
	d := r.Docs[0]
	if len(d.Phases) != 2 || d.Phases[0].Name != "decode" || d.Phases[1].Count != 2 {
		t.Fatalf("phases %+v", d.Phases)
	}
	if d.Phases[1].DurationMS != 4 || d.TotalMS != 5 || r.TotalMS != 10 {
		t.Fatalf("durations %+v total %v", d, r.TotalMS)
	}
}

func TestSummary(t *testing.T) {
	tm := NewTimer()
	if tm.Summary(nil) != "" {
		t.Fatal("empty timer has a summary")
	}
	tm.Add("x.yaml", "decode", 1500*time.Microsecond)
	s := tm.Summary(nil)
	for _, want := range []string{"timings:", "x.yaml", "decode", "1.50 ms", "total"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary lacks %q:\n%s", want, s)
		}
	}
}
