// Package observ aggregates phase timings reported while documents are
// lowered in parallel.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase records the accumulated duration of one named phase.
type Phase struct {
	Name  string
	Dur   time.Duration
	Count int
}

// Timer tracks phase durations per document. It is safe for concurrent use.
type Timer struct {
	mu    sync.Mutex
	docs  map[string][]Phase
	order []string
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{docs: make(map[string][]Phase)} }

// Add accumulates d under phase for doc. Phases keep first-seen order.
func (t *Timer) Add(doc, phase string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	phases, seen := t.docs[doc]
	if !seen {
		t.order = append(t.order, doc)
	}
	for i := range phases {
		if phases[i].Name == phase {
			phases[i].Dur += d
			phases[i].Count++
			return
		}
	}
	t.docs[doc] = append(phases, Phase{Name: phase, Dur: d, Count: 1})
}

// PhaseReport is the serialisable form of a Phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Count      int     `json:"count,omitempty"`
}

// DocReport lists the phases of one document.
type DocReport struct {
	Path    string        `json:"path"`
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Report aggregates every document.
type Report struct {
	TotalMS float64     `json:"total_ms"`
	Docs    []DocReport `json:"docs"`
}

// Report snapshots the timer. Documents follow docs when given, otherwise
// the order they were first seen in; documents without phases are left out.
func (t *Timer) Report(docs []string) Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	if docs == nil {
		docs = t.order
	}
	var (
		report Report
		total  time.Duration
	)
	for _, doc := range docs {
		phases := t.docs[doc]
		if len(phases) == 0 {
			continue
		}
		dr := DocReport{Path: doc, Phases: make([]PhaseReport, len(phases))}
		var sum time.Duration
		for i, p := range phases {
			sum += p.Dur
			dr.Phases[i] = PhaseReport{Name: p.Name, DurationMS: durationToMillis(p.Dur), Count: p.Count}
		}
		dr.TotalMS = durationToMillis(sum)
		total += sum
		report.Docs = append(report.Docs, dr)
	}
	report.TotalMS = durationToMillis(total)
	return report
}

// Summary returns a human-readable string summarizing all tracked phases.
func (t *Timer) Summary(docs []string) string {
	report := t.Report(docs)
	if len(report.Docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, d := range report.Docs {
		fmt.Fprintf(&b, "  %s\n", d.Path)
		for _, p := range d.Phases {
			fmt.Fprintf(&b, "    %-18s %7.2f ms\n", p.Name, p.DurationMS)
		}
	}
	fmt.Fprintf(&b, "  %-20s %7.2f ms\n", "total", report.TotalMS)
	return b.String()
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
