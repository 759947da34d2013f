package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"kiln/internal/diag"
	"kiln/internal/diagfmt"
	"kiln/internal/driver"
	"kiln/internal/observ"
)

// printDiagnostics writes the diagnostics of one result in the format
// chosen by --diag-format.
func printDiagnostics(cmd *cobra.Command, a *app, res *driver.Result) error {
	out := cmd.OutOrStdout()
	if res.Err != nil {
		_, err := fmt.Fprintf(out, "%s: %v\n", res.Path, res.Err)
		return err
	}
	format, _ := cmd.Flags().GetString("diag-format")
	withNotes, _ := cmd.Flags().GetBool("with-notes")
	base, _ := os.Getwd()
	switch format {
	case "pretty":
		if res.Bag.Len() == 0 {
			return nil
		}
		return diagfmt.Pretty(out, res.Bag, res.Files, diagfmt.PrettyOpts{
			Color:     a.color,
			Context:   1,
			PathMode:  a.pathMode,
			BaseDir:   base,
			ShowNotes: withNotes,
		})
	case "short":
		if s := diag.FormatShort(res.Bag.Items(), res.Files, withNotes); s != "" {
			_, err := fmt.Fprintln(out, s)
			return err
		}
		return nil
	case "json":
		return diagfmt.JSON(out, res.Bag, res.Files, diagfmt.JSONOpts{
			Document:         res.Path,
			IncludePositions: true,
			PathMode:         a.pathMode,
			BaseDir:          base,
			IncludeNotes:     withNotes,
		})
	}
	return fmt.Errorf("unknown diagnostic format: %s", format)
}

// observePhases feeds finished driver phases into t for --timings.
func observePhases(t *observ.Timer) driver.PhaseObserver {
	return func(ev driver.PhaseEvent) {
		if ev.Status == driver.PhaseEnd {
			t.Add(ev.Path, ev.Name, ev.Elapsed)
		}
	}
}

// summary counts outcomes for the final status line.
type summary struct {
	ok, cached, failed int
}

func summarize(results []*driver.Result) summary {
	var s summary
	for _, r := range results {
		switch {
		case r.Cached:
			s.ok++
			s.cached++
		case r.OK():
			s.ok++
		default:
			s.failed++
		}
	}
	return s
}

func (s summary) String() string {
	msg := fmt.Sprintf("%d ok, %d failed", s.ok, s.failed)
	if s.cached > 0 {
		msg += fmt.Sprintf(" (%d cached)", s.cached)
	}
	return msg
}

func failedPaths(results []*driver.Result) []string {
	var out []string
	for _, r := range results {
		if !r.OK() {
			out = append(out, r.Path)
		}
	}
	sort.Strings(out)
	return out
}
