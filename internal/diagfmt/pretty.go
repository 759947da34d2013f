package diagfmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"kiln/internal/diag"
	"kiln/internal/source"
)

type palette struct {
	err, warn, info, note, gutter, caret, bold *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		info:   color.New(color.FgCyan, color.Bold),
		note:   color.New(color.FgBlue, color.Bold),
		gutter: color.New(color.FgBlue),
		caret:  color.New(color.FgRed, color.Bold),
		bold:   color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.note, p.gutter, p.caret, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	}
	return p.info
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
//
//	<path>:<line>:<col>: <SEV> <CODE>: <Message>
//
// затем строку исходника с подчёркиванием ^~~~ по Span, затем Notes.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) error {
	p := newPalette(opts.Color)
	for _, d := range bag.Items() {
		f := fs.Get(d.Primary.File)
		start, _ := fs.Resolve(d.Primary)
		if _, err := fmt.Fprintf(w, "%s:%d:%d: %s %s: %s\n",
			formatPath(f, opts.PathMode, opts.BaseDir), start.Line, start.Col,
			p.severity(d.Severity).Sprint(d.Severity.String()), d.Code.ID(), p.bold.Sprint(d.Message)); err != nil {
			return err
		}
		if err := snippet(w, p, fs, d.Primary, opts.Context); err != nil {
			return err
		}
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			nf := fs.Get(n.Span.File)
			ns, _ := fs.Resolve(n.Span)
			if _, err := fmt.Fprintf(w, "  %s %s:%d:%d: %s\n", p.note.Sprint("note:"),
				formatPath(nf, opts.PathMode, opts.BaseDir), ns.Line, ns.Col, n.Msg); err != nil {
				return err
			}
			if err := snippet(w, p, fs, n.Span, 0); err != nil {
				return err
			}
		}
	}
	if n := bag.Dropped(); n > 0 {
		if _, err := fmt.Fprintf(w, "... %d more diagnostics not shown\n", n); err != nil {
			return err
		}
	}
	return nil
}

// snippet prints the source line of span with a caret line under it.
// Columns are measured in display cells so wide runes stay aligned.
func snippet(w io.Writer, p palette, fs *source.FileSet, span source.Span, context int8) error {
	f := fs.Get(span.File)
	if f == nil || len(f.Content) == 0 {
		return nil
	}
	start, end := fs.Resolve(span)
	first := uint32(1)
	if c := uint32(max(context, 0)); start.Line > c {
		first = start.Line - c
	}
	width := len(strconv.FormatUint(uint64(start.Line), 10))
	for ln := first; ln <= start.Line; ln++ {
		text := expandTabs(f.Line(ln))
		if _, err := fmt.Fprintf(w, "%s %s\n", p.gutter.Sprintf("%*d |", width, ln), text); err != nil {
			return err
		}
	}
	line := f.Line(start.Line)
	pre := cells(line, start.Col-1)
	n := 1
	if end.Line == start.Line && end.Col > start.Col {
		n = max(cells(line, end.Col-1)-pre, 1)
	}
	marks := "^" + strings.Repeat("~", n-1)
	_, err := fmt.Fprintf(w, "%s %s%s\n", p.gutter.Sprint(strings.Repeat(" ", width)+" |"),
		strings.Repeat(" ", pre), p.caret.Sprint(marks))
	return err
}

// cells is the display width of the first n bytes of line.
func cells(line string, n uint32) int {
	if int(n) > len(line) {
		n = uint32(len(line)) // #nosec G115 -- line length fits a span offset
	}
	return runewidth.StringWidth(expandTabs(line[:n]))
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}
