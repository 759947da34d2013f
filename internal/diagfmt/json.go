package diagfmt

import (
	"encoding/json"
	"io"

	"kiln/internal/diag"
	"kiln/internal/source"
)

// Location is a span in JSON form. Line and column fields are filled only
// with IncludePositions.
type Location struct {
	File      string `json:"file"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	StartLine uint32 `json:"start_line,omitempty"`
	StartCol  uint32 `json:"start_col,omitempty"`
	EndLine   uint32 `json:"end_line,omitempty"`
	EndCol    uint32 `json:"end_col,omitempty"`
}

type Note struct {
	Message  string   `json:"message"`
	Location Location `json:"location"`
}

type Diagnostic struct {
	Severity string   `json:"severity"`
	Code     string   `json:"code"`
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
	Notes    []Note   `json:"notes,omitempty"`
}

// Report is the JSON document written for one lowered tree.
type Report struct {
	Document    string       `json:"document,omitempty"`
	Errors      int          `json:"errors"`
	Warnings    int          `json:"warnings"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Count       int          `json:"count"`
	Dropped     int          `json:"dropped,omitempty"`
}

func makeLocation(span source.Span, fs *source.FileSet, opts JSONOpts) Location {
	loc := Location{
		File:      formatPath(fs.Get(span.File), opts.PathMode, opts.BaseDir),
		StartByte: span.Start,
		EndByte:   span.End,
	}
	if opts.IncludePositions && fs.Get(span.File) != nil {
		start, end := fs.Resolve(span)
		loc.StartLine, loc.StartCol = start.Line, start.Col
		loc.EndLine, loc.EndCol = end.Line, end.Col
	}
	return loc
}

// BuildReport assembles the JSON report without serialising it. Severity
// counts cover the whole bag, Max only trims the listed diagnostics.
func BuildReport(bag *diag.Bag, fs *source.FileSet, opts JSONOpts) Report {
	items := bag.Items()
	shown := len(items)
	if opts.Max > 0 && opts.Max < shown {
		shown = opts.Max
	}
	r := Report{
		Document:    opts.Document,
		Errors:      bag.Count(diag.SevError),
		Warnings:    bag.Count(diag.SevWarning),
		Diagnostics: make([]Diagnostic, 0, shown),
	}
	for _, d := range items[:shown] {
		dj := Diagnostic{
			Severity: d.Severity.String(),
			Code:     d.Code.ID(),
			Title:    d.Code.Title(),
			Message:  d.Message,
			Location: makeLocation(d.Primary, fs, opts),
		}
		if opts.IncludeNotes {
			for _, n := range d.Notes {
				dj.Notes = append(dj.Notes, Note{Message: n.Msg, Location: makeLocation(n.Span, fs, opts)})
			}
		}
		r.Diagnostics = append(r.Diagnostics, dj)
	}
	r.Count = len(r.Diagnostics)
	r.Dropped = bag.Dropped() + len(items) - shown
	return r
}

// JSON writes one report per call; several documents form a JSON stream.
func JSON(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildReport(bag, fs, opts))
}
