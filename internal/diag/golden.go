package diag

import (
	"fmt"
	"sort"
	"strings"

	"kiln/internal/source"
)

type shortDiagnostic struct {
	Severity string
	Code     string
	Path     string
	Line     uint32
	Column   uint32
	Message  string
}

// FormatShort renders diagnostics one per line in a stable order:
//
//	error RES4201 main.kn:3:5 unknown binding `y`
//
// Notes follow their diagnostic when includeNotes is set.
func FormatShort(diags []Diagnostic, fs *source.FileSet, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	rendered := make([]shortDiagnostic, 0, len(diags))
	for i := range diags {
		d := &diags[i]
		rendered = append(rendered, resolveShort(fs, d.Primary, severityLabel(d.Severity), d.Code, d.Message))
		if includeNotes {
			for _, n := range d.Notes {
				rendered = append(rendered, resolveShort(fs, n.Span, "note", d.Code, n.Msg))
			}
		}
	}
	if !includeNotes {
		sort.SliceStable(rendered, func(i, j int) bool {
			di, dj := rendered[i], rendered[j]
			if di.Path != dj.Path {
				return di.Path < dj.Path
			}
			if di.Line != dj.Line {
				return di.Line < dj.Line
			}
			if di.Column != dj.Column {
				return di.Column < dj.Column
			}
			return di.Code < dj.Code
		})
	}

	var b strings.Builder
	for i, d := range rendered {
		fmt.Fprintf(&b, "%s %s %s:%d:%d %s", d.Severity, d.Code, d.Path, d.Line, d.Column, d.Message)
		if i < len(rendered)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func resolveShort(fs *source.FileSet, span source.Span, sev string, code Code, msg string) shortDiagnostic {
	out := shortDiagnostic{
		Severity: sev,
		Code:     code.ID(),
		Path:     "<unknown>",
		Line:     0,
		Column:   0,
		Message:  strings.Join(strings.Fields(msg), " "),
	}
	if f := fs.Get(span.File); f != nil {
		start, _ := fs.Resolve(span)
		out.Path = f.Path
		out.Line = start.Line
		out.Column = start.Col
	}
	return out
}

func severityLabel(sev Severity) string {
	switch sev {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}
