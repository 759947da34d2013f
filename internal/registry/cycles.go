package registry

import (
	"strings"

	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/types"
)

// Cycle is a chain of definitions each holding the next by value; the last
// holds the first.
type Cycle struct {
	Defs  []DefID
	Spans []source.Span // span of the field that closes each link
}

// CheckCycles walks by-value containment among every resolved concrete
// record and variant and reports each cycle once. References and container
// handles break containment; tuples and arrays do not.
func (r *Registry) CheckCycles(rep diag.Reporter) []Cycle {
	var roots []*Def
	for _, d := range r.defs.Slice() {
		if d.Resolved && !d.Generic && (d.Kind == DefRecord || d.Kind == DefVariant) {
			roots = append(roots, d)
		}
	}
	return r.checkFrom(roots, rep)
}

// CheckCyclesFrom checks cycles reachable from one definition, used right
// after an instantiation resolves its fields.
func (r *Registry) CheckCyclesFrom(id DefID, rep diag.Reporter) []Cycle {
	d := r.Def(id)
	if d == nil {
		return nil
	}
	return r.checkFrom([]*Def{d}, rep)
}

type cycleWalker struct {
	r      *Registry
	state  map[DefID]uint8 // 1 on stack, 2 done
	stack  []DefID
	spans  []source.Span
	cycles []Cycle
}

func (r *Registry) checkFrom(roots []*Def, rep diag.Reporter) []Cycle {
	w := &cycleWalker{r: r, state: make(map[DefID]uint8)}
	for _, d := range roots {
		if w.state[d.ID] == 0 {
			w.visit(d)
		}
	}
	for _, c := range w.cycles {
		r.reportCycle(c, rep)
	}
	return w.cycles
}

func (w *cycleWalker) visit(d *Def) {
	w.state[d.ID] = 1
	w.stack = append(w.stack, d.ID)
	for _, edge := range w.r.edges(d) {
		switch w.state[edge.to] {
		case 1:
			start := 0
			for i, id := range w.stack {
				if id == edge.to {
					start = i
					break
				}
			}
			c := Cycle{
				Defs:  append([]DefID(nil), w.stack[start:]...),
				Spans: append(append([]source.Span(nil), w.spans[start:]...), edge.span),
			}
			w.cycles = append(w.cycles, c)
		case 0:
			w.spans = append(w.spans, edge.span)
			w.visit(w.r.Def(edge.to))
			w.spans = w.spans[:len(w.spans)-1]
		}
	}
	w.stack = w.stack[:len(w.stack)-1]
	w.state[d.ID] = 2
}

type containEdge struct {
	to   DefID
	span source.Span
}

func (r *Registry) edges(d *Def) []containEdge {
	var out []containEdge
	add := func(t types.TypeID, span source.Span) {
		for _, id := range r.contained(t, nil) {
			out = append(out, containEdge{to: id, span: span})
		}
	}
	for _, f := range d.Fields {
		add(f.Type, f.Span)
	}
	for _, c := range d.Cases {
		if c.Payload != types.NoTypeID {
			add(c.Payload, c.Span)
		}
	}
	return out
}

// contained lists the definitions a value of type t holds by value.
func (r *Registry) contained(t types.TypeID, acc []DefID) []DefID {
	tt, ok := r.types.Lookup(t)
	if !ok {
		return acc
	}
	switch tt.Kind {
	case types.KindRecord, types.KindVariant:
		if id, found := r.byName[tt.Sym]; found {
			acc = append(acc, id)
		}
	case types.KindTuple:
		for _, el := range r.types.TupleElems(t) {
			acc = r.contained(el, acc)
		}
	case types.KindArray:
		acc = r.contained(tt.Elem, acc)
	}
	return acc
}

func (r *Registry) reportCycle(c Cycle, rep diag.Reporter) {
	names := make([]string, 0, len(c.Defs)+1)
	for _, id := range c.Defs {
		names = append(names, r.name(r.Def(id).Name))
	}
	names = append(names, names[0])
	first := r.Def(c.Defs[0])
	b := diag.ReportError(rep, diag.RegRecordCycle, first.Span,
		"`"+names[0]+"` contains itself by value: "+strings.Join(names, " -> "))
	for i, span := range c.Spans {
		b.WithNote(span, "`"+names[i]+"` holds `"+names[i+1]+"` here")
	}
	b.Emit()
}

// CycleNames renders a cycle as names, for tests and tooling.
func (r *Registry) CycleNames(c Cycle) []string {
	out := make([]string, len(c.Defs))
	for i, id := range c.Defs {
		out[i] = r.name(r.Def(id).Name)
	}
	return out
}
