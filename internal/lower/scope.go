package lower

import (
	"slices"

	"kiln/internal/lir"
	"kiln/internal/source"
	"kiln/internal/types"
)

// binding is a named local: a stack slot of its source type.
type binding struct {
	name    source.StringID
	slot    lir.Value
	ty      types.TypeID
	mutable bool
	// owned bindings release their value when the scope ends, unless the
	// value was moved out first.
	owned bool
	moved bool
	// alias is set for pattern bindings: moving them moves the binding
	// they were destructured from.
	alias *binding
	// parts moved out while the rest of the binding stays owned.
	parts []fieldPath
}

// fieldPath locates a field or tuple element inside the storage of a
// binding, one index per step.
type fieldPath []int

// within reports whether p is q or lies inside it.
func (p fieldPath) within(q fieldPath) bool {
	return len(p) >= len(q) && slices.Equal(p[:len(q)], q)
}

func (p fieldPath) child(i int) fieldPath {
	return append(slices.Clip(p), i)
}

// movePart records that the part at p was moved out. It reports false when
// p, or a part overlapping it, is already gone.
func (b *binding) movePart(p fieldPath) bool {
	for _, q := range b.parts {
		if p.within(q) || q.within(p) {
			return false
		}
	}
	b.parts = append(b.parts, p)
	return true
}

// assignPart records a store of a new value at p and returns the parts of
// the old value there that were moved out, relative to p. A new value that
// b does not own counts as moved.
func (b *binding) assignPart(p fieldPath, owned bool) []fieldPath {
	var gone, kept []fieldPath
	for _, q := range b.parts {
		switch {
		case q.within(p):
			gone = append(gone, q[len(p):])
		case p.within(q):
			// The enclosing part is gone; the store does not bring it back.
			return []fieldPath{{}}
		default:
			kept = append(kept, q)
		}
	}
	if !owned {
		kept = append(kept, p)
	}
	b.parts = kept
	return gone
}

// rootOf is the binding a read of b is attributed to.
func (b *binding) rootOf() *binding {
	for b.alias != nil {
		b = b.alias
	}
	return b
}

type scope struct {
	vars  map[source.StringID]*binding
	order []*binding
}

type loopFrame struct {
	brk, cont *lir.Block
	// depth is the number of scopes open outside the loop body.
	depth int
}

func (sc *scope) holds(b *binding) bool {
	for _, x := range sc.order {
		if x == b {
			return true
		}
	}
	return false
}

func (l *funcLowerer) pushScope() {
	l.scopes = append(l.scopes, &scope{vars: make(map[source.StringID]*binding)})
}

// popScope releases the innermost scope. The value the scope evaluates
// to, if any, is moved out first so it survives the release.
func (l *funcLowerer) popScope(result *value) {
	sc := l.scopes[len(l.scopes)-1]
	if result != nil && result.root != nil && sc.holds(result.root.rootOf()) {
		if l.consume(*result) {
			result.fresh = true
		}
		result.root = nil
	}
	if !l.b.Terminated() {
		l.releaseScope(sc)
	}
	l.scopes = l.scopes[:len(l.scopes)-1]
}

// declare binds name to a new slot in the innermost scope.
func (l *funcLowerer) declare(name source.StringID, t types.TypeID, mutable bool) *binding {
	slot := l.b.Alloca(l.s.lirType(t))
	return l.bindSlot(name, slot, t, mutable)
}

func (l *funcLowerer) bindSlot(name source.StringID, slot lir.Value, t types.TypeID, mutable bool) *binding {
	b := &binding{name: name, slot: slot, ty: t, mutable: mutable}
	sc := l.scopes[len(l.scopes)-1]
	sc.vars[name] = b
	sc.order = append(sc.order, b)
	return b
}

// hidden keeps a fresh value alive in the current scope under a name no
// source identifier can have, so it is released with the scope.
func (l *funcLowerer) hidden(v value) value {
	if !v.fresh || !l.tracked(v.ty) {
		return v
	}
	slot := l.addrOf(v)
	b := &binding{slot: slot, ty: v.ty, owned: true}
	sc := l.scopes[len(l.scopes)-1]
	sc.order = append(sc.order, b)
	return l.read(slot, v.ty, b)
}

func (l *funcLowerer) lookup(name source.StringID) (*binding, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if b, ok := l.scopes[i].vars[name]; ok {
			return b, true
		}
	}
	return nil, false
}

func (l *funcLowerer) releaseScope(sc *scope) {
	for i := len(sc.order) - 1; i >= 0; i-- {
		b := sc.order[i]
		if !b.owned || b.moved || !l.tracked(b.ty) {
			continue
		}
		l.releaseParts(b.slot, b.ty, b.parts)
	}
}

// releaseFrom releases every scope from depth outwards-in without popping
// them; used by return, break and continue.
func (l *funcLowerer) releaseFrom(depth int) {
	for i := len(l.scopes) - 1; i >= depth; i-- {
		l.releaseScope(l.scopes[i])
	}
}

// releaseAt calls the release glue of t on the storage at ptr.
func (l *funcLowerer) releaseAt(ptr lir.Value, t types.TypeID) {
	glue := l.s.glueFunc(t)
	if glue == nil {
		return
	}
	l.b.CallFunc(glue, ptr)
}

// releaseParts releases the storage at ptr except the moved parts, given
// relative to ptr. Only records without a Drop impl and tuples ever have
// parts moved out.
func (l *funcLowerer) releaseParts(ptr lir.Value, t types.TypeID, moved []fieldPath) {
	if len(moved) == 0 {
		l.releaseAt(ptr, t)
		return
	}
	var fields []types.TypeID
	switch l.s.tys.Kind(t) {
	case types.KindRecord:
		d := l.s.defOf(t)
		if d == nil {
			return
		}
		for _, f := range d.Fields {
			fields = append(fields, f.Type)
		}
	case types.KindTuple:
		fields = l.s.tys.TupleElems(t)
	}
	for _, p := range moved {
		if len(p) == 0 {
			return
		}
	}
	st := l.s.lirType(t)
	for i := len(fields) - 1; i >= 0; i-- {
		var sub []fieldPath
		for _, p := range moved {
			if p[0] == i {
				sub = append(sub, p[1:])
			}
		}
		l.releaseParts(l.b.FieldPtr(st, ptr, i), fields[i], sub)
	}
}

// releaseValue releases a fresh value that nobody took.
func (l *funcLowerer) releaseValue(v value) {
	if !v.fresh || !l.tracked(v.ty) || l.b.Terminated() {
		return
	}
	l.releaseAt(l.addrOf(v), v.ty)
}
