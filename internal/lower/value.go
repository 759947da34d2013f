package lower

import (
	"kiln/internal/lir"
	"kiln/internal/types"
)

// value is a lowered expression. Aggregates (records, variants, tuples,
// arrays, slices and fn values) are carried as the address of their
// storage; everything else as the scalar itself. Unit has no operand.
type value struct {
	v  lir.Value
	ty types.TypeID
	// fresh values were just produced and belong to nobody yet.
	fresh bool
	// root is the binding the value was read from, directly or through
	// field, element or payload projections.
	root *binding
	// part is set when the value is a field or tuple element of root that
	// root tracks on its own.
	part fieldPath
}

func (l *funcLowerer) unit() value {
	return value{ty: l.s.bt.Unit}
}

func (l *funcLowerer) never() value {
	return value{ty: l.s.bt.Never}
}

// operand returns the value as an instruction operand, loading
// aggregates out of their storage.
func (l *funcLowerer) operand(v value) lir.Value {
	if l.s.isVoid(v.ty) {
		return lir.Undef(l.s.lirType(v.ty))
	}
	if l.s.isAgg(v.ty) {
		return l.b.Load(l.s.lirType(v.ty), v.v)
	}
	return v.v
}

// addrOf returns an address holding v, spilling scalars to a fresh slot.
func (l *funcLowerer) addrOf(v value) lir.Value {
	if l.s.isAgg(v.ty) {
		return v.v
	}
	slot := l.b.Alloca(l.s.lirType(v.ty))
	if !l.s.isVoid(v.ty) {
		l.b.Store(v.v, slot)
	}
	return slot
}

// storeInto copies v into ptr.
func (l *funcLowerer) storeInto(ptr lir.Value, v value) {
	if l.s.isVoid(v.ty) {
		return
	}
	l.b.Store(l.operand(v), ptr)
}

// read turns storage of type t into a value: aggregates stay in place,
// scalars are loaded.
func (l *funcLowerer) read(ptr lir.Value, t types.TypeID, root *binding) value {
	switch {
	case l.s.isVoid(t):
		return value{ty: t, root: root}
	case l.s.isAgg(t):
		return value{v: ptr, ty: t, root: root}
	}
	return value{v: l.b.Load(l.s.lirType(t), ptr), ty: t, root: root}
}

// fromRegister wraps a call result or other register value of type t.
func (l *funcLowerer) fromRegister(r lir.Value, t types.TypeID) value {
	switch {
	case l.s.isVoid(t):
		return value{ty: t, fresh: true}
	case l.s.isAgg(t):
		slot := l.b.Alloca(l.s.lirType(t))
		l.b.Store(r, slot)
		return value{v: slot, ty: t, fresh: true}
	}
	return value{v: r, ty: t, fresh: true}
}

// copyOf stores v into a new slot and returns the slot as a value of the
// same type. Aggregates read from a binding must be copied before the
// binding can change under them.
func (l *funcLowerer) copyOf(v value) value {
	if !l.s.isAgg(v.ty) {
		return v
	}
	slot := l.b.Alloca(l.s.lirType(v.ty))
	l.storeInto(slot, v)
	return value{v: slot, ty: v.ty, fresh: v.fresh, root: v.root, part: v.part}
}

// tracked reports values whose type has a release contract.
func (l *funcLowerer) tracked(t types.TypeID) bool {
	return l.s.opt.ReleaseTracking && l.s.needsDrop(t)
}

// consume transfers v to a new owner. It reports whether the new owner
// owns the value: fresh values and values read from an owned binding are
// owned (the binding, or the part of it v is, is marked moved), anything
// else is borrowed.
func (l *funcLowerer) consume(v value) bool {
	if v.fresh {
		return true
	}
	if v.root == nil || !l.tracked(v.ty) {
		return false
	}
	r := v.root
	switch {
	case !r.owned || r.moved:
		return false
	case v.part != nil:
		return r.movePart(v.part)
	case len(r.parts) > 0:
		// What is left of r stays with r.
		return false
	}
	r.moved = true
	return true
}

func (l *funcLowerer) i64(n int64) lir.Value {
	return lir.ConstInt(l.s.mod.Types.I64, n)
}

func (l *funcLowerer) i32(n int64) lir.Value {
	return lir.ConstInt(l.s.mod.Types.I32, n)
}

func (l *funcLowerer) null() lir.Value {
	return lir.Null(l.s.mod.Types.Ptr)
}
