package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/registry"
	"kiln/internal/types"
)

// place is addressable storage of a source type.
type place struct {
	addr lir.Value
	ty   types.TypeID
	// root is the binding owning the storage; nil behind references.
	root *binding
	// whole is set when the place is a binding itself, not a part of one.
	whole *binding
	// part is the path of the place inside root when root can track it
	// apart from the rest: a chain of fields and tuple elements from a
	// binding that is not a pattern alias, with no Drop impl on the way.
	part    fieldPath
	mutable bool
}

// partOf is the path of the i-th field or element of base, if tracked.
func (l *funcLowerer) partOf(base place, i int) fieldPath {
	if l.s.dropImpl(base.ty) != nil {
		return nil
	}
	switch {
	case base.whole != nil && base.whole == base.root:
		return fieldPath{i}
	case base.part != nil:
		return base.part.child(i)
	}
	return nil
}

// readPlace reads p as a value attributed to its binding.
func (l *funcLowerer) readPlace(p place) value {
	v := l.read(p.addr, p.ty, p.root)
	v.part = p.part
	return v
}

// lowerPlace lowers e as storage. Expressions without storage of their
// own are evaluated into a scope-owned temporary.
func (l *funcLowerer) lowerPlace(e *ast.Expr) (place, error) {
	switch d := e.Data.(type) {
	case ast.IdentData:
		if b, ok := l.lookup(d.Name); ok {
			return place{addr: b.slot, ty: b.ty, root: b.rootOf(), whole: b, mutable: b.mutable}, nil
		}
	case ast.FieldData:
		return l.fieldPlace(e, d)
	case ast.TupleIndexData:
		base, err := l.lowerPlace(d.Target)
		if err != nil {
			return place{}, err
		}
		base = l.derefPlace(base)
		if l.s.tys.Kind(base.ty) != types.KindTuple {
			return place{}, l.errorf(diag.ResUnknownField, e.Span, "`%s` is not a tuple", l.typeName(base.ty))
		}
		elems := l.s.tys.TupleElems(base.ty)
		if d.Index < 0 || d.Index >= len(elems) {
			return place{}, l.errorf(diag.ResUnknownField, e.Span,
				"tuple `%s` has no element %d", l.typeName(base.ty), d.Index)
		}
		addr := l.b.FieldPtr(l.s.lirType(base.ty), base.addr, d.Index)
		return place{addr: addr, ty: elems[d.Index], root: base.root, part: l.partOf(base, d.Index), mutable: base.mutable}, nil
	case ast.IndexData:
		return l.indexPlace(e, d)
	case ast.UnaryData:
		if d.Op == ast.UnaryDeref {
			return l.derefExpr(e, d)
		}
	}
	v, err := l.lowerExpr(e, types.NoTypeID)
	if err != nil {
		return place{}, err
	}
	v = l.hidden(v)
	return place{addr: l.addrOf(v), ty: v.ty, root: v.root, mutable: true}, nil
}

func (l *funcLowerer) fieldPlace(e *ast.Expr, d ast.FieldData) (place, error) {
	base, err := l.lowerPlace(d.Target)
	if err != nil {
		return place{}, err
	}
	base = l.derefPlace(base)
	def := l.s.defOf(base.ty)
	if def == nil || def.Kind != registry.DefRecord {
		return place{}, l.errorf(diag.ResUnknownField, e.Span,
			"type `%s` has no field `%s`", l.typeName(base.ty), l.name(d.Field))
	}
	i, ok := def.FieldIndex(d.Field)
	if !ok {
		return place{}, l.errorf(diag.ResUnknownField, e.Span,
			"record `%s` has no field `%s`", l.typeName(base.ty), l.name(d.Field))
	}
	addr := l.b.FieldPtr(l.s.lirType(base.ty), base.addr, i)
	return place{addr: addr, ty: def.Fields[i].Type, root: base.root, part: l.partOf(base, i), mutable: base.mutable}, nil
}

func (l *funcLowerer) derefExpr(e *ast.Expr, d ast.UnaryData) (place, error) {
	inner, err := l.lowerPlace(d.Operand)
	if err != nil {
		return place{}, err
	}
	tys := l.s.tys
	if tt, _ := tys.Lookup(inner.ty); tt.Kind == types.KindRef {
		ptr := l.b.Load(l.s.mod.Types.Ptr, inner.addr)
		return place{addr: ptr, ty: tt.Elem, mutable: tt.Mutable}, nil
	}
	if b, args := l.s.builtinOf(inner.ty); b == types.BuiltinBox {
		h := l.b.Load(l.s.mod.Types.Ptr, inner.addr)
		return place{addr: l.rt("rt_box_get", h), ty: args[0], root: inner.root, mutable: inner.mutable}, nil
	}
	return place{}, l.errorf(diag.LowTypeMismatch, e.Span, "cannot dereference `%s`", l.typeName(inner.ty))
}

// derefPlace follows references and boxes down to the value they hold.
func (l *funcLowerer) derefPlace(p place) place {
	tys := l.s.tys
	ptrT := l.s.mod.Types.Ptr
	for {
		tt, _ := tys.Lookup(p.ty)
		if tt.Kind == types.KindRef {
			p = place{addr: l.b.Load(ptrT, p.addr), ty: tt.Elem, mutable: tt.Mutable}
			continue
		}
		if b, args := l.s.builtinOf(p.ty); b == types.BuiltinBox {
			h := l.b.Load(ptrT, p.addr)
			p = place{addr: l.rt("rt_box_get", h), ty: args[0], root: p.root, mutable: p.mutable}
			continue
		}
		return p
	}
}

// indexPlace lowers a[i]. Arrays and slices are bounds checked inline,
// vectors and maps by the runtime.
func (l *funcLowerer) indexPlace(e *ast.Expr, d ast.IndexData) (place, error) {
	base, err := l.lowerPlace(d.Target)
	if err != nil {
		return place{}, err
	}
	base = l.derefPlace(base)
	ts := l.s.mod.Types
	tt, _ := l.s.tys.Lookup(base.ty)
	switch tt.Kind {
	case types.KindArray:
		idx, err := l.indexValue(d.Index)
		if err != nil {
			return place{}, err
		}
		l.rt("rt_bounds_check", idx, l.i64(int64(tt.Count)))
		addr := l.b.ElemPtr(l.s.lirType(tt.Elem), base.addr, idx)
		return place{addr: addr, ty: tt.Elem, root: base.root, mutable: base.mutable}, nil
	case types.KindSlice:
		st := l.s.lirType(base.ty)
		data := l.b.Load(ts.Ptr, l.b.FieldPtr(st, base.addr, 0))
		n := l.b.Load(ts.I64, l.b.FieldPtr(st, base.addr, 1))
		idx, err := l.indexValue(d.Index)
		if err != nil {
			return place{}, err
		}
		l.rt("rt_bounds_check", idx, n)
		addr := l.b.ElemPtr(l.s.lirType(tt.Elem), data, idx)
		return place{addr: addr, ty: tt.Elem, mutable: base.mutable}, nil
	case types.KindBuiltin:
		b, args := l.s.tys.ContainerArgs(base.ty)
		switch b {
		case types.BuiltinVec:
			h := l.b.Load(ts.Ptr, base.addr)
			idx, err := l.indexValue(d.Index)
			if err != nil {
				return place{}, err
			}
			// elements live in the vector's buffer, never in a binding
			return place{addr: l.rt("rt_vec_get", h, idx), ty: args[0], mutable: base.mutable}, nil
		case types.BuiltinMap:
			h := l.b.Load(ts.Ptr, base.addr)
			k, err := l.element(d.Index, args[0], false)
			if err != nil {
				return place{}, err
			}
			return place{addr: l.rt("rt_map_index", h, k), ty: args[1], mutable: base.mutable}, nil
		}
	}
	return place{}, l.errorf(diag.LowNotIndexable, e.Span, "cannot index into `%s`", l.typeName(base.ty))
}

// indexValue lowers an index to i64.
func (l *funcLowerer) indexValue(e *ast.Expr) (lir.Value, error) {
	v, err := l.lowerExpr(e, l.s.bt.I64)
	if err != nil {
		return lir.Value{}, err
	}
	if !l.s.tys.IsInteger(v.ty) {
		return lir.Value{}, l.errorf(diag.LowTypeMismatch, e.Span, "index has type `%s`, expected an integer", l.typeName(v.ty))
	}
	return l.toI64(v), nil
}
