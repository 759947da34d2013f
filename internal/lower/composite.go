package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/types"
)

// lowerRecordLit builds a record in a fresh slot. Fields are evaluated in
// source order; every declared field must be given exactly once.
func (l *funcLowerer) lowerRecordLit(e *ast.Expr, d ast.RecordLitData) (value, error) {
	t, pre, err := l.recordType(e, d)
	if err != nil {
		return value{}, err
	}
	def := l.s.defOf(t)
	if def == nil || def.Kind != registry.DefRecord {
		return value{}, l.errorf(diag.ResUnknownType, d.Type.Span, "`%s` is not a record", l.typeName(t))
	}
	st := l.s.lirType(t)
	slot := l.b.Alloca(st)
	seen := make([]bool, len(def.Fields))
	for n, fi := range d.Fields {
		i, ok := def.FieldIndex(fi.Name)
		if !ok {
			return value{}, l.errorf(diag.ResUnknownField, fi.Span,
				"record `%s` has no field `%s`", l.typeName(t), l.name(fi.Name))
		}
		if seen[i] {
			return value{}, l.errorf(diag.ResUnknownField, fi.Span, "field `%s` given twice", l.name(fi.Name))
		}
		seen[i] = true
		ft := def.Fields[i].Type
		var v value
		if pre != nil {
			v = pre[n]
		} else {
			if err := l.checkArraySize(fi.Value, ft); err != nil {
				return value{}, err
			}
			if v, err = l.lowerExpr(fi.Value, ft); err != nil {
				return value{}, err
			}
		}
		if v, err = l.coerce(v, ft, fi.Value.Span); err != nil {
			return value{}, err
		}
		l.consume(v)
		l.storeInto(l.b.FieldPtr(st, slot, i), v)
	}
	for i, ok := range seen {
		if !ok {
			return value{}, l.errorf(diag.LowMissingValue, e.Span,
				"missing field `%s` in `%s`", l.name(def.Fields[i].Name), l.typeName(t))
		}
	}
	return value{v: slot, ty: t, fresh: true}, nil
}

// recordType resolves the type of a record literal. A generic record
// written without type arguments takes them from its field values, which
// are returned already lowered.
func (l *funcLowerer) recordType(e *ast.Expr, d ast.RecordLitData) (types.TypeID, []value, error) {
	te := d.Type
	if te == nil {
		return types.NoTypeID, nil, l.errorf(diag.InputMalformed, e.Span, "record literal without a type")
	}
	if te.Kind == ast.TypeNamed && len(te.Args) == 0 {
		if def, ok := l.s.reg.Lookup(te.Name); ok && def.Generic && def.Record != nil {
			if _, bound := l.env[te.Name]; !bound {
				return l.inferRecord(e, def, d)
			}
		}
	}
	t, err := l.resolveType(te)
	return t, nil, err
}

func (l *funcLowerer) inferRecord(e *ast.Expr, def *registry.Def, d ast.RecordLitData) (types.TypeID, []value, error) {
	written := make([]*ast.TypeExpr, len(d.Fields))
	argTypes := make([]types.TypeID, len(d.Fields))
	pre := make([]value, len(d.Fields))
	for i, fi := range d.Fields {
		for _, f := range def.Record.Fields {
			if f.Name == fi.Name {
				written[i] = f.Type
			}
		}
		v, err := l.lowerExpr(fi.Value, types.NoTypeID)
		if err != nil {
			return types.NoTypeID, nil, err
		}
		pre[i], argTypes[i] = v, v.ty
	}
	targs, ok := l.s.mono.InferTypeArgs(l.name(def.Name), def.TypeParams(), written, argTypes, e.Span)
	if !ok {
		return types.NoTypeID, nil, errLoweringAborted
	}
	t := l.s.mono.InstantiateType(def, targs, e.Span)
	if t == types.NoTypeID {
		return t, nil, errLoweringAborted
	}
	return t, pre, nil
}

// lowerTupleLit builds a tuple; the empty tuple is unit.
func (l *funcLowerer) lowerTupleLit(d ast.TupleLitData, want types.TypeID) (value, error) {
	if len(d.Elems) == 0 {
		return l.unit(), nil
	}
	var wantElems []types.TypeID
	if l.s.tys.Kind(want) == types.KindTuple {
		if ws := l.s.tys.TupleElems(want); len(ws) == len(d.Elems) {
			wantElems = ws
		}
	}
	vals := make([]value, len(d.Elems))
	elems := make([]types.TypeID, len(d.Elems))
	for i, el := range d.Elems {
		w := types.NoTypeID
		if wantElems != nil {
			w = wantElems[i]
			if err := l.checkArraySize(el, w); err != nil {
				return value{}, err
			}
		}
		v, err := l.lowerExpr(el, w)
		if err != nil {
			return value{}, err
		}
		if w != types.NoTypeID {
			if v, err = l.coerce(v, w, el.Span); err != nil {
				return value{}, err
			}
		}
		vals[i], elems[i] = v, v.ty
	}
	t := l.s.tys.Tuple(elems)
	st := l.s.lirType(t)
	slot := l.b.Alloca(st)
	for i, v := range vals {
		l.consume(v)
		l.storeInto(l.b.FieldPtr(st, slot, i), v)
	}
	return value{v: slot, ty: t, fresh: true}, nil
}

// arrayElem is the element type an array literal is expected to have.
func (l *funcLowerer) arrayElem(want types.TypeID) types.TypeID {
	switch l.s.tys.Kind(want) {
	case types.KindArray, types.KindSlice:
		return l.s.tys.Elem(want)
	}
	return types.NoTypeID
}

// lowerArrayLit builds [a, b, ...]. Without an expected type the first
// element fixes the element type.
func (l *funcLowerer) lowerArrayLit(e *ast.Expr, d ast.ArrayLitData, want types.TypeID) (value, error) {
	elem := l.arrayElem(want)
	if len(d.Elems) == 0 && elem == types.NoTypeID {
		return value{}, l.errorf(diag.MonoCannotInfer, e.Span, "cannot infer the element type of an empty array")
	}
	vals := make([]value, len(d.Elems))
	for i, el := range d.Elems {
		if elem != types.NoTypeID {
			if err := l.checkArraySize(el, elem); err != nil {
				return value{}, err
			}
		}
		v, err := l.lowerExpr(el, elem)
		if err != nil {
			return value{}, err
		}
		if elem == types.NoTypeID {
			elem = v.ty
		}
		if v, err = l.coerce(v, elem, el.Span); err != nil {
			return value{}, err
		}
		vals[i] = v
	}
	t := l.s.tys.Intern(types.MakeArray(elem, uint32(len(vals)))) // #nosec G115 -- literal lengths are small
	slot := l.b.Alloca(l.s.lirType(t))
	et := l.s.lirType(elem)
	for i, v := range vals {
		l.consume(v)
		l.storeInto(l.b.ElemPtr(et, slot, l.i64(int64(i))), v)
	}
	return value{v: slot, ty: t, fresh: true}, nil
}

// lowerArrayRepeat builds [v; n] by storing one evaluation of v n times.
func (l *funcLowerer) lowerArrayRepeat(e *ast.Expr, d ast.ArrayRepeatData, want types.TypeID) (value, error) {
	if d.Count < 0 || d.Count > int64(^uint32(0)) {
		return value{}, l.errorf(diag.LowArraySize, e.Span, "invalid array length %d", d.Count)
	}
	elem := l.arrayElem(want)
	v, err := l.lowerExpr(d.Value, elem)
	if err != nil {
		return value{}, err
	}
	if elem == types.NoTypeID {
		elem = v.ty
	}
	if v, err = l.coerce(v, elem, d.Value.Span); err != nil {
		return value{}, err
	}
	if l.tracked(elem) && d.Count > 1 {
		return value{}, l.errorf(diag.LowUnsupported, d.Value.Span,
			"cannot repeat a value of type `%s`; it owns resources", l.typeName(elem))
	}
	t := l.s.tys.Intern(types.MakeArray(elem, uint32(d.Count))) // #nosec G115 -- bounded above
	slot := l.b.Alloca(l.s.lirType(t))
	l.consume(v)
	if d.Count == 0 || l.s.isVoid(elem) {
		return value{v: slot, ty: t, fresh: true}, nil
	}
	x := l.operand(v)
	et := l.s.lirType(elem)
	ts := l.s.mod.Types

	idx := l.b.Alloca(ts.I64)
	l.b.Store(l.i64(0), idx)
	head := l.b.NewBlock("repeat.head")
	body := l.b.NewBlock("repeat.body")
	done := l.b.NewBlock("repeat.end")
	l.b.Br(head)
	l.b.SetBlock(head)
	i := l.b.Load(ts.I64, idx)
	l.b.CondBr(l.b.Cmp(lir.CmpSLt, i, l.i64(d.Count)), body, done)
	l.b.SetBlock(body)
	l.b.Store(x, l.b.ElemPtr(et, slot, i))
	l.b.Store(l.b.Bin(lir.BinAdd, i, l.i64(1)), idx)
	l.b.Br(head)
	l.b.SetBlock(done)
	return value{v: slot, ty: t, fresh: true}, nil
}

// lowerMapLit builds a Map handle and inserts the entries in order.
func (l *funcLowerer) lowerMapLit(e *ast.Expr, d ast.MapLitData, want types.TypeID) (value, error) {
	var kt, vt types.TypeID
	if b, args := l.s.builtinOf(want); b == types.BuiltinMap {
		kt, vt = args[0], args[1]
	}
	if kt == types.NoTypeID {
		if len(d.Entries) == 0 {
			return value{}, l.errorf(diag.MonoCannotInfer, e.Span, "cannot infer the type of an empty map literal")
		}
		k, err := l.lowerExpr(d.Entries[0].Key, types.NoTypeID)
		if err != nil {
			return value{}, err
		}
		v, err := l.lowerExpr(d.Entries[0].Value, types.NoTypeID)
		if err != nil {
			return value{}, err
		}
		kt, vt = k.ty, v.ty
		t, err := l.container(types.BuiltinMap, e.Span, kt, vt)
		if err != nil {
			return value{}, err
		}
		h := l.rt("rt_map_new", l.size(kt), l.size(vt), l.keyKind(kt))
		l.consume(k)
		l.consume(v)
		l.rt("rt_map_insert", h, l.addrOf(k), l.addrOf(v))
		return l.mapEntries(h, t, kt, vt, d.Entries[1:])
	}
	t, err := l.container(types.BuiltinMap, e.Span, kt, vt)
	if err != nil {
		return value{}, err
	}
	h := l.rt("rt_map_new", l.size(kt), l.size(vt), l.keyKind(kt))
	return l.mapEntries(h, t, kt, vt, d.Entries)
}

func (l *funcLowerer) mapEntries(h lir.Value, t, kt, vt types.TypeID, entries []ast.MapEntry) (value, error) {
	for _, en := range entries {
		k, err := l.element(en.Key, kt, true)
		if err != nil {
			return value{}, err
		}
		v, err := l.element(en.Value, vt, true)
		if err != nil {
			return value{}, err
		}
		l.rt("rt_map_insert", h, k, v)
	}
	return value{v: h, ty: t, fresh: true}, nil
}

// caseOwner picks the variant a bare case name belongs to. The expected
// type decides between several variants declaring the same case.
func (l *funcLowerer) caseOwner(span source.Span, name source.StringID, owners []*registry.Def, want types.TypeID) (*registry.Def, error) {
	if wd := l.s.defOf(want); wd != nil {
		for _, d := range owners {
			if d.ID == wd.ID || d.ID == wd.Origin {
				return d, nil
			}
		}
	}
	if len(owners) == 1 {
		return owners[0], nil
	}
	return nil, l.errorf(diag.ResUnknownVariant, span,
		"case `%s` is declared by %d variants; qualify it with the variant name", l.name(name), len(owners))
}

// constructCase builds a variant value: the tag, then the payload stored
// into the payload area.
func (l *funcLowerer) constructCase(e *ast.Expr, def *registry.Def, kase source.StringID, typeArgs []*ast.TypeExpr, args []*ast.Expr, want types.TypeID) (value, error) {
	t, pre, err := l.caseType(e, def, kase, typeArgs, args, want)
	if err != nil {
		return value{}, err
	}
	inst := l.s.defOf(t)
	if inst == nil {
		return value{}, errLoweringAborted
	}
	i, ok := inst.CaseIndex(kase)
	if !ok {
		return value{}, l.errorf(diag.ResUnknownVariant, e.Span, "variant `%s` has no case `%s`", l.typeName(t), l.name(kase))
	}
	c := inst.Cases[i]
	if c.Payload == types.NoTypeID && len(args) > 0 {
		return value{}, l.errorf(diag.LowArgCount, e.Span, "case `%s` carries no payload", l.name(kase))
	}
	if c.Payload != types.NoTypeID && len(args) != 1 {
		return value{}, l.errorf(diag.LowArgCount, e.Span,
			"case `%s` takes one payload, %d given", l.name(kase), len(args))
	}
	st := l.s.lirType(t)
	slot := l.b.Alloca(st)
	l.b.Store(l.i32(int64(c.Tag)), l.b.FieldPtr(st, slot, 0))
	if c.Payload != types.NoTypeID {
		var v value
		if pre != nil {
			v = pre[0]
		} else {
			if err := l.checkArraySize(args[0], c.Payload); err != nil {
				return value{}, err
			}
			if v, err = l.lowerExpr(args[0], c.Payload); err != nil {
				return value{}, err
			}
		}
		if v, err = l.coerce(v, c.Payload, args[0].Span); err != nil {
			return value{}, err
		}
		l.consume(v)
		l.storeInto(l.b.FieldPtr(st, slot, 1), v)
	}
	return value{v: slot, ty: t, fresh: true}, nil
}

// caseType finds the concrete variant type a case construction builds.
// Generic variants take their arguments from explicit type arguments, the
// expected type, or the payload value, in that order.
func (l *funcLowerer) caseType(e *ast.Expr, def *registry.Def, kase source.StringID, typeArgs []*ast.TypeExpr, args []*ast.Expr, want types.TypeID) (types.TypeID, []value, error) {
	if !def.Generic {
		if len(typeArgs) > 0 {
			return types.NoTypeID, nil, l.errorf(diag.MonoNotGeneric, e.Span, "`%s` takes no type arguments", l.name(def.Name))
		}
		return def.Type, nil, nil
	}
	if len(typeArgs) > 0 {
		targs := make([]types.TypeID, len(typeArgs))
		for i, te := range typeArgs {
			t, err := l.resolveType(te)
			if err != nil {
				return types.NoTypeID, nil, err
			}
			targs[i] = t
		}
		t := l.s.mono.InstantiateType(def, targs, e.Span)
		if t == types.NoTypeID {
			return t, nil, errLoweringAborted
		}
		return t, nil, nil
	}
	if wd := l.s.defOf(want); wd != nil && wd.Origin == def.ID {
		return want, nil, nil
	}
	var written []*ast.TypeExpr
	var argTypes []types.TypeID
	var pre []value
	for _, c := range def.Variant.Cases {
		if c.Name != kase || c.Payload == nil || len(args) != 1 {
			continue
		}
		v, err := l.lowerExpr(args[0], types.NoTypeID)
		if err != nil {
			return types.NoTypeID, nil, err
		}
		written = []*ast.TypeExpr{c.Payload}
		argTypes = []types.TypeID{v.ty}
		pre = []value{v}
	}
	targs, ok := l.s.mono.InferTypeArgs(l.name(def.Name), def.TypeParams(), written, argTypes, e.Span)
	if !ok {
		return types.NoTypeID, nil, errLoweringAborted
	}
	t := l.s.mono.InstantiateType(def, targs, e.Span)
	if t == types.NoTypeID {
		return t, nil, errLoweringAborted
	}
	return t, pre, nil
}

// bareCase lowers an identifier naming a unit case, or None. ok is false
// when name is no case at all.
func (l *funcLowerer) bareCase(name source.StringID, span source.Span, want types.TypeID) (value, bool, error) {
	if owners := l.s.reg.CaseOwners(name); len(owners) > 0 {
		def, err := l.caseOwner(span, name, owners, want)
		if err != nil {
			return value{}, true, err
		}
		e := &ast.Expr{Kind: ast.ExprIdent, Span: span, Data: ast.IdentData{Name: name}}
		v, err := l.constructCase(e, def, name, nil, nil, want)
		return v, true, err
	}
	if name == l.s.sym.none {
		v, err := l.none(span, want)
		return v, true, err
	}
	return value{}, false, nil
}
