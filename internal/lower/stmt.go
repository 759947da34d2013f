package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/types"
)

// lowerBlock lowers a block in a scope of its own and returns the value of
// its tail expression, or unit.
func (l *funcLowerer) lowerBlock(blk *ast.Block, want types.TypeID) (value, error) {
	if blk == nil {
		return l.unit(), nil
	}
	l.pushScope()
	for _, st := range blk.Stmts {
		if l.b.Terminated() {
			l.warnDead(st.Span)
			l.popScope(nil)
			return l.never(), nil
		}
		if err := l.lowerStmt(st); err != nil {
			return value{}, err
		}
	}
	res := l.unit()
	if blk.Tail != nil {
		if l.b.Terminated() {
			l.warnDead(blk.Tail.Span)
			l.popScope(nil)
			return l.never(), nil
		}
		v, err := l.lowerExpr(blk.Tail, want)
		if err != nil {
			return value{}, err
		}
		res = v
	}
	l.popScope(&res)
	return res, nil
}

func (l *funcLowerer) lowerStmt(st *ast.Stmt) error {
	switch st.Kind {
	case ast.StmtLet:
		d, err := stmtData[ast.LetData](l, st)
		if err != nil {
			return err
		}
		return l.lowerLet(st, d)
	case ast.StmtExpr:
		d, err := stmtData[ast.ExprStmtData](l, st)
		if err != nil {
			return err
		}
		v, err := l.lowerExpr(d.Expr, types.NoTypeID)
		if err != nil {
			return err
		}
		l.releaseValue(v)
		return nil
	case ast.StmtAssign:
		d, err := stmtData[ast.AssignData](l, st)
		if err != nil {
			return err
		}
		return l.lowerAssign(st, d)
	case ast.StmtReturn:
		d, err := stmtData[ast.ReturnData](l, st)
		if err != nil {
			return err
		}
		return l.lowerReturn(st, d)
	case ast.StmtWhile:
		d, err := stmtData[ast.WhileData](l, st)
		if err != nil {
			return err
		}
		return l.lowerWhile(d)
	case ast.StmtLoop:
		d, err := stmtData[ast.LoopData](l, st)
		if err != nil {
			return err
		}
		return l.lowerLoop(d)
	case ast.StmtFor:
		d, err := stmtData[ast.ForData](l, st)
		if err != nil {
			return err
		}
		return l.lowerFor(st, d)
	case ast.StmtBreak, ast.StmtContinue:
		return l.lowerJump(st)
	}
	return l.errorf(diag.InputUnknownKind, st.Span, "unknown statement kind %s", st.Kind)
}

func stmtData[T ast.StmtData](l *funcLowerer, st *ast.Stmt) (T, error) {
	d, ok := st.Data.(T)
	if !ok {
		return d, l.errorf(diag.InputMalformed, st.Span, "%s statement carries no %T", st.Kind, d)
	}
	return d, nil
}

// lowerLet binds a local. The type comes from the annotation, otherwise
// from the lowered value.
func (l *funcLowerer) lowerLet(st *ast.Stmt, d ast.LetData) error {
	want := types.NoTypeID
	if d.Type != nil {
		t, err := l.resolveType(d.Type)
		if err != nil {
			return err
		}
		want = t
	}
	if d.Value == nil {
		if want == types.NoTypeID {
			return l.errorf(diag.LowMissingValue, st.Span, "`%s` needs a type or an initializer", l.name(d.Name))
		}
		l.declare(d.Name, want, true)
		return nil
	}
	if err := l.checkArraySize(d.Value, want); err != nil {
		return err
	}
	v, err := l.lowerExpr(d.Value, want)
	if err != nil {
		return err
	}
	if l.s.tys.Kind(v.ty) == types.KindNever {
		return nil
	}
	v, err = l.coerce(v, want, d.Value.Span)
	if err != nil {
		return err
	}
	if d.Pattern != nil {
		return l.lowerLetPattern(d.Pattern, v)
	}
	owned := l.consume(v)
	b := l.declare(d.Name, v.ty, d.Mutable)
	l.storeInto(b.slot, v)
	b.owned = owned
	return nil
}

// checkArraySize rejects array literals whose length differs from a fixed
// size annotation.
func (l *funcLowerer) checkArraySize(e *ast.Expr, want types.TypeID) error {
	tt, ok := l.s.tys.Lookup(want)
	if !ok || tt.Kind != types.KindArray {
		return nil
	}
	var n int64
	switch d := e.Data.(type) {
	case ast.ArrayLitData:
		n = int64(len(d.Elems))
	case ast.ArrayRepeatData:
		n = d.Count
	default:
		return nil
	}
	if n != int64(tt.Count) {
		return l.errorf(diag.LowArraySize, e.Span,
			"array has %d elements but the annotation `%s` requires %d", n, l.typeName(want), tt.Count)
	}
	return nil
}

func (l *funcLowerer) lowerAssign(st *ast.Stmt, d ast.AssignData) error {
	p, err := l.lowerPlace(d.Target)
	if err != nil {
		return err
	}
	if op, compound := d.Op.Binary(); compound {
		cur := l.read(p.addr, p.ty, nil)
		rhs, err := l.lowerExpr(d.Value, p.ty)
		if err != nil {
			return err
		}
		res, err := l.arith(op, cur, rhs, st.Span)
		if err != nil {
			return err
		}
		l.storeInto(p.addr, res)
		return nil
	}
	v, err := l.lowerExpr(d.Value, p.ty)
	if err != nil {
		return err
	}
	v, err = l.coerce(v, p.ty, d.Value.Span)
	if err != nil {
		return err
	}
	// The new value may be built from the old one; copy it out before the
	// old value is released.
	v = l.copyOf(v)
	owned := l.consume(v)
	if l.tracked(p.ty) {
		switch {
		case p.whole != nil:
			if p.whole.owned && !p.whole.moved {
				l.releaseParts(p.addr, p.ty, p.whole.parts)
			}
			p.whole.owned, p.whole.moved, p.whole.parts = owned, false, nil
		case p.root != nil && p.root.moved:
			// the old value left with the whole binding
		case p.part != nil && p.root.owned:
			l.releaseParts(p.addr, p.ty, p.root.assignPart(p.part, owned))
		default:
			l.releaseAt(p.addr, p.ty)
		}
	}
	l.storeInto(p.addr, v)
	return nil
}

func (l *funcLowerer) lowerReturn(st *ast.Stmt, d ast.ReturnData) error {
	if d.Value == nil {
		return l.emitReturn(l.unit(), false, st.Span)
	}
	want := l.sig.result
	if !l.resultKnown {
		want = types.NoTypeID
	}
	v, err := l.lowerExpr(d.Value, want)
	if err != nil {
		return err
	}
	if l.b.Terminated() {
		return nil
	}
	return l.emitReturn(v, true, d.Value.Span)
}

// cond lowers a boolean condition.
func (l *funcLowerer) cond(e *ast.Expr) (lir.Value, error) {
	v, err := l.lowerExpr(e, l.s.bt.Bool)
	if err != nil {
		return lir.Value{}, err
	}
	if v.ty != l.s.bt.Bool {
		return lir.Value{}, l.errorf(diag.LowTypeMismatch, e.Span, "condition has type `%s`, expected `bool`", l.typeName(v.ty))
	}
	return v.v, nil
}

func (l *funcLowerer) loopBody(body *ast.Block, brk, cont *lir.Block) error {
	l.loops = append(l.loops, loopFrame{brk: brk, cont: cont, depth: len(l.scopes)})
	v, err := l.lowerBlock(body, types.NoTypeID)
	l.loops = l.loops[:len(l.loops)-1]
	if err != nil {
		return err
	}
	l.releaseValue(v)
	return nil
}

func (l *funcLowerer) lowerWhile(d ast.WhileData) error {
	head := l.b.NewBlock("while.cond")
	body := l.b.NewBlock("while.body")
	exit := l.b.NewBlock("while.end")
	l.b.Br(head)
	l.b.SetBlock(head)
	c, err := l.cond(d.Cond)
	if err != nil {
		return err
	}
	l.b.CondBr(c, body, exit)
	l.b.SetBlock(body)
	if err := l.loopBody(d.Body, exit, head); err != nil {
		return err
	}
	l.b.Br(head)
	l.b.SetBlock(exit)
	return nil
}

func (l *funcLowerer) lowerLoop(d ast.LoopData) error {
	body := l.b.NewBlock("loop.body")
	exit := l.b.NewBlock("loop.end")
	l.b.Br(body)
	l.b.SetBlock(body)
	if err := l.loopBody(d.Body, exit, body); err != nil {
		return err
	}
	l.b.Br(body)
	l.b.SetBlock(exit)
	return nil
}

// lowerJump leaves the scopes opened inside the loop before jumping.
func (l *funcLowerer) lowerJump(st *ast.Stmt) error {
	if len(l.loops) == 0 {
		return l.errorf(diag.LowBreakOutsideLoop, st.Span, "`%s` outside of a loop", pick(st.Kind == ast.StmtBreak, "break", "continue"))
	}
	lp := l.loops[len(l.loops)-1]
	l.releaseFrom(lp.depth)
	if st.Kind == ast.StmtBreak {
		l.b.Br(lp.brk)
	} else {
		l.b.Br(lp.cont)
	}
	return nil
}

// lowerFor iterates ranges, arrays, slices and vectors with an index
// counter. The loop variable borrows the element.
func (l *funcLowerer) lowerFor(st *ast.Stmt, d ast.ForData) error {
	if d.Iter.Kind == ast.ExprRange {
		rd, err := exprData[ast.RangeData](l, d.Iter)
		if err != nil {
			return err
		}
		return l.lowerForRange(d, rd)
	}
	l.pushScope()
	defer l.popScope(nil)
	it, err := l.lowerPlace(d.Iter)
	if err != nil {
		return err
	}
	it = l.derefRefs(it)
	tys := l.s.tys
	t := it.ty
	addr := it.addr

	var (
		count lir.Value
		elem  types.TypeID
		at    func(idx lir.Value) lir.Value
	)
	ts := l.s.mod.Types
	switch tt, _ := tys.Lookup(t); tt.Kind {
	case types.KindArray:
		elem = tt.Elem
		count = l.i64(int64(tt.Count))
		at = func(idx lir.Value) lir.Value { return l.b.ElemPtr(l.s.lirType(elem), addr, idx) }
	case types.KindSlice:
		elem = tt.Elem
		sl := l.s.lirType(t)
		data := l.b.Load(ts.Ptr, l.b.FieldPtr(sl, addr, 0))
		count = l.b.Load(ts.I64, l.b.FieldPtr(sl, addr, 1))
		at = func(idx lir.Value) lir.Value { return l.b.ElemPtr(l.s.lirType(elem), data, idx) }
	case types.KindBuiltin:
		b, args := tys.ContainerArgs(t)
		if b != types.BuiltinVec {
			return l.errorf(diag.LowUnsupported, d.Iter.Span, "cannot iterate over `%s`", l.typeName(t))
		}
		elem = args[0]
		h := l.b.Load(ts.Ptr, addr)
		count = l.rt("rt_vec_len", h)
		at = func(idx lir.Value) lir.Value { return l.rt("rt_vec_get", h, idx) }
	default:
		return l.errorf(diag.LowUnsupported, d.Iter.Span, "cannot iterate over `%s`", l.typeName(t))
	}

	idx := l.b.Alloca(ts.I64)
	l.b.Store(l.i64(0), idx)
	head := l.b.NewBlock("for.cond")
	body := l.b.NewBlock("for.body")
	step := l.b.NewBlock("for.step")
	exit := l.b.NewBlock("for.end")
	l.b.Br(head)
	l.b.SetBlock(head)
	i := l.b.Load(ts.I64, idx)
	l.b.CondBr(l.b.Cmp(lir.CmpSLt, i, count), body, exit)

	l.b.SetBlock(body)
	l.pushScope()
	ev := l.read(at(i), elem, nil)
	b := l.declare(d.Var, elem, false)
	l.storeInto(b.slot, ev)
	if err := l.loopBody(d.Body, exit, step); err != nil {
		return err
	}
	l.popScope(nil)
	l.b.Br(step)

	l.b.SetBlock(step)
	next := l.b.Bin(lir.BinAdd, l.b.Load(ts.I64, idx), l.i64(1))
	l.b.Store(next, idx)
	l.b.Br(head)
	l.b.SetBlock(exit)
	return nil
}

// lowerForRange counts from start to end in the type of the bounds. An
// inclusive range leaves the loop from the step once the counter reached
// end, so a range ending at the maximum of the type terminates.
func (l *funcLowerer) lowerForRange(d ast.ForData, rd ast.RangeData) error {
	lo, hi, err := l.rangeBounds(rd)
	if err != nil {
		return err
	}
	t := lo.ty
	lt := l.s.lirType(t)
	ctr := l.b.Alloca(lt)
	l.b.Store(lo.v, ctr)
	head := l.b.NewBlock("for.cond")
	body := l.b.NewBlock("for.body")
	step := l.b.NewBlock("for.step")
	exit := l.b.NewBlock("for.end")
	l.b.Br(head)
	l.b.SetBlock(head)
	cur := l.b.Load(lt, ctr)
	pred := l.intPred(t, rd.Inclusive)
	l.b.CondBr(l.b.Cmp(pred, cur, hi.v), body, exit)

	l.b.SetBlock(body)
	l.pushScope()
	b := l.declare(d.Var, t, false)
	l.b.Store(cur, b.slot)
	if err := l.loopBody(d.Body, exit, step); err != nil {
		return err
	}
	l.popScope(nil)
	l.b.Br(step)

	l.b.SetBlock(step)
	cur = l.b.Load(lt, ctr)
	if rd.Inclusive {
		inc := l.b.NewBlock("for.inc")
		l.b.CondBr(l.b.Cmp(lir.CmpEq, cur, hi.v), exit, inc)
		l.b.SetBlock(inc)
	}
	l.b.Store(l.b.Bin(lir.BinAdd, cur, lir.ConstInt(lt, 1)), ctr)
	l.b.Br(head)
	l.b.SetBlock(exit)
	return nil
}

func (l *funcLowerer) intPred(t types.TypeID, inclusive bool) lir.CmpPred {
	signed := l.s.tys.IsSigned(t)
	switch {
	case inclusive && signed:
		return lir.CmpSLe
	case inclusive:
		return lir.CmpULe
	case signed:
		return lir.CmpSLt
	}
	return lir.CmpULt
}

// rangeBounds lowers both bounds to one integer type.
func (l *funcLowerer) rangeBounds(rd ast.RangeData) (lo, hi value, err error) {
	first, second := rd.Start, rd.End
	swap := isUntypedLit(rd.Start) && !isUntypedLit(rd.End)
	if swap {
		first, second = second, first
	}
	a, err := l.lowerExpr(first, types.NoTypeID)
	if err != nil {
		return value{}, value{}, err
	}
	if !l.s.tys.IsInteger(a.ty) {
		return value{}, value{}, l.errorf(diag.LowTypeMismatch, first.Span, "range bound has type `%s`", l.typeName(a.ty))
	}
	b, err := l.lowerExpr(second, a.ty)
	if err != nil {
		return value{}, value{}, err
	}
	b, err = l.coerce(b, a.ty, second.Span)
	if err != nil {
		return value{}, value{}, err
	}
	if swap {
		return b, a, nil
	}
	return a, b, nil
}
