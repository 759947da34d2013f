package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/source"
	"kiln/internal/types"
)

func exprData[T ast.ExprData](l *funcLowerer, e *ast.Expr) (T, error) {
	d, ok := e.Data.(T)
	if !ok {
		return d, l.errorf(diag.InputMalformed, e.Span, "%s expression carries no %T", e.Kind, d)
	}
	return d, nil
}

// lowerExpr lowers e. want is the type the context expects, or NoTypeID;
// it only steers literals, inference and empty containers, the caller
// still coerces the result.
func (l *funcLowerer) lowerExpr(e *ast.Expr, want types.TypeID) (value, error) {
	if e == nil {
		return l.unit(), nil
	}
	switch e.Kind {
	case ast.ExprLiteral:
		d, err := exprData[ast.LiteralData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerLiteral(d, want), nil
	case ast.ExprIdent:
		d, err := exprData[ast.IdentData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerIdent(e, d, want)
	case ast.ExprUnary:
		d, err := exprData[ast.UnaryData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerUnary(e, d, want)
	case ast.ExprBinary:
		d, err := exprData[ast.BinaryData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerBinary(e, d, want)
	case ast.ExprCall:
		d, err := exprData[ast.CallData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerCall(e, d, want)
	case ast.ExprMethodCall:
		d, err := exprData[ast.MethodCallData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerMethodCall(e, d, want)
	case ast.ExprField, ast.ExprTupleIndex, ast.ExprIndex:
		p, err := l.lowerPlace(e)
		if err != nil {
			return value{}, err
		}
		return l.readPlace(p), nil
	case ast.ExprRecordLit:
		d, err := exprData[ast.RecordLitData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerRecordLit(e, d)
	case ast.ExprTupleLit:
		d, err := exprData[ast.TupleLitData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerTupleLit(d, want)
	case ast.ExprArrayLit:
		d, err := exprData[ast.ArrayLitData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerArrayLit(e, d, want)
	case ast.ExprArrayRepeat:
		d, err := exprData[ast.ArrayRepeatData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerArrayRepeat(e, d, want)
	case ast.ExprMapLit:
		d, err := exprData[ast.MapLitData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerMapLit(e, d, want)
	case ast.ExprMatch:
		d, err := exprData[ast.MatchData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerMatch(e, d, want)
	case ast.ExprCast:
		d, err := exprData[ast.CastData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerCast(e, d)
	case ast.ExprClosure:
		d, err := exprData[ast.ClosureData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerClosure(e, d, want)
	case ast.ExprIf:
		d, err := exprData[ast.IfData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerIf(e, d, want)
	case ast.ExprBlock:
		d, err := exprData[ast.BlockData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerBlock(d.Block, want)
	case ast.ExprRange:
		d, err := exprData[ast.RangeData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerRangeValue(e, d)
	case ast.ExprSpawn:
		d, err := exprData[ast.SpawnData](l, e)
		if err != nil {
			return value{}, err
		}
		return l.lowerSpawn(e, d)
	}
	return value{}, l.errorf(diag.InputUnknownKind, e.Span, "unknown expression kind %s", e.Kind)
}

// lowerLiteral types numeric literals after want when it is numeric, and
// after the configured defaults otherwise.
func (l *funcLowerer) lowerLiteral(d ast.LiteralData, want types.TypeID) value {
	tys := l.s.tys
	ts := l.s.mod.Types
	switch d.Kind {
	case ast.LiteralInt:
		switch {
		case tys.IsInteger(want):
			return value{v: lir.ConstInt(l.s.lirType(want), d.Int), ty: want}
		case tys.IsFloat(want):
			return value{v: lir.ConstFloat(l.s.lirType(want), float64(d.Int)), ty: want}
		}
		t := l.s.defaultInt
		return value{v: lir.ConstInt(l.s.lirType(t), d.Int), ty: t}
	case ast.LiteralFloat:
		t := l.s.defaultFloat
		if tys.IsFloat(want) {
			t = want
		}
		return value{v: lir.ConstFloat(l.s.lirType(t), d.Float), ty: t}
	case ast.LiteralBool:
		n := int64(0)
		if d.Bool {
			n = 1
		}
		return value{v: lir.ConstInt(ts.I1, n), ty: l.s.bt.Bool}
	case ast.LiteralString:
		return value{v: l.s.mod.String(d.String), ty: l.s.bt.String}
	case ast.LiteralChar:
		return value{v: lir.ConstInt(ts.I32, int64(d.Char)), ty: l.s.bt.Char}
	}
	return l.unit()
}

// isUntypedLit reports numeric literals, whose type follows the other
// operand.
func isUntypedLit(e *ast.Expr) bool {
	if e == nil {
		return false
	}
	switch d := e.Data.(type) {
	case ast.LiteralData:
		return d.Kind == ast.LiteralInt || d.Kind == ast.LiteralFloat
	case ast.UnaryData:
		return d.Op == ast.UnaryNeg && isUntypedLit(d.Operand)
	}
	return false
}

func (l *funcLowerer) lowerIdent(e *ast.Expr, d ast.IdentData, want types.TypeID) (value, error) {
	if b, ok := l.lookup(d.Name); ok {
		return l.read(b.slot, b.ty, b.rootOf()), nil
	}
	if f, ok := l.s.reg.Func(d.Name); ok {
		return l.funcValue(f, e.Span, want)
	}
	if v, ok, err := l.bareCase(d.Name, e.Span, want); ok {
		return v, err
	}
	return value{}, l.errorf(diag.ResUnknownBinding, e.Span, "unknown binding `%s`", l.name(d.Name))
}

func (l *funcLowerer) lowerUnary(e *ast.Expr, d ast.UnaryData, want types.TypeID) (value, error) {
	tys := l.s.tys
	switch d.Op {
	case ast.UnaryNeg:
		if lit, ok := d.Operand.Data.(ast.LiteralData); ok {
			switch lit.Kind {
			case ast.LiteralInt:
				lit.Int = -lit.Int
				return l.lowerLiteral(lit, want), nil
			case ast.LiteralFloat:
				lit.Float = -lit.Float
				return l.lowerLiteral(lit, want), nil
			}
		}
		v, err := l.lowerExpr(d.Operand, want)
		if err != nil {
			return value{}, err
		}
		lt := l.s.lirType(v.ty)
		switch {
		case tys.IsSigned(v.ty):
			return value{v: l.b.Bin(lir.BinSub, lir.ConstInt(lt, 0), v.v), ty: v.ty}, nil
		case tys.IsFloat(v.ty):
			return value{v: l.b.Bin(lir.BinFSub, lir.ConstFloat(lt, 0), v.v), ty: v.ty}, nil
		}
		return value{}, l.errorf(diag.LowTypeMismatch, e.Span, "cannot negate `%s`", l.typeName(v.ty))
	case ast.UnaryNot:
		v, err := l.lowerExpr(d.Operand, want)
		if err != nil {
			return value{}, err
		}
		switch {
		case v.ty == l.s.bt.Bool:
			return value{v: l.b.Not(v.v), ty: v.ty}, nil
		case tys.IsInteger(v.ty):
			return value{v: l.b.Bin(lir.BinXor, v.v, lir.ConstInt(l.s.lirType(v.ty), -1)), ty: v.ty}, nil
		}
		return value{}, l.errorf(diag.LowTypeMismatch, e.Span, "operator `!` is not defined for `%s`", l.typeName(v.ty))
	case ast.UnaryRef, ast.UnaryRefMut:
		p, err := l.lowerPlace(d.Operand)
		if err != nil {
			return value{}, err
		}
		mut := d.Op == ast.UnaryRefMut
		if mut && !p.mutable {
			return value{}, l.errorf(diag.LowNotAssignable, d.Operand.Span, "cannot borrow an immutable value as mutable")
		}
		return value{v: p.addr, ty: tys.Intern(types.MakeRef(p.ty, mut))}, nil
	case ast.UnaryDeref:
		p, err := l.lowerPlace(e)
		if err != nil {
			return value{}, err
		}
		return l.readPlace(p), nil
	}
	return value{}, l.errorf(diag.InputUnknownKind, e.Span, "unknown unary operator %d", d.Op)
}

func (l *funcLowerer) lowerBinary(e *ast.Expr, d ast.BinaryData, want types.TypeID) (value, error) {
	if d.Op.IsLogical() {
		return l.lowerLogical(d)
	}
	hint := want
	if d.Op.IsComparison() || (!l.s.tys.IsNumeric(want) && want != l.s.bt.String) {
		hint = types.NoTypeID
	}
	a, b, err := l.operands(d.Left, d.Right, hint)
	if err != nil {
		return value{}, err
	}
	if d.Op.IsComparison() {
		return l.compare(d.Op, a, b, e.Span)
	}
	return l.arith(d.Op, a, b, e.Span)
}

// operands lowers both sides of a binary operator. An untyped literal on
// the left takes the type of the right side, so the right is lowered first.
func (l *funcLowerer) operands(left, right *ast.Expr, want types.TypeID) (value, value, error) {
	if isUntypedLit(left) && !isUntypedLit(right) {
		b, err := l.lowerExpr(right, want)
		if err != nil {
			return value{}, value{}, err
		}
		a, err := l.lowerExpr(left, b.ty)
		if err != nil {
			return value{}, value{}, err
		}
		return a, b, nil
	}
	a, err := l.lowerExpr(left, want)
	if err != nil {
		return value{}, value{}, err
	}
	b, err := l.lowerExpr(right, a.ty)
	if err != nil {
		return value{}, value{}, err
	}
	return a, b, nil
}

func (l *funcLowerer) arith(op ast.BinaryOp, a, b value, span source.Span) (value, error) {
	tys := l.s.tys
	if a.ty != b.ty {
		return value{}, l.errorf(diag.LowTypeMismatch, span,
			"operands of `%s` have types `%s` and `%s`", op, l.typeName(a.ty), l.typeName(b.ty))
	}
	t := a.ty
	if t == l.s.bt.String && op == ast.BinAdd {
		return value{v: l.rt("rt_str_concat", a.v, b.v), ty: t, fresh: true}, nil
	}
	var (
		lop lir.BinOp
		ok  = true
	)
	switch {
	case tys.IsFloat(t):
		switch op {
		case ast.BinAdd:
			lop = lir.BinFAdd
		case ast.BinSub:
			lop = lir.BinFSub
		case ast.BinMul:
			lop = lir.BinFMul
		case ast.BinDiv:
			lop = lir.BinFDiv
		case ast.BinRem:
			lop = lir.BinFRem
		default:
			ok = false
		}
	case tys.IsInteger(t):
		signed := tys.IsSigned(t)
		switch op {
		case ast.BinAdd:
			lop = lir.BinAdd
		case ast.BinSub:
			lop = lir.BinSub
		case ast.BinMul:
			lop = lir.BinMul
		case ast.BinDiv:
			lop = pick(signed, lir.BinSDiv, lir.BinUDiv)
		case ast.BinRem:
			lop = pick(signed, lir.BinSRem, lir.BinURem)
		case ast.BinBitAnd:
			lop = lir.BinAnd
		case ast.BinBitOr:
			lop = lir.BinOr
		case ast.BinBitXor:
			lop = lir.BinXor
		case ast.BinShl:
			lop = lir.BinShl
		case ast.BinShr:
			lop = pick(signed, lir.BinAShr, lir.BinLShr)
		default:
			ok = false
		}
	case t == l.s.bt.Bool:
		switch op {
		case ast.BinBitAnd:
			lop = lir.BinAnd
		case ast.BinBitOr:
			lop = lir.BinOr
		case ast.BinBitXor:
			lop = lir.BinXor
		default:
			ok = false
		}
	default:
		ok = false
	}
	if !ok {
		return value{}, l.errorf(diag.LowTypeMismatch, span, "operator `%s` is not defined for `%s`", op, l.typeName(t))
	}
	return value{v: l.b.Bin(lop, a.v, b.v), ty: t}, nil
}

func pick[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

var (
	signedPreds   = [...]lir.CmpPred{lir.CmpEq, lir.CmpNe, lir.CmpSLt, lir.CmpSLe, lir.CmpSGt, lir.CmpSGe}
	unsignedPreds = [...]lir.CmpPred{lir.CmpEq, lir.CmpNe, lir.CmpULt, lir.CmpULe, lir.CmpUGt, lir.CmpUGe}
	floatPreds    = [...]lir.CmpPred{lir.CmpFEq, lir.CmpFNe, lir.CmpFLt, lir.CmpFLe, lir.CmpFGt, lir.CmpFGe}
)

// compare lowers a comparison. Operands of different types never compare.
func (l *funcLowerer) compare(op ast.BinaryOp, a, b value, span source.Span) (value, error) {
	tys := l.s.tys
	if a.ty != b.ty {
		return value{}, l.errorf(diag.LowIncompatibleCmp, span,
			"cannot compare `%s` with `%s`", l.typeName(a.ty), l.typeName(b.ty))
	}
	t := a.ty
	i := int(op - ast.BinEq)
	eqOnly := op == ast.BinEq || op == ast.BinNe
	bt := l.s.bt
	switch {
	case t == bt.String:
		if !eqOnly {
			break
		}
		eq := l.rt("rt_str_eq", a.v, b.v)
		if op == ast.BinNe {
			eq = l.b.Not(eq)
		}
		return value{v: eq, ty: bt.Bool}, nil
	case tys.IsFloat(t):
		return value{v: l.b.Cmp(floatPreds[i], a.v, b.v), ty: bt.Bool}, nil
	case tys.IsSigned(t):
		return value{v: l.b.Cmp(signedPreds[i], a.v, b.v), ty: bt.Bool}, nil
	case tys.IsInteger(t), t == bt.Char:
		return value{v: l.b.Cmp(unsignedPreds[i], a.v, b.v), ty: bt.Bool}, nil
	case t == bt.Bool:
		if eqOnly {
			return value{v: l.b.Cmp(signedPreds[i], a.v, b.v), ty: bt.Bool}, nil
		}
	}
	return value{}, l.errorf(diag.LowIncompatibleCmp, span, "operator `%s` is not defined for `%s`", op, l.typeName(t))
}

// lowerLogical short-circuits && and || through an i1 slot.
func (l *funcLowerer) lowerLogical(d ast.BinaryData) (value, error) {
	ts := l.s.mod.Types
	slot := l.b.Alloca(ts.I1)
	a, err := l.cond(d.Left)
	if err != nil {
		return value{}, err
	}
	l.b.Store(a, slot)
	rhs := l.b.NewBlock("logic.rhs")
	end := l.b.NewBlock("logic.end")
	if d.Op == ast.BinAnd {
		l.b.CondBr(a, rhs, end)
	} else {
		l.b.CondBr(a, end, rhs)
	}
	l.b.SetBlock(rhs)
	b, err := l.cond(d.Right)
	if err != nil {
		return value{}, err
	}
	l.b.Store(b, slot)
	l.b.Br(end)
	l.b.SetBlock(end)
	return value{v: l.b.Load(ts.I1, slot), ty: l.s.bt.Bool}, nil
}

// lowerCast converts between numeric types, bool and char. Narrowing
// truncates without a check.
func (l *funcLowerer) lowerCast(e *ast.Expr, d ast.CastData) (value, error) {
	to, err := l.resolveType(d.Target)
	if err != nil {
		return value{}, err
	}
	tys := l.s.tys
	hint := types.NoTypeID
	if tys.IsNumeric(to) {
		hint = to
	}
	v, err := l.lowerExpr(d.Value, hint)
	if err != nil {
		return value{}, err
	}
	from := v.ty
	if from == to {
		return v, nil
	}
	bt := l.s.bt
	lt := l.s.lirType(to)
	intLike := func(t types.TypeID) bool { return tys.IsInteger(t) || t == bt.Char }
	switch {
	case intLike(from) && intLike(to):
		return value{v: l.convInt(v.v, from, to), ty: to}, nil
	case from == bt.Bool && tys.IsInteger(to):
		return value{v: l.b.Cast(lir.CastZExt, v.v, lt), ty: to}, nil
	case tys.IsInteger(from) && tys.IsFloat(to):
		return value{v: l.b.Cast(pick(tys.IsSigned(from), lir.CastSIToFP, lir.CastUIToFP), v.v, lt), ty: to}, nil
	case tys.IsFloat(from) && tys.IsInteger(to):
		return value{v: l.b.Cast(pick(tys.IsSigned(to), lir.CastFPToSI, lir.CastFPToUI), v.v, lt), ty: to}, nil
	case tys.IsFloat(from) && tys.IsFloat(to):
		return l.coerce(v, to, e.Span)
	case tys.Kind(from) == types.KindRef && tys.Kind(to) == types.KindRef && tys.Elem(from) == tys.Elem(to):
		return value{v: v.v, ty: to}, nil
	}
	return value{}, l.errorf(diag.LowBadCast, e.Span, "cannot cast `%s` to `%s`", l.typeName(from), l.typeName(to))
}

// lowerIf joins both branches through a result slot. Without an else
// branch the if is a statement and has type unit.
func (l *funcLowerer) lowerIf(e *ast.Expr, d ast.IfData, want types.TypeID) (value, error) {
	c, err := l.cond(d.Cond)
	if err != nil {
		return value{}, err
	}
	thenB := l.b.NewBlock("if.then")
	elseB := l.b.NewBlock("if.else")
	merge := l.b.NewBlock("if.end")
	l.b.CondBr(c, thenB, elseB)

	j := joiner{l: l, want: want, merge: merge, valued: d.Else != nil}
	l.b.SetBlock(thenB)
	v, err := l.lowerBlock(d.Then, j.expect())
	if err != nil {
		return value{}, err
	}
	if err := j.arrive(v, e.Span); err != nil {
		return value{}, err
	}
	l.b.SetBlock(elseB)
	if d.Else != nil {
		v, err = l.lowerExpr(d.Else, j.expect())
		if err != nil {
			return value{}, err
		}
		if err := j.arrive(v, d.Else.Span); err != nil {
			return value{}, err
		}
	} else {
		_ = j.arrive(l.unit(), e.Span)
	}
	return j.finish(), nil
}

// joiner collects the values of branches flowing into one merge block.
type joiner struct {
	l      *funcLowerer
	want   types.TypeID
	merge  *lir.Block
	valued bool

	ty    types.TypeID
	slot  lir.Value
	preds int
	// borrowed is set once a branch hands over a value it does not own.
	borrowed bool
}

func (j *joiner) expect() types.TypeID {
	if j.ty != types.NoTypeID {
		return j.ty
	}
	return j.want
}

// arrive stores a branch value and jumps to the merge block. A branch
// that already left (return, break, panic) contributes nothing.
func (j *joiner) arrive(v value, span source.Span) error {
	l := j.l
	if l.b.Terminated() || l.s.tys.Kind(v.ty) == types.KindNever {
		if !l.b.Terminated() {
			l.b.Unreachable()
		}
		return nil
	}
	if !j.valued {
		l.releaseValue(v)
		l.b.Br(j.merge)
		j.preds++
		return nil
	}
	if j.ty == types.NoTypeID {
		j.ty = v.ty
		if j.want != types.NoTypeID {
			j.ty = j.want
		}
	}
	v, err := l.coerce(v, j.ty, span)
	if err != nil {
		return err
	}
	if !l.s.isVoid(j.ty) {
		if !j.slot.IsValid() {
			j.slot = l.b.Alloca(l.s.lirType(j.ty))
		}
		if !l.consume(v) {
			j.borrowed = true
		}
		l.storeInto(j.slot, v)
	}
	l.b.Br(j.merge)
	j.preds++
	return nil
}

func (j *joiner) finish() value {
	l := j.l
	l.b.SetBlock(j.merge)
	if j.preds == 0 {
		l.b.Unreachable()
		return l.never()
	}
	if !j.valued || j.ty == types.NoTypeID || l.s.isVoid(j.ty) {
		return l.unit()
	}
	v := l.read(j.slot, j.ty, nil)
	v.fresh = !j.borrowed
	return v
}

// lowerRangeValue builds a Range handle for a range used as a value.
func (l *funcLowerer) lowerRangeValue(e *ast.Expr, d ast.RangeData) (value, error) {
	lo, hi, err := l.rangeBounds(d)
	if err != nil {
		return value{}, err
	}
	t := l.s.mono.Container(types.BuiltinRange, []types.TypeID{lo.ty}, e.Span)
	if t == types.NoTypeID {
		return value{}, errLoweringAborted
	}
	incl := int64(0)
	if d.Inclusive {
		incl = 1
	}
	h := l.rt("rt_range_new", l.toI64(lo), l.toI64(hi), lir.ConstInt(l.s.mod.Types.I1, incl))
	return value{v: h, ty: t, fresh: true}, nil
}
