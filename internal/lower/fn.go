package lower

import (
	"fmt"

	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/mono"
	"kiln/internal/source"
	"kiln/internal/trace"
	"kiln/internal/types"
)

// funcLowerer holds the state of one function body: its builder, scopes,
// loop targets and type environment. Nothing here outlives the body.
type funcLowerer struct {
	s    *Session
	b    *lir.Builder
	sig  *funcSig
	env  mono.Env
	span *trace.Span

	scopes []*scope
	loops  []loopFrame

	// resultKnown is false while an unannotated closure has not yet
	// produced its first value.
	resultKnown bool
}

func newFuncLowerer(s *Session, sig *funcSig, env mono.Env) *funcLowerer {
	return &funcLowerer{
		s:           s,
		b:           lir.NewBuilder(s.mod),
		sig:         sig,
		env:         env,
		resultKnown: true,
	}
}

func (l *funcLowerer) errorf(code diag.Code, span source.Span, format string, args ...any) error {
	diag.ReportError(l.s.rep, code, span, fmt.Sprintf(format, args...)).Emit()
	return errLoweringAborted
}

func (l *funcLowerer) name(id source.StringID) string {
	return l.s.name(id)
}

func (l *funcLowerer) typeName(t types.TypeID) string {
	return l.s.typeName(t)
}

// resolveType resolves a written type in the environment of the body.
func (l *funcLowerer) resolveType(te *ast.TypeExpr) (types.TypeID, error) {
	t := l.s.mono.ResolveType(te, l.env)
	if t == types.NoTypeID {
		return t, errLoweringAborted
	}
	return t, nil
}

// lowerFunc binds the receiver and parameters and lowers the body.
func (l *funcLowerer) lowerFunc(decl *ast.FnDecl) error {
	sig := l.sig
	l.b.Start(sig.fn)
	l.pushScope()
	idx := 0
	if sig.env {
		idx++
	}
	if sig.recv != types.NoTypeID {
		l.bindReceiver(sig.fn.Param(idx))
		idx++
	}
	for i, p := range decl.Params {
		b := l.declare(p.Name, sig.params[i], true)
		l.b.Store(sig.fn.Param(idx+i), b.slot)
		b.owned = true
	}
	return l.finishBody(decl.Body)
}

// bindReceiver binds self. A by-value receiver is a local owned by the
// method; by-reference receivers use the caller's storage directly.
func (l *funcLowerer) bindReceiver(param lir.Value) {
	sig := l.sig
	if sig.self == ast.SelfValue {
		b := l.declare(l.s.sym.self, sig.recv, true)
		l.b.Store(param, b.slot)
		b.owned = !sig.dropImpl
		return
	}
	l.bindSlot(l.s.sym.self, param, sig.recv, sig.self == ast.SelfMut)
}

// finishBody lowers the outer block and returns its value.
func (l *funcLowerer) finishBody(body *ast.Block) error {
	want := l.sig.result
	if !l.resultKnown {
		want = types.NoTypeID
	}
	v, err := l.lowerBlock(body, want)
	if err != nil {
		return err
	}
	if l.b.Terminated() {
		if !l.resultKnown {
			l.setResult(l.s.bt.Unit)
		}
		return nil
	}
	span := body.Span
	if body.Tail != nil {
		span = body.Tail.Span
	}
	return l.emitReturn(v, body.Tail != nil, span)
}

// setResult fixes the result type of a closure whose result was left to
// inference.
func (l *funcLowerer) setResult(t types.TypeID) {
	l.sig.result = t
	l.sig.fn.Result = l.s.resultType(t)
	l.resultKnown = true
}

// emitReturn releases every open scope and returns v.
func (l *funcLowerer) emitReturn(v value, hasValue bool, span source.Span) error {
	if !l.resultKnown {
		l.setResult(v.ty)
	}
	result := l.sig.result
	if l.s.isVoid(result) {
		if hasValue && !l.s.isVoid(v.ty) {
			return l.errorf(diag.LowTypeMismatch, span,
				"function returns nothing but the value has type `%s`", l.typeName(v.ty))
		}
		l.releaseValue(v)
		l.releaseFrom(0)
		l.b.RetVoid()
		return nil
	}
	if !hasValue || l.s.isVoid(v.ty) {
		return l.errorf(diag.LowMissingValue, span,
			"`%s` must return a value of type `%s`", l.sig.name, l.typeName(result))
	}
	v, err := l.coerce(v, result, span)
	if err != nil {
		return err
	}
	l.consume(v)
	op := l.operand(v)
	l.releaseFrom(0)
	l.b.Ret(op)
	return nil
}

// coerce converts v to want. Integers widen by sign or zero extension and
// narrow by truncation; floats change precision; &mut T passes as &T and
// arrays pass as slices. Anything else is a mismatch.
func (l *funcLowerer) coerce(v value, want types.TypeID, span source.Span) (value, error) {
	tys := l.s.tys
	if want == types.NoTypeID || v.ty == want || tys.Kind(v.ty) == types.KindNever {
		return v, nil
	}
	switch {
	case tys.IsInteger(v.ty) && tys.IsInteger(want):
		return value{v: l.convInt(v.v, v.ty, want), ty: want, fresh: v.fresh}, nil
	case tys.IsFloat(v.ty) && tys.IsFloat(want):
		op := lir.CastFPExt
		if tys.WidthOf(want) < tys.WidthOf(v.ty) {
			op = lir.CastFPTrunc
		}
		return value{v: l.b.Cast(op, v.v, l.s.lirType(want)), ty: want}, nil
	case tys.Kind(v.ty) == types.KindRef && tys.Kind(want) == types.KindRef && tys.Elem(v.ty) == tys.Elem(want):
		return value{v: v.v, ty: want}, nil
	case tys.Kind(want) == types.KindSlice:
		if sl, ok := l.asSlice(v, want); ok {
			return sl, nil
		}
	}
	return value{}, l.errorf(diag.LowTypeMismatch, span,
		"expected `%s`, found `%s`", l.typeName(want), l.typeName(v.ty))
}

// asSlice views an array, or a reference to one, as a slice.
func (l *funcLowerer) asSlice(v value, want types.TypeID) (value, bool) {
	tys := l.s.tys
	arr := v.ty
	addr := v.v
	if tys.Kind(arr) == types.KindRef {
		arr = tys.Elem(arr)
	}
	tt, _ := tys.Lookup(arr)
	if tt.Kind != types.KindArray || tt.Elem != tys.Elem(want) {
		return value{}, false
	}
	st := l.s.lirType(want)
	slot := l.b.Alloca(st)
	l.b.Store(addr, l.b.FieldPtr(st, slot, 0))
	l.b.Store(l.i64(int64(tt.Count)), l.b.FieldPtr(st, slot, 1))
	return value{v: slot, ty: want}, true
}

// convInt converts between integer types of any width and signedness.
func (l *funcLowerer) convInt(v lir.Value, from, to types.TypeID) lir.Value {
	tys := l.s.tys
	fw, tw := tys.WidthOf(from), tys.WidthOf(to)
	lt := l.s.lirType(to)
	switch {
	case fw == tw:
		return l.retype(v, lt)
	case fw < tw && tys.IsSigned(from):
		return l.b.Cast(lir.CastSExt, v, lt)
	case fw < tw:
		return l.b.Cast(lir.CastZExt, v, lt)
	}
	return l.b.Cast(lir.CastTrunc, v, lt)
}

// retype relabels a constant with a same-width type; registers already
// carry that width.
func (l *funcLowerer) retype(v lir.Value, lt lir.TypeID) lir.Value {
	if v.Kind == lir.VInt {
		return lir.ConstInt(lt, v.Int)
	}
	return v
}

// toI64 widens an integer value for runtime calls.
func (l *funcLowerer) toI64(v value) lir.Value {
	if l.s.tys.WidthOf(v.ty) == types.Width64 {
		return l.retype(v.v, l.s.mod.Types.I64)
	}
	return l.convInt(v.v, v.ty, l.s.bt.I64)
}

// warnDead reports the first statement after a terminator.
func (l *funcLowerer) warnDead(span source.Span) {
	diag.ReportWarning(l.s.rep, diag.WarnUnreachable, span, "unreachable statement").Emit()
}
