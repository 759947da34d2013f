package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/mangle"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/trace"
	"kiln/internal/types"
)

// capture is an enclosing local a closure body reads.
type capture struct {
	name source.StringID
	b    *binding
}

// closureEnv describes the environment record built for one closure.
type closureEnv struct {
	typ  lir.TypeID
	ptr  lir.Value
	caps []capture
}

// lowerClosure lowers a closure expression into a function of its own taking
// the environment pointer first, and returns the fn value {code, env}.
// Every evaluation copies the captures, in discovery order, into a new
// heap environment owned by the fn value.
func (l *funcLowerer) lowerClosure(e *ast.Expr, d ast.ClosureData, want types.TypeID) (value, error) {
	span := trace.Begin(l.s.tracer, trace.ScopeNode, "closure", l.span.ID())
	defer span.End("")

	tys := l.s.tys
	var wantParams []types.TypeID
	wantResult := types.NoTypeID
	if ps, r, ok := tys.FnSig(want); ok && len(ps) == len(d.Params) {
		wantParams, wantResult = ps, r
	}
	params := make([]types.TypeID, len(d.Params))
	names := make([]string, len(d.Params))
	for i, p := range d.Params {
		names[i] = l.name(p.Name)
		switch {
		case p.Type != nil:
			t, err := l.resolveType(p.Type)
			if err != nil {
				return value{}, err
			}
			params[i] = t
		case wantParams != nil:
			params[i] = wantParams[i]
		default:
			return value{}, l.errorf(diag.LowClosureParam, p.Span,
				"cannot infer the type of closure parameter `%s`", l.name(p.Name))
		}
	}
	result := wantResult
	if d.Result != nil {
		t, err := l.resolveType(d.Result)
		if err != nil {
			return value{}, err
		}
		result = t
	}

	caps := l.freeVars(d)
	n := l.s.closures[l.sig.name]
	l.s.closures[l.sig.name] = n + 1
	ts := l.s.mod.Types
	env := closureEnv{caps: caps}
	if len(caps) > 0 {
		env.typ = ts.Named(mangle.Env(l.sig.name, n))
		fields := make([]lir.TypeID, len(caps))
		for i, c := range caps {
			fields[i] = l.s.lirType(c.b.ty)
		}
		ts.SetBody(env.typ, fields...)
	}

	declared := result
	if declared == types.NoTypeID {
		declared = l.s.bt.Unit
	}
	sig := l.s.declare(mangle.Closure(l.sig.name, n), lir.FuncClosure, e.Span,
		types.NoTypeID, ast.SelfNone, names, params, declared, true)
	inner := newFuncLowerer(l.s, sig, l.env)
	inner.span = span
	inner.resultKnown = result != types.NoTypeID
	if err := inner.closureBody(d, env); err != nil {
		sig.fn.Reset()
		b := lir.NewBuilder(l.s.mod)
		b.Start(sig.fn)
		b.Unreachable()
		return value{}, err
	}

	env.ptr = l.null()
	if len(caps) > 0 {
		env.ptr = l.rt("rt_alloc", l.i64(l.s.lirSize(env.typ)), l.i64(l.s.lirAlign(env.typ)))
		for i, c := range caps {
			l.storeInto(l.b.FieldPtr(env.typ, env.ptr, i), l.read(c.b.slot, c.b.ty, nil))
		}
	}
	fnT := tys.Fn(params, sig.result)
	return l.fnValue(fnT, sig.name, env.ptr), nil
}

// fnValue stores a new {code, env} pair.
func (l *funcLowerer) fnValue(fnT types.TypeID, code string, env lir.Value) value {
	st := l.s.lirType(fnT)
	slot := l.b.Alloca(st)
	l.b.Store(lir.FuncRef(l.s.mod.Types.Ptr, code), l.b.FieldPtr(st, slot, 0))
	l.b.Store(env, l.b.FieldPtr(st, slot, 1))
	return value{v: slot, ty: fnT, fresh: true}
}

// closureBody reloads the captures as locals the closure does not own,
// binds the parameters and lowers the body expression.
func (l *funcLowerer) closureBody(d ast.ClosureData, env closureEnv) error {
	sig := l.sig
	l.b.Start(sig.fn)
	l.pushScope()
	envPtr := sig.fn.Param(0)
	for i, c := range env.caps {
		b := l.declare(c.name, c.b.ty, false)
		l.storeInto(b.slot, l.read(l.b.FieldPtr(env.typ, envPtr, i), c.b.ty, nil))
	}
	for i, p := range d.Params {
		b := l.declare(p.Name, sig.params[i], true)
		l.b.Store(sig.fn.Param(1+i), b.slot)
		b.owned = true
	}
	want := sig.result
	if !l.resultKnown {
		want = types.NoTypeID
	}
	v, err := l.lowerExpr(d.Body, want)
	if err != nil {
		return err
	}
	if l.b.Terminated() {
		if !l.resultKnown {
			l.setResult(l.s.bt.Unit)
		}
		return nil
	}
	return l.emitReturn(v, true, d.Body.Span)
}

// funcValue turns a named function into a fn value. The code pointer is a
// thunk with the closure calling convention; the environment is null.
func (l *funcLowerer) funcValue(f *registry.Func, span source.Span, want types.TypeID) (value, error) {
	var target *funcSig
	if f.Generic {
		ps, r, ok := l.s.tys.FnSig(want)
		if !ok {
			return value{}, l.errorf(diag.MonoCannotInfer, span,
				"cannot infer the type arguments of `%s` used as a value", l.name(f.Name))
		}
		written := make([]*ast.TypeExpr, 0, len(f.Decl.Params)+1)
		for _, p := range f.Decl.Params {
			written = append(written, p.Type)
		}
		written = append(written, f.Decl.Result)
		targs, ok := l.s.mono.InferTypeArgs(l.name(f.Name), f.Decl.TypeParams, written, append(append([]types.TypeID{}, ps...), r), span)
		if !ok {
			return value{}, errLoweringAborted
		}
		name, ok := l.s.mono.InstantiateFunction(f, targs, span)
		if !ok {
			return value{}, errLoweringAborted
		}
		if target, ok = l.s.sigs[name]; !ok {
			return value{}, errLoweringAborted
		}
	} else {
		var ok bool
		if target, ok = l.s.declareFunc(f); !ok {
			return value{}, errLoweringAborted
		}
	}
	th := l.s.thunk(target)
	return l.fnValue(l.s.tys.Fn(target.params, target.result), th.name, l.null()), nil
}

// thunk wraps a plain function in the closure calling convention.
func (s *Session) thunk(target *funcSig) *funcSig {
	name := mangle.JoinRaw("$thunk", target.name)
	if sig, ok := s.sigs[name]; ok {
		return sig
	}
	sig := s.declare(name, lir.FuncClosure, target.fn.Span, types.NoTypeID, ast.SelfNone, nil, target.params, target.result, true)
	b := lir.NewBuilder(s.mod)
	b.Start(sig.fn)
	args := make([]lir.Value, len(target.params))
	for i := range args {
		args[i] = sig.fn.Param(1 + i)
	}
	r := b.CallFunc(target.fn, args...)
	if s.isVoid(target.result) {
		b.RetVoid()
	} else {
		b.Ret(r)
	}
	return sig
}

// freeVars lists the enclosing locals a closure body reads, in the order
// they are first met.
func (l *funcLowerer) freeVars(d ast.ClosureData) []capture {
	w := &fvWalker{l: l, seen: make(map[source.StringID]bool)}
	w.push()
	for _, p := range d.Params {
		w.bindName(p.Name)
	}
	w.expr(d.Body)
	return w.out
}

type fvWalker struct {
	l     *funcLowerer
	bound []map[source.StringID]bool
	seen  map[source.StringID]bool
	out   []capture
}

func (w *fvWalker) push() { w.bound = append(w.bound, make(map[source.StringID]bool)) }
func (w *fvWalker) pop()  { w.bound = w.bound[:len(w.bound)-1] }

func (w *fvWalker) bindName(name source.StringID) {
	w.bound[len(w.bound)-1][name] = true
}

func (w *fvWalker) use(name source.StringID) {
	for i := len(w.bound) - 1; i >= 0; i-- {
		if w.bound[i][name] {
			return
		}
	}
	if w.seen[name] {
		return
	}
	if b, ok := w.l.lookup(name); ok {
		w.seen[name] = true
		w.out = append(w.out, capture{name: name, b: b})
	}
}

func (w *fvWalker) exprs(es []*ast.Expr) {
	for _, e := range es {
		w.expr(e)
	}
}

func (w *fvWalker) expr(e *ast.Expr) {
	if e == nil {
		return
	}
	switch d := e.Data.(type) {
	case ast.IdentData:
		w.use(d.Name)
	case ast.UnaryData:
		w.expr(d.Operand)
	case ast.BinaryData:
		w.expr(d.Left)
		w.expr(d.Right)
	case ast.CallData:
		w.expr(d.Callee)
		w.exprs(d.Args)
	case ast.MethodCallData:
		w.expr(d.Receiver)
		w.exprs(d.Args)
	case ast.FieldData:
		w.expr(d.Target)
	case ast.TupleIndexData:
		w.expr(d.Target)
	case ast.IndexData:
		w.expr(d.Target)
		w.expr(d.Index)
	case ast.RecordLitData:
		for _, f := range d.Fields {
			w.expr(f.Value)
		}
	case ast.TupleLitData:
		w.exprs(d.Elems)
	case ast.ArrayLitData:
		w.exprs(d.Elems)
	case ast.ArrayRepeatData:
		w.expr(d.Value)
	case ast.MapLitData:
		for _, en := range d.Entries {
			w.expr(en.Key)
			w.expr(en.Value)
		}
	case ast.MatchData:
		w.expr(d.Scrutinee)
		for _, arm := range d.Arms {
			w.push()
			w.pattern(arm.Pattern)
			w.expr(arm.Guard)
			w.expr(arm.Body)
			w.pop()
		}
	case ast.CastData:
		w.expr(d.Value)
	case ast.ClosureData:
		w.push()
		for _, p := range d.Params {
			w.bindName(p.Name)
		}
		w.expr(d.Body)
		w.pop()
	case ast.IfData:
		w.expr(d.Cond)
		w.block(d.Then)
		w.expr(d.Else)
	case ast.BlockData:
		w.block(d.Block)
	case ast.RangeData:
		w.expr(d.Start)
		w.expr(d.End)
	case ast.SpawnData:
		w.expr(d.Value)
	}
}

func (w *fvWalker) block(b *ast.Block) {
	if b == nil {
		return
	}
	w.push()
	for _, st := range b.Stmts {
		w.stmt(st)
	}
	w.expr(b.Tail)
	w.pop()
}

func (w *fvWalker) stmt(st *ast.Stmt) {
	switch d := st.Data.(type) {
	case ast.LetData:
		w.expr(d.Value)
		if d.Pattern != nil {
			w.pattern(d.Pattern)
		} else {
			w.bindName(d.Name)
		}
	case ast.ExprStmtData:
		w.expr(d.Expr)
	case ast.AssignData:
		w.expr(d.Target)
		w.expr(d.Value)
	case ast.ReturnData:
		w.expr(d.Value)
	case ast.WhileData:
		w.expr(d.Cond)
		w.block(d.Body)
	case ast.LoopData:
		w.block(d.Body)
	case ast.ForData:
		w.expr(d.Iter)
		w.push()
		w.bindName(d.Var)
		w.block(d.Body)
		w.pop()
	}
}

// pattern binds the names p introduces. Literal and range bounds are
// expressions and may read locals.
func (w *fvWalker) pattern(p *ast.Pattern) {
	if p == nil {
		return
	}
	switch p.Kind {
	case ast.PatIdent:
		w.bindName(p.Name)
	case ast.PatLiteral:
		w.expr(p.Value)
	case ast.PatRange:
		w.expr(p.Lo)
		w.expr(p.Hi)
	case ast.PatTuple, ast.PatAlt:
		for _, el := range p.Elems {
			w.pattern(el)
		}
	case ast.PatRecord:
		for _, f := range p.Fields {
			w.pattern(fieldPat(f))
		}
	case ast.PatVariant:
		w.pattern(p.Inner)
	}
}
