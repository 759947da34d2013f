package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/mangle"
	"kiln/internal/types"
)

// lowerSpawn starts a task running a closure without parameters. The task
// takes a heap copy of the fn value along with its environment; a
// trampoline calls the closure, stores its result where join will read it
// and releases the environment.
func (l *funcLowerer) lowerSpawn(e *ast.Expr, d ast.SpawnData) (value, error) {
	var fv value
	switch cd := d.Value.Data.(type) {
	case ast.ClosureData:
		v, err := l.lowerClosure(d.Value, cd, types.NoTypeID)
		if err != nil {
			return value{}, err
		}
		fv = v
	case ast.IdentData:
		if b, bound := l.lookup(cd.Name); bound {
			fv = l.read(b.slot, b.ty, b.rootOf())
			if l.s.tys.Kind(fv.ty) != types.KindFn {
				return value{}, l.errorf(diag.ResNotCallable, d.Value.Span, "`%s` is not callable", l.typeName(fv.ty))
			}
			// The task frees the environment, so it has to own it.
			if l.tracked(fv.ty) && !l.consume(fv) {
				return value{}, l.errorf(diag.LowUnsupported, d.Value.Span,
					"spawn takes `%s` by move, but it is borrowed here", l.name(cd.Name))
			}
			break
		}
		f, ok := l.s.reg.Func(cd.Name)
		if !ok {
			return value{}, l.errorf(diag.ResUnknownFunc, d.Value.Span, "unknown function `%s`", l.name(cd.Name))
		}
		v, err := l.funcValue(f, d.Value.Span, types.NoTypeID)
		if err != nil {
			return value{}, err
		}
		fv = v
	default:
		return value{}, l.errorf(diag.LowUnsupported, d.Value.Span, "spawn needs a closure or a function name")
	}
	ps, result, _ := l.s.tys.FnSig(fv.ty)
	if len(ps) != 0 {
		return value{}, l.errorf(diag.LowArgCount, d.Value.Span, "a spawned closure takes no parameters")
	}
	taskT, err := l.container(types.BuiltinTask, e.Span, result)
	if err != nil {
		return value{}, err
	}
	ts := l.s.mod.Types
	pair := l.s.lirType(fv.ty)
	n := l.s.lirSize(pair)
	arg := l.rt("rt_alloc", l.i64(n), l.i64(l.s.lirAlign(pair)))
	l.rt("rt_memcpy", arg, fv.v, l.i64(n))
	tramp := l.s.trampoline(fv.ty, result)
	h := l.rt("rt_task_spawn", lir.FuncRef(ts.Ptr, tramp.Name), arg, l.size(result))
	return value{v: h, ty: taskT, fresh: true}, nil
}

// trampoline adapts a fn value of type fnT to the task entry signature
// void(ptr closure, ptr out).
func (s *Session) trampoline(fnT, result types.TypeID) *lir.Func {
	name := mangle.JoinRaw("$task", s.tys.Canonical(fnT))
	if f, ok := s.mod.Func(name); ok {
		return f
	}
	ts := s.mod.Types
	f := s.mod.NewFunc(name, lir.FuncGlue, ts.Void, []lir.Param{{Name: "fn", Type: ts.Ptr}, {Name: "out", Type: ts.Ptr}})
	b := lir.NewBuilder(s.mod)
	b.Start(f)
	pair := s.lirType(fnT)
	code := b.Load(ts.Ptr, b.FieldPtr(pair, f.Param(0), 0))
	env := b.Load(ts.Ptr, b.FieldPtr(pair, f.Param(0), 1))
	r := b.Call(code, ts.Func(s.resultType(result), ts.Ptr), env)
	if !s.isVoid(result) {
		b.Store(r, f.Param(1))
	}
	if glue := s.glueFunc(fnT); glue != nil && s.opt.ReleaseTracking {
		b.CallFunc(glue, f.Param(0))
	}
	b.RetVoid()
	return f
}

// joinTask waits for a task and takes its result.
func (l *funcLowerer) joinTask(h lir.Value, result types.TypeID) value {
	if l.s.isVoid(result) {
		l.rt("rt_task_join", h, l.null())
		return value{ty: result, fresh: true}
	}
	out := l.b.Alloca(l.s.lirType(result))
	l.rt("rt_task_join", h, out)
	v := l.read(out, result, nil)
	v.fresh = true
	return v
}

func (s *Session) lirSize(t lir.TypeID) int64 {
	n, err := s.lay.SizeOf(t)
	if err != nil {
		return 0
	}
	return int64(n)
}

func (s *Session) lirAlign(t lir.TypeID) int64 {
	n, err := s.lay.AlignOf(t)
	if err != nil || n == 0 {
		return 1
	}
	return int64(n)
}
