package lower

import (
	"kiln/internal/ast"
	"kiln/internal/lir"
	"kiln/internal/mangle"
	"kiln/internal/registry"
	"kiln/internal/types"
)

// needsDrop reports types whose values own resources: container handles,
// fn values (their environment), records implementing Drop, and anything
// holding one of those. Strings are runtime-managed and never released
// here.
func (s *Session) needsDrop(t types.TypeID) bool {
	if v, ok := s.drops[t]; ok {
		return v
	}
	// A type reaching itself without a handle in between is rejected by
	// the cycle check; the provisional false only ends the recursion.
	s.drops[t] = false
	tt, _ := s.tys.Lookup(t)
	v := false
	switch tt.Kind {
	case types.KindBuiltin, types.KindFn:
		v = true
	case types.KindRecord:
		v = s.dropImpl(t) != nil
		if d := s.defOf(t); d != nil {
			for _, f := range d.Fields {
				v = v || s.needsDrop(f.Type)
			}
		}
	case types.KindVariant:
		v = s.dropImpl(t) != nil
		if d := s.defOf(t); d != nil {
			for _, c := range d.Cases {
				v = v || (c.Payload != types.NoTypeID && s.needsDrop(c.Payload))
			}
		}
	case types.KindTuple:
		for _, e := range s.tys.TupleElems(t) {
			v = v || s.needsDrop(e)
		}
	case types.KindArray:
		v = tt.Count > 0 && s.needsDrop(tt.Elem)
	}
	s.drops[t] = v
	return v
}

// dropImpl finds the Drop.drop method of t.
func (s *Session) dropImpl(t types.TypeID) *registry.Method {
	ms := s.reg.MethodSet(s.tys.Canonical(t))
	if ms == nil || !ms.Implements(s.sym.dropTrait) {
		return nil
	}
	for _, m := range ms.Methods {
		if s.isDropMethod(m) {
			return m
		}
	}
	return nil
}

// glueFunc returns the release glue of t, building it on first use, or
// nil when t owns nothing. Glue takes the address of a value and releases
// what it owns: the Drop body first, then the parts in reverse order.
func (s *Session) glueFunc(t types.TypeID) *lir.Func {
	if !s.needsDrop(t) {
		return nil
	}
	if name, ok := s.glue[t]; ok {
		f, _ := s.mod.Func(name)
		return f
	}
	name := mangle.DropGlue(s.tys.Canonical(t))
	s.glue[t] = name
	ts := s.mod.Types
	f := s.mod.NewFunc(name, lir.FuncGlue, ts.Void, []lir.Param{{Name: "p", Type: ts.Ptr}})
	g := glueBuilder{s: s, b: lir.NewBuilder(s.mod)}
	g.b.Start(f)
	g.build(t, f.Param(0))
	g.b.RetVoid()
	return f
}

// glueRef is the glue of t as a function pointer, or null.
func (s *Session) glueRef(t types.TypeID) lir.Value {
	if f := s.glueFunc(t); f != nil {
		return lir.FuncRef(s.mod.Types.Ptr, f.Name)
	}
	return lir.Null(s.mod.Types.Ptr)
}

func (l *funcLowerer) glueRef(t types.TypeID) lir.Value {
	return l.s.glueRef(t)
}

type glueBuilder struct {
	s *Session
	b *lir.Builder
}

func (g glueBuilder) build(t types.TypeID, p lir.Value) {
	s := g.s
	tt, _ := s.tys.Lookup(t)
	switch tt.Kind {
	case types.KindRecord:
		g.callDrop(t, p)
		d := s.defOf(t)
		if d == nil {
			return
		}
		st := s.lirType(t)
		for i := len(d.Fields) - 1; i >= 0; i-- {
			g.release(d.Fields[i].Type, func() lir.Value { return g.b.FieldPtr(st, p, i) })
		}
	case types.KindVariant:
		g.callDrop(t, p)
		g.variant(t, p)
	case types.KindTuple:
		st := s.lirType(t)
		elems := s.tys.TupleElems(t)
		for i := len(elems) - 1; i >= 0; i-- {
			g.release(elems[i], func() lir.Value { return g.b.FieldPtr(st, p, i) })
		}
	case types.KindArray:
		g.array(tt, p)
	case types.KindBuiltin:
		g.container(t, p)
	case types.KindFn:
		g.env(t, p)
	}
}

// env frees the environment of a fn value. Captures in it are copies the
// closure borrows, so nothing inside is released.
func (g glueBuilder) env(t types.TypeID, p lir.Value) {
	s := g.s
	env := g.b.Load(s.mod.Types.Ptr, g.b.FieldPtr(s.lirType(t), p, 1))
	s.rtCall(g.b, "rt_free", env)
}

// release calls the glue of t on the address at(), if t needs any.
func (g glueBuilder) release(t types.TypeID, at func() lir.Value) {
	if f := g.s.glueFunc(t); f != nil {
		g.b.CallFunc(f, at())
	}
}

func (g glueBuilder) callDrop(t types.TypeID, p lir.Value) {
	m := g.s.dropImpl(t)
	if m == nil {
		return
	}
	sig, ok := g.s.ensureMethod(m)
	if !ok {
		return
	}
	if m.Decl.Self == ast.SelfValue {
		g.b.CallFunc(sig.fn, g.b.Load(g.s.lirType(t), p))
		return
	}
	g.b.CallFunc(sig.fn, p)
}

// variant switches on the tag and releases the payload of the live case.
func (g glueBuilder) variant(t types.TypeID, p lir.Value) {
	s := g.s
	d := s.defOf(t)
	if d == nil {
		return
	}
	st := s.lirType(t)
	done := g.b.NewBlock("drop.done")
	var cases []lir.SwitchCase
	var blocks []*lir.Block
	var payloads []types.TypeID
	for _, c := range d.Cases {
		if c.Payload == types.NoTypeID || !s.needsDrop(c.Payload) {
			continue
		}
		bl := g.b.NewBlock("drop.case")
		cases = append(cases, lir.SwitchCase{Value: int64(c.Tag), Target: bl.ID})
		blocks = append(blocks, bl)
		payloads = append(payloads, c.Payload)
	}
	if len(cases) == 0 {
		g.b.Br(done)
		g.b.SetBlock(done)
		return
	}
	tag := g.b.Load(s.mod.Types.I32, g.b.FieldPtr(st, p, 0))
	g.b.Switch(tag, cases, done)
	for i, bl := range blocks {
		g.b.SetBlock(bl)
		g.release(payloads[i], func() lir.Value { return g.b.FieldPtr(st, p, 1) })
		g.b.Br(done)
	}
	g.b.SetBlock(done)
}

// array releases the elements from last to first.
func (g glueBuilder) array(tt types.Type, p lir.Value) {
	s := g.s
	f := s.glueFunc(tt.Elem)
	if f == nil || tt.Count == 0 {
		return
	}
	ts := s.mod.Types
	et := s.lirType(tt.Elem)
	idx := g.b.Alloca(ts.I64)
	g.b.Store(lir.ConstInt(ts.I64, int64(tt.Count)), idx)
	head := g.b.NewBlock("drop.head")
	body := g.b.NewBlock("drop.elem")
	done := g.b.NewBlock("drop.done")
	g.b.Br(head)
	g.b.SetBlock(head)
	i := g.b.Load(ts.I64, idx)
	g.b.CondBr(g.b.Cmp(lir.CmpSGt, i, lir.ConstInt(ts.I64, 0)), body, done)
	g.b.SetBlock(body)
	j := g.b.Bin(lir.BinSub, i, lir.ConstInt(ts.I64, 1))
	g.b.Store(j, idx)
	g.b.CallFunc(f, g.b.ElemPtr(et, p, j))
	g.b.Br(head)
	g.b.SetBlock(done)
}

// container frees a handle, passing the glue of its elements so the
// runtime can release what it still holds.
func (g glueBuilder) container(t types.TypeID, p lir.Value) {
	s := g.s
	b, args := s.tys.ContainerArgs(t)
	h := g.b.Load(s.mod.Types.Ptr, p)
	nul := lir.Null(s.mod.Types.Ptr)
	switch b {
	case types.BuiltinVec:
		s.rtCall(g.b, "rt_vec_free", h, s.glueRef(args[0]))
	case types.BuiltinBox:
		s.rtCall(g.b, "rt_box_free", h, s.glueRef(args[0]))
	case types.BuiltinOption:
		s.rtCall(g.b, "rt_option_free", h, s.glueRef(args[0]))
	case types.BuiltinResult:
		s.rtCall(g.b, "rt_result_free", h, s.glueRef(args[0]), s.glueRef(args[1]))
	case types.BuiltinMap:
		s.rtCall(g.b, "rt_map_free", h, s.glueRef(args[0]), s.glueRef(args[1]))
	case types.BuiltinSet:
		s.rtCall(g.b, "rt_set_free", h, s.glueRef(args[0]))
	case types.BuiltinChan:
		s.rtCall(g.b, "rt_chan_free", h, s.glueRef(args[0]))
	case types.BuiltinTask:
		s.rtCall(g.b, "rt_task_free", h, s.glueRef(args[0]))
	case types.BuiltinRange:
		s.rtCall(g.b, "rt_range_free", h, nul)
	}
}
