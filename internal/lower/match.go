package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/trace"
	"kiln/internal/types"
)

// subject is the storage a pattern is tested against.
type subject struct {
	addr lir.Value
	ty   types.TypeID
	root *binding
}

func (l *funcLowerer) subjectOf(p place) subject {
	p = l.derefRefs(p)
	return subject{addr: p.addr, ty: p.ty, root: p.root}
}

// lowerMatch compiles arms into a chain of check blocks. Each arm tests
// its pattern and guard and falls through to the next arm's checks on
// failure; bodies join through a shared result slot. The scrutinee is
// evaluated once.
func (l *funcLowerer) lowerMatch(e *ast.Expr, d ast.MatchData, want types.TypeID) (value, error) {
	span := trace.Begin(l.s.tracer, trace.ScopeNode, "match", l.span.ID())
	defer span.End("")

	if len(d.Arms) == 0 {
		return value{}, l.errorf(diag.LowUnsupported, e.Span, "match without arms")
	}
	sp, err := l.lowerPlace(d.Scrutinee)
	if err != nil {
		return value{}, err
	}
	subj := l.subjectOf(sp)

	merge := l.b.NewBlock("match.end")
	j := joiner{l: l, want: want, merge: merge, valued: true}
	next := l.b.NewBlock("match.arm")
	l.b.Br(next)
	covered := false
	for i, arm := range d.Arms {
		l.b.SetBlock(next)
		last := i == len(d.Arms)-1
		next = l.b.NewBlock(pick(last, "match.fail", "match.arm"))
		body := l.b.NewBlock("match.body")
		if last && arm.Guard == nil && l.catchAll(arm.Pattern, subj.ty) {
			covered = true
		} else if err := l.test(arm.Pattern, subj, next); err != nil {
			return value{}, err
		}
		l.b.Br(body)

		l.b.SetBlock(body)
		l.pushScope()
		if err := l.bind(arm.Pattern, subj); err != nil {
			return value{}, err
		}
		if arm.Guard != nil {
			g, err := l.cond(arm.Guard)
			if err != nil {
				return value{}, err
			}
			ok := l.b.NewBlock("match.guard")
			l.b.CondBr(g, ok, next)
			l.b.SetBlock(ok)
		}
		v, err := l.lowerExpr(arm.Body, j.expect())
		if err != nil {
			return value{}, err
		}
		l.popScope(&v)
		if err := j.arrive(v, arm.Body.Span); err != nil {
			return value{}, err
		}
	}

	// No arm matched.
	l.b.SetBlock(next)
	switch {
	case covered:
		l.b.Unreachable()
	case j.ty == types.NoTypeID || l.s.isVoid(j.ty):
		l.b.Br(merge)
		j.preds++
	default:
		l.rt("rt_panic", l.s.mod.String("no match arm matched"))
		l.b.Unreachable()
	}
	return j.finish(), nil
}

// catchAll reports patterns that match without any check: a wildcard or
// a name that binds.
func (l *funcLowerer) catchAll(p *ast.Pattern, t types.TypeID) bool {
	switch p.Kind {
	case ast.PatWildcard:
		return true
	case ast.PatIdent:
		return !l.isUnitCase(p.Name, t)
	}
	return false
}

// refutable reports patterns that can fail.
func (l *funcLowerer) refutable(p *ast.Pattern, t types.TypeID) bool {
	switch p.Kind {
	case ast.PatWildcard:
		return false
	case ast.PatIdent:
		return l.isUnitCase(p.Name, t)
	case ast.PatTuple:
		elems := l.s.tys.TupleElems(t)
		for i, el := range p.Elems {
			et := types.NoTypeID
			if i < len(elems) {
				et = elems[i]
			}
			if l.refutable(el, et) {
				return true
			}
		}
		return false
	case ast.PatRecord:
		def := l.s.defOf(t)
		for _, f := range p.Fields {
			ft := types.NoTypeID
			if def != nil {
				if i, ok := def.FieldIndex(f.Name); ok {
					ft = def.Fields[i].Type
				}
			}
			if l.refutable(fieldPat(f), ft) {
				return true
			}
		}
		return false
	}
	return true
}

// isUnitCase reports whether name is a payload-free case of t, making an
// identifier pattern a tag check rather than a binding.
func (l *funcLowerer) isUnitCase(name source.StringID, t types.TypeID) bool {
	if b, _ := l.s.builtinOf(t); b == types.BuiltinOption {
		return name == l.s.sym.none
	}
	def := l.s.defOf(t)
	if def == nil || def.Kind != registry.DefVariant {
		return false
	}
	i, ok := def.CaseIndex(name)
	return ok && def.Cases[i].Payload == types.NoTypeID
}

// branch continues in a new block when c holds and jumps to fail
// otherwise.
func (l *funcLowerer) branch(c lir.Value, fail *lir.Block) {
	next := l.b.NewBlock("match.then")
	l.b.CondBr(c, next, fail)
	l.b.SetBlock(next)
}

// test emits the checks of p against s. Control continues in the current
// block when they pass and reaches fail otherwise.
func (l *funcLowerer) test(p *ast.Pattern, s subject, fail *lir.Block) error {
	switch p.Kind {
	case ast.PatWildcard:
		return nil
	case ast.PatIdent:
		if l.isUnitCase(p.Name, s.ty) {
			return l.testCase(p, p.Name, nil, s, fail)
		}
		return nil
	case ast.PatLiteral:
		lit, err := l.lowerExpr(p.Value, s.ty)
		if err != nil {
			return err
		}
		c, err := l.compare(ast.BinEq, l.read(s.addr, s.ty, nil), lit, p.Span)
		if err != nil {
			return err
		}
		l.branch(c.v, fail)
		return nil
	case ast.PatRange:
		return l.testRange(p, s, fail)
	case ast.PatTuple:
		elems := l.s.tys.TupleElems(s.ty)
		if l.s.tys.Kind(s.ty) != types.KindTuple || len(elems) != len(p.Elems) {
			return l.errorf(diag.LowPatternArity, p.Span,
				"tuple pattern has %d elements, `%s` has %d", len(p.Elems), l.typeName(s.ty), len(elems))
		}
		st := l.s.lirType(s.ty)
		for i, el := range p.Elems {
			sub := subject{addr: l.b.FieldPtr(st, s.addr, i), ty: elems[i], root: s.root}
			if err := l.test(el, sub, fail); err != nil {
				return err
			}
		}
		return nil
	case ast.PatRecord:
		return l.fields(p, s, func(f ast.FieldPattern, sub subject) error {
			return l.test(fieldPat(f), sub, fail)
		})
	case ast.PatVariant:
		return l.testCase(p, p.Case, p.Inner, s, fail)
	case ast.PatAlt:
		return l.testAlt(p, s, fail)
	}
	return l.errorf(diag.InputUnknownKind, p.Span, "unknown pattern kind %s", p.Kind)
}

func (l *funcLowerer) testRange(p *ast.Pattern, s subject, fail *lir.Block) error {
	v := l.read(s.addr, s.ty, nil)
	lo, err := l.lowerExpr(p.Lo, s.ty)
	if err != nil {
		return err
	}
	hi, err := l.lowerExpr(p.Hi, s.ty)
	if err != nil {
		return err
	}
	ge, err := l.compare(ast.BinGe, v, lo, p.Span)
	if err != nil {
		return err
	}
	l.branch(ge.v, fail)
	le, err := l.compare(pick(p.Inclusive, ast.BinLe, ast.BinLt), v, hi, p.Span)
	if err != nil {
		return err
	}
	l.branch(le.v, fail)
	return nil
}

// testAlt tries each alternative in turn; the first that passes wins.
func (l *funcLowerer) testAlt(p *ast.Pattern, s subject, fail *lir.Block) error {
	for _, alt := range p.Elems {
		if span, ok := l.bindsName(alt, s.ty); ok {
			return l.errorf(diag.LowAltBinds, span, "alternatives may not bind names")
		}
	}
	ok := l.b.NewBlock("alt.ok")
	for i, alt := range p.Elems {
		last := i == len(p.Elems)-1
		altFail := fail
		if !last {
			altFail = l.b.NewBlock("alt.next")
		}
		if err := l.test(alt, s, altFail); err != nil {
			return err
		}
		l.b.Br(ok)
		if !last {
			l.b.SetBlock(altFail)
		}
	}
	l.b.SetBlock(ok)
	return nil
}

// bindsName finds the first binding inside p.
func (l *funcLowerer) bindsName(p *ast.Pattern, t types.TypeID) (source.Span, bool) {
	switch p.Kind {
	case ast.PatIdent:
		if t == types.NoTypeID {
			// nested subjects are untyped here; any case name is a check
			return p.Span, p.Name != l.s.sym.none && len(l.s.reg.CaseOwners(p.Name)) == 0
		}
		return p.Span, !l.isUnitCase(p.Name, t)
	case ast.PatTuple, ast.PatAlt:
		for _, el := range p.Elems {
			if sp, ok := l.bindsName(el, types.NoTypeID); ok {
				return sp, true
			}
		}
	case ast.PatRecord:
		for _, f := range p.Fields {
			if sp, ok := l.bindsName(fieldPat(f), types.NoTypeID); ok {
				return sp, true
			}
		}
	case ast.PatVariant:
		if p.Inner != nil {
			return l.bindsName(p.Inner, types.NoTypeID)
		}
	}
	return source.Span{}, false
}

// fieldPat expands the shorthand { x } into the binding x.
func fieldPat(f ast.FieldPattern) *ast.Pattern {
	if f.Pattern != nil {
		return f.Pattern
	}
	return &ast.Pattern{Kind: ast.PatIdent, Span: f.Span, Name: f.Name}
}

// fields visits the field patterns of a record pattern with the storage
// of each field.
func (l *funcLowerer) fields(p *ast.Pattern, s subject, visit func(ast.FieldPattern, subject) error) error {
	def := l.s.defOf(s.ty)
	if def == nil || def.Kind != registry.DefRecord {
		return l.errorf(diag.LowTypeMismatch, p.Span, "record pattern on a value of type `%s`", l.typeName(s.ty))
	}
	if p.Type != source.NoStringID && l.s.originName(def) != p.Type {
		return l.errorf(diag.LowTypeMismatch, p.Span,
			"pattern expects `%s`, the value has type `%s`", l.name(p.Type), l.typeName(s.ty))
	}
	if !p.Rest && len(p.Fields) < len(def.Fields) {
		return l.errorf(diag.LowPatternArity, p.Span,
			"pattern names %d of %d fields of `%s`; add `..` to ignore the rest",
			len(p.Fields), len(def.Fields), l.typeName(s.ty))
	}
	st := l.s.lirType(s.ty)
	for _, f := range p.Fields {
		i, ok := def.FieldIndex(f.Name)
		if !ok {
			return l.errorf(diag.ResUnknownField, f.Span, "record `%s` has no field `%s`", l.typeName(s.ty), l.name(f.Name))
		}
		sub := subject{addr: l.b.FieldPtr(st, s.addr, i), ty: def.Fields[i].Type, root: s.root}
		if err := visit(f, sub); err != nil {
			return err
		}
	}
	return nil
}

// caseInfo is a case of a subject's type. Option and Result keep their
// tag and payload behind the runtime.
type caseInfo struct {
	tag     int
	payload types.TypeID
	builtin types.Builtin
}

func (l *funcLowerer) caseOf(p *ast.Pattern, kase source.StringID, s subject) (caseInfo, error) {
	sym := l.s.sym
	b, args := l.s.builtinOf(s.ty)
	switch b {
	case types.BuiltinOption:
		switch kase {
		case sym.some:
			return caseInfo{tag: 1, payload: args[0], builtin: b}, nil
		case sym.none:
			return caseInfo{tag: 0, builtin: b}, nil
		}
		return caseInfo{}, l.errorf(diag.ResUnknownVariant, p.Span, "Option has no case `%s`", l.name(kase))
	case types.BuiltinResult:
		switch kase {
		case sym.ok:
			return caseInfo{tag: 1, payload: args[0], builtin: b}, nil
		case sym.err:
			return caseInfo{tag: 0, payload: args[1], builtin: b}, nil
		}
		return caseInfo{}, l.errorf(diag.ResUnknownVariant, p.Span, "Result has no case `%s`", l.name(kase))
	}
	def := l.s.defOf(s.ty)
	if def == nil || def.Kind != registry.DefVariant {
		return caseInfo{}, l.errorf(diag.LowTypeMismatch, p.Span,
			"case pattern `%s` on a value of type `%s`", l.name(kase), l.typeName(s.ty))
	}
	if p.Kind == ast.PatVariant && p.Type != source.NoStringID && l.s.originName(def) != p.Type {
		return caseInfo{}, l.errorf(diag.LowTypeMismatch, p.Span,
			"pattern expects `%s`, the value has type `%s`", l.name(p.Type), l.typeName(s.ty))
	}
	i, ok := def.CaseIndex(kase)
	if !ok {
		return caseInfo{}, l.errorf(diag.ResUnknownVariant, p.Span,
			"variant `%s` has no case `%s`", l.typeName(s.ty), l.name(kase))
	}
	return caseInfo{tag: def.Cases[i].Tag, payload: def.Cases[i].Payload}, nil
}

// payload returns the storage of a case's payload.
func (l *funcLowerer) payload(c caseInfo, s subject) subject {
	var addr lir.Value
	h := func() lir.Value { return l.b.Load(l.s.mod.Types.Ptr, s.addr) }
	switch c.builtin {
	case types.BuiltinOption:
		addr = l.rt("rt_option_get", h())
	case types.BuiltinResult:
		addr = l.rt(pick(c.tag == 1, "rt_result_value", "rt_result_error"), h())
	default:
		addr = l.b.FieldPtr(l.s.lirType(s.ty), s.addr, 1)
	}
	return subject{addr: addr, ty: c.payload, root: s.root}
}

func (l *funcLowerer) testCase(p *ast.Pattern, kase source.StringID, inner *ast.Pattern, s subject, fail *lir.Block) error {
	c, err := l.caseOf(p, kase, s)
	if err != nil {
		return err
	}
	if inner != nil && c.payload == types.NoTypeID {
		return l.errorf(diag.LowPatternArity, p.Span, "case `%s` carries no payload", l.name(kase))
	}
	var hit lir.Value
	switch c.builtin {
	case types.BuiltinOption:
		hit = l.rt("rt_option_is_some", l.b.Load(l.s.mod.Types.Ptr, s.addr))
		if c.tag == 0 {
			hit = l.b.Not(hit)
		}
	case types.BuiltinResult:
		hit = l.rt("rt_result_is_ok", l.b.Load(l.s.mod.Types.Ptr, s.addr))
		if c.tag == 0 {
			hit = l.b.Not(hit)
		}
	default:
		tag := l.b.Load(l.s.mod.Types.I32, l.b.FieldPtr(l.s.lirType(s.ty), s.addr, 0))
		hit = l.b.Cmp(lir.CmpEq, tag, l.i32(int64(c.tag)))
	}
	l.branch(hit, fail)
	if inner == nil {
		return nil
	}
	return l.test(inner, l.payload(c, s), fail)
}

// bind declares the names p binds, once its checks passed. Bindings are
// copies attributed to the binding the subject was read from, so moving
// one moves that binding; they never release anything themselves.
func (l *funcLowerer) bind(p *ast.Pattern, s subject) error {
	switch p.Kind {
	case ast.PatIdent:
		if l.isUnitCase(p.Name, s.ty) {
			return nil
		}
		b := l.declare(p.Name, s.ty, false)
		l.storeInto(b.slot, l.read(s.addr, s.ty, nil))
		b.alias = s.root
		return nil
	case ast.PatTuple:
		elems := l.s.tys.TupleElems(s.ty)
		if len(elems) != len(p.Elems) {
			return l.errorf(diag.LowPatternArity, p.Span,
				"tuple pattern has %d elements, `%s` has %d", len(p.Elems), l.typeName(s.ty), len(elems))
		}
		st := l.s.lirType(s.ty)
		for i, el := range p.Elems {
			if err := l.bind(el, subject{addr: l.b.FieldPtr(st, s.addr, i), ty: elems[i], root: s.root}); err != nil {
				return err
			}
		}
		return nil
	case ast.PatRecord:
		return l.fields(p, s, func(f ast.FieldPattern, sub subject) error {
			return l.bind(fieldPat(f), sub)
		})
	case ast.PatVariant:
		if p.Inner == nil {
			return nil
		}
		c, err := l.caseOf(p, p.Case, s)
		if err != nil {
			return err
		}
		return l.bind(p.Inner, l.payload(c, s))
	}
	return nil
}

// lowerLetPattern destructures v into the names of p. A refutable pattern
// that does not match panics.
func (l *funcLowerer) lowerLetPattern(p *ast.Pattern, v value) error {
	v = l.hidden(v)
	s := subject{addr: l.addrOf(v), ty: v.ty, root: v.root}
	if l.refutable(p, s.ty) {
		fail := l.b.NewBlock("let.fail")
		if err := l.test(p, s, fail); err != nil {
			return err
		}
		cont := l.b.Block()
		l.b.SetBlock(fail)
		l.rt("rt_panic", l.s.mod.String("pattern did not match"))
		l.b.Unreachable()
		l.b.SetBlock(cont)
	}
	return l.bind(p, s)
}
