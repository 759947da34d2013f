package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/types"
)

// lowerCall lowers f(args). A callee naming a local is an indirect call
// through a fn value; otherwise the name resolves, in order, to a free
// function, a variant case and finally a builtin function.
func (l *funcLowerer) lowerCall(e *ast.Expr, d ast.CallData, want types.TypeID) (value, error) {
	id, isIdent := d.Callee.Data.(ast.IdentData)
	if !isIdent {
		fv, err := l.lowerExpr(d.Callee, types.NoTypeID)
		if err != nil {
			return value{}, err
		}
		return l.callValue(e, fv, d.Args)
	}
	if b, ok := l.lookup(id.Name); ok {
		return l.callValue(e, l.read(b.slot, b.ty, b.rootOf()), d.Args)
	}
	if f, ok := l.s.reg.Func(id.Name); ok {
		return l.callFunc(e, f, d, want)
	}
	if owners := l.s.reg.CaseOwners(id.Name); len(owners) > 0 {
		def, err := l.caseOwner(e.Span, id.Name, owners, want)
		if err != nil {
			return value{}, err
		}
		return l.constructCase(e, def, id.Name, d.TypeArgs, d.Args, want)
	}
	if v, ok, err := l.builtinCall(e, id.Name, d.Args, want); ok {
		return v, err
	}
	return value{}, l.errorf(diag.ResUnknownFunc, d.Callee.Span, "unknown function `%s`", l.name(id.Name))
}

// callValue calls through a fn value: the code pointer gets the
// environment pointer first, then the arguments.
func (l *funcLowerer) callValue(e *ast.Expr, fv value, args []*ast.Expr) (value, error) {
	tys := l.s.tys
	ps, result, ok := tys.FnSig(fv.ty)
	if !ok {
		return value{}, l.errorf(diag.ResNotCallable, e.Span, "`%s` is not callable", l.typeName(fv.ty))
	}
	if len(args) != len(ps) {
		return value{}, l.errorf(diag.LowArgCount, e.Span,
			"function of type `%s` takes %d arguments, %d given", l.typeName(fv.ty), len(ps), len(args))
	}
	ts := l.s.mod.Types
	pair := l.s.lirType(fv.ty)
	code := l.b.Load(ts.Ptr, l.b.FieldPtr(pair, fv.v, 0))
	env := l.b.Load(ts.Ptr, l.b.FieldPtr(pair, fv.v, 1))
	vals, err := l.lowerArgs(args, ps)
	if err != nil {
		return value{}, err
	}
	ops, err := l.passArgs(vals, ps, args)
	if err != nil {
		return value{}, err
	}
	lps := make([]lir.TypeID, 0, len(ps)+1)
	lps = append(lps, ts.Ptr)
	for _, p := range ps {
		lps = append(lps, l.s.lirType(p))
	}
	sig := ts.Func(l.s.resultType(result), lps...)
	r := l.b.Call(code, sig, append([]lir.Value{env}, ops...)...)
	out := l.callResult(r, result)
	l.releaseValue(fv)
	return out, nil
}

// callFunc calls a free function, instantiating generic ones with the
// explicit type arguments or those inferred from the arguments.
func (l *funcLowerer) callFunc(e *ast.Expr, f *registry.Func, d ast.CallData, want types.TypeID) (value, error) {
	if !f.Generic {
		if len(d.TypeArgs) > 0 {
			return value{}, l.errorf(diag.MonoNotGeneric, e.Span, "`%s` takes no type arguments", l.name(f.Name))
		}
		sig, ok := l.s.declareFunc(f)
		if !ok {
			return value{}, errLoweringAborted
		}
		return l.callSig(sig, nil, d.Args, nil, e.Span)
	}
	targs, pre, err := l.typeArgs(l.name(f.Name), f.Decl, d.TypeArgs, d.Args, want, e.Span)
	if err != nil {
		return value{}, err
	}
	name, ok := l.s.mono.InstantiateFunction(f, targs, e.Span)
	if !ok {
		return value{}, errLoweringAborted
	}
	sig, ok := l.s.sigs[name]
	if !ok {
		return value{}, errLoweringAborted
	}
	return l.callSig(sig, nil, d.Args, pre, e.Span)
}

// typeArgs resolves the type arguments of a generic call. Without
// explicit ones the arguments are lowered first and unified with the
// written parameter types; the expected result joins the unification
// last. The lowered arguments are returned so they are not evaluated
// twice.
func (l *funcLowerer) typeArgs(name string, decl *ast.FnDecl, explicit []*ast.TypeExpr, args []*ast.Expr, want types.TypeID, span source.Span) ([]types.TypeID, []value, error) {
	if len(explicit) > 0 {
		out := make([]types.TypeID, len(explicit))
		for i, te := range explicit {
			t, err := l.resolveType(te)
			if err != nil {
				return nil, nil, err
			}
			out[i] = t
		}
		return out, nil, nil
	}
	if len(args) != len(decl.Params) {
		return nil, nil, l.errorf(diag.LowArgCount, span,
			"`%s` takes %d arguments, %d given", name, len(decl.Params), len(args))
	}
	pre, err := l.lowerArgs(args, nil)
	if err != nil {
		return nil, nil, err
	}
	written := make([]*ast.TypeExpr, 0, len(decl.Params)+1)
	argTypes := make([]types.TypeID, 0, len(pre)+1)
	for i, p := range decl.Params {
		written = append(written, p.Type)
		argTypes = append(argTypes, pre[i].ty)
	}
	if want != types.NoTypeID && decl.Result != nil {
		written = append(written, decl.Result)
		argTypes = append(argTypes, want)
	}
	targs, ok := l.s.mono.InferTypeArgs(name, decl.TypeParams, written, argTypes, span)
	if !ok {
		return nil, nil, errLoweringAborted
	}
	return targs, pre, nil
}

// lowerArgs lowers call arguments; params steers literals when known.
func (l *funcLowerer) lowerArgs(args []*ast.Expr, params []types.TypeID) ([]value, error) {
	out := make([]value, len(args))
	for i, a := range args {
		want := types.NoTypeID
		if i < len(params) {
			want = params[i]
			if err := l.checkArraySize(a, want); err != nil {
				return nil, err
			}
		}
		v, err := l.lowerExpr(a, want)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// passArgs converts lowered arguments to the parameter types and hands
// them over to the callee.
func (l *funcLowerer) passArgs(vals []value, params []types.TypeID, args []*ast.Expr) ([]lir.Value, error) {
	ops := make([]lir.Value, len(vals))
	for i, v := range vals {
		v, err := l.coerce(v, params[i], args[i].Span)
		if err != nil {
			return nil, err
		}
		l.consume(v)
		ops[i] = l.operand(v)
	}
	return ops, nil
}

// callSig calls a declared function. lead holds the receiver, when any;
// pre holds arguments already lowered during inference.
func (l *funcLowerer) callSig(sig *funcSig, lead []lir.Value, args []*ast.Expr, pre []value, span source.Span) (value, error) {
	if len(args) != len(sig.params) {
		return value{}, l.errorf(diag.LowArgCount, span,
			"`%s` takes %d arguments, %d given", sig.name, len(sig.params), len(args))
	}
	vals := pre
	if vals == nil {
		var err error
		if vals, err = l.lowerArgs(args, sig.params); err != nil {
			return value{}, err
		}
	} else {
		for i, a := range args {
			if err := l.checkArraySize(a, sig.params[i]); err != nil {
				return value{}, err
			}
		}
	}
	ops, err := l.passArgs(vals, sig.params, args)
	if err != nil {
		return value{}, err
	}
	var all []lir.Value
	if sig.env {
		all = append(all, l.null())
	}
	all = append(all, lead...)
	all = append(all, ops...)
	r := l.b.CallFunc(sig.fn, all...)
	return l.callResult(r, sig.result), nil
}

// callResult wraps a call's register. Calls to functions that never
// return end the block.
func (l *funcLowerer) callResult(r lir.Value, result types.TypeID) value {
	if l.s.tys.Kind(result) == types.KindNever {
		l.b.Unreachable()
		return l.never()
	}
	return l.fromRegister(r, result)
}

// lowerMethodCall lowers recv.m(args). A receiver naming a type rather
// than a local is a static call or a variant construction.
func (l *funcLowerer) lowerMethodCall(e *ast.Expr, d ast.MethodCallData, want types.TypeID) (value, error) {
	if id, ok := d.Receiver.Data.(ast.IdentData); ok {
		if _, bound := l.lookup(id.Name); !bound && l.isTypeName(id.Name) {
			return l.lowerTypeCall(e, id.Name, d, want)
		}
	}
	recv, err := l.lowerPlace(d.Receiver)
	if err != nil {
		return value{}, err
	}
	recv = l.derefRefs(recv)
	if b, _ := l.s.builtinOf(recv.ty); b != types.BuiltinNone && l.builtinVisible(b) {
		return l.containerMethod(e, d, recv, want)
	}
	owner := l.s.tys.Canonical(recv.ty)
	m, ambiguous := l.s.reg.MethodSet(owner).Lookup(d.Method)
	if ambiguous {
		return value{}, l.errorf(diag.ResAmbiguousMeth, e.Span,
			"method `%s` on `%s` is provided by more than one trait", l.name(d.Method), owner)
	}
	if m == nil {
		if v, ok, err := l.primitiveMethod(e, d, recv); ok {
			return v, err
		}
		return value{}, l.errorf(diag.ResUnknownMethod, e.Span, "no method `%s` on `%s`", l.name(d.Method), owner)
	}
	if m.IsStatic() {
		return value{}, l.errorf(diag.ResUnknownMethod, e.Span,
			"`%s` has no receiver; call it as `%s.%s`", l.name(d.Method), owner, l.name(d.Method))
	}
	return l.callMethod(e, m, d, recv, want)
}

// derefRefs follows references; method receivers see the referenced value.
func (l *funcLowerer) derefRefs(p place) place {
	for {
		tt, _ := l.s.tys.Lookup(p.ty)
		if tt.Kind != types.KindRef {
			return p
		}
		p = place{addr: l.b.Load(l.s.mod.Types.Ptr, p.addr), ty: tt.Elem, mutable: tt.Mutable}
	}
}

// callMethod calls an instance method. By-value receivers are moved into
// the call; reference receivers pass the receiver's address.
func (l *funcLowerer) callMethod(e *ast.Expr, m *registry.Method, d ast.MethodCallData, recv place, want types.TypeID) (value, error) {
	sig, pre, err := l.methodSig(e, m, d, want)
	if err != nil {
		return value{}, err
	}
	var lead lir.Value
	switch m.Decl.Self {
	case ast.SelfValue:
		v := l.readPlace(recv)
		l.consume(v)
		lead = l.operand(v)
	case ast.SelfMut:
		if !recv.mutable {
			return value{}, l.errorf(diag.LowNotAssignable, d.Receiver.Span,
				"`%s` takes `&mut self` but the receiver is not mutable", l.name(d.Method))
		}
		lead = recv.addr
	default:
		lead = recv.addr
	}
	return l.callSig(sig, []lir.Value{lead}, d.Args, pre, e.Span)
}

// methodSig declares m, or the instance of m its type arguments select.
func (l *funcLowerer) methodSig(e *ast.Expr, m *registry.Method, d ast.MethodCallData, want types.TypeID) (*funcSig, []value, error) {
	if !m.Decl.IsGeneric() {
		if len(d.TypeArgs) > 0 {
			return nil, nil, l.errorf(diag.MonoNotGeneric, e.Span, "`%s` takes no type arguments", m.Symbol)
		}
		sig, ok := l.s.ensureMethod(m)
		if !ok {
			return nil, nil, errLoweringAborted
		}
		return sig, nil, nil
	}
	targs, pre, err := l.typeArgs(l.name(m.Name), m.Decl, d.TypeArgs, d.Args, want, e.Span)
	if err != nil {
		return nil, nil, err
	}
	name, ok := l.s.mono.InstantiateMethod(m, targs, e.Span)
	if !ok {
		return nil, nil, errLoweringAborted
	}
	sig, ok := l.s.sigs[name]
	if !ok {
		return nil, nil, errLoweringAborted
	}
	return sig, pre, nil
}

// isTypeName reports names that resolve to a type: definitions,
// primitives and aliases. Traits are not types.
func (l *funcLowerer) isTypeName(name source.StringID) bool {
	if d, ok := l.s.reg.Lookup(name); ok {
		return d.Kind != registry.DefTrait
	}
	if _, ok := l.s.tys.Primitive(l.name(name)); ok {
		return true
	}
	_, ok := l.s.reg.Alias(name)
	return ok
}

// builtinVisible reports whether the builtin container b can be named;
// a user type of the same name hides it.
func (l *funcLowerer) builtinVisible(b types.Builtin) bool {
	d, ok := l.s.reg.LookupString(b.String())
	return ok && d.Kind == registry.DefBuiltin && !d.Shadowed
}

// lowerTypeCall lowers X.y(args) where X names a type. A variant with a
// case y constructs the case; otherwise X must have a static method y.
func (l *funcLowerer) lowerTypeCall(e *ast.Expr, name source.StringID, d ast.MethodCallData, want types.TypeID) (value, error) {
	def, isDef := l.s.reg.Lookup(name)
	if isDef && def.Kind == registry.DefBuiltin {
		return l.containerStatic(e, def.Builtin, d, want)
	}
	if isDef && def.Kind == registry.DefVariant {
		if _, ok := def.CaseIndex(d.Method); ok {
			return l.constructCase(e, def, d.Method, d.TypeArgs, d.Args, want)
		}
	}
	owner, pre, err := l.staticOwner(e, name, def, d, want)
	if err != nil {
		return value{}, err
	}
	m, ambiguous := l.s.reg.MethodSet(l.s.tys.Canonical(owner)).Lookup(d.Method)
	if ambiguous {
		return value{}, l.errorf(diag.ResAmbiguousMeth, e.Span,
			"method `%s` on `%s` is provided by more than one trait", l.name(d.Method), l.typeName(owner))
	}
	if m == nil {
		return value{}, l.errorf(diag.ResUnknownMethod, e.Span,
			"type `%s` has no case or static method `%s`", l.name(name), l.name(d.Method))
	}
	if !m.IsStatic() {
		return value{}, l.errorf(diag.ResUnknownMethod, e.Span,
			"`%s.%s` takes a receiver and cannot be called on the type", l.name(name), l.name(d.Method))
	}
	if pre != nil {
		// The owner's type arguments were inferred from these arguments.
		sig, ok := l.s.ensureMethod(m)
		if !ok {
			return value{}, errLoweringAborted
		}
		return l.callSig(sig, nil, d.Args, pre, e.Span)
	}
	sig, pre, err := l.methodSig(e, m, d, want)
	if err != nil {
		return value{}, err
	}
	return l.callSig(sig, nil, d.Args, pre, e.Span)
}

// staticOwner finds the concrete type a static call is made on. A generic
// definition takes its arguments from the expected type, or from the
// arguments of the called method.
func (l *funcLowerer) staticOwner(e *ast.Expr, name source.StringID, def *registry.Def, d ast.MethodCallData, want types.TypeID) (types.TypeID, []value, error) {
	if def == nil {
		t, err := l.resolveType(&ast.TypeExpr{Kind: ast.TypeNamed, Span: d.Receiver.Span, Name: name})
		return t, nil, err
	}
	if !def.Generic {
		return def.Type, nil, nil
	}
	if wd := l.s.defOf(want); wd != nil && wd.Origin == def.ID {
		return want, nil, nil
	}
	decl := l.originMethod(def, d.Method)
	if decl == nil || decl.IsGeneric() {
		return types.NoTypeID, nil, l.errorf(diag.MonoCannotInfer, e.Span,
			"cannot infer the type arguments of `%s`; annotate the expected type", l.name(name))
	}
	targs, pre, err := l.typeArgs(l.name(name), &ast.FnDecl{
		Name:       decl.Name,
		TypeParams: def.TypeParams(),
		Params:     decl.Params,
		Result:     decl.Result,
	}, nil, d.Args, want, e.Span)
	if err != nil {
		return types.NoTypeID, nil, err
	}
	t := l.s.mono.InstantiateType(def, targs, e.Span)
	if t == types.NoTypeID {
		return t, nil, errLoweringAborted
	}
	return t, pre, nil
}

// originMethod finds a method declared on a generic definition, inline or
// in one of its impls.
func (l *funcLowerer) originMethod(def *registry.Def, name source.StringID) *ast.FnDecl {
	for _, m := range def.InlineMethods() {
		if m.Name == name {
			return m
		}
	}
	for _, impl := range l.s.reg.GenericImpls(def.ID) {
		for _, m := range impl.Decl.Methods {
			if m.Name == name {
				return m
			}
		}
	}
	return nil
}
