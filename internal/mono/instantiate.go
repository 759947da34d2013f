package mono

import (
	"fmt"
	"strings"

	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/mangle"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/types"
)

// Depth returns the generic nesting depth of t: Box<i32> is 1,
// Box<Box<i32>> is 2. Structural types take the depth of their deepest
// component.
func (e *Engine) Depth(t types.TypeID) int {
	tt, ok := e.types.Lookup(t)
	if !ok {
		return 0
	}
	switch tt.Kind {
	case types.KindBuiltin:
		_, args := e.types.ContainerArgs(t)
		return 1 + e.maxDepth(args)
	case types.KindRecord, types.KindVariant:
		d, found := e.reg.Lookup(tt.Sym)
		if !found || !d.Origin.IsValid() {
			return 0
		}
		return 1 + e.maxDepth(d.Args)
	case types.KindTuple:
		return e.maxDepth(e.types.TupleElems(t))
	case types.KindFn:
		params, result, _ := e.types.FnSig(t)
		return max(e.maxDepth(params), e.Depth(result))
	case types.KindArray, types.KindSlice, types.KindRef:
		return e.Depth(tt.Elem)
	}
	return 0
}

func (e *Engine) maxDepth(ts []types.TypeID) int {
	m := 0
	for _, t := range ts {
		m = max(m, e.Depth(t))
	}
	return m
}

// checkDepth runs before any substitution work: an instantiation of base
// with args must not nest deeper than the configured bound.
func (e *Engine) checkDepth(base string, args []types.TypeID, span source.Span) bool {
	depth := 1 + e.maxDepth(args)
	if depth <= e.opt.MaxDepth {
		return true
	}
	diag.ReportError(e.rep, diag.MonoDepthExceeded, span,
		fmt.Sprintf("generic nesting depth %d of `%s` exceeds the limit of %d", depth, e.display(base, args), e.opt.MaxDepth)).
		WithNote(span, "a self-referential generic keeps wrapping its own type argument").
		Emit()
	return false
}

func (e *Engine) display(base string, args []types.TypeID) string {
	const maxShown = 80
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = e.types.String(a)
	}
	s := base + "<" + strings.Join(parts, ", ") + ">"
	if len(s) > maxShown {
		s = s[:maxShown] + "…"
	}
	return s
}

func plural(name string, want, got int) string {
	s := "s"
	if want == 1 {
		s = ""
	}
	return fmt.Sprintf("`%s` takes %d type argument%s, got %d", name, want, s, got)
}

func (e *Engine) canonicalArgs(args []types.TypeID) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = e.types.Canonical(a)
	}
	return out
}

// InstantiateType returns the concrete type of generic def applied to args.
// The cache entry is created before fields are resolved, so a definition
// that mentions itself through a heap handle resolves to the entry being
// built.
func (e *Engine) InstantiateType(d *registry.Def, args []types.TypeID, span source.Span) types.TypeID {
	base := e.name(d.Name)
	params := d.TypeParams()
	if len(args) != len(params) {
		diag.ReportError(e.rep, diag.MonoArity, span, plural(base, len(params), len(args))).Emit()
		return types.NoTypeID
	}
	if !e.checkDepth(base, args, span) {
		return types.NoTypeID
	}
	if entry, ok := e.inst.Lookup(InstType, d.Name, args); ok {
		entry.addUseSite(span)
		if entry.Failed {
			return types.NoTypeID
		}
		return entry.Type
	}

	name := mangle.Instance(base, e.canonicalArgs(args)...)
	entry := e.inst.insert(InstType, d.Name, args, name)
	entry.addUseSite(span)
	if !e.reg.ClaimTypeSymbol(name, span, e.rep) {
		entry.Failed = true
		return types.NoTypeID
	}

	inst := e.reg.NewInstance(d, e.strings.Intern(name), args)
	entry.Def, entry.Type = inst.ID, inst.Type

	env := bind(params, args)
	e.resolveBody(inst, env)
	if e.cyclesChecked && len(e.reg.CheckCyclesFrom(inst.ID, e.rep)) > 0 {
		entry.Failed = true
		return types.NoTypeID
	}

	e.attachMethods(d, inst, env)
	return inst.Type
}

// attachMethods registers the inline methods and generic impls of the
// origin for a fresh instance. Bodies are compiled on first use.
func (e *Engine) attachMethods(origin, inst *registry.Def, env Env) {
	sub := Subst{Env: env}
	for _, m := range origin.InlineMethods() {
		e.reg.AddInlineMethod(inst, sub.Fn(m), e.rep)
	}
	owner := e.name(inst.Name)
	for _, impl := range e.reg.GenericImpls(origin.ID) {
		implSub := Subst{Env: bind(impl.Decl.TypeParams, inst.Args)}
		spec := &registry.Impl{
			Trait: impl.Trait,
			Decl:  impl.Decl,
			Owner: owner,
			Span:  impl.Span,
		}
		e.reg.AddImpl(spec, implSub.Fns(impl.Decl.Methods), inst.ID, inst.Type, e.rep)
	}
}

// InstantiateFunction returns the mangled name of generic fn applied to
// args, lowering the specialised body on first request.
func (e *Engine) InstantiateFunction(fn *registry.Func, args []types.TypeID, span source.Span) (string, bool) {
	if !fn.Generic {
		diag.ReportError(e.rep, diag.MonoNotGeneric, span, "`"+fn.Symbol+"` takes no type arguments").Emit()
		return "", false
	}
	return e.instantiateFn(fn.Name, fn.Symbol, fn.Decl.TypeParams, args, span, func(env Env) *FuncInstance {
		decl := Subst{Env: env}.Fn(fn.Decl)
		decl.TypeParams = nil
		return &FuncInstance{Decl: decl, Args: args, Env: env}
	})
}

// InstantiateMethod specialises a method that declares its own type
// parameters.
func (e *Engine) InstantiateMethod(m *registry.Method, args []types.TypeID, span source.Span) (string, bool) {
	sym := e.strings.Intern(m.Symbol)
	return e.instantiateFn(sym, m.Symbol, m.Decl.TypeParams, args, span, func(env Env) *FuncInstance {
		if m.Self != types.NoTypeID {
			env = env.With(e.selfSym, m.Self)
		}
		decl := Subst{Env: env}.Fn(m.Decl)
		decl.TypeParams = nil
		return &FuncInstance{Decl: decl, Args: args, Self: m.Self, Env: env}
	})
}

func (e *Engine) instantiateFn(sym source.StringID, base string, params []ast.TypeParam, args []types.TypeID, span source.Span, build func(Env) *FuncInstance) (string, bool) {
	if len(args) != len(params) {
		diag.ReportError(e.rep, diag.MonoArity, span, plural(base, len(params), len(args))).Emit()
		return "", false
	}
	if !e.checkDepth(base, args, span) {
		return "", false
	}
	if entry, ok := e.inst.Lookup(InstFn, sym, args); ok {
		entry.addUseSite(span)
		return entry.Name, !entry.Failed
	}

	name := mangle.Instance(base, e.canonicalArgs(args)...)
	entry := e.inst.insert(InstFn, sym, args, name)
	entry.addUseSite(span)
	if !e.reg.ClaimFuncSymbol(name, span, e.rep) {
		entry.Failed = true
		return "", false
	}
	fi := build(bind(params, args))
	fi.Name = name
	entry.Decl = fi.Decl
	if e.lowerer != nil {
		e.lowerer.LowerInstance(fi)
	}
	return name, true
}
