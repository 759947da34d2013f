package mono

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/types"
)

// DefaultMaxDepth bounds generic nesting when Options leave it unset.
const DefaultMaxDepth = 64

type Options struct {
	MaxDepth int
}

// FuncInstance is a specialised function handed to the lowering.
type FuncInstance struct {
	Name string
	Decl *ast.FnDecl
	Args []types.TypeID
	// Self is set for methods of instantiated types.
	Self types.TypeID
	// Env resolves any type names the specialised body still mentions.
	Env Env
}

// Lowerer compiles instantiated function bodies. It is called synchronously
// from inside another function's lowering and must save and restore all of
// its per-function state around the nested compilation.
type Lowerer interface {
	LowerInstance(fi *FuncInstance)
}

// Engine owns the instantiation cache and resolves written types, creating
// concrete instances of generic records and variants on demand.
type Engine struct {
	reg     *registry.Registry
	types   *types.Interner
	strings *source.Interner
	rep     diag.Reporter
	opt     Options
	inst    *InstantiationMap
	lowerer Lowerer

	selfSym    source.StringID
	aliasStack []source.StringID
	// cyclesChecked is set once the registry-wide cycle check has run;
	// later instantiations check their own cycles.
	cyclesChecked bool
}

func New(reg *registry.Registry, rep diag.Reporter, opt Options) *Engine {
	if opt.MaxDepth <= 0 {
		opt.MaxDepth = DefaultMaxDepth
	}
	if rep == nil {
		rep = diag.NopReporter{}
	}
	return &Engine{
		reg:     reg,
		types:   reg.Types(),
		strings: reg.Strings(),
		rep:     rep,
		opt:     opt,
		inst:    NewInstantiationMap(),
		selfSym: reg.Strings().Intern("Self"),
	}
}

func (e *Engine) SetLowerer(l Lowerer) { e.lowerer = l }

func (e *Engine) Instantiations() *InstantiationMap { return e.inst }

func (e *Engine) Registry() *registry.Registry { return e.reg }

func (e *Engine) MaxDepth() int { return e.opt.MaxDepth }

// SelfSym is the interned name of the Self type.
func (e *Engine) SelfSym() source.StringID { return e.selfSym }

func (e *Engine) name(id source.StringID) string {
	return e.strings.MustLookup(id)
}

// ResolveDefinitions resolves the fields and cases of every concrete
// definition and then runs the registry-wide containment cycle check.
// It reports false when any registry error was found; lowering must not
// start in that case.
func (e *Engine) ResolveDefinitions() bool {
	bag := diag.NewBag(0)
	tee := teeReporter{e.rep, diag.BagReporter{Bag: bag}}
	saved := e.rep
	e.rep = tee
	for _, d := range e.reg.Defs() {
		if d.Generic || d.Origin.IsValid() || d.Resolved {
			continue
		}
		switch d.Kind {
		case registry.DefRecord, registry.DefVariant:
			e.resolveBody(d, nil)
		}
	}
	cycles := e.reg.CheckCycles(tee)
	e.cyclesChecked = true
	e.rep = saved
	return len(cycles) == 0 && !bag.HasErrors()
}

// resolveBody fills Fields/Cases of a concrete def under env.
func (e *Engine) resolveBody(d *registry.Def, env Env) {
	if d.Record != nil {
		d.Fields = make([]registry.Field, 0, len(d.Record.Fields))
		seen := make(map[source.StringID]source.Span, len(d.Record.Fields))
		for _, f := range d.Record.Fields {
			if prev, dup := seen[f.Name]; dup {
				diag.ReportError(e.rep, diag.RegDuplicateDef, f.Span,
					"field `"+e.name(f.Name)+"` is declared twice").
					WithNote(prev, "previous declaration").
					Emit()
				continue
			}
			seen[f.Name] = f.Span
			d.Fields = append(d.Fields, registry.Field{Name: f.Name, Type: e.ResolveType(f.Type, env), Span: f.Span})
		}
	}
	if d.Variant != nil {
		d.Cases = make([]registry.Case, 0, len(d.Variant.Cases))
		for i, c := range d.Variant.Cases {
			payload := types.NoTypeID
			if c.Payload != nil {
				payload = e.ResolveType(c.Payload, env)
			}
			d.Cases = append(d.Cases, registry.Case{Name: c.Name, Payload: payload, Tag: i, Span: c.Span})
		}
	}
	d.Resolved = true
}

// ResolveType turns a written type into a TypeID, instantiating generic
// records, variants and containers as needed. Unknown names are reported
// and yield NoTypeID.
func (e *Engine) ResolveType(te *ast.TypeExpr, env Env) types.TypeID {
	if te == nil {
		return e.types.Builtins().Unit
	}
	switch te.Kind {
	case ast.TypeResolved:
		return te.ID
	case ast.TypeTuple:
		elems, ok := e.resolveList(te.Args, env)
		if !ok {
			return types.NoTypeID
		}
		return e.types.Tuple(elems)
	case ast.TypeArray:
		elem := e.ResolveType(te.Elem, env)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		if te.Len < 0 || te.Len > int64(^uint32(0)) {
			diag.ReportError(e.rep, diag.InputBadType, te.Span, "invalid array length").Emit()
			return types.NoTypeID
		}
		return e.types.Intern(types.MakeArray(elem, uint32(te.Len))) // #nosec G115 -- checked above
	case ast.TypeSlice:
		elem := e.ResolveType(te.Elem, env)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		return e.types.Intern(types.MakeSlice(elem))
	case ast.TypeRef:
		elem := e.ResolveType(te.Elem, env)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		return e.types.Intern(types.MakeRef(elem, te.Mut))
	case ast.TypeFn:
		params, ok := e.resolveList(te.Args, env)
		result := e.ResolveType(te.Elem, env)
		if !ok || result == types.NoTypeID {
			return types.NoTypeID
		}
		return e.types.Fn(params, result)
	case ast.TypeNamed:
		return e.resolveNamed(te, env)
	}
	diag.ReportError(e.rep, diag.InputBadType, te.Span, "malformed type expression").Emit()
	return types.NoTypeID
}

func (e *Engine) resolveList(tes []*ast.TypeExpr, env Env) ([]types.TypeID, bool) {
	out := make([]types.TypeID, len(tes))
	ok := true
	for i, te := range tes {
		out[i] = e.ResolveType(te, env)
		if out[i] == types.NoTypeID {
			ok = false
		}
	}
	return out, ok
}

func (e *Engine) resolveNamed(te *ast.TypeExpr, env Env) types.TypeID {
	if len(te.Args) == 0 {
		if t, ok := env[te.Name]; ok {
			return t
		}
	}
	name := e.name(te.Name)
	if len(te.Args) == 0 {
		if prim, ok := e.types.Primitive(name); ok {
			if d, shadow := e.reg.Lookup(te.Name); !shadow || d.Kind == registry.DefBuiltin {
				return prim
			}
		}
	}
	if target, ok := e.reg.Alias(te.Name); ok {
		for _, a := range e.aliasStack {
			if a == te.Name {
				diag.ReportError(e.rep, diag.RegAliasCycle, te.Span, "type alias `"+name+"` refers to itself").Emit()
				return types.NoTypeID
			}
		}
		e.aliasStack = append(e.aliasStack, te.Name)
		t := e.ResolveType(target, env)
		e.aliasStack = e.aliasStack[:len(e.aliasStack)-1]
		return t
	}
	d, ok := e.reg.Lookup(te.Name)
	if !ok {
		if te.Name == e.selfSym {
			diag.ReportError(e.rep, diag.ResUnknownType, te.Span, "`Self` is only valid inside methods").Emit()
		} else {
			diag.ReportError(e.rep, diag.ResUnknownType, te.Span, "unknown type `"+name+"`").Emit()
		}
		return types.NoTypeID
	}
	switch d.Kind {
	case registry.DefTrait:
		diag.ReportError(e.rep, diag.ResUnknownType, te.Span, "trait `"+name+"` cannot be used as a type").Emit()
		return types.NoTypeID
	case registry.DefBuiltin:
		args, ok := e.resolveList(te.Args, env)
		if !ok {
			return types.NoTypeID
		}
		return e.Container(d.Builtin, args, te.Span)
	}
	if !d.Generic {
		if len(te.Args) > 0 {
			diag.ReportError(e.rep, diag.MonoNotGeneric, te.Span, "`"+name+"` takes no type arguments").Emit()
			return types.NoTypeID
		}
		return d.Type
	}
	args, ok := e.resolveList(te.Args, env)
	if !ok {
		return types.NoTypeID
	}
	return e.InstantiateType(d, args, te.Span)
}

// Container interns a builtin container type after checking arity and the
// nesting bound.
func (e *Engine) Container(b types.Builtin, args []types.TypeID, span source.Span) types.TypeID {
	if len(args) != b.Arity() {
		diag.ReportError(e.rep, diag.MonoArity, span,
			plural(b.String(), b.Arity(), len(args))).Emit()
		return types.NoTypeID
	}
	if !e.checkDepth(b.String(), args, span) {
		return types.NoTypeID
	}
	return e.types.Container(b, args)
}

type teeReporter struct {
	a, b diag.Reporter
}

func (t teeReporter) Report(code diag.Code, sev diag.Severity, primary source.Span, msg string, notes []diag.Note) {
	t.a.Report(code, sev, primary, msg, notes)
	t.b.Report(code, sev, primary, msg, notes)
}
