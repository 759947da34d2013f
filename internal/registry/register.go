package registry

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/mangle"
	"kiln/internal/source"
	"kiln/internal/types"
)

// Register records one top-level item. It is called once per item in
// declaration order. Items may refer to names declared later: anything that
// needs another definition is checked in Seal.
func (r *Registry) Register(item *ast.Item, rep diag.Reporter) {
	if r.sealed {
		panic("registry: Register after Seal")
	}
	switch item.Kind {
	case ast.ItemFn:
		r.registerFunc(item.Fn, rep)
	case ast.ItemRecord:
		r.registerRecord(item, rep)
	case ast.ItemVariant:
		r.registerVariant(item, rep)
	case ast.ItemTrait:
		d := &Def{Kind: DefTrait, Name: item.Trait.Name, Span: item.Span, Trait: item.Trait}
		r.defineType(d, rep)
	case ast.ItemImpl:
		r.registerImpl(item, rep)
	case ast.ItemAlias:
		r.registerAlias(item, rep)
	default:
		diag.ReportError(rep, diag.InputUnknownKind, item.Span, "unknown item kind "+item.Kind.String()).Emit()
	}
}

func (r *Registry) name(id source.StringID) string {
	return r.strings.MustLookup(id)
}

// defineType binds a type or trait name. A user type silently shadows a
// builtin container of the same name.
func (r *Registry) defineType(d *Def, rep diag.Reporter) bool {
	if prevID, ok := r.byName[d.Name]; ok {
		prev := r.Def(prevID)
		if prev.Kind != DefBuiltin {
			diag.ReportError(rep, diag.RegDuplicateDef, d.Span,
				"`"+r.name(d.Name)+"` is already defined").
				WithNote(prev.Span, "previous definition").
				Emit()
			return false
		}
		prev.Shadowed = true
	}
	if _, ok := r.aliases[d.Name]; ok {
		diag.ReportError(rep, diag.RegDuplicateDef, d.Span,
			"`"+r.name(d.Name)+"` is already defined as a type alias").Emit()
		return false
	}
	r.byName[d.Name] = r.alloc(d)
	if !d.Generic && d.Kind != DefTrait {
		r.ClaimTypeSymbol(r.name(d.Name), d.Span, rep)
	}
	return true
}

func (r *Registry) registerFunc(fn *ast.FnDecl, rep diag.Reporter) {
	if prev, ok := r.funcs[fn.Name]; ok {
		diag.ReportError(rep, diag.RegDuplicateDef, fn.Span,
			"function `"+r.name(fn.Name)+"` is already defined").
			WithNote(prev.Decl.Span, "previous definition").
			Emit()
		return
	}
	f := &Func{Name: fn.Name, Symbol: r.name(fn.Name), Decl: fn, Generic: fn.IsGeneric()}
	r.funcs[fn.Name] = f
	r.order = append(r.order, f)
	if !f.Generic {
		r.ClaimFuncSymbol(f.Symbol, fn.Span, rep)
	}
}

func (r *Registry) registerRecord(item *ast.Item, rep diag.Reporter) {
	decl := item.Record
	d := &Def{
		Kind:    DefRecord,
		Name:    decl.Name,
		Span:    item.Span,
		Public:  decl.Public,
		Generic: len(decl.TypeParams) > 0,
		Record:  decl,
	}
	if !d.Generic {
		d.Type = r.types.Record(decl.Name)
	}
	if !r.defineType(d, rep) || d.Generic {
		return
	}
	for _, m := range decl.Methods {
		r.addInherent(d, m, rep)
	}
}

func (r *Registry) registerVariant(item *ast.Item, rep diag.Reporter) {
	decl := item.Variant
	d := &Def{
		Kind:    DefVariant,
		Name:    decl.Name,
		Span:    item.Span,
		Public:  decl.Public,
		Generic: len(decl.TypeParams) > 0,
		Variant: decl,
	}
	if !d.Generic {
		d.Type = r.types.Variant(decl.Name)
	}
	seen := make(map[source.StringID]source.Span, len(decl.Cases))
	for _, c := range decl.Cases {
		if prev, dup := seen[c.Name]; dup {
			diag.ReportError(rep, diag.RegDuplicateDef, c.Span,
				"case `"+r.name(c.Name)+"` is declared twice").
				WithNote(prev, "previous declaration").
				Emit()
		}
		seen[c.Name] = c.Span
	}
	if !r.defineType(d, rep) || d.Generic {
		return
	}
	for _, m := range decl.Methods {
		r.addInherent(d, m, rep)
	}
}

// addInherent registers an inline or inherent-impl method of a concrete def.
func (r *Registry) addInherent(d *Def, m *ast.FnDecl, rep diag.Reporter) *Method {
	owner := r.name(d.Name)
	return r.AddMethod(&Method{
		Name:     m.Name,
		Symbol:   mangle.Method(owner, r.name(m.Name)),
		Owner:    owner,
		OwnerDef: d.ID,
		Decl:     m,
		Self:     d.Type,
	}, rep)
}

func (r *Registry) registerAlias(item *ast.Item, rep diag.Reporter) {
	a := item.Alias
	if _, ok := r.aliases[a.Name]; ok {
		diag.ReportError(rep, diag.RegDuplicateDef, item.Span, "alias `"+r.name(a.Name)+"` is already defined").Emit()
		return
	}
	if prev, ok := r.Lookup(a.Name); ok && prev.Kind != DefBuiltin {
		diag.ReportError(rep, diag.RegDuplicateDef, item.Span, "`"+r.name(a.Name)+"` is already defined").
			WithNote(prev.Span, "previous definition").
			Emit()
		return
	}
	r.aliases[a.Name] = a
}

// registerImpl pre-declares every method of a concrete impl under its mangled
// name, so calls resolve regardless of declaration order. Trait validation
// and default methods wait for Seal; generic impls wait for instantiation.
func (r *Registry) registerImpl(item *ast.Item, rep diag.Reporter) {
	decl := item.Impl
	impl := &Impl{Trait: decl.Trait, Decl: decl, Span: item.Span}
	target := decl.Target
	if target == nil || target.Kind != ast.TypeNamed {
		diag.ReportError(rep, diag.RegBadImplTarget, item.Span, "impl target must be a named type").Emit()
		return
	}
	if len(decl.TypeParams) > 0 {
		if !argsAreParams(target.Args, decl.TypeParams) {
			diag.ReportError(rep, diag.RegBadImplTarget, target.Span,
				"generic impl target must apply the impl's type parameters in order").Emit()
			return
		}
		impl.Generic = true
		impl.Owner = r.name(target.Name)
		r.pendingGeneric = append(r.pendingGeneric, impl)
		return
	}
	if len(target.Args) > 0 {
		diag.ReportError(rep, diag.RegBadImplTarget, target.Span,
			"impl for a single instantiation is not supported; declare impl<T>").Emit()
		return
	}
	owner := r.name(target.Name)
	self := types.NoTypeID
	if prim, ok := r.types.Primitive(owner); ok {
		owner = r.types.Canonical(prim)
		self = prim
	} else {
		self = r.nominalType(target.Name)
	}
	impl.Owner = owner
	r.impls = append(r.impls, impl)
	r.registerImplMethods(impl, owner, NoDefID, self, decl.Methods, rep)
}

// nominalType interns the nominal type a name will have once registered.
// Generic and missing names yield NoTypeID; Seal reports them.
func (r *Registry) nominalType(name source.StringID) types.TypeID {
	d, ok := r.Lookup(name)
	if !ok {
		return types.NoTypeID
	}
	return d.Type
}

func argsAreParams(args []*ast.TypeExpr, params []ast.TypeParam) bool {
	if len(args) != len(params) {
		return false
	}
	for i, a := range args {
		if a.Kind != ast.TypeNamed || len(a.Args) > 0 || a.Name != params[i].Name {
			return false
		}
	}
	return true
}

func (r *Registry) registerImplMethods(impl *Impl, owner string, ownerDef DefID, self types.TypeID, methods []*ast.FnDecl, rep diag.Reporter) {
	for _, m := range methods {
		sym := mangle.Method(owner, r.name(m.Name))
		if impl.Trait != source.NoStringID {
			sym = mangle.TraitMethod(owner, r.name(impl.Trait), r.name(m.Name))
		}
		r.AddMethod(&Method{
			Name:     m.Name,
			Symbol:   sym,
			Owner:    owner,
			OwnerDef: ownerDef,
			Trait:    impl.Trait,
			Decl:     m,
			Self:     self,
		}, rep)
	}
}
