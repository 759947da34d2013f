package registry

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/types"
)

// MethodSet holds every method callable on one concrete type.
type MethodSet struct {
	Owner   string
	Methods []*Method
	byName  map[source.StringID][]*Method
	traits  map[source.StringID]*Impl
}

// Lookup resolves a method by name. Inherent methods win over trait
// methods; two trait methods with the same name are ambiguous.
func (ms *MethodSet) Lookup(name source.StringID) (m *Method, ambiguous bool) {
	if ms == nil {
		return nil, false
	}
	cands := ms.byName[name]
	for _, c := range cands {
		if c.Trait == source.NoStringID {
			return c, false
		}
	}
	if len(cands) == 0 {
		return nil, false
	}
	return cands[0], len(cands) > 1
}

// Implements reports an impl of trait for the owner.
func (ms *MethodSet) Implements(trait source.StringID) bool {
	if ms == nil {
		return false
	}
	_, ok := ms.traits[trait]
	return ok
}

// Registry stores every type, trait, impl and function definition of a
// compilation unit. Names are interned symbols; definitions live in an
// arena addressed by DefID.
type Registry struct {
	strings *source.Interner
	types   *types.Interner

	defs    *Arena[*Def]
	byName  map[source.StringID]DefID
	funcs   map[source.StringID]*Func
	order   []*Func
	aliases map[source.StringID]*ast.AliasDecl

	methods      map[string]*MethodSet
	methodOwners []string
	impls          []*Impl
	pendingGeneric []*Impl
	genericImpls   map[DefID][]*Impl

	funcSymbols map[string]source.Span
	typeSymbols map[string]source.Span
	sealed      bool
}

// New creates a registry with the builtin containers pre-registered.
func New(strs *source.Interner, tys *types.Interner) *Registry {
	r := &Registry{
		strings:      strs,
		types:        tys,
		defs:         NewArena[*Def](64),
		byName:       make(map[source.StringID]DefID),
		funcs:        make(map[source.StringID]*Func),
		aliases:      make(map[source.StringID]*ast.AliasDecl),
		methods:      make(map[string]*MethodSet),
		genericImpls: make(map[DefID][]*Impl),
		funcSymbols:  make(map[string]source.Span),
		typeSymbols:  make(map[string]source.Span),
	}
	for b := types.BuiltinVec; b <= types.BuiltinRange; b++ {
		name := strs.Intern(b.String())
		r.byName[name] = r.alloc(&Def{Kind: DefBuiltin, Name: name, Builtin: b, Generic: true})
	}
	return r
}

func (r *Registry) alloc(d *Def) DefID {
	d.ID = DefID(r.defs.Allocate(d))
	return d.ID
}

func (r *Registry) Strings() *source.Interner { return r.strings }

func (r *Registry) Types() *types.Interner { return r.types }

// Def returns the definition for id, or nil.
func (r *Registry) Def(id DefID) *Def {
	return r.defs.Get(uint32(id))
}

// Defs returns every definition in allocation order.
func (r *Registry) Defs() []*Def {
	return r.defs.Slice()
}

// Lookup finds the visible type or trait named name.
func (r *Registry) Lookup(name source.StringID) (*Def, bool) {
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.Def(id), true
}

// LookupString is Lookup for a name that may not be interned yet.
func (r *Registry) LookupString(name string) (*Def, bool) {
	sym, ok := r.strings.Find(name)
	if !ok {
		return nil, false
	}
	return r.Lookup(sym)
}

// Func returns the free function named name.
func (r *Registry) Func(name source.StringID) (*Func, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// Funcs returns free functions in declaration order.
func (r *Registry) Funcs() []*Func {
	return r.order
}

// Alias returns the target of a type alias.
func (r *Registry) Alias(name source.StringID) (*ast.TypeExpr, bool) {
	a, ok := r.aliases[name]
	if !ok {
		return nil, false
	}
	return a.Target, true
}

// MethodSet returns the methods registered for the canonical owner name.
func (r *Registry) MethodSet(owner string) *MethodSet {
	return r.methods[owner]
}

// MethodOwners lists owners in registration order.
func (r *Registry) MethodOwners() []string {
	return r.methodOwners
}

// Method resolves owner.name.
func (r *Registry) Method(owner string, name source.StringID) (*Method, bool) {
	m, _ := r.methods[owner].Lookup(name)
	return m, m != nil
}

// HasImpl reports whether owner implements trait.
func (r *Registry) HasImpl(trait source.StringID, owner string) bool {
	return r.methods[owner].Implements(trait)
}

// Impls returns non-generic impl blocks in declaration order.
func (r *Registry) Impls() []*Impl {
	return r.impls
}

// GenericImpls returns impls declared over a generic definition.
func (r *Registry) GenericImpls(origin DefID) []*Impl {
	return r.genericImpls[origin]
}

// CaseOwners returns variant definitions declaring a case named name, in
// declaration order. Instances are skipped: their cases mirror the origin.
func (r *Registry) CaseOwners(name source.StringID) []*Def {
	var out []*Def
	for _, d := range r.defs.Slice() {
		if d.Kind != DefVariant || d.Origin.IsValid() || d.Variant == nil {
			continue
		}
		for _, c := range d.Variant.Cases {
			if c.Name == name {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// ClaimFuncSymbol reserves a function-level symbol. A second claim of the
// same symbol is reported and refused.
func (r *Registry) ClaimFuncSymbol(sym string, span source.Span, rep diag.Reporter) bool {
	return claim(r.funcSymbols, "function", sym, span, rep)
}

// ClaimTypeSymbol reserves a type-level symbol.
func (r *Registry) ClaimTypeSymbol(sym string, span source.Span, rep diag.Reporter) bool {
	return claim(r.typeSymbols, "type", sym, span, rep)
}

func claim(table map[string]source.Span, what, sym string, span source.Span, rep diag.Reporter) bool {
	if prev, ok := table[sym]; ok {
		diag.ReportError(rep, diag.RegDuplicateSymbol, span,
			"symbol `"+sym+"` is produced by two different "+what+" definitions").
			WithNote(prev, "first definition here").
			Emit()
		return false
	}
	table[sym] = span
	return true
}

// NewInstance allocates the concrete definition of a generic record or
// variant. The caller fills fields/cases.
func (r *Registry) NewInstance(origin *Def, name source.StringID, args []types.TypeID) *Def {
	d := &Def{
		Kind:    origin.Kind,
		Name:    name,
		Span:    origin.Span,
		Public:  origin.Public,
		Origin:  origin.ID,
		Args:    append([]types.TypeID(nil), args...),
		Record:  origin.Record,
		Variant: origin.Variant,
	}
	r.alloc(d)
	switch d.Kind {
	case DefRecord:
		d.Type = r.types.Record(name)
	case DefVariant:
		d.Type = r.types.Variant(name)
	}
	r.byName[name] = d.ID
	return d
}

// AddMethod registers decl on owner under its mangled symbol.
func (r *Registry) AddMethod(m *Method, rep diag.Reporter) *Method {
	ms := r.methodSet(m.Owner)
	for _, prev := range ms.byName[m.Name] {
		if prev.Trait == m.Trait {
			diag.ReportError(rep, diag.RegDuplicateDef, m.Decl.Span,
				"method `"+r.strings.MustLookup(m.Name)+"` is declared twice for `"+m.Owner+"`").
				WithNote(prev.Decl.Span, "previous declaration").
				Emit()
			return prev
		}
	}
	r.ClaimFuncSymbol(m.Symbol, m.Decl.Span, rep)
	ms.Methods = append(ms.Methods, m)
	ms.byName[m.Name] = append(ms.byName[m.Name], m)
	return m
}

func (r *Registry) methodSet(owner string) *MethodSet {
	ms, ok := r.methods[owner]
	if !ok {
		ms = &MethodSet{
			Owner:  owner,
			byName: make(map[source.StringID][]*Method),
			traits: make(map[source.StringID]*Impl),
		}
		r.methods[owner] = ms
		r.methodOwners = append(r.methodOwners, owner)
	}
	return ms
}
