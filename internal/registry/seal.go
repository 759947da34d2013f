package registry

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/mangle"
	"kiln/internal/source"
	"kiln/internal/types"
)

// Seal finishes registration once every item is known: impl targets and
// traits are validated, trait default methods are attached and generic
// impls are linked to their generic definitions. Contract findings are
// warnings; lowering proceeds.
func (r *Registry) Seal(rep diag.Reporter) {
	if r.sealed {
		return
	}
	r.sealed = true

	for _, impl := range r.impls {
		ownerDef, self, ok := r.implOwner(impl, rep)
		if !ok {
			continue
		}
		if ms := r.methods[impl.Owner]; ms != nil {
			for _, m := range ms.Methods {
				if m.Trait == impl.Trait && m.Self == types.NoTypeID {
					m.Self, m.OwnerDef = self, ownerDef
				}
			}
		}
		if impl.Trait != source.NoStringID {
			r.checkTraitImpl(impl, impl.Decl.Methods, ownerDef, self, rep)
		}
	}

	for _, impl := range r.pendingGeneric {
		d, ok := r.LookupString(impl.Owner)
		if !ok || !d.Generic || (d.Kind != DefRecord && d.Kind != DefVariant) {
			diag.ReportError(rep, diag.RegBadImplTarget, impl.Span,
				"`"+impl.Owner+"` is not a generic record or variant").Emit()
			continue
		}
		if impl.Trait != source.NoStringID && !r.isTrait(impl.Trait) {
			diag.ReportError(rep, diag.RegImplUnknownTrait, impl.Span,
				"unknown trait `"+r.name(impl.Trait)+"`").Emit()
			continue
		}
		impl.Origin = d.ID
		r.genericImpls[d.ID] = append(r.genericImpls[d.ID], impl)
	}
	r.pendingGeneric = nil
}

func (r *Registry) implOwner(impl *Impl, rep diag.Reporter) (DefID, types.TypeID, bool) {
	if prim, ok := r.types.Primitive(impl.Owner); ok {
		return NoDefID, prim, true
	}
	d, ok := r.LookupString(impl.Owner)
	if !ok || (d.Kind != DefRecord && d.Kind != DefVariant) {
		diag.ReportError(rep, diag.RegBadImplTarget, impl.Span,
			"impl target `"+impl.Owner+"` is not a record or variant").Emit()
		return NoDefID, types.NoTypeID, false
	}
	if d.Generic {
		diag.ReportError(rep, diag.RegBadImplTarget, impl.Span,
			"`"+impl.Owner+"` is generic; write impl<T> for "+impl.Owner+"<T>").Emit()
		return NoDefID, types.NoTypeID, false
	}
	return d.ID, d.Type, true
}

func (r *Registry) isTrait(name source.StringID) bool {
	d, ok := r.Lookup(name)
	return ok && d.Kind == DefTrait
}

// AddImpl registers a trait or inherent impl for a concrete owner in one
// step. Used for impls specialised from a generic impl.
func (r *Registry) AddImpl(impl *Impl, methods []*ast.FnDecl, ownerDef DefID, self types.TypeID, rep diag.Reporter) {
	r.registerImplMethods(impl, impl.Owner, ownerDef, self, methods, rep)
	if impl.Trait != source.NoStringID {
		r.checkTraitImpl(impl, methods, ownerDef, self, rep)
	}
}

// AddInlineMethod registers a method declared in the body of a concrete
// (possibly instantiated) record or variant.
func (r *Registry) AddInlineMethod(d *Def, m *ast.FnDecl, rep diag.Reporter) *Method {
	return r.addInherent(d, m, rep)
}

func (r *Registry) checkTraitImpl(impl *Impl, methods []*ast.FnDecl, ownerDef DefID, self types.TypeID, rep diag.Reporter) {
	trait, ok := r.Lookup(impl.Trait)
	if !ok || trait.Kind != DefTrait {
		diag.ReportError(rep, diag.RegImplUnknownTrait, impl.Span,
			"unknown trait `"+r.name(impl.Trait)+"`").Emit()
		return
	}
	ms := r.methodSet(impl.Owner)
	ms.traits[impl.Trait] = impl
	traitName := r.name(impl.Trait)

	declared := make(map[source.StringID]*ast.FnDecl, len(trait.Trait.Methods))
	for _, tm := range trait.Trait.Methods {
		declared[tm.Name] = tm
	}
	provided := make(map[source.StringID]bool, len(methods))
	for _, m := range methods {
		provided[m.Name] = true
		if _, ok := declared[m.Name]; !ok {
			diag.ReportWarning(rep, diag.WarnMethodNotInTrait, m.Span,
				"method `"+r.name(m.Name)+"` is not declared by trait `"+traitName+"`").
				WithNote(trait.Span, "trait declared here").
				Emit()
		}
	}
	for _, tm := range trait.Trait.Methods {
		if provided[tm.Name] {
			continue
		}
		if tm.Body == nil {
			diag.ReportWarning(rep, diag.WarnMissingTraitImpl, impl.Span,
				"`"+impl.Owner+"` does not implement `"+traitName+"."+r.name(tm.Name)+"`").Emit()
			continue
		}
		r.AddMethod(&Method{
			Name:     tm.Name,
			Symbol:   mangle.TraitMethod(impl.Owner, traitName, r.name(tm.Name)),
			Owner:    impl.Owner,
			OwnerDef: ownerDef,
			Trait:    impl.Trait,
			Decl:     tm,
			Default:  true,
			Self:     self,
		}, rep)
	}
}
