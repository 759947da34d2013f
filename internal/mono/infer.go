package mono

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/types"
)

// InferTypeArgs recovers the type arguments of a generic signature from the
// types of the call arguments by unifying each parameter's written type
// with the matching argument type, left to right. The first binding of a
// parameter wins; conflicting later uses surface as argument mismatches
// when the call is lowered.
func (e *Engine) InferTypeArgs(name string, params []ast.TypeParam, written []*ast.TypeExpr, argTypes []types.TypeID, span source.Span) ([]types.TypeID, bool) {
	u := unifier{e: e, bound: make(Env, len(params)), params: make(map[source.StringID]bool, len(params))}
	for _, p := range params {
		u.params[p.Name] = true
	}
	for i, te := range written {
		if i >= len(argTypes) {
			break
		}
		u.unify(te, argTypes[i])
	}
	out := make([]types.TypeID, len(params))
	for i, p := range params {
		t, ok := u.bound[p.Name]
		if !ok {
			diag.ReportError(e.rep, diag.MonoCannotInfer, span,
				"cannot infer type argument `"+e.name(p.Name)+"` of `"+name+"`").
				WithNote(p.Span, "type parameter declared here").
				Emit()
			return nil, false
		}
		out[i] = t
	}
	return out, true
}

type unifier struct {
	e      *Engine
	params map[source.StringID]bool
	bound  Env
}

func (u *unifier) unify(te *ast.TypeExpr, t types.TypeID) {
	if te == nil || t == types.NoTypeID {
		return
	}
	tys := u.e.types
	tt, ok := tys.Lookup(t)
	if !ok {
		return
	}
	switch te.Kind {
	case ast.TypeNamed:
		if len(te.Args) == 0 {
			if u.params[te.Name] {
				if _, done := u.bound[te.Name]; !done {
					u.bound[te.Name] = t
				}
			}
			return
		}
		u.unifyApplied(te, t, tt)
	case ast.TypeTuple:
		if tt.Kind != types.KindTuple {
			return
		}
		u.unifyList(te.Args, tys.TupleElems(t))
	case ast.TypeArray:
		if tt.Kind == types.KindArray {
			u.unify(te.Elem, tt.Elem)
		}
	case ast.TypeSlice:
		if tt.Kind == types.KindSlice || tt.Kind == types.KindArray {
			u.unify(te.Elem, tt.Elem)
		}
	case ast.TypeRef:
		if tt.Kind == types.KindRef {
			u.unify(te.Elem, tt.Elem)
		}
	case ast.TypeFn:
		if params, result, ok := tys.FnSig(t); ok {
			u.unifyList(te.Args, params)
			u.unify(te.Elem, result)
		}
	}
}

func (u *unifier) unifyApplied(te *ast.TypeExpr, t types.TypeID, tt types.Type) {
	switch tt.Kind {
	case types.KindBuiltin:
		if b, ok := types.BuiltinByName(u.e.name(te.Name)); ok && b == tt.Builtin {
			_, args := u.e.types.ContainerArgs(t)
			u.unifyList(te.Args, args)
		}
	case types.KindRecord, types.KindVariant:
		d, ok := u.e.reg.Lookup(tt.Sym)
		if !ok || !d.Origin.IsValid() {
			return
		}
		if origin := u.e.reg.Def(d.Origin); origin != nil && origin.Name == te.Name {
			u.unifyList(te.Args, d.Args)
		}
	}
}

func (u *unifier) unifyList(tes []*ast.TypeExpr, ts []types.TypeID) {
	for i, te := range tes {
		if i < len(ts) {
			u.unify(te, ts[i])
		}
	}
}
