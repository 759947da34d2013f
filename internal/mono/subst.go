package mono

import (
	"kiln/internal/ast"
	"kiln/internal/source"
	"kiln/internal/types"
)

// Env maps type parameter names (and Self) to concrete types.
type Env map[source.StringID]types.TypeID

// With returns a copy of env extended with name -> t.
func (env Env) With(name source.StringID, t types.TypeID) Env {
	out := make(Env, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out[name] = t
	return out
}

// bind zips type parameters with arguments.
func bind(params []ast.TypeParam, args []types.TypeID) Env {
	env := make(Env, len(params))
	for i, p := range params {
		if i < len(args) {
			env[p.Name] = args[i]
		}
	}
	return env
}

// Subst replaces every occurrence of a type parameter in a generic
// declaration with its concrete argument.
type Subst struct {
	Env Env
}

func (s Subst) cloner() *ast.Cloner {
	return &ast.Cloner{MapType: func(te *ast.TypeExpr) *ast.TypeExpr {
		if te.Kind != ast.TypeNamed || len(te.Args) > 0 {
			return nil
		}
		if t, ok := s.Env[te.Name]; ok {
			return ast.Resolved(t, te.Span)
		}
		return nil
	}}
}

// Fn returns a specialised copy of fn. The function's own type parameters
// shadow outer ones and stay in place.
func (s Subst) Fn(fn *ast.FnDecl) *ast.FnDecl {
	inner := s
	if len(fn.TypeParams) > 0 {
		inner.Env = make(Env, len(s.Env))
		for k, v := range s.Env {
			inner.Env[k] = v
		}
		for _, p := range fn.TypeParams {
			delete(inner.Env, p.Name)
		}
	}
	return inner.cloner().Fn(fn)
}

// Fns specialises a method list.
func (s Subst) Fns(fns []*ast.FnDecl) []*ast.FnDecl {
	out := make([]*ast.FnDecl, len(fns))
	for i, fn := range fns {
		out[i] = s.Fn(fn)
	}
	return out
}

// Type specialises a single type expression.
func (s Subst) Type(te *ast.TypeExpr) *ast.TypeExpr {
	return s.cloner().Type(te)
}
