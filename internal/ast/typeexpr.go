package ast

import (
	"kiln/internal/source"
	"kiln/internal/types"
)

// TypeExprKind enumerates written type forms.
type TypeExprKind uint8

const (
	TypeNamed TypeExprKind = iota // i32, Point, Vec<T>, T
	TypeTuple                     // (A, B); () is unit
	TypeArray                     // [T; N]
	TypeSlice                     // [T]
	TypeRef                       // &T, &mut T
	TypeFn                        // fn(A) -> R
	TypeResolved                  // already resolved, produced by substitution
)

// TypeExpr is a type as written in the tree, before resolution.
type TypeExpr struct {
	Kind TypeExprKind
	Span source.Span
	Name source.StringID
	Args []*TypeExpr // generic args; tuple elems; fn params
	Elem *TypeExpr   // array/slice/ref element; fn result
	Len  int64
	Mut  bool
	ID   types.TypeID // TypeResolved
}

// Resolved wraps a concrete type so it can be spliced into a tree.
func Resolved(id types.TypeID, span source.Span) *TypeExpr {
	return &TypeExpr{Kind: TypeResolved, Span: span, ID: id}
}
