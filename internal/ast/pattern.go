package ast

import "kiln/internal/source"

// PatternKind enumerates match pattern kinds.
type PatternKind uint8

const (
	PatWildcard PatternKind = iota
	PatIdent
	PatLiteral
	PatRange
	PatTuple
	PatRecord
	PatVariant
	PatAlt
)

func (k PatternKind) String() string {
	switch k {
	case PatWildcard:
		return "Wildcard"
	case PatIdent:
		return "Ident"
	case PatLiteral:
		return "Literal"
	case PatRange:
		return "Range"
	case PatTuple:
		return "Tuple"
	case PatRecord:
		return "Record"
	case PatVariant:
		return "Variant"
	case PatAlt:
		return "Alt"
	default:
		return "Unknown"
	}
}

// Pattern is a match pattern.
//
//   - PatIdent: Name binds the value, unless Name is a unit case of a known
//     variant type, in which case it is a tag check.
//   - PatLiteral: Value is a literal expression (possibly negated).
//   - PatRange: Lo..Hi or Lo..=Hi over integer/char literals.
//   - PatVariant: Type.Case(Inner) or Case(Inner); Type may be NoStringID.
type Pattern struct {
	Kind      PatternKind
	Span      source.Span
	Name      source.StringID
	Value     *Expr
	Lo, Hi    *Expr
	Inclusive bool
	Elems     []*Pattern // tuple elements, alternatives
	Type      source.StringID
	Case      source.StringID
	Inner     *Pattern
	Fields    []FieldPattern
	Rest      bool // record pattern ends with ..
}

// FieldPattern is one field of a record pattern; Pattern nil means the
// shorthand { x } binding x.
type FieldPattern struct {
	Name    source.StringID
	Pattern *Pattern
	Span    source.Span
}
