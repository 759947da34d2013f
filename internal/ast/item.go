package ast

import "kiln/internal/source"

// ItemKind enumerates top-level items.
type ItemKind uint8

const (
	ItemFn ItemKind = iota
	ItemRecord
	ItemVariant
	ItemTrait
	ItemImpl
	ItemAlias
)

func (k ItemKind) String() string {
	switch k {
	case ItemFn:
		return "fn"
	case ItemRecord:
		return "record"
	case ItemVariant:
		return "variant"
	case ItemTrait:
		return "trait"
	case ItemImpl:
		return "impl"
	case ItemAlias:
		return "alias"
	default:
		return "unknown"
	}
}

// Item is one top-level declaration. Exactly one of the pointers is set,
// matching Kind.
type Item struct {
	Kind    ItemKind
	Span    source.Span
	Fn      *FnDecl
	Record  *RecordDecl
	Variant *VariantDecl
	Trait   *TraitDecl
	Impl    *ImplDecl
	Alias   *AliasDecl
}

// Name returns the declared name; impls have none.
func (it *Item) Name() source.StringID {
	switch it.Kind {
	case ItemFn:
		return it.Fn.Name
	case ItemRecord:
		return it.Record.Name
	case ItemVariant:
		return it.Variant.Name
	case ItemTrait:
		return it.Trait.Name
	case ItemAlias:
		return it.Alias.Name
	}
	return source.NoStringID
}

// TypeParam is a generic parameter with optional trait bounds.
type TypeParam struct {
	Name   source.StringID
	Bounds []source.StringID
	Span   source.Span
}

// SelfKind describes the receiver of a method.
type SelfKind uint8

const (
	SelfNone SelfKind = iota // static method or free function
	SelfValue
	SelfRef
	SelfMut
)

// FnDecl is a function, inline method, trait method or impl method.
// Body is nil for required trait methods.
type FnDecl struct {
	Name       source.StringID
	TypeParams []TypeParam
	Self       SelfKind
	Params     []Param
	Result     *TypeExpr // nil = unit
	Body       *Block
	Public     bool
	Span       source.Span
}

// IsGeneric reports declared type parameters.
func (f *FnDecl) IsGeneric() bool { return len(f.TypeParams) > 0 }

type FieldDecl struct {
	Name source.StringID
	Type *TypeExpr
	Span source.Span
}

// RecordDecl is a named record with ordered fields and inline methods.
type RecordDecl struct {
	Name       source.StringID
	TypeParams []TypeParam
	Fields     []FieldDecl
	Methods    []*FnDecl
	Public     bool
}

// CaseDecl is one alternative of a variant type; Payload nil = unit case.
type CaseDecl struct {
	Name    source.StringID
	Payload *TypeExpr
	Span    source.Span
}

type VariantDecl struct {
	Name       source.StringID
	TypeParams []TypeParam
	Cases      []CaseDecl
	Methods    []*FnDecl
	Public     bool
}

// TraitDecl lists method signatures; methods with a Body are defaults.
type TraitDecl struct {
	Name    source.StringID
	Methods []*FnDecl
}

// ImplDecl is impl Trait for Target or, with Trait = NoStringID, an
// inherent impl block.
type ImplDecl struct {
	Trait      source.StringID
	TypeParams []TypeParam
	Target     *TypeExpr
	Methods    []*FnDecl
}

type AliasDecl struct {
	Name   source.StringID
	Target *TypeExpr
}

// Unit is one import-merged compilation unit.
type Unit struct {
	Path  string
	File  source.FileID
	Items []*Item
}
