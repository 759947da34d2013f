package registry

import (
	"fmt"

	"kiln/internal/ast"
	"kiln/internal/source"
	"kiln/internal/types"
)

// DefID is a handle into the definition arena.
type DefID uint32

const NoDefID DefID = 0

func (id DefID) IsValid() bool { return id != NoDefID }

// DefKind tags what a definition is.
type DefKind uint8

const (
	DefRecord DefKind = iota + 1
	DefVariant
	DefTrait
	DefBuiltin
)

func (k DefKind) String() string {
	switch k {
	case DefRecord:
		return "record"
	case DefVariant:
		return "variant"
	case DefTrait:
		return "trait"
	case DefBuiltin:
		return "builtin"
	default:
		return fmt.Sprintf("DefKind(%d)", k)
	}
}

// Field is a resolved record field.
type Field struct {
	Name source.StringID
	Type types.TypeID
	Span source.Span
}

// Case is a resolved variant alternative. Payload is NoTypeID for unit cases.
// Tag equals the case index.
type Case struct {
	Name    source.StringID
	Payload types.TypeID
	Tag     int
	Span    source.Span
}

// Def is one registry entry.
//
// Generic records and variants are stored verbatim (Generic set, Decl kept,
// no fields) and never lowered directly. Each concrete instantiation is a
// separate Def whose Origin points at the generic and whose Name is the
// mangled instance name.
type Def struct {
	ID      DefID
	Kind    DefKind
	Name    source.StringID
	Span    source.Span
	Public  bool
	Generic bool
	Origin  DefID
	Args    []types.TypeID

	// Type is the nominal type of a concrete record/variant.
	Type types.TypeID

	Record  *ast.RecordDecl
	Variant *ast.VariantDecl
	Trait   *ast.TraitDecl
	Builtin types.Builtin

	// Fields and Cases are filled once the definition is resolved.
	Fields   []Field
	Cases    []Case
	Resolved bool

	// Shadowed marks a builtin hidden by a user type of the same name.
	Shadowed bool
}

// TypeParams returns the declared generic parameters.
func (d *Def) TypeParams() []ast.TypeParam {
	switch {
	case d.Record != nil:
		return d.Record.TypeParams
	case d.Variant != nil:
		return d.Variant.TypeParams
	}
	return nil
}

// InlineMethods returns methods declared inside the type body.
func (d *Def) InlineMethods() []*ast.FnDecl {
	switch {
	case d.Record != nil:
		return d.Record.Methods
	case d.Variant != nil:
		return d.Variant.Methods
	}
	return nil
}

// FieldIndex finds a field by name.
func (d *Def) FieldIndex(name source.StringID) (int, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// CaseIndex finds a variant case by name.
func (d *Def) CaseIndex(name source.StringID) (int, bool) {
	for i := range d.Cases {
		if d.Cases[i].Name == name {
			return i, true
		}
	}
	if d.Variant != nil && !d.Resolved {
		for i, c := range d.Variant.Cases {
			if c.Name == name {
				return i, true
			}
		}
	}
	return -1, false
}

// Func is a free function. Generic functions are only instantiated.
type Func struct {
	Name    source.StringID
	Symbol  string
	Decl    *ast.FnDecl
	Generic bool
}

// Method is an inline, inherent-impl or trait-impl method registered under
// its mangled symbol. Owner is the canonical name of the receiver type.
type Method struct {
	Name     source.StringID
	Symbol   string
	Owner    string
	OwnerDef DefID
	Trait    source.StringID
	Decl     *ast.FnDecl
	// Default marks a trait default body used for an implementing type.
	Default bool
	// Self is the concrete receiver type; NoTypeID until the owner resolves.
	Self types.TypeID
	// Compiled is set by the lowering once the body is scheduled.
	Compiled bool
}

// IsStatic reports methods without a receiver.
func (m *Method) IsStatic() bool { return m.Decl.Self == ast.SelfNone }

// Impl is a registered impl block.
type Impl struct {
	Trait   source.StringID
	Decl    *ast.ImplDecl
	Owner   string
	Generic bool
	Origin  DefID // generic impls: the generic record/variant they extend
	Span    source.Span
}
