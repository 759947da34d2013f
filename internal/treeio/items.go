package treeio

import (
	"gopkg.in/yaml.v3"

	"kiln/internal/ast"
)

func (d *decoder) item(n *yaml.Node) *ast.Item {
	key, v := pick(n, "fn", "record", "variant", "trait", "impl", "alias")
	it := &ast.Item{Span: d.span(n)}
	switch key {
	case "fn":
		it.Kind, it.Fn = ast.ItemFn, d.fn(n, v)
	case "record":
		it.Kind = ast.ItemRecord
		it.Record = &ast.RecordDecl{
			Name:       d.sym(d.str(v)),
			TypeParams: d.typeParams(field(n, "type_params")),
			Methods:    d.methods(field(n, "methods")),
			Public:     d.boolean(field(n, "pub")),
		}
		for _, p := range d.pairs(field(n, "fields")) {
			it.Record.Fields = append(it.Record.Fields, ast.FieldDecl{
				Name: d.sym(d.str(p[0])), Type: d.typ(p[1]), Span: d.span(p[0]),
			})
		}
	case "variant":
		it.Kind = ast.ItemVariant
		it.Variant = &ast.VariantDecl{
			Name:       d.sym(d.str(v)),
			TypeParams: d.typeParams(field(n, "type_params")),
			Methods:    d.methods(field(n, "methods")),
			Public:     d.boolean(field(n, "pub")),
		}
		for _, c := range d.seq(field(n, "cases")) {
			it.Variant.Cases = append(it.Variant.Cases, d.variantCase(c))
		}
	case "trait":
		it.Kind = ast.ItemTrait
		it.Trait = &ast.TraitDecl{Name: d.sym(d.str(v)), Methods: d.methods(field(n, "methods"))}
	case "impl":
		it.Kind = ast.ItemImpl
		it.Impl = &ast.ImplDecl{
			Trait:      d.sym(d.str(v)),
			TypeParams: d.typeParams(field(n, "type_params")),
			Target:     d.typ(field(n, "for")),
			Methods:    d.methods(field(n, "methods")),
		}
		if it.Impl.Target == nil {
			d.failf(n, "impl needs a `for` type")
			return nil
		}
	case "alias":
		it.Kind = ast.ItemAlias
		it.Alias = &ast.AliasDecl{Name: d.sym(d.str(v)), Target: d.typ(field(n, "type"))}
	default:
		d.failf(n, "item needs one of fn, record, variant, trait, impl, alias")
		return nil
	}
	return it
}

// variantCase reads `Name`, `{Name: Payload}` or `{name: Name, payload: T}`.
func (d *decoder) variantCase(n *yaml.Node) ast.CaseDecl {
	if n.Kind == yaml.ScalarNode {
		return ast.CaseDecl{Name: d.sym(d.str(n)), Span: d.span(n)}
	}
	if name := field(n, "name"); name != nil {
		return ast.CaseDecl{Name: d.sym(d.str(name)), Payload: d.typ(field(n, "payload")), Span: d.span(n)}
	}
	ps := d.pairs(n)
	if len(ps) != 1 {
		d.failf(n, "a case is a name or a single `Name: Payload` pair")
		return ast.CaseDecl{}
	}
	return ast.CaseDecl{Name: d.sym(d.str(ps[0][0])), Payload: d.typ(ps[0][1]), Span: d.span(ps[0][0])}
}

func (d *decoder) methods(n *yaml.Node) []*ast.FnDecl {
	var out []*ast.FnDecl
	for _, m := range d.seq(n) {
		out = append(out, d.fn(m, field(m, "fn")))
	}
	return out
}

func (d *decoder) fn(n, name *yaml.Node) *ast.FnDecl {
	if name == nil {
		d.failf(n, "method needs `fn: name`")
	}
	f := &ast.FnDecl{
		Name:       d.sym(d.str(name)),
		TypeParams: d.typeParams(field(n, "type_params")),
		Params:     d.params(field(n, "params")),
		Result:     d.typ(field(n, "result")),
		Public:     d.boolean(field(n, "pub")),
		Span:       d.span(n),
	}
	switch s := d.str(field(n, "self")); s {
	case "":
	case "value":
		f.Self = ast.SelfValue
	case "ref":
		f.Self = ast.SelfRef
	case "mut":
		f.Self = ast.SelfMut
	default:
		d.failf(field(n, "self"), "self must be value, ref or mut, got %q", s)
	}
	if body := field(n, "body"); body != nil && !isNull(body) {
		f.Body = d.block(body)
	}
	return f
}

// params reads `[x, {name: y, type: i32}]`.
func (d *decoder) params(n *yaml.Node) []ast.Param {
	var out []ast.Param
	for _, p := range d.seq(n) {
		if p.Kind == yaml.ScalarNode {
			out = append(out, ast.Param{Name: d.sym(d.str(p)), Span: d.span(p)})
			continue
		}
		out = append(out, ast.Param{
			Name: d.sym(d.str(field(p, "name"))),
			Type: d.typ(field(p, "type")),
			Span: d.span(p),
		})
	}
	return out
}

// typeParams reads `[T, {name: U, bounds: [Show]}]`.
func (d *decoder) typeParams(n *yaml.Node) []ast.TypeParam {
	var out []ast.TypeParam
	for _, p := range d.seq(n) {
		if p.Kind == yaml.ScalarNode {
			out = append(out, ast.TypeParam{Name: d.sym(d.str(p)), Span: d.span(p)})
			continue
		}
		tp := ast.TypeParam{Name: d.sym(d.str(field(p, "name"))), Span: d.span(p)}
		for _, b := range d.seq(field(p, "bounds")) {
			tp.Bounds = append(tp.Bounds, d.sym(d.str(b)))
		}
		out = append(out, tp)
	}
	return out
}
