// Package treeio decodes the syntax tree handed over by the external
// parser. The tree is a YAML document:
//
//	unit: main
//	file: src/main.kn        # optional source for explicit spans
//	items:
//	  - fn: add
//	    params: [{name: a, type: i32}, {name: b, type: i32}]
//	    result: i32
//	    body: {tail: {op: "+", l: a, r: b}}
//
// A document holds one unit, or several under `units:`. Nodes may carry
// `span: [start, end]` byte offsets into the unit's file; nodes without one
// point at their own position in the YAML text, so diagnostics stay
// useful for hand-written trees.
package treeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"kiln/internal/ast"
	"kiln/internal/source"
)

// maxErrors bounds the errors collected from one document.
const maxErrors = 20

// DecodeFile reads a tree document from disk.
func DecodeFile(path string, strs *source.Interner, fs *source.FileSet) ([]*ast.Unit, error) {
	// #nosec G304 -- the tree path is given on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("treeio: %w", err)
	}
	return Decode(path, data, strs, fs)
}

// Decode parses a tree document named name. The document text is added
// to fs so spans can point into it.
func Decode(name string, data []byte, strs *source.Interner, fs *source.FileSet) ([]*ast.Unit, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("treeio: %s: %w", name, err)
	}
	d := &decoder{
		strs: strs,
		fs:   fs,
		dir:  filepath.Dir(name),
		doc:  fs.AddVirtual(name, data),
	}
	d.file = d.doc
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("treeio: %s: empty document", name)
	}
	top := root.Content[0]
	var units []*ast.Unit
	if list := field(top, "units"); list != nil {
		for _, n := range d.seq(list) {
			if u := d.unit(n); u != nil {
				units = append(units, u)
			}
		}
	} else if u := d.unit(top); u != nil {
		units = append(units, u)
	}
	if len(d.errs) > 0 {
		return nil, fmt.Errorf("treeio: %s: %w", name, errors.Join(d.errs...))
	}
	return units, nil
}

type decoder struct {
	strs *source.Interner
	fs   *source.FileSet
	dir  string
	doc  source.FileID // the YAML text
	file source.FileID // source of explicit spans in the current unit
	errs []error
}

func (d *decoder) failf(n *yaml.Node, format string, args ...any) {
	if len(d.errs) == maxErrors {
		d.errs = append(d.errs, errors.New("too many errors"))
	}
	if len(d.errs) > maxErrors {
		return
	}
	line, col := 0, 0
	if n != nil {
		line, col = n.Line, n.Column
	}
	d.errs = append(d.errs, fmt.Errorf("%d:%d: %s", line, col, fmt.Sprintf(format, args...)))
}

func (d *decoder) sym(name string) source.StringID {
	if name == "" {
		return source.NoStringID
	}
	return d.strs.Intern(name)
}

// span is the explicit span of n or its position in the YAML text.
func (d *decoder) span(n *yaml.Node) source.Span {
	if n == nil {
		return source.Span{File: d.doc}
	}
	if s := field(n, "span"); s != nil {
		if s.Kind == yaml.SequenceNode && len(s.Content) == 2 {
			var se [2]uint32
			if err := s.Decode(&se); err == nil && se[0] <= se[1] {
				if f := d.fs.Get(d.file); f != nil && f.Flags&source.FileMissing == 0 && int(se[1]) > len(f.Content) {
					d.failf(s, "span [%d, %d] is outside %s (%d bytes)", se[0], se[1], f.Path, len(f.Content))
					return source.Span{File: d.doc}
				}
				return source.Span{File: d.file, Start: se[0], End: se[1]}
			}
		}
		d.failf(s, "span must be [start, end]")
	}
	off := d.offset(n.Line, n.Column)
	end := off + 1
	if n.Kind == yaml.ScalarNode {
		end = off + uint32(max(len(n.Value), 1)) // #nosec G115 -- scalar length is bounded by the document size
	}
	return source.Span{File: d.doc, Start: off, End: end}
}

func (d *decoder) offset(line, col int) uint32 {
	f := d.fs.Get(d.doc)
	if f == nil || line <= 0 {
		return 0
	}
	start := uint32(0)
	if line > 1 && line-2 < len(f.LineIdx) {
		start = f.LineIdx[line-2] + 1
	}
	return start + uint32(max(col-1, 0)) // #nosec G115 -- columns are bounded by the line length
}

func (d *decoder) unit(n *yaml.Node) *ast.Unit {
	if n.Kind != yaml.MappingNode {
		d.failf(n, "unit must be a mapping")
		return nil
	}
	u := &ast.Unit{Path: d.str(field(n, "unit")), File: d.doc}
	if u.Path == "" {
		u.Path = "main"
	}
	d.file = d.doc
	if f := field(n, "file"); f != nil {
		u.File = d.sourceFile(f, field(n, "source"))
		d.file = u.File
	}
	for _, it := range d.seq(field(n, "items")) {
		if item := d.item(it); item != nil {
			u.Items = append(u.Items, item)
		}
	}
	return u
}

// sourceFile registers the unit's source: inline text when given,
// otherwise the file relative to the document.
func (d *decoder) sourceFile(path, inline *yaml.Node) source.FileID {
	p := d.str(path)
	if inline != nil {
		return d.fs.AddVirtual(p, []byte(d.str(inline)))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(d.dir, p)
	}
	id, err := d.fs.Load(p)
	if err != nil {
		d.failf(path, "%v", err)
		return d.doc
	}
	return id
}

// ---- node helpers

// field returns the value of key in mapping n.
func field(n *yaml.Node, key string) *yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// pick returns the first of keys present in mapping n.
func pick(n *yaml.Node, keys ...string) (string, *yaml.Node) {
	for _, k := range keys {
		if v := field(n, k); v != nil {
			return k, v
		}
	}
	return "", nil
}

func (d *decoder) seq(n *yaml.Node) []*yaml.Node {
	if n == nil || isNull(n) {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.SequenceNode {
		d.failf(n, "expected a list")
		return nil
	}
	return n.Content
}

// pairs returns the key/value nodes of mapping n in document order.
func (d *decoder) pairs(n *yaml.Node) [][2]*yaml.Node {
	if n == nil || isNull(n) {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		d.failf(n, "expected a mapping")
		return nil
	}
	out := make([][2]*yaml.Node, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, [2]*yaml.Node{n.Content[i], n.Content[i+1]})
	}
	return out
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func (d *decoder) str(n *yaml.Node) string {
	if n == nil || isNull(n) {
		return ""
	}
	if n.Kind != yaml.ScalarNode {
		d.failf(n, "expected a scalar")
		return ""
	}
	return n.Value
}

func (d *decoder) boolean(n *yaml.Node) bool {
	if n == nil {
		return false
	}
	var v bool
	if err := n.Decode(&v); err != nil {
		d.failf(n, "expected true or false")
	}
	return v
}

func (d *decoder) integer(n *yaml.Node) int64 {
	var v int64
	if n == nil {
		d.failf(n, "missing integer")
		return 0
	}
	if err := n.Decode(&v); err != nil {
		d.failf(n, "expected an integer")
	}
	return v
}

// typ parses a type written as a scalar; nil stays nil.
func (d *decoder) typ(n *yaml.Node) *ast.TypeExpr {
	if n == nil || isNull(n) {
		return nil
	}
	t, err := ParseType(d.str(n), d.strs, d.span(n))
	if err != nil {
		d.failf(n, "%v", err)
		return nil
	}
	return t
}

func (d *decoder) types(n *yaml.Node) []*ast.TypeExpr {
	var out []*ast.TypeExpr
	for _, t := range d.seq(n) {
		if te := d.typ(t); te != nil {
			out = append(out, te)
		}
	}
	return out
}
