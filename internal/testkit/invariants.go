// Package testkit holds checks shared by tests and fuzz harnesses.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"kiln/internal/ast"
	"kiln/internal/source"
)

// CheckSpanInvariants runs a minimal set of span invariants on decoded units:
// 1) every span points at a registered file
// 2) every span is ordered and lies within its file's content
func CheckSpanInvariants(fs *source.FileSet, units []*ast.Unit) error {
	c := spanChecker{fs: fs}
	for _, u := range units {
		if u == nil {
			return fmt.Errorf("nil unit")
		}
		if fs.Get(u.File) == nil {
			return fmt.Errorf("unit %s: unknown file id %d", u.Path, u.File)
		}
		for i, it := range u.Items {
			if it == nil {
				return fmt.Errorf("unit %s: nil item %d", u.Path, i)
			}
			if err := c.item(it); err != nil {
				return fmt.Errorf("unit %s: item %d (%s): %w", u.Path, i, it.Kind, err)
			}
		}
	}
	return nil
}

type spanChecker struct {
	fs *source.FileSet
}

func (c spanChecker) span(sp source.Span) error {
	f := c.fs.Get(sp.File)
	if f == nil {
		return fmt.Errorf("span %v: unknown file", sp)
	}
	if sp.End < sp.Start {
		return fmt.Errorf("span %v is reversed", sp)
	}
	if f.Flags&source.FileMissing != 0 {
		return nil
	}
	n, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if sp.End > n {
		return fmt.Errorf("span %v ends beyond %s (%d bytes)", sp, f.Path, n)
	}
	return nil
}

func (c spanChecker) item(it *ast.Item) error {
	if err := c.span(it.Span); err != nil {
		return err
	}
	var fns []*ast.FnDecl
	switch it.Kind {
	case ast.ItemFn:
		fns = append(fns, it.Fn)
	case ast.ItemRecord:
		for _, f := range it.Record.Fields {
			if err := c.span(f.Span); err != nil {
				return fmt.Errorf("field: %w", err)
			}
		}
		fns = it.Record.Methods
	case ast.ItemVariant:
		for _, k := range it.Variant.Cases {
			if err := c.span(k.Span); err != nil {
				return fmt.Errorf("case: %w", err)
			}
		}
		fns = it.Variant.Methods
	case ast.ItemTrait:
		fns = it.Trait.Methods
	case ast.ItemImpl:
		fns = it.Impl.Methods
	}
	for _, fn := range fns {
		if err := c.fn(fn); err != nil {
			return err
		}
	}
	return nil
}

func (c spanChecker) fn(fn *ast.FnDecl) error {
	if fn == nil {
		return fmt.Errorf("nil function")
	}
	if err := c.span(fn.Span); err != nil {
		return fmt.Errorf("fn: %w", err)
	}
	for _, p := range fn.Params {
		if err := c.span(p.Span); err != nil {
			return fmt.Errorf("param: %w", err)
		}
	}
	if fn.Body == nil {
		return nil
	}
	return c.block(fn.Body)
}

func (c spanChecker) block(b *ast.Block) error {
	if err := c.span(b.Span); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	for _, st := range b.Stmts {
		if st == nil {
			return fmt.Errorf("nil statement")
		}
		if err := c.span(st.Span); err != nil {
			return fmt.Errorf("%v statement: %w", st.Kind, err)
		}
	}
	if b.Tail != nil {
		if err := c.span(b.Tail.Span); err != nil {
			return fmt.Errorf("tail: %w", err)
		}
	}
	return nil
}
