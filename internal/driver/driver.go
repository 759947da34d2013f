// Package driver runs the lowering pipeline over tree documents: decode,
// borrow gate, lower, validate, with an optional on-disk artifact cache.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kiln/internal/artifact"
	"kiln/internal/ast"
	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/lower"
	"kiln/internal/source"
	"kiln/internal/trace"
	"kiln/internal/treeio"
)

// Options configure a driver run.
type Options struct {
	Config config.Config
	// Jobs bounds parallel documents; zero means GOMAXPROCS.
	Jobs     int
	Cache    *DiskCache
	Gate     BorrowGate
	Observer PhaseObserver
}

// Result is the outcome for one tree document.
type Result struct {
	Path   string
	Module *lir.Module
	Bag    *diag.Bag
	Files  *source.FileSet
	Source Digest
	Cached bool
	// Err is set when the document could not be read or decoded; Bag
	// then holds nothing useful.
	Err error
}

// OK reports a module lowered without errors.
func (r *Result) OK() bool {
	return r.Err == nil && r.Module != nil && !r.Bag.HasErrors()
}

// LowerFile reads and lowers one tree document.
func LowerFile(ctx context.Context, path string, opt Options) *Result {
	// #nosec G304 -- tree paths come from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return &Result{Path: path, Bag: diag.NewBag(1), Files: source.NewFileSet(), Err: err}
	}
	return LowerSource(ctx, path, data, opt)
}

// LowerSource lowers a tree document held in memory. name is used for
// spans and as the default module name.
func LowerSource(ctx context.Context, name string, data []byte, opt Options) *Result {
	res := &Result{
		Path:   name,
		Bag:    diag.NewBag(opt.Config.Diagnostics.Max),
		Files:  source.NewFileSet(),
		Source: SourceDigest(data),
	}
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeDriver, "document", trace.CurrentSpan(ctx))
	span.Attr("path", name)
	defer func() { span.End(outcome(res)) }()
	ctx = trace.WithSpan(ctx, span)

	key := CacheKey(data, opt.Config)
	if opt.Cache != nil && fromCache(opt, key, res) {
		return res
	}

	strs := source.NewInterner()
	done := opt.Observer.phase(name, "decode")
	units, err := treeio.Decode(name, data, strs, res.Files)
	done()
	if err != nil {
		res.Err = err
		return res
	}

	if opt.Gate != nil {
		done = opt.Observer.phase(name, "gate")
		err := opt.Gate.Check(ctx, name, data)
		done()
		if err != nil {
			if !errors.Is(err, ErrBorrowCheck) {
				res.Err = err
				return res
			}
			diag.ReportError(diag.BagReporter{Bag: res.Bag}, diag.InputBorrowGate, unitSpan(units), err.Error()).Emit()
			return res
		}
	}

	done = opt.Observer.phase(name, "lower")
	sess := lower.NewSession(ctx, strs, diag.BagReporter{Bag: res.Bag}, opt.Config.LowerOptions(moduleName(name, units)))
	mod, _ := sess.Lower(units...)
	done()
	res.Module = mod
	if opt.Config.Diagnostics.WarningsAsErrors {
		res.Bag.PromoteWarnings()
	}
	res.Bag.Sort()

	// Only clean results are cached; a hit replays no diagnostics.
	if opt.Cache != nil && mod != nil && res.Bag.Len() == 0 {
		done = opt.Observer.phase(name, "cache")
		toCache(ctx, opt.Cache, key, res)
		done()
	}
	return res
}

func fromCache(opt Options, key Digest, res *Result) bool {
	var p DiskPayload
	hit, err := opt.Cache.Get(key, &p)
	if err != nil || !hit || p.Source != res.Source {
		return false
	}
	mod, _, err := artifact.Unmarshal(p.Artifact)
	if err != nil {
		return false
	}
	res.Module, res.Cached = mod, true
	return true
}

func toCache(ctx context.Context, c *DiskCache, key Digest, res *Result) {
	data, err := artifact.Marshal(res.Module, artifact.NewHeader(res.Module, res.Source.String()))
	if err == nil {
		err = c.Put(key, &DiskPayload{Module: res.Module.Name, Source: res.Source, Artifact: data})
	}
	if err != nil {
		trace.Point(trace.FromContext(ctx), trace.ScopeDriver, "cache-write-failed", err.Error(), trace.CurrentSpan(ctx))
	}
}

// moduleName is the single unit's path, or the document's base name.
func moduleName(name string, units []*ast.Unit) string {
	if len(units) == 1 && units[0].Path != "" {
		return units[0].Path
	}
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func unitSpan(units []*ast.Unit) source.Span {
	if len(units) == 0 {
		return source.NoSpan
	}
	return source.Span{File: units[0].File}
}

func outcome(r *Result) string {
	switch {
	case r.Err != nil:
		return "failed: " + r.Err.Error()
	case r.Cached:
		return "cached"
	case r.OK():
		return "ok"
	}
	return fmt.Sprintf("%d errors", r.Bag.Count(diag.SevError))
}
