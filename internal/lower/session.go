// Package lower turns a registered syntax tree into a lir.Module.
//
// Lowering runs in passes: every item is registered, definitions are
// resolved, concrete functions and methods are declared, method bodies
// are compiled and finally free function bodies. Generic functions are
// compiled on demand, when the monomorphization engine hands an instance
// back through LowerInstance.
//
// All per-function state lives in a funcLowerer owned by exactly one body;
// the Session only holds what is shared by the whole unit (caches,
// counters, the module under construction).
package lower

import (
	"context"
	"errors"

	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/layout"
	"kiln/internal/lir"
	"kiln/internal/mono"
	"kiln/internal/registry"
	"kiln/internal/rtabi"
	"kiln/internal/source"
	"kiln/internal/trace"
	"kiln/internal/types"
)

// errLoweringAborted is returned once a fatal diagnostic has been reported
// for the current function. The session moves on to the next function.
var errLoweringAborted = errors.New("lowering aborted")

// Options tune the lowering of one compilation unit.
type Options struct {
	ModuleName string
	// MaxDepth bounds generic nesting; zero means mono.DefaultMaxDepth.
	MaxDepth int
	// DefaultInt and DefaultFloat type unannotated literals.
	DefaultInt   string
	DefaultFloat string
	// ReleaseTracking enables release calls at scope exit.
	ReleaseTracking bool
}

func DefaultOptions() Options {
	return Options{
		ModuleName:      "main",
		MaxDepth:        mono.DefaultMaxDepth,
		DefaultInt:      "i32",
		DefaultFloat:    "f64",
		ReleaseTracking: true,
	}
}

// funcSig is a declared function: source-level parameter types plus the
// lir function carrying the body.
type funcSig struct {
	name   string
	fn     *lir.Func
	params []types.TypeID
	result types.TypeID
	// recv is the receiver type of methods, NoTypeID otherwise.
	recv types.TypeID
	self ast.SelfKind
	// env marks closures and thunks taking an environment pointer first.
	env bool
	// dropImpl marks Drop.drop bodies; their receiver is released by the
	// glue that called them.
	dropImpl bool
}

// argBase is the index of the first source parameter in fn.Params.
func (sig *funcSig) argBase() int {
	n := 0
	if sig.env {
		n++
	}
	if sig.recv != types.NoTypeID {
		n++
	}
	return n
}

type symbols struct {
	self, drop, dropTrait source.StringID
	some, none, ok, err  source.StringID
	print, println       source.StringID
}

// Session lowers one compilation unit.
type Session struct {
	ctx    context.Context
	tracer trace.Tracer
	pass   *trace.Span

	strs *source.Interner
	tys  *types.Interner
	bt   types.Builtins
	reg  *registry.Registry
	mono *mono.Engine
	rep  diag.Reporter
	errs int
	opt  Options

	mod *lir.Module
	lay *layout.LayoutEngine

	defaultInt   types.TypeID
	defaultFloat types.TypeID

	ltypes   map[types.TypeID]lir.TypeID
	sigs     map[string]*funcSig
	closures map[string]int
	glue     map[types.TypeID]string
	drops    map[types.TypeID]bool
	sym      symbols
}

// countingReporter counts errors on their way to the real sink.
type countingReporter struct {
	next   diag.Reporter
	errors *int
}

func (r countingReporter) Report(code diag.Code, sev diag.Severity, primary source.Span, msg string, notes []diag.Note) {
	if sev == diag.SevError {
		*r.errors++
	}
	r.next.Report(code, sev, primary, msg, notes)
}

// NewSession prepares a session. The tracer is taken from ctx.
func NewSession(ctx context.Context, strs *source.Interner, rep diag.Reporter, opt Options) *Session {
	if rep == nil {
		rep = diag.NopReporter{}
	}
	if opt.ModuleName == "" {
		opt.ModuleName = "main"
	}
	if opt.MaxDepth <= 0 {
		opt.MaxDepth = mono.DefaultMaxDepth
	}
	tys := types.NewInterner(strs)
	s := &Session{
		ctx:      ctx,
		tracer:   trace.FromContext(ctx),
		strs:     strs,
		tys:      tys,
		bt:       tys.Builtins(),
		reg:      registry.New(strs, tys),
		opt:      opt,
		mod:      lir.NewModule(opt.ModuleName),
		ltypes:   make(map[types.TypeID]lir.TypeID, 64),
		sigs:     make(map[string]*funcSig, 64),
		closures: make(map[string]int),
		glue:     make(map[types.TypeID]string),
		drops:    make(map[types.TypeID]bool),
	}
	s.rep = countingReporter{next: diag.NewDedupReporter(rep), errors: &s.errs}
	s.mono = mono.New(s.reg, s.rep, mono.Options{MaxDepth: opt.MaxDepth})
	s.mono.SetLowerer(s)
	s.lay = layout.New(layout.X86_64LinuxGNU(), s.mod.Types)
	s.defaultInt = s.primitive(opt.DefaultInt, s.bt.I32)
	s.defaultFloat = s.primitive(opt.DefaultFloat, s.bt.F64)
	s.sym = symbols{
		self:      strs.Intern("self"),
		drop:      strs.Intern("drop"),
		dropTrait: strs.Intern("Drop"),
		some:      strs.Intern("Some"),
		none:      strs.Intern("None"),
		ok:        strs.Intern("Ok"),
		err:       strs.Intern("Err"),
		print:     strs.Intern("print"),
		println:   strs.Intern("println"),
	}
	return s
}

func (s *Session) primitive(name string, fallback types.TypeID) types.TypeID {
	if t, ok := s.tys.Primitive(name); ok {
		return t
	}
	return fallback
}

func (s *Session) Types() *types.Interner { return s.tys }

func (s *Session) Registry() *registry.Registry { return s.reg }

func (s *Session) Mono() *mono.Engine { return s.mono }

func (s *Session) Module() *lir.Module { return s.mod }

// Errors counts error diagnostics reported so far.
func (s *Session) Errors() int { return s.errs }

func (s *Session) name(id source.StringID) string {
	return s.strs.MustLookup(id)
}

// Lower runs every pass over units and returns the module. ok is false
// when any error was reported; the module is nil when lowering never
// started because the definitions are broken.
func (s *Session) Lower(units ...*ast.Unit) (mod *lir.Module, ok bool) {
	driver := trace.Begin(s.tracer, trace.ScopePass, "lower", trace.CurrentSpan(s.ctx))
	defer func() { driver.End(s.mod.Name) }()

	s.runPass("register", driver, func() {
		for _, u := range units {
			for _, it := range u.Items {
				s.reg.Register(it, s.rep)
			}
		}
		s.reg.Seal(s.rep)
	})
	resolved := false
	s.runPass("resolve", driver, func() { resolved = s.mono.ResolveDefinitions() })
	if !resolved || s.errs > 0 {
		return nil, false
	}
	s.runPass("declare", driver, s.declareAll)
	s.runPass("methods", driver, s.compileMethods)
	s.runPass("functions", driver, s.compileFuncs)
	s.runPass("validate", driver, s.validate)
	return s.mod, s.errs == 0
}

func (s *Session) runPass(name string, parent *trace.Span, fn func()) {
	s.pass = trace.Begin(s.tracer, trace.ScopePass, name, parent.ID())
	fn()
	s.pass.End("")
}

// declareAll declares every concrete function and method so bodies can
// call each other regardless of declaration order.
func (s *Session) declareAll() {
	for _, f := range s.reg.Funcs() {
		if f.Generic {
			continue
		}
		s.declareFunc(f)
	}
	for _, owner := range s.reg.MethodOwners() {
		for _, m := range s.reg.MethodSet(owner).Methods {
			if m.Self == types.NoTypeID || m.Decl.IsGeneric() {
				continue
			}
			s.declareMethod(m)
		}
	}
}

func (s *Session) compileMethods() {
	// Owners may grow while bodies instantiate generic types.
	for i := 0; i < len(s.reg.MethodOwners()); i++ {
		ms := s.reg.MethodSet(s.reg.MethodOwners()[i])
		for j := 0; j < len(ms.Methods); j++ {
			m := ms.Methods[j]
			if m.Self == types.NoTypeID || m.Decl.IsGeneric() || m.Decl.Body == nil {
				continue
			}
			s.ensureMethod(m)
		}
	}
}

func (s *Session) compileFuncs() {
	for _, f := range s.reg.Funcs() {
		if f.Generic {
			continue
		}
		sig, ok := s.declareFunc(f)
		if !ok || len(sig.fn.Blocks) > 0 {
			continue
		}
		s.compile(sig, f.Decl, nil)
	}
}

func (s *Session) validate() {
	if err := lir.Validate(s.mod); err != nil {
		diag.ReportError(s.rep, diag.IRInvalid, source.NoSpan, "invalid IR: "+err.Error()).Emit()
	}
	if err := rtabi.Check(s.mod); err != nil {
		diag.ReportError(s.rep, diag.IRInvalid, source.NoSpan, "runtime ABI mismatch: "+err.Error()).Emit()
	}
}

// resolveSig resolves the written parameter and result types of decl.
func (s *Session) resolveSig(decl *ast.FnDecl, env mono.Env) (params []types.TypeID, result types.TypeID, ok bool) {
	ok = true
	params = make([]types.TypeID, len(decl.Params))
	for i, p := range decl.Params {
		if p.Type == nil {
			diag.ReportError(s.rep, diag.InputBadType, p.Span,
				"parameter `"+s.name(p.Name)+"` needs a type").Emit()
			ok = false
			continue
		}
		params[i] = s.mono.ResolveType(p.Type, env)
		if params[i] == types.NoTypeID {
			ok = false
		}
	}
	result = s.mono.ResolveType(decl.Result, env)
	if result == types.NoTypeID {
		ok = false
	}
	return params, result, ok
}

func paramNames(strs *source.Interner, ps []ast.Param) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = strs.MustLookup(p.Name)
	}
	return out
}

// declare creates the lir function of a signature. Receivers other than
// by-value ones are passed by address.
func (s *Session) declare(name string, kind lir.FuncKind, span source.Span, recv types.TypeID, self ast.SelfKind, names []string, params []types.TypeID, result types.TypeID, env bool) *funcSig {
	var ps []lir.Param
	if env {
		ps = append(ps, lir.Param{Name: "env", Type: s.mod.Types.Ptr})
	}
	if recv != types.NoTypeID {
		rt := s.mod.Types.Ptr
		if self == ast.SelfValue {
			rt = s.lirType(recv)
		}
		ps = append(ps, lir.Param{Name: "self", Type: rt})
	}
	for i, p := range params {
		n := ""
		if i < len(names) {
			n = names[i]
		}
		ps = append(ps, lir.Param{Name: n, Type: s.lirType(p)})
	}
	f := s.mod.NewFunc(name, kind, s.resultType(result), ps)
	f.Span = span
	sig := &funcSig{name: name, fn: f, params: params, result: result, recv: recv, self: self, env: env}
	s.sigs[name] = sig
	return sig
}

func (s *Session) declareFunc(f *registry.Func) (*funcSig, bool) {
	if sig, ok := s.sigs[f.Symbol]; ok {
		return sig, true
	}
	params, result, ok := s.resolveSig(f.Decl, nil)
	if !ok {
		return nil, false
	}
	return s.declare(f.Symbol, lir.FuncPlain, f.Decl.Span, types.NoTypeID, ast.SelfNone,
		paramNames(s.strs, f.Decl.Params), params, result, false), true
}

func (s *Session) methodEnv(m *registry.Method) mono.Env {
	return mono.Env{s.mono.SelfSym(): m.Self}
}

func (s *Session) declareMethod(m *registry.Method) (*funcSig, bool) {
	if sig, ok := s.sigs[m.Symbol]; ok {
		return sig, true
	}
	params, result, ok := s.resolveSig(m.Decl, s.methodEnv(m))
	if !ok {
		return nil, false
	}
	recv := types.NoTypeID
	if !m.IsStatic() {
		recv = m.Self
	}
	sig := s.declare(m.Symbol, lir.FuncMethod, m.Decl.Span, recv, m.Decl.Self,
		paramNames(s.strs, m.Decl.Params), params, result, false)
	sig.dropImpl = s.isDropMethod(m)
	return sig, true
}

func (s *Session) isDropMethod(m *registry.Method) bool {
	return m.Trait == s.sym.dropTrait && m.Name == s.sym.drop
}

// ensureMethod declares m and compiles its body on first use.
func (s *Session) ensureMethod(m *registry.Method) (*funcSig, bool) {
	sig, ok := s.declareMethod(m)
	if !ok {
		return nil, false
	}
	if !m.Compiled && m.Decl.Body != nil {
		m.Compiled = true
		s.compile(sig, m.Decl, s.methodEnv(m))
	}
	return sig, true
}

// LowerInstance compiles a function or method instance produced by the
// monomorphization engine. The caller's state is untouched: the instance
// gets a lowerer of its own.
func (s *Session) LowerInstance(fi *mono.FuncInstance) {
	params, result, ok := s.resolveSig(fi.Decl, fi.Env)
	if !ok {
		return
	}
	recv := types.NoTypeID
	if fi.Self != types.NoTypeID && fi.Decl.Self != ast.SelfNone {
		recv = fi.Self
	}
	sig := s.declare(fi.Name, lir.FuncInstance, fi.Decl.Span, recv, fi.Decl.Self,
		paramNames(s.strs, fi.Decl.Params), params, result, false)
	s.compile(sig, fi.Decl, fi.Env)
}

// compile lowers the body of decl into sig. A body that fails keeps its
// signature and becomes a single unreachable block.
func (s *Session) compile(sig *funcSig, decl *ast.FnDecl, env mono.Env) {
	if decl.Body == nil {
		return
	}
	var parent uint64
	if s.pass != nil {
		parent = s.pass.ID()
	}
	span := trace.Begin(s.tracer, trace.ScopeUnit, sig.name, parent)
	l := newFuncLowerer(s, sig, env)
	l.span = span
	err := l.lowerFunc(decl)
	if err != nil {
		sig.fn.Reset()
		b := lir.NewBuilder(s.mod)
		b.Start(sig.fn)
		b.Unreachable()
		span.End("aborted")
		return
	}
	span.End("")
}
