package ast

import (
	"fmt"

	"kiln/internal/source"
)

// Builder constructs tree nodes with interned names. Every node gets a
// distinct one-byte span in File so diagnostics stay distinguishable even
// for trees that never had source text.
type Builder struct {
	Strings *source.Interner
	File    source.FileID
	off     uint32
}

func NewBuilder(strs *source.Interner) *Builder {
	if strs == nil {
		strs = source.NewInterner()
	}
	return &Builder{Strings: strs}
}

// Sym interns name.
func (b *Builder) Sym(name string) source.StringID {
	if name == "" {
		return source.NoStringID
	}
	return b.Strings.Intern(name)
}

func (b *Builder) span() source.Span {
	b.off++
	return source.Span{File: b.File, Start: b.off, End: b.off + 1}
}

// ---- types

// T builds a named type, optionally with generic arguments.
func (b *Builder) T(name string, args ...*TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeNamed, Span: b.span(), Name: b.Sym(name), Args: args}
}

func (b *Builder) TTuple(elems ...*TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeTuple, Span: b.span(), Args: elems}
}

func (b *Builder) TArray(elem *TypeExpr, n int64) *TypeExpr {
	return &TypeExpr{Kind: TypeArray, Span: b.span(), Elem: elem, Len: n}
}

func (b *Builder) TSlice(elem *TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeSlice, Span: b.span(), Elem: elem}
}

func (b *Builder) TRef(elem *TypeExpr, mut bool) *TypeExpr {
	return &TypeExpr{Kind: TypeRef, Span: b.span(), Elem: elem, Mut: mut}
}

func (b *Builder) TFn(result *TypeExpr, params ...*TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeFn, Span: b.span(), Args: params, Elem: result}
}

// ---- expressions

func (b *Builder) expr(kind ExprKind, data ExprData) *Expr {
	return &Expr{Kind: kind, Span: b.span(), Data: data}
}

func (b *Builder) Int(v int64) *Expr {
	return b.expr(ExprLiteral, LiteralData{Kind: LiteralInt, Int: v})
}

func (b *Builder) Float(v float64) *Expr {
	return b.expr(ExprLiteral, LiteralData{Kind: LiteralFloat, Float: v})
}

func (b *Builder) Bool(v bool) *Expr {
	return b.expr(ExprLiteral, LiteralData{Kind: LiteralBool, Bool: v})
}

func (b *Builder) Str(v string) *Expr {
	return b.expr(ExprLiteral, LiteralData{Kind: LiteralString, String: v})
}

func (b *Builder) Char(v rune) *Expr {
	return b.expr(ExprLiteral, LiteralData{Kind: LiteralChar, Char: v})
}

func (b *Builder) UnitLit() *Expr {
	return b.expr(ExprLiteral, LiteralData{Kind: LiteralUnit})
}

func (b *Builder) Ident(name string) *Expr {
	return b.expr(ExprIdent, IdentData{Name: b.Sym(name)})
}

func (b *Builder) Bin(op BinaryOp, l, r *Expr) *Expr {
	return b.expr(ExprBinary, BinaryData{Op: op, Left: l, Right: r})
}

func (b *Builder) Un(op UnaryOp, x *Expr) *Expr {
	return b.expr(ExprUnary, UnaryData{Op: op, Operand: x})
}

// Call calls the function named name.
func (b *Builder) Call(name string, args ...*Expr) *Expr {
	return b.CallExpr(b.Ident(name), nil, args...)
}

// CallT calls a generic function with explicit type arguments.
func (b *Builder) CallT(name string, targs []*TypeExpr, args ...*Expr) *Expr {
	return b.CallExpr(b.Ident(name), targs, args...)
}

func (b *Builder) CallExpr(callee *Expr, targs []*TypeExpr, args ...*Expr) *Expr {
	return b.expr(ExprCall, CallData{Callee: callee, TypeArgs: targs, Args: args})
}

func (b *Builder) MCall(recv *Expr, method string, args ...*Expr) *Expr {
	return b.expr(ExprMethodCall, MethodCallData{Receiver: recv, Method: b.Sym(method), Args: args})
}

func (b *Builder) Field(target *Expr, name string) *Expr {
	return b.expr(ExprField, FieldData{Target: target, Field: b.Sym(name)})
}

func (b *Builder) TupleIdx(target *Expr, i int) *Expr {
	return b.expr(ExprTupleIndex, TupleIndexData{Target: target, Index: i})
}

func (b *Builder) Index(target, idx *Expr) *Expr {
	return b.expr(ExprIndex, IndexData{Target: target, Index: idx})
}

// F builds a record literal field initializer.
func (b *Builder) F(name string, value *Expr) FieldInit {
	return FieldInit{Name: b.Sym(name), Value: value, Span: b.span()}
}

func (b *Builder) Rec(typ *TypeExpr, fields ...FieldInit) *Expr {
	return b.expr(ExprRecordLit, RecordLitData{Type: typ, Fields: fields})
}

func (b *Builder) Tuple(elems ...*Expr) *Expr {
	return b.expr(ExprTupleLit, TupleLitData{Elems: elems})
}

func (b *Builder) Array(elems ...*Expr) *Expr {
	return b.expr(ExprArrayLit, ArrayLitData{Elems: elems})
}

func (b *Builder) Repeat(v *Expr, n int64) *Expr {
	return b.expr(ExprArrayRepeat, ArrayRepeatData{Value: v, Count: n})
}

func (b *Builder) Map(entries ...MapEntry) *Expr {
	return b.expr(ExprMapLit, MapLitData{Entries: entries})
}

func (b *Builder) Arm(pat *Pattern, body *Expr) MatchArm {
	return MatchArm{Pattern: pat, Body: body, Span: b.span()}
}

func (b *Builder) ArmIf(pat *Pattern, guard, body *Expr) MatchArm {
	return MatchArm{Pattern: pat, Guard: guard, Body: body, Span: b.span()}
}

func (b *Builder) Match(scrut *Expr, arms ...MatchArm) *Expr {
	return b.expr(ExprMatch, MatchData{Scrutinee: scrut, Arms: arms})
}

func (b *Builder) Cast(v *Expr, ty *TypeExpr) *Expr {
	return b.expr(ExprCast, CastData{Value: v, Target: ty})
}

// P builds a parameter; ty may be nil for closure parameters.
func (b *Builder) P(name string, ty *TypeExpr) Param {
	return Param{Name: b.Sym(name), Type: ty, Span: b.span()}
}

func (b *Builder) Closure(params []Param, result *TypeExpr, body *Expr) *Expr {
	return b.expr(ExprClosure, ClosureData{Params: params, Result: result, Body: body})
}

func (b *Builder) If(cond *Expr, then *Block, els *Expr) *Expr {
	return b.expr(ExprIf, IfData{Cond: cond, Then: then, Else: els})
}

func (b *Builder) BlockExpr(blk *Block) *Expr {
	return b.expr(ExprBlock, BlockData{Block: blk})
}

func (b *Builder) Range(start, end *Expr, inclusive bool) *Expr {
	return b.expr(ExprRange, RangeData{Start: start, End: end, Inclusive: inclusive})
}

func (b *Builder) Spawn(v *Expr) *Expr {
	return b.expr(ExprSpawn, SpawnData{Value: v})
}

// ---- statements

func (b *Builder) stmt(kind StmtKind, data StmtData) *Stmt {
	return &Stmt{Kind: kind, Span: b.span(), Data: data}
}

func (b *Builder) Let(name string, ty *TypeExpr, value *Expr) *Stmt {
	return b.stmt(StmtLet, LetData{Name: b.Sym(name), Type: ty, Value: value})
}

func (b *Builder) LetMut(name string, ty *TypeExpr, value *Expr) *Stmt {
	return b.stmt(StmtLet, LetData{Name: b.Sym(name), Mutable: true, Type: ty, Value: value})
}

func (b *Builder) LetPat(pat *Pattern, ty *TypeExpr, value *Expr) *Stmt {
	return b.stmt(StmtLet, LetData{Pattern: pat, Type: ty, Value: value})
}

func (b *Builder) ExprS(e *Expr) *Stmt {
	return b.stmt(StmtExpr, ExprStmtData{Expr: e})
}

func (b *Builder) Assign(target, value *Expr) *Stmt {
	return b.stmt(StmtAssign, AssignData{Op: AssignPlain, Target: target, Value: value})
}

func (b *Builder) AssignOp(op AssignOp, target, value *Expr) *Stmt {
	return b.stmt(StmtAssign, AssignData{Op: op, Target: target, Value: value})
}

// Return builds return v; v may be nil.
func (b *Builder) Return(v *Expr) *Stmt {
	return b.stmt(StmtReturn, ReturnData{Value: v})
}

func (b *Builder) While(cond *Expr, body *Block) *Stmt {
	return b.stmt(StmtWhile, WhileData{Cond: cond, Body: body})
}

func (b *Builder) Loop(body *Block) *Stmt {
	return b.stmt(StmtLoop, LoopData{Body: body})
}

func (b *Builder) For(name string, iter *Expr, body *Block) *Stmt {
	return b.stmt(StmtFor, ForData{Var: b.Sym(name), Iter: iter, Body: body})
}

func (b *Builder) Break() *Stmt { return b.stmt(StmtBreak, BreakData{}) }

func (b *Builder) Continue() *Stmt { return b.stmt(StmtContinue, ContinueData{}) }

// Block builds a block without a tail expression.
func (b *Builder) Block(stmts ...*Stmt) *Block {
	return &Block{Stmts: stmts, Span: b.span()}
}

// BlockTail builds a block whose value is tail.
func (b *Builder) BlockTail(tail *Expr, stmts ...*Stmt) *Block {
	return &Block{Stmts: stmts, Tail: tail, Span: b.span()}
}

// ---- patterns

func (b *Builder) PWild() *Pattern {
	return &Pattern{Kind: PatWildcard, Span: b.span()}
}

func (b *Builder) PIdent(name string) *Pattern {
	return &Pattern{Kind: PatIdent, Span: b.span(), Name: b.Sym(name)}
}

func (b *Builder) PLit(v *Expr) *Pattern {
	return &Pattern{Kind: PatLiteral, Span: b.span(), Value: v}
}

func (b *Builder) PRange(lo, hi *Expr, inclusive bool) *Pattern {
	return &Pattern{Kind: PatRange, Span: b.span(), Lo: lo, Hi: hi, Inclusive: inclusive}
}

func (b *Builder) PTuple(elems ...*Pattern) *Pattern {
	return &Pattern{Kind: PatTuple, Span: b.span(), Elems: elems}
}

func (b *Builder) PField(name string, pat *Pattern) FieldPattern {
	return FieldPattern{Name: b.Sym(name), Pattern: pat, Span: b.span()}
}

func (b *Builder) PRecord(typ string, rest bool, fields ...FieldPattern) *Pattern {
	return &Pattern{Kind: PatRecord, Span: b.span(), Type: b.Sym(typ), Fields: fields, Rest: rest}
}

// PVariant builds Type.Case(inner); typ may be "" and inner nil.
func (b *Builder) PVariant(typ, kase string, inner *Pattern) *Pattern {
	return &Pattern{Kind: PatVariant, Span: b.span(), Type: b.Sym(typ), Case: b.Sym(kase), Inner: inner}
}

func (b *Builder) PAlt(alts ...*Pattern) *Pattern {
	return &Pattern{Kind: PatAlt, Span: b.span(), Elems: alts}
}

// ---- declarations

func (b *Builder) TParams(names ...string) []TypeParam {
	out := make([]TypeParam, len(names))
	for i, n := range names {
		out[i] = TypeParam{Name: b.Sym(n), Span: b.span()}
	}
	return out
}

func (b *Builder) Fn(name string, params []Param, result *TypeExpr, body *Block) *FnDecl {
	return &FnDecl{Name: b.Sym(name), Params: params, Result: result, Body: body, Span: b.span()}
}

// Method builds a method with the given receiver kind.
func (b *Builder) Method(name string, self SelfKind, params []Param, result *TypeExpr, body *Block) *FnDecl {
	fn := b.Fn(name, params, result, body)
	fn.Self = self
	return fn
}

func (b *Builder) FieldD(name string, ty *TypeExpr) FieldDecl {
	return FieldDecl{Name: b.Sym(name), Type: ty, Span: b.span()}
}

func (b *Builder) Record(name string, fields ...FieldDecl) *RecordDecl {
	return &RecordDecl{Name: b.Sym(name), Fields: fields}
}

// Case builds a variant case; payload nil = unit case.
func (b *Builder) Case(name string, payload *TypeExpr) CaseDecl {
	return CaseDecl{Name: b.Sym(name), Payload: payload, Span: b.span()}
}

func (b *Builder) Variant(name string, cases ...CaseDecl) *VariantDecl {
	return &VariantDecl{Name: b.Sym(name), Cases: cases}
}

func (b *Builder) Trait(name string, methods ...*FnDecl) *TraitDecl {
	return &TraitDecl{Name: b.Sym(name), Methods: methods}
}

// Impl builds impl trait for target; trait "" builds an inherent impl.
func (b *Builder) Impl(trait string, target *TypeExpr, methods ...*FnDecl) *ImplDecl {
	return &ImplDecl{Trait: b.Sym(trait), Target: target, Methods: methods}
}

func (b *Builder) Alias(name string, target *TypeExpr) *AliasDecl {
	return &AliasDecl{Name: b.Sym(name), Target: target}
}

// Item wraps a declaration.
func (b *Builder) Item(decl any) *Item {
	it := &Item{Span: b.span()}
	switch d := decl.(type) {
	case *FnDecl:
		it.Kind, it.Fn = ItemFn, d
	case *RecordDecl:
		it.Kind, it.Record = ItemRecord, d
	case *VariantDecl:
		it.Kind, it.Variant = ItemVariant, d
	case *TraitDecl:
		it.Kind, it.Trait = ItemTrait, d
	case *ImplDecl:
		it.Kind, it.Impl = ItemImpl, d
	case *AliasDecl:
		it.Kind, it.Alias = ItemAlias, d
	default:
		panic(fmt.Sprintf("ast: unsupported declaration %T", decl))
	}
	return it
}

// Unit wraps declarations into a compilation unit.
func (b *Builder) Unit(path string, decls ...any) *Unit {
	u := &Unit{Path: path, File: b.File, Items: make([]*Item, 0, len(decls))}
	for _, d := range decls {
		u.Items = append(u.Items, b.Item(d))
	}
	return u
}
