package treeio

import (
	"strconv"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"kiln/internal/ast"
)

var exprKeys = []string{
	"op", "un", "call", "mcall", "field", "tindex", "index", "record", "tuple", "array",
	"repeat", "map", "match", "cast", "closure", "if", "block", "range", "spawn",
	"str", "char", "int", "float",
}

func (d *decoder) mk(n *yaml.Node, kind ast.ExprKind, data ast.ExprData) *ast.Expr {
	return &ast.Expr{Kind: kind, Span: d.span(n), Data: data}
}

func (d *decoder) unitLit(n *yaml.Node) *ast.Expr {
	return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralUnit})
}

// expr decodes an expression. Scalars are literals or identifiers;
// mappings are keyed by one of exprKeys.
func (d *decoder) expr(n *yaml.Node) *ast.Expr {
	if n == nil {
		d.failf(n, "missing expression")
		return d.unitLit(n)
	}
	if n.Kind == yaml.AliasNode {
		return d.expr(n.Alias)
	}
	if n.Kind == yaml.ScalarNode {
		return d.scalar(n)
	}
	if n.Kind != yaml.MappingNode {
		d.failf(n, "expression must be a scalar or a mapping")
		return d.unitLit(n)
	}
	key, v := pick(n, exprKeys...)
	switch key {
	case "op":
		op, ok := ast.BinaryOpByText(d.str(v))
		if !ok {
			d.failf(v, "unknown operator %q", v.Value)
		}
		return d.mk(n, ast.ExprBinary, ast.BinaryData{Op: op, Left: d.expr(field(n, "l")), Right: d.expr(field(n, "r"))})
	case "un":
		op, ok := unaryOp(d.str(v))
		if !ok {
			d.failf(v, "unknown unary operator %q", v.Value)
		}
		return d.mk(n, ast.ExprUnary, ast.UnaryData{Op: op, Operand: d.expr(field(n, "x"))})
	case "call":
		return d.mk(n, ast.ExprCall, ast.CallData{
			Callee:   d.expr(v),
			TypeArgs: d.types(field(n, "targs")),
			Args:     d.exprs(field(n, "args")),
		})
	case "mcall":
		return d.mk(n, ast.ExprMethodCall, ast.MethodCallData{
			Receiver: d.expr(field(n, "recv")),
			Method:   d.sym(d.str(v)),
			TypeArgs: d.types(field(n, "targs")),
			Args:     d.exprs(field(n, "args")),
		})
	case "field":
		return d.mk(n, ast.ExprField, ast.FieldData{Target: d.expr(field(n, "of")), Field: d.sym(d.str(v))})
	case "tindex":
		return d.mk(n, ast.ExprTupleIndex, ast.TupleIndexData{Target: d.expr(field(n, "of")), Index: int(d.integer(v))})
	case "index":
		return d.mk(n, ast.ExprIndex, ast.IndexData{Target: d.expr(field(n, "of")), Index: d.expr(v)})
	case "record":
		lit := ast.RecordLitData{Type: d.typ(v)}
		for _, p := range d.pairs(field(n, "fields")) {
			lit.Fields = append(lit.Fields, ast.FieldInit{Name: d.sym(d.str(p[0])), Value: d.expr(p[1]), Span: d.span(p[0])})
		}
		return d.mk(n, ast.ExprRecordLit, lit)
	case "tuple":
		return d.mk(n, ast.ExprTupleLit, ast.TupleLitData{Elems: d.exprs(v)})
	case "array":
		return d.mk(n, ast.ExprArrayLit, ast.ArrayLitData{Elems: d.exprs(v)})
	case "repeat":
		return d.mk(n, ast.ExprArrayRepeat, ast.ArrayRepeatData{Value: d.expr(v), Count: d.integer(field(n, "count"))})
	case "map":
		var entries []ast.MapEntry
		for _, e := range d.seq(v) {
			kv := d.seq(e)
			if len(kv) != 2 {
				d.failf(e, "map entry must be [key, value]")
				continue
			}
			entries = append(entries, ast.MapEntry{Key: d.expr(kv[0]), Value: d.expr(kv[1])})
		}
		return d.mk(n, ast.ExprMapLit, ast.MapLitData{Entries: entries})
	case "match":
		m := ast.MatchData{Scrutinee: d.expr(v)}
		for _, a := range d.seq(field(n, "arms")) {
			arm := ast.MatchArm{Pattern: d.pattern(field(a, "pat")), Body: d.expr(field(a, "body")), Span: d.span(a)}
			if g := field(a, "if"); g != nil {
				arm.Guard = d.expr(g)
			}
			m.Arms = append(m.Arms, arm)
		}
		return d.mk(n, ast.ExprMatch, m)
	case "cast":
		return d.mk(n, ast.ExprCast, ast.CastData{Value: d.expr(v), Target: d.typ(field(n, "to"))})
	case "closure":
		return d.mk(n, ast.ExprClosure, ast.ClosureData{
			Params: d.params(v),
			Result: d.typ(field(n, "result")),
			Body:   d.expr(field(n, "body")),
		})
	case "if":
		data := ast.IfData{Cond: d.expr(v), Then: d.block(field(n, "then"))}
		if e := field(n, "else"); e != nil {
			data.Else = d.elseBranch(e)
		}
		return d.mk(n, ast.ExprIf, data)
	case "block":
		return d.mk(n, ast.ExprBlock, ast.BlockData{Block: d.block(v)})
	case "range":
		ends := d.seq(v)
		if len(ends) != 2 {
			d.failf(v, "range must be [start, end]")
			return d.unitLit(n)
		}
		return d.mk(n, ast.ExprRange, ast.RangeData{
			Start: d.expr(ends[0]), End: d.expr(ends[1]), Inclusive: d.boolean(field(n, "inclusive")),
		})
	case "spawn":
		return d.mk(n, ast.ExprSpawn, ast.SpawnData{Value: d.expr(v)})
	case "str":
		return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralString, String: d.str(v)})
	case "char":
		s := d.str(v)
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || size != len(s) {
			d.failf(v, "char literal must be one rune, got %q", s)
		}
		return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralChar, Char: r})
	case "int":
		return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralInt, Int: d.integer(v)})
	case "float":
		var f float64
		if err := v.Decode(&f); err != nil {
			d.failf(v, "expected a number")
		}
		return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralFloat, Float: f})
	}
	d.failf(n, "unknown expression form")
	return d.unitLit(n)
}

// elseBranch accepts another if, a block mapping or a statement list.
func (d *decoder) elseBranch(n *yaml.Node) *ast.Expr {
	if field(n, "if") != nil {
		return d.expr(n)
	}
	return d.mk(n, ast.ExprBlock, ast.BlockData{Block: d.block(n)})
}

func (d *decoder) scalar(n *yaml.Node) *ast.Expr {
	switch n.ShortTag() {
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			d.failf(n, "integer out of range: %s", n.Value)
		}
		return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralInt, Int: v})
	case "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			d.failf(n, "bad float: %s", n.Value)
		}
		return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralFloat, Float: v})
	case "!!bool":
		return d.mk(n, ast.ExprLiteral, ast.LiteralData{Kind: ast.LiteralBool, Bool: d.boolean(n)})
	case "!!null":
		return d.unitLit(n)
	}
	if n.Value == "()" {
		return d.unitLit(n)
	}
	if n.Value == "" {
		d.failf(n, "empty identifier")
	}
	return d.mk(n, ast.ExprIdent, ast.IdentData{Name: d.sym(n.Value)})
}

func (d *decoder) exprs(n *yaml.Node) []*ast.Expr {
	var out []*ast.Expr
	for _, e := range d.seq(n) {
		out = append(out, d.expr(e))
	}
	return out
}

func unaryOp(s string) (ast.UnaryOp, bool) {
	for _, op := range []ast.UnaryOp{ast.UnaryNeg, ast.UnaryNot, ast.UnaryRef, ast.UnaryRefMut, ast.UnaryDeref} {
		if op.String() == s {
			return op, true
		}
	}
	return 0, false
}

// ---- statements

// block reads `{stmts: [...], tail: expr}` or a bare statement list.
func (d *decoder) block(n *yaml.Node) *ast.Block {
	if n == nil {
		return &ast.Block{}
	}
	if n.Kind == yaml.SequenceNode {
		return &ast.Block{Stmts: d.stmts(n), Span: d.span(n)}
	}
	b := &ast.Block{Stmts: d.stmts(field(n, "stmts")), Span: d.span(n)}
	if t := field(n, "tail"); t != nil {
		b.Tail = d.expr(t)
	}
	return b
}

func (d *decoder) stmts(n *yaml.Node) []*ast.Stmt {
	var out []*ast.Stmt
	for _, s := range d.seq(n) {
		if st := d.stmt(s); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func (d *decoder) stmt(n *yaml.Node) *ast.Stmt {
	mk := func(kind ast.StmtKind, data ast.StmtData) *ast.Stmt {
		return &ast.Stmt{Kind: kind, Span: d.span(n), Data: data}
	}
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "break":
			return mk(ast.StmtBreak, ast.BreakData{})
		case "continue":
			return mk(ast.StmtContinue, ast.ContinueData{})
		}
		d.failf(n, "unknown statement %q", n.Value)
		return nil
	}
	key, v := pick(n, "let", "expr", "assign", "return", "while", "loop", "for")
	switch key {
	case "let":
		data := ast.LetData{Mutable: d.boolean(field(n, "mut")), Type: d.typ(field(n, "type"))}
		if v.Kind == yaml.ScalarNode && v.Value != "_" {
			data.Name = d.sym(d.str(v))
		} else {
			data.Pattern = d.pattern(v)
		}
		if val := field(n, "value"); val != nil {
			data.Value = d.expr(val)
		}
		return mk(ast.StmtLet, data)
	case "expr":
		return mk(ast.StmtExpr, ast.ExprStmtData{Expr: d.expr(v)})
	case "assign":
		op, ok := assignOp(d.str(field(n, "op")))
		if !ok {
			d.failf(field(n, "op"), "unknown assignment operator")
		}
		return mk(ast.StmtAssign, ast.AssignData{Op: op, Target: d.expr(v), Value: d.expr(field(n, "value"))})
	case "return":
		data := ast.ReturnData{}
		if !isNull(v) {
			data.Value = d.expr(v)
		}
		return mk(ast.StmtReturn, data)
	case "while":
		return mk(ast.StmtWhile, ast.WhileData{Cond: d.expr(v), Body: d.block(field(n, "body"))})
	case "loop":
		return mk(ast.StmtLoop, ast.LoopData{Body: d.block(v)})
	case "for":
		return mk(ast.StmtFor, ast.ForData{Var: d.sym(d.str(v)), Iter: d.expr(field(n, "in")), Body: d.block(field(n, "body"))})
	}
	d.failf(n, "unknown statement form")
	return nil
}

func assignOp(s string) (ast.AssignOp, bool) {
	switch s {
	case "", "=":
		return ast.AssignPlain, true
	case "+=":
		return ast.AssignAdd, true
	case "-=":
		return ast.AssignSub, true
	case "*=":
		return ast.AssignMul, true
	case "/=":
		return ast.AssignDiv, true
	case "%=":
		return ast.AssignRem, true
	}
	return 0, false
}

// ---- patterns

// pattern decodes a match pattern. Scalars: `_`, literals, or a binding
// name; mappings are keyed by lit, range, tuple, record, variant or alt.
func (d *decoder) pattern(n *yaml.Node) *ast.Pattern {
	if n == nil {
		d.failf(n, "missing pattern")
		return &ast.Pattern{Kind: ast.PatWildcard}
	}
	p := &ast.Pattern{Span: d.span(n)}
	if n.Kind == yaml.ScalarNode {
		switch {
		case n.Value == "_":
			p.Kind = ast.PatWildcard
		case n.ShortTag() == "!!str" && n.Value != "()":
			p.Kind, p.Name = ast.PatIdent, d.sym(n.Value)
		default:
			p.Kind, p.Value = ast.PatLiteral, d.scalar(n)
		}
		return p
	}
	key, v := pick(n, "lit", "range", "tuple", "record", "variant", "alt")
	switch key {
	case "lit":
		p.Kind, p.Value = ast.PatLiteral, d.expr(v)
	case "range":
		ends := d.seq(v)
		if len(ends) != 2 {
			d.failf(v, "range pattern must be [lo, hi]")
			break
		}
		p.Kind, p.Lo, p.Hi = ast.PatRange, d.expr(ends[0]), d.expr(ends[1])
		p.Inclusive = d.boolean(field(n, "inclusive"))
	case "tuple":
		p.Kind = ast.PatTuple
		for _, e := range d.seq(v) {
			p.Elems = append(p.Elems, d.pattern(e))
		}
	case "record":
		p.Kind, p.Type, p.Rest = ast.PatRecord, d.sym(d.str(v)), d.boolean(field(n, "rest"))
		for _, f := range d.pairs(field(n, "fields")) {
			fp := ast.FieldPattern{Name: d.sym(d.str(f[0])), Span: d.span(f[0])}
			if !isNull(f[1]) {
				fp.Pattern = d.pattern(f[1])
			}
			p.Fields = append(p.Fields, fp)
		}
	case "variant":
		p.Kind, p.Case, p.Type = ast.PatVariant, d.sym(d.str(v)), d.sym(d.str(field(n, "type")))
		if in := field(n, "inner"); in != nil {
			p.Inner = d.pattern(in)
		}
	case "alt":
		p.Kind = ast.PatAlt
		for _, e := range d.seq(v) {
			p.Elems = append(p.Elems, d.pattern(e))
		}
	default:
		d.failf(n, "unknown pattern form")
	}
	return p
}
