package ast

// Cloner deep-copies declarations. MapType, when set, may replace any type
// expression (returning nil keeps a copy of the original); this is how
// generic definitions are specialised.
type Cloner struct {
	MapType func(*TypeExpr) *TypeExpr
}

func (c *Cloner) Type(t *TypeExpr) *TypeExpr {
	if t == nil {
		return nil
	}
	if c.MapType != nil {
		if r := c.MapType(t); r != nil {
			return r
		}
	}
	out := *t
	out.Args = c.types(t.Args)
	out.Elem = c.Type(t.Elem)
	return &out
}

func (c *Cloner) types(ts []*TypeExpr) []*TypeExpr {
	if ts == nil {
		return nil
	}
	out := make([]*TypeExpr, len(ts))
	for i, t := range ts {
		out[i] = c.Type(t)
	}
	return out
}

func (c *Cloner) Fn(fn *FnDecl) *FnDecl {
	if fn == nil {
		return nil
	}
	out := *fn
	out.TypeParams = append([]TypeParam(nil), fn.TypeParams...)
	out.Params = c.params(fn.Params)
	out.Result = c.Type(fn.Result)
	out.Body = c.Block(fn.Body)
	return &out
}

func (c *Cloner) params(ps []Param) []Param {
	if ps == nil {
		return nil
	}
	out := make([]Param, len(ps))
	for i, p := range ps {
		out[i] = Param{Name: p.Name, Type: c.Type(p.Type), Span: p.Span}
	}
	return out
}

func (c *Cloner) Record(r *RecordDecl) *RecordDecl {
	out := *r
	out.TypeParams = append([]TypeParam(nil), r.TypeParams...)
	out.Fields = make([]FieldDecl, len(r.Fields))
	for i, f := range r.Fields {
		out.Fields[i] = FieldDecl{Name: f.Name, Type: c.Type(f.Type), Span: f.Span}
	}
	out.Methods = c.fns(r.Methods)
	return &out
}

func (c *Cloner) Variant(v *VariantDecl) *VariantDecl {
	out := *v
	out.TypeParams = append([]TypeParam(nil), v.TypeParams...)
	out.Cases = make([]CaseDecl, len(v.Cases))
	for i, k := range v.Cases {
		out.Cases[i] = CaseDecl{Name: k.Name, Payload: c.Type(k.Payload), Span: k.Span}
	}
	out.Methods = c.fns(v.Methods)
	return &out
}

func (c *Cloner) fns(fns []*FnDecl) []*FnDecl {
	if fns == nil {
		return nil
	}
	out := make([]*FnDecl, len(fns))
	for i, fn := range fns {
		out[i] = c.Fn(fn)
	}
	return out
}

func (c *Cloner) Block(b *Block) *Block {
	if b == nil {
		return nil
	}
	out := &Block{Span: b.Span, Tail: c.Expr(b.Tail)}
	if b.Stmts != nil {
		out.Stmts = make([]*Stmt, len(b.Stmts))
		for i, s := range b.Stmts {
			out.Stmts[i] = c.Stmt(s)
		}
	}
	return out
}

func (c *Cloner) Stmt(s *Stmt) *Stmt {
	if s == nil {
		return nil
	}
	out := &Stmt{Kind: s.Kind, Span: s.Span}
	switch d := s.Data.(type) {
	case LetData:
		d.Pattern = c.Pattern(d.Pattern)
		d.Type = c.Type(d.Type)
		d.Value = c.Expr(d.Value)
		out.Data = d
	case ExprStmtData:
		out.Data = ExprStmtData{Expr: c.Expr(d.Expr)}
	case AssignData:
		out.Data = AssignData{Op: d.Op, Target: c.Expr(d.Target), Value: c.Expr(d.Value)}
	case ReturnData:
		out.Data = ReturnData{Value: c.Expr(d.Value)}
	case WhileData:
		out.Data = WhileData{Cond: c.Expr(d.Cond), Body: c.Block(d.Body)}
	case LoopData:
		out.Data = LoopData{Body: c.Block(d.Body)}
	case ForData:
		out.Data = ForData{Var: d.Var, Iter: c.Expr(d.Iter), Body: c.Block(d.Body)}
	default:
		out.Data = s.Data
	}
	return out
}

func (c *Cloner) exprs(es []*Expr) []*Expr {
	if es == nil {
		return nil
	}
	out := make([]*Expr, len(es))
	for i, e := range es {
		out[i] = c.Expr(e)
	}
	return out
}

func (c *Cloner) Expr(e *Expr) *Expr {
	if e == nil {
		return nil
	}
	out := &Expr{Kind: e.Kind, Span: e.Span}
	switch d := e.Data.(type) {
	case UnaryData:
		out.Data = UnaryData{Op: d.Op, Operand: c.Expr(d.Operand)}
	case BinaryData:
		out.Data = BinaryData{Op: d.Op, Left: c.Expr(d.Left), Right: c.Expr(d.Right)}
	case CallData:
		out.Data = CallData{Callee: c.Expr(d.Callee), TypeArgs: c.types(d.TypeArgs), Args: c.exprs(d.Args)}
	case MethodCallData:
		out.Data = MethodCallData{Receiver: c.Expr(d.Receiver), Method: d.Method, TypeArgs: c.types(d.TypeArgs), Args: c.exprs(d.Args)}
	case FieldData:
		out.Data = FieldData{Target: c.Expr(d.Target), Field: d.Field}
	case TupleIndexData:
		out.Data = TupleIndexData{Target: c.Expr(d.Target), Index: d.Index}
	case IndexData:
		out.Data = IndexData{Target: c.Expr(d.Target), Index: c.Expr(d.Index)}
	case RecordLitData:
		fields := make([]FieldInit, len(d.Fields))
		for i, f := range d.Fields {
			fields[i] = FieldInit{Name: f.Name, Value: c.Expr(f.Value), Span: f.Span}
		}
		out.Data = RecordLitData{Type: c.Type(d.Type), Fields: fields}
	case TupleLitData:
		out.Data = TupleLitData{Elems: c.exprs(d.Elems)}
	case ArrayLitData:
		out.Data = ArrayLitData{Elems: c.exprs(d.Elems)}
	case ArrayRepeatData:
		out.Data = ArrayRepeatData{Value: c.Expr(d.Value), Count: d.Count}
	case MapLitData:
		entries := make([]MapEntry, len(d.Entries))
		for i, en := range d.Entries {
			entries[i] = MapEntry{Key: c.Expr(en.Key), Value: c.Expr(en.Value)}
		}
		out.Data = MapLitData{Entries: entries}
	case MatchData:
		arms := make([]MatchArm, len(d.Arms))
		for i, a := range d.Arms {
			arms[i] = MatchArm{Pattern: c.Pattern(a.Pattern), Guard: c.Expr(a.Guard), Body: c.Expr(a.Body), Span: a.Span}
		}
		out.Data = MatchData{Scrutinee: c.Expr(d.Scrutinee), Arms: arms}
	case CastData:
		out.Data = CastData{Value: c.Expr(d.Value), Target: c.Type(d.Target)}
	case ClosureData:
		out.Data = ClosureData{Params: c.params(d.Params), Result: c.Type(d.Result), Body: c.Expr(d.Body)}
	case IfData:
		out.Data = IfData{Cond: c.Expr(d.Cond), Then: c.Block(d.Then), Else: c.Expr(d.Else)}
	case BlockData:
		out.Data = BlockData{Block: c.Block(d.Block)}
	case RangeData:
		out.Data = RangeData{Start: c.Expr(d.Start), End: c.Expr(d.End), Inclusive: d.Inclusive}
	case SpawnData:
		out.Data = SpawnData{Value: c.Expr(d.Value)}
	default:
		// literals and identifiers hold no children
		out.Data = e.Data
	}
	return out
}

func (c *Cloner) Pattern(p *Pattern) *Pattern {
	if p == nil {
		return nil
	}
	out := *p
	out.Value = c.Expr(p.Value)
	out.Lo = c.Expr(p.Lo)
	out.Hi = c.Expr(p.Hi)
	out.Inner = c.Pattern(p.Inner)
	if p.Elems != nil {
		out.Elems = make([]*Pattern, len(p.Elems))
		for i, el := range p.Elems {
			out.Elems[i] = c.Pattern(el)
		}
	}
	if p.Fields != nil {
		out.Fields = make([]FieldPattern, len(p.Fields))
		for i, f := range p.Fields {
			out.Fields[i] = FieldPattern{Name: f.Name, Pattern: c.Pattern(f.Pattern), Span: f.Span}
		}
	}
	return &out
}
