package lower

import (
	"kiln/internal/ast"
	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/rtabi"
	"kiln/internal/source"
	"kiln/internal/types"
)

// rtCall calls a runtime entry point, declaring it on first use.
func (s *Session) rtCall(b *lir.Builder, name string, args ...lir.Value) lir.Value {
	return b.CallFunc(rtabi.Declare(s.mod, name), args...)
}

func (l *funcLowerer) rt(name string, args ...lir.Value) lir.Value {
	return l.s.rtCall(l.b, name, args...)
}

// keyKind tells the runtime how to hash and compare keys: strings by
// content, everything else by bytes.
func (l *funcLowerer) keyKind(t types.TypeID) lir.Value {
	if t == l.s.bt.String {
		return l.i32(rtabi.KeyString)
	}
	return l.i32(rtabi.KeyBytes)
}

func (l *funcLowerer) size(t types.TypeID) lir.Value {
	return l.i64(l.s.sizeOf(t))
}

// element lowers e as a container element of type t and returns the
// address of a copy. move hands the value over to the container.
func (l *funcLowerer) element(e *ast.Expr, t types.TypeID, move bool) (lir.Value, error) {
	if err := l.checkArraySize(e, t); err != nil {
		return lir.Value{}, err
	}
	v, err := l.lowerExpr(e, t)
	if err != nil {
		return lir.Value{}, err
	}
	v, err = l.coerce(v, t, e.Span)
	if err != nil {
		return lir.Value{}, err
	}
	if move {
		l.consume(v)
	} else {
		v = l.hidden(v)
	}
	return l.addrOf(v), nil
}

// container instantiates a builtin container type.
func (l *funcLowerer) container(b types.Builtin, span source.Span, args ...types.TypeID) (types.TypeID, error) {
	t := l.s.mono.Container(b, args, span)
	if t == types.NoTypeID {
		return t, errLoweringAborted
	}
	return t, nil
}

// wantArgs checks the argument count of a builtin call.
func (l *funcLowerer) wantArgs(span source.Span, what string, args []*ast.Expr, n int) error {
	if len(args) != n {
		return l.errorf(diag.LowArgCount, span, "`%s` takes %d arguments, %d given", what, n, len(args))
	}
	return nil
}

// builtinCall lowers calls of the builtin functions Some, Ok, Err, print
// and println. ok is false for any other name.
func (l *funcLowerer) builtinCall(e *ast.Expr, name source.StringID, args []*ast.Expr, want types.TypeID) (v value, ok bool, err error) {
	sym := l.s.sym
	switch name {
	case sym.some:
		v, err = l.makeSome(e, args, want)
	case sym.ok, sym.err:
		v, err = l.makeResult(e, name == sym.ok, args, want)
	case sym.print, sym.println:
		v, err = l.lowerPrint(e, name == sym.println, args)
	default:
		return value{}, false, nil
	}
	return v, true, err
}

func (l *funcLowerer) makeSome(e *ast.Expr, args []*ast.Expr, want types.TypeID) (value, error) {
	if err := l.wantArgs(e.Span, "Some", args, 1); err != nil {
		return value{}, err
	}
	elem := types.NoTypeID
	if b, wargs := l.s.builtinOf(want); b == types.BuiltinOption {
		elem = wargs[0]
	}
	if elem == types.NoTypeID {
		v, err := l.lowerExpr(args[0], types.NoTypeID)
		if err != nil {
			return value{}, err
		}
		elem = v.ty
		t, err := l.container(types.BuiltinOption, e.Span, elem)
		if err != nil {
			return value{}, err
		}
		l.consume(v)
		h := l.rt("rt_option_some", l.size(elem), l.addrOf(v))
		return value{v: h, ty: t, fresh: true}, nil
	}
	t, err := l.container(types.BuiltinOption, e.Span, elem)
	if err != nil {
		return value{}, err
	}
	p, err := l.element(args[0], elem, true)
	if err != nil {
		return value{}, err
	}
	return value{v: l.rt("rt_option_some", l.size(elem), p), ty: t, fresh: true}, nil
}

// none builds an empty Option; its element type comes from want.
func (l *funcLowerer) none(span source.Span, want types.TypeID) (value, error) {
	b, args := l.s.builtinOf(want)
	if b != types.BuiltinOption {
		return value{}, l.errorf(diag.MonoCannotInfer, span, "cannot infer the type of `None`; annotate the expected type")
	}
	return value{v: l.rt("rt_option_none", l.size(args[0])), ty: want, fresh: true}, nil
}

func (l *funcLowerer) makeResult(e *ast.Expr, ok bool, args []*ast.Expr, want types.TypeID) (value, error) {
	what := pick(ok, "Ok", "Err")
	if err := l.wantArgs(e.Span, what, args, 1); err != nil {
		return value{}, err
	}
	b, wargs := l.s.builtinOf(want)
	if b != types.BuiltinResult {
		return value{}, l.errorf(diag.MonoCannotInfer, e.Span,
			"cannot infer the type of `%s(..)`; annotate the expected Result type", what)
	}
	elem := pick(ok, wargs[0], wargs[1])
	p, err := l.element(args[0], elem, true)
	if err != nil {
		return value{}, err
	}
	h := l.rt(pick(ok, "rt_result_ok", "rt_result_err"), l.size(elem), p)
	return value{v: h, ty: want, fresh: true}, nil
}

func (l *funcLowerer) lowerPrint(e *ast.Expr, line bool, args []*ast.Expr) (value, error) {
	what := pick(line, "println", "print")
	if err := l.wantArgs(e.Span, what, args, 1); err != nil {
		return value{}, err
	}
	v, err := l.lowerExpr(args[0], types.NoTypeID)
	if err != nil {
		return value{}, err
	}
	s, err := l.toStr(v, args[0].Span)
	if err != nil {
		return value{}, err
	}
	l.rt("rt_"+what, s)
	l.releaseValue(v)
	return l.unit(), nil
}

// toStr converts a scalar to a runtime string.
func (l *funcLowerer) toStr(v value, span source.Span) (lir.Value, error) {
	tys := l.s.tys
	ts := l.s.mod.Types
	bt := l.s.bt
	switch {
	case v.ty == bt.String:
		return v.v, nil
	case tys.IsInteger(v.ty) && tys.IsSigned(v.ty):
		return l.rt("rt_i64_to_str", l.toI64(v)), nil
	case tys.IsInteger(v.ty):
		return l.rt("rt_u64_to_str", l.toI64(v)), nil
	case v.ty == bt.F32:
		return l.rt("rt_f64_to_str", l.b.Cast(lir.CastFPExt, v.v, ts.F64)), nil
	case v.ty == bt.F64:
		return l.rt("rt_f64_to_str", v.v), nil
	case v.ty == bt.Bool:
		return l.rt("rt_bool_to_str", v.v), nil
	case v.ty == bt.Char:
		return l.rt("rt_char_to_str", v.v), nil
	}
	return lir.Value{}, l.errorf(diag.LowUnsupported, span, "cannot convert `%s` to a string", l.typeName(v.ty))
}

// primitiveMethod lowers the methods every scalar, string, array and
// slice has: to_string and len.
func (l *funcLowerer) primitiveMethod(e *ast.Expr, d ast.MethodCallData, recv place) (value, bool, error) {
	switch l.name(d.Method) {
	case "to_string":
		if err := l.wantArgs(e.Span, "to_string", d.Args, 0); err != nil {
			return value{}, true, err
		}
		if l.s.isAgg(recv.ty) {
			return value{}, false, nil
		}
		s, err := l.toStr(l.read(recv.addr, recv.ty, nil), e.Span)
		if err != nil {
			return value{}, true, err
		}
		return value{v: s, ty: l.s.bt.String, fresh: true}, true, nil
	case "len":
		tt, _ := l.s.tys.Lookup(recv.ty)
		var n lir.Value
		switch {
		case recv.ty == l.s.bt.String:
			n = l.rt("rt_str_len", l.b.Load(l.s.mod.Types.Ptr, recv.addr))
		case tt.Kind == types.KindArray:
			n = l.i64(int64(tt.Count))
		case tt.Kind == types.KindSlice:
			n = l.b.Load(l.s.mod.Types.I64, l.b.FieldPtr(l.s.lirType(recv.ty), recv.addr, 1))
		default:
			return value{}, false, nil
		}
		if err := l.wantArgs(e.Span, "len", d.Args, 0); err != nil {
			return value{}, true, err
		}
		return value{v: n, ty: l.s.bt.I64}, true, nil
	}
	return value{}, false, nil
}

// containerArgs picks the type arguments of a static container call:
// explicit ones first, then those of the expected type.
func (l *funcLowerer) containerArgs(e *ast.Expr, b types.Builtin, d ast.MethodCallData, want types.TypeID) ([]types.TypeID, error) {
	if len(d.TypeArgs) > 0 {
		out := make([]types.TypeID, len(d.TypeArgs))
		for i, te := range d.TypeArgs {
			t, err := l.resolveType(te)
			if err != nil {
				return nil, err
			}
			out[i] = t
		}
		if len(out) != b.Arity() {
			return nil, l.errorf(diag.MonoArity, e.Span, "`%s` takes %d type arguments, %d given", b, b.Arity(), len(out))
		}
		return out, nil
	}
	if wb, args := l.s.builtinOf(want); wb == b {
		return args, nil
	}
	return nil, l.errorf(diag.MonoCannotInfer, e.Span,
		"cannot infer the element type of `%s.%s`; annotate the expected type", b, l.name(d.Method))
}

// containerStatic lowers the constructors of builtin containers.
func (l *funcLowerer) containerStatic(e *ast.Expr, b types.Builtin, d ast.MethodCallData, want types.TypeID) (value, error) {
	method := l.name(d.Method)
	if b == types.BuiltinBox && method == "new" {
		return l.boxNew(e, d, want)
	}
	if b == types.BuiltinOption && method == "none" {
		return l.none(e.Span, want)
	}
	var call func(args []types.TypeID) (lir.Value, error)
	switch {
	case b == types.BuiltinVec && method == "new":
		call = func(args []types.TypeID) (lir.Value, error) {
			return l.rt("rt_vec_new", l.size(args[0])), l.wantArgs(e.Span, "Vec.new", d.Args, 0)
		}
	case b == types.BuiltinVec && method == "with_capacity":
		call = func(args []types.TypeID) (lir.Value, error) {
			if err := l.wantArgs(e.Span, "Vec.with_capacity", d.Args, 1); err != nil {
				return lir.Value{}, err
			}
			n, err := l.indexValue(d.Args[0])
			if err != nil {
				return lir.Value{}, err
			}
			return l.rt("rt_vec_with_capacity", l.size(args[0]), n), nil
		}
	case b == types.BuiltinMap && method == "new":
		call = func(args []types.TypeID) (lir.Value, error) {
			return l.rt("rt_map_new", l.size(args[0]), l.size(args[1]), l.keyKind(args[0])),
				l.wantArgs(e.Span, "Map.new", d.Args, 0)
		}
	case b == types.BuiltinSet && method == "new":
		call = func(args []types.TypeID) (lir.Value, error) {
			return l.rt("rt_set_new", l.size(args[0]), l.keyKind(args[0])), l.wantArgs(e.Span, "Set.new", d.Args, 0)
		}
	case b == types.BuiltinChan && method == "new":
		call = func(args []types.TypeID) (lir.Value, error) {
			capacity := l.i64(0)
			switch len(d.Args) {
			case 0:
			case 1:
				n, err := l.indexValue(d.Args[0])
				if err != nil {
					return lir.Value{}, err
				}
				capacity = n
			default:
				return lir.Value{}, l.wantArgs(e.Span, "Chan.new", d.Args, 1)
			}
			return l.rt("rt_chan_new", l.size(args[0]), capacity), nil
		}
	default:
		return value{}, l.errorf(diag.ResUnknownMethod, e.Span, "no static method `%s` on `%s`", method, b)
	}
	args, err := l.containerArgs(e, b, d, want)
	if err != nil {
		return value{}, err
	}
	t, err := l.container(b, e.Span, args...)
	if err != nil {
		return value{}, err
	}
	h, err := call(args)
	if err != nil {
		return value{}, err
	}
	return value{v: h, ty: t, fresh: true}, nil
}

func (l *funcLowerer) boxNew(e *ast.Expr, d ast.MethodCallData, want types.TypeID) (value, error) {
	if err := l.wantArgs(e.Span, "Box.new", d.Args, 1); err != nil {
		return value{}, err
	}
	elem := types.NoTypeID
	if b, args := l.s.builtinOf(want); b == types.BuiltinBox {
		elem = args[0]
	}
	v, err := l.lowerExpr(d.Args[0], elem)
	if err != nil {
		return value{}, err
	}
	if elem == types.NoTypeID {
		elem = v.ty
	}
	if v, err = l.coerce(v, elem, d.Args[0].Span); err != nil {
		return value{}, err
	}
	t, err := l.container(types.BuiltinBox, e.Span, elem)
	if err != nil {
		return value{}, err
	}
	l.consume(v)
	return value{v: l.rt("rt_box_new", l.size(elem), l.addrOf(v)), ty: t, fresh: true}, nil
}

// containerMethod lowers a method call on a builtin container. The
// receiver place holds the handle.
func (l *funcLowerer) containerMethod(e *ast.Expr, d ast.MethodCallData, recv place, want types.TypeID) (value, error) {
	b, args := l.s.builtinOf(recv.ty)
	method := l.name(d.Method)
	h := l.b.Load(l.s.mod.Types.Ptr, recv.addr)
	bt := l.s.bt
	n := func(k int) error { return l.wantArgs(e.Span, b.String()+"."+method, d.Args, k) }
	mut := func() error {
		if !recv.mutable {
			return l.errorf(diag.LowNotAssignable, d.Receiver.Span, "`%s.%s` needs a mutable receiver", b, method)
		}
		return nil
	}
	nm := func(k int) error {
		if err := n(k); err != nil {
			return err
		}
		return mut()
	}
	scalar := func(v lir.Value, t types.TypeID) value { return value{v: v, ty: t} }

	switch b {
	case types.BuiltinVec:
		elem := args[0]
		switch method {
		case "push":
			if err := nm(1); err != nil {
				return value{}, err
			}
			p, err := l.element(d.Args[0], elem, true)
			if err != nil {
				return value{}, err
			}
			l.rt("rt_vec_push", h, p)
			return l.unit(), nil
		case "get":
			if err := n(1); err != nil {
				return value{}, err
			}
			i, err := l.indexValue(d.Args[0])
			if err != nil {
				return value{}, err
			}
			return l.copyOf(l.read(l.rt("rt_vec_get", h, i), elem, nil)), nil
		case "set":
			if err := nm(2); err != nil {
				return value{}, err
			}
			i, err := l.indexValue(d.Args[0])
			if err != nil {
				return value{}, err
			}
			p, err := l.element(d.Args[1], elem, true)
			if err != nil {
				return value{}, err
			}
			if l.tracked(elem) {
				l.releaseAt(l.rt("rt_vec_get", h, i), elem)
			}
			l.rt("rt_vec_set", h, i, p)
			return l.unit(), nil
		case "len":
			if err := n(0); err != nil {
				return value{}, err
			}
			return scalar(l.rt("rt_vec_len", h), bt.I64), nil
		case "is_empty":
			if err := n(0); err != nil {
				return value{}, err
			}
			return scalar(l.b.Cmp(lir.CmpEq, l.rt("rt_vec_len", h), l.i64(0)), bt.Bool), nil
		case "pop":
			if err := nm(0); err != nil {
				return value{}, err
			}
			out := l.b.Alloca(l.s.lirType(elem))
			return l.optionFrom(e.Span, elem, l.rt("rt_vec_pop", h, out), out)
		case "remove":
			if err := nm(1); err != nil {
				return value{}, err
			}
			i, err := l.indexValue(d.Args[0])
			if err != nil {
				return value{}, err
			}
			out := l.b.Alloca(l.s.lirType(elem))
			l.rt("rt_vec_remove", h, i, out)
			v := l.read(out, elem, nil)
			v.fresh = true
			return v, nil
		case "clear":
			if err := nm(0); err != nil {
				return value{}, err
			}
			l.rt("rt_vec_clear", h, l.glueRef(elem))
			return l.unit(), nil
		}
	case types.BuiltinBox:
		if method == "get" {
			if err := n(0); err != nil {
				return value{}, err
			}
			return l.copyOf(l.read(l.rt("rt_box_get", h), args[0], nil)), nil
		}
	case types.BuiltinOption:
		elem := args[0]
		switch method {
		case "is_some", "is_none":
			if err := n(0); err != nil {
				return value{}, err
			}
			c := l.rt("rt_option_is_some", h)
			if method == "is_none" {
				c = l.b.Not(c)
			}
			return scalar(c, bt.Bool), nil
		case "unwrap":
			if err := n(0); err != nil {
				return value{}, err
			}
			return l.copyOf(l.read(l.rt("rt_option_get", h), elem, nil)), nil
		case "unwrap_or":
			if err := n(1); err != nil {
				return value{}, err
			}
			return l.unwrapOr(d.Args[0], elem, l.rt("rt_option_is_some", h), func() lir.Value {
				return l.rt("rt_option_get", h)
			})
		}
	case types.BuiltinResult:
		switch method {
		case "is_ok", "is_err":
			if err := n(0); err != nil {
				return value{}, err
			}
			c := l.rt("rt_result_is_ok", h)
			if method == "is_err" {
				c = l.b.Not(c)
			}
			return scalar(c, bt.Bool), nil
		case "unwrap":
			if err := n(0); err != nil {
				return value{}, err
			}
			return l.copyOf(l.read(l.rt("rt_result_value", h), args[0], nil)), nil
		case "unwrap_err":
			if err := n(0); err != nil {
				return value{}, err
			}
			return l.copyOf(l.read(l.rt("rt_result_error", h), args[1], nil)), nil
		}
	case types.BuiltinMap:
		k, v := args[0], args[1]
		switch method {
		case "insert":
			if err := nm(2); err != nil {
				return value{}, err
			}
			kp, err := l.element(d.Args[0], k, true)
			if err != nil {
				return value{}, err
			}
			vp, err := l.element(d.Args[1], v, true)
			if err != nil {
				return value{}, err
			}
			l.rt("rt_map_insert", h, kp, vp)
			return l.unit(), nil
		case "get":
			if err := n(1); err != nil {
				return value{}, err
			}
			kp, err := l.element(d.Args[0], k, false)
			if err != nil {
				return value{}, err
			}
			p := l.rt("rt_map_get", h, kp)
			return l.optionFrom(e.Span, v, l.b.Cmp(lir.CmpNe, p, l.null()), p)
		case "contains", "remove":
			if err := n(1); err != nil {
				return value{}, err
			}
			if method == "remove" {
				if err := mut(); err != nil {
					return value{}, err
				}
			}
			kp, err := l.element(d.Args[0], k, false)
			if err != nil {
				return value{}, err
			}
			return scalar(l.rt("rt_map_"+method, h, kp), bt.Bool), nil
		case "len":
			if err := n(0); err != nil {
				return value{}, err
			}
			return scalar(l.rt("rt_map_len", h), bt.I64), nil
		case "clear":
			if err := nm(0); err != nil {
				return value{}, err
			}
			l.rt("rt_map_clear", h, l.glueRef(k), l.glueRef(v))
			return l.unit(), nil
		}
	case types.BuiltinSet:
		elem := args[0]
		switch method {
		case "insert", "contains", "remove":
			if err := n(1); err != nil {
				return value{}, err
			}
			if method != "contains" {
				if err := mut(); err != nil {
					return value{}, err
				}
			}
			p, err := l.element(d.Args[0], elem, method == "insert")
			if err != nil {
				return value{}, err
			}
			return scalar(l.rt("rt_set_"+method, h, p), bt.Bool), nil
		case "len":
			if err := n(0); err != nil {
				return value{}, err
			}
			return scalar(l.rt("rt_set_len", h), bt.I64), nil
		case "clear":
			if err := nm(0); err != nil {
				return value{}, err
			}
			l.rt("rt_set_clear", h, l.glueRef(elem))
			return l.unit(), nil
		}
	case types.BuiltinChan:
		elem := args[0]
		switch method {
		case "send":
			if err := n(1); err != nil {
				return value{}, err
			}
			p, err := l.element(d.Args[0], elem, true)
			if err != nil {
				return value{}, err
			}
			l.rt("rt_chan_send", h, p)
			return l.unit(), nil
		case "recv":
			if err := n(0); err != nil {
				return value{}, err
			}
			out := l.b.Alloca(l.s.lirType(elem))
			return l.optionFrom(e.Span, elem, l.rt("rt_chan_recv", h, out), out)
		case "close":
			if err := n(0); err != nil {
				return value{}, err
			}
			l.rt("rt_chan_close", h)
			return l.unit(), nil
		}
	case types.BuiltinTask:
		if method == "join" {
			if err := n(0); err != nil {
				return value{}, err
			}
			return l.joinTask(h, args[0]), nil
		}
	case types.BuiltinRange:
		switch method {
		case "len":
			if err := n(0); err != nil {
				return value{}, err
			}
			return scalar(l.rt("rt_range_len", h), bt.I64), nil
		case "contains":
			if err := n(1); err != nil {
				return value{}, err
			}
			x, err := l.lowerExpr(d.Args[0], args[0])
			if err != nil {
				return value{}, err
			}
			if !l.s.tys.IsInteger(x.ty) {
				return value{}, l.errorf(diag.LowTypeMismatch, d.Args[0].Span, "expected an integer, found `%s`", l.typeName(x.ty))
			}
			return scalar(l.rt("rt_range_contains", h, l.toI64(x)), bt.Bool), nil
		}
	}
	return value{}, l.errorf(diag.ResUnknownMethod, e.Span, "no method `%s` on `%s`", method, l.typeName(recv.ty))
}

// optionFrom wraps an optional element: some copies the element at p
// into a new Option, otherwise the Option is empty.
func (l *funcLowerer) optionFrom(span source.Span, elem types.TypeID, some, p lir.Value) (value, error) {
	t, err := l.container(types.BuiltinOption, span, elem)
	if err != nil {
		return value{}, err
	}
	ts := l.s.mod.Types
	slot := l.b.Alloca(ts.Ptr)
	yes := l.b.NewBlock("opt.some")
	no := l.b.NewBlock("opt.none")
	done := l.b.NewBlock("opt.end")
	l.b.CondBr(some, yes, no)
	l.b.SetBlock(yes)
	l.b.Store(l.rt("rt_option_some", l.size(elem), p), slot)
	l.b.Br(done)
	l.b.SetBlock(no)
	l.b.Store(l.rt("rt_option_none", l.size(elem)), slot)
	l.b.Br(done)
	l.b.SetBlock(done)
	return value{v: l.b.Load(ts.Ptr, slot), ty: t, fresh: true}, nil
}

// unwrapOr yields the element at get() when present, else the fallback.
func (l *funcLowerer) unwrapOr(fallback *ast.Expr, elem types.TypeID, present lir.Value, get func() lir.Value) (value, error) {
	slot := l.b.Alloca(l.s.lirType(elem))
	yes := l.b.NewBlock("unwrap.some")
	no := l.b.NewBlock("unwrap.none")
	done := l.b.NewBlock("unwrap.end")
	l.b.CondBr(present, yes, no)
	l.b.SetBlock(yes)
	l.storeInto(slot, l.read(get(), elem, nil))
	l.b.Br(done)
	l.b.SetBlock(no)
	v, err := l.lowerExpr(fallback, elem)
	if err != nil {
		return value{}, err
	}
	if v, err = l.coerce(v, elem, fallback.Span); err != nil {
		return value{}, err
	}
	l.consume(v)
	l.storeInto(slot, v)
	l.b.Br(done)
	l.b.SetBlock(done)
	return l.read(slot, elem, nil), nil
}

