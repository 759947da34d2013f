package lower

import (
	"fortio.org/safecast"

	"kiln/internal/diag"
	"kiln/internal/lir"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/types"
)

// lirType maps a source type to its storage type.
//
//	unit, never        {}
//	bool               i1
//	iN, uN, char       iN, i32
//	str, refs, handles ptr
//	slice              {ptr, i64}
//	fn values          {ptr fn, ptr env}
//	records            %Name {fields}
//	variants           %Name {i32 tag, [n x iA] payload}
func (s *Session) lirType(t types.TypeID) lir.TypeID {
	if lt, ok := s.ltypes[t]; ok {
		return lt
	}
	ts := s.mod.Types
	tt, _ := s.tys.Lookup(t)
	var lt lir.TypeID
	switch tt.Kind {
	case types.KindBool:
		lt = ts.I1
	case types.KindInt, types.KindUint:
		lt = ts.Int(uint16(tt.Width))
	case types.KindFloat:
		lt = ts.Float(uint16(tt.Width))
	case types.KindChar:
		lt = ts.I32
	case types.KindString, types.KindRef, types.KindBuiltin:
		lt = ts.Ptr
	case types.KindSlice:
		lt = ts.Struct(ts.Ptr, ts.I64)
	case types.KindFn:
		lt = ts.Struct(ts.Ptr, ts.Ptr)
	case types.KindArray:
		lt = ts.Array(s.lirType(tt.Elem), uint64(tt.Count))
	case types.KindTuple:
		elems := s.tys.TupleElems(t)
		fields := make([]lir.TypeID, len(elems))
		for i, e := range elems {
			fields[i] = s.lirType(e)
		}
		lt = ts.Struct(fields...)
	case types.KindRecord:
		lt = ts.Named(s.tys.Canonical(t))
		s.ltypes[t] = lt
		d := s.defOf(t)
		fields := make([]lir.TypeID, 0, 4)
		if d != nil {
			for _, f := range d.Fields {
				fields = append(fields, s.lirType(f.Type))
			}
		}
		ts.SetBody(lt, fields...)
	case types.KindVariant:
		lt = ts.Named(s.tys.Canonical(t))
		s.ltypes[t] = lt
		ts.SetBody(lt, s.variantBody(t)...)
	default:
		lt = ts.Struct()
	}
	s.ltypes[t] = lt
	return lt
}

// variantBody is the tag plus an integer array sized and aligned for the
// largest payload.
func (s *Session) variantBody(t types.TypeID) []lir.TypeID {
	ts := s.mod.Types
	d := s.defOf(t)
	if d == nil {
		return []lir.TypeID{ts.I32}
	}
	var payloads []lir.TypeID
	for _, c := range d.Cases {
		if c.Payload != types.NoTypeID {
			payloads = append(payloads, s.lirType(c.Payload))
		}
	}
	if len(payloads) == 0 {
		return []lir.TypeID{ts.I32}
	}
	u, err := s.lay.Union(payloads)
	if err != nil {
		diag.ReportError(s.rep, diag.LowUnsupported, d.Span,
			"cannot lay out `"+s.tys.Canonical(t)+"`: "+err.Error()).Emit()
		return []lir.TypeID{ts.I32}
	}
	if u.PayloadSize == 0 {
		return []lir.TypeID{ts.I32}
	}
	bits, err := safecast.Conv[uint16](u.PayloadAlign * 8)
	if err != nil {
		bits = 64
	}
	n := (u.PayloadSize + u.PayloadAlign - 1) / u.PayloadAlign
	return []lir.TypeID{ts.I32, ts.Array(ts.Int(bits), uint64(n))} // #nosec G115 -- sizes are positive
}

// resultType is lirType except that unit and never return void.
func (s *Session) resultType(t types.TypeID) lir.TypeID {
	if s.isVoid(t) {
		return s.mod.Types.Void
	}
	return s.lirType(t)
}

func (s *Session) isVoid(t types.TypeID) bool {
	k := s.tys.Kind(t)
	return k == types.KindUnit || k == types.KindNever || t == types.NoTypeID
}

// isAgg reports types whose values are handled through their address.
func (s *Session) isAgg(t types.TypeID) bool {
	switch s.tys.Kind(t) {
	case types.KindRecord, types.KindVariant, types.KindTuple, types.KindArray, types.KindSlice, types.KindFn:
		return true
	}
	return false
}

func (s *Session) sizeOf(t types.TypeID) int64 {
	if s.isVoid(t) {
		return 0
	}
	n, err := s.lay.SizeOf(s.lirType(t))
	if err != nil {
		return 0
	}
	return int64(n)
}

func (s *Session) alignOf(t types.TypeID) int64 {
	n, err := s.lay.AlignOf(s.lirType(t))
	if err != nil || n == 0 {
		return 1
	}
	return int64(n)
}

// defOf returns the registry definition of a record or variant type.
func (s *Session) defOf(t types.TypeID) *registry.Def {
	name, ok := s.tys.Sym(t)
	if !ok {
		return nil
	}
	d, ok := s.reg.LookupString(name)
	if !ok {
		return nil
	}
	return d
}

// originName is the declared name of a type's definition: the generic
// name for instances.
func (s *Session) originName(d *registry.Def) source.StringID {
	if d.Origin.IsValid() {
		return s.reg.Def(d.Origin).Name
	}
	return d.Name
}

func (s *Session) builtinOf(t types.TypeID) (types.Builtin, []types.TypeID) {
	if s.tys.Kind(t) != types.KindBuiltin {
		return types.BuiltinNone, nil
	}
	return s.tys.ContainerArgs(t)
}

func (s *Session) typeName(t types.TypeID) string {
	return s.tys.String(t)
}
