package types

// IsInteger reports signed or unsigned integers. Chars are not integers.
func (in *Interner) IsInteger(id TypeID) bool {
	k := in.Kind(id)
	return k == KindInt || k == KindUint
}

func (in *Interner) IsSigned(id TypeID) bool {
	return in.Kind(id) == KindInt
}

func (in *Interner) IsFloat(id TypeID) bool {
	return in.Kind(id) == KindFloat
}

func (in *Interner) IsNumeric(id TypeID) bool {
	return in.IsInteger(id) || in.IsFloat(id)
}

// WidthOf returns the bit width of a numeric type, 0 otherwise.
func (in *Interner) WidthOf(id TypeID) Width {
	tt, _ := in.Lookup(id)
	switch tt.Kind {
	case KindInt, KindUint, KindFloat:
		return tt.Width
	case KindChar:
		return Width32
	}
	return 0
}

// IsComposite reports types lowered as aggregates held in addressable
// storage: records, variants, tuples and arrays.
func (in *Interner) IsComposite(id TypeID) bool {
	switch in.Kind(id) {
	case KindRecord, KindVariant, KindTuple, KindArray:
		return true
	}
	return false
}

// IsContainer reports runtime-backed container handles.
func (in *Interner) IsContainer(id TypeID) bool {
	return in.Kind(id) == KindBuiltin
}

// StripRefs removes any number of reference layers.
func (in *Interner) StripRefs(id TypeID) TypeID {
	for {
		tt, ok := in.Lookup(id)
		if !ok || tt.Kind != KindRef {
			return id
		}
		id = tt.Elem
	}
}

// Elem returns the element type of arrays, slices and references.
func (in *Interner) Elem(id TypeID) TypeID {
	tt, _ := in.Lookup(id)
	switch tt.Kind {
	case KindArray, KindSlice, KindRef:
		return tt.Elem
	}
	return NoTypeID
}

// Sym returns the nominal symbol of a record or variant.
func (in *Interner) Sym(id TypeID) (string, bool) {
	tt, ok := in.Lookup(id)
	if !ok || (tt.Kind != KindRecord && tt.Kind != KindVariant) {
		return "", false
	}
	return in.strings.MustLookup(tt.Sym), true
}

// ContainerElem returns the first type argument of a container, the element
// type for Vec/Set/Chan/Box/Option and the key type for Map.
func (in *Interner) ContainerElem(id TypeID) TypeID {
	_, args := in.ContainerArgs(id)
	if len(args) == 0 {
		return NoTypeID
	}
	return args[0]
}
