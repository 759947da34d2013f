package types

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"kiln/internal/source"
)

// Builtins stores TypeIDs for primitive types.
type Builtins struct {
	Invalid TypeID
	Unit    TypeID
	Never   TypeID
	Bool    TypeID
	Char    TypeID
	String  TypeID
	I8      TypeID
	I16     TypeID
	I32     TypeID
	I64     TypeID
	U8      TypeID
	U16     TypeID
	U32     TypeID
	U64     TypeID
	F32     TypeID
	F64     TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Records and variants are interned by symbol, so the interner needs the
// string table that owns those symbols.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	lists    [][]TypeID
	listIdx  map[string]uint32
	builtins Builtins
	strings  *source.Interner
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner(strs *source.Interner) *Interner {
	if strs == nil {
		strs = source.NewInterner()
	}
	in := &Interner{
		index:   make(map[typeKey]TypeID, 64),
		lists:   [][]TypeID{nil}, // slot 0 = empty list
		listIdx: map[string]uint32{"": 0},
		strings: strs,
	}
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Never = in.Intern(Type{Kind: KindNever})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.Char = in.Intern(Type{Kind: KindChar})
	in.builtins.String = in.Intern(Type{Kind: KindString})
	in.builtins.I8 = in.Intern(MakeInt(Width8))
	in.builtins.I16 = in.Intern(MakeInt(Width16))
	in.builtins.I32 = in.Intern(MakeInt(Width32))
	in.builtins.I64 = in.Intern(MakeInt(Width64))
	in.builtins.U8 = in.Intern(MakeUint(Width8))
	in.builtins.U16 = in.Intern(MakeUint(Width16))
	in.builtins.U32 = in.Intern(MakeUint(Width32))
	in.builtins.U64 = in.Intern(MakeUint(Width64))
	in.builtins.F32 = in.Intern(MakeFloat(Width32))
	in.builtins.F64 = in.Intern(MakeFloat(Width64))
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Strings exposes the symbol table used for nominal types.
func (in *Interner) Strings() *source.Interner {
	return in.strings
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

func (in *Interner) internRaw(t Type) TypeID {
	n, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(n)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Kind returns the kind of id, KindInvalid for unknown ids.
func (in *Interner) Kind(id TypeID) Kind {
	tt, _ := in.Lookup(id)
	return tt.Kind
}

type typeKey Type

// list interns a slice of type ids so equal lists share one payload slot.
func (in *Interner) list(ids []TypeID) uint32 {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", id)
	}
	key := b.String()
	if slot, ok := in.listIdx[key]; ok {
		return slot
	}
	slot, err := safecast.Conv[uint32](len(in.lists))
	if err != nil {
		panic(fmt.Errorf("type list overflow: %w", err))
	}
	in.lists = append(in.lists, append([]TypeID(nil), ids...))
	in.listIdx[key] = slot
	return slot
}

func (in *Interner) payload(slot uint32) []TypeID {
	if int(slot) >= len(in.lists) {
		return nil
	}
	return in.lists[slot]
}

// Tuple interns a tuple type. The empty tuple is unit.
func (in *Interner) Tuple(elems []TypeID) TypeID {
	if len(elems) == 0 {
		return in.builtins.Unit
	}
	return in.Intern(Type{Kind: KindTuple, Payload: in.list(elems)})
}

// TupleElems returns the element types of a tuple.
func (in *Interner) TupleElems(id TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTuple {
		return nil
	}
	return in.payload(tt.Payload)
}

// Fn interns a function type.
func (in *Interner) Fn(params []TypeID, result TypeID) TypeID {
	sig := make([]TypeID, 0, len(params)+1)
	sig = append(sig, params...)
	sig = append(sig, result)
	return in.Intern(Type{Kind: KindFn, Payload: in.list(sig)})
}

// FnSig returns the parameter and result types of a function type.
func (in *Interner) FnSig(id TypeID) (params []TypeID, result TypeID, ok bool) {
	tt, found := in.Lookup(id)
	if !found || tt.Kind != KindFn {
		return nil, NoTypeID, false
	}
	sig := in.payload(tt.Payload)
	return sig[:len(sig)-1], sig[len(sig)-1], true
}

// Container interns a builtin container instance such as Vec<i32>.
func (in *Interner) Container(b Builtin, args []TypeID) TypeID {
	return in.Intern(Type{Kind: KindBuiltin, Builtin: b, Payload: in.list(args)})
}

// ContainerArgs returns the kind and type arguments of a builtin container.
func (in *Interner) ContainerArgs(id TypeID) (Builtin, []TypeID) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindBuiltin {
		return BuiltinNone, nil
	}
	return tt.Builtin, in.payload(tt.Payload)
}

// Record interns the nominal record named sym.
func (in *Interner) Record(sym source.StringID) TypeID {
	return in.Intern(MakeRecord(sym))
}

// Variant interns the nominal variant type named sym.
func (in *Interner) Variant(sym source.StringID) TypeID {
	return in.Intern(MakeVariant(sym))
}

// Primitive resolves a primitive type name.
func (in *Interner) Primitive(name string) (TypeID, bool) {
	b := in.builtins
	switch name {
	case "i8":
		return b.I8, true
	case "i16":
		return b.I16, true
	case "i32", "int":
		return b.I32, true
	case "i64":
		return b.I64, true
	case "u8", "byte":
		return b.U8, true
	case "u16":
		return b.U16, true
	case "u32", "uint":
		return b.U32, true
	case "u64":
		return b.U64, true
	case "f32":
		return b.F32, true
	case "f64", "float":
		return b.F64, true
	case "bool":
		return b.Bool, true
	case "char":
		return b.Char, true
	case "str", "string":
		return b.String, true
	case "unit", "()":
		return b.Unit, true
	case "never", "!":
		return b.Never, true
	}
	return NoTypeID, false
}
