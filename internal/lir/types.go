package lir

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// TypeID is a handle into a module's type table. 0 is invalid.
type TypeID uint32

const NoType TypeID = 0

type TypeKind uint8

const (
	TVoid TypeKind = iota + 1
	TInt
	TFloat
	TPtr
	TStruct
	TArray
	TFunc
)

func (k TypeKind) String() string {
	switch k {
	case TVoid:
		return "void"
	case TInt:
		return "int"
	case TFloat:
		return "float"
	case TPtr:
		return "ptr"
	case TStruct:
		return "struct"
	case TArray:
		return "array"
	case TFunc:
		return "func"
	}
	return fmt.Sprintf("TypeKind(%d)", k)
}

// Type is a low-level type. Pointers are opaque; named structs get their
// body after creation so layouts can refer to each other by pointer.
type Type struct {
	Kind   TypeKind
	Bits   uint16   // TInt, TFloat
	Name   string   // named TStruct
	Fields []TypeID // TStruct
	Elem   TypeID   // TArray
	Len    uint64   // TArray
	Params []TypeID // TFunc
	Result TypeID   // TFunc
	Opaque bool     // named TStruct without a body yet
}

// Types interns low-level types.
type Types struct {
	list  []Type
	index map[string]TypeID
	named []TypeID

	Void, I1, I8, I16, I32, I64, F32, F64, Ptr TypeID
}

func NewTypes() *Types {
	t := &Types{list: []Type{{}}, index: make(map[string]TypeID, 64)}
	t.Void = t.intern(Type{Kind: TVoid})
	t.I1 = t.Int(1)
	t.I8 = t.Int(8)
	t.I16 = t.Int(16)
	t.I32 = t.Int(32)
	t.I64 = t.Int(64)
	t.F32 = t.Float(32)
	t.F64 = t.Float(64)
	t.Ptr = t.intern(Type{Kind: TPtr})
	return t
}

func (t *Types) intern(ty Type) TypeID {
	key := t.key(ty)
	if id, ok := t.index[key]; ok {
		return id
	}
	n, err := safecast.Conv[uint32](len(t.list))
	if err != nil {
		panic(fmt.Errorf("lir: type table overflow: %w", err))
	}
	id := TypeID(n)
	t.list = append(t.list, ty)
	t.index[key] = id
	return id
}

func (t *Types) key(ty Type) string {
	switch ty.Kind {
	case TStruct:
		if ty.Name != "" {
			return "%" + ty.Name
		}
		return "{" + t.idList(ty.Fields) + "}"
	case TArray:
		return "[" + strconv.FormatUint(ty.Len, 10) + "x" + strconv.FormatUint(uint64(ty.Elem), 10) + "]"
	case TFunc:
		return "fn(" + t.idList(ty.Params) + ")" + strconv.FormatUint(uint64(ty.Result), 10)
	}
	return ty.Kind.String() + strconv.Itoa(int(ty.Bits))
}

func (t *Types) idList(ids []TypeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func (t *Types) Int(bits uint16) TypeID { return t.intern(Type{Kind: TInt, Bits: bits}) }

func (t *Types) Float(bits uint16) TypeID { return t.intern(Type{Kind: TFloat, Bits: bits}) }

// Struct interns an anonymous struct.
func (t *Types) Struct(fields ...TypeID) TypeID {
	return t.intern(Type{Kind: TStruct, Fields: append([]TypeID(nil), fields...)})
}

// Named returns the named struct name, creating it opaque on first use.
func (t *Types) Named(name string) TypeID {
	if id, ok := t.index["%"+name]; ok {
		return id
	}
	id := t.intern(Type{Kind: TStruct, Name: name, Opaque: true})
	t.named = append(t.named, id)
	return id
}

// SetBody fills a named struct.
func (t *Types) SetBody(id TypeID, fields ...TypeID) {
	ty := &t.list[id]
	ty.Fields = append([]TypeID(nil), fields...)
	ty.Opaque = false
}

// NamedStructs returns named structs in creation order.
func (t *Types) NamedStructs() []TypeID { return t.named }

func (t *Types) Array(elem TypeID, n uint64) TypeID {
	return t.intern(Type{Kind: TArray, Elem: elem, Len: n})
}

func (t *Types) Func(result TypeID, params ...TypeID) TypeID {
	return t.intern(Type{Kind: TFunc, Params: append([]TypeID(nil), params...), Result: result})
}

// Get returns the type for id.
func (t *Types) Get(id TypeID) Type {
	if int(id) >= len(t.list) {
		return Type{}
	}
	return t.list[id]
}

func (t *Types) Kind(id TypeID) TypeKind { return t.Get(id).Kind }

func (t *Types) IsInt(id TypeID) bool { return t.Kind(id) == TInt }

func (t *Types) IsFloat(id TypeID) bool { return t.Kind(id) == TFloat }

// IsAggregate reports structs and arrays, which live in memory.
func (t *Types) IsAggregate(id TypeID) bool {
	k := t.Kind(id)
	return k == TStruct || k == TArray
}

func (t *Types) Len() int { return len(t.list) - 1 }

// String renders id in the dump syntax.
func (t *Types) String(id TypeID) string {
	ty := t.Get(id)
	switch ty.Kind {
	case TVoid:
		return "void"
	case TInt:
		return "i" + strconv.Itoa(int(ty.Bits))
	case TFloat:
		return "f" + strconv.Itoa(int(ty.Bits))
	case TPtr:
		return "ptr"
	case TStruct:
		if ty.Name != "" {
			return "%" + ty.Name
		}
		return "{" + t.list2str(ty.Fields) + "}"
	case TArray:
		return "[" + strconv.FormatUint(ty.Len, 10) + " x " + t.String(ty.Elem) + "]"
	case TFunc:
		return t.String(ty.Result) + " (" + t.list2str(ty.Params) + ")"
	}
	return "<invalid>"
}

func (t *Types) list2str(ids []TypeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = t.String(id)
	}
	return strings.Join(parts, ", ")
}
