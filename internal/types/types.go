package types

import (
	"fmt"

	"kiln/internal/source"
)

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of source-level types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindNever
	KindBool
	KindInt
	KindUint
	KindFloat
	KindChar
	KindString
	KindTuple
	KindArray
	KindSlice
	KindRef
	KindFn
	KindRecord
	KindVariant
	KindBuiltin
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindNever:
		return "never"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindTuple:
		return "tuple"
	case KindArray:
		return "array"
	case KindSlice:
		return "slice"
	case KindRef:
		return "ref"
	case KindFn:
		return "fn"
	case KindRecord:
		return "record"
	case KindVariant:
		return "variant"
	case KindBuiltin:
		return "builtin"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Builtin enumerates the runtime-backed generic containers.
type Builtin uint8

const (
	BuiltinNone Builtin = iota
	BuiltinVec
	BuiltinBox
	BuiltinOption
	BuiltinResult
	BuiltinMap
	BuiltinSet
	BuiltinChan
	BuiltinTask
	BuiltinRange
)

var builtinNames = [...]string{
	BuiltinNone:   "",
	BuiltinVec:    "Vec",
	BuiltinBox:    "Box",
	BuiltinOption: "Option",
	BuiltinResult: "Result",
	BuiltinMap:    "Map",
	BuiltinSet:    "Set",
	BuiltinChan:   "Chan",
	BuiltinTask:   "Task",
	BuiltinRange:  "Range",
}

var builtinArity = [...]int{
	BuiltinVec:    1,
	BuiltinBox:    1,
	BuiltinOption: 1,
	BuiltinResult: 2,
	BuiltinMap:    2,
	BuiltinSet:    1,
	BuiltinChan:   1,
	BuiltinTask:   1,
	BuiltinRange:  1,
}

func (b Builtin) String() string {
	if int(b) < len(builtinNames) {
		return builtinNames[b]
	}
	return fmt.Sprintf("Builtin(%d)", b)
}

// Arity is the number of type arguments the container takes.
func (b Builtin) Arity() int {
	if b == BuiltinNone || int(b) >= len(builtinArity) {
		return 0
	}
	return builtinArity[b]
}

// BuiltinByName maps a container name to its kind.
func BuiltinByName(name string) (Builtin, bool) {
	for b := BuiltinVec; int(b) < len(builtinNames); b++ {
		if builtinNames[b] == name {
			return b, true
		}
	}
	return BuiltinNone, false
}

// Type is a compact descriptor for any supported type.
//
// Records and variants are nominal: Sym is the concrete (already mangled)
// name, so Box<i32> and Box<str> are distinct records. Composite payloads
// (tuple elements, fn signatures, container arguments) live in a side table
// addressed by Payload.
type Type struct {
	Kind    Kind
	Elem    TypeID
	Count   uint32 // array length
	Width   Width  // numeric primitives
	Mutable bool   // references
	Builtin Builtin
	Sym     source.StringID // records, variants
	Payload uint32          // tuple elems, fn params+result, builtin args
}

// MakeInt describes a signed integer of the given width.
func MakeInt(width Width) Type { return Type{Kind: KindInt, Width: width} }

// MakeUint describes an unsigned integer type.
func MakeUint(width Width) Type { return Type{Kind: KindUint, Width: width} }

// MakeFloat describes a floating-point type.
func MakeFloat(width Width) Type { return Type{Kind: KindFloat, Width: width} }

// MakeArray describes a fixed-size array.
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakeSlice describes a borrowed view over contiguous elements.
func MakeSlice(elem TypeID) Type { return Type{Kind: KindSlice, Elem: elem} }

// MakeRef describes &T or &mut T depending on the mutable flag.
func MakeRef(elem TypeID, mutable bool) Type {
	return Type{Kind: KindRef, Elem: elem, Mutable: mutable}
}

// MakeRecord describes a concrete record by symbol.
func MakeRecord(sym source.StringID) Type { return Type{Kind: KindRecord, Sym: sym} }

// MakeVariant describes a concrete variant type by symbol.
func MakeVariant(sym source.StringID) Type { return Type{Kind: KindVariant, Sym: sym} }
