package lir

import (
	"math"
	"strconv"
)

// Reg is a virtual register of one function. 0 is none.
type Reg uint32

type ValueKind uint8

const (
	VNone ValueKind = iota
	VReg
	VInt
	VFloat
	VNull
	VUndef
	VGlobal // string constant
	VFunc   // function address
)

// Value is an instruction operand.
type Value struct {
	Kind  ValueKind
	Type  TypeID
	Reg   Reg
	Int   int64
	Float float64
	Sym   string
}

func (v Value) IsValid() bool { return v.Kind != VNone }

func ConstInt(ty TypeID, n int64) Value { return Value{Kind: VInt, Type: ty, Int: n} }

func ConstFloat(ty TypeID, f float64) Value { return Value{Kind: VFloat, Type: ty, Float: f} }

func Null(ptr TypeID) Value { return Value{Kind: VNull, Type: ptr} }

func Undef(ty TypeID) Value { return Value{Kind: VUndef, Type: ty} }

// FuncRef is the address of a function.
func FuncRef(ptr TypeID, name string) Value { return Value{Kind: VFunc, Type: ptr, Sym: name} }

func (v Value) text() string {
	switch v.Kind {
	case VReg:
		return "%" + strconv.FormatUint(uint64(v.Reg), 10)
	case VInt:
		return strconv.FormatInt(v.Int, 10)
	case VFloat:
		if math.IsInf(v.Float, 0) || math.IsNaN(v.Float) {
			return strconv.FormatFloat(v.Float, 'g', -1, 64)
		}
		return strconv.FormatFloat(v.Float, 'e', -1, 64)
	case VNull:
		return "null"
	case VUndef:
		return "undef"
	case VGlobal, VFunc:
		return "@" + v.Sym
	}
	return "<none>"
}
