package lir

// InstrKind enumerates instruction kinds.
type InstrKind uint8

const (
	InstrAlloca InstrKind = iota + 1
	InstrLoad
	InstrStore
	InstrFieldPtr
	InstrElemPtr
	InstrBin
	InstrCmp
	InstrCast
	InstrCall
)

func (k InstrKind) String() string {
	switch k {
	case InstrAlloca:
		return "alloca"
	case InstrLoad:
		return "load"
	case InstrStore:
		return "store"
	case InstrFieldPtr:
		return "fieldptr"
	case InstrElemPtr:
		return "elemptr"
	case InstrBin:
		return "bin"
	case InstrCmp:
		return "cmp"
	case InstrCast:
		return "cast"
	case InstrCall:
		return "call"
	}
	return "?"
}

// Instr is one instruction. Dst is 0 for instructions without a result.
type Instr struct {
	Kind InstrKind
	Dst  Reg

	Alloca   AllocaInstr
	Load     LoadInstr
	Store    StoreInstr
	FieldPtr FieldPtrInstr
	ElemPtr  ElemPtrInstr
	Bin      BinInstr
	Cmp      CmpInstr
	Cast     CastInstr
	Call     CallInstr
}

type AllocaInstr struct {
	Type TypeID
}

type LoadInstr struct {
	Type TypeID
	Ptr  Value
}

type StoreInstr struct {
	Value Value
	Ptr   Value
}

// FieldPtrInstr addresses field Index of a struct stored at Base.
type FieldPtrInstr struct {
	Struct TypeID
	Base   Value
	Index  int
}

// ElemPtrInstr addresses element Index of a sequence of Elem at Base.
type ElemPtrInstr struct {
	Elem  TypeID
	Base  Value
	Index Value
}

type BinOp uint8

const (
	BinAdd BinOp = iota + 1
	BinSub
	BinMul
	BinSDiv
	BinUDiv
	BinSRem
	BinURem
	BinFAdd
	BinFSub
	BinFMul
	BinFDiv
	BinFRem
	BinAnd
	BinOr
	BinXor
	BinShl
	BinAShr
	BinLShr
)

var binNames = [...]string{
	BinAdd: "add", BinSub: "sub", BinMul: "mul", BinSDiv: "sdiv", BinUDiv: "udiv",
	BinSRem: "srem", BinURem: "urem", BinFAdd: "fadd", BinFSub: "fsub", BinFMul: "fmul",
	BinFDiv: "fdiv", BinFRem: "frem", BinAnd: "and", BinOr: "or", BinXor: "xor",
	BinShl: "shl", BinAShr: "ashr", BinLShr: "lshr",
}

func (op BinOp) String() string {
	if int(op) < len(binNames) && binNames[op] != "" {
		return binNames[op]
	}
	return "bin?"
}

type BinInstr struct {
	Op   BinOp
	L, R Value
}

type CmpPred uint8

const (
	CmpEq CmpPred = iota + 1
	CmpNe
	CmpSLt
	CmpSLe
	CmpSGt
	CmpSGe
	CmpULt
	CmpULe
	CmpUGt
	CmpUGe
	CmpFEq
	CmpFNe
	CmpFLt
	CmpFLe
	CmpFGt
	CmpFGe
)

var cmpNames = [...]string{
	CmpEq: "eq", CmpNe: "ne", CmpSLt: "slt", CmpSLe: "sle", CmpSGt: "sgt", CmpSGe: "sge",
	CmpULt: "ult", CmpULe: "ule", CmpUGt: "ugt", CmpUGe: "uge",
	CmpFEq: "oeq", CmpFNe: "one", CmpFLt: "olt", CmpFLe: "ole", CmpFGt: "ogt", CmpFGe: "oge",
}

func (p CmpPred) String() string {
	if int(p) < len(cmpNames) && cmpNames[p] != "" {
		return cmpNames[p]
	}
	return "cmp?"
}

type CmpInstr struct {
	Pred CmpPred
	L, R Value
}

type CastOp uint8

const (
	CastTrunc CastOp = iota + 1
	CastZExt
	CastSExt
	CastFPTrunc
	CastFPExt
	CastSIToFP
	CastUIToFP
	CastFPToSI
	CastFPToUI
	CastPtrToInt
	CastIntToPtr
)

var castNames = [...]string{
	CastTrunc: "trunc", CastZExt: "zext", CastSExt: "sext", CastFPTrunc: "fptrunc",
	CastFPExt: "fpext", CastSIToFP: "sitofp", CastUIToFP: "uitofp", CastFPToSI: "fptosi",
	CastFPToUI: "fptoui", CastPtrToInt: "ptrtoint", CastIntToPtr: "inttoptr",
}

func (op CastOp) String() string {
	if int(op) < len(castNames) && castNames[op] != "" {
		return castNames[op]
	}
	return "cast?"
}

type CastInstr struct {
	Op    CastOp
	Value Value
	To    TypeID
}

// CallInstr calls Callee, a function address or a register holding one,
// with signature Sig.
type CallInstr struct {
	Callee Value
	Sig    TypeID
	Args   []Value
}
