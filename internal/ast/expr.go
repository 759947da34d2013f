package ast

import (
	"kiln/internal/source"
)

// ExprKind enumerates expression kinds of the input tree.
type ExprKind uint8

const (
	ExprLiteral ExprKind = iota
	ExprIdent
	ExprUnary
	ExprBinary
	ExprCall
	ExprMethodCall
	ExprField
	ExprTupleIndex
	ExprIndex
	ExprRecordLit
	ExprTupleLit
	ExprArrayLit
	ExprArrayRepeat
	ExprMapLit
	ExprMatch
	ExprCast
	ExprClosure
	ExprIf
	ExprBlock
	ExprRange
	ExprSpawn
)

func (k ExprKind) String() string {
	switch k {
	case ExprLiteral:
		return "Literal"
	case ExprIdent:
		return "Ident"
	case ExprUnary:
		return "Unary"
	case ExprBinary:
		return "Binary"
	case ExprCall:
		return "Call"
	case ExprMethodCall:
		return "MethodCall"
	case ExprField:
		return "Field"
	case ExprTupleIndex:
		return "TupleIndex"
	case ExprIndex:
		return "Index"
	case ExprRecordLit:
		return "RecordLit"
	case ExprTupleLit:
		return "TupleLit"
	case ExprArrayLit:
		return "ArrayLit"
	case ExprArrayRepeat:
		return "ArrayRepeat"
	case ExprMapLit:
		return "MapLit"
	case ExprMatch:
		return "Match"
	case ExprCast:
		return "Cast"
	case ExprClosure:
		return "Closure"
	case ExprIf:
		return "If"
	case ExprBlock:
		return "Block"
	case ExprRange:
		return "Range"
	case ExprSpawn:
		return "Spawn"
	default:
		return "Unknown"
	}
}

// Expr is an expression node. The tree carries no types: the lowering
// reconstructs them.
type Expr struct {
	Kind ExprKind
	Span source.Span
	Data ExprData
}

// ExprData is the interface for expression-specific data.
type ExprData interface {
	exprData()
}

// LiteralKind enumerates literal value kinds.
type LiteralKind uint8

const (
	LiteralInt LiteralKind = iota
	LiteralFloat
	LiteralBool
	LiteralString
	LiteralChar
	LiteralUnit
)

// LiteralData holds data for ExprLiteral.
type LiteralData struct {
	Kind   LiteralKind
	Int    int64
	Float  float64
	Bool   bool
	String string
	Char   rune
}

func (LiteralData) exprData() {}

// IdentData holds data for ExprIdent.
type IdentData struct {
	Name source.StringID
}

func (IdentData) exprData() {}

// UnaryOp enumerates prefix operators.
type UnaryOp uint8

const (
	UnaryNeg UnaryOp = iota
	UnaryNot
	UnaryRef
	UnaryRefMut
	UnaryDeref
)

func (op UnaryOp) String() string {
	switch op {
	case UnaryNeg:
		return "-"
	case UnaryNot:
		return "!"
	case UnaryRef:
		return "&"
	case UnaryRefMut:
		return "&mut"
	case UnaryDeref:
		return "*"
	}
	return "?"
}

type UnaryData struct {
	Op      UnaryOp
	Operand *Expr
}

func (UnaryData) exprData() {}

// BinaryOp enumerates infix operators.
type BinaryOp uint8

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinRem
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAnd
	BinOr
	BinBitAnd
	BinBitOr
	BinBitXor
	BinShl
	BinShr
)

var binaryOpText = [...]string{
	BinAdd: "+", BinSub: "-", BinMul: "*", BinDiv: "/", BinRem: "%",
	BinEq: "==", BinNe: "!=", BinLt: "<", BinLe: "<=", BinGt: ">", BinGe: ">=",
	BinAnd: "&&", BinOr: "||",
	BinBitAnd: "&", BinBitOr: "|", BinBitXor: "^", BinShl: "<<", BinShr: ">>",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpText) {
		return binaryOpText[op]
	}
	return "?"
}

// BinaryOpByText parses an operator spelling.
func BinaryOpByText(s string) (BinaryOp, bool) {
	for i, t := range binaryOpText {
		if t == s {
			return BinaryOp(i), true // #nosec G115 -- small table
		}
	}
	return 0, false
}

// IsComparison reports ==, !=, <, <=, >, >=.
func (op BinaryOp) IsComparison() bool {
	return op >= BinEq && op <= BinGe
}

func (op BinaryOp) IsLogical() bool {
	return op == BinAnd || op == BinOr
}

type BinaryData struct {
	Op    BinaryOp
	Left  *Expr
	Right *Expr
}

func (BinaryData) exprData() {}

// CallData holds data for ExprCall. TypeArgs are explicit type arguments
// (f::<i32>(x)); empty means infer.
type CallData struct {
	Callee   *Expr
	TypeArgs []*TypeExpr
	Args     []*Expr
}

func (CallData) exprData() {}

// MethodCallData holds data for receiver.method(args). The receiver may be
// a bare type name (static call or variant construction).
type MethodCallData struct {
	Receiver *Expr
	Method   source.StringID
	TypeArgs []*TypeExpr
	Args     []*Expr
}

func (MethodCallData) exprData() {}

// FieldData holds data for target.field. With a bare variant type name as
// target it names a unit variant case (Color.Red).
type FieldData struct {
	Target *Expr
	Field  source.StringID
}

func (FieldData) exprData() {}

type TupleIndexData struct {
	Target *Expr
	Index  int
}

func (TupleIndexData) exprData() {}

type IndexData struct {
	Target *Expr
	Index  *Expr
}

func (IndexData) exprData() {}

// FieldInit is one field initializer in a record literal.
type FieldInit struct {
	Name  source.StringID
	Value *Expr
	Span  source.Span
}

// RecordLitData holds data for Type { field: value, ... }. Type carries
// explicit type arguments when written (Box<i32> { v: 1 }).
type RecordLitData struct {
	Type   *TypeExpr
	Fields []FieldInit
}

func (RecordLitData) exprData() {}

type TupleLitData struct {
	Elems []*Expr
}

func (TupleLitData) exprData() {}

type ArrayLitData struct {
	Elems []*Expr
}

func (ArrayLitData) exprData() {}

// ArrayRepeatData holds data for [value; count].
type ArrayRepeatData struct {
	Value *Expr
	Count int64
}

func (ArrayRepeatData) exprData() {}

type MapEntry struct {
	Key   *Expr
	Value *Expr
}

// MapLitData holds data for {k: v, ...} map literals.
type MapLitData struct {
	Entries []MapEntry
}

func (MapLitData) exprData() {}

// MatchArm is one arm of a match expression.
type MatchArm struct {
	Pattern *Pattern
	Guard   *Expr // nil if none
	Body    *Expr
	Span    source.Span
}

type MatchData struct {
	Scrutinee *Expr
	Arms      []MatchArm
}

func (MatchData) exprData() {}

type CastData struct {
	Value  *Expr
	Target *TypeExpr
}

func (CastData) exprData() {}

// Param is a function or closure parameter. Type may be nil for closures.
type Param struct {
	Name source.StringID
	Type *TypeExpr
	Span source.Span
}

type ClosureData struct {
	Params []Param
	Result *TypeExpr // nil = inferred
	Body   *Expr
}

func (ClosureData) exprData() {}

// IfData holds data for if-expressions and if-statements. Else is nil, a
// block expression or another if.
type IfData struct {
	Cond *Expr
	Then *Block
	Else *Expr
}

func (IfData) exprData() {}

type BlockData struct {
	Block *Block
}

func (BlockData) exprData() {}

// RangeData holds data for a..b and a..=b.
type RangeData struct {
	Start     *Expr
	End       *Expr
	Inclusive bool
}

func (RangeData) exprData() {}

// SpawnData holds data for spawn <expr>; the operand is a closure.
type SpawnData struct {
	Value *Expr
}

func (SpawnData) exprData() {}
