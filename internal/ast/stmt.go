package ast

import "kiln/internal/source"

// StmtKind enumerates statement kinds.
type StmtKind uint8

const (
	StmtLet StmtKind = iota
	StmtExpr
	StmtAssign
	StmtReturn
	StmtWhile
	StmtLoop
	StmtFor
	StmtBreak
	StmtContinue
)

func (k StmtKind) String() string {
	switch k {
	case StmtLet:
		return "Let"
	case StmtExpr:
		return "Expr"
	case StmtAssign:
		return "Assign"
	case StmtReturn:
		return "Return"
	case StmtWhile:
		return "While"
	case StmtLoop:
		return "Loop"
	case StmtFor:
		return "For"
	case StmtBreak:
		return "Break"
	case StmtContinue:
		return "Continue"
	default:
		return "Unknown"
	}
}

type Stmt struct {
	Kind StmtKind
	Span source.Span
	Data StmtData
}

type StmtData interface {
	stmtData()
}

// LetData binds Name, or destructures through Pattern when Pattern is set.
type LetData struct {
	Name    source.StringID
	Pattern *Pattern
	Mutable bool
	Type    *TypeExpr // nil = inferred
	Value   *Expr     // nil = declared, uninitialised
}

func (LetData) stmtData() {}

type ExprStmtData struct {
	Expr *Expr
}

func (ExprStmtData) stmtData() {}

// AssignOp enumerates = and compound assignments.
type AssignOp uint8

const (
	AssignPlain AssignOp = iota
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignRem
)

// Binary returns the arithmetic operator of a compound assignment.
func (op AssignOp) Binary() (BinaryOp, bool) {
	switch op {
	case AssignAdd:
		return BinAdd, true
	case AssignSub:
		return BinSub, true
	case AssignMul:
		return BinMul, true
	case AssignDiv:
		return BinDiv, true
	case AssignRem:
		return BinRem, true
	}
	return 0, false
}

type AssignData struct {
	Op     AssignOp
	Target *Expr
	Value  *Expr
}

func (AssignData) stmtData() {}

type ReturnData struct {
	Value *Expr // nil for bare return
}

func (ReturnData) stmtData() {}

type WhileData struct {
	Cond *Expr
	Body *Block
}

func (WhileData) stmtData() {}

type LoopData struct {
	Body *Block
}

func (LoopData) stmtData() {}

// ForData holds data for for Var in Iter { ... }. Iter is a range, a Vec or
// an array.
type ForData struct {
	Var  source.StringID
	Iter *Expr
	Body *Block
}

func (ForData) stmtData() {}

type BreakData struct{}

func (BreakData) stmtData() {}

type ContinueData struct{}

func (ContinueData) stmtData() {}

// Block is a brace-delimited sequence of statements with an optional tail
// expression that gives the block its value.
type Block struct {
	Stmts []*Stmt
	Tail  *Expr
	Span  source.Span
}
