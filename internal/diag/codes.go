package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Входные данные (дерево, конфиг)
	InputInfo        Code = 1000
	InputMalformed   Code = 1001
	InputUnknownKind Code = 1002
	InputBadType     Code = 1003
	InputBorrowGate  Code = 1004

	// Registry errors: fatal, reported before any lowering.
	RegInfo             Code = 4000
	RegRecordCycle      Code = 4001
	RegDuplicateDef     Code = 4002
	RegDuplicateSymbol  Code = 4003
	RegAliasCycle       Code = 4004
	RegImplUnknownTrait Code = 4005
	RegBadImplTarget    Code = 4006

	// Instantiation errors: fatal for the instantiation.
	MonoInfo          Code = 4100
	MonoDepthExceeded Code = 4101
	MonoArity         Code = 4102
	MonoCannotInfer   Code = 4103
	MonoNotGeneric    Code = 4104

	// Resolution errors: fatal for the expression.
	ResInfo           Code = 4200
	ResUnknownBinding Code = 4201
	ResUnknownField   Code = 4202
	ResUnknownMethod  Code = 4203
	ResUnknownVariant Code = 4204
	ResUnknownTrait   Code = 4205
	ResUnknownType    Code = 4206
	ResUnknownFunc    Code = 4207
	ResAmbiguousMeth  Code = 4208
	ResNotCallable    Code = 4209

	// Structural mismatches found while lowering.
	LowInfo             Code = 4300
	LowArraySize        Code = 4301
	LowPatternArity     Code = 4302
	LowIncompatibleCmp  Code = 4303
	LowAltBinds         Code = 4304
	LowTypeMismatch     Code = 4305
	LowArgCount         Code = 4306
	LowBreakOutsideLoop Code = 4307
	LowNotAssignable    Code = 4308
	LowClosureParam     Code = 4309
	LowBadCast          Code = 4310
	LowNotIndexable     Code = 4311
	LowUnsupported      Code = 4312
	LowMissingValue     Code = 4313

	// Non-fatal findings.
	WarnInfo              Code = 4400
	WarnUnreachable       Code = 4401
	WarnMethodNotInTrait  Code = 4402
	WarnMissingTraitImpl  Code = 4403
	WarnUnusedInstantiate Code = 4404

	IRInvalid Code = 4500
)

var (
	codeDescription = map[Code]string{
		UnknownCode:           "Unknown error",
		InputInfo:             "Input information",
		InputMalformed:        "Malformed syntax tree",
		InputUnknownKind:      "Unknown node kind in syntax tree",
		InputBadType:          "Malformed type expression",
		InputBorrowGate:       "Borrow check failed",
		RegInfo:               "Registry information",
		RegRecordCycle:        "record contains itself by value",
		RegDuplicateDef:       "duplicate definition",
		RegDuplicateSymbol:    "mangled symbol collides with an existing symbol",
		RegAliasCycle:         "type alias refers to itself",
		RegImplUnknownTrait:   "impl of unknown trait",
		RegBadImplTarget:      "impl target is not a named type",
		MonoInfo:              "Instantiation information",
		MonoDepthExceeded:     "generic nesting depth exceeded",
		MonoArity:             "wrong number of type arguments",
		MonoCannotInfer:       "cannot infer type argument",
		MonoNotGeneric:        "type arguments given to a non-generic definition",
		ResInfo:               "Resolution information",
		ResUnknownBinding:     "unknown binding",
		ResUnknownField:       "unknown field",
		ResUnknownMethod:      "unknown method",
		ResUnknownVariant:     "unknown variant",
		ResUnknownTrait:       "unknown trait",
		ResUnknownType:        "unknown type",
		ResUnknownFunc:        "unknown function",
		ResAmbiguousMeth:      "ambiguous method",
		ResNotCallable:        "value is not callable",
		LowInfo:               "Lowering information",
		LowArraySize:          "array size mismatch",
		LowPatternArity:       "pattern arity mismatch",
		LowIncompatibleCmp:    "incompatible operand types",
		LowAltBinds:           "alternation pattern binds a name",
		LowTypeMismatch:       "type mismatch",
		LowArgCount:           "wrong number of arguments",
		LowBreakOutsideLoop:   "break or continue outside of a loop",
		LowNotAssignable:      "expression is not assignable",
		LowClosureParam:       "cannot infer closure parameter type",
		LowBadCast:            "invalid cast",
		LowNotIndexable:       "value is not indexable",
		LowUnsupported:        "unsupported construct",
		LowMissingValue:       "expression produces no value",
		WarnInfo:              "Warning information",
		WarnUnreachable:       "unreachable code",
		WarnMethodNotInTrait:  "method is not declared by the trait",
		WarnMissingTraitImpl:  "trait method not implemented",
		WarnUnusedInstantiate: "instantiation never used",
		IRInvalid:             "generated IR failed validation",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("IN%04d", ic)
	case ic >= 4000 && ic < 4100:
		return fmt.Sprintf("REG%04d", ic)
	case ic >= 4100 && ic < 4200:
		return fmt.Sprintf("MONO%04d", ic)
	case ic >= 4200 && ic < 4300:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 4300 && ic < 4400:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 4400 && ic < 4500:
		return fmt.Sprintf("WARN%04d", ic)
	case ic >= 4500 && ic < 4600:
		return fmt.Sprintf("IR%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
