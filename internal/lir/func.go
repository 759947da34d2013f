package lir

import (
	"fmt"

	"kiln/internal/source"
)

type BlockID int32

type Block struct {
	ID     BlockID
	Label  string
	Instrs []Instr
	Term   Terminator
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

type Param struct {
	Name string
	Type TypeID
	Reg  Reg
}

// FuncKind records why a function exists; it only affects the dump.
type FuncKind uint8

const (
	FuncPlain FuncKind = iota
	FuncMethod
	FuncInstance
	FuncClosure
	FuncGlue
	FuncExtern
)

func (k FuncKind) String() string {
	switch k {
	case FuncMethod:
		return "method"
	case FuncInstance:
		return "instance"
	case FuncClosure:
		return "closure"
	case FuncGlue:
		return "glue"
	case FuncExtern:
		return "extern"
	}
	return "fn"
}

type Func struct {
	Name   string
	Kind   FuncKind
	Span   source.Span
	Params []Param
	Result TypeID
	Blocks []*Block

	// Regs holds the type of every register; index 0 is unused.
	Regs []TypeID
	// allocaEnd is the number of leading allocas in the entry block.
	allocaEnd int
}

// Extern reports a declaration without a body.
func (f *Func) Extern() bool { return f.Kind == FuncExtern }

// Sig returns the function type of f.
func (f *Func) Sig(t *Types) TypeID {
	params := make([]TypeID, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return t.Func(f.Result, params...)
}

// Param returns parameter i as an operand.
func (f *Func) Param(i int) Value {
	p := f.Params[i]
	return Value{Kind: VReg, Type: p.Type, Reg: p.Reg}
}

func (f *Func) newReg(ty TypeID) Reg {
	if len(f.Regs) == 0 {
		f.Regs = append(f.Regs, NoType)
	}
	f.Regs = append(f.Regs, ty)
	return Reg(len(f.Regs) - 1) // #nosec G115 -- register count is bounded by function size
}

// NewBlock appends a block labelled label plus its index.
func (f *Func) NewBlock(label string) *Block {
	id := BlockID(len(f.Blocks)) // #nosec G115 -- block count is bounded by function size
	if id > 0 {
		label = fmt.Sprintf("%s%d", label, id)
	}
	b := &Block{ID: id, Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Reset drops the body of f, keeping its parameters.
func (f *Func) Reset() {
	f.Blocks = nil
	if n := len(f.Params) + 1; len(f.Regs) > n {
		f.Regs = f.Regs[:n]
	}
	f.allocaEnd = 0
}

func (f *Func) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// StringConst is a NUL-terminated constant string.
type StringConst struct {
	Name  string
	Value string
}

// Module is a lowered compilation unit.
type Module struct {
	Name    string
	Types   *Types
	Funcs   []*Func
	Strings []StringConst

	byName   map[string]*Func
	strIndex map[string]int
}

func NewModule(name string) *Module {
	return &Module{
		Name:     name,
		Types:    NewTypes(),
		byName:   make(map[string]*Func),
		strIndex: make(map[string]int),
	}
}

// NewFunc adds a function with params. Names are not checked here;
// Validate reports duplicates.
func (m *Module) NewFunc(name string, kind FuncKind, result TypeID, params []Param) *Func {
	f := &Func{Name: name, Kind: kind, Result: result}
	for _, p := range params {
		p.Reg = f.newReg(p.Type)
		f.Params = append(f.Params, p)
	}
	m.Funcs = append(m.Funcs, f)
	if _, ok := m.byName[name]; !ok {
		m.byName[name] = f
	}
	return f
}

// Declare adds an external declaration once and returns it.
func (m *Module) Declare(name string, result TypeID, params ...TypeID) *Func {
	if f, ok := m.byName[name]; ok {
		return f
	}
	ps := make([]Param, len(params))
	for i, p := range params {
		ps[i] = Param{Type: p}
	}
	return m.NewFunc(name, FuncExtern, result, ps)
}

func (m *Module) Func(name string) (*Func, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// String interns a constant string and returns its address.
func (m *Module) String(s string) Value {
	idx, ok := m.strIndex[s]
	if !ok {
		idx = len(m.Strings)
		m.Strings = append(m.Strings, StringConst{Name: fmt.Sprintf(".str.%d", idx), Value: s})
		m.strIndex[s] = idx
	}
	return Value{Kind: VGlobal, Type: m.Types.Ptr, Sym: m.Strings[idx].Name}
}
