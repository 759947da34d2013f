package lir

import "slices"

// Builder appends instructions to the current block of one function.
type Builder struct {
	M   *Module
	F   *Func
	cur *Block
}

func NewBuilder(m *Module) *Builder { return &Builder{M: m} }

// Start positions the builder at a fresh entry block of f.
func (b *Builder) Start(f *Func) *Block {
	b.F = f
	b.cur = f.NewBlock("entry")
	return b.cur
}

// Position is a saved insertion point.
type Position struct {
	F   *Func
	Cur *Block
}

func (b *Builder) Save() Position { return Position{F: b.F, Cur: b.cur} }

func (b *Builder) Restore(p Position) { b.F, b.cur = p.F, p.Cur }

func (b *Builder) Block() *Block { return b.cur }

func (b *Builder) SetBlock(bl *Block) { b.cur = bl }

func (b *Builder) NewBlock(label string) *Block { return b.F.NewBlock(label) }

// Terminated reports whether the current block already ends.
func (b *Builder) Terminated() bool { return b.cur.Terminated() }

func (b *Builder) types() *Types { return b.M.Types }

func (b *Builder) emit(in Instr, ty TypeID) Value {
	if b.cur.Terminated() {
		// code after a terminator goes to a block nobody jumps to
		b.cur = b.F.NewBlock("dead")
	}
	var out Value
	if ty != NoType && ty != b.types().Void {
		in.Dst = b.F.newReg(ty)
		out = Value{Kind: VReg, Type: ty, Reg: in.Dst}
	}
	b.cur.Instrs = append(b.cur.Instrs, in)
	return out
}

// Alloca reserves a stack slot in the entry block, ahead of every other
// instruction there, so the slot dominates all of its uses.
func (b *Builder) Alloca(ty TypeID) Value {
	f := b.F
	entry := f.Entry()
	dst := f.newReg(b.types().Ptr)
	in := Instr{Kind: InstrAlloca, Dst: dst, Alloca: AllocaInstr{Type: ty}}
	entry.Instrs = slices.Insert(entry.Instrs, f.allocaEnd, in)
	f.allocaEnd++
	return Value{Kind: VReg, Type: b.types().Ptr, Reg: dst}
}

func (b *Builder) Load(ty TypeID, ptr Value) Value {
	return b.emit(Instr{Kind: InstrLoad, Load: LoadInstr{Type: ty, Ptr: ptr}}, ty)
}

func (b *Builder) Store(v, ptr Value) {
	b.emit(Instr{Kind: InstrStore, Store: StoreInstr{Value: v, Ptr: ptr}}, NoType)
}

func (b *Builder) FieldPtr(st TypeID, base Value, idx int) Value {
	return b.emit(Instr{Kind: InstrFieldPtr, FieldPtr: FieldPtrInstr{Struct: st, Base: base, Index: idx}}, b.types().Ptr)
}

func (b *Builder) ElemPtr(elem TypeID, base, idx Value) Value {
	return b.emit(Instr{Kind: InstrElemPtr, ElemPtr: ElemPtrInstr{Elem: elem, Base: base, Index: idx}}, b.types().Ptr)
}

func (b *Builder) Bin(op BinOp, l, r Value) Value {
	return b.emit(Instr{Kind: InstrBin, Bin: BinInstr{Op: op, L: l, R: r}}, l.Type)
}

func (b *Builder) Cmp(pred CmpPred, l, r Value) Value {
	return b.emit(Instr{Kind: InstrCmp, Cmp: CmpInstr{Pred: pred, L: l, R: r}}, b.types().I1)
}

func (b *Builder) Cast(op CastOp, v Value, to TypeID) Value {
	return b.emit(Instr{Kind: InstrCast, Cast: CastInstr{Op: op, Value: v, To: to}}, to)
}

// Not flips an i1.
func (b *Builder) Not(v Value) Value {
	return b.Bin(BinXor, v, ConstInt(b.types().I1, 1))
}

// Call emits a call. The result is invalid for void callees.
func (b *Builder) Call(callee Value, sig TypeID, args ...Value) Value {
	result := b.types().Get(sig).Result
	return b.emit(Instr{Kind: InstrCall, Call: CallInstr{Callee: callee, Sig: sig, Args: args}}, result)
}

// CallFunc calls a function of the module by address.
func (b *Builder) CallFunc(f *Func, args ...Value) Value {
	return b.Call(FuncRef(b.types().Ptr, f.Name), f.Sig(b.types()), args...)
}

func (b *Builder) terminate(t Terminator) {
	if b.cur.Terminated() {
		return
	}
	b.cur.Term = t
}

func (b *Builder) Ret(v Value) {
	b.terminate(Terminator{Kind: TermRet, Ret: RetTerm{HasValue: true, Value: v}})
}

func (b *Builder) RetVoid() {
	b.terminate(Terminator{Kind: TermRet})
}

func (b *Builder) Br(target *Block) {
	b.terminate(Terminator{Kind: TermBr, Br: BrTerm{Target: target.ID}})
}

func (b *Builder) CondBr(cond Value, then, els *Block) {
	b.terminate(Terminator{Kind: TermCondBr, CondBr: CondBrTerm{Cond: cond, Then: then.ID, Else: els.ID}})
}

func (b *Builder) Switch(v Value, cases []SwitchCase, def *Block) {
	b.terminate(Terminator{Kind: TermSwitch, Switch: SwitchTerm{Value: v, Cases: cases, Default: def.ID}})
}

func (b *Builder) Unreachable() {
	b.terminate(Terminator{Kind: TermUnreachable})
}
