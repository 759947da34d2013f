package lir

import (
	"errors"
	"fmt"
)

// Validate checks module invariants: unique function names, every block
// terminated, branch targets in range, registers defined,
// calls matching the callee signature and returns matching the result.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	seen := make(map[string]bool, len(m.Funcs))
	for _, f := range m.Funcs {
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("function %s: defined twice", f.Name))
		}
		seen[f.Name] = true
		if f.Extern() {
			continue
		}
		if err := validateFunc(m, f); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func validateFunc(m *Module, f *Func) error {
	if len(f.Blocks) == 0 {
		return errors.New("no blocks")
	}
	var errs []error
	// A register must be defined somewhere in f, and before its first use
	// when both sit in the same block.
	definedIn := make([]*Block, len(f.Regs))
	for _, bl := range f.Blocks {
		for i := range bl.Instrs {
			if d := bl.Instrs[i].Dst; d != 0 {
				definedIn[d] = bl
			}
		}
	}
	for _, bl := range f.Blocks {
		defined := make([]bool, len(f.Regs))
		for i := range defined {
			defined[i] = definedIn[i] != nil && definedIn[i] != bl
		}
		for _, p := range f.Params {
			defined[p.Reg] = true
		}
		for i := range bl.Instrs {
			in := &bl.Instrs[i]
			for _, v := range operands(in) {
				if err := checkUse(f, defined, v); err != nil {
					errs = append(errs, fmt.Errorf("%s: %s: %w", bl.Label, in.Kind, err))
				}
			}
			if in.Kind == InstrCall {
				if err := checkCall(m, in.Call); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", bl.Label, err))
				}
			}
			if in.Dst != 0 {
				defined[in.Dst] = true
			}
		}
		errs = append(errs, checkTerm(m, f, bl, defined)...)
	}
	return errors.Join(errs...)
}

func operands(in *Instr) []Value {
	switch in.Kind {
	case InstrLoad:
		return []Value{in.Load.Ptr}
	case InstrStore:
		return []Value{in.Store.Value, in.Store.Ptr}
	case InstrFieldPtr:
		return []Value{in.FieldPtr.Base}
	case InstrElemPtr:
		return []Value{in.ElemPtr.Base, in.ElemPtr.Index}
	case InstrBin:
		return []Value{in.Bin.L, in.Bin.R}
	case InstrCmp:
		return []Value{in.Cmp.L, in.Cmp.R}
	case InstrCast:
		return []Value{in.Cast.Value}
	case InstrCall:
		return append([]Value{in.Call.Callee}, in.Call.Args...)
	}
	return nil
}

func checkUse(f *Func, defined []bool, v Value) error {
	switch v.Kind {
	case VNone:
		return errors.New("missing operand")
	case VReg:
		if int(v.Reg) >= len(defined) || !defined[v.Reg] {
			return fmt.Errorf("register %%%d used before definition", v.Reg)
		}
		if f.Regs[v.Reg] != v.Type {
			return fmt.Errorf("register %%%d used with a different type", v.Reg)
		}
	}
	return nil
}

func checkCall(m *Module, c CallInstr) error {
	sig := m.Types.Get(c.Sig)
	if sig.Kind != TFunc {
		return errors.New("call without a function signature")
	}
	if c.Callee.Kind == VFunc {
		callee, ok := m.Func(c.Callee.Sym)
		if !ok {
			return fmt.Errorf("call to undeclared function %s", c.Callee.Sym)
		}
		if callee.Sig(m.Types) != c.Sig {
			return fmt.Errorf("call to %s does not match its declaration: %s vs %s",
				c.Callee.Sym, m.Types.String(c.Sig), m.Types.String(callee.Sig(m.Types)))
		}
	}
	if len(c.Args) != len(sig.Params) {
		return fmt.Errorf("call passes %d arguments, signature takes %d", len(c.Args), len(sig.Params))
	}
	for i, a := range c.Args {
		if a.Type != sig.Params[i] {
			return fmt.Errorf("call argument %d has type %s, want %s",
				i, m.Types.String(a.Type), m.Types.String(sig.Params[i]))
		}
	}
	return nil
}

func checkTerm(m *Module, f *Func, bl *Block, defined []bool) []error {
	var errs []error
	exists := func(id BlockID) bool { return id >= 0 && int(id) < len(f.Blocks) }
	t := &bl.Term
	switch t.Kind {
	case TermNone:
		return []error{fmt.Errorf("%s: unterminated block", bl.Label)}
	case TermRet:
		if t.Ret.HasValue {
			if err := checkUse(f, defined, t.Ret.Value); err != nil {
				errs = append(errs, fmt.Errorf("%s: ret: %w", bl.Label, err))
			}
			if t.Ret.Value.Type != f.Result {
				errs = append(errs, fmt.Errorf("%s: returns %s from a function returning %s",
					bl.Label, m.Types.String(t.Ret.Value.Type), m.Types.String(f.Result)))
			}
		} else if f.Result != m.Types.Void {
			errs = append(errs, fmt.Errorf("%s: missing return value", bl.Label))
		}
	case TermCondBr:
		if err := checkUse(f, defined, t.CondBr.Cond); err != nil {
			errs = append(errs, fmt.Errorf("%s: br: %w", bl.Label, err))
		}
		if t.CondBr.Cond.Type != m.Types.I1 {
			errs = append(errs, fmt.Errorf("%s: branch condition is not i1", bl.Label))
		}
	case TermSwitch:
		if err := checkUse(f, defined, t.Switch.Value); err != nil {
			errs = append(errs, fmt.Errorf("%s: switch: %w", bl.Label, err))
		}
		dup := make(map[int64]bool, len(t.Switch.Cases))
		for _, c := range t.Switch.Cases {
			if dup[c.Value] {
				errs = append(errs, fmt.Errorf("%s: switch has duplicate case %d", bl.Label, c.Value))
			}
			dup[c.Value] = true
		}
	}
	for _, s := range t.Successors() {
		if !exists(s) {
			errs = append(errs, fmt.Errorf("%s: branch target %d does not exist", bl.Label, s))
		}
	}
	return errs
}
