package lir

type TermKind uint8

const (
	TermNone TermKind = iota
	TermRet
	TermBr
	TermCondBr
	TermSwitch
	TermUnreachable
)

type Terminator struct {
	Kind TermKind

	Ret    RetTerm
	Br     BrTerm
	CondBr CondBrTerm
	Switch SwitchTerm
}

type RetTerm struct {
	HasValue bool
	Value    Value
}

type BrTerm struct {
	Target BlockID
}

type CondBrTerm struct {
	Cond Value
	Then BlockID
	Else BlockID
}

type SwitchCase struct {
	Value  int64
	Target BlockID
}

type SwitchTerm struct {
	Value   Value
	Cases   []SwitchCase
	Default BlockID
}

// Successors lists the blocks a terminator may transfer to.
func (t *Terminator) Successors() []BlockID {
	switch t.Kind {
	case TermBr:
		return []BlockID{t.Br.Target}
	case TermCondBr:
		return []BlockID{t.CondBr.Then, t.CondBr.Else}
	case TermSwitch:
		out := make([]BlockID, 0, len(t.Switch.Cases)+1)
		for _, c := range t.Switch.Cases {
			out = append(out, c.Target)
		}
		return append(out, t.Switch.Default)
	}
	return nil
}
