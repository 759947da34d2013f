package lir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dump writes a deterministic textual form of m.
func Dump(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "; module %s\n", m.Name)
	for _, id := range m.Types.NamedStructs() {
		t := m.Types.Get(id)
		if t.Opaque {
			fmt.Fprintf(&sb, "%%%s = type opaque\n", t.Name)
			continue
		}
		fmt.Fprintf(&sb, "%%%s = type {%s}\n", t.Name, m.Types.list2str(t.Fields))
	}
	for _, s := range m.Strings {
		fmt.Fprintf(&sb, "@%s = %s\n", s.Name, strconv.Quote(s.Value))
	}
	for _, f := range m.Funcs {
		if f.Extern() {
			fmt.Fprintf(&sb, "declare %s @%s(%s)\n", m.Types.String(f.Result), f.Name, paramList(m, f, false))
		}
	}
	for _, f := range m.Funcs {
		if f.Extern() {
			continue
		}
		sb.WriteByte('\n')
		dumpFunc(&sb, m, f)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// DumpString is Dump into a string.
func DumpString(m *Module) string {
	var sb strings.Builder
	_ = Dump(&sb, m)
	return sb.String()
}

func paramList(m *Module, f *Func, named bool) string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = m.Types.String(p.Type)
		if named {
			parts[i] += " %" + strconv.FormatUint(uint64(p.Reg), 10)
		}
	}
	return strings.Join(parts, ", ")
}

func dumpFunc(sb *strings.Builder, m *Module, f *Func) {
	fmt.Fprintf(sb, "define %s @%s(%s) ; %s\n{\n", m.Types.String(f.Result), f.Name, paramList(m, f, true), f.Kind)
	for _, bl := range f.Blocks {
		fmt.Fprintf(sb, "%s:\n", bl.Label)
		for i := range bl.Instrs {
			sb.WriteString("  ")
			sb.WriteString(instrText(m, &bl.Instrs[i]))
			sb.WriteByte('\n')
		}
		sb.WriteString("  ")
		sb.WriteString(termText(m, f, &bl.Term))
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
}

func typed(m *Module, v Value) string {
	return m.Types.String(v.Type) + " " + v.text()
}

func instrText(m *Module, in *Instr) string {
	t := m.Types
	dst := ""
	if in.Dst != 0 {
		dst = "%" + strconv.FormatUint(uint64(in.Dst), 10) + " = "
	}
	switch in.Kind {
	case InstrAlloca:
		return dst + "alloca " + t.String(in.Alloca.Type)
	case InstrLoad:
		return dst + "load " + t.String(in.Load.Type) + ", " + typed(m, in.Load.Ptr)
	case InstrStore:
		return "store " + typed(m, in.Store.Value) + ", " + typed(m, in.Store.Ptr)
	case InstrFieldPtr:
		return fmt.Sprintf("%sfieldptr %s, %s, %d", dst, t.String(in.FieldPtr.Struct), typed(m, in.FieldPtr.Base), in.FieldPtr.Index)
	case InstrElemPtr:
		return fmt.Sprintf("%selemptr %s, %s, %s", dst, t.String(in.ElemPtr.Elem), typed(m, in.ElemPtr.Base), typed(m, in.ElemPtr.Index))
	case InstrBin:
		return fmt.Sprintf("%s%s %s, %s", dst, in.Bin.Op, typed(m, in.Bin.L), in.Bin.R.text())
	case InstrCmp:
		return fmt.Sprintf("%scmp %s %s, %s", dst, in.Cmp.Pred, typed(m, in.Cmp.L), in.Cmp.R.text())
	case InstrCast:
		return fmt.Sprintf("%s%s %s to %s", dst, in.Cast.Op, typed(m, in.Cast.Value), t.String(in.Cast.To))
	case InstrCall:
		args := make([]string, len(in.Call.Args))
		for i, a := range in.Call.Args {
			args[i] = typed(m, a)
		}
		res := t.Get(in.Call.Sig).Result
		return fmt.Sprintf("%scall %s %s(%s)", dst, t.String(res), in.Call.Callee.text(), strings.Join(args, ", "))
	}
	return "<bad instr>"
}

func termText(m *Module, f *Func, t *Terminator) string {
	label := func(id BlockID) string {
		if id >= 0 && int(id) < len(f.Blocks) {
			return "%" + f.Blocks[id].Label
		}
		return "%<bad>"
	}
	switch t.Kind {
	case TermRet:
		if t.Ret.HasValue {
			return "ret " + typed(m, t.Ret.Value)
		}
		return "ret void"
	case TermBr:
		return "br " + label(t.Br.Target)
	case TermCondBr:
		return "br " + typed(m, t.CondBr.Cond) + ", " + label(t.CondBr.Then) + ", " + label(t.CondBr.Else)
	case TermSwitch:
		parts := make([]string, len(t.Switch.Cases))
		for i, c := range t.Switch.Cases {
			parts[i] = strconv.FormatInt(c.Value, 10) + ": " + label(c.Target)
		}
		return "switch " + typed(m, t.Switch.Value) + ", " + label(t.Switch.Default) + " [" + strings.Join(parts, ", ") + "]"
	case TermUnreachable:
		return "unreachable"
	}
	return "<unterminated>"
}
