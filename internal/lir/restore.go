package lir

import "fmt"

// All returns the type table without the reserved zero entry. Index i
// holds TypeID(i+1).
func (t *Types) All() []Type {
	return t.list[1:]
}

// RestoreTypes rebuilds a table from the output of All.
func RestoreTypes(list []Type) (*Types, error) {
	t := NewTypes()
	if len(list) < t.Len() {
		return nil, fmt.Errorf("lir: type table has %d entries, need at least %d", len(list), t.Len())
	}
	base := t.Len()
	for i, ty := range list[:base] {
		if want := t.list[i+1]; ty.Kind != want.Kind || ty.Bits != want.Bits {
			return nil, fmt.Errorf("lir: type %d is %s, want %s", i+1, ty.Kind, want.Kind)
		}
	}
	for i, ty := range list[base:] {
		id := TypeID(t.Len() + 1) // #nosec G115 -- bounded by the table size checked in intern
		if ty.Kind == TStruct && ty.Name != "" {
			t.list = append(t.list, ty)
			t.index["%"+ty.Name] = id
			t.named = append(t.named, id)
			continue
		}
		if got := t.intern(ty); got != id {
			return nil, fmt.Errorf("lir: type %d duplicates type %d", base+i+1, got)
		}
	}
	return t, nil
}

// RestoreModule reassembles a module from its parts, rebuilding the
// lookup indexes. Function bodies are taken as they are.
func RestoreModule(name string, types *Types, funcs []*Func, strs []StringConst) *Module {
	m := NewModule(name)
	m.Types = types
	m.Funcs = funcs
	m.Strings = strs
	for _, f := range funcs {
		if _, ok := m.byName[f.Name]; !ok {
			m.byName[f.Name] = f
		}
		f.allocaEnd = countAllocas(f)
	}
	for i, s := range strs {
		m.strIndex[s.Value] = i
	}
	return m
}

func countAllocas(f *Func) int {
	entry := f.Entry()
	if entry == nil {
		return 0
	}
	n := 0
	for n < len(entry.Instrs) && entry.Instrs[n].Kind == InstrAlloca {
		n++
	}
	return n
}
