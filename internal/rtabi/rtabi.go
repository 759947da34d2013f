// Package rtabi is the table of runtime entry points the lowering calls.
// Each entry has one fixed signature; declarations are added to a module
// lazily, the first time an entry is used.
package rtabi

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"kiln/internal/lir"
)

// Map and set key kinds passed to rt_map_new / rt_set_new.
const (
	KeyBytes  = 0 // compared and hashed bytewise
	KeyString = 1 // str handles compared by content
)

type Entry struct {
	Name   string
	Ret    string
	Params []string
}

func entries() []Entry {
	return []Entry{
		{Name: "rt_alloc", Ret: "ptr", Params: []string{"i64", "i64"}},
		{Name: "rt_free", Ret: "void", Params: []string{"ptr"}}, // null is ignored
		{Name: "rt_memcpy", Ret: "void", Params: []string{"ptr", "ptr", "i64"}},
		{Name: "rt_panic", Ret: "void", Params: []string{"ptr"}},
		{Name: "rt_bounds_check", Ret: "void", Params: []string{"i64", "i64"}},

		{Name: "rt_print", Ret: "void", Params: []string{"ptr"}},
		{Name: "rt_println", Ret: "void", Params: []string{"ptr"}},
		{Name: "rt_str_concat", Ret: "ptr", Params: []string{"ptr", "ptr"}},
		{Name: "rt_str_eq", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_str_len", Ret: "i64", Params: []string{"ptr"}},
		{Name: "rt_i64_to_str", Ret: "ptr", Params: []string{"i64"}},
		{Name: "rt_u64_to_str", Ret: "ptr", Params: []string{"i64"}},
		{Name: "rt_f64_to_str", Ret: "ptr", Params: []string{"f64"}},
		{Name: "rt_bool_to_str", Ret: "ptr", Params: []string{"i1"}},
		{Name: "rt_char_to_str", Ret: "ptr", Params: []string{"i32"}},

		{Name: "rt_vec_new", Ret: "ptr", Params: []string{"i64"}},
		{Name: "rt_vec_with_capacity", Ret: "ptr", Params: []string{"i64", "i64"}},
		{Name: "rt_vec_push", Ret: "void", Params: []string{"ptr", "ptr"}},
		{Name: "rt_vec_get", Ret: "ptr", Params: []string{"ptr", "i64"}},
		{Name: "rt_vec_set", Ret: "void", Params: []string{"ptr", "i64", "ptr"}},
		{Name: "rt_vec_len", Ret: "i64", Params: []string{"ptr"}},
		{Name: "rt_vec_pop", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_vec_remove", Ret: "void", Params: []string{"ptr", "i64", "ptr"}},
		{Name: "rt_vec_clear", Ret: "void", Params: []string{"ptr", "ptr"}},
		{Name: "rt_vec_free", Ret: "void", Params: []string{"ptr", "ptr"}},

		{Name: "rt_box_new", Ret: "ptr", Params: []string{"i64", "ptr"}},
		{Name: "rt_box_get", Ret: "ptr", Params: []string{"ptr"}},
		{Name: "rt_box_free", Ret: "void", Params: []string{"ptr", "ptr"}},

		{Name: "rt_option_some", Ret: "ptr", Params: []string{"i64", "ptr"}},
		{Name: "rt_option_none", Ret: "ptr", Params: []string{"i64"}},
		{Name: "rt_option_is_some", Ret: "i1", Params: []string{"ptr"}},
		{Name: "rt_option_get", Ret: "ptr", Params: []string{"ptr"}},
		{Name: "rt_option_free", Ret: "void", Params: []string{"ptr", "ptr"}},

		{Name: "rt_result_ok", Ret: "ptr", Params: []string{"i64", "ptr"}},
		{Name: "rt_result_err", Ret: "ptr", Params: []string{"i64", "ptr"}},
		{Name: "rt_result_is_ok", Ret: "i1", Params: []string{"ptr"}},
		{Name: "rt_result_value", Ret: "ptr", Params: []string{"ptr"}},
		{Name: "rt_result_error", Ret: "ptr", Params: []string{"ptr"}},
		{Name: "rt_result_free", Ret: "void", Params: []string{"ptr", "ptr", "ptr"}},

		{Name: "rt_map_new", Ret: "ptr", Params: []string{"i64", "i64", "i32"}},
		{Name: "rt_map_insert", Ret: "void", Params: []string{"ptr", "ptr", "ptr"}},
		{Name: "rt_map_get", Ret: "ptr", Params: []string{"ptr", "ptr"}},
		{Name: "rt_map_index", Ret: "ptr", Params: []string{"ptr", "ptr"}},
		{Name: "rt_map_contains", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_map_remove", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_map_len", Ret: "i64", Params: []string{"ptr"}},
		{Name: "rt_map_clear", Ret: "void", Params: []string{"ptr", "ptr", "ptr"}},
		{Name: "rt_map_free", Ret: "void", Params: []string{"ptr", "ptr", "ptr"}},

		{Name: "rt_set_new", Ret: "ptr", Params: []string{"i64", "i32"}},
		{Name: "rt_set_insert", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_set_contains", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_set_remove", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_set_len", Ret: "i64", Params: []string{"ptr"}},
		{Name: "rt_set_clear", Ret: "void", Params: []string{"ptr", "ptr"}},
		{Name: "rt_set_free", Ret: "void", Params: []string{"ptr", "ptr"}},

		{Name: "rt_chan_new", Ret: "ptr", Params: []string{"i64", "i64"}},
		{Name: "rt_chan_send", Ret: "void", Params: []string{"ptr", "ptr"}},
		{Name: "rt_chan_recv", Ret: "i1", Params: []string{"ptr", "ptr"}},
		{Name: "rt_chan_close", Ret: "void", Params: []string{"ptr"}},
		{Name: "rt_chan_free", Ret: "void", Params: []string{"ptr", "ptr"}},

		{Name: "rt_task_spawn", Ret: "ptr", Params: []string{"ptr", "ptr", "i64"}},
		{Name: "rt_task_join", Ret: "void", Params: []string{"ptr", "ptr"}},
		{Name: "rt_task_free", Ret: "void", Params: []string{"ptr", "ptr"}},

		{Name: "rt_range_new", Ret: "ptr", Params: []string{"i64", "i64", "i1"}},
		{Name: "rt_range_len", Ret: "i64", Params: []string{"ptr"}},
		{Name: "rt_range_contains", Ret: "i1", Params: []string{"ptr", "i64"}},
		{Name: "rt_range_free", Ret: "void", Params: []string{"ptr", "ptr"}},
	}
}

var table = func() map[string]Entry {
	es := entries()
	m := make(map[string]Entry, len(es))
	for _, e := range es {
		m[e.Name] = e
	}
	return m
}()

// Lookup returns the entry for name.
func Lookup(name string) (Entry, bool) {
	e, ok := table[name]
	return e, ok
}

// Names lists every entry point, sorted.
func Names() []string {
	out := make([]string, 0, len(table))
	for n := range table {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (e Entry) String() string {
	return e.Ret + " " + e.Name + "(" + strings.Join(e.Params, ", ") + ")"
}

func typeOf(ts *lir.Types, s string) lir.TypeID {
	switch s {
	case "void":
		return ts.Void
	case "ptr":
		return ts.Ptr
	case "i1":
		return ts.I1
	case "i32":
		return ts.I32
	case "i64":
		return ts.I64
	case "f64":
		return ts.F64
	}
	panic("rtabi: unknown type " + s)
}

// Sig is the function type of e in ts.
func (e Entry) Sig(ts *lir.Types) lir.TypeID {
	params := make([]lir.TypeID, len(e.Params))
	for i, p := range e.Params {
		params[i] = typeOf(ts, p)
	}
	return ts.Func(typeOf(ts, e.Ret), params...)
}

// Declare adds the declaration of name to m on first use. Unknown names
// are a lowering defect and panic.
func Declare(m *lir.Module, name string) *lir.Func {
	if f, ok := m.Func(name); ok {
		return f
	}
	e, ok := table[name]
	if !ok {
		panic("rtabi: unknown runtime entry " + name)
	}
	params := make([]lir.TypeID, len(e.Params))
	for i, p := range e.Params {
		params[i] = typeOf(m.Types, p)
	}
	return m.Declare(name, typeOf(m.Types, e.Ret), params...)
}

// Check verifies that every runtime declaration in m has the signature of
// the table.
func Check(m *lir.Module) error {
	var errs []error
	for _, f := range m.Funcs {
		if !f.Extern() || !strings.HasPrefix(f.Name, "rt_") {
			continue
		}
		e, ok := table[f.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s is not a runtime entry", f.Name))
			continue
		}
		if got, want := f.Sig(m.Types), e.Sig(m.Types); got != want {
			errs = append(errs, fmt.Errorf("%s declared as %s, runtime has %s",
				f.Name, m.Types.String(got), m.Types.String(want)))
		}
	}
	return errors.Join(errs...)
}
