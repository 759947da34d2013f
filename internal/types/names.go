package types

import (
	"fmt"
	"strconv"
	"strings"

	"kiln/internal/mangle"
)

// Canonical returns the name used in mangled symbols. Distinct types always
// have distinct canonical names: structural types get a '$' marker and
// nominal types use their concrete symbol.
func (in *Interner) Canonical(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "$invalid"
	}
	switch tt.Kind {
	case KindUnit:
		return "unit"
	case KindNever:
		return "never"
	case KindBool:
		return "bool"
	case KindChar:
		return "char"
	case KindString:
		return "str"
	case KindInt:
		return "i" + strconv.Itoa(int(tt.Width))
	case KindUint:
		return "u" + strconv.Itoa(int(tt.Width))
	case KindFloat:
		return "f" + strconv.Itoa(int(tt.Width))
	case KindTuple:
		return mangle.JoinRaw("$tuple", in.canonicalList(in.payload(tt.Payload))...)
	case KindArray:
		return mangle.JoinRaw("$array", in.Canonical(tt.Elem), strconv.FormatUint(uint64(tt.Count), 10))
	case KindSlice:
		return mangle.JoinRaw("$slice", in.Canonical(tt.Elem))
	case KindRef:
		if tt.Mutable {
			return mangle.JoinRaw("$mut", in.Canonical(tt.Elem))
		}
		return mangle.JoinRaw("$ref", in.Canonical(tt.Elem))
	case KindFn:
		params, result, _ := in.FnSig(id)
		parts := []string{strconv.Itoa(len(params))}
		parts = append(parts, in.canonicalList(params)...)
		parts = append(parts, in.Canonical(result))
		return mangle.JoinRaw("$fn", parts...)
	case KindRecord, KindVariant:
		return in.strings.MustLookup(tt.Sym)
	case KindBuiltin:
		return mangle.Instance(tt.Builtin.String(), in.canonicalList(in.payload(tt.Payload))...)
	}
	return "$invalid"
}

func (in *Interner) canonicalList(ids []TypeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = in.Canonical(id)
	}
	return out
}

// String renders a type for diagnostics.
func (in *Interner) String(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindUnit:
		return "()"
	case KindNever:
		return "!"
	case KindTuple:
		return "(" + in.joinStrings(in.payload(tt.Payload)) + ")"
	case KindArray:
		return fmt.Sprintf("[%s; %d]", in.String(tt.Elem), tt.Count)
	case KindSlice:
		return "[" + in.String(tt.Elem) + "]"
	case KindRef:
		if tt.Mutable {
			return "&mut " + in.String(tt.Elem)
		}
		return "&" + in.String(tt.Elem)
	case KindFn:
		params, result, _ := in.FnSig(id)
		return "fn(" + in.joinStrings(params) + ") -> " + in.String(result)
	case KindBuiltin:
		return tt.Builtin.String() + "<" + in.joinStrings(in.payload(tt.Payload)) + ">"
	}
	return in.Canonical(id)
}

func (in *Interner) joinStrings(ids []TypeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = in.String(id)
	}
	return strings.Join(parts, ", ")
}
