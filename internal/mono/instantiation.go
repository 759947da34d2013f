package mono

import (
	"slices"
	"strconv"
	"strings"

	"kiln/internal/ast"
	"kiln/internal/registry"
	"kiln/internal/source"
	"kiln/internal/types"
)

// InstantiationKind identifies the kind of entity being instantiated.
type InstantiationKind uint8

const (
	InstType InstantiationKind = iota // generic record or variant
	InstFn                            // generic function or method
)

func (k InstantiationKind) String() string {
	if k == InstFn {
		return "fn"
	}
	return "type"
}

// InstantiationKey is a comparable key for instantiations.
//
// Note: Go maps cannot use slices as keys, so we store a stable ArgsKey string.
// The corresponding type arguments are stored in InstEntry.
type InstantiationKey struct {
	Kind    InstantiationKind
	Sym     source.StringID // generic name (functions, types) or method symbol
	ArgsKey string
}

// InstEntry is one concrete instantiation.
type InstEntry struct {
	Key      InstantiationKey
	TypeArgs []types.TypeID
	Name     string // mangled concrete name

	Def  registry.DefID // InstType
	Type types.TypeID   // InstType
	Decl *ast.FnDecl    // InstFn, already specialised

	UseSites []source.Span
	// Failed marks an instantiation aborted by a diagnostic; the cache still
	// answers so the error is reported once.
	Failed bool
}

// InstantiationMap is the instantiation cache. Entries are inserted before
// the body is lowered, so self-recursive generics find themselves.
type InstantiationMap struct {
	Entries map[InstantiationKey]*InstEntry
	order   []*InstEntry
}

func NewInstantiationMap() *InstantiationMap {
	return &InstantiationMap{Entries: make(map[InstantiationKey]*InstEntry)}
}

// Lookup returns the cached entry for kind/sym/args.
func (m *InstantiationMap) Lookup(kind InstantiationKind, sym source.StringID, args []types.TypeID) (*InstEntry, bool) {
	e, ok := m.Entries[InstantiationKey{Kind: kind, Sym: sym, ArgsKey: typeArgsKey(args)}]
	return e, ok
}

func (m *InstantiationMap) insert(kind InstantiationKind, sym source.StringID, args []types.TypeID, name string) *InstEntry {
	key := InstantiationKey{Kind: kind, Sym: sym, ArgsKey: typeArgsKey(args)}
	e := &InstEntry{Key: key, TypeArgs: slices.Clone(args), Name: name}
	m.Entries[key] = e
	m.order = append(m.order, e)
	return e
}

// Ordered returns entries in creation order.
func (m *InstantiationMap) Ordered() []*InstEntry {
	return m.order
}

func (m *InstantiationMap) Len() int {
	return len(m.order)
}

func (e *InstEntry) addUseSite(span source.Span) {
	if span == source.NoSpan || slices.Contains(e.UseSites, span) {
		return
	}
	e.UseSites = append(e.UseSites, span)
}

func typeArgsKey(args []types.TypeID) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte('#')
		}
		b.WriteString(strconv.FormatUint(uint64(arg), 10))
	}
	return b.String()
}
