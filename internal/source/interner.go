package source

import (
	"slices"

	"golang.org/x/text/unicode/norm"
)

// StringID is an interned identifier. Identifiers are compared by id
// everywhere after the tree is loaded.
type StringID uint32

const NoStringID StringID = 0

type Interner struct {
	byID  []string            // индекс -> строка (byID[0] = "" для NoStringID)
	index map[string]StringID // строка -> ID
}

func NewInterner() *Interner {
	return &Interner{
		byID:  []string{""},
		index: map[string]StringID{"": NoStringID},
	}
}

// Intern returns the id of s after NFC normalisation, so visually equal
// identifiers coming from different files map to one symbol.
func (i *Interner) Intern(s string) StringID {
	if id, ok := i.index[s]; ok {
		return id
	}
	canon := s
	if !norm.NFC.IsNormalString(s) {
		canon = norm.NFC.String(s)
		if id, ok := i.index[canon]; ok {
			i.index[s] = id
			return id
		}
	}
	id := StringID(len(i.byID)) // #nosec G115 -- identifier count is far below 2^32
	i.byID = append(i.byID, canon)
	i.index[canon] = id
	if canon != s {
		i.index[s] = id
	}
	return id
}

// Lookup returns the string for id.
func (i *Interner) Lookup(id StringID) (string, bool) {
	if !i.Has(id) {
		return "", false
	}
	return i.byID[id], true
}

// MustLookup panics on an unknown id.
func (i *Interner) MustLookup(id StringID) string {
	s, ok := i.Lookup(id)
	if !ok {
		panic("invalid string ID")
	}
	return s
}

// Find returns the id of s without interning it.
func (i *Interner) Find(s string) (StringID, bool) {
	if id, ok := i.index[s]; ok {
		return id, true
	}
	id, ok := i.index[norm.NFC.String(s)]
	return id, ok
}

func (i *Interner) Has(id StringID) bool {
	return int(id) < len(i.byID)
}

// Len counts NoStringID too, so it is never less than 1.
func (i *Interner) Len() int {
	return len(i.byID)
}

func (i *Interner) Snapshot() []string {
	return slices.Clone(i.byID)
}
