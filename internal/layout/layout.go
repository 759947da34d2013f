package layout

import (
	"kiln/internal/lir"
)

// TypeLayout is the ABI layout of a type for a specific Target.
type TypeLayout struct {
	Size  int
	Align int

	// Struct-only:
	FieldOffsets []int
}

// LayoutEngine computes memory layout for low-level types.
type LayoutEngine struct {
	Target Target
	Types  *lir.Types

	cache map[lir.TypeID]TypeLayout
}

// New creates a new LayoutEngine for the specified target.
func New(target Target, typesIn *lir.Types) *LayoutEngine {
	return &LayoutEngine{
		Target: target,
		Types:  typesIn,
		cache:  make(map[lir.TypeID]TypeLayout, 64),
	}
}

type layoutState struct {
	stack []lir.TypeID
	index map[lir.TypeID]int
}

// LayoutOf computes and caches the layout of a type.
func (e *LayoutEngine) LayoutOf(t lir.TypeID) (TypeLayout, error) {
	state := &layoutState{index: make(map[lir.TypeID]int, 8)}
	l, err := e.layoutOf(t, state)
	if err != nil {
		return l, err
	}
	return l, nil
}

func (e *LayoutEngine) layoutOf(t lir.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	if cached, ok := e.cache[t]; ok {
		return cached, nil
	}
	if idx, ok := state.index[t]; ok {
		cycle := append(append([]lir.TypeID(nil), state.stack[idx:]...), t)
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrRecursiveUnsized, Type: t, Cycle: cycle}
	}
	state.index[t] = len(state.stack)
	state.stack = append(state.stack, t)
	l, err := e.computeLayout(t, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, t)
	if err == nil {
		e.cache[t] = l
	}
	return l, err
}

// SizeOf returns the size of a type in bytes.
func (e *LayoutEngine) SizeOf(t lir.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *LayoutEngine) AlignOf(t lir.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

// FieldOffset returns the byte offset of a struct field.
func (e *LayoutEngine) FieldOffset(structT lir.TypeID, fieldIdx int) (int, error) {
	l, err := e.LayoutOf(structT)
	if err != nil {
		return 0, err
	}
	if fieldIdx < 0 || fieldIdx >= len(l.FieldOffsets) {
		return 0, nil
	}
	return l.FieldOffsets[fieldIdx], nil
}

// UnionLayout describes a tagged union: a 32-bit tag followed by storage
// for the largest payload.
type UnionLayout struct {
	TypeLayout
	PayloadOffset int
	PayloadSize   int
	PayloadAlign  int
}

// Union lays out a tag plus the given payload types.
func (e *LayoutEngine) Union(payloads []lir.TypeID) (UnionLayout, error) {
	maxSize, payloadAlign := 0, 1
	for _, p := range payloads {
		pl, err := e.LayoutOf(p)
		if err != nil {
			return UnionLayout{}, err
		}
		maxSize = max(maxSize, pl.Size)
		payloadAlign = max(payloadAlign, pl.Align)
	}
	const tagSize, tagAlign = 4, 4
	offset := roundUp(tagSize, payloadAlign)
	align := max(tagAlign, payloadAlign)
	return UnionLayout{
		TypeLayout:    TypeLayout{Size: roundUp(offset+maxSize, align), Align: align},
		PayloadOffset: offset,
		PayloadSize:   maxSize,
		PayloadAlign:  payloadAlign,
	}, nil
}
