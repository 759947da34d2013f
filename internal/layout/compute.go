package layout

import (
	"fortio.org/safecast"

	"kiln/internal/lir"
)

func (e *LayoutEngine) computeLayout(id lir.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	t := e.Types.Get(id)
	switch t.Kind {
	case lir.TInt:
		if t.Bits == 1 {
			return scalarLayoutBytes(1), nil
		}
		return scalarLayoutBytes(int(t.Bits) / 8), nil
	case lir.TFloat:
		return scalarLayoutBytes(int(t.Bits) / 8), nil
	case lir.TPtr, lir.TFunc:
		return e.ptrLayout(), nil
	case lir.TArray:
		el, err := e.layoutOf(t.Elem, state)
		if err != nil {
			return el, err
		}
		stride := roundUp(el.Size, max(1, el.Align))
		n, convErr := safecast.Conv[int](t.Len)
		if convErr != nil {
			n = 0
		}
		return TypeLayout{Size: stride * n, Align: max(1, el.Align)}, nil
	case lir.TStruct:
		if t.Opaque {
			return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrOpaque, Type: id}
		}
		return e.structLayout(t.Fields, state)
	}
	return TypeLayout{Size: 0, Align: 1}, nil
}

func (e *LayoutEngine) structLayout(fields []lir.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	offsets := make([]int, len(fields))
	size, align := 0, 1
	for i, f := range fields {
		fl, err := e.layoutOf(f, state)
		if err != nil {
			return fl, err
		}
		fAlign := max(1, fl.Align)
		size = roundUp(size, fAlign)
		offsets[i] = size
		size += fl.Size
		align = max(align, fAlign)
	}
	return TypeLayout{Size: roundUp(size, align), Align: align, FieldOffsets: offsets}, nil
}

func (e *LayoutEngine) ptrLayout() TypeLayout {
	ptrSize := e.Target.PtrSize
	ptrAlign := e.Target.PtrAlign
	if ptrSize <= 0 {
		ptrSize = 8
	}
	if ptrAlign <= 0 {
		ptrAlign = ptrSize
	}
	return TypeLayout{Size: ptrSize, Align: ptrAlign}
}

func scalarLayoutBytes(size int) TypeLayout {
	if size <= 0 {
		return TypeLayout{Size: 0, Align: 1}
	}
	return TypeLayout{Size: size, Align: size}
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}
