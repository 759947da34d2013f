package registry

import (
	"fmt"

	"fortio.org/safecast"
)

// Arena stores values behind 1-based handles; 0 is never a valid handle.
type Arena[T any] struct {
	data []T
}

func NewArena[T any](capHint uint) *Arena[T] {
	return &Arena[T]{
		data: make([]T, 0, capHint),
	}
}

// Allocate возвращает индекс нового элемента (1-based).
func (a *Arena[T]) Allocate(value T) uint32 {
	a.data = append(a.data, value)
	n, err := safecast.Conv[uint32](len(a.data))
	if err != nil {
		panic(fmt.Errorf("registry: arena overflow: %w", err))
	}
	return n
}

func (a *Arena[T]) Get(index uint32) T {
	var zero T
	if index == 0 || int(index) > len(a.data) {
		return zero
	}
	return a.data[index-1]
}

// Slice is read-only.
func (a *Arena[T]) Slice() []T {
	return a.data
}

func (a *Arena[T]) Len() int {
	return len(a.data)
}
