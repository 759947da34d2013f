package trace

import (
	"fmt"
	"io"
	"sync"
)

// RingTracer remembers the most recent events for a dump after a failure.
// Older events are overwritten once the buffer is full.
type RingTracer struct {
	level Level

	mu    sync.Mutex
	buf   []Event
	total uint64 // events ever stored; buf[total%len(buf)] is the next slot
}

func NewRingTracer(size int, level Level) *RingTracer {
	if size <= 0 {
		size = defaultRingSize
	}
	return &RingTracer{level: level, buf: make([]Event, size)}
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	t.mu.Lock()
	t.buf[t.total%uint64(len(t.buf))] = *ev
	t.total++
	t.mu.Unlock()
}

// window returns the index of the oldest kept event and how many are kept.
func (t *RingTracer) window() (start, n uint64) {
	size := uint64(len(t.buf))
	if t.total <= size {
		return 0, t.total
	}
	return t.total % size, size
}

// Snapshot copies the kept events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, n := t.window()
	out := make([]Event, 0, n)
	for i := range n {
		out = append(out, t.buf[(start+i)%uint64(len(t.buf))])
	}
	return out
}

// Dropped is the number of events overwritten so far.
func (t *RingTracer) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, n := t.window()
	return t.total - n
}

// Dump writes the kept events to w, noting first how many were lost.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	if lost := t.Dropped(); lost > 0 && format == FormatText {
		if _, err := fmt.Fprintf(w, "... %d earlier events dropped\n", lost); err != nil {
			return err
		}
	}
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
