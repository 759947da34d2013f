package driver

import "time"

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	// PhaseStart indicates that a compilation phase has begun.
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

// PhaseEvent describes a timing phase boundary for one tree document.
type PhaseEvent struct {
	Path    string
	Name    string // decode, gate, lower, cache
	Status  PhaseStatus
	Elapsed time.Duration
}

// PhaseObserver receives phase events emitted during lowering. It may be
// called from several goroutines at once.
type PhaseObserver func(PhaseEvent)

func (o PhaseObserver) phase(path, name string) func() {
	if o == nil {
		return func() {}
	}
	start := time.Now()
	o(PhaseEvent{Path: path, Name: name, Status: PhaseStart})
	return func() {
		o(PhaseEvent{Path: path, Name: name, Status: PhaseEnd, Elapsed: time.Since(start)})
	}
}
