// Package trace records the lowering pipeline as nested spans.
//
// Enable it from the command line:
//
//	kiln lower --trace=- --trace-level=detail unit.yaml
//
// # Tracers
//
//   - Nop: zero-overhead tracer used when tracing is off
//   - StreamTracer: writes every event immediately (file or stderr)
//   - RingTracer: keeps the last N events in memory for post-mortem dumps
//   - MultiTracer: fans out to several tracers
//
// # Levels and scopes
//
// LevelPhase emits driver and pass boundaries (load, registry, lower, validate).
// LevelDetail adds per-unit events: one span per lowered function and per
// generic instantiation. LevelDebug adds node-level events such as match
// compilation and closure conversion.
//
// Tracers travel through the pipeline in a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "lower", parentID)
//	defer span.End("")
package trace
