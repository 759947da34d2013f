package trace

import "context"

// scoped is what a context carries for tracing: the tracer and the span
// new spans nest under.
type scoped struct {
	tracer Tracer
	span   uint64
}

type scopedKey struct{}

func scopeOf(ctx context.Context) scoped {
	if ctx != nil {
		if s, ok := ctx.Value(scopedKey{}).(scoped); ok {
			return s
		}
	}
	return scoped{tracer: Nop}
}

// FromContext returns the tracer of ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return scopeOf(ctx).tracer
}

// WithTracer returns ctx tracing to t. The current span is kept.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	s := scopeOf(ctx)
	s.tracer = t
	if t == nil {
		s.tracer = Nop
	}
	return context.WithValue(ctx, scopedKey{}, s)
}

// CurrentSpan is the id spans begun under ctx take as parent; 0 at the root.
func CurrentSpan(ctx context.Context) uint64 {
	return scopeOf(ctx).span
}

// WithSpan returns ctx with sp as the current span.
func WithSpan(ctx context.Context, sp *Span) context.Context {
	s := scopeOf(ctx)
	s.span = sp.ID()
	return context.WithValue(ctx, scopedKey{}, s)
}
