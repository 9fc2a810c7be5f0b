package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"mangabot/internal/gate"
)

// InstrumentedGate wraps a gate.Admitter and counts admission decisions by
// event kind and verdict. Admit stays total and error-free; the gate sits on
// the hot path of every inbound event, so there is no per-call span, only a
// counter.
type InstrumentedGate struct {
	inner     gate.Admitter
	decisions metric.Int64Counter
}

// NewInstrumentedGate creates the counting wrapper.
func NewInstrumentedGate(inner gate.Admitter) (*InstrumentedGate, error) {
	meter := otel.Meter("mangabot/gate")

	decisions, err := meter.Int64Counter(
		"gate.decisions",
		metric.WithDescription("Number of admission decisions by kind and verdict"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedGate{inner: inner, decisions: decisions}, nil
}

// Admit delegates to the wrapped gate and records the decision.
func (g *InstrumentedGate) Admit(actorID int64, kind gate.Kind) gate.Decision {
	d := g.inner.Admit(actorID, kind)
	g.decisions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("verdict", d.Verdict.String()),
	))
	return d
}
