package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mangabot/internal/models"
	"mangabot/internal/storage"
)

// InstrumentedStore wraps a storage.Store implementation with OpenTelemetry
// tracing and metrics instrumentation.
type InstrumentedStore struct {
	inner    storage.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStore creates a store wrapper that records trace spans,
// operation latency histograms, and error counters for every store method call.
func NewInstrumentedStore(inner storage.Store) (*InstrumentedStore, error) {
	tracer := otel.Tracer("mangabot/storage")
	meter := otel.Meter("mangabot/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStore) GetArtifact(ctx context.Context, key models.ProductionKey) (*models.ArtifactEntry, error) {
	ctx, span := s.startSpan(ctx, "GetArtifact",
		attribute.Int64("subject_id", key.SubjectID),
		attribute.Int64("variant_id", key.VariantID),
		attribute.String("format", key.Format),
	)
	start := time.Now()
	result, err := s.inner.GetArtifact(ctx, key)
	s.record(ctx, span, "GetArtifact", start, err)
	return result, err
}

func (s *InstrumentedStore) PutArtifact(ctx context.Context, entry *models.ArtifactEntry) error {
	ctx, span := s.startSpan(ctx, "PutArtifact",
		attribute.Int64("subject_id", entry.Key.SubjectID),
		attribute.Int64("variant_id", entry.Key.VariantID),
		attribute.String("format", entry.Key.Format),
	)
	start := time.Now()
	err := s.inner.PutArtifact(ctx, entry)
	s.record(ctx, span, "PutArtifact", start, err)
	return err
}

func (s *InstrumentedStore) GetBatches(ctx context.Context, subjectID, variantID int64) ([]*models.BatchEntry, error) {
	ctx, span := s.startSpan(ctx, "GetBatches",
		attribute.Int64("subject_id", subjectID),
		attribute.Int64("variant_id", variantID),
	)
	start := time.Now()
	result, err := s.inner.GetBatches(ctx, subjectID, variantID)
	s.record(ctx, span, "GetBatches", start, err)
	return result, err
}

func (s *InstrumentedStore) PutBatch(ctx context.Context, entry *models.BatchEntry) error {
	ctx, span := s.startSpan(ctx, "PutBatch",
		attribute.Int64("subject_id", entry.SubjectID),
		attribute.Int64("variant_id", entry.VariantID),
		attribute.Int("batch_index", entry.BatchIndex),
	)
	start := time.Now()
	err := s.inner.PutBatch(ctx, entry)
	s.record(ctx, span, "PutBatch", start, err)
	return err
}

func (s *InstrumentedStore) DeleteArtifacts(ctx context.Context, subjectID *int64) (int64, error) {
	ctx, span := s.startSpan(ctx, "DeleteArtifacts", scopeAttr(subjectID))
	start := time.Now()
	removed, err := s.inner.DeleteArtifacts(ctx, subjectID)
	s.record(ctx, span, "DeleteArtifacts", start, err)
	return removed, err
}

func (s *InstrumentedStore) DeleteBatches(ctx context.Context, subjectID *int64) (int64, error) {
	ctx, span := s.startSpan(ctx, "DeleteBatches", scopeAttr(subjectID))
	start := time.Now()
	removed, err := s.inner.DeleteBatches(ctx, subjectID)
	s.record(ctx, span, "DeleteBatches", start, err)
	return removed, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

func scopeAttr(subjectID *int64) attribute.KeyValue {
	if subjectID == nil {
		return attribute.String("scope", "all")
	}
	return attribute.Int64("subject_id", *subjectID)
}
