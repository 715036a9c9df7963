// Package invoke runs one ledger operation as one ledger transaction and
// handles everything around it: tracing, error translation, metrics,
// logging, and post-commit event publication.
package invoke

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rotrust/internal/events"
	"rotrust/internal/ledger"
	"rotrust/internal/platform/metrics"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/platform/sentinel"
	"rotrust/pkg/requestcontext"
)

// Runner executes ledger operations.
type Runner struct {
	store     ledger.Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	tracer    trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

// New creates a Runner over store.
func New(store ledger.Store, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	r := &Runner{
		store:     store,
		logger:    slog.Default(),
		publisher: events.NopPublisher{},
		tracer:    otel.Tracer("rotrust/ledger"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Store exposes the underlying ledger for read-only queries.
func (r *Runner) Store() ledger.Store {
	return r.store
}

// Metrics exposes the collectors for operation-specific counters.
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Run executes fn in one ledger transaction. Events added to the batch are
// published only after a successful commit. The returned error is always a
// coded domain error.
func (r *Runner) Run(ctx context.Context, op string, attrs []attribute.KeyValue,
	fn func(ctx context.Context, txn ledger.Txn, out *events.Batch) error,
) error {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	defer span.End()

	var batch *events.Batch
	err := r.store.RunInTx(ctx, func(ctx context.Context, txn ledger.Txn) error {
		batch = events.NewBatch(ctx)
		return fn(ctx, txn, batch)
	})
	if err = r.finish(ctx, span, op, start, err); err != nil {
		return err
	}

	evs := batch.Events()
	span.SetAttributes(attribute.Int("ledger.events", len(evs)))
	r.logger.InfoContext(ctx, "ledger operation committed",
		"operation", op,
		"request_id", requestcontext.RequestID(ctx),
		"events", len(evs),
	)
	r.publish(ctx, op, evs)
	return nil
}

// Read executes a read-only fn in a ledger transaction. Nothing is written
// or published.
func (r *Runner) Read(ctx context.Context, op string, attrs []attribute.KeyValue,
	fn func(ctx context.Context, txn ledger.Txn) error,
) error {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	defer span.End()

	err := r.store.RunInTx(ctx, fn)
	return r.finish(ctx, span, op, start, err)
}

func (r *Runner) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) error {
	err = Translate(err)
	if err == nil {
		r.metrics.ObserveOperation(op, "ok", start)
		return nil
	}

	code := dErrors.CodeOf(err)
	r.metrics.ObserveOperation(op, string(code), start)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))

	attrs := []any{"operation", op, "code", code, "error", err, "request_id", requestcontext.RequestID(ctx)}
	switch code {
	case dErrors.CodeVersionConflict:
		r.metrics.IncrementVersionConflicts(op)
		r.logger.WarnContext(ctx, "ledger operation conflicted", attrs...)
	case dErrors.CodeInternal, dErrors.CodeTimeout, dErrors.CodeInvariantViolation:
		r.logger.ErrorContext(ctx, "ledger operation failed", attrs...)
	default:
		r.logger.InfoContext(ctx, "ledger operation rejected", attrs...)
	}
	return err
}

func (r *Runner) publish(ctx context.Context, op string, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, evs); err != nil {
		r.metrics.IncrementEventPublishFailures()
		r.logger.WarnContext(ctx, "event publish failed after commit",
			"operation", op,
			"events", len(evs),
			"error", err,
		)
		return
	}
	r.metrics.AddEventsPublished(len(evs))
}

// Translate maps infrastructure errors to coded domain errors. Errors that
// already carry a code pass through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrVersionConflict):
		return dErrors.Wrap(err, dErrors.CodeVersionConflict, "ledger state changed concurrently; retry the operation")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "ledger record not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "ledger record is corrupt")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
}
