package otel

import (
	"context"
	"errors"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fluxorio/fluxpool/pkg/core/concurrency"

// TaskTracer records one span per executed pool task. The span is the parent of
// anything the task traces through its context.
type TaskTracer struct {
	tracer trace.Tracer
}

var _ concurrency.Observer = (*TaskTracer)(nil)

// NewTaskTracer traces with tp, or the global provider when tp is nil
func NewTaskTracer(tp trace.TracerProvider) *TaskTracer {
	if tp == nil {
		tp = otelapi.GetTracerProvider()
	}
	return &TaskTracer{tracer: tp.Tracer(instrumentationName)}
}

func taskAttributes(info concurrency.TaskInfo) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("task.id", info.ID),
		attribute.String("task.name", info.Name),
		attribute.String("pool.name", info.Pool),
	}
}

func (t *TaskTracer) TaskSubmitted(concurrency.TaskInfo) {}

// TaskRejected emits a zero-length error span so refusals show up in traces
func (t *TaskTracer) TaskRejected(info concurrency.TaskInfo, err error) {
	_, span := t.tracer.Start(context.Background(), "reject "+info.Name,
		trace.WithAttributes(taskAttributes(info)...))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

func (t *TaskTracer) TaskAbandoned(info concurrency.TaskInfo) {
	_, span := t.tracer.Start(context.Background(), "abandon "+info.Name,
		trace.WithAttributes(taskAttributes(info)...))
	span.SetStatus(codes.Error, concurrency.ErrPoolShutdown.Error())
	span.End()
}

func (t *TaskTracer) TaskStarted(ctx context.Context, info concurrency.TaskInfo) (context.Context, func(error)) {
	attrs := taskAttributes(info)
	if !info.Enqueued.IsZero() {
		attrs = append(attrs, attribute.Int64("task.queue_wait_us", time.Since(info.Enqueued).Microseconds()))
	}
	ctx, span := t.tracer.Start(ctx, info.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			var pe *concurrency.PanicError
			if errors.As(err, &pe) {
				span.SetAttributes(attribute.Bool("task.panicked", true))
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
