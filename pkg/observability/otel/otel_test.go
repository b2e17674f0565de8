package otel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingPool(t *testing.T, name string) (*concurrency.ThreadPool, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(Config{ServiceName: "test"}, sdktrace.WithSpanProcessor(sr))
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	pool, err := concurrency.New(concurrency.Config{Name: name, MaxThreads: 2},
		concurrency.WithObserver(NewTaskTracer(tp)))
	if err != nil {
		t.Fatalf("concurrency.New() error = %v", err)
	}
	t.Cleanup(pool.Stop)
	return pool, sr
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTaskTracer_SpanPerTask(t *testing.T) {
	pool, sr := newRecordingPool(t, "assets")

	boom := errors.New("boom")
	okFuture := concurrency.SubmitNamed(pool, "load-mesh", func(ctx context.Context) (string, error) {
		if !trace.SpanContextFromContext(ctx).IsValid() {
			return "", errors.New("task context carries no span")
		}
		return "ok", nil
	})
	failFuture := concurrency.SubmitNamed(pool, "load-texture", func(ctx context.Context) (string, error) {
		return "", boom
	})
	if _, err := okFuture.Get(); err != nil {
		t.Fatalf("load-mesh error = %v", err)
	}
	failFuture.Wait()

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("len(Ended()) = %d, want 2", len(spans))
	}

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}

	mesh, ok := byName["load-mesh"]
	if !ok {
		t.Fatal("no span named load-mesh")
	}
	if mesh.Status().Code != codes.Ok {
		t.Errorf("load-mesh status = %v, want Ok", mesh.Status().Code)
	}
	if v, ok := attr(mesh, "task.id"); !ok || v.AsString() != okFuture.ID() {
		t.Errorf("task.id = %v, want %s", v.AsString(), okFuture.ID())
	}
	if v, ok := attr(mesh, "pool.name"); !ok || v.AsString() != "assets" {
		t.Errorf("pool.name = %v, want assets", v.AsString())
	}

	texture := byName["load-texture"]
	if texture == nil || texture.Status().Code != codes.Error {
		t.Fatalf("load-texture span = %v, want error status", texture)
	}
	if len(texture.Events()) == 0 {
		t.Error("load-texture span should record the error event")
	}
}

func TestTaskTracer_Panic(t *testing.T) {
	pool, sr := newRecordingPool(t, "p")

	concurrency.SubmitNamed(pool, "explode", func(ctx context.Context) (int, error) {
		panic("bad")
	}).Wait()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("len(Ended()) = %d, want 1", len(spans))
	}
	if v, ok := attr(spans[0], "task.panicked"); !ok || !v.AsBool() {
		t.Error("task.panicked attribute missing")
	}
}

func TestTaskTracer_Rejected(t *testing.T) {
	pool, sr := newRecordingPool(t, "p")
	pool.Shutdown(time.Second)

	concurrency.SubmitNamed(pool, "late", func(ctx context.Context) (int, error) { return 1, nil }).Wait()

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "reject late" {
		t.Fatalf("spans = %v, want one reject span", spans)
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status().Code)
	}
}

func TestNewTracerProvider_Exporters(t *testing.T) {
	for _, exp := range []string{"", ExporterNone, ExporterStdout, ExporterZipkin, ExporterJaeger} {
		tp, err := NewTracerProvider(Config{Exporter: exp, SampleRate: 0.5})
		if err != nil {
			t.Errorf("NewTracerProvider(%q) error = %v", exp, err)
			continue
		}
		tp.Shutdown(context.Background())
	}

	if _, err := NewTracerProvider(Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Error("NewTracerProvider() with unknown exporter should fail")
	}
}

func TestInitialize_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{ServiceName: "fluxpool-test", Exporter: ExporterStdout, Writer: &buf}

	if err := Initialize(context.Background(), cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !IsInitialized() {
		t.Error("IsInitialized() = false after Initialize()")
	}

	pool, err := concurrency.New(concurrency.Config{Name: "global-traced", MaxThreads: 1},
		concurrency.WithObserver(NewTaskTracer(nil)))
	if err != nil {
		t.Fatalf("concurrency.New() error = %v", err)
	}
	concurrency.SubmitNamed(pool, "flush-me", func(ctx context.Context) (int, error) { return 1, nil }).Wait()
	pool.Stop()

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if IsInitialized() {
		t.Error("IsInitialized() = true after Shutdown()")
	}
	if !strings.Contains(buf.String(), "flush-me") {
		t.Errorf("stdout exporter output missing span:\n%s", buf.String())
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
