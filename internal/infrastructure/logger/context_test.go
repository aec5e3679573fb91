package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// contextWithSpan returns a context carrying a valid, sampled span context
func contextWithSpan(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func fieldsOf(entry observer.LoggedEntry) map[string]interface{} {
	return entry.ContextMap()
}

func TestWithContext(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithContext(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
}

func TestFromContext_NotFound(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), LoggerKey, "not a logger")

	assert.NotNil(t, FromContext(ctx))
}

func TestWithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, enriched := WithRequestID(context.Background(), zap.New(core), "req-42")
	enriched.Info("hello")

	assert.Equal(t, "req-42", GetRequestID(ctx))
	assert.Same(t, enriched, FromContext(ctx))
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "req-42", fieldsOf(recorded.All()[0])["request_id"])
}

func TestWithScope(t *testing.T) {
	ctx := WithScope(context.Background(), "order:abc")

	assert.Equal(t, "order:abc", GetScope(ctx))
	assert.Empty(t, GetScope(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(contextWithSpan(t)))
}

func TestContextLogger_EnrichesWithContextFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx, _ := WithRequestID(contextWithSpan(t), zap.New(core), "req-1")
	ctx = WithScope(ctx, "invoice:xyz")

	L(ctx).Info("Propagation finished", zap.Int("warnings", 0))

	require.Equal(t, 1, recorded.Len())
	fields := fieldsOf(recorded.All()[0])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "invoice:xyz", fields["billing_scope"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.EqualValues(t, 0, fields["warnings"])
}

func TestContextLogger_RequestIDNotDuplicated(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx, _ := WithRequestID(context.Background(), zap.New(core), "req-1")

	L(ctx).Info("once")

	entry := recorded.All()[0]
	count := 0
	for _, f := range entry.Context {
		if f.Key == "request_id" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestWithLogger_AddsRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-9")

	WithLogger(ctx, zap.New(core)).Warn("Projection write failed")

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, zapcore.WarnLevel, recorded.All()[0].Level)
	assert.Equal(t, "req-9", fieldsOf(recorded.All()[0])["request_id"])
}

func TestContextLogger_With(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	cl := WithLogger(context.Background(), zap.New(core)).With(zap.String("component", "propagator"))

	cl.Info("a")
	cl.Error("b")
	cl.Debug("suppressed")

	require.Equal(t, 2, recorded.Len())
	for _, e := range recorded.All() {
		assert.Equal(t, "propagator", fieldsOf(e)["component"])
	}
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := &ContextLogger{ctx: context.Background()}

	assert.NotPanics(t, func() {
		cl.Info("nothing")
		cl.With(zap.String("k", "v")).Warn("still nothing")
	})
	assert.NotNil(t, cl.Zap())
}
