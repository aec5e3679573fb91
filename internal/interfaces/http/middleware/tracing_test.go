package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value.Emit(), true
		}
	}
	return "", false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, ServiceName: "test-service"}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracingWithConfig_BillingAttributes(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(RequestID())
	router.Use(Tracing())
	router.Use(SpanAttributes())
	router.GET("/billing/payments/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/billing/ledger/summary", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	t.Run("request id and path id", func(t *testing.T) {
		paymentID := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/billing/payments/"+paymentID.String(), nil)
		req.Header.Set("X-Request-ID", "req-123")
		router.ServeHTTP(httptest.NewRecorder(), req)

		span := findSpan(t, sr, "GET /billing/payments/:id")
		got, ok := spanAttr(span, "request_id")
		require.True(t, ok)
		assert.Equal(t, "req-123", got)
		got, ok = spanAttr(span, "billing.resource_id")
		require.True(t, ok)
		assert.Equal(t, paymentID.String(), got)
	})

	t.Run("scope from query and junk ignored", func(t *testing.T) {
		orderID := uuid.New()
		req := httptest.NewRequest(http.MethodGet,
			"/billing/ledger/summary?order_id="+orderID.String()+"&invoice_id=not-a-uuid", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)

		span := findSpan(t, sr, "GET /billing/ledger/summary")
		got, ok := spanAttr(span, "billing.order_id")
		require.True(t, ok)
		assert.Equal(t, orderID.String(), got)
		_, ok = spanAttr(span, "billing.invoice_id")
		assert.False(t, ok)
	})
}

func TestTracingWithConfig_ContinuesRemoteTrace(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	router.ServeHTTP(httptest.NewRecorder(), req)

	span := findSpan(t, sr, "GET /test")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		status      int
		description string
	}{
		{http.StatusBadRequest, "Client Error"},
		{http.StatusNotFound, "Not Found"},
		{http.StatusConflict, "Conflict"},
		{http.StatusUnprocessableEntity, "Refused"},
		{http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := setupTestTracer(t)

			router := gin.New()
			router.Use(Tracing())
			router.Use(SpanErrorMarker())
			router.GET("/test", func(c *gin.Context) {
				c.Status(tt.status)
			})
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			span := findSpan(t, sr, "GET /test")
			assert.Equal(t, codes.Error, span.Status().Code)
			// otelgin sets its own error status on 5xx after the handler chain
			if tt.status < http.StatusInternalServerError {
				assert.Equal(t, tt.description, span.Status().Description)
			}
		})
	}

	t.Run("success leaves status unset", func(t *testing.T) {
		sr := setupTestTracer(t)

		router := gin.New()
		router.Use(Tracing())
		router.Use(SpanErrorMarker())
		router.GET("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		span := findSpan(t, sr, "GET /test")
		assert.Equal(t, codes.Unset, span.Status().Code)
	})

	t.Run("no span", func(t *testing.T) {
		router := gin.New()
		router.Use(SpanAttributes())
		router.Use(SpanErrorMarker())
		router.GET("/test", func(c *gin.Context) {
			c.Status(http.StatusInternalServerError)
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestGetRequestID(t *testing.T) {
	t.Run("context wins over header", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("X-Request-ID", "from-header")
		c.Set(RequestIDContextKey, "from-context")
		assert.Equal(t, "from-context", getRequestID(c))
	})

	t.Run("long header truncated", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("X-Request-ID", strings.Repeat("x", 300))
		assert.Len(t, getRequestID(c), MaxRequestIDLength)
	})
}
