package tracing

import (
	"net/http"
	"testing"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/require"
)

func TestGetTracer(t *testing.T) {
	t.Setenv("JAEGER_DISABLED", "true")

	tracer, err := GetTracer("certkv-test")
	require.NoError(t, err)
	require.NotNil(t, tracer)

	cached, err := GetTracer("certkv-test")
	require.NoError(t, err)
	require.Equal(t, tracer, cached)

	require.NoError(t, CloseAll())
	require.Empty(t, catalog.tracers)
}

func TestGetTracer_BadEnv(t *testing.T) {
	t.Setenv("JAEGER_SAMPLER_PARAM", "not a number")

	_, err := GetTracer("certkv-bad")
	require.Error(t, err)
	require.Contains(t, err.Error(), "error parsing jaeger configuration from environment")
}

func TestStartHTTPClientSpan(t *testing.T) {
	tracer := mocktracer.New()

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:8080/api/users/1", nil)
	require.NoError(t, err)

	span := StartHTTPClientSpan(tracer, req)
	span.Finish()

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /api/users/1", spans[0].OperationName)
	require.Equal(t, "GET", spans[0].Tag("http.method"))

	// The server extracts the same trace from the headers.
	parent, err := tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
	require.NoError(t, err)
	require.Equal(t, spans[0].SpanContext.TraceID, parent.(mocktracer.MockSpanContext).TraceID)

	span = StartHTTPClientSpan(opentracing.NoopTracer{}, req)
	require.NotNil(t, span)
}
