// Package tracing provides the opentracing tracers of the services. The
// tracers report to Jaeger and are configured from the environment (see the
// JAEGER_* variables of jaeger-client-go). Without an agent, the spans are
// dropped.
package tracing

import (
	"io"
	"net/http"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"golang.org/x/xerrors"
)

// RequestIDTag is the span tag of the request identifier.
const RequestIDTag = "request.id"

type tracerCatalog struct {
	sync.Mutex
	tracers map[string]closableTracer
}

type closableTracer struct {
	tracer opentracing.Tracer
	closer io.Closer
}

var catalog = tracerCatalog{
	tracers: make(map[string]closableTracer),
}

// GetTracer returns the tracer of the service. The tracers are cached so that
// a service always uses the same instance.
func GetTracer(service string) (opentracing.Tracer, error) {
	catalog.Lock()
	defer catalog.Unlock()

	tc, ok := catalog.tracers[service]
	if ok {
		return tc.tracer, nil
	}

	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, xerrors.Errorf("error parsing jaeger configuration from environment: %v", err)
	}

	cfg.ServiceName = service

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, xerrors.Errorf("error creating new tracer: %v", err)
	}

	catalog.tracers[service] = closableTracer{
		tracer: tracer,
		closer: closer,
	}

	return tracer, nil
}

// CloseAll closes the tracers and flushes the pending spans.
func CloseAll() error {
	catalog.Lock()
	defer catalog.Unlock()

	for service, tc := range catalog.tracers {
		err := tc.closer.Close()
		if err != nil {
			return xerrors.Errorf("couldn't close tracer of '%s': %v", service, err)
		}

		delete(catalog.tracers, service)
	}

	return nil
}

// StartHTTPClientSpan starts the span of an outgoing request and writes its
// context in the headers so that the server continues the trace.
func StartHTTPClientSpan(tracer opentracing.Tracer, req *http.Request) opentracing.Span {
	span := tracer.StartSpan(req.Method+" "+req.URL.Path, ext.SpanKindRPCClient)

	ext.HTTPMethod.Set(span, req.Method)
	ext.HTTPUrl.Set(span, req.URL.String())

	carrier := opentracing.HTTPHeadersCarrier(req.Header)

	err := tracer.Inject(span.Context(), opentracing.HTTPHeaders, carrier)
	if err != nil {
		ext.LogError(span, err)
	}

	return span
}
