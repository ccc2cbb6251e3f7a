// Package http implements the proxy with an HTTP server.
//
// Every request gets an identifier, either from the X-Request-Id header or a
// new xid, a tracing span and a line in the access log.
package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/internal/tracing"
)

// RequestIDHeader is the header of the request identifier.
const RequestIDHeader = "X-Request-Id"

// ServiceName is the name of the service in the traces.
const ServiceName = "certkv-proxy"

const shutdownTimeout = 10 * time.Second

type key int

const requestIDKey key = 0

var (
	getTracer = tracing.GetTracer

	promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certkv_http_requests_total",
		Help: "number of HTTP requests by method and status code",
	}, []string{"method", "code"})
)

func init() {
	certkv.PromCollectors = append(certkv.PromCollectors, promRequests)
}

// RequestID returns the identifier of the request of the context, or an empty
// string.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// HTTP is a proxy using an HTTP server.
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	mux        *http.ServeMux
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	ln         net.Listener
	quit       chan struct{}
}

// NewHTTP creates a new proxy that will listen on the address. An empty
// address or a zero port selects a random free port.
func NewHTTP(listenAddr string) *HTTP {
	logger := certkv.Logger.With().Str("role", "http proxy").Logger()

	tracer, err := getTracer(ServiceName)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")

		tracer = opentracing.NoopTracer{}
	}

	mux := http.NewServeMux()

	h := &HTTP{
		mux:        mux,
		logger:     logger,
		listenAddr: listenAddr,
		quit:       make(chan struct{}),
	}

	h.server = &http.Server{
		Handler:           requestID(tracingSpan(tracer)(logging(h)(mux))),
		ReadHeaderTimeout: shutdownTimeout,
	}

	return h
}

// Listen implements proxy.Proxy. It panics if the address is not available.
func (h *HTTP) Listen() {
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		h.logger.Panic().Msgf("failed to create conn '%s': %v", h.listenAddr, err)
		return
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	done := make(chan struct{})

	go func() {
		<-h.quit

		h.logger.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.server.SetKeepAlivesEnabled(false)

		err := h.server.Shutdown(ctx)
		if err != nil {
			h.logger.Err(err).Msg("could not gracefully shutdown the server")
		}

		close(done)
	}()

	h.logger.Info().Msgf("server is ready to handle requests at http://%s", ln.Addr())

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		h.logger.Err(err).Msg("server failed")
	}

	<-done

	h.logger.Info().Msg("server stopped")
}

// Stop implements proxy.Proxy.
func (h *HTTP) Stop() {
	close(h.quit)
}

// GetAddr implements proxy.Proxy.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// RegisterHandler implements proxy.Proxy. It panics if the path is already
// registered.
func (h *HTTP) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	h.mux.HandleFunc(path, handler)
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// logging writes the access log and counts the requests.
func logging(h *HTTP) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			promRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()

			h.logger.Info().
				Str("requestID", RequestID(r.Context())).
				Str("method", r.Method).
				Str("url", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Str("remoteAddr", r.RemoteAddr).
				Str("agent", r.UserAgent()).
				Msg("request")
		})
	}
}

// tracingSpan starts a span for the request, as a child of the span of the
// client when the headers carry one.
func tracingSpan(tracer opentracing.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			carrier := opentracing.HTTPHeadersCarrier(r.Header)
			parent, _ := tracer.Extract(opentracing.HTTPHeaders, carrier)

			span := tracer.StartSpan(r.Method+" "+r.URL.Path, ext.RPCServerOption(parent))
			defer span.Finish()

			ext.HTTPMethod.Set(span, r.Method)
			ext.HTTPUrl.Set(span, r.URL.String())
			span.SetTag(tracing.RequestIDTag, RequestID(r.Context()))

			ctx := opentracing.ContextWithSpan(r.Context(), span)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r.WithContext(ctx))

			ext.HTTPStatusCode.Set(span, uint16(sw.status))
		})
	}
}

// requestID sets the identifier of the request in the context and in the
// headers of the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = xid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set(RequestIDHeader, id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
