package fake

import opentracing "github.com/opentracing/opentracing-go"

// GetTracerWithError is used to mock tracing.GetTracer with an error.
func GetTracerWithError(string) (opentracing.Tracer, error) {
	return nil, fakeErr
}

// GetTracerEmpty is used to mock tracing.GetTracer with a tracer that records
// nothing.
func GetTracerEmpty(string) (opentracing.Tracer, error) {
	return opentracing.NoopTracer{}, nil
}
