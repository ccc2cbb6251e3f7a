package fake

import (
	"encoding/json"

	"go.dedis.ch/certkv/serde"
)

const (
	// GoodFormat is the name of the format that always succeeds.
	GoodFormat = serde.Format("FakeGood")

	// BadFormat is the name of the format that always fails.
	BadFormat = serde.Format("FakeBad")
)

var fakeFormatValue = []byte("fake format")

// GetFakeFormatValue returns the value produced by a good format when
// encoding.
func GetFakeFormatValue() []byte {
	return append([]byte{}, fakeFormatValue...)
}

// Message is a fake implementation of a serde message.
//
// - implements serde.Message
type Message struct {
	Digest []byte
}

// Serialize implements serde.Message. It returns the fake format value.
func (m Message) Serialize(serde.Context) ([]byte, error) {
	return GetFakeFormatValue(), nil
}

// Format is a fake format engine implementation.
//
// - implements serde.FormatEngine
type Format struct {
	err   error
	Msg   serde.Message
	Call  *Call
	Value []byte
}

// NewBadFormat returns a format engine that always fails.
func NewBadFormat() Format {
	return Format{err: fakeErr}
}

// Encode implements serde.FormatEngine. It returns the fake format value, or
// an error.
func (f Format) Encode(ctx serde.Context, m serde.Message) ([]byte, error) {
	if f.Call != nil {
		f.Call.Add(ctx, m)
	}

	if f.err != nil {
		return nil, f.err
	}

	if f.Value != nil {
		return f.Value, nil
	}

	return GetFakeFormatValue(), nil
}

// Decode implements serde.FormatEngine. It returns the message of the format,
// or an error.
func (f Format) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	if f.Call != nil {
		f.Call.Add(ctx, data)
	}

	if f.err != nil {
		return nil, f.err
	}

	return f.Msg, nil
}

// ContextEngine is a fake context engine.
//
// - implements serde.ContextEngine
type ContextEngine struct {
	format serde.Format
	err    error
}

// NewContext returns a context using the good format.
func NewContext() serde.Context {
	return NewContextWithFormat(GoodFormat)
}

// NewContextWithFormat returns a context for the given format.
func NewContextWithFormat(f serde.Format) serde.Context {
	return serde.NewContext(ContextEngine{format: f})
}

// NewBadContext returns a context using the bad format and failing to
// marshal.
func NewBadContext() serde.Context {
	return serde.NewContext(ContextEngine{format: BadFormat, err: fakeErr})
}

// GetFormat implements serde.ContextEngine.
func (ctx ContextEngine) GetFormat() serde.Format {
	return ctx.format
}

// Marshal implements serde.ContextEngine. It marshals the message in JSON, or
// returns an error if set.
func (ctx ContextEngine) Marshal(m interface{}) ([]byte, error) {
	if ctx.err != nil {
		return nil, ctx.err
	}

	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine. It unmarshals the JSON data, or
// returns an error if set.
func (ctx ContextEngine) Unmarshal(data []byte, m interface{}) error {
	if ctx.err != nil {
		return ctx.err
	}

	return json.Unmarshal(data, m)
}

// Call is a tool to keep track of a function calls.
type Call struct {
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	c.calls = append(c.calls, args)
}

// Clear clears the list of calls.
func (c *Call) Clear() {
	c.calls = nil
}

// NewCall returns an empty call tracker.
func NewCall() *Call {
	return &Call{}
}
