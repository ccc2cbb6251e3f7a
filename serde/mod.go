// Package serde defines the primitives to serialize and deserialize (serde)
// the messages of the certified store.
//
// The serialization is split between a context engine which holds the
// marshaling library of a format (JSON or CBOR), and format engines that are
// registered by each package for the messages it defines. A message is then
// serialized by looking up the engine of the context format.
package serde

// Format is the identifier of a format implementation.
type Format string

const (
	// FormatJSON is the identifier for JSON formats.
	FormatJSON Format = "JSON"

	// FormatCBOR is the identifier for CBOR formats.
	FormatCBOR Format = "CBOR"
)

// Message is the interface that a message must implement.
type Message interface {
	// Serialize serializes the message into bytes according to the format of
	// the context.
	Serialize(ctx Context) ([]byte, error)
}

// Factory is the interface that a message factory must implement.
type Factory interface {
	// Deserialize returns the message from the bytes according to the format
	// of the context.
	Deserialize(ctx Context, data []byte) (Message, error)
}

// FormatEngine is the interface that a format implementation must implement.
type FormatEngine interface {
	// Encode takes a message and returns its serialized version.
	Encode(ctx Context, message Message) ([]byte, error)

	// Decode takes the data and returns the deserialized message.
	Decode(ctx Context, data []byte) (Message, error)
}
