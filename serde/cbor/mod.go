// Package cbor implements the context engine for the CBOR format (RFC 8949).
//
// The engine encodes with the core deterministic options so that two equal
// messages always produce the same bytes, and it decodes with strict options:
// duplicated map keys are rejected and the nesting depth is bounded.
package cbor

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/certkv/serde"
	"golang.org/x/xerrors"

	// Register the CBOR formats of the public keys and signatures.
	_ "go.dedis.ch/certkv/crypto/bls/codec"
	_ "go.dedis.ch/certkv/crypto/common/codec"
	_ "go.dedis.ch/certkv/crypto/ed25519/codec"
)

// SelfDescribeTag is the CBOR tag announcing that the following item is CBOR
// encoded (RFC 8949, section 3.4.6).
const SelfDescribeTag = 55799

// The decoder skips the self-describe tag on its own, so it is recognized by
// its encoding.
var selfDescribePrefix = []byte{0xd9, 0xd9, 0xf7}

// MaxNestedLevels is the maximum depth accepted when decoding a CBOR item.
const MaxNestedLevels = 256

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor: invalid encoding options: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: MaxNestedLevels,
		IndefLength:     cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic("cbor: invalid decoding options: " + err.Error())
	}
}

// cborEngine is a context engine to marshal and unmarshal in CBOR format.
//
// - implements serde.ContextEngine
type cborEngine struct{}

// NewContext returns a CBOR context.
func NewContext() serde.Context {
	return serde.NewContext(cborEngine{})
}

// GetFormat implements serde.ContextEngine. It returns the CBOR format name.
func (ctx cborEngine) GetFormat() serde.Format {
	return serde.FormatCBOR
}

// Marshal implements serde.ContextEngine. It returns the deterministic CBOR
// encoding of the message.
func (ctx cborEngine) Marshal(m interface{}) ([]byte, error) {
	return encMode.Marshal(m)
}

// Unmarshal implements serde.ContextEngine. It populates the message from the
// CBOR data. Trailing bytes after the first item are an error.
func (ctx cborEngine) Unmarshal(data []byte, m interface{}) error {
	return Unmarshal(data, m)
}

// Marshal is a shortcut to encode a value with the deterministic options of
// the engine.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal is a shortcut to decode a value with the strict options of the
// engine. The data must hold exactly one item.
func Unmarshal(data []byte, v interface{}) error {
	dec := decMode.NewDecoder(bytes.NewReader(data))

	err := dec.Decode(v)
	if err != nil {
		return err
	}

	if dec.NumBytesRead() != len(data) {
		return xerrors.Errorf("%d trailing bytes", len(data)-dec.NumBytesRead())
	}

	return nil
}

// SelfDescribe wraps the data with the self-describe tag.
func SelfDescribe(data []byte) ([]byte, error) {
	return encMode.Marshal(cbor.RawTag{
		Number:  SelfDescribeTag,
		Content: cbor.RawMessage(data),
	})
}

// StripSelfDescribe removes the self-describe tag if present and returns the
// content. Data without the tag is returned as is.
func StripSelfDescribe(data []byte) []byte {
	if HasSelfDescribe(data) {
		return data[len(selfDescribePrefix):]
	}

	return data
}

// HasSelfDescribe returns true when the data starts with the self-describe
// tag.
func HasSelfDescribe(data []byte) bool {
	return bytes.HasPrefix(data, selfDescribePrefix)
}
