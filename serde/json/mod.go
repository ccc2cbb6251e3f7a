// Package json implements the context engine for the JSON format. The REST
// API exposes the public keys with it, and it is the format of the
// certificates when they are meant to be read by humans.
package json

import (
	"encoding/json"

	"go.dedis.ch/certkv/serde"

	// Register the JSON formats of the public keys and signatures.
	_ "go.dedis.ch/certkv/crypto/bls/codec"
	_ "go.dedis.ch/certkv/crypto/common/codec"
	_ "go.dedis.ch/certkv/crypto/ed25519/codec"
)

// jsonEngine encodes the messages with encoding/json.
//
// - implements serde.ContextEngine
type jsonEngine struct{}

// NewContext returns a JSON context.
func NewContext() serde.Context {
	return serde.NewContext(jsonEngine{})
}

// GetFormat implements serde.ContextEngine.
func (jsonEngine) GetFormat() serde.Format {
	return serde.FormatJSON
}

// Marshal implements serde.ContextEngine.
func (jsonEngine) Marshal(m interface{}) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine.
func (jsonEngine) Unmarshal(data []byte, m interface{}) error {
	return json.Unmarshal(data, m)
}
