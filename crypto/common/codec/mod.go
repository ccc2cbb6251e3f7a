// Package codec defines the envelopes of the public keys and signatures. The
// engines only rely on the context to marshal the envelope, so they are
// registered for both the JSON and the CBOR formats.
package codec

import (
	"go.dedis.ch/certkv/crypto/common"
	"go.dedis.ch/certkv/serde"
	"golang.org/x/xerrors"
)

func init() {
	common.RegisterAlgorithmFormat(serde.FormatJSON, algoFormat{})
	common.RegisterAlgorithmFormat(serde.FormatCBOR, algoFormat{})
}

// Algorithm is the envelope header naming the algorithm.
type Algorithm struct {
	Name string `json:"Name" cbor:"name"`
}

// PublicKey is the envelope of a public key.
type PublicKey struct {
	Algorithm
	Data []byte `json:"Data" cbor:"data"`
}

// Signature is the envelope of a signature.
type Signature struct {
	Algorithm
	Data []byte `json:"Data" cbor:"data"`
}

// algoFormat reads and writes the envelope header.
//
// - implements serde.FormatEngine
type algoFormat struct{}

// Encode implements serde.FormatEngine.
func (f algoFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	algo, ok := msg.(common.Algorithm)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	data, err := ctx.Marshal(Algorithm{Name: algo.GetName()})
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. Fields other than the name are
// ignored so that the header can be read from a complete envelope.
func (f algoFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := Algorithm{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't deserialize algorithm: %v", err)
	}

	return common.NewAlgorithm(m.Name), nil
}
