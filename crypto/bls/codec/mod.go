// Package codec implements the BLS engines of the public key and signature
// envelopes for the JSON and CBOR formats.
package codec

import (
	"go.dedis.ch/certkv/crypto/bls"
	"go.dedis.ch/certkv/crypto/common/codec"
	"go.dedis.ch/certkv/serde"
	"golang.org/x/xerrors"
)

func init() {
	for _, format := range []serde.Format{serde.FormatJSON, serde.FormatCBOR} {
		bls.RegisterPublicKeyFormat(format, pubkeyFormat{})
		bls.RegisterSignatureFormat(format, sigFormat{})
	}
}

// pubkeyFormat is the engine of the BLS public key envelope.
//
// - implements serde.FormatEngine
type pubkeyFormat struct{}

// Encode implements serde.FormatEngine.
func (f pubkeyFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	pubkey, ok := msg.(bls.PublicKey)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	buffer, err := pubkey.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal point: %v", err)
	}

	m := codec.PublicKey{
		Algorithm: codec.Algorithm{Name: bls.Algorithm},
		Data:      buffer,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f pubkeyFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := codec.PublicKey{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal public key: %v", err)
	}

	if m.Name != bls.Algorithm {
		return nil, xerrors.Errorf("unexpected algorithm '%s'", m.Name)
	}

	pubkey, err := bls.NewPublicKey(m.Data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create public key: %v", err)
	}

	return pubkey, nil
}

// sigFormat is the engine of the BLS signature envelope.
//
// - implements serde.FormatEngine
type sigFormat struct{}

// Encode implements serde.FormatEngine.
func (f sigFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	sig, ok := msg.(bls.Signature)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	// The signature marshaling never returns an error.
	buffer, _ := sig.MarshalBinary()

	m := codec.Signature{
		Algorithm: codec.Algorithm{Name: bls.Algorithm},
		Data:      buffer,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f sigFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := codec.Signature{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal signature: %v", err)
	}

	if m.Name != bls.Algorithm {
		return nil, xerrors.Errorf("unexpected algorithm '%s'", m.Name)
	}

	return bls.NewSignature(m.Data), nil
}
