// Package common implements the factories of the public keys and signatures
// for every supported algorithm. The serialized forms carry the name of the
// algorithm so that a verifier can load a trusted key without knowing in
// advance which scheme the authority uses.
//
// The supported algorithms are:
//   - BLS over BN256 (default)
//   - Schnorr over Ed25519
package common

import (
	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/crypto/bls"
	"go.dedis.ch/certkv/crypto/ed25519"
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/registry"
	"golang.org/x/xerrors"
)

var algoFormats = registry.NewSimpleRegistry()

// RegisterAlgorithmFormat registers the engine for the provided format.
func RegisterAlgorithmFormat(format serde.Format, engine serde.FormatEngine) {
	algoFormats.Register(format, engine)
}

// Algorithm is the message that names the algorithm of a serialized public
// key or signature.
//
// - implements serde.Message
type Algorithm struct {
	name string
}

// NewAlgorithm returns a new algorithm message for the name.
func NewAlgorithm(name string) Algorithm {
	return Algorithm{name: name}
}

// GetName returns the name of the algorithm.
func (a Algorithm) GetName() string {
	return a.name
}

// Serialize implements serde.Message.
func (a Algorithm) Serialize(ctx serde.Context) ([]byte, error) {
	format := algoFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, a)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode algorithm: %v", err)
	}

	return data, nil
}

// NewSigner returns a new random signer for the algorithm.
func NewSigner(algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case bls.Algorithm:
		return bls.NewSigner(), nil
	case ed25519.Algorithm:
		return ed25519.NewSigner(), nil
	default:
		return nil, xerrors.Errorf("unknown algorithm '%s'", algorithm)
	}
}

// LoadSigner restores a signer of the algorithm from its marshaled private
// key.
func LoadSigner(algorithm string, data []byte) (crypto.Signer, error) {
	var signer crypto.Signer
	var err error

	switch algorithm {
	case bls.Algorithm:
		signer, err = bls.NewSignerFromBytes(data)
	case ed25519.Algorithm:
		signer, err = ed25519.NewSignerFromBytes(data)
	default:
		return nil, xerrors.Errorf("unknown algorithm '%s'", algorithm)
	}

	if err != nil {
		return nil, xerrors.Errorf("couldn't load %s signer: %v", algorithm, err)
	}

	return signer, nil
}

// PublicKeyFactory deserializes public keys of the supported algorithms.
//
// - implements crypto.PublicKeyFactory
type PublicKeyFactory struct {
	factories map[string]crypto.PublicKeyFactory
}

// NewPublicKeyFactory returns a new instance of the common public key factory.
func NewPublicKeyFactory() PublicKeyFactory {
	factory := PublicKeyFactory{
		factories: make(map[string]crypto.PublicKeyFactory),
	}

	factory.RegisterAlgorithm(bls.Algorithm, bls.NewPublicKeyFactory())
	factory.RegisterAlgorithm(ed25519.Algorithm, ed25519.NewPublicKeyFactory())

	return factory
}

// RegisterAlgorithm registers the factory for the algorithm. It overrides any
// previous factory for the same name.
func (f PublicKeyFactory) RegisterAlgorithm(algo string, factory crypto.PublicKeyFactory) {
	f.factories[algo] = factory
}

// Deserialize implements serde.Factory.
func (f PublicKeyFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.PublicKeyOf(ctx, data)
}

// PublicKeyOf implements crypto.PublicKeyFactory. It reads the algorithm of
// the data and forwards to the matching factory.
func (f PublicKeyFactory) PublicKeyOf(ctx serde.Context, data []byte) (crypto.PublicKey, error) {
	name, err := algorithmOf(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read algorithm: %v", err)
	}

	factory := f.factories[name]
	if factory == nil {
		return nil, xerrors.Errorf("unknown algorithm '%s'", name)
	}

	return factory.PublicKeyOf(ctx, data)
}

// SignatureFactory deserializes signatures of the supported algorithms.
//
// - implements crypto.SignatureFactory
type SignatureFactory struct {
	factories map[string]crypto.SignatureFactory
}

// NewSignatureFactory returns a new instance of the common signature factory.
func NewSignatureFactory() SignatureFactory {
	factory := SignatureFactory{
		factories: make(map[string]crypto.SignatureFactory),
	}

	factory.RegisterAlgorithm(bls.Algorithm, bls.NewSignatureFactory())
	factory.RegisterAlgorithm(ed25519.Algorithm, ed25519.NewSignatureFactory())

	return factory
}

// RegisterAlgorithm registers the factory for the algorithm.
func (f SignatureFactory) RegisterAlgorithm(name string, factory crypto.SignatureFactory) {
	f.factories[name] = factory
}

// Deserialize implements serde.Factory.
func (f SignatureFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.SignatureOf(ctx, data)
}

// SignatureOf implements crypto.SignatureFactory.
func (f SignatureFactory) SignatureOf(ctx serde.Context, data []byte) (crypto.Signature, error) {
	name, err := algorithmOf(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read algorithm: %v", err)
	}

	factory := f.factories[name]
	if factory == nil {
		return nil, xerrors.Errorf("unknown algorithm '%s'", name)
	}

	return factory.SignatureOf(ctx, data)
}

func algorithmOf(ctx serde.Context, data []byte) (string, error) {
	format := algoFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return "", err
	}

	algo, ok := msg.(Algorithm)
	if !ok {
		return "", xerrors.Errorf("invalid message of type '%T'", msg)
	}

	return algo.GetName(), nil
}
