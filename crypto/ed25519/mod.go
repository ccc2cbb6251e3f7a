// Package ed25519 implements Schnorr signatures over the Edwards 25519 curve.
//
// It is the alternative scheme of the certification authority, selected with
// the algorithm flag of the node. Keys and signatures are smaller than the BLS
// ones and the verification is faster, at the cost of no aggregation.
package ed25519

import (
	"bytes"
	"encoding/hex"

	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/registry"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
)

// Algorithm is the name of the curve used for the Schnorr signatures.
const Algorithm = "CURVE-ED25519"

const textPrefix = "schnorr:"

var (
	suite = suites.MustFind("Ed25519")

	pubkeyFormats = registry.NewSimpleRegistry()
	sigFormats    = registry.NewSimpleRegistry()
)

// RegisterPublicKeyFormat registers the engine for the provided format.
func RegisterPublicKeyFormat(format serde.Format, engine serde.FormatEngine) {
	pubkeyFormats.Register(format, engine)
}

// RegisterSignatureFormat registers the engine for the provided format.
func RegisterSignatureFormat(format serde.Format, engine serde.FormatEngine) {
	sigFormats.Register(format, engine)
}

// PublicKey is a point of the Ed25519 curve.
//
// - implements crypto.PublicKey
type PublicKey struct {
	point kyber.Point
}

// NewPublicKey unmarshals the data into a point of the curve.
func NewPublicKey(data []byte) (PublicKey, error) {
	point := suite.Point()

	err := point.UnmarshalBinary(data)
	if err != nil {
		return PublicKey{}, xerrors.Errorf("couldn't unmarshal point: %v", err)
	}

	return PublicKey{point: point}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return pk.point.MarshalBinary()
}

// MarshalText implements encoding.TextMarshaler. The text is the hexadecimal
// form of the point prefixed by the scheme.
func (pk PublicKey) MarshalText() ([]byte, error) {
	data, err := pk.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return []byte(textPrefix + hex.EncodeToString(data)), nil
}

// Serialize implements serde.Message.
func (pk PublicKey) Serialize(ctx serde.Context) ([]byte, error) {
	data, err := pubkeyFormats.Get(ctx.GetFormat()).Encode(ctx, pk)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode public key: %v", err)
	}

	return data, nil
}

// Verify implements crypto.PublicKey.
func (pk PublicKey) Verify(msg []byte, sig crypto.Signature) error {
	signature, ok := sig.(Signature)
	if !ok {
		return xerrors.Errorf("invalid signature type '%T'", sig)
	}

	err := schnorr.Verify(suite, pk.point, msg, signature.data)
	if err != nil {
		return xerrors.Errorf("schnorr verify failed: %v", err)
	}

	return nil
}

// Equal implements crypto.PublicKey.
func (pk PublicKey) Equal(other interface{}) bool {
	pubkey, ok := other.(PublicKey)

	return ok && pubkey.point.Equal(pk.point)
}

// String implements fmt.Stringer. It shows the first 8 bytes of the point.
func (pk PublicKey) String() string {
	text, err := pk.MarshalText()
	if err != nil {
		return textPrefix + "malformed_point"
	}

	return string(text[:len(textPrefix)+16])
}

// Signature is a Schnorr signature.
//
// - implements crypto.Signature
type Signature struct {
	data []byte
}

// NewSignature wraps the raw signature.
func NewSignature(data []byte) Signature {
	return Signature{data: data}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (sig Signature) MarshalBinary() ([]byte, error) {
	return sig.data, nil
}

// Serialize implements serde.Message.
func (sig Signature) Serialize(ctx serde.Context) ([]byte, error) {
	data, err := sigFormats.Get(ctx.GetFormat()).Encode(ctx, sig)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode signature: %v", err)
	}

	return data, nil
}

// Equal implements crypto.Signature.
func (sig Signature) Equal(other crypto.Signature) bool {
	otherSig, ok := other.(Signature)

	return ok && bytes.Equal(sig.data, otherSig.data)
}

// publicKeyFactory deserializes Ed25519 public keys.
//
// - implements crypto.PublicKeyFactory
type publicKeyFactory struct{}

// NewPublicKeyFactory returns a new instance of the factory.
func NewPublicKeyFactory() crypto.PublicKeyFactory {
	return publicKeyFactory{}
}

// Deserialize implements serde.Factory.
func (f publicKeyFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.PublicKeyOf(ctx, data)
}

// PublicKeyOf implements crypto.PublicKeyFactory.
func (publicKeyFactory) PublicKeyOf(ctx serde.Context, data []byte) (crypto.PublicKey, error) {
	msg, err := pubkeyFormats.Get(ctx.GetFormat()).Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode public key: %v", err)
	}

	pubkey, ok := msg.(PublicKey)
	if !ok {
		return nil, xerrors.Errorf("invalid public key of type '%T'", msg)
	}

	return pubkey, nil
}

// signatureFactory deserializes Schnorr signatures.
//
// - implements crypto.SignatureFactory
type signatureFactory struct{}

// NewSignatureFactory returns a new instance of the factory.
func NewSignatureFactory() crypto.SignatureFactory {
	return signatureFactory{}
}

// Deserialize implements serde.Factory.
func (f signatureFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.SignatureOf(ctx, data)
}

// SignatureOf implements crypto.SignatureFactory.
func (signatureFactory) SignatureOf(ctx serde.Context, data []byte) (crypto.Signature, error) {
	msg, err := sigFormats.Get(ctx.GetFormat()).Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode signature: %v", err)
	}

	sig, ok := msg.(Signature)
	if !ok {
		return nil, xerrors.Errorf("invalid signature of type '%T'", msg)
	}

	return sig, nil
}

// Signer creates Schnorr signatures with a private scalar of the curve.
//
// - implements crypto.Signer
type Signer struct {
	private kyber.Scalar
	public  kyber.Point
}

// NewSigner returns a signer with a random private scalar.
func NewSigner() Signer {
	return newSigner(suite.Scalar().Pick(suite.RandomStream()))
}

// NewSignerFromBytes restores a signer from its marshaled private scalar.
func NewSignerFromBytes(data []byte) (Signer, error) {
	scalar := suite.Scalar()

	err := scalar.UnmarshalBinary(data)
	if err != nil {
		return Signer{}, xerrors.Errorf("while unmarshaling scalar: %v", err)
	}

	return newSigner(scalar), nil
}

func newSigner(private kyber.Scalar) Signer {
	return Signer{
		private: private,
		public:  suite.Point().Mul(private, nil),
	}
}

// GetPublicKeyFactory implements crypto.Signer.
func (s Signer) GetPublicKeyFactory() crypto.PublicKeyFactory {
	return publicKeyFactory{}
}

// GetSignatureFactory implements crypto.Signer.
func (s Signer) GetSignatureFactory() crypto.SignatureFactory {
	return signatureFactory{}
}

// GetPublicKey implements crypto.Signer.
func (s Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{point: s.public}
}

// Sign implements crypto.Signer.
func (s Signer) Sign(msg []byte) (crypto.Signature, error) {
	sig, err := schnorr.Sign(suite, s.private, msg)
	if err != nil {
		return nil, xerrors.Errorf("couldn't make schnorr signature: %v", err)
	}

	return Signature{data: sig}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the private
// scalar of the signer.
func (s Signer) MarshalBinary() ([]byte, error) {
	return s.private.MarshalBinary()
}
