// Package crypto defines the cryptographic primitives used to certify the
// root of the store: a hash factory for the tree digests, and the signer and
// verifier abstractions of the certification authority.
//
// The signature scheme is a black box for the rest of the repository. A
// certificate is accepted when the public key of the authority verifies the
// signature over the root of the certificate tree.
package crypto

import (
	"encoding"
	"hash"

	"go.dedis.ch/certkv/serde"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler
	encoding.TextMarshaler
	serde.Message

	// Verify returns nil if the signature matches the message, otherwise an
	// error is returned.
	Verify(msg []byte, signature Signature) error

	// Equal returns true when both objects are similar.
	Equal(other interface{}) bool
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler
	serde.Message

	// Equal returns true when both objects are similar.
	Equal(other Signature) bool
}

// PublicKeyFactory is a factory to create public keys.
type PublicKeyFactory interface {
	serde.Factory

	// PublicKeyOf populates the public key associated to the data if
	// appropriate, otherwise it returns an error.
	PublicKeyOf(serde.Context, []byte) (PublicKey, error)
}

// SignatureFactory is a factory to create signatures.
type SignatureFactory interface {
	serde.Factory

	// SignatureOf returns a signature associated with the data if
	// appropriate, otherwise it returns an error.
	SignatureOf(serde.Context, []byte) (Signature, error)
}

// Signer provides the primitives to sign and verify signatures.
type Signer interface {
	encoding.BinaryMarshaler

	// GetPublicKeyFactory returns a factory that can deserialize public keys
	// of the same type as the signer.
	GetPublicKeyFactory() PublicKeyFactory

	// GetSignatureFactory returns a factory that can deserialize signatures of
	// the same type as the signer.
	GetSignatureFactory() SignatureFactory

	// GetPublicKey returns the public key of the signer.
	GetPublicKey() PublicKey

	// Sign returns a signature that will match the message for the signer
	// public key.
	Sign(msg []byte) (Signature, error)
}
