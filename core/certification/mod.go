// Package certification defines the certificate issued by a certification
// authority, and the interface of the authority.
//
// A certificate holds the state tree of the authority and the signature of
// its root. The state tree embeds, for each subject, the last digest the
// subject published under ["canister", subject, "certified_data"], and the
// time of the certificate under ["time"]. An authority can delegate the
// signature to a subnet key, in which case the certificate carries the
// certificate of the delegation signed by the root key.
package certification

import (
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/registry"
	"golang.org/x/xerrors"
)

// StateRootTag is the domain separator of the signed state root.
const StateRootTag = "ic-state-root"

var certFormats = registry.NewSimpleRegistry()

// RegisterCertificateFormat registers the engine for the provided format.
func RegisterCertificateFormat(f serde.Format, e serde.FormatEngine) {
	certFormats.Register(f, e)
}

// Authority is the certification authority as seen by the store.
type Authority interface {
	// PublishRoot records the digest as the certified data of the subject.
	PublishRoot(subject []byte, digest hashtree.Digest) error

	// FetchCertificate returns the encoded certificate of the current state
	// of the authority.
	FetchCertificate(subject []byte) ([]byte, error)

	// GetRootKey returns the serialized root public key of the authority.
	GetRootKey() ([]byte, error)
}

// StateRootMessage returns the message signed for the root digest of a state
// tree.
func StateRootMessage(root hashtree.Digest) []byte {
	return append(hashtree.DomainSeparator(StateRootTag), root[:]...)
}

// CertifiedDataPath returns the path of the certified data of the subject.
func CertifiedDataPath(subject []byte) [][]byte {
	return [][]byte{[]byte("canister"), subject, []byte("certified_data")}
}

// TimePath returns the path of the time of the certificate.
func TimePath() [][]byte {
	return [][]byte{[]byte("time")}
}

// SubnetKeyPath returns the path of the public key of a subnet.
func SubnetKeyPath(subnetID []byte) [][]byte {
	return [][]byte{[]byte("subnet"), subnetID, []byte("public_key")}
}

// CanisterRangesPath returns the path of the subject ranges a subnet is
// allowed to certify.
func CanisterRangesPath(subnetID []byte) [][]byte {
	return [][]byte{[]byte("subnet"), subnetID, []byte("canister_ranges")}
}

// Delegation is the delegation of the root key to a subnet key.
type Delegation struct {
	SubnetID    []byte
	Certificate []byte
}

// Certificate is a signed state tree.
//
// - implements serde.Message
type Certificate struct {
	tree       hashtree.HashTree
	signature  []byte
	delegation *Delegation
}

// NewCertificate returns a new certificate. The delegation is optional.
func NewCertificate(tree hashtree.HashTree, signature []byte, delegation *Delegation) Certificate {
	return Certificate{
		tree:       tree,
		signature:  signature,
		delegation: delegation,
	}
}

// GetTree returns the state tree.
func (c Certificate) GetTree() hashtree.HashTree {
	return c.tree
}

// GetSignature returns the signature of the state root.
func (c Certificate) GetSignature() []byte {
	return c.signature
}

// GetDelegation returns the delegation, or nil if the certificate is signed by
// the root key.
func (c Certificate) GetDelegation() *Delegation {
	return c.delegation
}

// Lookup resolves the path in the state tree.
func (c Certificate) Lookup(path ...[]byte) hashtree.LookupResult {
	return hashtree.LookupPath(c.tree, path...)
}

// Serialize implements serde.Message.
func (c Certificate) Serialize(ctx serde.Context) ([]byte, error) {
	format := certFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, c)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode certificate: %v", err)
	}

	return data, nil
}

// CertificateFactory deserializes certificates.
//
// - implements serde.Factory
type CertificateFactory struct{}

// NewCertificateFactory returns a new instance of the factory.
func NewCertificateFactory() CertificateFactory {
	return CertificateFactory{}
}

// Deserialize implements serde.Factory.
func (f CertificateFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.CertificateOf(ctx, data)
}

// CertificateOf returns the certificate of the data. A malformed certificate
// is reported with a *hashtree.DecodeError.
func (f CertificateFactory) CertificateOf(ctx serde.Context, data []byte) (Certificate, error) {
	format := certFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return Certificate{}, xerrors.Errorf("couldn't decode certificate: %w", err)
	}

	cert, ok := msg.(Certificate)
	if !ok {
		return Certificate{}, xerrors.Errorf("invalid certificate of type '%T'", msg)
	}

	return cert, nil
}

// SubjectPublisher publishes the digests of a store as the certified data of
// a subject.
type SubjectPublisher struct {
	authority Authority
	subject   []byte
}

// NewSubjectPublisher returns a publisher for the subject.
func NewSubjectPublisher(authority Authority, subject []byte) SubjectPublisher {
	return SubjectPublisher{
		authority: authority,
		subject:   subject,
	}
}

// PublishRoot forwards the digest to the authority.
func (p SubjectPublisher) PublishRoot(digest hashtree.Digest) error {
	err := p.authority.PublishRoot(p.subject, digest)
	if err != nil {
		return xerrors.Errorf("authority refused digest: %v", err)
	}

	return nil
}
