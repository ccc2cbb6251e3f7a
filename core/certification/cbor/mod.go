// Package cbor implements the CBOR format of the certificates.
//
// A certificate is the self-described map
//
//	{"tree": <hash tree>, "signature": bytes, "delegation": {...}}
//
// where the delegation is optional and holds the subnet identifier and the
// encoded certificate of the delegation.
package cbor

import (
	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/hashtree"
	htcbor "go.dedis.ch/certkv/core/hashtree/cbor"
	"go.dedis.ch/certkv/serde"
	scbor "go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"
)

func init() {
	certification.RegisterCertificateFormat(serde.FormatCBOR, certFormat{})
}

// CertificateCBOR is the CBOR message of a certificate.
type CertificateCBOR struct {
	Tree       cbor.RawMessage `cbor:"tree"`
	Signature  []byte          `cbor:"signature"`
	Delegation *DelegationCBOR `cbor:"delegation,omitempty"`
}

// DelegationCBOR is the CBOR message of a delegation.
type DelegationCBOR struct {
	SubnetID    []byte `cbor:"subnet_id"`
	Certificate []byte `cbor:"certificate"`
}

// certFormat is the engine to encode and decode certificates in CBOR.
//
// - implements serde.FormatEngine
type certFormat struct{}

// Encode implements serde.FormatEngine.
func (f certFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	cert, ok := msg.(certification.Certificate)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	tree, err := htcbor.Encode(ctx, cert.GetTree())
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode tree: %v", err)
	}

	m := CertificateCBOR{
		Tree:      tree,
		Signature: nonNil(cert.GetSignature()),
	}

	delegation := cert.GetDelegation()
	if delegation != nil {
		m.Delegation = &DelegationCBOR{
			SubnetID:    nonNil(delegation.SubnetID),
			Certificate: nonNil(delegation.Certificate),
		}
	}

	data, err := ctx.Marshal(cbor.Tag{Number: scbor.SelfDescribeTag, Content: m})
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. Malformed data is reported with a
// *hashtree.DecodeError.
func (f certFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	content, err := htcbor.StripTag(ctx, data)
	if err != nil {
		return nil, err
	}

	m := CertificateCBOR{}

	err = ctx.Unmarshal(content, &m)
	if err != nil {
		return nil, &hashtree.DecodeError{Reason: "invalid certificate", Err: err}
	}

	if len(m.Tree) == 0 {
		return nil, hashtree.NewDecodeError("certificate without tree")
	}

	if m.Signature == nil {
		return nil, hashtree.NewDecodeError("certificate without signature")
	}

	tree, err := htcbor.Decode(ctx, m.Tree, 1)
	if err != nil {
		return nil, err
	}

	var delegation *certification.Delegation

	if m.Delegation != nil {
		if m.Delegation.SubnetID == nil || m.Delegation.Certificate == nil {
			return nil, hashtree.NewDecodeError("incomplete delegation")
		}

		delegation = &certification.Delegation{
			SubnetID:    m.Delegation.SubnetID,
			Certificate: m.Delegation.Certificate,
		}
	}

	return certification.NewCertificate(tree, m.Signature, delegation), nil
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}

	return data
}
