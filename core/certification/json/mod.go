// Package json implements the JSON format of the certificates. It is only
// used to display a certificate.
package json

import (
	"encoding/json"

	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/serde"
	"golang.org/x/xerrors"

	// The tree of a certificate is encoded with the JSON format of the trees.
	_ "go.dedis.ch/certkv/core/hashtree/json"
)

func init() {
	certification.RegisterCertificateFormat(serde.FormatJSON, certFormat{})
}

// CertificateJSON is the JSON message of a certificate.
type CertificateJSON struct {
	Tree       json.RawMessage
	Signature  []byte
	Delegation *DelegationJSON `json:",omitempty"`
}

// DelegationJSON is the JSON message of a delegation.
type DelegationJSON struct {
	SubnetID    []byte
	Certificate []byte
}

// certFormat is the engine to encode and decode certificates in JSON.
//
// - implements serde.FormatEngine
type certFormat struct{}

// Encode implements serde.FormatEngine.
func (f certFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	cert, ok := msg.(certification.Certificate)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	tree, err := cert.GetTree().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize tree: %v", err)
	}

	m := CertificateJSON{
		Tree:      tree,
		Signature: cert.GetSignature(),
	}

	if cert.GetDelegation() != nil {
		m.Delegation = &DelegationJSON{
			SubnetID:    cert.GetDelegation().SubnetID,
			Certificate: cert.GetDelegation().Certificate,
		}
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f certFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := CertificateJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, &hashtree.DecodeError{Reason: "invalid certificate", Err: err}
	}

	if len(m.Tree) == 0 {
		return nil, hashtree.NewDecodeError("certificate without tree")
	}

	tree, err := hashtree.NewTreeFactory().TreeOf(ctx, m.Tree)
	if err != nil {
		return nil, xerrors.Errorf("couldn't deserialize tree: %w", err)
	}

	var delegation *certification.Delegation

	if m.Delegation != nil {
		delegation = &certification.Delegation{
			SubnetID:    m.Delegation.SubnetID,
			Certificate: m.Delegation.Certificate,
		}
	}

	return certification.NewCertificate(tree, m.Signature, delegation), nil
}
