package common

import (
	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/crypto/loader"
	"golang.org/x/xerrors"
)

// keyFile is the CBOR document of a private key kept on disk.
type keyFile struct {
	Algorithm string `cbor:"algorithm"`
	Key       []byte `cbor:"key"`
}

// MarshalSigner returns the CBOR document of the private key of the signer,
// tagged with the name of its algorithm.
func MarshalSigner(algorithm string, signer crypto.Signer) ([]byte, error) {
	key, err := signer.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal key: %v", err)
	}

	data, err := cbor.Marshal(keyFile{Algorithm: algorithm, Key: key})
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode key file: %v", err)
	}

	return data, nil
}

// UnmarshalSigner restores the signer of a document created by
// MarshalSigner, and returns the name of its algorithm.
func UnmarshalSigner(data []byte) (crypto.Signer, string, error) {
	var file keyFile

	err := cbor.Unmarshal(data, &file)
	if err != nil {
		return nil, "", xerrors.Errorf("couldn't decode key file: %v", err)
	}

	signer, err := LoadSigner(file.Algorithm, file.Key)
	if err != nil {
		return nil, "", err
	}

	return signer, file.Algorithm, nil
}

// keyGenerator creates the key file of a new random signer.
//
// - implements loader.Generator
type keyGenerator struct {
	algorithm string
}

// NewKeyGenerator returns a generator of key files for the algorithm.
func NewKeyGenerator(algorithm string) loader.Generator {
	return keyGenerator{algorithm: algorithm}
}

// Generate implements loader.Generator.
func (g keyGenerator) Generate() ([]byte, error) {
	signer, err := NewSigner(g.algorithm)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create signer: %v", err)
	}

	return MarshalSigner(g.algorithm, signer)
}
