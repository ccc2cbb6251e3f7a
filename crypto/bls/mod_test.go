package bls

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/internal/testing/fake"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/bls"
)

func init() {
	RegisterPublicKeyFormat(fake.GoodFormat, fake.Format{Msg: PublicKey{}})
	RegisterPublicKeyFormat(fake.BadFormat, fake.NewBadFormat())
	RegisterPublicKeyFormat("BAD_TYPE", fake.Format{Msg: fake.Message{}})

	RegisterSignatureFormat(fake.GoodFormat, fake.Format{Msg: Signature{}})
	RegisterSignatureFormat(fake.BadFormat, fake.NewBadFormat())
	RegisterSignatureFormat("BAD_TYPE", fake.Format{Msg: fake.Message{}})
}

func TestPublicKey_New(t *testing.T) {
	signer := NewSigner()

	data, err := signer.GetPublicKey().MarshalBinary()
	require.NoError(t, err)

	pubkey, err := NewPublicKey(data)
	require.NoError(t, err)
	require.True(t, pubkey.Equal(signer.GetPublicKey()))
	require.True(t, pubkey.point.Equal(signer.keyPair.Public))

	_, err = NewPublicKey(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't unmarshal point: ")
}

func TestPublicKey_Verify(t *testing.T) {
	signer := NewSigner()
	msg := []byte("root")

	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	err = signer.GetPublicKey().Verify(msg, sig)
	require.NoError(t, err)

	err = signer.GetPublicKey().Verify([]byte("other root"), sig)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bls verify failed: ")

	err = NewSigner().GetPublicKey().Verify(msg, sig)
	require.Error(t, err)

	err = signer.GetPublicKey().Verify(msg, fake.NewSignature(nil))
	require.EqualError(t, err, "invalid signature type 'fake.Signature'")
}

func TestPublicKey_Equal(t *testing.T) {
	signer := NewSigner()

	require.True(t, signer.GetPublicKey().Equal(signer.GetPublicKey()))
	require.False(t, signer.GetPublicKey().Equal(NewSigner().GetPublicKey()))
	require.False(t, signer.GetPublicKey().Equal(fake.PublicKey{}))
}

func TestPublicKey_Text(t *testing.T) {
	pubkey := PublicKey{point: suite.G2().Point().Base()}

	text, err := pubkey.MarshalText()
	require.NoError(t, err)
	require.Regexp(t, "^bls:[a-f0-9]+$", string(text))
	require.Regexp(t, "^bls:[a-f0-9]{16}$", pubkey.String())

	pubkey.point = badPoint{}
	_, err = pubkey.MarshalText()
	require.EqualError(t, err, fake.Err("couldn't marshal"))
	require.Equal(t, "bls:malformed_point", pubkey.String())
}

func TestPublicKey_Serialize(t *testing.T) {
	pubkey := NewSigner().GetPublicKey()

	data, err := pubkey.Serialize(fake.NewContext())
	require.NoError(t, err)
	require.Equal(t, fake.GetFakeFormatValue(), data)

	_, err = pubkey.Serialize(fake.NewBadContext())
	require.EqualError(t, err, fake.Err("couldn't encode public key"))
}

func TestSignature_Serialize(t *testing.T) {
	sig := NewSignature([]byte{1, 2, 3})

	data, err := sig.Serialize(fake.NewContext())
	require.NoError(t, err)
	require.Equal(t, fake.GetFakeFormatValue(), data)

	_, err = sig.Serialize(fake.NewBadContext())
	require.EqualError(t, err, fake.Err("couldn't encode signature"))
}

func TestSignature_Equal(t *testing.T) {
	sig := NewSignature([]byte{1, 2, 3})

	require.True(t, sig.Equal(NewSignature([]byte{1, 2, 3})))
	require.False(t, sig.Equal(NewSignature([]byte{1, 2})))
	require.False(t, sig.Equal(fake.NewSignature([]byte{1, 2, 3})))

	data, err := sig.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestPublicKeyFactory_PublicKeyOf(t *testing.T) {
	factory := NewPublicKeyFactory()

	msg, err := factory.Deserialize(fake.NewContext(), nil)
	require.NoError(t, err)
	require.IsType(t, PublicKey{}, msg)

	_, err = factory.PublicKeyOf(fake.NewBadContext(), nil)
	require.EqualError(t, err, fake.Err("couldn't decode public key"))

	_, err = factory.PublicKeyOf(fake.NewContextWithFormat("BAD_TYPE"), nil)
	require.EqualError(t, err, "invalid public key of type 'fake.Message'")
}

func TestSignatureFactory_SignatureOf(t *testing.T) {
	factory := NewSignatureFactory()

	msg, err := factory.Deserialize(fake.NewContext(), nil)
	require.NoError(t, err)
	require.IsType(t, Signature{}, msg)

	_, err = factory.SignatureOf(fake.NewBadContext(), nil)
	require.EqualError(t, err, fake.Err("couldn't decode signature"))

	_, err = factory.SignatureOf(fake.NewContextWithFormat("BAD_TYPE"), nil)
	require.EqualError(t, err, "invalid signature of type 'fake.Message'")
}

func TestSigner_Sign(t *testing.T) {
	signer := NewSigner()
	require.IsType(t, publicKeyFactory{}, signer.GetPublicKeyFactory())
	require.IsType(t, signatureFactory{}, signer.GetSignatureFactory())

	f := func(msg []byte) bool {
		sig, err := signer.Sign(msg)
		require.NoError(t, err)

		data, err := sig.MarshalBinary()
		require.NoError(t, err)

		return bls.Verify(suite, signer.keyPair.Public, msg, data) == nil
	}

	err := quick.Check(f, &quick.Config{MaxCount: 10})
	require.NoError(t, err)
}

func TestSigner_MarshalBinary(t *testing.T) {
	signer := NewSigner()

	data, err := signer.MarshalBinary()
	require.NoError(t, err)

	restored, err := NewSignerFromBytes(data)
	require.NoError(t, err)
	require.True(t, signer.GetPublicKey().Equal(restored.GetPublicKey()))

	_, err = NewSignerFromBytes([]byte{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "while unmarshaling scalar: ")
}

// -----------------------------------------------------------------------------
// Utility functions

type badPoint struct {
	kyber.Point
}

func (p badPoint) MarshalBinary() ([]byte, error) {
	return nil, fake.GetError()
}
