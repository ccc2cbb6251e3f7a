package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/crypto/ed25519"
	"go.dedis.ch/certkv/internal/testing/fake"
	"go.dedis.ch/certkv/serde"
)

func TestPubkeyFormat_Encode(t *testing.T) {
	format := pubkeyFormat{}
	signer := ed25519.NewSigner()

	ctx := fake.NewContextWithFormat(serde.FormatJSON)

	data, err := format.Encode(ctx, signer.GetPublicKey())
	require.NoError(t, err)
	require.Regexp(t, `{"Name":"CURVE-ED25519","Data":"[^"]+"}`, string(data))

	_, err = format.Encode(fake.NewBadContext(), signer.GetPublicKey())
	require.EqualError(t, err, fake.Err("couldn't marshal"))

	_, err = format.Encode(ctx, fake.Message{})
	require.EqualError(t, err, "unsupported message of type 'fake.Message'")
}

func TestPubkeyFormat_Decode(t *testing.T) {
	format := pubkeyFormat{}
	signer := ed25519.NewSigner()

	ctx := fake.NewContextWithFormat(serde.FormatJSON)

	data, err := format.Encode(ctx, signer.GetPublicKey())
	require.NoError(t, err)

	pubkey, err := format.Decode(ctx, data)
	require.NoError(t, err)
	require.True(t, signer.GetPublicKey().Equal(pubkey))

	_, err = format.Decode(ctx, []byte(`{"Name":"CURVE-ED25519","Data":[]}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't create public key: couldn't unmarshal point: ")

	_, err = format.Decode(ctx, []byte(`{"Name":"RSA"}`))
	require.EqualError(t, err, "unexpected algorithm 'RSA'")

	_, err = format.Decode(fake.NewBadContext(), []byte(`{}`))
	require.EqualError(t, err, fake.Err("couldn't unmarshal public key"))
}

func TestSigFormat_Encode(t *testing.T) {
	format := sigFormat{}
	ctx := fake.NewContextWithFormat(serde.FormatJSON)

	sig, err := ed25519.NewSigner().Sign([]byte("ping"))
	require.NoError(t, err)

	data, err := format.Encode(ctx, sig)
	require.NoError(t, err)
	require.Regexp(t, `{"Name":"CURVE-ED25519","Data":"[^"]+"}`, string(data))

	_, err = format.Encode(fake.NewBadContext(), sig)
	require.EqualError(t, err, fake.Err("couldn't marshal"))

	_, err = format.Encode(ctx, fake.Message{})
	require.EqualError(t, err, "unsupported message of type 'fake.Message'")
}

func TestSigFormat_Decode(t *testing.T) {
	format := sigFormat{}
	ctx := fake.NewContextWithFormat(serde.FormatJSON)

	sig, err := ed25519.NewSigner().Sign([]byte("ping"))
	require.NoError(t, err)

	data, err := format.Encode(ctx, sig)
	require.NoError(t, err)

	msg, err := format.Decode(ctx, data)
	require.NoError(t, err)
	require.True(t, sig.Equal(msg.(ed25519.Signature)))

	_, err = format.Decode(ctx, []byte(`{"Name":"RSA"}`))
	require.EqualError(t, err, "unexpected algorithm 'RSA'")

	_, err = format.Decode(fake.NewBadContext(), []byte(`{}`))
	require.EqualError(t, err, fake.Err("couldn't unmarshal signature"))
}
