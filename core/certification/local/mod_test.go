package local

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/crypto/bls"
	"go.dedis.ch/certkv/crypto/common"
	"go.dedis.ch/certkv/crypto/ed25519"
	"go.dedis.ch/certkv/internal/testing/fake"
	"go.dedis.ch/certkv/serde/cbor"
)

func TestAuthority_PublishAndFetch(t *testing.T) {
	now := time.Unix(1700000000, 0)

	authority, err := NewAuthority(WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	digest := hashtree.NewLeaf([]byte("root")).Digest()

	err = authority.PublishRoot([]byte("A"), digest)
	require.NoError(t, err)

	cert := fetch(t, authority, []byte("A"))
	require.Nil(t, cert.GetDelegation())

	res := cert.Lookup(certification.CertifiedDataPath([]byte("A"))...)
	require.Equal(t, hashtree.LookupFound, res.Status)
	require.Equal(t, digest[:], res.Value)

	res = cert.Lookup(certification.TimePath()...)
	require.Equal(t, hashtree.LookupFound, res.Status)

	ts, err := certification.DecodeTime(res.Value)
	require.NoError(t, err)
	require.True(t, now.Equal(ts))

	rootKey := loadRootKey(t, authority)
	checkSignature(t, rootKey, cert)

	// Another subject learns that A is certified, but not its data.
	cert = fetch(t, authority, []byte("B"))
	res = cert.Lookup(certification.CertifiedDataPath([]byte("B"))...)
	require.Equal(t, hashtree.LookupAbsent, res.Status)
	res = cert.Lookup(certification.CertifiedDataPath([]byte("A"))...)
	require.Equal(t, hashtree.LookupUnknown, res.Status)
	checkSignature(t, rootKey, cert)
}

func TestAuthority_Cache(t *testing.T) {
	authority, err := NewAuthority(WithSigner(ed25519.NewSigner()))
	require.NoError(t, err)

	first, err := authority.FetchCertificate([]byte("A"))
	require.NoError(t, err)

	second, err := authority.FetchCertificate([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, first, second)

	err = authority.PublishRoot([]byte("A"), hashtree.NewEmpty().Digest())
	require.NoError(t, err)

	third, err := authority.FetchCertificate([]byte("A"))
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}

func TestAuthority_Refresh(t *testing.T) {
	var ticks int64
	tick := func() time.Time {
		return time.Unix(0, atomic.AddInt64(&ticks, 1))
	}

	authority, err := NewAuthority(WithClock(tick), WithRefreshInterval(time.Millisecond))
	require.NoError(t, err)

	before := timeOf(t, fetch(t, authority, []byte("A")))

	require.NoError(t, authority.Refresh())

	after := timeOf(t, fetch(t, authority, []byte("A")))
	require.True(t, after.After(before))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		authority.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return timeOf(t, fetch(t, authority, []byte("A"))).After(after)
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestAuthority_Delegation(t *testing.T) {
	root := bls.NewSigner()
	sub := bls.NewSigner()

	authority, err := NewAuthority(
		WithSigner(root),
		WithDelegation([]byte("subnet"), sub,
			certification.NewRange([]byte("A"), []byte("M"))),
	)
	require.NoError(t, err)

	err = authority.PublishRoot([]byte("B"), hashtree.NewEmpty().Digest())
	require.NoError(t, err)

	cert := fetch(t, authority, []byte("B"))

	delegation := cert.GetDelegation()
	require.NotNil(t, delegation)
	require.Equal(t, []byte("subnet"), delegation.SubnetID)

	inner, err := certification.NewCertificateFactory().
		CertificateOf(cbor.NewContext(), delegation.Certificate)
	require.NoError(t, err)
	require.Nil(t, inner.GetDelegation())

	rootKey := loadRootKey(t, authority)
	require.True(t, rootKey.Equal(root.GetPublicKey()))
	checkSignature(t, rootKey, inner)

	res := inner.Lookup(certification.SubnetKeyPath([]byte("subnet"))...)
	require.Equal(t, hashtree.LookupFound, res.Status)

	subKey, err := common.NewPublicKeyFactory().PublicKeyOf(cbor.NewContext(), res.Value)
	require.NoError(t, err)
	require.True(t, subKey.Equal(sub.GetPublicKey()))
	checkSignature(t, subKey, cert)

	res = inner.Lookup(certification.CanisterRangesPath([]byte("subnet"))...)
	require.Equal(t, hashtree.LookupFound, res.Status)

	ranges, err := certification.DecodeRanges(res.Value)
	require.NoError(t, err)
	require.True(t, certification.InRanges(ranges, []byte("B")))
	require.False(t, certification.InRanges(ranges, []byte("Z")))
}

func TestAuthority_DelegationWithoutRanges(t *testing.T) {
	authority, err := NewAuthority(WithDelegation([]byte("subnet"), bls.NewSigner()))
	require.NoError(t, err)

	err = authority.PublishRoot([]byte("B"), hashtree.NewEmpty().Digest())
	require.NoError(t, err)

	delegation := fetch(t, authority, []byte("B")).GetDelegation()
	require.NotNil(t, delegation)

	inner, err := certification.NewCertificateFactory().
		CertificateOf(cbor.NewContext(), delegation.Certificate)
	require.NoError(t, err)

	res := inner.Lookup(certification.SubnetKeyPath([]byte("subnet"))...)
	require.Equal(t, hashtree.LookupFound, res.Status)

	res = inner.Lookup(certification.CanisterRangesPath([]byte("subnet"))...)
	require.Equal(t, hashtree.LookupAbsent, res.Status)
}

func TestAuthority_Failures(t *testing.T) {
	_, err := NewAuthority(WithSigner(fake.NewBadSigner()))
	require.EqualError(t, err, fake.Err("couldn't sign initial state: signer failed"))

	_, err = NewAuthority(WithDelegation([]byte("subnet"), badKeySigner{}))
	require.EqualError(t, err, fake.Err("couldn't delegate: couldn't serialize subnet key"))

	authority, err := NewAuthority(WithSigner(fake.NewSigner()))
	require.NoError(t, err)

	_, err = authority.GetRootKey()
	require.NoError(t, err)

	authority.rootSigner = badKeySigner{}
	_, err = authority.GetRootKey()
	require.EqualError(t, err, fake.Err("couldn't serialize root key"))

	authority.signer = fake.NewBadSigner()

	err = authority.PublishRoot([]byte("A"), hashtree.NewEmpty().Digest())
	require.EqualError(t, err, fake.Err("couldn't sign state: signer failed"))
	require.Equal(t, 0, authority.canisters.Len())

	require.EqualError(t, authority.Refresh(), fake.Err("signer failed"))
}

func TestAuthority_RunLogsFailures(t *testing.T) {
	logger, check := fake.CheckLog("refresh failed")

	authority, err := NewAuthority(WithSigner(fake.NewSigner()),
		WithRefreshInterval(time.Millisecond), WithLogger(logger))
	require.NoError(t, err)

	authority.signer = fake.NewBadSigner()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	authority.Run(ctx)

	check(t)
}

// -----------------------------------------------------------------------------
// Utility functions

func fetch(t *testing.T, authority *Authority, subject []byte) certification.Certificate {
	data, err := authority.FetchCertificate(subject)
	require.NoError(t, err)

	cert, err := certification.NewCertificateFactory().CertificateOf(cbor.NewContext(), data)
	require.NoError(t, err)

	return cert
}

func timeOf(t *testing.T, cert certification.Certificate) time.Time {
	res := cert.Lookup(certification.TimePath()...)
	require.Equal(t, hashtree.LookupFound, res.Status)

	ts, err := certification.DecodeTime(res.Value)
	require.NoError(t, err)

	return ts
}

func loadRootKey(t *testing.T, authority *Authority) crypto.PublicKey {
	data, err := authority.GetRootKey()
	require.NoError(t, err)

	pubkey, err := common.NewPublicKeyFactory().PublicKeyOf(cbor.NewContext(), data)
	require.NoError(t, err)

	return pubkey
}

func checkSignature(t *testing.T, pubkey crypto.PublicKey, cert certification.Certificate) {
	sig, err := common.NewSignatureFactory().SignatureOf(cbor.NewContext(), cert.GetSignature())
	require.NoError(t, err)

	msg := certification.StateRootMessage(cert.GetTree().Digest())
	require.NoError(t, pubkey.Verify(msg, sig))
}

type badKeySigner struct {
	fake.Signer
}

func (badKeySigner) GetPublicKey() crypto.PublicKey {
	return fake.NewBadPublicKey()
}
