// Package verify implements the verification of a certified value.
//
// A client receives a value, the certificate of the authority and a witness
// built by the store. The verifier accepts the value only when every step
// passes, in order:
//
//  1. the certificate is signed by the trusted root key, directly or through
//     a delegation;
//  2. the time of the certificate is close enough to the current time;
//  3. the certificate holds the certified data of the subject;
//  4. the digest of the witness is the certified data;
//  5. the witness reveals the value at the path.
//
// The first failing step stops the verification and its error is returned.
package verify

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/crypto/common"
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"

	// Certificates and witnesses are received in CBOR.
	_ "go.dedis.ch/certkv/core/certification/cbor"
	_ "go.dedis.ch/certkv/core/hashtree/cbor"
)

// DefaultMaxSkew is the default tolerance between the time of a certificate
// and the current time.
const DefaultMaxSkew = 5 * time.Minute

var promVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "certkv_verifications_total",
	Help: "number of verifications by result",
}, []string{"result"})

func init() {
	certkv.PromCollectors = append(certkv.PromCollectors, promVerifications)
}

// EqualFunc compares the expected value with the value revealed by the
// witness.
type EqualFunc func(expected, witnessed []byte) bool

// Option is the type of the options to create a verifier.
type Option func(*Verifier)

// WithMaxSkew sets the maximum difference, in both directions, between the
// time of a certificate and the current time.
func WithMaxSkew(skew time.Duration) Option {
	return func(v *Verifier) {
		v.maxSkew = skew
	}
}

// WithEqual sets the comparison of the values. By default, the values must be
// the same bytes.
func WithEqual(fn EqualFunc) Option {
	return func(v *Verifier) {
		v.equal = fn
	}
}

// WithLogger sets the logger of the verifier.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// Request holds the inputs of a verification.
type Request struct {
	// Value is the value the client expects at the path.
	Value []byte
	// Certificate is the CBOR encoding of the certificate.
	Certificate []byte
	// Witness is the CBOR encoding of the witness.
	Witness []byte
	// Subject is the identity whose certified data is the root of the store.
	Subject []byte
	// Path is the path of the value in the store.
	Path [][]byte
	// Now is the current time.
	Now time.Time
}

// Verified is the result of a successful verification.
type Verified struct {
	Value         []byte
	CertifiedData hashtree.Digest
	Time          time.Time
}

// Verifier verifies certified values against a trusted root key. It has no
// mutable state and can be shared.
type Verifier struct {
	rootKey   crypto.PublicKey
	maxSkew   time.Duration
	equal     EqualFunc
	context   serde.Context
	certFac   certification.CertificateFactory
	treeFac   hashtree.TreeFactory
	pubkeyFac crypto.PublicKeyFactory
	sigFac    crypto.SignatureFactory
	logger    zerolog.Logger
}

// NewVerifier returns a verifier trusting the root key.
func NewVerifier(rootKey crypto.PublicKey, opts ...Option) Verifier {
	v := Verifier{
		rootKey:   rootKey,
		maxSkew:   DefaultMaxSkew,
		equal:     bytes.Equal,
		context:   cbor.NewContext(),
		certFac:   certification.NewCertificateFactory(),
		treeFac:   hashtree.NewTreeFactory(),
		pubkeyFac: common.NewPublicKeyFactory(),
		sigFac:    common.NewSignatureFactory(),
		logger:    certkv.Logger.With().Str("component", "verifier").Logger(),
	}

	for _, opt := range opts {
		opt(&v)
	}

	return v
}

// NewVerifierFromBytes returns a verifier trusting the serialized root key.
// The key must carry the name of its algorithm.
func NewVerifierFromBytes(rootKey []byte, opts ...Option) (Verifier, error) {
	pubkey, err := common.NewPublicKeyFactory().PublicKeyOf(cbor.NewContext(), rootKey)
	if err != nil {
		return Verifier{}, xerrors.Errorf("couldn't load root key: %v", err)
	}

	return NewVerifier(pubkey, opts...), nil
}

// Verify runs the verification steps and returns the verified value, or the
// error of the first step that failed.
func (v Verifier) Verify(req Request) (Verified, error) {
	res, err := v.verify(req)
	if err != nil {
		promVerifications.WithLabelValues("rejected").Inc()

		v.logger.Debug().Err(err).Hex("subject", req.Subject).Msg("verification failed")

		return Verified{}, err
	}

	promVerifications.WithLabelValues("accepted").Inc()

	return res, nil
}

func (v Verifier) verify(req Request) (Verified, error) {
	cert, err := v.certFac.CertificateOf(v.context, req.Certificate)
	if err != nil {
		return Verified{}, newError(KindDecode, err)
	}

	// 1. Signature
	err = v.verifyCertificate(cert, req.Subject)
	if err != nil {
		return Verified{}, err
	}

	// 2. Freshness
	ts, err := v.checkTime(cert, req.Now)
	if err != nil {
		return Verified{}, err
	}

	// 3. Certified data
	data, err := certifiedData(cert, req.Subject)
	if err != nil {
		return Verified{}, err
	}

	// 4. Witness root
	witness, err := v.treeFac.TreeOf(v.context, req.Witness)
	if err != nil {
		return Verified{}, newError(KindDecode, err)
	}

	if witness.Digest() != data {
		return Verified{}, newError(KindWitnessRootMismatch,
			xerrors.Errorf("witness digest %v != certified data %v", witness.Digest(), data))
	}

	// 5. Value
	res := hashtree.LookupPath(witness, req.Path...)
	if res.Status != hashtree.LookupFound {
		return Verified{}, newError(KindValueNotWitnessed,
			xerrors.Errorf("lookup of the path is %v", res.Status))
	}

	if !v.equal(req.Value, res.Value) {
		return Verified{}, newError(KindValueMismatch,
			xerrors.Errorf("value %x != witnessed %x", req.Value, res.Value))
	}

	result := Verified{
		Value:         res.Value,
		CertifiedData: data,
		Time:          ts,
	}

	return result, nil
}

// verifyCertificate checks the signature of the certificate with the root key,
// or with the key of the subnet the root key delegates to.
func (v Verifier) verifyCertificate(cert certification.Certificate, subject []byte) error {
	pubkey := v.rootKey

	delegation := cert.GetDelegation()
	if delegation != nil {
		var err error

		pubkey, err = v.verifyDelegation(*delegation, subject)
		if err != nil {
			return err
		}
	}

	return v.checkSignature(cert, pubkey)
}

func (v Verifier) verifyDelegation(d certification.Delegation, subject []byte) (crypto.PublicKey, error) {
	cert, err := v.certFac.CertificateOf(v.context, d.Certificate)
	if err != nil {
		return nil, newError(KindDecode, xerrors.Errorf("delegation: %w", err))
	}

	if cert.GetDelegation() != nil {
		return nil, newError(KindSignatureInvalid,
			xerrors.New("delegation certificate is itself delegated"))
	}

	err = v.checkSignature(cert, v.rootKey)
	if err != nil {
		return nil, err
	}

	res := cert.Lookup(certification.SubnetKeyPath(d.SubnetID)...)
	if res.Status != hashtree.LookupFound {
		return nil, newError(KindSignatureInvalid,
			xerrors.Errorf("public key of subnet %x is %v", d.SubnetID, res.Status))
	}

	pubkey, err := v.pubkeyFac.PublicKeyOf(v.context, res.Value)
	if err != nil {
		return nil, newError(KindSignatureInvalid,
			xerrors.Errorf("couldn't load subnet key: %v", err))
	}

	res = cert.Lookup(certification.CanisterRangesPath(d.SubnetID)...)

	switch res.Status {
	case hashtree.LookupAbsent:
		// The subnet is not restricted.
	case hashtree.LookupFound:
		ranges, err := certification.DecodeRanges(res.Value)
		if err != nil {
			return nil, newError(KindSignatureInvalid, err)
		}

		if !certification.InRanges(ranges, subject) {
			return nil, newError(KindSignatureInvalid,
				xerrors.Errorf("subject %x is not in the ranges of subnet %x", subject, d.SubnetID))
		}
	default:
		return nil, newError(KindSignatureInvalid,
			xerrors.Errorf("ranges of subnet %x are %v", d.SubnetID, res.Status))
	}

	return pubkey, nil
}

func (v Verifier) checkSignature(cert certification.Certificate, pubkey crypto.PublicKey) error {
	sig, err := v.sigFac.SignatureOf(v.context, cert.GetSignature())
	if err != nil {
		return newError(KindSignatureInvalid, xerrors.Errorf("couldn't load signature: %v", err))
	}

	msg := certification.StateRootMessage(cert.GetTree().Digest())

	err = pubkey.Verify(msg, sig)
	if err != nil {
		return newError(KindSignatureInvalid, err)
	}

	return nil
}

func (v Verifier) checkTime(cert certification.Certificate, now time.Time) (time.Time, error) {
	res := cert.Lookup(certification.TimePath()...)
	if res.Status != hashtree.LookupFound {
		return time.Time{}, newError(KindStaleOrFuture,
			xerrors.Errorf("time of the certificate is %v", res.Status))
	}

	ts, err := certification.DecodeTime(res.Value)
	if err != nil {
		return time.Time{}, newError(KindStaleOrFuture, err)
	}

	skew := now.Sub(ts)
	if skew > v.maxSkew || skew < -v.maxSkew {
		return time.Time{}, newError(KindStaleOrFuture,
			xerrors.Errorf("certificate time %v is %v away from %v",
				ts.UTC().Format(time.RFC3339), skew, now.UTC().Format(time.RFC3339)))
	}

	return ts, nil
}

func certifiedData(cert certification.Certificate, subject []byte) (hashtree.Digest, error) {
	res := cert.Lookup(certification.CertifiedDataPath(subject)...)
	if res.Status != hashtree.LookupFound {
		return hashtree.Digest{}, newError(KindCertifiedDataMissing,
			xerrors.Errorf("certified data of %x is %v", subject, res.Status))
	}

	digest, err := hashtree.NewDigest(res.Value)
	if err != nil {
		return hashtree.Digest{}, newError(KindCertifiedDataMissing, err)
	}

	return digest, nil
}
