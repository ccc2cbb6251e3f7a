// Package local implements a certification authority that runs in the same
// process as the store.
//
// The authority keeps a state tree with the certified data of every subject
// and the current time, and signs its root. When it is created with a
// delegation, the state tree is signed by a subnet key and the certificate
// carries a second certificate, signed by the root key, that vouches for the
// subnet key and the range of subjects it is allowed to certify.
//
// The certificates are cached until the state changes. A refresh loop can
// re-sign the state periodically so that the time of the certificates stays
// within the skew tolerated by the verifiers.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/core/store/certmap"
	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/crypto/bls"
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"

	// Certificates are always served in CBOR.
	_ "go.dedis.ch/certkv/core/certification/cbor"
)

// DefaultRefreshInterval is the default interval between two signatures of
// the refresh loop.
const DefaultRefreshInterval = time.Minute

var (
	labelCanister      = []byte("canister")
	labelCertifiedData = []byte("certified_data")
	labelTime          = []byte("time")
	labelSubnet        = []byte("subnet")
	labelPublicKey     = []byte("public_key")
	labelRanges        = []byte("canister_ranges")

	promSignatures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certkv_authority_signatures_total",
		Help: "number of state trees signed by the local authority",
	})
)

func init() {
	certkv.PromCollectors = append(certkv.PromCollectors, promSignatures)
}

// Option is the type of the options to create an authority.
type Option func(*template)

type template struct {
	signer   crypto.Signer
	subnet   *subnet
	clock    func() time.Time
	interval time.Duration
	logger   zerolog.Logger
}

type subnet struct {
	id     []byte
	signer crypto.Signer
	ranges []certification.Range
}

// WithSigner sets the root signer of the authority. By default, a random BLS
// signer is created.
func WithSigner(signer crypto.Signer) Option {
	return func(tmpl *template) {
		tmpl.signer = signer
	}
}

// WithDelegation makes the authority sign its state with the subnet signer.
// The delegation restricts the subnet to the ranges of subjects.
func WithDelegation(id []byte, signer crypto.Signer, ranges ...certification.Range) Option {
	return func(tmpl *template) {
		tmpl.subnet = &subnet{
			id:     id,
			signer: signer,
			ranges: ranges,
		}
	}
}

// WithClock sets the source of the time of the certificates.
func WithClock(clock func() time.Time) Option {
	return func(tmpl *template) {
		tmpl.clock = clock
	}
}

// WithRefreshInterval sets the interval of the refresh loop.
func WithRefreshInterval(interval time.Duration) Option {
	return func(tmpl *template) {
		tmpl.interval = interval
	}
}

// WithLogger sets the logger of the authority.
func WithLogger(logger zerolog.Logger) Option {
	return func(tmpl *template) {
		tmpl.logger = logger
	}
}

// Authority is a certification authority that signs its state in-process.
//
// - implements certification.Authority
type Authority struct {
	sync.RWMutex

	context    serde.Context
	rootSigner crypto.Signer
	signer     crypto.Signer
	delegation *certification.Delegation
	clock      func() time.Time
	interval   time.Duration
	logger     zerolog.Logger

	// canisters maps a subject to its certified data.
	canisters *certmap.Map
	state     *certmap.Map
	signature []byte

	cacheLock sync.Mutex
	cache     map[string][]byte
}

// NewAuthority creates a new authority with an empty state signed at the
// current time.
func NewAuthority(opts ...Option) (*Authority, error) {
	tmpl := template{
		clock:    time.Now,
		interval: DefaultRefreshInterval,
		logger:   certkv.Logger.With().Str("component", "authority").Logger(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	if tmpl.signer == nil {
		tmpl.signer = bls.NewSigner()
	}

	a := &Authority{
		context:    cbor.NewContext(),
		rootSigner: tmpl.signer,
		signer:     tmpl.signer,
		clock:      tmpl.clock,
		interval:   tmpl.interval,
		logger:     tmpl.logger,
		canisters:  certmap.NewMap(),
		cache:      make(map[string][]byte),
	}

	if tmpl.subnet != nil {
		delegation, err := a.delegate(*tmpl.subnet)
		if err != nil {
			return nil, xerrors.Errorf("couldn't delegate: %v", err)
		}

		a.signer = tmpl.subnet.signer
		a.delegation = delegation
	}

	err := a.sign()
	if err != nil {
		return nil, xerrors.Errorf("couldn't sign initial state: %v", err)
	}

	return a, nil
}

// GetRootKey implements certification.Authority. It returns the CBOR
// serialization of the root public key, which carries the name of its
// algorithm.
func (a *Authority) GetRootKey() ([]byte, error) {
	data, err := a.rootSigner.GetPublicKey().Serialize(a.context)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize root key: %v", err)
	}

	return data, nil
}

// PublishRoot implements certification.Authority. It records the digest as
// the certified data of the subject and signs the new state.
func (a *Authority) PublishRoot(subject []byte, digest hashtree.Digest) error {
	a.Lock()
	defer a.Unlock()

	data := certmap.NewMap().Insert(labelCertifiedData, certmap.Leaf(digest.Bytes()))

	prev := a.canisters
	a.canisters = a.canisters.Insert(subject, data)

	err := a.sign()
	if err != nil {
		a.canisters = prev
		return xerrors.Errorf("couldn't sign state: %v", err)
	}

	a.logger.Debug().
		Hex("subject", subject).
		Str("digest", digest.String()).
		Msg("certified data updated")

	return nil
}

// FetchCertificate implements certification.Authority. It returns the CBOR
// certificate that reveals the certified data of the subject and the time.
func (a *Authority) FetchCertificate(subject []byte) ([]byte, error) {
	a.RLock()
	defer a.RUnlock()

	a.cacheLock.Lock()
	defer a.cacheLock.Unlock()

	data, found := a.cache[string(subject)]
	if found {
		return data, nil
	}

	witness, err := witness(a.state,
		certification.CertifiedDataPath(subject),
		certification.TimePath())
	if err != nil {
		return nil, xerrors.Errorf("couldn't build witness: %v", err)
	}

	cert := certification.NewCertificate(witness, a.signature, a.delegation)

	data, err = cert.Serialize(a.context)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize certificate: %v", err)
	}

	a.cache[string(subject)] = data

	return data, nil
}

// Refresh signs the current state with the current time.
func (a *Authority) Refresh() error {
	a.Lock()
	defer a.Unlock()

	return a.sign()
}

// Run refreshes the signature of the state at every interval until the
// context is done.
func (a *Authority) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", a.interval).Msg("refresh loop started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("refresh loop stopped")
			return
		case <-ticker.C:
			err := a.Refresh()
			if err != nil {
				a.logger.Err(err).Msg("refresh failed")
			}
		}
	}
}

// sign builds the state tree with the current time and signs its root. The
// lock must be held.
func (a *Authority) sign() error {
	state := certmap.NewMap().
		Insert(labelCanister, a.canisters).
		Insert(labelTime, certmap.Leaf(certification.EncodeTime(a.clock())))

	signature, err := signState(a.context, a.signer, state.Digest())
	if err != nil {
		return err
	}

	a.state = state
	a.signature = signature

	a.cacheLock.Lock()
	a.cache = make(map[string][]byte)
	a.cacheLock.Unlock()

	promSignatures.Inc()

	return nil
}

// delegate returns the delegation of the root key to the subnet, which is a
// certificate signed by the root key that reveals the key and the ranges of
// the subnet.
func (a *Authority) delegate(s subnet) (*certification.Delegation, error) {
	pubkey, err := s.signer.GetPublicKey().Serialize(a.context)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize subnet key: %v", err)
	}

	info := certmap.NewMap().Insert(labelPublicKey, certmap.Leaf(pubkey))

	// A subnet without ranges is not restricted.
	if len(s.ranges) > 0 {
		ranges, err := certification.EncodeRanges(s.ranges)
		if err != nil {
			return nil, err
		}

		info = info.Insert(labelRanges, certmap.Leaf(ranges))
	}

	state := certmap.NewMap().
		Insert(labelSubnet, certmap.NewMap().Insert(s.id, info)).
		Insert(labelTime, certmap.Leaf(certification.EncodeTime(a.clock())))

	signature, err := signState(a.context, a.rootSigner, state.Digest())
	if err != nil {
		return nil, err
	}

	tree, err := witness(state,
		certification.SubnetKeyPath(s.id),
		certification.CanisterRangesPath(s.id),
		certification.TimePath())
	if err != nil {
		return nil, xerrors.Errorf("couldn't build witness: %v", err)
	}

	data, err := certification.NewCertificate(tree, signature, nil).Serialize(a.context)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize certificate: %v", err)
	}

	return &certification.Delegation{SubnetID: s.id, Certificate: data}, nil
}

func signState(ctx serde.Context, signer crypto.Signer, root hashtree.Digest) ([]byte, error) {
	sig, err := signer.Sign(certification.StateRootMessage(root))
	if err != nil {
		return nil, xerrors.Errorf("signer failed: %v", err)
	}

	data, err := sig.Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize signature: %v", err)
	}

	return data, nil
}

func witness(state *certmap.Map, paths ...[][]byte) (hashtree.HashTree, error) {
	var tree hashtree.HashTree

	for _, path := range paths {
		w, err := state.Witness(path...)
		if err != nil {
			return nil, err
		}

		if tree == nil {
			tree = w
			continue
		}

		tree, err = hashtree.Merge(tree, w)
		if err != nil {
			return nil, err
		}
	}

	return tree, nil
}
