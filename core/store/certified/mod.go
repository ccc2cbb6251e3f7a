// Package certified implements the two-level authenticated store of the
// records. The first level holds the collections (for instance "user"), and
// each collection maps an index to the encoded record.
//
// The store has a single writer. Every mutation builds a new immutable
// version, publishes its root digest and only then makes it visible to the
// readers, so that a reader never observes a version whose root is unknown to
// the certification authority.
package certified

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/core/store/certmap"
	"golang.org/x/xerrors"
)

// IndexSize is the size in bytes of the label of an index.
const IndexSize = 8

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = xerrors.New("record not found")

	promRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "certkv_store_records",
		Help: "number of records in the certified store",
	})

	promPublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certkv_store_publish_failures_total",
		Help: "number of mutations rejected because the root couldn't be published",
	})
)

func init() {
	certkv.PromCollectors = append(certkv.PromCollectors, promRecords, promPublishFailures)
}

// Publisher receives the root digest of every new version of the store.
type Publisher interface {
	PublishRoot(digest hashtree.Digest) error
}

// Option is the type of the options to create a store.
type Option func(*Store)

// WithPublisher sets the publisher of the root digests. By default, the
// digests are not published.
func WithPublisher(p Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithLogger sets the logger of the store.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store is the two-level authenticated store.
type Store struct {
	sync.Mutex

	current   atomic.Value
	publisher Publisher
	logger    zerolog.Logger
}

// NewStore returns a new empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		publisher: noPublisher{},
		logger:    certkv.Logger.With().Str("component", "store").Logger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.current.Store(Snapshot{root: certmap.NewMap()})

	return s
}

// EncodeIndex returns the label of the index.
func EncodeIndex(index uint64) []byte {
	label := make([]byte, IndexSize)
	binary.BigEndian.PutUint64(label, index)

	return label
}

// DecodeIndex returns the index of the label.
func DecodeIndex(label []byte) (uint64, error) {
	if len(label) != IndexSize {
		return 0, xerrors.Errorf("invalid index size %d", len(label))
	}

	return binary.BigEndian.Uint64(label), nil
}

// Insert adds the value to the collection under the next index and returns
// the index. The indexes start at 1 and are shared by the collections of the
// store.
func (s *Store) Insert(top []byte, value []byte) (uint64, error) {
	return s.InsertAndCommit(top, value, nil)
}

// Commit persists a record before its version is published. An error cancels
// the mutation.
type Commit func(key, value []byte) error

// InsertAndCommit is like Insert, but it calls the commit function once the
// index is known and before the root is published. When it fails, the
// version is dropped and the index stays available.
func (s *Store) InsertAndCommit(top, value []byte, commit Commit) (uint64, error) {
	s.Lock()
	defer s.Unlock()

	snap := s.Snapshot()
	index := snap.index + 1

	err := s.apply(snap, top, EncodeIndex(index), value, index, commit)
	if err != nil {
		return 0, xerrors.Errorf("couldn't insert: %v", err)
	}

	return index, nil
}

// Set sets the value of the key in the collection. A key of IndexSize bytes is
// considered as an index and moves the counter forward when it is higher.
func (s *Store) Set(top, key, value []byte) error {
	s.Lock()
	defer s.Unlock()

	snap := s.Snapshot()
	index := snap.index

	if len(key) == IndexSize {
		i, _ := DecodeIndex(key)
		if i > index {
			index = i
		}
	}

	err := s.apply(snap, top, key, value, index, nil)
	if err != nil {
		return xerrors.Errorf("couldn't set: %v", err)
	}

	return nil
}

// Get returns the value of the key in the collection of the current version,
// or ErrNotFound.
func (s *Store) Get(top, key []byte) ([]byte, error) {
	return s.Snapshot().Get(top, key)
}

// Witness returns the witness of the paths in the current version.
func (s *Store) Witness(paths ...[][]byte) (hashtree.HashTree, error) {
	return s.Snapshot().Witness(paths...)
}

// RootDigest returns the root digest of the current version.
func (s *Store) RootDigest() hashtree.Digest {
	return s.Snapshot().RootDigest()
}

// AsHashTree returns the complete hash tree of the current version.
func (s *Store) AsHashTree() hashtree.HashTree {
	return s.Snapshot().AsHashTree()
}

// Len returns the number of records of the current version.
func (s *Store) Len() int {
	return s.Snapshot().Len()
}

// Index returns the last index assigned by the store.
func (s *Store) Index() uint64 {
	return s.Snapshot().Index()
}

// Snapshot returns the current version. It never blocks, and the version is
// never modified.
func (s *Store) Snapshot() Snapshot {
	return s.current.Load().(Snapshot)
}

// apply builds the next version, commits the record, publishes its root and
// makes it current. The writer lock must be held.
func (s *Store) apply(snap Snapshot, top, key, value []byte, index uint64, commit Commit) error {
	var collection *certmap.Map

	v, found := snap.root.Get(top)
	if found {
		var ok bool

		collection, ok = v.(*certmap.Map)
		if !ok {
			return xerrors.Errorf("'%s' is not a collection", top)
		}
	} else {
		collection = certmap.NewMap()
	}

	collection = collection.Insert(key, certmap.Leaf(append([]byte{}, value...)))

	next := Snapshot{
		root:  snap.root.Insert(top, collection),
		index: index,
		size:  snap.size - previousLen(v, found) + collection.Len(),
	}

	if commit != nil {
		err := commit(key, value)
		if err != nil {
			return xerrors.Errorf("couldn't commit: %v", err)
		}
	}

	err := s.publisher.PublishRoot(next.RootDigest())
	if err != nil {
		promPublishFailures.Inc()
		return xerrors.Errorf("couldn't publish root: %v", err)
	}

	s.current.Store(next)
	promRecords.Set(float64(next.size))

	s.logger.Debug().
		Str("root", next.RootDigest().String()).
		Uint64("index", next.index).
		Msg("new version")

	return nil
}

func previousLen(v certmap.Value, found bool) int {
	if !found {
		return 0
	}

	m, ok := v.(*certmap.Map)
	if !ok {
		return 0
	}

	return m.Len()
}

// Snapshot is an immutable version of the store.
type Snapshot struct {
	root  *certmap.Map
	index uint64
	size  int
}

// Get returns the value of the key in the collection, or ErrNotFound.
func (s Snapshot) Get(top, key []byte) ([]byte, error) {
	v, found := s.root.Get(top)
	if !found {
		return nil, ErrNotFound
	}

	collection, ok := v.(*certmap.Map)
	if !ok {
		return nil, xerrors.Errorf("'%s' is not a collection", top)
	}

	v, found = collection.Get(key)
	if !found {
		return nil, ErrNotFound
	}

	leaf, ok := v.(certmap.Leaf)
	if !ok {
		return nil, xerrors.Errorf("unexpected value of type '%T'", v)
	}

	return append([]byte{}, leaf...), nil
}

// Witness returns a witness revealing every path, merged in a single tree with
// the digest of the version.
func (s Snapshot) Witness(paths ...[][]byte) (hashtree.HashTree, error) {
	if len(paths) == 0 {
		return hashtree.Prune(s.root.AsHashTree()), nil
	}

	var witness hashtree.HashTree

	for _, path := range paths {
		tree, err := s.root.Witness(path...)
		if err != nil {
			return nil, xerrors.Errorf("couldn't build witness: %v", err)
		}

		if witness == nil {
			witness = tree
			continue
		}

		witness, err = hashtree.Merge(witness, tree)
		if err != nil {
			return nil, xerrors.Errorf("couldn't merge witnesses: %v", err)
		}
	}

	return witness, nil
}

// RootDigest returns the root digest of the version.
func (s Snapshot) RootDigest() hashtree.Digest {
	return s.root.Digest()
}

// AsHashTree returns the complete hash tree of the version.
func (s Snapshot) AsHashTree() hashtree.HashTree {
	return s.root.AsHashTree()
}

// Len returns the number of records of the version.
func (s Snapshot) Len() int {
	return s.size
}

// Index returns the last index assigned in the version.
func (s Snapshot) Index() uint64 {
	return s.index
}

// ForEach calls the function for every record of the collection, in the order
// of the keys.
func (s Snapshot) ForEach(top []byte, fn func(key, value []byte) error) error {
	v, found := s.root.Get(top)
	if !found {
		return nil
	}

	collection, ok := v.(*certmap.Map)
	if !ok {
		return xerrors.Errorf("'%s' is not a collection", top)
	}

	return collection.ForEach(func(key []byte, value certmap.Value) error {
		leaf, ok := value.(certmap.Leaf)
		if !ok {
			return xerrors.Errorf("unexpected value of type '%T'", value)
		}

		return fn(key, leaf)
	})
}

type noPublisher struct{}

func (noPublisher) PublishRoot(hashtree.Digest) error {
	return nil
}
