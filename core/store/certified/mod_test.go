package certified

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/core/store/certmap"
	"go.dedis.ch/certkv/internal/testing/fake"
)

var top = []byte("user")

func TestStore_Insert(t *testing.T) {
	store := NewStore()
	require.Equal(t, hashtree.NewEmpty().Digest(), store.RootDigest())

	index, err := store.Insert(top, []byte("alice"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)

	index, err = store.Insert(top, []byte("bob"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), index)

	require.Equal(t, 2, store.Len())
	require.Equal(t, uint64(2), store.Index())

	value, err := store.Get(top, EncodeIndex(1))
	require.NoError(t, err)
	require.Equal(t, []byte("alice"), value)

	_, err = store.Get(top, EncodeIndex(3))
	require.Equal(t, ErrNotFound, err)

	_, err = store.Get([]byte("unknown"), EncodeIndex(1))
	require.Equal(t, ErrNotFound, err)

	require.Equal(t, store.AsHashTree().Digest(), store.RootDigest())
}

func TestStore_IndexesAreScopedToTheInstance(t *testing.T) {
	a := NewStore()
	b := NewStore()

	index, err := a.Insert(top, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)

	index, err = b.Insert(top, []byte("y"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)
}

func TestStore_Set(t *testing.T) {
	store := NewStore()

	err := store.Set(top, EncodeIndex(5), []byte("e"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), store.Index())

	err = store.Set(top, EncodeIndex(2), []byte("b"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), store.Index())

	err = store.Set(top, EncodeIndex(2), []byte("B"))
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	value, err := store.Get(top, EncodeIndex(2))
	require.NoError(t, err)
	require.Equal(t, []byte("B"), value)

	index, err := store.Insert(top, []byte("f"))
	require.NoError(t, err)
	require.Equal(t, uint64(6), index)

	err = store.Set([]byte("config"), []byte("name"), []byte("demo"))
	require.NoError(t, err)
	require.Equal(t, 4, store.Len())
}

func TestStore_PublishBeforeVisible(t *testing.T) {
	pub := &fakePublisher{}
	store := NewStore(WithPublisher(pub))
	pub.store = store

	_, err := store.Insert(top, []byte("alice"))
	require.NoError(t, err)
	require.Len(t, pub.digests, 1)
	require.Equal(t, store.RootDigest(), pub.digests[0])
	require.False(t, pub.visible)
}

func TestStore_PublishFailure(t *testing.T) {
	store := NewStore(WithPublisher(&fakePublisher{err: fake.GetError()}))

	_, err := store.Insert(top, []byte("alice"))
	require.EqualError(t, err, fake.Err("couldn't insert: couldn't publish root"))
	require.Equal(t, 0, store.Len())
	require.Equal(t, uint64(0), store.Index())
	require.Equal(t, hashtree.NewEmpty().Digest(), store.RootDigest())

	err = store.Set(top, EncodeIndex(1), nil)
	require.EqualError(t, err, fake.Err("couldn't set: couldn't publish root"))
}

func TestStore_InsertAndCommit(t *testing.T) {
	pub := &fakePublisher{}
	store := NewStore(WithPublisher(pub))

	var committed [][]byte

	commit := func(key, value []byte) error {
		require.Empty(t, pub.digests)
		committed = append(committed, key)
		return nil
	}

	index, err := store.InsertAndCommit(top, []byte("alice"), commit)
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)
	require.Equal(t, [][]byte{EncodeIndex(1)}, committed)
	require.Len(t, pub.digests, 1)

	failing := func(key, value []byte) error {
		return fake.GetError()
	}

	_, err = store.InsertAndCommit(top, []byte("bob"), failing)
	require.EqualError(t, err, fake.Err("couldn't insert: couldn't commit"))
	require.Len(t, pub.digests, 1)
	require.Equal(t, 1, store.Len())
	require.Equal(t, uint64(1), store.Index())

	_, err = store.Get(top, EncodeIndex(2))
	require.Equal(t, ErrNotFound, err)

	// The index of the cancelled mutation is given to the next one.
	index, err = store.Insert(top, []byte("carol"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), index)
}

func TestStore_NotACollection(t *testing.T) {
	store := NewStore()

	_, err := store.Insert(top, []byte("alice"))
	require.NoError(t, err)

	snap := store.Snapshot()
	snap.root = snap.root.Insert([]byte("flat"), certmap.Leaf("x"))
	store.current.Store(snap)

	_, err = store.Insert([]byte("flat"), []byte("x"))
	require.EqualError(t, err, "couldn't insert: 'flat' is not a collection")

	_, err = store.Get([]byte("flat"), EncodeIndex(1))
	require.EqualError(t, err, "'flat' is not a collection")
}

func TestSnapshot_Isolation(t *testing.T) {
	store := NewStore()

	_, err := store.Insert(top, []byte("alice"))
	require.NoError(t, err)

	snap := store.Snapshot()

	_, err = store.Insert(top, []byte("bob"))
	require.NoError(t, err)

	require.Equal(t, 1, snap.Len())
	require.NotEqual(t, snap.RootDigest(), store.RootDigest())

	_, err = snap.Get(top, EncodeIndex(2))
	require.Equal(t, ErrNotFound, err)

	var keys [][]byte
	err = store.Snapshot().ForEach(top, func(key, value []byte) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, [][]byte{EncodeIndex(1), EncodeIndex(2)}, keys)
}

func TestSnapshot_Witness(t *testing.T) {
	store := NewStore()

	for i := 0; i < 20; i++ {
		_, err := store.Insert(top, []byte{byte(i)})
		require.NoError(t, err)
	}

	snap := store.Snapshot()

	witness, err := snap.Witness([][]byte{top, EncodeIndex(4)}, [][]byte{top, EncodeIndex(15)},
		[][]byte{top, EncodeIndex(99)})
	require.NoError(t, err)
	require.Equal(t, snap.RootDigest(), witness.Digest())

	res := hashtree.LookupPath(witness, top, EncodeIndex(4))
	require.Equal(t, hashtree.LookupFound, res.Status)
	require.Equal(t, []byte{3}, res.Value)

	res = hashtree.LookupPath(witness, top, EncodeIndex(15))
	require.Equal(t, []byte{14}, res.Value)

	res = hashtree.LookupPath(witness, top, EncodeIndex(99))
	require.Equal(t, hashtree.LookupAbsent, res.Status)

	res = hashtree.LookupPath(witness, top, EncodeIndex(10))
	require.Equal(t, hashtree.LookupUnknown, res.Status)

	witness, err = snap.Witness()
	require.NoError(t, err)
	require.Equal(t, hashtree.NewPruned(snap.RootDigest()), witness)

	_, err = store.Witness([][]byte{top, EncodeIndex(1), []byte("more")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't build witness: ")
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	store := NewStore()

	wg := sync.WaitGroup{}
	wg.Add(8)

	for w := 0; w < 4; w++ {
		go func() {
			defer wg.Done()

			for i := 0; i < 50; i++ {
				_, err := store.Insert(top, []byte("record"))
				require.NoError(t, err)
			}
		}()
	}

	for r := 0; r < 4; r++ {
		go func() {
			defer wg.Done()

			for i := 0; i < 50; i++ {
				snap := store.Snapshot()

				witness, err := snap.Witness([][]byte{top, EncodeIndex(snap.Index())})
				require.NoError(t, err)
				require.Equal(t, snap.RootDigest(), witness.Digest())
			}
		}()
	}

	wg.Wait()

	require.Equal(t, 200, store.Len())
	require.Equal(t, uint64(200), store.Index())
}

func TestIndex_EncodeDecode(t *testing.T) {
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, EncodeIndex(258))

	index, err := DecodeIndex(EncodeIndex(258))
	require.NoError(t, err)
	require.Equal(t, uint64(258), index)

	_, err = DecodeIndex([]byte{1})
	require.EqualError(t, err, "invalid index size 1")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakePublisher struct {
	store   *Store
	digests []hashtree.Digest
	visible bool
	err     error
}

func (p *fakePublisher) PublishRoot(digest hashtree.Digest) error {
	if p.err != nil {
		return p.err
	}

	p.digests = append(p.digests, digest)

	if p.store != nil && p.store.RootDigest() == digest {
		p.visible = true
	}

	return nil
}
