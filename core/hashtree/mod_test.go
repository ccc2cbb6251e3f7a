package hashtree

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/internal/testing/fake"
)

func init() {
	RegisterTreeFormat(fake.GoodFormat, fake.Format{Msg: NewEmpty()})
	RegisterTreeFormat(fake.BadFormat, fake.NewBadFormat())
	RegisterTreeFormat("BAD_TYPE", fake.Format{Msg: fake.Message{}})
}

// exampleTree returns the tree
//
//	a -> x -> "hello"
//	  -> y -> "world"
//	b -> "good"
//	c -> (empty)
//	d -> "morning"
func exampleTree() HashTree {
	return NewFork(
		NewFork(
			NewLabeled([]byte("a"), NewFork(
				NewFork(NewLabeled([]byte("x"), NewLeaf([]byte("hello"))), NewEmpty()),
				NewLabeled([]byte("y"), NewLeaf([]byte("world"))),
			)),
			NewLabeled([]byte("b"), NewLeaf([]byte("good"))),
		),
		NewFork(
			NewLabeled([]byte("c"), NewEmpty()),
			NewLabeled([]byte("d"), NewLeaf([]byte("morning"))),
		),
	)
}

func TestHashTree_Digest(t *testing.T) {
	h := sha256.Sum256(append([]byte{17}, "ic-hashtree-empty"...))
	require.Equal(t, Digest(h), NewEmpty().Digest())

	h = sha256.Sum256(append([]byte{16}, "ic-hashtree-leafabc"...))
	require.Equal(t, Digest(h), NewLeaf([]byte("abc")).Digest())

	root := exampleTree().Digest()
	require.Equal(t, "eb5c5b2195e62d996b84c9bcc8259d19a83786a2f59e0878cec84c811f669aa0",
		root.String())
}

func TestHashTree_PruneKeepsDigest(t *testing.T) {
	tree := exampleTree().(Fork)

	pruned := NewFork(Prune(tree.Left), tree.Right)
	require.Equal(t, tree.Digest(), pruned.Digest())

	pruned = NewFork(tree.Left, Prune(tree.Right))
	require.Equal(t, tree.Digest(), pruned.Digest())

	require.Equal(t, Prune(tree), Prune(Prune(tree)))
}

func TestHashTree_DigestIsDeterministic(t *testing.T) {
	f := func(label, value []byte) bool {
		a := NewLabeled(label, NewLeaf(value))
		b := NewLabeled(append([]byte{}, label...), NewLeaf(append([]byte{}, value...)))

		return a.Digest() == b.Digest() && a.Digest() != NewLeaf(value).Digest()
	}

	err := quick.Check(f, nil)
	require.NoError(t, err)
}

func TestDigest_New(t *testing.T) {
	data := make([]byte, DigestSize)
	data[0] = 0xaa

	digest, err := NewDigest(data)
	require.NoError(t, err)
	require.Equal(t, data, digest.Bytes())
	require.Equal(t, "aa"+hex.EncodeToString(make([]byte, DigestSize-1)), digest.String())

	_, err = NewDigest([]byte{1, 2})
	require.EqualError(t, err, "invalid digest size 2 != 32")
}

func TestDomainSeparator(t *testing.T) {
	require.Equal(t, append([]byte{13}, "ic-state-root"...), DomainSeparator("ic-state-root"))
}

func TestLookupPath_Revealed(t *testing.T) {
	tree := exampleTree()

	res := LookupPath(tree, []byte("a"), []byte("x"))
	require.Equal(t, LookupFound, res.Status)
	require.Equal(t, []byte("hello"), res.Value)

	res = LookupPath(tree, []byte("d"))
	require.Equal(t, LookupResult{Status: LookupFound, Value: []byte("morning")}, res)

	// Between two revealed labels, before the first and after the last.
	require.Equal(t, LookupAbsent, LookupPath(tree, []byte("bb")).Status)
	require.Equal(t, LookupAbsent, LookupPath(tree, []byte("0")).Status)
	require.Equal(t, LookupAbsent, LookupPath(tree, []byte("e")).Status)
	require.Equal(t, LookupAbsent, LookupPath(tree, []byte("a"), []byte("z")).Status)

	// Path ends on an empty subtree.
	require.Equal(t, LookupAbsent, LookupPath(tree, []byte("c")).Status)
	require.Equal(t, LookupAbsent, LookupPath(tree, []byte("c"), []byte("x")).Status)

	// Path ends on an interior node, or is longer than the tree.
	require.Equal(t, LookupError, LookupPath(tree, []byte("a")).Status)
	require.Equal(t, LookupError, LookupPath(tree).Status)
	require.Equal(t, LookupError, LookupPath(tree, []byte("b"), []byte("x")).Status)
}

func TestLookupPath_Pruned(t *testing.T) {
	tree := exampleTree().(Fork)

	// Only "c" and "d" are revealed.
	witness := NewFork(Prune(tree.Left), tree.Right)

	require.Equal(t, LookupUnknown, LookupPath(witness, []byte("a"), []byte("x")).Status)
	require.Equal(t, LookupUnknown, LookupPath(witness, []byte("b")).Status)
	require.Equal(t, LookupAbsent, LookupPath(witness, []byte("cc")).Status)
	require.Equal(t, LookupAbsent, LookupPath(witness, []byte("e")).Status)
	require.Equal(t, LookupFound, LookupPath(witness, []byte("d")).Status)

	require.Equal(t, LookupUnknown, LookupPath(Prune(tree), []byte("d")).Status)
	require.Equal(t, LookupUnknown, LookupPath(Prune(tree)).Status)

	// A gap next to a pruned node is never a proof of absence.
	witness = NewFork(
		NewLabeled([]byte("b"), NewLeaf([]byte("good"))),
		NewFork(NewPruned(Digest{}), NewLabeled([]byte("d"), NewLeaf(nil))),
	)
	require.Equal(t, LookupUnknown, LookupPath(witness, []byte("c")).Status)
	require.Equal(t, LookupAbsent, LookupPath(witness, []byte("a")).Status)
	require.Equal(t, LookupAbsent, LookupPath(witness, []byte("e")).Status)
}

func TestLookupPath_EmptyTree(t *testing.T) {
	require.Equal(t, LookupAbsent, LookupPath(NewEmpty()).Status)
	require.Equal(t, LookupAbsent, LookupPath(NewEmpty(), []byte("a")).Status)
	require.Equal(t, LookupError, LookupPath(NewLeaf(nil), []byte("a")).Status)
}

func TestLookupStatus_String(t *testing.T) {
	require.Equal(t, "Found", LookupFound.String())
	require.Equal(t, "Absent", LookupAbsent.String())
	require.Equal(t, "Unknown", LookupUnknown.String())
	require.Equal(t, "Error", LookupError.String())
	require.Equal(t, "LookupStatus(9)", LookupStatus(9).String())
}

func TestMerge(t *testing.T) {
	tree := exampleTree().(Fork)

	a := NewFork(Prune(tree.Left), tree.Right)
	b := NewFork(tree.Left, Prune(tree.Right))

	merged, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, tree, merged)

	merged, err = Merge(a, a)
	require.NoError(t, err)
	require.Equal(t, a, merged)

	merged, err = Merge(Prune(tree), tree)
	require.NoError(t, err)
	require.Equal(t, tree, merged)

	_, err = Merge(a, NewEmpty())
	require.Error(t, err)
	require.Regexp(t, "^digests mismatch", err.Error())

	// Same digest but a different shape can only be forged with a pruned
	// node on one side.
	_, err = Merge(NewLeaf([]byte("a")), NewLeaf([]byte("a")))
	require.NoError(t, err)

	_, err = merge(NewLeaf([]byte("a")), NewEmpty())
	require.EqualError(t, err, "structure mismatch between hashtree.Leaf and hashtree.Empty")
}

func TestHashTree_Serialize(t *testing.T) {
	nodes := []HashTree{NewEmpty(), NewFork(NewEmpty(), NewEmpty()),
		NewLabeled(nil, NewEmpty()), NewLeaf(nil), NewPruned(Digest{})}

	for _, node := range nodes {
		data, err := node.Serialize(fake.NewContext())
		require.NoError(t, err)
		require.Equal(t, fake.GetFakeFormatValue(), data)

		_, err = node.Serialize(fake.NewBadContext())
		require.EqualError(t, err, fake.Err("couldn't encode tree"))
	}
}

func TestTreeFactory_Deserialize(t *testing.T) {
	factory := NewTreeFactory()

	msg, err := factory.Deserialize(fake.NewContext(), nil)
	require.NoError(t, err)
	require.Equal(t, NewEmpty(), msg)

	_, err = factory.TreeOf(fake.NewBadContext(), nil)
	require.EqualError(t, err, fake.Err("couldn't decode tree"))

	_, err = factory.TreeOf(fake.NewContextWithFormat("BAD_TYPE"), nil)
	require.EqualError(t, err, "invalid tree of type 'fake.Message'")
}

func TestDecodeError(t *testing.T) {
	err := NewDecodeError("bad %s", "kind")
	require.EqualError(t, err, "malformed tree: bad kind")
	require.Nil(t, err.Unwrap())

	err = &DecodeError{Reason: "pruned node", Err: fake.GetError()}
	require.EqualError(t, err, fake.Err("malformed tree: pruned node"))
	require.Equal(t, fake.GetError(), err.Unwrap())
}
