// Package hashtree defines the authenticated tree that is exchanged between
// the certified store, the certification authority and a verifier.
//
// A tree is made of five kinds of nodes. Empty, Fork, Labeled and Leaf reveal
// their content, while Pruned only carries the digest of the subtree it
// replaces. Pruning any subtree keeps the digest of the root unchanged, which
// is what makes a partial tree (a witness) verifiable against a certified
// root.
//
// The digest of a node is the SHA-256 of a domain separator followed by the
// content of the node:
//
//	Empty   = H(ds("ic-hashtree-empty"))
//	Leaf    = H(ds("ic-hashtree-leaf") || value)
//	Labeled = H(ds("ic-hashtree-labeled") || label || digest(sub))
//	Fork    = H(ds("ic-hashtree-fork") || digest(left) || digest(right))
//	Pruned  = the digest it carries
//
// where ds(tag) is one byte holding the length of the tag followed by the tag.
package hashtree

import (
	"encoding/hex"

	"go.dedis.ch/certkv/crypto"
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/registry"
	"golang.org/x/xerrors"
)

// DigestSize is the size in bytes of a digest.
const DigestSize = crypto.DigestSize

const (
	emptyTag   = "ic-hashtree-empty"
	forkTag    = "ic-hashtree-fork"
	labeledTag = "ic-hashtree-labeled"
	leafTag    = "ic-hashtree-leaf"
)

var (
	treeFormats = registry.NewSimpleRegistry()

	hashFactory = crypto.NewSha256Factory()
)

// RegisterTreeFormat registers the engine for the provided format.
func RegisterTreeFormat(f serde.Format, e serde.FormatEngine) {
	treeFormats.Register(f, e)
}

// Digest is the digest of a node.
type Digest [DigestSize]byte

// NewDigest returns the digest of the bytes, which must be exactly DigestSize
// long.
func NewDigest(data []byte) (Digest, error) {
	var d Digest

	if len(data) != DigestSize {
		return d, xerrors.Errorf("invalid digest size %d != %d", len(data), DigestSize)
	}

	copy(d[:], data)

	return d, nil
}

// Bytes returns a copy of the digest as a slice.
func (d Digest) Bytes() []byte {
	return append([]byte{}, d[:]...)
}

// String implements fmt.Stringer. It returns the hexadecimal form of the
// digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// HashTree is a node of the tree. The implementations are Empty, Fork,
// Labeled, Leaf and Pruned.
type HashTree interface {
	serde.Message

	// Digest returns the digest of the subtree rooted at the node.
	Digest() Digest

	isHashTree()
}

// Empty is the node of a tree without any label.
//
// - implements hashtree.HashTree
type Empty struct{}

// NewEmpty returns an empty node.
func NewEmpty() Empty {
	return Empty{}
}

// Digest implements hashtree.HashTree.
func (n Empty) Digest() Digest {
	return sum(emptyTag)
}

// Serialize implements serde.Message.
func (n Empty) Serialize(ctx serde.Context) ([]byte, error) {
	return serialize(ctx, n)
}

func (Empty) isHashTree() {}

// Fork joins two subtrees.
//
// - implements hashtree.HashTree
type Fork struct {
	Left  HashTree
	Right HashTree
}

// NewFork returns a fork of the two subtrees.
func NewFork(left, right HashTree) Fork {
	return Fork{Left: left, Right: right}
}

// Digest implements hashtree.HashTree.
func (n Fork) Digest() Digest {
	left := n.Left.Digest()
	right := n.Right.Digest()

	return sum(forkTag, left[:], right[:])
}

// Serialize implements serde.Message.
func (n Fork) Serialize(ctx serde.Context) ([]byte, error) {
	return serialize(ctx, n)
}

func (Fork) isHashTree() {}

// Labeled attaches a label to a subtree.
//
// - implements hashtree.HashTree
type Labeled struct {
	Label []byte
	Tree  HashTree
}

// NewLabeled returns a labeled node.
func NewLabeled(label []byte, tree HashTree) Labeled {
	return Labeled{Label: label, Tree: tree}
}

// Digest implements hashtree.HashTree.
func (n Labeled) Digest() Digest {
	sub := n.Tree.Digest()

	return sum(labeledTag, n.Label, sub[:])
}

// Serialize implements serde.Message.
func (n Labeled) Serialize(ctx serde.Context) ([]byte, error) {
	return serialize(ctx, n)
}

func (Labeled) isHashTree() {}

// Leaf holds a value.
//
// - implements hashtree.HashTree
type Leaf struct {
	Value []byte
}

// NewLeaf returns a leaf holding the value.
func NewLeaf(value []byte) Leaf {
	return Leaf{Value: value}
}

// Digest implements hashtree.HashTree.
func (n Leaf) Digest() Digest {
	return sum(leafTag, n.Value)
}

// Serialize implements serde.Message.
func (n Leaf) Serialize(ctx serde.Context) ([]byte, error) {
	return serialize(ctx, n)
}

func (Leaf) isHashTree() {}

// Pruned replaces a subtree by its digest.
//
// - implements hashtree.HashTree
type Pruned struct {
	Hash Digest
}

// NewPruned returns a node replacing a subtree of the given digest.
func NewPruned(digest Digest) Pruned {
	return Pruned{Hash: digest}
}

// Digest implements hashtree.HashTree. It returns the digest carried by the
// node.
func (n Pruned) Digest() Digest {
	return n.Hash
}

// Serialize implements serde.Message.
func (n Pruned) Serialize(ctx serde.Context) ([]byte, error) {
	return serialize(ctx, n)
}

func (Pruned) isHashTree() {}

// Prune returns the pruned form of the tree.
func Prune(tree HashTree) Pruned {
	pruned, ok := tree.(Pruned)
	if ok {
		return pruned
	}

	return NewPruned(tree.Digest())
}

// DomainSeparator returns the length-prefixed tag used to separate the
// domains of the digests and of the signed messages.
func DomainSeparator(tag string) []byte {
	return append([]byte{byte(len(tag))}, tag...)
}

// TreeFactory deserializes trees.
//
// - implements serde.Factory
type TreeFactory struct{}

// NewTreeFactory returns a new instance of the factory.
func NewTreeFactory() TreeFactory {
	return TreeFactory{}
}

// Deserialize implements serde.Factory.
func (f TreeFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.TreeOf(ctx, data)
}

// TreeOf returns the tree of the data if appropriate, otherwise an error.
func (f TreeFactory) TreeOf(ctx serde.Context, data []byte) (HashTree, error) {
	format := treeFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode tree: %w", err)
	}

	tree, ok := msg.(HashTree)
	if !ok {
		return nil, xerrors.Errorf("invalid tree of type '%T'", msg)
	}

	return tree, nil
}

func serialize(ctx serde.Context, tree HashTree) ([]byte, error) {
	format := treeFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, tree)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode tree: %v", err)
	}

	return data, nil
}

func sum(tag string, parts ...[]byte) Digest {
	h := hashFactory.New()
	h.Write(DomainSeparator(tag))

	for _, part := range parts {
		h.Write(part)
	}

	var d Digest
	copy(d[:], h.Sum(nil))

	return d
}
