// Package certmap implements an ordered map whose content is authenticated by
// a hash tree.
//
// The map is a persistent treap: an insertion copies the nodes along the
// search path and leaves the previous version untouched, so that a reader can
// keep using a version while a writer builds the next one. The priority of a
// node is the SHA-256 of its key, which makes the shape of the treap, and
// therefore its digest, a function of the set of keys only.
//
// The hash tree of a node is
//
//	Fork(left, Fork(Labeled(key, value), right))
//
// where an absent child is elided, and the hash tree of an empty map is Empty.
// Each node caches the digest of its subtree.
package certmap

import (
	"bytes"
	"crypto/sha256"

	"go.dedis.ch/certkv/core/hashtree"
	"golang.org/x/xerrors"
)

// Value is a value of the map. It is either a Leaf holding bytes, or a nested
// map.
type Value interface {
	// Digest returns the digest of the hash tree of the value.
	Digest() hashtree.Digest

	// AsHashTree returns the complete hash tree of the value.
	AsHashTree() hashtree.HashTree

	witness(path [][]byte) (hashtree.HashTree, error)
}

// Leaf is a value holding bytes.
//
// - implements certmap.Value
type Leaf []byte

// Digest implements certmap.Value.
func (l Leaf) Digest() hashtree.Digest {
	return hashtree.NewLeaf(l).Digest()
}

// AsHashTree implements certmap.Value.
func (l Leaf) AsHashTree() hashtree.HashTree {
	return hashtree.NewLeaf(l)
}

func (l Leaf) witness(path [][]byte) (hashtree.HashTree, error) {
	if len(path) > 0 {
		return nil, xerrors.Errorf("path continues after the leaf with %d label(s)", len(path))
	}

	return hashtree.NewLeaf(l), nil
}

// Map is an immutable ordered map. The zero value is an empty map.
//
// - implements certmap.Value
type Map struct {
	root *node
	size int
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{}
}

// Len returns the number of keys of the map.
func (m *Map) Len() int {
	return m.size
}

// Get returns the value of the key if it exists.
func (m *Map) Get(key []byte) (Value, bool) {
	n := m.root

	for n != nil {
		switch c := bytes.Compare(key, n.key); {
		case c == 0:
			return n.value, true
		case c < 0:
			n = n.left
		default:
			n = n.right
		}
	}

	return nil, false
}

// Insert returns a new map with the key set to the value. The map itself is
// not modified.
func (m *Map) Insert(key []byte, value Value) *Map {
	root, added := insert(m.root, append([]byte{}, key...), value)

	next := &Map{root: root, size: m.size}
	if added {
		next.size++
	}

	return next
}

// ForEach calls the function for every key in ascending order. It stops at
// the first error.
func (m *Map) ForEach(fn func(key []byte, value Value) error) error {
	return m.root.walk(fn)
}

// Digest implements certmap.Value. It returns the root digest of the map in
// constant time.
func (m *Map) Digest() hashtree.Digest {
	if m.root == nil {
		return hashtree.NewEmpty().Digest()
	}

	return m.root.digest
}

// AsHashTree implements certmap.Value. It returns the hash tree with every
// node revealed.
func (m *Map) AsHashTree() hashtree.HashTree {
	if m.root == nil {
		return hashtree.NewEmpty()
	}

	return m.root.tree()
}

// Witness returns a hash tree with the same digest as the map, that reveals
// the path. The labels along the search path of the first label are
// revealed, and the value of the first label when it exists is witnessed with
// the rest of the path. Everything else is pruned.
//
// When the first label is absent, the witness reveals its neighbours, which
// proves the absence.
func (m *Map) Witness(path ...[]byte) (hashtree.HashTree, error) {
	return m.witness(path)
}

func (m *Map) witness(path [][]byte) (hashtree.HashTree, error) {
	if len(path) == 0 {
		return m.AsHashTree(), nil
	}

	if m.root == nil {
		return hashtree.NewEmpty(), nil
	}

	tree, err := m.root.witness(path[0], path[1:])
	if err != nil {
		return nil, xerrors.Errorf("label %x: %v", path[0], err)
	}

	return tree, nil
}

type node struct {
	key      []byte
	value    Value
	priority [sha256.Size]byte
	left     *node
	right    *node
	digest   hashtree.Digest
}

func newNode(key []byte, value Value) *node {
	n := &node{
		key:      key,
		value:    value,
		priority: sha256.Sum256(key),
	}

	n.refresh()

	return n
}

func (n *node) clone() *node {
	c := *n
	return &c
}

// refresh recomputes the digest of the node from the children. It must only
// be called on a node that is not shared yet.
func (n *node) refresh() {
	n.digest = compose(n.left.prunedOrNil(), n.labeled(hashtree.NewPruned(n.value.Digest())),
		n.right.prunedOrNil()).Digest()
}

func (n *node) labeled(value hashtree.HashTree) hashtree.HashTree {
	return hashtree.NewLabeled(n.key, value)
}

func (n *node) prunedOrNil() hashtree.HashTree {
	if n == nil {
		return nil
	}

	return hashtree.NewPruned(n.digest)
}

func (n *node) tree() hashtree.HashTree {
	if n == nil {
		return nil
	}

	return compose(n.left.tree(), n.labeled(n.value.AsHashTree()), n.right.tree())
}

func (n *node) witness(label []byte, rest [][]byte) (hashtree.HashTree, error) {
	if n == nil {
		return nil, nil
	}

	switch c := bytes.Compare(label, n.key); {
	case c == 0:
		value, err := n.value.witness(rest)
		if err != nil {
			return nil, err
		}

		return compose(n.left.prunedOrNil(), n.labeled(value), n.right.prunedOrNil()), nil
	case c < 0:
		left, err := n.left.witness(label, rest)
		if err != nil {
			return nil, err
		}

		value := hashtree.NewPruned(n.value.Digest())

		return compose(left, n.labeled(value), n.right.prunedOrNil()), nil
	default:
		right, err := n.right.witness(label, rest)
		if err != nil {
			return nil, err
		}

		value := hashtree.NewPruned(n.value.Digest())

		return compose(n.left.prunedOrNil(), n.labeled(value), right), nil
	}
}

func (n *node) walk(fn func(key []byte, value Value) error) error {
	if n == nil {
		return nil
	}

	err := n.left.walk(fn)
	if err != nil {
		return err
	}

	err = fn(n.key, n.value)
	if err != nil {
		return err
	}

	return n.right.walk(fn)
}

// compose joins the labeled node of a treap node with the trees of its
// children. A nil child is elided.
func compose(left, labeled, right hashtree.HashTree) hashtree.HashTree {
	tree := labeled

	if right != nil {
		tree = hashtree.NewFork(tree, right)
	}

	if left != nil {
		tree = hashtree.NewFork(left, tree)
	}

	return tree
}

// higher returns true when a must be above b in the treap.
func higher(a, b *node) bool {
	c := bytes.Compare(a.priority[:], b.priority[:])
	if c == 0 {
		return bytes.Compare(a.key, b.key) < 0
	}

	return c > 0
}

func insert(n *node, key []byte, value Value) (*node, bool) {
	if n == nil {
		return newNode(key, value), true
	}

	c := bytes.Compare(key, n.key)
	if c == 0 {
		next := n.clone()
		next.value = value
		next.refresh()

		return next, false
	}

	next := n.clone()

	var added bool
	if c < 0 {
		next.left, added = insert(n.left, key, value)

		if higher(next.left, next) {
			return rotateRight(next), added
		}
	} else {
		next.right, added = insert(n.right, key, value)

		if higher(next.right, next) {
			return rotateLeft(next), added
		}
	}

	next.refresh()

	return next, added
}

// rotateRight lifts the left child. Both nodes must be fresh copies.
func rotateRight(n *node) *node {
	pivot := n.left

	n.left = pivot.right
	n.refresh()

	pivot.right = n
	pivot.refresh()

	return pivot
}

// rotateLeft lifts the right child. Both nodes must be fresh copies.
func rotateLeft(n *node) *node {
	pivot := n.right

	n.right = pivot.left
	n.refresh()

	pivot.left = n
	pivot.refresh()

	return pivot
}
