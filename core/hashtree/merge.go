package hashtree

import (
	"bytes"

	"golang.org/x/xerrors"
)

// Merge returns the union of two trees with the same digest. A revealed node
// replaces its pruned counterpart, so that the result reveals every path that
// either tree reveals.
func Merge(a, b HashTree) (HashTree, error) {
	if a.Digest() != b.Digest() {
		return nil, xerrors.Errorf("digests mismatch %v != %v", a.Digest(), b.Digest())
	}

	tree, err := merge(a, b)
	if err != nil {
		return nil, xerrors.Errorf("couldn't merge: %v", err)
	}

	return tree, nil
}

// merge assumes the digests are equal, hence the subtrees at the same
// position have equal digests as well.
func merge(a, b HashTree) (HashTree, error) {
	if _, ok := a.(Pruned); ok {
		return b, nil
	}

	if _, ok := b.(Pruned); ok {
		return a, nil
	}

	switch left := a.(type) {
	case Empty:
		if _, ok := b.(Empty); ok {
			return a, nil
		}
	case Leaf:
		right, ok := b.(Leaf)
		if ok && bytes.Equal(left.Value, right.Value) {
			return a, nil
		}
	case Labeled:
		right, ok := b.(Labeled)
		if ok && bytes.Equal(left.Label, right.Label) {
			sub, err := merge(left.Tree, right.Tree)
			if err != nil {
				return nil, err
			}

			return NewLabeled(left.Label, sub), nil
		}
	case Fork:
		right, ok := b.(Fork)
		if ok {
			l, err := merge(left.Left, right.Left)
			if err != nil {
				return nil, err
			}

			r, err := merge(left.Right, right.Right)
			if err != nil {
				return nil, err
			}

			return NewFork(l, r), nil
		}
	}

	return nil, xerrors.Errorf("structure mismatch between %T and %T", a, b)
}
