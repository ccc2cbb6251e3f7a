// Package cbor implements the CBOR format of the hash trees.
//
// A node is an array whose first element is its kind:
//
//	[0]                    Empty
//	[1, left, right]       Fork
//	[2, label, subtree]    Labeled
//	[3, value]             Leaf
//	[4, digest]            Pruned
//
// The root is wrapped with the self-describe tag (55799).
package cbor

import (
	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/serde"
	scbor "go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"
)

const (
	emptyKind uint64 = iota
	forkKind
	labeledKind
	leafKind
	prunedKind
)

func init() {
	hashtree.RegisterTreeFormat(serde.FormatCBOR, treeFormat{})
}

// treeFormat is the engine to encode and decode trees in CBOR.
//
// - implements serde.FormatEngine
type treeFormat struct{}

// Encode implements serde.FormatEngine. It returns the self-described CBOR
// encoding of the tree.
func (f treeFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	tree, ok := msg.(hashtree.HashTree)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	item, err := toItem(tree)
	if err != nil {
		return nil, xerrors.Errorf("couldn't convert tree: %v", err)
	}

	data, err := ctx.Marshal(cbor.Tag{Number: scbor.SelfDescribeTag, Content: item})
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the tree of the data. Any
// malformation is reported as a *hashtree.DecodeError.
func (f treeFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	content, err := stripTag(ctx, data)
	if err != nil {
		return nil, err
	}

	tree, err := Decode(ctx, content, 0)
	if err != nil {
		return nil, err
	}

	return tree, nil
}

// Encode returns the untagged CBOR encoding of the tree so that it can be
// embedded in a larger structure.
func Encode(ctx serde.Context, tree hashtree.HashTree) ([]byte, error) {
	item, err := toItem(tree)
	if err != nil {
		return nil, xerrors.Errorf("couldn't convert tree: %v", err)
	}

	data, err := ctx.Marshal(item)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// StripTag returns the content of the self-describe tag, or the data itself
// when it is not tagged. Any other tag is a *hashtree.DecodeError.
func StripTag(ctx serde.Context, data []byte) ([]byte, error) {
	return stripTag(ctx, data)
}

// Decode decodes the untagged node of the data, which is expected at the
// given depth of a larger structure.
func Decode(ctx serde.Context, data []byte, depth int) (hashtree.HashTree, error) {
	if depth > hashtree.MaxDepth {
		return nil, hashtree.NewDecodeError("depth exceeds %d", hashtree.MaxDepth)
	}

	// Major type 4 is an array. Tags are only allowed on the root.
	if len(data) == 0 || data[0]>>5 != 4 {
		return nil, hashtree.NewDecodeError("node is not an array")
	}

	var items []cbor.RawMessage

	err := ctx.Unmarshal(data, &items)
	if err != nil {
		return nil, &hashtree.DecodeError{Reason: "node is not an array", Err: err}
	}

	// Major type 0 is an unsigned integer.
	if len(items) == 0 || len(items[0]) == 0 || items[0][0]>>5 != 0 {
		return nil, hashtree.NewDecodeError("node without kind")
	}

	var kind uint64

	err = ctx.Unmarshal(items[0], &kind)
	if err != nil {
		return nil, &hashtree.DecodeError{Reason: "invalid kind", Err: err}
	}

	switch kind {
	case emptyKind:
		err = expectArity(kind, items, 1)
		if err != nil {
			return nil, err
		}

		return hashtree.NewEmpty(), nil
	case forkKind:
		err = expectArity(kind, items, 3)
		if err != nil {
			return nil, err
		}

		left, err := Decode(ctx, items[1], depth+1)
		if err != nil {
			return nil, err
		}

		right, err := Decode(ctx, items[2], depth+1)
		if err != nil {
			return nil, err
		}

		return hashtree.NewFork(left, right), nil
	case labeledKind:
		err = expectArity(kind, items, 3)
		if err != nil {
			return nil, err
		}

		label, err := decodeBytes(ctx, items[1])
		if err != nil {
			return nil, err
		}

		sub, err := Decode(ctx, items[2], depth+1)
		if err != nil {
			return nil, err
		}

		return hashtree.NewLabeled(label, sub), nil
	case leafKind:
		err = expectArity(kind, items, 2)
		if err != nil {
			return nil, err
		}

		value, err := decodeBytes(ctx, items[1])
		if err != nil {
			return nil, err
		}

		return hashtree.NewLeaf(value), nil
	case prunedKind:
		err = expectArity(kind, items, 2)
		if err != nil {
			return nil, err
		}

		raw, err := decodeBytes(ctx, items[1])
		if err != nil {
			return nil, err
		}

		digest, err := hashtree.NewDigest(raw)
		if err != nil {
			return nil, &hashtree.DecodeError{Reason: "pruned node", Err: err}
		}

		return hashtree.NewPruned(digest), nil
	default:
		return nil, hashtree.NewDecodeError("unknown node kind %d", kind)
	}
}

func stripTag(ctx serde.Context, data []byte) ([]byte, error) {
	if scbor.HasSelfDescribe(data) {
		return scbor.StripSelfDescribe(data), nil
	}

	// Major type 6 is a tag.
	if len(data) == 0 || data[0]>>5 != 6 {
		return data, nil
	}

	var tag cbor.RawTag

	err := ctx.Unmarshal(data, &tag)
	if err != nil {
		return nil, &hashtree.DecodeError{Reason: "invalid tag", Err: err}
	}

	return nil, hashtree.NewDecodeError("unexpected tag %d", tag.Number)
}

func expectArity(kind uint64, items []cbor.RawMessage, n int) error {
	if len(items) != n {
		return hashtree.NewDecodeError("node of kind %d has %d elements instead of %d",
			kind, len(items), n)
	}

	return nil
}

func decodeBytes(ctx serde.Context, data []byte) ([]byte, error) {
	// Major type 2 is a byte string.
	if len(data) == 0 || data[0]>>5 != 2 {
		return nil, hashtree.NewDecodeError("byte string expected")
	}

	var buffer []byte

	err := ctx.Unmarshal(data, &buffer)
	if err != nil {
		return nil, &hashtree.DecodeError{Reason: "invalid byte string", Err: err}
	}

	if buffer == nil {
		buffer = []byte{}
	}

	return buffer, nil
}

func toItem(tree hashtree.HashTree) (interface{}, error) {
	switch node := tree.(type) {
	case hashtree.Empty:
		return []interface{}{emptyKind}, nil
	case hashtree.Fork:
		left, err := toItem(node.Left)
		if err != nil {
			return nil, err
		}

		right, err := toItem(node.Right)
		if err != nil {
			return nil, err
		}

		return []interface{}{forkKind, left, right}, nil
	case hashtree.Labeled:
		sub, err := toItem(node.Tree)
		if err != nil {
			return nil, err
		}

		return []interface{}{labeledKind, nonNil(node.Label), sub}, nil
	case hashtree.Leaf:
		return []interface{}{leafKind, nonNil(node.Value)}, nil
	case hashtree.Pruned:
		return []interface{}{prunedKind, node.Hash.Bytes()}, nil
	default:
		return nil, xerrors.Errorf("unknown node '%T'", tree)
	}
}

// nonNil makes sure an empty slice is encoded as an empty byte string
// instead of null.
func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}

	return data
}
