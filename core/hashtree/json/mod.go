// Package json implements the JSON format of the hash trees. It is used to
// display witnesses and certificates.
package json

import (
	"go.dedis.ch/certkv/core/hashtree"
	"go.dedis.ch/certkv/serde"
	"golang.org/x/xerrors"
)

func init() {
	hashtree.RegisterTreeFormat(serde.FormatJSON, treeFormat{})
}

// NodeJSON is the JSON message of a node.
type NodeJSON struct {
	Kind   string
	Label  []byte    `json:",omitempty"`
	Value  []byte    `json:",omitempty"`
	Digest []byte    `json:",omitempty"`
	Left   *NodeJSON `json:",omitempty"`
	Right  *NodeJSON `json:",omitempty"`
	Tree   *NodeJSON `json:",omitempty"`
}

// treeFormat is the engine to encode and decode trees in JSON.
//
// - implements serde.FormatEngine
type treeFormat struct{}

// Encode implements serde.FormatEngine.
func (f treeFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	tree, ok := msg.(hashtree.HashTree)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m, err := toJSON(tree)
	if err != nil {
		return nil, xerrors.Errorf("couldn't convert tree: %v", err)
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f treeFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := &NodeJSON{}

	err := ctx.Unmarshal(data, m)
	if err != nil {
		return nil, &hashtree.DecodeError{Reason: "invalid JSON", Err: err}
	}

	tree, err := fromJSON(m, 0)
	if err != nil {
		return nil, err
	}

	return tree, nil
}

func toJSON(tree hashtree.HashTree) (*NodeJSON, error) {
	switch node := tree.(type) {
	case hashtree.Empty:
		return &NodeJSON{Kind: "empty"}, nil
	case hashtree.Fork:
		left, err := toJSON(node.Left)
		if err != nil {
			return nil, err
		}

		right, err := toJSON(node.Right)
		if err != nil {
			return nil, err
		}

		return &NodeJSON{Kind: "fork", Left: left, Right: right}, nil
	case hashtree.Labeled:
		sub, err := toJSON(node.Tree)
		if err != nil {
			return nil, err
		}

		return &NodeJSON{Kind: "labeled", Label: node.Label, Tree: sub}, nil
	case hashtree.Leaf:
		return &NodeJSON{Kind: "leaf", Value: node.Value}, nil
	case hashtree.Pruned:
		return &NodeJSON{Kind: "pruned", Digest: node.Hash.Bytes()}, nil
	default:
		return nil, xerrors.Errorf("unknown node '%T'", tree)
	}
}

func fromJSON(m *NodeJSON, depth int) (hashtree.HashTree, error) {
	if depth > hashtree.MaxDepth {
		return nil, hashtree.NewDecodeError("depth exceeds %d", hashtree.MaxDepth)
	}

	if m == nil {
		return nil, hashtree.NewDecodeError("missing node")
	}

	switch m.Kind {
	case "empty":
		return hashtree.NewEmpty(), nil
	case "fork":
		left, err := fromJSON(m.Left, depth+1)
		if err != nil {
			return nil, err
		}

		right, err := fromJSON(m.Right, depth+1)
		if err != nil {
			return nil, err
		}

		return hashtree.NewFork(left, right), nil
	case "labeled":
		sub, err := fromJSON(m.Tree, depth+1)
		if err != nil {
			return nil, err
		}

		return hashtree.NewLabeled(nonNil(m.Label), sub), nil
	case "leaf":
		return hashtree.NewLeaf(nonNil(m.Value)), nil
	case "pruned":
		digest, err := hashtree.NewDigest(m.Digest)
		if err != nil {
			return nil, &hashtree.DecodeError{Reason: "pruned node", Err: err}
		}

		return hashtree.NewPruned(digest), nil
	default:
		return nil, hashtree.NewDecodeError("unknown node kind '%s'", m.Kind)
	}
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}

	return data
}
