package hashtree

import (
	"bytes"
	"fmt"
)

// LookupStatus is the outcome of a lookup.
type LookupStatus int

const (
	// LookupFound means the path leads to a leaf whose value is revealed.
	LookupFound LookupStatus = iota
	// LookupAbsent means the tree proves that the path does not exist.
	LookupAbsent
	// LookupUnknown means the path goes through a pruned part of the tree, so
	// that neither presence nor absence can be proven.
	LookupUnknown
	// LookupError means the path does not match the shape of the tree, for
	// instance it ends on an interior node.
	LookupError
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "Found"
	case LookupAbsent:
		return "Absent"
	case LookupUnknown:
		return "Unknown"
	case LookupError:
		return "Error"
	default:
		return fmt.Sprintf("LookupStatus(%d)", int(s))
	}
}

// LookupResult is the status of a lookup and the value when it is found.
type LookupResult struct {
	Status LookupStatus
	Value  []byte
}

// LookupPath resolves the labels one after the other. Each label is searched
// among the labeled nodes reachable through the forks of the current level.
func LookupPath(tree HashTree, path ...[]byte) LookupResult {
	if len(path) == 0 {
		switch node := tree.(type) {
		case Leaf:
			return LookupResult{Status: LookupFound, Value: node.Value}
		case Empty:
			return LookupResult{Status: LookupAbsent}
		case Pruned:
			return LookupResult{Status: LookupUnknown}
		default:
			return LookupResult{Status: LookupError}
		}
	}

	if _, ok := tree.(Leaf); ok {
		return LookupResult{Status: LookupError}
	}

	status, sub := findLabel(path[0], flattenForks(tree, nil))
	if status != LookupFound {
		return LookupResult{Status: status}
	}

	return LookupPath(sub, path[1:]...)
}

// flattenForks appends the nodes of a level in order. Empty nodes are skipped
// as they do not hold any label.
func flattenForks(tree HashTree, nodes []HashTree) []HashTree {
	switch node := tree.(type) {
	case Empty:
		return nodes
	case Fork:
		nodes = flattenForks(node.Left, nodes)
		return flattenForks(node.Right, nodes)
	default:
		return append(nodes, tree)
	}
}

// findLabel searches the label in the nodes of a level. Absence is only
// proven when the label falls between two adjacent labeled nodes or outside
// of the labels at the boundaries of the level. Any other gap involves a node
// that hides its labels.
func findLabel(label []byte, nodes []HashTree) (LookupStatus, HashTree) {
	if len(nodes) == 0 {
		return LookupAbsent, nil
	}

	for _, node := range nodes {
		labeled, ok := node.(Labeled)
		if ok && bytes.Equal(labeled.Label, label) {
			return LookupFound, labeled.Tree
		}
	}

	first, ok := nodes[0].(Labeled)
	if ok && bytes.Compare(label, first.Label) < 0 {
		return LookupAbsent, nil
	}

	last, ok := nodes[len(nodes)-1].(Labeled)
	if ok && bytes.Compare(last.Label, label) < 0 {
		return LookupAbsent, nil
	}

	for i := 0; i+1 < len(nodes); i++ {
		lower, okLower := nodes[i].(Labeled)
		upper, okUpper := nodes[i+1].(Labeled)

		if okLower && okUpper &&
			bytes.Compare(lower.Label, label) < 0 && bytes.Compare(label, upper.Label) < 0 {

			return LookupAbsent, nil
		}
	}

	return LookupUnknown, nil
}
