// Package index converts between leaf positions and the flat node numbering
// of a fixed-height binary tree. Node 0 is the root, the children of node n
// are 2n+1 and 2n+2, and the 2^H leaves occupy the last row.
//
// Odd node indices are left children, even node indices are right children.
// Every function panics on an index that cannot exist; callers are expected
// to bound their inputs by the tree height first.
package index

import (
	"fmt"
	"math/bits"
)

// MaxHeight keeps 2^(H+1)-1 node indices inside a uint64.
const MaxHeight = 62

// Width returns the number of leaves of a tree of height h.
func Width(h uint8) uint64 {
	checkHeight(h)
	return uint64(1) << h
}

// NodeCount returns the total number of nodes of a tree of height h.
func NodeCount(h uint8) uint64 {
	checkHeight(h)
	return uint64(1)<<(h+1) - 1
}

// LeafToNode maps a leaf index to its node index.
func LeafToNode(leaf uint64, h uint8) uint64 {
	if leaf >= Width(h) {
		panic(fmt.Sprintf("index: leaf %d out of range for height %d", leaf, h))
	}
	return leaf + Width(h) - 1
}

// NodeToLeaf maps a node on the leaf row back to its leaf index.
func NodeToLeaf(node uint64, h uint8) uint64 {
	first := Width(h) - 1
	if node < first || node >= NodeCount(h) {
		panic(fmt.Sprintf("index: node %d is not a leaf for height %d", node, h))
	}
	return node - first
}

// Sibling returns the other child of node's parent.
func Sibling(node uint64) uint64 {
	if node == 0 {
		panic("index: root has no sibling")
	}
	if node%2 == 1 {
		return node + 1
	}
	return node - 1
}

// Parent returns the parent of node.
func Parent(node uint64) uint64 {
	if node == 0 {
		panic("index: root has no parent")
	}
	if node%2 == 1 {
		return node >> 1
	}
	return (node - 1) >> 1
}

func LeftChild(node uint64) uint64  { return node<<1 + 1 }
func RightChild(node uint64) uint64 { return node<<1 + 2 }

// IsLeft reports whether node is a left child.
func IsLeft(node uint64) bool { return node%2 == 1 }

// Row returns the depth of node counted from the root (root = 0).
func Row(node uint64) int {
	if node == ^uint64(0) {
		panic("index: node out of range")
	}
	return bits.Len64(node+1) - 1
}

// Level returns the height of node above the leaf row (leaves = 0, root = h).
func Level(node uint64, h uint8) int {
	r := Row(node)
	if r > int(h) {
		panic(fmt.Sprintf("index: node %d below leaf row of height %d", node, h))
	}
	return int(h) - r
}

// Path returns the node indices from the root down to node, inclusive:
// [0, ..., Parent(node), node].
func Path(node uint64) []uint64 {
	out := make([]uint64, Row(node)+1)
	for i := len(out) - 1; i > 0; i-- {
		out[i] = node
		node = Parent(node)
	}
	out[0] = 0
	return out
}

// SiblingPath returns the siblings of Path(node) in the same root-first
// order. The root has no sibling and is kept as the leading 0 so that the
// result lines up index for index with Path.
func SiblingPath(node uint64) []uint64 {
	out := make([]uint64, Row(node)+1)
	for i := len(out) - 1; i > 0; i-- {
		out[i] = Sibling(node)
		node = Parent(node)
	}
	return out
}

// Slot returns the frontier level at which the right-most complete subtree
// finishes once leaf has been written. It is 0 for every even leaf.
func Slot(leaf uint64) int {
	return bits.TrailingZeros64(leaf + 1)
}

// SlotScan computes Slot by walking the bits of leaf from the bottom. It
// exists as an independent check of Slot.
func SlotScan(leaf uint64) int {
	s := 0
	for v := leaf + 1; v&1 == 0 && s < 64; v >>= 1 {
		s++
	}
	return s
}

func checkHeight(h uint8) {
	if h > MaxHeight {
		panic(fmt.Sprintf("index: height %d exceeds %d", h, MaxHeight))
	}
}
