package timber

import (
	"context"
	"fmt"

	"github.com/nightfall-rollup/timber/pkg/hash"
	"github.com/nightfall-rollup/timber/pkg/index"
)

// NodeLookup reads a stored node. ok is false for a node that was never
// written, which the proof treats as the zero digest.
type NodeLookup func(ctx context.Context, nodeIndex uint64) (d Digest, ok bool, err error)

// SiblingPath is a Merkle inclusion proof.
//
// Siblings and OrderBits are leaf-first: Siblings[0] is the leaf's sibling
// and Siblings[Height-1] is the root's other child. OrderBits[i] is bit i of
// the leaf index; 0 hashes (current, sibling), 1 hashes (sibling, current).
// The root is not part of Siblings.
type SiblingPath struct {
	LeafIndex    uint64
	Leaf         Digest
	Siblings     []Digest
	OrderBits    []uint8
	ComputedRoot Digest
}

// RootFirst returns the path as [root, sibling at row 1, ..., leaf's
// sibling], the layout the on-chain verifier and older clients consume.
func (sp *SiblingPath) RootFirst() []Digest {
	out := make([]Digest, 0, len(sp.Siblings)+1)
	out = append(out, sp.ComputedRoot)
	for i := len(sp.Siblings) - 1; i >= 0; i-- {
		out = append(out, sp.Siblings[i])
	}
	return out
}

// GetSiblingPath builds the proof for leafIndex from stored nodes and checks
// it twice: the stored leaf must equal expectedLeaf (after truncation), and
// the recombined root must equal root.
func GetSiblingPath(ctx context.Context, p Params, leafIndex uint64, expectedLeaf Digest, lookup NodeLookup, root Digest) (*SiblingPath, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if leafIndex >= p.Capacity() {
		return nil, fmt.Errorf("leaf %d outside tree of height %d", leafIndex, p.Height)
	}

	node := index.LeafToNode(leafIndex, p.Height)
	want := Digest(hash.Truncate(expectedLeaf, p.Width))
	leaf, ok, err := lookup(ctx, node)
	if err != nil {
		return nil, &TransientPersistenceError{Op: fmt.Sprintf("get leaf %d", leafIndex), Err: err}
	}
	if !ok {
		return nil, &StructuralMismatchError{LeafIndex: leafIndex, Expected: want}
	}
	if !leaf.Equal(want) {
		return nil, &StructuralMismatchError{LeafIndex: leafIndex, Expected: want, Stored: leaf}
	}

	sp := &SiblingPath{
		LeafIndex: leafIndex,
		Leaf:      leaf,
		Siblings:  make([]Digest, p.Height),
		OrderBits: make([]uint8, p.Height),
	}
	for level := 0; level < int(p.Height); level++ {
		sib := index.Sibling(node)
		d, ok, err := lookup(ctx, sib)
		if err != nil {
			return nil, &TransientPersistenceError{Op: fmt.Sprintf("get node %d", sib), Err: err}
		}
		if !ok {
			d = hash.Zero(p.Width)
		}
		sp.Siblings[level] = d
		sp.OrderBits[level] = uint8(leafIndex >> uint(level) & 1)
		node = index.Parent(node)
	}

	sp.ComputedRoot = recombine(p, sp.Leaf, sp.Siblings, sp.OrderBits)
	if !sp.ComputedRoot.Equal(root) {
		return sp, &RootMismatchError{Expected: root, Computed: sp.ComputedRoot}
	}
	return sp, nil
}

// VerifySiblingPath recomputes the root from a proof without touching
// storage and reports whether it equals root.
func VerifySiblingPath(p Params, sp *SiblingPath, root Digest) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	if len(sp.Siblings) != int(p.Height) || len(sp.OrderBits) != int(p.Height) {
		return false, fmt.Errorf("path has %d siblings and %d order bits, want %d", len(sp.Siblings), len(sp.OrderBits), p.Height)
	}
	for i, b := range sp.OrderBits {
		if b > 1 || uint64(b) != sp.LeafIndex>>uint(i)&1 {
			return false, fmt.Errorf("order bit %d is %d, leaf index %d says %d", i, b, sp.LeafIndex, sp.LeafIndex>>uint(i)&1)
		}
	}
	leaf := Digest(hash.Truncate(sp.Leaf, p.Width))
	return recombine(p, leaf, sp.Siblings, sp.OrderBits).Equal(root), nil
}

func recombine(p Params, leaf Digest, siblings []Digest, orderBits []uint8) Digest {
	cur := leaf
	last := len(siblings) - 1
	for level, sib := range siblings {
		var full Digest
		if orderBits[level] == 0 {
			full = p.Hasher.Hash(cur, sib)
		} else {
			full = p.Hasher.Hash(sib, cur)
		}
		if level == last {
			return full
		}
		cur = hash.Truncate(full, p.Width)
	}
	return cur
}
