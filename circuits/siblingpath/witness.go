package siblingpath

import (
	"fmt"

	"github.com/nightfall-rollup/timber/pkg/field"
	"github.com/nightfall-rollup/timber/pkg/timber"
)

// Assign builds a full assignment from a sibling path produced by
// timber.GetSiblingPath. The path must carry its computed root.
func Assign(sp *timber.SiblingPath, width int) (*Circuit, error) {
	if len(sp.Siblings) != len(sp.OrderBits) {
		return nil, fmt.Errorf("path has %d siblings and %d order bits", len(sp.Siblings), len(sp.OrderBits))
	}
	if len(sp.ComputedRoot) == 0 {
		return nil, fmt.Errorf("path for leaf %d has no root", sp.LeafIndex)
	}

	if !field.InField(sp.Leaf) || !field.InField(sp.ComputedRoot) {
		return nil, fmt.Errorf("path for leaf %d is not over field elements", sp.LeafIndex)
	}
	siblings := make([][]byte, len(sp.Siblings))
	for i, s := range sp.Siblings {
		if !field.InField(s) {
			return nil, fmt.Errorf("sibling %d of leaf %d is not a field element", i, sp.LeafIndex)
		}
		siblings[i] = s
	}

	c := New(len(sp.Siblings), width)
	c.Root = field.Digest2Field(sp.ComputedRoot)
	c.Leaf = field.Digest2Field(sp.Leaf)
	copy(c.Path, field.Digests2Field(siblings))
	copy(c.OrderBits, field.Bits2Field(sp.OrderBits))
	return c, nil
}
