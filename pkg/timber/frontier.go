package timber

import (
	"github.com/nightfall-rollup/timber/pkg/hash"
	"github.com/nightfall-rollup/timber/pkg/index"
)

// NodeFunc receives every interior node an append computes, bottom-up in
// the order they are produced. Returning an error aborts the append.
type NodeFunc func(Node) error

// Append adds leaves to the tree described by st and returns the new state.
// Every interior node written on the way up, the root included, is passed to
// onNode (which may be nil). Leaves themselves are not reported.
//
// Leaves are truncated to p.Width before use. The root is returned at the
// hasher's full width; all other nodes are truncated.
//
// st is never modified. On error the returned state is st and any nodes
// already handed to onNode belong to an incomplete batch.
func Append(p Params, st State, leaves []Digest, onNode NodeFunc) (State, error) {
	if err := p.Validate(); err != nil {
		return st, err
	}
	if err := p.checkFrontier(st); err != nil {
		return st, err
	}

	n := uint64(len(leaves))
	if n == 0 {
		return st, nil
	}
	if capacity := p.Capacity(); n > capacity-st.LeafCount {
		return st, &CapacityError{LeafCount: st.LeafCount, Requested: n, Capacity: capacity}
	}

	next := st.Clone()
	h := int(p.Height)
	if len(next.Frontier) < h+1 {
		grown := make([]Digest, h+1)
		copy(grown, next.Frontier)
		next.Frontier = grown
	}
	f := next.Frontier

	emit := func(idx uint64, v Digest) error {
		if onNode == nil {
			return nil
		}
		if err := onNode(Node{Index: idx, Value: v}); err != nil {
			return &TransientPersistenceError{Op: "put node", Err: err}
		}
		return nil
	}

	var (
		slot      int
		nodeIndex uint64
		value     Digest // truncated
		full      Digest
	)

	for k, leaf := range leaves {
		leafIndex := st.LeafCount + uint64(k)
		value = hash.Truncate(leaf, p.Width)
		full = value
		nodeIndex = index.LeafToNode(leafIndex, p.Height)
		slot = index.Slot(leafIndex)

		// hash up to the level whose value this leaf completes
		for level := 1; level <= slot; level++ {
			full, value = p.combine(nodeIndex, f[level-1], value)
			nodeIndex = index.Parent(nodeIndex)
			if err := emit(nodeIndex, stored(nodeIndex, full, value)); err != nil {
				return st, err
			}
		}
		f[slot] = value
	}

	// finish from the last slot touched to the root
	for level := slot + 1; level <= h; level++ {
		full, value = p.combine(nodeIndex, f[level-1], value)
		nodeIndex = index.Parent(nodeIndex)
		if err := emit(nodeIndex, stored(nodeIndex, full, value)); err != nil {
			return st, err
		}
	}

	next.LeafCount += n
	next.Root = full
	return next, nil
}

// stored picks the persisted form of a node: full width for the root,
// truncated otherwise.
func stored(nodeIndex uint64, full, truncated Digest) Digest {
	if nodeIndex == 0 {
		return full
	}
	return truncated
}

// RootFromFrontier recomputes the root of a non-full tree from its frontier,
// replaying the final climb of the last append. A full tree keeps only the
// truncated root in its top slot, so for it the check is done by VerifyState.
func RootFromFrontier(p Params, st State) (Digest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.checkFrontier(st); err != nil {
		return nil, err
	}
	if st.LeafCount == 0 {
		return nil, nil
	}
	if st.LeafCount == p.Capacity() {
		return nil, configErr("frontier", "a full tree's root cannot be rebuilt from its frontier")
	}

	last := st.LeafCount - 1
	slot := index.Slot(last)
	if slot >= len(st.Frontier) || st.Frontier[slot] == nil {
		return nil, configErr("frontier", "slot %d missing for leaf count %d", slot, st.LeafCount)
	}
	nodeIndex := index.LeafToNode(last, p.Height)
	for i := 0; i < slot; i++ {
		nodeIndex = index.Parent(nodeIndex)
	}

	value := st.Frontier[slot]
	var full Digest
	for level := slot + 1; level <= int(p.Height); level++ {
		full, value = p.combine(nodeIndex, st.Frontier[level-1], value)
		nodeIndex = index.Parent(nodeIndex)
	}
	return full, nil
}

// VerifyState checks that a restored state is internally consistent: the
// frontier has every slot the next append needs and the recorded root
// matches it.
func VerifyState(p Params, st State) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := p.checkFrontier(st); err != nil {
		return err
	}
	switch {
	case st.LeafCount == 0:
		if len(st.Root) != 0 {
			return configErr("root", "empty tree has a root")
		}
		return nil
	case st.LeafCount == p.Capacity():
		h := int(p.Height)
		if len(st.Frontier) <= h || !Digest(hash.Truncate(st.Root, p.Width)).Equal(st.Frontier[h]) {
			return &RootMismatchError{Expected: st.Root, Computed: topSlot(st, h), Reason: "does not match the frontier of the full tree"}
		}
		return nil
	}
	root, err := RootFromFrontier(p, st)
	if err != nil {
		return err
	}
	if !root.Equal(st.Root) {
		return &RootMismatchError{Expected: st.Root, Computed: root}
	}
	return nil
}

func topSlot(st State, h int) Digest {
	if h < len(st.Frontier) {
		return st.Frontier[h]
	}
	return nil
}
