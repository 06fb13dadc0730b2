package timber

import (
	"context"
	"runtime"
	"sync"

	"github.com/nightfall-rollup/timber/pkg/hash"
)

// ReferenceTree is a tree rebuilt from scratch, level by level, with no
// frontier. It is slow and exists to check the incremental engine against.
type ReferenceTree struct {
	Root   Digest
	Hashes uint64

	params Params
	nodes  map[uint64]Digest
}

// BuildReferenceTree hashes every level of the tree holding leaves. Only
// nodes with at least one real leaf below them exist; a missing right child
// reads as the zero digest.
func BuildReferenceTree(p Params, leaves []Digest) (*ReferenceTree, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if uint64(len(leaves)) > p.Capacity() {
		return nil, &CapacityError{Requested: uint64(len(leaves)), Capacity: p.Capacity()}
	}
	t := &ReferenceTree{params: p, nodes: make(map[uint64]Digest)}
	if len(leaves) == 0 {
		return t, nil
	}

	h := int(p.Height)
	row := make([]Digest, len(leaves))
	for i, l := range leaves {
		row[i] = hash.Truncate(l, p.Width)
		t.nodes[rowStart(h)+uint64(i)] = row[i]
	}

	zero := hash.Zero(p.Width)
	for level := 1; level <= h; level++ {
		next := hashRow(p, row, zero, level == h)
		t.Hashes += uint64(len(next))
		if level == h {
			t.Root = next[0]
		}
		first := rowStart(h - level)
		for j, d := range next {
			t.nodes[first+uint64(j)] = d
		}
		row = next
	}
	return t, nil
}

// parallelRow is the row length from which a row is split across workers.
const parallelRow = 1024

// hashRow hashes adjacent pairs of row into the row above. Pairs are split
// into contiguous spans, one per CPU, once the row is long enough.
func hashRow(p Params, row []Digest, zero Digest, top bool) []Digest {
	next := make([]Digest, (len(row)+1)/2)
	span := func(lo, hi int) {
		for j := lo; j < hi; j++ {
			right := zero
			if 2*j+1 < len(row) {
				right = row[2*j+1]
			}
			full := p.Hasher.Hash(row[2*j], right)
			if top {
				next[j] = full
			} else {
				next[j] = hash.Truncate(full, p.Width)
			}
		}
	}

	numWorkers := runtime.NumCPU()
	if len(next) < parallelRow || numWorkers < 2 {
		span(0, len(next))
		return next
	}
	size := (len(next) + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for lo := 0; lo < len(next); lo += size {
		hi := min(lo+size, len(next))
		wg.Add(1)
		go func() {
			defer wg.Done()
			span(lo, hi)
		}()
	}
	wg.Wait()
	return next
}

// rowStart is the node index of the first node in row r (root row = 0).
func rowStart(r int) uint64 { return uint64(1)<<uint(r) - 1 }

// Node returns the stored value of nodeIndex.
func (t *ReferenceTree) Node(nodeIndex uint64) (Digest, bool) {
	d, ok := t.nodes[nodeIndex]
	return d, ok
}

// NodeCount is the number of nodes that exist.
func (t *ReferenceTree) NodeCount() int { return len(t.nodes) }

// Lookup serves the tree as a NodeLookup.
func (t *ReferenceTree) Lookup(_ context.Context, nodeIndex uint64) (Digest, bool, error) {
	d, ok := t.nodes[nodeIndex]
	return d, ok, nil
}
