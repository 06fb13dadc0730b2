// Package timber implements the append-only commitment tree: incremental
// appends against a frontier, exact hash-count estimation and sibling path
// construction. It performs no I/O of its own; newly computed nodes are
// handed to a callback and stored nodes are read through a lookup function.
package timber

import (
	"bytes"

	"github.com/nightfall-rollup/timber/pkg/hash"
	"github.com/nightfall-rollup/timber/pkg/index"
)

// Digest is a big-endian hash value. Non-root nodes are Width bytes, the
// root is the hasher's full output.
type Digest []byte

// Equal compares two digests byte for byte.
func (d Digest) Equal(o Digest) bool { return bytes.Equal(d, o) }

func (d Digest) clone() Digest {
	if d == nil {
		return nil
	}
	return append(Digest(nil), d...)
}

// Node is a stored tree vertex.
type Node struct {
	Index uint64
	Value Digest
}

// Params fix the shape and hashing of one tree for its whole lifetime.
type Params struct {
	Height uint8
	// Width is the number of low-order bytes kept for non-root nodes.
	Width  int
	Hasher hash.Hasher
}

// NewParams selects a hasher by name. A zero width picks the hasher's
// default node width.
func NewParams(height uint8, hashType string, width int) (Params, error) {
	h, err := hash.New(hashType)
	if err != nil {
		return Params{}, &ConfigurationError{Field: "hash_type", Reason: err.Error()}
	}
	if width == 0 {
		width = h.NodeWidth()
	}
	p := Params{Height: height, Width: width, Hasher: h}
	return p, p.Validate()
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.Hasher == nil {
		return configErr("hash_type", "no hasher")
	}
	if p.Height == 0 || p.Height > index.MaxHeight {
		return configErr("height", "%d not in [1, %d]", p.Height, index.MaxHeight)
	}
	if p.Width < 1 || p.Width > p.Hasher.Size() {
		return configErr("width", "%d not in [1, %d] for %s", p.Width, p.Hasher.Size(), p.Hasher.Name())
	}
	return nil
}

// Capacity is the number of leaves the tree can hold.
func (p Params) Capacity() uint64 { return index.Width(p.Height) }

// State is the incremental tree state: the number of leaves, one cached
// digest per level and the current full-width root. The zero value is the
// empty tree.
type State struct {
	LeafCount uint64
	// Frontier[i] holds the truncated root of the right-most complete
	// subtree at level i. Once the tree is non-empty it has Height+1 slots.
	Frontier []Digest
	Root     Digest
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{LeafCount: s.LeafCount, Root: s.Root.clone()}
	if s.Frontier != nil {
		out.Frontier = make([]Digest, len(s.Frontier))
		for i, d := range s.Frontier {
			out.Frontier[i] = d.clone()
		}
	}
	return out
}

// checkFrontier makes sure every frontier slot the next append could read
// is present. Slot i is read iff bit i of LeafCount is set.
func (p Params) checkFrontier(s State) error {
	h := int(p.Height)
	if len(s.Frontier) > h+1 {
		return configErr("frontier", "length %d exceeds height+1 = %d", len(s.Frontier), h+1)
	}
	if s.LeafCount > p.Capacity() {
		return configErr("leaf_count", "%d exceeds capacity %d", s.LeafCount, p.Capacity())
	}
	for i := 0; i < h; i++ {
		if s.LeafCount>>uint(i)&1 == 0 {
			continue
		}
		if i >= len(s.Frontier) || s.Frontier[i] == nil {
			return configErr("frontier", "slot %d missing for leaf count %d", i, s.LeafCount)
		}
		if len(s.Frontier[i]) != p.Width {
			return configErr("frontier", "slot %d is %d bytes, want %d", i, len(s.Frontier[i]), p.Width)
		}
	}
	return nil
}

// combine hashes the node at nodeIndex with its sibling. A right child
// (even index) pairs with the cached left subtree at its level; a left child
// pairs with the zero digest because nothing to its right exists yet.
func (p Params) combine(nodeIndex uint64, left, value Digest) (full, truncated Digest) {
	if nodeIndex%2 == 0 {
		full = p.Hasher.Hash(left, value)
	} else {
		full = p.Hasher.Hash(value, hash.Zero(p.Width))
	}
	return full, hash.Truncate(full, p.Width)
}
