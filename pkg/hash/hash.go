// Package hash provides the node hash functions a tree can be built with.
// A tree picks one by name at construction and keeps it for its lifetime.
package hash

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
)

// Hasher combines an ordered list of byte strings into one digest.
type Hasher interface {
	// Name is the configuration string the hasher is selected by.
	Name() string
	// Size is the native digest width in bytes.
	Size() int
	// NodeWidth is the default number of low-order bytes kept for every
	// non-root node.
	NodeWidth() int
	Hash(parts ...[]byte) []byte
}

const (
	MiMC      = "mimc"
	MiMCGnark = "mimc-gnark"
	SHA256    = "sha256"
	Poseidon  = "poseidon"
	Keccak256 = "keccak256"
)

// ErrUnsupported is returned by New for an unknown hash name.
var ErrUnsupported = errors.New("unsupported hash type")

var registry = map[string]func() Hasher{
	MiMC:      func() Hasher { return mimcHasher{} },
	MiMCGnark: func() Hasher { return gnarkMiMCHasher{} },
	SHA256:    func() Hasher { return sha256Hasher{} },
	Poseidon:  func() Hasher { return poseidonHasher{} },
	Keccak256: func() Hasher { return keccakHasher{} },
}

// New returns the hasher registered under name.
func New(name string) (Hasher, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnsupported, name, Names())
	}
	return mk(), nil
}

// Names lists the supported hash names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Truncate keeps the low-order w bytes of d. Shorter inputs are left-padded
// with zeros so the result is always exactly w bytes.
//
// Cutting a 32-byte digest to w bytes leaves 8w bits of collision and
// preimage resistance. Deployed verifiers hash two truncated children in a
// single round, so the width must match theirs exactly.
func Truncate(d []byte, w int) []byte {
	out := make([]byte, w)
	if len(d) >= w {
		copy(out, d[len(d)-w:])
	} else {
		copy(out[w-len(d):], d)
	}
	return out
}

// Zero returns the all-zero padding digest of width w.
func Zero(w int) []byte { return make([]byte, w) }

// Counting wraps a Hasher and counts Hash invocations.
type Counting struct {
	Hasher
	n atomic.Uint64
}

// NewCounting wraps h.
func NewCounting(h Hasher) *Counting { return &Counting{Hasher: h} }

func (c *Counting) Hash(parts ...[]byte) []byte {
	c.n.Add(1)
	return c.Hasher.Hash(parts...)
}

// Count returns the number of Hash calls so far.
func (c *Counting) Count() uint64 { return c.n.Load() }

// Reset sets the counter back to zero and returns the previous value.
func (c *Counting) Reset() uint64 { return c.n.Swap(0) }

func concat(parts [][]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}
