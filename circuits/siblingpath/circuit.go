// Package siblingpath is the gnark circuit that proves membership of a leaf
// in a Nightfall MiMC timber tree from a truncated sibling path.
package siblingpath

import (
	"github.com/consensys/gnark/frontend"

	"github.com/nightfall-rollup/timber/config"
)

// Circuit recomputes the root from a leaf and its leaf-first siblings.
// Every intermediate digest is cut to Width bytes before it is hashed
// again; the root keeps the full hash output.
type Circuit struct {
	// Public inputs
	Root frontend.Variable `gnark:"root,public"`

	// Private inputs
	Leaf      frontend.Variable   `gnark:"leaf"`
	Path      []frontend.Variable `gnark:"path"`      // siblings, leaf's sibling first
	OrderBits []frontend.Variable `gnark:"orderBits"` // 0 = sibling on the right, 1 = sibling on the left

	Width int `gnark:"-"`
}

// New sizes a circuit for trees of the given height. A zero width uses the
// MiMC node width.
func New(height, width int) *Circuit {
	if width == 0 {
		width = config.MimcNodeWidth
	}
	return &Circuit{
		Path:      make([]frontend.Variable, height),
		OrderBits: make([]frontend.Variable, height),
		Width:     width,
	}
}

// Define implements the circuit logic.
func (c *Circuit) Define(api frontend.API) error {
	hasher := newMiMC(api)

	cur := c.Leaf
	last := len(c.Path) - 1
	for i := range c.Path {
		sibling := c.Path[i]
		bit := c.OrderBits[i]
		api.AssertIsBoolean(bit)

		hasher.Reset()
		left := api.Select(bit, sibling, cur)
		right := api.Select(bit, cur, sibling)
		hasher.Write(left, right)
		full := hasher.Sum()

		if i == last {
			cur = full
		} else {
			cur = truncate(api, full, c.Width)
		}
	}

	api.AssertIsEqual(cur, c.Root)
	return nil
}

// truncate keeps the low-order width bytes of v.
func truncate(api frontend.API, v frontend.Variable, width int) frontend.Variable {
	if width >= config.DigestSize {
		return v
	}
	bits := api.ToBinary(v)
	return api.FromBinary(bits[:8*width]...)
}
