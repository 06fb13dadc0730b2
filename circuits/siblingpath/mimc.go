package siblingpath

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	stdhash "github.com/consensys/gnark/std/hash"

	"github.com/nightfall-rollup/timber/pkg/hash"
)

// mimc is the in-circuit Nightfall MiMC sponge, matching hash.MiMC.
type mimc struct {
	api       frontend.API
	constants []*big.Int
	state     frontend.Variable
}

var _ stdhash.FieldHasher = (*mimc)(nil)

func newMiMC(api frontend.API) *mimc {
	return &mimc{api: api, constants: hash.MiMCRoundConstants(), state: 0}
}

func (h *mimc) Write(data ...frontend.Variable) {
	for _, x := range data {
		h.state = h.api.Add(h.state, x, h.encrypt(x, h.state))
	}
}

func (h *mimc) Sum() frontend.Variable { return h.state }

func (h *mimc) Reset() { h.state = 0 }

func (h *mimc) encrypt(x, k frontend.Variable) frontend.Variable {
	api := h.api
	for _, c := range h.constants {
		t := api.Add(x, c, k)
		t2 := api.Mul(t, t)
		t4 := api.Mul(t2, t2)
		x = api.Mul(t4, t2, t)
	}
	return api.Add(x, k)
}
