package siblingpath

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-rollup/timber/pkg/hash"
)

type mimcCircuit struct {
	A, B frontend.Variable
	Out  frontend.Variable `gnark:",public"`
}

func (c *mimcCircuit) Define(api frontend.API) error {
	h := newMiMC(api)
	h.Write(c.A, c.B)
	api.AssertIsEqual(h.Sum(), c.Out)
	return nil
}

func TestMiMCMatchesNative(t *testing.T) {
	native, err := hash.New(hash.MiMC)
	require.NoError(t, err)

	for _, in := range [][2]int64{{1, 2}, {0, 0}, {7, 1 << 40}} {
		a, b := big.NewInt(in[0]), big.NewInt(in[1])
		out := new(big.Int).SetBytes(native.Hash(a.Bytes(), b.Bytes()))

		err := test.IsSolved(&mimcCircuit{}, &mimcCircuit{A: a, B: b, Out: out}, ecc.BN254.ScalarField())
		require.NoError(t, err, "inputs %v", in)

		err = test.IsSolved(&mimcCircuit{}, &mimcCircuit{A: b, B: a, Out: out}, ecc.BN254.ScalarField())
		require.Error(t, err, "swapped inputs %v", in)
	}
}
