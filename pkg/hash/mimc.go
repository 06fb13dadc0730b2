package hash

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nightfall-rollup/timber/config"
)

// MiMCRounds is the number of x^7 rounds of the Nightfall MiMC permutation
// over BN254.
const MiMCRounds = 91

// mimcConstants chains Keccak-256 from the seed keccak256("mimc"): round i
// adds keccak applied i+1 times to the seed.
var mimcConstants = sync.OnceValue(func() []fr.Element {
	out := make([]fr.Element, MiMCRounds)
	c := crypto.Keccak256([]byte("mimc"))
	for i := range out {
		c = crypto.Keccak256(c)
		out[i].SetBytes(c)
	}
	return out
})

// MiMCRoundConstants returns the round constants reduced into the scalar
// field, in round order.
func MiMCRoundConstants() []*big.Int {
	cs := mimcConstants()
	out := make([]*big.Int, len(cs))
	for i := range cs {
		out[i] = cs[i].BigInt(new(big.Int))
	}
	return out
}

// mimcHasher is the Nightfall MiMC sponge: each input x is absorbed as
// r = r + x + E_r(x), where E_k is the keyed permutation below. Deployed
// Nightfall contracts and the proving circuit hash tree nodes this way.
type mimcHasher struct{}

func (mimcHasher) Name() string   { return MiMC }
func (mimcHasher) Size() int      { return config.DigestSize }
func (mimcHasher) NodeWidth() int { return config.MimcNodeWidth }

func (mimcHasher) Hash(parts ...[]byte) []byte {
	var r fr.Element
	for _, p := range parts {
		var x fr.Element
		x.SetBytes(p)
		e := mimcEncrypt(&x, &r)
		r.Add(&r, &x).Add(&r, &e)
	}
	b := r.Bytes()
	return b[:]
}

// mimcEncrypt runs the rounds t = x + c_i + k, x = t^7 and adds the key
// once more at the end.
func mimcEncrypt(x, k *fr.Element) fr.Element {
	cs := mimcConstants()
	xx := *x
	var t, t2, t4 fr.Element
	for i := range cs {
		t.Add(&xx, &cs[i]).Add(&t, k)
		t2.Square(&t)
		t4.Square(&t2)
		xx.Mul(&t4, &t2).Mul(&xx, &t)
	}
	xx.Add(&xx, k)
	return xx
}
