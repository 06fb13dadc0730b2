package hash

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/minio/sha256-simd"

	"github.com/nightfall-rollup/timber/config"
)

// gnarkMiMCHasher is gnark-crypto's MiMC over BN254. It shares the field
// and width of the Nightfall construction but not its round constants, so
// the two give different trees.
type gnarkMiMCHasher struct{}

func (gnarkMiMCHasher) Name() string   { return MiMCGnark }
func (gnarkMiMCHasher) Size() int      { return config.DigestSize }
func (gnarkMiMCHasher) NodeWidth() int { return config.MimcNodeWidth }

func (gnarkMiMCHasher) Hash(parts ...[]byte) []byte {
	h := mimc.NewMiMC()
	for _, p := range parts {
		b := canonical(p)
		if _, err := h.Write(b[:]); err != nil {
			// canonical always yields a reduced element
			panic(err)
		}
	}
	return h.Sum(nil)
}

// poseidonHasher is the Poseidon2 Merkle-Damgard construction over BN254.
type poseidonHasher struct{}

func (poseidonHasher) Name() string   { return Poseidon }
func (poseidonHasher) Size() int      { return config.DigestSize }
func (poseidonHasher) NodeWidth() int { return config.PoseidonNodeWidth }

func (poseidonHasher) Hash(parts ...[]byte) []byte {
	h := poseidon2.NewMerkleDamgardHasher()
	for _, p := range parts {
		b := canonical(p)
		h.Write(b[:])
	}
	// Sum hands back the hasher's internal state
	return append([]byte(nil), h.Sum(nil)...)
}

// sha256Hasher hashes the concatenation of the parts.
type sha256Hasher struct{}

func (sha256Hasher) Name() string   { return SHA256 }
func (sha256Hasher) Size() int      { return config.DigestSize }
func (sha256Hasher) NodeWidth() int { return config.Sha256NodeWidth }

func (sha256Hasher) Hash(parts ...[]byte) []byte {
	sum := sha256.Sum256(concat(parts))
	return sum[:]
}

// keccakHasher hashes the concatenation of the parts with Keccak-256, as
// used for the per-block transaction hash tree.
type keccakHasher struct{}

func (keccakHasher) Name() string   { return Keccak256 }
func (keccakHasher) Size() int      { return config.DigestSize }
func (keccakHasher) NodeWidth() int { return config.KeccakNodeWidth }

func (keccakHasher) Hash(parts ...[]byte) []byte {
	return crypto.Keccak256(parts...)
}

// canonical reads p as a big-endian integer, reduces it into the scalar
// field and returns the 32-byte encoding. Inputs of up to 31 bytes are
// always below the modulus and come back unchanged apart from padding.
func canonical(p []byte) [fr.Bytes]byte {
	var e fr.Element
	e.SetBytes(p)
	return e.Bytes()
}
