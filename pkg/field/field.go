// Package field converts tree digests to and from BN254 scalar field values
// for circuit witnesses.
package field

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"
)

// Digest2Field reads a big-endian digest as a field witness value. The
// digest must already be below the modulus; MiMC and Poseidon outputs and
// any digest truncated below 32 bytes always are.
func Digest2Field(d []byte) frontend.Variable {
	return new(big.Int).SetBytes(d)
}

// Digests2Field converts a list of digests, preserving order.
func Digests2Field(ds [][]byte) []frontend.Variable {
	elements := make([]frontend.Variable, len(ds))
	for i, d := range ds {
		elements[i] = Digest2Field(d)
	}
	return elements
}

// Bits2Field converts 0/1 values into witness values.
func Bits2Field(bits []uint8) []frontend.Variable {
	out := make([]frontend.Variable, len(bits))
	for i, b := range bits {
		out[i] = int(b)
	}
	return out
}

// Field2Digest renders a witness value as a big-endian digest of exactly
// width bytes. Values wider than width keep their low-order bytes.
func Field2Digest(v frontend.Variable, width int) ([]byte, error) {
	var value *big.Int
	switch x := v.(type) {
	case *big.Int:
		value = x
	case big.Int:
		value = &x
	case int:
		value = big.NewInt(int64(x))
	case fr.Element:
		value = x.BigInt(new(big.Int))
	case string:
		var ok bool
		if value, ok = new(big.Int).SetString(x, 0); !ok {
			return nil, fmt.Errorf("parse field value %q", x)
		}
	default:
		return nil, fmt.Errorf("unsupported field value type %T", v)
	}

	out := make([]byte, width)
	b := value.Bytes()
	if len(b) > width {
		b = b[len(b)-width:]
	}
	copy(out[width-len(b):], b)
	return out, nil
}

// InField reports whether d, read big-endian, is a canonical field element.
func InField(d []byte) bool {
	return new(big.Int).SetBytes(d).Cmp(fr.Modulus()) < 0
}
