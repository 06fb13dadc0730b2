package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-rollup/timber/pkg/timber"
)

// fakeShield answers roots(bytes32) from a map, like the contract's
// public mapping getter.
type fakeShield struct {
	address common.Address
	roots   map[common.Hash]bool
	err     error
	calls   int
}

func (f *fakeShield) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if msg.To == nil || *msg.To != f.address {
		return nil, errors.New("wrong contract")
	}
	if block != nil {
		return nil, errors.New("expected latest block")
	}
	if len(msg.Data) != 4+32 {
		return nil, errors.New("bad calldata")
	}
	arg := common.BytesToHash(msg.Data[4:])
	if f.roots[arg] {
		return arg.Bytes(), nil
	}
	return make([]byte, 32), nil
}

func TestPackRootsCall(t *testing.T) {
	root := timber.Digest(bytes.Repeat([]byte{0xab}, 32))
	data, err := PackRootsCall(root)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256([]byte("roots(bytes32)"))[:4], data[:4])
	require.Equal(t, []byte(root), data[4:])

	// a short root is left-padded like a uint256
	data, err = PackRootsCall(timber.Digest{1, 2})
	require.NoError(t, err)
	require.Equal(t, common.BytesToHash([]byte{1, 2}).Bytes(), data[4:])

	_, err = PackRootsCall(make(timber.Digest, 33))
	require.Error(t, err)
}

func TestContractRegistry(t *testing.T) {
	ctx := context.Background()
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	known := timber.Digest(bytes.Repeat([]byte{0x11}, 32))
	shield := &fakeShield{address: addr, roots: map[common.Hash]bool{common.BytesToHash(known): true}}
	reg := NewContractRegistry(shield, addr)

	ok, err := reg.IsKnownRoot(ctx, known)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = reg.IsKnownRoot(ctx, timber.Digest(bytes.Repeat([]byte{0x22}, 32)))
	require.NoError(t, err)
	require.False(t, ok)

	shield.err = errors.New("node unavailable")
	_, err = reg.IsKnownRoot(ctx, known)
	require.ErrorIs(t, err, shield.err)
	require.Equal(t, 3, shield.calls)
}

func TestStaticRegistry(t *testing.T) {
	ctx := context.Background()
	a := timber.Digest(bytes.Repeat([]byte{1}, 32))
	b := timber.Digest(bytes.Repeat([]byte{2}, 32))
	reg := NewStaticRegistry(a)

	ok, _ := reg.IsKnownRoot(ctx, a)
	require.True(t, ok)
	ok, _ = reg.IsKnownRoot(ctx, b)
	require.False(t, ok)

	reg.Add(b)
	ok, _ = reg.IsKnownRoot(ctx, b)
	require.True(t, ok)
}

func TestDialRejectsBadAddress(t *testing.T) {
	_, _, err := Dial(context.Background(), "ws://localhost:0", "not-an-address")
	require.Error(t, err)
}
