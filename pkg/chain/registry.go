// Package chain checks tree roots against the set of historic roots the
// on-chain contract has accepted.
package chain

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/nightfall-rollup/timber/pkg/timber"
)

// RootRegistry reports whether a root is one the chain knows about.
type RootRegistry interface {
	IsKnownRoot(ctx context.Context, root timber.Digest) (bool, error)
}

// rootsABI is the public getter of the contract's `mapping(bytes32 => bytes32) roots`.
// A root is recorded by mapping it to itself.
const rootsABI = `[{"type":"function","name":"roots","stateMutability":"view",
  "inputs":[{"name":"","type":"bytes32"}],
  "outputs":[{"name":"","type":"bytes32"}]}]`

var parsedRootsABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(rootsABI))
	if err != nil {
		panic(err)
	}
	return a
}()

// ContractRegistry queries the roots mapping of a deployed contract.
type ContractRegistry struct {
	caller  ethereum.ContractCaller
	address common.Address
}

// NewContractRegistry reads roots from the contract at address through
// caller; an ethclient.Client satisfies the interface.
func NewContractRegistry(caller ethereum.ContractCaller, address common.Address) *ContractRegistry {
	return &ContractRegistry{caller: caller, address: address}
}

// Dial connects to an RPC endpoint and returns a registry for the contract
// at hexAddress, along with the client so the caller can close it.
func Dial(ctx context.Context, url, hexAddress string) (*ContractRegistry, *ethclient.Client, error) {
	if !common.IsHexAddress(hexAddress) {
		return nil, nil, fmt.Errorf("invalid contract address %q", hexAddress)
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewContractRegistry(client, common.HexToAddress(hexAddress)), client, nil
}

// PackRootsCall encodes the calldata of roots(root).
func PackRootsCall(root timber.Digest) ([]byte, error) {
	if len(root) > common.HashLength {
		return nil, fmt.Errorf("root is %d bytes, want at most %d", len(root), common.HashLength)
	}
	return parsedRootsABI.Pack("roots", common.BytesToHash(root))
}

func (r *ContractRegistry) IsKnownRoot(ctx context.Context, root timber.Digest) (bool, error) {
	data, err := PackRootsCall(root)
	if err != nil {
		return false, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call roots on %s: %w", r.address.Hex(), err)
	}
	vals, err := parsedRootsABI.Unpack("roots", out)
	if err != nil {
		return false, fmt.Errorf("unpack roots: %w", err)
	}
	if len(vals) != 1 {
		return false, fmt.Errorf("unpack roots: %d values", len(vals))
	}
	got, ok := vals[0].([32]byte)
	if !ok {
		return false, fmt.Errorf("unpack roots: unexpected %T", vals[0])
	}
	want := common.BytesToHash(root)
	return bytes.Equal(got[:], want[:]), nil
}

// StaticRegistry is an in-process set of known roots.
type StaticRegistry struct {
	mu    sync.RWMutex
	roots map[common.Hash]struct{}
}

func NewStaticRegistry(roots ...timber.Digest) *StaticRegistry {
	s := &StaticRegistry{roots: make(map[common.Hash]struct{})}
	for _, r := range roots {
		s.Add(r)
	}
	return s
}

// Add records root as known.
func (s *StaticRegistry) Add(root timber.Digest) {
	s.mu.Lock()
	s.roots[common.BytesToHash(root)] = struct{}{}
	s.mu.Unlock()
}

func (s *StaticRegistry) IsKnownRoot(_ context.Context, root timber.Digest) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roots[common.BytesToHash(root)]
	return ok, nil
}
