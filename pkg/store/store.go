// Package store persists tree nodes and tree metadata.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nightfall-rollup/timber/pkg/timber"
)

// ErrNotFound is returned by GetMetadata for a tree that was never written.
var ErrNotFound = errors.New("not found")

// NodeStore is keyed by node index. A node that was never written is
// reported with ok == false.
type NodeStore interface {
	GetNode(ctx context.Context, nodeIndex uint64) (timber.Digest, bool, error)
	PutNode(ctx context.Context, n timber.Node) error
	// PutNodes writes a batch atomically where the backend allows it.
	PutNodes(ctx context.Context, nodes []timber.Node) error
	// ForEachNode visits every stored node in ascending index order.
	ForEachNode(ctx context.Context, fn func(timber.Node) error) error
}

// MetadataStore holds the single metadata record of a tree.
type MetadataStore interface {
	GetMetadata(ctx context.Context) (*Metadata, error)
	// PutMetadata replaces the whole record.
	PutMetadata(ctx context.Context, m *Metadata) error
}

type Store interface {
	NodeStore
	MetadataStore
	// Commit writes nodes and the metadata record together: after an error
	// neither is visible.
	Commit(ctx context.Context, nodes []timber.Node, m *Metadata) error
	Close() error
}

// LatestLeaf records the newest leaf the tree has seen and the block it
// arrived in.
type LatestLeaf struct {
	LeafIndex   uint64 `cbor:"leaf_index"`
	BlockNumber uint64 `cbor:"block_number"`
}

// LatestRecalculation is the state as of the last completed append.
type LatestRecalculation struct {
	Root        timber.Digest   `cbor:"root"`
	LeafCount   uint64          `cbor:"leaf_count"`
	Frontier    []timber.Digest `cbor:"frontier"`
	BlockNumber uint64          `cbor:"block_number"`
}

// Metadata describes one tree: where its leaves come from, how it hashes
// and where it has got to.
type Metadata struct {
	LatestLeaf          LatestLeaf          `cbor:"latest_leaf"`
	LatestRecalculation LatestRecalculation `cbor:"latest_recalculation"`
	ContractAddress     string              `cbor:"contract_address,omitempty"`
	ContractInterface   string              `cbor:"contract_interface,omitempty"`

	HashType string `cbor:"hash_type"`
	Height   uint8  `cbor:"height"`
	Width    int    `cbor:"width"`
}

// State returns the tree state recorded in m.
func (m *Metadata) State() timber.State {
	return timber.State{
		LeafCount: m.LatestRecalculation.LeafCount,
		Frontier:  m.LatestRecalculation.Frontier,
		Root:      m.LatestRecalculation.Root,
	}.Clone()
}

// SetState records st as the latest recalculation at blockNumber.
func (m *Metadata) SetState(st timber.State, blockNumber uint64) {
	st = st.Clone()
	m.LatestRecalculation = LatestRecalculation{
		Root:        st.Root,
		LeafCount:   st.LeafCount,
		Frontier:    st.Frontier,
		BlockNumber: blockNumber,
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// EncodeMetadata serialises m as deterministic CBOR.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	b, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

// DecodeMetadata parses a record written by EncodeMetadata.
func DecodeMetadata(b []byte) (*Metadata, error) {
	var m Metadata
	if err := decMode.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}
