package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nightfall-rollup/timber/pkg/timber"
)

// MemoryStore keeps everything in maps. Values are copied on the way in and
// out so callers cannot alias stored digests.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[uint64]timber.Digest
	meta  []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[uint64]timber.Digest)}
}

func (s *MemoryStore) GetNode(ctx context.Context, nodeIndex uint64) (timber.Digest, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.nodes[nodeIndex]
	if !ok {
		return nil, false, nil
	}
	return append(timber.Digest(nil), d...), true, nil
}

func (s *MemoryStore) PutNode(ctx context.Context, n timber.Node) error {
	return s.PutNodes(ctx, []timber.Node{n})
}

func (s *MemoryStore) PutNodes(ctx context.Context, nodes []timber.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.nodes[n.Index] = append(timber.Digest(nil), n.Value...)
	}
	return nil
}

func (s *MemoryStore) ForEachNode(ctx context.Context, fn func(timber.Node) error) error {
	s.mu.RLock()
	keys := make([]uint64, 0, len(s.nodes))
	for k := range s.nodes {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, ok, err := s.GetNode(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(timber.Node{Index: k, Value: d}); err != nil {
			return err
		}
	}
	return nil
}

// NodeCount returns the number of stored nodes.
func (s *MemoryStore) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *MemoryStore) GetMetadata(ctx context.Context) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw := s.meta
	s.mu.RUnlock()
	if raw == nil {
		return nil, ErrNotFound
	}
	return DecodeMetadata(raw)
}

func (s *MemoryStore) PutMetadata(ctx context.Context, m *Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := EncodeMetadata(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.meta = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, nodes []timber.Node, m *Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := EncodeMetadata(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.nodes[n.Index] = append(timber.Digest(nil), n.Value...)
	}
	s.meta = raw
	return nil
}

func (s *MemoryStore) Close() error { return nil }
