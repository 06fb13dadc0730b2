package store

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nightfall-rollup/timber/pkg/timber"
)

var (
	nodePrefix  = []byte("n/")
	metadataKey = []byte("m/metadata")
)

// LevelDBStore keeps nodes under "n/" + big-endian node index, so iteration
// order is index order, and the metadata record under "m/metadata".
// LevelDB handles its own synchronization.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a database at path. An empty path gives an
// in-memory database.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %q: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func nodeKey(nodeIndex uint64) []byte {
	k := make([]byte, len(nodePrefix)+8)
	copy(k, nodePrefix)
	binary.BigEndian.PutUint64(k[len(nodePrefix):], nodeIndex)
	return k
}

func (s *LevelDBStore) GetNode(ctx context.Context, nodeIndex uint64) (timber.Digest, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := s.db.Get(nodeKey(nodeIndex), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get node %d: %w", nodeIndex, err)
	}
	return timber.Digest(data), true, nil
}

func (s *LevelDBStore) PutNode(ctx context.Context, n timber.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put(nodeKey(n.Index), n.Value, nil); err != nil {
		return fmt.Errorf("put node %d: %w", n.Index, err)
	}
	return nil
}

// PutNodes writes all nodes in one batch; either all land or none do.
func (s *LevelDBStore) PutNodes(ctx context.Context, nodes []timber.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, n := range nodes {
		batch.Put(nodeKey(n.Index), n.Value)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("put %d nodes: %w", len(nodes), err)
	}
	return nil
}

func (s *LevelDBStore) ForEachNode(ctx context.Context, fn func(timber.Node) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(nodePrefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := iter.Key()
		if len(key) != len(nodePrefix)+8 {
			return fmt.Errorf("malformed node key %x", key)
		}
		// the iterator reuses its buffers
		value := append(timber.Digest(nil), iter.Value()...)
		n := timber.Node{Index: binary.BigEndian.Uint64(key[len(nodePrefix):]), Value: value}
		if err := fn(n); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate nodes: %w", err)
	}
	return nil
}

func (s *LevelDBStore) GetMetadata(ctx context.Context) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.db.Get(metadataKey, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return DecodeMetadata(data)
}

func (s *LevelDBStore) PutMetadata(ctx context.Context, m *Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := EncodeMetadata(m)
	if err != nil {
		return err
	}
	if err := s.db.Put(metadataKey, raw, nil); err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}
	return nil
}

// Commit puts the nodes and the metadata record in one leveldb.Batch.
func (s *LevelDBStore) Commit(ctx context.Context, nodes []timber.Node, m *Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := EncodeMetadata(m)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, n := range nodes {
		batch.Put(nodeKey(n.Index), n.Value)
	}
	batch.Put(metadataKey, raw)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("commit %d nodes: %w", len(nodes), err)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
