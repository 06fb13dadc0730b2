package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nightfall-rollup/timber/pkg/timber"
)

// Snapshot format, all integers big-endian:
//
//	[4]byte magic "TMBR" | uint32(version)
//	uint32(len(metadata)) | metadata (CBOR)
//	uint64(node count)
//	For each node, ascending index:
//	  uint64(index) | uint8(len(value)) | value
//
// A tree without metadata writes a zero-length metadata record.

var snapshotMagic = [4]byte{'T', 'M', 'B', 'R'}

const snapshotVersion = 1

// maxSnapshotMetadata bounds the metadata record a snapshot may declare. A
// height-62 frontier of 32-byte digests encodes to well under 4 KiB.
const maxSnapshotMetadata = 1 << 20

// WriteSnapshot dumps every node and the metadata record of src to w.
func WriteSnapshot(ctx context.Context, w io.Writer, src Store) error {
	var meta []byte
	m, err := src.GetMetadata(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return fmt.Errorf("read metadata: %w", err)
	default:
		if meta, err = EncodeMetadata(m); err != nil {
			return err
		}
	}

	// count first so the header can carry it
	var count uint64
	if err := src.ForEachNode(ctx, func(timber.Node) error {
		count++
		return nil
	}); err != nil {
		return fmt.Errorf("count nodes: %w", err)
	}

	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(snapshotVersion)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(meta))); err != nil {
		return fmt.Errorf("write metadata length: %w", err)
	}
	if _, err := w.Write(meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, count); err != nil {
		return fmt.Errorf("write node count: %w", err)
	}

	var written uint64
	err = src.ForEachNode(ctx, func(n timber.Node) error {
		if written == count {
			return fmt.Errorf("node %d appeared during snapshot", n.Index)
		}
		if len(n.Value) > 255 {
			return fmt.Errorf("node %d: %d-byte value", n.Index, len(n.Value))
		}
		if err := binary.Write(w, binary.BigEndian, n.Index); err != nil {
			return fmt.Errorf("write node %d index: %w", n.Index, err)
		}
		if _, err := w.Write(append([]byte{byte(len(n.Value))}, n.Value...)); err != nil {
			return fmt.Errorf("write node %d value: %w", n.Index, err)
		}
		written++
		return nil
	})
	if err != nil {
		return err
	}
	if written != count {
		return fmt.Errorf("snapshot wrote %d of %d nodes", written, count)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot into dst and
// returns its metadata, or nil if it carried none. Nodes are written in
// batches; metadata is written last.
func ReadSnapshot(ctx context.Context, r io.Reader, dst Store) (*Metadata, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("not a tree snapshot (magic %x)", magic[:])
	}
	var version, metaLen uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	if err := binary.Read(r, binary.BigEndian, &metaLen); err != nil {
		return nil, fmt.Errorf("read metadata length: %w", err)
	}

	if metaLen > maxSnapshotMetadata {
		return nil, fmt.Errorf("snapshot metadata is %d bytes, limit %d", metaLen, maxSnapshotMetadata)
	}
	var meta *Metadata
	if metaLen > 0 {
		raw := make([]byte, metaLen)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		m, err := DecodeMetadata(raw)
		if err != nil {
			return nil, err
		}
		meta = m
	}

	var count uint64
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read node count: %w", err)
	}

	const batchSize = 4096
	batch := make([]timber.Node, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := dst.PutNodes(ctx, batch); err != nil {
			return fmt.Errorf("store nodes: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	var hdr [9]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("read node %d header: %w", i, err)
		}
		value := make(timber.Digest, hdr[8])
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("read node %d value: %w", i, err)
		}
		batch = append(batch, timber.Node{Index: binary.BigEndian.Uint64(hdr[:8]), Value: value})
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if meta != nil {
		if err := dst.PutMetadata(ctx, meta); err != nil {
			return nil, fmt.Errorf("store metadata: %w", err)
		}
	}
	return meta, nil
}
