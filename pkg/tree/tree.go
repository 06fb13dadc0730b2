// Package tree owns one commitment tree: its parameters, its incremental
// state and the store its nodes live in. Appends are serialised; sibling
// path requests run concurrently with each other and never observe a batch
// that is only partly persisted.
package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nightfall-rollup/timber/config"
	"github.com/nightfall-rollup/timber/pkg/chain"
	"github.com/nightfall-rollup/timber/pkg/hash"
	"github.com/nightfall-rollup/timber/pkg/index"
	"github.com/nightfall-rollup/timber/pkg/store"
	"github.com/nightfall-rollup/timber/pkg/timber"
)

// ErrOutOfOrder is returned by AppendAt when a batch does not start at the
// current leaf count.
var ErrOutOfOrder = errors.New("leaves out of order")

// Options configure Open. Params and Store are required.
type Options struct {
	Params timber.Params
	Store  store.Store

	// Registry, if set, is asked whether every root a proof is built
	// against is known on chain.
	Registry chain.RootRegistry

	ContractAddress   string
	ContractInterface string

	Retry config.RetryConfig

	Logger  *zerolog.Logger
	Metrics prometheus.Registerer
	Tracer  trace.Tracer
}

// Tree is safe for concurrent use.
type Tree struct {
	writeMu sync.Mutex // one append at a time

	mu    sync.RWMutex // held for writing while a batch is persisted
	state timber.State
	meta  store.Metadata

	params   timber.Params
	store    store.Store
	registry chain.RootRegistry
	retry    config.RetryConfig

	log     zerolog.Logger
	metrics *metrics
	tracer  trace.Tracer
}

// Open loads the tree recorded in opts.Store, or starts an empty one if the
// store has no metadata yet. A stored tree must have been built with the
// same height, hash and width, and its recorded root must match its
// frontier.
func Open(ctx context.Context, opts Options) (*Tree, error) {
	if opts.Store == nil {
		return nil, &timber.ConfigurationError{Field: "store", Reason: "no store"}
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}

	t := &Tree{
		params:   opts.Params,
		store:    opts.Store,
		registry: opts.Registry,
		retry:    opts.Retry,
		log:      zerolog.Nop(),
		tracer:   opts.Tracer,
	}
	if opts.Logger != nil {
		t.log = opts.Logger.With().Str("component", "tree").Logger()
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer("github.com/nightfall-rollup/timber/pkg/tree")
	}
	if t.retry == (config.RetryConfig{}) {
		t.retry = config.Default().Retry
	}
	m, err := newMetrics(opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	t.metrics = m

	meta, err := opts.Store.GetMetadata(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		t.meta = store.Metadata{
			ContractAddress:   opts.ContractAddress,
			ContractInterface: opts.ContractInterface,
			HashType:          t.params.Hasher.Name(),
			Height:            t.params.Height,
			Width:             t.params.Width,
		}
		if err := t.persist(ctx, "put metadata", func(ctx context.Context) error {
			return t.store.PutMetadata(ctx, &t.meta)
		}); err != nil {
			return nil, err
		}
		t.log.Info().Uint8("height", t.params.Height).Str("hash", t.params.Hasher.Name()).Int("width", t.params.Width).Msg("created tree")
	case err != nil:
		return nil, &timber.TransientPersistenceError{Op: "get metadata", Err: err}
	default:
		if err := t.checkMetadata(meta); err != nil {
			return nil, err
		}
		t.meta = *meta
		t.state = meta.State()
		if err := timber.VerifyState(t.params, t.state); err != nil {
			return nil, fmt.Errorf("restore tree: %w", err)
		}
		t.log.Info().Uint64("leaf_count", t.state.LeafCount).Hex("root", t.state.Root).Msg("opened tree")
	}
	t.metrics.leafCount.Set(float64(t.state.LeafCount))
	return t, nil
}

func (t *Tree) checkMetadata(m *store.Metadata) error {
	switch {
	case m.HashType != t.params.Hasher.Name():
		return &timber.ConfigurationError{Field: "hash_type", Reason: fmt.Sprintf("tree was built with %s, configured %s", m.HashType, t.params.Hasher.Name())}
	case m.Height != t.params.Height:
		return &timber.ConfigurationError{Field: "height", Reason: fmt.Sprintf("tree was built with height %d, configured %d", m.Height, t.params.Height)}
	case m.Width != t.params.Width:
		return &timber.ConfigurationError{Field: "width", Reason: fmt.Sprintf("tree was built with width %d, configured %d", m.Width, t.params.Width)}
	}
	return nil
}

// Append adds leaves at the end of the tree and returns the new root. The
// leaves, every interior node and the metadata are committed in one store
// write before the new state becomes visible; if the write fails for good
// the tree and the store keep their previous state.
func (t *Tree) Append(ctx context.Context, leaves []timber.Digest, blockNumber uint64) (timber.Digest, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.appendLocked(ctx, leaves, blockNumber)
}

// AppendAt is Append for a batch whose first leaf must land at firstLeaf.
// Event sources use it to detect gaps and replays.
func (t *Tree) AppendAt(ctx context.Context, firstLeaf uint64, leaves []timber.Digest, blockNumber uint64) (timber.Digest, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if firstLeaf != t.state.LeafCount {
		return nil, fmt.Errorf("%w: batch starts at leaf %d, tree has %d leaves", ErrOutOfOrder, firstLeaf, t.state.LeafCount)
	}
	return t.appendLocked(ctx, leaves, blockNumber)
}

func (t *Tree) appendLocked(ctx context.Context, leaves []timber.Digest, blockNumber uint64) (root timber.Digest, err error) {
	cur := t.state
	ctx, span := t.tracer.Start(ctx, "timber.Append", trace.WithAttributes(
		attribute.Int("leaves", len(leaves)),
		attribute.Int64("leaf_count", int64(cur.LeafCount)),
		attribute.Int64("block_number", int64(blockNumber)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(leaves) == 0 {
		return cur.Clone().Root, nil
	}

	start := time.Now()
	nodes := make([]timber.Node, 0, 2*len(leaves)+int(t.params.Height))
	next, err := timber.Append(t.params, cur, leaves, func(n timber.Node) error {
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, l := range leaves {
		nodes = append(nodes, timber.Node{
			Index: index.LeafToNode(cur.LeafCount+uint64(i), t.params.Height),
			Value: hash.Truncate(l, t.params.Width),
		})
	}

	meta := t.meta
	meta.LatestLeaf = store.LatestLeaf{LeafIndex: next.LeafCount - 1, BlockNumber: blockNumber}
	meta.SetState(next, blockNumber)

	// Readers wait until the whole batch is durable.
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.persist(ctx, "commit", func(ctx context.Context) error {
		return t.store.Commit(ctx, nodes, &meta)
	}); err != nil {
		t.log.Error().Err(err).Uint64("leaf_count", cur.LeafCount).Int("leaves", len(leaves)).Msg("append not persisted")
		return nil, err
	}

	t.state = next
	t.meta = meta

	hashes := timber.NumberOfHashes(next.LeafCount-1, cur.LeafCount, t.params.Height)
	t.metrics.leaves.Add(float64(len(leaves)))
	t.metrics.hashes.Add(float64(hashes))
	t.metrics.leafCount.Set(float64(next.LeafCount))
	t.metrics.appendDuration.Observe(time.Since(start).Seconds())

	t.log.Debug().
		Uint64("from", cur.LeafCount).
		Int("leaves", len(leaves)).
		Uint64("hashes", hashes).
		Uint64("block", blockNumber).
		Hex("root", next.Root).
		Msg("appended")
	return append(timber.Digest(nil), next.Root...), nil
}

// persist runs op until it succeeds, retrying with exponential backoff.
// Once a batch has started writing it is carried through even if ctx is
// cancelled; only the retry budget bounds it.
func (t *Tree) persist(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retry.InitialInterval
	b.MaxInterval = t.retry.MaxInterval
	b.MaxElapsedTime = t.retry.MaxElapsed

	err := backoff.RetryNotify(func() error {
		return fn(ctx)
	}, b, func(err error, wait time.Duration) {
		t.metrics.retries.Inc()
		t.log.Warn().Err(err).Str("op", op).Dur("wait", wait).Msg("storage write failed, retrying")
	})
	if err != nil {
		return &timber.TransientPersistenceError{Op: op, Err: err}
	}
	return nil
}

// SiblingPath returns the proof for leafIndex against the current root,
// after checking the stored leaf equals expectedLeaf and, if a registry is
// configured, that the root is known on chain.
func (t *Tree) SiblingPath(ctx context.Context, leafIndex uint64, expectedLeaf timber.Digest) (sp *timber.SiblingPath, err error) {
	ctx, span := t.tracer.Start(ctx, "timber.SiblingPath", trace.WithAttributes(
		attribute.Int64("leaf_index", int64(leafIndex)),
	))
	defer func() {
		result := "ok"
		if err != nil {
			result = errorLabel(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		t.metrics.proofs.WithLabelValues(result).Inc()
		span.End()
	}()

	sp, root, err := t.buildPath(ctx, leafIndex, expectedLeaf)
	if err != nil {
		return nil, err
	}

	if t.registry != nil {
		known, err := t.registry.IsKnownRoot(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("check root %x: %w", []byte(root), err)
		}
		if !known {
			return nil, &timber.RootMismatchError{Expected: root, Computed: sp.ComputedRoot, Reason: "not in the chain's root history"}
		}
	}

	t.log.Debug().Uint64("leaf", leafIndex).Hex("root", root).Msg("sibling path")
	return sp, nil
}

func (t *Tree) buildPath(ctx context.Context, leafIndex uint64, expectedLeaf timber.Digest) (*timber.SiblingPath, timber.Digest, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if leafIndex >= t.state.LeafCount {
		return nil, nil, &timber.StructuralMismatchError{LeafIndex: leafIndex, Expected: hash.Truncate(expectedLeaf, t.params.Width)}
	}
	root := t.state.Root
	sp, err := timber.GetSiblingPath(ctx, t.params, leafIndex, expectedLeaf, t.store.GetNode, root)
	if err != nil {
		return nil, nil, err
	}
	return sp, root, nil
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, timber.ErrStructuralMismatch):
		return "structural_mismatch"
	case errors.Is(err, timber.ErrRootMismatch):
		return "root_mismatch"
	case errors.Is(err, timber.ErrTransientPersistence):
		return "storage"
	}
	return "error"
}

// Params returns the tree's fixed parameters.
func (t *Tree) Params() timber.Params { return t.params }

// Root returns the current full-width root, nil for an empty tree.
func (t *Tree) Root() timber.Digest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone().Root
}

// LeafCount returns the number of leaves appended so far.
func (t *Tree) LeafCount() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.LeafCount
}

// Frontier returns a copy of the cached per-level digests.
func (t *Tree) Frontier() []timber.Digest {
	return t.State().Frontier
}

// State returns a copy of the current state.
func (t *Tree) State() timber.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Metadata returns a copy of the current metadata record.
func (t *Tree) Metadata() store.Metadata {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.meta
	m.SetState(t.state, t.meta.LatestRecalculation.BlockNumber)
	return m
}

// EstimateHashes returns the number of hashes appending n more leaves
// would cost.
func (t *Tree) EstimateHashes(n uint64) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	count := t.LeafCount()
	if n > t.params.Capacity()-count {
		return 0, &timber.CapacityError{LeafCount: count, Requested: n, Capacity: t.params.Capacity()}
	}
	return timber.NumberOfHashes(count+n-1, count, t.params.Height), nil
}
