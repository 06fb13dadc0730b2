package timber

import (
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nightfall-rollup/timber/pkg/hash"
	"github.com/nightfall-rollup/timber/pkg/index"
)

func mustParams(t *testing.T, height uint8, hashType string) Params {
	t.Helper()
	p, err := NewParams(height, hashType, 0)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	return p
}

func randomLeaves(t *testing.T, n int) []Digest {
	t.Helper()
	out := make([]Digest, n)
	for i := range out {
		out[i] = make(Digest, 32)
		if _, err := rand.Read(out[i]); err != nil {
			t.Fatalf("rand: %v", err)
		}
		// keep leaves inside the BN254 field for the field hashers
		out[i][0] &= 0x1f
	}
	return out
}

func randIntn(t *testing.T, n int) int {
	t.Helper()
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		t.Fatalf("rand: %v", err)
	}
	return int(v.Int64())
}

// climbWithZero hashes v against the zero digest from level `from` up to
// the root, the way the right edge of a tree with nothing to its right does.
func climbWithZero(p Params, v Digest, from int) Digest {
	var full []byte
	for level := from; level <= int(p.Height); level++ {
		full = p.Hasher.Hash(v, hash.Zero(p.Width))
		v = hash.Truncate(full, p.Width)
	}
	return full
}

func TestSingleLeafHeight32(t *testing.T) {
	for _, name := range hash.Names() {
		t.Run(name, func(t *testing.T) {
			p := mustParams(t, 32, name)
			leaves := randomLeaves(t, 1)

			var nodes []Node
			st, err := Append(p, State{}, leaves, func(n Node) error {
				nodes = append(nodes, n)
				return nil
			})
			require.NoError(t, err)

			l0 := Digest(hash.Truncate(leaves[0], p.Width))
			require.Equal(t, uint64(1), st.LeafCount)
			require.Len(t, st.Frontier, 33)
			require.Equal(t, l0, st.Frontier[0])
			for i := 1; i < len(st.Frontier); i++ {
				require.Nil(t, st.Frontier[i], "slot %d", i)
			}

			want := climbWithZero(p, l0, 1)
			require.Equal(t, Digest(want), st.Root)
			require.Len(t, st.Root, 32)

			// one node per level, the root last and at full width
			require.Len(t, nodes, 32)
			require.Equal(t, uint64(0), nodes[31].Index)
			require.Equal(t, st.Root, nodes[31].Value)
			for _, n := range nodes[:31] {
				require.Len(t, n.Value, p.Width)
			}
		})
	}
}

func TestTwoLeavesHeight32(t *testing.T) {
	p := mustParams(t, 32, hash.SHA256)
	leaves := randomLeaves(t, 2)
	require.Equal(t, 0, index.Slot(0))
	require.Equal(t, 1, index.Slot(1))

	st, err := Append(p, State{}, leaves, nil)
	require.NoError(t, err)

	l0 := hash.Truncate(leaves[0], p.Width)
	l1 := hash.Truncate(leaves[1], p.Width)
	f1 := Digest(hash.Truncate(p.Hasher.Hash(l0, l1), p.Width))
	require.Equal(t, f1, st.Frontier[1])
	require.Equal(t, Digest(climbWithZero(p, f1, 2)), st.Root)
}

func TestCapacity(t *testing.T) {
	t.Run("oversized batch on empty tree", func(t *testing.T) {
		p := mustParams(t, 3, hash.SHA256)
		calls := 0
		st, err := Append(p, State{}, randomLeaves(t, 9), func(Node) error {
			calls++
			return nil
		})
		var ce *CapacityError
		require.ErrorAs(t, err, &ce)
		require.True(t, errors.Is(err, ErrCapacity))
		require.Equal(t, uint64(9), ce.Requested)
		require.Equal(t, uint64(8), ce.Capacity)
		require.Zero(t, calls)
		require.Equal(t, State{}, st)
	})

	t.Run("full tree rejects one more", func(t *testing.T) {
		p := mustParams(t, 3, hash.SHA256)
		st, err := Append(p, State{}, randomLeaves(t, 8), nil)
		require.NoError(t, err)
		before := st.Clone()

		after, err := Append(p, st, randomLeaves(t, 1), nil)
		require.ErrorIs(t, err, ErrCapacity)
		require.Equal(t, before, st)
		require.Equal(t, before, after)
	})

	t.Run("height 32 near capacity, no hashing", func(t *testing.T) {
		counting := hash.NewCounting(mustParams(t, 32, hash.SHA256).Hasher)
		p := Params{Height: 32, Width: 27, Hasher: counting}
		st := State{LeafCount: 1<<32 - 1, Frontier: make([]Digest, 33)}
		for i := 0; i < 32; i++ {
			st.Frontier[i] = make(Digest, 27)
		}
		before := st.Clone()

		_, err := Append(p, st, randomLeaves(t, 2), nil)
		require.ErrorIs(t, err, ErrCapacity)
		require.Zero(t, counting.Count())
		require.Equal(t, before, st)

		// exactly filling the tree is fine
		_, err = Append(p, st, randomLeaves(t, 1), nil)
		require.NoError(t, err)
		require.Equal(t, uint64(32), counting.Count())
	})
}

func TestAppendNothing(t *testing.T) {
	p := mustParams(t, 8, hash.SHA256)
	st, err := Append(p, State{}, randomLeaves(t, 5), nil)
	require.NoError(t, err)

	same, err := Append(p, st, nil, func(Node) error {
		t.Fatal("no nodes expected")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, st, same)
}

func TestAppendDoesNotMutateInput(t *testing.T) {
	p := mustParams(t, 8, hash.SHA256)
	st, err := Append(p, State{}, randomLeaves(t, 5), nil)
	require.NoError(t, err)
	before := st.Clone()

	_, err = Append(p, st, randomLeaves(t, 6), nil)
	require.NoError(t, err)
	require.Equal(t, before, st)
}

func TestBatchEquivalence(t *testing.T) {
	p := mustParams(t, 32, hash.SHA256)

	check := func(t *testing.T, leaves []Digest, k int) {
		t.Helper()
		whole, err := Append(p, State{}, leaves, nil)
		require.NoError(t, err)
		first, err := Append(p, State{}, leaves[:k], nil)
		require.NoError(t, err)
		second, err := Append(p, first, leaves[k:], nil)
		require.NoError(t, err)
		require.Equal(t, whole, second, "n=%d k=%d", len(leaves), k)
	}

	for n := 1; n <= 7; n++ {
		leaves := randomLeaves(t, n)
		for k := 0; k <= n; k++ {
			check(t, leaves, k)
		}
	}

	q := mustParams(t, 20, hash.SHA256)
	for round := 0; round < 4; round++ {
		n := 1 + randIntn(t, 3000)
		leaves := randomLeaves(t, n)
		whole, err := Append(q, State{}, leaves, nil)
		require.NoError(t, err)

		// several splits applied in sequence
		st := State{}
		for lo := 0; lo < n; {
			hi := lo + 1 + randIntn(t, 400)
			if hi > n {
				hi = n
			}
			st, err = Append(q, st, leaves[lo:hi], nil)
			require.NoError(t, err)
			lo = hi
		}
		require.Equal(t, whole, st, "n=%d", n)
	}
}

func TestRootMatchesReference(t *testing.T) {
	for _, name := range hash.Names() {
		t.Run(name, func(t *testing.T) {
			p := mustParams(t, 10, name)
			for _, n := range []int{1, 2, 3, 5, 8, 100, 513, 1024} {
				leaves := randomLeaves(t, n)

				stored := make(map[uint64]Digest)
				st, err := Append(p, State{}, leaves, func(nd Node) error {
					stored[nd.Index] = nd.Value
					return nil
				})
				require.NoError(t, err)

				ref, err := BuildReferenceTree(p, leaves)
				require.NoError(t, err)
				require.Equal(t, ref.Root, st.Root, "n=%d", n)

				// every interior node the engine left behind is the
				// reference value, and it covers every interior node
				leafRow := index.Width(p.Height) - 1
				interior := 0
				for idx := uint64(0); idx < leafRow; idx++ {
					want, ok := ref.Node(idx)
					got, have := stored[idx]
					require.Equal(t, ok, have, "node %d", idx)
					if ok {
						interior++
						require.Equal(t, want, got, "node %d", idx)
					}
				}
				require.Equal(t, interior, len(stored))
				require.Equal(t, ref.NodeCount(), interior+n)
			}
		})
	}
}

func TestRootMatchesReferenceRandom(t *testing.T) {
	p := mustParams(t, 32, hash.SHA256)
	for round := 0; round < 3; round++ {
		leaves := randomLeaves(t, 1+randIntn(t, 2500))
		st, err := Append(p, State{}, leaves, nil)
		require.NoError(t, err)
		ref, err := BuildReferenceTree(p, leaves)
		require.NoError(t, err)
		require.Equal(t, ref.Root, st.Root)
	}
}

func TestReferenceTreeParallelRows(t *testing.T) {
	p := mustParams(t, 13, hash.SHA256)
	counter := hash.NewCounting(p.Hasher)
	p.Hasher = counter

	n := 2*parallelRow + 77
	leaves := randomLeaves(t, n)
	ref, err := BuildReferenceTree(p, leaves)
	require.NoError(t, err)
	require.Equal(t, counter.Count(), ref.Hashes)

	// one hash per existing interior node
	var want uint64
	w := uint64(n)
	for level := 1; level <= int(p.Height); level++ {
		w = (w + 1) / 2
		want += w
	}
	require.Equal(t, want, ref.Hashes)

	stored := make(map[uint64]Digest)
	st, err := Append(p, State{}, leaves, func(nd Node) error {
		stored[nd.Index] = nd.Value
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, ref.Root, st.Root)
	for idx, got := range stored {
		want, ok := ref.Node(idx)
		require.True(t, ok, "node %d", idx)
		require.Equal(t, want, got, "node %d", idx)
	}
}

func TestOnNodeErrorLeavesStateUntouched(t *testing.T) {
	p := mustParams(t, 6, hash.SHA256)
	st, err := Append(p, State{}, randomLeaves(t, 3), nil)
	require.NoError(t, err)
	before := st.Clone()

	boom := errors.New("disk full")
	calls := 0
	got, err := Append(p, st, randomLeaves(t, 4), func(Node) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, ErrTransientPersistence)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
	require.Equal(t, before, got)
	require.Equal(t, before, st)
}

func TestVerifyState(t *testing.T) {
	p := mustParams(t, 5, hash.MiMC)

	require.NoError(t, VerifyState(p, State{}))

	st := State{}
	var err error
	for i := 0; i < 32; i++ {
		st, err = Append(p, st, randomLeaves(t, 1), nil)
		require.NoError(t, err)
		require.NoError(t, VerifyState(p, st), "leaf count %d", st.LeafCount)
		if st.LeafCount < 32 {
			root, err := RootFromFrontier(p, st)
			require.NoError(t, err)
			require.Equal(t, st.Root, root)
		}
	}

	_, err = RootFromFrontier(p, st)
	require.ErrorIs(t, err, ErrConfiguration)

	bad := st.Clone()
	bad.Root[0] ^= 1
	require.ErrorIs(t, VerifyState(p, bad), ErrRootMismatch)

	partial, err := Append(p, State{}, randomLeaves(t, 11), nil)
	require.NoError(t, err)
	bad = partial.Clone()
	bad.Root[31] ^= 1
	require.ErrorIs(t, VerifyState(p, bad), ErrRootMismatch)

	bad = partial.Clone()
	bad.Frontier = append(bad.Frontier, Digest{})
	require.ErrorIs(t, VerifyState(p, bad), ErrConfiguration)

	// 11 = 0b1011 needs slots 0, 1 and 3
	bad = partial.Clone()
	bad.Frontier[3] = nil
	require.ErrorIs(t, VerifyState(p, bad), ErrConfiguration)
	_, err = Append(p, bad, randomLeaves(t, 1), nil)
	require.ErrorIs(t, err, ErrConfiguration)

	require.ErrorIs(t, VerifyState(p, State{Root: Digest{1}}), ErrConfiguration)
}

func TestParams(t *testing.T) {
	_, err := NewParams(32, "md5", 0)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewParams(0, hash.MiMC, 0)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewParams(63, hash.MiMC, 0)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewParams(32, hash.MiMC, 33)
	require.ErrorIs(t, err, ErrConfiguration)

	p, err := NewParams(32, hash.SHA256, 0)
	require.NoError(t, err)
	require.Equal(t, 27, p.Width)
	require.Equal(t, uint64(1)<<32, p.Capacity())

	p, err = NewParams(32, hash.SHA256, 32)
	require.NoError(t, err)
	require.Equal(t, 32, p.Width)

	var ce *ConfigurationError
	_, err = Append(Params{Height: 4, Width: 32}, State{}, randomLeaves(t, 1), nil)
	require.ErrorAs(t, err, &ce)
}
