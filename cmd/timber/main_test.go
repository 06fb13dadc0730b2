package main

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-rollup/timber/pkg/hash"
	"github.com/nightfall-rollup/timber/pkg/timber"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, strings.Join(args, " "))
	return out
}

func TestAppendStatusPath(t *testing.T) {
	db := filepath.Join(t.TempDir(), "db")
	leaves := []string{"0x01", "0x02", "0x03"}

	out := mustRun(t, "--db", db, "append", "--block", "7", leaves[0], leaves[1])
	require.Contains(t, out, "leaves 2")
	out = mustRun(t, "--db", db, "append", "--at", "2", "--block", "8", "03")
	require.Contains(t, out, "leaves 3")

	// the CLI root must match a direct append with the default params
	p, err := timber.NewParams(32, hash.MiMC, 0)
	require.NoError(t, err)
	ds := make([]timber.Digest, len(leaves))
	for i, s := range leaves {
		ds[i] = hexutil.MustDecode(s)
	}
	st, err := timber.Append(p, timber.State{}, ds, nil)
	require.NoError(t, err)
	require.Contains(t, out, "root "+hexutil.Encode(st.Root))

	status := mustRun(t, "--db", db, "status")
	require.Contains(t, status, "hash      mimc")
	require.Contains(t, status, "leaves    3 / 4294967296")
	require.Contains(t, status, "block     8")

	path := mustRun(t, "--db", db, "path", "1", "0x02")
	lines := strings.Split(strings.TrimSpace(path), "\n")
	require.Len(t, lines, 33)
	require.Equal(t, "root "+hexutil.Encode(st.Root), lines[0])
	require.True(t, strings.HasPrefix(lines[1], " 0 1 "), lines[1])

	rootFirst := mustRun(t, "--db", db, "path", "--root-first", "1", "0x02")
	require.Len(t, strings.Split(strings.TrimSpace(rootFirst), "\n"), 34)

	_, err = run(t, "--db", db, "path", "1", "0x05")
	require.ErrorIs(t, err, timber.ErrStructuralMismatch)

	_, err = run(t, "--db", db, "append", "--at", "7", "0x04")
	require.Error(t, err)

	_, err = run(t, "--db", db, "append", "0xzz")
	require.Error(t, err)
}

func TestCost(t *testing.T) {
	db := filepath.Join(t.TempDir(), "db")
	out := mustRun(t, "--db", db, "cost", "1")
	require.Contains(t, out, "hashes 32")

	// without --from the estimate follows the stored tree
	mustRun(t, "--db", db, "append", "0x0a", "0x0b", "0x0c", "0x0d", "0x0e")
	require.Equal(t, mustRun(t, "cost", "--from", "5", "3"), mustRun(t, "--db", db, "cost", "3"))

	out = mustRun(t, "cost", "--from", "0", "0")
	require.Equal(t, "hashes 0\n", out)
	out = mustRun(t, "--db", db, "cost", "0")
	require.Equal(t, "hashes 0\n", out)

	_, err := run(t, "cost", "--from", "4294967295", "2")
	require.ErrorIs(t, err, timber.ErrCapacity)
	_, err = run(t, "--db", db, "cost", "4294967292")
	require.ErrorIs(t, err, timber.ErrCapacity)
}

func TestStatusFrontier(t *testing.T) {
	db := filepath.Join(t.TempDir(), "db")
	mustRun(t, "--db", db, "append", "0x01", "0x02", "0x03")

	plain := mustRun(t, "--db", db, "status")
	require.NotContains(t, plain, "frontier")

	out := mustRun(t, "--db", db, "status", "--frontier")
	require.True(t, strings.HasPrefix(out, plain), out)
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, plain)), "\n")
	require.NotEmpty(t, lines)
	for i, line := range lines {
		require.True(t, strings.HasPrefix(line, fmt.Sprintf("frontier %2d ", i)), line)
	}
}

func TestSnapshotExportImport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	mustRun(t, "--db", src, "append", "0x0a", "0x0b", "0x0c", "0x0d", "0x0e")
	status := mustRun(t, "--db", src, "status")

	file := filepath.Join(dir, "tree.snap")
	mustRun(t, "--db", src, "export", file)

	dst := filepath.Join(dir, "dst")
	out := mustRun(t, "--db", dst, "import", file)
	require.Contains(t, out, "leaves 5")
	require.Equal(t, status, mustRun(t, "--db", dst, "status"))

	// a second import into a populated database is refused
	_, err := run(t, "--db", dst, "import", file)
	require.Error(t, err)

	// the file is not overwritten
	_, err = run(t, "--db", src, "export", file)
	require.Error(t, err)
}

func TestBadConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "status")
	require.Error(t, err)

	t.Setenv("TIMBER_HASH_TYPE", "md5")
	_, err = run(t, "--db", filepath.Join(t.TempDir(), "db"), "status")
	require.ErrorIs(t, err, timber.ErrConfiguration)
}
