package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nightfall-rollup/timber/circuits/siblingpath"
	"github.com/nightfall-rollup/timber/pkg/hash"
	"github.com/nightfall-rollup/timber/pkg/setup"
	"github.com/nightfall-rollup/timber/pkg/store"
	"github.com/nightfall-rollup/timber/pkg/timber"
)

const circuitName = "siblingpath"

func newAppendCmd(a *app) *cobra.Command {
	var (
		block uint64
		at    int64
	)
	cmd := &cobra.Command{
		Use:   "append LEAF...",
		Short: "Append hex leaves and print the new root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leaves := make([]timber.Digest, len(args))
			for i, s := range args {
				d, err := parseDigest(s)
				if err != nil {
					return err
				}
				leaves[i] = d
			}

			t, done, err := a.openTree(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var root timber.Digest
			if at >= 0 {
				root, err = t.AppendAt(cmd.Context(), uint64(at), leaves, block)
			} else {
				root, err = t.Append(cmd.Context(), leaves, block)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "root %s\nleaves %d\n", formatDigest(root), t.LeafCount())
			return nil
		},
	}
	cmd.Flags().Uint64Var(&block, "block", 0, "block number the leaves arrived in")
	cmd.Flags().Int64Var(&at, "at", -1, "leaf index the batch must start at (-1 = anywhere)")
	return cmd
}

func newPathCmd(a *app) *cobra.Command {
	var rootFirst bool
	cmd := &cobra.Command{
		Use:   "path LEAF_INDEX LEAF",
		Short: "Print the sibling path of a leaf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			leafIndex, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("leaf index: %w", err)
			}
			leaf, err := parseDigest(args[1])
			if err != nil {
				return err
			}

			t, done, err := a.openTree(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			sp, err := t.SiblingPath(cmd.Context(), leafIndex, leaf)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "root %s\n", formatDigest(sp.ComputedRoot))
			if rootFirst {
				for i, d := range sp.RootFirst() {
					fmt.Fprintf(out, "%2d %s\n", i, formatDigest(d))
				}
				return nil
			}
			for i, d := range sp.Siblings {
				fmt.Fprintf(out, "%2d %d %s\n", i, sp.OrderBits[i], formatDigest(d))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rootFirst, "root-first", false, "print [root, ..., leaf sibling] instead of leaf-first")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var frontier bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the tree parameters, size and root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, done, err := a.openTree(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			m := t.Metadata()
			p := t.Params()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hash      %s\n", p.Hasher.Name())
			fmt.Fprintf(out, "height    %d\n", p.Height)
			fmt.Fprintf(out, "width     %d\n", p.Width)
			fmt.Fprintf(out, "leaves    %d / %d\n", m.LatestRecalculation.LeafCount, p.Capacity())
			fmt.Fprintf(out, "root      %s\n", formatDigest(m.LatestRecalculation.Root))
			fmt.Fprintf(out, "block     %d\n", m.LatestRecalculation.BlockNumber)
			if m.ContractAddress != "" {
				fmt.Fprintf(out, "contract  %s (%s)\n", m.ContractAddress, m.ContractInterface)
			}
			if frontier {
				for i, d := range t.Frontier() {
					fmt.Fprintf(out, "frontier %2d %s\n", i, formatDigest(d))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&frontier, "frontier", false, "also print the cached frontier, one digest per level")
	return cmd
}

func newCostCmd(a *app) *cobra.Command {
	var from uint64
	cmd := &cobra.Command{
		Use:   "cost COUNT",
		Short: "Estimate the hashes needed to append COUNT leaves",
		Long: "Estimate the hashes needed to append COUNT leaves to the stored tree.\n" +
			"With --from the estimate is for a tree of that size and no database is opened.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}

			var (
				p      timber.Params
				hashes uint64
			)
			if cmd.Flags().Changed("from") {
				if p, err = a.params(); err != nil {
					return err
				}
				if n > p.Capacity()-min(from, p.Capacity()) {
					return &timber.CapacityError{LeafCount: from, Requested: n, Capacity: p.Capacity()}
				}
				if n > 0 {
					hashes = timber.NumberOfHashes(from+n-1, from, p.Height)
				}
			} else {
				t, done, err := a.openTree(cmd.Context())
				if err != nil {
					return err
				}
				defer done()
				p, from = t.Params(), t.LeafCount()
				if hashes, err = t.EstimateHashes(n); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hashes %d\n", hashes)
			if n == 0 {
				return nil
			}
			template := timber.HashArrayTemplate(from+n-1, from, p.Height)
			parts := make([]string, len(template))
			for i, v := range template {
				parts[i] = strconv.Itoa(v)
			}
			fmt.Fprintf(out, "per level [%s]\n", strings.Join(parts, " "))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "leaf count before the append, instead of the stored tree's")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write a snapshot of the tree to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := store.OpenLevelDB(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer src.Close()

			f, err := createFile(args[0])
			if err != nil {
				return err
			}
			w := bufio.NewWriter(f)
			if err := store.WriteSnapshot(cmd.Context(), w, src); err != nil {
				f.Close()
				return err
			}
			if err := w.Flush(); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.log.Info().Str("file", args[0]).Msg("snapshot written")
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Load a snapshot into an empty database and check it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			dst, err := store.OpenLevelDB(a.cfg.DBPath)
			if err != nil {
				return err
			}
			if _, err := dst.GetMetadata(cmd.Context()); !errors.Is(err, store.ErrNotFound) {
				dst.Close()
				if err == nil {
					err = fmt.Errorf("database %s already holds a tree", a.cfg.DBPath)
				}
				return err
			}
			m, err := store.ReadSnapshot(cmd.Context(), bufio.NewReader(f), dst)
			if cerr := dst.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}

			// reopening runs the same checks a restart would
			t, done, err := a.openTree(cmd.Context())
			if err != nil {
				return fmt.Errorf("imported tree does not open: %w", err)
			}
			defer done()
			a.log.Info().Uint64("leaves", t.LeafCount()).Bool("metadata", m != nil).Msg("snapshot imported")
			fmt.Fprintf(cmd.OutOrStdout(), "root %s\nleaves %d\n", formatDigest(t.Root()), t.LeafCount())
			return nil
		},
	}
}

func newSetupCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Dev (single-party) Groth16 setup of the sibling-path circuit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.params()
			if err != nil {
				return err
			}
			if p.Hasher.Name() != hash.MiMC {
				return fmt.Errorf("the sibling-path circuit hashes with mimc, tree uses %s", p.Hasher.Name())
			}
			return setup.DevSetup(siblingpath.New(int(p.Height), p.Width), out, circuitName, a.log)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", ".", "directory for the keys and Solidity verifier")
	return cmd
}

func newProveCmd(a *app) *cobra.Command {
	var keys, out string
	cmd := &cobra.Command{
		Use:   "prove LEAF_INDEX LEAF",
		Short: "Prove membership of a leaf and write a Solidity proof fixture",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			leafIndex, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("leaf index: %w", err)
			}
			leaf, err := parseDigest(args[1])
			if err != nil {
				return err
			}

			t, done, err := a.openTree(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			p := t.Params()
			if p.Hasher.Name() != hash.MiMC {
				return fmt.Errorf("the sibling-path circuit hashes with mimc, tree uses %s", p.Hasher.Name())
			}

			sp, err := t.SiblingPath(cmd.Context(), leafIndex, leaf)
			if err != nil {
				return err
			}
			assignment, err := siblingpath.Assign(sp, p.Width)
			if err != nil {
				return err
			}

			ccs, err := setup.CompileCircuit(siblingpath.New(int(p.Height), p.Width))
			if err != nil {
				return err
			}
			pk, vk, err := setup.LoadKeys(keys, circuitName)
			if err != nil {
				return err
			}
			fixture, err := siblingpath.Prove(ccs, pk, vk, assignment, leafIndex)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(fixture, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal fixture: %w", err)
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&keys, "keys", ".", "directory holding the keys written by setup")
	cmd.Flags().StringVarP(&out, "out", "o", "", "fixture file (default stdout)")
	return cmd
}
