package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nightfall-rollup/timber/config"
	"github.com/nightfall-rollup/timber/pkg/chain"
	"github.com/nightfall-rollup/timber/pkg/store"
	"github.com/nightfall-rollup/timber/pkg/timber"
	"github.com/nightfall-rollup/timber/pkg/tree"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	dbPath     string

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "timber",
		Short:        "Append-only commitment tree with sibling path proofs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "LevelDB directory (overrides the config)")

	root.AddCommand(
		newAppendCmd(a),
		newPathCmd(a),
		newStatusCmd(a),
		newCostCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSetupCmd(a),
		newProveCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
	return nil
}

func (a *app) params() (timber.Params, error) {
	return timber.NewParams(a.cfg.Height, a.cfg.HashType, a.cfg.NodeWidth)
}

// openTree opens the configured store and tree. The returned func closes
// both.
func (a *app) openTree(ctx context.Context) (*tree.Tree, func(), error) {
	p, err := a.params()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.OpenLevelDB(a.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() {
		if err := st.Close(); err != nil {
			a.log.Error().Err(err).Msg("close store")
		}
	}}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := tree.Options{
		Params:            p,
		Store:             st,
		ContractAddress:   a.cfg.ContractAddress,
		ContractInterface: a.cfg.ContractInterface,
		Retry:             a.cfg.Retry,
		Logger:            &a.log,
	}
	if a.cfg.RPCURL != "" && a.cfg.ContractAddress != "" {
		reg, client, err := chain.Dial(ctx, a.cfg.RPCURL, a.cfg.ContractAddress)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		opts.Registry = reg
	}

	t, err := tree.Open(ctx, opts)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return t, closeAll, nil
}

// parseDigest reads a hex digest with or without the 0x prefix.
func parseDigest(s string) (timber.Digest, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("leaf %q: %w", s, err)
	}
	return b, nil
}

func formatDigest(d timber.Digest) string {
	if len(d) == 0 {
		return "-"
	}
	return hexutil.Encode(d)
}

func createFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}
