package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zapkit/internal/chain"
	"zapkit/internal/config"
	"zapkit/internal/dex"
	"zapkit/internal/model"
)

func main() {
	root := &cobra.Command{
		Use:          "zapkit",
		Short:        "Single-asset liquidity zaps for constant-product pools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	chainsCmd := &cobra.Command{
		Use:   "chains",
		Short: "List configured chains",
		RunE:  runChains,
	}
	chainsCmd.Flags().String("available-chains", "", "limit to these chain ids (comma-separated)")
	chainsCmd.Flags().Uint64("exclude", 0, "chain id selected on the other side of a pairing")
	root.AddCommand(chainsCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a zap without sending anything",
		RunE:  runQuote,
	}
	addChainFlags(quoteCmd)
	addInputFlags(quoteCmd)
	root.AddCommand(quoteCmd)

	positionCmd := &cobra.Command{
		Use:   "position",
		Short: "Show wallet and staked pool tokens of an account",
		RunE:  runPosition,
	}
	addChainFlags(positionCmd)
	positionCmd.Flags().String("pool", "", "pair address")
	positionCmd.Flags().String("account", "", "account address, defaults to the private key's")
	positionCmd.Flags().String("private-key", "", "hex private key")
	root.AddCommand(positionCmd)

	zapCmd := &cobra.Command{
		Use:   "zap",
		Short: "Approve and zap a single asset into a pool",
		RunE:  runZap,
	}
	addChainFlags(zapCmd)
	addInputFlags(zapCmd)
	zapCmd.Flags().Bool("max", false, "spend the whole balance, keeping a gas reserve for native input")
	zapCmd.Flags().Bool("stake", false, "stake the received pool tokens")
	zapCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	zapCmd.Flags().String("private-key", "", "hex private key")
	zapCmd.Flags().String("journal", "./data/journal.jsonl", "journal JSONL path")
	zapCmd.Flags().String("pending", "./data/pending.json", "pending transactions file")
	zapCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the journal")
	zapCmd.Flags().Duration("timeout", 10*time.Minute, "give up waiting for confirmations after this long")
	root.AddCommand(zapCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Re-check pending transactions and show recent journal entries",
		RunE:  runStatus,
	}
	addChainFlags(statusCmd)
	statusCmd.Flags().String("journal", "./data/journal.jsonl", "journal JSONL path")
	statusCmd.Flags().String("pending", "./data/pending.json", "pending transactions file")
	statusCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	statusCmd.Flags().Int("limit", 10, "journal entries to show")
	statusCmd.Flags().Duration("prune", 7*24*time.Hour, "forget settled transactions older than this")
	root.AddCommand(statusCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve quotes, positions and chains over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", ":8080", "listen address")
	serveCmd.Flags().String("available-chains", "", "chain ids to serve (comma-separated)")
	serveCmd.Flags().Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	serveCmd.Flags().Uint64("slippage", 500, "default slippage tolerance in basis points")
	serveCmd.Flags().Int("max-hops", 3, "maximum hops when routing the input")
	serveCmd.Flags().Int("max-retries", 5, "maximum retry attempts for RPC reads")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL, overrides the chain's configured endpoint")
	cmd.Flags().Uint64("chain-id", 56, "chain id from the chains registry")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts for RPC reads")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool", "", "pair address")
	cmd.Flags().String("currency", "", "input currency: native symbol or token address")
	cmd.Flags().String("amount", "", "input amount in token units")
	cmd.Flags().Uint64("slippage", 500, "slippage tolerance in basis points")
	cmd.Flags().Int("max-hops", 3, "maximum hops when routing the input")
	cmd.Flags().StringSlice("bases", nil, "extra routing tokens (comma-separated addresses)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// env is a connection to one configured chain.
type env struct {
	chain  model.Chain
	client *chain.Client
	reader *dex.Reader
	logger *zap.Logger
}

func openEnv(ctx context.Context, cfg config.Config, logger *zap.Logger) (*env, error) {
	ch, err := cfg.Chain()
	if err != nil {
		return nil, err
	}
	client, err := chain.NewClient(ctx, ch.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	id, err := client.GetChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if id.Uint64() != ch.ID {
		client.Close()
		return nil, fmt.Errorf("rpc serves chain %s, configured %d", id, ch.ID)
	}

	reader := dex.NewReader(client, ch.ID,
		dex.WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
		dex.WithLogger(logger),
		dex.WithTokens(ch.Native(), ch.Wrapped()),
	)
	logger.Debug("chain connected", zap.Uint64("chain_id", ch.ID), zap.String("name", ch.Name))
	return &env{chain: ch, client: client, reader: reader, logger: logger}, nil
}

func (e *env) Close() {
	e.client.Close()
}

// bases resolves the configured routing tokens, skipping ones that fail.
func (e *env) bases(ctx context.Context, addresses []string) []model.Token {
	tokens := make([]model.Token, 0, len(addresses))
	for _, raw := range addresses {
		if !common.IsHexAddress(raw) {
			e.logger.Warn("ignoring routing token", zap.String("value", raw))
			continue
		}
		token, err := e.reader.Token(ctx, common.HexToAddress(raw))
		if err != nil {
			e.logger.Warn("routing token unavailable", zap.String("token", raw), zap.Error(err))
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func parseAddressFlag(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid --%s address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func chainIDBig(ch model.Chain) *big.Int {
	return new(big.Int).SetUint64(ch.ID)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
