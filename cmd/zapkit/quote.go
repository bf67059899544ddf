package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapkit/internal/amm"
	"zapkit/internal/api"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := parseAddressFlag("pool", mustString(cmd, "pool"))
	if err != nil {
		return err
	}
	currency, amount := mustString(cmd, "currency"), mustString(cmd, "amount")
	if currency == "" || amount == "" {
		return fmt.Errorf("--currency and --amount are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	svc := api.NewService(e.chain, e.reader, api.ServiceConfig{
		Bases:    e.bases(ctx, cfg.Bases),
		MaxHops:  cfg.MaxHops,
		Slippage: amm.Slippage(cfg.Slippage),
		Logger:   logger,
	})

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Fetching reserves..."
	s.Start()
	quote, _, err := svc.Quote(ctx, pool, currency, amount, 0)
	s.Stop()
	if err != nil {
		return err
	}

	renderQuote(quote)
	if quote.Severity.Blocking() {
		color.Red("Price impact too high: this zap would be refused.")
	}
	return nil
}

func runPosition(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := parseAddressFlag("pool", mustString(cmd, "pool"))
	if err != nil {
		return err
	}
	account, err := accountFor(mustString(cmd, "account"), cfg.PrivateKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	svc := api.NewService(e.chain, e.reader, api.ServiceConfig{Logger: logger})
	pos, err := svc.Position(ctx, pool, account)
	if err != nil {
		return err
	}
	if pos.Empty() {
		fmt.Printf("%s holds no %s pool tokens.\n", color.CyanString(account.Hex()), pos.Pair.Symbol())
		return nil
	}
	renderPosition(pos)
	logger.Debug("position read", zap.String("account", account.Hex()), zap.String("pool", pool.Hex()))
	return nil
}

func accountFor(account, privateKey string) (common.Address, error) {
	if account != "" {
		return parseAddressFlag("account", account)
	}
	if privateKey == "" {
		return common.Address{}, fmt.Errorf("--account or --private-key is required")
	}
	key, err := crypto.HexToECDSA(trimHex(privateKey))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func trimHex(value string) string {
	if len(value) >= 2 && (value[:2] == "0x" || value[:2] == "0X") {
		return value[2:]
	}
	return value
}

func mustString(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return value
}
