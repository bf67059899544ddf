package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapkit/internal/model"
	"zapkit/internal/storage"
	"zapkit/internal/storage/postgres"
)

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	limit, _ := cmd.Flags().GetInt("limit")
	prune, _ := cmd.Flags().GetDuration("prune")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pending, err := storage.OpenPendingStore(cfg.Pending)
	if err != nil {
		return err
	}

	if unsettled := pending.Unsettled(); len(unsettled) > 0 {
		e, err := openEnv(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer e.Close()

		head, err := e.client.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("latest block: %w", err)
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Checking %d pending transactions...", len(unsettled))
		s.Start()
		for _, tx := range unsettled {
			if tx.ChainID != e.chain.ID {
				continue
			}
			receipt, status, err := receiptStatus(ctx, e, tx.Hash)
			if err != nil {
				logger.Warn("receipt check failed", zap.String("hash", tx.Hash), zap.Error(err))
				continue
			}
			if receipt != nil {
				logSettled(ctx, e, tx, receipt, head)
				if err := pending.Resolve(tx.Hash, status); err != nil {
					s.Stop()
					return err
				}
			}
		}
		s.Stop()
	}

	if prune > 0 {
		removed, err := pending.Prune(time.Now().Add(-prune))
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("pruned settled transactions", zap.Int("count", removed))
		}
	}

	txs := pending.List()
	ch, _ := cfg.Chain()
	if len(txs) == 0 {
		fmt.Println("No transactions recorded.")
	} else {
		renderPending(txs, ch)
	}

	records, err := recentActivity(ctx, cfg.Journal, cfg.PGDSN, cfg.PrivateKey, txs, limit, logger)
	if err != nil {
		color.Red("Journal unavailable: %v", err)
		return nil
	}
	if len(records) > 0 {
		renderJournal(records)
	}
	return nil
}

func receiptStatus(ctx context.Context, e *env, hash string) (*types.Receipt, string, error) {
	receipt, err := e.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, model.TxPending, nil
	}
	if err != nil {
		return nil, "", err
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return receipt, model.TxConfirmed, nil
	}
	return receipt, model.TxReverted, nil
}

func logSettled(ctx context.Context, e *env, tx model.PendingTx, receipt *types.Receipt, head uint64) {
	fields := []zap.Field{
		zap.String("hash", tx.Hash),
		zap.String("summary", tx.Summary),
		zap.Uint64("status", receipt.Status),
	}
	if receipt.BlockNumber != nil {
		block := receipt.BlockNumber.Uint64()
		fields = append(fields, zap.Uint64("block", block))
		if head >= block {
			fields = append(fields, zap.Uint64("confirmations", head-block+1))
		}
		if ts, err := e.client.BlockTimestamp(ctx, block); err == nil {
			fields = append(fields, zap.Time("mined_at", time.Unix(int64(ts), 0).UTC()))
		}
	}
	e.logger.Info("transaction settled", fields...)
}

// recentActivity reads the Postgres journal when configured, mirroring the
// pending store into it, and the JSONL journal otherwise.
func recentActivity(ctx context.Context, journalPath, dsn, privateKey string, txs []model.PendingTx, limit int, logger *zap.Logger) ([]model.ZapRecord, error) {
	if dsn == "" {
		return storage.NewJsonlJournal(journalPath).Tail(limit)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := store.UpsertPending(ctx, txs); err != nil {
		return nil, err
	}
	logger.Debug("pending transactions mirrored", zap.Int("count", len(txs)))

	if privateKey == "" {
		return storage.NewJsonlJournal(journalPath).Tail(limit)
	}
	account, err := accountFor("", privateKey)
	if err != nil {
		return nil, err
	}
	return store.RecentAttempts(ctx, account.Hex(), limit)
}
