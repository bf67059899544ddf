package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapkit/internal/amm"
	"zapkit/internal/config"
	"zapkit/internal/model"
	"zapkit/internal/permit"
	"zapkit/internal/session"
	"zapkit/internal/storage"
	"zapkit/internal/storage/postgres"
	"zapkit/internal/txn"
)

// maxSteps bounds the approve/submit loop so a wallet that keeps failing
// cannot spin forever.
const maxSteps = 6

func runZap(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PrivateKey == "" {
		return fmt.Errorf("private key is required (--private-key or ZAPKIT_PRIVATE_KEY)")
	}
	pool, err := parseAddressFlag("pool", mustString(cmd, "pool"))
	if err != nil {
		return err
	}
	currency := mustString(cmd, "currency")
	if currency == "" {
		return fmt.Errorf("--currency is required")
	}
	useMax, _ := cmd.Flags().GetBool("max")
	amount := mustString(cmd, "amount")
	if amount == "" && !useMax {
		return fmt.Errorf("--amount or --max is required")
	}
	stake, _ := cmd.Flags().GetBool("stake")
	yes, _ := cmd.Flags().GetBool("yes")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.chain.Zapper == (common.Address{}) {
		return fmt.Errorf("chain %s has no zapper configured", e.chain.Name)
	}

	transactor, err := txn.NewTransactor(e.client, cfg.PrivateKey, chainIDBig(e.chain), logger)
	if err != nil {
		return err
	}

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	pending, err := storage.OpenPendingStore(cfg.Pending)
	if err != nil {
		return err
	}

	signer := permit.NewKeySigner(transactor.Key(), chainIDBig(e.chain), e.reader, confirmPermit(yes))

	orchestrator := session.New(session.Config{
		Chain:    e.chain,
		Owner:    transactor.From(),
		Reader:   e.reader,
		Approver: transactor,
		Sender:   transactor,
		Signer:   signer,
		Recorder: journal,
		Pending:  pending,
		Logger:   logger,
		Slippage: amm.Slippage(cfg.Slippage),
		MaxHops:  cfg.MaxHops,
		Bases:    e.bases(ctx, cfg.Bases),

		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		OnChange: func(operation string, snap session.MachineSnapshot) {
			logger.Debug("cycle changed", zap.String("operation", operation), zap.Stringer("state", snap.State))
		},
	})

	fmt.Printf("\nAccount: %s on %s\n", color.CyanString(transactor.From().Hex()), e.chain.Name)

	events := []session.Event{session.SelectPool{Address: pool}, session.SelectCurrency{ID: currency}}
	if useMax {
		events = append(events, session.UseMax{})
	} else {
		events = append(events, session.TypeAmount{Value: amount})
	}
	for _, ev := range events {
		if err := orchestrator.Dispatch(ctx, ev); err != nil {
			return err
		}
	}

	snap := orchestrator.Snapshot()
	if snap.Quote != nil {
		renderQuote(snap.Quote)
	}
	printView(snap.View())
	if snap.InputError != nil {
		return snap.InputError
	}
	if snap.Quote.Severity.Blocking() {
		return session.ErrPriceImpactTooHigh
	}
	if !yes && !confirm(fmt.Sprintf("Zap %s into %s?", snap.Parsed.String(), snap.Pool.Symbol())) {
		color.Yellow("Cancelled.")
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := driveZap(waitCtx, orchestrator); err != nil {
		return err
	}
	snap = orchestrator.Snapshot()
	color.Green("Zap confirmed: %s", e.chain.TxURL(snap.Zap.TxHash.Hex()))
	if snap.LPBalance != nil {
		fmt.Printf("Pool tokens: %s\n", model.NewAmount(snap.Pool.LiquidityToken(), snap.LPBalance).String())
	}

	if !stake {
		return nil
	}
	if err := driveStake(waitCtx, orchestrator, yes); err != nil {
		return err
	}
	snap = orchestrator.Snapshot()
	color.Green("Stake confirmed: %s", e.chain.TxURL(snap.Stake.TxHash.Hex()))
	return nil
}

func driveZap(ctx context.Context, o *session.Orchestrator) error {
	for step := 0; step < maxSteps; step++ {
		snap := o.Snapshot()
		switch snap.Zap.State {
		case session.Finished:
			return nil
		case session.Error:
			return snap.Zap.Err
		case session.AwaitingApproval:
			if snap.Zap.Err != nil && step > 0 {
				return snap.Zap.Err
			}
			if err := o.Dispatch(ctx, session.RequestApproval{}); err != nil {
				return err
			}
			waitWithSpinner(o, " Waiting for approval "+short(o.Snapshot().Zap.ApprovalTx.Hex())+"...")
		case session.Approved:
			if err := o.Dispatch(ctx, session.RequestZap{}); err != nil {
				return err
			}
			waitWithSpinner(o, " Waiting for deposit "+short(o.Snapshot().Zap.TxHash.Hex())+"...")
		default:
			waitWithSpinner(o, " Waiting...")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("zap did not finish, see zapkit status")
}

// driveStake runs the stake cycle. Without --yes the permit prompt reads
// stdin from the signing goroutine, so no spinner is drawn over it.
func driveStake(ctx context.Context, o *session.Orchestrator, yes bool) error {
	for step := 0; step < maxSteps; step++ {
		if step > 0 {
			snap := o.Snapshot().Stake
			switch {
			case snap.State == session.Finished:
				return nil
			case snap.State == session.Error:
				return snap.Err
			case permit.IsCancellation(snap.Err):
				color.Yellow("Permit declined, pool tokens stay in the wallet.")
				return nil
			case snap.Err != nil:
				return snap.Err
			}
		}
		if err := o.Dispatch(ctx, session.RequestStake{}); err != nil {
			return err
		}
		if yes {
			waitWithSpinner(o, " Staking...")
		} else {
			o.Wait()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("stake did not finish, see zapkit status")
}

func waitWithSpinner(o *session.Orchestrator, suffix string) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = suffix
	s.Start()
	o.Wait()
	s.Stop()
}

func confirmPermit(yes bool) permit.Confirm {
	return func(ctx context.Context, req permit.Request) error {
		if yes {
			return nil
		}
		prompt := fmt.Sprintf("Sign a permit letting %s spend %s %s?", short(req.Spender.Hex()), model.FormatUnits(req.Value, model.LiquidityDecimals), req.TokenName)
		if !confirm(prompt) {
			return &permit.SignerError{Code: permit.CodeUserRejected, Reason: "declined at prompt"}
		}
		return nil
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func openJournal(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Journal, func(), error) {
	jsonl := storage.NewJsonlJournal(cfg.Journal)
	if cfg.PGDSN == "" {
		return jsonl, func() {}, nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("journal mirrored to postgres")
	return storage.Multi{jsonl, store}, store.Close, nil
}
