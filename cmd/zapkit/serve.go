package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapkit/internal/amm"
	"zapkit/internal/api"
	"zapkit/internal/chains"
	"zapkit/internal/config"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, err := chains.NewRegistry(cfg.Chains)
	if err != nil {
		return err
	}
	served := registry.Available(cfg.Available)
	if len(served) == 0 {
		return fmt.Errorf("no chains to serve")
	}
	// The configured chain answers requests without a chain_id.
	sort.SliceStable(served, func(i, j int) bool {
		return served[i].ID == cfg.ChainID && served[j].ID != cfg.ChainID
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := make([]*api.Service, 0, len(served))
	for _, ch := range served {
		chainCfg := cfg.Config
		chainCfg.ChainID = ch.ID
		if ch.ID != cfg.ChainID {
			chainCfg.RPCURL = ""
		}
		e, err := openEnv(ctx, chainCfg, logger)
		if err != nil {
			return fmt.Errorf("chain %d: %w", ch.ID, err)
		}
		defer e.Close()

		services = append(services, api.NewService(e.chain, e.reader, api.ServiceConfig{
			Bases:    e.bases(ctx, cfg.Bases),
			MaxHops:  cfg.MaxHops,
			Slippage: amm.Slippage(cfg.Slippage),
			Logger:   logger,
		}))
	}

	app := api.NewApp(api.Options{
		Registry:    registry,
		Available:   cfg.Available,
		Services:    api.NewServices(services...),
		ReadTimeout: cfg.ReadTimeout,
		Logger:      logger,
	})

	logger.Info("api start", zap.String("listen", cfg.Listen), zap.Int("chains", len(services)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Listen)
	}()

	select {
	case <-ctx.Done():
		logger.Info("api shutdown")
		return app.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
