package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zapkit/internal/chains"
	"zapkit/internal/config"
)

func runChains(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	registry, err := chains.NewRegistry(cfg.Chains)
	if err != nil {
		return err
	}
	selector := chains.NewSelector(registry, cfg.Available, nil)
	if exclude, _ := cmd.Flags().GetUint64("exclude"); exclude != 0 {
		other, err := registry.Get(exclude)
		if err != nil {
			return err
		}
		selector.SetOther(&other)
	}

	options := selector.Options()
	if len(options) == 0 {
		fmt.Println("No chains configured. Add a chains list to config.yaml.")
		return nil
	}
	renderChains(options, cfg.ChainID)
	return nil
}
