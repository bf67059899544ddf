package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the HTTP API.
type ServeConfig struct {
	Config
	Listen      string
	ReadTimeout time.Duration
	// Available limits the chains the API exposes. Empty means all.
	Available []uint64
}

// LoadServe merges config sources into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	base, err := Load(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Config:      base,
		Listen:      v.GetString("listen"),
		ReadTimeout: v.GetDuration("read-timeout"),
	}
	for _, raw := range getStringSlice(v, "available-chains") {
		id, err := parseChainID(raw)
		if err != nil {
			return ServeConfig{}, err
		}
		cfg.Available = append(cfg.Available, id)
	}
	return cfg, nil
}
