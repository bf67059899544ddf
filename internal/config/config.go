package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"zapkit/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	ChainID      uint64
	PrivateKey   string
	Journal      string
	Pending      string
	PGDSN        string
	Slippage     uint64
	MaxHops      int
	Bases        []string
	PermitTTL    time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
	Chains       []model.Chain
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}

	chains, err := parseChains(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		ChainID:      v.GetUint64("chain-id"),
		PrivateKey:   v.GetString("private-key"),
		Journal:      v.GetString("journal"),
		Pending:      v.GetString("pending"),
		PGDSN:        v.GetString("pg-dsn"),
		Slippage:     v.GetUint64("slippage"),
		MaxHops:      v.GetInt("max-hops"),
		Bases:        getStringSlice(v, "bases"),
		PermitTTL:    v.GetDuration("permit-ttl"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		Chains:       chains,
	}
	if cfg.Slippage >= 10_000 {
		return Config{}, fmt.Errorf("slippage %d bps out of range", cfg.Slippage)
	}
	if cfg.MaxHops < 1 {
		return Config{}, fmt.Errorf("max-hops must be at least 1, got %d", cfg.MaxHops)
	}

	return cfg, nil
}

// Chain returns the configured chain with ChainID. The top level rpc value,
// when set, overrides the chain's own endpoint.
func (c Config) Chain() (model.Chain, error) {
	for _, ch := range c.Chains {
		if ch.ID != c.ChainID {
			continue
		}
		if c.RPCURL != "" {
			ch.RPCURL = c.RPCURL
		}
		if ch.RPCURL == "" {
			return model.Chain{}, fmt.Errorf("chain %d has no rpc endpoint", ch.ID)
		}
		return ch, nil
	}
	return model.Chain{}, fmt.Errorf("chain %d is not configured", c.ChainID)
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	// A missing .env is fine; explicit environment variables still apply.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ZAPKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(56))
	v.SetDefault("journal", "./data/journal.jsonl")
	v.SetDefault("pending", "./data/pending.json")
	v.SetDefault("slippage", uint64(500))
	v.SetDefault("max-hops", 3)
	v.SetDefault("permit-ttl", 20*time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")
	v.SetDefault("listen", ":8080")
	v.SetDefault("read-timeout", 10*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
