package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
chain-id: 56
slippage: 300
bases: "0x55d398326f99059fF775485246999027B3197955, 0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"
chains:
  - id: 56
    name: BNB Chain
    rpc: https://bsc.example
    native-symbol: BNB
    wrapped-native: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
    factory: "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"
    router: "0x10ED43C718714eb63d5aA57B78B54704E256024E"
    explorer: https://bscscan.com/
  - id: 97
    name: BNB Testnet
    rpc: https://testnet.example
    native-symbol: tBNB
    wrapped-native: "0xae13d989daC2f0dEbFf460aC112a837C89BAa7cd"
    factory: "0x6725F303b657a9451d8BA641348b6761A6CC7a17"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadReadsChainsAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	require.Equal(t, uint64(56), cfg.ChainID)
	require.Equal(t, uint64(300), cfg.Slippage)
	require.Equal(t, 3, cfg.MaxHops)
	require.Equal(t, 20*time.Minute, cfg.PermitTTL)
	require.Equal(t, "info", cfg.LogLevel)
	require.Len(t, cfg.Bases, 2)
	require.Len(t, cfg.Chains, 2)

	bsc, err := cfg.Chain()
	require.NoError(t, err)
	require.Equal(t, "BNB Chain", bsc.Name)
	require.Equal(t, "https://bsc.example", bsc.RPCURL)
	require.Equal(t, "https://bscscan.com", bsc.Explorer)
	require.Equal(t, common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E"), bsc.Router)
	require.Equal(t, common.Address{}, bsc.Zapper)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("ZAPKIT_SLIPPAGE", "150")
	t.Setenv("ZAPKIT_RPC_OVERRIDES", "97=https://override.example")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("chain-id", 56, "")
	flags.String("rpc", "", "")
	require.NoError(t, flags.Parse([]string{"--chain-id", "97"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.Equal(t, uint64(150), cfg.Slippage)

	testnet, err := cfg.Chain()
	require.NoError(t, err)
	require.Equal(t, uint64(97), testnet.ID)
	require.Equal(t, "https://override.example", testnet.RPCURL)

	require.NoError(t, flags.Set("rpc", "http://127.0.0.1:8545"))
	cfg, err = Load(path, flags)
	require.NoError(t, err)
	testnet, err = cfg.Chain()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8545", testnet.RPCURL)
}

func TestLoadRejectsBadChains(t *testing.T) {
	cases := map[string]string{
		"missing factory": `
chains:
  - id: 1
    wrapped-native: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
`,
		"bad address": `
chains:
  - id: 1
    wrapped-native: "0xnothex"
    factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
`,
		"duplicate id": `
chains:
  - id: 1
    wrapped-native: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
  - id: 1
    wrapped-native: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
`,
		"slippage": "slippage: 10000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), nil)
			require.Error(t, err)
		})
	}
}

func TestChainNotConfigured(t *testing.T) {
	cfg, err := Load(writeConfig(t, "chain-id: 10\n"), nil)
	require.NoError(t, err)
	_, err = cfg.Chain()
	require.ErrorContains(t, err, "not configured")
}

func TestLoadServe(t *testing.T) {
	t.Setenv("ZAPKIT_AVAILABLE_CHAINS", "56, 97")
	cfg, err := LoadServe(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, []uint64{56, 97}, cfg.Available)
	require.Len(t, cfg.Chains, 2)
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap(" 56=https://a , bad, =x, 97=https://b=c")
	require.Equal(t, map[string]string{"56": "https://a", "97": "https://b=c"}, got)
}
