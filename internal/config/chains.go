package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"zapkit/internal/model"
)

// parseChains reads the chains list and applies rpc-overrides
// ("56=https://...,97=https://...") on top of it.
func parseChains(v *viper.Viper) ([]model.Chain, error) {
	var chains []model.Chain
	if v.IsSet("chains") {
		raw, ok := v.Get("chains").([]interface{})
		if !ok {
			return nil, fmt.Errorf("chains: expected a list")
		}
		seen := make(map[uint64]bool, len(raw))
		for i, item := range raw {
			fields, ok := toStringMap(item)
			if !ok {
				return nil, fmt.Errorf("chains[%d]: expected a mapping", i)
			}
			ch, err := parseChain(fields)
			if err != nil {
				return nil, fmt.Errorf("chains[%d]: %w", i, err)
			}
			if seen[ch.ID] {
				return nil, fmt.Errorf("chains[%d]: duplicate chain id %d", i, ch.ID)
			}
			seen[ch.ID] = true
			chains = append(chains, ch)
		}
	}

	for key, url := range getStringMap(v, "rpc-overrides") {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rpc-overrides: invalid chain id %q", key)
		}
		for i := range chains {
			if chains[i].ID == id {
				chains[i].RPCURL = url
			}
		}
	}
	return chains, nil
}

func parseChain(fields map[string]string) (model.Chain, error) {
	id, err := parseChainID(fields["id"])
	if err != nil {
		return model.Chain{}, err
	}
	ch := model.Chain{
		ID:           id,
		Name:         fields["name"],
		Icon:         fields["icon"],
		RPCURL:       fields["rpc"],
		NativeSymbol: fields["native-symbol"],
		Explorer:     strings.TrimSuffix(fields["explorer"], "/"),
	}
	if ch.Name == "" {
		ch.Name = "chain " + fields["id"]
	}

	addresses := []struct {
		key      string
		dst      *common.Address
		required bool
	}{
		{"wrapped-native", &ch.WrappedNative, true},
		{"factory", &ch.Factory, true},
		{"router", &ch.Router, false},
		{"zapper", &ch.Zapper, false},
		{"chef", &ch.Chef, false},
	}
	for _, a := range addresses {
		value := fields[a.key]
		if value == "" {
			if a.required {
				return model.Chain{}, fmt.Errorf("missing %s", a.key)
			}
			continue
		}
		if !common.IsHexAddress(value) {
			return model.Chain{}, fmt.Errorf("invalid %s address %q", a.key, value)
		}
		*a.dst = common.HexToAddress(value)
	}
	return ch, nil
}

func toStringMap(item interface{}) (map[string]string, bool) {
	switch typed := item.(type) {
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[strings.ToLower(k)] = fmt.Sprintf("%v", v)
		}
		return out, true
	case map[interface{}]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[strings.ToLower(fmt.Sprintf("%v", k))] = fmt.Sprintf("%v", v)
		}
		return out, true
	default:
		return nil, false
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func parseChainID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chain id %q", raw)
	}
	return id, nil
}
