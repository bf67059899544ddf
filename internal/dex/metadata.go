package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapkit/internal/chain"
	"zapkit/internal/model"
)

// metaCache holds chain metadata that never changes for an address: token
// decimals and symbols, and the token sides of a pair.
type metaCache[V any] struct {
	mu   sync.RWMutex
	data map[common.Address]V
}

func newMetaCache[V any]() *metaCache[V] {
	return &metaCache[V]{data: make(map[common.Address]V)}
}

func (c *metaCache[V]) get(address common.Address) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[address]
	return v, ok
}

func (c *metaCache[V]) put(address common.Address, v V) {
	c.mu.Lock()
	c.data[address] = v
	c.mu.Unlock()
}

// putPair caches a pair without its reserves, which are always read fresh.
func putPair(c *metaCache[model.Pair], pair model.Pair) {
	pair.Reserve0, pair.Reserve1 = nil, nil
	c.put(pair.Address, pair)
}

func callMethod(ctx context.Context, client *chain.Client, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// loadToken reads decimals, symbol and name of an ERC20. Only decimals is
// required; symbol and name accept the bytes32 encoding of legacy tokens and
// stay empty when neither encoding answers.
func (r *Reader) loadToken(ctx context.Context, address common.Address) (model.Token, error) {
	token := model.Token{ChainID: r.chainID, Address: address}

	erc20, err := ERC20ABI()
	if err != nil {
		return token, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, r.client, address, erc20, "decimals")
	if err != nil {
		return token, err
	}
	if token.Decimals, err = asUint8(values[0]); err != nil {
		return token, err
	}

	token.Symbol = r.tokenText(ctx, address, "symbol")
	token.Name = r.tokenText(ctx, address, "name")
	return token, nil
}

func (r *Reader) tokenText(ctx context.Context, address common.Address, method string) string {
	erc20, err := ERC20ABI()
	if err != nil {
		return ""
	}
	values, err := callMethod(ctx, r.client, address, erc20, method)
	if err == nil {
		if text, ok := values[0].(string); ok {
			return text
		}
	}

	legacy, lerr := erc20ABIBytes32Instance()
	if lerr != nil {
		return ""
	}
	values, lerr = callMethod(ctx, r.client, address, legacy, method)
	if lerr == nil {
		if text, ok := bytes32ToString(values[0]); ok {
			return text
		}
	}
	r.logger.Debug("token text unavailable",
		zap.String("token", address.Hex()),
		zap.String("method", method),
		zap.NamedError("string_err", err),
		zap.NamedError("bytes32_err", lerr),
	)
	return ""
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// asBigInt copies any integer the ABI decoder produces for uint fields.
func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return big.NewInt(int64(v)), nil
	case uint16:
		return big.NewInt(int64(v)), nil
	case uint32:
		return big.NewInt(int64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	n, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() || n.Uint64() > 255 {
		return 0, fmt.Errorf("decimals %s out of range", n)
	}
	return uint8(n.Uint64()), nil
}
