package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func pack(get func() (abi.ABI, error), method string, args ...interface{}) ([]byte, error) {
	parsed, err := get()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// PackApprove encodes ERC20 approve(spender, value).
func PackApprove(spender common.Address, value *big.Int) ([]byte, error) {
	return pack(ERC20ABI, "approve", spender, value)
}

// PackSwapData encodes the router call the zapper executes to move the input
// into one side of the pair.
func PackSwapData(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return pack(RouterABI, "swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}

// ZapInCall holds the arguments of zapper.zapIn.
type ZapInCall struct {
	FromToken     common.Address
	Pair          common.Address
	Amount        *big.Int
	MinPoolTokens *big.Int
	SwapTarget    common.Address
	SwapData      []byte
}

// PackZapIn encodes zapIn. FromToken is the zero address for native input.
func PackZapIn(call ZapInCall) ([]byte, error) {
	swapData := call.SwapData
	if swapData == nil {
		swapData = []byte{}
	}
	return pack(ZapperABI, "zapIn", call.FromToken, call.Pair, call.Amount, call.MinPoolTokens, call.SwapTarget, swapData)
}

// PackDeposit encodes chef.deposit(pid, amount).
func PackDeposit(pid, amount *big.Int) ([]byte, error) {
	return pack(ChefABI, "deposit", pid, amount)
}

// PackDepositWithPermit encodes chef.depositWithPermit with an EIP-2612
// signature split into v, r and s.
func PackDepositWithPermit(pid, amount, deadline *big.Int, v uint8, r, s [32]byte) ([]byte, error) {
	return pack(ChefABI, "depositWithPermit", pid, amount, deadline, v, r, s)
}
