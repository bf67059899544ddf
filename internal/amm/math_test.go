package amm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"zapkit/internal/model"
)

func testToken(symbol string, b byte) model.Token {
	return model.Token{
		ChainID:  56,
		Address:  common.BytesToAddress([]byte{b}),
		Decimals: 18,
		Symbol:   symbol,
	}
}

func testPair(addr byte, t0, t1 model.Token, r0, r1 int64) model.Pair {
	return model.Pair{
		Address:  common.BytesToAddress([]byte{0xa0, addr}),
		Token0:   t0,
		Token1:   t1,
		Reserve0: big.NewInt(r0),
		Reserve1: big.NewInt(r1),
	}
}

func TestAmountOut(t *testing.T) {
	out, err := AmountOut(big.NewInt(1000), big.NewInt(10_000), big.NewInt(10_000), 30)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}
	if out.Int64() != 906 {
		t.Fatalf("AmountOut = %s, want 906", out)
	}

	if _, err := AmountOut(big.NewInt(1), big.NewInt(0), big.NewInt(10), 30); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("empty reserve err = %v", err)
	}
	if _, err := AmountOut(big.NewInt(0), big.NewInt(10), big.NewInt(10), 30); !errors.Is(err, ErrInsufficientInput) {
		t.Fatalf("zero input err = %v", err)
	}
}

func TestGetAmountOutReusesBuffers(t *testing.T) {
	var dst, t1, t2 big.Int
	first := GetAmountOut(&dst, &t1, &t2, big.NewInt(1000), big.NewInt(10_000), big.NewInt(10_000), 30)
	if first != &dst {
		t.Fatalf("GetAmountOut did not return dst")
	}
	if dst.Int64() != 906 {
		t.Fatalf("dst = %s, want 906", &dst)
	}
}

func TestLiquidityMinted(t *testing.T) {
	tests := []struct {
		name                 string
		supply, r0, r1, a, b int64
		want                 int64
		err                  error
	}{
		{name: "smaller side wins", supply: 1000, r0: 100, r1: 400, a: 10, b: 50, want: 100},
		{name: "other side smaller", supply: 1000, r0: 100, r1: 400, a: 50, b: 40, want: 100},
		{name: "first mint", supply: 0, a: 4000, b: 9000, want: 5000},
		{name: "first mint below minimum", supply: 0, a: 1000, b: 1000, err: ErrInsufficientLiquidityMinted},
		{name: "zero amount", supply: 1000, r0: 100, r1: 400, a: 0, b: 40, err: ErrInsufficientInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LiquidityMinted(big.NewInt(tt.supply), big.NewInt(tt.r0), big.NewInt(tt.r1), big.NewInt(tt.a), big.NewInt(tt.b))
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Int64() != tt.want {
				t.Fatalf("minted = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestLiquidityValue(t *testing.T) {
	a, b := testToken("A", 1), testToken("B", 2)
	pair := testPair(1, a, b, 1000, 4000)

	got, err := LiquidityValue(pair, b, big.NewInt(100), big.NewInt(25))
	if err != nil {
		t.Fatalf("LiquidityValue: %v", err)
	}
	if got.Raw.Int64() != 1000 || !got.Token.Equal(b) {
		t.Fatalf("value = %s %s, want 1000 B", got.Raw, got.Token.Symbol)
	}
	if pair.Reserve1.Int64() != 4000 {
		t.Fatalf("reserve mutated: %s", pair.Reserve1)
	}

	if _, err := LiquidityValue(pair, b, big.NewInt(10), big.NewInt(25)); !errors.Is(err, ErrStaleSupply) {
		t.Fatalf("stale supply err = %v", err)
	}
}

func TestSwapInAmountBalancesDeposit(t *testing.T) {
	reserveIn, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	reserveOut, _ := new(big.Int).SetString("2500000000000000000000000", 10)
	supply, _ := new(big.Int).SetString("1500000000000000000000000", 10)
	userIn, _ := new(big.Int).SetString("7000000000000000000000", 10)

	swapIn := SwapInAmount(reserveIn, userIn, 30)
	if swapIn.Sign() <= 0 || swapIn.Cmp(userIn) >= 0 {
		t.Fatalf("swapIn = %s out of range", swapIn)
	}

	out, err := AmountOut(swapIn, reserveIn, reserveOut, 30)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}
	keep := new(big.Int).Sub(userIn, swapIn)
	postIn := new(big.Int).Add(reserveIn, swapIn)
	postOut := new(big.Int).Sub(reserveOut, out)

	fromIn := new(big.Int).Mul(keep, supply)
	fromIn.Div(fromIn, postIn)
	fromOut := new(big.Int).Mul(out, supply)
	fromOut.Div(fromOut, postOut)

	diff := new(big.Int).Sub(fromIn, fromOut)
	diff.Abs(diff)
	// Within one part per million of the minted amount.
	limit := new(big.Int).Div(fromIn, big.NewInt(1_000_000))
	if diff.Cmp(limit) > 0 {
		t.Fatalf("unbalanced deposit: %s vs %s", fromIn, fromOut)
	}

	if got := SwapInAmount(reserveIn, big.NewInt(0), 30); got.Sign() != 0 {
		t.Fatalf("zero input swap = %s", got)
	}
}

func TestMinimumOutput(t *testing.T) {
	if got := MinimumOutput(big.NewInt(1_000_000), DefaultZapSlippage); got.Int64() != 950_000 {
		t.Fatalf("MinimumOutput(1e6, 5%%) = %s, want 950000", got)
	}
	if got := MinimumOutput(big.NewInt(999_999), 500); got.Int64() != 949_999 {
		t.Fatalf("MinimumOutput truncation = %s, want 949999", got)
	}
	if got := MinimumOutput(big.NewInt(1_000_000), 10_000); got.Sign() != 0 {
		t.Fatalf("MinimumOutput(100%%) = %s, want 0", got)
	}
	if got := MinimumOutput(nil, 50); got.Sign() != 0 {
		t.Fatalf("MinimumOutput(nil) = %s, want 0", got)
	}
}

func TestMinimumOutputMonotonic(t *testing.T) {
	estimates := []int64{1, 7, 999, 1_000_000, 123_456_789}
	for _, estimate := range estimates {
		prev := MinimumOutput(big.NewInt(estimate), 0)
		if prev.Int64() != estimate {
			t.Fatalf("zero tolerance changed estimate %d to %s", estimate, prev)
		}
		for bps := Slippage(25); bps <= 10_000; bps += 25 {
			got := MinimumOutput(big.NewInt(estimate), bps)
			if got.Cmp(prev) > 0 {
				t.Fatalf("estimate %d: widening to %d bps raised minimum %s -> %s", estimate, bps, prev, got)
			}
			if got.Int64() > estimate {
				t.Fatalf("estimate %d: minimum %s above estimate", estimate, got)
			}
			prev = got
		}
	}
}

func TestSlippageValidate(t *testing.T) {
	if err := Slippage(10_001).Validate(); !errors.Is(err, ErrInvalidSlippage) {
		t.Fatalf("Validate(10001) = %v", err)
	}
	if err := DefaultZapSlippage.Validate(); err != nil {
		t.Fatalf("Validate(default) = %v", err)
	}
	if got := DefaultZapSlippage.String(); got != "5.00%" {
		t.Fatalf("String = %q", got)
	}
}
