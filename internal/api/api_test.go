package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"

	"zapkit/internal/chains"
	"zapkit/internal/dex"
	"zapkit/internal/model"
)

var (
	tokenA  = model.Token{ChainID: 56, Address: common.HexToAddress("0x00000000000000000000000000000000000000aa"), Symbol: "AAA", Decimals: 18}
	tokenB  = model.Token{ChainID: 56, Address: common.HexToAddress("0x00000000000000000000000000000000000000bb"), Symbol: "BBB", Decimals: 18}
	tokenC  = model.Token{ChainID: 56, Address: common.HexToAddress("0x00000000000000000000000000000000000000cc"), Symbol: "CCC", Decimals: 18}
	poolAB  = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	account = common.HexToAddress("0x0000000000000000000000000000000000001234")

	testChain = model.Chain{
		ID:            56,
		Name:          "BNB Chain",
		NativeSymbol:  "BNB",
		WrappedNative: common.HexToAddress("0x00000000000000000000000000000000000000ee"),
		Factory:       common.HexToAddress("0x00000000000000000000000000000000000000f0"),
		Chef:          common.HexToAddress("0x000000000000000000000000000000000000c4ef"),
	}
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fakeReader struct {
	tokens   map[common.Address]model.Token
	pairs    map[common.Address]model.Pair
	supply   map[common.Address]*big.Int
	balances map[common.Address]*big.Int
	staked   *big.Int
	pairErr  error
}

func (f *fakeReader) Token(ctx context.Context, address common.Address) (model.Token, error) {
	token, ok := f.tokens[address]
	if !ok {
		return model.Token{}, errors.New("execution reverted")
	}
	return token, nil
}

func (f *fakeReader) Pair(ctx context.Context, address common.Address) (model.Pair, error) {
	if f.pairErr != nil {
		return model.Pair{}, f.pairErr
	}
	pair, ok := f.pairs[address]
	if !ok {
		return model.Pair{}, errors.New("no pair")
	}
	return pair, nil
}

func (f *fakeReader) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return f.supply[token], nil
}

func (f *fakeReader) BalanceOf(ctx context.Context, token model.Token, owner common.Address) (*big.Int, error) {
	if v, ok := f.balances[token.Address]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

func (f *fakeReader) CandidatePairs(ctx context.Context, factory common.Address, tokens []model.Token) ([]model.Pair, error) {
	return nil, nil
}

func (f *fakeReader) StakingPool(ctx context.Context, chef, lp common.Address) (*big.Int, error) {
	if f.staked == nil {
		return nil, dex.ErrPoolNotStaked
	}
	return big.NewInt(3), nil
}

func (f *fakeReader) StakedBalance(ctx context.Context, chef common.Address, pid *big.Int, user common.Address) (*big.Int, error) {
	return f.staked, nil
}

func newTestApp(t *testing.T, reader *fakeReader) *fiber.App {
	t.Helper()
	registry, err := chains.NewRegistry([]model.Chain{
		testChain,
		{ID: 1, Name: "Ethereum"},
		{ID: 137, Name: "Polygon"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return NewApp(Options{
		Registry:  registry,
		Available: []uint64{56, 1},
		Services:  NewServices(NewService(testChain, reader, ServiceConfig{})),
	})
}

func defaultReader() *fakeReader {
	return &fakeReader{
		tokens: map[common.Address]model.Token{tokenA.Address: tokenA, tokenB.Address: tokenB, tokenC.Address: tokenC},
		pairs: map[common.Address]model.Pair{
			poolAB: {Address: poolAB, Token0: tokenA, Token1: tokenB, Reserve0: ether(1000), Reserve1: ether(1000)},
		},
		supply:   map[common.Address]*big.Int{poolAB: ether(1000)},
		balances: map[common.Address]*big.Int{poolAB: ether(10)},
	}
}

func get(t *testing.T, app *fiber.App, target string, out interface{}) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return resp.StatusCode
}

func TestQuoteHandler_OK(t *testing.T) {
	app := newTestApp(t, defaultReader())

	var body QuoteResponse
	status := get(t, app, "/quote?pool="+poolAB.Hex()+"&currency="+tokenA.Address.Hex()+"&amount=10&slippage_bps=100", &body)
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	if body.Target != "pair" || body.InputSymbol != "AAA" || body.Input != "10" {
		t.Fatalf("quote = %+v", body)
	}
	if body.Pool.Symbol != "AAA/BBB" || body.Pool.TotalSupply != ether(1000).String() {
		t.Fatalf("pool meta = %+v", body.Pool)
	}
	liquidity, ok := new(big.Int).SetString(body.LiquidityRaw, 10)
	if !ok || liquidity.Sign() <= 0 {
		t.Fatalf("liquidity = %q", body.LiquidityRaw)
	}
	minimum, _ := new(big.Int).SetString(body.MinimumOut, 10)
	want := new(big.Int).Div(new(big.Int).Mul(liquidity, big.NewInt(9900)), big.NewInt(10000))
	if minimum.Cmp(want) != 0 {
		t.Fatalf("minimum out = %s, want %s", minimum, want)
	}
	if body.Slippage != "1.00%" || body.Blocking {
		t.Fatalf("slippage=%s blocking=%v", body.Slippage, body.Blocking)
	}
}

func TestQuoteHandler_Validation(t *testing.T) {
	app := newTestApp(t, defaultReader())
	pool := "pool=" + poolAB.Hex()

	cases := map[string]int{
		"/quote":                                                             http.StatusBadRequest,
		"/quote?pool=0x12&currency=BNB&amount=1":                             http.StatusBadRequest,
		"/quote?" + pool + "&amount=1":                                       http.StatusBadRequest,
		"/quote?" + pool + "&currency=BNB":                                   http.StatusBadRequest,
		"/quote?" + pool + "&currency=BNB&amount=abc":                        http.StatusBadRequest,
		"/quote?" + pool + "&currency=DOGE&amount=1":                         http.StatusBadRequest,
		"/quote?" + pool + "&currency=BNB&amount=1&slippage_bps=20000":       http.StatusBadRequest,
		"/quote?" + pool + "&currency=" + tokenC.Address.Hex() + "&amount=1": http.StatusBadRequest,
		"/quote?chain_id=137&" + pool + "&currency=BNB&amount=1":             http.StatusNotFound,
	}
	for target, want := range cases {
		if got := get(t, app, target, nil); got != want {
			t.Fatalf("%s: status %d, want %d", target, got, want)
		}
	}
}

func TestQuoteHandler_EmptyPoolAndInternalError(t *testing.T) {
	reader := defaultReader()
	reader.supply[poolAB] = new(big.Int)
	app := newTestApp(t, reader)
	target := "/quote?pool=" + poolAB.Hex() + "&currency=" + tokenA.Address.Hex() + "&amount=1"
	if got := get(t, app, target, nil); got != http.StatusBadRequest {
		t.Fatalf("empty pool status %d", got)
	}

	reader.pairErr = errors.New("connection refused")
	if got := get(t, app, target, nil); got != http.StatusInternalServerError {
		t.Fatalf("read failure status %d", got)
	}
}

func TestPositionHandler(t *testing.T) {
	reader := defaultReader()
	reader.staked = ether(5)
	app := newTestApp(t, reader)

	var body PositionResponse
	status := get(t, app, "/position?pool="+poolAB.Hex()+"&account="+account.Hex(), &body)
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	if body.Wallet != "10" || body.Staked != "5" || body.PoolTokens != "15" {
		t.Fatalf("position = %+v", body)
	}
	if body.Share != "1.50%" || body.Pooled0 != "15" || body.Pooled1 != "15" || body.Empty {
		t.Fatalf("position = %+v", body)
	}

	reader.staked = nil
	reader.balances = map[common.Address]*big.Int{}
	body = PositionResponse{}
	if status := get(t, app, "/position?pool="+poolAB.Hex()+"&account="+account.Hex(), &body); status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	if !body.Empty || body.Staked != "0" {
		t.Fatalf("empty position = %+v", body)
	}

	if got := get(t, app, "/position?pool="+poolAB.Hex(), nil); got != http.StatusBadRequest {
		t.Fatalf("missing account status %d", got)
	}
}

func TestChainsHandler(t *testing.T) {
	app := newTestApp(t, defaultReader())

	var list []model.Chain
	if status := get(t, app, "/chains", &list); status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	if len(list) != 2 || list[0].ID != 56 || list[1].ID != 1 {
		t.Fatalf("chains = %+v", list)
	}

	list = nil
	if status := get(t, app, "/chains?exclude=56", &list); status != http.StatusOK {
		t.Fatalf("unexpected status: %d", status)
	}
	if len(list) != 1 || list[0].ID != 1 {
		t.Fatalf("chains excluding 56 = %+v", list)
	}
}
