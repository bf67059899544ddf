package session

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"zapkit/internal/model"
	"zapkit/internal/permit"
	"zapkit/internal/txn"
)

type waitResult struct {
	receipt *types.Receipt
	err     error
}

// fakeHandle blocks in Wait until the test releases it.
type fakeHandle struct {
	hash common.Hash
	done chan waitResult
}

func newHandle(n byte) *fakeHandle {
	return &fakeHandle{hash: common.BytesToHash([]byte{n}), done: make(chan waitResult, 1)}
}

func (h *fakeHandle) Hash() common.Hash { return h.hash }

func (h *fakeHandle) Wait(ctx context.Context) (*types.Receipt, error) {
	select {
	case r := <-h.done:
		return r.receipt, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *fakeHandle) mine(status uint64) {
	h.done <- waitResult{receipt: &types.Receipt{Status: status, TxHash: h.hash}}
}

type fakeReader struct {
	mu          sync.Mutex
	allowances  map[common.Address]*big.Int
	balances    map[common.Address]*big.Int
	native      *big.Int
	allowErr    error
	tokens      map[common.Address]model.Token
	pairs       map[common.Address]model.Pair
	supplies    map[common.Address]*big.Int
	candidates  []model.Pair
	stakingPool *big.Int

	lag     *allowanceLag
	reads   int
	gate    chan struct{}
	entered chan struct{}
}

// allowanceLag hides a new allowance for a number of reads, like a node
// that is behind the block holding the approval.
type allowanceLag struct {
	token common.Address
	value *big.Int
	reads int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		allowances: make(map[common.Address]*big.Int),
		balances:   make(map[common.Address]*big.Int),
		native:     new(big.Int),
		tokens:     make(map[common.Address]model.Token),
		pairs:      make(map[common.Address]model.Pair),
		supplies:   make(map[common.Address]*big.Int),
	}
}

func (f *fakeReader) setAllowance(token common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[token] = v
}

func (f *fakeReader) setBalance(token common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[token] = v
}

// lagAllowance makes v visible only after n more allowance reads.
func (f *fakeReader) lagAllowance(token common.Address, v *big.Int, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lag = &allowanceLag{token: token, value: v, reads: n}
}

// block makes allowance reads wait until the returned release is called.
func (f *fakeReader) block() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	gate := f.gate
	return func() {
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeReader) allowanceReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeReader) Allowance(ctx context.Context, token model.Token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if lag := f.lag; lag != nil && lag.token == token.Address {
		if lag.reads > 0 {
			lag.reads--
		} else {
			f.allowances[token.Address] = lag.value
			f.lag = nil
		}
	}
	if token.Native {
		return new(big.Int).Set(abi.MaxUint256), nil
	}
	if f.allowErr != nil {
		return nil, f.allowErr
	}
	if v, ok := f.allowances[token.Address]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeReader) BalanceOf(ctx context.Context, token model.Token, owner common.Address) (*big.Int, error) {
	if token.Native {
		return f.NativeBalance(ctx, owner)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.balances[token.Address]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeReader) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.native), nil
}

func (f *fakeReader) Token(ctx context.Context, address common.Address) (model.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[address]
	if !ok {
		return model.Token{}, errors.New("execution reverted")
	}
	return token, nil
}

func (f *fakeReader) Pair(ctx context.Context, address common.Address) (model.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pair, ok := f.pairs[address]
	if !ok {
		return model.Pair{}, errors.New("execution reverted")
	}
	return pair, nil
}

func (f *fakeReader) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.supplies[token]), nil
}

func (f *fakeReader) CandidatePairs(ctx context.Context, factory common.Address, tokens []model.Token) ([]model.Pair, error) {
	return f.candidates, nil
}

func (f *fakeReader) StakingPool(ctx context.Context, chef, lp common.Address) (*big.Int, error) {
	if f.stakingPool == nil {
		return nil, errors.New("not staked")
	}
	return f.stakingPool, nil
}

// fakeChain hands out handles for approvals and sends in order.
type fakeChain struct {
	mu         sync.Mutex
	handles    []*fakeHandle
	approvals  []model.Token
	calls      []txn.Call
	next       byte
	autoMine   bool
	approveErr error
}

func (f *fakeChain) handle() *fakeHandle {
	f.next++
	h := newHandle(f.next)
	if f.autoMine {
		h.mine(types.ReceiptStatusSuccessful)
	}
	f.handles = append(f.handles, h)
	return h
}

func (f *fakeChain) Approve(ctx context.Context, token model.Token, spender common.Address, amount *big.Int) (txn.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	f.approvals = append(f.approvals, token)
	return f.handle(), nil
}

func (f *fakeChain) Send(ctx context.Context, call txn.Call) (txn.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.handle(), nil
}

func (f *fakeChain) last() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[len(f.handles)-1]
}

func (f *fakeChain) approvalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.approvals)
}

func (f *fakeChain) sent() []txn.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]txn.Call(nil), f.calls...)
}

type fakeSigner struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeSigner) SignPermit(ctx context.Context, token, spender common.Address, value, deadline *big.Int) (permit.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return permit.Signature{}, f.err
	}
	return permit.Signature{Spender: spender, Value: value, Deadline: deadline, V: 27, R: [32]byte{1}, S: [32]byte{2}}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	records []model.ZapRecord
}

func (r *memRecorder) Record(ctx context.Context, record model.ZapRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *memRecorder) targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.To
	}
	return out
}

type memPending struct {
	mu  sync.Mutex
	txs map[string]model.PendingTx
}

func newMemPending() *memPending {
	return &memPending{txs: make(map[string]model.PendingTx)}
}

func (p *memPending) Put(tx model.PendingTx) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs[tx.Hash] = tx
	return nil
}

func (p *memPending) Resolve(hash, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := p.txs[hash]
	tx.Status = status
	p.txs[hash] = tx
	return nil
}

func (p *memPending) status(hash common.Hash) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txs[hash.Hex()].Status
}

// fakeOp is an Operation whose submission goes through fakeChain.
type fakeOp struct {
	token   model.Token
	spender common.Address
	amount  *big.Int
	permit  bool
	chain   *fakeChain
	settled *big.Int

	mu   sync.Mutex
	sigs []*permit.Signature
}

func (o *fakeOp) Name() string            { return "zap" }
func (o *fakeOp) Token() model.Token      { return o.token }
func (o *fakeOp) Spender() common.Address { return o.spender }
func (o *fakeOp) Amount() *big.Int        { return o.amount }
func (o *fakeOp) SupportsPermit() bool    { return o.permit }
func (o *fakeOp) Summary() string         { return "Deposit AAA/BBB" }

func (o *fakeOp) Submit(ctx context.Context, sig *permit.Signature) (txn.Handle, error) {
	o.mu.Lock()
	o.sigs = append(o.sigs, sig)
	o.mu.Unlock()
	return o.chain.Send(ctx, txn.Call{To: o.spender, Summary: o.Summary()})
}

func (o *fakeOp) Settle(ctx context.Context, receipt *types.Receipt) (*big.Int, error) {
	return o.settled, nil
}

func (o *fakeOp) Record() model.ZapRecord {
	return model.ZapRecord{Operation: o.Name(), ChainID: 56, Token: o.token.ID(), Amount: o.amount.String()}
}

func (o *fakeOp) signatures() []*permit.Signature {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*permit.Signature(nil), o.sigs...)
}
