package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapkit/internal/amm"
	"zapkit/internal/model"
)

// Event is an input to Orchestrator.Dispatch.
type Event interface {
	event()
}

type (
	// SelectPool switches the page to a pool and starts a new session.
	SelectPool struct{ Address common.Address }
	// SelectCurrency picks the input currency by native symbol or address.
	SelectCurrency struct{ ID string }
	// TypeAmount sets the typed input amount.
	TypeAmount struct{ Value string }
	// UseMax types the whole balance, keeping a gas reserve for native input.
	UseMax          struct{}
	RequestApproval struct{}
	RequestZap      struct{}
	// RequestStake stakes the pool tokens received from a finished zap.
	RequestStake struct{}
	Retry        struct{}
	Reset        struct{}
)

func (SelectPool) event()      {}
func (SelectCurrency) event()  {}
func (TypeAmount) event()      {}
func (UseMax) event()          {}
func (RequestApproval) event() {}
func (RequestZap) event()      {}
func (RequestStake) event()    {}
func (Retry) event()           {}
func (Reset) event()           {}

// Config wires an Orchestrator.
type Config struct {
	Chain    model.Chain
	Owner    common.Address
	Reader   PoolReader
	Approver Approver
	Sender   Sender
	Signer   PermitSigner
	Recorder Recorder
	Pending  PendingStore
	Logger   *zap.Logger

	Slippage amm.Slippage
	MaxHops  int
	// Bases are routing tokens tried besides the pair tokens and the
	// wrapped native token.
	Bases []model.Token
	// MaxRetries and RetryBackoff bound the allowance poll after an
	// approval is mined.
	MaxRetries   int
	RetryBackoff time.Duration
	// OnChange is called after every transition of the zap or stake cycle.
	// It must not call Dispatch.
	OnChange func(operation string, snap MachineSnapshot)
	Now      func() time.Time
}

// Session is the state of one zap page visit. It is replaced wholesale on
// pool selection and reset.
type Session struct {
	ID          uint64
	Chain       model.Chain
	Pool        *model.Pair
	TotalSupply *big.Int
	Currency    *model.Token
	Typed       string
	Parsed      *model.Amount
	Balance     *big.Int
	InputError  error
	Quote       *amm.ZapQuote
	Zap         MachineSnapshot
	Stake       MachineSnapshot
	// LPBalance is the pool-token balance read after the last finished cycle.
	LPBalance *big.Int
}

// Orchestrator composes the zap page: input selection, quoting, and the zap
// and stake cycles. Dispatch calls are serialized by serial; mu only guards
// the session and machine fields, so Snapshot never waits on chain reads.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger

	serial     sync.Mutex
	mu         sync.Mutex
	sequence   uint64
	session    Session
	candidates []model.Pair
	zap        *Machine
	stake      *Machine
}

// New returns an orchestrator with an empty session.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Slippage == 0 {
		cfg.Slippage = amm.DefaultZapSlippage
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = amm.DefaultMaxHops
	}
	o := &Orchestrator{cfg: cfg, logger: cfg.Logger}
	o.renew()
	return o
}

// renew abandons the current machines and starts a fresh session.
func (o *Orchestrator) renew() {
	if o.zap != nil {
		o.zap.Reset()
	}
	if o.stake != nil {
		o.stake.Reset()
	}
	o.sequence++
	zapMachine, stakeMachine := o.newMachine("zap", false), o.newMachine("stake", true)

	o.mu.Lock()
	o.session = Session{ID: o.sequence, Chain: o.cfg.Chain}
	o.zap, o.stake = zapMachine, stakeMachine
	o.mu.Unlock()
	o.candidates = nil
}

func (o *Orchestrator) newMachine(name string, autoSubmit bool) *Machine {
	cfg := MachineConfig{
		Owner:            o.cfg.Owner,
		Reader:           o.cfg.Reader,
		Approver:         o.cfg.Approver,
		Recorder:         o.cfg.Recorder,
		Pending:          o.cfg.Pending,
		Logger:           o.logger.With(zap.String("cycle", name), zap.Uint64("session", o.sequence)),
		SessionID:        o.sequence,
		AllowanceRetries: o.cfg.MaxRetries,
		AllowanceBackoff: o.cfg.RetryBackoff,
		AutoSubmit:       autoSubmit,
		Now:              o.cfg.Now,
	}
	if name == "stake" {
		cfg.Signer = o.cfg.Signer
	}
	if o.cfg.OnChange != nil {
		cfg.OnChange = func(snap MachineSnapshot) { o.cfg.OnChange(name, snap) }
	}
	return NewMachine(cfg)
}

// update applies fn to the session under mu.
func (o *Orchestrator) update(fn func(s *Session)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.session)
}

// Dispatch applies ev. Input problems are reported through
// Session.InputError and do not fail the call; errors are returned for
// rejected transitions and failed chain calls.
func (o *Orchestrator) Dispatch(ctx context.Context, ev Event) error {
	o.serial.Lock()
	defer o.serial.Unlock()

	switch e := ev.(type) {
	case SelectPool:
		return o.selectPool(ctx, e.Address)
	case SelectCurrency:
		if err := o.editable("select currency"); err != nil {
			return err
		}
		token, err := o.resolveCurrency(ctx, e.ID)
		if err != nil {
			return err
		}
		o.update(func(s *Session) { s.Currency = &token })
		o.candidates = nil
		return o.requote(ctx, true)
	case TypeAmount:
		if err := o.editable("type amount"); err != nil {
			return err
		}
		o.update(func(s *Session) { s.Typed = e.Value })
		return o.requote(ctx, true)
	case UseMax:
		return o.useMax(ctx)
	case RequestApproval:
		if o.session.Quote == nil || o.session.InputError != nil {
			return o.inputError()
		}
		return o.zap.Approve(ctx)
	case RequestZap:
		if o.session.Quote == nil || o.session.InputError != nil {
			return o.inputError()
		}
		if o.session.Quote.Severity.Blocking() {
			return ErrPriceImpactTooHigh
		}
		return o.zap.Submit(ctx)
	case RequestStake:
		return o.requestStake(ctx)
	case Retry:
		if o.stake.State() == Error {
			if err := o.stake.Retry(ctx); err != nil {
				return err
			}
			return o.continueStake(ctx)
		}
		return o.zap.Retry(ctx)
	case Reset:
		o.renew()
		return nil
	default:
		return fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}
}

// CurrentState returns the state of the zap cycle.
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	zapMachine := o.zap
	o.mu.Unlock()
	return zapMachine.State()
}

// Snapshot returns a copy of the session including both cycles.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	s := o.session
	zapMachine, stakeMachine := o.zap, o.stake
	o.mu.Unlock()

	s.Zap = zapMachine.Snapshot()
	s.Stake = stakeMachine.Snapshot()
	switch {
	case s.Stake.Result != nil:
		s.LPBalance = s.Stake.Result
	case s.Zap.Result != nil:
		s.LPBalance = s.Zap.Result
	}
	return s
}

// Wait joins every in-flight confirmation of the current session.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	zapMachine, stakeMachine := o.zap, o.stake
	o.mu.Unlock()
	zapMachine.Wait()
	stakeMachine.Wait()
}

func (o *Orchestrator) idle() error {
	if o.zap.State().Busy() {
		return ErrBusy
	}
	return nil
}

// editable refuses input changes while a zap is in flight, and after it
// finished so the stake action is kept until a Reset.
func (o *Orchestrator) editable(action string) error {
	if err := o.idle(); err != nil {
		return err
	}
	if state := o.zap.State(); state == Finished {
		return transitionError(action, state)
	}
	return nil
}

func (o *Orchestrator) inputError() error {
	if o.session.InputError != nil {
		return o.session.InputError
	}
	return ErrInvalidAmount
}

// loadPool reads the pair with its current reserves and supply.
func (o *Orchestrator) loadPool(ctx context.Context, address common.Address) (model.Pair, *big.Int, error) {
	pair, err := o.cfg.Reader.Pair(ctx, address)
	if err != nil {
		return model.Pair{}, nil, fmt.Errorf("load pool %s: %w", address.Hex(), err)
	}
	supply, err := o.cfg.Reader.TotalSupply(ctx, address)
	if err != nil {
		return model.Pair{}, nil, fmt.Errorf("load pool supply %s: %w", address.Hex(), err)
	}
	return pair, supply, nil
}

func (o *Orchestrator) selectPool(ctx context.Context, address common.Address) error {
	if err := o.idle(); err != nil {
		return err
	}
	pair, supply, err := o.loadPool(ctx, address)
	if err != nil {
		return err
	}

	currency, typed := o.session.Currency, o.session.Typed
	o.renew()
	o.update(func(s *Session) {
		s.Pool = &pair
		s.TotalSupply = supply
		s.Currency = currency
		s.Typed = typed
	})
	o.logger.Info("pool selected",
		zap.Uint64("session", o.session.ID),
		zap.String("pool", pair.Address.Hex()),
		zap.String("symbol", pair.Symbol()),
	)
	return o.requote(ctx, false)
}

func (o *Orchestrator) resolveCurrency(ctx context.Context, id string) (model.Token, error) {
	id = strings.TrimSpace(id)
	if model.IsNativeID(id, o.cfg.Chain.Native().Symbol) {
		return o.cfg.Chain.Native(), nil
	}
	if !common.IsHexAddress(id) {
		return model.Token{}, fmt.Errorf("%w: unknown currency %q", ErrNoCurrency, id)
	}
	token, err := o.cfg.Reader.Token(ctx, common.HexToAddress(id))
	if err != nil {
		return model.Token{}, fmt.Errorf("load token %s: %w", id, err)
	}
	return token, nil
}

func (o *Orchestrator) useMax(ctx context.Context) error {
	if err := o.editable("use max"); err != nil {
		return err
	}
	if o.session.Currency == nil {
		o.update(func(s *Session) { s.InputError = ErrNoCurrency })
		return nil
	}
	currency := *o.session.Currency
	balance, err := o.cfg.Reader.BalanceOf(ctx, currency, o.cfg.Owner)
	if err != nil {
		return fmt.Errorf("read %s balance: %w", currency.Display(), err)
	}
	typed := amm.MaxAmountSpend(model.NewAmount(currency, balance)).Exact()
	o.update(func(s *Session) { s.Typed = typed })
	return o.requote(ctx, true)
}

// requote parses the typed amount and prices the zap, re-reading the pool
// first when refresh is set. A valid quote starts a new zap cycle built
// from it. Only Dispatch writes the session, so it is read here without mu
// and the result is committed under it.
func (o *Orchestrator) requote(ctx context.Context, refresh bool) error {
	next := o.session
	next.Quote = nil
	next.Parsed = nil
	next.InputError = nil
	defer func() { o.update(func(s *Session) { *s = next }) }()

	switch {
	case next.Pool == nil:
		next.InputError = ErrNoPool
		return nil
	case next.Currency == nil:
		next.InputError = ErrNoCurrency
		return nil
	}

	amount, err := model.ParseAmount(*next.Currency, next.Typed)
	if err != nil {
		next.InputError = fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		return nil
	}
	if amount.IsZero() {
		next.InputError = ErrInvalidAmount
		return nil
	}
	next.Parsed = &amount

	if refresh {
		pair, supply, err := o.loadPool(ctx, next.Pool.Address)
		if err != nil {
			return err
		}
		next.Pool = &pair
		next.TotalSupply = supply
	}

	next.Balance = nil
	balance, err := o.cfg.Reader.BalanceOf(ctx, amount.Token, o.cfg.Owner)
	if err != nil {
		o.logger.Warn("balance unavailable", zap.String("token", amount.Token.ID()), zap.Error(err))
	} else {
		next.Balance = balance
		if balance.Cmp(amount.Raw) < 0 {
			next.InputError = fmt.Errorf("%w: %s", ErrInsufficientBalance, amount.Token.Display())
		}
	}

	req := amm.ZapRequest{
		Pair:        *next.Pool,
		TotalSupply: next.TotalSupply,
		Input:       amount,
		Wrapped:     o.cfg.Chain.Wrapped(),
		MaxHops:     o.cfg.MaxHops,
		Slippage:    o.cfg.Slippage,
	}
	routed := amount.Token
	if routed.Native {
		routed = req.Wrapped
	}
	if !next.Pool.Involves(routed) {
		pairs, err := o.routingPairs(ctx, *next.Pool, routed)
		if err != nil {
			return err
		}
		req.Pairs = pairs
	}

	quote, err := amm.QuoteZap(req)
	if err != nil {
		if next.InputError == nil {
			next.InputError = err
		}
		return nil
	}
	next.Quote = quote
	if next.InputError != nil {
		return nil
	}

	op := NewZapOperation(o.cfg.Chain, quote, o.cfg.Owner, o.cfg.Sender, o.cfg.Reader, o.cfg.Now)
	if err := o.zap.Start(ctx, op); err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrSuperseded) {
		o.logger.Warn("approval unavailable", zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) routingPairs(ctx context.Context, pool model.Pair, input model.Token) ([]model.Pair, error) {
	if o.candidates != nil {
		return o.candidates, nil
	}
	tokens := []model.Token{input, pool.Token0, pool.Token1, o.cfg.Chain.Wrapped()}
	tokens = append(tokens, o.cfg.Bases...)
	pairs, err := o.cfg.Reader.CandidatePairs(ctx, o.cfg.Chain.Factory, tokens)
	if err != nil {
		return nil, fmt.Errorf("load routing pairs: %w", err)
	}
	o.candidates = pairs
	return pairs, nil
}

func (o *Orchestrator) requestStake(ctx context.Context) error {
	switch o.stake.State() {
	case Idle, Finished:
	case AwaitingApproval, AwaitingPermit:
		return o.stake.Approve(ctx)
	case Approved:
		return o.stake.Submit(ctx)
	default:
		return transitionError("stake", o.stake.State())
	}

	if o.zap.State() != Finished || o.session.Pool == nil {
		return transitionError("stake", o.zap.State())
	}
	pair := *o.session.Pool
	balance, err := o.cfg.Reader.BalanceOf(ctx, pair.LiquidityToken(), o.cfg.Owner)
	if err != nil {
		return fmt.Errorf("read pool token balance: %w", err)
	}
	if balance.Sign() == 0 {
		return ErrInvalidAmount
	}
	pid, err := o.cfg.Reader.StakingPool(ctx, o.cfg.Chain.Chef, pair.Address)
	if err != nil {
		return err
	}

	op := NewStakeOperation(o.cfg.Chain, pair, pid, balance, o.cfg.Owner, o.cfg.Sender, o.cfg.Reader)
	if err := o.stake.Start(ctx, op); err != nil {
		return err
	}
	return o.continueStake(ctx)
}

func (o *Orchestrator) continueStake(ctx context.Context) error {
	switch o.stake.State() {
	case Approved:
		return o.stake.Submit(ctx)
	case AwaitingApproval:
		return o.stake.Approve(ctx)
	default:
		return nil
	}
}
