// Package session drives the approve, permit, zap and stake transactions
// of a zap page through explicit state machines.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"zapkit/internal/approval"
	"zapkit/internal/chain"
	"zapkit/internal/model"
	"zapkit/internal/permit"
	"zapkit/internal/txn"
)

// State is the phase of one approval and submit cycle.
type State int

const (
	Idle State = iota
	AwaitingApproval
	Approving
	Approved
	AwaitingPermit
	Submitting
	Finished
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingApproval:
		return "awaiting-approval"
	case Approving:
		return "approving"
	case Approved:
		return "approved"
	case AwaitingPermit:
		return "awaiting-permit"
	case Submitting:
		return "submitting"
	case Finished:
		return "finished"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether a transaction or signature is in flight.
func (s State) Busy() bool {
	return s == Approving || s == Submitting
}

// MachineConfig wires a Machine. Reader and Approver are required; Signer,
// Recorder and Pending are optional.
type MachineConfig struct {
	Owner    common.Address
	Reader   ChainReader
	Approver Approver
	Signer   PermitSigner
	Recorder Recorder
	Pending  PendingStore
	Logger   *zap.Logger

	SessionID uint64
	// PermitTTL is how long a gathered permit stays valid.
	PermitTTL time.Duration
	// AllowanceRetries and AllowanceBackoff bound the allowance poll after
	// an approval is mined, for nodes that lag behind the receipt.
	AllowanceRetries int
	AllowanceBackoff time.Duration
	// AutoSubmit submits the operation as soon as it becomes approved.
	AutoSubmit bool
	// OnChange is called after every transition, outside the machine lock.
	OnChange func(MachineSnapshot)
	Now      func() time.Time
}

// MachineSnapshot is a read-only copy of a Machine.
type MachineSnapshot struct {
	Operation         string
	State             State
	Approval          approval.State
	ApprovalSubmitted bool
	ApprovalTx        common.Hash
	Signed            bool
	TxHash            common.Hash
	Result            *big.Int
	Err               error
	Generation        uint64
}

// Machine runs one Operation from allowance check to confirmation. State is
// only changed under mu, and mu is never held across a chain call: calls run
// between two locked sections and their results are dropped when a Reset
// bumped the generation meanwhile. Confirmations are awaited in goroutines
// that report back tagged with the generation that started them.
type Machine struct {
	cfg     MachineConfig
	logger  *zap.Logger
	mu      sync.Mutex
	publish sync.Mutex
	wg      sync.WaitGroup
	tracker *approval.Tracker

	op         Operation
	state      State
	approval   approval.State
	generation uint64
	version    uint64
	noticed    uint64
	calling    bool
	permitting bool
	signature  *permit.Signature
	txHash     common.Hash
	result     *big.Int
	err        error
	outbox     []model.ZapRecord
}

// NewMachine returns an idle machine.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PermitTTL <= 0 {
		cfg.PermitTTL = DefaultDeadline
	}
	if cfg.AllowanceRetries <= 0 {
		cfg.AllowanceRetries = DefaultAllowanceRetries
	}
	if cfg.AllowanceBackoff <= 0 {
		cfg.AllowanceBackoff = DefaultAllowanceBackoff
	}
	return &Machine{
		cfg:     cfg,
		logger:  cfg.Logger,
		tracker: approval.NewTracker(),
	}
}

const (
	DefaultAllowanceRetries = 5
	DefaultAllowanceBackoff = 500 * time.Millisecond
)

// do runs fn under the lock, then journals and notifies what fn changed.
func (m *Machine) do(fn func() error) error {
	m.mu.Lock()
	err := fn()
	m.release()
	return err
}

// release unlocks mu and publishes queued journal records and the change
// notice. Draining under publish keeps them in transition order across
// goroutines; mu is never held while waiting for publish.
func (m *Machine) release() {
	m.mu.Unlock()

	m.publish.Lock()
	defer m.publish.Unlock()
	m.mu.Lock()
	records := m.outbox
	m.outbox = nil
	changed := m.version != m.noticed
	m.noticed = m.version
	snap := m.snapshotLocked()
	m.mu.Unlock()

	for _, rec := range records {
		if err := m.cfg.Recorder.Record(context.Background(), rec); err != nil {
			m.logger.Warn("journal write failed", zap.Error(err))
		}
	}
	if changed && m.cfg.OnChange != nil {
		m.cfg.OnChange(snap)
	}
}

// unlocked runs call without holding mu. The caller must hold mu and must
// compare the generation afterwards.
func (m *Machine) unlocked(call func()) {
	m.calling = true
	m.release()
	call()
	m.mu.Lock()
}

// settled ends a call started in generation. It reports false when a Reset
// superseded the call, in which case nothing of the call may be applied.
func (m *Machine) settled(generation uint64) bool {
	if generation != m.generation {
		return false
	}
	m.calling = false
	return true
}

// Start begins a cycle for op by reading the current allowance.
func (m *Machine) Start(ctx context.Context, op Operation) error {
	return m.do(func() error {
		if m.calling || m.state.Busy() || (m.state == AwaitingPermit && m.permitting) {
			return transitionError("start", m.state)
		}
		if op == nil {
			return transitionError("start without operation", m.state)
		}
		if amount := op.Amount(); amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}

		m.op = op
		m.generation++
		m.tracker.Reset(approval.KeyOf(op.Token(), op.Spender()))
		m.permitting = false
		m.signature = nil
		m.txHash = common.Hash{}
		m.result = nil
		return m.deriveApproval(ctx)
	})
}

func (m *Machine) deriveApproval(ctx context.Context) error {
	op, generation := m.op, m.generation
	var (
		allowance *big.Int
		err       error
	)
	m.unlocked(func() {
		allowance, err = m.cfg.Reader.Allowance(ctx, op.Token(), m.cfg.Owner, op.Spender())
	})
	if !m.settled(generation) {
		return ErrSuperseded
	}
	if err != nil {
		m.approval = approval.Unknown
		err = fmt.Errorf("read allowance of %s: %w", op.Token().Display(), err)
		m.setState(AwaitingApproval, err)
		return err
	}

	m.approval = m.tracker.State(op.Token(), op.Spender(), allowance, op.Amount())
	if m.approval == approval.Approved {
		m.setState(Approved, nil)
		return nil
	}
	m.setState(AwaitingApproval, nil)
	return nil
}

// Approve asks for a permit when the operation accepts one and a signer is
// configured, otherwise it sends an on-chain approval.
func (m *Machine) Approve(ctx context.Context) error {
	return m.do(func() error {
		if m.calling {
			return ErrBusy
		}
		if m.state != AwaitingApproval && m.state != AwaitingPermit {
			return transitionError("approve", m.state)
		}
		if m.op.SupportsPermit() && m.cfg.Signer != nil {
			if m.permitting {
				return ErrBusy
			}
			m.setState(AwaitingPermit, nil)
			m.gatherPermit(ctx)
			return nil
		}
		return m.approveOnChain(ctx)
	})
}

func (m *Machine) gatherPermit(ctx context.Context) {
	op := m.op
	generation := m.generation
	deadline := big.NewInt(m.cfg.Now().Add(m.cfg.PermitTTL).Unix())
	m.permitting = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		sig, err := m.cfg.Signer.SignPermit(ctx, op.Token().Address, op.Spender(), op.Amount(), deadline)
		m.dispatch(ctx, permitResult{generation: generation, sig: sig, err: err})
	}()
}

func (m *Machine) approveOnChain(ctx context.Context) error {
	op, generation := m.op, m.generation
	summary := "Approve " + op.Token().Display()
	var (
		handle txn.Handle
		err    error
	)
	m.unlocked(func() {
		handle, err = m.cfg.Approver.Approve(ctx, op.Token(), op.Spender(), op.Amount())
	})
	if !m.settled(generation) {
		if err == nil {
			m.abandon(ctx, generation, op, handle, summary)
		}
		return ErrSuperseded
	}
	if err != nil {
		err = fmt.Errorf("approve %s: %w", op.Token().Display(), err)
		m.setState(AwaitingApproval, err)
		return err
	}

	m.tracker.Submitted(handle.Hash())
	m.approval = approval.Pending
	m.track(op, handle.Hash(), summary)
	m.setState(Approving, nil)
	hash := handle.Hash()
	m.await(ctx, handle, func(receipt *types.Receipt, err error) completion {
		return approvalResult{generation: generation, hash: hash, receipt: receipt, err: err}
	})
	return nil
}

// Submit sends the operation from Approved.
func (m *Machine) Submit(ctx context.Context) error {
	return m.do(func() error {
		if m.calling {
			return ErrBusy
		}
		if m.state != Approved {
			return transitionError("submit", m.state)
		}
		return m.submit(ctx)
	})
}

func (m *Machine) submit(ctx context.Context) error {
	op, generation, sig := m.op, m.generation, m.signature
	m.setState(Submitting, nil)

	var (
		handle txn.Handle
		err    error
	)
	m.unlocked(func() {
		handle, err = op.Submit(ctx, sig)
	})
	if !m.settled(generation) {
		if err == nil {
			m.abandon(ctx, generation, op, handle, op.Summary())
		}
		return ErrSuperseded
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", op.Name(), err)
		var signerErr *SignerError
		if errors.As(err, &signerErr) {
			m.setState(Approved, err)
			return err
		}
		m.setState(Error, err)
		return err
	}

	m.txHash = handle.Hash()
	m.track(op, handle.Hash(), op.Summary())
	m.logger.Info("operation submitted",
		zap.String("operation", op.Name()),
		zap.String("tx", m.txHash.Hex()),
		zap.Bool("permit", sig != nil),
	)
	hash := handle.Hash()
	m.await(ctx, handle, func(receipt *types.Receipt, err error) completion {
		return submitResult{generation: generation, hash: hash, receipt: receipt, err: err}
	})
	return nil
}

// abandon keeps following a transaction broadcast by a superseded cycle so
// the pending store learns how it ended.
func (m *Machine) abandon(ctx context.Context, generation uint64, op Operation, handle txn.Handle, summary string) {
	m.track(op, handle.Hash(), summary)
	hash := handle.Hash()
	m.await(ctx, handle, func(receipt *types.Receipt, err error) completion {
		return submitResult{generation: generation, hash: hash, receipt: receipt, err: err}
	})
}

// Retry re-derives the approval after a failed submission.
func (m *Machine) Retry(ctx context.Context) error {
	return m.do(func() error {
		if m.calling {
			return ErrBusy
		}
		if m.state != Error {
			return transitionError("retry", m.state)
		}
		m.signature = nil
		m.txHash = common.Hash{}
		return m.deriveApproval(ctx)
	})
}

// Reset abandons the cycle. Calls and completions still in flight are
// ignored.
func (m *Machine) Reset() {
	_ = m.do(func() error {
		m.generation++
		m.tracker = approval.NewTracker()
		m.approval = approval.Unknown
		m.calling = false
		m.permitting = false
		m.signature = nil
		m.txHash = common.Hash{}
		m.result = nil
		if m.state != Idle {
			m.setState(Idle, nil)
		}
		m.op = nil
		return nil
	})
}

// Wait blocks until every outstanding confirmation and signature request
// has reported back.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the machine.
func (m *Machine) Snapshot() MachineSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() MachineSnapshot {
	snap := MachineSnapshot{
		State:             m.state,
		Approval:          m.approval,
		ApprovalSubmitted: m.tracker.WasSubmitted(),
		ApprovalTx:        m.tracker.TxHash(),
		Signed:            m.signature != nil,
		TxHash:            m.txHash,
		Err:               m.err,
		Generation:        m.generation,
	}
	if m.op != nil {
		snap.Operation = m.op.Name()
	}
	if m.result != nil {
		snap.Result = new(big.Int).Set(m.result)
	}
	return snap
}

// Operation returns the operation of the current cycle, nil when idle.
func (m *Machine) Operation() Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.op
}

type completion interface {
	gen() uint64
}

type permitResult struct {
	generation uint64
	sig        permit.Signature
	err        error
}

type approvalResult struct {
	generation uint64
	hash       common.Hash
	receipt    *types.Receipt
	err        error
}

type allowanceResult struct {
	generation uint64
	allowance  *big.Int
	err        error
}

type submitResult struct {
	generation uint64
	hash       common.Hash
	receipt    *types.Receipt
	err        error
}

func (r permitResult) gen() uint64    { return r.generation }
func (r approvalResult) gen() uint64  { return r.generation }
func (r allowanceResult) gen() uint64 { return r.generation }
func (r submitResult) gen() uint64    { return r.generation }

func (m *Machine) await(ctx context.Context, handle txn.Handle, done func(*types.Receipt, error) completion) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		receipt, err := handle.Wait(ctx)
		m.dispatch(ctx, done(receipt, err))
	}()
}

// pollAllowance re-reads the allowance until it covers the operation amount
// or the retries run out.
func (m *Machine) pollAllowance(ctx context.Context) {
	op, generation := m.op, m.generation
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		var allowance *big.Int
		err := chain.WithRetry(ctx, m.cfg.AllowanceRetries, m.cfg.AllowanceBackoff, func(ctx context.Context) error {
			v, err := m.cfg.Reader.Allowance(ctx, op.Token(), m.cfg.Owner, op.Spender())
			if err != nil {
				return err
			}
			allowance = v
			if v.Cmp(op.Amount()) < 0 {
				return fmt.Errorf("%w: have %s, need %s", ErrAllowanceLagging, v, op.Amount())
			}
			return nil
		})
		m.dispatch(ctx, allowanceResult{generation: generation, allowance: allowance, err: err})
	}()
}

func (m *Machine) dispatch(ctx context.Context, ev completion) {
	_ = m.do(func() error {
		switch e := ev.(type) {
		case approvalResult:
			m.resolve(e.hash, e.receipt, e.err)
		case submitResult:
			m.resolve(e.hash, e.receipt, e.err)
		}
		if ev.gen() != m.generation {
			m.logger.Debug("discarding stale completion",
				zap.Uint64("generation", ev.gen()),
				zap.Uint64("current", m.generation),
			)
			return nil
		}

		switch e := ev.(type) {
		case permitResult:
			m.onPermit(ctx, e)
		case approvalResult:
			m.onApprovalMined(ctx, e)
		case allowanceResult:
			m.onAllowance(ctx, e)
		case submitResult:
			m.onSubmitMined(ctx, e)
		}
		return nil
	})
}

func (m *Machine) onPermit(ctx context.Context, e permitResult) {
	m.permitting = false
	if m.state != AwaitingPermit {
		return
	}
	switch {
	case e.err == nil:
		sig := e.sig
		m.signature = &sig
		m.approval = approval.Approved
		m.setState(Approved, nil)
		if m.cfg.AutoSubmit {
			_ = m.submit(ctx)
		}
	case permit.IsCancellation(e.err):
		m.setState(AwaitingPermit, e.err)
	default:
		m.logger.Warn("permit unavailable, approving on chain",
			zap.String("token", m.op.Token().Address.Hex()),
			zap.Error(e.err),
		)
		_ = m.approveOnChain(ctx)
	}
}

// onApprovalMined keeps the approval pending after a successful receipt
// until a read reflects the new allowance.
func (m *Machine) onApprovalMined(ctx context.Context, e approvalResult) {
	if e.err != nil {
		m.tracker.Settled()
		m.approval = approval.NotApproved
		m.setState(AwaitingApproval, e.err)
		return
	}
	if e.receipt.Status != types.ReceiptStatusSuccessful {
		m.tracker.Settled()
		m.approval = approval.NotApproved
		m.setState(AwaitingApproval, &RevertError{TxHash: e.hash, Reason: "approval"})
		return
	}
	m.pollAllowance(ctx)
}

func (m *Machine) onAllowance(ctx context.Context, e allowanceResult) {
	if m.state != Approving {
		return
	}
	m.tracker.Settled()
	if e.err != nil {
		m.logger.Warn("approval mined but allowance not visible", zap.Error(e.err))
		m.approval = approval.Unknown
		m.setState(Error, e.err)
		return
	}

	op := m.op
	m.approval = m.tracker.State(op.Token(), op.Spender(), e.allowance, op.Amount())
	m.setState(Approved, nil)
	if m.cfg.AutoSubmit {
		_ = m.submit(ctx)
	}
}

func (m *Machine) onSubmitMined(ctx context.Context, e submitResult) {
	if e.err != nil {
		m.setState(Error, e.err)
		return
	}
	if e.receipt.Status != types.ReceiptStatusSuccessful {
		m.setState(Error, &RevertError{TxHash: e.hash})
		return
	}

	op, generation := m.op, m.generation
	var (
		balance *big.Int
		err     error
	)
	m.unlocked(func() {
		balance, err = op.Settle(ctx, e.receipt)
	})
	if !m.settled(generation) {
		return
	}
	if err != nil {
		m.logger.Warn("pool token balance unavailable", zap.Error(err))
	}
	m.result = balance
	m.setState(Finished, nil)
}

func (m *Machine) setState(to State, err error) {
	from := m.state
	m.state = to
	m.err = err
	m.version++

	fields := []zap.Field{
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint64("generation", m.generation),
	}
	if m.op != nil {
		fields = append(fields, zap.String("operation", m.op.Name()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	m.logger.Info("transition", fields...)
	m.record(from, to, err)
}

// record queues a journal entry; release writes it once mu is dropped.
func (m *Machine) record(from, to State, err error) {
	if m.cfg.Recorder == nil {
		return
	}
	var rec model.ZapRecord
	if m.op != nil {
		rec = m.op.Record()
	}
	rec.SessionID = m.cfg.SessionID
	rec.Generation = m.generation
	rec.From = from.String()
	rec.To = to.String()
	rec.At = m.cfg.Now().UTC()
	if m.txHash != (common.Hash{}) {
		rec.TxHash = m.txHash.Hex()
	} else if to == Approving {
		rec.TxHash = m.tracker.TxHash().Hex()
	}
	if err != nil {
		rec.Error = err.Error()
	}
	m.outbox = append(m.outbox, rec)
}

func (m *Machine) track(op Operation, hash common.Hash, summary string) {
	if m.cfg.Pending == nil {
		return
	}
	now := m.cfg.Now().UTC()
	tx := model.PendingTx{
		Hash:      hash.Hex(),
		SessionID: m.cfg.SessionID,
		Summary:   summary,
		Status:    model.TxPending,
		SentAt:    now,
		UpdatedAt: now,
	}
	if op != nil {
		tx.Operation = op.Name()
		tx.ChainID = op.Record().ChainID
	}
	if err := m.cfg.Pending.Put(tx); err != nil {
		m.logger.Warn("pending store write failed", zap.String("tx", tx.Hash), zap.Error(err))
	}
}

// resolve records the outcome of a broadcast transaction. A failed wait
// leaves it pending since the transaction may still be mined.
func (m *Machine) resolve(hash common.Hash, receipt *types.Receipt, err error) {
	if m.cfg.Pending == nil || err != nil || receipt == nil {
		return
	}
	status := model.TxConfirmed
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = model.TxReverted
	}
	if err := m.cfg.Pending.Resolve(hash.Hex(), status); err != nil {
		m.logger.Warn("pending store update failed", zap.String("tx", hash.Hex()), zap.Error(err))
	}
}
