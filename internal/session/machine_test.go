package session

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"zapkit/internal/approval"
	"zapkit/internal/model"
	"zapkit/internal/permit"
)

var (
	tokenAAA = model.Token{ChainID: 56, Address: common.HexToAddress("0xaa"), Symbol: "AAA", Decimals: 18}
	zapper   = common.HexToAddress("0x2a99")
)

type machineFixture struct {
	reader   *fakeReader
	chain    *fakeChain
	signer   *fakeSigner
	recorder *memRecorder
	pending  *memPending
	op       *fakeOp
	machine  *Machine
}

func newMachineFixture(t *testing.T, withPermit, autoSubmit bool) *machineFixture {
	t.Helper()
	f := &machineFixture{
		reader:   newFakeReader(),
		chain:    &fakeChain{},
		signer:   &fakeSigner{},
		recorder: &memRecorder{},
		pending:  newMemPending(),
	}
	f.op = &fakeOp{token: tokenAAA, spender: zapper, amount: big.NewInt(1_000), permit: withPermit, chain: f.chain, settled: big.NewInt(42)}
	cfg := MachineConfig{
		Owner:      common.HexToAddress("0x0111"),
		Reader:     f.reader,
		Approver:   f.chain,
		Recorder:   f.recorder,
		Pending:    f.pending,
		SessionID:  7,
		AutoSubmit: autoSubmit,
		Now:        func() time.Time { return time.Unix(1_700_000_000, 0) },

		AllowanceRetries: 3,
		AllowanceBackoff: time.Millisecond,
	}
	if withPermit {
		cfg.Signer = f.signer
	}
	f.machine = NewMachine(cfg)
	return f
}

func (f *machineFixture) eventually(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return f.machine.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state %s, want %s", f.machine.State(), want)
}

func TestMachineStartsApprovedWithSufficientAllowance(t *testing.T) {
	f := newMachineFixture(t, false, false)
	f.reader.setAllowance(tokenAAA.Address, big.NewInt(1_000))

	require.NoError(t, f.machine.Start(context.Background(), f.op))
	snap := f.machine.Snapshot()
	require.Equal(t, Approved, snap.State)
	require.Equal(t, approval.Approved, snap.Approval)
	require.False(t, snap.ApprovalSubmitted)
	require.Equal(t, 0, f.chain.approvalCount())
}

func TestMachineOnChainApprovalThenSubmit(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)

	require.NoError(t, f.machine.Start(ctx, f.op))
	require.Equal(t, AwaitingApproval, f.machine.State())
	require.Equal(t, approval.NotApproved, f.machine.Snapshot().Approval)

	require.NoError(t, f.machine.Approve(ctx))
	snap := f.machine.Snapshot()
	require.Equal(t, Approving, snap.State)
	require.Equal(t, approval.Pending, snap.Approval)
	require.True(t, snap.ApprovalSubmitted)
	approveTx := f.chain.last()
	require.Equal(t, model.TxPending, f.pending.status(approveTx.hash))

	f.reader.setAllowance(tokenAAA.Address, big.NewInt(1_000))
	approveTx.mine(types.ReceiptStatusSuccessful)
	f.machine.Wait()

	snap = f.machine.Snapshot()
	require.Equal(t, Approved, snap.State)
	require.True(t, snap.ApprovalSubmitted, "submitted flag survives settlement")
	require.Equal(t, model.TxConfirmed, f.pending.status(approveTx.hash))

	require.NoError(t, f.machine.Submit(ctx))
	require.Equal(t, Submitting, f.machine.State())
	zapTx := f.chain.last()
	zapTx.mine(types.ReceiptStatusSuccessful)
	f.machine.Wait()

	snap = f.machine.Snapshot()
	require.Equal(t, Finished, snap.State)
	require.Equal(t, zapTx.hash, snap.TxHash)
	require.Equal(t, int64(42), snap.Result.Int64())
	require.Equal(t, []string{"awaiting-approval", "approving", "approved", "submitting", "finished"}, f.recorder.targets())
	require.Nil(t, f.op.signatures()[0])
}

func TestMachineApprovalRevertReturnsToAwaitingApproval(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)
	require.NoError(t, f.machine.Start(ctx, f.op))
	require.NoError(t, f.machine.Approve(ctx))

	tx := f.chain.last()
	tx.mine(types.ReceiptStatusFailed)
	f.machine.Wait()

	snap := f.machine.Snapshot()
	require.Equal(t, AwaitingApproval, snap.State)
	require.Equal(t, approval.NotApproved, snap.Approval)
	var revert *RevertError
	require.ErrorAs(t, snap.Err, &revert)
	require.Equal(t, tx.hash, revert.TxHash)
	require.Equal(t, model.TxReverted, f.pending.status(tx.hash))
}

func TestMachineApprovalRejectedBySigner(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)
	f.chain.approveErr = &SignerError{Code: permit.CodeUserRejected, Reason: "user denied"}

	require.NoError(t, f.machine.Start(ctx, f.op))
	err := f.machine.Approve(ctx)
	require.True(t, permit.IsCancellation(err))
	require.Equal(t, AwaitingApproval, f.machine.State())
	require.ErrorIs(t, f.machine.Snapshot().Err, err)
}

func TestMachineDiscardsLateConfirmationAfterReset(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)
	require.NoError(t, f.machine.Start(ctx, f.op))
	require.NoError(t, f.machine.Approve(ctx))
	tx := f.chain.last()

	f.machine.Reset()
	require.Equal(t, Idle, f.machine.State())

	f.reader.setAllowance(tokenAAA.Address, big.NewInt(1_000))
	tx.mine(types.ReceiptStatusSuccessful)
	f.machine.Wait()

	snap := f.machine.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.Equal(t, approval.Unknown, snap.Approval)
	require.False(t, snap.ApprovalSubmitted)
	targets := f.recorder.targets()
	require.Equal(t, "idle", targets[len(targets)-1])
	require.Equal(t, model.TxConfirmed, f.pending.status(tx.hash), "pending store still learns the outcome")
}

func TestMachinePermitCancellationStaysAwaitingPermit(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, true, true)
	f.signer.err = &SignerError{Code: permit.CodeUserRejected, Reason: "declined"}

	require.NoError(t, f.machine.Start(ctx, f.op))
	require.NoError(t, f.machine.Approve(ctx))
	f.machine.Wait()

	snap := f.machine.Snapshot()
	require.Equal(t, AwaitingPermit, snap.State)
	require.True(t, permit.IsCancellation(snap.Err))
	require.Equal(t, 0, f.chain.approvalCount(), "no on-chain fallback after a cancellation")

	f.signer.mu.Lock()
	f.signer.err = nil
	f.signer.mu.Unlock()
	require.NoError(t, f.machine.Approve(ctx))
	f.eventually(t, Submitting)
	f.chain.last().mine(types.ReceiptStatusSuccessful)
	f.machine.Wait()

	require.Equal(t, Finished, f.machine.State())
	sigs := f.op.signatures()
	require.Len(t, sigs, 1)
	require.NotNil(t, sigs[0])
	require.Equal(t, int64(1_700_000_000+int64(DefaultDeadline/time.Second)), sigs[0].Deadline.Int64())
}

func TestMachinePermitFailureFallsBackToApprove(t *testing.T) {
	for _, code := range []int{permit.CodeUnsupported, 2, -32603} {
		f := newMachineFixture(t, true, false)
		f.signer.err = &SignerError{Code: code, Reason: "no permit"}
		ctx := context.Background()

		require.NoError(t, f.machine.Start(ctx, f.op))
		require.NoError(t, f.machine.Approve(ctx))
		f.eventually(t, Approving)
		require.Equal(t, 1, f.chain.approvalCount(), "code %d", code)

		f.reader.setAllowance(tokenAAA.Address, big.NewInt(5_000))
		f.chain.last().mine(types.ReceiptStatusSuccessful)
		f.machine.Wait()
		require.Equal(t, Approved, f.machine.State(), "code %d", code)
		require.False(t, f.machine.Snapshot().Signed)
	}
}

func TestMachineSubmitRevertThenRetry(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)
	f.reader.setAllowance(tokenAAA.Address, big.NewInt(1_000))

	require.NoError(t, f.machine.Start(ctx, f.op))
	require.NoError(t, f.machine.Submit(ctx))
	tx := f.chain.last()
	tx.mine(types.ReceiptStatusFailed)
	f.machine.Wait()

	snap := f.machine.Snapshot()
	require.Equal(t, Error, snap.State)
	var revert *RevertError
	require.True(t, errors.As(snap.Err, &revert))
	require.Equal(t, tx.hash, revert.TxHash)
	require.Nil(t, snap.Result)

	require.NoError(t, f.machine.Retry(ctx))
	require.Equal(t, Approved, f.machine.State())
	require.Nil(t, f.machine.Snapshot().Err)
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)

	require.ErrorIs(t, f.machine.Submit(ctx), ErrInvalidTransition)
	require.ErrorIs(t, f.machine.Approve(ctx), ErrInvalidTransition)
	require.ErrorIs(t, f.machine.Retry(ctx), ErrInvalidTransition)

	zero := &fakeOp{token: tokenAAA, spender: zapper, amount: new(big.Int), chain: f.chain}
	require.ErrorIs(t, f.machine.Start(ctx, zero), ErrInvalidAmount)

	f.reader.setAllowance(tokenAAA.Address, big.NewInt(1_000))
	require.NoError(t, f.machine.Start(ctx, f.op))
	require.ErrorIs(t, f.machine.Approve(ctx), ErrInvalidTransition)
	require.NoError(t, f.machine.Submit(ctx))
	require.ErrorIs(t, f.machine.Start(ctx, f.op), ErrInvalidTransition)
	f.chain.last().mine(types.ReceiptStatusSuccessful)
	f.machine.Wait()
}

func TestMachineAllowanceReadFailure(t *testing.T) {
	f := newMachineFixture(t, false, false)
	f.reader.allowErr = errors.New("connection refused")

	err := f.machine.Start(context.Background(), f.op)
	require.Error(t, err)
	snap := f.machine.Snapshot()
	require.Equal(t, AwaitingApproval, snap.State)
	require.Equal(t, approval.Unknown, snap.Approval)
}

func TestMachineApprovalWaitsForLaggingAllowance(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)
	require.NoError(t, f.machine.Start(ctx, f.op))
	require.NoError(t, f.machine.Approve(ctx))

	f.reader.lagAllowance(tokenAAA.Address, big.NewInt(1_000), 2)
	reads := f.reader.allowanceReads()
	f.chain.last().mine(types.ReceiptStatusSuccessful)
	f.machine.Wait()

	snap := f.machine.Snapshot()
	require.Equal(t, Approved, snap.State)
	require.Equal(t, approval.Approved, snap.Approval)
	require.NoError(t, snap.Err)
	require.Equal(t, 3, f.reader.allowanceReads()-reads, "two stale reads, then the new allowance")
	require.Equal(t, 1, f.chain.approvalCount())
	require.Equal(t, []string{"awaiting-approval", "approving", "approved"}, f.recorder.targets())
}

func TestMachineApprovalAllowanceNeverVisible(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)
	require.NoError(t, f.machine.Start(ctx, f.op))
	require.NoError(t, f.machine.Approve(ctx))

	f.reader.lagAllowance(tokenAAA.Address, big.NewInt(1_000), 100)
	f.chain.last().mine(types.ReceiptStatusSuccessful)
	f.machine.Wait()

	snap := f.machine.Snapshot()
	require.Equal(t, Error, snap.State)
	require.ErrorIs(t, snap.Err, ErrAllowanceLagging)
	require.True(t, snap.ApprovalSubmitted)
	require.NotEqual(t, approval.NotApproved, snap.Approval, "a mined approval is never reported as missing")
	require.ErrorIs(t, f.machine.Approve(ctx), ErrInvalidTransition)
	require.Equal(t, 1, f.chain.approvalCount(), "no second approval is sent")

	f.reader.lagAllowance(tokenAAA.Address, big.NewInt(1_000), 0)
	require.NoError(t, f.machine.Retry(ctx))
	require.Equal(t, Approved, f.machine.State())
	require.Equal(t, 1, f.chain.approvalCount())
}

func TestMachineSnapshotDuringSlowRead(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t, false, false)
	release := f.reader.block()

	started := make(chan error, 1)
	go func() { started <- f.machine.Start(ctx, f.op) }()
	<-f.reader.entered

	snapshots := make(chan MachineSnapshot, 1)
	go func() { snapshots <- f.machine.Snapshot() }()
	select {
	case snap := <-snapshots:
		require.Equal(t, Idle, snap.State)
	case <-time.After(2 * time.Second):
		t.Fatal("Snapshot blocked behind an allowance read")
	}
	require.ErrorIs(t, f.machine.Approve(ctx), ErrBusy)

	f.machine.Reset()
	release()
	require.ErrorIs(t, <-started, ErrSuperseded)
	snap := f.machine.Snapshot()
	require.Equal(t, Idle, snap.State)
	require.Equal(t, approval.Unknown, snap.Approval)
}
