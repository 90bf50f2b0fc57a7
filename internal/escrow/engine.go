package escrow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowescrow/internal/domain"
	"flowescrow/internal/events"
	"flowescrow/internal/repo"
	"flowescrow/internal/token"
)

// FeeCapBps is the hard ceiling on the platform fee: 2000 bps = 20%.
const FeeCapBps = 2000

// Engine is the escrow state machine. Every mutating operation runs as one
// indivisible unit: validate, mutate the ledger, append the audit event,
// invoke the asset transfers, commit. The guard mutex is held for the whole
// operation including the external transfer boundary, so a callback from the
// asset that re-enters a mutating operation is rejected instead of observing
// half-applied state.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Asset  token.Asset
	Now    func() time.Time

	mu sync.Mutex
}

func New(db *sql.DB, asset token.Asset) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Asset:  asset,
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// enter acquires the non-reentrant execution guard. Legitimate callers are
// serialized by the enclosing environment, so an already-held guard means a
// nested call from inside an in-flight operation's transfer.
func (e *Engine) enter() (func(), error) {
	if !e.mu.TryLock() {
		return nil, ErrReentrantCall
	}
	return e.mu.Unlock, nil
}

// Fund deposits amount from caller into escrow and creates the task record.
// The debit happens first, so a rejected debit never creates a task.
func (e *Engine) Fund(ctx context.Context, caller string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if caller == "" {
		return 0, ErrInvalidAddress
	}
	release, err := e.enter()
	if err != nil {
		return 0, err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := e.Asset.DebitFrom(ctx, tx, caller, amount); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	id, err := e.Repo.NextTaskID(ctx, tx)
	if err != nil {
		return 0, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          id,
		Client:      caller,
		TotalAmount: amount,
		Status:      domain.StatusFunded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return 0, err
	}
	if err := e.Events.Append(ctx, tx, "task.funded", id, caller, events.EventPayload{
		"client": caller,
		"amount": amount,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// SplitFee computes the fee split for a gross release amount. Floor division;
// the worker share is the exact remainder, so worker + fee == amount always.
func SplitFee(amount, bps int64) (workerAmount, fee int64) {
	fee = amount * bps / 10000
	return amount - fee, fee
}

// ApproveSubtask settles one (taskID, subtaskIndex) key: records the payment,
// releases the gross amount from the budget and pays worker and fee recipient.
func (e *Engine) ApproveSubtask(ctx context.Context, caller string, taskID, subtaskIndex int64, worker string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	if t.Status != domain.StatusFunded && t.Status != domain.StatusInProgress {
		return ErrInvalidStatus
	}
	if err := e.requireClientOrAdmin(ctx, tx, t, caller); err != nil {
		return err
	}
	if t.ReleasedAmount+amount > t.TotalAmount {
		return ErrExceedsBudget
	}
	if p, err := e.Repo.GetSubtaskPaymentTx(ctx, tx, taskID, subtaskIndex); err == nil && p.Paid {
		return ErrAlreadyPaid
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	policy, err := e.Repo.GetFeePolicyTx(ctx, tx)
	if err != nil {
		return err
	}
	workerAmount, fee := SplitFee(amount, policy.Bps)

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertSubtaskPayment(ctx, tx, domain.SubtaskPayment{
		TaskID:       taskID,
		SubtaskIndex: subtaskIndex,
		Worker:       worker,
		Amount:       amount,
		Paid:         true,
		PaidAt:       now,
	}); err != nil {
		return err
	}
	t.ReleasedAmount += amount
	t.Status = domain.StatusInProgress
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "subtask.approved", taskID, caller, events.EventPayload{
		"subtask_index": subtaskIndex,
		"worker":        worker,
		"amount":        amount,
		"worker_amount": workerAmount,
		"fee":           fee,
		"fee_recipient": policy.Recipient,
	}); err != nil {
		return err
	}
	// Ledger state is written; only now does value leave custody.
	if err := e.Asset.CreditTo(ctx, tx, worker, workerAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if fee > 0 {
		if err := e.Asset.CreditTo(ctx, tx, policy.Recipient, fee); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return tx.Commit()
}

// CompleteTask moves an in-progress task to its terminal completed state and
// refunds the unreleased remainder to the client.
func (e *Engine) CompleteTask(ctx context.Context, caller string, taskID int64) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	if t.Status != domain.StatusInProgress {
		return ErrInvalidStatus
	}
	if err := e.requireClientOrAdmin(ctx, tx, t, caller); err != nil {
		return err
	}
	remainder := t.TotalAmount - t.ReleasedAmount
	t.Status = domain.StatusCompleted
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", taskID, caller, events.EventPayload{
		"client": t.Client,
		"refund": remainder,
	}); err != nil {
		return err
	}
	if remainder > 0 {
		if err := e.Asset.CreditTo(ctx, tx, t.Client, remainder); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return tx.Commit()
}

// RaiseDispute freezes further releases. Any party may raise one; legitimacy
// is adjudicated off-ledger by the resolver.
func (e *Engine) RaiseDispute(ctx context.Context, caller string, taskID int64) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	if t.Status != domain.StatusFunded && t.Status != domain.StatusInProgress {
		return ErrInvalidStatus
	}
	t.Status = domain.StatusDisputed
	t.DisputedBy = &caller
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "dispute.raised", taskID, caller, events.EventPayload{
		"raised_by": caller,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ResolveDispute distributes the unreleased budget between the winner and the
// client. This is the only release path that bypasses the fee split and the
// subtask-indexed ledger: arbitration outcomes carry no platform fee.
func (e *Engine) ResolveDispute(ctx context.Context, caller string, taskID int64, winner string, winnerAmount int64) error {
	if winnerAmount < 0 {
		return ErrInvalidAmount
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	isAdmin, err := e.Repo.IsAdminTx(ctx, tx, caller)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		// Missing and wrong-state collapse into the same status check.
		return ErrInvalidStatus
	}
	if err != nil {
		return err
	}
	if t.Status != domain.StatusDisputed {
		return ErrInvalidStatus
	}
	remainder := t.TotalAmount - t.ReleasedAmount
	if winnerAmount > remainder {
		return ErrExceedsBudget
	}
	clientRefund := remainder - winnerAmount
	t.ReleasedAmount += winnerAmount
	t.Status = domain.StatusResolved
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "dispute.resolved", taskID, caller, events.EventPayload{
		"winner":        winner,
		"winner_amount": winnerAmount,
		"client":        t.Client,
		"client_refund": clientRefund,
	}); err != nil {
		return err
	}
	if winnerAmount > 0 {
		if err := e.Asset.CreditTo(ctx, tx, winner, winnerAmount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	if clientRefund > 0 {
		if err := e.Asset.CreditTo(ctx, tx, t.Client, clientRefund); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return tx.Commit()
}

// CancelTask refunds the full deposit. Only possible before any work has been
// paid for: status must still be funded and nothing released.
func (e *Engine) CancelTask(ctx context.Context, caller string, taskID int64) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	if err := e.requireClientOrAdmin(ctx, tx, t, caller); err != nil {
		return err
	}
	switch {
	case t.Status == domain.StatusInProgress || t.ReleasedAmount != 0:
		return ErrWorkAlreadyStarted
	case t.Status != domain.StatusFunded:
		// Terminal or disputed: cancellation is no longer a legal transition.
		return ErrInvalidStatus
	}
	t.Status = domain.StatusCancelled
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.cancelled", taskID, caller, events.EventPayload{
		"client": t.Client,
		"refund": t.TotalAmount,
	}); err != nil {
		return err
	}
	if err := e.Asset.CreditTo(ctx, tx, t.Client, t.TotalAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return tx.Commit()
}

// SetFee changes the platform fee rate, capped at FeeCapBps. Takes effect on
// the next release.
func (e *Engine) SetFee(ctx context.Context, caller string, bps int64) error {
	if bps < 0 || bps > FeeCapBps {
		return ErrFeeTooHigh
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}
	old, err := e.Repo.GetFeePolicyTx(ctx, tx)
	if err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetFeeBps(ctx, tx, bps, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "fee.updated", 0, caller, events.EventPayload{
		"old_bps": old.Bps,
		"new_bps": bps,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) SetFeeRecipient(ctx context.Context, caller, recipient string) error {
	if recipient == "" {
		return ErrInvalidAddress
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}
	old, err := e.Repo.GetFeePolicyTx(ctx, tx)
	if err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetFeeRecipient(ctx, tx, recipient, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "fee.recipient.updated", 0, caller, events.EventPayload{
		"old_recipient": old.Recipient,
		"new_recipient": recipient,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// GrantAdmin adds an account to the admin set. Gated to existing admins.
func (e *Engine) GrantAdmin(ctx context.Context, caller, account string) error {
	if account == "" {
		return ErrInvalidAddress
	}
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertAdmin(ctx, tx, domain.Admin{Account: account, GrantedBy: caller, CreatedAt: now}); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "admin.granted", 0, caller, events.EventPayload{
		"account": account,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) RevokeAdmin(ctx context.Context, caller, account string) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.requireAdmin(ctx, tx, caller); err != nil {
		return err
	}
	if err := e.Repo.DeleteAdmin(ctx, tx, account); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidAddress
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, "admin.revoked", 0, caller, events.EventPayload{
		"account": account,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTask is a read-only accessor; reads never take the execution guard.
func (e *Engine) GetTask(ctx context.Context, taskID int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, ErrTaskNotFound
	}
	return t, err
}

func (e *Engine) GetSubtaskPayment(ctx context.Context, taskID, subtaskIndex int64) (domain.SubtaskPayment, error) {
	p, err := e.Repo.GetSubtaskPayment(ctx, taskID, subtaskIndex)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.SubtaskPayment{}, ErrTaskNotFound
	}
	return p, err
}

func (e *Engine) FeePolicy(ctx context.Context) (domain.FeePolicy, error) {
	return e.Repo.GetFeePolicy(ctx)
}

func (e *Engine) requireAdmin(ctx context.Context, tx *sql.Tx, caller string) error {
	isAdmin, err := e.Repo.IsAdminTx(ctx, tx, caller)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	return nil
}

// requireClientOrAdmin is the per-operation authorization predicate: the
// caller must either have funded the task or sit in the admin set.
func (e *Engine) requireClientOrAdmin(ctx context.Context, tx *sql.Tx, t domain.Task, caller string) error {
	if caller != "" && caller == t.Client {
		return nil
	}
	return e.requireAdmin(ctx, tx, caller)
}
