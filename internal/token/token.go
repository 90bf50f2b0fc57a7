// Package token defines the fungible asset boundary the escrow moves value
// through. The escrow engine only ever sees the Asset interface; the Ledger
// adapter here keeps balances in the same SQLite database so transfers commit
// or roll back together with the ledger mutation that caused them.
package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// VaultAccount holds the escrow float between a deposit and its releases.
const VaultAccount = "escrow.vault"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAccount    = errors.New("invalid account")
)

// Asset is the transfer contract the escrow depends on. Both calls are
// fallible; a non-nil error anywhere in an operation aborts and rolls back
// the whole operation. Implementations receive the operation's transaction
// the same way the event writer does.
type Asset interface {
	// DebitFrom moves amount from payer into escrow custody.
	DebitFrom(ctx context.Context, tx *sql.Tx, payer string, amount int64) error
	// CreditTo moves amount out of escrow custody to recipient.
	CreditTo(ctx context.Context, tx *sql.Tx, recipient string, amount int64) error
}

// Ledger is the SQLite-backed Asset adapter over the balances table.
type Ledger struct {
	DB *sql.DB
}

func (l Ledger) DebitFrom(ctx context.Context, tx *sql.Tx, payer string, amount int64) error {
	if payer == "" {
		return ErrInvalidAccount
	}
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	if amount == 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx, `UPDATE balances SET amount=amount-? WHERE account=? AND amount>=?`, amount, payer, amount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("debit %s: %w", payer, ErrInsufficientFunds)
	}
	return l.credit(ctx, tx, VaultAccount, amount)
}

func (l Ledger) CreditTo(ctx context.Context, tx *sql.Tx, recipient string, amount int64) error {
	if recipient == "" {
		return ErrInvalidAccount
	}
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	if amount == 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx, `UPDATE balances SET amount=amount-? WHERE account=? AND amount>=?`, amount, VaultAccount, amount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("vault release: %w", ErrInsufficientFunds)
	}
	return l.credit(ctx, tx, recipient, amount)
}

func (l Ledger) credit(ctx context.Context, tx *sql.Tx, account string, amount int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO balances(account,amount) VALUES (?,?)
ON CONFLICT(account) DO UPDATE SET amount=amount+excluded.amount`, account, amount)
	return err
}

// Balance returns the current balance of an account; unknown accounts are zero.
func (l Ledger) Balance(ctx context.Context, account string) (int64, error) {
	var amount int64
	err := l.DB.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account=?`, account).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// Mint credits freshly issued units to an account. Issuance lives outside the
// escrow's conservation boundary; it exists for bootstrap and local testing.
func (l Ledger) Mint(ctx context.Context, account string, amount int64) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if amount <= 0 {
		return fmt.Errorf("mint amount must be positive, got %d", amount)
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := l.credit(ctx, tx, account, amount); err != nil {
		return err
	}
	return tx.Commit()
}
