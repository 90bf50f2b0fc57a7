package token_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"flowescrow/internal/db"
	"flowescrow/internal/migrate"
	"flowescrow/internal/token"
)

func newLedger(t *testing.T) token.Ledger {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return token.Ledger{DB: conn}
}

func inTx(t *testing.T, l token.Ledger, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := l.DB.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestDebitCreditRoundTrip(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	if err := l.Mint(ctx, "alice", 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := inTx(t, l, func(tx *sql.Tx) error {
		return l.DebitFrom(ctx, tx, "alice", 400)
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if b, _ := l.Balance(ctx, "alice"); b != 600 {
		t.Fatalf("alice = %d, want 600", b)
	}
	if b, _ := l.Balance(ctx, token.VaultAccount); b != 400 {
		t.Fatalf("vault = %d, want 400", b)
	}
	err = inTx(t, l, func(tx *sql.Tx) error {
		return l.CreditTo(ctx, tx, "bob", 400)
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if b, _ := l.Balance(ctx, "bob"); b != 400 {
		t.Fatalf("bob = %d, want 400", b)
	}
	if b, _ := l.Balance(ctx, token.VaultAccount); b != 0 {
		t.Fatalf("vault = %d, want 0", b)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	if err := l.Mint(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	err := inTx(t, l, func(tx *sql.Tx) error {
		return l.DebitFrom(ctx, tx, "alice", 101)
	})
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Fatalf("overdraft: %v", err)
	}
	// Unknown accounts hold zero.
	err = inTx(t, l, func(tx *sql.Tx) error {
		return l.DebitFrom(ctx, tx, "nobody", 1)
	})
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Fatalf("unknown account debit: %v", err)
	}
	if b, _ := l.Balance(ctx, "alice"); b != 100 {
		t.Fatalf("alice mutated by failed debit: %d", b)
	}
}

func TestCreditBeyondVault(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	err := inTx(t, l, func(tx *sql.Tx) error {
		return l.CreditTo(ctx, tx, "bob", 1)
	})
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Fatalf("credit from empty vault: %v", err)
	}
}

func TestZeroTransfersAreNoops(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	err := inTx(t, l, func(tx *sql.Tx) error {
		if err := l.DebitFrom(ctx, tx, "alice", 0); err != nil {
			return err
		}
		return l.CreditTo(ctx, tx, "bob", 0)
	})
	if err != nil {
		t.Fatalf("zero transfers: %v", err)
	}
}

func TestMintValidation(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	if err := l.Mint(ctx, "", 10); !errors.Is(err, token.ErrInvalidAccount) {
		t.Fatalf("empty account: %v", err)
	}
	if err := l.Mint(ctx, "alice", 0); err == nil {
		t.Fatal("zero mint succeeded")
	}
	if err := l.Mint(ctx, "alice", 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(ctx, "alice", 10); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if b, _ := l.Balance(ctx, "alice"); b != 20 {
		t.Fatalf("alice = %d, want 20", b)
	}
}
