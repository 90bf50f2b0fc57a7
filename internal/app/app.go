// Package app wires a workspace into a ready escrow engine: open the
// database, run migrations, and seed the genesis state (id counter, fee
// policy, initial admin) if missing.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flowescrow/internal/config"
	"flowescrow/internal/db"
	"flowescrow/internal/domain"
	"flowescrow/internal/escrow"
	"flowescrow/internal/migrate"
	"flowescrow/internal/token"
)

// Open opens and migrates the workspace database.
func Open(workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// Bootstrap seeds genesis state from config and returns the engine. Seeding
// is idempotent: existing rows are left alone.
func Bootstrap(ctx context.Context, conn *sql.DB, cfg *config.Config) (*escrow.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eng := escrow.New(conn, token.Ledger{DB: conn})
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := eng.Repo.SeedTaskCounter(ctx, tx); err != nil {
		return nil, fmt.Errorf("seed task counter: %w", err)
	}
	if err := eng.Repo.SeedFeePolicy(ctx, tx, domain.FeePolicy{
		Bps:       cfg.Escrow.FeeBps,
		Recipient: cfg.Escrow.FeeRecipient,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("seed fee policy: %w", err)
	}
	if err := eng.Repo.InsertAdmin(ctx, tx, domain.Admin{
		Account:   cfg.Escrow.Admin,
		GrantedBy: "genesis",
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return eng, nil
}
