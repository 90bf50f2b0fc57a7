package repo

import (
	"context"
	"database/sql"

	"flowescrow/internal/domain"
)

func (r Repo) GetFeePolicy(ctx context.Context) (domain.FeePolicy, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT bps,recipient,updated_at FROM fee_policy WHERE id=1`)
	return scanFeePolicy(row.Scan)
}

func (r Repo) GetFeePolicyTx(ctx context.Context, tx *sql.Tx) (domain.FeePolicy, error) {
	row := tx.QueryRowContext(ctx, `SELECT bps,recipient,updated_at FROM fee_policy WHERE id=1`)
	return scanFeePolicy(row.Scan)
}

func scanFeePolicy(scan func(dest ...any) error) (domain.FeePolicy, error) {
	var p domain.FeePolicy
	err := scan(&p.Bps, &p.Recipient, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// SeedFeePolicy installs the initial policy if none exists yet.
func (r Repo) SeedFeePolicy(ctx context.Context, tx *sql.Tx, p domain.FeePolicy) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO fee_policy(id,bps,recipient,updated_at) VALUES (1,?,?,?)`,
		p.Bps, p.Recipient, p.UpdatedAt)
	return err
}

func (r Repo) SetFeeBps(ctx context.Context, tx *sql.Tx, bps int64, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE fee_policy SET bps=?, updated_at=? WHERE id=1`, bps, now)
	return err
}

func (r Repo) SetFeeRecipient(ctx context.Context, tx *sql.Tx, recipient, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE fee_policy SET recipient=?, updated_at=? WHERE id=1`, recipient, now)
	return err
}

// SeedTaskCounter installs the id counter row if none exists yet.
func (r Repo) SeedTaskCounter(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_counter(id,last_id) VALUES (1,0)`)
	return err
}
