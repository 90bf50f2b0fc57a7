package repo

import (
	"context"
	"database/sql"

	"flowescrow/internal/domain"
)

const paymentColumns = `task_id,subtask_index,worker,amount,paid,paid_at`

func scanPayment(scan func(dest ...any) error) (domain.SubtaskPayment, error) {
	var p domain.SubtaskPayment
	var paid int
	var paidAt sql.NullString
	err := scan(&p.TaskID, &p.SubtaskIndex, &p.Worker, &p.Amount, &paid, &paidAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Paid = paid != 0
	if paidAt.Valid {
		p.PaidAt = paidAt.String
	}
	return p, nil
}

func (r Repo) GetSubtaskPayment(ctx context.Context, taskID, subtaskIndex int64) (domain.SubtaskPayment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM subtask_payments WHERE task_id=? AND subtask_index=?`, taskID, subtaskIndex)
	return scanPayment(row.Scan)
}

func (r Repo) GetSubtaskPaymentTx(ctx context.Context, tx *sql.Tx, taskID, subtaskIndex int64) (domain.SubtaskPayment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM subtask_payments WHERE task_id=? AND subtask_index=?`, taskID, subtaskIndex)
	return scanPayment(row.Scan)
}

// InsertSubtaskPayment records a settled subtask key. The primary key on
// (task_id, subtask_index) makes double settlement a constraint violation on
// top of the engine's own paid check.
func (r Repo) InsertSubtaskPayment(ctx context.Context, tx *sql.Tx, p domain.SubtaskPayment) error {
	paid := 0
	if p.Paid {
		paid = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO subtask_payments(task_id,subtask_index,worker,amount,paid,paid_at) VALUES (?,?,?,?,?,?)`,
		p.TaskID, p.SubtaskIndex, p.Worker, p.Amount, paid, nullable(p.PaidAt))
	return err
}

func (r Repo) ListSubtaskPayments(ctx context.Context, taskID int64) ([]domain.SubtaskPayment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+paymentColumns+` FROM subtask_payments WHERE task_id=? ORDER BY subtask_index ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubtaskPayment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
