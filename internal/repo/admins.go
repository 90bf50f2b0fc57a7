package repo

import (
	"context"
	"database/sql"

	"flowescrow/internal/domain"
)

// IsAdminTx reports admin set membership inside an operation's transaction.
func (r Repo) IsAdminTx(ctx context.Context, tx *sql.Tx, account string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE account=? LIMIT 1`, account)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) IsAdmin(ctx context.Context, account string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE account=? LIMIT 1`, account)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertAdmin(ctx context.Context, tx *sql.Tx, a domain.Admin) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO admins(account,granted_by,created_at) VALUES (?,?,?)`,
		a.Account, a.GrantedBy, a.CreatedAt)
	return err
}

func (r Repo) DeleteAdmin(ctx context.Context, tx *sql.Tx, account string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM admins WHERE account=?`, account)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT account,granted_by,created_at FROM admins ORDER BY created_at ASC, account ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Admin
	for rows.Next() {
		var a domain.Admin
		if err := rows.Scan(&a.Account, &a.GrantedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
