package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"flowescrow/internal/domain"
)

func (r Repo) InsertArtifact(ctx context.Context, tx *sql.Tx, a domain.Artifact) error {
	contributors, err := json.Marshal(a.Contributors)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO artifacts(id,content_hash,contributors_json,registered_by,created_at) VALUES (?,?,?,?,?)`,
		a.ID, a.ContentHash, string(contributors), a.RegisteredBy, a.CreatedAt)
	return err
}

func (r Repo) GetArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,content_hash,contributors_json,registered_by,created_at FROM artifacts WHERE id=?`, id)
	return scanArtifact(row.Scan)
}

func (r Repo) GetArtifactTx(ctx context.Context, tx *sql.Tx, id string) (domain.Artifact, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,content_hash,contributors_json,registered_by,created_at FROM artifacts WHERE id=?`, id)
	return scanArtifact(row.Scan)
}

func scanArtifact(scan func(dest ...any) error) (domain.Artifact, error) {
	var a domain.Artifact
	var contributors string
	err := scan(&a.ID, &a.ContentHash, &contributors, &a.RegisteredBy, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(contributors), &a.Contributors); err != nil {
		return a, err
	}
	return a, nil
}
