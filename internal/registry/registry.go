// Package registry is the artifact provenance store: a keyed append-only
// record of content hashes and their contributors, with existence and
// ownership checks. Entries are never updated or deleted.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"flowescrow/internal/domain"
	"flowescrow/internal/events"
	"flowescrow/internal/repo"
)

var (
	ErrExists       = errors.New("artifact already registered")
	ErrInvalidInput = errors.New("invalid artifact input")
)

type Registry struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Registry {
	return Registry{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (r Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Register appends one artifact record. A missing id is generated; an id seen
// before is rejected.
func (r Registry) Register(ctx context.Context, caller, id, contentHash string, contributors []string) (domain.Artifact, error) {
	if contentHash == "" || len(contributors) == 0 {
		return domain.Artifact{}, ErrInvalidInput
	}
	for _, c := range contributors {
		if c == "" {
			return domain.Artifact{}, ErrInvalidInput
		}
	}
	if id == "" {
		id = uuid.New().String()
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	if _, err := r.Repo.GetArtifactTx(ctx, tx, id); err == nil {
		return domain.Artifact{}, ErrExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Artifact{}, err
	}
	a := domain.Artifact{
		ID:           id,
		ContentHash:  contentHash,
		Contributors: contributors,
		RegisteredBy: caller,
		CreatedAt:    r.now().UTC().Format(time.RFC3339),
	}
	if err := r.Repo.InsertArtifact(ctx, tx, a); err != nil {
		return domain.Artifact{}, err
	}
	if err := r.Events.Append(ctx, tx, "artifact.registered", 0, caller, events.EventPayload{
		"artifact_id":  a.ID,
		"content_hash": a.ContentHash,
		"contributors": a.Contributors,
	}); err != nil {
		return domain.Artifact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// Get returns an artifact by id.
func (r Registry) Get(ctx context.Context, id string) (domain.Artifact, error) {
	return r.Repo.GetArtifact(ctx, id)
}

// Exists reports whether an artifact id has been registered.
func (r Registry) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.Repo.GetArtifact(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsContributor reports whether account is recorded as a contributor of the
// artifact.
func (r Registry) IsContributor(ctx context.Context, id, account string) (bool, error) {
	a, err := r.Repo.GetArtifact(ctx, id)
	if err != nil {
		return false, err
	}
	for _, c := range a.Contributors {
		if c == account {
			return true, nil
		}
	}
	return false, nil
}
