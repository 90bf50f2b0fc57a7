package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"flowescrow/internal/db"
	"flowescrow/internal/migrate"
	"flowescrow/internal/registry"
	"flowescrow/internal/repo"
)

func newRegistry(t *testing.T) registry.Registry {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := registry.New(conn)
	reg.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return reg
}

func TestRegisterAndGet(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	a, err := reg.Register(ctx, "alice", "model-v1", "sha256:abc", []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.ID != "model-v1" || a.RegisteredBy != "alice" {
		t.Fatalf("artifact = %+v", a)
	}
	got, err := reg.Get(ctx, "model-v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContentHash != "sha256:abc" || len(got.Contributors) != 2 {
		t.Fatalf("got = %+v", got)
	}
	ok, err := reg.Exists(ctx, "model-v1")
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	if ok, _ := reg.Exists(ctx, "model-v2"); ok {
		t.Fatal("phantom artifact exists")
	}
}

func TestRegisterGeneratesID(t *testing.T) {
	reg := newRegistry(t)
	a, err := reg.Register(context.Background(), "alice", "", "sha256:abc", []string{"alice"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.ID == "" {
		t.Fatal("no id generated")
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if _, err := reg.Register(ctx, "alice", "model-v1", "sha256:abc", []string{"alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := reg.Register(ctx, "bob", "model-v1", "sha256:def", []string{"bob"})
	if !errors.Is(err, registry.ErrExists) {
		t.Fatalf("duplicate: %v", err)
	}
	// Entries are append-only: the original record is untouched.
	got, _ := reg.Get(ctx, "model-v1")
	if got.ContentHash != "sha256:abc" || got.RegisteredBy != "alice" {
		t.Fatalf("original mutated: %+v", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if _, err := reg.Register(ctx, "alice", "x", "", []string{"alice"}); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("empty hash: %v", err)
	}
	if _, err := reg.Register(ctx, "alice", "x", "sha256:abc", nil); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("no contributors: %v", err)
	}
	if _, err := reg.Register(ctx, "alice", "x", "sha256:abc", []string{"alice", ""}); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("blank contributor: %v", err)
	}
}

func TestIsContributor(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if _, err := reg.Register(ctx, "alice", "model-v1", "sha256:abc", []string{"alice", "bob"}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := reg.IsContributor(ctx, "model-v1", "bob"); !ok {
		t.Fatal("bob should be a contributor")
	}
	if ok, _ := reg.IsContributor(ctx, "model-v1", "carol"); ok {
		t.Fatal("carol should not be a contributor")
	}
	if _, err := reg.IsContributor(ctx, "missing", "bob"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing artifact: %v", err)
	}
}
