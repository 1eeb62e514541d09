// Copyright 2025 Certen Protocol

package migrations

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/certenio/manynet/pkg/kvstore"
)

var errFlaky = errors.New("not yet")

func timeZero() time.Time { return time.Time{} }

func newTestStore(t *testing.T) *kvstore.Store {
	t.Helper()
	store, err := kvstore.NewStore(kvstore.NewMemDB())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestLoadConfigParsesTOML(t *testing.T) {
	doc := `
[add_treasury_role]
block_height = 10
issue = "https://example.invalid/issues/42"

[rename_symbol]
block_height = 20
`
	path := filepath.Join(t.TempDir(), "migrations.toml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg["add_treasury_role"].BlockHeight != 10 {
		t.Fatalf("add_treasury_role.block_height = %d, want 10", cfg["add_treasury_role"].BlockHeight)
	}
	if cfg["add_treasury_role"].Issue == "" {
		t.Fatal("expected issue to be parsed")
	}
	if cfg["rename_symbol"].BlockHeight != 20 {
		t.Fatalf("rename_symbol.block_height = %d, want 20", cfg["rename_symbol"].BlockHeight)
	}
}

func TestRegistryAppliesExactlyOnceAtHeight(t *testing.T) {
	store := newTestStore(t)
	cfg := Config{"seed_marker": Entry{BlockHeight: 5}}
	runs := 0

	var errs []string
	r := NewRegistry(cfg, store, func(name string, err error) {
		errs = append(errs, name+": "+err.Error())
	})
	r.Register("seed_marker", func(ctx context.Context, store *kvstore.Store) error {
		runs++
		batch := kvstore.NewBatch()
		batch.Put([]byte("/seeded"), []byte{1})
		return store.Apply(batch)
	})

	r.runDue(context.Background(), 4, timeZero())
	if runs != 0 {
		t.Fatalf("migration ran before its height: runs=%d", runs)
	}

	r.runDue(context.Background(), 5, timeZero())
	if runs != 1 {
		t.Fatalf("runs after height 5 = %d, want 1", runs)
	}

	r.runDue(context.Background(), 6, timeZero())
	r.runDue(context.Background(), 7, timeZero())
	if runs != 1 {
		t.Fatalf("migration re-ran on a later block: runs=%d", runs)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestRegistryRetriesFailedMigration(t *testing.T) {
	store := newTestStore(t)
	cfg := Config{"flaky": Entry{BlockHeight: 1}}
	attempts := 0

	r := NewRegistry(cfg, store, nil)
	r.Register("flaky", func(ctx context.Context, store *kvstore.Store) error {
		attempts++
		if attempts < 2 {
			return errFlaky
		}
		return nil
	})

	r.runDue(context.Background(), 1, timeZero())
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	r.runDue(context.Background(), 2, timeZero())
	if attempts != 2 {
		t.Fatalf("attempts after retry = %d, want 2", attempts)
	}
	// Now that it has succeeded, a further block must not retry it.
	r.runDue(context.Background(), 3, timeZero())
	if attempts != 2 {
		t.Fatalf("migration re-ran after success: attempts=%d", attempts)
	}
}

func TestRegistryReportsMissingImplementation(t *testing.T) {
	store := newTestStore(t)
	cfg := Config{"unimplemented": Entry{BlockHeight: 1}}
	var reported string
	r := NewRegistry(cfg, store, func(name string, err error) { reported = name })

	r.runDue(context.Background(), 1, timeZero())
	if reported != "unimplemented" {
		t.Fatalf("expected missing-implementation report, got %q", reported)
	}
}
