// Copyright 2025 Certen Protocol
//
// Package migrations implements named, height-triggered one-time state
// migrations (spec.md §6: "a TOML document listing name -> {block_height,
// issue?}; named migrations execute exactly once at the indicated height
// during commit"), grounded on the teacher's own TOML-driven
// configuration loading (pkg/config's anchor_config.go) and wired into
// block processing the same way pkg/modules/account binds its multisig
// expiry sweep: as a bridge.App end-of-block hook.
package migrations

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/certenio/manynet/pkg/bridge"
	"github.com/certenio/manynet/pkg/kvstore"
)

var prefixApplied = []byte("/migrations/applied/")

// Entry describes one named migration's activation height and an
// optional tracking reference (e.g. an issue or ticket URL), matching
// spec.md §6's schema verbatim.
type Entry struct {
	BlockHeight uint64 `toml:"block_height"`
	Issue       string `toml:"issue,omitempty"`
}

// Config is the parsed migrations.toml document: migration name to its
// Entry.
type Config map[string]Entry

// LoadConfig reads and parses a migrations TOML document from path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("migrations: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Func performs one migration's state change. It runs with the block
// context already attached to ctx (bridge.BlockContextFrom(ctx) resolves
// the triggering height and time), operating directly on store.
type Func func(ctx context.Context, store *kvstore.Store) error

// Registry binds migration names (from Config) to their Func
// implementations and applies each exactly once, the first end_block at
// or after its configured height.
type Registry struct {
	store   *kvstore.Store
	config  Config
	funcs   map[string]Func
	onError func(name string, err error)
}

// NewRegistry builds a Registry over config, applying migrations against
// store. onError may be nil; it is called (e.g. for logging) whenever a
// registered migration's Func returns an error, which leaves that
// migration unmarked so it is retried on the next block.
func NewRegistry(config Config, store *kvstore.Store, onError func(name string, err error)) *Registry {
	return &Registry{store: store, config: config, funcs: map[string]Func{}, onError: onError}
}

// Register associates name (a key in the loaded Config) with its Func.
// A name present in Config with no registered Func is simply never run
// (forward-compatible with a migrations.toml written for a newer
// binary); RegisterWith logs this rather than failing the block.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// RegisterWith binds r to app's end-of-block hook. Call once during node
// startup, after both the registry and the bridge App exist.
func (r *Registry) RegisterWith(app *bridge.App) {
	app.RegisterEndBlockHook(func(ctx context.Context, height uint64, blockTime time.Time) error {
		r.runDue(ctx, height, blockTime)
		return nil
	})
}

// runDue applies every migration whose configured height has been
// reached and that has not yet run, in ascending block_height order (so
// a chain of migrations that must land in sequence always does).
// Failures are reported via onError and leave the migration unmarked: it
// is retried at the next block rather than silently skipped, the only
// way to honor "execute exactly once" without also requiring it succeed
// on its first attempt.
func (r *Registry) runDue(ctx context.Context, height uint64, blockTime time.Time) {
	names := make([]string, 0, len(r.config))
	for name := range r.config {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.config[names[i]].BlockHeight < r.config[names[j]].BlockHeight
	})

	for _, name := range names {
		entry := r.config[name]
		if entry.BlockHeight > height {
			continue
		}
		applied, err := r.isApplied(name)
		if err != nil {
			r.reportError(name, err)
			continue
		}
		if applied {
			continue
		}
		fn, ok := r.funcs[name]
		if !ok {
			r.reportError(name, fmt.Errorf("migration %q has no registered implementation", name))
			continue
		}
		bctx := bridge.WithBlockContext(ctx, bridge.BlockContext{Height: height, Time: blockTime})
		if err := fn(bctx, r.store); err != nil {
			r.reportError(name, err)
			continue
		}
		if err := r.markApplied(name); err != nil {
			r.reportError(name, err)
		}
	}
}

func (r *Registry) reportError(name string, err error) {
	if r.onError != nil {
		r.onError(name, err)
	}
}

func appliedKey(name string) []byte {
	return append(append([]byte(nil), prefixApplied...), []byte(name)...)
}

func (r *Registry) isApplied(name string) (bool, error) {
	v, err := r.store.Get(appliedKey(name))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (r *Registry) markApplied(name string) error {
	batch := kvstore.NewBatch()
	batch.Put(appliedKey(name), []byte{1})
	return r.store.Apply(batch)
}
