// Copyright 2025 Certen Protocol
//
// Package asynctoken implements the async-command substrate: an opaque
// token handed back to a caller whose request may take longer than one
// request/response round trip, and an in-memory state machine the
// `async.status` endpoint polls to learn whether the underlying command
// has finished.
package asynctoken

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/certenio/manynet/pkg/message"
)

// State is a token's lifecycle stage, per spec.md §4.I.
type State int

const (
	StateUnknown State = iota
	StateQueued
	StatePending
	StateDone
	StateExpired
)

// DefaultRetentionBlocks is the number of committed blocks a finished
// token's result is kept before eviction, resolving spec.md §9's open
// question (no default was specified upstream).
const DefaultRetentionBlocks = 50

var (
	ErrUnknownToken = errors.New("asynctoken: unknown token")
	ErrNotDone      = errors.New("asynctoken: result requested before completion")
)

// entry tracks one outstanding or completed async command.
type entry struct {
	state        State
	result       message.Either
	queuedHeight uint64
	doneHeight   uint64
}

// Table is the in-memory token table. It is safe for concurrent use.
type Table struct {
	mu              sync.Mutex
	entries         map[string]*entry
	retentionBlocks uint64
}

// NewTable constructs an empty Table. retentionBlocks <= 0 uses
// DefaultRetentionBlocks.
func NewTable(retentionBlocks uint64) *Table {
	if retentionBlocks == 0 {
		retentionBlocks = DefaultRetentionBlocks
	}
	return &Table{entries: map[string]*entry{}, retentionBlocks: retentionBlocks}
}

// Issue allocates a fresh random 16-byte token in StateQueued at the given
// height and returns it.
func (t *Table) Issue(height uint64) ([]byte, error) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[string(token)] = &entry{state: StateQueued, queuedHeight: height}
	return token, nil
}

// Track records token as Queued at the given height if it is not already
// known. Used by the consensus bridge's outer half (pkg/bridge.Outer) at
// submit time, where the token is a deterministic transaction hash rather
// than one allocated by Issue.
func (t *Table) Track(token []byte, height uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[string(token)]; !ok {
		t.entries[string(token)] = &entry{state: StateQueued, queuedHeight: height}
	}
}

// MarkPending transitions token from Queued to Pending (command accepted
// into the transaction stream, not yet executed). A token already past
// Queued keeps its state.
func (t *Table) MarkPending(token []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[string(token)]
	if !ok {
		return ErrUnknownToken
	}
	if e.state == StateQueued {
		e.state = StatePending
	}
	return nil
}

// Complete transitions token to Done at the given height, recording its
// final result. Unlike MarkPending, Complete upserts: the consensus
// bridge's FinalizeBlock is authoritative for a transaction's outcome
// even if no earlier Track/Issue call registered it (e.g. direct mode,
// where a transaction is delivered without first passing through
// Outer.Handle).
func (t *Table) Complete(token []byte, height uint64, result message.Either) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[string(token)]
	if !ok {
		e = &entry{}
		t.entries[string(token)] = e
	}
	e.state = StateDone
	e.doneHeight = height
	e.result = result
	return nil
}

// Status reports a token's current state. A token that was never tracked
// reports StateUnknown (never an error) per spec.md §4.I; a Done token
// whose retention window has passed stays in the table and reports
// StateExpired (see EvictBefore).
func (t *Table) Status(token []byte) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[string(token)]
	if !ok {
		return StateUnknown
	}
	return e.state
}

// Result returns the final result of a Done token.
func (t *Table) Result(token []byte) (message.Either, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[string(token)]
	if !ok {
		return message.Either{}, ErrUnknownToken
	}
	if e.state != StateDone {
		return message.Either{}, ErrNotDone
	}
	return e.result, nil
}

// Len reports the number of tokens currently tracked (any state), for
// the server's async-queue-depth metric.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// EvictBefore marks every Done token older than the retention window (as
// of currentHeight) Expired and frees its stored result. Called once per
// committed block by the consensus bridge.
func (t *Table) EvictBefore(currentHeight uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.state != StateDone {
			continue
		}
		if currentHeight > e.doneHeight+t.retentionBlocks {
			e.state = StateExpired
			e.result = message.Either{}
		}
	}
}
