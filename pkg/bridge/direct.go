// Copyright 2025 Certen Protocol

package bridge

import (
	"context"
	"sync"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
)

// DirectSubmitter drives an App in-process, one transaction per block,
// with no real BFT engine behind it. This is "direct mode" (SPEC_FULL.md
// §4.J): a single-node, consensus-free way to run the same dispatch and
// storage stack for local development and tests, mirroring how the
// teacher's in-memory MemDB stands in for cometbft-db outside production.
type DirectSubmitter struct {
	mu     sync.Mutex
	app    *App
	height int64
	now    func() time.Time
}

// NewDirectSubmitter wraps app. now defaults to time.Now if nil.
func NewDirectSubmitter(app *App, now func() time.Time) *DirectSubmitter {
	if now == nil {
		now = time.Now
	}
	return &DirectSubmitter{app: app, now: now}
}

// SubmitTx runs tx through CheckTx, then immediately finalizes and
// commits a synthetic one-transaction block containing it.
func (d *DirectSubmitter) SubmitTx(ctx context.Context, tx []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: tx}); err != nil {
		return err
	}

	d.height++
	blockTime := d.now()
	if _, err := d.app.FinalizeBlock(ctx, &abcitypes.RequestFinalizeBlock{
		Height: d.height,
		Time:   blockTime,
		Txs:    [][]byte{tx},
	}); err != nil {
		return err
	}
	_, err := d.app.Commit(ctx, &abcitypes.RequestCommit{})
	return err
}

// Query answers directly from the app's current state, without going
// through a block at all.
func (d *DirectSubmitter) Query(ctx context.Context, data []byte) ([]byte, error) {
	resp, err := d.app.Query(ctx, &abcitypes.RequestQuery{Data: data})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}
