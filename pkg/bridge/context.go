// Copyright 2025 Certen Protocol

package bridge

import (
	"context"
	"time"

	"github.com/certenio/manynet/pkg/eventlog"
)

// BlockContext carries the current block's height and time into module
// Validate/Execute calls, the way the teacher's FinalizeBlock populates
// app.currentBlockHeight/currentBlockTime before processing any
// transaction. NextEventID is non-nil only during transaction delivery
// (never during Query), and draws from the per-block event-id counter
// spec.md §4.L requires, reset to height<<32 at the start of each block.
type BlockContext struct {
	Height      uint64
	Time        time.Time
	NextEventID func() eventlog.EventID
}

type blockContextKey struct{}

// WithBlockContext attaches bc to ctx for a module's Validate/Execute call.
func WithBlockContext(ctx context.Context, bc BlockContext) context.Context {
	return context.WithValue(ctx, blockContextKey{}, bc)
}

// BlockContextFrom retrieves the BlockContext attached by the bridge, if any.
func BlockContextFrom(ctx context.Context) (BlockContext, bool) {
	bc, ok := ctx.Value(blockContextKey{}).(BlockContext)
	return bc, ok
}
