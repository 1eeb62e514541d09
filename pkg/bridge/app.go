// Copyright 2025 Certen Protocol
//
// Package bridge implements the consensus bridge of spec.md §4.L: an
// inner half (App) that plugs into a CometBFT-shaped consensus engine as
// an ABCI application, and an outer half (Outer) that classifies each
// caller-facing method as a query or a command and routes it
// accordingly. Adapted from the teacher's
// pkg/consensus/abci_validator.go ValidatorApp, generalized from a
// single hardcoded transaction type (ValidatorBlock) to the open
// dispatch.Router method space.
package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/certenio/manynet/pkg/asynctoken"
	"github.com/certenio/manynet/pkg/dispatch"
	"github.com/certenio/manynet/pkg/eventlog"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/quorum"
)

// DefaultRetainBlocks is how many recent blocks CometBFT is told it may
// prune below, mirroring the teacher's hardcoded "keep recent 100
// blocks" comment in ValidatorApp.Commit.
const DefaultRetainBlocks = 100

// EndBlockHook runs once per block, after every transaction has been
// delivered and before Commit persists the height. Modules with
// time-based bookkeeping (e.g. pkg/modules/account's multisig timeout
// expiry) register one at startup.
type EndBlockHook func(ctx context.Context, height uint64, blockTime time.Time) error

// App implements abcitypes.Application: the inner half of the consensus
// bridge. It holds the single mutex guarding the storage handle that
// spec.md §5 requires (app.mu), matching the teacher's
// "CONCURRENCY: LedgerStore assumes single-writer access" convention.
type App struct {
	mu     sync.Mutex
	logger *log.Logger

	store  *kvstore.Store
	events *eventlog.Log
	async  *asynctoken.Table
	router *dispatch.Router
	quorum *quorum.Collector

	retainBlocks uint64
	endBlockHook []EndBlockHook

	blockHeight  uint64
	blockTime    time.Time
	eventCounter uint64
}

// NewApp constructs the inner half. quorum may be nil (quorum
// certificates disabled); store's height/root are read back automatically
// on every Info() call, so no separate ABCI-state blob needs persisting —
// unlike the teacher's ValidatorApp, which saved a dedicated ABCIState
// record, pkg/kvstore's own height key and full-keyspace root recompute
// already durably capture everything CometBFT needs to resume.
func NewApp(store *kvstore.Store, events *eventlog.Log, async *asynctoken.Table, router *dispatch.Router, qc *quorum.Collector) *App {
	return &App{
		logger:       log.New(log.Writer(), "[bridge] ", log.LstdFlags),
		store:        store,
		events:       events,
		async:        async,
		router:       router,
		quorum:       qc,
		retainBlocks: DefaultRetainBlocks,
	}
}

// RegisterEndBlockHook adds hook to the list run at the end of every
// block, in registration order.
func (app *App) RegisterEndBlockHook(hook EndBlockHook) {
	app.endBlockHook = append(app.endBlockHook, hook)
}

// Quorum returns the optional BLS quorum-certificate collector, or nil.
func (app *App) Quorum() *quorum.Collector { return app.quorum }

// Info returns {height, app_hash} read directly from storage.
func (app *App) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	height, err := app.store.Height()
	if err != nil {
		app.logger.Printf("info: failed to read height: %v", err)
		return &abcitypes.ResponseInfo{}, nil
	}
	app.logger.Printf("info: height=%d app_hash=%x", height, app.store.Root())
	return &abcitypes.ResponseInfo{
		Data:             "manynet",
		Version:          "1.0.0",
		AppVersion:       1,
		LastBlockHeight:  int64(height),
		LastBlockAppHash: app.store.Root(),
	}, nil
}

// InitChain runs once at genesis. Applying the genesis document itself
// is pkg/genesis's job, run before the node starts; InitChain here only
// logs the chain id the engine reports.
func (app *App) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	app.logger.Printf("init_chain: chain_id=%s", req.ChainId)
	return &abcitypes.ResponseInitChain{}, nil
}

// CheckTx decodes and validates (never mutates) an incoming transaction,
// per spec.md §4.L. A tracked async token is bumped Queued -> Pending, the
// transition meaning "accepted into the transaction stream".
func (app *App) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	var mreq message.Request
	if err := mreq.UnmarshalCBOR(req.Tx); err != nil {
		return &abcitypes.ResponseCheckTx{Code: 1, Log: "malformed request: " + err.Error()}, nil
	}
	if err := app.router.Validate(ctx, &mreq); err != nil {
		return &abcitypes.ResponseCheckTx{Code: 2, Log: err.Error()}, nil
	}
	if err := app.async.MarkPending(TxToken(req.Tx)); err != nil {
		// Not fatal: a transaction delivered without first passing through
		// Outer.Handle (e.g. direct mode) was never Tracked as Queued.
		app.logger.Printf("check_tx: token not tracked: %v", err)
	}
	return &abcitypes.ResponseCheckTx{Code: 0}, nil
}

// FinalizeBlock delivers every transaction in the block, in order, under
// app.mu, then runs registered end-block hooks.
func (app *App) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.blockHeight = uint64(req.Height)
	app.blockTime = req.Time
	app.eventCounter = app.blockHeight << 32

	bctx := WithBlockContext(ctx, BlockContext{
		Height:      app.blockHeight,
		Time:        app.blockTime,
		NextEventID: app.nextEventID,
	})

	results := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, tx := range req.Txs {
		results[i] = app.deliverTx(bctx, tx)
	}

	for _, hook := range app.endBlockHook {
		if err := hook(bctx, app.blockHeight, app.blockTime); err != nil {
			app.logger.Printf("end_block hook failed: %v", err)
		}
	}

	return &abcitypes.ResponseFinalizeBlock{TxResults: results}, nil
}

// nextEventID draws the next deterministic event id for the in-flight
// block. Safe without its own lock: FinalizeBlock already holds app.mu
// for the whole block, matching the teacher's "no mutex lock here"
// reasoning in processValidatorTransaction.
func (app *App) nextEventID() eventlog.EventID {
	id := eventlog.NewEventID(app.blockHeight, app.eventCounter)
	app.eventCounter++
	return id
}

func (app *App) deliverTx(ctx context.Context, tx []byte) *abcitypes.ExecTxResult {
	var req message.Request
	if err := req.UnmarshalCBOR(tx); err != nil {
		return &abcitypes.ExecTxResult{Code: 1, Log: "malformed request: " + err.Error()}
	}

	resp := app.router.Dispatch(ctx, &req)
	normalizeEngineResponse(resp)

	token := TxToken(tx)
	if err := app.async.Complete(token, app.blockHeight, resp.Data); err != nil {
		app.logger.Printf("deliver_tx: failed to complete async token: %v", err)
	}

	data, err := resp.MarshalCBOR()
	if err != nil {
		return &abcitypes.ExecTxResult{Code: 1, Log: "failed to encode response: " + err.Error()}
	}

	code := uint32(0)
	if resp.Data.IsErr() {
		code = resp.Data.Err.Code
	}
	return &abcitypes.ExecTxResult{Code: code, Data: data}
}

// normalizeEngineResponse enforces spec.md §4.L's determinism rule: every
// deliver_tx response has from=Anonymous, version=None, timestamp=epoch,
// so independently-built replicas produce byte-identical results.
func normalizeEngineResponse(resp *message.Response) {
	resp.From = identity.Anonymous
	resp.To = nil
	resp.Version = 0
	epoch := uint64(0)
	resp.Timestamp = &epoch
}

// Commit persists the block height, evicts expired async tokens, and
// logs the new root hash. The root hash is not reported to the engine:
// neither this response nor FinalizeBlock's carries an app-hash.
func (app *App) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	batch := kvstore.NewBatch()
	kvstore.SetHeight(batch, app.blockHeight)
	if err := app.store.Apply(batch); err != nil {
		app.logger.Printf("commit: failed to persist height %d: %v", app.blockHeight, err)
	}

	app.async.EvictBefore(app.blockHeight)

	root := app.store.Root()
	app.logger.Printf("commit: height=%d root=%x", app.blockHeight, root[:min(8, len(root))])

	var retain int64
	if app.blockHeight > app.retainBlocks {
		retain = int64(app.blockHeight - app.retainBlocks)
	}
	return &abcitypes.ResponseCommit{RetainHeight: retain}, nil
}

// Query answers a read-only request directly against current storage,
// bypassing the mempool. Outer only forwards non-command methods here.
func (app *App) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	app.mu.Lock()
	height := app.blockHeight
	blockTime := app.blockTime
	app.mu.Unlock()

	var mreq message.Request
	if err := mreq.UnmarshalCBOR(req.Data); err != nil {
		return &abcitypes.ResponseQuery{Code: 1, Log: "malformed request: " + err.Error()}, nil
	}

	bctx := WithBlockContext(ctx, BlockContext{Height: height, Time: blockTime})
	resp := app.router.Dispatch(bctx, &mreq)

	data, err := resp.MarshalCBOR()
	if err != nil {
		return &abcitypes.ResponseQuery{Code: 1, Log: "failed to encode response: " + err.Error()}, nil
	}
	return &abcitypes.ResponseQuery{Code: 0, Value: data}, nil
}

// PrepareProposal accepts the mempool's proposed transactions unmodified.
func (app *App) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

// ProcessProposal rejects a proposal only if it contains a transaction
// that does not even decode as a request message.
func (app *App) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	for _, tx := range req.Txs {
		var mreq message.Request
		if err := mreq.UnmarshalCBOR(tx); err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

// ExtendVote, VerifyVoteExtension, and the state-sync snapshot methods
// are not used by this bridge (no vote extensions, no snapshot support);
// they return the engine's documented "nothing to add" defaults, as the
// teacher's ValidatorApp does for the same methods.
func (app *App) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (app *App) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (app *App) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (app *App) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ABORT}, nil
}

func (app *App) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (app *App) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ABORT}, nil
}
