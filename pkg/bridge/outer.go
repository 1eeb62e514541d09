// Copyright 2025 Certen Protocol

package bridge

import (
	"context"
	"crypto/sha256"

	"github.com/certenio/manynet/pkg/asynctoken"
	"github.com/certenio/manynet/pkg/dispatch"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/message"
)

// Submitter abstracts the consensus engine's mempool-submit and query
// channels Outer routes into. DirectSubmitter implements it by driving
// an App in-process without a real BFT engine; cmd/manyd's ABCI mode
// serves the App to an external engine and uses no Submitter.
type Submitter interface {
	SubmitTx(ctx context.Context, tx []byte) error
	Query(ctx context.Context, data []byte) (value []byte, err error)
}

// TxToken derives the deterministic async-token/handle for a request: the
// SHA-256 digest of its CBOR encoding, the same quantity CometBFT itself
// uses as a transaction's hash (tmhash). Using the engine's own hash as
// the async token means Outer never needs a side-channel mapping table.
func TxToken(tx []byte) []byte {
	sum := sha256.Sum256(tx)
	return sum[:]
}

// Outer is the outer half of the consensus bridge: it classifies each
// caller-facing method as a query or a command (spec.md §4.L) and routes
// accordingly, never touching storage directly.
type Outer struct {
	serverID  identity.Identity
	submitter Submitter
	async     *asynctoken.Table
	commands  map[string]bool
}

// NewOuter builds the endpoint descriptor map from every endpoint the
// router's registered modules (plus the base endpoints) advertise,
// classified via dispatch.CommandClassifier.
func NewOuter(serverID identity.Identity, router *dispatch.Router, submitter Submitter, async *asynctoken.Table) *Outer {
	return &Outer{
		serverID:  serverID,
		submitter: submitter,
		async:     async,
		commands:  router.EndpointCommands(),
	}
}

// Handle routes req to its query or command path and returns the
// response. Failures to encode the request, to query or submit it, or
// to decode the query result are returned as errors.
func (o *Outer) Handle(ctx context.Context, req *message.Request) (*message.Response, error) {
	reqBytes, err := req.MarshalCBOR()
	if err != nil {
		return nil, err
	}

	if !o.commands[req.Method] {
		data, err := o.submitter.Query(ctx, reqBytes)
		if err != nil {
			return nil, err
		}
		var resp message.Response
		if err := resp.UnmarshalCBOR(data); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	// The queued height is informational only (asynctoken.EvictBefore keys
	// eviction off the completion height, not this one), so Outer does not
	// need to know the engine's current height to track submission.
	token := TxToken(reqBytes)
	o.async.Track(token, 0)
	if err := o.submitter.SubmitTx(ctx, reqBytes); err != nil {
		return nil, err
	}
	resp := message.FromRequest(req, o.serverID, message.Ok(nil)).WithAsyncToken(token)
	return resp, nil
}
