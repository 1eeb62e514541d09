// Copyright 2025 Certen Protocol
//
// Package client implements a thin RPC client: build a request, sign and
// send it inside a COSE-Sign1-shaped envelope (pkg/envelope), then parse
// and verify the response. Grounded on the teacher's
// pkg/ethereum/client.go shape: one struct wrapping a lower-level
// transport plus the caller's signing key, a handful of typed
// convenience methods over one generic call path, errors wrapped with
// context via fmt.Errorf's %w.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/certenio/manynet/pkg/envelope"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/message"
)

// Client is a signed RPC client bound to one node's base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	identity   identity.Identity
	signer     *identity.PublicKey
	keystore   envelope.KeyStore
	nextID     uint64
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom
// timeouts or TLS configuration).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithKeyStore supplies an out-of-band key resolver for verifying
// response envelopes that do not embed their own keyset.
func WithKeyStore(ks envelope.KeyStore) Option {
	return func(c *Client) { c.keystore = ks }
}

// NewClient builds a Client that signs outgoing requests as id using
// signer (nil sends Anonymous, unsigned requests).
func NewClient(baseURL string, id identity.Identity, signer *identity.PublicKey, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		identity:   id,
		signer:     signer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends method with data to to (Anonymous to target the server
// itself) and returns the response's Ok payload, or the protoerr.Error
// carried by an Err response.
func (c *Client) Call(ctx context.Context, to identity.Identity, method string, data []byte) ([]byte, error) {
	resp, err := c.call(ctx, to, method, data)
	if err != nil {
		return nil, err
	}
	if resp.Data.IsErr() {
		return nil, *resp.Data.Err
	}
	return resp.Data.Ok, nil
}

// CallAsync sends a command method and returns the async token carried
// in the response's Async attribute (spec.md §4.I), for callers that
// poll async.status themselves.
func (c *Client) CallAsync(ctx context.Context, to identity.Identity, method string, data []byte) ([]byte, error) {
	resp, err := c.call(ctx, to, method, data)
	if err != nil {
		return nil, err
	}
	if resp.Data.IsErr() {
		return nil, *resp.Data.Err
	}
	token, ok := resp.AsyncToken()
	if !ok {
		return nil, fmt.Errorf("client: response to %q carried no async token", method)
	}
	return token, nil
}

func (c *Client) call(ctx context.Context, to identity.Identity, method string, data []byte) (*message.Response, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	req := &message.Request{To: to, Method: method, Data: data, ID: &id}
	if !c.identity.IsAnonymous() {
		req.From = &c.identity
	}

	payload, err := req.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}

	var keyset map[string]*identity.PublicKey
	if !c.identity.IsAnonymous() && c.signer != nil {
		keyset = map[string]*identity.PublicKey{c.identity.ToText(): c.signer.Public()}
	}
	env, err := envelope.Sign(c.identity, c.signer, payload, keyset)
	if err != nil {
		return nil, fmt.Errorf("client: sign request: %w", err)
	}
	body, err := envelope.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("client: encode envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: build http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/cbor")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: unexpected status %d", httpResp.StatusCode)
	}

	respEnv, err := envelope.Decode(respBody)
	if err != nil {
		return nil, fmt.Errorf("client: decode response envelope: %w", err)
	}
	if _, err := envelope.Verify(respEnv, c.keystore); err != nil {
		return nil, fmt.Errorf("client: verify response: %w", err)
	}

	var resp message.Response
	if err := resp.UnmarshalCBOR(respEnv.Payload); err != nil {
		return nil, fmt.Errorf("client: decode response payload: %w", err)
	}
	return &resp, nil
}

// Status calls the always-present "status" base endpoint.
func (c *Client) Status(ctx context.Context, to identity.Identity) ([]byte, error) {
	return c.Call(ctx, to, "status", nil)
}

// Heartbeat calls the always-present "heartbeat" base endpoint.
func (c *Client) Heartbeat(ctx context.Context, to identity.Identity) error {
	_, err := c.Call(ctx, to, "heartbeat", nil)
	return err
}
