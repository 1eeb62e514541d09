// Copyright 2025 Certen Protocol
//
// Package server binds a request handler (pkg/dispatch.Router directly,
// or pkg/bridge.Outer in blockchain mode) to an HTTP transport: envelope
// decode/verify, dispatch, response encode/sign, one handler per node.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/certenio/manynet/pkg/envelope"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/protoerr"
)

// Handler is satisfied by whatever sits behind the transport: a plain
// dispatch.Router in direct mode (via RouterHandler), or a
// bridge.Outer in blockchain mode.
type Handler interface {
	Handle(ctx context.Context, req *message.Request) (*message.Response, error)
}

// RouterHandler adapts a dispatch.Router (whose Dispatch never returns a
// transport-level error — protocol failures are carried inside the
// Response itself) to the Handler interface.
type RouterHandler struct {
	Router interface {
		Dispatch(ctx context.Context, req *message.Request) *message.Response
	}
}

func (h RouterHandler) Handle(ctx context.Context, req *message.Request) (*message.Response, error) {
	return h.Router.Dispatch(ctx, req), nil
}

// Server is the node's single HTTP front door.
type Server struct {
	addr           string
	handler        Handler
	serverID       identity.Identity
	signer         *identity.PublicKey
	keystore       envelope.KeyStore
	maxRequestSize int64
	readTimeout    time.Duration
	writeTimeout   time.Duration

	logger  *log.Logger
	metrics *Metrics

	httpServer *http.Server
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithKeyStore supplies an out-of-band key resolver consulted when an
// envelope does not embed its own keyset.
func WithKeyStore(ks envelope.KeyStore) Option {
	return func(s *Server) { s.keystore = ks }
}

// WithLogger overrides the default "[server] " logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics overrides the default registered Metrics (e.g. to share a
// custom prometheus.Registerer).
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

const defaultMaxRequestSize = 1 << 20 // 1 MiB

// NewServer builds a Server bound to addr, dispatching through handler
// and signing responses as serverID using signer (nil leaves responses
// unsigned, i.e. effectively served Anonymous).
func NewServer(addr string, handler Handler, serverID identity.Identity, signer *identity.PublicKey, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		handler:        handler,
		serverID:       serverID,
		signer:         signer,
		maxRequestSize: defaultMaxRequestSize,
		readTimeout:    10 * time.Second,
		writeTimeout:   10 * time.Second,
		logger:         log.New(log.Writer(), "[server] ", log.LstdFlags),
		metrics:        NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the node's full HTTP handler (/rpc + /metrics),
// usable directly with httptest or embedded in a larger mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	s.logger.Printf("listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := s.readBody(r)
	if err != nil {
		s.writeProtoErr(w, protoerr.ErrDeserialization(err.Error()))
		return
	}

	resp := s.process(r.Context(), body)
	s.writeResponse(w, resp)

	s.metrics.ObserveRequest(time.Since(start))
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	limited := io.LimitReader(r.Body, s.maxRequestSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > s.maxRequestSize {
		return nil, errors.New("request exceeds maximum allowed size")
	}
	return body, nil
}

// process runs the full per-request lifecycle: decode envelope, verify
// signature, decode the inner request, dispatch, and build the response
// Response. Returns the Response itself (handleRPC signs and encodes
// it); any failure along the way is represented as a structured protoerr
// Response rather than an HTTP-level error.
func (s *Server) process(ctx context.Context, body []byte) *message.Response {
	env, err := envelope.Decode(body)
	if err != nil {
		return s.errorResponse(protoerr.ErrDeserialization(err.Error()))
	}

	from, err := envelope.Verify(env, s.keystore)
	if err != nil {
		return s.errorResponse(protoerr.ErrCouldNotVerifySignature())
	}

	var req message.Request
	if err := req.UnmarshalCBOR(env.Payload); err != nil {
		return s.errorResponse(protoerr.ErrDeserialization(err.Error()))
	}
	req.From = &from

	// The to==self/anonymous check (spec.md §4.F validation pipeline step
	// 2) lives in dispatch.Router now, enforced uniformly for every
	// transport s.handler might forward into (direct RouterHandler or the
	// consensus bridge's Outer), not just this one.
	resp, err := s.handler.Handle(ctx, &req)
	if err != nil {
		return s.errorResponse(protoerr.ErrInternal(err.Error()))
	}
	return resp
}

func (s *Server) errorResponse(e protoerr.Error) *message.Response {
	return &message.Response{From: s.serverID, Data: message.Err(e)}
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *message.Response) {
	now := uint64(time.Now().Unix())
	resp.Timestamp = &now

	payload, err := resp.MarshalCBOR()
	if err != nil {
		s.logger.Printf("encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	env, err := envelope.Sign(s.serverID, s.signer, payload, nil)
	if err != nil {
		s.logger.Printf("sign response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	encoded, err := envelope.Encode(env)
	if err != nil {
		s.logger.Printf("encode envelope: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	if _, err := w.Write(encoded); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func (s *Server) writeProtoErr(w http.ResponseWriter, e protoerr.Error) {
	s.writeResponse(w, s.errorResponse(e))
}
