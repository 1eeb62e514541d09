// Copyright 2025 Certen Protocol
//
// Package dispatch implements the module/dispatch core: a namespace router
// that splits a method name at its first dot and forwards the request to
// the registered Module, plus the always-present base endpoints (status,
// heartbeat, echo, endpoints).
package dispatch

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/protoerr"
)

// Module is implemented by every namespace handler (ledger, kvstore,
// account, ...). Info advertises the module's attributes and endpoints;
// Validate runs structural/ACL checks before Execute runs the operation.
type Module interface {
	Info() message.ModuleInfo
	Validate(ctx context.Context, req *message.Request) error
	Execute(ctx context.Context, req *message.Request) (message.Either, error)
}

// CommandClassifier is an optional interface a Module implements to tell
// the consensus bridge's outer half (pkg/bridge.Outer) which of its
// endpoints mutate storage (commands, routed through the engine's
// mempool) versus which are read-only (queries, answered directly).
// A Module that does not implement this is treated as all-query.
type CommandClassifier interface {
	IsCommand(method string) bool
}

// EndpointCommands reports, for every endpoint advertised by every
// registered module plus the base endpoints, whether it mutates storage.
// The base endpoints (status/heartbeat/echo/endpoints) are always
// queries. Used by pkg/bridge to build its endpoint descriptor map at
// startup, per spec.md §4.L's outer half.
func (r *Router) EndpointCommands() map[string]bool {
	out := map[string]bool{"status": false, "heartbeat": false, "echo": false, "endpoints": false}
	for _, m := range r.modules {
		classifier, _ := m.(CommandClassifier)
		for _, ep := range m.Info().Endpoints {
			isCommand := false
			if classifier != nil {
				isCommand = classifier.IsCommand(ep)
			}
			out[ep] = isCommand
		}
	}
	return out
}

// Router dispatches requests to registered modules by namespace (the
// portion of the method name before the first dot), falling back to the
// always-present base endpoints.
type Router struct {
	serverID identity.Identity
	modules  map[string]Module
	logger   *log.Logger
}

// NewRouter constructs a Router bound to serverID (used in base.status and
// unknown-destination error responses).
func NewRouter(serverID identity.Identity, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(log.Writer(), "[dispatch] ", log.LstdFlags)
	}
	return &Router{serverID: serverID, modules: map[string]Module{}, logger: logger}
}

// Register binds a namespace (e.g. "ledger") to a Module. Panics on
// duplicate registration, a programmer error caught at startup.
func (r *Router) Register(namespace string, m Module) {
	if _, exists := r.modules[namespace]; exists {
		panic("dispatch: module already registered for namespace " + namespace)
	}
	r.modules[namespace] = m
}

// namespaceOf splits a method name at its first dot, per spec.md §4.F.
func namespaceOf(method string) (string, bool) {
	i := strings.IndexByte(method, '.')
	if i <= 0 {
		return "", false
	}
	return method[:i], true
}

// Dispatch validates and executes req, returning a properly-populated
// Response (never an error for protocol-level failures — those are
// encoded as message.Err inside the Response per spec.md §4.D/§4.E).
func (r *Router) Dispatch(ctx context.Context, req *message.Request) *message.Response {
	data, err := r.route(ctx, req)
	if err != nil {
		data = message.Err(toProtoErr(err))
	}
	return message.FromRequest(req, r.serverID, data)
}

// Validate runs a method's structural/ACL checks without executing it,
// used by the consensus bridge's check_tx path (spec.md §4.L) to reject
// malformed or unauthorized commands before they enter the mempool. Base
// endpoints have no validation step and always pass.
func (r *Router) Validate(ctx context.Context, req *message.Request) error {
	if err := r.checkDestination(req); err != nil {
		return err
	}
	if _, ok := r.baseEndpoint(req.Method); ok {
		return nil
	}
	ns, ok := namespaceOf(req.Method)
	if !ok {
		return protoerr.ErrInvalidMethodName(req.Method)
	}
	m, ok := r.modules[ns]
	if !ok {
		return protoerr.ErrUnknownMethod(req.Method)
	}
	return m.Validate(ctx, req)
}

// checkDestination enforces spec.md §4.F/§4.D's validation pipeline step 2
// ("to == self.identity OR to.is_anonymous(), otherwise UnknownDestination")
// uniformly for every transport that reaches the Router — HTTP
// (pkg/server) and the consensus bridge (pkg/bridge) alike — rather than
// leaving it to each transport to re-check on its own.
func (r *Router) checkDestination(req *message.Request) error {
	if req.To.IsAnonymous() || req.To.Equal(r.serverID) {
		return nil
	}
	return protoerr.ErrUnknownDestination(r.serverID.ToText(), req.To.ToText())
}

func (r *Router) route(ctx context.Context, req *message.Request) (message.Either, error) {
	if err := r.checkDestination(req); err != nil {
		return message.Either{}, err
	}

	if base, ok := r.baseEndpoint(req.Method); ok {
		return base(ctx, req)
	}

	ns, ok := namespaceOf(req.Method)
	if !ok {
		return message.Either{}, protoerr.ErrInvalidMethodName(req.Method)
	}
	m, ok := r.modules[ns]
	if !ok {
		return message.Either{}, protoerr.ErrUnknownMethod(req.Method)
	}
	if err := m.Validate(ctx, req); err != nil {
		return message.Either{}, err
	}
	return m.Execute(ctx, req)
}

func toProtoErr(err error) protoerr.Error {
	if pe, ok := err.(protoerr.Error); ok {
		return pe
	}
	if pe, ok := err.(*protoerr.Error); ok {
		return *pe
	}
	return protoerr.ErrInternal(err.Error())
}

// baseEndpoint resolves one of the always-present core methods: status,
// heartbeat, echo, and endpoints (spec.md §4.F).
func (r *Router) baseEndpoint(method string) (func(context.Context, *message.Request) (message.Either, error), bool) {
	switch method {
	case "status":
		return r.status, true
	case "heartbeat":
		return r.heartbeat, true
	case "echo":
		return r.echo, true
	case "endpoints":
		return r.endpoints, true
	default:
		return nil, false
	}
}

func (r *Router) status(ctx context.Context, req *message.Request) (message.Either, error) {
	infos := make([]message.ModuleInfo, 0, len(r.modules))
	for _, m := range r.modules {
		infos = append(infos, m.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	encoded, err := encodeStatus(r.serverID, infos)
	if err != nil {
		return message.Either{}, protoerr.ErrInternal(err.Error())
	}
	return message.Ok(encoded), nil
}

func (r *Router) heartbeat(ctx context.Context, req *message.Request) (message.Either, error) {
	return message.Ok(nil), nil
}

func (r *Router) echo(ctx context.Context, req *message.Request) (message.Either, error) {
	return message.Ok(req.Data), nil
}

func (r *Router) endpoints(ctx context.Context, req *message.Request) (message.Either, error) {
	names := []string{"status", "heartbeat", "echo", "endpoints"}
	for _, m := range r.modules {
		names = append(names, m.Info().Endpoints...)
	}
	sort.Strings(names)
	encoded, err := encodeEndpoints(names)
	if err != nil {
		return message.Either{}, protoerr.ErrInternal(err.Error())
	}
	return message.Ok(encoded), nil
}
