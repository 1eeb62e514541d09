// Copyright 2025 Certen Protocol
//
// Package message implements the typed inner request/response payloads
// carried inside a signed envelope (pkg/envelope): versioning, timestamps,
// correlation ids, attribute negotiation, and the structured error carrier.
package message

import (
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/protoerr"
)

// AttributeID identifies a module's advertised attribute (capability).
type AttributeID uint32

// Reserved attribute ids used by the core itself.
const (
	AttributeAsync AttributeID = 0
)

// Attribute is a typed, negotiable request/response extension: a numeric
// id plus optional CBOR-encoded arguments.
type Attribute struct {
	ID   AttributeID `cbor:"0,keyasint"`
	Args []byte      `cbor:"1,keyasint,omitempty"`
}

// Attributes is an ordered set of Attribute, keyed by ID for lookup.
type Attributes []Attribute

// Get returns the first attribute with the given id.
func (a Attributes) Get(id AttributeID) (Attribute, bool) {
	for _, attr := range a {
		if attr.ID == id {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Request is the inner payload of a request envelope.
type Request struct {
	Version    uint8             `cbor:"0,keyasint,omitempty"`
	From       *identity.Identity `cbor:"-"`
	To         identity.Identity `cbor:"-"`
	Method     string            `cbor:"3,keyasint"`
	Data       []byte            `cbor:"4,keyasint"`
	Timestamp  *uint64           `cbor:"5,keyasint,omitempty"`
	ID         *uint64           `cbor:"6,keyasint,omitempty"`
	Attributes Attributes        `cbor:"7,keyasint,omitempty"`
}

// EffectiveFrom returns the request's `from`, defaulting to Anonymous.
func (r *Request) EffectiveFrom() identity.Identity {
	if r.From == nil {
		return identity.Anonymous
	}
	return *r.From
}

// Either carries exactly one of an Ok payload or a structured Error, as
// spec.md §3 requires for the response `data` field.
type Either struct {
	Ok  []byte
	Err *protoerr.Error
}

func Ok(data []byte) Either               { return Either{Ok: data} }
func Err(e protoerr.Error) Either         { return Either{Err: &e} }
func (e Either) IsErr() bool              { return e.Err != nil }

// Response is the inner payload of a response envelope.
type Response struct {
	Version    uint8             `cbor:"0,keyasint,omitempty"`
	From       identity.Identity `cbor:"-"`
	To         *identity.Identity `cbor:"-"`
	Data       Either            `cbor:"-"`
	Timestamp  *uint64           `cbor:"5,keyasint,omitempty"`
	ID         *uint64           `cbor:"6,keyasint,omitempty"`
	Attributes Attributes        `cbor:"7,keyasint,omitempty"`
}

// FromRequest constructs a Response per spec.md §4.D:
// from=serverID, to=req.From, id=req.ID, data=data. Timestamp is left nil
// for the transport layer to fill at send time.
func FromRequest(req *Request, serverID identity.Identity, data Either) *Response {
	resp := &Response{
		From: serverID,
		Data: data,
		ID:   req.ID,
	}
	from := req.EffectiveFrom()
	resp.To = &from
	return resp
}

// WithAsyncToken attaches the Async attribute carrying an opaque token,
// per spec.md §4.I, and clears Data to empty (the real result is polled
// later via async.status).
func (r *Response) WithAsyncToken(token []byte) *Response {
	r.Data = Ok(nil)
	r.Attributes = append(r.Attributes, Attribute{ID: AttributeAsync, Args: token})
	return r
}

// AsyncToken extracts the Async attribute's token argument, if present.
func (r *Response) AsyncToken() ([]byte, bool) {
	attr, ok := r.Attributes.Get(AttributeAsync)
	if !ok {
		return nil, false
	}
	return attr.Args, true
}

// AttributeSpec describes one attribute a module advertises in its info().
type AttributeSpec struct {
	ID        uint32   `cbor:"0,keyasint"`
	Arguments [][]byte `cbor:"1,keyasint,omitempty"`
}

// ModuleInfo is the {name, attributes, endpoints} triple a module
// advertises, surfaced via the base `status` endpoint.
type ModuleInfo struct {
	Name       string          `cbor:"0,keyasint"`
	Attributes []AttributeSpec `cbor:"1,keyasint"`
	Endpoints  []string        `cbor:"2,keyasint"`
}
