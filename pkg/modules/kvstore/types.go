// Copyright 2025 Certen Protocol

package kvstore

import "github.com/certenio/manynet/pkg/identity"

// InfoReturns answers kvstore.info with the store's authenticated root.
type InfoReturns struct {
	Hash []byte `cbor:"0,keyasint"`
}

// GetArgs/GetReturns answer kvstore.get: the stored value for key, or nil
// if absent, per original_source's omni-kvstore/src/module/get.rs.
type GetArgs struct {
	Key []byte `cbor:"0,keyasint"`
}

type GetReturns struct {
	Value []byte `cbor:"0,keyasint,omitempty"`
}

// PutArgs writes key/value, owned by alternativeOwner if given and
// otherwise by the caller, per spec.md §4.N. alternativeOwner may not be
// anonymous or a subresource identity.
type PutArgs struct {
	Key             []byte             `cbor:"0,keyasint"`
	Value           []byte             `cbor:"1,keyasint"`
	AlternativeOwner *identity.Identity `cbor:"2,keyasint,omitempty"`
}

type PutReturns struct{}

// DisableArgs marks key disabled, recording an optional human-readable
// reason.
type DisableArgs struct {
	Key             []byte             `cbor:"0,keyasint"`
	AlternativeOwner *identity.Identity `cbor:"1,keyasint,omitempty"`
	Reason          *string            `cbor:"2,keyasint,omitempty"`
}

type DisableReturns struct{}

// QueryArgs/QueryReturns answer kvstore.query: a key's ACL metadata
// (owner, disabled state) without revealing its value.
type QueryArgs struct {
	Key []byte `cbor:"0,keyasint"`
}

type QueryReturns struct {
	Owner    identity.Identity `cbor:"0,keyasint"`
	Disabled bool              `cbor:"1,keyasint"`
	Reason   *string           `cbor:"2,keyasint,omitempty"`
}
