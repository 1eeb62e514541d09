// Copyright 2025 Certen Protocol
//
// Package kvstore implements the reference key-value module (spec.md
// §4.N): arbitrary byte-string values under an ACL metadata record per
// key, grounded on original_source's many-kvstore/src/{module,storage}.rs
// (KVSTORE_ROOT/KVSTORE_ACL_ROOT split) and src/kvstore/src/main.rs's
// CLI surface. Simplified from the original's role-based ACL (which
// checks a caller's CanKvStoreWrite/CanKvStoreDisable role on a
// separate account module) to spec.md's plainer rule: a key's recorded
// owner is authoritative, and whoever writes first owns it.
package kvstore

import (
	"sort"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/manycbor"
)

var (
	prefixStore = []byte("/store/")
	prefixACL   = []byte("/acl/")
)

// meta is the persisted ACL record for one key, mirroring the original's
// KvStoreMetadata{owner, disabled}.
type meta struct {
	Owner    identity.Identity `cbor:"0,keyasint"`
	Disabled bool              `cbor:"1,keyasint"`
	Reason   *string           `cbor:"2,keyasint,omitempty"`
}

func storeKey(key []byte) []byte { return append(append([]byte(nil), prefixStore...), key...) }
func aclKey(key []byte) []byte   { return append(append([]byte(nil), prefixACL...), key...) }

// Storage wraps the shared authenticated store. As with pkg/modules/ledger,
// no method takes its own lock: the bridge already serializes every
// mutating dispatch call (spec.md §5).
type Storage struct {
	store *kvstore.Store
}

func NewStorage(store *kvstore.Store) *Storage { return &Storage{store: store} }

// Hash returns the store's current authenticated root.
func (s *Storage) Hash() []byte { return s.store.Root() }

func (s *Storage) getMeta(key []byte) (*meta, error) {
	v, err := s.store.Get(aclKey(key))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	var m meta
	if err := manycbor.Unmarshal(v, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Get returns the value for key, failing if it was disabled by its
// owner. Absent keys and absent metadata both answer a nil value rather
// than an error, matching the original's Option<Vec<u8>> GetReturns.
func (s *Storage) Get(key []byte) ([]byte, error) {
	m, err := s.getMeta(key)
	if err != nil {
		return nil, err
	}
	if m != nil && m.Disabled {
		return nil, errKeyDisabled()
	}
	return s.store.Get(storeKey(key))
}

// Query returns a key's ACL metadata without reading its value.
func (s *Storage) Query(key []byte) (QueryReturns, error) {
	m, err := s.getMeta(key)
	if err != nil {
		return QueryReturns{}, err
	}
	if m == nil {
		return QueryReturns{}, errKeyNotFound()
	}
	return QueryReturns{Owner: m.Owner, Disabled: m.Disabled, Reason: m.Reason}, nil
}

// resolveOwner applies spec.md §4.N's alternative-owner rule: anonymous
// and subresource identities may never act as an alternative owner, and
// an already-owned key may only be rewritten by its current owner (first
// writer wins).
func (s *Storage) resolveOwner(caller identity.Identity, key []byte, alternativeOwner *identity.Identity) (identity.Identity, error) {
	owner := caller
	if alternativeOwner != nil {
		if alternativeOwner.IsAnonymous() {
			return identity.Identity{}, errAnonAltOwnerDenied()
		}
		if _, isSub := alternativeOwner.SubresourceID(); isSub {
			return identity.Identity{}, errSubresourceAltOwnerUnsupported()
		}
		owner = *alternativeOwner
	}

	existing, err := s.getMeta(key)
	if err != nil {
		return identity.Identity{}, err
	}
	if existing != nil && !existing.Owner.Equal(caller) {
		return identity.Identity{}, errPermissionDenied()
	}
	return owner, nil
}

// Put writes key/value, owned by alternativeOwner if given and
// otherwise by caller.
func (s *Storage) Put(caller identity.Identity, key, value []byte, alternativeOwner *identity.Identity) error {
	owner, err := s.resolveOwner(caller, key, alternativeOwner)
	if err != nil {
		return err
	}
	encoded, err := manycbor.Marshal(meta{Owner: owner, Disabled: false})
	if err != nil {
		return err
	}
	pairs := map[string][]byte{
		string(aclKey(key)):   encoded,
		string(storeKey(key)): value,
	}
	return applySorted(s.store, pairs)
}

// Disable marks key disabled, recording an optional reason.
func (s *Storage) Disable(caller identity.Identity, key []byte, alternativeOwner *identity.Identity, reason *string) error {
	owner, err := s.resolveOwner(caller, key, alternativeOwner)
	if err != nil {
		return err
	}
	encoded, err := manycbor.Marshal(meta{Owner: owner, Disabled: true, Reason: reason})
	if err != nil {
		return err
	}
	batch := kvstore.NewBatch()
	batch.Put(aclKey(key), encoded)
	return s.store.Apply(batch)
}

func applySorted(store *kvstore.Store, pairs map[string][]byte) error {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := kvstore.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), pairs[k])
	}
	return store.Apply(batch)
}
