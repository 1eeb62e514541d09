// Copyright 2025 Certen Protocol
//
// Package kvstore implements the authenticated key-value storage layer:
// an ordered byte-string keyspace, batched writes with an ascending-key
// invariant, and a content hash ("root") over the full keyspace recomputed
// after every batch commit. Two backends are provided — a CometBFT-backed
// one for consensus-bridge (blockchain) mode and an in-memory one for
// direct/test mode — behind the same DB interface.
package kvstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sort"
	"sync"
)

// Well-known key prefixes, per spec.md §4.J.
var (
	KeyHeight      = []byte("/height")
	PrefixConfig   = []byte("/config/")
	PrefixEvents   = []byte("/events/")
)

// DB is the ordered byte-keyed storage interface both backends satisfy.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Iterator ranges over [start, end) in ascending or descending key
	// order. A nil start/end means unbounded on that side.
	Iterator(start, end []byte, ascending bool) (Iterator, error)
	Close() error
}

// Iterator walks a key range. Callers must call Close when done.
type Iterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
	Close() error
}

var (
	ErrBatchKeysNotAscending = errors.New("kvstore: batch keys must be applied in strictly ascending order")
	ErrEmptyKey              = errors.New("kvstore: key must not be empty")
)

// op is one write in a pending Batch.
type op struct {
	key     []byte
	value   []byte
	deleted bool
}

// Batch accumulates writes to be applied atomically. Per spec.md §4.J, keys
// within one batch must be supplied in strictly ascending order; this is
// enforced at Apply time rather than on each Put/Delete call so callers can
// build a batch from an already-sorted source without extra bookkeeping.
type Batch struct {
	ops []op
}

// NewBatch returns an empty Batch.
func NewBatch() *Batch { return &Batch{} }

// Put stages a key/value write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete stages a key removal.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, op{key: append([]byte(nil), key...), deleted: true})
}

// Len reports the number of staged operations.
func (b *Batch) Len() int { return len(b.ops) }

// Store is the authenticated KV store: a DB backend plus a cached Merkle
// root recomputed after each batch Apply.
type Store struct {
	mu   sync.RWMutex
	db   DB
	root []byte
}

// NewStore wraps db, computing its initial root from whatever it already
// contains (empty on a fresh store).
func NewStore(db DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.recomputeRoot(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the value for key, or nil if absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Get(key)
}

// Range iterates [start, end) in the requested order. The returned
// iterator must be closed by the caller.
func (s *Store) Range(start, end []byte, ascending bool) (Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Iterator(start, end, ascending)
}

// Apply commits a batch: validates the ascending-key invariant, writes
// every op to the backend, and recomputes the root hash.
func (s *Store) Apply(b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last []byte
	for i, o := range b.ops {
		if len(o.key) == 0 {
			return ErrEmptyKey
		}
		if i > 0 && bytes.Compare(o.key, last) <= 0 {
			return ErrBatchKeysNotAscending
		}
		last = o.key
	}
	for _, o := range b.ops {
		if o.deleted {
			if err := s.db.Delete(o.key); err != nil {
				return err
			}
			continue
		}
		if err := s.db.Set(o.key, o.value); err != nil {
			return err
		}
	}
	return s.recomputeRoot()
}

// Root returns the current content hash over the full keyspace.
func (s *Store) Root() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.root))
	copy(out, s.root)
	return out
}

// Height returns the last-committed block height recorded under
// KeyHeight, or 0 if never set (direct/non-blockchain mode).
func (s *Store) Height() (uint64, error) {
	v, err := s.Get(KeyHeight)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(v), nil
}

// SetHeight stages a KeyHeight write in the given batch, big-endian
// encoded so lexicographic and numeric key order coincide.
func SetHeight(b *Batch, height uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	b.Put(KeyHeight, buf)
}

// ConfigKey builds the storage key for a named config entry.
func ConfigKey(name string) []byte {
	return append(append([]byte(nil), PrefixConfig...), []byte(name)...)
}

// recomputeRoot scans the full keyspace in ascending key order and folds it
// into a single digest: a simplified ("IAVL-lite") stand-in for a full
// Merkle-Patricia tree, adapted from the teacher's pairwise SHA-256 binary
// tree (pkg/merkle) but built over (key, value) leaves covering the whole
// store rather than a one-off transaction batch.
func (s *Store) recomputeRoot() error {
	it, err := s.db.Iterator(nil, nil, true)
	if err != nil {
		return err
	}
	defer it.Close()

	var leaves [][]byte
	for it.Valid() {
		leaves = append(leaves, leafHash(it.Key(), it.Value()))
		it.Next()
	}
	s.root = merkleRoot(leaves)
	return nil
}

func leafHash(key, value []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x00}) // leaf domain tag
	writeLenPrefixed(h, key)
	writeLenPrefixed(h, value)
	return h.Sum(nil)
}

func writeLenPrefixed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
	h.Write(lenBuf[:])
	h.Write(b)
}

// merkleRoot folds leaves (already in canonical key order) pairwise,
// duplicating a dangling last node, until a single root remains. An empty
// store hashes to SHA-256 of the single byte 0x01.
func merkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		empty := sha256.Sum256([]byte{0x01}) // empty-tree domain tag
		return empty[:]
	}
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, nodeHash(level[i], level[i+1]))
			} else {
				next = append(next, nodeHash(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x01}) // internal-node domain tag
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// sortedKeys is a small helper used by the in-memory backend's iterator.
func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
