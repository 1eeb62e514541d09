// Copyright 2025 Certen Protocol
//
// Package eventlog implements the append-only event log: canonical events
// are written under /events/<32-byte id> in the authenticated KV store
// (pkg/kvstore), which remains the source of truth and is what the
// consensus bridge hashes into root_hash. An optional PostgreSQL secondary
// index speeds up filtered, paginated queries; when it is not configured,
// queries fall back to a linear scan of the KV store's /events/ range.
package eventlog

import (
	"bytes"
	"encoding/binary"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/manycbor"
)

// EventID is a 32-byte identifier: the first 8 bytes are the committing
// block height (big-endian), the next 8 the in-block counter (big-endian),
// and the last 16 are zero, matching spec.md §4.K's "ordered, unique within a height" requirement.
type EventID [32]byte

// NewEventID builds an id from a height and an in-block sequence counter.
func NewEventID(height uint64, counter uint64) EventID {
	var id EventID
	binary.BigEndian.PutUint64(id[:8], height)
	binary.BigEndian.PutUint64(id[8:16], counter)
	return id
}

func (id EventID) Bytes() []byte { return id[:] }

// Key returns the storage key this event is written under.
func (id EventID) Key() []byte {
	return append(append([]byte(nil), kvstore.PrefixEvents...), id[:]...)
}

// Event is one canonical entry in the log.
type Event struct {
	ID     EventID           `cbor:"0,keyasint"`
	Kind   string            `cbor:"1,keyasint"`
	From   []byte            `cbor:"2,keyasint,omitempty"`
	To     []byte            `cbor:"3,keyasint,omitempty"`
	Height uint64            `cbor:"4,keyasint"`
	Data   []byte            `cbor:"5,keyasint,omitempty"`
}

// FromIdentity decodes Event.From, or Anonymous if unset.
func (e Event) FromIdentity() identity.Identity {
	if len(e.From) == 0 {
		return identity.Anonymous
	}
	id, err := identity.FromBytes(e.From)
	if err != nil {
		return identity.Anonymous
	}
	return id
}

// Order controls iteration direction for Filter.
type Order int

const (
	OrderIndeterminate Order = iota
	OrderAscending
	OrderDescending
)

// MaxPageSize bounds a single Filter call's result size, per spec.md §4.K.
const MaxPageSize = 100

// Filter selects events by optional kind and from/to identity, paginated.
type Filter struct {
	Kind      string
	From      *identity.Identity
	To        *identity.Identity
	PageSize  int
	PageToken []byte // opaque: the EventID to resume after
	Order     Order
}

func (f Filter) pageSize() int {
	if f.PageSize <= 0 || f.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return f.PageSize
}

// Page is one page of filtered results plus an opaque continuation token.
type Page struct {
	Events        []Event
	NextPageToken []byte
}

// SecondaryIndex is implemented by the optional Postgres-backed index
// (pkg/eventlog/postgres.go). A nil SecondaryIndex means "not configured":
// Log falls back to a linear scan of the KV store.
type SecondaryIndex interface {
	Index(e Event) error
	Query(f Filter) (Page, error)
}

// Log is the event log: writes go to the KV store (source of truth) and,
// if present, to the secondary index for fast querying.
type Log struct {
	store *kvstore.Store
	index SecondaryIndex
}

// NewLog wraps a kvstore.Store. index may be nil.
func NewLog(store *kvstore.Store, index SecondaryIndex) *Log {
	return &Log{store: store, index: index}
}

// Append stages an event write into batch (not yet committed — the caller
// owns the batch's lifecycle) and, if a secondary index is configured, indexes it
// immediately (the index is a best-effort query accelerator, not part of
// the authenticated state).
func (l *Log) Append(batch *kvstore.Batch, e Event) error {
	encoded, err := manycbor.Marshal(e)
	if err != nil {
		return err
	}
	batch.Put(e.ID.Key(), encoded)
	if l.index != nil {
		return l.index.Index(e)
	}
	return nil
}

// Get fetches a single event by id directly from the KV store.
func (l *Log) Get(id EventID) (*Event, bool, error) {
	raw, err := l.store.Get(id.Key())
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	var e Event
	if err := manycbor.Unmarshal(raw, &e); err != nil {
		return nil, false, err
	}
	return &e, true, nil
}

// Filter runs f, preferring the secondary index when configured and
// falling back to a linear scan of the /events/ key range otherwise. When
// the index is used, its result only carries indexed columns (id, height,
// kind); Filter re-hydrates each event's full body from the KV store
// (the source of truth) before returning.
func (l *Log) Filter(f Filter) (Page, error) {
	if l.index == nil {
		return l.scan(f)
	}
	page, err := l.index.Query(f)
	if err != nil {
		return Page{}, err
	}
	full := make([]Event, 0, len(page.Events))
	for _, stub := range page.Events {
		e, ok, err := l.Get(stub.ID)
		if err != nil {
			return Page{}, err
		}
		if ok {
			full = append(full, *e)
		}
	}
	page.Events = full
	return page, nil
}

// scan performs the linear-scan fallback: iterate /events/ in the
// requested order, skip until past PageToken, filter, and stop at
// pageSize.
func (l *Log) scan(f Filter) (Page, error) {
	ascending := f.Order != OrderDescending
	start := append(append([]byte(nil), kvstore.PrefixEvents...))
	end := prefixUpperBound(start)

	it, err := l.store.Range(start, end, ascending)
	if err != nil {
		return Page{}, err
	}
	defer it.Close()

	size := f.pageSize()
	var out []Event
	skipping := len(f.PageToken) > 0
	var next []byte

	for it.Valid() {
		key := it.Key()
		if skipping {
			if bytes.Equal(key, append(append([]byte(nil), kvstore.PrefixEvents...), f.PageToken...)) {
				skipping = false
			}
			it.Next()
			continue
		}
		var e Event
		if err := manycbor.Unmarshal(it.Value(), &e); err != nil {
			return Page{}, err
		}
		if matches(f, e) {
			if len(out) == size {
				next = out[len(out)-1].ID.Bytes()
				break
			}
			out = append(out, e)
		}
		it.Next()
	}
	return Page{Events: out, NextPageToken: next}, nil
}

func matches(f Filter, e Event) bool {
	if f.Kind != "" && f.Kind != e.Kind {
		return false
	}
	if f.From != nil && !e.FromIdentity().Equal(*f.From) {
		return false
	}
	if f.To != nil {
		if len(e.To) == 0 {
			return false
		}
		to, err := identity.FromBytes(e.To)
		if err != nil || !to.Equal(*f.To) {
			return false
		}
	}
	return true
}

// prefixUpperBound returns the lexicographically smallest key greater than
// every key with the given prefix, for use as an exclusive range end.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}
