// Copyright 2025 Certen Protocol
//
// CometBFT-backed DB implementation, adapted from the single-purpose
// KVAdapter: where that type only wrapped Get/Set for a ledger balance
// map, this one exposes the full ordered-iteration DB interface the
// authenticated store needs for range queries and root recomputation.
package kvstore

import (
	dbm "github.com/cometbft/cometbft-db"
)

// CometDB adapts a cometbft-db handle to the DB interface.
type CometDB struct {
	db dbm.DB
}

// NewCometDB wraps an opened cometbft-db database.
func NewCometDB(db dbm.DB) *CometDB {
	return &CometDB{db: db}
}

func (c *CometDB) Get(key []byte) ([]byte, error) {
	v, err := c.db.Get(key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *CometDB) Set(key, value []byte) error {
	return c.db.SetSync(key, value)
}

func (c *CometDB) Delete(key []byte) error {
	return c.db.DeleteSync(key)
}

func (c *CometDB) Close() error {
	return c.db.Close()
}

func (c *CometDB) Iterator(start, end []byte, ascending bool) (Iterator, error) {
	var (
		it  dbm.Iterator
		err error
	)
	if ascending {
		it, err = c.db.Iterator(start, end)
	} else {
		it, err = c.db.ReverseIterator(start, end)
	}
	if err != nil {
		return nil, err
	}
	return &cometIterator{it: it}, nil
}

type cometIterator struct {
	it dbm.Iterator
}

func (c *cometIterator) Valid() bool     { return c.it.Valid() }
func (c *cometIterator) Key() []byte     { return c.it.Key() }
func (c *cometIterator) Value() []byte   { return c.it.Value() }
func (c *cometIterator) Next()           { c.it.Next() }
func (c *cometIterator) Close() error    { return c.it.Close() }
