// Copyright 2025 Certen Protocol

package ledger

import "github.com/certenio/manynet/pkg/identity"

// BalanceArgs requests the balance of account (the caller if nil) across
// symbols (every known symbol if empty), per spec.md §4.M.
type BalanceArgs struct {
	Account *identity.Identity  `cbor:"0,keyasint,omitempty"`
	Symbols []identity.Identity `cbor:"1,keyasint,omitempty"`
}

// BalanceReturns maps each queried symbol's textual identity to its
// balance.
type BalanceReturns struct {
	Balances map[string]Amount `cbor:"0,keyasint"`
}

// InfoReturns answers ledger.info.
type InfoReturns struct {
	Symbols    []identity.Identity `cbor:"0,keyasint"`
	Hash       []byte              `cbor:"1,keyasint"`
	LocalNames map[string]string   `cbor:"2,keyasint,omitempty"`
}

// SendArgs moves amount of symbol from `from` (the caller if nil) to `to`.
type SendArgs struct {
	From   *identity.Identity `cbor:"0,keyasint,omitempty"`
	To     identity.Identity  `cbor:"1,keyasint"`
	Symbol identity.Identity  `cbor:"2,keyasint"`
	Amount Amount             `cbor:"3,keyasint"`
}

// SendReturns reports the sender's new balance in symbol.
type SendReturns struct {
	Balance Amount `cbor:"0,keyasint"`
}

// MintArgs/BurnArgs adjust to's balance in symbol; only the token's owner
// may call either, per spec.md §4.M.
type MintArgs struct {
	To     identity.Identity `cbor:"0,keyasint"`
	Symbol identity.Identity `cbor:"1,keyasint"`
	Amount Amount            `cbor:"2,keyasint"`
}

type MintReturns struct {
	Balance Amount `cbor:"0,keyasint"`
}

type BurnArgs struct {
	To     identity.Identity `cbor:"0,keyasint"`
	Symbol identity.Identity `cbor:"1,keyasint"`
	Amount Amount            `cbor:"2,keyasint"`
}

type BurnReturns struct {
	Balance Amount `cbor:"0,keyasint"`
}

// TokenSummary is the {name, ticker, decimals} triple every token
// carries, grounded on original_source's TokenInfoSummary.
type TokenSummary struct {
	Name     string `cbor:"0,keyasint"`
	Ticker   string `cbor:"1,keyasint"`
	Decimals uint64 `cbor:"2,keyasint"`
}

// TokenCreateArgs creates a new token symbol, assigned as a subresource
// identity of the server (spec.md §4.M).
type TokenCreateArgs struct {
	Summary              TokenSummary         `cbor:"0,keyasint"`
	Owner                *identity.Identity   `cbor:"1,keyasint,omitempty"`
	InitialDistribution  map[string]Amount    `cbor:"2,keyasint,omitempty"`
	MaximumSupply        *Amount              `cbor:"3,keyasint,omitempty"`
	ExtendedInfo         map[string]string    `cbor:"4,keyasint,omitempty"`
}

type TokenCreateReturns struct {
	Symbol identity.Identity `cbor:"0,keyasint"`
}

// TokenUpdateArgs changes a subset of a token's mutable fields. Only the
// token's current owner may call this.
type TokenUpdateArgs struct {
	Symbol   identity.Identity  `cbor:"0,keyasint"`
	Name     *string            `cbor:"1,keyasint,omitempty"`
	Ticker   *string            `cbor:"2,keyasint,omitempty"`
	Decimals *uint64            `cbor:"3,keyasint,omitempty"`
	Owner    *identity.Identity `cbor:"4,keyasint,omitempty"`
	Memo     *string            `cbor:"5,keyasint,omitempty"`
}

type TokenUpdateReturns struct{}

type TokenInfoArgs struct {
	Symbol identity.Identity `cbor:"0,keyasint"`
}

type TokenInfoReturns struct {
	Summary           TokenSummary       `cbor:"0,keyasint"`
	Owner             *identity.Identity `cbor:"1,keyasint,omitempty"`
	MaximumSupply     *Amount            `cbor:"2,keyasint,omitempty"`
	CirculatingSupply Amount             `cbor:"3,keyasint"`
	ExtendedInfo      map[string]string  `cbor:"4,keyasint,omitempty"`
}

type TokenAddExtendedInfoArgs struct {
	Symbol identity.Identity `cbor:"0,keyasint"`
	Key    string            `cbor:"1,keyasint"`
	Value  string            `cbor:"2,keyasint"`
}

type TokenAddExtendedInfoReturns struct{}

type TokenRemoveExtendedInfoArgs struct {
	Symbol identity.Identity `cbor:"0,keyasint"`
	Keys   []string          `cbor:"1,keyasint"`
}

type TokenRemoveExtendedInfoReturns struct{}
