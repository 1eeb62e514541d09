// Copyright 2025 Certen Protocol
//
// Package ledger implements the reference ledger module (spec.md §4.M):
// per-(address, symbol) balances and token metadata CRUD, grounded on
// original_source's omni-ledger/src/{module,storage}.rs and
// src/ledger/src/tokens.rs, generalized from a fixed symbol-name set to
// symbols minted on demand as subresource identities of the server.
package ledger

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/manycbor"
)

var (
	prefixBalances  = []byte("/balances/")
	prefixTokens    = []byte("/tokens/")
	keyNextTokenID  = kvstore.ConfigKey("nextTokenID")
)

// tokenInfo is the persisted record backing tokens.info/update, keyed by
// the symbol's textual identity under prefixTokens.
type tokenInfo struct {
	Summary           TokenSummary      `cbor:"0,keyasint"`
	Owner             *identity.Identity `cbor:"1,keyasint,omitempty"`
	MaximumSupply     *Amount           `cbor:"2,keyasint,omitempty"`
	CirculatingSupply Amount            `cbor:"3,keyasint"`
	ExtendedInfo      map[string]string `cbor:"4,keyasint,omitempty"`
}

// Storage wraps the shared authenticated kvstore.Store with the ledger
// module's key layout. It holds no state of its own: every mutation is
// applied immediately via store.Apply, consistent with spec.md §5's
// single-writer-under-app.mu model (the bridge already serializes calls
// into Execute, so Storage needs no lock of its own).
type Storage struct {
	server identity.Identity
	store  *kvstore.Store
}

// NewStorage binds a Storage to the node's shared store. server is used
// to derive new token symbols as subresource identities.
func NewStorage(server identity.Identity, store *kvstore.Store) *Storage {
	return &Storage{server: server, store: store}
}

func balanceKey(owner, symbol identity.Identity) []byte {
	var buf bytes.Buffer
	buf.Write(prefixBalances)
	buf.WriteString(owner.ToText())
	buf.WriteByte('/')
	buf.WriteString(symbol.ToText())
	return buf.Bytes()
}

func balancePrefixFor(owner identity.Identity) []byte {
	var buf bytes.Buffer
	buf.Write(prefixBalances)
	buf.WriteString(owner.ToText())
	buf.WriteByte('/')
	return buf.Bytes()
}

func tokenKey(symbol identity.Identity) []byte {
	return append(append([]byte(nil), prefixTokens...), []byte(symbol.ToText())...)
}

// applySorted builds a Batch from pairs in strictly ascending key order,
// satisfying kvstore.Store.Apply's ordering invariant regardless of the
// order callers discovered the keys in.
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

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded above
}

// Hash returns the store's current authenticated root, answered as-is by
// ledger.info per spec.md §4.M.
func (s *Storage) Hash() []byte { return s.store.Root() }

// Balance returns owner's balance in symbol, zero if never set. Anonymous
// identities always hold zero (they cannot receive funds).
func (s *Storage) Balance(owner, symbol identity.Identity) (Amount, error) {
	if owner.IsAnonymous() {
		return Zero(), nil
	}
	v, err := s.store.Get(balanceKey(owner, symbol))
	if err != nil {
		return Amount{}, err
	}
	if v == nil {
		return Zero(), nil
	}
	return FromBytes(v), nil
}

// Balances returns owner's balance across symbols, or across every known
// symbol when symbols is empty.
func (s *Storage) Balances(owner identity.Identity, symbols []identity.Identity) (map[string]Amount, error) {
	out := map[string]Amount{}
	if owner.IsAnonymous() {
		return out, nil
	}
	if len(symbols) > 0 {
		for _, sym := range symbols {
			amt, err := s.Balance(owner, sym)
			if err != nil {
				return nil, err
			}
			out[sym.ToText()] = amt
		}
		return out, nil
	}

	prefix := balancePrefixFor(owner)
	it, err := s.store.Range(prefix, prefixUpperBound(prefix), true)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.Valid() {
		symText := string(it.Key()[len(prefix):])
		out[symText] = FromBytes(it.Value())
		it.Next()
	}
	return out, nil
}

// Symbols lists every known token symbol.
func (s *Storage) Symbols() ([]identity.Identity, error) {
	it, err := s.store.Range(prefixTokens, prefixUpperBound(prefixTokens), true)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []identity.Identity
	for it.Valid() {
		var info tokenInfo
		if err := manycbor.Unmarshal(it.Value(), &info); err != nil {
			return nil, err
		}
		symText := string(it.Key()[len(prefixTokens):])
		sym, err := identity.FromText(symText)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
		it.Next()
	}
	return out, nil
}

func (s *Storage) getToken(symbol identity.Identity) (tokenInfo, error) {
	v, err := s.store.Get(tokenKey(symbol))
	if err != nil {
		return tokenInfo{}, err
	}
	if v == nil {
		return tokenInfo{}, errUnknownToken(symbol.ToText())
	}
	var info tokenInfo
	if err := manycbor.Unmarshal(v, &info); err != nil {
		return tokenInfo{}, err
	}
	return info, nil
}

// IsKnownSymbol reports whether symbol has been created via tokens.create.
func (s *Storage) IsKnownSymbol(symbol identity.Identity) error {
	_, err := s.getToken(symbol)
	return err
}

func (s *Storage) nextTokenID() (uint32, error) {
	v, err := s.store.Get(keyNextTokenID)
	if err != nil {
		return 0, err
	}
	if len(v) != 4 {
		return 1, nil
	}
	return binary.BigEndian.Uint32(v) + 1, nil
}

// CreateToken allocates a new symbol (a subresource identity of the
// server), persists its metadata, and mints any initial distribution.
func (s *Storage) CreateToken(args TokenCreateArgs) (identity.Identity, error) {
	id, err := s.nextTokenID()
	if err != nil {
		return identity.Identity{}, err
	}
	symbol := s.server.WithSubresource(id)

	info := tokenInfo{
		Summary:      args.Summary,
		Owner:        args.Owner,
		MaximumSupply: args.MaximumSupply,
		ExtendedInfo: args.ExtendedInfo,
	}

	pairs := map[string][]byte{}
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], id)
	pairs[string(keyNextTokenID)] = idBuf[:]

	for text, amount := range args.InitialDistribution {
		to, err := identity.FromText(text)
		if err != nil {
			return identity.Identity{}, err
		}
		if to.IsAnonymous() {
			return identity.Identity{}, errAnonymousCannotHoldFunds()
		}
		info.CirculatingSupply = info.CirculatingSupply.Add(amount)
		if info.MaximumSupply != nil && info.CirculatingSupply.Cmp(*info.MaximumSupply) > 0 {
			return identity.Identity{}, errMaximumSupplyExceeded()
		}
		pairs[string(balanceKey(to, symbol))] = amount.Bytes()
	}

	encoded, err := manycbor.Marshal(info)
	if err != nil {
		return identity.Identity{}, err
	}
	pairs[string(tokenKey(symbol))] = encoded

	if err := applySorted(s.store, pairs); err != nil {
		return identity.Identity{}, err
	}
	return symbol, nil
}

// SeedToken registers symbol's metadata directly, bypassing the
// nextTokenID allocator and CreateToken's caller-driven minting: genesis
// (spec.md §6's "symbols: map<address, shortname>") names its token
// symbols as fixed addresses rather than server subresources, so there
// is no id to allocate and no caller to authorize against. It is a
// startup-only primitive: calling it against a symbol CreateToken (or a
// prior SeedToken) already populated overwrites that token's metadata.
func (s *Storage) SeedToken(symbol identity.Identity, summary TokenSummary) error {
	info, err := s.getToken(symbol)
	if err != nil {
		info = tokenInfo{}
	}
	info.Summary = summary
	return s.putToken(symbol, info)
}

// SeedBalance credits owner's balance in symbol by amount and bumps
// symbol's circulating supply, for genesis's "initial:
// map<address, map<symbol-or-name, amount>>" distribution (spec.md §6).
// Unlike Send/Mint it has no source account and no owner check: genesis
// is establishing ground truth, not moving existing funds. symbol need
// not have been seeded via SeedToken first (spec.md allows "name" as
// well as "address" in the inner map; an unrecognized token is credited
// with zero-value metadata and left for a later SeedToken/CreateToken
// call, if any, to fill in).
func (s *Storage) SeedBalance(owner, symbol identity.Identity, amount Amount) error {
	if owner.IsAnonymous() {
		return errAnonymousCannotHoldFunds()
	}
	if amount.IsZero() {
		return nil
	}
	info, err := s.getToken(symbol)
	if err != nil {
		info = tokenInfo{}
	}
	info.CirculatingSupply = info.CirculatingSupply.Add(amount)
	if info.MaximumSupply != nil && info.CirculatingSupply.Cmp(*info.MaximumSupply) > 0 {
		return errMaximumSupplyExceeded()
	}
	encodedInfo, err := manycbor.Marshal(info)
	if err != nil {
		return err
	}
	existing, err := s.Balance(owner, symbol)
	if err != nil {
		return err
	}
	pairs := map[string][]byte{
		string(balanceKey(owner, symbol)): existing.Add(amount).Bytes(),
		string(tokenKey(symbol)):          encodedInfo,
	}
	return applySorted(s.store, pairs)
}

// UpdateToken applies the non-nil fields of args to an existing token.
// Only the token's current owner may call this.
func (s *Storage) UpdateToken(caller identity.Identity, args TokenUpdateArgs) error {
	info, err := s.getToken(args.Symbol)
	if err != nil {
		return err
	}
	if !isOwner(info, caller) {
		return errUnauthorized()
	}
	if args.Name != nil {
		info.Summary.Name = *args.Name
	}
	if args.Ticker != nil {
		info.Summary.Ticker = *args.Ticker
	}
	if args.Decimals != nil {
		info.Summary.Decimals = *args.Decimals
	}
	if args.Owner != nil {
		info.Owner = args.Owner
	}
	if args.Memo != nil {
		if info.ExtendedInfo == nil {
			info.ExtendedInfo = map[string]string{}
		}
		info.ExtendedInfo["memo"] = *args.Memo
	}
	return s.putToken(args.Symbol, info)
}

// TokenInfo returns the current metadata for symbol.
func (s *Storage) TokenInfo(symbol identity.Identity) (TokenInfoReturns, error) {
	info, err := s.getToken(symbol)
	if err != nil {
		return TokenInfoReturns{}, err
	}
	return TokenInfoReturns{
		Summary:           info.Summary,
		Owner:             info.Owner,
		MaximumSupply:     info.MaximumSupply,
		CirculatingSupply: info.CirculatingSupply,
		ExtendedInfo:      info.ExtendedInfo,
	}, nil
}

// AddExtendedInfo sets one extended-info key/value pair on a token.
func (s *Storage) AddExtendedInfo(caller identity.Identity, symbol identity.Identity, key, value string) error {
	info, err := s.getToken(symbol)
	if err != nil {
		return err
	}
	if !isOwner(info, caller) {
		return errUnauthorized()
	}
	if info.ExtendedInfo == nil {
		info.ExtendedInfo = map[string]string{}
	}
	info.ExtendedInfo[key] = value
	return s.putToken(symbol, info)
}

// RemoveExtendedInfo deletes the named extended-info keys from a token.
func (s *Storage) RemoveExtendedInfo(caller identity.Identity, symbol identity.Identity, keys []string) error {
	info, err := s.getToken(symbol)
	if err != nil {
		return err
	}
	if !isOwner(info, caller) {
		return errUnauthorized()
	}
	for _, k := range keys {
		delete(info.ExtendedInfo, k)
	}
	return s.putToken(symbol, info)
}

func (s *Storage) putToken(symbol identity.Identity, info tokenInfo) error {
	encoded, err := manycbor.Marshal(info)
	if err != nil {
		return err
	}
	batch := kvstore.NewBatch()
	batch.Put(tokenKey(symbol), encoded)
	return s.store.Apply(batch)
}

func isOwner(info tokenInfo, caller identity.Identity) bool {
	if caller.IsAnonymous() || info.Owner == nil {
		return false
	}
	return info.Owner.Equal(caller)
}

// Send moves amount of symbol from `from` to `to`, per spec.md §4.M:
// fails on same source/destination, zero amount, an anonymous endpoint,
// or insufficient funds.
func (s *Storage) Send(from, to, symbol identity.Identity, amount Amount) (Amount, error) {
	if from.Equal(to) {
		return Amount{}, errSameSourceAndDestination()
	}
	if from.IsAnonymous() || to.IsAnonymous() {
		return Amount{}, errAnonymousCannotHoldFunds()
	}
	if err := s.IsKnownSymbol(symbol); err != nil {
		return Amount{}, err
	}
	if amount.IsZero() {
		return Amount{}, errZeroAmount()
	}

	fromBalance, err := s.Balance(from, symbol)
	if err != nil {
		return Amount{}, err
	}
	if amount.Cmp(fromBalance) > 0 {
		return Amount{}, errInsufficientFunds()
	}
	toBalance, err := s.Balance(to, symbol)
	if err != nil {
		return Amount{}, err
	}

	newFrom := fromBalance.SaturatingSub(amount)
	newTo := toBalance.Add(amount)

	pairs := map[string][]byte{
		string(balanceKey(from, symbol)): newFrom.Bytes(),
		string(balanceKey(to, symbol)):   newTo.Bytes(),
	}
	if err := applySorted(s.store, pairs); err != nil {
		return Amount{}, err
	}
	return newFrom, nil
}

// Mint increases to's balance in symbol by amount. Only the token's
// owner may call this; fails if it would exceed the declared
// maximum_supply.
func (s *Storage) Mint(caller, to, symbol identity.Identity, amount Amount) (Amount, error) {
	info, err := s.getToken(symbol)
	if err != nil {
		return Amount{}, err
	}
	if !isOwner(info, caller) {
		return Amount{}, errUnauthorized()
	}
	if to.IsAnonymous() {
		return Amount{}, errAnonymousCannotHoldFunds()
	}
	if amount.IsZero() {
		return s.Balance(to, symbol)
	}

	newSupply := info.CirculatingSupply.Add(amount)
	if info.MaximumSupply != nil && newSupply.Cmp(*info.MaximumSupply) > 0 {
		return Amount{}, errMaximumSupplyExceeded()
	}
	balance, err := s.Balance(to, symbol)
	if err != nil {
		return Amount{}, err
	}
	newBalance := balance.Add(amount)
	info.CirculatingSupply = newSupply

	encoded, err := manycbor.Marshal(info)
	if err != nil {
		return Amount{}, err
	}
	pairs := map[string][]byte{
		string(balanceKey(to, symbol)): newBalance.Bytes(),
		string(tokenKey(symbol)):       encoded,
	}
	if err := applySorted(s.store, pairs); err != nil {
		return Amount{}, err
	}
	return newBalance, nil
}

// Burn decreases to's balance in symbol by amount. Only the token's
// owner may call this; fails on insufficient balance.
func (s *Storage) Burn(caller, to, symbol identity.Identity, amount Amount) (Amount, error) {
	info, err := s.getToken(symbol)
	if err != nil {
		return Amount{}, err
	}
	if !isOwner(info, caller) {
		return Amount{}, errUnauthorized()
	}
	if amount.IsZero() {
		return s.Balance(to, symbol)
	}

	balance, err := s.Balance(to, symbol)
	if err != nil {
		return Amount{}, err
	}
	if amount.Cmp(balance) > 0 {
		return Amount{}, errInsufficientFunds()
	}
	newBalance := balance.SaturatingSub(amount)
	info.CirculatingSupply = info.CirculatingSupply.SaturatingSub(amount)

	encoded, err := manycbor.Marshal(info)
	if err != nil {
		return Amount{}, err
	}
	pairs := map[string][]byte{
		string(balanceKey(to, symbol)): newBalance.Bytes(),
		string(tokenKey(symbol)):       encoded,
	}
	if err := applySorted(s.store, pairs); err != nil {
		return Amount{}, err
	}
	return newBalance, nil
}
