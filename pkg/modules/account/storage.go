// Copyright 2025 Certen Protocol
//
// Package account implements the account and multisig-approval module
// (spec.md §4.O): addressable accounts carrying roles/features, and a
// threshold-approval transaction state machine, grounded on
// original_source's src/ledger/src/{account,multisig}.rs CLI definitions
// and the account.* endpoint list in many-kvstore/src/module.rs (the
// account module is shared infrastructure served alongside both ledger
// and kvstore in the original, generalized here into its own namespace).
package account

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/certenio/manynet/pkg/modules/ledger"
)

var (
	prefixAccounts       = []byte("/accounts/")
	prefixMultisig       = []byte("/multisig/")
	keyNextAccountID     = kvstore.ConfigKey("nextAccountID")
	keyNextMultisigToken = kvstore.ConfigKey("nextMultisigToken")
)

const (
	defaultThreshold            = 1
	defaultTimeoutSecs          = 7 * 24 * 3600
	defaultExecuteAutomatically = false
)

// accountRecord is the persisted state of one account.
type accountRecord struct {
	Description string            `cbor:"0,keyasint,omitempty"`
	Roles       map[string][]Role `cbor:"1,keyasint,omitempty"`
	Features    []Feature         `cbor:"2,keyasint,omitempty"`
	Disabled    bool              `cbor:"3,keyasint"`

	MultisigThreshold            uint64 `cbor:"4,keyasint"`
	MultisigTimeoutSecs           uint64 `cbor:"5,keyasint"`
	MultisigExecuteAutomatically bool   `cbor:"6,keyasint"`
}

func hasFeature(rec accountRecord, f Feature) bool {
	for _, x := range rec.Features {
		if x == f {
			return true
		}
	}
	return false
}

// multisigRecord is the persisted state of one submitted transaction.
type multisigRecord struct {
	Account              identity.Identity `cbor:"0,keyasint"`
	Memo                 *string           `cbor:"1,keyasint,omitempty"`
	Transaction          Transaction       `cbor:"2,keyasint"`
	Submitter            identity.Identity `cbor:"3,keyasint"`
	Approvers            map[string]bool   `cbor:"4,keyasint"`
	Threshold            uint64            `cbor:"5,keyasint"`
	ExecuteAutomatically bool              `cbor:"6,keyasint"`
	State                MultisigState     `cbor:"7,keyasint"`
	SubmittedAtUnix      int64             `cbor:"8,keyasint"`
	TimeoutSecs          uint64            `cbor:"9,keyasint"`
}

// Storage wraps the shared authenticated store for accounts and
// multisig transactions. As with the ledger/kvstore modules, no method
// takes its own lock: the bridge already serializes mutating calls.
type Storage struct {
	server identity.Identity
	store  *kvstore.Store
	ledger *ledger.Storage
}

// NewStorage binds a Storage to the shared store. ledgerStorage is used
// to execute "send" multisig transactions; it may be nil in
// configurations that never enable the ledger feature.
func NewStorage(server identity.Identity, store *kvstore.Store, ledgerStorage *ledger.Storage) *Storage {
	return &Storage{server: server, store: store, ledger: ledgerStorage}
}

func accountKey(id identity.Identity) []byte {
	return append(append([]byte(nil), prefixAccounts...), []byte(id.ToText())...)
}

func multisigKey(token []byte) []byte {
	return append(append([]byte(nil), prefixMultisig...), token...)
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

func (s *Storage) nextAccountID() (uint32, error) {
	v, err := s.store.Get(keyNextAccountID)
	if err != nil {
		return 0, err
	}
	if len(v) != 4 {
		return 1, nil
	}
	return binary.BigEndian.Uint32(v) + 1, nil
}

func (s *Storage) nextMultisigToken() ([]byte, error) {
	v, err := s.store.Get(keyNextMultisigToken)
	if err != nil {
		return nil, err
	}
	var next uint64 = 1
	if len(v) == 8 {
		next = binary.BigEndian.Uint64(v) + 1
	}
	token := make([]byte, 8)
	binary.BigEndian.PutUint64(token, next)
	return token, nil
}

func (s *Storage) getAccount(id identity.Identity) (accountRecord, error) {
	v, err := s.store.Get(accountKey(id))
	if err != nil {
		return accountRecord{}, err
	}
	if v == nil {
		return accountRecord{}, errUnknownAccount(id.ToText())
	}
	var rec accountRecord
	if err := manycbor.Unmarshal(v, &rec); err != nil {
		return accountRecord{}, err
	}
	return rec, nil
}

func (s *Storage) putAccount(id identity.Identity, rec accountRecord) error {
	encoded, err := manycbor.Marshal(rec)
	if err != nil {
		return err
	}
	batch := kvstore.NewBatch()
	batch.Put(accountKey(id), encoded)
	return s.store.Apply(batch)
}

// needsRole reports whether caller holds one of roles on rec, or Owner.
func needsRole(rec accountRecord, caller identity.Identity, roles ...Role) bool {
	held := rec.Roles[caller.ToText()]
	for _, h := range held {
		if h == RoleOwner {
			return true
		}
		for _, want := range roles {
			if h == want {
				return true
			}
		}
	}
	return false
}

// CreateAccount allocates a new account as a subresource identity of the
// server, owned by caller.
func (s *Storage) CreateAccount(caller identity.Identity, args CreateArgs) (identity.Identity, error) {
	id, err := s.nextAccountID()
	if err != nil {
		return identity.Identity{}, err
	}
	account := s.server.WithSubresource(id)

	roles := args.Roles
	if roles == nil {
		roles = map[string][]Role{}
	}
	roles[caller.ToText()] = append(append([]Role(nil), roles[caller.ToText()]...), RoleOwner)

	rec := accountRecord{
		Description:                  args.Description,
		Roles:                        roles,
		Features:                     args.Features,
		MultisigThreshold:            defaultThreshold,
		MultisigTimeoutSecs:          defaultTimeoutSecs,
		MultisigExecuteAutomatically: defaultExecuteAutomatically,
	}

	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], id)
	encoded, err := manycbor.Marshal(rec)
	if err != nil {
		return identity.Identity{}, err
	}
	pairs := map[string][]byte{
		string(keyNextAccountID):  idBuf[:],
		string(accountKey(account)): encoded,
	}
	if err := applySorted(s.store, pairs); err != nil {
		return identity.Identity{}, err
	}
	return account, nil
}

// SeedAccount creates an account from a genesis spec (spec.md §6's
// optional "accounts: [...]"), allocating it the next subresource id the
// same way CreateAccount does. Unlike CreateAccount it has no caller: a
// genesis account names its own owners directly in args.Roles, so no
// implicit RoleOwner grant is added.
func (s *Storage) SeedAccount(args CreateArgs) (identity.Identity, error) {
	id, err := s.nextAccountID()
	if err != nil {
		return identity.Identity{}, err
	}
	account := s.server.WithSubresource(id)

	roles := args.Roles
	if roles == nil {
		roles = map[string][]Role{}
	}

	rec := accountRecord{
		Description:                  args.Description,
		Roles:                        roles,
		Features:                     args.Features,
		MultisigThreshold:            defaultThreshold,
		MultisigTimeoutSecs:          defaultTimeoutSecs,
		MultisigExecuteAutomatically: defaultExecuteAutomatically,
	}

	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], id)
	encoded, err := manycbor.Marshal(rec)
	if err != nil {
		return identity.Identity{}, err
	}
	pairs := map[string][]byte{
		string(keyNextAccountID):    idBuf[:],
		string(accountKey(account)): encoded,
	}
	if err := applySorted(s.store, pairs); err != nil {
		return identity.Identity{}, err
	}
	return account, nil
}

func (s *Storage) SetDescription(caller, account identity.Identity, description string) error {
	rec, err := s.getAccount(account)
	if err != nil {
		return err
	}
	if !needsRole(rec, caller) {
		return errUserNeedsRole()
	}
	rec.Description = description
	return s.putAccount(account, rec)
}

func (s *Storage) ListRoles(account identity.Identity) ([]Role, error) {
	rec, err := s.getAccount(account)
	if err != nil {
		return nil, err
	}
	seen := map[Role]bool{}
	var out []Role
	for _, roles := range rec.Roles {
		for _, r := range roles {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Storage) GetRoles(account identity.Identity, identities []identity.Identity) (map[string][]Role, error) {
	rec, err := s.getAccount(account)
	if err != nil {
		return nil, err
	}
	out := map[string][]Role{}
	for _, id := range identities {
		out[id.ToText()] = rec.Roles[id.ToText()]
	}
	return out, nil
}

func (s *Storage) AddRoles(caller, account identity.Identity, roles map[string][]Role) error {
	rec, err := s.getAccount(account)
	if err != nil {
		return err
	}
	if !needsRole(rec, caller) {
		return errUserNeedsRole()
	}
	if rec.Roles == nil {
		rec.Roles = map[string][]Role{}
	}
	for who, add := range roles {
		rec.Roles[who] = append(rec.Roles[who], add...)
	}
	return s.putAccount(account, rec)
}

func (s *Storage) RemoveRoles(caller, account identity.Identity, roles map[string][]Role) error {
	rec, err := s.getAccount(account)
	if err != nil {
		return err
	}
	if !needsRole(rec, caller) {
		return errUserNeedsRole()
	}
	for who, remove := range roles {
		kept := rec.Roles[who][:0]
		for _, h := range rec.Roles[who] {
			drop := false
			for _, r := range remove {
				if h == r {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, h)
			}
		}
		rec.Roles[who] = kept
	}
	return s.putAccount(account, rec)
}

func (s *Storage) Info(account identity.Identity) (InfoReturns, error) {
	rec, err := s.getAccount(account)
	if err != nil {
		return InfoReturns{}, err
	}
	return InfoReturns{
		Description: rec.Description,
		Roles:       rec.Roles,
		Features:    rec.Features,
		Disabled:    rec.Disabled,
	}, nil
}

// Disable sets the account's disabled flag, reported by Info. No other
// account operation checks the flag.
func (s *Storage) Disable(caller, account identity.Identity) error {
	rec, err := s.getAccount(account)
	if err != nil {
		return err
	}
	if !needsRole(rec, caller) {
		return errUserNeedsRole()
	}
	rec.Disabled = true
	return s.putAccount(account, rec)
}

func (s *Storage) AddFeatures(caller, account identity.Identity, features []Feature) error {
	rec, err := s.getAccount(account)
	if err != nil {
		return err
	}
	if !needsRole(rec, caller) {
		return errUserNeedsRole()
	}
	for _, f := range features {
		if !hasFeature(rec, f) {
			rec.Features = append(rec.Features, f)
		}
	}
	return s.putAccount(account, rec)
}

func (s *Storage) SetDefaults(caller identity.Identity, args SetDefaultsArgs) error {
	rec, err := s.getAccount(args.Account)
	if err != nil {
		return err
	}
	if !needsRole(rec, caller) {
		return errUserNeedsRole()
	}
	if args.Threshold != nil {
		rec.MultisigThreshold = *args.Threshold
	}
	if args.TimeoutInSecs != nil {
		rec.MultisigTimeoutSecs = *args.TimeoutInSecs
	}
	if args.ExecuteAutomatically != nil {
		rec.MultisigExecuteAutomatically = *args.ExecuteAutomatically
	}
	return s.putAccount(args.Account, rec)
}

func (s *Storage) getMultisig(token []byte) (multisigRecord, error) {
	v, err := s.store.Get(multisigKey(token))
	if err != nil {
		return multisigRecord{}, err
	}
	if v == nil {
		return multisigRecord{}, errUnknownTransaction()
	}
	var rec multisigRecord
	if err := manycbor.Unmarshal(v, &rec); err != nil {
		return multisigRecord{}, err
	}
	return rec, nil
}

func (s *Storage) putMultisig(token []byte, rec multisigRecord) error {
	encoded, err := manycbor.Marshal(rec)
	if err != nil {
		return err
	}
	batch := kvstore.NewBatch()
	batch.Put(multisigKey(token), encoded)
	return s.store.Apply(batch)
}

// expireIfPastTimeout transitions a Pending transaction to Expired in
// place once now is past its snapshotted deadline. ExpireTimedOutTransactions
// (the end_block hook) is the primary path per spec.md §5; this is also
// checked inline on every multisig read/mutation so a transaction whose
// deadline passed since the last end_block never appears live in the
// interim.
func (s *Storage) expireIfPastTimeout(token []byte, rec multisigRecord, now time.Time) (multisigRecord, error) {
	if rec.State != StatePending {
		return rec, nil
	}
	deadline := time.Unix(rec.SubmittedAtUnix, 0).Add(time.Duration(rec.TimeoutSecs) * time.Second)
	if now.Before(deadline) {
		return rec, nil
	}
	rec.State = StateExpired
	if err := s.putMultisig(token, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// ExpireTimedOutTransactions scans every multisig transaction and expires
// any Pending one whose snapshotted timeout has passed as of now. Bound
// to pkg/bridge's EndBlockHook so expiry runs once per block, per
// spec.md §5 ("Multisig timeouts are checked in end_block").
func (s *Storage) ExpireTimedOutTransactions(now time.Time) error {
	end := prefixUpperBound(prefixMultisig)
	iter, err := s.store.Range(prefixMultisig, end, true)
	if err != nil {
		return err
	}
	defer iter.Close()

	var tokens [][]byte
	var recs []multisigRecord
	for iter.Valid() {
		var rec multisigRecord
		if err := manycbor.Unmarshal(iter.Value(), &rec); err != nil {
			return err
		}
		if rec.State == StatePending {
			deadline := time.Unix(rec.SubmittedAtUnix, 0).Add(time.Duration(rec.TimeoutSecs) * time.Second)
			if !now.Before(deadline) {
				key := append([]byte(nil), iter.Key()...)
				tokens = append(tokens, key)
				recs = append(recs, rec)
			}
		}
		iter.Next()
	}

	pairs := map[string][]byte{}
	for i, key := range tokens {
		rec := recs[i]
		rec.State = StateExpired
		encoded, err := manycbor.Marshal(rec)
		if err != nil {
			return err
		}
		pairs[string(key)] = encoded
	}
	if len(pairs) == 0 {
		return nil
	}
	return applySorted(s.store, pairs)
}

// prefixUpperBound returns the smallest byte string greater than every
// string sharing prefix, for use as Range's exclusive end bound.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// SubmitTransaction creates a new Pending multisig transaction, snapshotting
// the account's current defaults unless overridden.
func (s *Storage) SubmitTransaction(caller identity.Identity, now time.Time, args SubmitTransactionArgs) ([]byte, MultisigState, error) {
	rec, err := s.getAccount(args.Account)
	if err != nil {
		return nil, "", err
	}
	if !hasFeature(rec, FeatureMultisig) {
		return nil, "", errUnauthorized()
	}
	if !needsRole(rec, caller, RoleCanMultisigSubmit) {
		return nil, "", errUserNeedsRole()
	}

	threshold := rec.MultisigThreshold
	if args.Threshold != nil {
		threshold = *args.Threshold
	}
	timeout := rec.MultisigTimeoutSecs
	if args.TimeoutInSecs != nil {
		timeout = *args.TimeoutInSecs
	}
	auto := rec.MultisigExecuteAutomatically
	if args.ExecuteAutomatically != nil {
		auto = *args.ExecuteAutomatically
	}

	token, err := s.nextMultisigToken()
	if err != nil {
		return nil, "", err
	}
	tx := multisigRecord{
		Account:              args.Account,
		Memo:                 args.Memo,
		Transaction:          args.Transaction,
		Submitter:            caller,
		Approvers:            map[string]bool{caller.ToText(): true},
		Threshold:            threshold,
		ExecuteAutomatically: auto,
		State:                StatePending,
		SubmittedAtUnix:      now.Unix(),
		TimeoutSecs:          timeout,
	}

	pairs := map[string][]byte{}
	var tokBuf [8]byte
	copy(tokBuf[:], token)
	pairs[string(keyNextMultisigToken)] = tokBuf[:]
	encoded, err := manycbor.Marshal(tx)
	if err != nil {
		return nil, "", err
	}
	pairs[string(multisigKey(token))] = encoded
	if err := applySorted(s.store, pairs); err != nil {
		return nil, "", err
	}

	state := StatePending
	if uint64(len(tx.Approvers)) >= tx.Threshold && tx.ExecuteAutomatically {
		if err := s.executeTransaction(token, &tx); err != nil {
			return nil, "", err
		}
		state = tx.State
		if err := s.putMultisig(token, tx); err != nil {
			return nil, "", err
		}
	}
	return token, state, nil
}

// Approve records caller's approval, auto-executing if the account's
// execute_automatically default (snapshotted at submit time) and
// threshold are both satisfied.
func (s *Storage) Approve(caller identity.Identity, now time.Time, token []byte) (bool, error) {
	tx, err := s.getMultisig(token)
	if err != nil {
		return false, err
	}
	tx, err = s.expireIfPastTimeout(token, tx, now)
	if err != nil {
		return false, err
	}
	if tx.State.terminal() {
		return false, errWrongTransactionState()
	}
	accountRec, err := s.getAccount(tx.Account)
	if err != nil {
		return false, err
	}
	if !needsRole(accountRec, caller, RoleCanMultisigApprove) {
		return false, errUserNeedsRole()
	}
	if tx.Approvers[caller.ToText()] {
		return false, errAlreadyApproved()
	}
	tx.Approvers[caller.ToText()] = true

	executed := false
	if uint64(len(tx.Approvers)) >= tx.Threshold && tx.ExecuteAutomatically {
		if err := s.executeTransaction(token, &tx); err != nil {
			return false, err
		}
		executed = true
	}
	return executed, s.putMultisig(token, tx)
}

// Revoke withdraws caller's prior approval from a Pending transaction.
func (s *Storage) Revoke(caller identity.Identity, now time.Time, token []byte) error {
	tx, err := s.getMultisig(token)
	if err != nil {
		return err
	}
	tx, err = s.expireIfPastTimeout(token, tx, now)
	if err != nil {
		return err
	}
	if tx.State.terminal() {
		return errWrongTransactionState()
	}
	if !tx.Approvers[caller.ToText()] {
		return errNotApproved()
	}
	delete(tx.Approvers, caller.ToText())
	return s.putMultisig(token, tx)
}

// Execute manually executes a Pending transaction that has already met
// its threshold. Only the submitter or the account owner may call this.
func (s *Storage) Execute(caller identity.Identity, now time.Time, token []byte) error {
	tx, err := s.getMultisig(token)
	if err != nil {
		return err
	}
	tx, err = s.expireIfPastTimeout(token, tx, now)
	if err != nil {
		return err
	}
	if tx.State.terminal() {
		return errWrongTransactionState()
	}
	if uint64(len(tx.Approvers)) < tx.Threshold {
		return errThresholdNotMet()
	}
	accountRec, err := s.getAccount(tx.Account)
	if err != nil {
		return err
	}
	if !caller.Equal(tx.Submitter) && !needsRole(accountRec, caller) {
		return errUnauthorized()
	}
	if err := s.executeTransaction(token, &tx); err != nil {
		return err
	}
	tx.State = StateExecutedManually
	return s.putMultisig(token, tx)
}

// Withdraw cancels a Pending transaction; only the submitter or the
// account owner may call this.
func (s *Storage) Withdraw(caller identity.Identity, now time.Time, token []byte) error {
	tx, err := s.getMultisig(token)
	if err != nil {
		return err
	}
	tx, err = s.expireIfPastTimeout(token, tx, now)
	if err != nil {
		return err
	}
	if tx.State.terminal() {
		return errWrongTransactionState()
	}
	accountRec, err := s.getAccount(tx.Account)
	if err != nil {
		return err
	}
	if !caller.Equal(tx.Submitter) && !needsRole(accountRec, caller) {
		return errUnauthorized()
	}
	tx.State = StateWithdrawn
	return s.putMultisig(token, tx)
}

func (s *Storage) MultisigInfo(now time.Time, token []byte) (multisigRecord, error) {
	tx, err := s.getMultisig(token)
	if err != nil {
		return multisigRecord{}, err
	}
	return s.expireIfPastTimeout(token, tx, now)
}

// executeTransaction runs the transaction's underlying effect (currently
// a ledger send or an account-defaults update) and sets tx.State to
// ExecutedAutomatically; callers that execute manually overwrite State
// afterward.
func (s *Storage) executeTransaction(token []byte, tx *multisigRecord) error {
	switch {
	case tx.Transaction.Send != nil:
		if s.ledger == nil {
			return errUnauthorized()
		}
		send := tx.Transaction.Send
		from := tx.Account
		if send.From != nil {
			from = *send.From
		}
		if _, err := s.ledger.Send(from, send.To, send.Symbol, send.Amount); err != nil {
			return err
		}
	case tx.Transaction.SetDefaults != nil:
		sd := tx.Transaction.SetDefaults
		accountRec, err := s.getAccount(sd.Account)
		if err != nil {
			return err
		}
		if sd.Threshold != nil {
			accountRec.MultisigThreshold = *sd.Threshold
		}
		if sd.TimeoutInSecs != nil {
			accountRec.MultisigTimeoutSecs = *sd.TimeoutInSecs
		}
		if sd.ExecuteAutomatically != nil {
			accountRec.MultisigExecuteAutomatically = *sd.ExecuteAutomatically
		}
		if err := s.putAccount(sd.Account, accountRec); err != nil {
			return err
		}
	}
	tx.State = StateExecutedAutomatically
	return nil
}
