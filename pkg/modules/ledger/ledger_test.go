// Copyright 2025 Certen Protocol

package ledger

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/message"
)

func newTestIdentity(t *testing.T) identity.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	pk := identity.NewEd25519KeyPair(pub, priv)
	id, err := identity.Addressable(pk)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func newTestModule(t *testing.T) (*Module, identity.Identity) {
	t.Helper()
	server := newTestIdentity(t)
	store, err := kvstore.NewStore(kvstore.NewMemDB())
	if err != nil {
		t.Fatal(err)
	}
	return NewModule(server, store), server
}

func execute(t *testing.T, m *Module, method string, from identity.Identity, args interface{}) message.Either {
	t.Helper()
	data, err := encode(args)
	if err != nil {
		t.Fatal(err)
	}
	var fromPtr *identity.Identity
	if !from.IsAnonymous() {
		fromPtr = &from
	}
	req := &message.Request{From: fromPtr, Method: method, Data: data.Ok}
	if err := m.Validate(context.Background(), req); err != nil {
		t.Fatalf("validate: %v", err)
	}
	either, err := m.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return either
}

func TestAmountSaturatingSub(t *testing.T) {
	a := FromUint64(5)
	b := FromUint64(8)
	got := a.SaturatingSub(b)
	if !got.IsZero() {
		t.Fatalf("expected floor at zero, got %s", got)
	}
}

func TestCreateTokenAndBalance(t *testing.T) {
	m, _ := newTestModule(t)
	owner := newTestIdentity(t)
	holder := newTestIdentity(t)

	createArgs := TokenCreateArgs{
		Summary: TokenSummary{Name: "Test Coin", Ticker: "TST", Decimals: 9},
		Owner:   &owner,
		InitialDistribution: map[string]Amount{
			holder.ToText(): FromUint64(1000),
		},
	}
	either := execute(t, m, "tokens.create", owner, createArgs)
	if either.IsErr() {
		t.Fatalf("tokens.create failed: %v", either.Err)
	}
	var created TokenCreateReturns
	if err := decodeOk(either, &created); err != nil {
		t.Fatal(err)
	}

	balArgs := BalanceArgs{Account: &holder, Symbols: []identity.Identity{created.Symbol}}
	either = execute(t, m, "ledger.balance", holder, balArgs)
	if either.IsErr() {
		t.Fatalf("ledger.balance failed: %v", either.Err)
	}
	var balReturns BalanceReturns
	if err := decodeOk(either, &balReturns); err != nil {
		t.Fatal(err)
	}
	got := balReturns.Balances[created.Symbol.ToText()]
	if got.Cmp(FromUint64(1000)) != 0 {
		t.Fatalf("expected balance 1000, got %s", got)
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	m, _ := newTestModule(t)
	owner := newTestIdentity(t)
	from := newTestIdentity(t)
	to := newTestIdentity(t)

	createArgs := TokenCreateArgs{
		Summary: TokenSummary{Name: "Test Coin", Ticker: "TST", Decimals: 0},
		Owner:   &owner,
		InitialDistribution: map[string]Amount{
			from.ToText(): FromUint64(10),
		},
	}
	either := execute(t, m, "tokens.create", owner, createArgs)
	var created TokenCreateReturns
	if err := decodeOk(either, &created); err != nil {
		t.Fatal(err)
	}

	sendArgs := SendArgs{To: to, Symbol: created.Symbol, Amount: FromUint64(100)}
	either = execute(t, m, "ledger.send", from, sendArgs)
	if !either.IsErr() {
		t.Fatal("expected insufficient funds error")
	}
}

func TestSendSameSourceAndDestination(t *testing.T) {
	m, _ := newTestModule(t)
	owner := newTestIdentity(t)
	party := newTestIdentity(t)

	createArgs := TokenCreateArgs{
		Summary: TokenSummary{Name: "Test Coin", Ticker: "TST", Decimals: 0},
		Owner:   &owner,
	}
	either := execute(t, m, "tokens.create", owner, createArgs)
	var created TokenCreateReturns
	if err := decodeOk(either, &created); err != nil {
		t.Fatal(err)
	}

	sendArgs := SendArgs{To: party, Symbol: created.Symbol, Amount: FromUint64(1)}
	either = execute(t, m, "ledger.send", party, sendArgs)
	if !either.IsErr() {
		t.Fatal("expected same-source-and-destination error")
	}
}

func TestSendZeroAmountRejected(t *testing.T) {
	m, _ := newTestModule(t)
	owner := newTestIdentity(t)
	from := newTestIdentity(t)
	to := newTestIdentity(t)

	createArgs := TokenCreateArgs{
		Summary: TokenSummary{Name: "Test Coin", Ticker: "TST", Decimals: 0},
		Owner:   &owner,
		InitialDistribution: map[string]Amount{
			from.ToText(): FromUint64(10),
		},
	}
	either := execute(t, m, "tokens.create", owner, createArgs)
	var created TokenCreateReturns
	if err := decodeOk(either, &created); err != nil {
		t.Fatal(err)
	}

	sendArgs := SendArgs{To: to, Symbol: created.Symbol, Amount: Amount{}}
	either = execute(t, m, "ledger.send", from, sendArgs)
	if !either.IsErr() {
		t.Fatal("expected zero-amount error")
	}
}

func TestMintBurnOwnerOnly(t *testing.T) {
	m, _ := newTestModule(t)
	owner := newTestIdentity(t)
	intruder := newTestIdentity(t)
	holder := newTestIdentity(t)

	createArgs := TokenCreateArgs{
		Summary:       TokenSummary{Name: "Test Coin", Ticker: "TST", Decimals: 0},
		Owner:         &owner,
		MaximumSupply: amountPtr(FromUint64(50)),
	}
	either := execute(t, m, "tokens.create", owner, createArgs)
	var created TokenCreateReturns
	if err := decodeOk(either, &created); err != nil {
		t.Fatal(err)
	}

	mintArgs := MintArgs{To: holder, Symbol: created.Symbol, Amount: FromUint64(10)}
	if either := execute(t, m, "ledger.mint", intruder, mintArgs); !either.IsErr() {
		t.Fatal("expected unauthorized error for non-owner mint")
	}

	either = execute(t, m, "ledger.mint", owner, mintArgs)
	if either.IsErr() {
		t.Fatalf("owner mint failed: %v", either.Err)
	}

	overMint := MintArgs{To: holder, Symbol: created.Symbol, Amount: FromUint64(1000)}
	if either := execute(t, m, "ledger.mint", owner, overMint); !either.IsErr() {
		t.Fatal("expected maximum-supply-exceeded error")
	}

	burnArgs := BurnArgs{To: holder, Symbol: created.Symbol, Amount: FromUint64(5)}
	either = execute(t, m, "ledger.burn", owner, burnArgs)
	if either.IsErr() {
		t.Fatalf("owner burn failed: %v", either.Err)
	}
	var burnReturns BurnReturns
	if err := decodeOk(either, &burnReturns); err != nil {
		t.Fatal(err)
	}
	if burnReturns.Balance.Cmp(FromUint64(5)) != 0 {
		t.Fatalf("expected balance 5 after burn, got %s", burnReturns.Balance)
	}
}

func TestTokenExtendedInfoRoundTrip(t *testing.T) {
	m, _ := newTestModule(t)
	owner := newTestIdentity(t)

	createArgs := TokenCreateArgs{Summary: TokenSummary{Name: "Test Coin", Ticker: "TST"}, Owner: &owner}
	either := execute(t, m, "tokens.create", owner, createArgs)
	var created TokenCreateReturns
	if err := decodeOk(either, &created); err != nil {
		t.Fatal(err)
	}

	addArgs := TokenAddExtendedInfoArgs{Symbol: created.Symbol, Key: "memo", Value: "hello"}
	if either := execute(t, m, "tokens.addExtendedInfo", owner, addArgs); either.IsErr() {
		t.Fatalf("addExtendedInfo failed: %v", either.Err)
	}

	infoArgs := TokenInfoArgs{Symbol: created.Symbol}
	either = execute(t, m, "tokens.info", owner, infoArgs)
	var info TokenInfoReturns
	if err := decodeOk(either, &info); err != nil {
		t.Fatal(err)
	}
	if info.ExtendedInfo["memo"] != "hello" {
		t.Fatalf("expected memo=hello, got %v", info.ExtendedInfo)
	}

	removeArgs := TokenRemoveExtendedInfoArgs{Symbol: created.Symbol, Keys: []string{"memo"}}
	if either := execute(t, m, "tokens.removeExtendedInfo", owner, removeArgs); either.IsErr() {
		t.Fatalf("removeExtendedInfo failed: %v", either.Err)
	}

	either = execute(t, m, "tokens.info", owner, infoArgs)
	if err := decodeOk(either, &info); err != nil {
		t.Fatal(err)
	}
	if _, ok := info.ExtendedInfo["memo"]; ok {
		t.Fatal("expected memo key to be removed")
	}
}

func decodeOk(either message.Either, v interface{}) error {
	return decode(either.Ok, v)
}

func amountPtr(a Amount) *Amount { return &a }
