// Copyright 2025 Certen Protocol

package account

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/modules/ledger"
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

func newTestModules(t *testing.T) (*Module, *ledger.Module, identity.Identity) {
	t.Helper()
	store, err := kvstore.NewStore(kvstore.NewMemDB())
	if err != nil {
		t.Fatal(err)
	}
	server := newTestIdentity(t)
	ledgerStorage := ledger.NewStorage(server, store)
	return NewModule(server, store, ledgerStorage), ledger.NewModule(server, store), server
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

func executeLedgerRaw(t *testing.T, m *ledger.Module, method string, from identity.Identity, args interface{}) message.Either {
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

func tokenCreateArgsFor(owner identity.Identity, fundedAccount identity.Identity) ledger.TokenCreateArgs {
	return ledger.TokenCreateArgs{
		Summary:             ledger.TokenSummary{Name: "Test Token", Ticker: "TST", Decimals: 9},
		Owner:               &owner,
		InitialDistribution: map[string]ledger.Amount{fundedAccount.ToText(): amountFromUint64(1000)},
	}
}

func amountFromUint64(v uint64) ledger.Amount { return ledger.FromUint64(v) }

func TestCreateAccountAndInfo(t *testing.T) {
	m, _, _ := newTestModules(t)
	owner := newTestIdentity(t)

	either := execute(t, m, "account.create", owner, CreateArgs{Description: "test account"})
	var created CreateReturns
	if err := decode(either.Ok, &created); err != nil {
		t.Fatal(err)
	}
	if created.Account.IsAnonymous() {
		t.Fatal("expected a non-anonymous account identity")
	}

	either = execute(t, m, "account.info", owner, InfoArgs{Account: created.Account})
	var info InfoReturns
	if err := decode(either.Ok, &info); err != nil {
		t.Fatal(err)
	}
	if info.Description != "test account" {
		t.Fatalf("unexpected description: %q", info.Description)
	}
	found := false
	for _, r := range info.Roles[owner.ToText()] {
		if r == RoleOwner {
			found = true
		}
	}
	if !found {
		t.Fatal("expected creator to hold RoleOwner")
	}
}

func TestAddRolesRequiresOwner(t *testing.T) {
	m, _, _ := newTestModules(t)
	owner := newTestIdentity(t)
	intruder := newTestIdentity(t)
	grantee := newTestIdentity(t)

	either := execute(t, m, "account.create", owner, CreateArgs{})
	var created CreateReturns
	decode(either.Ok, &created)

	either = execute(t, m, "account.addRoles", intruder, AddRolesArgs{
		Account: created.Account,
		Roles:   map[string][]Role{grantee.ToText(): {RoleCanMultisigApprove}},
	})
	if !either.IsErr() {
		t.Fatal("expected permission error for non-owner addRoles")
	}

	either = execute(t, m, "account.addRoles", owner, AddRolesArgs{
		Account: created.Account,
		Roles:   map[string][]Role{grantee.ToText(): {RoleCanMultisigApprove}},
	})
	if either.IsErr() {
		t.Fatalf("owner addRoles failed: %v", either.Err)
	}
}

func TestDisableMarksAccountDisabled(t *testing.T) {
	m, _, _ := newTestModules(t)
	owner := newTestIdentity(t)

	either := execute(t, m, "account.create", owner, CreateArgs{})
	var created CreateReturns
	decode(either.Ok, &created)

	either = execute(t, m, "account.disable", owner, DisableArgs{Account: created.Account})
	if either.IsErr() {
		t.Fatalf("disable failed: %v", either.Err)
	}

	either = execute(t, m, "account.info", owner, InfoArgs{Account: created.Account})
	var info InfoReturns
	decode(either.Ok, &info)
	if !info.Disabled {
		t.Fatal("expected account to be disabled")
	}
}

func TestMultisigHappyPath(t *testing.T) {
	acctModule, ledgerModule, server := newTestModules(t)
	owner := newTestIdentity(t)
	approver := newTestIdentity(t)
	recipient := newTestIdentity(t)
	_ = server

	either := execute(t, acctModule, "account.create", owner, CreateArgs{
		Roles: map[string][]Role{
			approver.ToText(): {RoleCanMultisigApprove},
		},
		Features: []Feature{FeatureMultisig, FeatureLedger},
	})
	var created CreateReturns
	decode(either.Ok, &created)

	either = execute(t, acctModule, "account.multisigSetDefaults", owner, SetDefaultsArgs{
		Account: created.Account, Threshold: uint64Ptr(2), ExecuteAutomatically: boolPtr(true),
	})
	if either.IsErr() {
		t.Fatalf("setDefaults failed: %v", either.Err)
	}

	either = executeLedgerRaw(t, ledgerModule, "tokens.create", owner, tokenCreateArgsFor(owner, created.Account))
	var tokenCreated struct {
		Symbol identity.Identity `cbor:"0,keyasint"`
	}
	decode(either.Ok, &tokenCreated)

	either = execute(t, acctModule, "account.multisigSubmitTransaction", owner, SubmitTransactionArgs{
		Account: created.Account,
		Transaction: Transaction{
			Send: &SendTransaction{To: recipient, Symbol: tokenCreated.Symbol, Amount: amountFromUint64(10)},
		},
	})
	var submitted SubmitTransactionReturns
	if err := decode(either.Ok, &submitted); err != nil {
		t.Fatalf("submit: %v (%v)", err, either.Err)
	}

	either = execute(t, acctModule, "account.multisigApprove", approver, ApproveArgs{Token: submitted.Token})
	var approved ApproveReturns
	if err := decode(either.Ok, &approved); err != nil {
		t.Fatalf("approve: %v (%v)", err, either.Err)
	}
	if !approved.Executed {
		t.Fatal("expected auto-execution once threshold is met")
	}

	either = execute(t, acctModule, "account.multisigApprove", newTestIdentity(t), ApproveArgs{Token: submitted.Token})
	if !either.IsErr() {
		t.Fatal("expected terminal-state error for approval after execution")
	}
}

func TestMultisigRevokeThenExecuteFailsThreshold(t *testing.T) {
	acctModule, _, _ := newTestModules(t)
	owner := newTestIdentity(t)
	approver := newTestIdentity(t)

	either := execute(t, acctModule, "account.create", owner, CreateArgs{
		Roles:    map[string][]Role{approver.ToText(): {RoleCanMultisigApprove}},
		Features: []Feature{FeatureMultisig},
	})
	var created CreateReturns
	decode(either.Ok, &created)

	either = execute(t, acctModule, "account.multisigSetDefaults", owner, SetDefaultsArgs{
		Account: created.Account, Threshold: uint64Ptr(2), ExecuteAutomatically: boolPtr(false),
	})
	if either.IsErr() {
		t.Fatalf("setDefaults failed: %v", either.Err)
	}

	either = execute(t, acctModule, "account.multisigSubmitTransaction", owner, SubmitTransactionArgs{
		Account:     created.Account,
		Transaction: Transaction{SetDefaults: &SetDefaultsTransaction{Account: created.Account, Threshold: uint64Ptr(3)}},
	})
	var submitted SubmitTransactionReturns
	decode(either.Ok, &submitted)

	either = execute(t, acctModule, "account.multisigApprove", approver, ApproveArgs{Token: submitted.Token})
	if either.IsErr() {
		t.Fatalf("approve: %v", either.Err)
	}

	either = execute(t, acctModule, "account.multisigRevoke", approver, RevokeArgs{Token: submitted.Token})
	if either.IsErr() {
		t.Fatalf("revoke: %v", either.Err)
	}

	either = execute(t, acctModule, "account.multisigExecute", owner, ExecuteArgs{Token: submitted.Token})
	if !either.IsErr() {
		t.Fatal("expected threshold-not-met error after revoke")
	}
}

func TestMultisigWithdraw(t *testing.T) {
	acctModule, _, _ := newTestModules(t)
	owner := newTestIdentity(t)

	either := execute(t, acctModule, "account.create", owner, CreateArgs{Features: []Feature{FeatureMultisig}})
	var created CreateReturns
	decode(either.Ok, &created)

	either = execute(t, acctModule, "account.multisigSubmitTransaction", owner, SubmitTransactionArgs{
		Account:     created.Account,
		Transaction: Transaction{SetDefaults: &SetDefaultsTransaction{Account: created.Account, Threshold: uint64Ptr(5)}},
	})
	var submitted SubmitTransactionReturns
	decode(either.Ok, &submitted)

	either = execute(t, acctModule, "account.multisigWithdraw", owner, WithdrawArgs{Token: submitted.Token})
	if either.IsErr() {
		t.Fatalf("withdraw: %v", either.Err)
	}

	either = execute(t, acctModule, "account.multisigApprove", owner, ApproveArgs{Token: submitted.Token})
	if !either.IsErr() {
		t.Fatal("expected withdrawn transaction to reject further approvals")
	}
}

func TestMultisigExpiry(t *testing.T) {
	acctModule, _, _ := newTestModules(t)
	owner := newTestIdentity(t)

	either := execute(t, acctModule, "account.create", owner, CreateArgs{Features: []Feature{FeatureMultisig}})
	var created CreateReturns
	decode(either.Ok, &created)

	one := uint64(1)
	either = execute(t, acctModule, "account.multisigSubmitTransaction", owner, SubmitTransactionArgs{
		Account:       created.Account,
		TimeoutInSecs: &one,
		Transaction:   Transaction{SetDefaults: &SetDefaultsTransaction{Account: created.Account, Threshold: uint64Ptr(5)}},
	})
	var submitted SubmitTransactionReturns
	decode(either.Ok, &submitted)

	tx, err := acctModule.storage.MultisigInfo(time.Now().Add(2*time.Second), submitted.Token)
	if err != nil {
		t.Fatal(err)
	}
	if tx.State != StateExpired {
		t.Fatalf("expected expired state, got %v", tx.State)
	}
}

func TestExpireTimedOutTransactionsSweep(t *testing.T) {
	acctModule, _, _ := newTestModules(t)
	owner := newTestIdentity(t)

	either := execute(t, acctModule, "account.create", owner, CreateArgs{Features: []Feature{FeatureMultisig}})
	var created CreateReturns
	decode(either.Ok, &created)

	one := uint64(1)
	either = execute(t, acctModule, "account.multisigSubmitTransaction", owner, SubmitTransactionArgs{
		Account:       created.Account,
		TimeoutInSecs: &one,
		Transaction:   Transaction{SetDefaults: &SetDefaultsTransaction{Account: created.Account, Threshold: uint64Ptr(5)}},
	})
	var submitted SubmitTransactionReturns
	decode(either.Ok, &submitted)

	if err := acctModule.storage.ExpireTimedOutTransactions(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}

	either = execute(t, acctModule, "account.multisigApprove", owner, ApproveArgs{Token: submitted.Token})
	if !either.IsErr() {
		t.Fatal("expected swept transaction to already be terminal")
	}
}

func uint64Ptr(v uint64) *uint64 { return &v }
func boolPtr(v bool) *bool       { return &v }
