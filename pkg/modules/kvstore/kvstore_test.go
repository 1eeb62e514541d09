// Copyright 2025 Certen Protocol

package kvstore

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

func newTestModule(t *testing.T) *Module {
	t.Helper()
	store, err := kvstore.NewStore(kvstore.NewMemDB())
	if err != nil {
		t.Fatal(err)
	}
	return NewModule(store)
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

func TestPutAndGetRoundTrip(t *testing.T) {
	m := newTestModule(t)
	owner := newTestIdentity(t)

	putArgs := PutArgs{Key: []byte("hello"), Value: []byte("world")}
	if either := execute(t, m, "kvstore.put", owner, putArgs); either.IsErr() {
		t.Fatalf("put failed: %v", either.Err)
	}

	either := execute(t, m, "kvstore.get", owner, GetArgs{Key: []byte("hello")})
	var got GetReturns
	if err := decode(either.Ok, &got); err != nil {
		t.Fatal(err)
	}
	if string(got.Value) != "world" {
		t.Fatalf("expected world, got %q", got.Value)
	}
}

func TestOnlyOwnerMayOverwrite(t *testing.T) {
	m := newTestModule(t)
	owner := newTestIdentity(t)
	intruder := newTestIdentity(t)

	execute(t, m, "kvstore.put", owner, PutArgs{Key: []byte("k"), Value: []byte("v1")})

	either := execute(t, m, "kvstore.put", intruder, PutArgs{Key: []byte("k"), Value: []byte("v2")})
	if !either.IsErr() {
		t.Fatal("expected permission-denied error for non-owner overwrite")
	}
}

func TestAlternativeOwnerRejectsAnonymousAndSubresource(t *testing.T) {
	m := newTestModule(t)
	caller := newTestIdentity(t)
	anon := identity.Anonymous

	either := execute(t, m, "kvstore.put", caller, PutArgs{Key: []byte("k"), Value: []byte("v"), AlternativeOwner: &anon})
	if !either.IsErr() {
		t.Fatal("expected anonymous alternative owner to be rejected")
	}

	sub := caller.WithSubresource(1)
	either = execute(t, m, "kvstore.put", caller, PutArgs{Key: []byte("k2"), Value: []byte("v"), AlternativeOwner: &sub})
	if !either.IsErr() {
		t.Fatal("expected subresource alternative owner to be rejected")
	}
}

func TestDisableBlocksFurtherGets(t *testing.T) {
	m := newTestModule(t)
	owner := newTestIdentity(t)

	execute(t, m, "kvstore.put", owner, PutArgs{Key: []byte("k"), Value: []byte("v")})
	reason := "compromised"
	either := execute(t, m, "kvstore.disable", owner, DisableArgs{Key: []byte("k"), Reason: &reason})
	if either.IsErr() {
		t.Fatalf("disable failed: %v", either.Err)
	}

	either = execute(t, m, "kvstore.get", owner, GetArgs{Key: []byte("k")})
	if !either.IsErr() {
		t.Fatal("expected key-disabled error after disable")
	}
}

func TestQueryReturnsOwnerAndDisabledState(t *testing.T) {
	m := newTestModule(t)
	owner := newTestIdentity(t)

	execute(t, m, "kvstore.put", owner, PutArgs{Key: []byte("k"), Value: []byte("v")})
	either := execute(t, m, "kvstore.query", owner, QueryArgs{Key: []byte("k")})
	var q QueryReturns
	if err := decode(either.Ok, &q); err != nil {
		t.Fatal(err)
	}
	if !q.Owner.Equal(owner) || q.Disabled {
		t.Fatalf("unexpected query result: %+v", q)
	}
}

func TestQueryUnknownKeyFails(t *testing.T) {
	m := newTestModule(t)
	owner := newTestIdentity(t)

	either := execute(t, m, "kvstore.query", owner, QueryArgs{Key: []byte("missing")})
	if !either.IsErr() {
		t.Fatal("expected key-not-found error")
	}
}
