package message

import (
	"crypto/ed25519"
	"testing"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/protoerr"
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

func TestRequestRoundTrip(t *testing.T) {
	from := newTestIdentity(t)
	to := newTestIdentity(t)
	ts := uint64(1234)
	id := uint64(7)
	req := &Request{
		Version:   1,
		From:      &from,
		To:        to,
		Method:    "ledger.balance",
		Data:      []byte{0x01, 0x02},
		Timestamp: &ts,
		ID:        &id,
		Attributes: Attributes{{ID: 5, Args: []byte{0xff}}},
	}

	encoded, err := req.MarshalCBOR()
	if err != nil {
		t.Fatal(err)
	}

	var decoded Request
	if err := decoded.UnmarshalCBOR(encoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Method != req.Method {
		t.Fatalf("method mismatch: %q vs %q", decoded.Method, req.Method)
	}
	if decoded.From == nil || !decoded.From.Equal(from) {
		t.Fatalf("from mismatch")
	}
	if !decoded.To.Equal(to) {
		t.Fatalf("to mismatch")
	}
	if decoded.Timestamp == nil || *decoded.Timestamp != ts {
		t.Fatalf("timestamp mismatch")
	}
	if decoded.ID == nil || *decoded.ID != id {
		t.Fatalf("id mismatch")
	}
	if len(decoded.Attributes) != 1 || decoded.Attributes[0].ID != 5 {
		t.Fatalf("attributes mismatch: %+v", decoded.Attributes)
	}
}

func TestRequestAnonymousFromOmitted(t *testing.T) {
	to := newTestIdentity(t)
	req := &Request{To: to, Method: "base.status", Data: []byte{}}
	encoded, err := req.MarshalCBOR()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Request
	if err := decoded.UnmarshalCBOR(encoded); err != nil {
		t.Fatal(err)
	}
	if decoded.From != nil {
		t.Fatalf("expected nil From for anonymous sender, got %v", decoded.From)
	}
	if decoded.EffectiveFrom() != identity.Anonymous {
		t.Fatalf("EffectiveFrom should default to Anonymous")
	}
}

func TestResponseRoundTripOk(t *testing.T) {
	server := newTestIdentity(t)
	caller := newTestIdentity(t)
	id := uint64(42)
	resp := &Response{From: server, To: &caller, Data: Ok([]byte{0x01, 0x02, 0x03}), ID: &id}

	encoded, err := resp.MarshalCBOR()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Response
	if err := decoded.UnmarshalCBOR(encoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.From.Equal(server) {
		t.Fatalf("from mismatch")
	}
	if decoded.Data.IsErr() {
		t.Fatalf("expected Ok data")
	}
	if string(decoded.Data.Ok) != string(resp.Data.Ok) {
		t.Fatalf("data mismatch")
	}
}

func TestResponseRoundTripErr(t *testing.T) {
	server := newTestIdentity(t)
	e := protoerr.ErrUnknownMethod("foo.bar")
	resp := &Response{From: server, Data: Err(e)}

	encoded, err := resp.MarshalCBOR()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Response
	if err := decoded.UnmarshalCBOR(encoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.Data.IsErr() {
		t.Fatalf("expected Err data")
	}
	if !decoded.Data.Err.Equal(e) {
		t.Fatalf("error mismatch: %+v vs %+v", decoded.Data.Err, e)
	}
}

func TestFromRequestConstructor(t *testing.T) {
	server := newTestIdentity(t)
	caller := newTestIdentity(t)
	id := uint64(9)
	req := &Request{From: &caller, To: server, Method: "echo", Data: []byte{1}, ID: &id}
	resp := FromRequest(req, server, Ok([]byte{1}))

	if !resp.From.Equal(server) {
		t.Fatalf("from should be server id")
	}
	if resp.To == nil || !resp.To.Equal(caller) {
		t.Fatalf("to should echo request from")
	}
	if resp.ID == nil || *resp.ID != id {
		t.Fatalf("id should echo request id")
	}
}

func TestAsyncTokenAttribute(t *testing.T) {
	server := newTestIdentity(t)
	resp := &Response{From: server}
	resp.WithAsyncToken([]byte{0xde, 0xad})
	if resp.Data.IsErr() || len(resp.Data.Ok) != 0 {
		t.Fatalf("async response must carry empty Ok data")
	}
	token, ok := resp.AsyncToken()
	if !ok || string(token) != "\xde\xad" {
		t.Fatalf("expected async token, got %x ok=%v", token, ok)
	}
}
