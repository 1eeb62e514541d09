// Copyright 2025 Certen Protocol

package client

import (
	"context"
	"crypto/ed25519"
	"net/http/httptest"
	"testing"

	"github.com/certenio/manynet/pkg/dispatch"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/protoerr"
	"github.com/certenio/manynet/pkg/server"
)

type echoModule struct{}

func (echoModule) Info() message.ModuleInfo {
	return message.ModuleInfo{Name: "echo", Endpoints: []string{"echo.upper"}}
}

func (echoModule) Validate(ctx context.Context, req *message.Request) error { return nil }

func (echoModule) Execute(ctx context.Context, req *message.Request) (message.Either, error) {
	switch req.Method {
	case "echo.upper":
		out := make([]byte, len(req.Data))
		for i, b := range req.Data {
			if b >= 'a' && b <= 'z' {
				b -= 'a' - 'A'
			}
			out[i] = b
		}
		return message.Ok(out), nil
	default:
		return message.Either{}, protoerr.ErrUnknownMethod(req.Method)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, identity.Identity) {
	t.Helper()
	serverID := identity.Anonymous
	router := dispatch.NewRouter(serverID, nil)
	router.Register("echo", echoModule{})
	srv := server.NewServer("", server.RouterHandler{Router: router}, serverID, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, serverID
}

func newKeyAndIdentity(t *testing.T) (*identity.PublicKey, identity.Identity) {
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
	return pk, id
}

func TestCallRoundTrip(t *testing.T) {
	ts, serverID := newTestServer(t)
	pk, id := newKeyAndIdentity(t)

	c := NewClient(ts.URL, id, pk)
	data, err := c.Call(context.Background(), serverID, "echo.upper", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "HELLO" {
		t.Fatalf("expected %q, got %q", "HELLO", data)
	}
}

func TestCallSurfacesProtoErr(t *testing.T) {
	ts, serverID := newTestServer(t)
	pk, id := newKeyAndIdentity(t)

	c := NewClient(ts.URL, id, pk)
	_, err := c.Call(context.Background(), serverID, "echo.unknown", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown method")
	}
	perr, ok := err.(protoerr.Error)
	if !ok {
		t.Fatalf("expected a protoerr.Error, got %T", err)
	}
	if perr.Code == 0 {
		t.Fatalf("expected a nonzero error code")
	}
}

func TestStatusAndHeartbeat(t *testing.T) {
	ts, serverID := newTestServer(t)
	pk, id := newKeyAndIdentity(t)
	c := NewClient(ts.URL, id, pk)

	if _, err := c.Status(context.Background(), serverID); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := c.Heartbeat(context.Background(), serverID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
}
