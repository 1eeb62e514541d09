// Copyright 2025 Certen Protocol

package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPEM(t *testing.T, priv ed25519.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	path := filepath.Join(t.TempDir(), "node.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEd25519PEMRoundTrips(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	path := writeTestPEM(t, priv)

	pk, id, err := LoadEd25519PEM(path)
	if err != nil {
		t.Fatalf("LoadEd25519PEM: %v", err)
	}
	if string(pk.X) != string(pub) {
		t.Fatal("loaded public key material does not match")
	}
	want, err := Addressable(pk)
	if err != nil {
		t.Fatal(err)
	}
	if !id.Equal(want) {
		t.Fatalf("identity = %s, want %s", id.ToText(), want.ToText())
	}
}

func TestLoadEd25519PEMRejectsMissingFile(t *testing.T) {
	if _, _, err := LoadEd25519PEM(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadEd25519PEMRejectsNonPEMContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(path, []byte("not a pem file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadEd25519PEM(path); err == nil {
		t.Fatal("expected an error for non-PEM content")
	}
}
