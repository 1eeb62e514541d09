// Copyright 2025 Certen Protocol

package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadEd25519PEM reads an unencrypted PKCS#8 "PRIVATE KEY" PEM file (the
// --pem flag every manynet executable accepts per spec.md's CLI surface)
// and derives the node's self-certifying Addressable identity from it.
// No third-party key-file format appears anywhere in the example pack
// for this; crypto/x509 plus encoding/pem is the standard library's own
// idiomatic reader for exactly this PEM shape, so there is nothing in
// the ecosystem stack to prefer over it here.
func LoadEd25519PEM(path string) (*PublicKey, Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Identity{}, fmt.Errorf("identity: failed to read %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, Identity{}, fmt.Errorf("identity: %s does not contain a PKCS#8 PRIVATE KEY block", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, Identity{}, fmt.Errorf("identity: failed to parse %s: %w", path, err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, Identity{}, fmt.Errorf("identity: %s is not an Ed25519 key", path)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, Identity{}, ErrInvalidKeyMaterial
	}
	pk := NewEd25519KeyPair(pub, priv)
	id, err := Addressable(pk)
	if err != nil {
		return nil, Identity{}, err
	}
	return pk, id, nil
}
