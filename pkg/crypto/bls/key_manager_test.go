// Copyright 2025 Certen Protocol

package bls

import (
	"path/filepath"
	"testing"
)

func TestKeyManagerGenerateNewKeyWithoutPath(t *testing.T) {
	km := NewKeyManager("")
	if err := km.GenerateNewKey(); err != nil {
		t.Fatalf("generate new key: %v", err)
	}
	if km.GetPrivateKey() == nil || km.GetPublicKey() == nil {
		t.Fatal("expected both keys to be set after generation")
	}
	if km.GetPublicKeyHex() == "" {
		t.Error("expected a non-empty public key hex")
	}
}

func TestKeyManagerLoadOrGenerateKeyPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "quorum", "validator.key")

	km1 := NewKeyManager(keyPath)
	if err := km1.LoadOrGenerateKey(); err != nil {
		t.Fatalf("load or generate (first boot): %v", err)
	}
	wantHex := km1.GetPublicKeyHex()

	km2 := NewKeyManager(keyPath)
	if err := km2.LoadOrGenerateKey(); err != nil {
		t.Fatalf("load or generate (second boot): %v", err)
	}
	if got := km2.GetPublicKeyHex(); got != wantHex {
		t.Errorf("public key after reload = %s, want %s", got, wantHex)
	}
}

func TestKeyManagerLoadKeyWithoutPathFails(t *testing.T) {
	km := NewKeyManager("")
	if err := km.LoadKey(); err == nil {
		t.Error("expected an error loading a key with no path configured")
	}
}

func TestKeyManagerSaveKeyRequiresGeneratedKey(t *testing.T) {
	km := NewKeyManager(filepath.Join(t.TempDir(), "validator.key"))
	if err := km.SaveKey(); err == nil {
		t.Error("expected an error saving before any key has been generated")
	}
}

func TestKeyManagerGenerateFromSeedDeterministic(t *testing.T) {
	seed := []byte("validator-7 chain manynet-testnet deterministic seed!!")

	km1 := NewKeyManager("")
	if err := km1.GenerateFromSeed(seed); err != nil {
		t.Fatalf("generate from seed: %v", err)
	}
	km2 := NewKeyManager("")
	if err := km2.GenerateFromSeed(seed); err != nil {
		t.Fatalf("generate from seed: %v", err)
	}
	if km1.GetPublicKeyHex() != km2.GetPublicKeyHex() {
		t.Error("same seed produced different public keys across key managers")
	}
}
