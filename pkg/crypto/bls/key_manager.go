// Copyright 2025 Certen Protocol
//
// KeyManager owns the on-disk lifecycle of a single validator's BLS
// quorum-signing key: load it if present, generate and persist one
// otherwise.

package bls

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// KeyManager loads, generates, and persists one validator's BLS key pair.
type KeyManager struct {
	keyPath    string
	privateKey *PrivateKey
	publicKey  *PublicKey
}

// NewKeyManager returns a KeyManager backed by the hex-encoded key file at
// keyPath. An empty keyPath means keys are held in memory only.
func NewKeyManager(keyPath string) *KeyManager {
	return &KeyManager{keyPath: keyPath}
}

// LoadOrGenerateKey loads the key at keyPath if it exists, else generates a
// fresh key pair and saves it there.
func (km *KeyManager) LoadOrGenerateKey() error {
	if err := Initialize(); err != nil {
		return fmt.Errorf("initialize BLS: %w", err)
	}

	if km.keyPath != "" {
		if _, err := os.Stat(km.keyPath); err == nil {
			return km.LoadKey()
		}
	}
	return km.GenerateNewKey()
}

// LoadKey reads and parses the hex-encoded private key at keyPath.
func (km *KeyManager) LoadKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("no key path specified")
	}

	data, err := os.ReadFile(km.keyPath)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}

	keyBytes, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("decode key hex: %w", err)
	}

	km.privateKey, err = PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	km.publicKey = km.privateKey.PublicKey()
	return nil
}

// GenerateNewKey generates a fresh key pair and saves it if keyPath is set.
func (km *KeyManager) GenerateNewKey() error {
	var err error
	km.privateKey, km.publicKey, err = GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	if km.keyPath != "" {
		return km.SaveKey()
	}
	return nil
}

// GenerateFromSeed derives a deterministic key pair from seed, without
// saving it; callers that want persistence call SaveKey afterward.
func (km *KeyManager) GenerateFromSeed(seed []byte) error {
	var err error
	km.privateKey, km.publicKey, err = GenerateKeyPairFromSeed(seed)
	if err != nil {
		return fmt.Errorf("generate from seed: %w", err)
	}
	return nil
}

// SaveKey writes the private key to keyPath as hex, creating parent
// directories as needed and restricting the file to owner read/write.
func (km *KeyManager) SaveKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("no key path specified")
	}
	if km.privateKey == nil {
		return fmt.Errorf("no private key to save")
	}

	if err := os.MkdirAll(filepath.Dir(km.keyPath), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	keyHex := hex.EncodeToString(km.privateKey.Bytes())
	if err := os.WriteFile(km.keyPath, []byte(keyHex), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// GetPrivateKey returns the loaded/generated private key, or nil.
func (km *KeyManager) GetPrivateKey() *PrivateKey {
	return km.privateKey
}

// GetPublicKey returns the loaded/generated public key, or nil.
func (km *KeyManager) GetPublicKey() *PublicKey {
	return km.publicKey
}

// GetPublicKeyHex returns the public key as a hex string, or "" if unset.
func (km *KeyManager) GetPublicKeyHex() string {
	if km.publicKey == nil {
		return ""
	}
	return km.publicKey.Hex()
}
