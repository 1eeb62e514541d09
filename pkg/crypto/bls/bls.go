// Copyright 2025 Certen Protocol
//
// Package bls implements BLS12-381 signatures on top of gnark-crypto:
// key generation, signing/verification with domain separation, and
// signature/public-key aggregation for the Network's optional quorum
// certificates (pkg/quorum).
package bls

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var (
	initOnce sync.Once

	g1Gen bls12381.G1Affine
	g2Gen bls12381.G2Affine
)

// DomainQuorum is the domain separation tag pkg/quorum signs height/app-hash
// attestations under. Defined here (rather than only in pkg/quorum) so any
// future signer of a distinct message shape can mint its own tag alongside
// it without reaching into pkg/quorum's internals.
const DomainQuorum = "MANYNET_QUORUM_V1"

// Size constants for the three serialized value shapes this package handles.
const (
	PrivateKeySize = 32 // scalar in Fr
	PublicKeySize  = 96 // compressed G2 point
	SignatureSize  = 48 // compressed G1 point
)

// Initialize loads the curve's generator points. Safe to call repeatedly;
// every exported constructor calls it, so callers normally never need to.
func Initialize() error {
	initOnce.Do(func() {
		_, _, g1GenPoint, g2GenPoint := bls12381.Generators()
		g1Gen = g1GenPoint
		g2Gen = g2GenPoint
	})
	return nil
}

// PrivateKey is a BLS12-381 signing key: a scalar in Fr.
type PrivateKey struct {
	scalar fr.Element
}

// PublicKey is a BLS12-381 verification key: a point on G2.
type PublicKey struct {
	point bls12381.G2Affine
}

// Signature is a BLS12-381 signature: a point on G1.
type Signature struct {
	point bls12381.G1Affine
}

// GenerateKeyPair generates a new key pair from a secure random source.
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	if err := Initialize(); err != nil {
		return nil, nil, fmt.Errorf("initialize BLS: %w", err)
	}

	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, nil, fmt.Errorf("generate random scalar: %w", err)
	}

	privateKey := &PrivateKey{scalar: sk}
	return privateKey, privateKey.PublicKey(), nil
}

// GenerateKeyPairFromSeed derives a deterministic key pair from a seed,
// for reproducible validator keys across restarts.
func GenerateKeyPairFromSeed(seed []byte) (*PrivateKey, *PublicKey, error) {
	if err := Initialize(); err != nil {
		return nil, nil, fmt.Errorf("initialize BLS: %w", err)
	}
	if len(seed) < 32 {
		return nil, nil, errors.New("seed must be at least 32 bytes")
	}

	hash := sha256.Sum256(seed)
	var sk fr.Element
	sk.SetBytes(hash[:])

	privateKey := &PrivateKey{scalar: sk}
	return privateKey, privateKey.PublicKey(), nil
}

// PrivateKeyFromBytes deserializes a private key scalar.
func PrivateKeyFromBytes(data []byte) (*PrivateKey, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}
	if len(data) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(data), PrivateKeySize)
	}

	var sk fr.Element
	sk.SetBytes(data)
	return &PrivateKey{scalar: sk}, nil
}

// PublicKeyFromBytes deserializes a compressed G2 point.
func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}

	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize public key: %w", err)
	}
	return &PublicKey{point: pk}, nil
}

// SignatureFromBytes deserializes a compressed G1 point.
func SignatureFromBytes(data []byte) (*Signature, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}

	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize signature: %w", err)
	}
	return &Signature{point: sig}, nil
}

// Bytes returns the serialized private key scalar.
func (sk *PrivateKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	return b[:]
}

// Hex returns the private key scalar as a hex string.
func (sk *PrivateKey) Hex() string {
	return hex.EncodeToString(sk.Bytes())
}

// PublicKey derives pk = sk * G2.
func (sk *PrivateKey) PublicKey() *PublicKey {
	var pk bls12381.G2Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	pk.ScalarMultiplication(&g2Gen, &skBig)
	return &PublicKey{point: pk}
}

// Sign computes sig = sk * H(message), with no domain separation.
func (sk *PrivateKey) Sign(message []byte) *Signature {
	h := hashToG1(message)

	var sig bls12381.G1Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	sig.ScalarMultiplication(&h, &skBig)
	return &Signature{point: sig}
}

// SignWithDomain signs H(domain || message) instead of the bare message,
// so two callers using distinct domain tags can never produce a
// cross-applicable signature even over identical message bytes.
func (sk *PrivateKey) SignWithDomain(message []byte, domain string) *Signature {
	return sk.Sign(computeDomainMessage(domain, message))
}

// Bytes returns the serialized compressed G2 point.
func (pk *PublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

// Hex returns the public key as a hex string.
func (pk *PublicKey) Hex() string {
	return hex.EncodeToString(pk.Bytes())
}

// Verify checks e(sig, G2) == e(H(message), pk) via a single pairing check
// e(sig, G2) * e(H(message), -pk) == 1.
func (pk *PublicKey) Verify(sig *Signature, message []byte) bool {
	h := hashToG1(message)

	var negPk bls12381.G2Affine
	negPk.Neg(&pk.point)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig.point, h},
		[]bls12381.G2Affine{g2Gen, negPk},
	)
	if err != nil {
		return false
	}
	return ok
}

// VerifyWithDomain verifies a signature produced by SignWithDomain.
func (pk *PublicKey) VerifyWithDomain(sig *Signature, message []byte, domain string) bool {
	return pk.Verify(sig, computeDomainMessage(domain, message))
}

// Equal reports whether two public keys are the same G2 point.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	return pk.point.Equal(&other.point)
}

// Bytes returns the serialized compressed G1 point.
func (sig *Signature) Bytes() []byte {
	b := sig.point.Bytes()
	return b[:]
}

// Hex returns the signature as a hex string.
func (sig *Signature) Hex() string {
	return hex.EncodeToString(sig.Bytes())
}

// AggregateSignatures sums signatures on G1: aggSig = sig1 + sig2 + ... + sigN.
func AggregateSignatures(signatures []*Signature) (*Signature, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}
	if len(signatures) == 0 {
		return nil, errors.New("no signatures to aggregate")
	}

	var agg bls12381.G1Jac
	agg.FromAffine(&signatures[0].point)
	for _, s := range signatures[1:] {
		var jac bls12381.G1Jac
		jac.FromAffine(&s.point)
		agg.AddAssign(&jac)
	}

	var result bls12381.G1Affine
	result.FromJacobian(&agg)
	return &Signature{point: result}, nil
}

// AggregatePublicKeys sums public keys on G2: aggPk = pk1 + pk2 + ... + pkN.
func AggregatePublicKeys(publicKeys []*PublicKey) (*PublicKey, error) {
	if err := Initialize(); err != nil {
		return nil, fmt.Errorf("initialize BLS: %w", err)
	}
	if len(publicKeys) == 0 {
		return nil, errors.New("no public keys to aggregate")
	}

	var agg bls12381.G2Jac
	agg.FromAffine(&publicKeys[0].point)
	for _, p := range publicKeys[1:] {
		var jac bls12381.G2Jac
		jac.FromAffine(&p.point)
		agg.AddAssign(&jac)
	}

	var result bls12381.G2Affine
	result.FromJacobian(&agg)
	return &PublicKey{point: result}, nil
}

// VerifyAggregateSignature verifies aggSig against the aggregate of
// publicKeys, assuming every signer signed the identical message.
func VerifyAggregateSignature(aggSig *Signature, publicKeys []*PublicKey, message []byte) bool {
	if err := Initialize(); err != nil {
		return false
	}
	if len(publicKeys) == 0 {
		return false
	}

	aggPk, err := AggregatePublicKeys(publicKeys)
	if err != nil {
		return false
	}
	return aggPk.Verify(aggSig, message)
}

// VerifyAggregateSignatureWithDomain verifies an aggregate signature
// produced over a domain-separated message (see SignWithDomain).
func VerifyAggregateSignatureWithDomain(aggSig *Signature, publicKeys []*PublicKey, message []byte, domain string) bool {
	return VerifyAggregateSignature(aggSig, publicKeys, computeDomainMessage(domain, message))
}

// hashToG1 maps an arbitrary message to a point on G1 using a simple
// hash-and-increment search; not a constant-time or standardized
// hash-to-curve, but sufficient since the message space here is always a
// small fixed-shape structure (height||app_hash), not attacker-chosen.
func hashToG1(message []byte) bls12381.G1Affine {
	h := sha256.New()
	h.Write([]byte("MANYNET_BLS_SIG_G1_XMD:SHA-256_SSWU_RO_"))
	h.Write(message)

	var counter uint64
	for {
		h2 := sha256.New()
		h2.Write(h.Sum(nil))
		binary.Write(h2, binary.BigEndian, counter)
		hash := h2.Sum(nil)

		var point bls12381.G1Affine
		if _, err := point.SetBytes(hash); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(hash)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)

		var result bls12381.G1Affine
		result.ScalarMultiplication(&g1Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}

		counter++
		if counter > 1000 {
			return g1Gen
		}
	}
}

// computeDomainMessage returns H(domain || message).
func computeDomainMessage(domain string, message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(message)
	return h.Sum(nil)
}

// ValidatePublicKeySubgroup checks that data decodes to a valid, non-identity
// G2 point in the correct prime-order subgroup, guarding against rogue-key
// style attacks that rely on small-subgroup or off-curve points.
func ValidatePublicKeySubgroup(data []byte) error {
	if err := Initialize(); err != nil {
		return fmt.Errorf("initialize BLS: %w", err)
	}
	if len(data) != PublicKeySize {
		return fmt.Errorf("invalid public key size: got %d, want %d", len(data), PublicKeySize)
	}

	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return fmt.Errorf("invalid public key encoding: %w", err)
	}
	if !pk.IsOnCurve() {
		return errors.New("public key not on BLS12-381 G2 curve")
	}
	if pk.IsInfinity() {
		return errors.New("public key is identity point")
	}
	if !pk.IsInSubGroup() {
		return errors.New("public key not in correct G2 subgroup")
	}
	return nil
}

// ValidateSignatureSubgroup checks that data decodes to a valid, non-identity
// G1 point in the correct prime-order subgroup.
func ValidateSignatureSubgroup(data []byte) error {
	if err := Initialize(); err != nil {
		return fmt.Errorf("initialize BLS: %w", err)
	}
	if len(data) != SignatureSize {
		return fmt.Errorf("invalid signature size: got %d, want %d", len(data), SignatureSize)
	}

	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !sig.IsOnCurve() {
		return errors.New("signature not on BLS12-381 G1 curve")
	}
	if sig.IsInfinity() {
		return errors.New("signature is identity point")
	}
	if !sig.IsInSubGroup() {
		return errors.New("signature not in correct G1 subgroup")
	}
	return nil
}
