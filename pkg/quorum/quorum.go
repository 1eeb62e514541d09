// Copyright 2025 Certen Protocol
//
// Package quorum is an optional, off-by-default enrichment: a BLS12-381
// aggregate signature ("quorum certificate") that validators can attach
// to a committed (height, app_hash) pair, built on pkg/crypto/bls. No RPC
// endpoint exposes certificates, and they never feed back into the
// committed state or root_hash — consensus safety continues to rest
// entirely on the underlying BFT engine.
package quorum

import (
	"errors"
	"sync"

	"github.com/certenio/manynet/pkg/crypto/bls"
)

// DomainQuorum is the BLS domain-separation tag used for quorum
// certificates, distinct from the teacher's attestation/proposal/sync
// domains (pkg/crypto/bls.Domain*) since this signs a different message
// shape (height || app_hash) for a different purpose.
const DomainQuorum = "MANYNET_QUORUM_V1"

// Certificate is an aggregate BLS signature over (height, app_hash),
// along with the set of validator public keys that contributed to it.
type Certificate struct {
	Height    uint64
	AppHash   []byte
	Signers   []*bls.PublicKey
	Aggregate *bls.Signature
}

var (
	ErrDisabled       = errors.New("quorum: certificate collection is disabled")
	ErrNoShares       = errors.New("quorum: no signature shares collected")
	ErrInvalidShare   = errors.New("quorum: share does not verify against its claimed public key")
)

// Collector accumulates per-validator signature shares for one in-flight
// (height, app_hash) round and aggregates them into a Certificate on
// request (Certify applies no threshold). It is nil-safe: a nil *Collector behaves as fully
// disabled, so callers that never opt in pay no cost.
type Collector struct {
	mu      sync.Mutex
	enabled bool
	shares  map[uint64]*round
}

type round struct {
	appHash []byte
	signers []*bls.PublicKey
	sigs    []*bls.Signature
}

// NewCollector returns a Collector. enabled=false makes every method a
// no-op returning ErrDisabled, matching spec.md's "off by default".
func NewCollector(enabled bool) *Collector {
	return &Collector{enabled: enabled, shares: map[uint64]*round{}}
}

// quorumMessage is the fixed-shape input every validator signs for a height.
func quorumMessage(height uint64, appHash []byte) []byte {
	buf := make([]byte, 8+len(appHash))
	for i := 0; i < 8; i++ {
		buf[i] = byte(height >> (56 - 8*i))
	}
	copy(buf[8:], appHash)
	return buf
}

// Sign produces this validator's share for (height, appHash).
func Sign(sk *bls.PrivateKey, height uint64, appHash []byte) *bls.Signature {
	return sk.SignWithDomain(quorumMessage(height, appHash), DomainQuorum)
}

// AddShare verifies and records one validator's share for height.
func (c *Collector) AddShare(height uint64, appHash []byte, signer *bls.PublicKey, sig *bls.Signature) error {
	if c == nil || !c.enabled {
		return ErrDisabled
	}
	if !signer.VerifyWithDomain(sig, quorumMessage(height, appHash), DomainQuorum) {
		return ErrInvalidShare
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.shares[height]
	if !ok {
		r = &round{appHash: appHash}
		c.shares[height] = r
	}
	r.signers = append(r.signers, signer)
	r.sigs = append(r.sigs, sig)
	return nil
}

// Certify aggregates every share collected so far for height into a
// Certificate. Callers decide their own quorum threshold before calling
// this (e.g. 2f+1 shares present); Certify itself just aggregates
// whatever has been added.
func (c *Collector) Certify(height uint64) (*Certificate, error) {
	if c == nil || !c.enabled {
		return nil, ErrDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.shares[height]
	if !ok || len(r.sigs) == 0 {
		return nil, ErrNoShares
	}
	agg, err := bls.AggregateSignatures(r.sigs)
	if err != nil {
		return nil, err
	}
	return &Certificate{
		Height:    height,
		AppHash:   r.appHash,
		Signers:   append([]*bls.PublicKey(nil), r.signers...),
		Aggregate: agg,
	}, nil
}

// Verify checks a Certificate's aggregate signature against its listed
// signers for the claimed (height, app_hash).
func Verify(cert *Certificate) bool {
	if cert == nil || len(cert.Signers) == 0 {
		return false
	}
	return bls.VerifyAggregateSignatureWithDomain(cert.Aggregate, cert.Signers, quorumMessage(cert.Height, cert.AppHash), DomainQuorum)
}
